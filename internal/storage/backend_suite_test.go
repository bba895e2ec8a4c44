package storage

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// runBackendSuite checks the behaviour every Backend must share.
func runBackendSuite(t *testing.T, newBackend func(t *testing.T) Backend) {
	ctx := context.Background()

	t.Run("RegisterIsIdempotent", func(t *testing.T) {
		b := newBackend(t)

		require.NoError(t, b.Register(ctx, "%player_kills%"))
		require.NoError(t, b.Register(ctx, "%player_kills%"))

		names, err := b.List(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"%player_kills%"}, names)
	})

	t.Run("RegisterRejectsEmptyName", func(t *testing.T) {
		b := newBackend(t)

		assert.ErrorIs(t, b.Register(ctx, ""), ErrEmptyMetricName)
		assert.ErrorIs(t, b.Register(ctx, "%%"), ErrEmptyMetricName)
	})

	t.Run("ListIsSorted", func(t *testing.T) {
		b := newBackend(t)

		for _, name := range []string{"%player_kills%", "%player_deaths%", "%mined_blocks%"} {
			require.NoError(t, b.Register(ctx, name))
		}

		names, err := b.List(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"%mined_blocks%", "%player_deaths%", "%player_kills%"}, names)
	})

	t.Run("DeregisterKeepsData", func(t *testing.T) {
		b := newBackend(t)
		table := TableName("%player_kills%")

		require.NoError(t, b.Register(ctx, "%player_kills%"))
		require.NoError(t, b.UpsertValue(ctx, ValueEntry{Table: table, EntityID: "u1", EntityName: "Steve", Node: "n1", Value: "12"}))

		removed, err := b.Deregister(ctx, "%player_kills%")
		require.NoError(t, err)
		assert.True(t, removed)

		removed, err = b.Deregister(ctx, "%player_kills%")
		require.NoError(t, err)
		assert.False(t, removed)

		names, err := b.List(ctx)
		require.NoError(t, err)
		assert.Empty(t, names)

		total, err := b.SumValue(ctx, table, "u1")
		require.NoError(t, err)
		assert.Equal(t, Total{Value: 12, Found: true}, total)
	})

	t.Run("EnsureNodeColumn", func(t *testing.T) {
		b := newBackend(t)
		table := TableName("%player_kills%")
		require.NoError(t, b.Register(ctx, "%player_kills%"))

		columns, err := b.Columns(ctx, table)
		require.NoError(t, err)
		assert.Empty(t, columns)

		created, err := b.EnsureNodeColumn(ctx, table, "n1")
		require.NoError(t, err)
		assert.True(t, created)

		created, err = b.EnsureNodeColumn(ctx, table, "n1")
		require.NoError(t, err)
		assert.False(t, created)

		columns, err = b.Columns(ctx, table)
		require.NoError(t, err)
		assert.Equal(t, []string{"n1"}, columns)
	})

	t.Run("EnsureNodeColumnRejectsBadNames", func(t *testing.T) {
		b := newBackend(t)
		table := TableName("%player_kills%")
		require.NoError(t, b.Register(ctx, "%player_kills%"))

		for _, node := range []string{"", "bad name", "x;DROP", KeyColumn, "Player_Name"} {
			_, err := b.EnsureNodeColumn(ctx, table, node)
			assert.ErrorIs(t, err, ErrInvalidNodeName, node)
		}
	})

	t.Run("EnsureNodeColumnCreatesMissingTable", func(t *testing.T) {
		b := newBackend(t)
		table := TableName("%never_registered%")

		created, err := b.EnsureNodeColumn(ctx, table, "n1")
		require.NoError(t, err)
		assert.True(t, created)

		columns, err := b.Columns(ctx, table)
		require.NoError(t, err)
		assert.Equal(t, []string{"n1"}, columns)
	})

	t.Run("ConcurrentEnsureNodeColumn", func(t *testing.T) {
		b := newBackend(t)
		table := TableName("%player_kills%")
		require.NoError(t, b.Register(ctx, "%player_kills%"))

		var created atomic.Int32
		var wg sync.WaitGroup
		for i := 0; i < 20; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				ok, err := b.EnsureNodeColumn(ctx, table, "n1")
				assert.NoError(t, err)
				if ok {
					created.Add(1)
				}
			}()
		}
		wg.Wait()

		assert.Equal(t, int32(1), created.Load())

		columns, err := b.Columns(ctx, table)
		require.NoError(t, err)
		assert.Equal(t, []string{"n1"}, columns)
	})

	t.Run("ConcurrentEnsureDistinctNodes", func(t *testing.T) {
		b := newBackend(t)
		table := TableName("%player_kills%")
		require.NoError(t, b.Register(ctx, "%player_kills%"))

		nodes := []string{"eu1", "eu2", "us1", "us2"}
		created := make([]atomic.Int32, len(nodes))

		var wg sync.WaitGroup
		for i := 0; i < 10; i++ {
			for n, node := range nodes {
				wg.Add(1)
				go func() {
					defer wg.Done()
					ok, err := b.EnsureNodeColumn(ctx, table, node)
					assert.NoError(t, err)
					if ok {
						created[n].Add(1)
					}
				}()
			}
		}
		wg.Wait()

		for n, node := range nodes {
			assert.Equal(t, int32(1), created[n].Load(), node)
		}

		columns, err := b.Columns(ctx, table)
		require.NoError(t, err)
		assert.ElementsMatch(t, nodes, columns)
	})

	t.Run("HugeValuesCountAsZero", func(t *testing.T) {
		b := newBackend(t)
		table := TableName("%player_kills%")
		require.NoError(t, b.Register(ctx, "%player_kills%"))

		values := map[string]string{"n1": "9223372036854775807", "n2": "15", "n3": "999999999999999"}
		for node, v := range values {
			require.NoError(t, b.UpsertValue(ctx, ValueEntry{Table: table, EntityID: "u1", EntityName: "Steve", Node: node, Value: v}))
		}

		total, err := b.SumValue(ctx, table, "u1")
		require.NoError(t, err)
		assert.Equal(t, Total{Value: 999999999999999 + 15, Found: true}, total)
	})

	t.Run("ColumnHookFiresOnCreation", func(t *testing.T) {
		b := newBackend(t)
		table := TableName("%player_kills%")
		require.NoError(t, b.Register(ctx, "%player_kills%"))

		var mu sync.Mutex
		var seen []string
		b.SetColumnHook(func(tbl, node string) {
			mu.Lock()
			seen = append(seen, tbl+"/"+node)
			mu.Unlock()
		})

		for i := 0; i < 3; i++ {
			require.NoError(t, b.UpsertValue(ctx, ValueEntry{Table: table, EntityID: "u1", EntityName: "Steve", Node: "n1", Value: "1"}))
		}
		require.NoError(t, b.UpsertValue(ctx, ValueEntry{Table: table, EntityID: "u1", EntityName: "Steve", Node: "n2", Value: "1"}))

		mu.Lock()
		defer mu.Unlock()
		assert.Equal(t, []string{table + "/n1", table + "/n2"}, seen)
	})

	t.Run("UpsertLeavesOtherNodesAlone", func(t *testing.T) {
		b := newBackend(t)
		table := TableName("%player_kills%")
		require.NoError(t, b.Register(ctx, "%player_kills%"))

		require.NoError(t, b.UpsertValue(ctx, ValueEntry{Table: table, EntityID: "u1", EntityName: "Steve", Node: "n1", Value: "10"}))
		require.NoError(t, b.UpsertValue(ctx, ValueEntry{Table: table, EntityID: "u1", EntityName: "Steve", Node: "n2", Value: "15"}))
		require.NoError(t, b.UpsertValue(ctx, ValueEntry{Table: table, EntityID: "u1", EntityName: "Steve2", Node: "n1", Value: "42"}))

		row, err := b.ReadRow(ctx, table, "u1")
		require.NoError(t, err)
		require.NotNil(t, row)
		assert.Equal(t, "u1", row.EntityID)
		assert.Equal(t, "Steve2", row.EntityName)
		assert.Equal(t, map[string]string{"n1": "42", "n2": "15"}, row.Values)

		total, err := b.SumValue(ctx, table, "u1")
		require.NoError(t, err)
		assert.Equal(t, Total{Value: 57, Found: true}, total)
	})

	t.Run("RoundTripOverwrites", func(t *testing.T) {
		b := newBackend(t)
		table := TableName("%player_kills%")
		require.NoError(t, b.Register(ctx, "%player_kills%"))

		for _, v := range []string{"42", "50"} {
			require.NoError(t, b.UpsertValue(ctx, ValueEntry{Table: table, EntityID: "u1", EntityName: "Steve", Node: "n1", Value: v}))
		}

		total, err := b.SumValue(ctx, table, "u1")
		require.NoError(t, err)
		assert.Equal(t, int64(50), total.Value)
	})

	t.Run("NonNumericValuesCountAsZero", func(t *testing.T) {
		b := newBackend(t)
		table := TableName("%player_kills%")
		require.NoError(t, b.Register(ctx, "%player_kills%"))

		values := map[string]string{"n1": "abc", "n2": "7", "n3": "", "n4": "1,000", "n5": "-2", "n6": "3.5"}
		for node, v := range values {
			require.NoError(t, b.UpsertValue(ctx, ValueEntry{Table: table, EntityID: "u1", EntityName: "Steve", Node: node, Value: v}))
		}

		total, err := b.SumValue(ctx, table, "u1")
		require.NoError(t, err)
		assert.Equal(t, Total{Value: 5, Found: true}, total)
	})

	t.Run("SumNotFound", func(t *testing.T) {
		b := newBackend(t)
		table := TableName("%player_kills%")
		require.NoError(t, b.Register(ctx, "%player_kills%"))

		// no node columns yet
		total, err := b.SumValue(ctx, table, "u1")
		require.NoError(t, err)
		assert.False(t, total.Found)

		require.NoError(t, b.UpsertValue(ctx, ValueEntry{Table: table, EntityID: "u1", EntityName: "Steve", Node: "n1", Value: "3"}))

		// no row for this entity
		total, err = b.SumValue(ctx, table, "u2")
		require.NoError(t, err)
		assert.Equal(t, Total{}, total)
	})

	t.Run("LateColumnDefaultsToZero", func(t *testing.T) {
		b := newBackend(t)
		table := TableName("%player_kills%")
		require.NoError(t, b.Register(ctx, "%player_kills%"))

		require.NoError(t, b.UpsertValue(ctx, ValueEntry{Table: table, EntityID: "u1", EntityName: "Steve", Node: "n1", Value: "5"}))
		require.NoError(t, b.UpsertValue(ctx, ValueEntry{Table: table, EntityID: "u2", EntityName: "Alex", Node: "n2", Value: "9"}))

		row, err := b.ReadRow(ctx, table, "u1")
		require.NoError(t, err)
		require.NotNil(t, row)
		assert.Equal(t, "0", row.Values["n2"])

		total, err := b.SumValue(ctx, table, "u1")
		require.NoError(t, err)
		assert.Equal(t, int64(5), total.Value)
	})

	t.Run("ThreeNodeScenario", func(t *testing.T) {
		b := newBackend(t)
		table := TableName("%player_kills%")
		require.NoError(t, b.Register(ctx, "%player_kills%"))

		require.NoError(t, b.UpsertValue(ctx, ValueEntry{Table: table, EntityID: "u1", EntityName: "Steve", Node: "lobby", Value: "10"}))
		require.NoError(t, b.UpsertValue(ctx, ValueEntry{Table: table, EntityID: "u1", EntityName: "Steve", Node: "survival", Value: "15"}))
		_, err := b.EnsureNodeColumn(ctx, table, "creative")
		require.NoError(t, err)

		total, err := b.SumValue(ctx, table, "u1")
		require.NoError(t, err)
		assert.Equal(t, Total{Value: 25, Found: true}, total)
	})

	t.Run("ReadRowMissing", func(t *testing.T) {
		b := newBackend(t)
		table := TableName("%player_kills%")
		require.NoError(t, b.Register(ctx, "%player_kills%"))

		row, err := b.ReadRow(ctx, table, "nobody")
		require.NoError(t, err)
		assert.Nil(t, row)

		_, err = b.ReadRow(ctx, TableName("%no_such_metric%"), "nobody")
		assert.ErrorIs(t, err, ErrMissingRelation)
	})

	t.Run("MigrateAllIsIdempotent", func(t *testing.T) {
		b := newBackend(t)
		require.NoError(t, b.Register(ctx, "%player_kills%"))
		require.NoError(t, b.Register(ctx, "%player_deaths%"))

		migrated, err := b.MigrateAll(ctx)
		require.NoError(t, err)
		assert.False(t, migrated)

		migrated, err = b.MigrateAll(ctx)
		require.NoError(t, err)
		assert.False(t, migrated)
	})
}
