package storage

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSQLite(t *testing.T) *SQLBackend {
	t.Helper()

	backend, err := NewSQLBackend(TestConfig(filepath.Join(t.TempDir(), "test.db")))
	require.NoError(t, err)
	t.Cleanup(func() { backend.Close() })
	return backend
}

func TestSQLiteBackend(t *testing.T) {
	runBackendSuite(t, func(t *testing.T) Backend {
		return newTestSQLite(t)
	})
}

func TestSQLiteBackend_BaseMigrations(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")
	ctx := context.Background()

	backend, err := NewSQLBackend(TestConfig(dbPath))
	require.NoError(t, err)

	version, err := backend.SchemaVersion(ctx)
	require.NoError(t, err)
	assert.Equal(t, len(baseMigrations), version)

	require.NoError(t, backend.Register(ctx, "%player_kills%"))
	require.NoError(t, backend.Close())

	// reopening applies nothing twice and keeps the registry
	backend, err = NewSQLBackend(TestConfig(dbPath))
	require.NoError(t, err)
	defer backend.Close()

	version, err = backend.SchemaVersion(ctx)
	require.NoError(t, err)
	assert.Equal(t, len(baseMigrations), version)

	names, err := backend.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"%player_kills%"}, names)
}

func TestSQLiteBackend_MigrateLegacyTable(t *testing.T) {
	backend := newTestSQLite(t)
	ctx := context.Background()
	table := TableName("%legacy%")

	// a table from before display names were stored
	_, err := backend.db.ExecContext(ctx, fmt.Sprintf(
		`CREATE TABLE %s ("player_uuid" VARCHAR(36) NOT NULL PRIMARY KEY, "n1" VARCHAR(255) DEFAULT '0')`, backend.dialect.Quote(table)))
	require.NoError(t, err)
	_, err = backend.db.ExecContext(ctx, fmt.Sprintf(`INSERT INTO %s ("player_uuid", "n1") VALUES ('u1', '8')`, backend.dialect.Quote(table)))
	require.NoError(t, err)

	require.NoError(t, backend.Register(ctx, "%legacy%"))

	migrated, err := backend.MigrateAll(ctx)
	require.NoError(t, err)
	assert.True(t, migrated)

	all, err := backend.allColumns(ctx, table)
	require.NoError(t, err)
	assert.Equal(t, []string{KeyColumn, "n1", NameColumn}, all)

	migrated, err = backend.MigrateAll(ctx)
	require.NoError(t, err)
	assert.False(t, migrated)

	total, err := backend.SumValue(ctx, table, "u1")
	require.NoError(t, err)
	assert.Equal(t, Total{Value: 8, Found: true}, total)

	require.NoError(t, backend.UpsertValue(ctx, ValueEntry{Table: table, EntityID: "u1", EntityName: "Steve", Node: "n2", Value: "2"}))
	row, err := backend.ReadRow(ctx, table, "u1")
	require.NoError(t, err)
	assert.Equal(t, "Steve", row.EntityName)
	assert.Equal(t, map[string]string{"n1": "8", "n2": "2"}, row.Values)
}

func TestSQLiteBackend_MigrateRecreatesMissingTable(t *testing.T) {
	backend := newTestSQLite(t)
	ctx := context.Background()
	table := TableName("%player_kills%")

	require.NoError(t, backend.Register(ctx, "%player_kills%"))
	_, err := backend.db.ExecContext(ctx, "DROP TABLE "+backend.dialect.Quote(table))
	require.NoError(t, err)

	migrated, err := backend.MigrateAll(ctx)
	require.NoError(t, err)
	assert.True(t, migrated)

	all, err := backend.allColumns(ctx, table)
	require.NoError(t, err)
	assert.Equal(t, []string{KeyColumn, NameColumn}, all)
}

func TestSQLiteBackend_UpsertAfterTableDropped(t *testing.T) {
	backend := newTestSQLite(t)
	ctx := context.Background()
	table := TableName("%player_kills%")
	entry := ValueEntry{Table: table, EntityID: "u1", EntityName: "Steve", Node: "n1", Value: "3"}

	require.NoError(t, backend.Register(ctx, "%player_kills%"))
	require.NoError(t, backend.UpsertValue(ctx, entry))

	_, err := backend.db.ExecContext(ctx, "DROP TABLE "+backend.dialect.Quote(table))
	require.NoError(t, err)

	// the cached column makes the first write fail, the second rebuilds
	err = backend.UpsertValue(ctx, entry)
	assert.ErrorIs(t, err, ErrMissingRelation)

	require.NoError(t, backend.UpsertValue(ctx, entry))

	total, err := backend.SumValue(ctx, table, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(3), total.Value)
}

func TestSQLiteBackend_ColumnsOfMissingTable(t *testing.T) {
	backend := newTestSQLite(t)

	columns, err := backend.Columns(context.Background(), "mss_nothing_here")
	require.NoError(t, err)
	assert.Nil(t, columns)
}

func TestNewSQLBackend_UnknownDriver(t *testing.T) {
	_, err := NewSQLBackend(&Config{Driver: "oracle"})
	assert.ErrorIs(t, err, ErrUnknownDriver)
}

func TestSQLiteBackend_NodeNamesIgnoreCase(t *testing.T) {
	testNodeNamesIgnoreCase(t, newTestSQLite(t))
}

func TestSQLiteBackend_DuplicateColumnIsRecognised(t *testing.T) {
	backend := newTestSQLite(t)
	ctx := context.Background()
	table := TableName("%player_kills%")
	require.NoError(t, backend.Register(ctx, "%player_kills%"))

	_, err := backend.db.ExecContext(ctx, backend.dialect.AddNodeColumn(table, "eu1"))
	require.NoError(t, err)

	_, err = backend.db.ExecContext(ctx, backend.dialect.AddNodeColumn(table, "eu1"))
	require.Error(t, err)
	assert.True(t, backend.dialect.IsDuplicateColumn(err), err.Error())
}

// Two processes sharing one database race to create their own columns and
// each other's.
func TestSQLiteBackend_SharedFileColumnRace(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "shared.db")
	ctx := context.Background()
	table := TableName("%player_kills%")

	var backends []*SQLBackend
	for i := 0; i < 2; i++ {
		b, err := NewSQLBackend(TestConfig(dbPath))
		require.NoError(t, err)
		t.Cleanup(func() { b.Close() })
		backends = append(backends, b)
	}
	require.NoError(t, backends[0].Register(ctx, "%player_kills%"))

	var created atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		for _, b := range backends {
			for _, node := range []string{"eu1", "eu2"} {
				wg.Add(1)
				go func() {
					defer wg.Done()
					ok, err := b.EnsureNodeColumn(ctx, table, node)
					assert.NoError(t, err)
					if ok {
						created.Add(1)
					}
				}()
			}
		}
	}
	wg.Wait()

	// one create per node, whichever process got there first
	assert.Equal(t, int32(2), created.Load())

	columns, err := backends[1].Columns(ctx, table)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"eu1", "eu2"}, columns)

	require.NoError(t, backends[0].UpsertValue(ctx, ValueEntry{Table: table, EntityID: "p1", EntityName: "p1", Node: "eu1", Value: "10"}))
	require.NoError(t, backends[1].UpsertValue(ctx, ValueEntry{Table: table, EntityID: "p1", EntityName: "p1", Node: "eu2", Value: "15"}))

	total, err := backends[0].SumValue(ctx, table, "p1")
	require.NoError(t, err)
	assert.Equal(t, Total{Value: 25, Found: true}, total)
}
