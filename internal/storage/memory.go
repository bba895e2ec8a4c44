package storage

import (
	"context"
	"sort"
	"strings"
	"sync"
)

// MemoryBackend implements Backend in process memory. It keeps the same
// table/column semantics as SQLBackend and backs tests and single-node runs.
type MemoryBackend struct {
	mu       sync.RWMutex
	registry map[string]struct{}
	tables   map[string]*memoryTable

	hook func(table, node string)
}

type memoryTable struct {
	columns []string // node columns in creation order
	rows    map[string]*Row
}

// NewMemoryBackend creates a new in-memory storage backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{
		registry: make(map[string]struct{}),
		tables:   make(map[string]*memoryTable),
	}
}

func (m *MemoryBackend) SetColumnHook(hook func(table, node string)) {
	m.mu.Lock()
	m.hook = hook
	m.mu.Unlock()
}

func (m *MemoryBackend) Register(ctx context.Context, name string) error {
	if CleanName(name) == "" {
		return ErrEmptyMetricName
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.registry[name] = struct{}{}
	m.ensureTableUnsafe(TableName(name))
	return nil
}

func (m *MemoryBackend) Deregister(ctx context.Context, name string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.registry[name]; !ok {
		return false, nil
	}
	delete(m.registry, name)
	return true, nil
}

func (m *MemoryBackend) List(ctx context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	names := make([]string, 0, len(m.registry))
	for name := range m.registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (m *MemoryBackend) ensureTableUnsafe(table string) *memoryTable {
	t, ok := m.tables[table]
	if !ok {
		t = &memoryTable{rows: make(map[string]*Row)}
		m.tables[table] = t
	}
	return t
}

// column returns the stored spelling of a node column. Names match case
// insensitively, as they do in MySQL and SQLite.
func (t *memoryTable) column(node string) (string, bool) {
	for _, c := range t.columns {
		if strings.EqualFold(c, node) {
			return c, true
		}
	}
	return "", false
}

func (m *MemoryBackend) EnsureNodeColumn(ctx context.Context, table, node string) (bool, error) {
	if err := ValidateNodeName(node); err != nil {
		return false, err
	}

	m.mu.Lock()
	t := m.ensureTableUnsafe(table)
	if _, ok := t.column(node); ok {
		m.mu.Unlock()
		return false, nil
	}
	t.columns = append(t.columns, node)
	hook := m.hook
	m.mu.Unlock()

	if hook != nil {
		hook(table, node)
	}
	return true, nil
}

func (m *MemoryBackend) Columns(ctx context.Context, table string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	t, ok := m.tables[table]
	if !ok {
		return nil, nil
	}
	return append([]string(nil), t.columns...), nil
}

func (m *MemoryBackend) UpsertValue(ctx context.Context, entry ValueEntry) error {
	if _, err := m.EnsureNodeColumn(ctx, entry.Table, entry.Node); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	t := m.ensureTableUnsafe(entry.Table)
	row, ok := t.rows[entry.EntityID]
	if !ok {
		row = &Row{EntityID: entry.EntityID, Values: make(map[string]string)}
		t.rows[entry.EntityID] = row
	}
	row.EntityName = entry.EntityName

	// an existing column wins over the spelling of this write
	column, ok := t.column(entry.Node)
	if !ok {
		column = entry.Node
	}
	row.Values[column] = entry.Value
	return nil
}

func (m *MemoryBackend) SumValue(ctx context.Context, table, entityID string) (Total, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	t, ok := m.tables[table]
	if !ok || len(t.columns) == 0 {
		return Total{}, nil
	}
	row, ok := t.rows[entityID]
	if !ok {
		return Total{}, nil
	}

	var total int64
	for _, c := range t.columns {
		v, ok := row.Values[c]
		if !ok {
			// column added after the row was written
			v = "0"
		}
		total += ParseStoredValue(v)
	}
	return Total{Value: total, Found: true}, nil
}

func (m *MemoryBackend) ReadRow(ctx context.Context, table, entityID string) (*Row, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	t, ok := m.tables[table]
	if !ok {
		return nil, ErrMissingRelation
	}
	row, ok := t.rows[entityID]
	if !ok {
		return nil, nil
	}

	out := &Row{EntityID: row.EntityID, EntityName: row.EntityName, Values: make(map[string]string)}
	for _, c := range t.columns {
		if v, ok := row.Values[c]; ok {
			out.Values[c] = v
		} else {
			out.Values[c] = "0"
		}
	}
	return out, nil
}

// MigrateAll only has missing tables to fix: in memory every table is born
// with the display name column.
func (m *MemoryBackend) MigrateAll(ctx context.Context) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	migrated := false
	for name := range m.registry {
		table := TableName(name)
		if _, ok := m.tables[table]; !ok {
			m.ensureTableUnsafe(table)
			migrated = true
		}
	}
	return migrated, nil
}

func (m *MemoryBackend) Close() error {
	return nil
}

// Len returns the number of metric tables (for testing)
func (m *MemoryBackend) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.tables)
}
