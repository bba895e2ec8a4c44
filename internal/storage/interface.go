package storage

import "context"

// Backend defines the interface for all storage implementations. It owns the
// registry table and every metric table: all DDL and DML goes through it.
type Backend interface {
	// Register inserts name into the registry if absent and makes sure its
	// metric table exists.
	Register(ctx context.Context, name string) error
	// Deregister removes name from the registry, reporting whether it was
	// there. The metric table is kept.
	Deregister(ctx context.Context, name string) (bool, error)
	List(ctx context.Context) ([]string, error)

	EnsureNodeColumn(ctx context.Context, table, node string) (bool, error)
	// Columns returns the node value columns of table, nil when the table
	// does not exist.
	Columns(ctx context.Context, table string) ([]string, error)
	UpsertValue(ctx context.Context, entry ValueEntry) error
	SumValue(ctx context.Context, table, entityID string) (Total, error)
	ReadRow(ctx context.Context, table, entityID string) (*Row, error)

	// MigrateAll brings every registered metric table up to the current
	// column layout, reporting whether anything changed.
	MigrateAll(ctx context.Context) (bool, error)

	// SetColumnHook installs a callback fired after a node column is created.
	SetColumnHook(hook func(table, node string))
	Close() error
}

// ValueEntry is one node's latest value for an entity.
type ValueEntry struct {
	Table      string `json:"table"`
	EntityID   string `json:"entity_id"`
	EntityName string `json:"entity_name"`
	Node       string `json:"node"`
	Value      string `json:"value"`
}

// Total is the summed value of an entity across all node columns. Found is
// false when the table has no node columns or no row for the entity.
type Total struct {
	Value int64 `json:"value"`
	Found bool  `json:"found"`
}

// Row is a raw metric table row, node column -> stored value.
type Row struct {
	EntityID   string            `json:"entity_id"`
	EntityName string            `json:"entity_name"`
	Values     map[string]string `json:"values"`
}
