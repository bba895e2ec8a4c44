package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/mattn/go-sqlite3"
	"github.com/puzpuzpuz/xsync/v3"

	"github.com/thisdougb/multisync/internal/config"
)

// SQLBackend implements Backend on a relational database through database/sql.
// Connections are taken from the pool per statement, nothing is held across
// operations.
type SQLBackend struct {
	db      *sql.DB
	dialect Dialect
	timeout time.Duration

	// columnLock serializes the check-and-create of node columns across the
	// whole process. knownColumns keeps the common write path away from it.
	columnLock   sync.Mutex
	knownColumns *xsync.MapOf[string, struct{}]

	hookMu     sync.RWMutex
	columnHook func(table, node string)
}

// NewSQLBackend opens the database described by cfg, verifies the connection
// and applies the base schema migrations.
func NewSQLBackend(cfg *Config) (*SQLBackend, error) {
	dialect, err := DialectFor(cfg.Driver)
	if err != nil {
		return nil, err
	}

	driver := cfg.Driver
	if dialect.Name() == "postgres" {
		driver = "pgx"
	}
	if dialect.Name() == "sqlite3" {
		driver = "sqlite3"
	}

	db, err := sql.Open(driver, cfg.BuildDSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	if dialect.Name() == "sqlite3" {
		db.SetMaxOpenConns(1) // SQLite works best with single connection
		db.SetMaxIdleConns(1)
	} else {
		if cfg.MaxOpenConns > 0 {
			db.SetMaxOpenConns(cfg.MaxOpenConns)
		}
		if cfg.MaxIdleConns > 0 {
			db.SetMaxIdleConns(cfg.MaxIdleConns)
		}
		if cfg.ConnMaxLifetime > 0 {
			db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
		}
	}

	backend := newSQLBackend(db, dialect, cfg.Timeout)

	ctx, cancel := backend.opContext(context.Background())
	defer cancel()

	// Test connection
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping %s: %w", dialect.Name(), err)
	}

	if err := runBaseMigrations(ctx, db, dialect); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return backend, nil
}

func newSQLBackend(db *sql.DB, dialect Dialect, timeout time.Duration) *SQLBackend {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &SQLBackend{
		db:           db,
		dialect:      dialect,
		timeout:      timeout,
		knownColumns: xsync.NewMapOf[string, struct{}](),
	}
}

func (s *SQLBackend) opContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.timeout)
}

// Dialect returns the SQL dialect in use.
func (s *SQLBackend) Dialect() Dialect {
	return s.dialect
}

func (s *SQLBackend) SetColumnHook(hook func(table, node string)) {
	s.hookMu.Lock()
	s.columnHook = hook
	s.hookMu.Unlock()
}

// --------------------------------------------------------------------------
// Registry
// --------------------------------------------------------------------------

// Register inserts name into the registry (a duplicate is a no-op) and creates
// its metric table with only the key and display name columns.
func (s *SQLBackend) Register(ctx context.Context, name string) error {
	if CleanName(name) == "" {
		return ErrEmptyMetricName
	}

	ctx, cancel := s.opContext(ctx)
	defer cancel()

	insert := s.dialect.InsertIgnore(RegistryTable, []string{"placeholder_name"}, "placeholder_name")
	if _, err := s.db.ExecContext(ctx, insert, name); err != nil {
		return fmt.Errorf("failed to insert %s into registry: %w", name, err)
	}

	if err := s.ensureTable(ctx, TableName(name)); err != nil {
		return err
	}
	return nil
}

func (s *SQLBackend) Deregister(ctx context.Context, name string) (bool, error) {
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	query := fmt.Sprintf("DELETE FROM %s WHERE placeholder_name = %s",
		s.dialect.Quote(RegistryTable), s.dialect.Placeholder(1))

	result, err := s.db.ExecContext(ctx, query, name)
	if err != nil {
		return false, fmt.Errorf("failed to delete %s from registry: %w", name, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return affected > 0, nil
}

func (s *SQLBackend) List(ctx context.Context) ([]string, error) {
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	query := fmt.Sprintf("SELECT placeholder_name FROM %s ORDER BY placeholder_name", s.dialect.Quote(RegistryTable))

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query registry: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan registry row: %w", err)
		}
		names = append(names, name)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return names, nil
}

// --------------------------------------------------------------------------
// Metric tables
// --------------------------------------------------------------------------

func (s *SQLBackend) ensureTable(ctx context.Context, table string) error {
	if _, err := s.db.ExecContext(ctx, s.dialect.CreateMetricTable(table)); err != nil {
		return fmt.Errorf("failed to create table %s: %w", table, err)
	}
	return nil
}

// allColumns lists every column of table, reserved ones included.
func (s *SQLBackend) allColumns(ctx context.Context, table string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, s.dialect.ColumnsQuery(), table)
	if err != nil {
		if s.dialect.IsMissingRelation(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to list columns of %s: %w", table, err)
	}
	defer rows.Close()

	var columns []string
	for rows.Next() {
		var column string
		if err := rows.Scan(&column); err != nil {
			return nil, fmt.Errorf("failed to scan column name: %w", err)
		}
		columns = append(columns, column)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return columns, nil
}

func (s *SQLBackend) hasColumn(columns []string, name string) bool {
	for _, c := range columns {
		if s.dialect.SameIdentifier(c, name) {
			return true
		}
	}
	return false
}

func (s *SQLBackend) Columns(ctx context.Context, table string) ([]string, error) {
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	all, err := s.allColumns(ctx, table)
	if err != nil {
		return nil, err
	}

	var columns []string
	for _, c := range all {
		if !isReservedColumn(c) {
			columns = append(columns, c)
		}
	}
	return columns, nil
}

// EnsureNodeColumn guarantees table has a value column for node. Racing
// callers in this process serialize on columnLock; a column added by another
// process between our check and our ALTER shows up as a duplicate column
// error and counts as present.
func (s *SQLBackend) EnsureNodeColumn(ctx context.Context, table, node string) (bool, error) {
	if err := ValidateNodeName(node); err != nil {
		return false, err
	}

	key := table + "\x00" + node
	if _, ok := s.knownColumns.Load(key); ok {
		return false, nil
	}

	s.columnLock.Lock()
	defer s.columnLock.Unlock()

	ctx, cancel := s.opContext(ctx)
	defer cancel()

	if _, ok := s.knownColumns.Load(key); ok {
		return false, nil
	}

	columns, err := s.allColumns(ctx, table)
	if err != nil {
		return false, err
	}

	if len(columns) == 0 {
		// registered elsewhere before its table made it, or dropped by hand
		if err := s.ensureTable(ctx, table); err != nil {
			return false, err
		}
	}

	created := false
	if !s.hasColumn(columns, node) {
		config.LogInfo(ctx, fmt.Sprintf("adding column %s to table %s", node, table))

		_, err := s.db.ExecContext(ctx, s.dialect.AddNodeColumn(table, node))
		switch {
		case err == nil:
			created = true
			config.LogInfo(ctx, fmt.Sprintf("column %s added to table %s", node, table))
		case s.dialect.IsDuplicateColumn(err):
			config.LogDebug(ctx, fmt.Sprintf("column %s on %s created concurrently", node, table))
		default:
			return false, fmt.Errorf("failed to add column %s to %s: %w", node, table, err)
		}
	}

	s.knownColumns.Store(key, struct{}{})

	if created {
		s.hookMu.RLock()
		hook := s.columnHook
		s.hookMu.RUnlock()
		if hook != nil {
			hook(table, node)
		}
	}
	return created, nil
}

// UpsertValue writes one node's value for an entity, creating the node column
// on first use. Only the display name and the node's own column are touched.
func (s *SQLBackend) UpsertValue(ctx context.Context, entry ValueEntry) error {
	if _, err := s.EnsureNodeColumn(ctx, entry.Table, entry.Node); err != nil {
		return err
	}

	ctx, cancel := s.opContext(ctx)
	defer cancel()

	_, err := s.db.ExecContext(ctx, s.dialect.Upsert(entry.Table, entry.Node),
		entry.EntityID, entry.EntityName, entry.Value)
	if err != nil {
		if s.dialect.IsMissingRelation(err) {
			// column or table vanished under us, look again next time
			s.knownColumns.Delete(entry.Table + "\x00" + entry.Node)
			return fmt.Errorf("failed to upsert into %s: %w: %v", entry.Table, ErrMissingRelation, err)
		}
		return fmt.Errorf("failed to upsert into %s: %w", entry.Table, err)
	}
	return nil
}

// SumValue adds up every node column of the entity's row. NULL and
// non-integer values count as zero.
func (s *SQLBackend) SumValue(ctx context.Context, table, entityID string) (Total, error) {
	columns, err := s.Columns(ctx, table)
	if err != nil {
		return Total{}, err
	}
	if len(columns) == 0 {
		return Total{}, nil
	}

	terms := make([]string, len(columns))
	for i, c := range columns {
		terms[i] = s.dialect.NumericOrZero(s.dialect.Quote(c))
	}

	query := fmt.Sprintf("SELECT (%s) AS total FROM %s WHERE %s = %s",
		strings.Join(terms, " + "), s.dialect.Quote(table), s.dialect.Quote(KeyColumn), s.dialect.Placeholder(1))

	ctx, cancel := s.opContext(ctx)
	defer cancel()

	var total sql.NullInt64
	err = s.db.QueryRowContext(ctx, query, entityID).Scan(&total)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return Total{}, nil
	case err != nil:
		if s.dialect.IsMissingRelation(err) {
			return Total{}, fmt.Errorf("failed to sum %s: %w: %v", table, ErrMissingRelation, err)
		}
		return Total{}, fmt.Errorf("failed to sum %s: %w", table, err)
	}

	return Total{Value: total.Int64, Found: true}, nil
}

// ReadRow returns the raw stored row of an entity, nil when absent.
func (s *SQLBackend) ReadRow(ctx context.Context, table, entityID string) (*Row, error) {
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	query := fmt.Sprintf("SELECT * FROM %s WHERE %s = %s",
		s.dialect.Quote(table), s.dialect.Quote(KeyColumn), s.dialect.Placeholder(1))

	rows, err := s.db.QueryContext(ctx, query, entityID)
	if err != nil {
		if s.dialect.IsMissingRelation(err) {
			return nil, fmt.Errorf("failed to read %s: %w: %v", table, ErrMissingRelation, err)
		}
		return nil, fmt.Errorf("failed to read %s: %w", table, err)
	}
	defer rows.Close()

	names, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("failed to read column names: %w", err)
	}

	if !rows.Next() {
		return nil, rows.Err()
	}

	values := make([]sql.NullString, len(names))
	dest := make([]interface{}, len(names))
	for i := range values {
		dest[i] = &values[i]
	}
	if err := rows.Scan(dest...); err != nil {
		return nil, fmt.Errorf("failed to scan row: %w", err)
	}

	row := &Row{Values: make(map[string]string)}
	for i, name := range names {
		switch {
		case strings.EqualFold(name, KeyColumn):
			row.EntityID = values[i].String
		case strings.EqualFold(name, NameColumn):
			row.EntityName = values[i].String
		case values[i].Valid:
			row.Values[name] = values[i].String
		}
	}
	return row, nil
}

// Close gracefully shuts down the connection pool
func (s *SQLBackend) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}
