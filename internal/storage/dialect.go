package storage

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/mattn/go-sqlite3"
)

// Dialect abstracts the SQL differences between the supported backends.
// Identifiers passed in are already sanitized (tables) or validated (nodes),
// quoting is still applied everywhere.
type Dialect interface {
	// Name returns the dialect name (mysql, postgres, sqlite3)
	Name() string

	// Quote wraps an identifier.
	Quote(ident string) string

	// Placeholder returns a parameter placeholder for the given 1-based index.
	Placeholder(index int) string

	CreateMigrationsTable() string
	CreateRegistryTable() string
	CreateMetricTable(table string) string

	// InsertIgnore inserts a row unless conflictColumn already holds the value.
	InsertIgnore(table string, columns []string, conflictColumn string) string

	// Upsert writes the key, the display name and one node column, leaving
	// every other node column alone.
	Upsert(table, node string) string

	AddNodeColumn(table, node string) string
	AddNameColumn(table string) string

	// ColumnsQuery lists column names of the table bound to placeholder 1,
	// in table order. A missing table yields no rows.
	ColumnsQuery() string

	// NumericOrZero converts a quoted string column to an integer expression,
	// NULL and non-integer text become 0.
	NumericOrZero(quotedColumn string) string

	// SameIdentifier reports whether two column names address the same column.
	SameIdentifier(a, b string) bool

	IsMissingRelation(err error) bool
	IsDuplicateColumn(err error) bool
}

// DialectFor returns the dialect of a database/sql driver name.
func DialectFor(driver string) (Dialect, error) {
	switch driver {
	case "mysql":
		return &MySQLDialect{}, nil
	case "postgres", "pgx":
		return &PostgresDialect{}, nil
	case "sqlite3", "sqlite":
		return &SQLiteDialect{}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, driver)
}

func placeholders(d Dialect, n int) string {
	p := make([]string, n)
	for i := range p {
		p[i] = d.Placeholder(i + 1)
	}
	return strings.Join(p, ", ")
}

func quoteAll(d Dialect, idents []string) string {
	q := make([]string, len(idents))
	for i, ident := range idents {
		q[i] = d.Quote(ident)
	}
	return strings.Join(q, ", ")
}

// --------------------------------------------------------------------------
// MySQL
// --------------------------------------------------------------------------

// MySQLDialect implements Dialect for MySQL and MariaDB.
type MySQLDialect struct{}

var _ Dialect = (*MySQLDialect)(nil)

func (d *MySQLDialect) Name() string { return "mysql" }

func (d *MySQLDialect) Quote(ident string) string {
	return "`" + strings.ReplaceAll(ident, "`", "``") + "`"
}

func (d *MySQLDialect) Placeholder(index int) string { return "?" }

func (d *MySQLDialect) CreateMigrationsTable() string {
	return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		version INT NOT NULL PRIMARY KEY,
		applied_at BIGINT NOT NULL
	)`, d.Quote(MigrationsTable))
}

func (d *MySQLDialect) CreateRegistryTable() string {
	return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		id INT AUTO_INCREMENT PRIMARY KEY,
		placeholder_name VARCHAR(255) NOT NULL UNIQUE
	)`, d.Quote(RegistryTable))
}

func (d *MySQLDialect) CreateMetricTable(table string) string {
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s VARCHAR(36) NOT NULL PRIMARY KEY, %s VARCHAR(16) NOT NULL)",
		d.Quote(table), d.Quote(KeyColumn), d.Quote(NameColumn))
}

func (d *MySQLDialect) InsertIgnore(table string, columns []string, conflictColumn string) string {
	return fmt.Sprintf("INSERT IGNORE INTO %s (%s) VALUES (%s)",
		d.Quote(table), quoteAll(d, columns), placeholders(d, len(columns)))
}

func (d *MySQLDialect) Upsert(table, node string) string {
	return fmt.Sprintf("INSERT INTO %s (%s, %s, %s) VALUES (?, ?, ?) ON DUPLICATE KEY UPDATE %s = VALUES(%s), %s = VALUES(%s)",
		d.Quote(table), d.Quote(KeyColumn), d.Quote(NameColumn), d.Quote(node),
		d.Quote(NameColumn), d.Quote(NameColumn), d.Quote(node), d.Quote(node))
}

func (d *MySQLDialect) AddNodeColumn(table, node string) string {
	return fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s VARCHAR(255) DEFAULT '0'", d.Quote(table), d.Quote(node))
}

func (d *MySQLDialect) AddNameColumn(table string) string {
	return fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s VARCHAR(16) NOT NULL AFTER %s",
		d.Quote(table), d.Quote(NameColumn), d.Quote(KeyColumn))
}

func (d *MySQLDialect) ColumnsQuery() string {
	return `SELECT COLUMN_NAME FROM information_schema.COLUMNS
		WHERE TABLE_SCHEMA = DATABASE() AND TABLE_NAME = ?
		ORDER BY ORDINAL_POSITION`
}

func (d *MySQLDialect) NumericOrZero(col string) string {
	return fmt.Sprintf("(CASE WHEN %s REGEXP '^-?[0-9]{1,%d}$' THEN CAST(%s AS SIGNED) ELSE 0 END)", col, MaxStoredDigits, col)
}

func (d *MySQLDialect) SameIdentifier(a, b string) bool { return strings.EqualFold(a, b) }

func (d *MySQLDialect) IsMissingRelation(err error) bool {
	var me *mysql.MySQLError
	if errors.As(err, &me) {
		// ER_NO_SUCH_TABLE, ER_BAD_FIELD_ERROR
		return me.Number == 1146 || me.Number == 1054
	}
	return false
}

func (d *MySQLDialect) IsDuplicateColumn(err error) bool {
	var me *mysql.MySQLError
	// ER_DUP_FIELDNAME
	return errors.As(err, &me) && me.Number == 1060
}

// --------------------------------------------------------------------------
// PostgreSQL
// --------------------------------------------------------------------------

// PostgresDialect implements Dialect for PostgreSQL.
type PostgresDialect struct{}

var _ Dialect = (*PostgresDialect)(nil)

func (d *PostgresDialect) Name() string { return "postgres" }

func (d *PostgresDialect) Quote(ident string) string {
	return `"` + strings.ReplaceAll(ident, `"`, `""`) + `"`
}

func (d *PostgresDialect) Placeholder(index int) string {
	return fmt.Sprintf("$%d", index)
}

func (d *PostgresDialect) CreateMigrationsTable() string {
	return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		version INTEGER PRIMARY KEY,
		applied_at BIGINT NOT NULL
	)`, d.Quote(MigrationsTable))
}

func (d *PostgresDialect) CreateRegistryTable() string {
	return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		id SERIAL PRIMARY KEY,
		placeholder_name VARCHAR(255) NOT NULL UNIQUE
	)`, d.Quote(RegistryTable))
}

func (d *PostgresDialect) CreateMetricTable(table string) string {
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s VARCHAR(36) NOT NULL PRIMARY KEY, %s VARCHAR(16) NOT NULL)",
		d.Quote(table), d.Quote(KeyColumn), d.Quote(NameColumn))
}

func (d *PostgresDialect) InsertIgnore(table string, columns []string, conflictColumn string) string {
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) ON CONFLICT (%s) DO NOTHING",
		d.Quote(table), quoteAll(d, columns), placeholders(d, len(columns)), d.Quote(conflictColumn))
}

func (d *PostgresDialect) Upsert(table, node string) string {
	return fmt.Sprintf("INSERT INTO %s (%s, %s, %s) VALUES ($1, $2, $3) ON CONFLICT (%s) DO UPDATE SET %s = excluded.%s, %s = excluded.%s",
		d.Quote(table), d.Quote(KeyColumn), d.Quote(NameColumn), d.Quote(node),
		d.Quote(KeyColumn), d.Quote(NameColumn), d.Quote(NameColumn), d.Quote(node), d.Quote(node))
}

func (d *PostgresDialect) AddNodeColumn(table, node string) string {
	return fmt.Sprintf("ALTER TABLE %s ADD COLUMN IF NOT EXISTS %s VARCHAR(255) DEFAULT '0'", d.Quote(table), d.Quote(node))
}

func (d *PostgresDialect) AddNameColumn(table string) string {
	// no column positioning in postgres, existing rows need a default
	return fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s VARCHAR(16) NOT NULL DEFAULT ''", d.Quote(table), d.Quote(NameColumn))
}

func (d *PostgresDialect) ColumnsQuery() string {
	return `SELECT column_name FROM information_schema.columns
		WHERE table_schema = current_schema() AND table_name = $1
		ORDER BY ordinal_position`
}

func (d *PostgresDialect) NumericOrZero(col string) string {
	return fmt.Sprintf("(CASE WHEN %s ~ '^-?[0-9]{1,%d}$' THEN CAST(%s AS BIGINT) ELSE 0 END)", col, MaxStoredDigits, col)
}

func (d *PostgresDialect) SameIdentifier(a, b string) bool { return a == b }

func (d *PostgresDialect) IsMissingRelation(err error) bool {
	var pe *pgconn.PgError
	if errors.As(err, &pe) {
		// undefined_table, undefined_column
		return pe.Code == "42P01" || pe.Code == "42703"
	}
	return false
}

func (d *PostgresDialect) IsDuplicateColumn(err error) bool {
	var pe *pgconn.PgError
	// duplicate_column
	return errors.As(err, &pe) && pe.Code == "42701"
}

// --------------------------------------------------------------------------
// SQLite
// --------------------------------------------------------------------------

// SQLiteDialect implements Dialect for SQLite.
type SQLiteDialect struct{}

var _ Dialect = (*SQLiteDialect)(nil)

func (d *SQLiteDialect) Name() string { return "sqlite3" }

func (d *SQLiteDialect) Quote(ident string) string {
	return `"` + strings.ReplaceAll(ident, `"`, `""`) + `"`
}

func (d *SQLiteDialect) Placeholder(index int) string { return "?" }

func (d *SQLiteDialect) CreateMigrationsTable() string {
	return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		version INTEGER PRIMARY KEY,
		applied_at INTEGER NOT NULL
	)`, d.Quote(MigrationsTable))
}

func (d *SQLiteDialect) CreateRegistryTable() string {
	return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		placeholder_name VARCHAR(255) NOT NULL UNIQUE
	)`, d.Quote(RegistryTable))
}

func (d *SQLiteDialect) CreateMetricTable(table string) string {
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s VARCHAR(36) NOT NULL PRIMARY KEY, %s VARCHAR(16) NOT NULL)",
		d.Quote(table), d.Quote(KeyColumn), d.Quote(NameColumn))
}

func (d *SQLiteDialect) InsertIgnore(table string, columns []string, conflictColumn string) string {
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) ON CONFLICT(%s) DO NOTHING",
		d.Quote(table), quoteAll(d, columns), placeholders(d, len(columns)), d.Quote(conflictColumn))
}

func (d *SQLiteDialect) Upsert(table, node string) string {
	return fmt.Sprintf("INSERT INTO %s (%s, %s, %s) VALUES (?, ?, ?) ON CONFLICT(%s) DO UPDATE SET %s = excluded.%s, %s = excluded.%s",
		d.Quote(table), d.Quote(KeyColumn), d.Quote(NameColumn), d.Quote(node),
		d.Quote(KeyColumn), d.Quote(NameColumn), d.Quote(NameColumn), d.Quote(node), d.Quote(node))
}

func (d *SQLiteDialect) AddNodeColumn(table, node string) string {
	return fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s VARCHAR(255) DEFAULT '0'", d.Quote(table), d.Quote(node))
}

func (d *SQLiteDialect) AddNameColumn(table string) string {
	return fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s VARCHAR(16) NOT NULL DEFAULT ''", d.Quote(table), d.Quote(NameColumn))
}

func (d *SQLiteDialect) ColumnsQuery() string {
	return `SELECT name FROM pragma_table_info(?) ORDER BY cid`
}

func (d *SQLiteDialect) NumericOrZero(col string) string {
	return fmt.Sprintf("(CASE WHEN %s IS NULL OR ltrim(%s, '-') = '' OR ltrim(%s, '-') GLOB '*[^0-9]*' OR length(ltrim(%s, '-')) > %d THEN 0 ELSE CAST(%s AS INTEGER) END)",
		col, col, col, col, MaxStoredDigits, col)
}

func (d *SQLiteDialect) SameIdentifier(a, b string) bool { return strings.EqualFold(a, b) }

func (d *SQLiteDialect) IsMissingRelation(err error) bool {
	return sqliteErrorContains(err, "no such table") || sqliteErrorContains(err, "no such column")
}

func (d *SQLiteDialect) IsDuplicateColumn(err error) bool {
	return sqliteErrorContains(err, "duplicate column name")
}

func sqliteErrorContains(err error, fragment string) bool {
	var se sqlite3.Error
	if errors.As(err, &se) {
		return strings.Contains(se.Error(), fragment)
	}
	return err != nil && strings.Contains(err.Error(), fragment)
}

// ConnectionHint returns a remedy for well known connection failures, or ""
// when there is nothing useful to add.
func ConnectionHint(err error) string {
	var me *mysql.MySQLError
	if errors.As(err, &me) {
		switch me.Number {
		case 1045:
			return "access denied: check MSS_DB_USER and MSS_DB_PASSWORD"
		case 1049:
			return "unknown database: create it or fix MSS_DB_NAME"
		}
	}
	var pe *pgconn.PgError
	if errors.As(err, &pe) {
		switch pe.Code {
		case "28P01":
			return "access denied: check MSS_DB_USER and MSS_DB_PASSWORD"
		case "3D000":
			return "unknown database: create it or fix MSS_DB_NAME"
		}
	}
	return ""
}
