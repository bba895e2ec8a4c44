package storage

import (
	"errors"
	"fmt"
	"testing"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDialectFor(t *testing.T) {
	for driver, want := range map[string]string{
		"mysql":    "mysql",
		"postgres": "postgres",
		"pgx":      "postgres",
		"sqlite3":  "sqlite3",
		"sqlite":   "sqlite3",
	} {
		d, err := DialectFor(driver)
		require.NoError(t, err)
		assert.Equal(t, want, d.Name())
	}

	_, err := DialectFor("mssql")
	assert.ErrorIs(t, err, ErrUnknownDriver)
}

func TestMySQLDialect(t *testing.T) {
	d := &MySQLDialect{}

	assert.Equal(t, "`mss_kills`", d.Quote("mss_kills"))
	assert.Equal(t, "`a``b`", d.Quote("a`b"))
	assert.Equal(t, "?", d.Placeholder(3))

	assert.Equal(t,
		"INSERT IGNORE INTO `mss_synced_placeholders` (`placeholder_name`) VALUES (?)",
		d.InsertIgnore(RegistryTable, []string{"placeholder_name"}, "placeholder_name"))

	assert.Equal(t,
		"INSERT INTO `mss_kills` (`player_uuid`, `player_name`, `n1`) VALUES (?, ?, ?) ON DUPLICATE KEY UPDATE `player_name` = VALUES(`player_name`), `n1` = VALUES(`n1`)",
		d.Upsert("mss_kills", "n1"))

	assert.Equal(t,
		"ALTER TABLE `mss_kills` ADD COLUMN `n1` VARCHAR(255) DEFAULT '0'",
		d.AddNodeColumn("mss_kills", "n1"))

	assert.Contains(t, d.AddNameColumn("mss_kills"), "AFTER `player_uuid`")
	assert.True(t, d.SameIdentifier("Lobby", "lobby"))

	assert.True(t, d.IsDuplicateColumn(fmt.Errorf("wrapped: %w", &mysql.MySQLError{Number: 1060})))
	assert.False(t, d.IsDuplicateColumn(&mysql.MySQLError{Number: 1146}))
	assert.True(t, d.IsMissingRelation(&mysql.MySQLError{Number: 1146}))
	assert.True(t, d.IsMissingRelation(&mysql.MySQLError{Number: 1054}))
	assert.False(t, d.IsMissingRelation(errors.New("no such table")))
}

func TestPostgresDialect(t *testing.T) {
	d := &PostgresDialect{}

	assert.Equal(t, `"mss_kills"`, d.Quote("mss_kills"))
	assert.Equal(t, "$2", d.Placeholder(2))

	assert.Equal(t,
		`INSERT INTO "mss_schema_migrations" ("version", "applied_at") VALUES ($1, $2) ON CONFLICT ("version") DO NOTHING`,
		d.InsertIgnore(MigrationsTable, []string{"version", "applied_at"}, "version"))

	assert.Equal(t,
		`INSERT INTO "mss_kills" ("player_uuid", "player_name", "n1") VALUES ($1, $2, $3) ON CONFLICT ("player_uuid") DO UPDATE SET "player_name" = excluded."player_name", "n1" = excluded."n1"`,
		d.Upsert("mss_kills", "n1"))

	assert.Contains(t, d.AddNodeColumn("mss_kills", "n1"), "IF NOT EXISTS")
	assert.Contains(t, d.AddNameColumn("mss_kills"), "DEFAULT ''")
	assert.False(t, d.SameIdentifier("Lobby", "lobby"))

	assert.True(t, d.IsDuplicateColumn(fmt.Errorf("wrapped: %w", &pgconn.PgError{Code: "42701"})))
	assert.True(t, d.IsMissingRelation(&pgconn.PgError{Code: "42P01"}))
	assert.True(t, d.IsMissingRelation(&pgconn.PgError{Code: "42703"}))
	assert.False(t, d.IsMissingRelation(&pgconn.PgError{Code: "23505"}))
}

func TestSQLiteDialect(t *testing.T) {
	d := &SQLiteDialect{}

	assert.Equal(t,
		`INSERT INTO "mss_kills" ("player_uuid", "player_name", "n1") VALUES (?, ?, ?) ON CONFLICT("player_uuid") DO UPDATE SET "player_name" = excluded."player_name", "n1" = excluded."n1"`,
		d.Upsert("mss_kills", "n1"))

	assert.True(t, d.IsDuplicateColumn(errors.New("duplicate column name: n1")))
	assert.True(t, d.IsMissingRelation(errors.New("no such table: mss_kills")))
	assert.False(t, d.IsMissingRelation(nil))
}

func TestConnectionHint(t *testing.T) {
	assert.Contains(t, ConnectionHint(&mysql.MySQLError{Number: 1045}), "MSS_DB_PASSWORD")
	assert.Contains(t, ConnectionHint(fmt.Errorf("ping: %w", &mysql.MySQLError{Number: 1049})), "MSS_DB_NAME")
	assert.Contains(t, ConnectionHint(&pgconn.PgError{Code: "3D000"}), "MSS_DB_NAME")
	assert.Empty(t, ConnectionHint(&mysql.MySQLError{Number: 1146}))
	assert.Empty(t, ConnectionHint(errors.New("dial tcp: connection refused")))
}
