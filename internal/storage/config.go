package storage

import (
	"fmt"
	"net"
	"net/url"
	"strconv"
	"time"

	"github.com/go-sql-driver/mysql"

	"github.com/thisdougb/multisync/internal/config"
)

// Config holds all configuration options for the persistence system
type Config struct {
	Driver          string // mysql, postgres, sqlite3 or memory
	DSN             string // used as-is when set
	Host            string
	Port            int
	Database        string
	User            string
	Password        string
	UseSSL          bool
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	Timeout         time.Duration // ping and per-operation timeout
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Driver:          config.StringValue("MSS_DB_DRIVER"),
		DSN:             config.StringValue("MSS_DB_DSN"),
		Host:            config.StringValue("MSS_DB_HOST"),
		Port:            config.IntValue("MSS_DB_PORT"),
		Database:        config.StringValue("MSS_DB_NAME"),
		User:            config.StringValue("MSS_DB_USER"),
		Password:        config.StringValue("MSS_DB_PASSWORD"),
		UseSSL:          config.BoolValue("MSS_DB_USE_SSL"),
		MaxOpenConns:    config.IntValue("MSS_DB_MAX_OPEN_CONNS"),
		MaxIdleConns:    config.IntValue("MSS_DB_MAX_IDLE_CONNS"),
		ConnMaxLifetime: config.DurationValue("MSS_DB_CONN_MAX_LIFETIME"),
		Timeout:         config.DurationValue("MSS_DB_TIMEOUT"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports configuration errors that make opening the store pointless.
func (c *Config) Validate() error {
	if c.Driver == "memory" {
		return nil
	}
	if _, err := DialectFor(c.Driver); err != nil {
		return err
	}
	if c.DSN != "" {
		return nil
	}
	if c.Driver == "sqlite3" || c.Driver == "sqlite" {
		return fmt.Errorf("sqlite3 requires MSS_DB_DSN (database path)")
	}
	if c.Host == "" || c.Database == "" {
		return fmt.Errorf("database host and name are required for %s", c.Driver)
	}
	return nil
}

// BuildDSN returns the driver specific connection string.
func (c *Config) BuildDSN() string {
	if c.DSN != "" {
		return c.DSN
	}

	addr := net.JoinHostPort(c.Host, strconv.Itoa(c.Port))

	switch c.Driver {
	case "mysql":
		mc := mysql.NewConfig()
		mc.User = c.User
		mc.Passwd = c.Password
		mc.Net = "tcp"
		mc.Addr = addr
		mc.DBName = c.Database
		mc.AllowNativePasswords = true
		if c.UseSSL {
			mc.TLSConfig = "true"
		}
		if c.Timeout > 0 {
			mc.Timeout = c.Timeout
		}
		return mc.FormatDSN()
	case "postgres", "pgx":
		sslmode := "disable"
		if c.UseSSL {
			sslmode = "require"
		}
		u := url.URL{
			Scheme:   "postgres",
			User:     url.UserPassword(c.User, c.Password),
			Host:     addr,
			Path:     "/" + c.Database,
			RawQuery: "sslmode=" + sslmode,
		}
		return u.String()
	}
	return ""
}

// DefaultConfig returns a default configuration for testing
func DefaultConfig() *Config {
	return &Config{
		Driver:  "memory",
		Timeout: 10 * time.Second,
	}
}

// TestConfig returns a sqlite configuration stored at path
func TestConfig(path string) *Config {
	return &Config{
		Driver:  "sqlite3",
		DSN:     path,
		Timeout: 5 * time.Second,
	}
}
