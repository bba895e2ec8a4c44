package core

import (
	"context"
	"fmt"
	"time"

	"github.com/thisdougb/multisync/internal/config"
	"github.com/thisdougb/multisync/internal/storage"
)

const defaultServerName = "default-server"

// Config is the node level configuration of the sync engine.
type Config struct {
	ServerName   string        // this node's column in every metric table
	SyncInterval time.Duration // period between ticks
	InitialDelay time.Duration // delay before the first tick
	Workers      int           // concurrent fetch+upsert pairs per tick
	Scheduler    string        // global or affinity
}

// LoadConfig reads the engine configuration from the environment.
func LoadConfig(ctx context.Context) (Config, error) {
	cfg := Config{
		ServerName:   config.StringValue("MSS_SERVER_NAME"),
		SyncInterval: config.DurationValue("MSS_SYNC_INTERVAL"),
		InitialDelay: config.DurationValue("MSS_INITIAL_DELAY"),
		Workers:      config.IntValue("MSS_SYNC_WORKERS"),
		Scheduler:    config.StringValue("MSS_SCHEDULER"),
	}

	if err := cfg.Validate(ctx); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the configuration and fills in defaults for unset
// optional values. An invalid server name is a configuration error.
func (c *Config) Validate(ctx context.Context) error {
	if c.ServerName == "" {
		c.ServerName = defaultServerName
	}
	if c.ServerName == defaultServerName {
		config.LogWarn(ctx, "server name is still default-server, give every node a unique MSS_SERVER_NAME")
	}
	if err := storage.ValidateNodeName(c.ServerName); err != nil {
		return fmt.Errorf("invalid server name: %w", err)
	}

	if c.SyncInterval <= 0 {
		c.SyncInterval = 300 * time.Second
	}
	if c.InitialDelay < 0 {
		c.InitialDelay = 0
	}
	if c.Workers < 1 {
		c.Workers = 1
	}

	switch c.Scheduler {
	case "":
		c.Scheduler = "global"
	case "global", "affinity":
	default:
		return fmt.Errorf("unknown scheduler %q, want global or affinity", c.Scheduler)
	}
	return nil
}
