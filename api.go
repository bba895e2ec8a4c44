package multisync

import (
	"context"
	"fmt"

	"github.com/thisdougb/multisync/internal/config"
	"github.com/thisdougb/multisync/internal/core"
	"github.com/thisdougb/multisync/internal/storage"
)

type (
	Config          = core.Config
	StoreConfig     = storage.Config
	Entity          = core.Entity
	ValueSource     = core.ValueSource
	ValueSourceFunc = core.ValueSourceFunc
	EntityDirectory = core.EntityDirectory
	StaticDirectory = core.StaticDirectory
	Validation      = core.Validation
	TickResult      = core.TickResult
	Status          = core.Status
	Total           = storage.Total
	Row             = storage.Row
)

var (
	ErrAlreadyTracked   = core.ErrAlreadyTracked
	ErrValueUnavailable = core.ErrValueUnavailable
	ErrNotNumeric       = core.ErrNotNumeric
	ErrStoreRejected    = core.ErrStoreRejected
)

// Options configures New. Nil configs are loaded from the environment.
type Options struct {
	Config    *Config
	Store     *StoreConfig
	Source    ValueSource
	Directory EntityDirectory

	// ReloadConfig supplies the configuration for Reload, default is the
	// environment.
	ReloadConfig func(ctx context.Context) (Config, error)
}

// Engine is the public interface of the sync engine
type Engine struct {
	impl       *core.Syncer
	loadConfig func(ctx context.Context) (Config, error)
}

// New opens the shared store and builds an engine. Configuration errors are
// returned here and nowhere else.
func New(ctx context.Context, opts Options) (*Engine, error) {
	var cfg Config
	if opts.Config != nil {
		cfg = *opts.Config
		if err := cfg.Validate(ctx); err != nil {
			return nil, err
		}
	} else {
		var err error
		if cfg, err = core.LoadConfig(ctx); err != nil {
			return nil, err
		}
	}

	store, err := storage.NewManagerFromConfig(opts.Store)
	if err != nil {
		config.LogError(ctx, fmt.Sprintf("failed to open store: %v", err))
		if hint := storage.ConnectionHint(err); hint != "" {
			config.LogError(ctx, hint)
		}
		return nil, err
	}
	config.LogInfo(ctx, "store opened")

	loadConfig := opts.ReloadConfig
	if loadConfig == nil {
		loadConfig = core.LoadConfig
	}

	return &Engine{
		impl:       core.NewSyncer(cfg, store, opts.Source, opts.Directory, nil),
		loadConfig: loadConfig,
	}, nil
}

// Start loads the tracked set, migrates metric tables and schedules syncing.
func (e *Engine) Start(ctx context.Context) {
	e.impl.Start(ctx)
}

// Stop cancels the schedule. A running tick finishes.
func (e *Engine) Stop() {
	e.impl.Stop()
}

// Reload reads the configuration again and restarts the schedule with it.
func (e *Engine) Reload(ctx context.Context) error {
	cfg, err := e.loadConfig(ctx)
	if err != nil {
		return err
	}
	return e.impl.Reload(ctx, cfg)
}

// Close stops syncing, waits for a running tick and closes the store.
func (e *Engine) Close() error {
	return e.impl.Close()
}

// Register tracks name without validating it. It reports whether the name
// is now registered.
func (e *Engine) Register(ctx context.Context, name string) bool {
	return e.impl.Register(ctx, name) == nil
}

// RegisterValidated tracks raw after checking it resolves to a number for
// a locally known entity.
func (e *Engine) RegisterValidated(ctx context.Context, raw string) (Validation, error) {
	return e.impl.RegisterValidated(ctx, raw)
}

// Deregister stops tracking name, reporting whether it was tracked. Stored
// values are never deleted.
func (e *Engine) Deregister(ctx context.Context, name string) bool {
	return e.impl.Deregister(ctx, name)
}

// List returns every registered metric name, empty when the store is down.
func (e *Engine) List(ctx context.Context) []string {
	return e.impl.List(ctx)
}

// Tracked returns the cached tracked set as of the last refresh.
func (e *Engine) Tracked() []string {
	return e.impl.Tracked()
}

// MigrateAll upgrades every metric table, reporting whether anything changed.
func (e *Engine) MigrateAll(ctx context.Context) (bool, error) {
	return e.impl.MigrateAll(ctx)
}

// Tick runs one sync pass now.
func (e *Engine) Tick(ctx context.Context) TickResult {
	return e.impl.Tick(ctx)
}

// SyncedTotal returns the cross-node total of metric for entityID, "0" when
// there is nothing to read.
func (e *Engine) SyncedTotal(ctx context.Context, entityID, metric string) string {
	return e.impl.SyncedTotal(ctx, entityID, metric)
}

func (e *Engine) Total(ctx context.Context, entityID, metric string) (Total, error) {
	return e.impl.Total(ctx, entityID, metric)
}

func (e *Engine) ReadRow(ctx context.Context, entityID, metric string) (*Row, error) {
	return e.impl.ReadRow(ctx, entityID, metric)
}

// Resolve answers a placeholder request for a tracked metric, params being
// the name without its % wrapper.
func (e *Engine) Resolve(ctx context.Context, entityID, params string) (string, bool) {
	return e.impl.Resolve(ctx, entityID, params)
}

func (e *Engine) Status() Status {
	return e.impl.Status()
}

// Dump returns the engine status as JSON.
func (e *Engine) Dump() string {
	return e.impl.Dump()
}

func (e *Engine) Running() bool {
	return e.impl.Running()
}
