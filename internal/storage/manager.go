package storage

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/thisdougb/multisync/internal/config"
)

// Manager is the boundary between the sync engine and a storage backend. Read
// paths never fail outward: they log and degrade to an empty or zero answer.
type Manager struct {
	backend Backend
}

// NewManager creates a new persistence manager around backend
func NewManager(backend Backend) *Manager {
	return &Manager{backend: backend}
}

// NewManagerFromConfig opens the backend selected by cfg. A nil cfg is loaded
// from the environment.
func NewManagerFromConfig(cfg *Config) (*Manager, error) {
	if cfg == nil {
		var err error
		cfg, err = LoadConfig()
		if err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
	}

	if cfg.Driver == "memory" {
		return NewManager(NewMemoryBackend()), nil
	}

	backend, err := NewSQLBackend(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s backend: %w", cfg.Driver, err)
	}
	return NewManager(backend), nil
}

// Backend returns the underlying storage backend
func (m *Manager) Backend() Backend {
	return m.backend
}

func (m *Manager) enabled() bool {
	return m != nil && m.backend != nil
}

// Register adds name to the registry and prepares its table. It returns
// false when the store rejected the change.
func (m *Manager) Register(ctx context.Context, name string) bool {
	if !m.enabled() {
		return false
	}
	if err := m.backend.Register(ctx, name); err != nil {
		config.LogError(ctx, fmt.Sprintf("failed to register metric %s: %v", name, err))
		return false
	}
	return true
}

// Deregister reports whether name was registered and has been removed.
func (m *Manager) Deregister(ctx context.Context, name string) bool {
	if !m.enabled() {
		return false
	}
	removed, err := m.backend.Deregister(ctx, name)
	if err != nil {
		config.LogError(ctx, fmt.Sprintf("failed to deregister metric %s: %v", name, err))
		return false
	}
	return removed
}

// List returns the registered metric names, empty when the store is
// unreachable.
func (m *Manager) List(ctx context.Context) []string {
	if !m.enabled() {
		return []string{}
	}
	names, err := m.backend.List(ctx)
	if err != nil {
		config.LogError(ctx, fmt.Sprintf("failed to list metrics: %v", err))
		return []string{}
	}
	if names == nil {
		return []string{}
	}
	return names
}

// UpsertValue writes one node value. Failures are logged and the value is
// dropped; the next tick writes a fresh one.
func (m *Manager) UpsertValue(ctx context.Context, entry ValueEntry) error {
	if !m.enabled() {
		return ErrPersistenceDisabled
	}
	if err := m.backend.UpsertValue(ctx, entry); err != nil {
		config.LogError(ctx, fmt.Sprintf("failed to store %s for %s: %v", entry.Table, entry.EntityID, err))
		return err
	}
	return nil
}

// Total is the honest read: it distinguishes "no data" (Found false) from a
// real zero and reports store failures.
func (m *Manager) Total(ctx context.Context, entityID, metric string) (Total, error) {
	if !m.enabled() {
		return Total{}, ErrPersistenceDisabled
	}
	return m.backend.SumValue(ctx, TableName(metric), entityID)
}

// SyncedTotal returns the summed value of metric for entityID as a decimal
// string. Every failure yields "0".
func (m *Manager) SyncedTotal(ctx context.Context, entityID, metric string) string {
	total, err := m.Total(ctx, entityID, metric)
	if err != nil {
		if errors.Is(err, ErrMissingRelation) {
			config.LogDebug(ctx, fmt.Sprintf("no stored values for %s yet: %v", metric, err))
		} else {
			config.LogError(ctx, fmt.Sprintf("failed to read total %s for %s: %v", metric, entityID, err))
		}
		return "0"
	}
	return strconv.FormatInt(total.Value, 10)
}

// ReadRow returns the raw stored row of an entity for metric.
func (m *Manager) ReadRow(ctx context.Context, entityID, metric string) (*Row, error) {
	if !m.enabled() {
		return nil, ErrPersistenceDisabled
	}
	return m.backend.ReadRow(ctx, TableName(metric), entityID)
}

// MigrateAll upgrades every registered metric table. Failures on single
// tables are logged by the backend and do not stop the pass.
func (m *Manager) MigrateAll(ctx context.Context) (bool, error) {
	if !m.enabled() {
		return false, ErrPersistenceDisabled
	}
	return m.backend.MigrateAll(ctx)
}

// SetColumnHook forwards to the backend
func (m *Manager) SetColumnHook(hook func(table, node string)) {
	if m.enabled() {
		m.backend.SetColumnHook(hook)
	}
}

// Close shuts down the backend
func (m *Manager) Close() error {
	if !m.enabled() {
		return nil
	}
	return m.backend.Close()
}
