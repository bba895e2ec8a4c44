package core

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/thisdougb/multisync/internal/config"
	"github.com/thisdougb/multisync/internal/storage"
)

var (
	ErrAlreadyTracked   = errors.New("metric already tracked")
	ErrValueUnavailable = errors.New("value could not be resolved")
	ErrNotNumeric       = errors.New("value is not numeric")
	ErrStoreRejected    = errors.New("store rejected the change")
)

// Validation describes a validated registration.
type Validation struct {
	Name    string `json:"name"`
	Sample  Entity `json:"sample"`
	Value   string `json:"value"`
	Skipped bool   `json:"skipped"` // no entity was available to validate against
}

// RegisterValidated registers raw after checking that it resolves to a
// number for a sample entity. Names are stored lower case. With no entity
// to test against, the name is registered unvalidated and Skipped is set.
func (s *Syncer) RegisterValidated(ctx context.Context, raw string) (Validation, error) {
	name := strings.ToLower(raw)
	if storage.CleanName(name) == "" {
		return Validation{}, storage.ErrEmptyMetricName
	}
	ctx = config.AppendToContextCorrelationId(ctx, "register")

	s.RefreshTracked(ctx)
	if s.IsTracked(name) {
		return Validation{Name: name}, fmt.Errorf("%w: %s", ErrAlreadyTracked, name)
	}

	v := Validation{Name: name}

	entities := s.directory.Entities(ctx)
	if len(entities) == 0 {
		v.Skipped = true
		return v, s.register(ctx, name)
	}

	v.Sample = entities[0]
	value, ok := s.fetch(ctx, v.Sample, name)
	if !ok {
		return v, fmt.Errorf("%w: %s for %s", ErrValueUnavailable, name, v.Sample.Name)
	}
	v.Value = value

	// thousands separators are display formatting
	if _, err := strconv.ParseFloat(strings.ReplaceAll(value, ",", ""), 64); err != nil {
		return v, fmt.Errorf("%w: %s resolved to %q", ErrNotNumeric, name, value)
	}

	return v, s.register(ctx, name)
}

// Register adds a metric without validation, stored exactly as given.
func (s *Syncer) Register(ctx context.Context, name string) error {
	if storage.CleanName(name) == "" {
		return storage.ErrEmptyMetricName
	}
	return s.register(ctx, name)
}

func (s *Syncer) register(ctx context.Context, name string) error {
	if !s.store.Register(ctx, name) {
		return fmt.Errorf("%w: register %s", ErrStoreRejected, name)
	}
	s.RefreshTracked(ctx)
	return nil
}

// Deregister stops tracking name. Stored values are kept.
func (s *Syncer) Deregister(ctx context.Context, name string) bool {
	removed := s.store.Deregister(ctx, name)
	if removed {
		s.RefreshTracked(ctx)
	}
	return removed
}

// List returns the registered names straight from the store.
func (s *Syncer) List(ctx context.Context) []string {
	return s.store.List(ctx)
}

// MigrateAll runs the metric table migration on demand.
func (s *Syncer) MigrateAll(ctx context.Context) (bool, error) {
	return s.store.MigrateAll(ctx)
}
