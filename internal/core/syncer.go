package core

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/thisdougb/multisync/internal/config"
	"github.com/thisdougb/multisync/internal/metrics"
	"github.com/thisdougb/multisync/internal/schedule"
	"github.com/thisdougb/multisync/internal/storage"
)

// maxDisplayName is the width of the display name column.
const maxDisplayName = 16

// Syncer pushes this node's local values into the shared store on a fixed
// schedule and answers aggregated reads.
type Syncer struct {
	store     *storage.Manager
	source    ValueSource
	directory EntityDirectory
	host      schedule.Host
	metrics   *metrics.SyncMetrics

	lifecycle sync.Mutex // serializes Start, Stop and Reload

	mu      sync.Mutex // guards cfg and task
	cfg     Config
	task    schedule.Task
	started time.Time

	tracked atomic.Pointer[trackedSet]
}

// trackedSet is an immutable snapshot of the registry, replaced on refresh.
type trackedSet struct {
	names []string
	index map[string]struct{}
}

func newTrackedSet(names []string) *trackedSet {
	ts := &trackedSet{
		names: append([]string(nil), names...),
		index: make(map[string]struct{}, len(names)),
	}
	sort.Strings(ts.names)
	for _, n := range ts.names {
		ts.index[n] = struct{}{}
	}
	return ts
}

// TickResult counts what one tick did.
type TickResult struct {
	Metrics     int `json:"metrics"`
	Entities    int `json:"entities"`
	Upserts     int `json:"upserts"`
	Unavailable int `json:"unavailable"`
	Failures    int `json:"failures"`
}

// NewSyncer wires the engine. A nil host is created from cfg.Scheduler.
func NewSyncer(cfg Config, store *storage.Manager, source ValueSource, directory EntityDirectory, host schedule.Host) *Syncer {
	if host == nil {
		host = schedule.New(cfg.Scheduler)
	}
	if directory == nil {
		directory = StaticDirectory(nil)
	}

	s := &Syncer{
		store:     store,
		source:    source,
		directory: directory,
		host:      host,
		metrics:   metrics.NewSyncMetrics(),
		cfg:       cfg,
	}
	s.tracked.Store(newTrackedSet(nil))

	store.SetColumnHook(func(table, node string) {
		s.metrics.ColumnsCreated.WithLabelValues(table).Inc()
	})
	return s
}

func (s *Syncer) Config() Config {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg
}

func (s *Syncer) Metrics() *metrics.SyncMetrics {
	return s.metrics
}

func (s *Syncer) Store() *storage.Manager {
	return s.store
}

// RefreshTracked reloads the tracked set from the registry. An unreachable
// store yields an empty set for this round.
func (s *Syncer) RefreshTracked(ctx context.Context) []string {
	ts := newTrackedSet(s.store.List(ctx))
	s.tracked.Store(ts)
	s.metrics.TrackedMetrics.Set(float64(len(ts.names)))
	return ts.names
}

// Tracked returns the cached tracked names as of the last refresh.
func (s *Syncer) Tracked() []string {
	return append([]string(nil), s.tracked.Load().names...)
}

// IsTracked reports whether name was registered as of the last refresh.
func (s *Syncer) IsTracked(name string) bool {
	_, ok := s.tracked.Load().index[name]
	return ok
}

// Tick runs one sync pass: refresh the tracked set, then fetch and store
// every (entity, metric) value. Failures are isolated per pair.
func (s *Syncer) Tick(ctx context.Context) TickResult {
	start := time.Now()
	ctx = config.SetContextCorrelationId(ctx, fmt.Sprintf("tick-%d", start.UnixNano()))
	defer func() { s.metrics.ObserveTick(time.Since(start)) }()

	tracked := s.RefreshTracked(ctx)
	if len(tracked) == 0 {
		return TickResult{}
	}

	entities := s.directory.Entities(ctx)
	if len(entities) == 0 {
		return TickResult{Metrics: len(tracked)}
	}

	cfg := s.Config()
	counts := &tickCounts{}

	var g errgroup.Group
	g.SetLimit(cfg.Workers)
	for _, e := range entities {
		for _, metric := range tracked {
			g.Go(func() error {
				s.syncOne(ctx, cfg.ServerName, e, metric, counts)
				return nil
			})
		}
	}
	_ = g.Wait()

	result := TickResult{
		Metrics:     len(tracked),
		Entities:    len(entities),
		Upserts:     int(counts.upserts.Load()),
		Unavailable: int(counts.unavailable.Load()),
		Failures:    int(counts.failures.Load()),
	}
	config.LogDebug(ctx, fmt.Sprintf("tick done: %d upserts, %d unavailable, %d failed",
		result.Upserts, result.Unavailable, result.Failures))
	return result
}

type tickCounts struct {
	upserts, unavailable, failures atomic.Int64
}

func (s *Syncer) syncOne(ctx context.Context, node string, e Entity, metric string, counts *tickCounts) {
	value, ok := s.fetch(ctx, e, metric)
	if !ok {
		counts.unavailable.Add(1)
		s.metrics.ValuesUnavailable.Inc()
		config.LogDebug(ctx, fmt.Sprintf("no value for %s on %s, skipped", metric, e.ID))
		return
	}

	err := s.store.UpsertValue(ctx, storage.ValueEntry{
		Table:      storage.TableName(metric),
		EntityID:   e.ID,
		EntityName: displayName(e.Name),
		Node:       node,
		Value:      value,
	})
	if err != nil {
		counts.failures.Add(1)
		s.metrics.UpsertFailures.Inc()
		return
	}
	counts.upserts.Add(1)
	s.metrics.Upserts.Inc()
}

// fetch reads a local value, on the entity's own executor when the host
// offers one.
func (s *Syncer) fetch(ctx context.Context, e Entity, metric string) (string, bool) {
	eh, ok := s.host.(schedule.EntityHost)
	if !ok {
		return s.lookup(ctx, e, metric)
	}

	type result struct {
		value string
		ok    bool
	}
	ch := make(chan result, 1)

	queued := eh.RunForEntity(e.ID, func() {
		v, ok := s.lookup(ctx, e, metric)
		ch <- result{v, ok}
	})
	if !queued {
		return s.lookup(ctx, e, metric)
	}

	select {
	case r := <-ch:
		return r.value, r.ok
	case <-ctx.Done():
		return "", false
	}
}

// lookup asks the value source. A source that echoes the metric name back
// could not resolve it.
func (s *Syncer) lookup(ctx context.Context, e Entity, metric string) (string, bool) {
	if s.source == nil {
		return "", false
	}
	value, ok := s.source.Value(ctx, e.ID, metric)
	if !ok || value == metric {
		return "", false
	}
	return value, true
}

func displayName(name string) string {
	r := []rune(name)
	if len(r) > maxDisplayName {
		return string(r[:maxDisplayName])
	}
	return name
}
