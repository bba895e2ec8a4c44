package core

import (
	"context"
	"encoding/json"
	"time"

	"github.com/thisdougb/multisync/internal/storage"
)

// SyncedTotal returns the cross-node total of metric for entityID. It never
// fails: missing data of any kind reads as "0".
func (s *Syncer) SyncedTotal(ctx context.Context, entityID, metric string) string {
	return s.store.SyncedTotal(ctx, entityID, metric)
}

// Total is the error returning variant of SyncedTotal.
func (s *Syncer) Total(ctx context.Context, entityID, metric string) (storage.Total, error) {
	return s.store.Total(ctx, entityID, metric)
}

// Resolve answers a placeholder request: params is the metric name without
// its % wrapper. Only tracked metrics are handled.
func (s *Syncer) Resolve(ctx context.Context, entityID, params string) (string, bool) {
	if params == "" {
		return "", false
	}
	if !s.IsTracked("%" + params + "%") {
		return "", false
	}
	return s.SyncedTotal(ctx, entityID, params), true
}

// Status is a point in time view of the engine.
type Status struct {
	Node        string   `json:"node"`
	Scheduler   string   `json:"scheduler"`
	Started     int64    `json:"started"`
	Running     bool     `json:"running"`
	Interval    string   `json:"interval"`
	Tracked     []string `json:"tracked"`
	LastTick    int64    `json:"last_tick"`
	AverageTick string   `json:"average_tick"`
}

func (s *Syncer) Status() Status {
	s.mu.Lock()
	st := Status{
		Node:      s.cfg.ServerName,
		Scheduler: s.cfg.Scheduler,
		Running:   s.task != nil,
		Interval:  s.cfg.SyncInterval.String(),
	}
	if !s.started.IsZero() {
		st.Started = s.started.Unix()
	}
	s.mu.Unlock()

	st.Tracked = s.Tracked()
	if last := s.metrics.LastTick(); !last.IsZero() {
		st.LastTick = last.Unix()
	}
	st.AverageTick = s.metrics.AverageTick().Round(time.Millisecond).String()
	return st
}

// Dump returns the status as indented JSON.
func (s *Syncer) Dump() string {
	data, err := json.MarshalIndent(s.Status(), "", "    ")
	if err != nil {
		return "{}"
	}
	return string(data)
}

// ReadRow returns the raw per-node values stored for entityID.
func (s *Syncer) ReadRow(ctx context.Context, entityID, metric string) (*storage.Row, error) {
	return s.store.ReadRow(ctx, entityID, metric)
}
