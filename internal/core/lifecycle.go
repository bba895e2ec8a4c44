package core

import (
	"context"
	"fmt"
	"time"

	"github.com/thisdougb/multisync/internal/config"
)

// Start loads the tracked set, migrates every metric table and installs the
// recurring sync task.
func (s *Syncer) Start(ctx context.Context) {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()

	s.mu.Lock()
	s.started = time.Now()
	s.mu.Unlock()

	tracked := s.RefreshTracked(ctx)
	config.LogInfo(ctx, fmt.Sprintf("loaded %d tracked metrics", len(tracked)))

	s.migrate(ctx)
	s.schedule(ctx)

	config.LogInfo(ctx, fmt.Sprintf("sync engine started as node %s", s.Config().ServerName))
}

// Stop cancels the recurring task. A tick already running finishes.
func (s *Syncer) Stop() {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()
	s.cancelTask()
}

// Reload applies a new configuration: cancel the task, refresh the tracked
// set, migrate, then schedule again with the new timing. The scheduler kind
// is fixed for the life of the engine.
func (s *Syncer) Reload(ctx context.Context, cfg Config) error {
	if err := cfg.Validate(ctx); err != nil {
		return err
	}

	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()

	s.cancelTask()

	s.mu.Lock()
	if cfg.Scheduler != s.cfg.Scheduler {
		config.LogWarn(ctx, fmt.Sprintf("scheduler change to %s needs a restart, keeping %s", cfg.Scheduler, s.cfg.Scheduler))
		cfg.Scheduler = s.cfg.Scheduler
	}
	s.cfg = cfg
	s.mu.Unlock()

	tracked := s.RefreshTracked(ctx)
	config.LogInfo(ctx, fmt.Sprintf("reloaded %d tracked metrics", len(tracked)))

	s.migrate(ctx)
	s.schedule(ctx)
	return nil
}

// Running reports whether a recurring task is installed.
func (s *Syncer) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.task != nil
}

// Close stops the task, waits for running ticks and closes the store.
func (s *Syncer) Close() error {
	s.Stop()
	s.host.Close()
	return s.store.Close()
}

func (s *Syncer) migrate(ctx context.Context) {
	migrated, err := s.store.MigrateAll(ctx)
	if err != nil {
		config.LogError(ctx, fmt.Sprintf("metric table migration incomplete: %v", err))
	}
	if migrated {
		config.LogInfo(ctx, "metric table migration finished")
	} else {
		config.LogInfo(ctx, "no metric table migration needed")
	}
}

// schedule installs the recurring task, always cancelling the prior one
// first so only one instance is ever active.
func (s *Syncer) schedule(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.task != nil {
		s.task.Cancel()
	}
	s.task = s.host.RunAtFixedRate(s.cfg.InitialDelay, s.cfg.SyncInterval, func(ctx context.Context) {
		s.Tick(ctx)
	})

	config.LogDebug(ctx, fmt.Sprintf("sync scheduled every %s after %s", s.cfg.SyncInterval, s.cfg.InitialDelay))
}

func (s *Syncer) cancelTask() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.task != nil {
		s.task.Cancel()
		s.task = nil
	}
}
