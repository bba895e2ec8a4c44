package schedule

import (
	"context"
	"sync"
	"time"
)

// Global runs every task on plain goroutines. Fixed rate bodies are
// dispatched on their own goroutine, so a slow body does not hold back the
// next tick.
type Global struct {
	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	closed bool
	tasks  map[*task]struct{}

	loops  sync.WaitGroup // scheduling loops
	bodies sync.WaitGroup // running task bodies
}

var _ Host = (*Global)(nil)

// NewGlobal creates a new global host
func NewGlobal() *Global {
	ctx, cancel := context.WithCancel(context.Background())
	return &Global{
		ctx:    ctx,
		cancel: cancel,
		tasks:  make(map[*task]struct{}),
	}
}

type task struct {
	host *Global
	stop chan struct{}
	once sync.Once
}

// Cancel stops the task. Once it returns no further body is dispatched,
// a body already running finishes.
func (t *task) Cancel() {
	t.host.mu.Lock()
	t.cancelLocked()
	t.host.mu.Unlock()
}

func (t *task) cancelLocked() {
	t.once.Do(func() { close(t.stop) })
}

func (t *task) cancelled() bool {
	select {
	case <-t.stop:
		return true
	default:
		return false
	}
}

func (g *Global) newTask() (*task, bool) {
	t := &task{host: g, stop: make(chan struct{})}

	g.mu.Lock()
	defer g.mu.Unlock()

	if g.closed {
		t.cancelLocked()
		return t, false
	}
	g.tasks[t] = struct{}{}
	g.loops.Add(1)
	return t, true
}

func (g *Global) forget(t *task) {
	g.mu.Lock()
	delete(g.tasks, t)
	g.mu.Unlock()
	g.loops.Done()
}

// dispatch runs fn on a tracked goroutine unless the host is closing or
// t was cancelled. Cancel takes g.mu too, so the check cannot go stale.
func (g *Global) dispatch(t *task, fn func(ctx context.Context)) {
	g.mu.Lock()
	if g.closed || t.cancelled() {
		g.mu.Unlock()
		return
	}
	g.bodies.Add(1)
	g.mu.Unlock()

	go func() {
		defer g.bodies.Done()
		fn(g.ctx)
	}()
}

func (g *Global) RunAfter(delay time.Duration, fn func(ctx context.Context)) Task {
	t, ok := g.newTask()
	if !ok {
		return t
	}

	go func() {
		defer g.forget(t)

		timer := time.NewTimer(delay)
		defer timer.Stop()

		select {
		case <-timer.C:
			g.dispatch(t, fn)
		case <-t.stop:
		}
	}()
	return t
}

func (g *Global) RunAtFixedRate(initialDelay, period time.Duration, fn func(ctx context.Context)) Task {
	t, ok := g.newTask()
	if !ok {
		return t
	}

	go func() {
		defer g.forget(t)

		timer := time.NewTimer(initialDelay)
		defer timer.Stop()

		select {
		case <-timer.C:
		case <-t.stop:
			return
		}

		ticker := time.NewTicker(period)
		defer ticker.Stop()

		g.dispatch(t, fn)
		for {
			select {
			case <-ticker.C:
				if t.cancelled() {
					return
				}
				g.dispatch(t, fn)
			case <-t.stop:
				return
			}
		}
	}()
	return t
}

func (g *Global) Close() {
	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return
	}
	g.closed = true
	for t := range g.tasks {
		t.cancelLocked()
	}
	g.mu.Unlock()

	g.loops.Wait()
	g.bodies.Wait()
	g.cancel()
}
