package schedule

import (
	"sync"

	"github.com/puzpuzpuz/xsync/v3"
)

// Affinity is a Global host that also owns one serial executor per entity.
// An executor goroutine exists only while its entity has queued work.
type Affinity struct {
	*Global
	workers *xsync.MapOf[string, *worker]
}

var _ EntityHost = (*Affinity)(nil)

// NewAffinity creates a new entity affinity host
func NewAffinity() *Affinity {
	return &Affinity{
		Global:  NewGlobal(),
		workers: xsync.NewMapOf[string, *worker](),
	}
}

type worker struct {
	mu      sync.Mutex
	queue   []func()
	running bool
	retired bool // removed from the map, senders must look again
}

func (a *Affinity) RunForEntity(entityID string, fn func()) bool {
	for {
		w, _ := a.workers.LoadOrCompute(entityID, func() *worker { return &worker{} })

		w.mu.Lock()
		if w.retired {
			w.mu.Unlock()
			continue
		}

		a.mu.Lock()
		if a.closed {
			a.mu.Unlock()
			w.mu.Unlock()
			return false
		}
		if !w.running {
			a.bodies.Add(1)
		}
		a.mu.Unlock()

		w.queue = append(w.queue, fn)
		if !w.running {
			w.running = true
			go a.drain(entityID, w)
		}
		w.mu.Unlock()
		return true
	}
}

// drain runs queued work until the queue is empty, then retires the worker.
func (a *Affinity) drain(entityID string, w *worker) {
	defer a.bodies.Done()

	for {
		w.mu.Lock()
		if len(w.queue) == 0 {
			w.running = false
			w.retired = true
			a.workers.Compute(entityID, func(old *worker, loaded bool) (*worker, bool) {
				// only remove our own entry, never a successor
				return old, !loaded || old == w
			})
			w.mu.Unlock()
			return
		}
		fn := w.queue[0]
		w.queue[0] = nil
		w.queue = w.queue[1:]
		w.mu.Unlock()

		fn()
	}
}

// Entities returns the number of entities with live executors (for testing)
func (a *Affinity) Entities() int {
	return a.workers.Size()
}
