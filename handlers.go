package multisync

import (
	"net/http"

	"github.com/thisdougb/multisync/internal/handlers"
)

// TotalHandler serves GET /total?entity=&metric= as plain text
func (e *Engine) TotalHandler() http.HandlerFunc {
	return handlers.TotalHandler(e.impl)
}

// TrackedHandler serves the tracked metric names as JSON
func (e *Engine) TrackedHandler() http.HandlerFunc {
	return handlers.TrackedHandler(e.impl)
}

// StatusHandler serves the engine status as JSON
func (e *Engine) StatusHandler() http.HandlerFunc {
	return handlers.StatusHandler(e.impl)
}

// MetricsHandler serves the prometheus metrics of this engine
func (e *Engine) MetricsHandler() http.Handler {
	return e.impl.Metrics().Handler()
}

// AdminHandler serves the admin endpoints under /admin/
func (e *Engine) AdminHandler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/admin/metrics", handlers.MetricsAdminHandler(e))
	mux.HandleFunc("/admin/reload", handlers.ReloadHandler(e))
	mux.HandleFunc("/admin/sync", handlers.SyncHandler(e))
	mux.HandleFunc("/admin/entity", handlers.EntityHandler(e))
	return mux
}

// Handler routes the read-only endpoints. The admin endpoints change the
// registry, mount AdminHandler on a listener of their own.
func (e *Engine) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", handlers.HealthHandler())
	mux.HandleFunc("/total", e.TotalHandler())
	mux.HandleFunc("/tracked", e.TrackedHandler())
	mux.HandleFunc("/status", e.StatusHandler())
	mux.Handle("/metrics", e.MetricsHandler())
	return mux
}
