package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

// StateInterface defines what the read handlers need from the sync engine
type StateInterface interface {
	SyncedTotal(ctx context.Context, entityID, metric string) string
	Tracked() []string
	Dump() string
}

// TotalHandler serves the cross-node total of one metric for one entity as
// plain text: GET /total?entity={id}&metric={name}. Missing data reads as 0,
// only a malformed request is an error.
func TotalHandler(state StateInterface) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		entity := r.URL.Query().Get("entity")
		metric := r.URL.Query().Get("metric")
		if entity == "" || metric == "" {
			http.Error(w, "entity and metric parameters are required", http.StatusBadRequest)
			return
		}

		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, "%s\n", state.SyncedTotal(r.Context(), entity, metric))
	}
}

// TrackedHandler lists the tracked metric names as a JSON array
func TrackedHandler(state StateInterface) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tracked := state.Tracked()
		if tracked == nil {
			tracked = []string{}
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(tracked)
	}
}

// StatusHandler returns the engine status dump as JSON
func StatusHandler(state StateInterface) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, "%s\n", state.Dump())
	}
}

// HealthHandler is a liveness check
func HealthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, "UP\n")
	}
}
