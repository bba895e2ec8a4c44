package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/thisdougb/multisync/internal/config"
	"github.com/thisdougb/multisync/internal/core"
	"github.com/thisdougb/multisync/internal/storage"
)

// AdminInterface defines the operations behind the admin endpoints
type AdminInterface interface {
	RegisterValidated(ctx context.Context, raw string) (core.Validation, error)
	Deregister(ctx context.Context, name string) bool
	Reload(ctx context.Context) error
	Tick(ctx context.Context) core.TickResult
	Tracked() []string
	Total(ctx context.Context, entityID, metric string) (storage.Total, error)
	ReadRow(ctx context.Context, entityID, metric string) (*storage.Row, error)
}

// EntityReport is the stored state of one entity across tracked metrics
type EntityReport struct {
	EntityID string                 `json:"entity_id"`
	Metrics  map[string]MetricEntry `json:"metrics"`
}

// MetricEntry holds the total and the per-node values behind it
type MetricEntry struct {
	Total int64             `json:"total"`
	Found bool              `json:"found"`
	Nodes map[string]string `json:"nodes,omitempty"`
}

// ExportEntity builds a JSON report of every tracked metric for entityID,
// including the raw value each node stored.
func ExportEntity(ctx context.Context, admin AdminInterface, entityID string) (string, error) {
	report := EntityReport{
		EntityID: entityID,
		Metrics:  make(map[string]MetricEntry),
	}

	for _, metric := range admin.Tracked() {
		total, err := admin.Total(ctx, entityID, metric)
		if err != nil && !errors.Is(err, storage.ErrMissingRelation) {
			return "", fmt.Errorf("failed to read total %s: %w", metric, err)
		}

		entry := MetricEntry{Total: total.Value, Found: total.Found}
		if total.Found {
			row, err := admin.ReadRow(ctx, entityID, metric)
			if err != nil {
				return "", fmt.Errorf("failed to read row %s: %w", metric, err)
			}
			if row != nil {
				entry.Nodes = row.Values
			}
		}
		report.Metrics[metric] = entry
	}

	output, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal JSON: %w", err)
	}
	return string(output), nil
}

// registerStatus maps registration errors to HTTP status codes
func registerStatus(err error) int {
	switch {
	case errors.Is(err, core.ErrAlreadyTracked):
		return http.StatusConflict
	case errors.Is(err, core.ErrValueUnavailable),
		errors.Is(err, core.ErrNotNumeric),
		errors.Is(err, storage.ErrEmptyMetricName):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

type registerRequest struct {
	Name string `json:"name"`
}

// MetricsAdminHandler handles POST (validated register) and DELETE
// (deregister) on /admin/metrics.
func MetricsAdminHandler(admin AdminInterface) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost:
			var req registerRequest
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Name == "" {
				http.Error(w, "body must be {\"name\": \"%metric%\"}", http.StatusBadRequest)
				return
			}

			v, err := admin.RegisterValidated(r.Context(), req.Name)
			if err != nil {
				http.Error(w, err.Error(), registerStatus(err))
				return
			}

			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusCreated)
			json.NewEncoder(w).Encode(v)

		case http.MethodDelete:
			name := r.URL.Query().Get("name")
			if name == "" {
				http.Error(w, "name parameter is required", http.StatusBadRequest)
				return
			}
			if !admin.Deregister(r.Context(), name) {
				http.Error(w, "metric not tracked", http.StatusNotFound)
				return
			}
			// stored values are kept
			w.WriteHeader(http.StatusNoContent)

		default:
			w.Header().Set("Allow", "POST, DELETE")
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		}
	}
}

// ReloadHandler re-reads the configuration and restarts the schedule
func ReloadHandler(admin AdminInterface) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if err := admin.Reload(r.Context()); err != nil {
			http.Error(w, fmt.Sprintf("reload failed: %v", err), http.StatusBadRequest)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

type syncTrace struct {
	Result core.TickResult `json:"result"`
	Logs   json.RawMessage `json:"logs"`
}

// SyncHandler runs one tick immediately and reports what it did. With
// ?trace=1 the tick logs at debug level and its log lines are returned too.
func SyncHandler(admin AdminInterface) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		if r.URL.Query().Get("trace") == "" {
			result := admin.Tick(r.Context())
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			json.NewEncoder(w).Encode(result)
			return
		}

		ctx := config.EnableDebug(config.EnableLogCollection(r.Context()))
		result := admin.Tick(ctx)

		logs, err := config.DumpLogsAsJSON(ctx)
		if err != nil {
			http.Error(w, fmt.Sprintf("failed to encode logs: %v", err), http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(syncTrace{Result: result, Logs: json.RawMessage(logs)})
	}
}

// EntityHandler serves ExportEntity: GET /admin/entity?id={entity}
func EntityHandler(admin AdminInterface) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := r.URL.Query().Get("id")
		if id == "" {
			http.Error(w, "id parameter is required", http.StatusBadRequest)
			return
		}

		report, err := ExportEntity(r.Context(), admin, id)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, "%s\n", report)
	}
}
