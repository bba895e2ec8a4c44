// Package source reads local values and the local entity list from the host
// process over HTTP.
package source

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/thisdougb/multisync/internal/config"
	"github.com/thisdougb/multisync/internal/core"
)

// maxValueSize bounds a value response body.
const maxValueSize = 4096

// HTTPSource implements core.ValueSource and core.EntityDirectory against a
// host process exposing:
//
//	GET {base}/entities                     -> [{"id": "...", "name": "..."}]
//	GET {base}/value?entity=...&metric=...  -> value as plain text
type HTTPSource struct {
	base   string
	client *http.Client
}

var (
	_ core.ValueSource     = (*HTTPSource)(nil)
	_ core.EntityDirectory = (*HTTPSource)(nil)
)

// NewHTTPSource creates a source for the host at base.
func NewHTTPSource(base string, timeout time.Duration) *HTTPSource {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &HTTPSource{
		base:   strings.TrimRight(base, "/"),
		client: &http.Client{Timeout: timeout},
	}
}

func (s *HTTPSource) get(ctx context.Context, path string, query url.Values) (*http.Response, error) {
	target := s.base + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 300 {
		resp.Body.Close()
		return nil, fmt.Errorf("http %s: %d", target, resp.StatusCode)
	}
	return resp, nil
}

// Value fetches one local value. Any transport or status error means the
// value is unavailable this time.
func (s *HTTPSource) Value(ctx context.Context, entityID, metric string) (string, bool) {
	resp, err := s.get(ctx, "/value", url.Values{"entity": {entityID}, "metric": {metric}})
	if err != nil {
		config.LogDebug(ctx, fmt.Sprintf("value source: %v", err))
		return "", false
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxValueSize))
	if err != nil {
		config.LogDebug(ctx, fmt.Sprintf("value source: failed to read body: %v", err))
		return "", false
	}
	return strings.TrimSpace(string(body)), true
}

// Entities lists the entities the host currently knows, empty on error.
func (s *HTTPSource) Entities(ctx context.Context) []core.Entity {
	resp, err := s.get(ctx, "/entities", nil)
	if err != nil {
		config.LogWarn(ctx, fmt.Sprintf("entity directory: %v", err))
		return nil
	}
	defer resp.Body.Close()

	var entities []core.Entity
	if err := json.NewDecoder(resp.Body).Decode(&entities); err != nil {
		config.LogWarn(ctx, fmt.Sprintf("entity directory: failed to decode: %v", err))
		return nil
	}

	// entries without an id cannot be keyed
	valid := entities[:0]
	for _, e := range entities {
		if e.ID != "" {
			valid = append(valid, e)
		}
	}
	return valid
}
