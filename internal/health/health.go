// Package health provides the admin HTTP handlers for liveness, readiness and
// per-tool statistics.
//
// The package exposes three endpoints:
//
//   - /healthz      liveness probe; always returns 200 OK.
//   - /readyz       readiness probe; returns 200 only when all registered
//     [Checker] functions pass.
//   - /debug/tools  rolling-window call statistics for every registered tool.
//
// Probe responses are JSON objects with a top-level "status" field ("ok" or
// "fail") and a "checks" map containing the result of each named checker.
package health

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/MrWong99/mimcp/internal/mcp/registry"
	"github.com/MrWong99/mimcp/internal/resilience"
)

// checkTimeout is the maximum time a single readiness check may take before
// the context is cancelled.
const checkTimeout = 5 * time.Second

// Checker is a named health check function. The Check function should return
// nil when the dependency is healthy and a non-nil error describing the
// failure otherwise.
type Checker struct {
	// Name is a short label for this check (e.g. "session", "countries").
	// It appears as a key in the JSON response.
	Name string

	// Check probes the dependency. It must respect context cancellation.
	Check func(ctx context.Context) error
}

// StatsSource reports per-tool statistics. *registry.Registry satisfies it.
type StatsSource interface {
	Stats() []registry.ToolStats
}

// result is the JSON response body for probe endpoints.
type result struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// Handler serves the admin endpoints. It is safe for concurrent use; the
// checker list is fixed at construction time.
type Handler struct {
	checkers []Checker
	stats    StatsSource
}

// New creates a [Handler] that evaluates the given checkers on each /readyz
// request, in order. stats may be nil, in which case /debug/tools reports an
// empty list.
func New(stats StatsSource, checkers ...Checker) *Handler {
	c := make([]Checker, len(checkers))
	copy(c, checkers)
	return &Handler{checkers: c, stats: stats}
}

// Healthz is a liveness probe that always returns 200 OK.
func (h *Handler) Healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, result{Status: "ok"})
}

// Readyz is a readiness probe that returns 200 only when every registered
// [Checker] passes. Each checker is given a context with a [checkTimeout]
// deadline derived from the request context.
func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	checks := make(map[string]string, len(h.checkers))
	allOK := true

	for _, c := range h.checkers {
		ctx, cancel := context.WithTimeout(r.Context(), checkTimeout)
		err := c.Check(ctx)
		cancel()

		if err != nil {
			checks[c.Name] = "fail: " + err.Error()
			allOK = false
		} else {
			checks[c.Name] = "ok"
		}
	}

	res := result{Status: "ok", Checks: checks}
	status := http.StatusOK
	if !allOK {
		res.Status = "fail"
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, res)
}

// Tools reports the rolling-window statistics of every registered tool in
// registration order.
func (h *Handler) Tools(w http.ResponseWriter, _ *http.Request) {
	stats := []registry.ToolStats{}
	if h.stats != nil {
		stats = h.stats.Stats()
	}
	writeJSON(w, http.StatusOK, map[string]any{"tools": stats})
}

// Routes mounts the admin endpoints on r.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/healthz", h.Healthz)
	r.Get("/readyz", h.Readyz)
	r.Get("/debug/tools", h.Tools)
}

// ── Checkers ─────────────────────────────────────────────────────────────────

// SessionChecker passes while running reports true.
func SessionChecker(running func() bool) Checker {
	return Checker{
		Name: "session",
		Check: func(context.Context) error {
			if !running() {
				return errors.New("no active MCP session")
			}
			return nil
		},
	}
}

// BreakerChecker fails while cb is open. Half-open counts as ready so the
// probe does not flap during recovery.
func BreakerChecker(cb *resilience.CircuitBreaker) Checker {
	return Checker{
		Name: cb.Name(),
		Check: func(context.Context) error {
			if s := cb.State(); s == resilience.StateOpen {
				return fmt.Errorf("circuit breaker %s", s)
			}
			return nil
		},
	}
}

// writeJSON encodes v as JSON and writes it with the given status code. On
// encoding failure it falls back to a plain-text 500 response.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"status":"error"}`, http.StatusInternalServerError)
	}
}
