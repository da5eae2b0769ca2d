package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/MrWong99/mimcp/internal/mcp"
	"github.com/MrWong99/mimcp/internal/mcp/registry"
	"github.com/MrWong99/mimcp/internal/resilience"
)

func passing(name string) Checker {
	return Checker{Name: name, Check: func(context.Context) error { return nil }}
}

func failing(name, msg string) Checker {
	return Checker{Name: name, Check: func(context.Context) error { return errors.New(msg) }}
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) result {
	t.Helper()
	var body result
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode JSON: %v", err)
	}
	return body
}

func TestHealthz_AlwaysReturns200(t *testing.T) {
	t.Parallel()

	h := New(nil, failing("session", "down"))
	rec := httptest.NewRecorder()
	h.Healthz(rec, httptest.NewRequest("GET", "/healthz", nil))

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json; charset=utf-8" {
		t.Errorf("Content-Type = %q, want application/json", ct)
	}
	if body := decode(t, rec); body.Status != "ok" {
		t.Errorf("status = %q, want %q", body.Status, "ok")
	}
}

func TestReadyz(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		checkers   []Checker
		wantStatus int
		wantBody   string
		wantChecks map[string]string
	}{
		{
			name:       "no checkers",
			wantStatus: http.StatusOK,
			wantBody:   "ok",
			wantChecks: map[string]string{},
		},
		{
			name:       "all pass",
			checkers:   []Checker{passing("session"), passing("countries")},
			wantStatus: http.StatusOK,
			wantBody:   "ok",
			wantChecks: map[string]string{"session": "ok", "countries": "ok"},
		},
		{
			name:       "one fails",
			checkers:   []Checker{failing("session", "no active MCP session"), passing("countries")},
			wantStatus: http.StatusServiceUnavailable,
			wantBody:   "fail",
			wantChecks: map[string]string{"session": "fail: no active MCP session", "countries": "ok"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			h := New(nil, tt.checkers...)
			rec := httptest.NewRecorder()
			h.Readyz(rec, httptest.NewRequest("GET", "/readyz", nil))

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			body := decode(t, rec)
			if body.Status != tt.wantBody {
				t.Errorf("body status = %q, want %q", body.Status, tt.wantBody)
			}
			for k, want := range tt.wantChecks {
				if got := body.Checks[k]; got != want {
					t.Errorf("check %s = %q, want %q", k, got, want)
				}
			}
		})
	}
}

func TestReadyz_RespectsContextCancellation(t *testing.T) {
	t.Parallel()

	h := New(nil, Checker{Name: "slow", Check: func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	rec := httptest.NewRecorder()
	h.Readyz(rec, httptest.NewRequest("GET", "/readyz", nil).WithContext(ctx))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusServiceUnavailable)
	}
}

func TestSessionChecker(t *testing.T) {
	t.Parallel()

	running := false
	c := SessionChecker(func() bool { return running })
	if err := c.Check(context.Background()); err == nil {
		t.Error("Check() = nil while not running, want error")
	}
	running = true
	if err := c.Check(context.Background()); err != nil {
		t.Errorf("Check() = %v while running, want nil", err)
	}
}

func TestBreakerChecker(t *testing.T) {
	t.Parallel()

	cb := resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
		Name:         "countries",
		MaxFailures:  1,
		ResetTimeout: time.Hour,
	})
	c := BreakerChecker(cb)
	if c.Name != "countries" {
		t.Errorf("Name = %q, want countries", c.Name)
	}
	if err := c.Check(context.Background()); err != nil {
		t.Fatalf("Check() = %v on closed breaker", err)
	}
	_ = cb.Execute(context.Background(), func(context.Context) error { return errors.New("boom") })
	if err := c.Check(context.Background()); err == nil {
		t.Error("Check() = nil on open breaker, want error")
	}
}

func TestTools_ReportsRegistryStats(t *testing.T) {
	t.Parallel()

	reg := registry.New()
	reg.MustRegister(mcp.Descriptor{Name: "Calcular"}, func(context.Context, mcp.Args) mcp.Result { return mcp.Text("") })
	reg.Record("Calcular", 10*time.Millisecond, false)
	reg.Record("Calcular", 30*time.Millisecond, true)

	h := New(reg)
	rec := httptest.NewRecorder()
	h.Tools(rec, httptest.NewRequest("GET", "/debug/tools", nil))

	var body struct {
		Tools []registry.ToolStats `json:"tools"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode JSON: %v", err)
	}
	if len(body.Tools) != 1 {
		t.Fatalf("tools = %+v, want 1 entry", body.Tools)
	}
	got := body.Tools[0]
	if got.Name != "Calcular" || got.Calls != 2 || got.ErrorRate != 0.5 {
		t.Errorf("stats = %+v, want Calcular with 2 calls and 0.5 error rate", got)
	}
}

func TestRoutes_Mounted(t *testing.T) {
	t.Parallel()

	r := chi.NewRouter()
	New(nil, passing("session")).Routes(r)

	for _, path := range []string{"/healthz", "/readyz", "/debug/tools"} {
		t.Run(path, func(t *testing.T) {
			rec := httptest.NewRecorder()
			r.ServeHTTP(rec, httptest.NewRequest("GET", path, nil))
			if rec.Code != http.StatusOK {
				t.Errorf("status = %d, want %d", rec.Code, http.StatusOK)
			}
		})
	}
}
