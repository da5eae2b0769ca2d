// Package app wires the mimcp subsystems into a running server.
//
// The App struct owns the full lifecycle: New builds the tool registry and the
// dispatcher, Run serves one MCP session (plus the optional admin HTTP
// surface), and Shutdown releases whatever New acquired.
//
// For testing, inject doubles via functional options (WithGetter,
// WithRandSource, WithMetrics). When an option is not provided, New creates
// real implementations from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/mimcp/internal/config"
	"github.com/MrWong99/mimcp/internal/health"
	"github.com/MrWong99/mimcp/internal/httpjson"
	"github.com/MrWong99/mimcp/internal/mcp/dispatch"
	"github.com/MrWong99/mimcp/internal/mcp/registry"
	"github.com/MrWong99/mimcp/internal/mcp/tools"
	"github.com/MrWong99/mimcp/internal/mcp/tools/calc"
	"github.com/MrWong99/mimcp/internal/mcp/tools/conversion"
	"github.com/MrWong99/mimcp/internal/mcp/tools/countries"
	"github.com/MrWong99/mimcp/internal/mcp/tools/random"
	"github.com/MrWong99/mimcp/internal/mcp/tools/security"
	"github.com/MrWong99/mimcp/internal/mcp/tools/text"
	"github.com/MrWong99/mimcp/internal/mcp/tools/weather"
	"github.com/MrWong99/mimcp/internal/mcp/transport"
	"github.com/MrWong99/mimcp/internal/observe"
	"github.com/MrWong99/mimcp/internal/randsrc"
	"github.com/MrWong99/mimcp/internal/resilience"
)

const adminShutdownTimeout = 5 * time.Second

// App owns all subsystem lifetimes for one mimcp process.
type App struct {
	cfg *config.Config

	// Collaborators, injectable via Option.
	getter  httpjson.Getter
	src     randsrc.Source
	metrics *observe.Metrics

	// Built in New.
	countries  *httpjson.Client
	reg        *registry.Registry
	dispatcher *dispatch.Dispatcher

	// closers are called in order during Shutdown.
	closers []func() error

	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithGetter replaces the REST Countries HTTP client. The countries breaker
// readiness check is skipped when a getter is injected.
func WithGetter(g httpjson.Getter) Option {
	return func(a *App) { a.getter = g }
}

// WithRandSource replaces the shared random source used by GetRandomNumber,
// GetCityWeather and GenerarContrasena.
func WithRandSource(src randsrc.Source) Option {
	return func(a *App) { a.src = src }
}

// WithMetrics replaces the metrics instruments built on the global provider.
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New creates an App from cfg. All tools are registered before New returns;
// the catalogue is immutable afterwards.
func New(cfg *config.Config, opts ...Option) (*App, error) {
	if cfg == nil {
		return nil, errors.New("app: nil config")
	}
	a := &App{cfg: cfg}
	for _, o := range opts {
		o(a)
	}

	// ── 1. Shared collaborators ──────────────────────────────────────────
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}
	if a.src == nil {
		a.src = randsrc.Shared()
	}
	a.initCountriesClient()

	// ── 2. Tool registry ─────────────────────────────────────────────────
	if err := a.initRegistry(); err != nil {
		return nil, fmt.Errorf("app: init registry: %w", err)
	}

	// ── 3. Dispatcher ────────────────────────────────────────────────────
	a.dispatcher = dispatch.New(a.reg, dispatch.Options{
		Name:        cfg.Server.Name,
		Version:     cfg.Server.Version,
		MaxInFlight: cfg.Server.MaxInFlight,
		Metrics:     a.metrics,
		Recorder:    a.reg,
	})

	return a, nil
}

// initCountriesClient builds the breaker-guarded HTTP client unless a getter
// was injected.
func (a *App) initCountriesClient() {
	if a.getter != nil {
		return
	}
	cc := a.cfg.Tools.Countries
	a.countries = httpjson.New(httpjson.Config{
		Name:    "countries",
		Timeout: cc.Timeout,
		Breaker: resilience.CircuitBreakerConfig{
			MaxFailures:  cc.Breaker.MaxFailures,
			ResetTimeout: cc.Breaker.ResetTimeout,
			HalfOpenMax:  cc.Breaker.HalfOpenMax,
		},
		Metrics: a.metrics,
	})
	a.getter = a.countries
	a.closers = append(a.closers, func() error {
		a.countries.CloseIdleConnections()
		return nil
	})
}

// initRegistry registers every built-in tool group in catalogue order.
func (a *App) initRegistry() error {
	a.reg = registry.New()
	cc := a.cfg.Tools.Countries
	return tools.RegisterAll(a.reg,
		random.Tools(a.src),
		weather.Tools(a.cfg.Tools.Weather.Choices, a.src),
		calc.Tools(),
		conversion.Tools(),
		security.Tools(a.src),
		text.Tools(),
		countries.Tools(a.getter, countries.Config{
			BaseURL:            cc.BaseURL,
			CapitalConcurrency: cc.CapitalLookupConcurrency,
		}),
	)
}

// Registry exposes the tool catalogue, e.g. for the CLI tools listing.
func (a *App) Registry() *registry.Registry { return a.reg }

// AdminHandler returns the admin HTTP surface: /metrics, /healthz, /readyz
// and /debug/tools.
func (a *App) AdminHandler() http.Handler {
	checkers := []health.Checker{health.SessionChecker(a.dispatcher.Running)}
	if a.countries != nil {
		checkers = append(checkers, health.BreakerChecker(a.countries.Breaker()))
	}

	r := chi.NewRouter()
	r.Use(observe.Middleware(a.metrics))
	health.New(a.reg, checkers...).Routes(r)
	r.Handle("/metrics", promhttp.Handler())
	return r
}

// ─── Run ─────────────────────────────────────────────────────────────────────

// Run serves one MCP session on conn until the client closes its input or
// ctx is cancelled. When observability.listen_addr is set, the admin server
// runs alongside the session and is shut down when the session ends.
func (a *App) Run(ctx context.Context, conn transport.Conn) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)

	if addr := a.cfg.Observability.ListenAddr; addr != "" {
		ln, err := net.Listen("tcp", addr)
		if err != nil {
			return fmt.Errorf("app: admin listen %q: %w", addr, err)
		}
		srv := &http.Server{
			Handler:           a.AdminHandler(),
			ReadHeaderTimeout: 5 * time.Second,
		}
		slog.Info("admin server listening", "addr", ln.Addr().String())

		g.Go(func() error {
			if err := srv.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("app: admin server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			sctx, scancel := context.WithTimeout(context.Background(), adminShutdownTimeout)
			defer scancel()
			return srv.Shutdown(sctx)
		})
	}

	g.Go(func() error {
		defer cancel()
		slog.Info("mcp session starting",
			"tools", a.reg.Len(),
			"max_in_flight", a.cfg.Server.MaxInFlight,
		)
		return a.dispatcher.Serve(gctx, conn)
	})

	return g.Wait()
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown releases resources acquired by New. It is safe to call more than
// once; only the first call has any effect.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		for i, closer := range a.closers {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", len(a.closers)-i)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := closer(); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}
		slog.Debug("shutdown complete")
	})
	return shutdownErr
}
