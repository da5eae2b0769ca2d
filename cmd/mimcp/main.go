// Command mimcp serves the built-in tool catalogue over MCP on stdio.
//
// stdout carries protocol frames only; every log line goes to stderr.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/MrWong99/mimcp/internal/app"
	"github.com/MrWong99/mimcp/internal/config"
	"github.com/MrWong99/mimcp/internal/mcp/transport"
	"github.com/MrWong99/mimcp/internal/observe"
)

func main() {
	os.Exit(run())
}

func run() int {
	// Nothing but frames may reach stdout.
	log.SetOutput(os.Stderr)

	root := newRootCmd()
	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "mimcp: %v\n", err)
		return 1
	}
	return 0
}

// ── Commands ──────────────────────────────────────────────────────────────────

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "mimcp",
		Short: "MCP tool server over stdio",
		Long: `mimcp exposes a fixed catalogue of tools (arithmetic, random numbers,
unit conversion, passwords, word counts, weather and country lookups) to an
MCP client over standard input and output.

Running mimcp without a subcommand is the same as "mimcp serve".`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd.Context(), configPath(cmd))
		},
	}
	root.PersistentFlags().String("config", "mimcp.yaml", "path to the YAML or TOML configuration file (optional)")

	root.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Serve one MCP session on stdin/stdout",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd.Context(), configPath(cmd))
		},
	})
	root.AddCommand(newToolsCmd())
	return root
}

func configPath(cmd *cobra.Command) string {
	path, _ := cmd.Flags().GetString("config")
	return path
}

// loadConfig reads path, falling back to defaults when the file is absent.
func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.LoadOrDefault(path)
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

// ── Serve ─────────────────────────────────────────────────────────────────────

func serve(parent context.Context, path string) error {
	if parent == nil {
		parent = context.Background()
	}

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := loadConfig(path)
	if err != nil {
		return err
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	slog.SetDefault(newLogger(cfg.Server.LogLevel))

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	if pc, ok := telemetryConfig(cfg); ok {
		shutdownTelemetry, err := observe.InitProvider(ctx, pc)
		if err != nil {
			return fmt.Errorf("init telemetry: %w", err)
		}
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdownTelemetry(sctx); err != nil {
				slog.Warn("telemetry shutdown error", "err", err)
			}
		}()
	}

	logStartupSummary(cfg, path)

	application, err := app.New(cfg)
	if err != nil {
		return fmt.Errorf("initialise application: %w", err)
	}

	runErr := application.Run(ctx, transport.Stdio())

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Warn("shutdown error", "err", err)
	}

	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return runErr
	}
	slog.Info("goodbye")
	return nil
}

// telemetryConfig maps the observability section onto the OTel providers to
// install. Metrics need the admin surface to be scraped; spans are logged
// only when asked for. ok is false when neither applies.
func telemetryConfig(cfg *config.Config) (pc observe.ProviderConfig, ok bool) {
	pc = observe.ProviderConfig{
		ServiceName:       cfg.Observability.ServiceName,
		ServiceVersion:    cfg.Server.Version,
		PrometheusMetrics: cfg.Observability.ListenAddr != "",
	}
	if cfg.Observability.Traces == config.TracesLog {
		pc.TraceExporter = observe.NewSpanLogger(nil)
	}
	return pc, pc.PrometheusMetrics || pc.TraceExporter != nil
}

// ── Startup summary ───────────────────────────────────────────────────────────

// logStartupSummary logs the effective settings. It must never print to
// stdout, which belongs to the protocol.
func logStartupSummary(cfg *config.Config, path string) {
	admin := cfg.Observability.ListenAddr
	if admin == "" {
		admin = "(disabled)"
	}
	slog.Info("mimcp starting",
		"config", path,
		"name", cfg.Server.Name,
		"version", cfg.Server.Version,
		"log_level", cfg.Server.LogLevel,
		"max_in_flight", cfg.Server.MaxInFlight,
		"admin", admin,
		"traces", cfg.Observability.Traces,
		"countries_base_url", cfg.Tools.Countries.BaseURL,
	)
}

// ── Logger ────────────────────────────────────────────────────────────────────

func newLogger(level config.LogLevel) *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level.Slog()}))
}
