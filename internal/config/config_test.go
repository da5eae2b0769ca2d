package config_test

import (
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/MrWong99/mimcp/internal/config"
)

// ── helpers ──────────────────────────────────────────────────────────────────

const sampleYAML = `
server:
  name: mimcp-test
  version: 1.2.3
  log_level: debug
  max_in_flight: 4

observability:
  listen_addr: "127.0.0.1:9464"
  service_name: mimcp-test
  traces: log

tools:
  weather:
    choices: [soleado, nublado]
  countries:
    base_url: "http://localhost:8081/v3.1"
    timeout: 3s
    capital_lookup_concurrency: 8
    breaker:
      max_failures: 4
      reset_timeout: 1m
      half_open_max: 2
`

const sampleTOML = `
[server]
name = "mimcp-test"
version = "1.2.3"
log_level = "debug"
max_in_flight = 4

[observability]
listen_addr = "127.0.0.1:9464"
service_name = "mimcp-test"
traces = "log"

[tools.weather]
choices = ["soleado", "nublado"]

[tools.countries]
base_url = "http://localhost:8081/v3.1"
timeout = "3s"
capital_lookup_concurrency = 8

[tools.countries.breaker]
max_failures = 4
reset_timeout = "1m"
half_open_max = 2
`

func noEnv(string) string { return "" }

func wantSample() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{
			Name:        "mimcp-test",
			Version:     "1.2.3",
			LogLevel:    config.LogDebug,
			MaxInFlight: 4,
		},
		Observability: config.ObservabilityConfig{
			ListenAddr:  "127.0.0.1:9464",
			ServiceName: "mimcp-test",
			Traces:      config.TracesLog,
		},
		Tools: config.ToolsConfig{
			Weather: config.WeatherConfig{Choices: []string{"soleado", "nublado"}},
			Countries: config.CountriesConfig{
				BaseURL:                  "http://localhost:8081/v3.1",
				Timeout:                  3 * time.Second,
				CapitalLookupConcurrency: 8,
				Breaker: config.BreakerConfig{
					MaxFailures:  4,
					ResetTimeout: time.Minute,
					HalfOpenMax:  2,
				},
			},
		},
	}
}

// ── tests ────────────────────────────────────────────────────────────────────

func TestLoadFromReader_Formats(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		format config.Format
		input  string
	}{
		{"yaml", config.FormatYAML, sampleYAML},
		{"toml", config.FormatTOML, sampleTOML},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg, err := config.LoadFromReader(strings.NewReader(tt.input), tt.format, noEnv)
			if err != nil {
				t.Fatalf("LoadFromReader: %v", err)
			}
			if diff := cmp.Diff(wantSample(), cfg); diff != "" {
				t.Errorf("config mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestLoadFromReader_EmptyYieldsDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := config.LoadFromReader(strings.NewReader(""), config.FormatYAML, noEnv)
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}
	if diff := cmp.Diff(config.Default(), cfg); diff != "" {
		t.Errorf("config mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadFromReader_PartialKeepsDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := config.LoadFromReader(strings.NewReader("server:\n  max_in_flight: 2\n"), config.FormatYAML, noEnv)
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}
	if cfg.Server.MaxInFlight != 2 {
		t.Errorf("MaxInFlight = %d, want 2", cfg.Server.MaxInFlight)
	}
	if cfg.Server.Name != "mimcp" {
		t.Errorf("Name = %q, want default mimcp", cfg.Server.Name)
	}
	if cfg.Tools.Countries.Timeout != 10*time.Second {
		t.Errorf("Timeout = %v, want default 10s", cfg.Tools.Countries.Timeout)
	}
}

func TestLoadFromReader_UnknownKeys(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		format config.Format
		input  string
	}{
		{"yaml", config.FormatYAML, "server:\n  nmae: typo\n"},
		{"toml", config.FormatTOML, "[server]\nnmae = \"typo\"\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if _, err := config.LoadFromReader(strings.NewReader(tt.input), tt.format, noEnv); err == nil {
				t.Fatal("LoadFromReader() error = nil, want unknown key error")
			}
		})
	}
}

func TestLogLevel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		level config.LogLevel
		valid bool
		slog  slog.Level
	}{
		{config.LogDebug, true, slog.LevelDebug},
		{config.LogInfo, true, slog.LevelInfo},
		{config.LogWarn, true, slog.LevelWarn},
		{config.LogError, true, slog.LevelError},
		{"verbose", false, slog.LevelInfo},
	}
	for _, tt := range tests {
		if got := tt.level.IsValid(); got != tt.valid {
			t.Errorf("LogLevel(%q).IsValid() = %v, want %v", tt.level, got, tt.valid)
		}
		if got := tt.level.Slog(); got != tt.slog {
			t.Errorf("LogLevel(%q).Slog() = %v, want %v", tt.level, got, tt.slog)
		}
	}
}
