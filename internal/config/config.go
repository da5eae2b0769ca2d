// Package config provides the configuration schema and loader for the mimcp
// server.
package config

import (
	"log/slog"
	"time"
)

// LogLevel controls log verbosity.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Slog maps l to the corresponding slog level. Unknown values map to info.
func (l LogLevel) Slog() slog.Level {
	switch l {
	case LogDebug:
		return slog.LevelDebug
	case LogWarn:
		return slog.LevelWarn
	case LogError:
		return slog.LevelError
	}
	return slog.LevelInfo
}

// TraceSink selects where finished spans go.
type TraceSink string

const (
	// TracesNone leaves tracing disabled; spans are not recorded.
	TracesNone TraceSink = "none"
	// TracesLog writes each finished span as a log record on stderr.
	TracesLog TraceSink = "log"
)

// Config is the root configuration structure. It is loaded from a YAML or
// TOML file using [Load] or [LoadFromReader]; every field has a default from
// [Default].
type Config struct {
	Server        ServerConfig        `yaml:"server" toml:"server"`
	Observability ObservabilityConfig `yaml:"observability" toml:"observability"`
	Tools         ToolsConfig         `yaml:"tools" toml:"tools"`
}

// ServerConfig holds identity, logging and dispatch settings.
type ServerConfig struct {
	// Name is reported to the client in the initialize response.
	Name string `yaml:"name" toml:"name" validate:"required"`

	// Version is reported alongside Name.
	Version string `yaml:"version" toml:"version" validate:"required"`

	// LogLevel controls verbosity of the stderr log.
	LogLevel LogLevel `yaml:"log_level" toml:"log_level"`

	// MaxInFlight bounds concurrently executing requests. 1 processes
	// requests strictly in arrival order.
	MaxInFlight int `yaml:"max_in_flight" toml:"max_in_flight" validate:"gte=1,lte=256"`
}

// ObservabilityConfig controls the optional admin HTTP surface and span
// export.
type ObservabilityConfig struct {
	// ListenAddr enables /metrics, /healthz, /readyz and /debug/tools when
	// non-empty (e.g. "127.0.0.1:9464").
	ListenAddr string `yaml:"listen_addr" toml:"listen_addr" validate:"omitempty,hostname_port"`

	// ServiceName is the OpenTelemetry service.name resource attribute.
	ServiceName string `yaml:"service_name" toml:"service_name" validate:"required"`

	// Traces selects the span sink. Default: "none".
	Traces TraceSink `yaml:"traces" toml:"traces" validate:"oneof=none log"`
}

// ToolsConfig holds per-tool settings.
type ToolsConfig struct {
	Weather   WeatherConfig   `yaml:"weather" toml:"weather"`
	Countries CountriesConfig `yaml:"countries" toml:"countries"`
}

// WeatherConfig configures GetCityWeather.
type WeatherConfig struct {
	// Choices are the weather conditions to pick from. Empty selects the
	// built-in set.
	Choices []string `yaml:"choices" toml:"choices"`
}

// CountriesConfig configures the REST Countries lookups.
type CountriesConfig struct {
	BaseURL string        `yaml:"base_url" toml:"base_url" validate:"required,url"`
	Timeout time.Duration `yaml:"timeout" toml:"timeout" validate:"gt=0"`

	// CapitalLookupConcurrency bounds follow-up requests in
	// GetCapitalsByRegion.
	CapitalLookupConcurrency int `yaml:"capital_lookup_concurrency" toml:"capital_lookup_concurrency" validate:"gte=1,lte=32"`

	Breaker BreakerConfig `yaml:"breaker" toml:"breaker"`
}

// BreakerConfig tunes the circuit breaker guarding the countries API.
type BreakerConfig struct {
	MaxFailures  int           `yaml:"max_failures" toml:"max_failures" validate:"gte=1"`
	ResetTimeout time.Duration `yaml:"reset_timeout" toml:"reset_timeout" validate:"gt=0"`
	HalfOpenMax  int           `yaml:"half_open_max" toml:"half_open_max" validate:"gte=1"`
}

// Default returns the built-in configuration used when no file is given.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Name:        "mimcp",
			Version:     "dev",
			LogLevel:    LogInfo,
			MaxInFlight: 1,
		},
		Observability: ObservabilityConfig{
			ServiceName: "mimcp",
			Traces:      TracesNone,
		},
		Tools: ToolsConfig{
			Countries: CountriesConfig{
				BaseURL:                  "https://restcountries.com/v3.1",
				Timeout:                  10 * time.Second,
				CapitalLookupConcurrency: 4,
				Breaker: BreakerConfig{
					MaxFailures:  5,
					ResetTimeout: 30 * time.Second,
					HalfOpenMax:  3,
				},
			},
		},
	}
}
