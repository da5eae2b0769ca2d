package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"reflect"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Format selects the file syntax.
type Format string

const (
	FormatYAML Format = "yaml"
	FormatTOML Format = "toml"
)

// Environment variables that override file values.
const (
	EnvWeatherChoices   = "WEATHER_CHOICES"
	EnvLogLevel         = "MIMCP_LOG_LEVEL"
	EnvCountriesBaseURL = "MIMCP_COUNTRIES_BASE_URL"
)

// FormatFor picks the format from the file extension. Anything other than
// .toml is read as YAML.
func FormatFor(path string) Format {
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		return FormatTOML
	}
	return FormatYAML
}

// Load reads the configuration file at path, applies environment overrides
// from the process environment, and validates the result. The returned error
// wraps [fs.ErrNotExist] when the file is missing.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f, FormatFor(path), os.Getenv)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadOrDefault behaves like [Load] but falls back to [Default] (with
// environment overrides) when the file does not exist.
func LoadOrDefault(path string) (*Config, error) {
	cfg, err := Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		cfg = Default()
		ApplyEnv(cfg, os.Getenv)
		if err := Validate(cfg); err != nil {
			return nil, err
		}
		return cfg, nil
	}
	return cfg, err
}

// LoadFromReader decodes a config from r on top of [Default], applies the
// overrides reported by getenv (which may be nil) and validates the result.
// Unknown keys are rejected in both formats.
func LoadFromReader(r io.Reader, format Format, getenv func(string) string) (*Config, error) {
	cfg := Default()
	switch format {
	case FormatTOML:
		md, err := toml.NewDecoder(r).Decode(cfg)
		if err != nil {
			return nil, fmt.Errorf("config: decode toml: %w", err)
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			keys := make([]string, len(undecoded))
			for i, k := range undecoded {
				keys[i] = k.String()
			}
			return nil, fmt.Errorf("config: decode toml: unknown keys %s", strings.Join(keys, ", "))
		}
	default:
		dec := yaml.NewDecoder(r)
		dec.KnownFields(true)
		if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("config: decode yaml: %w", err)
		}
	}

	if getenv != nil {
		ApplyEnv(cfg, getenv)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overrides cfg from environment variables. WEATHER_CHOICES is
// split on commas without trimming; a blank value is ignored.
func ApplyEnv(cfg *Config, getenv func(string) string) {
	if v := getenv(EnvWeatherChoices); strings.TrimSpace(v) != "" {
		cfg.Tools.Weather.Choices = strings.Split(v, ",")
	}
	if v := strings.TrimSpace(getenv(EnvLogLevel)); v != "" {
		cfg.Server.LogLevel = LogLevel(strings.ToLower(v))
	}
	if v := strings.TrimSpace(getenv(EnvCountriesBaseURL)); v != "" {
		cfg.Tools.Countries.BaseURL = v
	}
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// Report fields by their config key rather than their Go name.
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("yaml"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if err := validate.Struct(cfg); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return fmt.Errorf("config: validate: %w", err)
		}
		for _, fe := range verrs {
			errs = append(errs, fmt.Errorf("%s: value %v fails %q", fieldPath(fe), fe.Value(), constraint(fe)))
		}
	}

	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	b := cfg.Tools.Countries.Breaker
	if b.HalfOpenMax > b.MaxFailures && b.MaxFailures > 0 {
		errs = append(errs, fmt.Errorf("tools.countries.breaker.half_open_max (%d) must not exceed max_failures (%d)", b.HalfOpenMax, b.MaxFailures))
	}
	if c := cfg.Tools.Countries; c.Timeout > 0 && c.Breaker.ResetTimeout > 0 && c.Breaker.ResetTimeout < c.Timeout {
		errs = append(errs, fmt.Errorf("tools.countries.breaker.reset_timeout (%s) must be at least tools.countries.timeout (%s)", c.Breaker.ResetTimeout, c.Timeout))
	}

	return errors.Join(errs...)
}

// fieldPath strips the root struct name from the validator namespace.
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if _, rest, ok := strings.Cut(ns, "."); ok {
		return rest
	}
	return ns
}

func constraint(fe validator.FieldError) string {
	if fe.Param() == "" {
		return fe.Tag()
	}
	return fe.Tag() + "=" + fe.Param()
}
