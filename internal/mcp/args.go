package mcp

import (
	"fmt"

	"github.com/mitchellh/mapstructure"
)

// Args is the typed argument bundle handed to a [Handler]. Every declared
// parameter is present after binding, either from the client or from its
// default. Values are int64, float64, string or bool according to the
// parameter type.
type Args map[string]any

// Has reports whether name is present in the bundle.
func (a Args) Has(name string) bool {
	_, ok := a[name]
	return ok
}

// Int returns the integer argument name, or 0 when absent.
func (a Args) Int(name string) int64 {
	switch v := a[name].(type) {
	case int64:
		return v
	case int:
		return int64(v)
	}
	return 0
}

// Float returns the number argument name, or 0 when absent.
func (a Args) Float(name string) float64 {
	switch v := a[name].(type) {
	case float64:
		return v
	case int64:
		return float64(v)
	case int:
		return float64(v)
	}
	return 0
}

// String returns the string argument name, or "" when absent.
func (a Args) String(name string) string {
	s, _ := a[name].(string)
	return s
}

// Bool returns the boolean argument name, or false when absent.
func (a Args) Bool(name string) bool {
	b, _ := a[name].(bool)
	return b
}

// Decode copies the bundle into the struct pointed to by out. Fields are
// matched by their `arg` tag, falling back to a case-insensitive match on the
// field name.
func (a Args) Decode(out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "arg",
		Result:           out,
		WeaklyTypedInput: false,
	})
	if err != nil {
		return fmt.Errorf("mcp: build args decoder: %w", err)
	}
	if err := dec.Decode(map[string]any(a)); err != nil {
		return fmt.Errorf("mcp: decode args: %w", err)
	}
	return nil
}
