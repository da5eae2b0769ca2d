// Package binder converts the untyped argument mapping of a tools/call request
// into the typed [mcp.Args] bundle handed to a tool handler.
//
// Binding walks the declared parameters in order. A present argument is
// converted to the declared type; an absent one takes its default or, when
// required, fails with [mcp.KindMissingArgument]. Arguments that match no
// declared parameter are ignored so clients may send extra metadata.
//
// Conversion rules:
//
//	integer  JSON integers, integral JSON floats, numeric strings
//	number   JSON numbers, numeric strings
//	boolean  JSON booleans, the strings "true" and "false"
//	string   JSON strings only
//
// A JSON null is treated as absent. Binding performs no I/O and never mutates
// its inputs, so binding the same mapping twice yields equal bundles.
package binder

import (
	"encoding/json"
	"math"
	"strings"

	"github.com/spf13/cast"

	"github.com/MrWong99/mimcp/internal/mcp"
)

// Bind converts raw into a typed bundle according to params. The returned
// error is always a *mcp.ToolError of kind [mcp.KindMissingArgument] or
// [mcp.KindTypeMismatch]; the first failing parameter wins.
func Bind(params []mcp.Parameter, raw map[string]any) (mcp.Args, error) {
	args := make(mcp.Args, len(params))
	for _, p := range params {
		v, present := raw[p.Name]
		if present && v == nil {
			present = false
		}

		if !present {
			if p.HasDefault() {
				args[p.Name] = normalizeDefault(p.Type, p.Default)
				continue
			}
			if p.Required {
				return nil, mcp.MissingArgumentError(p.Name)
			}
			continue
		}

		converted, err := Convert(p, v)
		if err != nil {
			return nil, err
		}
		args[p.Name] = converted
	}
	return args, nil
}

// Convert converts a single raw value to the type declared by p.
func Convert(p mcp.Parameter, v any) (any, error) {
	mismatch := func() error { return mcp.TypeMismatchError(p.Name, p.Type, v) }

	switch p.Type {
	case mcp.TypeString:
		s, ok := v.(string)
		if !ok {
			return nil, mismatch()
		}
		return s, nil

	case mcp.TypeBoolean:
		switch b := v.(type) {
		case bool:
			return b, nil
		case string:
			switch strings.ToLower(strings.TrimSpace(b)) {
			case "true":
				return true, nil
			case "false":
				return false, nil
			}
		}
		return nil, mismatch()

	case mcp.TypeInteger:
		switch n := v.(type) {
		case json.Number:
			if i, err := n.Int64(); err == nil {
				return i, nil
			}
		case int64:
			return n, nil
		case int:
			return int64(n), nil
		}
		f, ok := toFloat(v)
		if !ok || f != math.Trunc(f) || f >= math.MaxInt64 || f < math.MinInt64 {
			return nil, mismatch()
		}
		return int64(f), nil

	case mcp.TypeNumber:
		f, ok := toFloat(v)
		if !ok {
			return nil, mismatch()
		}
		return f, nil
	}
	return nil, mismatch()
}

// toFloat accepts JSON numbers in any of their decoded forms and numeric
// strings. Booleans are rejected even though cast would map them to 0 or 1.
func toFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case bool, nil, map[string]any, []any:
		return 0, false
	case json.Number:
		v = x.String()
	case string:
		x = strings.TrimSpace(x)
		if x == "" {
			return 0, false
		}
		v = x
	}
	f, err := cast.ToFloat64E(v)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// normalizeDefault widens declared defaults to the bound representation so
// handlers see int64 and float64 regardless of how the literal was written.
func normalizeDefault(t mcp.ParamType, v any) any {
	switch t {
	case mcp.TypeInteger:
		return cast.ToInt64(v)
	case mcp.TypeNumber:
		return cast.ToFloat64(v)
	}
	return v
}
