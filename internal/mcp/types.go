package mcp

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/jsonschema-go/jsonschema"
)

// ParamType is the semantic type of a tool parameter.
type ParamType string

const (
	// TypeInteger is a whole number, bound as int64.
	TypeInteger ParamType = "integer"

	// TypeNumber is a floating point number, bound as float64.
	TypeNumber ParamType = "number"

	// TypeString is free text, bound as string.
	TypeString ParamType = "string"

	// TypeBoolean is a truth value, bound as bool.
	TypeBoolean ParamType = "boolean"
)

// IsValid reports whether t is a recognised parameter type.
func (t ParamType) IsValid() bool {
	switch t {
	case TypeInteger, TypeNumber, TypeString, TypeBoolean:
		return true
	}
	return false
}

// Parameter describes a single named input of a tool.
type Parameter struct {
	// Name is the argument key expected on the wire. Unique per descriptor.
	Name string

	// Type is the semantic type the raw value is converted to.
	Type ParamType

	// Description is shown to the client alongside the parameter.
	Description string

	// Required marks the parameter as mandatory. A non-required parameter
	// must carry a Default.
	Required bool

	// Default is substituted when the argument is absent. Its Go type must
	// match Type: int or int64 for integer, float64 for number, string and
	// bool respectively.
	Default any
}

// HasDefault reports whether a default value is declared.
func (p Parameter) HasDefault() bool { return p.Default != nil }

// Descriptor is the static metadata advertised for one tool.
type Descriptor struct {
	// Name is the unique, case-sensitive tool identifier.
	Name string

	// Description explains the tool to the calling client.
	Description string

	// Parameters lists the tool inputs in declaration order.
	Parameters []Parameter
}

// Validate checks the descriptor invariants: a non-empty name, unique
// parameter names, known parameter types, and a default of the declared type
// for every optional parameter. All violations are joined into one error.
func (d Descriptor) Validate() error {
	var errs []error
	if d.Name == "" {
		errs = append(errs, errors.New("tool name is required"))
	}

	seen := make(map[string]int, len(d.Parameters))
	for i, p := range d.Parameters {
		prefix := fmt.Sprintf("tool %q parameters[%d]", d.Name, i)
		if p.Name == "" {
			errs = append(errs, fmt.Errorf("%s.name is required", prefix))
		} else {
			if prev, ok := seen[p.Name]; ok {
				errs = append(errs, fmt.Errorf("%s.name %q is a duplicate of parameters[%d]", prefix, p.Name, prev))
			}
			seen[p.Name] = i
		}
		if !p.Type.IsValid() {
			errs = append(errs, fmt.Errorf("%s.type %q is invalid; valid values: integer, number, string, boolean", prefix, p.Type))
			continue
		}
		if !p.Required && !p.HasDefault() {
			errs = append(errs, fmt.Errorf("%s: optional parameter %q must declare a default", prefix, p.Name))
		}
		if p.HasDefault() && !defaultMatches(p.Type, p.Default) {
			errs = append(errs, fmt.Errorf("%s: default %v (%T) does not match type %s", prefix, p.Default, p.Default, p.Type))
		}
	}
	return errors.Join(errs...)
}

func defaultMatches(t ParamType, v any) bool {
	switch t {
	case TypeInteger:
		switch v.(type) {
		case int, int32, int64:
			return true
		}
	case TypeNumber:
		switch v.(type) {
		case float64, float32, int, int64:
			return true
		}
	case TypeString:
		_, ok := v.(string)
		return ok
	case TypeBoolean:
		_, ok := v.(bool)
		return ok
	}
	return false
}

// InputSchema renders the parameter list as the JSON Schema object sent in
// the tools/list response.
func (d Descriptor) InputSchema() *jsonschema.Schema {
	s := &jsonschema.Schema{
		Type:       "object",
		Properties: make(map[string]*jsonschema.Schema, len(d.Parameters)),
	}
	for _, p := range d.Parameters {
		prop := &jsonschema.Schema{
			Type:        string(p.Type),
			Description: p.Description,
		}
		if p.HasDefault() {
			if raw, err := json.Marshal(p.Default); err == nil {
				prop.Default = raw
			}
		}
		s.Properties[p.Name] = prop
		if p.Required && !p.HasDefault() {
			s.Required = append(s.Required, p.Name)
		}
	}
	return s
}
