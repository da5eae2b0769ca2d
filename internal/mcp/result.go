package mcp

import (
	"errors"
	"fmt"
)

// ErrorKind classifies every failure a tool invocation can produce. The kind
// is carried in the result metadata so clients can branch on it without
// parsing the human-readable message.
type ErrorKind string

const (
	// KindProtocolParse means the incoming frame was not valid JSON-RPC.
	KindProtocolParse ErrorKind = "ProtocolParseError"

	// KindUnknownTool means no registered tool carries the requested name.
	KindUnknownTool ErrorKind = "UnknownTool"

	// KindMissingArgument means a required parameter without default was absent.
	KindMissingArgument ErrorKind = "MissingRequiredArgument"

	// KindTypeMismatch means an argument could not be converted to its
	// declared type.
	KindTypeMismatch ErrorKind = "ArgumentTypeMismatch"

	// KindToolExecution means the handler itself reported a domain failure
	// or panicked.
	KindToolExecution ErrorKind = "ToolExecutionError"
)

// ToolError is the structured failure produced by resolution, binding or
// execution. It satisfies the error interface and unwraps to Err.
type ToolError struct {
	Kind ErrorKind

	// Tool is the name the client asked for.
	Tool string

	// Param is the offending parameter for binding failures.
	Param string

	// Expected is the declared parameter type for type mismatches.
	Expected ParamType

	// Message is the text shown to the client.
	Message string

	// Err is the underlying cause, if any.
	Err error
}

// Error implements error.
func (e *ToolError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return string(e.Kind)
}

// Unwrap returns the underlying cause.
func (e *ToolError) Unwrap() error { return e.Err }

// UnknownToolError builds a [KindUnknownTool] failure for name.
func UnknownToolError(name string) *ToolError {
	return &ToolError{
		Kind:    KindUnknownTool,
		Tool:    name,
		Message: fmt.Sprintf("unknown tool %q", name),
	}
}

// MissingArgumentError builds a [KindMissingArgument] failure.
func MissingArgumentError(param string) *ToolError {
	return &ToolError{
		Kind:    KindMissingArgument,
		Param:   param,
		Message: fmt.Sprintf("missing required argument %q", param),
	}
}

// TypeMismatchError builds a [KindTypeMismatch] failure for param.
func TypeMismatchError(param string, expected ParamType, got any) *ToolError {
	return &ToolError{
		Kind:     KindTypeMismatch,
		Param:    param,
		Expected: expected,
		Message:  fmt.Sprintf("argument %q: expected %s, got %s", param, expected, describe(got)),
	}
}

func describe(v any) string {
	switch x := v.(type) {
	case nil:
		return "null"
	case string:
		return fmt.Sprintf("string %q", x)
	case bool:
		return fmt.Sprintf("boolean %t", x)
	case map[string]any:
		return "object"
	case []any:
		return "array"
	default:
		return fmt.Sprintf("%v", x)
	}
}

// KindOf extracts the [ErrorKind] of err. Errors that are not a *ToolError
// are reported as [KindToolExecution].
func KindOf(err error) ErrorKind {
	var te *ToolError
	if errors.As(err, &te) {
		return te.Kind
	}
	return KindToolExecution
}

// ── Result ─────────────────────────────────────────────────────────────────

// Result is the outcome of one tool invocation: either a success payload or
// a failure. Exactly one of the two is meaningful; Err being non-nil selects
// the failure branch.
type Result struct {
	// Text is the human-readable payload returned to the client.
	Text string

	// Structured is an optional machine-readable payload sent alongside Text
	// on success. It must marshal to a JSON object.
	Structured any

	// Err is set for failures.
	Err *ToolError
}

// IsError reports whether r is a failure.
func (r Result) IsError() bool { return r.Err != nil }

// Message returns the text the client should see for r.
func (r Result) Message() string {
	if r.Err != nil {
		return r.Err.Error()
	}
	return r.Text
}

// Text builds a success result carrying s.
func Text(s string) Result { return Result{Text: s} }

// Textf builds a success result from a format string.
func Textf(format string, args ...any) Result {
	return Result{Text: fmt.Sprintf(format, args...)}
}

// Fail builds a [KindToolExecution] failure carrying msg.
func Fail(msg string) Result {
	return Result{Err: &ToolError{Kind: KindToolExecution, Message: msg}}
}

// Failf builds a [KindToolExecution] failure from a format string. A %w verb
// is honoured, so the cause stays reachable with errors.Is.
func Failf(format string, args ...any) Result {
	err := fmt.Errorf(format, args...)
	return Result{Err: &ToolError{Kind: KindToolExecution, Message: err.Error(), Err: errors.Unwrap(err)}}
}

// FailWith converts err into a failure result. A *ToolError is kept as is;
// any other error becomes a [KindToolExecution] failure.
func FailWith(err error) Result {
	var te *ToolError
	if errors.As(err, &te) {
		return Result{Err: te}
	}
	return Result{Err: &ToolError{Kind: KindToolExecution, Message: err.Error(), Err: err}}
}
