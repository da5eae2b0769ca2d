package dispatch

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/MrWong99/mimcp/internal/mcp"
	"github.com/MrWong99/mimcp/internal/mcp/binder"
	"github.com/MrWong99/mimcp/internal/observe"
)

// callTool runs the Binding and Invoking phases for one tools/call request.
// It never fails: every problem is folded into the returned Result.
func (s *session) callTool(ctx context.Context, span trace.Span, name string, raw map[string]any) mcp.Result {
	start := time.Now()
	log := observe.Logger(ctx).With("tool", name)

	span.AddEvent("binding")
	reg, err := s.d.catalog.Resolve(name)
	if err != nil {
		res := failure(name, err)
		s.record(ctx, span, name, start, res, false)
		log.Warn("unknown tool", "err", err)
		return res
	}
	args, err := binder.Bind(reg.Descriptor.Parameters, raw)
	if err != nil {
		res := failure(name, err)
		s.record(ctx, span, name, start, res, true)
		log.Warn("argument binding failed", "err", err)
		return res
	}

	span.AddEvent("invoking")
	res := invoke(ctx, reg.Handler, args)
	if res.Err != nil {
		res = failure(name, res.Err)
	}
	s.record(ctx, span, name, start, res, true)

	if res.IsError() {
		log.Info("tool returned failure", "kind", res.Err.Kind, "err", res.Err.Message, "duration", time.Since(start))
	} else {
		log.Debug("tool succeeded", "duration", time.Since(start))
	}
	return res
}

// invoke calls h, converting a panic into a ToolExecutionError.
func invoke(ctx context.Context, h mcp.Handler, args mcp.Args) (res mcp.Result) {
	defer func() {
		if r := recover(); r != nil {
			observe.Logger(ctx).Error("tool handler panicked", "panic", r, "stack", string(debug.Stack()))
			res = mcp.Result{Err: &mcp.ToolError{
				Kind:    mcp.KindToolExecution,
				Message: fmt.Sprintf("internal error: %v", r),
			}}
		}
	}()
	return h(ctx, args)
}

// failure normalises err into a failure Result attributed to tool. The
// source error is copied so shared *ToolError values are never mutated.
func failure(tool string, err error) mcp.Result {
	var te *mcp.ToolError
	if !errors.As(err, &te) {
		te = &mcp.ToolError{Kind: mcp.KindToolExecution, Message: err.Error(), Err: err}
	}
	cp := *te
	cp.Tool = tool
	if cp.Kind == "" {
		cp.Kind = mcp.KindToolExecution
	}
	return mcp.Result{Err: &cp}
}

// record publishes the outcome of one invocation. known is false for
// unresolved names so unknown tools do not pollute per-tool stats.
func (s *session) record(ctx context.Context, span trace.Span, name string, start time.Time, res mcp.Result, known bool) {
	d := time.Since(start)
	kind := ""
	if res.IsError() {
		kind = string(res.Err.Kind)
		span.SetAttributes(attribute.String("mcp.error_kind", kind))
		span.SetStatus(codes.Error, res.Err.Message)
	}
	if !known {
		name = "unknown"
	} else if s.d.opts.Recorder != nil {
		s.d.opts.Recorder.Record(name, d, res.IsError())
	}
	s.d.metrics.RecordToolCall(ctx, name, d, kind)
}

// ── Wire conversion ──────────────────────────────────────────────────────────

// toCallToolResult renders a Result as the tools/call result payload.
// Failures carry isError and the error kind in _meta.
func toCallToolResult(r mcp.Result) *mcpsdk.CallToolResult {
	out := &mcpsdk.CallToolResult{
		Content: []mcpsdk.Content{&mcpsdk.TextContent{Text: r.Message()}},
	}
	if r.IsError() {
		out.IsError = true
		meta := mcpsdk.Meta{metaErrorKind: string(r.Err.Kind)}
		if r.Err.Param != "" {
			meta[metaParam] = r.Err.Param
		}
		if r.Err.Expected != "" {
			meta[metaExpected] = string(r.Err.Expected)
		}
		out.Meta = meta
		return out
	}
	if r.Structured != nil {
		out.StructuredContent = r.Structured
	}
	return out
}

// toSDKTool renders a descriptor as an MCP tool definition.
func toSDKTool(d mcp.Descriptor) *mcpsdk.Tool {
	return &mcpsdk.Tool{
		Name:        d.Name,
		Description: d.Description,
		InputSchema: d.InputSchema(),
	}
}
