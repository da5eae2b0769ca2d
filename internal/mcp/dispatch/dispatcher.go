// Package dispatch implements the MCP request/response loop.
//
// A [Dispatcher] owns one protocol session per [Dispatcher.Serve] call. It
// reads newline-delimited JSON-RPC frames from a [transport.Conn], answers
// the MCP lifecycle methods (initialize, ping, tools/list) itself, and routes
// tools/call through the [mcp.Catalog], the argument binder and the tool
// handler. Every request receives exactly one response correlated by its id;
// notifications receive none.
//
// Session lifecycle:
//
//	Initializing     → only initialize and ping are accepted
//	AwaitingRequest  → a frame arrives from the reader goroutine
//	Binding          → resolve the tool and bind its arguments
//	Invoking         → run the handler, recovering panics
//	Responding       → write the single response frame
//
// Failures of any kind are converted into a response: protocol violations
// become JSON-RPC errors, tool-level failures become results with isError
// set. The only fatal condition is a transport write failure while answering
// initialize. The session ends cleanly when the transport reports EOF or ctx
// is cancelled; either cancels the context of in-flight requests so pending
// outbound I/O is abandoned.
//
// By default one request is processed at a time. [Options.MaxInFlight]
// raises the bound; writes to the transport are serialised regardless.
package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/tidwall/gjson"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/semaphore"

	"github.com/MrWong99/mimcp/internal/mcp"
	"github.com/MrWong99/mimcp/internal/mcp/transport"
	"github.com/MrWong99/mimcp/internal/observe"
)

// Recorder receives one measurement per tool invocation. The registry
// implements it to maintain per-tool rolling windows.
type Recorder interface {
	Record(tool string, latency time.Duration, isError bool)
}

// Options configures a [Dispatcher]. The zero value is usable.
type Options struct {
	// Name and Version are reported as serverInfo in the initialize result.
	Name    string
	Version string

	// Instructions is an optional hint returned from initialize.
	Instructions string

	// MaxInFlight bounds concurrently processed requests. Values below 1
	// mean 1, which processes requests strictly one after another.
	MaxInFlight int

	// Metrics receives RPC and tool metrics. Defaults to
	// [observe.DefaultMetrics].
	Metrics *observe.Metrics

	// Recorder, when set, is fed every tool invocation.
	Recorder Recorder
}

// Dispatcher serves MCP sessions over a [transport.Conn].
//
// A Dispatcher may serve several sessions one after another; the tool
// catalog is shared and read-only.
type Dispatcher struct {
	catalog mcp.Catalog
	opts    Options
	metrics *observe.Metrics

	active atomic.Int32
}

// New returns a Dispatcher routing tools/call to catalog.
func New(catalog mcp.Catalog, opts Options) *Dispatcher {
	if opts.Name == "" {
		opts.Name = "mimcp"
	}
	if opts.Version == "" {
		opts.Version = "dev"
	}
	if opts.MaxInFlight < 1 {
		opts.MaxInFlight = 1
	}
	m := opts.Metrics
	if m == nil {
		m = observe.DefaultMetrics()
	}
	return &Dispatcher{catalog: catalog, opts: opts, metrics: m}
}

// Running reports whether at least one session is being served.
func (d *Dispatcher) Running() bool { return d.active.Load() > 0 }

// ErrInitializeWrite is wrapped by the error Serve returns when the
// initialize response could not be written.
var ErrInitializeWrite = errors.New("dispatch: failed to answer initialize")

// Serve runs one session on conn until the peer closes its side or ctx is
// cancelled, in which case it returns nil. It returns an error wrapping
// [ErrInitializeWrite] when the initialize response cannot be delivered, or
// the read error when the transport fails for any reason other than EOF.
// conn is closed before Serve returns.
func (d *Dispatcher) Serve(ctx context.Context, conn transport.Conn) error {
	sessionID := uuid.NewString()
	base := observe.WithSession(ctx, sessionID)

	// ctx is cancelled on transport EOF as well as by the caller; request
	// contexts derive from it. The main loop itself only stops for the
	// caller, so frames read before EOF are still answered.
	ctx, cancel := context.WithCancel(base)
	defer cancel()

	s := &session{
		d:        d,
		id:       sessionID,
		conn:     conn,
		sem:      semaphore.NewWeighted(int64(d.opts.MaxInFlight)),
		inflight: make(map[string]*inflight),
	}

	d.active.Add(1)
	d.metrics.ActiveSessions.Add(ctx, 1)
	defer func() {
		d.active.Add(-1)
		d.metrics.ActiveSessions.Add(context.WithoutCancel(ctx), -1)
	}()

	log := observe.Logger(ctx)
	log.Info("session started", "max_in_flight", d.opts.MaxInFlight)

	frames := make(chan inbound)
	readErr := make(chan error, 1)
	go s.readLoop(ctx, cancel, frames, readErr)

	err := s.loop(base, frames)

	// Stop accepting work, abandon in-flight requests, and wait for their
	// responses to be written or dropped.
	cancel()
	s.wg.Wait()
	_ = conn.Close()

	if err == nil {
		select {
		case err = <-readErr:
		default:
		}
	}
	if err != nil {
		log.Error("session ended with error", "err", err)
		return err
	}
	log.Info("session ended")
	return nil
}

// ── Session ──────────────────────────────────────────────────────────────────

// inbound is one decoded frame handed from the reader to the main loop.
type inbound struct {
	req      *request
	flight   *inflight
	received time.Time

	// errResp is set when the frame failed to decode; it is written as is.
	errResp *response
}

// inflight tracks one request that may be cancelled by the client.
type inflight struct {
	ctx    context.Context
	cancel context.CancelFunc

	// byClient is set when notifications/cancelled targeted this request,
	// in which case no response is sent.
	byClient atomic.Bool
}

type session struct {
	d    *Dispatcher
	id   string
	conn transport.Conn

	sem *semaphore.Weighted
	wg  sync.WaitGroup

	initialized atomic.Bool
	clientReady atomic.Bool

	mu       sync.Mutex
	inflight map[string]*inflight
}

// readLoop decodes frames and forwards them to the main loop. Cancellation
// notifications are applied here so they take effect while the main loop is
// blocked waiting for a free slot.
func (s *session) readLoop(ctx context.Context, cancel context.CancelFunc, out chan<- inbound, errc chan<- error) {
	defer close(out)
	defer cancel()

	for {
		frame, err := s.conn.ReadFrame()
		if err != nil {
			switch {
			case errors.Is(err, transport.ErrFrameTooLarge):
				if !s.forward(ctx, out, inbound{errResp: errorResponse(nullID, CodeParseError, "parse error: "+err.Error())}) {
					return
				}
				continue
			case isClosed(err):
				observe.Logger(ctx).Debug("transport closed by peer")
			default:
				errc <- fmt.Errorf("dispatch: read frame: %w", err)
			}
			return
		}

		in := s.decode(ctx, frame)
		if in.req != nil && in.req.Method == methodCancelled && in.req.isNotification() {
			s.cancelRequest(ctx, in.req.Params)
			continue
		}
		if !s.forward(ctx, out, in) {
			if in.flight != nil {
				in.flight.cancel()
			}
			return
		}
	}
}

func (s *session) forward(ctx context.Context, out chan<- inbound, in inbound) bool {
	select {
	case out <- in:
		return true
	case <-ctx.Done():
		return false
	}
}

func isClosed(err error) bool {
	return errors.Is(err, io.EOF) || errors.Is(err, io.ErrClosedPipe) || errors.Is(err, os.ErrClosed)
}

// decode parses one frame. Requests that carry an id get a cancellable
// context registered before the frame reaches the main loop.
func (s *session) decode(ctx context.Context, frame []byte) inbound {
	in := inbound{received: time.Now()}

	trimmed := bytes.TrimSpace(frame)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		in.errResp = errorResponse(nullID, CodeInvalidRequest, "batch requests are not supported")
		return in
	}
	if !gjson.ValidBytes(trimmed) {
		in.errResp = errorResponse(nullID, CodeParseError, "parse error: invalid JSON")
		return in
	}

	var req request
	if err := json.Unmarshal(trimmed, &req); err != nil {
		id := nullID
		if v := gjson.GetBytes(trimmed, "id"); v.Exists() && (v.Type == gjson.String || v.Type == gjson.Number) {
			id = json.RawMessage(v.Raw)
		}
		in.errResp = errorResponse(id, CodeInvalidRequest, "invalid request: "+err.Error())
		return in
	}
	if err := req.validate(); err != nil {
		id := req.ID
		if !validID(id) {
			id = nullID
		}
		in.errResp = errorResponse(id, CodeInvalidRequest, "invalid request: "+err.Error())
		return in
	}
	in.req = &req

	if !req.isNotification() {
		fctx, fcancel := context.WithCancel(ctx)
		in.flight = &inflight{ctx: fctx, cancel: fcancel}
		s.mu.Lock()
		s.inflight[idKey(req.ID)] = in.flight
		s.mu.Unlock()
	}
	return in
}

// cancelRequest applies a notifications/cancelled message.
func (s *session) cancelRequest(ctx context.Context, raw json.RawMessage) {
	var p cancelledParams
	if err := json.Unmarshal(raw, &p); err != nil || len(p.RequestID) == 0 {
		observe.Logger(ctx).Debug("ignoring malformed cancellation", "params", string(raw))
		return
	}
	s.mu.Lock()
	f, ok := s.inflight[idKey(p.RequestID)]
	s.mu.Unlock()
	if !ok {
		return
	}
	f.byClient.Store(true)
	f.cancel()
	observe.Logger(ctx).Debug("request cancelled by client", "id", string(p.RequestID), "reason", p.Reason)
}

func (s *session) release(id json.RawMessage, f *inflight) {
	f.cancel()
	key := idKey(id)
	s.mu.Lock()
	if s.inflight[key] == f {
		delete(s.inflight, key)
	}
	s.mu.Unlock()
}

// loop is the main dispatch loop. It returns nil when frames is closed or
// ctx is done, and an error only when initialize cannot be answered. ctx is
// the caller's context, not the session context cancelled on EOF.
func (s *session) loop(ctx context.Context, frames <-chan inbound) error {
	for {
		var in inbound
		var ok bool
		select {
		case in, ok = <-frames:
			if !ok {
				return nil
			}
		case <-ctx.Done():
			return nil
		}

		if in.errResp != nil {
			s.d.metrics.RecordRPCError(ctx, in.errResp.Error.Code)
			_ = s.write(ctx, in.errResp)
			continue
		}

		req := in.req
		if req.isNotification() {
			s.notify(ctx, req)
			continue
		}

		// initialize runs inline: its outcome gates the whole session.
		if req.Method == methodInitialize {
			err := s.initialize(in)
			s.release(req.ID, in.flight)
			if err != nil {
				return err
			}
			continue
		}

		if err := s.sem.Acquire(ctx, 1); err != nil {
			s.release(req.ID, in.flight)
			return nil
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer s.sem.Release(1)
			defer s.release(req.ID, in.flight)
			s.handle(in)
		}()
	}
}

// notify handles a notification. Unknown notifications are ignored.
func (s *session) notify(ctx context.Context, req *request) {
	switch req.Method {
	case methodInitialized:
		s.clientReady.Store(true)
		observe.Logger(ctx).Debug("client initialized")
	default:
		observe.Logger(ctx).Debug("ignoring notification", "method", req.Method)
	}
}

// initialize answers the initialize request. A write failure is returned;
// everything else is reported to the client.
func (s *session) initialize(in inbound) error {
	ctx, span := observe.StartSpan(in.flight.ctx, "mcp "+methodInitialize,
		trace.WithSpanKind(trace.SpanKindServer))
	defer span.End()
	req := in.req

	if s.initialized.Load() {
		resp := errorResponse(req.ID, CodeInvalidRequest, "session already initialized")
		_ = s.finish(ctx, span, req, in.received, resp)
		return nil
	}

	var params mcpsdk.InitializeParams
	if len(req.Params) > 0 {
		if err := json.Unmarshal(req.Params, &params); err != nil {
			resp := errorResponse(req.ID, CodeInvalidParams, "invalid initialize params: "+err.Error())
			_ = s.finish(ctx, span, req, in.received, resp)
			return nil
		}
	}

	version := negotiateVersion(params.ProtocolVersion)
	result := &mcpsdk.InitializeResult{
		ProtocolVersion: version,
		Capabilities: &mcpsdk.ServerCapabilities{
			Tools: &mcpsdk.ToolCapabilities{ListChanged: false},
		},
		ServerInfo: &mcpsdk.Implementation{
			Name:    s.d.opts.Name,
			Version: s.d.opts.Version,
		},
		Instructions: s.d.opts.Instructions,
	}

	client := ""
	if params.ClientInfo != nil {
		client = params.ClientInfo.Name + "/" + params.ClientInfo.Version
	}
	span.SetAttributes(
		attribute.String("mcp.protocol_version", version),
		attribute.String("mcp.client", client),
	)

	if err := s.finish(ctx, span, req, in.received, resultResponse(req.ID, result)); err != nil {
		return fmt.Errorf("%w: %w", ErrInitializeWrite, err)
	}
	s.initialized.Store(true)
	observe.Logger(ctx).Info("session initialized",
		"client", client,
		"requested_version", params.ProtocolVersion,
		"protocol_version", version,
		"tools", len(s.d.catalog.List()),
	)
	return nil
}

// handle processes one request other than initialize.
func (s *session) handle(in inbound) {
	req := in.req
	ctx, span := observe.StartSpan(in.flight.ctx, "mcp "+req.Method,
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(attribute.String("rpc.jsonrpc.request_id", string(req.ID))),
	)
	defer span.End()

	s.d.metrics.InFlight.Add(ctx, 1)
	defer s.d.metrics.InFlight.Add(context.WithoutCancel(ctx), -1)

	var resp *response
	switch req.Method {
	case methodPing:
		resp = resultResponse(req.ID, struct{}{})

	case methodToolsList:
		if !s.initialized.Load() {
			resp = errorResponse(req.ID, CodeInvalidRequest, "session not initialized")
			break
		}
		resp = resultResponse(req.ID, s.listTools())

	case methodToolsCall:
		if !s.initialized.Load() {
			resp = errorResponse(req.ID, CodeInvalidRequest, "session not initialized")
			break
		}
		var p callParams
		if err := json.Unmarshal(orEmpty(req.Params), &p); err != nil {
			resp = errorResponse(req.ID, CodeInvalidParams, "invalid tools/call params: "+err.Error())
			break
		}
		if p.Name == "" {
			resp = errorResponse(req.ID, CodeInvalidParams, "invalid tools/call params: name is required")
			break
		}
		args, err := decodeArguments(p.Arguments)
		if err != nil {
			resp = errorResponse(req.ID, CodeInvalidParams, "invalid tools/call params: "+err.Error())
			break
		}
		span.SetAttributes(attribute.String("mcp.tool", p.Name))
		res := s.callTool(ctx, span, p.Name, args)
		resp = resultResponse(req.ID, toCallToolResult(res))

	default:
		resp = errorResponse(req.ID, CodeMethodNotFound, "method not found: "+req.Method)
	}

	if in.flight.byClient.Load() {
		span.AddEvent("dropped", trace.WithAttributes(attribute.String("reason", "cancelled by client")))
		observe.Logger(ctx).Debug("response suppressed for cancelled request", "id", string(req.ID))
		return
	}
	_ = s.finish(ctx, span, req, in.received, resp)
}

// finish writes resp and records the request outcome.
func (s *session) finish(ctx context.Context, span trace.Span, req *request, received time.Time, resp *response) error {
	span.AddEvent("responding")
	isErr := resp.Error != nil
	if isErr {
		span.SetStatus(codes.Error, resp.Error.Message)
		s.d.metrics.RecordRPCError(ctx, resp.Error.Code)
		observe.Logger(ctx).Warn("request rejected",
			"method", req.Method, "id", string(req.ID),
			"code", resp.Error.Code, "err", resp.Error.Message)
	}
	err := s.write(ctx, resp)
	s.d.metrics.RecordRPC(ctx, req.Method, time.Since(received), isErr || err != nil)
	return err
}

// write marshals and sends one response frame. Failures are logged and
// returned.
func (s *session) write(ctx context.Context, resp *response) error {
	b, err := json.Marshal(resp)
	if err != nil {
		// A tool returned an unmarshalable structured payload; answer with
		// an internal error instead so the id still gets a response.
		observe.Logger(ctx).Error("marshal response", "id", string(resp.ID), "err", err)
		b, err = json.Marshal(errorResponse(resp.ID, CodeInternalError, "internal error: "+err.Error()))
		if err != nil {
			return err
		}
	}
	if err := s.conn.WriteFrame(b); err != nil {
		observe.Logger(ctx).Error("write response", "id", string(resp.ID), "err", err)
		return err
	}
	return nil
}

func (s *session) listTools() *mcpsdk.ListToolsResult { return ListTools(s.d.catalog) }

// ListTools builds the tools/list result for catalog, in registration order.
func ListTools(catalog mcp.Catalog) *mcpsdk.ListToolsResult {
	descs := catalog.List()
	out := &mcpsdk.ListToolsResult{Tools: make([]*mcpsdk.Tool, 0, len(descs))}
	for _, d := range descs {
		out.Tools = append(out.Tools, toSDKTool(d))
	}
	return out
}

func resultResponse(id json.RawMessage, result any) *response {
	return &response{JSONRPC: jsonrpcVersion, ID: id, Result: result}
}

func errorResponse(id json.RawMessage, code int, msg string) *response {
	return &response{JSONRPC: jsonrpcVersion, ID: id, Error: &rpcError{Code: code, Message: msg}}
}

func orEmpty(raw json.RawMessage) json.RawMessage {
	if len(bytes.TrimSpace(raw)) == 0 {
		return json.RawMessage("{}")
	}
	return raw
}
