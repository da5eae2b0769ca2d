// Package httpjson is the outbound HTTP capability handed to lookup tools:
// a context-aware GET that returns a validated JSON body.
//
// Tools depend on the [Getter] interface only, so tests substitute an
// httptest server or a stub. [Client] is the production implementation. It
// guards the upstream with a [resilience.CircuitBreaker] and records request
// counts and latency through [observe.Metrics].
package httpjson

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/tidwall/gjson"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/MrWong99/mimcp/internal/observe"
	"github.com/MrWong99/mimcp/internal/resilience"
)

// Getter performs an HTTP GET and returns the JSON response body.
// Implementations must be safe for concurrent use and honour ctx.
type Getter interface {
	GetJSON(ctx context.Context, url string) ([]byte, error)
}

// ErrInvalidJSON is returned when a 2xx response body is not valid JSON.
var ErrInvalidJSON = errors.New("httpjson: response body is not valid JSON")

// StatusError reports a non-2xx response.
type StatusError struct {
	Code int
	URL  string
}

// Error implements error.
func (e *StatusError) Error() string {
	return fmt.Sprintf("httpjson: GET %s: %d %s", e.URL, e.Code, http.StatusText(e.Code))
}

// IsNotFound reports whether err is a 404 [StatusError].
func IsNotFound(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Code == http.StatusNotFound
}

// countsAgainstUpstream decides which errors trip the breaker. Client-side
// statuses describe the request, not the upstream's health, except for 429.
func countsAgainstUpstream(err error) bool {
	var se *StatusError
	if errors.As(err, &se) {
		return se.Code >= 500 || se.Code == http.StatusTooManyRequests
	}
	// The breaker already ignores errors seen after the caller's ctx is done,
	// so a client timeout here is the upstream's fault.
	return err != nil
}

const defaultMaxBodyBytes = 8 << 20

// Config configures a [Client].
type Config struct {
	// Name labels the breaker in logs and metrics. Default: "httpjson".
	Name string

	// Timeout bounds each request. Default: 10s. Ignored when HTTPClient is
	// supplied.
	Timeout time.Duration

	// Breaker tunes the circuit breaker. Name, IsFailure and OnStateChange
	// are filled in by [New]; a caller-supplied OnStateChange is still called.
	Breaker resilience.CircuitBreakerConfig

	// MaxBodyBytes caps the response body. Default: 8 MiB.
	MaxBodyBytes int64

	// Metrics receives request and breaker metrics. Default:
	// [observe.DefaultMetrics].
	Metrics *observe.Metrics

	// HTTPClient overrides the underlying client.
	HTTPClient *http.Client
}

// Client is the production [Getter].
type Client struct {
	http    *http.Client
	breaker *resilience.CircuitBreaker
	metrics *observe.Metrics
	maxBody int64
}

var _ Getter = (*Client)(nil)

// New creates a [Client] from cfg.
func New(cfg Config) *Client {
	if cfg.Name == "" {
		cfg.Name = "httpjson"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = defaultMaxBodyBytes
	}
	if cfg.Metrics == nil {
		cfg.Metrics = observe.DefaultMetrics()
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	}

	m := cfg.Metrics
	userHook := cfg.Breaker.OnStateChange
	bc := cfg.Breaker
	bc.Name = cfg.Name
	bc.IsFailure = countsAgainstUpstream
	bc.OnStateChange = func(name string, from, to resilience.State) {
		m.RecordBreakerTransition(context.Background(), name, from.String(), to.String())
		if userHook != nil {
			userHook(name, from, to)
		}
	}

	return &Client{
		http:    cfg.HTTPClient,
		breaker: resilience.NewCircuitBreaker(bc),
		metrics: m,
		maxBody: cfg.MaxBodyBytes,
	}
}

// Breaker exposes the client's circuit breaker for readiness checks.
func (c *Client) Breaker() *resilience.CircuitBreaker { return c.breaker }

// CloseIdleConnections releases pooled keep-alive connections.
func (c *Client) CloseIdleConnections() { c.http.CloseIdleConnections() }

// GetJSON implements [Getter].
func (c *Client) GetJSON(ctx context.Context, url string) ([]byte, error) {
	var body []byte
	err := c.breaker.Execute(ctx, func(ctx context.Context) error {
		var err error
		body, err = c.get(ctx, url)
		return err
	})
	if err != nil {
		return nil, err
	}
	return body, nil
}

func (c *Client) get(ctx context.Context, url string) ([]byte, error) {
	ctx, span := observe.StartSpan(ctx, "httpjson.get")
	defer span.End()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("httpjson: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	span.SetAttributes(attribute.String("http.url", url))

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.metrics.RecordOutbound(ctx, req.URL.Host, "error", time.Since(start))
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("httpjson: GET %s: %w", url, err)
	}
	defer resp.Body.Close()

	status := strconv.Itoa(resp.StatusCode)
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		// Drain a little so the connection can be reused.
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		c.metrics.RecordOutbound(ctx, req.URL.Host, status, time.Since(start))
		span.SetStatus(codes.Error, resp.Status)
		return nil, &StatusError{Code: resp.StatusCode, URL: url}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBody+1))
	c.metrics.RecordOutbound(ctx, req.URL.Host, status, time.Since(start))
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("httpjson: read body: %w", err)
	}
	if int64(len(body)) > c.maxBody {
		return nil, fmt.Errorf("httpjson: response body exceeds %d bytes", c.maxBody)
	}
	if !gjson.ValidBytes(body) {
		span.SetStatus(codes.Error, ErrInvalidJSON.Error())
		return nil, ErrInvalidJSON
	}
	return body, nil
}
