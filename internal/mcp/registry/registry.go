// Package registry provides the concrete [mcp.Catalog] used by the server.
//
// A [Registry] is assembled once at startup from an explicit list of
// compiled-in tools and is read-only afterwards. Listing preserves
// registration order, which is also the order advertised to the client in
// the tools/list response.
//
// Typical usage:
//
//	r := registry.New()
//	for _, t := range calc.Tools() {
//	    if err := r.Register(t.Descriptor, t.Handler); err != nil {
//	        return err // startup-fatal
//	    }
//	}
//
//	reg, err := r.Resolve("Calcular")
//
// Besides the mapping itself, each entry owns a rolling window of recent
// call latencies and outcomes. The dispatcher feeds it through [Registry.Record]
// and the admin surface reads it through [Registry.Stats].
package registry

import (
	"fmt"
	"strings"
	"time"

	"github.com/antzucaro/matchr"
	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/MrWong99/mimcp/internal/mcp"
)

// defaultWindowSize is the capacity of each tool's rolling window.
const defaultWindowSize = 100

// suggestThreshold is the minimum Jaro-Winkler similarity for a registered
// name to be offered as a "did you mean" hint.
const suggestThreshold = 0.8

// entry holds a registration together with its runtime measurements.
type entry struct {
	reg          mcp.Registration
	measurements *rollingWindow
}

// Registry is the ordered, name-addressable set of registered tools.
//
// Register must only be called during startup. Once the registry has been
// handed to the dispatcher, all methods are safe for concurrent use because
// the mapping is never mutated again; the per-tool windows carry their own
// locks.
type Registry struct {
	tools *orderedmap.OrderedMap[string, entry]
}

// Compile-time check: Registry must implement mcp.Catalog.
var _ mcp.Catalog = (*Registry)(nil)

// New returns an empty registry.
func New() *Registry {
	return &Registry{tools: orderedmap.New[string, entry]()}
}

// Register adds a tool. It fails when the descriptor is invalid, the handler
// is nil, or a tool with the same name is already present. Any such error is
// a programming mistake and should abort startup.
func (r *Registry) Register(desc mcp.Descriptor, handler mcp.Handler) error {
	if err := desc.Validate(); err != nil {
		return fmt.Errorf("registry: invalid descriptor: %w", err)
	}
	if handler == nil {
		return fmt.Errorf("registry: tool %q must have a non-nil handler", desc.Name)
	}
	if _, dup := r.tools.Get(desc.Name); dup {
		return fmt.Errorf("registry: tool %q is already registered", desc.Name)
	}

	r.tools.Set(desc.Name, entry{
		reg:          mcp.Registration{Descriptor: desc, Handler: handler},
		measurements: newRollingWindow(defaultWindowSize),
	})
	return nil
}

// MustRegister is like [Registry.Register] but panics on error. It is meant
// for static tool lists whose validity is covered by tests.
func (r *Registry) MustRegister(desc mcp.Descriptor, handler mcp.Handler) {
	if err := r.Register(desc, handler); err != nil {
		panic(err)
	}
}

// Len returns the number of registered tools.
func (r *Registry) Len() int { return r.tools.Len() }

// List returns every descriptor in registration order.
func (r *Registry) List() []mcp.Descriptor {
	out := make([]mcp.Descriptor, 0, r.tools.Len())
	for pair := r.tools.Oldest(); pair != nil; pair = pair.Next() {
		out = append(out, pair.Value.reg.Descriptor)
	}
	return out
}

// Resolve returns the registration for name using an exact, case-sensitive
// match. A miss yields a *mcp.ToolError of kind [mcp.KindUnknownTool] whose
// message names the closest registered tool, if any is close enough.
func (r *Registry) Resolve(name string) (mcp.Registration, error) {
	if e, ok := r.tools.Get(name); ok {
		return e.reg, nil
	}
	err := mcp.UnknownToolError(name)
	if s := r.Suggest(name); s != "" {
		err.Message = fmt.Sprintf("%s; did you mean %q?", err.Message, s)
	}
	return mcp.Registration{}, err
}

// Suggest returns the registered name most similar to name, compared
// case-insensitively with Jaro-Winkler similarity. It returns "" when no
// registered name reaches the similarity threshold.
func (r *Registry) Suggest(name string) string {
	needle := strings.ToLower(name)
	if needle == "" {
		return ""
	}

	best, bestScore := "", 0.0
	for pair := r.tools.Oldest(); pair != nil; pair = pair.Next() {
		score := matchr.JaroWinkler(needle, strings.ToLower(pair.Key), false)
		if score > bestScore {
			best, bestScore = pair.Key, score
		}
	}
	if bestScore < suggestThreshold {
		return ""
	}
	return best
}

// Record adds one invocation measurement for the named tool. Unknown names
// are ignored.
func (r *Registry) Record(name string, latency time.Duration, isError bool) {
	if e, ok := r.tools.Get(name); ok {
		e.measurements.Record(latency.Milliseconds(), isError)
	}
}

// ToolStats is a point-in-time view of one tool's rolling window.
type ToolStats struct {
	Name      string  `json:"name"`
	Calls     int     `json:"calls"`
	P50Ms     int64   `json:"p50_ms"`
	P99Ms     int64   `json:"p99_ms"`
	ErrorRate float64 `json:"error_rate"`
}

// Stats returns the measurements of every tool in registration order.
func (r *Registry) Stats() []ToolStats {
	out := make([]ToolStats, 0, r.tools.Len())
	for pair := r.tools.Oldest(); pair != nil; pair = pair.Next() {
		w := pair.Value.measurements
		out = append(out, ToolStats{
			Name:      pair.Key,
			Calls:     w.Count(),
			P50Ms:     w.P50(),
			P99Ms:     w.P99(),
			ErrorRate: w.ErrorRate(),
		})
	}
	return out
}
