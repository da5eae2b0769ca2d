// Package tools defines the shared [Tool] type used by all built-in tool
// packages. Each sub-package exports a constructor that returns a slice of
// [Tool] values ready for registration.
package tools

import (
	"fmt"
	"strconv"

	"github.com/MrWong99/mimcp/internal/mcp"
)

// Tool pairs a descriptor with the handler that implements it.
type Tool struct {
	// Descriptor is the advertised name, description and parameter list.
	Descriptor mcp.Descriptor

	// Handler executes the tool with bound arguments. Implementations must
	// be safe for concurrent use, must respect context cancellation and
	// must report every failure through the returned [mcp.Result].
	Handler mcp.Handler
}

// Registrar accepts tool registrations. *registry.Registry satisfies it.
type Registrar interface {
	Register(desc mcp.Descriptor, handler mcp.Handler) error
}

// RegisterAll registers every tool in order, stopping at the first error.
func RegisterAll(r Registrar, ts ...[]Tool) error {
	for _, group := range ts {
		for _, t := range group {
			if err := r.Register(t.Descriptor, t.Handler); err != nil {
				return fmt.Errorf("tools: %w", err)
			}
		}
	}
	return nil
}

// FormatNumber renders f in its shortest round-tripping decimal form, with
// no exponent and no trailing zeros: 2 → "2", 2.5 → "2.5".
func FormatNumber(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
