// Package mcp defines the core model of the mimcp tool server.
//
// A tool is described by a [Descriptor] (name, description and an ordered
// list of [Parameter] values) and implemented by a [Handler]. The pair is a
// [Registration]; the set of registrations known to a process is exposed to
// the dispatcher through the [Catalog] interface.
//
// Lifecycle:
//
//  1. At startup, every compiled-in tool is registered with a catalog
//     implementation (see package registry).
//  2. The dispatcher advertises [Catalog.List] to the client once the
//     session is initialised.
//  3. For each invocation the dispatcher calls [Catalog.Resolve], binds the
//     raw wire arguments into [Args] and calls the [Handler].
//
// Handlers never write to the transport or the diagnostic log. Their only
// observable effects are the returned [Result] and calls made through
// capabilities injected at construction time.
package mcp

import "context"

// Handler executes a tool with bound, typed arguments.
//
// A Handler reports failure through the returned [Result] rather than by
// panicking. The dispatcher still recovers panics and converts them to a
// [KindToolExecution] failure so a misbehaving tool cannot end the session.
// Implementations must be safe for concurrent use and should respect ctx
// cancellation for any outbound I/O.
type Handler func(ctx context.Context, args Args) Result

// Registration pairs a tool descriptor with its implementation.
// Registrations are immutable once handed to a [Catalog].
type Registration struct {
	// Descriptor is the metadata advertised to the client.
	Descriptor Descriptor

	// Handler is invoked when the client calls the tool.
	Handler Handler
}

// Catalog is the read-only view of registered tools used by the dispatcher.
//
// Implementations must be safe for concurrent reads. They are never mutated
// after startup, so no locking is required by callers.
type Catalog interface {
	// List returns every registered descriptor in registration order.
	List() []Descriptor

	// Resolve returns the registration for name. Lookup is an exact,
	// case-sensitive match. When no tool matches, the returned error is a
	// *ToolError of kind [KindUnknownTool].
	Resolve(name string) (Registration, error)
}
