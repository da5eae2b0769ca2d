// Package randsrc supplies the uniform random source injected into tools
// that need randomness.
//
// [Shared] is backed by the runtime's automatically seeded generator and is
// safe for concurrent use. [NewSeeded] returns a deterministic source for
// tests; it is also safe for concurrent use.
package randsrc

import (
	"math/rand/v2"
	"sync"
)

// Source draws uniform integers in the half-open range [0, n). Both methods
// panic when n <= 0, matching math/rand/v2.
type Source interface {
	IntN(n int) int
	Uint64N(n uint64) uint64
}

type shared struct{}

func (shared) IntN(n int) int          { return rand.IntN(n) }
func (shared) Uint64N(n uint64) uint64 { return rand.Uint64N(n) }

// Shared returns the process-wide source.
func Shared() Source { return shared{} }

// Locked is a deterministic source guarded by a mutex.
type Locked struct {
	mu sync.Mutex
	r  *rand.Rand
}

// NewSeeded creates a [Locked] source seeded with seed.
func NewSeeded(seed uint64) *Locked {
	return &Locked{r: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
}

// IntN implements [Source].
func (l *Locked) IntN(n int) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.r.IntN(n)
}

// Uint64N implements [Source].
func (l *Locked) Uint64N(n uint64) uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.r.Uint64N(n)
}
