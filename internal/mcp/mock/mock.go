// Package mock provides a scripted, in-memory test double for
// [transport.Conn].
//
// [Conn] lets a test play the client side of a session: frames queued with
// [Conn.Send] are returned by ReadFrame in order, and everything the
// dispatcher writes can be awaited with [Conn.Next]. It is safe for
// concurrent use.
//
// Typical usage:
//
//	c := mock.NewConn()
//	c.Send(`{"jsonrpc":"2.0","id":1,"method":"initialize","params":{}}`)
//
//	go d.Serve(ctx, c)
//
//	resp, err := c.Next(time.Second)
//	// inspect resp …
//
//	c.CloseInput() // ReadFrame now reports io.EOF once the queue drains
package mock

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/MrWong99/mimcp/internal/mcp/transport"
)

// ErrTimeout is returned by [Conn.Next] when no frame is written in time.
var ErrTimeout = errors.New("mock: timed out waiting for frame")

// Conn is a configurable test double for [transport.Conn].
type Conn struct {
	in  chan []byte
	out chan []byte

	mu        sync.Mutex
	written   [][]byte
	inClosed  bool
	closed    bool
	closeOnce sync.Once
	done      chan struct{}

	// WriteErr, when non-nil, is returned by every WriteFrame call and the
	// frame is discarded.
	WriteErr error
}

// Compile-time check: Conn must implement transport.Conn.
var _ transport.Conn = (*Conn)(nil)

// NewConn returns an open Conn with empty queues.
func NewConn() *Conn {
	return &Conn{
		in:   make(chan []byte, 256),
		out:  make(chan []byte, 256),
		done: make(chan struct{}),
	}
}

// Send queues one incoming frame. v may be a string, a []byte or any value
// that is marshalled to JSON. Send panics when called after CloseInput.
func (c *Conn) Send(v any) {
	var frame []byte
	switch x := v.(type) {
	case string:
		frame = []byte(x)
	case []byte:
		frame = x
	default:
		b, err := json.Marshal(x)
		if err != nil {
			panic(fmt.Sprintf("mock: marshal frame: %v", err))
		}
		frame = b
	}
	c.in <- frame
}

// CloseInput signals end of input. ReadFrame returns io.EOF once every
// previously queued frame has been consumed.
func (c *Conn) CloseInput() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.inClosed {
		c.inClosed = true
		close(c.in)
	}
}

// ReadFrame implements [transport.Conn].
func (c *Conn) ReadFrame() ([]byte, error) {
	select {
	case f, ok := <-c.in:
		if !ok {
			return nil, io.EOF
		}
		return f, nil
	case <-c.done:
		return nil, io.EOF
	}
}

// WriteFrame implements [transport.Conn].
func (c *Conn) WriteFrame(frame []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.WriteErr != nil {
		return c.WriteErr
	}
	if c.closed {
		return io.ErrClosedPipe
	}
	cp := append([]byte(nil), frame...)
	c.written = append(c.written, cp)
	select {
	case c.out <- cp:
	default:
		// Nobody is draining Next; the frame stays available via Written.
	}
	return nil
}

// Close implements [transport.Conn].
func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		c.mu.Unlock()
		close(c.done)
	})
	return nil
}

// Next waits up to timeout for the next frame written by the system under
// test.
func (c *Conn) Next(timeout time.Duration) ([]byte, error) {
	select {
	case f := <-c.out:
		return f, nil
	case <-time.After(timeout):
		return nil, ErrTimeout
	}
}

// NextJSON is like [Conn.Next] but decodes the frame into a generic map.
func (c *Conn) NextJSON(timeout time.Duration) (map[string]any, error) {
	f, err := c.Next(timeout)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(f, &m); err != nil {
		return nil, fmt.Errorf("mock: decode frame %s: %w", f, err)
	}
	return m, nil
}

// Written returns a copy of every frame written so far, in order.
func (c *Conn) Written() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([][]byte, len(c.written))
	copy(out, c.written)
	return out
}

// Closed reports whether Close has been called.
func (c *Conn) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}
