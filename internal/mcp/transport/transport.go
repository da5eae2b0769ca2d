// Package transport carries newline-delimited JSON-RPC frames between the
// dispatcher and the client.
//
// The MCP stdio transport sends exactly one JSON message per line and
// forbids embedded newlines. [Stream] implements that framing over any
// reader/writer pair; [Stdio] binds it to the process's stdin and stdout.
// Diagnostics must never be written to a Conn.
package transport

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
)

// maxFrameSize bounds a single incoming line.
const maxFrameSize = 16 << 20

// ErrFrameTooLarge is returned by ReadFrame when a line exceeds the limit.
var ErrFrameTooLarge = errors.New("transport: frame exceeds maximum size")

// Conn is a bidirectional frame channel.
//
// ReadFrame is called from a single goroutine. WriteFrame may be called
// concurrently; implementations serialise writes so frames never interleave.
type Conn interface {
	// ReadFrame blocks until the next frame arrives. It returns io.EOF once
	// the peer has closed its side.
	ReadFrame() ([]byte, error)

	// WriteFrame sends one frame. The frame must not contain a newline.
	WriteFrame(frame []byte) error

	// Close releases the underlying streams.
	Close() error
}

// Stream is a [Conn] over a reader and a writer.
type Stream struct {
	r *bufio.Reader
	w io.Writer

	wmu sync.Mutex

	closeOnce sync.Once
	closers   []io.Closer
}

// Compile-time check: Stream must implement Conn.
var _ Conn = (*Stream)(nil)

// NewStream returns a Stream reading frames from r and writing frames to w.
// If r or w implement io.Closer they are closed by [Stream.Close].
func NewStream(r io.Reader, w io.Writer) *Stream {
	s := &Stream{r: bufio.NewReaderSize(r, 64<<10), w: w}
	if c, ok := r.(io.Closer); ok {
		s.closers = append(s.closers, c)
	}
	if c, ok := w.(io.Closer); ok {
		s.closers = append(s.closers, c)
	}
	return s
}

// Stdio returns a Stream over os.Stdin and os.Stdout. The standard streams
// are left open on Close.
func Stdio() *Stream {
	return &Stream{r: bufio.NewReaderSize(os.Stdin, 64<<10), w: os.Stdout}
}

// ReadFrame returns the next non-blank line without its terminator. A final
// line without a trailing newline is still returned before io.EOF.
func (s *Stream) ReadFrame() ([]byte, error) {
	for {
		line, err := s.readLine()
		line = bytes.TrimRight(line, "\r\n")
		if len(bytes.TrimSpace(line)) > 0 {
			return line, nil
		}
		if err != nil {
			return nil, err
		}
	}
}

func (s *Stream) readLine() ([]byte, error) {
	var buf []byte
	for {
		chunk, isPrefix, err := s.r.ReadLine()
		buf = append(buf, chunk...)
		if len(buf) > maxFrameSize {
			// Drain the rest of the oversized line. A read error, EOF
			// included, surfaces on the next call.
			for isPrefix && err == nil {
				_, isPrefix, err = s.r.ReadLine()
			}
			return nil, ErrFrameTooLarge
		}
		if err != nil || !isPrefix {
			return buf, err
		}
	}
}

// WriteFrame writes frame followed by a newline as one write call.
func (s *Stream) WriteFrame(frame []byte) error {
	if bytes.IndexByte(frame, '\n') >= 0 {
		return fmt.Errorf("transport: frame contains a newline")
	}
	out := make([]byte, 0, len(frame)+1)
	out = append(append(out, frame...), '\n')

	s.wmu.Lock()
	defer s.wmu.Unlock()
	if _, err := s.w.Write(out); err != nil {
		return fmt.Errorf("transport: write frame: %w", err)
	}
	return nil
}

// Close closes the underlying streams that support it. It is idempotent.
func (s *Stream) Close() error {
	var errs []error
	s.closeOnce.Do(func() {
		for _, c := range s.closers {
			if err := c.Close(); err != nil {
				errs = append(errs, err)
			}
		}
	})
	return errors.Join(errs...)
}
