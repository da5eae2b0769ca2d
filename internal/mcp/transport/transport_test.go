package transport

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
)

func TestReadFrame(t *testing.T) {
	t.Parallel()

	in := "{\"a\":1}\n\n   \r\n{\"b\":2}\r\n{\"c\":3}"
	s := NewStream(strings.NewReader(in), io.Discard)

	var got []string
	for {
		f, err := s.ReadFrame()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			t.Fatalf("ReadFrame: %v", err)
		}
		got = append(got, string(f))
	}

	want := []string{`{"a":1}`, `{"b":2}`, `{"c":3}`}
	if strings.Join(got, "|") != strings.Join(want, "|") {
		t.Errorf("frames = %q, want %q", got, want)
	}
}

func TestReadFrameLongLine(t *testing.T) {
	t.Parallel()

	long := `{"text":"` + strings.Repeat("x", 200_000) + `"}`
	s := NewStream(strings.NewReader(long+"\n"), io.Discard)

	f, err := s.ReadFrame()
	if err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}
	if len(f) != len(long) {
		t.Errorf("len(frame) = %d, want %d", len(f), len(long))
	}
}

func TestWriteFrame(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	s := NewStream(strings.NewReader(""), &buf)

	if err := s.WriteFrame([]byte(`{"id":1}`)); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}
	if got := buf.String(); got != "{\"id\":1}\n" {
		t.Errorf("output = %q", got)
	}
	if err := s.WriteFrame([]byte("{\n}")); err == nil {
		t.Error("WriteFrame with embedded newline: want error")
	}
}

// TestWriteFrameConcurrent verifies that concurrent writers never interleave
// bytes within a frame.
func TestWriteFrameConcurrent(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	s := NewStream(strings.NewReader(""), &buf)

	frame := []byte(`{"payload":"` + strings.Repeat("y", 4096) + `"}`)
	var wg sync.WaitGroup
	for range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := s.WriteFrame(frame); err != nil {
				t.Errorf("WriteFrame: %v", err)
			}
		}()
	}
	wg.Wait()

	lines := strings.Split(strings.TrimSuffix(buf.String(), "\n"), "\n")
	if len(lines) != 16 {
		t.Fatalf("got %d lines, want 16", len(lines))
	}
	for i, l := range lines {
		if l != string(frame) {
			t.Fatalf("line %d corrupted", i)
		}
	}
}

type closeRecorder struct {
	io.Reader
	closed int
}

func (c *closeRecorder) Close() error {
	c.closed++
	return nil
}

func TestCloseIdempotent(t *testing.T) {
	t.Parallel()

	r := &closeRecorder{Reader: strings.NewReader("")}
	s := NewStream(r, io.Discard)
	_ = s.Close()
	_ = s.Close()
	if r.closed != 1 {
		t.Errorf("closed = %d, want 1", r.closed)
	}
}

func TestReadFrameTooLarge(t *testing.T) {
	t.Parallel()

	huge := strings.Repeat("z", maxFrameSize+1)
	tests := []struct {
		name  string
		input string
		after []string
	}{
		{name: "followed by a frame", input: huge + "\n" + `{"ok":1}` + "\n", after: []string{`{"ok":1}`}},
		{name: "final line without newline", input: huge},
		{name: "final line with newline", input: huge + "\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			s := NewStream(strings.NewReader(tt.input), io.Discard)

			if _, err := s.ReadFrame(); !errors.Is(err, ErrFrameTooLarge) {
				t.Fatalf("first ReadFrame() err = %v, want ErrFrameTooLarge", err)
			}
			for _, want := range tt.after {
				f, err := s.ReadFrame()
				if err != nil {
					t.Fatalf("ReadFrame: %v", err)
				}
				if string(f) != want {
					t.Errorf("frame = %q, want %q", f, want)
				}
			}
			if _, err := s.ReadFrame(); !errors.Is(err, io.EOF) {
				t.Errorf("last ReadFrame() err = %v, want io.EOF", err)
			}
		})
	}
}
