package security

import (
	"context"
	"strings"
	"testing"

	"github.com/MrWong99/mimcp/internal/mcp"
	"github.com/MrWong99/mimcp/internal/mcp/binder"
	"github.com/MrWong99/mimcp/internal/randsrc"
)

func bindAndCall(t *testing.T, raw map[string]any) mcp.Result {
	t.Helper()
	tool := Tools(randsrc.NewSeeded(3))[0]
	args, err := binder.Bind(tool.Descriptor.Parameters, raw)
	if err != nil {
		t.Fatalf("Bind: %v", err)
	}
	return tool.Handler(context.Background(), args)
}

func TestGenerarContrasena_Lengths(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		raw  map[string]any
		want int
	}{
		{"default", map[string]any{}, 8},
		{"explicit", map[string]any{"longitud": 16}, 16},
		{"zero", map[string]any{"longitud": 0}, 0},
		{"numeric string", map[string]any{"longitud": "12"}, 12},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			res := bindAndCall(t, tt.raw)
			if res.IsError() {
				t.Fatalf("unexpected failure: %s", res.Message())
			}
			if len(res.Text) != tt.want {
				t.Errorf("len = %d, want %d (%q)", len(res.Text), tt.want, res.Text)
			}
			for _, r := range res.Text {
				if !strings.ContainsRune(Charset, r) {
					t.Errorf("character %q not in charset", r)
				}
			}
		})
	}
}

func TestGenerarContrasena_Invalid(t *testing.T) {
	t.Parallel()

	for _, n := range []int{-1, MaxLength + 1} {
		res := bindAndCall(t, map[string]any{"longitud": n})
		if !res.IsError() {
			t.Errorf("longitud=%d: result = %q, want failure", n, res.Text)
		}
	}
}

func TestGenerate_UsesWholeCharset(t *testing.T) {
	t.Parallel()

	seen := make(map[byte]bool)
	pw := Generate(randsrc.NewSeeded(11), 20000)
	for i := range len(pw) {
		seen[pw[i]] = true
	}
	if len(seen) != len(Charset) {
		t.Errorf("saw %d distinct characters, want %d", len(seen), len(Charset))
	}
}
