// Package security provides the GenerarContrasena password generator.
package security

import (
	"context"

	"github.com/MrWong99/mimcp/internal/mcp"
	"github.com/MrWong99/mimcp/internal/mcp/tools"
	"github.com/MrWong99/mimcp/internal/randsrc"
)

// Charset is the alphabet passwords are drawn from.
const Charset = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789!@#$%^&*"

const (
	defaultLength = 8

	// MaxLength bounds a single password.
	MaxLength = 4096
)

// Tools returns the security tools drawing from src.
func Tools(src randsrc.Source) []tools.Tool {
	return []tools.Tool{
		{
			Descriptor: mcp.Descriptor{
				Name:        "GenerarContrasena",
				Description: "Genera una contraseña aleatoria de longitud especificada.",
				Parameters: []mcp.Parameter{
					{Name: "longitud", Type: mcp.TypeInteger, Description: "Longitud de la contraseña", Default: defaultLength},
				},
			},
			Handler: func(_ context.Context, args mcp.Args) mcp.Result {
				n := args.Int("longitud")
				switch {
				case n < 0:
					return mcp.Failf("La longitud de la contraseña no puede ser negativa (%d).", n)
				case n > MaxLength:
					return mcp.Failf("La longitud de la contraseña no puede superar %d caracteres.", MaxLength)
				}
				return mcp.Text(Generate(src, int(n)))
			},
		},
	}
}

// Generate draws n characters uniformly from [Charset].
func Generate(src randsrc.Source, n int) string {
	out := make([]byte, n)
	for i := range out {
		out[i] = Charset[src.IntN(len(Charset))]
	}
	return string(out)
}
