// Package text provides text analysis tools.
package text

import (
	"context"
	"fmt"
	"strings"

	"github.com/MrWong99/mimcp/internal/mcp"
	"github.com/MrWong99/mimcp/internal/mcp/tools"
)

// Tools returns the text tools.
func Tools() []tools.Tool {
	return []tools.Tool{
		{
			Descriptor: mcp.Descriptor{
				Name:        "ContarPalabras",
				Description: "Cuenta el número de palabras en un texto proporcionado.",
				Parameters: []mcp.Parameter{
					{Name: "texto", Type: mcp.TypeString, Description: "Texto del que contar las palabras", Required: true},
				},
			},
			Handler: contarPalabras,
		},
	}
}

func contarPalabras(_ context.Context, args mcp.Args) mcp.Result {
	texto := args.String("texto")
	if strings.TrimSpace(texto) == "" {
		return mcp.Result{
			Text:       "El texto está vacío o solo contiene espacios (0 palabras).",
			Structured: map[string]int{"palabras": 0},
		}
	}

	n := CountWords(texto)
	plural := "s"
	if n == 1 {
		plural = ""
	}
	return mcp.Result{
		Text:       fmt.Sprintf("El texto contiene %d palabra%s.", n, plural),
		Structured: map[string]int{"palabras": n},
	}
}

// CountWords counts the runs of characters between spaces, tabs, carriage
// returns and line feeds.
func CountWords(s string) int {
	return len(strings.FieldsFunc(s, func(r rune) bool {
		return r == ' ' || r == '\t' || r == '\n' || r == '\r'
	}))
}
