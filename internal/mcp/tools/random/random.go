// Package random provides the GetRandomNumber tool.
//
// Draws come from an injected [randsrc.Source]; production wiring passes
// [randsrc.Shared], which is safe for concurrent use.
package random

import (
	"context"

	"github.com/MrWong99/mimcp/internal/mcp"
	"github.com/MrWong99/mimcp/internal/mcp/tools"
	"github.com/MrWong99/mimcp/internal/randsrc"
)

const (
	defaultMin = 0
	defaultMax = 100
)

type numberArgs struct {
	Min int64 `arg:"min"`
	Max int64 `arg:"max"`
}

// Tools returns the random-number tools drawing from src.
func Tools(src randsrc.Source) []tools.Tool {
	return []tools.Tool{
		{
			Descriptor: mcp.Descriptor{
				Name:        "GetRandomNumber",
				Description: "Genera un número aleatorio entre los valores mínimo y máximo especificados.",
				Parameters: []mcp.Parameter{
					{Name: "min", Type: mcp.TypeInteger, Description: "Valor mínimo (inclusivo)", Default: defaultMin},
					{Name: "max", Type: mcp.TypeInteger, Description: "Valor máximo (exclusivo)", Default: defaultMax},
				},
			},
			Handler: numberHandler(src),
		},
	}
}

// numberHandler draws uniformly from [min, max).
func numberHandler(src randsrc.Source) mcp.Handler {
	return func(_ context.Context, args mcp.Args) mcp.Result {
		var a numberArgs
		if err := args.Decode(&a); err != nil {
			return mcp.FailWith(err)
		}
		if a.Min >= a.Max {
			return mcp.Failf("El rango está vacío: min (%d) debe ser menor que max (%d).", a.Min, a.Max)
		}
		// The span of any non-empty int64 range fits in a uint64.
		span := uint64(a.Max) - uint64(a.Min)
		return mcp.Textf("Número aleatorio generado: %d", a.Min+int64(src.Uint64N(span)))
	}
}
