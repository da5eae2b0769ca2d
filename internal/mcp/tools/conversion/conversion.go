// Package conversion provides unit conversion tools.
package conversion

import (
	"context"
	"fmt"
	"math"

	"github.com/MrWong99/mimcp/internal/mcp"
	"github.com/MrWong99/mimcp/internal/mcp/tools"
)

// Tools returns the conversion tools.
func Tools() []tools.Tool {
	return []tools.Tool{
		{
			Descriptor: mcp.Descriptor{
				Name:        "ConvertirTemperatura",
				Description: "Convierte temperatura de Celsius a Fahrenheit.",
				Parameters: []mcp.Parameter{
					{Name: "celsius", Type: mcp.TypeNumber, Description: "Temperatura en grados Celsius", Required: true},
				},
			},
			Handler: convertirTemperatura,
		},
	}
}

func convertirTemperatura(_ context.Context, args mcp.Args) mcp.Result {
	c := args.Float("celsius")
	f := CelsiusToFahrenheit(c)
	if math.IsInf(f, 0) {
		return mcp.Failf("La temperatura %s está fuera de rango.", tools.FormatNumber(c))
	}
	return mcp.Result{
		Text: fmt.Sprintf("%s grados Celsius equivalen a %s grados Fahrenheit.",
			tools.FormatNumber(c), tools.FormatNumber(f)),
		Structured: map[string]float64{
			"celsius":    c,
			"fahrenheit": f,
		},
	}
}

// CelsiusToFahrenheit applies F = C·9/5 + 32.
func CelsiusToFahrenheit(c float64) float64 {
	return c*9/5 + 32
}
