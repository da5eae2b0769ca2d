// Package calc provides the Calcular tool: one arithmetic operation between
// two numbers.
package calc

import (
	"context"
	"strings"

	"github.com/MrWong99/mimcp/internal/mcp"
	"github.com/MrWong99/mimcp/internal/mcp/tools"
)

const usage = "Use: suma, resta, multiplicacion, division."

type calcArgs struct {
	Num1      float64 `arg:"num1"`
	Num2      float64 `arg:"num2"`
	Operacion string  `arg:"operacion"`
}

// Tools returns the arithmetic tools.
func Tools() []tools.Tool {
	return []tools.Tool{
		{
			Descriptor: mcp.Descriptor{
				Name:        "Calcular",
				Description: "Realiza operaciones matemáticas básicas entre dos números.",
				Parameters: []mcp.Parameter{
					{Name: "num1", Type: mcp.TypeNumber, Description: "Primer número", Required: true},
					{Name: "num2", Type: mcp.TypeNumber, Description: "Segundo número", Required: true},
					{Name: "operacion", Type: mcp.TypeString, Description: "Operación a realizar: suma, resta, multiplicacion, division", Required: true},
				},
			},
			Handler: calcular,
		},
	}
}

func calcular(_ context.Context, args mcp.Args) mcp.Result {
	var a calcArgs
	if err := args.Decode(&a); err != nil {
		return mcp.FailWith(err)
	}
	if strings.TrimSpace(a.Operacion) == "" {
		return mcp.Fail("La operación no puede estar vacía. " + usage)
	}

	op := strings.ToLower(a.Operacion)
	var res float64
	switch op {
	case "suma":
		res = a.Num1 + a.Num2
	case "resta":
		res = a.Num1 - a.Num2
	case "multiplicacion":
		res = a.Num1 * a.Num2
	case "division":
		if a.Num2 == 0 {
			return mcp.Fail("No se puede dividir por cero.")
		}
		res = a.Num1 / a.Num2
	default:
		return mcp.Fail("Operación no válida. " + usage)
	}

	return mcp.Textf("El resultado de %s %s %s es %s",
		tools.FormatNumber(a.Num1), op, tools.FormatNumber(a.Num2), tools.FormatNumber(res))
}
