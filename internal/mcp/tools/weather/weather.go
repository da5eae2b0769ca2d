// Package weather provides GetCityWeather, which describes a random weather
// condition for a city. The set of conditions is fixed at startup.
package weather

import (
	"context"
	"slices"

	"github.com/MrWong99/mimcp/internal/mcp"
	"github.com/MrWong99/mimcp/internal/mcp/tools"
	"github.com/MrWong99/mimcp/internal/randsrc"
)

// DefaultChoices are used when no conditions are configured.
var DefaultChoices = []string{"templado", "lluvioso", "tormentoso"}

// Tools returns the weather tools. An empty choices slice selects
// [DefaultChoices]. The slice is copied.
func Tools(choices []string, src randsrc.Source) []tools.Tool {
	if len(choices) == 0 {
		choices = DefaultChoices
	}
	choices = slices.Clone(choices)

	return []tools.Tool{
		{
			Descriptor: mcp.Descriptor{
				Name:        "GetCityWeather",
				Description: "Describe el clima aleatorio en la ciudad proporcionada.",
				Parameters: []mcp.Parameter{
					{Name: "city", Type: mcp.TypeString, Description: "Nombre de la ciudad para la que devolver el clima", Required: true},
				},
			},
			Handler: func(_ context.Context, args mcp.Args) mcp.Result {
				choice := choices[src.IntN(len(choices))]
				return mcp.Textf("El clima en %s es %s.", args.String("city"), choice)
			},
		},
	}
}
