// Package countries provides lookup tools backed by the REST Countries v3.1
// API: GetCapital, GetCountriesByRegion and GetCapitalsByRegion.
//
// All network access goes through the injected [httpjson.Getter]. Three
// failure shapes are kept apart in the returned messages: no match (the API
// answered 404 or an empty list), a missing field in an otherwise valid
// record, and an error reaching the API.
package countries

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/tidwall/gjson"
	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/mimcp/internal/httpjson"
	"github.com/MrWong99/mimcp/internal/mcp"
	"github.com/MrWong99/mimcp/internal/mcp/tools"
)

// DefaultBaseURL is the public REST Countries endpoint.
const DefaultBaseURL = "https://restcountries.com/v3.1"

const (
	defaultCapitalConcurrency = 4
	noCapital                 = "Capital no disponible"
	regionParamDesc           = "Región (e.g., Europe, Asia, Africa, Americas, Oceania)"
)

// errUnexpectedShape is reported when the API answers with JSON that is not
// a list of country records.
var errUnexpectedShape = errors.New("respuesta inesperada: se esperaba una lista de países")

// Config configures the country tools.
type Config struct {
	// BaseURL is the API root without trailing slash. Default: [DefaultBaseURL].
	BaseURL string

	// CapitalConcurrency bounds the per-country follow-up requests made by
	// GetCapitalsByRegion. Default: 4.
	CapitalConcurrency int
}

// CapitalEntry is one line of the GetCapitalsByRegion structured payload.
type CapitalEntry struct {
	Country string `json:"country"`
	Capital string `json:"capital"`
}

type lookup struct {
	get  httpjson.Getter
	base string
	conc int
}

// Tools returns the country lookup tools using get for all requests.
func Tools(get httpjson.Getter, cfg Config) []tools.Tool {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.CapitalConcurrency <= 0 {
		cfg.CapitalConcurrency = defaultCapitalConcurrency
	}
	l := &lookup{get: get, base: strings.TrimRight(cfg.BaseURL, "/"), conc: cfg.CapitalConcurrency}

	return []tools.Tool{
		{
			Descriptor: mcp.Descriptor{
				Name:        "GetCapital",
				Description: "Obtiene la capital de un país especificado.",
				Parameters: []mcp.Parameter{
					{Name: "countryName", Type: mcp.TypeString, Description: "Nombre del país en inglés", Required: true},
				},
			},
			Handler: l.capital,
		},
		{
			Descriptor: mcp.Descriptor{
				Name:        "GetCountriesByRegion",
				Description: "Lista los países de una región específica.",
				Parameters: []mcp.Parameter{
					{Name: "region", Type: mcp.TypeString, Description: regionParamDesc, Required: true},
				},
			},
			Handler: l.countriesByRegion,
		},
		{
			Descriptor: mcp.Descriptor{
				Name:        "GetCapitalsByRegion",
				Description: "Obtiene las capitales de los países en una región específica.",
				Parameters: []mcp.Parameter{
					{Name: "region", Type: mcp.TypeString, Description: regionParamDesc, Required: true},
				},
			},
			Handler: l.capitalsByRegion,
		},
	}
}

// ── Requests ─────────────────────────────────────────────────────────────────

func (l *lookup) nameURL(name string) string {
	return l.base + "/name/" + url.PathEscape(name) + "?fields=name,capital"
}

func (l *lookup) regionURL(region string) string {
	return l.base + "/region/" + url.PathEscape(region) + "?fields=name,capital"
}

// fetchList GETs u and returns the country records. A 404 yields an empty
// list, matching what the API means by it.
func (l *lookup) fetchList(ctx context.Context, u string) ([]gjson.Result, error) {
	body, err := l.get.GetJSON(ctx, u)
	if httpjson.IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	doc := gjson.ParseBytes(body)
	if !doc.IsArray() {
		return nil, errUnexpectedShape
	}
	return doc.Array(), nil
}

func apiError(err error) mcp.Result {
	return mcp.Failf("Error al consultar la API: %w", err)
}

// commonName returns name.common when it is a non-empty string.
func commonName(rec gjson.Result) (string, bool) {
	n := rec.Get("name.common")
	if n.Type != gjson.String || n.Str == "" {
		return "", false
	}
	return n.Str, true
}

func firstCapital(rec gjson.Result) string {
	c := rec.Get("capital.0")
	if c.Type != gjson.String {
		return ""
	}
	return c.Str
}

// ── Handlers ─────────────────────────────────────────────────────────────────

func (l *lookup) capital(ctx context.Context, args mcp.Args) mcp.Result {
	name := args.String("countryName")
	recs, err := l.fetchList(ctx, l.nameURL(name))
	if err != nil {
		return apiError(err)
	}
	if len(recs) == 0 {
		return mcp.Failf("No se encontró información para el país '%s'.", name)
	}

	country, ok := commonName(recs[0])
	if !ok {
		return mcp.Failf("No se pudo obtener el nombre del país '%s'.", name)
	}
	capital := firstCapital(recs[0])
	if capital == "" {
		capital = noCapital
	}
	return mcp.Result{
		Text:       fmt.Sprintf("La capital de %s es %s.", country, capital),
		Structured: CapitalEntry{Country: country, Capital: capital},
	}
}

func (l *lookup) countriesByRegion(ctx context.Context, args mcp.Args) mcp.Result {
	region := args.String("region")
	recs, err := l.fetchList(ctx, l.regionURL(region))
	if err != nil {
		return apiError(err)
	}

	if len(recs) == 0 {
		return mcp.Failf("No se encontraron países en la región '%s'.", region)
	}

	// Records without a common name are skipped, which may leave the list empty.
	names := make([]string, 0, len(recs))
	for _, rec := range recs {
		if n, ok := commonName(rec); ok {
			names = append(names, n)
		}
	}
	return mcp.Result{
		Text:       fmt.Sprintf("Países en %s: %s", region, strings.Join(names, ", ")),
		Structured: map[string]any{"region": region, "countries": names},
	}
}

func (l *lookup) capitalsByRegion(ctx context.Context, args mcp.Args) mcp.Result {
	region := args.String("region")
	recs, err := l.fetchList(ctx, l.regionURL(region))
	if err != nil {
		return apiError(err)
	}
	if len(recs) == 0 {
		return mcp.Failf("No se encontraron países en la región '%s'.", region)
	}

	entries := make([]CapitalEntry, 0, len(recs))
	for _, rec := range recs {
		if n, ok := commonName(rec); ok {
			entries = append(entries, CapitalEntry{Country: n, Capital: firstCapital(rec)})
		}
	}
	if err := l.fillCapitals(ctx, entries); err != nil {
		return apiError(err)
	}

	lines := make([]string, 0, len(entries))
	found := make([]CapitalEntry, 0, len(entries))
	for _, e := range entries {
		if e.Capital == "" {
			continue
		}
		found = append(found, e)
		lines = append(lines, e.Country+": "+e.Capital)
	}
	if len(found) == 0 {
		return mcp.Failf("No se pudieron obtener capitales para la región '%s'.", region)
	}
	return mcp.Result{
		Text:       fmt.Sprintf("Capitales en %s:\n%s", region, strings.Join(lines, "\n")),
		Structured: map[string]any{"region": region, "capitals": found},
	}
}

// fillCapitals looks up, by country name, every entry whose region record
// carried no capital. Individual lookups that fail leave the entry empty;
// only cancellation of ctx aborts the whole fill.
func (l *lookup) fillCapitals(ctx context.Context, entries []CapitalEntry) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(l.conc)
	for i := range entries {
		if entries[i].Capital != "" {
			continue
		}
		g.Go(func() error {
			recs, err := l.fetchList(gctx, l.nameURL(entries[i].Country)+"&fullText=true")
			if err != nil {
				if ctxErr := gctx.Err(); ctxErr != nil {
					return ctxErr
				}
				return nil
			}
			if len(recs) > 0 {
				entries[i].Capital = firstCapital(recs[0])
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}
