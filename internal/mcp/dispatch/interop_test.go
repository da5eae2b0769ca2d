package dispatch

import (
	"context"
	"io"
	"testing"
	"time"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"go.opentelemetry.io/otel/metric/noop"

	"github.com/MrWong99/mimcp/internal/mcp"
	"github.com/MrWong99/mimcp/internal/mcp/registry"
	"github.com/MrWong99/mimcp/internal/mcp/transport"
	"github.com/MrWong99/mimcp/internal/observe"
)

// TestSDKClientInterop drives a session with the official MCP Go SDK client
// over in-memory pipes, exercising the real newline framing end to end.
func TestSDKClientInterop(t *testing.T) {
	t.Parallel()

	reg := registry.New()
	reg.MustRegister(mcp.Descriptor{
		Name:        "Saludar",
		Description: "Devuelve un saludo.",
		Parameters: []mcp.Parameter{
			{Name: "nombre", Type: mcp.TypeString, Required: true, Description: "A quién saludar"},
			{Name: "veces", Type: mcp.TypeInteger, Default: 1},
		},
	}, func(_ context.Context, a mcp.Args) mcp.Result {
		return mcp.Textf("Hola, %s (%d)", a.String("nombre"), a.Int("veces"))
	})
	reg.MustRegister(mcp.Descriptor{Name: "Dividir"}, func(context.Context, mcp.Args) mcp.Result {
		return mcp.Fail("No se puede dividir por cero.")
	})

	metrics, err := observe.NewMetrics(noop.NewMeterProvider())
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	d := New(reg, Options{Name: "mimcp", Version: "test", Metrics: metrics})

	clientR, serverW := io.Pipe()
	serverR, clientW := io.Pipe()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	served := make(chan error, 1)
	go func() { served <- d.Serve(ctx, transport.NewStream(serverR, serverW)) }()

	client := mcpsdk.NewClient(&mcpsdk.Implementation{Name: "interop", Version: "0.0.1"}, nil)
	cs, err := client.Connect(ctx, &mcpsdk.IOTransport{Reader: clientR, Writer: clientW}, nil)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}

	list, err := cs.ListTools(ctx, nil)
	if err != nil {
		t.Fatalf("ListTools: %v", err)
	}
	if len(list.Tools) != 2 || list.Tools[0].Name != "Saludar" || list.Tools[1].Name != "Dividir" {
		t.Fatalf("ListTools = %+v, want [Saludar Dividir]", list.Tools)
	}

	res, err := cs.CallTool(ctx, &mcpsdk.CallToolParams{
		Name:      "Saludar",
		Arguments: map[string]any{"nombre": "Ana"},
	})
	if err != nil {
		t.Fatalf("CallTool(Saludar): %v", err)
	}
	if res.IsError {
		t.Fatalf("CallTool(Saludar) IsError = true: %+v", res)
	}
	if text := res.Content[0].(*mcpsdk.TextContent).Text; text != "Hola, Ana (1)" {
		t.Errorf("Saludar text = %q, want %q", text, "Hola, Ana (1)")
	}

	res, err = cs.CallTool(ctx, &mcpsdk.CallToolParams{Name: "Dividir"})
	if err != nil {
		t.Fatalf("CallTool(Dividir): %v", err)
	}
	if !res.IsError {
		t.Error("CallTool(Dividir) IsError = false, want true")
	}
	if kind := res.Meta[metaErrorKind]; kind != string(mcp.KindToolExecution) {
		t.Errorf("_meta.errorKind = %v, want %s", kind, mcp.KindToolExecution)
	}

	res, err = cs.CallTool(ctx, &mcpsdk.CallToolParams{Name: "NoExiste"})
	if err != nil {
		t.Fatalf("CallTool(NoExiste): %v", err)
	}
	if !res.IsError || res.Meta[metaErrorKind] != string(mcp.KindUnknownTool) {
		t.Errorf("CallTool(NoExiste) = %+v, want UnknownTool failure", res)
	}

	if err := cs.Ping(ctx, nil); err != nil {
		t.Errorf("Ping: %v", err)
	}

	_ = cs.Close()
	select {
	case err := <-served:
		if err != nil {
			t.Errorf("Serve() = %v, want nil after client close", err)
		}
	case <-ctx.Done():
		t.Fatal("Serve did not return after client closed")
	}
}
