package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/MrWong99/mimcp/internal/config"
)

func TestToolsCommand_PrintsCatalogue(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetArgs([]string{"tools", "--config", filepath.Join(t.TempDir(), "absent.yaml")})
	if err := root.Execute(); err != nil {
		t.Fatalf("Execute() = %v", err)
	}

	var got struct {
		Tools []struct {
			Name        string         `json:"name"`
			InputSchema map[string]any `json:"inputSchema"`
		} `json:"tools"`
	}
	if err := json.Unmarshal(out.Bytes(), &got); err != nil {
		t.Fatalf("decode output: %v\n%s", err, out.String())
	}
	if len(got.Tools) != 9 {
		t.Fatalf("tools = %d, want 9", len(got.Tools))
	}
	if got.Tools[0].Name != "GetRandomNumber" {
		t.Errorf("first tool = %q, want GetRandomNumber", got.Tools[0].Name)
	}
	for _, tool := range got.Tools {
		if tool.InputSchema["type"] != "object" {
			t.Errorf("%s inputSchema.type = %v, want object", tool.Name, tool.InputSchema["type"])
		}
	}
}

func TestToolsCommand_InvalidConfig(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "mimcp.yaml")
	if err := os.WriteFile(path, []byte("server:\n  max_in_flight: 0\n"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	root := newRootCmd()
	root.SetOut(&bytes.Buffer{})
	root.SetArgs([]string{"tools", "--config", path})
	err := root.Execute()
	if err == nil || !strings.Contains(err.Error(), "server.max_in_flight") {
		t.Fatalf("Execute() = %v, want max_in_flight validation error", err)
	}
}

func TestServeCommand_RejectsArgs(t *testing.T) {
	t.Parallel()

	root := newRootCmd()
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"serve", "extra"})
	if err := root.Execute(); err == nil {
		t.Fatal("Execute() = nil, want argument error")
	}
}

func TestTelemetryConfig(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		listen      string
		traces      config.TraceSink
		wantOK      bool
		wantMetrics bool
		wantTraces  bool
	}{
		{name: "defaults", traces: config.TracesNone},
		{name: "admin only", listen: "127.0.0.1:9464", traces: config.TracesNone, wantOK: true, wantMetrics: true},
		{name: "traces only", traces: config.TracesLog, wantOK: true, wantTraces: true},
		{name: "both", listen: "127.0.0.1:9464", traces: config.TracesLog, wantOK: true, wantMetrics: true, wantTraces: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := config.Default()
			cfg.Server.Version = "9.9.9"
			cfg.Observability.ListenAddr = tt.listen
			cfg.Observability.Traces = tt.traces

			pc, ok := telemetryConfig(cfg)
			if ok != tt.wantOK {
				t.Errorf("ok = %v, want %v", ok, tt.wantOK)
			}
			if pc.PrometheusMetrics != tt.wantMetrics {
				t.Errorf("PrometheusMetrics = %v, want %v", pc.PrometheusMetrics, tt.wantMetrics)
			}
			if got := pc.TraceExporter != nil; got != tt.wantTraces {
				t.Errorf("TraceExporter set = %v, want %v", got, tt.wantTraces)
			}
			if pc.ServiceName != "mimcp" || pc.ServiceVersion != "9.9.9" {
				t.Errorf("resource = %s/%s, want mimcp/9.9.9", pc.ServiceName, pc.ServiceVersion)
			}
		})
	}
}
