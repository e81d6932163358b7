package commands

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"

	"github.com/ccollicutt/latlog/pkg/config"
)

func writeTestFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("Failed to create dir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write %s: %v", name, err)
	}
	return path
}

// executeCommand runs cmd with args and returns what it wrote to stdout.
func executeCommand(t *testing.T, cmd *cobra.Command, args ...string) (string, error) {
	t.Helper()
	var buf bytes.Buffer
	cmd.SetOut(&buf)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return buf.String(), err
}

// jsonSample renders a JSON probe sample ms milliseconds after 14:00 UTC.
func jsonSample(token string, ms int) string {
	ts := time.Date(2025, 6, 10, 14, 0, 0, 0, time.UTC).Add(time.Duration(ms) * time.Millisecond)
	return fmt.Sprintf(`{"ts": %q, "token": %q}`, ts.Format(time.RFC3339Nano), token)
}

func lines(l ...string) string {
	return strings.Join(l, "\n") + "\n"
}

func TestNewMatchCommand(t *testing.T) {
	cmd := NewMatchCommand(&GlobalOptions{})

	if cmd.Use != "match" {
		t.Errorf("Unexpected Use: %s", cmd.Use)
	}

	flags := []string{
		"config", "src-ip", "dst-ip", "outgoing", "incoming", "name",
		"format", "buckets", "window", "top", "pair", "plot", "fail-on-issues",
		"output", "output-dir", "metrics-file", "verbose", "quiet",
		"webhook-url", "webhook-token", "webhook-trigger",
	}
	for _, flag := range flags {
		if cmd.Flags().Lookup(flag) == nil {
			t.Errorf("Missing flag: %s", flag)
		}
	}
}

func TestNewMonitorCommand(t *testing.T) {
	cmd := NewMonitorCommand(&GlobalOptions{})

	if cmd.Use != "monitor <config-file>" {
		t.Errorf("Unexpected Use: %s", cmd.Use)
	}
	for _, flag := range []string{"source", "output", "output-dir", "metrics-file"} {
		if cmd.Flags().Lookup(flag) == nil {
			t.Errorf("Missing flag: %s", flag)
		}
	}
}

func TestNewAlertsCommand(t *testing.T) {
	cmd := NewAlertsCommand(&GlobalOptions{})

	if cmd.Use != "alerts" {
		t.Errorf("Unexpected Use: %s", cmd.Use)
	}
	for _, flag := range []string{"alerts", "pps", "config", "csv", "device", "window"} {
		if cmd.Flags().Lookup(flag) == nil {
			t.Errorf("Missing flag: %s", flag)
		}
	}
}

func TestNewValidateCommand(t *testing.T) {
	cmd := NewValidateCommand()

	if cmd.Use != "validate <config-file>" {
		t.Errorf("Unexpected Use: %s", cmd.Use)
	}

	if !strings.Contains(cmd.Long, "Validate") {
		t.Error("Missing description in Long")
	}
}

func TestVersionCommand(t *testing.T) {
	old := Version
	Version = "1.2.3"
	defer func() { Version = old }()

	out, err := executeCommand(t, NewVersionCommand())
	if err != nil {
		t.Fatalf("version failed: %v", err)
	}
	if out != "latlog 1.2.3\n" {
		t.Errorf("version output = %q", out)
	}
}

func TestGlobalOptions_Logger(t *testing.T) {
	var nilOpts *GlobalOptions
	if l, err := nilOpts.Logger(); err != nil || l == nil {
		t.Errorf("nil options Logger() = %v, %v", l, err)
	}

	if _, err := (&GlobalOptions{LogLevel: "info", LogFormat: "json"}).Logger(); err != nil {
		t.Errorf("Logger() error = %v", err)
	}
	if _, err := (&GlobalOptions{LogLevel: "loud"}).Logger(); err == nil {
		t.Error("Logger() expected error for unknown level")
	}
	if _, err := (&GlobalOptions{LogFormat: "xml"}).Logger(); err == nil {
		t.Error("Logger() expected error for unknown format")
	}
}

func TestRunValidate_Success(t *testing.T) {
	tmpDir := t.TempDir()
	out := writeTestFile(t, tmpDir, "out.log", "x\n")
	writeTestFile(t, tmpDir, "in.log", "x\n")

	configPath := writeTestFile(t, tmpDir, "config.yaml", `name: lab
format: json
node_pairs:
  - name: n1-n2
    src_ip: 10.0.0.1
    dst_ip: 10.0.0.2
    outgoing_file: `+out+`
    incoming_file: `+filepath.Join(tmpDir, "missing-*.log")+`
nodes:
  `+filepath.Join(tmpDir, "node1")+`:
    storage_ip: 192.168.254.1
    management_ip: 10.0.1.1
`)

	output, err := executeCommand(t, NewValidateCommand(), configPath)
	if err != nil {
		t.Fatalf("Validate failed: %v", err)
	}

	checks := []string{
		"Configuration valid!",
		"Name:       lab",
		"Node pairs: 1",
		"1. n1-n2 (10.0.0.1 -> 10.0.0.2)",
		"outgoing: 1 file(s)",
		"Warning: incoming: no files match",
		"Warning: directory not found",
	}
	for _, check := range checks {
		if !strings.Contains(output, check) {
			t.Errorf("Output missing %q:\n%s", check, output)
		}
	}
}

func TestRunValidate_InvalidConfig(t *testing.T) {
	tmpDir := t.TempDir()

	tests := map[string]string{
		"bad yaml":      "invalid: yaml: content",
		"nothing":       "name: empty\n",
		"bad bucket":    "buckets: [100, 10]\nalerts:\n  vm_devices:\n    a: tap0\n",
		"bad pair addr": "node_pairs:\n  - src_ip: nope\n    dst_ip: 10.0.0.2\n    outgoing_file: a\n    incoming_file: b\n",
	}
	for name, content := range tests {
		t.Run(name, func(t *testing.T) {
			configPath := writeTestFile(t, tmpDir, strings.ReplaceAll(name, " ", "_")+".yaml", content)
			if _, err := executeCommand(t, NewValidateCommand(), configPath); err == nil {
				t.Error("Expected error for invalid config")
			}
		})
	}
}

func TestRunValidate_MissingFile(t *testing.T) {
	if _, err := executeCommand(t, NewValidateCommand(), "/nonexistent/config.yaml"); err == nil {
		t.Error("Expected error for missing file")
	}
}

func TestCollectWebhooks(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Webhooks = []config.WebhookConfig{{Name: "ops", URL: "https://ops.example.com/hook"}}

	opts := &ReportOptions{WebhookURL: "https://example.com/hook", WebhookToken: "secret"}
	hooks := collectWebhooks(cfg, opts)
	if len(hooks) != 2 {
		t.Fatalf("collectWebhooks() = %d hooks, want 2", len(hooks))
	}
	cli := hooks[1]
	if cli.Name != "cli" || cli.Token != "secret" || cli.Trigger != config.WebhookTriggerOnIssues || cli.Timeout == 0 {
		t.Errorf("cli hook = %+v", cli)
	}

	if hooks := collectWebhooks(cfg, &ReportOptions{}); len(hooks) != 1 {
		t.Errorf("collectWebhooks() without flag = %d hooks, want 1", len(hooks))
	}
}
