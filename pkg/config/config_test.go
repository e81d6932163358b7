package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/ccollicutt/latlog/pkg/histogram"
)

func TestLoad_ValidConfig(t *testing.T) {
	content := `
name: cluster_a
output_dir: ./out
buckets: [5, 50, 250]
match_window: 5s
stage_threshold_ms: 20
node_pairs:
  - name: n1-n2
    src_ip: 10.0.0.1
    dst_ip: 10.0.0.2
    outgoing_file: /var/log/n1/outgoing.log*
    incoming_file: /var/log/n2/incoming.log*
  - src_ip: 10.0.0.2
    dst_ip: 10.0.0.1
    outgoing_file: /var/log/n2/outgoing.log
    incoming_file: /var/log/n1/incoming.log
`
	path := writeTempFile(t, "config.yaml", content)
	cfg, err := Load(context.Background(), path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Name != "cluster_a" {
		t.Errorf("Name = %q, want cluster_a", cfg.Name)
	}
	if len(cfg.NodePairs) != 2 {
		t.Fatalf("NodePairs = %d, want 2", len(cfg.NodePairs))
	}
	if cfg.NodePairs[1].Name != "10.0.0.2->10.0.0.1" {
		t.Errorf("default pair name = %q, want 10.0.0.2->10.0.0.1", cfg.NodePairs[1].Name)
	}
	if !reflect.DeepEqual(cfg.Buckets, []float64{5, 50, 250}) {
		t.Errorf("Buckets = %v, want [5 50 250]", cfg.Buckets)
	}
	if cfg.MatchWindow != 5*time.Second {
		t.Errorf("MatchWindow = %v, want 5s", cfg.MatchWindow)
	}
	if cfg.StageThresholdMs != 20 {
		t.Errorf("StageThresholdMs = %v, want 20", cfg.StageThresholdMs)
	}
	if cfg.Format != DefaultFormat {
		t.Errorf("Format = %q, want default %q", cfg.Format, DefaultFormat)
	}
	if cfg.TopPairs != DefaultTopPairs {
		t.Errorf("TopPairs = %d, want default %d", cfg.TopPairs, DefaultTopPairs)
	}
}

func TestLoad_JSONConfig(t *testing.T) {
	content := `{
  "nodes": {
    "/logs/node1": {"storage_ip": "192.168.254.31", "management_ip": "10.216.19.31"},
    "/logs/node2": {"storage_ip": "192.168.254.32", "management_ip": "10.216.19.32"}
  }
}`
	path := writeTempFile(t, "network_config.json", content)
	cfg, err := Load(context.Background(), path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if len(cfg.Nodes) != 2 {
		t.Errorf("Nodes = %d, want 2", len(cfg.Nodes))
	}
	if cfg.Nodes["/logs/node1"].StorageIP != "192.168.254.31" {
		t.Errorf("node1 storage_ip = %q", cfg.Nodes["/logs/node1"].StorageIP)
	}
	if cfg.MonitorSource != MonitorSourceHighLatency {
		t.Errorf("MonitorSource = %q, want %q", cfg.MonitorSource, MonitorSourceHighLatency)
	}
	if got := cfg.DailyPacketsPerPair(); got != 576000 {
		t.Errorf("DailyPacketsPerPair() = %d, want 576000", got)
	}
}

func TestLoad_FileNotFound(t *testing.T) {
	_, err := Load(context.Background(), "/nonexistent/config.yaml")
	if err == nil {
		t.Error("Load() expected error for missing file")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	content := `invalid: yaml: content: [`
	path := writeTempFile(t, "invalid.yaml", content)
	_, err := Load(context.Background(), path)
	if err == nil {
		t.Error("Load() expected error for invalid YAML")
	}
}

func TestLoad_EnvironmentOverrides(t *testing.T) {
	t.Setenv(EnvBuckets, "1, 2.5,40")
	t.Setenv(EnvMonitorSource, MonitorSourceNetworkMonitor)

	content := `
nodes:
  /logs/node1:
    storage_ip: 192.168.254.31
    management_ip: 10.216.19.31
`
	path := writeTempFile(t, "config.yaml", content)
	cfg, err := Load(context.Background(), path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if !reflect.DeepEqual(cfg.Buckets, []float64{1, 2.5, 40}) {
		t.Errorf("Buckets = %v, want [1 2.5 40]", cfg.Buckets)
	}
	if cfg.MonitorSource != MonitorSourceNetworkMonitor {
		t.Errorf("MonitorSource = %q, want %q", cfg.MonitorSource, MonitorSourceNetworkMonitor)
	}
}

func TestLoad_InvalidBucketsEnv(t *testing.T) {
	t.Setenv(EnvBuckets, "10,abc")

	path := writeTempFile(t, "config.yaml", validPairYAML)
	if _, err := Load(context.Background(), path); err == nil {
		t.Error("Load() expected error for invalid LATLOG_BUCKETS")
	}
}

const validPairYAML = `
node_pairs:
  - src_ip: 10.0.0.1
    dst_ip: 10.0.0.2
    outgoing_file: out.log
    incoming_file: in.log
`

func validConfig() *Config {
	cfg := DefaultConfig()
	cfg.NodePairs = []NodePairConfig{{
		SrcIP:        "10.0.0.1",
		DstIP:        "10.0.0.2",
		OutgoingFile: "out.log",
		IncomingFile: "in.log",
	}}
	return cfg
}

func TestValidate_NothingToAnalyze(t *testing.T) {
	err := Validate(DefaultConfig())
	if err == nil || !strings.Contains(err.Error(), "nothing to analyze") {
		t.Errorf("Validate() error = %v, want nothing to analyze", err)
	}
}

func TestValidate_NodePairs(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*NodePairConfig)
		wantErr string
	}{
		{"valid", func(p *NodePairConfig) {}, ""},
		{"ipv6", func(p *NodePairConfig) { p.SrcIP = "fd00::1" }, ""},
		{"missing src", func(p *NodePairConfig) { p.SrcIP = "" }, "src_ip is required"},
		{"bad dst", func(p *NodePairConfig) { p.DstIP = "node2" }, "dst_ip: invalid address"},
		{"missing outgoing", func(p *NodePairConfig) { p.OutgoingFile = "" }, "outgoing_file is required"},
		{"missing incoming", func(p *NodePairConfig) { p.IncomingFile = "" }, "incoming_file is required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.modify(&cfg.NodePairs[0])
			err := Validate(cfg)
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() error = %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want %q", err, tt.wantErr)
			}
		})
	}
}

func TestValidate_Buckets(t *testing.T) {
	cfg := validConfig()
	cfg.Buckets = []float64{100, 10}

	err := Validate(cfg)
	if !errors.Is(err, histogram.ErrInvalidEdges) {
		t.Errorf("Validate() error = %v, want ErrInvalidEdges", err)
	}
}

func TestValidate_NegativeValues(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
	}{
		{"match_window", func(c *Config) { c.MatchWindow = -time.Second }},
		{"stage_threshold_ms", func(c *Config) { c.StageThresholdMs = -1 }},
		{"top_pairs", func(c *Config) { c.TopPairs = -1 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.modify(cfg)
			err := Validate(cfg)
			if err == nil || !strings.Contains(err.Error(), tt.name) {
				t.Errorf("Validate() error = %v, want %s error", err, tt.name)
			}
		})
	}
}

func TestValidate_Format(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr bool
	}{
		{"icmp-trace", func(c *Config) { c.Format = "icmp-trace" }, false},
		{"json", func(c *Config) { c.Format = "json" }, false},
		{"empty defaults", func(c *Config) { c.Format = "" }, false},
		{"unknown", func(c *Config) { c.Format = "pcap" }, true},
		{"regex without token", func(c *Config) { c.Format = "regex" }, true},
		{"regex valid", func(c *Config) {
			c.Format = "regex"
			c.TokenPattern = `icmp_seq=(\d+)`
		}, false},
		{"regex token without group", func(c *Config) {
			c.Format = "regex"
			c.TokenPattern = `icmp_seq=\d+`
		}, true},
		{"regex bad timestamp pattern", func(c *Config) {
			c.Format = "regex"
			c.TokenPattern = `seq=(\d+)`
			c.TimestampFormat.Pattern = `[invalid`
		}, true},
		{"regex timestamp without group", func(c *Config) {
			c.Format = "regex"
			c.TokenPattern = `seq=(\d+)`
			c.TimestampFormat.Pattern = `^\d+`
		}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.modify(cfg)
			err := Validate(cfg)
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestCompiledPatterns(t *testing.T) {
	cfg := validConfig()
	cfg.Format = "regex"
	cfg.TokenPattern = `seq=(\d+)`
	cfg.Alerts.VMDevices = map[string]string{"rxx8t": "vnet4"}

	if err := Validate(cfg); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}

	if cfg.TimestampFormat.CompiledPattern() == nil {
		t.Error("CompiledPattern() = nil")
	}
	if re := cfg.CompiledTokenPattern(); re == nil || re.FindStringSubmatch("seq=42")[1] != "42" {
		t.Error("CompiledTokenPattern() did not compile")
	}
	re := cfg.Alerts.CompiledVMPattern()
	if re == nil {
		t.Fatal("CompiledVMPattern() = nil")
	}
	if m := re.FindStringSubmatch("vm next-cpu8mem16-rxx8t high pps"); len(m) < 2 || m[1] != "rxx8t" {
		t.Errorf("vm pattern match = %v, want rxx8t", m)
	}
}

func TestValidate_Monitor(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr bool
	}{
		{"valid", func(c *Config) {}, false},
		{"bad source", func(c *Config) { c.MonitorSource = "syslog" }, true},
		{"zero packets", func(c *Config) { c.PacketsPerTest = 0 }, true},
		{"interval too long", func(c *Config) { c.TestInterval = 2 * time.Minute }, true},
		{"bad storage ip", func(c *Config) {
			c.Nodes["/logs/node1"] = NodeConfig{StorageIP: "x", ManagementIP: "10.216.19.31"}
		}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.Nodes = map[string]NodeConfig{
				"/logs/node1": {StorageIP: "192.168.254.31", ManagementIP: "10.216.19.31"},
			}
			tt.modify(cfg)
			err := Validate(cfg)
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidate_AlertsDefaults(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Alerts = AlertsConfig{VMDevices: map[string]string{"rxx8t": "vnet4"}}

	if err := Validate(cfg); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if !reflect.DeepEqual(cfg.Alerts.Windows, DefaultAlertWindows()) {
		t.Errorf("Windows = %v, want defaults", cfg.Alerts.Windows)
	}
	if cfg.Alerts.VMPattern != DefaultVMPattern {
		t.Errorf("VMPattern = %q, want default", cfg.Alerts.VMPattern)
	}
	if cfg.Alerts.TimeLayout != DefaultAlertTimeLayout {
		t.Errorf("TimeLayout = %q, want default", cfg.Alerts.TimeLayout)
	}
}

func TestValidate_AlertsInvalid(t *testing.T) {
	tests := []struct {
		name   string
		alerts AlertsConfig
	}{
		{"empty device", AlertsConfig{VMDevices: map[string]string{"a": ""}}},
		{"bad window", AlertsConfig{VMDevices: map[string]string{"a": "vnet0"}, Windows: []time.Duration{0}}},
		{"pattern without group", AlertsConfig{VMDevices: map[string]string{"a": "vnet0"}, VMPattern: `next-\w+`}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.Alerts = tt.alerts
			if err := Validate(cfg); err == nil {
				t.Error("Validate() expected error")
			}
		})
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.TimestampFormat.Pattern != DefaultTimestampPattern {
		t.Errorf("Pattern = %q, want default", cfg.TimestampFormat.Pattern)
	}
	if cfg.TimestampFormat.Layout != DefaultTimestampLayout {
		t.Errorf("Layout = %q, want default", cfg.TimestampFormat.Layout)
	}
	if !reflect.DeepEqual(cfg.Buckets, []float64{10, 100, 500}) {
		t.Errorf("Buckets = %v, want [10 100 500]", cfg.Buckets)
	}
	if cfg.StageThresholdMs != 10 {
		t.Errorf("StageThresholdMs = %v, want 10", cfg.StageThresholdMs)
	}
}

func TestParseBuckets(t *testing.T) {
	tests := []struct {
		in      string
		want    []float64
		wantErr bool
	}{
		{"10,100,500", []float64{10, 100, 500}, false},
		{" 0.5 , 2 ", []float64{0.5, 2}, false},
		{"10,,100", []float64{10, 100}, false},
		{"ten", nil, true},
	}

	for _, tt := range tests {
		got, err := ParseBuckets(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseBuckets(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if !tt.wantErr && !reflect.DeepEqual(got, tt.want) {
			t.Errorf("ParseBuckets(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestValidate_Webhook(t *testing.T) {
	tests := []struct {
		name    string
		webhook WebhookConfig
		wantErr bool
	}{
		{"https", WebhookConfig{URL: "https://example.com/hook"}, false},
		{"http", WebhookConfig{URL: "http://localhost:8080/hook"}, false},
		{"missing url", WebhookConfig{}, true},
		{"bad scheme", WebhookConfig{URL: "ftp://example.com"}, true},
		{"no host", WebhookConfig{URL: "https://"}, true},
		{"bad trigger", WebhookConfig{URL: "https://example.com", Trigger: "sometimes"}, true},
		{"always", WebhookConfig{URL: "https://example.com", Trigger: WebhookTriggerAlways}, false},
		{"never", WebhookConfig{URL: "https://example.com", Trigger: WebhookTriggerNever}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			cfg.Webhooks = []WebhookConfig{tt.webhook}
			err := Validate(cfg)
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidate_WebhookDefaults(t *testing.T) {
	cfg := validConfig()
	cfg.Webhooks = []WebhookConfig{{URL: "https://example.com/hook"}}

	if err := Validate(cfg); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if cfg.Webhooks[0].Trigger != WebhookTriggerOnIssues {
		t.Errorf("Trigger = %q, want on_issues", cfg.Webhooks[0].Trigger)
	}
	if cfg.Webhooks[0].Timeout != DefaultWebhookTimeout {
		t.Errorf("Timeout = %v, want %v", cfg.Webhooks[0].Timeout, DefaultWebhookTimeout)
	}
}

func TestExpandEnvVar(t *testing.T) {
	t.Setenv("TEST_WEBHOOK_TOKEN", "secret-value")

	tests := []struct {
		input string
		want  string
	}{
		{"${TEST_WEBHOOK_TOKEN}", "secret-value"},
		{"$TEST_WEBHOOK_TOKEN", "secret-value"},
		{"plain-value", "plain-value"},
		{"", ""},
		{"${NONEXISTENT_VAR}", ""},
	}

	for _, tt := range tests {
		got := expandEnvVar(tt.input)
		if got != tt.want {
			t.Errorf("expandEnvVar(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestLoad_WithWebhooks(t *testing.T) {
	content := validPairYAML + `
webhooks:
  - name: test-webhook
    url: "https://example.com/webhook"
    trigger: on_issues
    timeout: 30s
  - url: "https://backup.example.com/webhook"
    trigger: always
`
	path := writeTempFile(t, "config-with-webhooks.yaml", content)
	cfg, err := Load(context.Background(), path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if len(cfg.Webhooks) != 2 {
		t.Fatalf("Webhooks = %d, want 2", len(cfg.Webhooks))
	}
	if cfg.Webhooks[0].Timeout != 30*time.Second {
		t.Errorf("Webhook[0].Timeout = %v, want 30s", cfg.Webhooks[0].Timeout)
	}
	if cfg.Webhooks[1].Trigger != WebhookTriggerAlways {
		t.Errorf("Webhook[1].Trigger = %v, want %v", cfg.Webhooks[1].Trigger, WebhookTriggerAlways)
	}
}

func writeTempFile(t *testing.T, name, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write temp file: %v", err)
	}
	return path
}
