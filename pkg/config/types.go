// Package config provides configuration loading and validation for latlog.
package config

import (
	"fmt"
	"regexp"
	"time"
)

// Config is the root configuration structure loaded from YAML.
// JSON files are accepted as well since JSON is valid YAML.
type Config struct {
	// Name labels the analysis and prefixes output file names.
	Name string `yaml:"name,omitempty"`

	// OutputDir receives report files. Empty means reports only go to stdout.
	OutputDir string `yaml:"output_dir,omitempty"`

	// Format selects the sample parser: icmp-trace, json or regex.
	Format string `yaml:"format,omitempty"`

	// TimestampFormat and TokenPattern describe lines for the regex format.
	TimestampFormat TimestampConfig `yaml:"timestamp_format,omitempty"`
	TokenPattern    string          `yaml:"token_pattern,omitempty"`

	// Buckets are the latency histogram edges in milliseconds.
	Buckets []float64 `yaml:"buckets,omitempty"`

	// MatchWindow bounds how long an outgoing sample waits for its answer.
	// Zero means unbounded.
	MatchWindow time.Duration `yaml:"match_window,omitempty"`

	// StageThresholdMs selects the pairs whose slowest trace stage is reported.
	StageThresholdMs float64 `yaml:"stage_threshold_ms,omitempty"`

	// TopPairs is how many of the slowest pairs each report lists.
	TopPairs int `yaml:"top_pairs,omitempty"`

	NodePairs []NodePairConfig `yaml:"node_pairs,omitempty"`

	// Nodes maps a node's log directory to its addresses, for monitor analysis.
	Nodes map[string]NodeConfig `yaml:"nodes,omitempty"`

	MonitorSource  string        `yaml:"monitor_source,omitempty"`
	PacketsPerTest int           `yaml:"packets_per_test,omitempty"`
	TestInterval   time.Duration `yaml:"test_interval,omitempty"`

	Alerts AlertsConfig `yaml:"alerts,omitempty"`

	Webhooks []WebhookConfig `yaml:"webhooks,omitempty"`

	compiledTokenPattern *regexp.Regexp
}

// CompiledTokenPattern returns the compiled token pattern, nil unless the
// regex format is configured.
func (c *Config) CompiledTokenPattern() *regexp.Regexp {
	return c.compiledTokenPattern
}

// DailyPacketsPerPair is the number of probes one IP pair sends in a day.
func (c *Config) DailyPacketsPerPair() int {
	if c.TestInterval <= 0 {
		return 0
	}
	testsPerMinute := int(time.Minute / c.TestInterval)
	return c.PacketsPerTest * testsPerMinute * 60 * 24
}

// TimestampConfig defines how to extract timestamps from log lines.
type TimestampConfig struct {
	// Pattern is a regex that captures the timestamp portion of a log line.
	// Must contain at least one capture group.
	Pattern string `yaml:"pattern"`

	// Layout is the Go time layout string for parsing the captured timestamp,
	// or "unix" for epoch seconds.
	Layout string `yaml:"layout"`

	compiledPattern *regexp.Regexp
}

// CompiledPattern returns the pre-compiled regex pattern.
func (t *TimestampConfig) CompiledPattern() *regexp.Regexp {
	return t.compiledPattern
}

// NodePairConfig names the two logs of one probed node pair.
type NodePairConfig struct {
	Name  string `yaml:"name,omitempty"`
	SrcIP string `yaml:"src_ip"`
	DstIP string `yaml:"dst_ip"`

	// OutgoingFile and IncomingFile accept glob patterns; rotated files
	// are merged by timestamp.
	OutgoingFile string `yaml:"outgoing_file"`
	IncomingFile string `yaml:"incoming_file"`
}

// Label returns Name, or "src->dst" when no name is set.
func (p NodePairConfig) Label() string {
	if p.Name != "" {
		return p.Name
	}
	return fmt.Sprintf("%s->%s", p.SrcIP, p.DstIP)
}

// NodeConfig holds the addresses of one node on each network.
type NodeConfig struct {
	StorageIP    string `yaml:"storage_ip"`
	ManagementIP string `yaml:"management_ip"`
}

// AlertsConfig drives the alert packet-rate analysis.
type AlertsConfig struct {
	// VMDevices maps a VM name suffix to its host tap device.
	VMDevices map[string]string `yaml:"vm_devices,omitempty"`

	// Windows are the look-back spans before each alert.
	Windows []time.Duration `yaml:"windows,omitempty"`

	// VMPattern extracts the VM suffix from the alert message.
	VMPattern string `yaml:"vm_pattern,omitempty"`

	// TimeLayout parses the alert trigger time.
	TimeLayout string `yaml:"time_layout,omitempty"`

	compiledVMPattern *regexp.Regexp
}

// CompiledVMPattern returns the compiled VM pattern.
func (a *AlertsConfig) CompiledVMPattern() *regexp.Regexp {
	return a.compiledVMPattern
}

// WebhookTrigger determines when a webhook fires.
type WebhookTrigger string

const (
	// WebhookTriggerOnIssues fires only when loss, skew or spurious samples were seen (default).
	WebhookTriggerOnIssues WebhookTrigger = "on_issues"
	// WebhookTriggerAlways fires after every analysis.
	WebhookTriggerAlways WebhookTrigger = "always"
	// WebhookTriggerNever disables the webhook.
	WebhookTriggerNever WebhookTrigger = "never"
)

// WebhookConfig defines a webhook endpoint for sending analysis results.
type WebhookConfig struct {
	// Name is an optional identifier for the webhook.
	Name string `yaml:"name,omitempty"`

	// URL is the webhook endpoint (required).
	URL string `yaml:"url"`

	// Token is an optional bearer token for authentication.
	Token string `yaml:"token,omitempty"`

	// Trigger determines when the webhook fires.
	// Defaults to "on_issues" if not specified.
	Trigger WebhookTrigger `yaml:"trigger,omitempty"`

	// Timeout is the HTTP request timeout.
	// Defaults to 10s if not specified.
	Timeout time.Duration `yaml:"timeout,omitempty"`
}
