package config

import (
	"context"
	"errors"
	"fmt"
	"net/netip"
	"net/url"
	"os"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ccollicutt/latlog/pkg/histogram"
	"github.com/ccollicutt/latlog/pkg/parser"
)

// Load reads and validates a configuration file.
func Load(_ context.Context, path string) (*Config, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- user-provided config path is expected
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := cfg.ApplyEnvironmentOverrides(); err != nil {
		return nil, fmt.Errorf("applying environment overrides: %w", err)
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// Validate checks a configuration for errors, fills per-section defaults
// and compiles regex patterns.
func Validate(cfg *Config) error {
	if len(cfg.NodePairs) == 0 && len(cfg.Nodes) == 0 && len(cfg.Alerts.VMDevices) == 0 {
		return errors.New("nothing to analyze: configure node_pairs, nodes or alerts.vm_devices")
	}

	if cfg.Name == "" {
		cfg.Name = DefaultName
	}

	if err := validateFormat(cfg); err != nil {
		return err
	}

	if err := histogram.ValidateEdges(cfg.Buckets); err != nil {
		return fmt.Errorf("buckets: %w", err)
	}

	if cfg.MatchWindow < 0 {
		return fmt.Errorf("match_window: must not be negative, got %s", cfg.MatchWindow)
	}
	if cfg.StageThresholdMs < 0 {
		return fmt.Errorf("stage_threshold_ms: must not be negative, got %v", cfg.StageThresholdMs)
	}
	if cfg.TopPairs < 0 {
		return fmt.Errorf("top_pairs: must not be negative, got %d", cfg.TopPairs)
	}

	for i := range cfg.NodePairs {
		if err := validateNodePair(&cfg.NodePairs[i]); err != nil {
			return fmt.Errorf("node_pairs[%d] (%s): %w", i, cfg.NodePairs[i].Label(), err)
		}
	}

	if len(cfg.Nodes) > 0 {
		if err := validateMonitor(cfg); err != nil {
			return err
		}
	}

	if len(cfg.Alerts.VMDevices) > 0 {
		if err := validateAlerts(&cfg.Alerts); err != nil {
			return fmt.Errorf("alerts: %w", err)
		}
	}

	// Webhooks are optional, but validate if present
	for i := range cfg.Webhooks {
		if err := validateWebhook(&cfg.Webhooks[i]); err != nil {
			name := cfg.Webhooks[i].Name
			if name == "" {
				name = cfg.Webhooks[i].URL
			}
			return fmt.Errorf("webhooks[%d] (%s): %w", i, name, err)
		}
	}

	return nil
}

func validateFormat(cfg *Config) error {
	if cfg.Format == "" {
		cfg.Format = DefaultFormat
	}

	switch cfg.Format {
	case parser.FormatICMPTrace, parser.FormatJSON:
		return nil
	case parser.FormatRegex:
		if err := validateTimestampFormat(&cfg.TimestampFormat); err != nil {
			return fmt.Errorf("timestamp_format: %w", err)
		}
		if cfg.TokenPattern == "" {
			return errors.New("token_pattern: required for the regex format")
		}
		re, err := compileWithGroup(cfg.TokenPattern)
		if err != nil {
			return fmt.Errorf("token_pattern: %w", err)
		}
		cfg.compiledTokenPattern = re
		return nil
	default:
		return fmt.Errorf("format: invalid value %q (must be %s, %s, or %s)",
			cfg.Format, parser.FormatICMPTrace, parser.FormatJSON, parser.FormatRegex)
	}
}

func validateTimestampFormat(tf *TimestampConfig) error {
	if tf.Pattern == "" {
		return errors.New("pattern is required")
	}

	re, err := compileWithGroup(tf.Pattern)
	if err != nil {
		return err
	}
	tf.compiledPattern = re

	if tf.Layout == "" {
		return errors.New("layout is required")
	}

	return nil
}

// compileWithGroup compiles a pattern that must have a capture group.
func compileWithGroup(pattern string) (*regexp.Regexp, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid pattern: %w", err)
	}
	if re.NumSubexp() < 1 {
		return nil, errors.New("pattern must have at least one capture group")
	}
	return re, nil
}

func validateNodePair(pair *NodePairConfig) error {
	if err := validateIP("src_ip", pair.SrcIP); err != nil {
		return err
	}
	if err := validateIP("dst_ip", pair.DstIP); err != nil {
		return err
	}
	if pair.OutgoingFile == "" {
		return errors.New("outgoing_file is required")
	}
	if pair.IncomingFile == "" {
		return errors.New("incoming_file is required")
	}
	if pair.Name == "" {
		pair.Name = pair.Label()
	}
	return nil
}

func validateIP(field, value string) error {
	if value == "" {
		return fmt.Errorf("%s is required", field)
	}
	if _, err := netip.ParseAddr(value); err != nil {
		return fmt.Errorf("%s: invalid address %q", field, value)
	}
	return nil
}

func validateMonitor(cfg *Config) error {
	switch cfg.MonitorSource {
	case "":
		cfg.MonitorSource = MonitorSourceHighLatency
	case MonitorSourceHighLatency, MonitorSourceNetworkMonitor:
	default:
		return fmt.Errorf("monitor_source: invalid value %q (must be %s or %s)",
			cfg.MonitorSource, MonitorSourceHighLatency, MonitorSourceNetworkMonitor)
	}

	if cfg.PacketsPerTest <= 0 {
		return fmt.Errorf("packets_per_test: must be positive, got %d", cfg.PacketsPerTest)
	}
	if cfg.TestInterval <= 0 || cfg.TestInterval > time.Minute {
		return fmt.Errorf("test_interval: must be between 0 and 1m, got %s", cfg.TestInterval)
	}

	for dir, node := range cfg.Nodes {
		if err := validateIP("storage_ip", node.StorageIP); err != nil {
			return fmt.Errorf("nodes[%s]: %w", dir, err)
		}
		if err := validateIP("management_ip", node.ManagementIP); err != nil {
			return fmt.Errorf("nodes[%s]: %w", dir, err)
		}
	}
	return nil
}

func validateAlerts(a *AlertsConfig) error {
	if a.VMPattern == "" {
		a.VMPattern = DefaultVMPattern
	}
	re, err := compileWithGroup(a.VMPattern)
	if err != nil {
		return fmt.Errorf("vm_pattern: %w", err)
	}
	a.compiledVMPattern = re

	if a.TimeLayout == "" {
		a.TimeLayout = DefaultAlertTimeLayout
	}

	if len(a.Windows) == 0 {
		a.Windows = DefaultAlertWindows()
	}
	for i, w := range a.Windows {
		if w <= 0 {
			return fmt.Errorf("windows[%d]: must be positive, got %s", i, w)
		}
	}

	for vm, dev := range a.VMDevices {
		if dev == "" {
			return fmt.Errorf("vm_devices[%s]: device is required", vm)
		}
	}
	return nil
}

func validateWebhook(wh *WebhookConfig) error {
	if wh.URL == "" {
		return errors.New("url is required")
	}

	// Validate URL format
	u, err := url.Parse(wh.URL)
	if err != nil {
		return fmt.Errorf("invalid url: %w", err)
	}

	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("url scheme must be http or https, got %q", u.Scheme)
	}

	if u.Host == "" {
		return errors.New("url must have a host")
	}

	// Expand environment variables in token
	wh.Token = expandEnvVar(wh.Token)

	if wh.Trigger != "" {
		switch wh.Trigger {
		case WebhookTriggerOnIssues, WebhookTriggerAlways, WebhookTriggerNever:
		default:
			return fmt.Errorf("invalid trigger %q (must be on_issues, always, or never)", wh.Trigger)
		}
	} else {
		wh.Trigger = WebhookTriggerOnIssues
	}

	if wh.Timeout <= 0 {
		wh.Timeout = DefaultWebhookTimeout
	}

	return nil
}

// expandEnvVar expands environment variables in the format ${VAR} or $VAR.
func expandEnvVar(s string) string {
	if s == "" {
		return s
	}

	// Handle ${VAR} format
	if strings.HasPrefix(s, "${") && strings.HasSuffix(s, "}") {
		varName := s[2 : len(s)-1]
		return os.Getenv(varName)
	}

	// Handle $VAR format (no braces)
	if strings.HasPrefix(s, "$") && !strings.HasPrefix(s, "${") {
		varName := s[1:]
		return os.Getenv(varName)
	}

	return s
}
