package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ccollicutt/latlog/pkg/parser"
)

// Default values for configuration.
const (
	DefaultName             = "latency_analysis"
	DefaultFormat           = parser.FormatICMPTrace
	DefaultStageThresholdMs = 10.0
	DefaultTopPairs         = 10
	DefaultPacketsPerTest   = 100
	DefaultTestInterval     = 15 * time.Second
	DefaultWebhookTimeout   = 10 * time.Second
	DefaultTimestampPattern = `^\[(\d{4}-\d{2}-\d{2} \d{2}:\d{2}:\d{2})\]`
	DefaultTimestampLayout  = "2006-01-02 15:04:05"
	DefaultVMPattern        = `next-cpu\d+mem\d+-(\w+)`
	DefaultAlertTimeLayout  = "2006-01-02 15:04:05"
)

// Monitor log sources.
const (
	MonitorSourceHighLatency    = "highlatency"
	MonitorSourceNetworkMonitor = "network-monitor"
)

// Environment variable names.
const (
	EnvBuckets       = "LATLOG_BUCKETS"
	EnvMonitorSource = "LATLOG_MONITOR_SOURCE"
)

// DefaultBuckets are the latency histogram edges in milliseconds.
func DefaultBuckets() []float64 {
	return []float64{10, 100, 500}
}

// DefaultAlertWindows are the look-back spans before each alert.
func DefaultAlertWindows() []time.Duration {
	return []time.Duration{time.Minute, 2 * time.Minute, 3 * time.Minute}
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Name:   DefaultName,
		Format: DefaultFormat,
		TimestampFormat: TimestampConfig{
			Pattern: DefaultTimestampPattern,
			Layout:  DefaultTimestampLayout,
		},
		Buckets:          DefaultBuckets(),
		StageThresholdMs: DefaultStageThresholdMs,
		TopPairs:         DefaultTopPairs,
		NodePairs:        []NodePairConfig{},
		MonitorSource:    MonitorSourceHighLatency,
		PacketsPerTest:   DefaultPacketsPerTest,
		TestInterval:     DefaultTestInterval,
		Alerts: AlertsConfig{
			VMPattern:  DefaultVMPattern,
			TimeLayout: DefaultAlertTimeLayout,
		},
	}
}

// ApplyEnvironmentOverrides applies LATLOG_* environment variable overrides.
func (c *Config) ApplyEnvironmentOverrides() error {
	if v := os.Getenv(EnvBuckets); v != "" {
		edges, err := ParseBuckets(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvBuckets, err)
		}
		c.Buckets = edges
	}

	if src := os.Getenv(EnvMonitorSource); src != "" {
		c.MonitorSource = src
	}

	return nil
}

// ParseBuckets parses a comma separated list of bucket edges such as "10,100,500".
func ParseBuckets(s string) ([]float64, error) {
	parts := strings.Split(s, ",")
	edges := make([]float64, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		v, err := strconv.ParseFloat(p, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid bucket edge %q: %w", p, err)
		}
		edges = append(edges, v)
	}
	return edges, nil
}
