package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/ccollicutt/latlog/pkg/detector"
)

// DetectOptions holds command-line options for the detect command.
type DetectOptions struct {
	Output      string
	SampleSize  int
	ShowAll     bool
	WriteConfig string
}

// NewDetectCommand creates the detect command.
func NewDetectCommand() *cobra.Command {
	opts := &DetectOptions{}

	cmd := &cobra.Command{
		Use:   "detect <log-file>",
		Short: "Detect the format of a log file",
		Long: `Sample a log file and report which latlog input it looks like, with a
confidence score and the command that reads it.

Recognized formats:
  - icmp-trace       ICMP RTT tracer blocks (latlog match)
  - json             JSON lines with timestamp and token (latlog match)
  - network-monitor  Cluster network monitor probe results (latlog monitor)
  - pps              Per-device packet rate samples (latlog alerts --pps)

When none matches, a timestamp layout is suggested for the regex format.
Optionally generates a starter config file with --write-config.

Example:
  latlog detect /var/log/icmp/outgoing.log
  latlog detect --sample 500 /var/log/large.log
  latlog detect -w latlog.yaml /var/log/icmp/outgoing.log`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDetect(cmd, args, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.Output, "output", "o", "text", "Output format (text|json)")
	cmd.Flags().IntVarP(&opts.SampleSize, "sample", "n", 100, "Number of lines to sample")
	cmd.Flags().BoolVar(&opts.ShowAll, "all", false, "Show all detected formats, not just the best match")
	cmd.Flags().StringVarP(&opts.WriteConfig, "write-config", "w", "", "Write starter config to file (will not overwrite)")

	return cmd
}

func runDetect(cmd *cobra.Command, args []string, opts *DetectOptions) error {
	logFile := args[0]
	ctx := commandContext(cmd)
	out := cmd.OutOrStdout()

	// Check file exists
	if _, err := os.Stat(logFile); os.IsNotExist(err) {
		return fmt.Errorf("log file not found: %s", logFile)
	}

	d := detector.New(detector.WithSampleSize(opts.SampleSize))

	result, err := d.DetectFromFile(ctx, logFile)
	if err != nil {
		return fmt.Errorf("detection failed: %w", err)
	}

	if opts.WriteConfig != "" {
		if err := writeStarterConfig(out, result, logFile, opts.WriteConfig); err != nil {
			return err
		}
	}

	switch opts.Output {
	case "json":
		return outputDetectJSON(out, result, logFile, opts)
	case "text", "":
		return outputDetectText(out, result, logFile, opts)
	default:
		return fmt.Errorf("invalid output format: %s (must be text or json)", opts.Output)
	}
}

func outputDetectText(w io.Writer, result *detector.DetectionResult, logFile string, opts *DetectOptions) error {
	fmt.Fprintln(w, "=== Log Format Detection ===")
	fmt.Fprintln(w)
	fmt.Fprintf(w, "File: %s\n", logFile)
	fmt.Fprintf(w, "Lines sampled: %d\n", result.SampledLines)
	fmt.Fprintln(w)

	if !result.HasMatch() {
		ts := result.Timestamp
		if ts == nil {
			fmt.Fprintln(w, "No known format detected.")
			fmt.Fprintln(w)
			fmt.Fprintln(w, "Tip: Check the first few lines manually and configure the regex format")
			fmt.Fprintln(w, "with a timestamp_format and token_pattern.")
			return nil
		}

		fmt.Fprintf(w, "No structured format detected; timestamps look like: %s\n", ts.Format.Name)
		fmt.Fprintf(w, "Confidence: %.1f%% (%d/%d lines matched)\n",
			ts.Confidence*100, ts.MatchCount, result.SampledLines)
		fmt.Fprintln(w)
		fmt.Fprintf(w, "Sample match:\n  %s\n", ts.SampleLine)
		fmt.Fprintln(w)
		fmt.Fprintln(w, "--- Configuration snippet (copy to your config file) ---")
		fmt.Fprintln(w)
		fmt.Fprintln(w, "format: regex")
		fmt.Fprintln(w, "timestamp_format:")
		fmt.Fprintf(w, "  pattern: '%s'\n", ts.Format.PatternStr)
		fmt.Fprintf(w, "  layout: \"%s\"\n", ts.Format.Layout)
		fmt.Fprintln(w, "token_pattern: 'seq=(\\d+)'  # adjust to your probe id")
		fmt.Fprintln(w)
		return nil
	}

	best := result.BestMatch()
	fmt.Fprintf(w, "Detected Format: %s (%s)\n", best.Format.Name, best.Format.Description)
	fmt.Fprintf(w, "Confidence: %.1f%% (%d records matched)\n", best.Confidence*100, best.MatchCount)
	fmt.Fprintln(w)
	fmt.Fprintf(w, "Sample match:\n  %s\n", best.SampleLine)
	fmt.Fprintln(w)
	fmt.Fprintf(w, "Read it with: latlog %s\n", best.Format.Command)
	fmt.Fprintln(w)

	if opts.ShowAll && len(result.Matches) > 1 {
		fmt.Fprintln(w, "--- Alternative formats detected ---")
		for i, m := range result.Matches[1:] {
			fmt.Fprintf(w, "%d. %s (%.1f%% confidence)\n", i+2, m.Format.Name, m.Confidence*100)
		}
		fmt.Fprintln(w)
	}

	return nil
}

// JSONMatch represents a format match in JSON output.
type JSONMatch struct {
	Name       string  `json:"name"`
	Command    string  `json:"command,omitempty"`
	Pattern    string  `json:"pattern,omitempty"`
	Layout     string  `json:"layout,omitempty"`
	Confidence float64 `json:"confidence"`
	MatchCount int     `json:"match_count"`
	SampleLine string  `json:"sample_line"`
}

// JSONOutput represents the full JSON output.
type JSONOutput struct {
	File         string      `json:"file"`
	Format       string      `json:"format"`
	Matches      []JSONMatch `json:"matches"`
	Timestamp    *JSONMatch  `json:"timestamp,omitempty"`
	SampledLines int         `json:"sampled_lines"`
}

func outputDetectJSON(w io.Writer, result *detector.DetectionResult, logFile string, opts *DetectOptions) error {
	out := JSONOutput{
		File:         logFile,
		Format:       result.FormatName(),
		SampledLines: result.SampledLines,
		Matches:      make([]JSONMatch, 0),
	}

	matches := result.Matches
	if !opts.ShowAll && len(matches) > 1 {
		matches = matches[:1] // Only show best match
	}

	for _, m := range matches {
		out.Matches = append(out.Matches, JSONMatch{
			Name:       m.Format.Name,
			Command:    "latlog " + m.Format.Command,
			Confidence: m.Confidence,
			MatchCount: m.MatchCount,
			SampleLine: m.SampleLine,
		})
	}

	if ts := result.Timestamp; ts != nil {
		out.Timestamp = &JSONMatch{
			Name:       ts.Format.Name,
			Pattern:    ts.Format.PatternStr,
			Layout:     ts.Format.Layout,
			Confidence: ts.Confidence,
			MatchCount: ts.MatchCount,
			SampleLine: ts.SampleLine,
		}
	}

	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(out)
}

// writeStarterConfig generates a starter config file for the detected format.
func writeStarterConfig(w io.Writer, result *detector.DetectionResult, logFile, configPath string) error {
	// Check if file already exists
	if _, err := os.Stat(configPath); err == nil {
		return fmt.Errorf("config file already exists: %s (will not overwrite)", configPath)
	}

	if !result.HasMatch() && result.Timestamp == nil {
		return fmt.Errorf("cannot generate config: no format detected")
	}

	content := generateStarterConfig(logFile, result)

	// #nosec G306 - config file doesn't need restrictive permissions
	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	fmt.Fprintf(w, "Wrote starter config to: %s\n\n", configPath)
	return nil
}

// generateStarterConfig creates a YAML config template matching the
// detected input.
func generateStarterConfig(logFile string, result *detector.DetectionResult) string {
	absLogFile := logFile
	if abs, err := filepath.Abs(logFile); err == nil {
		absLogFile = abs
	}

	header := fmt.Sprintf("# latlog configuration\n# Generated by: latlog detect\n# Detected format: %s\n\n", result.FormatName())

	switch result.FormatName() {
	case detector.FormatNetworkMonitor:
		return header + fmt.Sprintf(`name: network_quality
monitor_source: network-monitor
packets_per_test: 100
test_interval: 15s

# Each key is a node's log directory.
nodes:
  %s:
    storage_ip: 10.0.0.1
    management_ip: 192.168.0.1
`, filepath.Dir(absLogFile))

	case detector.FormatPPS:
		return header + `name: alert_pps

alerts:
  # VM name suffix from the alert message -> tap device in the pps log
  vm_devices:
    example: tap00000000
  windows: [1m, 2m, 3m]
`

	case detector.FormatRegex:
		ts := result.Timestamp
		return header + fmt.Sprintf(`name: latency_analysis
format: regex
timestamp_format:
  pattern: '%s'
  layout: "%s"
# Must capture the probe id shared by outgoing and incoming lines.
token_pattern: 'seq=(\d+)'
buckets: [10, 100, 500]

node_pairs:
  - name: node1-node2
    src_ip: 10.0.0.1
    dst_ip: 10.0.0.2
    outgoing_file: %s
    incoming_file: /path/to/incoming.log
`, ts.Format.PatternStr, ts.Format.Layout, absLogFile)

	default:
		return header + fmt.Sprintf(`name: latency_analysis
format: %s
buckets: [10, 100, 500]
# match_window: 5s

node_pairs:
  - name: node1-node2
    src_ip: 10.0.0.1
    dst_ip: 10.0.0.2
    outgoing_file: %s
    incoming_file: /path/to/incoming.log
`, result.FormatName(), absLogFile)
	}
}
