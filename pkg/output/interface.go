package output

import (
	"context"
	"fmt"
	"io"

	"github.com/ccollicutt/latlog/pkg/alerts"
	"github.com/ccollicutt/latlog/pkg/monitor"
)

// Output format names.
const (
	FormatText     = "text"
	FormatJSON     = "json"
	FormatMarkdown = "markdown"
)

// Formatter renders analysis results in a specific format.
type Formatter interface {
	// Format renders the latency report to the given writer.
	Format(ctx context.Context, report *Report, w io.Writer) error

	// FormatMonitor renders a network-monitor report.
	FormatMonitor(ctx context.Context, report *monitor.Report, w io.Writer) error

	// FormatAlerts renders an alert packet-rate analysis.
	FormatAlerts(ctx context.Context, result *alerts.Result, w io.Writer) error

	// Name returns the format name (text, json, markdown).
	Name() string
}

// FormatOptions controls formatter behavior.
type FormatOptions struct {
	// Verbose enables detailed output including sources and daily matrices.
	Verbose bool

	// Quiet enables minimal summary-only output.
	Quiet bool
}

// NewFormatter returns the formatter for a format name.
func NewFormatter(name string, opts FormatOptions) (Formatter, error) {
	switch name {
	case FormatText, "":
		return NewTextFormatter(opts), nil
	case FormatJSON:
		return NewJSONFormatter(opts), nil
	case FormatMarkdown, "md":
		return NewMarkdownFormatter(opts), nil
	default:
		return nil, fmt.Errorf("invalid output format: %s (must be %s, %s or %s)",
			name, FormatText, FormatJSON, FormatMarkdown)
	}
}
