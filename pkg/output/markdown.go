package output

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/ccollicutt/latlog/pkg/alerts"
	"github.com/ccollicutt/latlog/pkg/analyzer"
	"github.com/ccollicutt/latlog/pkg/monitor"
)

// MarkdownFormatter formats reports as Markdown documents.
type MarkdownFormatter struct {
	opts FormatOptions
}

// NewMarkdownFormatter creates a new Markdown formatter with the given options.
func NewMarkdownFormatter(opts FormatOptions) *MarkdownFormatter {
	return &MarkdownFormatter{opts: opts}
}

// Name returns the format name.
func (f *MarkdownFormatter) Name() string {
	return FormatMarkdown
}

// Format renders the latency report as Markdown.
func (f *MarkdownFormatter) Format(ctx context.Context, report *Report, w io.Writer) error {
	s := report.Summary
	fmt.Fprintf(w, "# Latency Report: %s\n\n", report.Metadata.Name)
	fmt.Fprintf(w, "| Pairs | With issues | Matched | Lost | Loss rate | Skewed | Spurious |\n")
	fmt.Fprintf(w, "|---|---|---|---|---|---|---|\n")
	fmt.Fprintf(w, "| %d | %d | %d | %d | %.2f%% | %d | %d |\n\n",
		s.PairsAnalyzed, s.PairsWithIssues, s.Matched, s.Lost, s.LossRate, s.Skewed, s.Spurious)

	if f.opts.Quiet {
		return nil
	}

	pairs := report.Pairs
	if report.Overall != nil && len(report.Pairs) > 1 {
		pairs = append(append([]*analyzer.PairResult{}, pairs...), report.Overall)
	}
	for _, p := range pairs {
		f.formatPair(p, w)
	}
	return nil
}

func (f *MarkdownFormatter) formatPair(p *analyzer.PairResult, w io.Writer) {
	fmt.Fprintf(w, "## %s\n\n", p.Name)
	if p.SrcIP != "" {
		fmt.Fprintf(w, "`%s` -> `%s`\n\n", p.SrcIP, p.DstIP)
	}

	c := p.Counts
	fmt.Fprintf(w, "- Samples: %d outgoing, %d incoming\n", c.Outgoing, c.Incoming)
	fmt.Fprintf(w, "- Matched: %d, lost: %d (%.2f%%), skewed: %d, spurious: %d\n",
		c.Matched, c.Lost, c.LossRate(), c.Skewed, c.Spurious)
	if n := p.OutgoingStats.ParseErrors + p.IncomingStats.ParseErrors; n > 0 {
		fmt.Fprintf(w, "- Malformed records skipped: %d\n", n)
	}
	fmt.Fprintln(w)

	if l := p.Latency; l.Count > 0 {
		fmt.Fprintln(w, "| Mean | Median | P95 | P99 | Min | Max | StdDev |")
		fmt.Fprintln(w, "|---|---|---|---|---|---|---|")
		fmt.Fprintf(w, "| %.3f | %.3f | %.3f | %.3f | %.3f | %.3f | %.3f |\n\n",
			l.Mean, l.Median, l.P95, l.P99, l.Min, l.Max, l.StdDev)
	}

	fmt.Fprintln(w, "| Bucket (ms) | Count | Percent |")
	fmt.Fprintln(w, "|---|---|---|")
	for _, row := range histogramRows(p.Histogram) {
		fmt.Fprintf(w, "| %s |\n", strings.Join(row, " | "))
	}
	fmt.Fprintln(w)

	if len(p.DropReasons) > 0 {
		fmt.Fprintln(w, "### Kernel drops")
		fmt.Fprintln(w)
		for _, kv := range sortedCounts(p.DropReasons) {
			fmt.Fprintf(w, "- %s: %d\n", kv.key, kv.n)
		}
		fmt.Fprintln(w)
	}
	if len(p.MaxStages) > 0 {
		fmt.Fprintln(w, "### Slowest stages")
		fmt.Fprintln(w)
		for _, kv := range sortedCounts(p.MaxStages) {
			fmt.Fprintf(w, "- %s: %d\n", kv.key, kv.n)
		}
		fmt.Fprintln(w)
	}
}

// FormatMonitor renders the network quality summary: grades, network
// comparison, hotspots, completeness, trend and recommendations.
func (f *MarkdownFormatter) FormatMonitor(ctx context.Context, report *monitor.Report, w io.Writer) error {
	fmt.Fprintln(w, "# Cluster Network Monitoring Summary")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "## Overall Network Quality")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "| Network | Days | Valid pairs | Loss rate | High latency rate | Quality |")
	fmt.Fprintln(w, "|---|---|---|---|---|---|")
	for _, n := range report.Networks {
		s := n.Summary
		if !s.HasData {
			continue
		}
		fmt.Fprintf(w, "| %s | %d | %s | %s | %s | %s |\n",
			s.Network.Title(), s.Days, monitor.FormatCount(int64(s.ValidPairs)),
			monitor.FormatRate(s.LossRate), monitor.FormatRate(s.HighLatencyRate), s.Grade)
	}
	fmt.Fprintln(w)

	if f.opts.Quiet {
		return nil
	}

	fmt.Fprintln(w, "## Key Findings")
	fmt.Fprintln(w)
	if loss, latency, ok := report.Comparison(); ok {
		fmt.Fprintln(w, "### Network Comparison")
		fmt.Fprintln(w)
		fmt.Fprintf(w, "- **%s has higher packet loss**: %s above %s\n",
			loss.Worse.Title(), monitor.FormatRate(loss.Diff), loss.Better.Title())
		fmt.Fprintf(w, "- **%s has more latency issues**: %s above %s\n",
			latency.Worse.Title(), monitor.FormatRate(latency.Diff), latency.Better.Title())
		fmt.Fprintln(w)
	}

	fmt.Fprintln(w, "## Problem Hotspots")
	fmt.Fprintln(w)
	for _, n := range report.Networks {
		fmt.Fprintf(w, "### %s Hotspots\n\n", n.Summary.Network.Title())
		if len(n.Hotspots) == 0 {
			fmt.Fprintln(w, "No packet loss recorded.")
			fmt.Fprintln(w)
			continue
		}
		fmt.Fprintln(w, "**Days with the most packet loss**:")
		fmt.Fprintln(w)
		for i, h := range n.Hotspots {
			fmt.Fprintf(w, "%d. **%s**: %s packets lost\n", i+1, h.Date, monitor.FormatCount(h.TotalLoss))
			if h.Worst != nil {
				fmt.Fprintf(w, "   - Worst connection: %s -> %s lost %s packets\n",
					h.Worst.Source, h.Worst.Target, monitor.FormatCount(int64(h.Worst.PacketsLost)))
			}
		}
		fmt.Fprintln(w)
	}

	fmt.Fprintln(w, "## Data Completeness")
	fmt.Fprintln(w)
	for _, n := range report.Networks {
		c := n.Completeness
		if c.PossiblePairs == 0 {
			continue
		}
		status := "complete"
		if !c.Complete {
			status = "incomplete"
		}
		fmt.Fprintf(w, "### %s\n", c.Network.Title())
		fmt.Fprintf(w, "- Theoretical daily packets: %s per IP pair\n", monitor.FormatCount(int64(report.DailyPackets)))
		fmt.Fprintf(w, "- Pairs with data: %d of %d (%.2f%%)\n", c.ValidPairs, c.PossiblePairs, c.Coverage)
		fmt.Fprintf(w, "- Data completeness: %s\n", status)
		fmt.Fprintln(w)
	}

	fmt.Fprintln(w, "## Network Trend")
	fmt.Fprintln(w)
	for _, n := range report.Networks {
		if n.Trend != "" {
			fmt.Fprintf(w, "- **%s**: network quality is **%s**\n", n.Summary.Network.Title(), n.Trend)
		}
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "## Recommendations")
	fmt.Fprintln(w)
	for i, r := range monitor.Recommendations {
		fmt.Fprintf(w, "%d. %s\n", i+1, r)
	}

	if f.opts.Verbose {
		for _, n := range report.Networks {
			for _, day := range n.Days {
				fmt.Fprintf(w, "\n## %s - %s\n", day.Date, n.Summary.Network.Title())
				for _, kind := range monitor.MatrixKinds {
					m := day.Matrices[kind]
					fmt.Fprintf(w, "\n### %s\n\n", kind)
					fmt.Fprintf(w, "| Source\\Target | %s |\n", strings.Join(m.IPs, " | "))
					fmt.Fprintf(w, "|---%s|\n", strings.Repeat("|---", len(m.IPs)))
					for _, row := range matrixRows(m) {
						fmt.Fprintf(w, "| %s |\n", strings.Join(row, " | "))
					}
				}
			}
		}
	}
	return nil
}

// FormatAlerts renders the alert analysis as Markdown tables.
func (f *MarkdownFormatter) FormatAlerts(ctx context.Context, result *alerts.Result, w io.Writer) error {
	fmt.Fprintln(w, "# Alert Packet Rate Analysis")
	fmt.Fprintln(w)
	fmt.Fprintf(w, "- Alerts: %d\n- PPS points: %d\n- Malformed PPS lines: %d\n\n",
		result.Alerts, result.Points, result.Malformed)

	if !f.opts.Quiet && len(result.Rows) > 0 {
		fmt.Fprintln(w, "| VM | Device | Trigger | Level | Window | Avg TX | Max TX | Min TX | Points |")
		fmt.Fprintln(w, "|---|---|---|---|---|---|---|---|---|")
		for _, r := range result.Rows {
			fmt.Fprintf(w, "| %s | %s | %s | %s | %s | %s | %s | %s | %d |\n",
				r.VM, r.Device, r.Trigger.Format("2006-01-02 15:04:05"), r.Level, r.Window,
				fmtPPS(r.AvgTx), fmtPPS(r.MaxTx), fmtPPS(r.MinTx), r.DataPoints)
		}
		fmt.Fprintln(w)
	}

	fmt.Fprintln(w, "## Summary")
	fmt.Fprintln(w)
	for _, s := range result.Summary {
		fmt.Fprintf(w, "### VM %s (%s): %s alert(s)\n\n", s.VM, s.Device, strconv.Itoa(s.Alerts))
		fmt.Fprintln(w, "| Window | Avg TX | Max TX | Min TX |")
		fmt.Fprintln(w, "|---|---|---|---|")
		for _, ws := range s.Windows {
			fmt.Fprintf(w, "| %s | %s | %s | %s |\n", ws.Window, fmtPPS(ws.AvgTx), fmtPPS(ws.MaxTx), fmtPPS(ws.MinTx))
		}
		fmt.Fprintln(w)
	}
	return nil
}
