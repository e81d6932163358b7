package output

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/ccollicutt/latlog/pkg/alerts"
	"github.com/ccollicutt/latlog/pkg/analyzer"
	"github.com/ccollicutt/latlog/pkg/histogram"
	"github.com/ccollicutt/latlog/pkg/monitor"
)

// TextFormatter formats reports as human-readable text.
type TextFormatter struct {
	opts FormatOptions
}

// NewTextFormatter creates a new text formatter with the given options.
func NewTextFormatter(opts FormatOptions) *TextFormatter {
	return &TextFormatter{opts: opts}
}

// Name returns the format name.
func (f *TextFormatter) Name() string {
	return FormatText
}

// Format renders the report as text.
func (f *TextFormatter) Format(ctx context.Context, report *Report, w io.Writer) error {
	if f.opts.Quiet {
		return f.formatQuiet(report, w)
	}
	return f.formatFull(report, w)
}

func (f *TextFormatter) formatQuiet(report *Report, w io.Writer) error {
	s := report.Summary
	fmt.Fprintf(w, "latlog: %d pairs analyzed, %d with issues, %d matched, %d lost, %d skewed, %d spurious\n",
		s.PairsAnalyzed, s.PairsWithIssues, s.Matched, s.Lost, s.Skewed, s.Spurious)
	return nil
}

func (f *TextFormatter) formatFull(report *Report, w io.Writer) error {
	st := newStyles(w)

	// Header
	fmt.Fprintln(w, st.title.Render("=== latlog Latency Report: "+report.Metadata.Name+" ==="))
	fmt.Fprintln(w)

	for _, pair := range report.Pairs {
		f.formatPair(st, pair, w)
	}
	if report.Overall != nil && len(report.Pairs) > 1 {
		f.formatPair(st, report.Overall, w)
	}

	// Summary
	s := report.Summary
	fmt.Fprintln(w, "---")
	fmt.Fprintf(w, "Summary: %d pairs analyzed, %d pairs with issues, %d matched, %s lost (%.2f%%), %d skewed, %d spurious\n",
		s.PairsAnalyzed, s.PairsWithIssues, s.Matched,
		st.status(s.Lost, true).Render(strconv.Itoa(s.Lost)), s.LossRate,
		s.Skewed, s.Spurious)

	if f.opts.Verbose {
		fmt.Fprintf(w, "Buckets (ms): %s\n", joinFloats(report.Metadata.Buckets))
		fmt.Fprintf(w, "Match window: %s\n", report.Metadata.Window)
		fmt.Fprintf(w, "Parse errors: %d\n", s.ParseErrors)
		fmt.Fprintf(w, "Duration: %s\n", report.Metadata.Duration.Round(1e6))
	}

	return nil
}

func (f *TextFormatter) formatPair(st styles, p *analyzer.PairResult, w io.Writer) {
	header := "[PAIR] " + p.Name
	if p.SrcIP != "" {
		header += fmt.Sprintf(" (%s -> %s)", p.SrcIP, p.DstIP)
	}
	fmt.Fprintln(w, st.section.Render(header))

	if f.opts.Verbose {
		fmt.Fprintf(w, "  Outgoing: %s\n", strings.Join(p.OutgoingFiles, ", "))
		fmt.Fprintf(w, "  Incoming: %s\n", strings.Join(p.IncomingFiles, ", "))
	}

	c := p.Counts
	fmt.Fprintf(w, "  Samples: %d outgoing, %d incoming", c.Outgoing, c.Incoming)
	if n := p.OutgoingStats.ParseErrors + p.IncomingStats.ParseErrors; n > 0 {
		fmt.Fprintf(w, " (%s)", st.warn.Render(fmt.Sprintf("%d malformed skipped", n)))
	}
	fmt.Fprintln(w)

	fmt.Fprintf(w, "  Matched: %d  Lost: %s (%.2f%%)  Skewed: %s  Spurious: %s\n",
		c.Matched,
		st.status(c.Lost, true).Render(strconv.Itoa(c.Lost)), c.LossRate(),
		st.status(c.Skewed, false).Render(strconv.Itoa(c.Skewed)),
		st.status(c.Spurious, false).Render(strconv.Itoa(c.Spurious)))
	if c.Expired > 0 || c.OutOfOrder > 0 {
		fmt.Fprintf(w, "  Expired by window: %d  Out of order: %d\n", c.Expired, c.OutOfOrder)
	}

	if l := p.Latency; l.Count > 0 {
		fmt.Fprintf(w, "  Latency (ms): mean %.3f  median %.3f  p95 %.3f  p99 %.3f  min %.3f  max %.3f  stddev %.3f\n",
			l.Mean, l.Median, l.P95, l.P99, l.Min, l.Max, l.StdDev)
	}

	fmt.Fprintln(w, indent(st.grid([]string{"Bucket", "Count", "Percent"}, histogramRows(p.Histogram))))

	if p.AboveThreshold.Total() > 0 {
		fmt.Fprintf(w, "  %s\n", st.label.Render("At or above stage threshold:"))
		fmt.Fprintln(w, indent(st.grid([]string{"Bucket", "Count", "Percent"}, histogramRows(p.AboveThreshold))))
	}

	if len(p.DropReasons) > 0 {
		fmt.Fprintf(w, "  %s\n", st.label.Render("Kernel drops:"))
		for _, kv := range sortedCounts(p.DropReasons) {
			fmt.Fprintf(w, "    %s: %d\n", kv.key, kv.n)
		}
	}
	if len(p.MaxStages) > 0 {
		fmt.Fprintf(w, "  %s\n", st.label.Render("Slowest stage of high-latency pairs:"))
		for _, kv := range sortedCounts(p.MaxStages) {
			fmt.Fprintf(w, "    %s: %d\n", kv.key, kv.n)
		}
	}

	if len(p.Slowest) > 0 {
		fmt.Fprintf(w, "  %s\n", st.label.Render("Slowest pairs:"))
		for _, s := range p.Slowest {
			fmt.Fprintf(w, "    - token=%s: %.3fms at %s", s.Token, s.LatencyMs, s.Outgoing.Format("15:04:05.000"))
			if s.MaxStage != "" {
				fmt.Fprintf(w, " (slowest stage %s)", s.MaxStage)
			}
			fmt.Fprintln(w)
			if f.opts.Verbose {
				fmt.Fprintf(w, "      %s\n", st.muted.Render(fmt.Sprintf("Source: %s:%d", s.Source, s.LineNum)))
			}
		}
	}

	fmt.Fprintln(w)
}

// FormatMonitor renders the network-monitor summary and, in verbose mode,
// the daily matrices.
func (f *TextFormatter) FormatMonitor(ctx context.Context, report *monitor.Report, w io.Writer) error {
	st := newStyles(w)

	if f.opts.Quiet {
		for _, n := range report.Networks {
			s := n.Summary
			fmt.Fprintf(w, "%s: loss %s, high latency %s, %s\n",
				s.Network.Title(), monitor.FormatRate(s.LossRate), monitor.FormatRate(s.HighLatencyRate), gradeOrNoData(s))
		}
		return nil
	}

	fmt.Fprintln(w, st.title.Render("=== latlog Network Monitor Report: "+report.Name+" ==="))
	fmt.Fprintf(w, "Source: %s  Files: %d  Entries: %d  Malformed: %d\n",
		report.Source, report.Files, report.Entries, report.Malformed)
	fmt.Fprintf(w, "Theoretical daily packets per IP pair: %s\n", monitor.FormatCount(int64(report.DailyPackets)))
	for _, dir := range report.MissingDirs {
		fmt.Fprintf(w, "%s %s\n", st.warn.Render("Missing node directory:"), dir)
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, st.section.Render("===== Summary Statistics ====="))
	for _, n := range report.Networks {
		s := n.Summary
		if !s.HasData {
			fmt.Fprintf(w, "%s: No data\n\n", s.Network.Title())
			continue
		}
		fmt.Fprintln(w, st.label.Render("=== "+s.Network.Title()+" Overall Statistics ==="))
		fmt.Fprintf(w, "Total days: %d\n", s.Days)
		fmt.Fprintf(w, "Valid IP pair data: %d\n", s.ValidPairs)
		fmt.Fprintf(w, "Theoretical total packets: %s\n", monitor.FormatCount(s.ExpectedPackets))
		fmt.Fprintf(w, "Actual packet loss: %s\n", monitor.FormatCount(s.PacketsLost))
		fmt.Fprintf(w, "Actual high latency: %s\n", monitor.FormatCount(s.HighLatency))
		fmt.Fprintf(w, "Overall packet loss rate: %s\n", monitor.FormatRate(s.LossRate))
		fmt.Fprintf(w, "Overall high latency rate: %s\n", monitor.FormatRate(s.HighLatencyRate))
		fmt.Fprintf(w, "Quality: %s\n", gradeStyle(st, s.Grade).Render(s.Grade))
		fmt.Fprintf(w, "Included IPs: %s\n", strings.Join(s.IPs, ", "))
		if n.Trend != "" {
			fmt.Fprintf(w, "Trend: %s\n", n.Trend)
		}
		fmt.Fprintln(w)
	}

	if !f.opts.Verbose {
		return nil
	}

	for _, n := range report.Networks {
		if len(n.Days) == 0 {
			continue
		}
		title := n.Summary.Network.Title()
		fmt.Fprintln(w, st.section.Render("===== "+title+" Daily Analysis Report ====="))
		fmt.Fprintf(w, "Data coverage period: %s to %s (total %d days)\n\n",
			n.Days[0].Date, n.Days[len(n.Days)-1].Date, len(n.Days))
		for _, day := range n.Days {
			fmt.Fprintln(w, st.label.Render("=== "+day.Date+" - "+title+" ==="))
			for _, kind := range monitor.MatrixKinds {
				m := day.Matrices[kind]
				fmt.Fprintf(w, "\n[%s Matrix]\n", kind)
				fmt.Fprintln(w, st.grid(append([]string{`Source\Target`}, m.IPs...), matrixRows(m)))
			}
			fmt.Fprintln(w)
		}
	}
	return nil
}

// FormatAlerts renders per-alert window statistics and the per-VM summary.
func (f *TextFormatter) FormatAlerts(ctx context.Context, result *alerts.Result, w io.Writer) error {
	st := newStyles(w)

	if !f.opts.Quiet {
		fmt.Fprintln(w, st.title.Render("=== latlog Alert Packet Rate Report ==="))
		fmt.Fprintf(w, "Alerts: %d  PPS points: %d", result.Alerts, result.Points)
		if result.Malformed > 0 {
			fmt.Fprintf(w, "  (%s)", st.warn.Render(fmt.Sprintf("%d malformed lines skipped", result.Malformed)))
		}
		fmt.Fprintln(w)
		fmt.Fprintln(w)

		var rows [][]string
		for _, r := range result.Rows {
			rows = append(rows, []string{
				r.VM, r.Device, r.Trigger.Format("2006-01-02 15:04:05"), r.Level,
				r.Window.String(), fmtPPS(r.AvgTx), fmtPPS(r.MaxTx), fmtPPS(r.MinTx), strconv.Itoa(r.DataPoints),
			})
		}
		if len(rows) > 0 {
			fmt.Fprintln(w, st.grid([]string{"VM", "Device", "Trigger", "Level", "Window", "Avg TX", "Max TX", "Min TX", "Points"}, rows))
			fmt.Fprintln(w)
		}
	}

	fmt.Fprintln(w, st.section.Render("=== Summary ==="))
	if len(result.Summary) == 0 {
		fmt.Fprintln(w, "No alerts for tracked VMs")
		return nil
	}
	for _, s := range result.Summary {
		fmt.Fprintf(w, "VM %s (%s): %d alert(s)\n", s.VM, s.Device, s.Alerts)
		for _, ws := range s.Windows {
			fmt.Fprintf(w, "  %s before: avg TX PPS %.2f, max %.2f, min %.2f\n",
				ws.Window, ws.AvgTx, ws.MaxTx, ws.MinTx)
		}
	}
	return nil
}

func histogramRows(h histogram.Histogram) [][]string {
	pct := h.Percentages()
	var rows [][]string
	for _, label := range h.Labels() {
		rows = append(rows, []string{label, strconv.Itoa(h.Map()[label]), fmt.Sprintf("%.2f%%", pct[label])})
	}
	return rows
}

func matrixRows(m monitor.Matrix) [][]string {
	rows := make([][]string, 0, len(m.Rows))
	for i, row := range m.Rows {
		rows = append(rows, append([]string{m.IPs[i]}, row...))
	}
	return rows
}

type countEntry struct {
	key string
	n   int
}

// sortedCounts orders a count map by count descending, then key.
func sortedCounts(m map[string]int) []countEntry {
	out := make([]countEntry, 0, len(m))
	for k, n := range m {
		out = append(out, countEntry{k, n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].n != out[j].n {
			return out[i].n > out[j].n
		}
		return out[i].key < out[j].key
	})
	return out
}

func gradeStyle(st styles, grade string) lipgloss.Style {
	switch grade {
	case monitor.GradeExcellent, monitor.GradeGood:
		return st.ok
	case monitor.GradeFair:
		return st.warn
	default:
		return st.bad
	}
}

func gradeOrNoData(s monitor.Summary) string {
	if !s.HasData {
		return "no data"
	}
	return s.Grade
}

func joinFloats(vs []float64) string {
	parts := make([]string, len(vs))
	for i, v := range vs {
		parts[i] = strconv.FormatFloat(v, 'f', -1, 64)
	}
	return strings.Join(parts, ", ")
}

func fmtPPS(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}

func indent(s string) string {
	return "  " + strings.ReplaceAll(s, "\n", "\n  ")
}
