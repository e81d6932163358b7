// Package metrics exports analysis results as Prometheus gauges and
// writes them in the text exposition format, for the node_exporter
// textfile collector.
package metrics

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"

	"github.com/ccollicutt/latlog/pkg/alerts"
	"github.com/ccollicutt/latlog/pkg/analyzer"
	"github.com/ccollicutt/latlog/pkg/monitor"
)

const namespace = "latlog"

// Outcome label values of the pair counters.
const (
	OutcomeMatched  = "matched"
	OutcomeLost     = "lost"
	OutcomeExpired  = "expired"
	OutcomeSkewed   = "skewed"
	OutcomeSpurious = "spurious"
)

// Exporter holds one run's gauges in its own registry.
type Exporter struct {
	registry *prometheus.Registry

	info          *prometheus.GaugeVec
	lastRun       prometheus.Gauge
	pairBuckets   *prometheus.GaugeVec
	pairOutcomes  *prometheus.GaugeVec
	pairLossRatio *prometheus.GaugeVec
	pairLatency   *prometheus.GaugeVec
	pairDrops     *prometheus.GaugeVec
	parseErrors   *prometheus.GaugeVec

	monitorLossRate    *prometheus.GaugeVec
	monitorLatencyRate *prometheus.GaugeVec
	monitorValidPairs  *prometheus.GaugeVec

	alertTxPPS *prometheus.GaugeVec
}

// New creates an exporter with a fresh registry.
func New(version string) *Exporter {
	e := &Exporter{
		registry: prometheus.NewRegistry(),
		info: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "info",
			Help:      "Information about the latlog run (value always 1)",
		}, []string{"version"}),
		lastRun: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_timestamp_seconds",
			Help:      "Unix time the exported analysis finished",
		}),
		pairBuckets: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "pair",
			Name:      "bucket_pairs",
			Help:      "Sample pairs per latency bucket, including loss and invalid",
		}, []string{"pair", "bucket"}),
		pairOutcomes: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "pair",
			Name:      "samples",
			Help:      "Matcher outcomes per node pair",
		}, []string{"pair", "outcome"}),
		pairLossRatio: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "pair",
			Name:      "loss_ratio",
			Help:      "Lost pairs over all pairs (0.0 to 1.0)",
		}, []string{"pair"}),
		pairLatency: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "pair",
			Name:      "latency_milliseconds",
			Help:      "Latency of matched pairs by quantile",
		}, []string{"pair", "quantile"}),
		pairDrops: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "pair",
			Name:      "kernel_drops",
			Help:      "Traced packets replaced in flight, by direction and reason",
		}, []string{"pair", "reason"}),
		parseErrors: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "pair",
			Name:      "parse_errors",
			Help:      "Malformed records skipped, by direction",
		}, []string{"pair", "direction"}),
		monitorLossRate: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "monitor",
			Name:      "loss_rate_percent",
			Help:      "Packet loss rate over the whole period",
		}, []string{"network"}),
		monitorLatencyRate: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "monitor",
			Name:      "high_latency_rate_percent",
			Help:      "High latency rate over the whole period",
		}, []string{"network"}),
		monitorValidPairs: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "monitor",
			Name:      "valid_pairs",
			Help:      "Day/source/target cells with data",
		}, []string{"network"}),
		alertTxPPS: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "alert",
			Name:      "tx_pps",
			Help:      "TX packet rate before alerts, avg of avgs, max of maxes, min of mins",
		}, []string{"vm", "device", "window", "stat"}),
	}

	e.registry.MustRegister(
		e.info,
		e.lastRun,
		e.pairBuckets,
		e.pairOutcomes,
		e.pairLossRatio,
		e.pairLatency,
		e.pairDrops,
		e.parseErrors,
		e.monitorLossRate,
		e.monitorLatencyRate,
		e.monitorValidPairs,
		e.alertTxPPS,
	)
	e.info.WithLabelValues(version).Set(1)
	return e
}

// Registry returns the exporter's registry.
func (e *Exporter) Registry() *prometheus.Registry {
	return e.registry
}

// ObserveAnalysis records every pair and the overall aggregate.
func (e *Exporter) ObserveAnalysis(r *analyzer.AnalysisResult) {
	for _, p := range r.Pairs {
		e.observePair(p)
	}
	if r.Overall != nil {
		e.observePair(r.Overall)
	}
	e.setLastRun(r.Metadata.EndTime)
}

func (e *Exporter) observePair(p *analyzer.PairResult) {
	h := p.Histogram
	for label, n := range h.Map() {
		e.pairBuckets.WithLabelValues(p.Name, label).Set(float64(n))
	}

	c := p.Counts
	outcomes := map[string]int{
		OutcomeMatched:  c.Matched,
		OutcomeLost:     c.Lost,
		OutcomeExpired:  c.Expired,
		OutcomeSkewed:   c.Skewed,
		OutcomeSpurious: c.Spurious,
	}
	for outcome, n := range outcomes {
		e.pairOutcomes.WithLabelValues(p.Name, outcome).Set(float64(n))
	}
	e.pairLossRatio.WithLabelValues(p.Name).Set(c.LossRate() / 100)

	if l := p.Latency; l.Count > 0 {
		e.pairLatency.WithLabelValues(p.Name, "0.5").Set(l.Median)
		e.pairLatency.WithLabelValues(p.Name, "0.95").Set(l.P95)
		e.pairLatency.WithLabelValues(p.Name, "0.99").Set(l.P99)
		e.pairLatency.WithLabelValues(p.Name, "0").Set(l.Min)
		e.pairLatency.WithLabelValues(p.Name, "1").Set(l.Max)
	}

	for reason, n := range p.DropReasons {
		e.pairDrops.WithLabelValues(p.Name, reason).Set(float64(n))
	}
	e.parseErrors.WithLabelValues(p.Name, "outgoing").Set(float64(p.OutgoingStats.ParseErrors))
	e.parseErrors.WithLabelValues(p.Name, "incoming").Set(float64(p.IncomingStats.ParseErrors))
}

// ObserveMonitor records the per-network rates of a monitor report.
// Networks without data are skipped.
func (e *Exporter) ObserveMonitor(r *monitor.Report) {
	for _, n := range r.Networks {
		s := n.Summary
		if !s.HasData {
			continue
		}
		network := string(s.Network)
		e.monitorLossRate.WithLabelValues(network).Set(s.LossRate)
		e.monitorLatencyRate.WithLabelValues(network).Set(s.HighLatencyRate)
		e.monitorValidPairs.WithLabelValues(network).Set(float64(s.ValidPairs))
	}
	e.setLastRun(time.Now())
}

// ObserveAlerts records the per-VM window summaries.
func (e *Exporter) ObserveAlerts(r *alerts.Result) {
	for _, s := range r.Summary {
		for _, w := range s.Windows {
			window := strconv.FormatFloat(w.Window.Seconds(), 'f', -1, 64) + "s"
			e.alertTxPPS.WithLabelValues(s.VM, s.Device, window, "avg").Set(w.AvgTx)
			e.alertTxPPS.WithLabelValues(s.VM, s.Device, window, "max").Set(w.MaxTx)
			e.alertTxPPS.WithLabelValues(s.VM, s.Device, window, "min").Set(w.MinTx)
		}
	}
	e.setLastRun(time.Now())
}

func (e *Exporter) setLastRun(t time.Time) {
	if t.IsZero() {
		t = time.Now()
	}
	e.lastRun.Set(float64(t.UnixNano()) / 1e9)
}

// Gather returns the current metric families.
func (e *Exporter) Gather() ([]*dto.MetricFamily, error) {
	return e.registry.Gather()
}

// WriteText encodes every metric family in the text exposition format.
func (e *Exporter) WriteText(w io.Writer) error {
	families, err := e.Gather()
	if err != nil {
		return fmt.Errorf("gathering metrics: %w", err)
	}
	enc := expfmt.NewEncoder(w, expfmt.FmtText)
	for _, mf := range families {
		if err := enc.Encode(mf); err != nil {
			return fmt.Errorf("encoding %s: %w", mf.GetName(), err)
		}
	}
	return nil
}

// WriteFile writes the metrics to path through a temporary file and a
// rename, so a collector never reads a partial file.
func (e *Exporter) WriteFile(path string) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp*")
	if err != nil {
		return fmt.Errorf("creating metrics file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := e.WriteText(tmp); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing metrics file: %w", err)
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return fmt.Errorf("setting metrics file mode: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("renaming metrics file: %w", err)
	}
	return nil
}
