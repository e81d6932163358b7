package analyzer

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"time"

	"github.com/ccollicutt/latlog/pkg/config"
	"github.com/ccollicutt/latlog/pkg/histogram"
	"github.com/ccollicutt/latlog/pkg/matcher"
	"github.com/ccollicutt/latlog/pkg/parser"
)

// Analyzer runs the latency pipeline for every configured node pair.
type Analyzer struct {
	cfg    *config.Config
	format parser.Format

	// Options
	window     time.Duration
	top        int
	pairFilter map[string]bool // nil means all pairs
	logger     *slog.Logger
}

// AnalyzerOption configures analyzer behavior.
type AnalyzerOption func(*Analyzer)

// WithWindow overrides the configured match window.
func WithWindow(d time.Duration) AnalyzerOption {
	return func(a *Analyzer) {
		a.window = d
	}
}

// WithTopPairs overrides how many of the slowest pairs are kept.
func WithTopPairs(n int) AnalyzerOption {
	return func(a *Analyzer) {
		a.top = n
	}
}

// WithPairFilter limits analysis to the named node pairs.
func WithPairFilter(names []string) AnalyzerOption {
	return func(a *Analyzer) {
		if len(names) > 0 {
			a.pairFilter = make(map[string]bool)
			for _, n := range names {
				a.pairFilter[n] = true
			}
		}
	}
}

// WithLogger sets the logger for progress and data quality messages.
func WithLogger(logger *slog.Logger) AnalyzerOption {
	return func(a *Analyzer) {
		a.logger = logger
	}
}

// NewAnalyzer creates an analyzer from a validated configuration.
func NewAnalyzer(cfg *config.Config, opts ...AnalyzerOption) (*Analyzer, error) {
	a := &Analyzer{
		cfg:    cfg,
		window: cfg.MatchWindow,
		top:    cfg.TopPairs,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	for _, opt := range opts {
		opt(a)
	}

	if len(cfg.NodePairs) == 0 {
		return nil, fmt.Errorf("no node pairs configured")
	}
	if a.pairFilter != nil {
		found := 0
		for _, p := range cfg.NodePairs {
			if a.pairFilter[p.Name] {
				found++
			}
		}
		if found == 0 {
			return nil, fmt.Errorf("no node pairs to analyze (check --pair filter)")
		}
	}

	format, err := parser.NewFormat(cfg.Format, parser.FormatOptions{
		TimestampPattern: cfg.TimestampFormat.CompiledPattern(),
		TimestampLayout:  cfg.TimestampFormat.Layout,
		TokenPattern:     cfg.CompiledTokenPattern(),
	})
	if err != nil {
		return nil, fmt.Errorf("creating sample format: %w", err)
	}
	a.format = format

	return a, nil
}

// Analyze processes every node pair and returns per-pair and overall results.
func (a *Analyzer) Analyze(ctx context.Context) (*AnalysisResult, error) {
	result := &AnalysisResult{
		Metadata: AnalysisMetadata{
			Name:             a.cfg.Name,
			Buckets:          a.cfg.Buckets,
			Window:           a.window,
			StageThresholdMs: a.cfg.StageThresholdMs,
			StartTime:        time.Now(),
		},
	}

	overall, err := newAccumulator(a.cfg.Buckets, a.cfg.StageThresholdMs)
	if err != nil {
		return nil, err
	}
	overallResult := &PairResult{Name: "overall"}

	for _, pair := range a.cfg.NodePairs {
		if a.pairFilter != nil && !a.pairFilter[pair.Name] {
			continue
		}

		pr, err := a.analyzePair(ctx, pair, overall)
		if err != nil {
			return nil, fmt.Errorf("node pair %q: %w", pair.Name, err)
		}
		result.Pairs = append(result.Pairs, pr)

		overallResult.Counts = overallResult.Counts.Add(pr.Counts)
		overallResult.OutgoingStats = overallResult.OutgoingStats.Add(pr.OutgoingStats)
		overallResult.IncomingStats = overallResult.IncomingStats.Add(pr.IncomingStats)
		overallResult.Slowest = append(overallResult.Slowest, pr.Slowest...)
	}

	overall.fill(overallResult)
	overallResult.Slowest = topSlowest(overallResult.Slowest, a.top)
	result.Overall = overallResult
	result.Metadata.EndTime = time.Now()

	return result, nil
}

// analyzePair reads, matches and summarizes one node pair. Its latencies
// are also added to overall.
func (a *Analyzer) analyzePair(ctx context.Context, pair config.NodePairConfig, overall *accumulator) (*PairResult, error) {
	out, outFiles, outStats, err := a.readDirection(ctx, pair.OutgoingFile, parser.DirectionOutgoing)
	if err != nil {
		return nil, err
	}
	in, inFiles, inStats, err := a.readDirection(ctx, pair.IncomingFile, parser.DirectionIncoming)
	if err != nil {
		return nil, err
	}

	res, err := matcher.Match(out, in,
		matcher.WithWindow(a.window),
		matcher.WithLogger(a.logger.With("pair", pair.Name)))
	if err != nil {
		return nil, fmt.Errorf("matching samples: %w", err)
	}

	acc, err := newAccumulator(a.cfg.Buckets, a.cfg.StageThresholdMs)
	if err != nil {
		return nil, err
	}

	for _, s := range out {
		acc.addDrop(s)
		overall.addDrop(s)
	}
	for _, s := range in {
		acc.addDrop(s)
		overall.addDrop(s)
	}

	var slow []SlowPair
	for _, p := range res.Pairs {
		acc.addPair(p)
		overall.addPair(p)
		if ms, ok := p.LatencyMs(); ok {
			slow = append(slow, SlowPair{
				Token:     p.Token,
				Outgoing:  p.Outgoing.Timestamp,
				LatencyMs: ms,
				MaxStage:  maxStage(p),
				Source:    p.Outgoing.Source,
				LineNum:   p.Outgoing.LineNum,
			})
		}
	}

	pr := &PairResult{
		Name:          pair.Name,
		SrcIP:         pair.SrcIP,
		DstIP:         pair.DstIP,
		OutgoingFiles: outFiles,
		IncomingFiles: inFiles,
		OutgoingStats: outStats,
		IncomingStats: inStats,
		Counts: MatchCounts{
			Outgoing:   res.Outgoing,
			Incoming:   res.Incoming,
			Matched:    res.Matched,
			Lost:       res.Lost,
			Expired:    res.Expired,
			Skewed:     res.Skewed,
			Spurious:   res.Spurious,
			OutOfOrder: res.OutOfOrder,
		},
		Slowest: topSlowest(slow, a.top),
	}
	acc.fill(pr)

	a.logger.Info("analyzed node pair",
		"pair", pair.Name,
		"outgoing", res.Outgoing, "incoming", res.Incoming,
		"matched", res.Matched, "lost", res.Lost,
		"skewed", res.Skewed, "spurious", res.Spurious)
	if n := outStats.ParseErrors + inStats.ParseErrors; n > 0 {
		a.logger.Warn("skipped malformed records", "pair", pair.Name, "count", n)
	}
	if res.OutOfOrder > 0 {
		a.logger.Warn("rejected out-of-order samples", "pair", pair.Name, "count", res.OutOfOrder)
	}

	return pr, nil
}

func (a *Analyzer) readDirection(ctx context.Context, pattern string, dir parser.Direction) ([]parser.Sample, []string, parser.SourceStats, error) {
	src, files, err := parser.OpenSource([]string{pattern}, a.format, dir)
	if err != nil {
		return nil, nil, parser.SourceStats{}, fmt.Errorf("opening %s log: %w", dir, err)
	}
	defer src.Close()

	samples, err := parser.ReadAll(ctx, src)
	if err != nil {
		return nil, nil, parser.SourceStats{}, fmt.Errorf("reading %s log: %w", dir, err)
	}
	return samples, files, src.Stats(), nil
}

// maxStage returns the slowest traced stage of a pair, prefixed with the
// direction it was seen in.
func maxStage(p matcher.Pair) string {
	var out, in *parser.TraceDetail
	out = p.Outgoing.Trace
	if p.Incoming != nil {
		in = p.Incoming.Trace
	}

	switch {
	case out != nil && out.MaxStage != "" && (in == nil || in.MaxStage == "" || out.MaxLatency >= in.MaxLatency):
		return "OUTGOING_" + out.MaxStage
	case in != nil && in.MaxStage != "":
		return "INCOMING_" + in.MaxStage
	default:
		return ""
	}
}

// topSlowest sorts by latency descending and keeps the first n.
// Ties keep their original order.
func topSlowest(pairs []SlowPair, n int) []SlowPair {
	sort.SliceStable(pairs, func(i, j int) bool {
		return pairs[i].LatencyMs > pairs[j].LatencyMs
	})
	if n >= 0 && len(pairs) > n {
		pairs = pairs[:n]
	}
	return pairs
}

// accumulator holds the running aggregates of a pair or of all pairs.
type accumulator struct {
	hist      *histogram.Aggregator
	above     *histogram.Aggregator
	summary   *histogram.Summarizer
	threshold float64
	drops     map[string]int
	stages    map[string]int
}

func newAccumulator(edges []float64, thresholdMs float64) (*accumulator, error) {
	hist, err := histogram.New(edges)
	if err != nil {
		return nil, err
	}
	above, err := histogram.New(edges)
	if err != nil {
		return nil, err
	}
	return &accumulator{
		hist:      hist,
		above:     above,
		summary:   histogram.NewSummarizer(),
		threshold: thresholdMs,
		drops:     make(map[string]int),
		stages:    make(map[string]int),
	}, nil
}

func (acc *accumulator) addPair(p matcher.Pair) {
	acc.hist.Add(p)

	ms, ok := p.LatencyMs()
	if !ok {
		return
	}
	acc.summary.Add(ms)
	if ms >= acc.threshold {
		acc.above.AddLatency(ms)
		if stage := maxStage(p); stage != "" {
			acc.stages[stage]++
		}
	}
}

func (acc *accumulator) addDrop(s parser.Sample) {
	if s.Trace == nil || !s.Trace.Drop {
		return
	}
	prefix := "OUTGOING_"
	if s.Direction == parser.DirectionIncoming {
		prefix = "INCOMING_"
	}
	acc.drops[prefix+s.Trace.DropReason]++
}

func (acc *accumulator) fill(r *PairResult) {
	r.Histogram = acc.hist.Histogram()
	r.AboveThreshold = acc.above.Histogram()
	r.Latency = acc.summary.Stats()
	if len(acc.drops) > 0 {
		r.DropReasons = acc.drops
	}
	if len(acc.stages) > 0 {
		r.MaxStages = acc.stages
	}
}
