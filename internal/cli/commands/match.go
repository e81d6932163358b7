package commands

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/ccollicutt/latlog/pkg/analyzer"
	"github.com/ccollicutt/latlog/pkg/chart"
	"github.com/ccollicutt/latlog/pkg/config"
	"github.com/ccollicutt/latlog/pkg/metrics"
	"github.com/ccollicutt/latlog/pkg/output"
)

// MatchOptions holds command-line options for the match command.
type MatchOptions struct {
	ReportOptions

	ConfigFile string

	// Single pair without a config file
	SrcIP    string
	DstIP    string
	Outgoing string
	Incoming string
	Name     string

	Format       string
	Buckets      string
	Window       time.Duration
	Top          int
	Pairs        []string
	Plot         string
	FailOnIssues bool
}

// NewMatchCommand creates the match command.
func NewMatchCommand(global *GlobalOptions) *cobra.Command {
	opts := &MatchOptions{}

	cmd := &cobra.Command{
		Use:   "match",
		Short: "Match probe samples and report latency and packet loss",
		Long: `Match outgoing and incoming probe samples for each node pair and report
latency histograms, quantiles, packet loss, clock skew and spurious samples.

Node pairs come from a configuration file (--config) or from a single pair
given with --src-ip, --dst-ip, --outgoing and --incoming.

Exit codes:
  0 - Analysis completed
  1 - Issues found and --fail-on-issues set
  2 - Configuration or runtime error`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := global.Logger()
			if err != nil {
				return err
			}
			return runMatch(cmd, opts, logger)
		},
	}

	cmd.Flags().StringVarP(&opts.ConfigFile, "config", "c", "", "Configuration file")
	cmd.Flags().StringVar(&opts.SrcIP, "src-ip", "", "Source node IP (without --config)")
	cmd.Flags().StringVar(&opts.DstIP, "dst-ip", "", "Destination node IP (without --config)")
	cmd.Flags().StringVar(&opts.Outgoing, "outgoing", "", "Outgoing sample log, glob allowed (without --config)")
	cmd.Flags().StringVar(&opts.Incoming, "incoming", "", "Incoming sample log, glob allowed (without --config)")
	cmd.Flags().StringVar(&opts.Name, "name", "", "Pair and analysis name (without --config)")

	cmd.Flags().StringVar(&opts.Format, "format", "", "Sample format (icmp-trace|json|regex)")
	cmd.Flags().StringVar(&opts.Buckets, "buckets", "", "Histogram bucket edges in ms, e.g. 10,100,500")
	cmd.Flags().DurationVar(&opts.Window, "window", 0, "Match window for outgoing samples, 0 for unbounded")
	cmd.Flags().IntVar(&opts.Top, "top", 0, "Number of slowest pairs to report")
	cmd.Flags().StringSliceVar(&opts.Pairs, "pair", nil, "Analyze the named node pair(s) only (can be repeated)")
	cmd.Flags().StringVar(&opts.Plot, "plot", "", "Render latency histograms to this image file (png|svg|pdf)")
	cmd.Flags().BoolVar(&opts.FailOnIssues, "fail-on-issues", false, "Exit 1 when loss, skew or spurious samples are found")
	opts.addFlags(cmd)

	return cmd
}

func runMatch(cmd *cobra.Command, opts *MatchOptions, logger *slog.Logger) error {
	ctx := commandContext(cmd)

	cfg, err := loadMatchConfig(cmd, opts)
	if err != nil {
		return err
	}

	var analyzerOpts []analyzer.AnalyzerOption
	if cmd.Flags().Changed("window") {
		analyzerOpts = append(analyzerOpts, analyzer.WithWindow(opts.Window))
	}
	if cmd.Flags().Changed("top") {
		analyzerOpts = append(analyzerOpts, analyzer.WithTopPairs(opts.Top))
	}
	analyzerOpts = append(analyzerOpts,
		analyzer.WithPairFilter(opts.Pairs),
		analyzer.WithLogger(logger),
	)

	a, err := analyzer.NewAnalyzer(cfg, analyzerOpts...)
	if err != nil {
		return fmt.Errorf("creating analyzer: %w", err)
	}

	result, err := a.Analyze(ctx)
	if err != nil {
		return fmt.Errorf("analysis failed: %w", err)
	}

	report := output.NewReport(result, opts.ConfigFile)

	formatter, err := output.NewFormatter(opts.Output, output.FormatOptions{
		Verbose: opts.Verbose,
		Quiet:   opts.Quiet,
	})
	if err != nil {
		return err
	}

	if err := formatter.Format(ctx, report, cmd.OutOrStdout()); err != nil {
		return fmt.Errorf("formatting output: %w", err)
	}

	outputDir := opts.OutputDir
	if outputDir == "" {
		outputDir = cfg.OutputDir
	}
	if outputDir != "" {
		if err := writeMatchFiles(cmd, outputDir, report); err != nil {
			return err
		}
		logger.Info("wrote reports", "dir", outputDir)
	}

	if opts.Plot != "" {
		if err := plotResult(result, opts.Plot, logger); err != nil {
			return err
		}
	}

	if opts.MetricsFile != "" {
		exp := metrics.New(Version)
		exp.ObserveAnalysis(result)
		if err := writeMetrics(exp, opts.MetricsFile, logger); err != nil {
			return err
		}
	}

	sendWebhooks(ctx, cfg, &opts.ReportOptions, report, report.HasIssues(), logger)

	if opts.FailOnIssues && report.HasIssues() {
		ExitCode = 1
	}

	return nil
}

// loadMatchConfig loads the config file, or builds a one-pair config from
// flags, then applies the flag overrides.
func loadMatchConfig(cmd *cobra.Command, opts *MatchOptions) (*config.Config, error) {
	var cfg *config.Config
	if opts.ConfigFile != "" {
		if opts.SrcIP != "" || opts.DstIP != "" || opts.Outgoing != "" || opts.Incoming != "" {
			return nil, errors.New("--config cannot be combined with --src-ip, --dst-ip, --outgoing or --incoming")
		}
		loaded, err := config.Load(commandContext(cmd), opts.ConfigFile)
		if err != nil {
			return nil, fmt.Errorf("loading config: %w", err)
		}
		cfg = loaded
	} else {
		if opts.SrcIP == "" || opts.DstIP == "" {
			return nil, errors.New("need --src-ip and --dst-ip, or --config")
		}
		if opts.Outgoing == "" || opts.Incoming == "" {
			return nil, errors.New("need --outgoing and --incoming log files, or --config")
		}
		cfg = config.DefaultConfig()
		cfg.NodePairs = []config.NodePairConfig{{
			Name:         opts.Name,
			SrcIP:        opts.SrcIP,
			DstIP:        opts.DstIP,
			OutgoingFile: opts.Outgoing,
			IncomingFile: opts.Incoming,
		}}
		cfg.Name = opts.Name
		if cfg.Name == "" {
			cfg.Name = fmt.Sprintf("%s-%s", opts.SrcIP, opts.DstIP)
		}
		if err := cfg.ApplyEnvironmentOverrides(); err != nil {
			return nil, fmt.Errorf("applying environment overrides: %w", err)
		}
	}

	if opts.Format != "" {
		cfg.Format = opts.Format
	}
	if opts.Buckets != "" {
		edges, err := config.ParseBuckets(opts.Buckets)
		if err != nil {
			return nil, fmt.Errorf("--buckets: %w", err)
		}
		cfg.Buckets = edges
	}

	if err := config.Validate(cfg); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

// writeMatchFiles writes the full JSON analysis and the JSON summary.
func writeMatchFiles(cmd *cobra.Command, dir string, report *output.Report) error {
	ctx := commandContext(cmd)
	full := output.NewJSONFormatter(output.FormatOptions{Verbose: true})
	summary := output.NewJSONFormatter(output.FormatOptions{Quiet: true})
	name := report.Metadata.Name

	if err := writeFile(filepath.Join(dir, name+"_analysis.json"), func(w io.Writer) error {
		return full.Format(ctx, report, w)
	}); err != nil {
		return err
	}
	return writeFile(filepath.Join(dir, name+"_latency_summary.json"), func(w io.Writer) error {
		return summary.Format(ctx, report, w)
	})
}

// plotResult renders the overall histogram to path and, with more than
// one pair, each pair's histogram next to it.
func plotResult(result *analyzer.AnalysisResult, path string, logger *slog.Logger) error {
	if err := chart.Save(result.Overall.Histogram, result.Metadata.Name+" latency", path); err != nil {
		if errors.Is(err, chart.ErrEmpty) {
			logger.Warn("no matched pairs to plot")
			return nil
		}
		return err
	}
	logger.Info("wrote plot", "path", path)

	if len(result.Pairs) < 2 {
		return nil
	}
	for _, p := range result.Pairs {
		pairPath := chart.PairPath(filepath.Dir(path), path, p.Name)
		if err := chart.Save(p.Histogram, p.Name+" latency", pairPath); err != nil {
			if errors.Is(err, chart.ErrEmpty) {
				logger.Warn("no matched pairs to plot", "pair", p.Name)
				continue
			}
			return err
		}
		logger.Info("wrote plot", "path", pairPath)
	}
	return nil
}
