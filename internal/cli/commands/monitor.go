package commands

import (
	"fmt"
	"io"
	"log/slog"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/ccollicutt/latlog/pkg/config"
	"github.com/ccollicutt/latlog/pkg/metrics"
	"github.com/ccollicutt/latlog/pkg/monitor"
	"github.com/ccollicutt/latlog/pkg/output"
)

// MonitorOptions holds command-line options for the monitor command.
type MonitorOptions struct {
	ReportOptions

	Source string
}

// NewMonitorCommand creates the monitor command.
func NewMonitorCommand(global *GlobalOptions) *cobra.Command {
	opts := &MonitorOptions{}

	cmd := &cobra.Command{
		Use:   "monitor <config-file>",
		Short: "Summarize daily network quality from network monitor logs",
		Long: `Read the network monitor logs of every node listed under "nodes" and grade
the storage and management networks by packet loss and high latency rate.

The report covers per-network grades, a network comparison, the days with
the most loss, data completeness, the quality trend and, with --verbose,
the daily source/target matrices.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := global.Logger()
			if err != nil {
				return err
			}
			return runMonitor(cmd, args[0], opts, logger)
		},
	}

	cmd.Flags().StringVar(&opts.Source, "source", "", "Log source (highlatency|network-monitor)")
	opts.addFlags(cmd)

	return cmd
}

func runMonitor(cmd *cobra.Command, configPath string, opts *MonitorOptions, logger *slog.Logger) error {
	ctx := commandContext(cmd)

	cfg, err := config.Load(ctx, configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if opts.Source != "" {
		cfg.MonitorSource = opts.Source
		if err := config.Validate(cfg); err != nil {
			return fmt.Errorf("--source: %w", err)
		}
	}

	result, err := monitor.Analyze(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("monitor analysis failed: %w", err)
	}
	report := monitor.NewReport(cfg.Name, result)

	formatter, err := output.NewFormatter(opts.Output, output.FormatOptions{
		Verbose: opts.Verbose,
		Quiet:   opts.Quiet,
	})
	if err != nil {
		return err
	}
	if err := formatter.FormatMonitor(ctx, report, cmd.OutOrStdout()); err != nil {
		return fmt.Errorf("formatting output: %w", err)
	}

	outputDir := opts.OutputDir
	if outputDir == "" {
		outputDir = cfg.OutputDir
	}
	if outputDir != "" {
		full := output.NewJSONFormatter(output.FormatOptions{Verbose: true})
		md := output.NewMarkdownFormatter(output.FormatOptions{Verbose: opts.Verbose})
		if err := writeFile(filepath.Join(outputDir, cfg.Name+"_network_report.json"), func(w io.Writer) error {
			return full.FormatMonitor(ctx, report, w)
		}); err != nil {
			return err
		}
		if err := writeFile(filepath.Join(outputDir, cfg.Name+"_network_summary.md"), func(w io.Writer) error {
			return md.FormatMonitor(ctx, report, w)
		}); err != nil {
			return err
		}
		logger.Info("wrote reports", "dir", outputDir)
	}

	if opts.MetricsFile != "" {
		exp := metrics.New(Version)
		exp.ObserveMonitor(report)
		if err := writeMetrics(exp, opts.MetricsFile, logger); err != nil {
			return err
		}
	}

	sendWebhooks(ctx, cfg, &opts.ReportOptions, report, monitorHasIssues(report), logger)

	return nil
}

// monitorHasIssues reports whether any network recorded packet loss.
func monitorHasIssues(report *monitor.Report) bool {
	for _, n := range report.Networks {
		if n.Summary.LossRate > 0 {
			return true
		}
	}
	return false
}
