package commands

import (
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/ccollicutt/latlog/pkg/alerts"
	"github.com/ccollicutt/latlog/pkg/config"
	"github.com/ccollicutt/latlog/pkg/metrics"
	"github.com/ccollicutt/latlog/pkg/output"
)

// AlertsOptions holds command-line options for the alerts command.
type AlertsOptions struct {
	ReportOptions

	AlertsFile string
	PPSFile    string
	ConfigFile string
	CSVFile    string
	Devices    map[string]string
	Windows    []time.Duration
}

// NewAlertsCommand creates the alerts command.
func NewAlertsCommand(global *GlobalOptions) *cobra.Command {
	opts := &AlertsOptions{}

	cmd := &cobra.Command{
		Use:   "alerts",
		Short: "Report VM tap device packet rates before each alert",
		Long: `Correlate monitoring alerts with the packet rate log of each VM's tap device.

For every alert of a known VM and every look-back window, the average,
maximum and minimum TX packets per second before the alert are reported,
followed by a per-VM summary.

VMs and their devices come from alerts.vm_devices in --config, or from
--device suffix=tapname.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := global.Logger()
			if err != nil {
				return err
			}
			return runAlerts(cmd, opts, logger)
		},
	}

	cmd.Flags().StringVar(&opts.AlertsFile, "alerts", "", "Alert export CSV")
	cmd.Flags().StringVar(&opts.PPSFile, "pps", "", "Packet rate log")
	cmd.Flags().StringVarP(&opts.ConfigFile, "config", "c", "", "Configuration file with an alerts section")
	cmd.Flags().StringVar(&opts.CSVFile, "csv", "", "Write per-alert window statistics to this CSV file")
	cmd.Flags().StringToStringVar(&opts.Devices, "device", nil, "VM suffix to tap device, e.g. 4f2a=tap0a1b (can be repeated)")
	cmd.Flags().DurationSliceVar(&opts.Windows, "window", nil, "Look-back windows, e.g. 1m,5m")
	_ = cmd.MarkFlagRequired("alerts")
	_ = cmd.MarkFlagRequired("pps")
	opts.addFlags(cmd)

	return cmd
}

func runAlerts(cmd *cobra.Command, opts *AlertsOptions, logger *slog.Logger) error {
	ctx := commandContext(cmd)

	cfg, err := loadAlertsConfig(cmd, opts)
	if err != nil {
		return err
	}

	result, err := alerts.Run(ctx, &cfg.Alerts, opts.AlertsFile, opts.PPSFile, logger)
	if err != nil {
		return fmt.Errorf("alert analysis failed: %w", err)
	}

	formatter, err := output.NewFormatter(opts.Output, output.FormatOptions{
		Verbose: opts.Verbose,
		Quiet:   opts.Quiet,
	})
	if err != nil {
		return err
	}
	if err := formatter.FormatAlerts(ctx, result, cmd.OutOrStdout()); err != nil {
		return fmt.Errorf("formatting output: %w", err)
	}

	if opts.CSVFile != "" {
		if err := writeFile(opts.CSVFile, func(w io.Writer) error {
			return alerts.WriteCSV(w, result.Rows, cfg.Alerts.TimeLayout)
		}); err != nil {
			return err
		}
		logger.Info("wrote csv", "path", opts.CSVFile, "rows", len(result.Rows))
	}

	outputDir := opts.OutputDir
	if outputDir == "" {
		outputDir = cfg.OutputDir
	}
	if outputDir != "" {
		full := output.NewJSONFormatter(output.FormatOptions{})
		if err := writeFile(filepath.Join(outputDir, cfg.Name+"_alerts.json"), func(w io.Writer) error {
			return full.FormatAlerts(ctx, result, w)
		}); err != nil {
			return err
		}
		logger.Info("wrote reports", "dir", outputDir)
	}

	if opts.MetricsFile != "" {
		exp := metrics.New(Version)
		exp.ObserveAlerts(result)
		if err := writeMetrics(exp, opts.MetricsFile, logger); err != nil {
			return err
		}
	}

	sendWebhooks(ctx, cfg, &opts.ReportOptions, result, len(result.Rows) > 0, logger)

	return nil
}

// loadAlertsConfig loads the optional config file and merges --device and
// --window into its alerts section.
func loadAlertsConfig(cmd *cobra.Command, opts *AlertsOptions) (*config.Config, error) {
	cfg := config.DefaultConfig()
	if opts.ConfigFile != "" {
		loaded, err := config.Load(commandContext(cmd), opts.ConfigFile)
		if err != nil {
			return nil, fmt.Errorf("loading config: %w", err)
		}
		cfg = loaded
	}

	if len(opts.Devices) > 0 {
		devices := make(map[string]string, len(cfg.Alerts.VMDevices)+len(opts.Devices))
		for vm, dev := range cfg.Alerts.VMDevices {
			devices[vm] = dev
		}
		for vm, dev := range opts.Devices {
			devices[vm] = dev
		}
		cfg.Alerts.VMDevices = devices
	}
	if len(opts.Windows) > 0 {
		cfg.Alerts.Windows = opts.Windows
	}

	if len(cfg.Alerts.VMDevices) == 0 {
		return nil, fmt.Errorf("no VM devices: set alerts.vm_devices in --config or use --device")
	}
	if err := config.Validate(cfg); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}
