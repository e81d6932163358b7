package commands

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/ccollicutt/latlog/internal/logging"
	"github.com/ccollicutt/latlog/pkg/config"
	"github.com/ccollicutt/latlog/pkg/metrics"
	"github.com/ccollicutt/latlog/pkg/webhook"
)

// ExitCode is set by commands to indicate the result
var ExitCode = 0

// GlobalOptions holds the root command's persistent flags.
type GlobalOptions struct {
	LogLevel  string
	LogFormat string
}

// Logger builds the stderr logger selected by the persistent flags.
func (g *GlobalOptions) Logger() (*slog.Logger, error) {
	if g == nil {
		return logging.Discard(), nil
	}
	return logging.NewLogger(os.Stderr, g.LogFormat, g.LogLevel)
}

// ReportOptions are the output flags shared by the analysis commands.
type ReportOptions struct {
	Output      string
	OutputDir   string
	MetricsFile string
	Verbose     bool
	Quiet       bool

	// Webhook options
	WebhookURL     string
	WebhookToken   string
	WebhookTrigger string
}

func (o *ReportOptions) addFlags(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&o.Output, "output", "o", "text", "Output format (text|json|markdown)")
	cmd.Flags().StringVar(&o.OutputDir, "output-dir", "", "Also write report files to this directory")
	cmd.Flags().StringVar(&o.MetricsFile, "metrics-file", "", "Write Prometheus text-format metrics to this file")
	cmd.Flags().BoolVarP(&o.Verbose, "verbose", "v", false, "Show detailed output")
	cmd.Flags().BoolVarP(&o.Quiet, "quiet", "q", false, "Summary only, no details")

	// Webhook flags
	cmd.Flags().StringVar(&o.WebhookURL, "webhook-url", "", "Webhook endpoint URL")
	cmd.Flags().StringVar(&o.WebhookToken, "webhook-token", "", "Bearer token for webhook auth")
	cmd.Flags().StringVar(&o.WebhookTrigger, "webhook-trigger", "on_issues", "When to fire webhook (on_issues|always|never)")
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

// writeFile creates path, creating its directory if needed, and fills it
// with write.
func writeFile(path string, write func(io.Writer) error) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("creating output directory: %w", err)
	}
	f, err := os.Create(path) // #nosec G304 -- output path comes from flags or config
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	if err := write(f); err != nil {
		_ = f.Close()
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return f.Close()
}

// writeMetrics writes the exporter's metrics when a metrics file was requested.
func writeMetrics(exp *metrics.Exporter, path string, logger *slog.Logger) error {
	if path == "" {
		return nil
	}
	if err := exp.WriteFile(path); err != nil {
		return fmt.Errorf("writing metrics: %w", err)
	}
	logger.Info("wrote metrics", "path", path)
	return nil
}

// sendWebhooks posts payload to every configured webhook.
// Failures are logged but don't fail the analysis.
func sendWebhooks(ctx context.Context, cfg *config.Config, opts *ReportOptions, payload any, hasIssues bool, logger *slog.Logger) {
	hooks := collectWebhooks(cfg, opts)
	if len(hooks) == 0 {
		return
	}
	webhook.NewClient(Version).Dispatch(ctx, hooks, payload, hasIssues, logger)
}

// collectWebhooks merges config file webhooks with CLI webhook.
func collectWebhooks(cfg *config.Config, opts *ReportOptions) []config.WebhookConfig {
	webhooks := make([]config.WebhookConfig, 0, len(cfg.Webhooks)+1)

	// Add config file webhooks
	webhooks = append(webhooks, cfg.Webhooks...)

	// Add CLI webhook if specified
	if opts.WebhookURL != "" {
		trigger := config.WebhookTrigger(opts.WebhookTrigger)
		if trigger == "" {
			trigger = config.WebhookTriggerOnIssues
		}

		webhooks = append(webhooks, config.WebhookConfig{
			Name:    "cli",
			URL:     opts.WebhookURL,
			Token:   opts.WebhookToken,
			Trigger: trigger,
			Timeout: config.DefaultWebhookTimeout,
		})
	}

	return webhooks
}
