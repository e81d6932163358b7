// Package cli provides the command-line interface for latlog.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ccollicutt/latlog/internal/cli/commands"
)

// Execute runs the root command and returns the exit code.
func Execute() int {
	rootCmd := NewRootCommand()

	if err := rootCmd.Execute(); err != nil {
		// Print error to stderr (SilenceErrors prevents Cobra from doing this)
		_, _ = fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 2 // Configuration or runtime error
	}
	return commands.ExitCode
}

// NewRootCommand creates the root cobra command.
func NewRootCommand() *cobra.Command {
	global := &commands.GlobalOptions{}

	rootCmd := &cobra.Command{
		Use:   "latlog",
		Short: "Analyze node-to-node network latency and packet loss",
		Long: `latlog is a batch analysis tool for ICMP probe logs collected on cluster nodes.

It provides:
  - Latency histograms and loss counts from paired outgoing/incoming samples
  - Daily network quality summaries from network monitor logs
  - Packet rates on VM tap devices around monitoring alerts

Reports are written as text, JSON or Markdown.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&global.LogLevel, "log-level", "warn", "Log level (debug|info|warn|error)")
	rootCmd.PersistentFlags().StringVar(&global.LogFormat, "log-format", "text", "Log format (text|json)")

	// Add subcommands
	rootCmd.AddCommand(commands.NewMatchCommand(global))
	rootCmd.AddCommand(commands.NewMonitorCommand(global))
	rootCmd.AddCommand(commands.NewAlertsCommand(global))
	rootCmd.AddCommand(commands.NewDetectCommand())
	rootCmd.AddCommand(commands.NewValidateCommand())
	rootCmd.AddCommand(commands.NewVersionCommand())

	return rootCmd
}
