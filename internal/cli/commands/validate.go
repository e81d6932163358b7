package commands

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/spf13/cobra"

	"github.com/ccollicutt/latlog/pkg/config"
	"github.com/ccollicutt/latlog/pkg/parser"
)

// NewValidateCommand creates the validate command.
func NewValidateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <config-file>",
		Short: "Validate a configuration file",
		Long: `Validate a latlog configuration file without running analysis.

Checks:
  - YAML syntax
  - Sample format and regex pattern validity
  - Bucket edges, node pair addresses and alert windows
  - Webhook URLs and triggers
  - Log file and node directory existence (warning only)`,
		Args: cobra.ExactArgs(1),
		RunE: runValidate,
	}
}

func runValidate(cmd *cobra.Command, args []string) error {
	configPath := args[0]
	w := cmd.OutOrStdout()

	fmt.Fprintf(w, "Validating %s...\n", configPath)

	cfg, err := config.Load(commandContext(cmd), configPath)
	if err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	fmt.Fprintf(w, "\nConfiguration valid!\n")
	fmt.Fprintf(w, "  Name:       %s\n", cfg.Name)
	fmt.Fprintf(w, "  Format:     %s\n", cfg.Format)
	fmt.Fprintf(w, "  Buckets:    %v ms\n", cfg.Buckets)
	fmt.Fprintf(w, "  Node pairs: %d\n", len(cfg.NodePairs))
	fmt.Fprintf(w, "  Nodes:      %d\n", len(cfg.Nodes))
	fmt.Fprintf(w, "  Alert VMs:  %d\n", len(cfg.Alerts.VMDevices))
	fmt.Fprintf(w, "  Webhooks:   %d\n", len(cfg.Webhooks))

	if len(cfg.NodePairs) > 0 {
		fmt.Fprintf(w, "\nNode pairs:\n")
		for i, p := range cfg.NodePairs {
			fmt.Fprintf(w, "  %d. %s (%s -> %s)\n", i+1, p.Name, p.SrcIP, p.DstIP)
			checkLogFiles(w, "outgoing", p.OutgoingFile)
			checkLogFiles(w, "incoming", p.IncomingFile)
		}
	}

	if len(cfg.Nodes) > 0 {
		fmt.Fprintf(w, "\nNodes (%s logs):\n", cfg.MonitorSource)
		dirs := make([]string, 0, len(cfg.Nodes))
		for dir := range cfg.Nodes {
			dirs = append(dirs, dir)
		}
		sort.Strings(dirs)
		for _, dir := range dirs {
			n := cfg.Nodes[dir]
			fmt.Fprintf(w, "  - %s (storage %s, management %s)\n", filepath.Base(dir), n.StorageIP, n.ManagementIP)
			if info, err := os.Stat(dir); err != nil || !info.IsDir() {
				fmt.Fprintf(w, "     Warning: directory not found: %s\n", dir)
			}
		}
	}

	return nil
}

// checkLogFiles prints how many files a log pattern matches, warning when
// none do.
func checkLogFiles(w io.Writer, label, pattern string) {
	files, err := parser.GlobExisting(pattern)
	switch {
	case err != nil:
		fmt.Fprintf(w, "     Warning: %s: error expanding %s: %v\n", label, pattern, err)
	case len(files) == 0:
		fmt.Fprintf(w, "     Warning: %s: no files match %s\n", label, pattern)
	default:
		fmt.Fprintf(w, "     %s: %d file(s)\n", label, len(files))
	}
}
