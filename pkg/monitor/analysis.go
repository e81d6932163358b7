package monitor

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"

	"github.com/ccollicutt/latlog/pkg/config"
)

// Network is one of the two cluster networks every node probes.
type Network string

const (
	NetworkStorage    Network = "storage"
	NetworkManagement Network = "management"
)

// Networks lists the networks in report order.
var Networks = []Network{NetworkStorage, NetworkManagement}

// Title returns the display name of the network.
func (n Network) Title() string {
	switch n {
	case NetworkStorage:
		return "Storage Network"
	case NetworkManagement:
		return "Management Network"
	default:
		return string(n)
	}
}

// Cell accumulates the probes from one source IP to one target IP on one day.
type Cell struct {
	PacketsLost int  `json:"packets_lost"`
	HighLatency int  `json:"high_latency"`
	HasData     bool `json:"has_data"`
}

// Day maps source IP to target IP to cell.
type Day map[string]map[string]*Cell

// NetworkStats holds every day of one network.
type NetworkStats struct {
	Network Network `json:"network"`

	// IPs are the network's node addresses, sorted.
	IPs []string `json:"ips"`

	Days map[string]Day `json:"days"`
}

// Dates returns the days with data, oldest first.
func (n *NetworkStats) Dates() []string {
	dates := make([]string, 0, len(n.Days))
	for d := range n.Days {
		dates = append(dates, d)
	}
	sort.Strings(dates)
	return dates
}

// Cell returns the cell for a day and IP pair, nil without data.
func (n *NetworkStats) Cell(date, src, dst string) *Cell {
	c := n.Days[date][src][dst]
	if c == nil || !c.HasData {
		return nil
	}
	return c
}

func (n *NetworkStats) add(date, src, dst string, e *Entry) {
	day, ok := n.Days[date]
	if !ok {
		day = make(Day)
		n.Days[date] = day
	}
	row, ok := day[src]
	if !ok {
		row = make(map[string]*Cell)
		day[src] = row
	}
	c, ok := row[dst]
	if !ok {
		c = &Cell{}
		row[dst] = c
	}
	c.HasData = true
	c.PacketsLost += e.PacketsLost
	c.HighLatency += e.HighLatency
}

// Result is the aggregated monitor data of all nodes.
type Result struct {
	Source string `json:"source"`

	// DailyPackets is the expected probe count per IP pair per day.
	DailyPackets int `json:"daily_packets_per_pair"`

	Networks map[Network]*NetworkStats `json:"networks"`

	Files       int      `json:"files"`
	Entries     int      `json:"entries"`
	Malformed   int      `json:"malformed"`
	Unknown     int      `json:"unknown_targets"`
	MissingDirs []string `json:"missing_dirs,omitempty"`
}

// Analyze reads every configured node directory and aggregates probe
// results by network, day, source and target. A missing node directory is
// logged and skipped.
func Analyze(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Result, error) {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if len(cfg.Nodes) == 0 {
		return nil, fmt.Errorf("no nodes configured")
	}

	reader, err := NewReader(cfg.MonitorSource)
	if err != nil {
		return nil, err
	}

	storage := make(map[string]bool)
	management := make(map[string]bool)
	for _, node := range cfg.Nodes {
		storage[node.StorageIP] = true
		management[node.ManagementIP] = true
	}

	result := &Result{
		Source:       cfg.MonitorSource,
		DailyPackets: cfg.DailyPacketsPerPair(),
		Networks: map[Network]*NetworkStats{
			NetworkStorage:    {Network: NetworkStorage, IPs: sortedKeys(storage), Days: make(map[string]Day)},
			NetworkManagement: {Network: NetworkManagement, IPs: sortedKeys(management), Days: make(map[string]Day)},
		},
	}

	dirs := make([]string, 0, len(cfg.Nodes))
	for dir := range cfg.Nodes {
		dirs = append(dirs, dir)
	}
	sort.Strings(dirs)

	for _, dir := range dirs {
		node := cfg.Nodes[dir]
		if _, err := os.Stat(dir); err != nil {
			logger.Warn("node log directory not found", "dir", dir)
			result.MissingDirs = append(result.MissingDirs, dir)
			continue
		}

		files, err := reader.Files(dir)
		if err != nil {
			return nil, fmt.Errorf("listing monitor logs in %s: %w", dir, err)
		}
		if len(files) == 0 {
			logger.Warn("no monitor logs found", "dir", dir, "source", cfg.MonitorSource)
			continue
		}

		add := func(e *Entry) {
			result.Entries++
			switch {
			case storage[e.TargetIP]:
				result.Networks[NetworkStorage].add(e.Date, node.StorageIP, e.TargetIP, e)
			case management[e.TargetIP]:
				result.Networks[NetworkManagement].add(e.Date, node.ManagementIP, e.TargetIP, e)
			default:
				result.Unknown++
			}
		}

		for _, path := range files {
			malformed, err := reader.Read(ctx, path, add)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", path, err)
			}
			result.Files++
			result.Malformed += malformed
		}
		logger.Debug("read node logs", "dir", dir, "files", len(files))
	}

	if result.Malformed > 0 {
		logger.Warn("skipped malformed monitor lines", "count", result.Malformed)
	}
	logger.Info("aggregated monitor logs",
		"source", result.Source, "files", result.Files,
		"entries", result.Entries, "unknown_targets", result.Unknown)

	return result, nil
}

func sortedKeys(m map[string]bool) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
