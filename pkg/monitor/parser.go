// Package monitor analyzes the per-node network-monitor probe logs: packet
// loss and high-latency counts between every pair of nodes, per day and
// per network.
package monitor

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/ccollicutt/latlog/pkg/config"
)

// ErrMalformed is returned for lines that are not monitor records.
var ErrMalformed = errors.New("malformed monitor line")

// Log file names inside a node's log directory.
const (
	HighLatencyFile    = "network-high-latencies.log"
	NetworkMonitorGlob = "network-monitor.log*"

	// networkMonitorMarker selects probe result lines from the full
	// network-monitor log.
	networkMonitorMarker = "lost_num"
)

var entryRe = regexp.MustCompile(`^\[(\d{4}-\d{2}-\d{2}) (\d{2}:\d{2}:\d{2}),\d+: INFO\] (.+)$`)

// Entry is one probe result logged by a node.
type Entry struct {
	Date string // YYYY-MM-DD
	Time string // HH:MM:SS

	// TargetIP is the probed address.
	TargetIP string

	// HighLatency is the number of probes over the latency threshold.
	HighLatency int

	PacketsLost int
}

type entryPayload struct {
	IP          string    `json:"ip"`
	Latencies   []float64 `json:"latencies_over_threshold_in_ms"`
	PacketsLost int       `json:"packet_lost_num"`
}

// ParseLine parses "[YYYY-MM-DD HH:MM:SS,mmm: INFO] {python dict}".
func ParseLine(line string) (*Entry, error) {
	m := entryRe.FindStringSubmatch(strings.TrimSpace(line))
	if m == nil {
		return nil, ErrMalformed
	}

	js, err := pyLiteralToJSON(m[3])
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	var p entryPayload
	if err := json.Unmarshal([]byte(js), &p); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if p.IP == "" {
		return nil, fmt.Errorf("%w: no ip field", ErrMalformed)
	}

	return &Entry{
		Date:        m[1],
		Time:        m[2],
		TargetIP:    p.IP,
		HighLatency: len(p.Latencies),
		PacketsLost: p.PacketsLost,
	}, nil
}

// Reader yields the entries of one node's log directory.
type Reader interface {
	// Files lists the log files the reader will consume.
	Files(dir string) ([]string, error)

	// Read calls fn for every parsed entry and returns the number of
	// malformed lines skipped.
	Read(ctx context.Context, path string, fn func(*Entry)) (int, error)
}

// NewReader returns the reader for a monitor source name.
func NewReader(source string) (Reader, error) {
	switch source {
	case config.MonitorSourceHighLatency, "":
		return highLatencyReader{}, nil
	case config.MonitorSourceNetworkMonitor:
		return networkMonitorReader{}, nil
	default:
		return nil, fmt.Errorf("unknown monitor source: %s", source)
	}
}

// highLatencyReader reads the dedicated high-latency log, where every
// line is a probe result.
type highLatencyReader struct{}

func (highLatencyReader) Files(dir string) ([]string, error) {
	path := filepath.Join(dir, HighLatencyFile)
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	return []string{path}, nil
}

func (highLatencyReader) Read(ctx context.Context, path string, fn func(*Entry)) (int, error) {
	return readLines(ctx, path, "", fn)
}

// networkMonitorReader reads the rotated general monitor logs and keeps
// only the probe result lines.
type networkMonitorReader struct{}

func (networkMonitorReader) Files(dir string) ([]string, error) {
	return filepath.Glob(filepath.Join(dir, NetworkMonitorGlob))
}

func (networkMonitorReader) Read(ctx context.Context, path string, fn func(*Entry)) (int, error) {
	return readLines(ctx, path, networkMonitorMarker, fn)
}

// readLines parses every line of path containing marker ("" for all).
func readLines(ctx context.Context, path, marker string, fn func(*Entry)) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("opening monitor log: %w", err)
	}
	defer f.Close()

	return scanEntries(ctx, f, marker, fn)
}

func scanEntries(ctx context.Context, r io.Reader, marker string, fn func(*Entry)) (int, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	malformed := 0
	for n := 0; scanner.Scan(); n++ {
		if n%1024 == 0 {
			if err := ctx.Err(); err != nil {
				return malformed, err
			}
		}

		line := scanner.Text()
		if marker != "" && !strings.Contains(line, marker) {
			continue
		}
		if strings.TrimSpace(line) == "" {
			continue
		}

		e, err := ParseLine(line)
		if err != nil {
			malformed++
			continue
		}
		fn(e)
	}
	if err := scanner.Err(); err != nil {
		return malformed, fmt.Errorf("reading monitor log: %w", err)
	}
	return malformed, nil
}
