package parser

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// ICMPTraceMarker opens every block written by the ICMP RTT tracer.
const ICMPTraceMarker = "=== ICMP RTT Trace:"

const icmpTraceLayout = "2006-01-02 15:04:05.999999999"

var (
	traceTimestampRe = regexp.MustCompile(`(\d{4}-\d{2}-\d{2} \d{2}:\d{2}:\d{2}\.\d+)`)
	traceSessionRe   = regexp.MustCompile(`Session: ([\d.]+) \([^)]+\) -> ([\d.]+) \([^)]+\) \(ID: (\d+), Seq: (\d+)\)`)
	traceSKBRe       = regexp.MustCompile(`Stage\s+(\d+)\b[^:]*:\s*(0x[a-fA-F0-9]+)`)
	traceStageRe     = regexp.MustCompile(`\[\s*(\d+)->(\d+)\s*\].*?:\s*([\d.]+|N/A)\s*us`)
	traceRTTRe       = regexp.MustCompile(`([\d.]+)\s*us`)
)

// Kernel drop reasons derived from SKB pointer changes.
const (
	DropStage1To2 = "Stage_1_to_2_SKB_Mismatch"
	DropStage0To1 = "Stage_0_to_1_SKB_Mismatch"
)

// ICMPTraceFormat parses the multi-line blocks of the ICMP RTT tracer.
// The token is "<session id>/<seq>".
type ICMPTraceFormat struct{}

// NewICMPTraceFormat creates an ICMP trace block format.
func NewICMPTraceFormat() *ICMPTraceFormat {
	return &ICMPTraceFormat{}
}

// Name returns the format name.
func (f *ICMPTraceFormat) Name() string {
	return FormatICMPTrace
}

// RecordStart returns the block header marker.
func (f *ICMPTraceFormat) RecordStart() string {
	return ICMPTraceMarker
}

// ParseRecord parses one trace block.
func (f *ICMPTraceFormat) ParseRecord(rec Record, dir Direction) (*Sample, error) {
	lines := strings.Split(strings.TrimSpace(rec.Text), "\n")

	tsMatch := traceTimestampRe.FindStringSubmatch(lines[0])
	if tsMatch == nil {
		return nil, fmt.Errorf("%w: trace header has no timestamp", ErrMalformed)
	}
	ts, err := ParseTimestamp(tsMatch[1], icmpTraceLayout)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	var session []string
	for _, line := range lines {
		if strings.HasPrefix(strings.TrimSpace(line), "Session:") {
			session = traceSessionRe.FindStringSubmatch(line)
			break
		}
	}
	if session == nil {
		return nil, fmt.Errorf("%w: trace block has no session line", ErrMalformed)
	}

	id, _ := strconv.Atoi(session[3])
	seq, _ := strconv.Atoi(session[4])

	detail := &TraceDetail{
		SrcIP:       session[1],
		DstIP:       session[2],
		SessionID:   id,
		Seq:         seq,
		SKBPointers: parseSKBPointers(lines),
		Path1:       parsePathLatencies(lines, "Path 1 Latencies"),
		Path2:       parsePathLatencies(lines, "Path 2 Latencies"),
		TotalRTT:    parseTotalRTT(lines),
	}
	detail.Drop, detail.DropReason, detail.CorruptedStages = detectDrop(detail.SKBPointers)
	detail.MaxStage, detail.MaxLatency = maxStage(detail)

	return &Sample{
		Token:     session[3] + "/" + session[4],
		Timestamp: ts,
		Direction: dir,
		Source:    rec.Source,
		LineNum:   rec.LineNum,
		Trace:     detail,
	}, nil
}

func parseSKBPointers(lines []string) map[int]string {
	pointers := make(map[int]string)
	inSection := false

	for _, line := range lines {
		switch {
		case strings.Contains(line, "SKB Pointers"):
			inSection = true
			continue
		case strings.HasPrefix(strings.TrimSpace(line), "Path") && strings.Contains(line, "Latencies"):
			return pointers
		}
		if !inSection {
			continue
		}
		if m := traceSKBRe.FindStringSubmatch(line); m != nil {
			stage, _ := strconv.Atoi(m[1])
			pointers[stage] = m[2]
		}
	}
	return pointers
}

func parsePathLatencies(lines []string, section string) map[string]float64 {
	latencies := make(map[string]float64)
	inSection := false

	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, section) {
			inSection = true
			continue
		}
		if !inSection {
			continue
		}
		if strings.HasPrefix(trimmed, "Path") || strings.HasPrefix(trimmed, "Total") {
			break
		}
		m := traceStageRe.FindStringSubmatch(line)
		if m == nil || m[3] == "N/A" {
			continue
		}
		if v, err := strconv.ParseFloat(m[3], 64); err == nil {
			latencies[m[1]+"->"+m[2]] = v
		}
	}
	return latencies
}

func parseTotalRTT(lines []string) float64 {
	for _, line := range lines {
		if !strings.Contains(line, "Total RTT") {
			continue
		}
		_, rest, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		if m := traceRTTRe.FindStringSubmatch(rest); m != nil {
			v, _ := strconv.ParseFloat(m[1], 64)
			return v
		}
	}
	return 0
}

// detectDrop flags a packet whose SKB changed between the first stages:
// the same buffer at stages 0 and 1 but a different one at 2, or already
// different at 1.
func detectDrop(ptrs map[int]string) (bool, string, []string) {
	p0, ok0 := ptrs[0]
	p1, ok1 := ptrs[1]
	p2, ok2 := ptrs[2]
	if !ok0 || !ok1 || !ok2 {
		return false, "", nil
	}

	switch {
	case p0 == p1 && p1 != p2:
		return true, DropStage1To2, []string{"1->2"}
	case p0 != p1:
		return true, DropStage0To1, []string{"0->1"}
	}
	return false, "", nil
}

// maxStage returns the slowest stage across both paths, skipping path 1
// stages whose SKB pointers were corrupted.
func maxStage(d *TraceDetail) (string, float64) {
	corrupted := make(map[string]bool, len(d.CorruptedStages))
	for _, s := range d.CorruptedStages {
		corrupted[s] = true
	}

	var (
		best    string
		bestLat float64
	)
	for _, stage := range sortedStages(d.Path1) {
		if lat := d.Path1[stage]; !corrupted[stage] && lat > bestLat {
			best, bestLat = "Path1_"+stage, lat
		}
	}
	for _, stage := range sortedStages(d.Path2) {
		if lat := d.Path2[stage]; lat > bestLat {
			best, bestLat = "Path2_"+stage, lat
		}
	}
	return best, bestLat
}

// sortedStages orders "a->b" keys numerically by a, then b.
func sortedStages(m map[string]float64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		ai, bi := stageBounds(keys[i])
		aj, bj := stageBounds(keys[j])
		if ai != aj {
			return ai < aj
		}
		return bi < bj
	})
	return keys
}

func stageBounds(stage string) (int, int) {
	a, b, _ := strings.Cut(stage, "->")
	x, _ := strconv.Atoi(a)
	y, _ := strconv.Atoi(b)
	return x, y
}
