package detector

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func traceBlock(seq int) string {
	return fmt.Sprintf(`=== ICMP RTT Trace: 2025-06-10 14:09:58.%06d (OUTGOING) ===
Session: 10.0.0.1 (node1) -> 10.0.0.2 (node2) (ID: 1234, Seq: %d)
SKB Pointers:
  Stage 0 (ip_send_skb): 0xffff888001
  Stage 1 (dev_queue_xmit): 0xffff888001
Path 1 Latencies (us):
  [0->1] ip_send_skb -> dev_queue_xmit: 12.500 us
Total RTT: 400.250 us`, seq, seq)
}

func TestDetector_DetectFromLines_ICMPTrace(t *testing.T) {
	text := traceBlock(1) + "\n" + traceBlock(2)

	result := New().DetectFromLines(strings.Split(text, "\n"))

	best := result.BestMatch()
	if best == nil {
		t.Fatal("Expected to detect a format")
	}
	if best.Format.Name != FormatICMPTrace {
		t.Errorf("Expected %s, got %s", FormatICMPTrace, best.Format.Name)
	}
	if best.MatchCount != 2 {
		t.Errorf("MatchCount = %d, want 2 blocks", best.MatchCount)
	}
	if best.Confidence != 1.0 {
		t.Errorf("Expected 100%% confidence, got %.1f%%", best.Confidence*100)
	}
	if !strings.HasPrefix(best.SampleLine, "=== ICMP RTT Trace:") {
		t.Errorf("SampleLine = %q", best.SampleLine)
	}
}

func TestDetector_DetectFromLines_ICMPTraceWithNoise(t *testing.T) {
	lines := append([]string{"tracer starting", "attached probes"}, strings.Split(traceBlock(1), "\n")...)

	best := New().DetectFromLines(lines).BestMatch()
	if best == nil || best.Format.Name != FormatICMPTrace {
		t.Fatalf("BestMatch() = %+v, want icmp-trace", best)
	}
	// 8 of 10 lines are inside a parsed block.
	if best.Confidence != 0.8 {
		t.Errorf("Confidence = %v, want 0.8", best.Confidence)
	}
}

func TestDetector_DetectFromLines_JSON(t *testing.T) {
	lines := []string{
		`{"timestamp": 1718028598.1, "token": "a"}`,
		`{"ts": "2024-06-10T14:09:58Z", "seq": 2}`,
		`{"time": 1718028599, "id": "c"}`,
		`{"broken": true}`,
	}

	best := New().DetectFromLines(lines).BestMatch()
	if best == nil || best.Format.Name != FormatJSON {
		t.Fatalf("BestMatch() = %+v, want json", best)
	}
	if best.MatchCount != 3 {
		t.Errorf("MatchCount = %d, want 3", best.MatchCount)
	}
	if best.Confidence != 0.75 {
		t.Errorf("Confidence = %v, want 0.75", best.Confidence)
	}
}

func TestDetector_DetectFromLines_NetworkMonitor(t *testing.T) {
	lines := []string{
		`[2025-06-10 14:00:15,123: INFO] {'ip': '192.168.254.32', 'latencies_over_threshold_in_ms': [12.1], 'packet_lost_num': 7}`,
		`[2025-06-10 14:00:16,123: INFO] {'ip': '192.168.254.33', 'latencies_over_threshold_in_ms': [], 'packet_lost_num': 0}`,
	}

	result := New().DetectFromLines(lines)
	if got := result.FormatName(); got != FormatNetworkMonitor {
		t.Errorf("FormatName() = %q, want %q", got, FormatNetworkMonitor)
	}
	if result.BestMatch().Format.Command != "monitor" {
		t.Errorf("Command = %q", result.BestMatch().Format.Command)
	}
}

func TestDetector_DetectFromLines_PPS(t *testing.T) {
	lines := []string{
		"2025-06-10 02:08:59 PM vnet4 100 1000 pps",
		"2025-06-10 02:09:00 PM vnet4 100 2000 pps",
	}

	if got := New().DetectFromLines(lines).FormatName(); got != FormatPPS {
		t.Errorf("FormatName() = %q, want %q", got, FormatPPS)
	}
}

func TestDetector_DetectFromLines_RegexFallback(t *testing.T) {
	tests := []struct {
		name       string
		lines      []string
		wantLayout string
	}{
		{
			name: "ping -D",
			lines: []string{
				"[1718028598.123456] 64 bytes from 10.0.0.2: icmp_seq=1 ttl=64 time=0.412 ms",
				"[1718028599.123456] 64 bytes from 10.0.0.2: icmp_seq=2 ttl=64 time=0.398 ms",
			},
			wantLayout: "unix",
		},
		{
			name: "bracketed",
			lines: []string{
				"[2024-01-15 10:30:00] seq=1 sent",
				"[2024-01-15 10:30:01] seq=2 sent",
			},
			wantLayout: "2006-01-02 15:04:05.999999999",
		},
		{
			name: "iso",
			lines: []string{
				"2024-01-15T10:30:00Z seq=1 sent",
				"2024-01-15T10:30:01Z seq=2 sent",
			},
			wantLayout: "2006-01-02T15:04:05Z07:00",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := New().DetectFromLines(tt.lines)
			if result.HasMatch() {
				t.Fatalf("unexpected structured match %s", result.BestMatch().Format.Name)
			}
			if result.FormatName() != FormatRegex {
				t.Errorf("FormatName() = %q, want regex", result.FormatName())
			}
			if result.Timestamp.Format.Layout != tt.wantLayout {
				t.Errorf("Layout = %q, want %q", result.Timestamp.Format.Layout, tt.wantLayout)
			}
			if result.Timestamp.Confidence != 1.0 {
				t.Errorf("Confidence = %v, want 1", result.Timestamp.Confidence)
			}
		})
	}
}

func TestDetector_DetectFromLines_NoMatch(t *testing.T) {
	result := New().DetectFromLines([]string{"hello world", "no timestamps here"})

	if result.HasMatch() || result.Timestamp != nil {
		t.Error("Expected no match")
	}
	if result.BestMatch() != nil {
		t.Error("BestMatch() should be nil")
	}
	if result.FormatName() != FormatUnknown {
		t.Errorf("FormatName() = %q, want unknown", result.FormatName())
	}
}

func TestDetector_DetectFromLines_EmptyInput(t *testing.T) {
	result := New().DetectFromLines(nil)
	if result.SampledLines != 0 || result.HasMatch() {
		t.Errorf("result = %+v", result)
	}
}

func TestDetector_DetectFromLines_SkipsComments(t *testing.T) {
	lines := []string{
		"# generated by pps-collector",
		"",
		"2025-06-10 02:08:59 PM vnet4 100 1000 pps",
	}

	result := New().DetectFromLines(lines)
	if result.SampledLines != 1 {
		t.Errorf("SampledLines = %d, want 1", result.SampledLines)
	}
	if result.BestMatch().Confidence != 1.0 {
		t.Errorf("Confidence = %v, want 1", result.BestMatch().Confidence)
	}
}

func TestDetector_WithSampleSize(t *testing.T) {
	d := New(WithSampleSize(50))
	if d.sampleSize != 50 {
		t.Errorf("sampleSize = %d, want 50", d.sampleSize)
	}
}

func TestDetector_WithSampleSize_Invalid(t *testing.T) {
	d := New(WithSampleSize(0))
	if d.sampleSize != 100 {
		t.Errorf("sampleSize = %d, want default 100", d.sampleSize)
	}
}

func TestDetector_DetectFromFile(t *testing.T) {
	var b strings.Builder
	for i := 0; i < 10; i++ {
		fmt.Fprintf(&b, "2025-06-10 02:%02d:00 PM vnet4 100 %d pps\n\n", i, 1000+i)
	}
	tmpFile := filepath.Join(t.TempDir(), "pps.log")
	if err := os.WriteFile(tmpFile, []byte(b.String()), 0o644); err != nil {
		t.Fatal(err)
	}

	result, err := New(WithSampleSize(4)).DetectFromFile(context.Background(), tmpFile)
	if err != nil {
		t.Fatalf("DetectFromFile() error = %v", err)
	}
	if result.SampledLines != 4 {
		t.Errorf("SampledLines = %d, want 4", result.SampledLines)
	}
	if result.FormatName() != FormatPPS {
		t.Errorf("FormatName() = %q, want pps", result.FormatName())
	}
}

func TestDetector_DetectFromFile_NotFound(t *testing.T) {
	_, err := New().DetectFromFile(context.Background(), filepath.Join(t.TempDir(), "missing.log"))
	if err == nil {
		t.Error("Expected error for missing file")
	}
}

func TestDefaultTimestampFormats(t *testing.T) {
	for _, f := range DefaultTimestampFormats() {
		if f.Pattern == nil {
			t.Errorf("%s: pattern not compiled", f.Name)
		}
		if f.Pattern.NumSubexp() < 1 {
			t.Errorf("%s: pattern has no capture group", f.Name)
		}
	}
}
