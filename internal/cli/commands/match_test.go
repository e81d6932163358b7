package commands

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/ccollicutt/latlog/pkg/output"
)

// writePairLogs writes one lossy pair: a and b are answered, c is lost.
func writePairLogs(t *testing.T, dir string) (out, in string) {
	t.Helper()
	out = writeTestFile(t, dir, "out.log", lines(
		jsonSample("a", 0),
		jsonSample("b", 100),
		jsonSample("c", 200),
	))
	in = writeTestFile(t, dir, "in.log", lines(
		jsonSample("a", 5),
		jsonSample("b", 150),
		"not json",
	))
	return out, in
}

func matchArgs(out, in string, extra ...string) []string {
	args := []string{
		"--src-ip", "10.0.0.1", "--dst-ip", "10.0.0.2",
		"--outgoing", out, "--incoming", in,
		"--name", "n1-n2", "--format", "json",
	}
	return append(args, extra...)
}

func decodeSummary(t *testing.T, s string) output.Summary {
	t.Helper()
	var report struct {
		Summary output.Summary `json:"summary"`
	}
	if err := json.Unmarshal([]byte(s), &report); err != nil {
		t.Fatalf("invalid JSON output: %v\n%s", err, s)
	}
	return report.Summary
}

func TestRunMatch_Flags(t *testing.T) {
	dir := t.TempDir()
	out, in := writePairLogs(t, dir)

	stdout, err := executeCommand(t, NewMatchCommand(&GlobalOptions{}), matchArgs(out, in, "-o", "json")...)
	if err != nil {
		t.Fatalf("match failed: %v", err)
	}

	s := decodeSummary(t, stdout)
	if s.PairsAnalyzed != 1 || s.Matched != 2 || s.Lost != 1 || s.ParseErrors != 1 {
		t.Errorf("Summary = %+v", s)
	}
}

func TestRunMatch_Text(t *testing.T) {
	dir := t.TempDir()
	out, in := writePairLogs(t, dir)

	stdout, err := executeCommand(t, NewMatchCommand(&GlobalOptions{}), matchArgs(out, in, "--buckets", "1,10")...)
	if err != nil {
		t.Fatalf("match failed: %v", err)
	}
	for _, want := range []string{"n1-n2", "[1,10)", "[10,∞)"} {
		if !strings.Contains(stdout, want) {
			t.Errorf("output missing %q:\n%s", want, stdout)
		}
	}
}

func TestRunMatch_Config(t *testing.T) {
	dir := t.TempDir()
	out, in := writePairLogs(t, dir)
	configPath := writeTestFile(t, dir, "latlog.yaml", `name: lab
format: json
node_pairs:
  - name: n1-n2
    src_ip: 10.0.0.1
    dst_ip: 10.0.0.2
    outgoing_file: `+out+`
    incoming_file: `+in+`
  - name: n2-n1
    src_ip: 10.0.0.2
    dst_ip: 10.0.0.1
    outgoing_file: `+out+`
    incoming_file: `+in+`
`)

	stdout, err := executeCommand(t, NewMatchCommand(&GlobalOptions{}),
		"--config", configPath, "--pair", "n2-n1", "-o", "json", "-q")
	if err != nil {
		t.Fatalf("match failed: %v", err)
	}

	var s output.Summary
	if err := json.Unmarshal([]byte(stdout), &s); err != nil {
		t.Fatalf("invalid JSON output: %v", err)
	}
	if s.PairsAnalyzed != 1 || s.Lost != 1 {
		t.Errorf("Summary = %+v", s)
	}
}

func TestRunMatch_Errors(t *testing.T) {
	dir := t.TempDir()
	out, in := writePairLogs(t, dir)

	tests := map[string][]string{
		"no pair":           {"--format", "json"},
		"no logs":           {"--src-ip", "10.0.0.1", "--dst-ip", "10.0.0.2"},
		"config and flags":  {"--config", "x.yaml", "--src-ip", "10.0.0.1"},
		"missing config":    {"--config", filepath.Join(dir, "missing.yaml")},
		"missing log":       matchArgs(filepath.Join(dir, "nope.log"), in),
		"bad buckets":       matchArgs(out, in, "--buckets", "10,x"),
		"descending bucket": matchArgs(out, in, "--buckets", "100,10"),
		"bad format":        matchArgs(out, in, "--format", "csv"),
		"bad output":        matchArgs(out, in, "-o", "xml"),
		"bad ip":            {"--src-ip", "nope", "--dst-ip", "10.0.0.2", "--outgoing", out, "--incoming", in},
	}
	for name, args := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := executeCommand(t, NewMatchCommand(&GlobalOptions{}), args...); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestRunMatch_EnvBuckets(t *testing.T) {
	t.Setenv("LATLOG_BUCKETS", "1,2,3")
	dir := t.TempDir()
	out, in := writePairLogs(t, dir)

	stdout, err := executeCommand(t, NewMatchCommand(&GlobalOptions{}), matchArgs(out, in, "-o", "markdown")...)
	if err != nil {
		t.Fatalf("match failed: %v", err)
	}
	if !strings.Contains(stdout, "| [3,∞) |") {
		t.Errorf("environment buckets not applied:\n%s", stdout)
	}
}

func TestRunMatch_Files(t *testing.T) {
	dir := t.TempDir()
	out, in := writePairLogs(t, dir)
	reports := filepath.Join(dir, "reports")
	metricsFile := filepath.Join(dir, "prom", "latlog.prom")
	plotFile := filepath.Join(dir, "latency.png")

	_, err := executeCommand(t, NewMatchCommand(&GlobalOptions{}), matchArgs(out, in,
		"--output-dir", reports, "--metrics-file", metricsFile, "--plot", plotFile)...)
	if err != nil {
		t.Fatalf("match failed: %v", err)
	}

	for _, name := range []string{"n1-n2_analysis.json", "n1-n2_latency_summary.json"} {
		if _, err := os.Stat(filepath.Join(reports, name)); err != nil {
			t.Errorf("missing report %s: %v", name, err)
		}
	}

	data, err := os.ReadFile(metricsFile)
	if err != nil {
		t.Fatalf("metrics file not written: %v", err)
	}
	if !strings.Contains(string(data), `latlog_pair_samples{outcome="lost",pair="n1-n2"} 1`) {
		t.Errorf("metrics missing lost samples:\n%s", data)
	}

	img, err := os.ReadFile(plotFile)
	if err != nil {
		t.Fatalf("plot not written: %v", err)
	}
	if !strings.HasPrefix(string(img), "\x89PNG") {
		t.Error("plot is not a PNG")
	}
}

func TestRunMatch_FailOnIssues(t *testing.T) {
	defer func() { ExitCode = 0 }()
	dir := t.TempDir()
	out, in := writePairLogs(t, dir)

	ExitCode = 0
	if _, err := executeCommand(t, NewMatchCommand(&GlobalOptions{}), matchArgs(out, in)...); err != nil {
		t.Fatalf("match failed: %v", err)
	}
	if ExitCode != 0 {
		t.Errorf("ExitCode = %d without --fail-on-issues, want 0", ExitCode)
	}

	if _, err := executeCommand(t, NewMatchCommand(&GlobalOptions{}), matchArgs(out, in, "--fail-on-issues")...); err != nil {
		t.Fatalf("match failed: %v", err)
	}
	if ExitCode != 1 {
		t.Errorf("ExitCode = %d with loss and --fail-on-issues, want 1", ExitCode)
	}
}

func TestRunMatch_Webhook(t *testing.T) {
	var hits atomic.Int32
	var got output.Summary
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if r.Header.Get("Authorization") != "Bearer tok" {
			t.Errorf("Authorization = %q", r.Header.Get("Authorization"))
		}
		var report struct {
			Summary output.Summary `json:"summary"`
		}
		_ = json.NewDecoder(r.Body).Decode(&report)
		got = report.Summary
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	dir := t.TempDir()
	out, in := writePairLogs(t, dir)

	_, err := executeCommand(t, NewMatchCommand(&GlobalOptions{}), matchArgs(out, in,
		"--webhook-url", server.URL, "--webhook-token", "tok")...)
	if err != nil {
		t.Fatalf("match failed: %v", err)
	}
	if hits.Load() != 1 {
		t.Fatalf("webhook hits = %d, want 1", hits.Load())
	}
	if got.Lost != 1 {
		t.Errorf("webhook summary = %+v", got)
	}

	_, err = executeCommand(t, NewMatchCommand(&GlobalOptions{}), matchArgs(out, in,
		"--webhook-url", server.URL, "--webhook-trigger", "never")...)
	if err != nil {
		t.Fatalf("match failed: %v", err)
	}
	if hits.Load() != 1 {
		t.Errorf("webhook fired with trigger never")
	}
}
