package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func TestNewLogger_Text(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewLogger(&buf, "text", "info")
	if err != nil {
		t.Fatalf("NewLogger() error = %v", err)
	}

	logger.Info("pair analyzed", "pair", "n1-n2", "lost", 3)
	logger.Debug("hidden")

	out := buf.String()
	if !strings.Contains(out, "pair=n1-n2") || !strings.Contains(out, "lost=3") {
		t.Errorf("output = %q, want pair and lost attributes", out)
	}
	if strings.Contains(out, "hidden") {
		t.Error("debug message logged at info level")
	}
}

func TestNewLogger_JSON(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewLogger(&buf, "JSON", "debug")
	if err != nil {
		t.Fatalf("NewLogger() error = %v", err)
	}

	logger.Debug("spurious incoming sample", "token", "7/1")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("output is not JSON: %v (%q)", err, buf.String())
	}
	if entry["token"] != "7/1" {
		t.Errorf("token = %v, want 7/1", entry["token"])
	}
	if _, ok := entry["source"]; !ok {
		t.Error("debug level should add source location")
	}
}

func TestNewLogger_Invalid(t *testing.T) {
	var buf bytes.Buffer
	if _, err := NewLogger(&buf, "xml", "info"); err == nil {
		t.Error("NewLogger() expected error for unknown format")
	}
	if _, err := NewLogger(&buf, "text", "loud"); err == nil {
		t.Error("NewLogger() expected error for unknown level")
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"", slog.LevelInfo},
		{"INFO", slog.LevelInfo},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
	}

	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		if err != nil || got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, %v, want %v", tt.in, got, err, tt.want)
		}
	}
}
