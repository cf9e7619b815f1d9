package logx

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestFileSinkWritesStructuredLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.log")
	svc, log := New(Config{
		Level:   "debug",
		Console: false,
		File:    FileConfig{Enabled: true, Path: path},
	})

	log.With(String("comp", "test")).Info("hello", Int("n", 7))
	if err := svc.Close(); err != nil {
		t.Fatalf("Close error: %v", err)
	}

	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	var entry map[string]any
	if err := json.Unmarshal(b, &entry); err != nil {
		t.Fatalf("log line is not JSON: %v (%q)", err, b)
	}
	if entry["message"] != "hello" || entry["comp"] != "test" {
		t.Fatalf("entry = %v", entry)
	}
	if entry["n"] != float64(7) {
		t.Fatalf("n = %v", entry["n"])
	}
	if entry["level"] != "info" {
		t.Fatalf("level = %v", entry["level"])
	}
}

func TestLevelFiltering(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.log")
	svc, log := New(Config{
		Level:   "warn",
		Console: false,
		File:    FileConfig{Enabled: true, Path: path},
	})

	log.Debug("dropped")
	log.Info("dropped too")
	log.Warn("kept")
	if err := svc.Close(); err != nil {
		t.Fatalf("Close error: %v", err)
	}

	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	out := string(b)
	if strings.Contains(out, "dropped") {
		t.Fatalf("below-level lines written: %q", out)
	}
	if !strings.Contains(out, "kept") {
		t.Fatalf("warn line missing: %q", out)
	}
}

func TestApplyChangesLevel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.log")
	cfg := Config{Level: "error", Console: false, File: FileConfig{Enabled: true, Path: path}}
	svc, log := New(cfg)

	log.Info("before")
	cfg.Level = "info"
	svc.Apply(cfg)
	log.Info("after")
	if err := svc.Close(); err != nil {
		t.Fatalf("Close error: %v", err)
	}

	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	out := string(b)
	if strings.Contains(out, "before") {
		t.Fatalf("pre-apply info line written: %q", out)
	}
	if !strings.Contains(out, "after") {
		t.Fatalf("post-apply info line missing: %q", out)
	}
}

func TestNopAndZeroLoggers(t *testing.T) {
	var zero Logger
	if !zero.IsZero() {
		t.Fatal("zero value not reported as zero")
	}
	// Must not panic.
	zero.Info("into the void")
	Nop().Error("also dropped", Err(nil))
}

func TestParseLevel(t *testing.T) {
	tests := map[string]Level{
		"trace":   zerolog.TraceLevel,
		"debug":   zerolog.DebugLevel,
		"":        zerolog.InfoLevel,
		"info":    zerolog.InfoLevel,
		"WARN":    zerolog.WarnLevel,
		"warning": zerolog.WarnLevel,
		"error":   zerolog.ErrorLevel,
		"bogus":   zerolog.InfoLevel,
	}
	for in, want := range tests {
		if got := parseLevel(in, zerolog.InfoLevel); got != want {
			t.Fatalf("parseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}
