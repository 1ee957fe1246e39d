package logging

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"trace":   LevelTrace,
		"DEBUG":   slog.LevelDebug,
		"info":    slog.LevelInfo,
		"warn":    slog.LevelWarn,
		"error":   slog.LevelError,
		"unknown": slog.LevelInfo,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Fatalf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestNewLoggerLevels(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger("trace", "text", &buf)
	logger.Log(context.Background(), LevelTrace, "step", "n", 1)
	logger.Debug("debug line")
	out := buf.String()
	if !strings.Contains(out, "level=TRACE") || !strings.Contains(out, "debug line") {
		t.Fatalf("unexpected output: %s", out)
	}

	buf.Reset()
	logger = NewLogger("warn", "json", &buf)
	logger.Info("hidden")
	logger.Warn("shown")
	if strings.Contains(buf.String(), "hidden") || !strings.Contains(buf.String(), `"msg":"shown"`) {
		t.Fatalf("unexpected json output: %s", buf.String())
	}
}

func TestEventTrace(t *testing.T) {
	dir := t.TempDir()
	off, err := NewEventTrace(dir, "info")
	if err != nil || off != nil {
		t.Fatalf("expected nil trace at info level, got %v %v", off, err)
	}
	off.Log(map[string]any{"ignored": true})
	if err := off.Close(); err != nil {
		t.Fatalf("close nil trace: %v", err)
	}

	trace, err := NewEventTrace(dir, "trace")
	if err != nil {
		t.Fatalf("new trace: %v", err)
	}
	trace.Log(map[string]any{"kind": "common_ancestor", "time": 1.5})
	trace.Log(map[string]any{"kind": "recombination", "time": 2.0})
	if err := trace.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	f, err := os.Open(filepath.Join(dir, "events.jsonl"))
	if err != nil {
		t.Fatalf("open trace: %v", err)
	}
	defer f.Close()
	scanner := bufio.NewScanner(f)
	lines := 0
	for scanner.Scan() {
		var entry map[string]any
		if err := json.Unmarshal(scanner.Bytes(), &entry); err != nil {
			t.Fatalf("decode line: %v", err)
		}
		lines++
	}
	if lines != 2 {
		t.Fatalf("expected 2 lines, got %d", lines)
	}
}
