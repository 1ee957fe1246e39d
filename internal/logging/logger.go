// Package logging builds the leveled loggers used by the CLI and the run
// driver, plus an optional JSONL trace of simulation events.
package logging

import (
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// LevelTrace sits below Debug and enables per-event output.
const LevelTrace = slog.LevelDebug - 4

// ParseLevel maps a level name to a slog.Level. Unknown names mean info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "trace":
		return LevelTrace
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// NewLogger creates a leveled logger writing text, or JSON when format is
// "json", to w.
func NewLogger(level, format string, w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: ParseLevel(level),
		ReplaceAttr: func(_ []string, a slog.Attr) slog.Attr {
			if a.Key == slog.LevelKey {
				if lvl, ok := a.Value.Any().(slog.Level); ok && lvl == LevelTrace {
					a.Value = slog.StringValue("TRACE")
				}
			}
			return a
		},
	}
	if strings.EqualFold(format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// Discard returns a logger that drops everything.
func Discard() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

// EventTrace appends simulation events to dir/events.jsonl. A nil
// EventTrace is valid and ignores every call.
type EventTrace struct {
	mu   sync.Mutex
	file *os.File
	enc  *json.Encoder
}

// NewEventTrace opens the trace file when level is trace; otherwise it
// returns nil.
func NewEventTrace(dir, level string) (*EventTrace, error) {
	if ParseLevel(level) != LevelTrace {
		return nil, nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(filepath.Join(dir, "events.jsonl"), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}
	return &EventTrace{file: f, enc: json.NewEncoder(f)}, nil
}

func (et *EventTrace) Log(event map[string]any) {
	if et == nil || et.file == nil {
		return
	}
	et.mu.Lock()
	defer et.mu.Unlock()
	_ = et.enc.Encode(event)
}

func (et *EventTrace) Close() error {
	if et == nil || et.file == nil {
		return nil
	}
	et.mu.Lock()
	defer et.mu.Unlock()
	err := et.file.Close()
	et.file = nil
	return err
}
