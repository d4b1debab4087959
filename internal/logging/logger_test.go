package logging_test

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"recut/internal/logging"
	"recut/internal/services"
)

func newFileLogger(t *testing.T, format, level string, hub *logging.StreamHub) (*slog.Logger, func() string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "recut.log")
	logger, err := logging.New(logging.Options{
		Format:           format,
		Level:            level,
		OutputPaths:      []string{path},
		ErrorOutputPaths: []string{path},
		Stream:           hub,
	})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	read := func() string {
		data, err := os.ReadFile(path)
		if err != nil {
			t.Fatalf("read log file: %v", err)
		}
		return string(data)
	}
	return logger, read
}

func TestConsoleLoggerPrefixesProjectAndComponent(t *testing.T) {
	logger, read := newFileLogger(t, "console", "info", nil)
	logger = logging.NewComponentLogger(logger, "matcher")
	logger.Info("scene scored",
		logging.String(logging.FieldProjectID, "0f5e2c1a-aaaa-bbbb"),
		logging.Int(logging.FieldSceneIndex, 2),
	)

	content := read()
	for _, fragment := range []string{"INFO", "[0f5e2c1a]", "matcher: scene scored", "scene_index=2"} {
		if !strings.Contains(content, fragment) {
			t.Fatalf("expected %q in %q", fragment, content)
		}
	}
	if strings.Contains(content, ".go:") {
		t.Fatalf("expected no caller information at info level, got %q", content)
	}
}

func TestJSONLoggerHonoursLevel(t *testing.T) {
	logger, read := newFileLogger(t, "json", "warn", nil)
	logger.Info("hidden")
	logger.Warn("visible", logging.String(logging.FieldEventType, "budget_warning"))

	content := read()
	if strings.Contains(content, "hidden") {
		t.Fatalf("info line should be filtered: %q", content)
	}
	if !strings.Contains(content, `"msg":"visible"`) || !strings.Contains(content, `"level":"warn"`) {
		t.Fatalf("unexpected json output: %q", content)
	}
}

func TestNewRejectsUnknownFormat(t *testing.T) {
	if _, err := logging.New(logging.Options{Format: "xml"}); err == nil {
		t.Fatal("expected error for unsupported format")
	}
}

func TestLoggerPublishesToStream(t *testing.T) {
	hub := logging.NewStreamHub(8)
	logger, _ := newFileLogger(t, "console", "debug", hub)
	logger.Debug("debug line")
	events, _ := hub.Tail(8)
	if len(events) != 1 || events[0].Level != "DEBUG" {
		t.Fatalf("expected debug event in hub, got %+v", events)
	}
}

func TestWithContextAddsFields(t *testing.T) {
	hub := logging.NewStreamHub(8)
	logger, _ := newFileLogger(t, "json", "info", hub)
	ctx := services.WithProjectID(context.Background(), "p-7")
	ctx = services.WithStep(ctx, "restructure")
	ctx = services.WithRequestID(ctx, "req-1")
	logging.WithContext(ctx, logger).Info("hello")

	events, _ := hub.Tail(1)
	evt := events[0]
	if evt.ProjectID != "p-7" || evt.Step != "restructure" || evt.CorrelationID != "req-1" {
		t.Fatalf("context fields missing: %+v", evt)
	}
}

func TestWarnWithContextInjectsDefaults(t *testing.T) {
	hub := logging.NewStreamHub(8)
	logger, _ := newFileLogger(t, "json", "info", hub)
	logging.WarnWithContext(logger, "library slow", "library_slow")
	events, _ := hub.Tail(1)
	fields := events[0].Fields
	if fields[logging.FieldEventType] != "library_slow" || fields[logging.FieldErrorHint] == "" || fields[logging.FieldImpact] == "" {
		t.Fatalf("expected injected fields, got %v", fields)
	}
}

func TestPruneRunLogsKeepsCurrentAndRecent(t *testing.T) {
	dir := t.TempDir()
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	oldest := logging.RunLogPath(dir, now.AddDate(0, 0, -30))
	old := logging.RunLogPath(dir, now.AddDate(0, 0, -10))
	recent := logging.RunLogPath(dir, now.AddDate(0, 0, -1))
	current := logging.RunLogPath(dir, now)
	other := filepath.Join(dir, "notes.txt")
	for path, mod := range map[string]time.Time{
		oldest:  now.AddDate(0, 0, -30),
		old:     now.AddDate(0, 0, -10),
		recent:  now.AddDate(0, 0, -1),
		current: now.AddDate(0, 0, -60),
		other:   now.AddDate(0, 0, -60),
	} {
		if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
			t.Fatalf("write %s: %v", path, err)
		}
		if err := os.Chtimes(path, mod, mod); err != nil {
			t.Fatalf("chtimes %s: %v", path, err)
		}
	}

	removed := logging.PruneRunLogs(logging.NewNop(), dir, 7, current, now)
	if len(removed) != 2 || removed[0] != oldest || removed[1] != old {
		t.Fatalf("removed = %v, want [%s %s]", removed, oldest, old)
	}
	for _, path := range []string{recent, current, other} {
		if _, err := os.Stat(path); err != nil {
			t.Fatalf("%s should remain: %v", path, err)
		}
	}
	if got := logging.PruneRunLogs(logging.NewNop(), dir, 0, current, now); got != nil {
		t.Fatalf("retention 0 removed %v", got)
	}
}

func TestMatchDecisionAttrs(t *testing.T) {
	attrs := logging.MatchDecision(3, "ambiguous", "two close candidates")
	got := map[string]string{}
	for _, a := range attrs {
		got[a.Key] = a.Value.String()
	}
	if got[logging.FieldDecisionType] != "match_state" || got[logging.FieldSceneIndex] != "3" || got["decision_result"] != "ambiguous" {
		t.Fatalf("unexpected attrs %v", got)
	}
}

func TestConsoleLoggerTagsStep(t *testing.T) {
	logger, read := newFileLogger(t, "console", "info", nil)
	ctx := services.WithStep(services.WithProjectID(context.Background(), "clip-1"), "detect")
	logging.WithContext(ctx, logger).Info("step started", logging.String("note", "two words"))

	content := read()
	for _, fragment := range []string{"[clip-1 detect]", "step started", `note="two words"`} {
		if !strings.Contains(content, fragment) {
			t.Fatalf("expected %q in %q", fragment, content)
		}
	}
	if strings.Contains(content, "step=detect") {
		t.Fatalf("step should be lifted into the prefix, got %q", content)
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    slog.Level
		wantErr bool
	}{
		{"", slog.LevelInfo, false},
		{"DEBUG", slog.LevelDebug, false},
		{"warning", slog.LevelWarn, false},
		{"error", slog.LevelError, false},
		{"loud", slog.LevelInfo, true},
	}
	for _, tt := range tests {
		got, err := logging.ParseLevel(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Fatalf("ParseLevel(%q) = %v, %v", tt.in, got, err)
		}
	}
}
