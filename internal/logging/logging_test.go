package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func TestComponentLogger(t *testing.T) {
	var buf bytes.Buffer
	InitWriter(&buf, slog.LevelInfo, true)

	Component("sync").Info("snapshot merged", "inserted", 17)

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("unmarshal log line: %v (%q)", err, buf.String())
	}
	if entry["component"] != "sync" {
		t.Errorf("component = %v, want sync", entry["component"])
	}
	if entry["msg"] != "snapshot merged" {
		t.Errorf("msg = %v", entry["msg"])
	}
}

func TestWithContext(t *testing.T) {
	var buf bytes.Buffer
	InitWriter(&buf, slog.LevelDebug, false)

	ctx := ContextWithRunID(ContextWithProject(context.Background(), "wiki"), "run-1")
	WithContext(ctx).Debug("started")

	out := buf.String()
	if !strings.Contains(out, "project=wiki") || !strings.Contains(out, "run_id=run-1") {
		t.Errorf("context attributes missing: %q", out)
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	InitWriter(&buf, slog.LevelWarn, false)

	Info("hidden")
	Warn("shown")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Error("info message should be filtered at warn level")
	}
	if !strings.Contains(out, "shown") {
		t.Error("warn message should be logged")
	}
}
