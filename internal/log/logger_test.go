package log

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"sync"
	"testing"
)

func TestSetupWriterHonoursLevel(t *testing.T) {
	logger = nil
	once = *new(sync.Once)

	var buf bytes.Buffer
	SetupWriter("WARN", &buf)
	if logger == nil {
		t.Fatal("Logger should not be nil")
	}

	Info("dropped")
	if buf.Len() != 0 {
		t.Fatalf("expected INFO to be filtered at WARN, got %q", buf.String())
	}
	Warn("kept")
	if buf.Len() == 0 {
		t.Fatal("expected WARN line to be written")
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		" WARN ":  slog.LevelWarn,
		"warning": slog.LevelWarn,
		"Error":   slog.LevelError,
		"bogus":   slog.LevelInfo,
		"":        slog.LevelInfo,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func decodeLine(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(buf.Bytes(), &out); err != nil {
		t.Fatalf("Failed to decode JSON: %v", err)
	}
	return out
}

func TestWithComponent(t *testing.T) {
	var buf bytes.Buffer
	logger = slog.New(slog.NewJSONHandler(&buf, nil))

	WithComponent("worker").Info("hello")

	out := decodeLine(t, &buf)
	if out["component"] != "worker" {
		t.Errorf("Expected component 'worker', got %v", out["component"])
	}
	if out["msg"] != "hello" {
		t.Errorf("Expected msg 'hello', got %v", out["msg"])
	}
}

func TestWithCommand(t *testing.T) {
	var buf bytes.Buffer
	logger = slog.New(slog.NewJSONHandler(&buf, nil))

	WithCommand("listCompositions").Info("command msg")

	out := decodeLine(t, &buf)
	if out["command"] != "listCompositions" {
		t.Errorf("Expected command 'listCompositions', got %v", out["command"])
	}
}

func TestWithWorker(t *testing.T) {
	var buf bytes.Buffer
	logger = slog.New(slog.NewJSONHandler(&buf, nil))

	WithWorker("w-123").Info("worker msg")

	out := decodeLine(t, &buf)
	if out["worker_id"] != "w-123" {
		t.Errorf("Expected worker_id 'w-123', got %v", out["worker_id"])
	}
}
