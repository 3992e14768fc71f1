package logging

import (
	"bytes"
	"strings"
	"testing"
)

func TestNewLoggerDefault(t *testing.T) {
	l := NewLogger(nil)
	if l == nil {
		t.Fatal("NewLogger(nil) returned nil")
	}
	if l.level != LevelInfo {
		t.Errorf("default level = %v, want LevelInfo", l.level)
	}
}

func TestLoggerLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(&Config{Level: LevelWarn, Output: &buf})

	l.Debugf("spawned fiber %d", 3)
	l.Infof("transferred into fiber %d", 3)
	if buf.Len() != 0 {
		t.Fatalf("expected no output below configured level, got %q", buf.String())
	}

	l.Warnf("reclaim stalled on fiber %d", 3)
	if !strings.Contains(buf.String(), "reclaim stalled on fiber 3") {
		t.Errorf("missing warn message, got %q", buf.String())
	}
}

func TestLoggerErrorf(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(&Config{Level: LevelDebug, Output: &buf})

	l.Errorf("handle callback fired for reclaimed fiber %d", 7)
	out := buf.String()
	if !strings.Contains(out, "[ERROR]") || !strings.Contains(out, "reclaimed fiber 7") {
		t.Errorf("unexpected error log output: %q", out)
	}
}

func TestDefaultAndSetDefault(t *testing.T) {
	orig := Default()
	defer SetDefault(orig)

	var buf bytes.Buffer
	custom := NewLogger(&Config{Level: LevelDebug, Output: &buf})
	SetDefault(custom)

	Info("scheduler initialized")
	if !strings.Contains(buf.String(), "scheduler initialized") {
		t.Errorf("global Info() did not route through custom default logger: %q", buf.String())
	}
}

func TestFormatArgsEven(t *testing.T) {
	got := formatArgs([]any{"fiber", 3, "state", "runnable"})
	want := " fiber=3 state=runnable"
	if got != want {
		t.Errorf("formatArgs = %q, want %q", got, want)
	}
}

func TestFormatArgsEmpty(t *testing.T) {
	if got := formatArgs(nil); got != "" {
		t.Errorf("formatArgs(nil) = %q, want empty", got)
	}
}

type stringerID string

func (s stringerID) String() string { return string(s) }

func TestWithFiberTagsLines(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(&Config{Level: LevelWarn, Output: &buf})

	tagged := l.WithFiber(stringerID("3.1"))
	tagged.Warnf("mutex hand-off skipped reclaimed fiber")

	out := buf.String()
	if !strings.Contains(out, "fiber=3.1") {
		t.Errorf("missing fiber tag, got %q", out)
	}
	if !strings.Contains(out, "mutex hand-off skipped reclaimed fiber") {
		t.Errorf("missing message, got %q", out)
	}
}

func TestWithFiberLeavesUntaggedLinesAlone(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(&Config{Level: LevelWarn, Output: &buf})

	l.Warnf("reclaim stalled on fiber %d", 3)
	if strings.Contains(buf.String(), "fiber=") {
		t.Errorf("untagged logger should not emit a fiber= tag, got %q", buf.String())
	}
}
