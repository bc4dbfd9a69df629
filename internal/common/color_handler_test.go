package common

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
	"time"
)

func TestColorHandler_PlainOutput(t *testing.T) {
	var buf bytes.Buffer
	h := NewColorHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})
	l := slog.New(h).With("component", "engine")
	l.Debug("state transition", "from", "locking", "to", "locked", "elapsed", 5*time.Millisecond)

	out := buf.String()
	for _, want := range []string{"[DEBUG]", "state transition", `component="engine"`, `to="locked"`, "elapsed=5ms"} {
		if !strings.Contains(out, want) {
			t.Fatalf("output %q missing %q", out, want)
		}
	}
	if strings.Contains(out, "\033[") {
		t.Fatalf("colors should be off by default: %q", out)
	}
}

func TestColorHandler_ColorsAndGroups(t *testing.T) {
	var buf bytes.Buffer
	h := NewColorHandler(&buf, nil)
	h.SetColorEnabled(true)
	l := slog.New(h.WithGroup("lock"))
	l.Error("release failed", "status", "failed", "ok", false)

	out := buf.String()
	if !strings.Contains(out, Red+"[ERROR]"+Reset) {
		t.Fatalf("expected red error level in %q", out)
	}
	if !strings.Contains(out, "[lock]") {
		t.Fatalf("expected group in %q", out)
	}
}

func TestColorHandler_LevelGate(t *testing.T) {
	var buf bytes.Buffer
	h := NewColorHandler(&buf, nil)
	slog.New(h).Debug("nope")
	if buf.Len() != 0 {
		t.Fatalf("debug should be filtered at default info level, got %q", buf.String())
	}
}
