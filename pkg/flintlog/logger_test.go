package flintlog

import (
	"bytes"
	"strings"
	"testing"
)

func TestLevelOrdering(t *testing.T) {
	levels := []Level{LevelDebug, LevelVerbose, LevelInfo, LevelWarning, LevelError}
	for i := 1; i < len(levels); i++ {
		if levels[i-1] >= levels[i] {
			t.Fatalf("expected %v < %v", levels[i-1], levels[i])
		}
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]Level{
		"debug":   LevelDebug,
		"verbose": LevelVerbose,
		"info":    LevelInfo,
		"warning": LevelWarning,
		"warn":    LevelWarning,
		"error":   LevelError,
		"bogus":   LevelInfo,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestDefaultLoggerFiltersBelowLevel(t *testing.T) {
	var buf bytes.Buffer
	l := NewDefaultLogger(LevelWarning, &buf)
	l.Debug("hidden")
	l.Info("also hidden")
	l.Warn("shown %d", 1)

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Fatalf("expected debug/info to be filtered, got %q", out)
	}
	if !strings.Contains(out, "shown 1") {
		t.Fatalf("expected warning to be logged, got %q", out)
	}
}

func TestWithFieldsAccumulates(t *testing.T) {
	var buf bytes.Buffer
	l := NewDefaultLogger(LevelDebug, &buf)
	child := l.WithField("node", 42).WithFields(map[string]interface{}{"op": "add"})
	child.Info("executing")

	out := buf.String()
	if !strings.Contains(out, "node=42") || !strings.Contains(out, "op=add") {
		t.Fatalf("expected both fields present, got %q", out)
	}
}

func TestNullLoggerDiscardsSilently(t *testing.T) {
	var l Logger = NullLogger{}
	l.Debug("x")
	l.WithField("a", 1).Info("y")
}

func TestGlobalLoggerRoundtrip(t *testing.T) {
	var buf bytes.Buffer
	SetGlobal(NewDefaultLogger(LevelDebug, &buf))
	defer SetGlobal(NullLogger{})

	Global().Info("hello")
	if !strings.Contains(buf.String(), "hello") {
		t.Fatalf("expected global logger to receive message")
	}
}
