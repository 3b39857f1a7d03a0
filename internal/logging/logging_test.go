package logging

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

func TestLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"dev":     slog.LevelDebug,
		"info":    slog.LevelInfo,
		"warning": slog.LevelWarn,
		"prod":    slog.LevelError,
		"bogus":   slog.LevelError,
	}
	for in, want := range tests {
		if got := Level(in); got != want {
			t.Errorf("Level(%q)=%v, want %v", in, got, want)
		}
	}
}

func TestPionFactory(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo}))

	l := NewPionFactory(log).NewLogger("ice")
	l.Debugf("hidden %d", 1)
	l.Infof("gathered %d candidates", 3)
	l.Warn("slow")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Fatalf("debug line leaked at info level: %s", out)
	}
	for _, want := range []string{"gathered 3 candidates", "scope=pion/ice", "level=WARN"} {
		if !strings.Contains(out, want) {
			t.Fatalf("output missing %q:\n%s", want, out)
		}
	}
}
