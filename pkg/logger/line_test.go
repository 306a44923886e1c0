package logger

import (
	"bytes"
	"errors"
	"log/slog"
	"regexp"
	"strings"
	"testing"
)

func TestLineHandlerFormat(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(NewLineHandler(&buf, slog.LevelInfo)).With(slog.String("agent", "oracle"))

	log.Info("Oracle price updated", slog.String("price", "2000.00"), slog.String("tx", "0xabc"))
	log.Debug("hidden")
	log.Error("Liquidation failed", slog.Any("error", errors.New("execution reverted")))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d: %q", len(lines), buf.String())
	}
	pattern := regexp.MustCompile(`^\[\d{4}-\d{2}-\d{2} \d{2}:\d{2}:\d{2}\] \[INFO\] Oracle price updated agent=oracle price=2000.00 tx=0xabc$`)
	if !pattern.MatchString(lines[0]) {
		t.Fatalf("unexpected info line: %q", lines[0])
	}
	if !strings.Contains(lines[1], `[ERROR] Liquidation failed agent=oracle error="execution reverted"`) {
		t.Fatalf("unexpected error line: %q", lines[1])
	}
}

func TestLineHandlerGroups(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(NewLineHandler(&buf, slog.LevelDebug)).WithGroup("pool")

	log.Warn("price diverged", slog.Group("a", slog.String("price", "99")), slog.Int("bps", 202))

	line := strings.TrimSpace(buf.String())
	if !strings.Contains(line, "[WARNING] price diverged pool.a.price=99 pool.bps=202") {
		t.Fatalf("unexpected grouped line: %q", line)
	}
}
