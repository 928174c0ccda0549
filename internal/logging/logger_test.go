package logging

import (
	"bytes"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
)

func TestNewLoggerLevelAndFormat(t *testing.T) {
	l := NewLogger("debug", "json", "")
	if l.GetLevel() != logrus.DebugLevel {
		t.Fatalf("expected debug level, got %s", l.GetLevel())
	}
	if _, ok := l.Formatter.(*logrus.JSONFormatter); !ok {
		t.Fatalf("expected json formatter")
	}

	if NewLogger("loud", "text", "").GetLevel() != logrus.InfoLevel {
		t.Fatalf("unknown levels should fall back to info")
	}
}

func TestWarnThrottled(t *testing.T) {
	l := NewLogger("info", "text", "")
	var buf bytes.Buffer
	l.SetOutput(&buf)

	for i := 0; i < 3; i++ {
		l.WarnThrottled("cache", time.Hour, "cache unavailable", logrus.Fields{"attempt": i})
	}
	if got := strings.Count(buf.String(), "cache unavailable"); got != 1 {
		t.Fatalf("expected one line, got %d", got)
	}
}

func TestComponentField(t *testing.T) {
	l := NewLogger("info", "json", "")
	var buf bytes.Buffer
	l.SetOutput(&buf)

	l.Component("service").Info("started")
	if !strings.Contains(buf.String(), `"component":"service"`) {
		t.Fatalf("missing component field: %s", buf.String())
	}
}

func TestThrottleReopensAfterInterval(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	th := newThrottle(func() time.Time { return now })

	if !th.allow("redis", time.Minute) || th.allow("redis", time.Minute) {
		t.Fatalf("expected one pass inside the interval")
	}
	if !th.allow("postgres", time.Minute) {
		t.Fatalf("keys must be throttled independently")
	}
	now = now.Add(time.Minute)
	if !th.allow("redis", time.Minute) {
		t.Fatalf("expected the key to pass again after the interval")
	}
}

func TestLogDirWritesFileAndCloses(t *testing.T) {
	dir := t.TempDir()
	l := NewLogger("info", "json", dir)
	l.Component("server").Info("listening")

	if l.file == nil {
		t.Fatalf("expected a log file to be opened")
	}
	name := l.file.Name()
	if err := l.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}
	if err := l.Close(); err != nil {
		t.Fatalf("second close must be a no-op, got %v", err)
	}

	data, err := os.ReadFile(name)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(data), `"msg":"listening"`) {
		t.Fatalf("log line missing from file: %s", data)
	}
	if entries, _ := os.ReadDir(dir); len(entries) != 1 || !strings.HasSuffix(entries[0].Name(), ".log") {
		t.Fatalf("expected one .log file in %s", dir)
	}
}

func TestDiscardDropsOutput(t *testing.T) {
	l := Discard()
	l.Error("nothing")
	if err := l.Close(); err != nil {
		t.Fatalf("discard close: %v", err)
	}
}
