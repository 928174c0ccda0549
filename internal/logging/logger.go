package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Logger is the process-wide logrus logger. When built with a log
// directory it owns the log file until Close.
type Logger struct {
	*logrus.Logger
	file     *os.File
	throttle *throttle
}

// NewLogger builds a logrus logger. Unknown levels fall back to info; any
// format other than "json" is text. With a logDir, output is teed to a
// timestamped file in that directory.
func NewLogger(level, format, logDir string) *Logger {
	base := logrus.New()
	base.SetLevel(parseLevel(level))
	if format == "json" {
		base.SetFormatter(&logrus.JSONFormatter{})
	} else {
		base.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	base.SetOutput(os.Stdout)

	l := &Logger{Logger: base, throttle: newThrottle(time.Now)}
	if logDir == "" {
		return l
	}
	file, err := openLogFile(logDir, time.Now())
	if err != nil {
		base.WithError(err).Warn("file logging disabled")
		return l
	}
	l.file = file
	base.SetOutput(io.MultiWriter(os.Stdout, file))
	return l
}

// Discard returns a logger that drops everything, for tests.
func Discard() *Logger {
	base := logrus.New()
	base.SetOutput(io.Discard)
	base.SetLevel(logrus.PanicLevel)
	return &Logger{Logger: base, throttle: newThrottle(time.Now)}
}

func parseLevel(level string) logrus.Level {
	parsed, err := logrus.ParseLevel(level)
	if err != nil {
		return logrus.InfoLevel
	}
	return parsed
}

func openLogFile(dir string, at time.Time) (*os.File, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}
	name := filepath.Join(dir, "tallerpos_"+at.Format("20060102_150405")+".log")
	return os.OpenFile(name, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
}

// Close flushes output back to stdout and closes the log file, if any. It is
// safe to call more than once.
func (l *Logger) Close() error {
	if l.file == nil {
		return nil
	}
	l.SetOutput(os.Stdout)
	err := l.file.Close()
	l.file = nil
	return err
}

func (l *Logger) Component(name string) *logrus.Entry {
	return l.WithField("component", name)
}

// WarnThrottled logs at most once per interval for the given key.
func (l *Logger) WarnThrottled(key string, interval time.Duration, message string, fields logrus.Fields) {
	if !l.throttle.allow(key, interval) {
		return
	}
	l.WithFields(fields).Warn(message)
}

type throttle struct {
	mu   sync.Mutex
	last map[string]time.Time
	now  func() time.Time
}

func newThrottle(now func() time.Time) *throttle {
	return &throttle{last: make(map[string]time.Time), now: now}
}

func (t *throttle) allow(key string, interval time.Duration) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	if last, ok := t.last[key]; ok && now.Sub(last) < interval {
		return false
	}
	t.last[key] = now
	return true
}
