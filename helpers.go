package samp

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
)

// NewNopLogger returns a Logger that discards everything.
func NewNopLogger() Logger { return nopLogger{} }

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}

// NewLogrusLogger adapts a logrus logger (or entry) to Logger. Key/value pairs
// become logrus fields.
func NewLogrusLogger(l logrus.FieldLogger) Logger {
	if l == nil {
		l = logrus.StandardLogger()
	}
	return &logrusLogger{l: l}
}

type logrusLogger struct {
	l logrus.FieldLogger
}

func (s *logrusLogger) Debug(msg string, kv ...any) { s.with(kv).Debug(msg) }
func (s *logrusLogger) Info(msg string, kv ...any)  { s.with(kv).Info(msg) }
func (s *logrusLogger) Warn(msg string, kv ...any)  { s.with(kv).Warn(msg) }
func (s *logrusLogger) Error(msg string, kv ...any) { s.with(kv).Error(msg) }

func (s *logrusLogger) with(kv []any) logrus.FieldLogger {
	if len(kv) == 0 {
		return s.l
	}
	fields := make(logrus.Fields, len(kv)/2+1)
	for i := 0; i < len(kv); i += 2 {
		key := fmt.Sprint(kv[i])
		if i+1 >= len(kv) {
			fields["!BADKEY"] = key
			break
		}
		fields[key] = kv[i+1]
	}
	return s.l.WithFields(fields)
}

// orNop keeps call sites free of nil checks.
func orNop(l Logger) Logger {
	if l == nil {
		return nopLogger{}
	}
	return l
}

// NewSystemClock returns a Clock that uses time.Now().
func NewSystemClock() Clock { return systemClock{} }

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }
