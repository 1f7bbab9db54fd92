// Package logging defines the logging façade used throughout the SDK.
//
// The SDK never writes to a concrete log sink directly; everything goes
// through the Logger interface so host applications can plug in their own
// logging infrastructure. The default implementation adapts logrus.
package logging

import (
	"io"

	"github.com/sirupsen/logrus"
)

// Logger is the minimal logging surface the SDK needs. Implementations
// must be safe for concurrent use.
type Logger interface {
	Debugf(format string, args ...interface{})
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})

	// DebugEnabled reports whether debug output is emitted. Callers use it
	// to skip expensive argument formatting.
	DebugEnabled() bool
	InfoEnabled() bool
	WarnEnabled() bool
	ErrorEnabled() bool
}

type logrusLogger struct {
	l *logrus.Logger
}

// NewLogrus wraps an existing logrus logger.
func NewLogrus(l *logrus.Logger) Logger {
	return &logrusLogger{l: l}
}

// NewDefault creates the default logger. With verbose set, debug and info
// messages are emitted; otherwise only warnings and errors.
func NewDefault(verbose bool) Logger {
	l := logrus.New()
	l.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05.000",
	})
	if verbose {
		l.SetLevel(logrus.DebugLevel)
	} else {
		l.SetLevel(logrus.WarnLevel)
	}
	return &logrusLogger{l: l}
}

// Discard returns a logger that drops everything. Used in tests.
func Discard() Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	l.SetLevel(logrus.PanicLevel)
	return &logrusLogger{l: l}
}

func (a *logrusLogger) Debugf(format string, args ...interface{}) { a.l.Debugf(format, args...) }
func (a *logrusLogger) Infof(format string, args ...interface{})  { a.l.Infof(format, args...) }
func (a *logrusLogger) Warnf(format string, args ...interface{})  { a.l.Warnf(format, args...) }
func (a *logrusLogger) Errorf(format string, args ...interface{}) { a.l.Errorf(format, args...) }

func (a *logrusLogger) DebugEnabled() bool { return a.l.IsLevelEnabled(logrus.DebugLevel) }
func (a *logrusLogger) InfoEnabled() bool  { return a.l.IsLevelEnabled(logrus.InfoLevel) }
func (a *logrusLogger) WarnEnabled() bool  { return a.l.IsLevelEnabled(logrus.WarnLevel) }
func (a *logrusLogger) ErrorEnabled() bool { return a.l.IsLevelEnabled(logrus.ErrorLevel) }
