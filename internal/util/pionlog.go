package util

import (
	"fmt"

	"github.com/pion/logging"
)

// PionLoggerFactory routes pion's internal logging (ICE, DTLS, SCTP, ...)
// through the pterm logger so the whole process shares one output format.
// Trace output is dropped; pion's info level is demoted to debug because it
// is too chatty for a user-facing CLI.
type PionLoggerFactory struct{}

var _ logging.LoggerFactory = PionLoggerFactory{}

// NewLogger implements logging.LoggerFactory.
func (PionLoggerFactory) NewLogger(scope string) logging.LeveledLogger {
	return &pionLogger{scope: scope}
}

type pionLogger struct {
	scope string
}

func (l *pionLogger) prefix(msg string) string {
	return fmt.Sprintf("[pion/%s] %s", l.scope, msg)
}

func (l *pionLogger) Trace(string)          {}
func (l *pionLogger) Tracef(string, ...any) {}

func (l *pionLogger) Debug(msg string) { l.Debugf("%s", msg) }
func (l *pionLogger) Debugf(format string, args ...any) {
	if !DebugEnabled() {
		return
	}
	LogDebug("%s", l.prefix(fmt.Sprintf(format, args...)))
}

func (l *pionLogger) Info(msg string) { l.Infof("%s", msg) }
func (l *pionLogger) Infof(format string, args ...any) {
	l.Debugf(format, args...)
}

func (l *pionLogger) Warn(msg string) { l.Warnf("%s", msg) }
func (l *pionLogger) Warnf(format string, args ...any) {
	LogWarning("%s", l.prefix(fmt.Sprintf(format, args...)))
}

func (l *pionLogger) Error(msg string) { l.Errorf("%s", msg) }
func (l *pionLogger) Errorf(format string, args ...any) {
	LogError("%s", l.prefix(fmt.Sprintf(format, args...)))
}
