package util

import (
	"fmt"
	"sync/atomic"

	"github.com/pterm/pterm"
)

var debugEnabled atomic.Bool

func init() {
	pterm.DefaultLogger.ShowTime = true
	pterm.DefaultLogger.TimeFormat = "02 Jan 15:04:05"
	pterm.DefaultLogger.MaxWidth = 1000
}

// Leveled logging helpers backed by the pterm default logger (stderr).

func LogDebug(format string, args ...any) {
	pterm.DefaultLogger.Debug(fmt.Sprintf(format, args...))
}

func LogInfo(format string, args ...any) {
	pterm.DefaultLogger.Info(fmt.Sprintf(format, args...))
}

func LogSuccess(format string, args ...any) {
	pterm.DefaultLogger.Info(fmt.Sprintf(format, args...))
}

func LogWarning(format string, args ...any) {
	pterm.DefaultLogger.Warn(fmt.Sprintf(format, args...))
}

func LogError(format string, args ...any) {
	pterm.DefaultLogger.Error(fmt.Sprintf(format, args...))
}

// EnableDebug lowers the logger level so debug messages (including pion's
// own debug output, see PionLoggerFactory) are printed.
func EnableDebug() {
	debugEnabled.Store(true)
	pterm.DefaultLogger.Level = pterm.LogLevelDebug
}

// DebugEnabled reports whether EnableDebug has been called.
func DebugEnabled() bool {
	return debugEnabled.Load()
}
