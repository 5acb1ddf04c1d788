package logger

import (
	"fmt"
	"log/slog"
	"strings"
)

// GooseLogger routes goose migration output through slog.
type GooseLogger struct {
	Logger *slog.Logger
}

func (l GooseLogger) logger() *slog.Logger {
	if l.Logger == nil {
		return slog.Default()
	}
	return l.Logger
}

// Printf implements goose.Logger.
func (l GooseLogger) Printf(format string, v ...any) {
	l.logger().Info(strings.TrimSpace(fmt.Sprintf(format, v...)))
}

// Fatalf implements goose.Logger. It logs at error level and does not exit;
// goose reports the failure through its returned error.
func (l GooseLogger) Fatalf(format string, v ...any) {
	l.logger().Error(strings.TrimSpace(fmt.Sprintf(format, v...)))
}

// CronLogger routes scheduler diagnostics through slog. It satisfies
// cron.Logger.
type CronLogger struct {
	Logger *slog.Logger
}

func (l CronLogger) logger() *slog.Logger {
	if l.Logger == nil {
		return slog.Default()
	}
	return l.Logger
}

// Info logs routine scheduler activity at debug level.
func (l CronLogger) Info(msg string, keysAndValues ...any) {
	l.logger().Debug(msg, keysAndValues...)
}

// Error logs scheduler failures.
func (l CronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger().Error(msg, append([]any{"error", err}, keysAndValues...)...)
}
