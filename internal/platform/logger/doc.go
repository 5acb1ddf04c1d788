// Package logger configures log/slog for the service and carries loggers
// through request and tick contexts. It also adapts slog to the logging
// interfaces expected by goose and cron.
package logger
