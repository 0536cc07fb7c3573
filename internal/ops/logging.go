package ops

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/plumeapp/plume/internal/config"
)

// Logger is a structured logger wrapper
type Logger struct {
	*slog.Logger
	level  slog.Level
	format string
}

// NewLogger creates a new structured logger based on config
func NewLogger(cfg *config.Logging) *Logger {
	return newLogger(cfg, os.Stdout, true)
}

// NewLoggerWithWriter creates a logger with a custom writer
func NewLoggerWithWriter(cfg *config.Logging, w io.Writer) *Logger {
	return newLogger(cfg, w, false)
}

func newLogger(cfg *config.Logging, w io.Writer, formatTime bool) *Logger {
	var level slog.Level
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}
	if formatTime {
		opts.ReplaceAttr = func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey {
				if t, ok := a.Value.Any().(time.Time); ok {
					a.Value = slog.StringValue(t.Format(time.RFC3339))
				}
			}
			return a
		}
	}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}

	return &Logger{
		Logger: slog.New(handler),
		level:  level,
		format: cfg.Format,
	}
}

// WithComponent adds a component field to all log messages
func (l *Logger) WithComponent(component string) *Logger {
	return &Logger{
		Logger: l.Logger.With("component", component),
		level:  l.level,
		format: l.format,
	}
}

// WithFields adds custom fields to the logger
func (l *Logger) WithFields(fields ...any) *Logger {
	return &Logger{
		Logger: l.Logger.With(fields...),
		level:  l.level,
		format: l.format,
	}
}

// IsDebugEnabled returns true if debug logging is enabled
func (l *Logger) IsDebugEnabled() bool {
	return l.level <= slog.LevelDebug
}

// Component-specific logger helpers

// LogReconcileCycle logs the outcome of one reconciliation cycle
func (l *Logger) LogReconcileCycle(cycle uint64, duration time.Duration, failedDomains []string) {
	if len(failedDomains) > 0 {
		l.Warn("reconcile cycle completed with failures",
			"cycle", cycle,
			"duration_ms", duration.Milliseconds(),
			"failed_domains", strings.Join(failedDomains, ","))
	} else {
		l.Debug("reconcile cycle completed",
			"cycle", cycle,
			"duration_ms", duration.Milliseconds())
	}
}

// LogGatewayRequest logs a remote data gateway request
func (l *Logger) LogGatewayRequest(op string, duration time.Duration, err error) {
	if err != nil {
		l.Warn("gateway request failed",
			"operation", op,
			"duration_ms", duration.Milliseconds(),
			"error", err)
	} else {
		l.Debug("gateway request completed",
			"operation", op,
			"duration_ms", duration.Milliseconds())
	}
}

// LogPushConnection logs push event bus connection state changes
func (l *Logger) LogPushConnection(url string, connected bool, err error) {
	if err != nil {
		l.Warn("push bus connection failed",
			"url", url,
			"error", err)
	} else if connected {
		l.Info("push bus connected",
			"url", url)
	} else {
		l.Info("push bus disconnected",
			"url", url)
	}
}

// LogPushEvent logs a received push event
func (l *Logger) LogPushEvent(eventType string, room string) {
	l.Debug("push event received",
		"type", eventType,
		"room", room)
}

// LogSessionOperation logs a session store operation
func (l *Logger) LogSessionOperation(op string, duration time.Duration, err error) {
	if err != nil {
		l.Error("session store operation failed",
			"operation", op,
			"duration_ms", duration.Milliseconds(),
			"error", err)
	} else {
		l.Debug("session store operation completed",
			"operation", op,
			"duration_ms", duration.Milliseconds())
	}
}

// LogAlert logs a delivered (or failed) notification alert
func (l *Logger) LogAlert(notificationID string, notificationType string, err error) {
	if err != nil {
		// Alert delivery failures degrade to no-op, data stays correct
		l.Debug("alert delivery failed",
			"notification_id", notificationID,
			"type", notificationType,
			"error", err)
	} else {
		l.Debug("alert delivered",
			"notification_id", notificationID,
			"type", notificationType)
	}
}

// LogStartup logs application startup information
func (l *Logger) LogStartup(version, commit string, config map[string]interface{}) {
	l.Info("plume starting",
		"version", version,
		"commit", commit,
		"config", config)
}

// LogShutdown logs application shutdown
func (l *Logger) LogShutdown(reason string) {
	l.Info("plume shutting down",
		"reason", reason)
}

// LogPanic logs a panic with stack trace
func (l *Logger) LogPanic(recovered interface{}, stack string) {
	l.Error("panic recovered",
		"panic", fmt.Sprintf("%v", recovered),
		"stack", stack)
}
