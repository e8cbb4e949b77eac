package notify

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Severity classifies a user-facing notification.
type Severity string

// Supported severities.
const (
	SeveritySuccess Severity = "success"
	SeverityError   Severity = "error"
	SeverityInfo    Severity = "info"
)

// DefaultDuration is how long a notification stays visible when no duration is given.
const DefaultDuration = 5 * time.Second

// Valid reports whether s is one of the supported severities.
func (s Severity) Valid() bool {
	switch s {
	case SeveritySuccess, SeverityError, SeverityInfo:
		return true
	}
	return false
}

// Notification is a transient message shown to the operator.
type Notification struct {
	Seq        uint64    `json:"seq"`
	Message    string    `json:"message"`
	Severity   Severity  `json:"severity"`
	DurationMs int64     `json:"durationMs"`
	CreatedAt  time.Time `json:"createdAt"`
}

// Sink accepts fire-and-forget notifications.
type Sink interface {
	Notify(message string, severity Severity, duration time.Duration)
}

// Handler consumes a dispatched notification.
type Handler func(context.Context, Notification) error

// Nop discards every notification.
type Nop struct{}

// Notify implements Sink.
func (Nop) Notify(string, Severity, time.Duration) {}

// LogHandler writes notifications to the structured log.
func LogHandler(logger *zap.Logger) Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(_ context.Context, n Notification) error {
		fields := []zap.Field{
			zap.String("severity", string(n.Severity)),
			zap.Int64("duration_ms", n.DurationMs),
		}
		if n.Severity == SeverityError {
			logger.Warn(n.Message, fields...)
			return nil
		}
		logger.Info(n.Message, fields...)
		return nil
	}
}
