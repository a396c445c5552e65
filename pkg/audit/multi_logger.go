package audit

import (
	"context"
	"errors"

	"github.com/sirupsen/logrus"
)

// MultiLogger logs to multiple audit loggers. Every logger sees every event even when an
// earlier one fails.
type MultiLogger struct {
	loggers []Logger
}

// NewMultiLogger creates a new multi-logger that writes to multiple destinations
func NewMultiLogger(loggers ...Logger) *MultiLogger {
	return &MultiLogger{loggers: loggers}
}

// Log logs an audit event to all configured loggers and returns the first error
func (m *MultiLogger) Log(ctx context.Context, event *AuditEvent) error {
	var firstErr error
	for _, logger := range m.loggers {
		if err := logger.Log(ctx, event); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (m *MultiLogger) LogAuthentication(ctx context.Context, eventType EventType, userID, username string, status EventStatus, message string) error {
	return m.Log(ctx, authenticationEvent(eventType, userID, username, status, message))
}

func (m *MultiLogger) LogAdminAction(ctx context.Context, eventType EventType, adminUserID, targetUserID, message string) error {
	return m.Log(ctx, adminEvent(eventType, adminUserID, targetUserID, message))
}

// Close closes every logger
func (m *MultiLogger) Close() error {
	var errs []error
	for _, logger := range m.loggers {
		if err := logger.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// LogrusLogger mirrors audit events into the process log
type LogrusLogger struct {
	log *logrus.Logger
}

// NewLogrusLogger creates an audit sink on top of log
func NewLogrusLogger(log *logrus.Logger) *LogrusLogger {
	if log == nil {
		log = logrus.New()
	}
	return &LogrusLogger{log: log}
}

func (l *LogrusLogger) Log(ctx context.Context, event *AuditEvent) error {
	entry := l.log.WithFields(logrus.Fields{
		"audit_id":   event.ID,
		"event_type": event.EventType,
		"status":     event.Status,
	})
	if event.UserID != "" {
		entry = entry.WithField("uid", event.UserID)
	}
	if event.Username != "" {
		entry = entry.WithField("username", event.Username)
	}
	if event.Identifier != "" {
		entry = entry.WithField("identifier", event.Identifier)
	}
	if event.Strategy != "" {
		entry = entry.WithField("strategy", event.Strategy)
	}
	if event.TargetID != "" {
		entry = entry.WithField("target_id", event.TargetID)
	}
	if event.ErrorMessage != "" {
		entry = entry.WithField("error", event.ErrorMessage)
	}

	switch event.Status {
	case EventStatusFailure, EventStatusDenied:
		entry.Warn(event.Message)
	default:
		entry.Info(event.Message)
	}
	return nil
}

func (l *LogrusLogger) LogAuthentication(ctx context.Context, eventType EventType, userID, username string, status EventStatus, message string) error {
	return l.Log(ctx, authenticationEvent(eventType, userID, username, status, message))
}

func (l *LogrusLogger) LogAdminAction(ctx context.Context, eventType EventType, adminUserID, targetUserID, message string) error {
	return l.Log(ctx, adminEvent(eventType, adminUserID, targetUserID, message))
}

func (l *LogrusLogger) Close() error {
	return nil
}
