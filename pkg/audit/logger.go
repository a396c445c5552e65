package audit

import (
	"context"
)

// Logger is the interface for audit logging
type Logger interface {
	// Log logs an audit event
	Log(ctx context.Context, event *AuditEvent) error

	// LogAuthentication logs an authentication event
	LogAuthentication(ctx context.Context, eventType EventType, userID, username string, status EventStatus, message string) error

	// LogAdminAction logs an admin action against another account
	LogAdminAction(ctx context.Context, eventType EventType, adminUserID, targetUserID, message string) error

	// Close closes the logger and flushes any buffered logs
	Close() error
}

// NoOp returns a logger that discards everything
func NoOp() Logger {
	return noOpLogger{}
}

type noOpLogger struct{}

func (noOpLogger) Log(ctx context.Context, event *AuditEvent) error { return nil }

func (noOpLogger) LogAuthentication(ctx context.Context, eventType EventType, userID, username string, status EventStatus, message string) error {
	return nil
}

func (noOpLogger) LogAdminAction(ctx context.Context, eventType EventType, adminUserID, targetUserID, message string) error {
	return nil
}

func (noOpLogger) Close() error { return nil }

func authenticationEvent(eventType EventType, userID, username string, status EventStatus, message string) *AuditEvent {
	event := NewEvent(eventType, status)
	event.UserID = userID
	event.Username = username
	event.Message = message
	return event
}

func adminEvent(eventType EventType, adminUserID, targetUserID, message string) *AuditEvent {
	event := NewEvent(eventType, EventStatusSuccess)
	event.UserID = adminUserID
	event.TargetID = targetUserID
	event.Message = message
	return event
}
