// Package audit records who signed in to a workstation, how, and when they left.
//
// # Event Types
//
// Authentication: login, login_failed, quick_login, federated_login, logout,
// session_expired, break_glass, registration, revoked
// Admin: user_approve, user_deny, profile_update
//
// # Usage Example
//
//	logger, _ := audit.NewFileLogger(audit.FileLoggerConfig{Dir: "/var/log/cura"})
//	logger.LogAuthentication(ctx, audit.EventTypeAuthLogin, identity.ID, identity.Username,
//		audit.EventStatusSuccess, "credential login")
//
// FileLogger appends one JSON object per line to a journal and rotates it by size. MultiLogger fans out to
// several sinks, typically a FileLogger and a LogrusLogger.
package audit
