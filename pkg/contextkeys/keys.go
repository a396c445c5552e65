// Package contextkeys defines the request context keys shared by the HTTP layers.
//
//	ctx = context.WithValue(ctx, contextkeys.IdentityKey, identity)
//	identity, _ := ctx.Value(contextkeys.IdentityKey).(*auth.UserIdentity)
package contextkeys

// Key is the type for context keys to prevent collisions
type Key string

const (
	// IdentityKey holds the *auth.UserIdentity of the signed-in user.
	// Set by middleware.RequireSession.
	IdentityKey Key = "identity"

	// RequestIDKey holds the request ID string.
	// Set by httputil.RequestIDMiddleware.
	RequestIDKey Key = "request_id"

	// LoggerKey holds a *logrus.Entry annotated with the request ID and trace.
	// Set by httputil.LoggingMiddleware.
	LoggerKey Key = "logger"
)
