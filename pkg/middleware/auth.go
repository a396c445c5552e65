package middleware

import (
	"context"
	"net/http"

	"github.com/platinummonkey/cura/pkg/auth"
	"github.com/platinummonkey/cura/pkg/contextkeys"
	"github.com/platinummonkey/cura/pkg/httputil"
	"github.com/platinummonkey/cura/pkg/permissions"
	"github.com/platinummonkey/cura/pkg/session"
)

// SessionReader exposes the current session of the agent
type SessionReader interface {
	State() session.State
}

// RequireSession rejects requests with 401 unless a user is signed in, and stores the
// signed-in identity in the request context.
func RequireSession(sessions SessionReader) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			st := sessions.State()
			if !st.Authenticated || st.Identity == nil {
				httputil.WriteErrorCode(w, http.StatusUnauthorized, "unauthenticated", "sign in required")
				return
			}
			ctx := context.WithValue(r.Context(), contextkeys.IdentityKey, st.Identity)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireCapability rejects requests with 403 unless the signed-in user's role grants
// capability. It must run after RequireSession.
func RequireCapability(capability permissions.Capability) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity := Identity(r.Context())
			if identity == nil {
				httputil.WriteErrorCode(w, http.StatusUnauthorized, "unauthenticated", "sign in required")
				return
			}
			if !permissions.HasPermission(identity.Role, capability) {
				httputil.WriteErrorCode(w, http.StatusForbidden, "forbidden", auth.ErrForbidden.Error())
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// Identity returns the identity stored by RequireSession
func Identity(ctx context.Context) *auth.UserIdentity {
	identity, _ := ctx.Value(contextkeys.IdentityKey).(*auth.UserIdentity)
	return identity
}
