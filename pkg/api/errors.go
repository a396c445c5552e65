package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/platinummonkey/cura/pkg/auth"
	"github.com/platinummonkey/cura/pkg/httputil"
	"github.com/platinummonkey/cura/pkg/session"
	"github.com/platinummonkey/cura/pkg/sso"
)

type errorMapping struct {
	err    error
	status int
	code   string
	// detail keeps the wrapped message, which names the offending field
	detail bool
}

// first match wins; ErrRegistrationQueued precedes ErrBackendUnavailable because a queued
// registration wraps the backend failure
var errorMappings = []errorMapping{
	{auth.ErrRegistrationQueued, http.StatusAccepted, "registration_queued", false},
	{auth.ErrPendingApproval, http.StatusAccepted, "pending_approval", false},
	{auth.ErrNotFound, http.StatusUnauthorized, "not_found", false},
	{auth.ErrInvalidCredential, http.StatusUnauthorized, "invalid_credential", false},
	{auth.ErrUnapproved, http.StatusUnauthorized, "unapproved", false},
	{auth.ErrQuickLoginUnavailable, http.StatusUnauthorized, "quick_login_unavailable", false},
	{auth.ErrProfileNotFound, http.StatusUnauthorized, "profile_not_found", false},
	{auth.ErrSessionExpired, http.StatusUnauthorized, "expired", false},
	{auth.ErrLoginInProgress, http.StatusConflict, "in_progress", false},
	{auth.ErrInvalidIdentifier, http.StatusBadRequest, "invalid_identifier", false},
	{auth.ErrInvalidRegistration, http.StatusBadRequest, "invalid_registration", true},
	{auth.ErrInvalidRole, http.StatusBadRequest, "invalid_role", true},
	{auth.ErrEmailTaken, http.StatusBadRequest, "email_taken", false},
	{auth.ErrForbidden, http.StatusForbidden, "forbidden", true},
	{sso.ErrUnknownProvider, http.StatusNotFound, "unknown_provider", false},
	{session.ErrFederationDisabled, http.StatusNotFound, "federation_disabled", false},
	{auth.ErrBackendUnavailable, http.StatusServiceUnavailable, "backend_unavailable", false},
	{context.DeadlineExceeded, http.StatusServiceUnavailable, "backend_unavailable", false},
}

// acceptedResponse answers requests that were taken but not completed, such as a login
// waiting for approval
type acceptedResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

func (s *Server) writeSessionError(w http.ResponseWriter, r *http.Request, err error) {
	for _, m := range errorMappings {
		if !errors.Is(err, m.err) {
			continue
		}
		message := m.err.Error()
		if m.detail {
			message = err.Error()
		}
		if m.status == http.StatusAccepted {
			_ = httputil.WriteJSON(w, m.status, acceptedResponse{Status: m.code, Message: message})
			return
		}
		if m.status == http.StatusServiceUnavailable {
			httputil.Logger(r.Context(), s.log).WithError(err).Warn("Backend unavailable")
		}
		httputil.WriteErrorCode(w, m.status, m.code, message)
		return
	}

	httputil.Logger(r.Context(), s.log).WithError(err).Error("Request failed")
	httputil.WriteInternalError(w)
}
