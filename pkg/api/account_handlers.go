package api

import (
	"net/http"

	"github.com/platinummonkey/cura/pkg/auth"
	"github.com/platinummonkey/cura/pkg/httputil"
	"github.com/platinummonkey/cura/pkg/permissions"
)

type approveRequest struct {
	// Role is assigned together with the approval when set
	Role permissions.Role `json:"role,omitempty"`
}

type roleCategory struct {
	Category permissions.Category         `json:"category"`
	Roles    []permissions.RoleDefinition `json:"roles"`
}

// register handles POST /session/register
func (s *Server) register(w http.ResponseWriter, r *http.Request) {
	var reg auth.Registration
	if !httputil.ParseJSONOrError(w, r, &reg) {
		return
	}
	if err := s.sessions.Register(r.Context(), reg); err != nil {
		s.writeSessionError(w, r, err)
		return
	}
	_ = httputil.WriteJSON(w, http.StatusAccepted, acceptedResponse{
		Status:  "pending_approval",
		Message: auth.ErrPendingApproval.Error(),
	})
}

// updateProfile handles PUT /session/profile
func (s *Server) updateProfile(w http.ResponseWriter, r *http.Request) {
	var upd auth.ProfileUpdate
	if !httputil.ParseJSONOrError(w, r, &upd) {
		return
	}
	if err := s.sessions.UpdateProfile(r.Context(), upd); err != nil {
		s.writeSessionError(w, r, err)
		return
	}
	_ = httputil.WriteSuccess(w, s.sessions.State())
}

// updateNotifications handles PUT /session/profile/notifications
func (s *Server) updateNotifications(w http.ResponseWriter, r *http.Request) {
	var prefs auth.NotificationPreferences
	if !httputil.ParseJSONOrError(w, r, &prefs) {
		return
	}
	if err := s.sessions.SetNotificationPreferences(r.Context(), prefs); err != nil {
		s.writeSessionError(w, r, err)
		return
	}
	_ = httputil.WriteSuccess(w, s.sessions.State())
}

// listPendingUsers handles GET /admin/users/pending
func (s *Server) listPendingUsers(w http.ResponseWriter, r *http.Request) {
	users, err := s.sessions.PendingUsers(r.Context())
	if err != nil {
		s.writeSessionError(w, r, err)
		return
	}
	if users == nil {
		users = []*auth.UserIdentity{}
	}
	_ = httputil.WriteSuccess(w, users)
}

// approveUser handles POST /admin/users/{uid}/approve. The body is optional.
func (s *Server) approveUser(w http.ResponseWriter, r *http.Request) {
	uid, ok := httputil.ParsePathStringOrError(w, r, "uid")
	if !ok {
		return
	}
	var req approveRequest
	if !httputil.ParseOptionalJSONOrError(w, r, &req) {
		return
	}
	if err := s.sessions.ApproveUser(r.Context(), uid, req.Role); err != nil {
		s.writeSessionError(w, r, err)
		return
	}
	httputil.WriteNoContent(w)
}

// denyUser handles POST /admin/users/{uid}/deny
func (s *Server) denyUser(w http.ResponseWriter, r *http.Request) {
	uid, ok := httputil.ParsePathStringOrError(w, r, "uid")
	if !ok {
		return
	}
	if err := s.sessions.DenyUser(r.Context(), uid); err != nil {
		s.writeSessionError(w, r, err)
		return
	}
	httputil.WriteNoContent(w)
}

// listRoles handles GET /roles, grouped by category for the registration form
func (s *Server) listRoles(w http.ResponseWriter, r *http.Request) {
	byCategory := permissions.RolesByCategory()
	out := make([]roleCategory, 0, len(byCategory))
	for _, category := range permissions.Categories() {
		if category == permissions.CategoryUnassigned {
			continue
		}
		if roles := byCategory[category]; len(roles) > 0 {
			out = append(out, roleCategory{Category: category, Roles: roles})
		}
	}
	_ = httputil.WriteSuccess(w, out)
}
