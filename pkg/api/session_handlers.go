package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/platinummonkey/cura/pkg/httputil"
	"github.com/platinummonkey/cura/pkg/permissions"
	"github.com/platinummonkey/cura/pkg/session"
)

type loginRequest struct {
	Identifier string `json:"identifier"`
	Password   string `json:"password"`
}

type quickLoginRequest struct {
	Identifier string `json:"identifier"`
}

type federatedLoginRequest struct {
	// Credential is the authorization code or SAML response returned by the provider
	Credential string `json:"credential"`
}

type activityRequest struct {
	// Event is empty to restart the inactivity window without naming an interaction
	Event string `json:"event"`
}

type providerInfo struct {
	Name  string `json:"name"`
	Label string `json:"label"`
	Type  string `json:"type"`
}

// getState handles GET /session
func (s *Server) getState(w http.ResponseWriter, r *http.Request) {
	_ = httputil.WriteSuccess(w, s.sessions.State())
}

// login handles POST /session/login
func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if err := s.sessions.Login(r.Context(), req.Identifier, req.Password); err != nil {
		s.writeSessionError(w, r, err)
		return
	}
	_ = httputil.WriteSuccess(w, s.sessions.State())
}

// quickLogin handles POST /session/quick-login
func (s *Server) quickLogin(w http.ResponseWriter, r *http.Request) {
	var req quickLoginRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if err := s.sessions.QuickLogin(r.Context(), req.Identifier); err != nil {
		s.writeSessionError(w, r, err)
		return
	}
	_ = httputil.WriteSuccess(w, s.sessions.State())
}

// federatedLogin handles POST /session/federated/{provider}
func (s *Server) federatedLogin(w http.ResponseWriter, r *http.Request) {
	provider, ok := httputil.ParsePathStringOrError(w, r, "provider")
	if !ok {
		return
	}
	var req federatedLoginRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if req.Credential == "" {
		httputil.WriteBadRequest(w, "credential is required")
		return
	}
	if err := s.sessions.LoginWithFederatedProvider(r.Context(), provider, req.Credential); err != nil {
		s.writeSessionError(w, r, err)
		return
	}
	_ = httputil.WriteSuccess(w, s.sessions.State())
}

// listProviders handles GET /session/providers
func (s *Server) listProviders(w http.ResponseWriter, r *http.Request) {
	out := make([]providerInfo, 0)
	for _, name := range s.providers.Names() {
		p, err := s.providers.Get(name)
		if err != nil {
			continue
		}
		out = append(out, providerInfo{Name: p.Name(), Label: p.Label(), Type: string(p.Type())})
	}
	_ = httputil.WriteSuccess(w, out)
}

// authorizeFederated handles GET /session/federated/{provider}/authorize. The caller keeps
// the returned state and checks it against the provider's redirect.
func (s *Server) authorizeFederated(w http.ResponseWriter, r *http.Request) {
	name, ok := httputil.ParsePathStringOrError(w, r, "provider")
	if !ok {
		return
	}
	p, err := s.providers.Get(name)
	if err != nil {
		s.writeSessionError(w, r, err)
		return
	}
	state := uuid.NewString()
	url, err := p.AuthorizationURL(state)
	if err != nil {
		s.writeSessionError(w, r, fmt.Errorf("authorization url for %s: %w", name, err))
		return
	}
	_ = httputil.WriteSuccess(w, map[string]string{"url": url, "state": state})
}

// logout handles POST /session/logout
func (s *Server) logout(w http.ResponseWriter, r *http.Request) {
	s.sessions.Logout(r.Context())
	_ = httputil.WriteSuccess(w, s.sessions.State())
}

// getRecentLogin handles GET /session/recent-login
func (s *Server) getRecentLogin(w http.ResponseWriter, r *http.Request) {
	_ = httputil.WriteSuccess(w, s.sessions.RecentLogin(r.Context()))
}

// checkPermission handles GET /session/permissions/{capability}
func (s *Server) checkPermission(w http.ResponseWriter, r *http.Request) {
	capability, ok := httputil.ParsePathStringOrError(w, r, "capability")
	if !ok {
		return
	}
	_ = httputil.WriteSuccess(w, map[string]interface{}{
		"capability": capability,
		"granted":    s.sessions.HasPermission(permissions.Capability(capability)),
	})
}

// checkAction handles GET /session/actions/{action}
func (s *Server) checkAction(w http.ResponseWriter, r *http.Request) {
	action, ok := httputil.ParsePathStringOrError(w, r, "action")
	if !ok {
		return
	}
	_ = httputil.WriteSuccess(w, map[string]interface{}{
		"action":  action,
		"allowed": s.sessions.CanPerformAction(permissions.Action(action)),
	})
}

// recordActivity handles POST /session/activity
func (s *Server) recordActivity(w http.ResponseWriter, r *http.Request) {
	var req activityRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if req.Event == "" {
		s.sessions.ResetInactivityTimer(r.Context())
		_ = httputil.WriteSuccess(w, map[string]bool{"recorded": s.sessions.State().Authenticated})
		return
	}
	ev, ok := session.ParseActivityEvent(req.Event)
	if !ok {
		httputil.WriteBadRequest(w, fmt.Sprintf("unknown activity event %q", req.Event))
		return
	}
	_ = httputil.WriteSuccess(w, map[string]bool{"recorded": s.sessions.RecordActivity(r.Context(), ev)})
}

// visibilityRestored handles POST /session/visibility
func (s *Server) visibilityRestored(w http.ResponseWriter, r *http.Request) {
	expired := s.sessions.VisibilityRestored(r.Context())
	_ = httputil.WriteSuccess(w, map[string]interface{}{
		"expired": expired,
		"state":   s.sessions.State(),
	})
}

// reconcile handles POST /session/reconcile
func (s *Server) reconcile(w http.ResponseWriter, r *http.Request) {
	if err := s.sessions.Reconcile(r.Context()); err != nil {
		s.writeSessionError(w, r, err)
		return
	}
	_ = httputil.WriteSuccess(w, s.sessions.State())
}

// streamEvents handles GET /session/events as a server-sent event stream. The current
// state is sent first, then every change. Slow readers drop intermediate events, never the
// connection.
func (s *Server) streamEvents(w http.ResponseWriter, r *http.Request) {
	rc := http.NewResponseController(w)
	// the server write timeout would otherwise cut the stream
	_ = rc.SetWriteDeadline(time.Time{})

	events := make(chan session.Event, 16)
	unsubscribe := s.sessions.Subscribe(func(ev session.Event) {
		select {
		case events <- ev:
		default:
		}
	})
	defer unsubscribe()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	if err := writeEvent(w, session.Event{State: s.sessions.State()}); err != nil {
		return
	}
	if err := rc.Flush(); err != nil {
		s.log.WithError(err).Warn("Event stream cannot be flushed")
		return
	}

	for {
		select {
		case <-r.Context().Done():
			return
		case ev := <-events:
			if err := writeEvent(w, ev); err != nil {
				return
			}
			_ = rc.Flush()
		}
	}
}

func writeEvent(w http.ResponseWriter, ev session.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: session\ndata: %s\n\n", data)
	return err
}
