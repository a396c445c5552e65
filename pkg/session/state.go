package session

import (
	"github.com/platinummonkey/cura/pkg/auth"
)

// Phase is the position of the session in its lifecycle
type Phase string

const (
	PhaseLoading         Phase = "loading"
	PhaseUnauthenticated Phase = "unauthenticated"
	PhaseAuthenticating  Phase = "authenticating"
	PhaseAuthenticated   Phase = "authenticated"
	PhasePendingApproval Phase = "pending_approval"
	PhaseExpired         Phase = "expired"
)

// State is a read-only view of the session. Authenticated and IsAdmin are derived from
// Identity by the constructors below and never set on their own.
type State struct {
	Identity      *auth.UserIdentity `json:"identity"`
	Authenticated bool               `json:"authenticated"`
	IsAdmin       bool               `json:"is_admin"`
	Loading       bool               `json:"loading"`
	Phase         Phase              `json:"phase"`
	// Degraded marks a break-glass session restored while the backend was unreachable
	Degraded bool `json:"degraded,omitempty"`
}

func newAuthenticatedState(identity *auth.UserIdentity, degraded bool) State {
	id := identity.Clone()
	return State{
		Identity:      id,
		Authenticated: true,
		IsAdmin:       id.IsAdmin(),
		Phase:         PhaseAuthenticated,
		Degraded:      degraded,
	}
}

func unauthenticatedState(phase Phase) State {
	return State{Phase: phase}
}

func loadingState() State {
	return State{Loading: true, Phase: PhaseLoading}
}

// authenticatingState keeps the current identity visible while an attempt is in flight
func authenticatingState(prev State) State {
	s := prev.clone()
	s.Loading = true
	s.Phase = PhaseAuthenticating
	return s
}

func (s State) clone() State {
	s.Identity = s.Identity.Clone()
	return s
}

// Snapshot is the persisted form of a session. Timers and in-flight guards are never part of it.
type Snapshot struct {
	Identity      *auth.UserIdentity `json:"identity"`
	Authenticated bool               `json:"authenticated"`
	IsAdmin       bool               `json:"isAdmin"`
	Degraded      bool               `json:"degraded,omitempty"`
	// Origin identifies the agent instance that wrote the snapshot
	Origin string `json:"origin,omitempty"`
}

func snapshotOf(s State) Snapshot {
	return Snapshot{
		Identity:      s.Identity.Clone(),
		Authenticated: s.Authenticated,
		IsAdmin:       s.IsAdmin,
		Degraded:      s.Degraded,
	}
}

// Valid reports whether the snapshot satisfies the session invariants
func (s Snapshot) Valid() bool {
	if s.Authenticated != (s.Identity != nil) {
		return false
	}
	if s.IsAdmin != s.Identity.IsAdmin() {
		return false
	}
	if s.Identity != nil && (s.Identity.ID == "" || !s.Identity.Approved) {
		return false
	}
	return true
}

// NoticeLevel classifies a user-facing notice
type NoticeLevel string

const (
	NoticeInfo    NoticeLevel = "info"
	NoticeSuccess NoticeLevel = "success"
	NoticeError   NoticeLevel = "error"
)

// Notice is a short message for the user, the equivalent of a toast
type Notice struct {
	Level   NoticeLevel `json:"level"`
	Message string      `json:"message"`
}

// Event is delivered to subscribers after every state change
type Event struct {
	State  State   `json:"state"`
	Notice *Notice `json:"notice,omitempty"`
}

func info(msg string) *Notice    { return &Notice{Level: NoticeInfo, Message: msg} }
func success(msg string) *Notice { return &Notice{Level: NoticeSuccess, Message: msg} }
func failure(msg string) *Notice { return &Notice{Level: NoticeError, Message: msg} }
