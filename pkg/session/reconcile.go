package session

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/platinummonkey/cura/pkg/audit"
	"github.com/platinummonkey/cura/pkg/auth"
	"github.com/platinummonkey/cura/pkg/permissions"
)

// Reconciliation outcomes
const (
	ReconcileUnchanged   = "unchanged"
	ReconcileRefreshed   = "refreshed"
	ReconcileRestored    = "restored"
	ReconcileDiscarded   = "discarded"
	ReconcileRevoked     = "revoked"
	ReconcilePending     = "pending"
	ReconcileSkipped     = "skipped"
	ReconcileUnavailable = "unavailable"
	ReconcileSignedOut   = "signed_out"
)

// Reconcile brings the local session in line with the backend's. The backend always wins:
// no backend session discards the local one, an unapproved profile signs out, and an
// approved profile is committed so role changes take effect. When the backend cannot be
// reached the local state is kept and the error returned. A backend session this device
// already signed out of is signed out again rather than restored.
func (s *Store) Reconcile(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "Reconcile")
	defer span.End()

	if s.inFlight.Load() {
		s.log.Debug("Login in progress, skipping reconciliation")
		s.metrics.ObserveReconcile(ReconcileSkipped)
		return nil
	}
	epoch := s.epoch.Load()

	uid, err := s.backend.Session.Current(ctx)
	if err != nil {
		return s.reconcileFailed(span, auth.BackendError("current session", err))
	}

	var profile *auth.UserIdentity
	if uid != "" {
		profile, err = s.backend.Profiles.Read(ctx, uid)
		if errors.Is(err, auth.ErrProfileNotFound) {
			profile, err = nil, nil
		}
		if err != nil {
			return s.reconcileFailed(span, auth.BackendError("read profile", err))
		}
	}

	s.announceQueuedRegistrations(ctx)

	s.opMu.Lock()
	var ev *Event
	outcome := ReconcileSkipped
	// the backend answers are stale if a login started or the session changed meanwhile
	if !s.inFlight.Load() && s.epoch.Load() == epoch {
		ev, outcome = s.reconcileLocked(ctx, uid, profile)
	}
	s.opMu.Unlock()

	s.metrics.ObserveReconcile(outcome)
	if outcome != ReconcileUnchanged {
		s.log.WithField("outcome", outcome).Info("Reconciled session with backend")
	}
	if ev != nil {
		s.publish(*ev)
	}
	return nil
}

func (s *Store) reconcileFailed(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, ReconcileUnavailable)
	s.metrics.ObserveReconcile(ReconcileUnavailable)
	return err
}

func (s *Store) reconcileLocked(ctx context.Context, uid string, profile *auth.UserIdentity) (*Event, string) {
	cur := s.State()

	if done, outcome := s.settleOwedSignOutLocked(ctx, uid, cur); done {
		return nil, outcome
	}

	switch {
	case uid == "":
		if cur.Identity == nil {
			return nil, ReconcileUnchanged
		}
		s.metrics.ForcedLogout(ReasonRevoked)
		s.auditEvent(ctx, audit.EventTypeAuthRevoked, audit.EventStatusSuccess, cur.Identity, "", "", nil)
		ev := s.teardownLocked(ctx, teardown{phase: PhaseUnauthenticated, notice: info(msgSessionEnded), keepQuickLogin: true})
		return &ev, ReconcileDiscarded

	case profile == nil:
		pending := auth.NewPendingProfile(uid, "User", "", "New User", s.clock.Now().UTC())
		if cur.Identity != nil && cur.Identity.ID == uid {
			pending.Username = cur.Identity.Username
			pending.Email = cur.Identity.Email
			pending.DisplayName = cur.Identity.DisplayName
		}
		if err := s.backend.Profiles.Create(ctx, pending); err != nil {
			s.log.WithError(err).WithField("uid", uid).Warn("Failed to create pending profile")
		}
		ev := s.teardownLocked(ctx, teardown{phase: PhasePendingApproval, notice: info(msgAwaitingApproval), signOut: true})
		return &ev, ReconcilePending

	case !profile.Approved:
		if cur.Identity != nil {
			s.metrics.ForcedLogout(ReasonRevoked)
			s.auditEvent(ctx, audit.EventTypeAuthRevoked, audit.EventStatusDenied, cur.Identity, "", "", auth.ErrUnapproved)
		}
		ev := s.teardownLocked(ctx, teardown{phase: PhaseUnauthenticated, notice: noticeFor(auth.ErrUnapproved), signOut: true})
		return &ev, ReconcileRevoked
	}

	identity := profile.Clone()
	identity.ID = uid
	identity.Role = permissions.ParseRole(string(identity.Role))
	if formatted := auth.FormatUsername(identity.Username); formatted != "" {
		identity.Username = formatted
	}

	if cur.Identity != nil && cur.Identity.ID == uid {
		if !cur.Degraded && sameProfile(cur.Identity, identity) {
			return nil, ReconcileUnchanged
		}
		// refresh without touching the inactivity window
		next := newAuthenticatedState(identity, false)
		s.setState(next)
		s.saveLocked(ctx, next)
		return &Event{State: next.clone()}, ReconcileRefreshed
	}

	ev := s.commitLocked(ctx, identity, commit{strategy: strategyReconcile})
	return &ev, ReconcileRestored
}

// settleOwedSignOutLocked retries a sign-out the backend missed. It reports whether the backend
// session belonged to a user signed out here, in which case reconciliation stops.
func (s *Store) settleOwedSignOutLocked(ctx context.Context, uid string, cur State) (bool, string) {
	owed, err := s.persist.SignOutOwed(ctx)
	if err != nil {
		s.log.WithError(err).Warn("Failed to read sign-out marker")
		return false, ""
	}
	if !owed {
		return false, ""
	}
	if uid == "" {
		if err := s.persist.ClearSignOutOwed(ctx); err != nil {
			s.log.WithError(err).Warn("Failed to clear sign-out marker")
		}
		return false, ""
	}
	if cur.Identity != nil && cur.Identity.ID == uid {
		return false, ""
	}

	if err := s.backend.Session.SignOut(ctx); err != nil {
		s.log.WithError(err).WithField("uid", uid).Warn("Backend still holds a signed-out session")
		return true, ReconcileUnavailable
	}
	if err := s.persist.ClearSignOutOwed(ctx); err != nil {
		s.log.WithError(err).Warn("Failed to clear sign-out marker")
	}
	s.log.WithField("uid", uid).Info("Completed owed backend sign-out")
	return true, ReconcileSignedOut
}

func (s *Store) reconcileInBackground() {
	ctx, cancel := context.WithTimeout(context.Background(), backgroundTimeout)
	defer cancel()
	if err := s.Reconcile(ctx); err != nil {
		s.log.WithError(err).Warn("Periodic reconciliation failed")
	}
}

// announceQueuedRegistrations tells the administrators about registrations captured offline.
// Each one is announced once.
func (s *Store) announceQueuedRegistrations(ctx context.Context) {
	if s.backend.Notifier == nil {
		return
	}
	pending, err := s.registrations.list(ctx)
	if err != nil {
		s.log.WithError(err).Warn("Failed to read queued registrations")
		return
	}

	changed := false
	for i := range pending {
		if pending[i].Notified {
			continue
		}
		msg := registrationMessage(pending[i].Username, pending[i].Role) + " (submitted offline)"
		if err := s.backend.Notifier.Notify(ctx, msg, auth.AudienceAdmin); err != nil {
			s.log.WithError(err).Warn("Failed to announce queued registration")
			break
		}
		pending[i].Notified = true
		changed = true
	}
	if !changed {
		return
	}
	if err := s.registrations.save(ctx, pending); err != nil {
		s.log.WithError(err).Warn("Failed to update queued registrations")
	}
}

func sameProfile(a, b *auth.UserIdentity) bool {
	return a.Role == b.Role &&
		a.Approved == b.Approved &&
		a.Username == b.Username &&
		a.Email == b.Email &&
		a.DisplayName == b.DisplayName &&
		a.Title == b.Title
}
