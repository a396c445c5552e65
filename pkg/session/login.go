package session

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/platinummonkey/cura/pkg/audit"
	"github.com/platinummonkey/cura/pkg/auth"
	"github.com/platinummonkey/cura/pkg/permissions"
)

const (
	msgLoggedOut           = "Logged out successfully"
	msgInactivity          = "You have been logged out due to inactivity"
	msgQuickLoginFailed    = "Quick login failed. Please use full login."
	msgConnectivity        = "We are experiencing connectivity issues. Please try again later."
	msgAwaitingApproval    = "Account created! Please wait for admin approval."
	msgRegistrationPending = "Your registration is pending. We are experiencing connectivity issues. Please try again later or contact support."
	msgSessionEnded        = "Your session has ended. Please sign in again."
	msgSignedOutElsewhere  = "You have been signed out in another window"
	msgBreakGlass          = "Signed in with emergency access. The server is unreachable; some features are unavailable."
	msgLoginInterrupted    = "Sign-in was cancelled because the session ended while it ran."
)

// ErrFederationDisabled is returned by LoginWithFederatedProvider when no providers are configured
var ErrFederationDisabled = errors.New("federated login is not configured")

// ErrLoginInterrupted is returned when the session was ended or replaced while a login ran.
// The attempt's backend sign-in is undone and nothing is committed.
var ErrLoginInterrupted = errors.New("login interrupted by a session change")

// errQueuedRegistration marks a login refused because the registration never reached the server
var errQueuedRegistration = fmt.Errorf("%w: registration has not reached the server yet", auth.ErrPendingApproval)

// Login runs a full credential login. On success the session is committed and quick login
// is opened for identifier. On failure the previous state is left as it was.
func (s *Store) Login(ctx context.Context, identifier, password string) error {
	id := strings.TrimSpace(identifier)
	return s.runAttempt(ctx, StrategyCredential, id, func(ctx context.Context) (*auth.UserIdentity, commit, error) {
		if _, err := auth.ValidateIdentifier(id); err != nil {
			return nil, commit{}, err
		}
		if s.credentials == nil {
			return nil, commit{}, auth.BackendError("credential login", errors.New("no credential verifier configured"))
		}

		pending, err := s.registrations.find(ctx, id)
		if err != nil {
			s.log.WithError(err).Warn("Failed to check queued registrations")
		} else if pending != nil {
			return nil, commit{}, errQueuedRegistration
		}

		identity, err := s.credentials.Authenticate(ctx, id, password)
		if err == nil {
			return identity, commit{
				strategy:        StrategyCredential,
				quickIdentifier: id,
				notice:          success(welcome(identity)),
			}, nil
		}

		if errors.Is(err, auth.ErrBackendUnavailable) {
			if restored, ok := s.breakGlass(ctx, id, password); ok {
				return restored, commit{
					strategy: StrategyBreakGlass,
					degraded: true,
					notice:   info(msgBreakGlass),
				}, nil
			}
		}
		return nil, commit{}, err
	})
}

// QuickLogin signs the most recent full-login user back in without a password, provided
// identifier matches what they typed and the record is younger than the quick-login TTL.
// When the profile store is reachable the profile must still be approved with the same role.
func (s *Store) QuickLogin(ctx context.Context, identifier string) error {
	id := strings.TrimSpace(identifier)
	return s.runAttempt(ctx, StrategyQuick, id, func(ctx context.Context) (*auth.UserIdentity, commit, error) {
		rec, err := s.quick.Get(ctx)
		if err != nil {
			return nil, commit{}, fmt.Errorf("%w: %w", auth.ErrQuickLoginUnavailable, err)
		}
		if id == "" || rec == nil || rec.Identity == nil || rec.Identifier != id || !s.quick.Fresh(rec) {
			return nil, commit{}, auth.ErrQuickLoginUnavailable
		}

		identity, err := s.confirmQuickLogin(ctx, rec.Identity)
		if err != nil {
			return nil, commit{}, err
		}
		return identity, commit{strategy: StrategyQuick, notice: success(welcome(identity))}, nil
	})
}

// confirmQuickLogin checks the recorded identity against the profile store. Quick login can
// never approve an account or change its role.
func (s *Store) confirmQuickLogin(ctx context.Context, recorded *auth.UserIdentity) (*auth.UserIdentity, error) {
	identity := recorded.Clone()
	profile, err := s.backend.Profiles.Read(ctx, identity.ID)
	switch {
	case err == nil:
		if !profile.Approved {
			s.clearQuickLogin(ctx)
			return nil, auth.ErrUnapproved
		}
		if permissions.ParseRole(string(profile.Role)) != identity.Role {
			s.clearQuickLogin(ctx)
			return nil, fmt.Errorf("%w: role changed since the last sign-in", auth.ErrQuickLoginUnavailable)
		}
	case errors.Is(err, auth.ErrProfileNotFound):
		s.clearQuickLogin(ctx)
		return nil, auth.ErrQuickLoginUnavailable
	default:
		s.log.WithError(err).WithField("uid", identity.ID).Warn("Profile store unreachable, replaying recorded identity")
	}

	if err := s.backend.Session.SignIn(ctx, identity.ID); err != nil {
		s.log.WithError(err).WithField("uid", identity.ID).Warn("Failed to sign in backend session for quick login")
	}
	return identity, nil
}

// LoginWithFederatedProvider completes a federated login with the provider's callback
// artefact. A first login creates a pending profile and returns auth.ErrPendingApproval.
func (s *Store) LoginWithFederatedProvider(ctx context.Context, provider, credential string) error {
	if s.federated == nil {
		return ErrFederationDisabled
	}
	return s.runAttempt(ctx, StrategyFederated, provider, func(ctx context.Context) (*auth.UserIdentity, commit, error) {
		identity, err := s.federated.Authenticate(ctx, provider, credential)
		if err != nil {
			return nil, commit{}, err
		}
		return identity, commit{strategy: StrategyFederated, notice: success(welcome(identity))}, nil
	})
}

// Logout ends the session. It is idempotent and always leaves the store unauthenticated,
// even when the backend cannot be reached.
func (s *Store) Logout(ctx context.Context) {
	ctx, span := tracer.Start(ctx, "Logout")
	defer span.End()

	s.opMu.Lock()
	prev := s.State()
	ev := s.teardownLocked(ctx, teardown{phase: PhaseUnauthenticated, notice: success(msgLoggedOut), signOut: true})
	s.opMu.Unlock()

	if prev.Identity != nil {
		s.log.WithField("uid", prev.Identity.ID).Info("User logged out")
		s.auditEvent(ctx, audit.EventTypeAuthLogout, audit.EventStatusSuccess, prev.Identity, "", "", nil)
	}
	s.publish(ev)
}

// expire is the inactivity monitor's callback
func (s *Store) expire() {
	ctx, cancel := context.WithTimeout(context.Background(), backgroundTimeout)
	defer cancel()

	s.opMu.Lock()
	prev := s.State()
	if !prev.Authenticated {
		s.opMu.Unlock()
		return
	}
	ev := s.teardownLocked(ctx, teardown{phase: PhaseExpired, notice: info(msgInactivity), signOut: true})
	s.opMu.Unlock()

	s.log.WithField("uid", prev.Identity.ID).Info("Session expired after inactivity")
	s.metrics.ForcedLogout(ReasonInactivity)
	s.auditEvent(ctx, audit.EventTypeAuthSessionExpired, audit.EventStatusSuccess, prev.Identity, "", "", auth.ErrSessionExpired)
	s.publish(ev)
}

type authenticateFunc func(ctx context.Context) (*auth.UserIdentity, commit, error)

// runAttempt wraps a login strategy: one attempt at a time, the state shows authenticating
// while it runs, and a failure leaves the previous session in place.
func (s *Store) runAttempt(ctx context.Context, strategy, identifier string, authenticate authenticateFunc) error {
	ctx, span := tracer.Start(ctx, "Login", trace.WithAttributes(attribute.String("strategy", strategy)))
	defer span.End()

	if !s.inFlight.CompareAndSwap(false, true) {
		s.metrics.ObserveLogin(strategy, auth.OutcomeInProgress, 0)
		return auth.ErrLoginInProgress
	}
	defer s.inFlight.Store(false)

	start := s.clock.Now()
	begin, epoch := s.beginAttempt()
	s.publish(begin)

	identity, c, err := authenticate(ctx)
	var ev Event
	if err == nil {
		ev, err = s.commitAttempt(ctx, epoch, identity, c)
	}
	elapsed := s.clock.Since(start)
	if err != nil {
		outcome := auth.Classify(err)
		span.RecordError(err)
		span.SetStatus(codes.Error, string(outcome))
		s.metrics.ObserveLogin(strategy, outcome, elapsed)
		s.auditEvent(ctx, audit.EventTypeAuthLoginFailed, auditStatus(err), nil, identifier, strategy, err)
		s.log.WithError(err).WithFields(logrus.Fields{
			"strategy": strategy,
			"outcome":  outcome,
		}).Info("Login failed")
		s.publish(s.settleFailure(err))
		return err
	}

	s.metrics.ObserveLogin(c.strategy, auth.OutcomeSuccess, elapsed)
	s.auditEvent(ctx, loginEventType(c.strategy), audit.EventStatusSuccess, identity, identifier, c.strategy, nil)
	s.log.WithFields(logrus.Fields{
		"uid":      identity.ID,
		"role":     identity.Role,
		"strategy": c.strategy,
	}).Info("User logged in")
	s.publish(ev)
	return nil
}

func (s *Store) beginAttempt() (Event, uint64) {
	s.opMu.Lock()
	defer s.opMu.Unlock()
	st := authenticatingState(s.State())
	s.setState(st)
	return Event{State: st}, s.epoch.Load()
}

// commitAttempt commits a successful attempt unless the session was ended after the attempt
// began. In that case the backend sign-in is undone.
func (s *Store) commitAttempt(ctx context.Context, epoch uint64, identity *auth.UserIdentity, c commit) (Event, error) {
	s.opMu.Lock()
	defer s.opMu.Unlock()
	if s.epoch.Load() != epoch {
		if !c.degraded {
			s.signOutLocked(ctx)
		}
		return Event{}, ErrLoginInterrupted
	}
	return s.commitLocked(ctx, identity, c), nil
}

// settleFailure leaves the authenticating phase. Anything that changed the state while the
// attempt ran, such as a logout, is kept.
func (s *Store) settleFailure(err error) Event {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	cur := s.State()
	if cur.Phase != PhaseAuthenticating {
		return Event{State: cur, Notice: noticeFor(err)}
	}

	var st State
	switch {
	case cur.Identity != nil:
		st = newAuthenticatedState(cur.Identity, cur.Degraded)
	case errors.Is(err, auth.ErrPendingApproval):
		st = unauthenticatedState(PhasePendingApproval)
	default:
		st = unauthenticatedState(PhaseUnauthenticated)
	}
	s.setState(st)
	return Event{State: st.clone(), Notice: noticeFor(err)}
}

func (s *Store) breakGlass(ctx context.Context, identifier, password string) (*auth.UserIdentity, bool) {
	if !s.cfg.BreakGlass.Enabled {
		return nil, false
	}
	snap, err := s.persist.Load(ctx)
	if err != nil {
		s.log.WithError(err).Warn("Failed to read persisted session for break-glass")
		return nil, false
	}
	identity, ok := s.cfg.BreakGlass.admit(snap, identifier, password)
	if ok {
		s.log.WithField("uid", identity.ID).Warn("Backend unreachable, admitting administrator with break-glass credentials")
	}
	return identity, ok
}

func (s *Store) clearQuickLogin(ctx context.Context) {
	if err := s.quick.Clear(ctx); err != nil {
		s.log.WithError(err).Warn("Failed to clear quick login record")
	}
}

func welcome(identity *auth.UserIdentity) string {
	return fmt.Sprintf("Welcome back, %s!", identity.Username)
}

func loginEventType(strategy string) audit.EventType {
	switch strategy {
	case StrategyQuick:
		return audit.EventTypeAuthQuickLogin
	case StrategyFederated:
		return audit.EventTypeAuthFederatedLogin
	case StrategyBreakGlass:
		return audit.EventTypeAuthBreakGlass
	default:
		return audit.EventTypeAuthLogin
	}
}

// noticeFor turns a login error into the message shown to the user
func noticeFor(err error) *Notice {
	switch {
	case errors.Is(err, ErrLoginInterrupted):
		return info(msgLoginInterrupted)
	case errors.Is(err, errQueuedRegistration):
		return info(msgRegistrationPending)
	case errors.Is(err, auth.ErrPendingApproval):
		return info(msgAwaitingApproval)
	case errors.Is(err, auth.ErrBackendUnavailable):
		return failure(msgConnectivity)
	case errors.Is(err, auth.ErrQuickLoginUnavailable):
		return failure(msgQuickLoginFailed)
	case errors.Is(err, auth.ErrProfileNotFound):
		return failure("User profile not found")
	case errors.Is(err, auth.ErrNotFound):
		return failure("No account found with this Cura ID")
	case errors.Is(err, auth.ErrUnapproved):
		return failure("Your account is pending approval by an administrator")
	case errors.Is(err, auth.ErrInvalidCredential):
		return failure("Invalid credentials")
	case errors.Is(err, auth.ErrInvalidIdentifier):
		return failure("Enter your email address or Cura ID")
	case errors.Is(err, auth.ErrLoginInProgress):
		return failure("A login attempt is already in progress")
	default:
		return failure("Login failed")
	}
}
