package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"

	"github.com/platinummonkey/cura/pkg/async"
	"github.com/platinummonkey/cura/pkg/audit"
	"github.com/platinummonkey/cura/pkg/auth"
	"github.com/platinummonkey/cura/pkg/kv"
	"github.com/platinummonkey/cura/pkg/permissions"
)

// strategyReconcile labels commits made by reconciliation rather than by the user
const strategyReconcile = "reconcile"

var tracer = otel.Tracer("cura/session")

const (
	// DefaultReconcileInterval bounds how long a revoked account can stay signed in locally
	DefaultReconcileInterval = 5 * time.Minute

	backgroundTimeout = 30 * time.Second
)

// Config tunes a Store. Zero values select the defaults.
type Config struct {
	QuickLoginTTL     time.Duration
	InactivityTimeout time.Duration
	// ReconcileInterval schedules periodic reconciliation; negative disables it.
	ReconcileInterval time.Duration
	BreakGlass        BreakGlassConfig
}

// FederatedAuthenticator resolves a provider callback artefact into an approved identity
type FederatedAuthenticator interface {
	Authenticate(ctx context.Context, provider, credential string) (*auth.UserIdentity, error)
}

// ProfileLister is implemented by profile stores that can enumerate profiles
type ProfileLister interface {
	ListProfiles(ctx context.Context, approved *bool) ([]*auth.UserIdentity, error)
}

// Options carries the collaborators of a Store. Backend.Session, Backend.Profiles and Cache
// are required; everything else has a default.
type Options struct {
	Backend   auth.Backend
	Cache     kv.Store
	Federated FederatedAuthenticator
	Clock     clockwork.Clock
	Logger    *logrus.Logger
	Audit     audit.Logger
	Metrics   Metrics
	Tasks     *async.Group
}

// Store owns who is signed in on this device and what they may do. It is safe for
// concurrent use. Only one login attempt runs at a time and every state change goes through
// a single operation lock, so commits never interleave.
type Store struct {
	// instance tags the snapshots this process writes
	instance    string
	cfg         Config
	backend     auth.Backend
	credentials *auth.CredentialAuthenticator
	federated   FederatedAuthenticator
	cache       kv.Store
	clock       clockwork.Clock
	log         *logrus.Logger
	audit       audit.Logger
	metrics     Metrics
	tasks       *async.Group

	persist       *PersistenceBridge
	quick         *QuickLoginCache
	monitor       *InactivityMonitor
	registrations registrationQueue

	inFlight atomic.Bool
	opMu     sync.Mutex
	// epoch is bumped under opMu by every commit and teardown. Work that read the session
	// before a blocking call compares it to detect a change made meanwhile.
	epoch atomic.Uint64

	mu    sync.RWMutex
	state State

	subMu   sync.Mutex
	subs    map[uint64]func(Event)
	nextSub uint64

	cron      *cron.Cron
	stopWatch context.CancelFunc
}

// New creates a Store in the loading state. Call Init before use.
func New(cfg Config, opts Options) (*Store, error) {
	if opts.Cache == nil {
		return nil, errors.New("session: cache is required")
	}
	if opts.Backend.Session == nil || opts.Backend.Profiles == nil {
		return nil, errors.New("session: backend session and profile store are required")
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.Logger == nil {
		opts.Logger = logrus.New()
	}
	if opts.Audit == nil {
		opts.Audit = audit.NoOp()
	}
	if opts.Metrics == nil {
		opts.Metrics = noopMetrics{}
	}
	if opts.Tasks == nil {
		opts.Tasks = async.NewGroup(opts.Logger)
	}
	if cfg.ReconcileInterval == 0 {
		cfg.ReconcileInterval = DefaultReconcileInterval
	}

	s := &Store{
		instance:      uuid.NewString(),
		cfg:           cfg,
		backend:       opts.Backend,
		federated:     opts.Federated,
		cache:         opts.Cache,
		clock:         opts.Clock,
		log:           opts.Logger,
		audit:         opts.Audit,
		metrics:       opts.Metrics,
		tasks:         opts.Tasks,
		persist:       NewPersistenceBridge(opts.Cache, opts.Logger),
		quick:         NewQuickLoginCache(opts.Cache, opts.Clock, cfg.QuickLoginTTL),
		registrations: registrationQueue{store: opts.Cache},
		state:         loadingState(),
		subs:          make(map[uint64]func(Event)),
	}
	if opts.Backend.Directory != nil && opts.Backend.Verifier != nil {
		s.credentials = auth.NewCredentialAuthenticator(opts.Backend, opts.Clock, opts.Logger)
	}
	s.monitor = NewInactivityMonitor(opts.Cache, opts.Clock, cfg.InactivityTimeout, opts.Logger, s.expire)
	return s, nil
}

// Init restores the persisted session, reconciles it with the backend and starts the
// background reconciliation and cache watcher.
func (s *Store) Init(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "Init")
	defer span.End()

	s.opMu.Lock()
	ev := s.restoreLocked(ctx)
	s.opMu.Unlock()
	s.publish(ev)

	if err := s.Reconcile(ctx); err != nil {
		s.log.WithError(err).Warn("Initial reconciliation failed, keeping restored session")
	}

	if s.cfg.ReconcileInterval > 0 {
		c := cron.New()
		if _, err := c.AddFunc(fmt.Sprintf("@every %s", s.cfg.ReconcileInterval), s.reconcileInBackground); err != nil {
			return fmt.Errorf("failed to schedule reconciliation: %w", err)
		}
		c.Start()
		s.cron = c
	}

	if w, ok := s.cache.(kv.Watcher); ok {
		watchCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
		if err := w.Watch(watchCtx, s.onCacheChanged); err != nil {
			cancel()
			s.log.WithError(err).Warn("Failed to watch session cache, changes from other windows will be missed")
		} else {
			s.stopWatch = cancel
		}
	}
	return nil
}

// Dispose stops background work. The persisted session is left in place for the next start.
func (s *Store) Dispose(ctx context.Context) error {
	if s.cron != nil {
		select {
		case <-s.cron.Stop().Done():
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if s.stopWatch != nil {
		s.stopWatch()
	}
	s.monitor.Disarm()
	return nil
}

// State returns a copy of the current session state
func (s *Store) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.clone()
}

// IsAuthenticated reports whether a user is signed in
func (s *Store) IsAuthenticated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Authenticated
}

// IsAdmin reports whether the signed-in user is an administrator
func (s *Store) IsAdmin() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.IsAdmin
}

// CurrentUser returns a copy of the signed-in identity, or nil
func (s *Store) CurrentUser() *auth.UserIdentity {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Identity.Clone()
}

// HasPermission reports whether the signed-in user holds capability
func (s *Store) HasPermission(capability permissions.Capability) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.state.Identity == nil {
		return false
	}
	return permissions.HasPermission(s.state.Identity.Role, capability)
}

// CanPerformAction reports whether the signed-in user may perform a clinical action
func (s *Store) CanPerformAction(action permissions.Action) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.state.Identity == nil {
		return false
	}
	return permissions.CanPerformAction(s.state.Identity.Role, action)
}

// Subscribe registers fn for every state change and returns a function that removes it.
// fn is called without any store lock held and may call back into the store.
func (s *Store) Subscribe(fn func(Event)) (unsubscribe func()) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	return func() {
		s.subMu.Lock()
		defer s.subMu.Unlock()
		delete(s.subs, id)
	}
}

// ResetInactivityTimer restarts the inactivity window for a signed-in user
func (s *Store) ResetInactivityTimer(ctx context.Context) {
	if s.IsAuthenticated() {
		s.monitor.Arm(ctx)
	}
}

// RecordActivity resets the inactivity window for a user interaction and reports whether it
// did. Unknown events and events without a session are ignored.
func (s *Store) RecordActivity(ctx context.Context, ev ActivityEvent) bool {
	return s.monitor.RecordActivity(ctx, ev)
}

// VisibilityRestored is called when the UI becomes visible again. It ends the session at once
// if the inactivity window passed while hidden and reports whether it did.
func (s *Store) VisibilityRestored(ctx context.Context) bool {
	return s.monitor.CheckVisibility(ctx)
}

func (s *Store) setState(st State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = st
}

func (s *Store) publish(ev Event) {
	s.subMu.Lock()
	subs := make([]func(Event), 0, len(s.subs))
	for _, fn := range s.subs {
		subs = append(subs, fn)
	}
	s.subMu.Unlock()

	for _, fn := range subs {
		fn(Event{State: ev.State.clone(), Notice: ev.Notice})
	}
}

// restoreLocked loads the persisted snapshot. A session whose inactivity window already
// passed is ended instead of restored.
func (s *Store) restoreLocked(ctx context.Context) Event {
	snap, err := s.persist.Load(ctx)
	if err != nil {
		s.log.WithError(err).Warn("Failed to load persisted session")
	}
	if snap == nil || !snap.Authenticated {
		st := unauthenticatedState(PhaseUnauthenticated)
		s.setState(st)
		return Event{State: st}
	}

	if s.monitor.Expired(ctx) {
		s.log.WithField("uid", snap.Identity.ID).Info("Persisted session passed the inactivity window")
		s.metrics.ForcedLogout(ReasonInactivity)
		s.auditEvent(ctx, audit.EventTypeAuthSessionExpired, audit.EventStatusSuccess, snap.Identity, "", "", nil)
		return s.teardownLocked(ctx, teardown{phase: PhaseExpired, notice: info(msgInactivity), signOut: true})
	}

	st := newAuthenticatedState(snap.Identity, snap.Degraded)
	s.setState(st)
	s.monitor.Resume(ctx)
	s.metrics.SetActive(true)
	s.log.WithFields(logrus.Fields{
		"uid":      st.Identity.ID,
		"degraded": st.Degraded,
	}).Info("Restored session from local cache")
	return Event{State: st.clone()}
}

type commit struct {
	strategy string
	degraded bool
	// quickIdentifier opens quick login for what the user typed; empty leaves the record alone
	quickIdentifier string
	notice          *Notice
}

// commitLocked is the only way into the authenticated state. Committing a different identity
// ends the previous user's local session first.
func (s *Store) commitLocked(ctx context.Context, identity *auth.UserIdentity, c commit) Event {
	prev := s.State()
	if prev.Identity != nil && prev.Identity.ID != identity.ID {
		s.log.WithFields(logrus.Fields{
			"previous": prev.Identity.ID,
			"uid":      identity.ID,
		}).Info("Replacing session of another user")
		s.metrics.ForcedLogout(ReasonReplaced)
		s.auditEvent(ctx, audit.EventTypeAuthLogout, audit.EventStatusSuccess, prev.Identity, "", c.strategy, nil)
		s.monitor.Disarm()
		if err := s.quick.Clear(ctx); err != nil {
			s.log.WithError(err).Warn("Failed to clear quick login record")
		}
	}

	st := newAuthenticatedState(identity, c.degraded)
	s.setState(st)
	s.epoch.Add(1)
	s.saveLocked(ctx, st)
	if c.strategy != strategyReconcile && !c.degraded {
		// the user signed in again, so an earlier unacknowledged sign-out no longer applies
		if err := s.persist.ClearSignOutOwed(ctx); err != nil {
			s.log.WithError(err).Warn("Failed to clear sign-out marker")
		}
	}
	if c.quickIdentifier != "" {
		if err := s.quick.Record(ctx, c.quickIdentifier, st.Identity); err != nil {
			s.log.WithError(err).Warn("Failed to record login for quick login")
		}
	}
	s.monitor.Arm(ctx)
	s.metrics.SetActive(true)
	return Event{State: st.clone(), Notice: c.notice}
}

type teardown struct {
	phase  Phase
	notice *Notice
	// signOut also ends the backend session
	signOut        bool
	keepQuickLogin bool
}

// teardownLocked ends the local session. It always reaches the unauthenticated state; cache
// and backend failures are logged.
func (s *Store) teardownLocked(ctx context.Context, t teardown) Event {
	prev := s.State()
	s.monitor.Disarm()
	s.epoch.Add(1)

	if t.signOut {
		s.signOutLocked(ctx)
	}
	if !t.keepQuickLogin {
		if err := s.quick.Clear(ctx); err != nil {
			s.log.WithError(err).Warn("Failed to clear quick login record")
		}
	}
	if err := s.persist.Clear(ctx); err != nil {
		s.log.WithError(err).Warn("Failed to clear persisted session")
	}
	if err := s.monitor.Forget(ctx); err != nil {
		s.log.WithError(err).Warn("Failed to clear activity time")
	}

	st := unauthenticatedState(t.phase)
	s.setState(st)
	if prev.Authenticated {
		s.metrics.SetActive(false)
	}
	return Event{State: st, Notice: t.notice}
}

// signOutLocked ends the backend session. When the backend cannot be reached the sign-out is
// recorded as owed so reconciliation retries it instead of restoring the session.
func (s *Store) signOutLocked(ctx context.Context) {
	if err := s.backend.Session.SignOut(ctx); err != nil {
		s.log.WithError(err).Warn("Failed to sign out backend session, will retry")
		if err := s.persist.MarkSignOutOwed(ctx); err != nil {
			s.log.WithError(err).Warn("Failed to record owed sign-out")
		}
		return
	}
	if err := s.persist.ClearSignOutOwed(ctx); err != nil {
		s.log.WithError(err).Warn("Failed to clear sign-out marker")
	}
}

func (s *Store) saveLocked(ctx context.Context, st State) {
	snap := snapshotOf(st)
	snap.Origin = s.instance
	if err := s.persist.Save(ctx, snap); err != nil {
		s.log.WithError(err).Warn("Failed to persist session")
	}
}

// onCacheChanged ends the local session when another agent instance sharing the cache
// signed out. The cache is read under the operation lock so it is compared with the state
// it belongs to; events for writes made by this instance are dropped.
func (s *Store) onCacheChanged() {
	ctx, cancel := context.WithTimeout(context.Background(), backgroundTimeout)
	defer cancel()

	s.opMu.Lock()
	snap, err := s.persist.Load(ctx)
	if err != nil {
		s.opMu.Unlock()
		s.log.WithError(err).Debug("Failed to read session cache after change")
		return
	}
	if snap != nil && snap.Origin == s.instance {
		s.opMu.Unlock()
		return
	}
	cur := s.State()
	if !cur.Authenticated || (snap != nil && snap.Authenticated) {
		s.opMu.Unlock()
		if snap != nil && cur.Identity != nil && snap.Identity.ID != cur.Identity.ID {
			s.reconcileInBackground()
		}
		return
	}
	s.log.WithField("uid", cur.Identity.ID).Info("Session was cleared by another window")
	s.metrics.ForcedLogout(ReasonExternal)
	ev := s.teardownLocked(ctx, teardown{phase: PhaseUnauthenticated, notice: info(msgSignedOutElsewhere)})
	s.opMu.Unlock()

	s.publish(ev)
}

func (s *Store) auditEvent(ctx context.Context, eventType audit.EventType, status audit.EventStatus, identity *auth.UserIdentity, identifier, strategy string, cause error) {
	event := audit.NewEvent(eventType, status)
	event.Timestamp = s.clock.Now().UTC()
	if identity != nil {
		event.UserID = identity.ID
		event.Username = identity.Username
		event.Role = string(identity.Role)
	}
	event.Identifier = identifier
	event.Strategy = strategy
	if cause != nil {
		event.ErrorMessage = cause.Error()
		event.Metadata["outcome"] = string(auth.Classify(cause))
	}
	if err := s.audit.Log(ctx, event); err != nil {
		s.log.WithError(err).Warn("Failed to write audit event")
	}
}

func auditStatus(err error) audit.EventStatus {
	switch auth.Classify(err) {
	case auth.OutcomeSuccess:
		return audit.EventStatusSuccess
	case auth.OutcomeUnapproved, auth.OutcomeRejected:
		return audit.EventStatusDenied
	case auth.OutcomePendingApproval:
		return audit.EventStatusPending
	default:
		return audit.EventStatusFailure
	}
}
