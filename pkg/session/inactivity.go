package session

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/cura/pkg/kv"
)

const (
	keyLastActivity = "lastActivityTime"

	// DefaultInactivityTimeout is the idle period after which a session is ended
	DefaultInactivityTimeout = 8 * time.Hour
)

// ActivityEvent is a user interaction that counts as activity
type ActivityEvent string

const (
	ActivityPointerDown ActivityEvent = "pointer_down"
	ActivityKeyDown     ActivityEvent = "key_down"
	ActivityTouchStart  ActivityEvent = "touch_start"
	ActivityScroll      ActivityEvent = "scroll"
)

// ParseActivityEvent validates an event name
func ParseActivityEvent(s string) (ActivityEvent, bool) {
	switch ev := ActivityEvent(s); ev {
	case ActivityPointerDown, ActivityKeyDown, ActivityTouchStart, ActivityScroll:
		return ev, true
	default:
		return "", false
	}
}

// InactivityMonitor ends a session after a period without interaction. At most one timer is
// live; every re-arm stops the previous one and bumps a generation so a callback that lost
// the race does nothing.
type InactivityMonitor struct {
	store    kv.Store
	clock    clockwork.Clock
	timeout  time.Duration
	log      *logrus.Logger
	onExpire func()

	mu         sync.Mutex
	timer      clockwork.Timer
	generation uint64
	armed      bool
}

// NewInactivityMonitor creates a disarmed monitor. onExpire runs on its own goroutine, at
// most once per Arm, and without the monitor's lock held.
func NewInactivityMonitor(store kv.Store, clock clockwork.Clock, timeout time.Duration, log *logrus.Logger, onExpire func()) *InactivityMonitor {
	if timeout <= 0 {
		timeout = DefaultInactivityTimeout
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if log == nil {
		log = logrus.New()
	}
	return &InactivityMonitor{
		store:    store,
		clock:    clock,
		timeout:  timeout,
		log:      log,
		onExpire: onExpire,
	}
}

// Timeout returns the idle period
func (m *InactivityMonitor) Timeout() time.Duration {
	return m.timeout
}

// Arm records activity now and (re)starts the timer
func (m *InactivityMonitor) Arm(ctx context.Context) {
	m.touch(ctx)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.armLocked(m.timeout)
}

// Resume arms the timer for whatever is left of the window since the persisted activity
// time, without counting the restart as activity.
func (m *InactivityMonitor) Resume(ctx context.Context) {
	last, ok := m.LastActivity(ctx)
	if !ok {
		m.Arm(ctx)
		return
	}
	remaining := m.timeout - m.clock.Since(last)
	if remaining < 0 {
		remaining = 0
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.armLocked(remaining)
}

func (m *InactivityMonitor) armLocked(d time.Duration) {
	if m.timer != nil {
		m.timer.Stop()
	}
	m.generation++
	gen := m.generation
	m.armed = true
	m.timer = m.clock.AfterFunc(d, func() { m.fire(gen) })
}

// Disarm stops the timer. A callback already in flight becomes a no-op.
func (m *InactivityMonitor) Disarm() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
	m.generation++
	m.armed = false
}

// Armed reports whether a timer is live
func (m *InactivityMonitor) Armed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.armed
}

// RecordActivity resets the timer for an interaction. Events arriving while disarmed are
// ignored. It reports whether the timer was reset.
func (m *InactivityMonitor) RecordActivity(ctx context.Context, ev ActivityEvent) bool {
	if _, ok := ParseActivityEvent(string(ev)); !ok {
		return false
	}
	if !m.Armed() {
		return false
	}
	m.Arm(ctx)
	return true
}

// CheckVisibility compares the persisted last activity with now and expires the session at
// once if the gap already exceeds the timeout. It reports whether it expired the session.
func (m *InactivityMonitor) CheckVisibility(ctx context.Context) bool {
	m.mu.Lock()
	armed, gen := m.armed, m.generation
	m.mu.Unlock()
	if !armed {
		return false
	}

	last, ok := m.LastActivity(ctx)
	if !ok || m.clock.Since(last) <= m.timeout {
		return false
	}
	return m.fire(gen)
}

// Expired reports whether the persisted last activity is older than the timeout. A missing
// timestamp is not expired.
func (m *InactivityMonitor) Expired(ctx context.Context) bool {
	last, ok := m.LastActivity(ctx)
	return ok && m.clock.Since(last) > m.timeout
}

// LastActivity returns the persisted activity timestamp
func (m *InactivityMonitor) LastActivity(ctx context.Context) (time.Time, bool) {
	raw, err := m.store.Get(ctx, keyLastActivity)
	if err != nil {
		if !errors.Is(err, kv.ErrNotFound) {
			m.log.WithError(err).Warn("Failed to read last activity time")
		}
		return time.Time{}, false
	}
	ms, err := strconv.ParseInt(string(raw), 10, 64)
	if err != nil {
		return time.Time{}, false
	}
	return time.UnixMilli(ms), true
}

// Forget deletes the persisted activity timestamp
func (m *InactivityMonitor) Forget(ctx context.Context) error {
	return m.store.Delete(ctx, keyLastActivity)
}

func (m *InactivityMonitor) touch(ctx context.Context) {
	now := strconv.FormatInt(m.clock.Now().UnixMilli(), 10)
	if err := m.store.Set(ctx, keyLastActivity, []byte(now)); err != nil {
		m.log.WithError(err).Warn("Failed to persist activity time")
	}
}

func (m *InactivityMonitor) fire(gen uint64) bool {
	m.mu.Lock()
	if !m.armed || gen != m.generation {
		m.mu.Unlock()
		return false
	}
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
	m.armed = false
	m.generation++
	m.mu.Unlock()

	if m.onExpire != nil {
		m.onExpire()
	}
	return true
}
