package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/platinummonkey/cura/pkg/auth"
	"github.com/platinummonkey/cura/pkg/kv"
)

const (
	keyLastLoginIdentifier = "lastFullLoginIdentifier"
	keyLastLoginTimestamp  = "lastFullLoginTimestamp"
	keyLastLoginIdentity   = "lastFullLoginIdentity"

	// DefaultQuickLoginTTL is how long after a full login the password-free path stays open
	DefaultQuickLoginTTL = time.Hour
)

// RecentLoginRecord describes the most recent full credential login on this device
type RecentLoginRecord struct {
	Identifier string             `json:"identifier"`
	Timestamp  time.Time          `json:"timestamp"`
	Identity   *auth.UserIdentity `json:"-"`
}

// QuickLoginCache remembers the last full login so the same user can get back in without a
// password for a short while.
type QuickLoginCache struct {
	store kv.Store
	clock clockwork.Clock
	ttl   time.Duration
}

// NewQuickLoginCache creates a cache on store. A zero ttl means DefaultQuickLoginTTL.
func NewQuickLoginCache(store kv.Store, clock clockwork.Clock, ttl time.Duration) *QuickLoginCache {
	if ttl <= 0 {
		ttl = DefaultQuickLoginTTL
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &QuickLoginCache{store: store, clock: clock, ttl: ttl}
}

// TTL returns the quick-login window
func (c *QuickLoginCache) TTL() time.Duration {
	return c.ttl
}

// Record overwrites the record with identifier, identity and the current time
func (c *QuickLoginCache) Record(ctx context.Context, identifier string, identity *auth.UserIdentity) error {
	data, err := json.Marshal(identity)
	if err != nil {
		return fmt.Errorf("failed to encode identity: %w", err)
	}
	now := strconv.FormatInt(c.clock.Now().UnixMilli(), 10)

	// timestamp last so a torn write never looks fresh
	if err := c.store.Set(ctx, keyLastLoginIdentifier, []byte(identifier)); err != nil {
		return err
	}
	if err := c.store.Set(ctx, keyLastLoginIdentity, data); err != nil {
		return err
	}
	return c.store.Set(ctx, keyLastLoginTimestamp, []byte(now))
}

// Get returns the stored record, or nil when there is none. A malformed record is cleared.
func (c *QuickLoginCache) Get(ctx context.Context) (*RecentLoginRecord, error) {
	identifier, err := c.store.Get(ctx, keyLastLoginIdentifier)
	if errors.Is(err, kv.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	rawTS, err := c.store.Get(ctx, keyLastLoginTimestamp)
	if errors.Is(err, kv.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	ms, err := strconv.ParseInt(string(rawTS), 10, 64)
	if err != nil {
		return nil, c.Clear(ctx)
	}

	rec := &RecentLoginRecord{
		Identifier: string(identifier),
		Timestamp:  time.UnixMilli(ms),
	}
	if data, err := c.store.Get(ctx, keyLastLoginIdentity); err == nil {
		var identity auth.UserIdentity
		if json.Unmarshal(data, &identity) == nil && identity.ID != "" {
			rec.Identity = &identity
		}
	}
	return rec, nil
}

// Fresh reports whether rec is inside the quick-login window
func (c *QuickLoginCache) Fresh(rec *RecentLoginRecord) bool {
	return rec != nil && c.clock.Since(rec.Timestamp) < c.ttl
}

// IsValid reports whether identifier may use quick login right now. The comparison is exact.
func (c *QuickLoginCache) IsValid(ctx context.Context, identifier string) bool {
	rec, err := c.Get(ctx)
	if err != nil || rec == nil {
		return false
	}
	return rec.Identifier == identifier && c.Fresh(rec)
}

// Clear removes the record
func (c *QuickLoginCache) Clear(ctx context.Context) error {
	return c.store.Delete(ctx, keyLastLoginIdentifier, keyLastLoginTimestamp, keyLastLoginIdentity)
}
