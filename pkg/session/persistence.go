package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/cura/pkg/kv"
)

const (
	keySnapshot = "cura-auth-storage"
	// keySignOutOwed marks a local sign-out the backend has not acknowledged yet
	keySignOutOwed = "cura-signout-owed"
)

// PersistenceBridge mirrors the session into the durable cache so a restart can restore it
// optimistically until the backend answers.
type PersistenceBridge struct {
	store kv.Store
	log   *logrus.Logger
}

// NewPersistenceBridge creates a bridge on store
func NewPersistenceBridge(store kv.Store, log *logrus.Logger) *PersistenceBridge {
	if log == nil {
		log = logrus.New()
	}
	return &PersistenceBridge{store: store, log: log}
}

// Save writes snap, replacing any previous snapshot
func (b *PersistenceBridge) Save(ctx context.Context, snap Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}
	return b.store.Set(ctx, keySnapshot, data)
}

// Load returns the persisted snapshot. A missing snapshot yields (nil, nil); an unreadable
// or inconsistent one is deleted and also yields (nil, nil).
func (b *PersistenceBridge) Load(ctx context.Context) (*Snapshot, error) {
	data, err := b.store.Get(ctx, keySnapshot)
	if errors.Is(err, kv.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil || !snap.Valid() {
		b.log.WithError(err).Warn("Discarding invalid session snapshot")
		if delErr := b.store.Delete(ctx, keySnapshot); delErr != nil {
			return nil, delErr
		}
		return nil, nil
	}
	return &snap, nil
}

// Clear removes the snapshot
func (b *PersistenceBridge) Clear(ctx context.Context) error {
	return b.store.Delete(ctx, keySnapshot)
}

// MarkSignOutOwed records that the session was ended here but the backend sign-out failed
func (b *PersistenceBridge) MarkSignOutOwed(ctx context.Context) error {
	return b.store.Set(ctx, keySignOutOwed, []byte("1"))
}

// SignOutOwed reports whether a backend sign-out is still outstanding
func (b *PersistenceBridge) SignOutOwed(ctx context.Context) (bool, error) {
	_, err := b.store.Get(ctx, keySignOutOwed)
	if errors.Is(err, kv.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// ClearSignOutOwed drops the outstanding sign-out marker
func (b *PersistenceBridge) ClearSignOutOwed(ctx context.Context) error {
	return b.store.Delete(ctx, keySignOutOwed)
}
