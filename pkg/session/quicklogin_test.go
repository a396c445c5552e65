package session

import (
	"context"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/cura/pkg/auth"
	"github.com/platinummonkey/cura/pkg/kv"
	"github.com/platinummonkey/cura/pkg/permissions"
)

func testIdentity() *auth.UserIdentity {
	return &auth.UserIdentity{
		ID:       "uid-1",
		Username: "J.Doe",
		Email:    "jane.doe@hospital.org",
		Role:     permissions.RoleNurse,
		Approved: true,
	}
}

func TestQuickLoginCache_TTL(t *testing.T) {
	tests := []struct {
		name    string
		elapsed time.Duration
		want    bool
	}{
		{"just recorded", 0, true},
		{"59 minutes", 59 * time.Minute, true},
		{"one nanosecond short", time.Hour - time.Nanosecond, true},
		{"exactly one hour", time.Hour, false},
		{"61 minutes", 61 * time.Minute, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			clock := clockwork.NewFakeClockAt(time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC))
			cache := NewQuickLoginCache(kv.NewMemoryStore(), clock, 0)

			require.NoError(t, cache.Record(ctx, "j.doe", testIdentity()))
			clock.Advance(tt.elapsed)
			assert.Equal(t, tt.want, cache.IsValid(ctx, "j.doe"))
		})
	}
}

func TestQuickLoginCache_IdentifierMustMatchExactly(t *testing.T) {
	ctx := context.Background()
	cache := NewQuickLoginCache(kv.NewMemoryStore(), clockwork.NewFakeClock(), time.Hour)
	require.NoError(t, cache.Record(ctx, "j.doe", testIdentity()))

	assert.True(t, cache.IsValid(ctx, "j.doe"))
	assert.False(t, cache.IsValid(ctx, "J.Doe"))
	assert.False(t, cache.IsValid(ctx, "jane.doe@hospital.org"))
	assert.False(t, cache.IsValid(ctx, ""))
}

func TestQuickLoginCache_GetReplaysIdentity(t *testing.T) {
	ctx := context.Background()
	clock := clockwork.NewFakeClockAt(time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC))
	cache := NewQuickLoginCache(kv.NewMemoryStore(), clock, 0)

	rec, err := cache.Get(ctx)
	require.NoError(t, err)
	assert.Nil(t, rec)

	require.NoError(t, cache.Record(ctx, "j.doe", testIdentity()))
	rec, err = cache.Get(ctx)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "j.doe", rec.Identifier)
	assert.True(t, rec.Timestamp.Equal(clock.Now()))
	require.NotNil(t, rec.Identity)
	assert.Equal(t, "uid-1", rec.Identity.ID)
	assert.Equal(t, permissions.RoleNurse, rec.Identity.Role)
}

func TestQuickLoginCache_MalformedTimestampIsCleared(t *testing.T) {
	ctx := context.Background()
	store := kv.NewMemoryStore()
	cache := NewQuickLoginCache(store, clockwork.NewFakeClock(), 0)

	require.NoError(t, cache.Record(ctx, "j.doe", testIdentity()))
	require.NoError(t, store.Set(ctx, keyLastLoginTimestamp, []byte("yesterday")))

	rec, err := cache.Get(ctx)
	require.NoError(t, err)
	assert.Nil(t, rec)

	_, err = store.Get(ctx, keyLastLoginIdentifier)
	assert.ErrorIs(t, err, kv.ErrNotFound)
}

func TestQuickLoginCache_Clear(t *testing.T) {
	ctx := context.Background()
	store := kv.NewMemoryStore()
	cache := NewQuickLoginCache(store, clockwork.NewFakeClock(), 0)
	require.NoError(t, cache.Record(ctx, "j.doe", testIdentity()))

	require.NoError(t, cache.Clear(ctx))
	assert.False(t, cache.IsValid(ctx, "j.doe"))
	for _, key := range []string{keyLastLoginIdentifier, keyLastLoginTimestamp, keyLastLoginIdentity} {
		_, err := store.Get(ctx, key)
		assert.ErrorIs(t, err, kv.ErrNotFound, key)
	}
}
