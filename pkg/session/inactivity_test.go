package session

import (
	"context"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/cura/pkg/kv"
)

func setupMonitor(t *testing.T) (*InactivityMonitor, *kv.MemoryStore, *clockwork.FakeClock, *atomic.Int32) {
	t.Helper()
	store := kv.NewMemoryStore()
	clock := clockwork.NewFakeClockAt(time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC))
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)

	var fired atomic.Int32
	m := NewInactivityMonitor(store, clock, 0, log, func() { fired.Add(1) })
	return m, store, clock, &fired
}

func TestInactivityMonitor_FiresOnceAfterTimeout(t *testing.T) {
	m, _, clock, fired := setupMonitor(t)
	ctx := context.Background()
	assert.Equal(t, DefaultInactivityTimeout, m.Timeout())

	m.Arm(ctx)
	clock.Advance(8*time.Hour - time.Second)
	assert.Never(t, func() bool { return fired.Load() > 0 }, 50*time.Millisecond, 5*time.Millisecond)

	clock.Advance(time.Second)
	require.Eventually(t, func() bool { return fired.Load() == 1 }, time.Second, 5*time.Millisecond)
	assert.False(t, m.Armed())

	clock.Advance(24 * time.Hour)
	assert.Never(t, func() bool { return fired.Load() > 1 }, 50*time.Millisecond, 5*time.Millisecond)
}

func TestInactivityMonitor_ActivityPostponesExpiry(t *testing.T) {
	m, _, clock, fired := setupMonitor(t)
	ctx := context.Background()

	m.Arm(ctx)
	clock.Advance(7 * time.Hour)
	assert.True(t, m.RecordActivity(ctx, ActivityKeyDown))

	clock.Advance(7 * time.Hour)
	assert.Never(t, func() bool { return fired.Load() > 0 }, 50*time.Millisecond, 5*time.Millisecond)

	clock.Advance(time.Hour)
	require.Eventually(t, func() bool { return fired.Load() == 1 }, time.Second, 5*time.Millisecond)
}

func TestInactivityMonitor_RearmKeepsOneTimer(t *testing.T) {
	m, _, clock, fired := setupMonitor(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		m.Arm(ctx)
		clock.Advance(time.Minute)
	}
	clock.Advance(8 * time.Hour)
	require.Eventually(t, func() bool { return fired.Load() == 1 }, time.Second, 5*time.Millisecond)
	assert.Never(t, func() bool { return fired.Load() > 1 }, 50*time.Millisecond, 5*time.Millisecond)
}

func TestInactivityMonitor_DisarmedIgnoresActivity(t *testing.T) {
	m, store, clock, fired := setupMonitor(t)
	ctx := context.Background()

	assert.False(t, m.RecordActivity(ctx, ActivityPointerDown))
	_, err := store.Get(ctx, keyLastActivity)
	assert.ErrorIs(t, err, kv.ErrNotFound)

	m.Arm(ctx)
	m.Disarm()
	assert.False(t, m.RecordActivity(ctx, ActivityScroll))
	clock.Advance(9 * time.Hour)
	assert.Never(t, func() bool { return fired.Load() > 0 }, 50*time.Millisecond, 5*time.Millisecond)
}

func TestInactivityMonitor_UnknownEvent(t *testing.T) {
	m, _, _, _ := setupMonitor(t)
	m.Arm(context.Background())
	assert.False(t, m.RecordActivity(context.Background(), ActivityEvent("mouse_move")))

	_, ok := ParseActivityEvent("touch_start")
	assert.True(t, ok)
	_, ok = ParseActivityEvent("click")
	assert.False(t, ok)
}

func TestInactivityMonitor_PersistsActivity(t *testing.T) {
	m, store, clock, _ := setupMonitor(t)
	ctx := context.Background()

	m.Arm(ctx)
	raw, err := store.Get(ctx, keyLastActivity)
	require.NoError(t, err)
	assert.Equal(t, strconv.FormatInt(clock.Now().UnixMilli(), 10), string(raw))

	last, ok := m.LastActivity(ctx)
	require.True(t, ok)
	assert.True(t, last.Equal(clock.Now()))

	require.NoError(t, m.Forget(ctx))
	_, ok = m.LastActivity(ctx)
	assert.False(t, ok)
}

func TestInactivityMonitor_CheckVisibility(t *testing.T) {
	tests := []struct {
		name    string
		gap     time.Duration
		expired bool
	}{
		{"recent activity", time.Hour, false},
		{"just under the window", 8*time.Hour - time.Millisecond, false},
		{"exactly the window", 8 * time.Hour, false},
		{"just past the window", 8*time.Hour + time.Millisecond, true},
		{"long gone", 30 * time.Hour, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, store, clock, fired := setupMonitor(t)
			ctx := context.Background()
			m.Arm(ctx)

			// the process was suspended, so the timer never ran
			last := clock.Now().Add(-tt.gap).UnixMilli()
			require.NoError(t, store.Set(ctx, keyLastActivity, []byte(strconv.FormatInt(last, 10))))

			assert.Equal(t, tt.expired, m.CheckVisibility(ctx))
			if tt.expired {
				assert.Equal(t, int32(1), fired.Load())
				assert.False(t, m.Armed())
				assert.False(t, m.CheckVisibility(ctx), "second check must not fire again")
			} else {
				assert.Equal(t, int32(0), fired.Load())
				assert.True(t, m.Armed())
			}
		})
	}
}

func TestInactivityMonitor_Expired(t *testing.T) {
	tests := []struct {
		name    string
		gap     time.Duration
		expired bool
	}{
		{"exactly the window", 8 * time.Hour, false},
		{"just past the window", 8*time.Hour + time.Millisecond, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, store, clock, _ := setupMonitor(t)
			ctx := context.Background()
			last := clock.Now().Add(-tt.gap).UnixMilli()
			require.NoError(t, store.Set(ctx, keyLastActivity, []byte(strconv.FormatInt(last, 10))))
			assert.Equal(t, tt.expired, m.Expired(ctx))
		})
	}

	m, _, _, _ := setupMonitor(t)
	assert.False(t, m.Expired(context.Background()), "no recorded activity")
}

func TestInactivityMonitor_ResumeUsesRemainingWindow(t *testing.T) {
	m, store, clock, fired := setupMonitor(t)
	ctx := context.Background()

	last := clock.Now().Add(-6 * time.Hour).UnixMilli()
	require.NoError(t, store.Set(ctx, keyLastActivity, []byte(strconv.FormatInt(last, 10))))

	m.Resume(ctx)
	raw, err := store.Get(ctx, keyLastActivity)
	require.NoError(t, err)
	assert.Equal(t, strconv.FormatInt(last, 10), string(raw), "resuming is not activity")

	clock.Advance(2*time.Hour - time.Second)
	assert.Never(t, func() bool { return fired.Load() > 0 }, 50*time.Millisecond, 5*time.Millisecond)
	clock.Advance(time.Second)
	require.Eventually(t, func() bool { return fired.Load() == 1 }, time.Second, 5*time.Millisecond)
}
