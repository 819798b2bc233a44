package lock

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLocal(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 5, 1, 7, 0, 0, 0, time.UTC)
	l := NewLocal()
	l.now = func() time.Time { return now }

	lease, err := l.Acquire(ctx, Key("alice"), time.Minute)
	require.NoError(t, err)

	_, err = l.Acquire(ctx, Key("alice"), time.Minute)
	require.ErrorIs(t, err, ErrHeld)

	_, err = l.Acquire(ctx, Key("bob"), time.Minute)
	require.NoError(t, err)

	require.NoError(t, lease.Release(ctx))
	_, err = l.Acquire(ctx, Key("alice"), time.Minute)
	require.NoError(t, err)
}

func TestLocalExpiredLeaseDoesNotReleaseNewHolder(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 5, 1, 7, 0, 0, 0, time.UTC)
	l := NewLocal()
	l.now = func() time.Time { return now }

	stale, err := l.Acquire(ctx, "k", time.Minute)
	require.NoError(t, err)

	now = now.Add(2 * time.Minute)
	_, err = l.Acquire(ctx, "k", time.Minute)
	require.NoError(t, err)

	require.NoError(t, stale.Release(ctx))
	_, err = l.Acquire(ctx, "k", time.Minute)
	require.ErrorIs(t, err, ErrHeld)
}

func TestRedis(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}
	ctx := context.Background()
	r, err := Dial(ctx, addr)
	require.NoError(t, err)
	defer r.Close()

	key := Key("test-" + time.Now().Format("150405.000000"))
	lease, err := r.Acquire(ctx, key, 10*time.Second)
	require.NoError(t, err)

	_, err = r.Acquire(ctx, key, 10*time.Second)
	require.ErrorIs(t, err, ErrHeld)

	require.NoError(t, lease.Release(ctx))
	again, err := r.Acquire(ctx, key, 10*time.Second)
	require.NoError(t, err)
	require.NoError(t, again.Release(ctx))
}
