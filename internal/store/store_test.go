package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/example/slotbook/internal/booking"
	"github.com/example/slotbook/internal/logger"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/require"
)

func newSQLite(t *testing.T) *SQLite {
	s, err := OpenSQLite(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func outcome(account string, ok bool, started time.Time) booking.Outcome {
	o := booking.Outcome{
		Account:    account,
		Success:    ok,
		State:      booking.StatePaymentFilled,
		StartedAt:  started,
		FinishedAt: started.Add(90 * time.Second),
		Activity:   "Badminton @ The Edge",
	}
	if !ok {
		o.State = booking.StateReserved
		o.ErrorKind = booking.KindExpectedTerminal.String()
		o.ErrorCode = string(booking.CodeAPI)
		o.Error = "reserve: could not add to basket"
	}
	return o
}

func TestSQLiteOutcomes(t *testing.T) {
	ctx := context.Background()
	s := newSQLite(t)
	base := time.Date(2024, 5, 1, 7, 0, 0, 0, time.UTC)

	first := outcome("alice", true, base)
	require.NoError(t, s.SaveOutcome(ctx, &first))
	require.NotEmpty(t, first.ID)

	second := outcome("bob", false, base.Add(time.Minute))
	require.NoError(t, s.SaveOutcome(ctx, &second))

	third := outcome("alice", false, base.Add(24*time.Hour))
	require.NoError(t, s.SaveOutcome(ctx, &third))

	all, err := s.ListOutcomes(ctx, Filter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	require.Equal(t, third.ID, all[0].ID)
	require.Equal(t, first.ID, all[2].ID)

	alice, err := s.ListOutcomes(ctx, Filter{Account: "alice"})
	require.NoError(t, err)
	require.Len(t, alice, 2)

	failed := false
	fails, err := s.ListOutcomes(ctx, Filter{Success: &failed, Limit: 1})
	require.NoError(t, err)
	require.Len(t, fails, 1)
	require.Equal(t, third.ID, fails[0].ID)

	got, err := s.GetOutcome(ctx, second.ID)
	require.NoError(t, err)
	require.Equal(t, "bob", got.Account)
	require.False(t, got.Success)
	require.Equal(t, booking.StateReserved, got.State)
	require.Equal(t, "api_error", got.ErrorCode)
	require.True(t, second.StartedAt.Equal(got.StartedAt))
	require.Equal(t, 90*time.Second, got.Duration())
}

func TestSQLiteOutcomeNotFound(t *testing.T) {
	s := newSQLite(t)
	_, err := s.GetOutcome(context.Background(), "missing")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestSQLiteDuplicateOutcomeID(t *testing.T) {
	ctx := context.Background()
	s := newSQLite(t)
	o := outcome("alice", true, time.Now())
	require.NoError(t, s.SaveOutcome(ctx, &o))
	require.Error(t, s.SaveOutcome(ctx, &o))
}

func TestSQLiteUsers(t *testing.T) {
	ctx := context.Background()
	s := newSQLite(t)

	id, err := s.CreateUser(ctx, "admin", "hash")
	require.NoError(t, err)
	require.Positive(t, id)

	_, err = s.CreateUser(ctx, "admin", "other")
	require.ErrorIs(t, err, ErrUserTaken)

	u, err := s.UserByName(ctx, "admin")
	require.NoError(t, err)
	require.Equal(t, User{ID: id, Username: "admin", PasswordHash: "hash"}, u)

	_, err = s.UserByName(ctx, "nobody")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestOpenSQLiteFromURL(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data", "slotbook.db")
	s, err := Open(context.Background(), "sqlite://"+path, logger.Discard())
	require.NoError(t, err)
	require.NoError(t, s.Ping(context.Background()))
	require.NoError(t, s.Close())
	require.FileExists(t, path)
}

func TestPostgres(t *testing.T) {
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	s, err := Open(ctx, url, logger.Discard())
	require.NoError(t, err)
	defer s.Close()

	o := outcome("pg-"+time.Now().Format("150405.000000"), true, time.Now().UTC().Truncate(time.Microsecond))
	require.NoError(t, s.SaveOutcome(ctx, &o))

	got, err := s.GetOutcome(ctx, o.ID)
	require.NoError(t, err)
	require.Equal(t, o.Account, got.Account)
	require.True(t, o.StartedAt.Equal(got.StartedAt))

	list, err := s.ListOutcomes(ctx, Filter{Account: o.Account})
	require.NoError(t, err)
	require.Len(t, list, 1)

	_, err = s.GetOutcome(ctx, "missing")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestPostgresNotFoundMapping(t *testing.T) {
	require.ErrorIs(t, notFound(fmt.Errorf("scan: %w", pgx.ErrNoRows)), ErrNotFound)

	cause := errors.New("connection reset")
	err := notFound(cause)
	require.ErrorIs(t, err, cause)
	require.NotErrorIs(t, err, ErrNotFound)
}
