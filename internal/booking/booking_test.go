package booking

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestErrorIsMatchesOnCode(t *testing.T) {
	err := fmt.Errorf("step: %w", ActivityNotFound("find", "Badminton", "18:00"))

	require.ErrorIs(t, err, ErrActivityNotFound)
	require.NotErrorIs(t, err, ErrAPI)
	require.Equal(t, KindExpectedTerminal, KindOf(err))
	require.Equal(t, CodeActivityNotFound, CodeOf(err))
}

func TestKindOfUnknownError(t *testing.T) {
	err := errors.New("boom")
	require.Equal(t, KindUnexpectedTerminal, KindOf(err))
	require.Equal(t, CodeInternal, CodeOf(err))
}

func TestErrorMessage(t *testing.T) {
	err := ElementError("login", "id=xn-Username", errors.New("timeout"))
	require.Equal(t, "login: element id=xn-Username: timeout", err.Error())
	require.ErrorIs(t, err, ErrAutomationElement)
}

func TestActivityQueryTimes(t *testing.T) {
	a := Activity{StartTime: "2024-01-01T16:00:00", EndTime: "2024-01-01T17:00:00"}

	start, err := a.QueryStart()
	require.NoError(t, err)
	require.Equal(t, "2024/01/01 16:00:00", start)

	end, err := a.QueryEnd()
	require.NoError(t, err)
	require.Equal(t, "2024/01/01 17:00:00", end)

	_, err = Activity{StartTime: "16:00"}.QueryStart()
	require.Error(t, err)
}

func TestTargetDate(t *testing.T) {
	now := time.Date(2024, 3, 30, 21, 45, 10, 0, time.UTC)
	require.Equal(t, time.Date(2024, 4, 2, 0, 0, 0, 0, time.UTC), TargetDate(now, 3))
	require.Equal(t, time.Date(2024, 3, 30, 0, 0, 0, 0, time.UTC), TargetDate(now, 0))
}

func TestCredentialsExpired(t *testing.T) {
	now := time.Now()
	require.False(t, Credentials{}.Expired(now))
	require.True(t, Credentials{ExpiresAt: now.Add(-time.Minute)}.Expired(now))
	require.False(t, Credentials{ExpiresAt: now.Add(time.Minute)}.Expired(now))
}
