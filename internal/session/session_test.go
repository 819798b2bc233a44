package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/example/slotbook/internal/booking"
	"github.com/example/slotbook/internal/browser/browsertest"
	"github.com/example/slotbook/internal/clock"
	"github.com/example/slotbook/internal/logger"
	"github.com/golang-jwt/jwt/v4"
	"github.com/stretchr/testify/require"
)

const blob = `{"access_token":"tok","profile":{"dimension_person_pk":"12345"}}`

func newExtractor(d *browsertest.Driver) (*Extractor, *clock.Recorder) {
	rec := &clock.Recorder{}
	e := NewExtractor(d, logger.Discard())
	e.Sleep = rec.Sleep
	return e, rec
}

func TestExtractReadyOnFourthPoll(t *testing.T) {
	d := browsertest.NewDriver()
	polls := 0
	d.EvalFunc = func(js string) (any, error) {
		require.Contains(t, js, DefaultStorageKey)
		polls++
		if polls < 4 {
			return nil, nil
		}
		return blob, nil
	}

	e, rec := newExtractor(d)
	creds, err := e.Extract(context.Background())
	require.NoError(t, err)
	require.Equal(t, "tok", creds.AccessToken)
	require.Equal(t, "12345", creds.PersonID)
	require.Equal(t, 4, polls)
	require.GreaterOrEqual(t, rec.Total(), 3*time.Second)
}

func TestExtractNeverReady(t *testing.T) {
	d := browsertest.NewDriver()
	polls := 0
	d.EvalFunc = func(string) (any, error) {
		polls++
		return nil, nil
	}

	e, rec := newExtractor(d)
	_, err := e.Extract(context.Background())
	require.ErrorIs(t, err, booking.ErrSessionNotReady)
	require.Equal(t, MaxPolls, polls)
	require.Equal(t, MaxPolls-1, rec.Count())
}

func TestExtractEvalErrorsArePolled(t *testing.T) {
	d := browsertest.NewDriver()
	polls := 0
	d.EvalFunc = func(string) (any, error) {
		polls++
		if polls == 1 {
			return nil, errors.New("execution context destroyed")
		}
		return blob, nil
	}

	e, _ := newExtractor(d)
	_, err := e.Extract(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, polls)
}

func TestExtractMalformed(t *testing.T) {
	cases := map[string]string{
		"not json":      "{",
		"no token":      `{"profile":{"dimension_person_pk":"1"}}`,
		"no person":     `{"access_token":"tok","profile":{}}`,
		"empty person":  `{"access_token":"tok","profile":{"dimension_person_pk":""}}`,
		"object person": `{"access_token":"tok","profile":{"dimension_person_pk":{}}}`,
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			d := browsertest.NewDriver()
			d.EvalFunc = func(string) (any, error) { return raw, nil }
			e, _ := newExtractor(d)
			_, err := e.Extract(context.Background())
			require.ErrorIs(t, err, booking.ErrSessionNotReady)
		})
	}
}

func TestParseNumericPersonID(t *testing.T) {
	creds, err := parse(`{"access_token":"tok","profile":{"dimension_person_pk":987654321}}`)
	require.NoError(t, err)
	require.Equal(t, "987654321", creds.PersonID)
}

func TestTokenExpiry(t *testing.T) {
	exp := time.Now().Add(time.Hour).Truncate(time.Second)
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(exp)})
	signed, err := tok.SignedString([]byte("k"))
	require.NoError(t, err)

	require.True(t, exp.Equal(tokenExpiry(signed)))
	require.True(t, tokenExpiry("opaque").IsZero())
}

func TestExtractCancelled(t *testing.T) {
	d := browsertest.NewDriver()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	e, _ := newExtractor(d)
	_, err := e.Extract(ctx)
	require.ErrorIs(t, err, context.Canceled)
}
