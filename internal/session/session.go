// Package session reads the logged-in user's API credentials out of the browser.
package session

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/example/slotbook/internal/booking"
	"github.com/example/slotbook/internal/browser"
	"github.com/example/slotbook/internal/clock"
	"github.com/golang-jwt/jwt/v4"
)

const (
	DefaultStorageKey = "oidc.user:https://sportsbookings.leeds.ac.uk/lhweb/identity:LhWebJs"

	MaxPolls     = 6
	PollInterval = time.Second
)

type Extractor struct {
	Driver     browser.Driver
	Log        *slog.Logger
	StorageKey string
	Sleep      clock.Sleeper
	Now        func() time.Time
}

func NewExtractor(d browser.Driver, log *slog.Logger) *Extractor {
	return &Extractor{
		Driver:     d,
		Log:        log,
		StorageKey: DefaultStorageKey,
		Sleep:      clock.Sleep,
		Now:        time.Now,
	}
}

// Extract polls localStorage until the OIDC client has written the user blob, then
// parses the access token and person id out of it.
func (e *Extractor) Extract(ctx context.Context) (booking.Credentials, error) {
	raw, err := e.poll(ctx)
	if err != nil {
		return booking.Credentials{}, err
	}
	creds, err := parse(raw)
	if err != nil {
		return booking.Credentials{}, booking.SessionNotReady("extract credentials", err)
	}
	creds.ExpiresAt = tokenExpiry(creds.AccessToken)
	if creds.Expired(e.Now()) {
		e.Log.Warn("access token already expired", "expires_at", creds.ExpiresAt)
	}
	e.Log.Info("extracted user credentials", "person_id", creds.PersonID)
	return creds, nil
}

func (e *Extractor) poll(ctx context.Context) (string, error) {
	js := fmt.Sprintf("() => window.localStorage.getItem(%q)", e.StorageKey)
	for i := 1; i <= MaxPolls; i++ {
		v, err := e.Driver.Eval(ctx, js)
		if err != nil {
			e.Log.Debug("session storage read failed", "poll", i, "err", err)
		} else if s, ok := v.(string); ok && s != "" {
			return s, nil
		}
		if i == MaxPolls {
			break
		}
		if err := e.Sleep(ctx, PollInterval); err != nil {
			return "", err
		}
	}
	return "", booking.SessionNotReady("extract credentials",
		fmt.Errorf("%s still empty after %d polls", e.StorageKey, MaxPolls))
}

type storedUser struct {
	AccessToken string `json:"access_token"`
	Profile     struct {
		PersonPK json.RawMessage `json:"dimension_person_pk"`
	} `json:"profile"`
}

func parse(raw string) (booking.Credentials, error) {
	var u storedUser
	if err := json.Unmarshal([]byte(raw), &u); err != nil {
		return booking.Credentials{}, fmt.Errorf("decode session storage: %w", err)
	}
	if u.AccessToken == "" {
		return booking.Credentials{}, errors.New("session storage has no access_token")
	}
	pid, err := personID(u.Profile.PersonPK)
	if err != nil {
		return booking.Credentials{}, err
	}
	return booking.Credentials{AccessToken: u.AccessToken, PersonID: pid}, nil
}

// personID accepts the pk as either a JSON string or a JSON number.
func personID(raw json.RawMessage) (string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return "", errors.New("session storage has no profile.dimension_person_pk")
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", err
		}
		if s == "" {
			return "", errors.New("session storage has empty profile.dimension_person_pk")
		}
		return s, nil
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return "", fmt.Errorf("profile.dimension_person_pk: %w", err)
	}
	return n.String(), nil
}

// tokenExpiry reads exp without verifying the signature; the token is only ever
// passed back to the site that issued it. Opaque tokens yield the zero time.
func tokenExpiry(token string) time.Time {
	var claims jwt.RegisteredClaims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return time.Time{}
	}
	if claims.ExpiresAt == nil {
		return time.Time{}
	}
	return claims.ExpiresAt.Time
}
