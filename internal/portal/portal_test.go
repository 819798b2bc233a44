package portal

import (
	"context"
	"testing"

	"github.com/example/slotbook/internal/booking"
	"github.com/example/slotbook/internal/browser/browsertest"
	"github.com/example/slotbook/internal/clock"
	"github.com/example/slotbook/internal/logger"
	"github.com/stretchr/testify/require"
)

func newPortal(d *browsertest.Driver) (*Portal, *clock.Recorder) {
	rec := &clock.Recorder{}
	p := New(d, logger.Discard())
	p.Sleep = rec.Sleep
	return p, rec
}

func TestSignIn(t *testing.T) {
	d := browsertest.NewDriver()
	d.Add(cookieButton, browsertest.NewElement("Manage"))
	accept := d.Add(cookieButton, browsertest.NewElement("Accept"))
	user := d.Add(usernameInput, browsertest.NewElement())
	pass := d.Add(passwordInput, browsertest.NewElement())
	submit := d.Add(loginButton, browsertest.NewElement())

	p, _ := newPortal(d)
	require.NoError(t, p.SignIn(context.Background(), "alice", "pw"))

	require.Equal(t, []string{DefaultLoginURL}, d.Visited)
	require.Equal(t, 1, accept.ClickCount())
	require.Equal(t, []string{"alice"}, user.Typed)
	require.Equal(t, []string{"pw"}, pass.Typed)
	require.Equal(t, 1, submit.ClickCount())
}

func TestAcceptCookiesWaitsForLabel(t *testing.T) {
	d := browsertest.NewDriver()
	// banner text renders late
	btn := d.Add(cookieButton, browsertest.NewElement("", "", "Accept"))

	p, rec := newPortal(d)
	require.NoError(t, p.AcceptCookies(context.Background()))
	require.Equal(t, 1, btn.ClickCount())
	require.Equal(t, 2, rec.Count())
}

func TestAcceptCookiesTimesOut(t *testing.T) {
	d := browsertest.NewDriver()
	btn := d.Add(cookieButton, browsertest.NewElement("Reject"))

	p, rec := newPortal(d)
	err := p.AcceptCookies(context.Background())
	require.ErrorIs(t, err, booking.ErrTimedOut)
	require.Equal(t, booking.KindTimedOut, booking.KindOf(err))
	require.Equal(t, 0, btn.ClickCount())
	require.Equal(t, int(cookieTimeout/cookiePollInterval), rec.Count())
}

func TestLoginMissingField(t *testing.T) {
	d := browsertest.NewDriver()
	d.Add(usernameInput, browsertest.NewElement())

	p, _ := newPortal(d)
	err := p.Login(context.Background(), "alice", "pw")
	require.ErrorIs(t, err, booking.ErrAutomationElement)
}
