// Package booker runs booking attempts end to end and turns them into outcomes.
package booker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime/debug"
	"time"

	"github.com/example/slotbook/internal/booking"
	"github.com/example/slotbook/internal/browser"
	"github.com/example/slotbook/internal/checkout"
	"github.com/example/slotbook/internal/clock"
	"github.com/example/slotbook/internal/config"
	"github.com/example/slotbook/internal/lhweb"
	"github.com/example/slotbook/internal/portal"
	"github.com/example/slotbook/internal/session"
	"github.com/google/uuid"
)

type DriverFactory interface {
	New(ctx context.Context) (browser.Driver, error)
}

// Session is one attempt for one account. It owns its driver for the whole run.
type Session struct {
	ID      string
	Global  config.Global
	Account config.Account
	Drivers DriverFactory
	API     *lhweb.Client
	Log     *slog.Logger
	Sleep   clock.Sleeper
	Now     func() time.Time

	// Settle overrides the post-payment wait before the screenshot when non-zero.
	Settle time.Duration

	state booking.State
}

func NewSession(g config.Global, acct config.Account, drivers DriverFactory, log *slog.Logger) *Session {
	id := uuid.NewString()
	return &Session{
		ID:      id,
		Global:  g,
		Account: acct,
		Drivers: drivers,
		API:     lhweb.NewClient(log),
		Log:     log.With("account", acct.Name, "attempt", id),
		Sleep:   clock.Sleep,
		Now:     time.Now,
	}
}

// State is the step the session is on; Done or Failed once Run has returned.
func (s *Session) State() booking.State { return s.state }

// Run executes the whole workflow and always returns an outcome. It never panics
// and the driver is closed exactly once whatever happens.
func (s *Session) Run(ctx context.Context) (out booking.Outcome) {
	out = booking.Outcome{
		ID:        s.ID,
		Account:   s.Account.Name,
		State:     booking.StateStart,
		StartedAt: s.Now(),
	}
	s.state = booking.StateStart
	s.Log.Info("starting booking", "dry_run", s.Global.DryRun)

	defer func() {
		if r := recover(); r != nil {
			s.Log.Error("booking panicked", "panic", r, "stack", string(debug.Stack()))
			s.fail(ctx, &out, booking.E(booking.KindUnexpectedTerminal, booking.CodeInternal, "run",
				fmt.Sprintf("panic: %v", r), nil))
		}
		out.FinishedAt = s.Now()
		s.Log.Info("booking ended", "success", out.Success, "state", out.State, "duration", out.Duration())
	}()

	d, err := s.Drivers.New(ctx)
	if err != nil {
		s.fail(ctx, &out, booking.E(booking.KindUnexpectedTerminal, booking.CodeAutomationElement, "start driver", "", err))
		return out
	}
	defer func() {
		if err := d.Close(); err != nil {
			s.Log.Warn("closing driver", "err", err)
		}
	}()

	if err := s.steps(ctx, d, &out); err != nil {
		s.failureScreenshot(ctx, d, &out)
		s.fail(ctx, &out, err)
		return out
	}
	out.Success = true
	s.state = booking.StateDone
	return out
}

func (s *Session) steps(ctx context.Context, d browser.Driver, out *booking.Outcome) error {
	p := portal.New(d, s.Log)
	p.Sleep = s.Sleep
	if err := p.SignIn(ctx, s.Account.Username, s.Account.Password); err != nil {
		return err
	}
	s.advance(out, booking.StateAuthenticated)

	ex := session.NewExtractor(d, s.Log)
	ex.Sleep = s.Sleep
	ex.Now = s.Now
	creds, err := ex.Extract(ctx)
	if err != nil {
		return err
	}
	s.advance(out, booking.StateCredentialsExtracted)

	api := *s.API
	api.Log = s.Log
	target := booking.TargetDate(out.StartedAt, s.Global.DayDelta)
	s.Log.Info("booking date", "now", out.StartedAt.Format(time.RFC3339), "target", target.Format(time.DateOnly))
	activity, err := lhweb.NewFinder(&api).FindMatching(ctx, creds, target, s.Account.Activity, s.Account.StartTime)
	if err != nil {
		return err
	}
	out.Activity = activity.String()
	s.advance(out, booking.StateResourceMatched)

	r := lhweb.NewReserver(&api, s.Global.RetryCount)
	r.Sleep = s.Sleep
	subs, err := r.FetchSubLocations(ctx, activity, creds)
	if err != nil {
		return err
	}
	s.advance(out, booking.StateSubInstancesFetched)

	basketID, err := r.Reserve(ctx, activity, subs, creds)
	if err != nil {
		return err
	}
	out.BasketID = basketID
	s.advance(out, booking.StateReserved)

	co := checkout.New(d, s.Log, s.Global.ScreenshotDir)
	co.Sleep = s.Sleep
	if s.Settle > 0 {
		co.Settle = s.Settle
	}
	if err := co.NavigateToCheckout(ctx, basketID); err != nil {
		return err
	}
	s.advance(out, booking.StateCheckedOut)

	if err := co.ConfirmCheckout(ctx); err != nil {
		return err
	}
	s.advance(out, booking.StateConfirmed)

	// a dry run may leave payment details out of the config; stop at confirmation
	if s.Global.DryRun && !s.Account.HasPaymentDetails() {
		s.Log.Warn("dry run without payment details, skipping payment form")
	} else {
		if err := co.FillPaymentDetails(ctx, s.Account, s.Global.DryRun); err != nil {
			return err
		}
		s.advance(out, booking.StatePaymentFilled)
	}

	path, err := co.Capture(ctx, out.StartedAt)
	if err != nil {
		// the booking itself went through; a missing screenshot isn't a failure
		s.Log.Warn("capture failed", "err", err)
		return nil
	}
	out.Screenshot = path
	return nil
}

func (s *Session) advance(out *booking.Outcome, st booking.State) {
	s.state = st
	out.State = st
	s.Log.Debug("state", "state", st)
}

// fail records err on the outcome. Any error after the run deadline passed is a
// timeout, whichever step surfaced it.
func (s *Session) fail(ctx context.Context, out *booking.Outcome, err error) {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) && booking.KindOf(err) != booking.KindTimedOut {
		err = booking.E(booking.KindTimedOut, booking.CodeTimedOut, "run", "run deadline exceeded", err)
	}
	kind := booking.KindOf(err)
	code := booking.CodeOf(err)
	out.Success = false
	out.ErrorKind = kind.String()
	out.ErrorCode = string(code)
	out.Error = err.Error()

	attrs := []any{"kind", kind, "code", code, "state", out.State, "err", err}
	if kind == booking.KindExpectedTerminal {
		s.Log.Warn("could not book activity", attrs...)
	} else {
		s.Log.Error("could not book activity", attrs...)
	}
	s.state = booking.StateFailed
}

// failureScreenshot grabs the page as it was when a step failed, without waiting.
func (s *Session) failureScreenshot(ctx context.Context, d browser.Driver, out *booking.Outcome) {
	if s.Global.ScreenshotDir == "" || ctx.Err() != nil {
		return
	}
	if err := os.MkdirAll(s.Global.ScreenshotDir, 0o755); err != nil {
		s.Log.Debug("failure screenshot", "err", err)
		return
	}
	path := filepath.Join(s.Global.ScreenshotDir, out.StartedAt.Format(time.RFC3339)+"-failed.png")
	if err := d.Screenshot(ctx, path); err != nil {
		s.Log.Debug("failure screenshot", "err", err)
		return
	}
	out.Screenshot = path
}
