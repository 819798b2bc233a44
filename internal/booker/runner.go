package booker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/example/slotbook/internal/booking"
	"github.com/example/slotbook/internal/clock"
	"github.com/example/slotbook/internal/config"
	"github.com/example/slotbook/internal/lhweb"
	"github.com/example/slotbook/internal/lock"
)

const DefaultLockTTL = 30 * time.Minute

type OutcomeSaver interface {
	SaveOutcome(ctx context.Context, o *booking.Outcome) error
}

// Runner books for each configured account in turn.
type Runner struct {
	Global   config.Global
	Accounts []config.Account
	Drivers  DriverFactory
	Outcomes OutcomeSaver
	Locker   lock.Locker
	LockTTL  time.Duration
	Log      *slog.Logger

	// Optional overrides applied to every session.
	API   *lhweb.Client
	Sleep clock.Sleeper
	Now   func() time.Time
}

// RunAll runs every account sequentially and returns the outcomes it produced.
// An account whose lock is held elsewhere is skipped and yields no outcome.
func (r *Runner) RunAll(ctx context.Context) []booking.Outcome {
	var out []booking.Outcome
	for _, acct := range r.Accounts {
		if ctx.Err() != nil {
			r.Log.Warn("run cancelled", "remaining_from", acct.Name)
			break
		}
		o, err := r.RunAccount(ctx, acct)
		if err != nil {
			r.Log.Warn("skipping account", "account", acct.Name, "err", err)
			continue
		}
		out = append(out, o)
	}
	return out
}

// RunAccount runs one attempt under the account's lock and saves the outcome.
func (r *Runner) RunAccount(ctx context.Context, acct config.Account) (booking.Outcome, error) {
	ttl := r.LockTTL
	if ttl <= 0 {
		ttl = DefaultLockTTL
	}
	if r.Locker != nil {
		lease, err := r.Locker.Acquire(ctx, lock.Key(acct.Name), ttl)
		if err != nil {
			return booking.Outcome{}, err
		}
		defer func() {
			// release even if ctx is already done
			if err := lease.Release(context.WithoutCancel(ctx)); err != nil {
				r.Log.Warn("releasing lock", "account", acct.Name, "err", err)
			}
		}()
	}

	s := NewSession(r.Global, acct, r.Drivers, r.Log)
	if r.API != nil {
		s.API = r.API
	}
	if r.Sleep != nil {
		s.Sleep = r.Sleep
	}
	if r.Now != nil {
		s.Now = r.Now
	}
	o := s.Run(ctx)

	if r.Outcomes != nil {
		if err := r.Outcomes.SaveOutcome(context.WithoutCancel(ctx), &o); err != nil {
			r.Log.Error("saving outcome", "account", acct.Name, "attempt", o.ID, "err", err)
		}
	}
	return o, nil
}

var ErrNoAccounts = errors.New("no accounts configured")

// Select narrows accounts to the named one, or returns them all when name is empty.
func Select(f *config.File, name string) ([]config.Account, error) {
	if name == "" {
		if len(f.Accounts) == 0 {
			return nil, ErrNoAccounts
		}
		return f.Accounts, nil
	}
	a, ok := f.Account(name)
	if !ok {
		return nil, fmt.Errorf("account %q not found in booking config", name)
	}
	return []config.Account{a}, nil
}
