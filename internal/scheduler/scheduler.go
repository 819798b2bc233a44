// Package scheduler fires the booking runner at fixed times of day.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/example/slotbook/internal/booking"
)

const DefaultInterval = 5 * time.Second

type Job interface {
	RunAll(ctx context.Context) []booking.Outcome
}

// TimeOfDay is an HH:MM firing time in the local zone.
type TimeOfDay struct {
	Hour, Minute int
}

func ParseTimes(in []string) ([]TimeOfDay, error) {
	out := make([]TimeOfDay, 0, len(in))
	for _, s := range in {
		t, err := time.Parse("15:04", s)
		if err != nil {
			return nil, fmt.Errorf("schedule time %q: want HH:MM", s)
		}
		out = append(out, TimeOfDay{Hour: t.Hour(), Minute: t.Minute()})
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Hour*60+out[i].Minute < out[j].Hour*60+out[j].Minute
	})
	return out, nil
}

func (t TimeOfDay) on(day time.Time) time.Time {
	return time.Date(day.Year(), day.Month(), day.Day(), t.Hour, t.Minute, 0, 0, day.Location())
}

func (t TimeOfDay) String() string { return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute) }

// Due reports whether a firing time falls in (from, to].
func Due(times []TimeOfDay, from, to time.Time) bool {
	for _, t := range times {
		for _, day := range []time.Time{from, to} {
			at := t.on(day)
			if at.After(from) && !at.After(to) {
				return true
			}
		}
	}
	return false
}

// Next is the first firing time strictly after now.
func Next(times []TimeOfDay, now time.Time) time.Time {
	var best time.Time
	for _, t := range times {
		at := t.on(now)
		if !at.After(now) {
			at = t.on(now.AddDate(0, 0, 1))
		}
		if best.IsZero() || at.Before(best) {
			best = at
		}
	}
	return best
}

// Scheduler polls the clock every Interval and runs Job when a firing time has
// passed. Runs never overlap; a firing that lands during a run is skipped.
type Scheduler struct {
	Job      Job
	Times    []TimeOfDay
	Interval time.Duration
	Timeout  time.Duration
	Log      *slog.Logger
	Now      func() time.Time

	mu      sync.Mutex
	wg      sync.WaitGroup
	last    time.Time
	running bool
}

func (s *Scheduler) Run(ctx context.Context) error {
	if len(s.Times) == 0 {
		return fmt.Errorf("scheduler: no schedule times")
	}
	if s.Now == nil {
		s.Now = time.Now
	}
	interval := s.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	t := time.NewTicker(interval)
	defer t.Stop()

	s.last = s.Now()
	s.Log.Info("scheduler started", "times", s.Times, "next", Next(s.Times, s.last))

	for {
		select {
		case <-ctx.Done():
			s.wg.Wait()
			return ctx.Err()
		case <-t.C:
			s.tick(ctx)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	now := s.Now()
	due := Due(s.Times, s.last, now)
	s.last = now
	if !due {
		return
	}

	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		s.Log.Warn("previous run still in progress, skipping")
		return
	}
	s.running = true
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() {
			s.mu.Lock()
			s.running = false
			s.mu.Unlock()
		}()
		s.runOnce(ctx)
	}()
}

func (s *Scheduler) runOnce(ctx context.Context) {
	if s.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.Timeout)
		defer cancel()
	}
	s.Log.Info("scheduled run starting")
	outs := s.Job.RunAll(ctx)
	ok := 0
	for _, o := range outs {
		if o.Success {
			ok++
		}
	}
	s.Log.Info("scheduled run finished", "attempts", len(outs), "succeeded", ok,
		"next", Next(s.Times, s.Now()))
}
