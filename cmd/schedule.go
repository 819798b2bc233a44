package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/example/slotbook/internal/auth"
	"github.com/example/slotbook/internal/scheduler"
	"github.com/example/slotbook/internal/web"
	"github.com/spf13/cobra"
)

func newScheduleCmd() *cobra.Command {
	var production bool

	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Run bookings daily at schedule_time, with the dashboard if configured",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.Close()

			f, err := a.bookingFile(production)
			if err != nil {
				return err
			}
			if !f.Global.Scheduled {
				return fmt.Errorf("booking config has scheduled = false")
			}
			times, err := scheduler.ParseTimes(f.Global.ScheduleTimes)
			if err != nil {
				return err
			}

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			st, err := a.openStore(ctx)
			if err != nil {
				return err
			}
			defer st.Close()

			l, closeLock, err := a.locker(ctx)
			if err != nil {
				return err
			}
			defer closeLock()

			s := &scheduler.Scheduler{
				Job:     a.runner(f.Global, f.Accounts, st, l),
				Times:   times,
				Timeout: a.cfg.RunTimeout,
				Log:     a.log,
			}

			if !a.cfg.DashboardEnabled() {
				a.log.Info("dashboard disabled (set LISTEN_ADDR and cookie keys to enable)")
				return ignoreCanceled(s.Run(ctx))
			}

			go func() {
				if err := s.Run(ctx); err != nil && ctx.Err() == nil {
					a.log.Error("scheduler stopped", "err", err)
					cancel()
				}
			}()
			ws := &web.Server{
				Auth:     auth.NewStore(st, a.cfg.CookieHashKey, a.cfg.CookieBlockKey),
				Outcomes: st,
				Log:      a.log,
			}
			return web.Start(ctx, a.cfg.ListenAddr, ws.Routes(), a.log)
		},
	}

	cmd.Flags().BoolVar(&production, "production", false, "read the booking config from the secrets mount")
	return cmd
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
