package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/example/slotbook/internal/booker"
	"github.com/spf13/cobra"
)

var errRunFailed = errors.New("one or more bookings failed")

func newRunCmd() *cobra.Command {
	var account string
	var production, dryRun, noDryRun bool

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Book now for every configured account (or one with --account)",
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
			g := f.Global
			switch {
			case dryRun:
				g.DryRun = true
			case noDryRun:
				g.DryRun = false
			}
			accounts, err := booker.Select(f, account)
			if err != nil {
				return err
			}
			if !g.DryRun {
				for _, acct := range accounts {
					if err := acct.Validate(false); err != nil {
						return err
					}
				}
			}

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()
			ctx, cancelRun := context.WithTimeout(ctx, a.cfg.RunTimeout)
			defer cancelRun()

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

			outs := a.runner(g, accounts, st, l).RunAll(ctx)
			failed := len(accounts) - len(outs)
			for _, o := range outs {
				status := "booked"
				if !o.Success {
					status = "failed: " + o.Error
					failed++
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%-16s %s\n", o.Account, status)
			}
			if failed > 0 {
				return errRunFailed
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&account, "account", "", "only book for this account section")
	cmd.Flags().BoolVar(&production, "production", false, "read the booking config from the secrets mount")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "fill payment details but never submit them")
	cmd.Flags().BoolVar(&noDryRun, "submit", false, "submit payment even if the config says dry_run")
	cmd.MarkFlagsMutuallyExclusive("dry-run", "submit")
	return cmd
}
