package cmd

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newAccountsCmd() *cobra.Command {
	var production bool

	cmd := &cobra.Command{
		Use:   "accounts",
		Short: "Show the accounts and schedule in the booking config",
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
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "engine=%s backend=%s browser=%s headless=%t dry_run=%t day_delta=%d retry_count=%d\n",
				g.DriverEngine, g.DriverBackend, g.Browser, g.HeadlessMode, g.DryRun, g.DayDelta, g.RetryCount)
			if g.Scheduled {
				fmt.Fprintf(out, "scheduled at %s\n", strings.Join(g.ScheduleTimes, ", "))
			}

			w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ACCOUNT\tUSERNAME\tACTIVITY\tSTART")
			for _, acct := range f.Accounts {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", acct.Name, acct.Username, acct.Activity, acct.StartTime)
			}
			return w.Flush()
		},
	}

	cmd.Flags().BoolVar(&production, "production", false, "read the booking config from the secrets mount")
	return cmd
}
