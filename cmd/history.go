package cmd

import (
	"context"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/example/slotbook/internal/store"
	"github.com/spf13/cobra"
)

func newHistoryCmd() *cobra.Command {
	var account string
	var limit int
	var failedOnly bool

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recent booking attempts",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.Close()

			ctx := context.Background()
			st, err := a.openStore(ctx)
			if err != nil {
				return err
			}
			defer st.Close()

			f := store.Filter{Account: account, Limit: limit}
			if failedOnly {
				no := false
				f.Success = &no
			}
			outs, err := st.ListOutcomes(ctx, f)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "STARTED\tACCOUNT\tRESULT\tSTATE\tTOOK\tDETAIL")
			for _, o := range outs {
				result, detail := "booked", o.Activity
				if !o.Success {
					result, detail = o.ErrorCode, o.Error
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
					o.StartedAt.Local().Format("2006-01-02 15:04"), o.Account, result, o.State,
					o.Duration().Round(time.Second), detail)
			}
			return w.Flush()
		},
	}

	cmd.Flags().StringVar(&account, "account", "", "only this account")
	cmd.Flags().IntVar(&limit, "limit", 20, "max rows")
	cmd.Flags().BoolVar(&failedOnly, "failed", false, "only failed attempts")
	return cmd
}
