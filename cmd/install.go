package cmd

import (
	"fmt"

	"github.com/example/slotbook/internal/browser"
	"github.com/spf13/cobra"
)

func newInstallCmd() *cobra.Command {
	var name string

	cmd := &cobra.Command{
		Use:   "install",
		Short: "Download the playwright driver and browser for local runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := browser.Install(name); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "installed %s\n", name)
			return nil
		},
	}

	cmd.Flags().StringVar(&name, "browser", "firefox", "firefox or chromium")
	return cmd
}
