package cmd

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"
)

func newSecretCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "secret",
		Short: "Encrypt values for the booking config",
	}
	cmd.AddCommand(newSecretEncryptCmd())
	return cmd
}

func newSecretEncryptCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "encrypt",
		Short: "Read a value from the terminal and print it sealed with CRED_ENC_KEY",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.Close()

			box, err := a.box()
			if err != nil {
				return err
			}
			if box == nil {
				return errors.New("CRED_ENC_KEY is not set (generate one with `slotbook keys`)")
			}

			value, err := readSecret(cmd)
			if err != nil {
				return err
			}
			if value == "" {
				return errors.New("empty value")
			}
			sealed, err := box.Seal(value)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), sealed)
			return nil
		},
	}
}

// readSecret prompts without echo on a terminal and reads a line from stdin otherwise.
func readSecret(cmd *cobra.Command) (string, error) {
	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		fmt.Fprint(cmd.ErrOrStderr(), "value: ")
		b, err := term.ReadPassword(fd)
		fmt.Fprintln(cmd.ErrOrStderr())
		if err != nil {
			return "", err
		}
		return string(b), nil
	}
	line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
	if err != nil && line == "" {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}
