package main

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/nhle/mailforward/internal/credential"
	"github.com/nhle/mailforward/internal/model"
)

var secretKeys = []string{
	model.SecretMailboxPassword,
	model.SecretForwarderAPIKey,
	model.SecretSMTPPassword,
}

func newSecretCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "secret",
		Short: "Manage secrets stored in the OS keyring",
		Long: "Manage secrets stored in the OS keyring.\n\nKeys: " +
			strings.Join(secretKeys, ", "),
	}
	cmd.AddCommand(newSecretSetCmd(), newSecretDeleteCmd())
	return cmd
}

func newSecretSetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set KEY",
		Short: "Store a secret read from standard input",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := checkSecretKey(args[0]); err != nil {
				return err
			}

			line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
			value := strings.TrimRight(line, "\r\n")
			if value == "" {
				if err != nil {
					return fmt.Errorf("reading secret: %w", err)
				}
				return fmt.Errorf("empty secret for %q", args[0])
			}

			store, err := credential.Open()
			if err != nil {
				return err
			}
			return store.Set(args[0], value)
		},
	}
}

func newSecretDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete KEY",
		Short: "Remove a stored secret",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := checkSecretKey(args[0]); err != nil {
				return err
			}

			store, err := credential.Open()
			if err != nil {
				return err
			}
			return store.Delete(args[0])
		},
	}
}

func checkSecretKey(key string) error {
	for _, k := range secretKeys {
		if k == key {
			return nil
		}
	}
	return fmt.Errorf("unknown secret %q (want one of %s)", key, strings.Join(secretKeys, ", "))
}
