package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/spf13/cobra"

	"github.com/nhle/mailforward/internal/model"
)

func newConfigCmd(o *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage the configuration file",
	}
	cmd.AddCommand(newConfigInitCmd(o))
	return cmd
}

func newConfigInitCmd(o *options) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a config file with every setting at its default",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := os.Stat(o.configPath)
			switch {
			case err == nil && !force:
				return fmt.Errorf("%s already exists (use --force to overwrite)", o.configPath)
			case err != nil && !errors.Is(err, fs.ErrNotExist):
				return fmt.Errorf("checking %s: %w", o.configPath, err)
			}

			cfg, err := model.DefaultConfig()
			if err != nil {
				return err
			}

			if err := model.SaveConfig(o.configPath, cfg); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", o.configPath)
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing file")
	return cmd
}
