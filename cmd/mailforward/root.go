package main

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/nhle/mailforward/internal/credential"
	"github.com/nhle/mailforward/internal/logging"
	"github.com/nhle/mailforward/internal/model"
)

// options are the flags shared by every command.
type options struct {
	configPath    string
	lookbackHours int
	debug         bool
	logLevel      string
}

// env is what a command needs once configuration is loaded.
type env struct {
	cfg *model.AppConfig
	log zerolog.Logger
}

func newRootCmd() *cobra.Command {
	o := &options{}

	cmd := &cobra.Command{
		Use:           "mailforward",
		Short:         "Forward recent notification mail through a transactional-email API",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runForward(cmd, o)
		},
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&o.configPath, "config", model.DefaultConfigPath(), "Path to the YAML config file")
	flags.IntVar(&o.lookbackHours, "lookback-hours", 0, "Only consider mail from the last N hours")
	flags.BoolVar(&o.debug, "debug", false, "Ignore the ledger: reprocess and resend everything")
	flags.StringVar(&o.logLevel, "log-level", "", "Log level (debug, info, warn, error)")

	cmd.AddCommand(
		newRunCmd(o),
		newFoldersCmd(o),
		newLedgerCmd(o),
		newSecretCmd(),
		newConfigCmd(o),
	)

	return cmd
}

// load reads configuration, applies flag overrides and builds the logger.
// Secrets are resolved from the keyring when resolveSecrets is set.
func (o *options) load(cmd *cobra.Command, resolveSecrets bool) (*env, error) {
	cfg, err := model.LoadConfig(o.configPath)
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("lookback-hours") && o.lookbackHours > 0 {
		cfg.LookbackHours = o.lookbackHours
	}
	if flags.Changed("debug") {
		cfg.Ledger.Debug = o.debug
	}
	if flags.Changed("log-level") {
		cfg.Log.Level = o.logLevel
	}

	log, err := logging.New(cfg.Log, os.Stderr)
	if err != nil {
		return nil, err
	}

	if resolveSecrets {
		store, err := credential.Open()
		if err != nil {
			return nil, err
		}
		if err := cfg.ResolveSecrets(store.Lookup); err != nil {
			return nil, err
		}
	}

	return &env{cfg: cfg, log: log}, nil
}

// loggedError is a fatal error already written to the log.
type loggedError struct {
	error
}

func (e loggedError) Unwrap() error { return e.error }

// fail logs a fatal command error and returns it so the process exits
// non-zero.
func (e *env) fail(err error, msg string) error {
	e.log.Error().Err(err).Msg(msg)
	return loggedError{fmt.Errorf("%s: %w", msg, err)}
}
