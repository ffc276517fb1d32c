package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/nhle/mailforward/internal/batch"
	"github.com/nhle/mailforward/internal/content"
	"github.com/nhle/mailforward/internal/forward"
	"github.com/nhle/mailforward/internal/ledger"
	"github.com/nhle/mailforward/internal/mailbox"
)

func newRunCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Forward new mail from the last lookback window (default)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runForward(cmd, o)
		},
	}
}

func runForward(cmd *cobra.Command, o *options) error {
	e, err := o.load(cmd, true)
	if err != nil {
		return err
	}
	cfg := e.cfg

	if err := cfg.Validate(); err != nil {
		return e.fail(err, "invalid configuration")
	}

	client, err := mailbox.NewIMAPClient(cfg.Mailbox)
	if err != nil {
		return e.fail(err, "invalid mailbox settings")
	}

	l, closeLedger, err := ledger.Open(cfg.Ledger)
	if err != nil {
		return e.fail(err, "opening ledger")
	}
	defer func() {
		if err := closeLedger(); err != nil {
			e.log.Warn().Err(err).Msg("closing ledger")
		}
	}()

	fwd, err := forward.New(cfg.Forwarder, e.log)
	if err != nil {
		return e.fail(err, "building forwarder")
	}

	normalizer, err := content.NewNormalizer(cfg.FooterPattern)
	if err != nil {
		return e.fail(err, "invalid footer pattern")
	}

	if cfg.Ledger.Debug {
		e.log.Warn().Msg("debug mode: ledger disabled, every message is forwarded")
	}

	connect := func(ctx context.Context) (batch.Mailbox, error) {
		return client.Connect(ctx)
	}
	driver := batch.New(connect, l, fwd, normalizer, e.log)

	if _, err := driver.Run(cmd.Context(), cfg.LookbackHours); err != nil {
		if mailbox.IsAuthError(err) {
			return e.fail(err, "mailbox login rejected")
		}
		return e.fail(err, "run failed")
	}

	return nil
}
