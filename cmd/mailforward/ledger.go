package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nhle/mailforward/internal/ledger"
	"github.com/nhle/mailforward/internal/model"
)

// keyLister is implemented by the persistent ledger stores.
type keyLister interface {
	Keys(ctx context.Context) ([]string, error)
}

func newLedgerCmd(o *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ledger",
		Short: "Inspect or migrate the processed-message ledger",
	}
	cmd.AddCommand(newLedgerListCmd(o), newLedgerImportCmd(o))
	return cmd
}

func newLedgerListCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "Print every recorded sender-timestamp key",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := o.load(cmd, false)
			if err != nil {
				return err
			}

			cfg := e.cfg.Ledger
			cfg.Debug = false
			l, closeLedger, err := ledger.Open(cfg)
			if err != nil {
				return e.fail(err, "opening ledger")
			}
			defer closeLedger()

			lister, ok := l.(keyLister)
			if !ok {
				return fmt.Errorf("ledger backend %q cannot list keys", cfg.Backend)
			}

			keys, err := lister.Keys(cmd.Context())
			if err != nil {
				return e.fail(err, "reading ledger")
			}
			for _, k := range keys {
				fmt.Fprintln(cmd.OutOrStdout(), k)
			}
			return nil
		},
	}
}

func newLedgerImportCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "import JSON_FILE",
		Short: "Copy a processed.json ledger into the configured SQLite ledger",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := o.load(cmd, false)
			if err != nil {
				return err
			}
			if e.cfg.Ledger.Backend != model.LedgerSQLite {
				return fmt.Errorf("ledger.backend must be %q to import", model.LedgerSQLite)
			}

			keys, err := ledger.NewJSONFile(args[0]).Keys(cmd.Context())
			if err != nil {
				return e.fail(err, "reading source ledger")
			}

			db, err := ledger.NewSQLite(e.cfg.Ledger.Path)
			if err != nil {
				return e.fail(err, "opening ledger")
			}
			defer db.Close()

			added, err := db.Import(cmd.Context(), keys)
			if err != nil {
				return e.fail(err, "importing ledger")
			}

			e.log.Info().
				Int("read", len(keys)).
				Int("added", added).
				Str("path", e.cfg.Ledger.Path).
				Msg("ledger imported")
			return nil
		},
	}
}
