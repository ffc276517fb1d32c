package main

import (
	"context"
	"fmt"
	"io"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/nhle/mailforward/internal/mailbox"
)

// folderLister is the part of a mailbox session the folders command uses.
type folderLister interface {
	ListFolders(ctx context.Context) ([]string, error)
	Close() error
}

func newFoldersCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "folders",
		Short: "List the folders (labels) available on the mail server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := o.load(cmd, true)
			if err != nil {
				return err
			}

			client, err := mailbox.NewIMAPClient(e.cfg.Mailbox)
			if err != nil {
				return e.fail(err, "invalid mailbox settings")
			}

			session, err := client.Connect(cmd.Context())
			if err != nil {
				return e.fail(err, "connecting to mailbox")
			}

			err = printFolders(cmd.Context(), session, client.Folder(), cmd.OutOrStdout(), e.log)
			if err != nil {
				return e.fail(err, "listing folders")
			}
			return nil
		},
	}
}

// printFolders writes one folder per line, marking the selected one, and
// closes the session.
func printFolders(
	ctx context.Context, session folderLister, selected string, out io.Writer, log zerolog.Logger,
) error {
	defer func() {
		if err := session.Close(); err != nil {
			log.Warn().Err(err).Msg("closing mailbox")
		}
	}()

	folders, err := session.ListFolders(ctx)
	if err != nil {
		return err
	}

	for _, f := range folders {
		marker := " "
		if f == selected {
			marker = "*"
		}
		fmt.Fprintf(out, "%s %s\n", marker, f)
	}
	return nil
}
