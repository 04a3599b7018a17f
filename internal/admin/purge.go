package admin

import (
	"errors"
	"fmt"

	"github.com/dmitrijs2005/sealvault/internal/server/locks"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

func newPurgeCmd(connect connectFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "purge",
		Short: "Run one trash purge sweep now",
		Long:  `Hard-deletes every trashed file whose retention has run out. The sweep takes the same lock as the server's scheduled job.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := connect(cmd)
			if err != nil {
				return err
			}
			defer b.Close()

			out := cmd.OutOrStdout()
			res, err := b.PurgeOnce(cmd.Context())
			if errors.Is(err, locks.ErrNotAcquired) {
				color.New(color.FgYellow).Fprintln(out, "another purge is running, nothing done")
				return nil
			}
			if err != nil {
				return fmt.Errorf("error purging: %w", err)
			}

			fmt.Fprintf(out, "due: %d  purged: %d  skipped: %d\n", res.Due, res.Purged, res.Skipped)
			if res.Failed > 0 {
				color.New(color.FgRed).Fprintf(out, "failed: %d (retried on the next sweep)\n", res.Failed)
			}
			return nil
		},
	}
}
