package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

func newRestoreCommand(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "restore [key]",
		Short: "Recover a queue that was set aside because it could not be read",
		Long: `A stored queue that cannot be read (wrong passphrase, newer format) is never
overwritten: before the next write it is moved to a side key.

Without arguments, list the side keys. With a key, put its mutations back in
front of the current queue. Run it with the passphrase the queue was written with.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return e.withApp(cmd, func(ctx context.Context, app *App) error {
				w := cmd.OutOrStdout()
				if len(args) == 1 {
					n, err := app.Queue.Restore(ctx, args[0])
					if err != nil {
						return err
					}
					_, err = fmt.Fprintf(w, "Restored %d %s from %s\n", n, plural(n, "mutation", "mutations"), args[0])
					return err
				}

				if loadErr := app.Queue.LoadError(); loadErr != nil {
					if _, err := fmt.Fprintf(w, "Current queue is unreadable: %v\n", loadErr); err != nil {
						return err
					}
				}

				keys, err := app.Queue.Quarantined(ctx)
				if err != nil {
					return err
				}
				if len(keys) == 0 {
					_, err = fmt.Fprintln(w, "No set-aside queues")
					return err
				}
				for _, key := range keys {
					if _, err := fmt.Fprintln(w, key); err != nil {
						return err
					}
				}
				return nil
			})
		},
	}
}
