package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/iudanet/taskkeeper/internal/client/sync"
)

func newSyncCommand(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Send queued mutations to the server now",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return e.withApp(cmd, func(ctx context.Context, app *App) error {
				res, err := app.Service.ForceSync(ctx)
				if errors.Is(err, sync.ErrOffline) {
					return fmt.Errorf("%w: %d %s still queued", err, app.Service.PendingCount(), plural(app.Service.PendingCount(), "change", "changes"))
				}
				if err != nil {
					return err
				}

				w := cmd.OutOrStdout()
				if !res.Ran {
					_, err = fmt.Fprintln(w, "Nothing to sync")
					return err
				}
				_, err = fmt.Fprintf(w, "Synced %d, failed %d, conflicts %d, skipped %d (%d pending) in %s\n",
					res.Succeeded, res.Failed, res.Conflicts, res.Skipped, app.Service.PendingCount(), res.Duration.Round(time.Millisecond))
				return err
			})
		},
	}
}

func newRetryCommand(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "retry [record-id]",
		Short: "Re-queue failed mutations",
		Long: `Without arguments, re-queue every failed mutation that has retries left.
With a record id, re-queue that mutation with a fresh retry budget.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return e.withApp(cmd, func(ctx context.Context, app *App) error {
				w := cmd.OutOrStdout()
				if len(args) == 1 {
					if err := app.Service.RetryRecord(ctx, args[0]); err != nil {
						return err
					}
					_, err := fmt.Fprintf(w, "Record %s re-queued\n", args[0])
					return err
				}

				n := app.Service.RetryFailedSyncs(ctx)
				_, err := fmt.Fprintf(w, "Re-queued %d failed %s\n", n, plural(n, "mutation", "mutations"))
				return err
			})
		},
	}
}

func newResolveCommand(e *env) *cobra.Command {
	var use string

	cmd := &cobra.Command{
		Use:   "resolve <record-id>",
		Short: "Resolve a sync conflict",
		Long: `Resolve a sync conflict. --use server keeps the server version and drops the
local change. --use client re-sends the local change on top of the server version.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var useServer bool
			switch use {
			case "server":
				useServer = true
			case "client":
			default:
				return fmt.Errorf("--use must be server or client, got %q", use)
			}

			return e.withApp(cmd, func(ctx context.Context, app *App) error {
				if err := app.Service.ResolveConflict(ctx, args[0], useServer); err != nil {
					return err
				}
				_, err := fmt.Fprintf(cmd.OutOrStdout(), "Conflict %s resolved with the %s version\n", args[0], use)
				return err
			})
		},
	}
	cmd.Flags().StringVar(&use, "use", "", "version to keep: server or client")
	_ = cmd.MarkFlagRequired("use")
	return cmd
}

func newDiscardCommand(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "discard <record-id>",
		Short: "Drop a queued mutation without sending it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return e.withApp(cmd, func(ctx context.Context, app *App) error {
				if err := app.Service.DiscardRecord(ctx, args[0]); err != nil {
					return err
				}
				_, err := fmt.Fprintf(cmd.OutOrStdout(), "Record %s discarded\n", args[0])
				return err
			})
		},
	}
}

func newClearCommand(e *env) *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete all queued mutations and sync state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !yes {
				if e.prompter == nil {
					return fmt.Errorf("refusing to clear without confirmation: pass --yes")
				}
				ok, err := e.prompter.Confirm("Delete all unsynced changes?")
				if err != nil {
					return err
				}
				if !ok {
					_, err = fmt.Fprintln(cmd.OutOrStdout(), "Aborted")
					return err
				}
			}

			return e.withApp(cmd, func(ctx context.Context, app *App) error {
				if err := app.Service.ClearOfflineData(ctx); err != nil {
					return err
				}
				_, err := fmt.Fprintln(cmd.OutOrStdout(), "Offline data cleared")
				return err
			})
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "do not ask for confirmation")
	return cmd
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
