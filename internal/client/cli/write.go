package cli

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/iudanet/taskkeeper/internal/client/offline"
	"github.com/iudanet/taskkeeper/internal/models"
)

func newCreateCommand(e *env) *cobra.Command {
	var rawJSON string

	cmd := &cobra.Command{
		Use:   "create <task|note> [field=value ...]",
		Short: "Create a task or note",
		Long: `Create a task or note. While offline the entity is queued with a local id
that can be used in later update and delete commands.`,
		Example: `  taskkeeper create task title="Buy milk" priority=high
  taskkeeper create note --json '{"title":"Ideas","content":"..."}'`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			entityType, err := parseEntityType(args[0])
			if err != nil {
				return err
			}
			payload, err := parseFields(args[1:], rawJSON)
			if err != nil {
				return err
			}

			return e.withApp(cmd, func(ctx context.Context, app *App) error {
				res, err := app.Service.Create(ctx, entityType, payload)
				if err != nil {
					return err
				}
				return printWrite(cmd.OutOrStdout(), "Created", entityType, res.Entity.EntityID(), res)
			})
		},
	}
	cmd.Flags().StringVar(&rawJSON, "json", "", "fields as a JSON object")
	return cmd
}

func newUpdateCommand(e *env) *cobra.Command {
	var rawJSON string

	cmd := &cobra.Command{
		Use:   "update <task|note> <id> [field=value ...]",
		Short: "Update fields of a task or note",
		Long: `Update fields of a task or note. Pass updated_at to have the server reject
the change when the entity was modified after that time.`,
		Example: `  taskkeeper update task 12 completed=true
  taskkeeper update note local-0190... title="Renamed"`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			entityType, err := parseEntityType(args[0])
			if err != nil {
				return err
			}
			fields, err := parseFields(args[2:], rawJSON)
			if err != nil {
				return err
			}
			if len(fields) == 0 {
				return fmt.Errorf("nothing to update: pass field=value arguments or --json")
			}

			return e.withApp(cmd, func(ctx context.Context, app *App) error {
				res, err := app.Service.Update(ctx, entityType, args[1], fields)
				if err != nil {
					return err
				}
				return printWrite(cmd.OutOrStdout(), "Updated", entityType, args[1], res)
			})
		},
	}
	cmd.Flags().StringVar(&rawJSON, "json", "", "fields as a JSON object")
	return cmd
}

func newDeleteCommand(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <task|note> <id>",
		Short: "Delete a task or note",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			entityType, err := parseEntityType(args[0])
			if err != nil {
				return err
			}

			return e.withApp(cmd, func(ctx context.Context, app *App) error {
				res, err := app.Service.Delete(ctx, entityType, args[1])
				if err != nil {
					return err
				}
				return printWrite(cmd.OutOrStdout(), "Deleted", entityType, args[1], res)
			})
		},
	}
}

func newEnqueueCommand(e *env) *cobra.Command {
	var rawJSON string

	cmd := &cobra.Command{
		Use:   "enqueue <entity-type> <create|update|delete> [field=value ...]",
		Short: "Queue a raw mutation without contacting the server",
		Long: `Queue a mutation as is. The entity type is not checked, so mutations for
types without a sync handler stay pending until one is available.`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			action := models.Action(strings.ToLower(args[1]))
			if !action.Valid() {
				return fmt.Errorf("unknown action %q: use create, update or delete", args[1])
			}
			payload, err := parseFields(args[2:], rawJSON)
			if err != nil {
				return err
			}

			return e.withApp(cmd, func(ctx context.Context, app *App) error {
				id, err := app.Service.Enqueue(ctx, models.EntityType(args[0]), payload, action)
				if err != nil {
					return err
				}
				_, err = fmt.Fprintf(cmd.OutOrStdout(), "Queued %s %s as record %s\n", action, args[0], id)
				return err
			})
		},
	}
	cmd.Flags().StringVar(&rawJSON, "json", "", "payload as a JSON object")
	return cmd
}

func printWrite(w io.Writer, verb string, entityType models.EntityType, entityID string, res *offline.WriteResult) error {
	if !res.Queued {
		if entityID == "" {
			_, err := fmt.Fprintf(w, "%s %s\n", verb, entityType)
			return err
		}
		_, err := fmt.Fprintf(w, "%s %s %s\n", verb, entityType, entityID)
		return err
	}

	if res.Offline {
		_, err := fmt.Fprintf(w, "%s %s %s offline (record %s). It will sync when the connection returns.\n",
			verb, entityType, entityID, res.RecordID)
		return err
	}

	// связь есть, но сервер не принял запись или перед ней остались неотправленные
	_, err := fmt.Fprintf(w, "%s %s %s queued (record %s). Run \"sync\" to send it.\n",
		verb, entityType, entityID, res.RecordID)
	return err
}
