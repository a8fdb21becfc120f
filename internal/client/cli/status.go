package cli

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/iudanet/taskkeeper/internal/client/status"
)

func newStatusCommand(e *env) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show connectivity, queued mutations and conflicts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			switch output {
			case "text", "json", "yaml":
			default:
				return fmt.Errorf("unknown output format %q: use text, json or yaml", output)
			}

			return e.withApp(cmd, func(ctx context.Context, app *App) error {
				if !e.offline {
					app.Monitor.Probe(ctx)
				}
				st := app.Service.GetSyncStatus()

				w := cmd.OutOrStdout()
				switch output {
				case "json":
					enc := json.NewEncoder(w)
					enc.SetIndent("", "  ")
					return enc.Encode(st)
				case "yaml":
					enc := yaml.NewEncoder(w)
					enc.SetIndent(2)
					if err := enc.Encode(st); err != nil {
						return err
					}
					return enc.Close()
				}
				return status.WriteText(w, st)
			})
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "text", "output format: text, json or yaml")
	return cmd
}
