package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/template"

	"github.com/spf13/cobra"

	"github.com/iudanet/taskkeeper/internal/models"
)

// recordTemplate renders a single queued mutation.
const recordTemplate = `=== Queued Mutation ===

Record:    {{.ID}}
Entity:    {{.EntityType}} {{.EntityID}}
Action:    {{.Action}}
Status:    {{.SyncStatus}}
Retries:   {{.RetryCount}}
Queued at: {{.CreatedAt.Format "2006-01-02 15:04:05"}}
{{- if .LastError}}
Error:     {{deref .LastError}}
{{- end}}

Payload:
{{payload .Payload}}
`

var recordTmpl = template.Must(template.New("record").Funcs(template.FuncMap{
	"deref": func(s *string) string {
		if s == nil {
			return ""
		}
		return *s
	},
	"payload": formatPayload,
}).Parse(recordTemplate))

func formatPayload(p models.Payload) string {
	if len(p) == 0 {
		return "  (empty)"
	}
	data, err := json.MarshalIndent(p, "  ", "  ")
	if err != nil {
		return "  " + err.Error()
	}
	return "  " + strings.TrimSpace(string(data))
}

func renderRecord(w io.Writer, r *models.MutationRecord) error {
	view := struct {
		*models.MutationRecord
		EntityID string
	}{r, r.EntityID()}

	if err := recordTmpl.Execute(w, view); err != nil {
		return fmt.Errorf("failed to render record: %w", err)
	}
	return nil
}

func newShowCommand(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "show <record-id>",
		Short: "Show a queued mutation in detail",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return e.withApp(cmd, func(_ context.Context, app *App) error {
				record, ok := app.Queue.Get(args[0])
				if !ok {
					return fmt.Errorf("no queued mutation with id %s", args[0])
				}
				return renderRecord(cmd.OutOrStdout(), record)
			})
		},
	}
}
