package cli

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"
)

func newVersionCommand(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		// Конфигурация для вывода версии не нужна
		PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "taskkeeper %s\nBuild date: %s\nCommit: %s\nGo: %s\n",
				e.info.Version, e.info.BuildDate, e.info.GitCommit, runtime.Version())
			return err
		},
	}
}
