// Package cli implements the taskkeeper client commands.
package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/iudanet/taskkeeper/internal/client/iocli"
	"github.com/iudanet/taskkeeper/internal/config"
	"github.com/iudanet/taskkeeper/internal/logging"
)

// VersionInfo is stamped into the binary at build time.
type VersionInfo struct {
	Version   string
	BuildDate string
	GitCommit string
}

// env holds state shared by the commands of one invocation.
type env struct {
	v         *viper.Viper
	prompter  iocli.Prompter
	cfg       *config.Config
	logger    *slog.Logger
	logCloser io.Closer
	info      VersionInfo

	configFile string
	offline    bool
}

// NewRootCommand builds the client command tree. Each call gets its own viper
// instance, so commands can be executed repeatedly in one process.
func NewRootCommand(info VersionInfo, prompter iocli.Prompter) *cobra.Command {
	e := &env{
		v:        viper.New(),
		prompter: prompter,
		info:     info,
	}

	root := &cobra.Command{
		Use:   "taskkeeper",
		Short: "Offline-first client for the taskkeeper task and note service",
		Long: `taskkeeper queues task and note changes while the server is unreachable
and replays them in order once the connection returns.

Configuration is read from taskkeeper.yaml, TASKKEEPER_* environment variables
and the flags below, in increasing priority.`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: e.setup,
		PersistentPostRunE: func(*cobra.Command, []string) error {
			if e.logCloser != nil {
				return e.logCloser.Close()
			}
			return nil
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&e.configFile, "config", "", "config file (default ./taskkeeper.yaml or ~/.taskkeeper/taskkeeper.yaml)")
	flags.String("api-url", "", "server base URL")
	flags.String("storage", "", "queue backend: bolt, redis or memory")
	flags.String("log-level", "", "log level: debug, info, warn or error")
	flags.BoolVar(&e.offline, "offline", false, "work offline regardless of connectivity")

	_ = e.v.BindPFlag("api.url", flags.Lookup("api-url"))
	_ = e.v.BindPFlag("storage.backend", flags.Lookup("storage"))
	_ = e.v.BindPFlag("log.level", flags.Lookup("log-level"))

	root.AddCommand(
		newCreateCommand(e),
		newUpdateCommand(e),
		newDeleteCommand(e),
		newEnqueueCommand(e),
		newStatusCommand(e),
		newShowCommand(e),
		newSyncCommand(e),
		newRetryCommand(e),
		newResolveCommand(e),
		newDiscardCommand(e),
		newClearCommand(e),
		newRestoreCommand(e),
		newDaemonCommand(e),
		newVersionCommand(e),
	)
	return root
}

func (e *env) setup(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(e.v, e.configFile)
	if err != nil {
		return err
	}

	logger, closer, err := logging.New(logging.Options{
		Output:     cmd.ErrOrStderr(),
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
	})
	if err != nil {
		return fmt.Errorf("failed to set up logging: %w", err)
	}

	e.cfg = cfg
	e.logger = logger
	e.logCloser = closer
	return nil
}

// withApp assembles the client, runs fn and closes the client again.
func (e *env) withApp(cmd *cobra.Command, fn func(ctx context.Context, app *App) error) (err error) {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	app, err := NewApp(ctx, e.cfg, e.logger, AppOptions{
		Prompter:     e.prompter,
		ForceOffline: e.offline,
	})
	if err != nil {
		return err
	}
	defer func() {
		if cerr := app.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	return fn(ctx, app)
}
