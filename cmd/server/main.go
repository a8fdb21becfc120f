package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/iudanet/taskkeeper/internal/config"
	"github.com/iudanet/taskkeeper/internal/logging"
	"github.com/iudanet/taskkeeper/internal/metrics"
	"github.com/iudanet/taskkeeper/internal/server"
	"github.com/iudanet/taskkeeper/internal/server/jwt"
	"github.com/iudanet/taskkeeper/internal/server/middleware"
	"github.com/iudanet/taskkeeper/internal/server/storage/sqlite"
)

var (
	// Version information set via ldflags during build
	Version   = "dev"
	BuildDate = "unknown"
	GitCommit = "unknown"
)

const shutdownTimeout = 10 * time.Second

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		stop()
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	v := viper.New()
	var configFile string

	root := &cobra.Command{
		Use:           "taskkeeper-server",
		Short:         "Task and note REST API for taskkeeper clients",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	flags := root.PersistentFlags()
	flags.StringVar(&configFile, "config", "", "config file (default ./taskkeeper.yaml)")
	flags.String("listen", "", "address to listen on")
	flags.String("db", "", "path to the SQLite database")
	flags.String("log-level", "", "log level: debug, info, warn or error")
	_ = v.BindPFlag("server.listen", flags.Lookup("listen"))
	_ = v.BindPFlag("server.db_path", flags.Lookup("db"))
	_ = v.BindPFlag("log.level", flags.Lookup("log-level"))

	load := func(cmd *cobra.Command) (*config.Config, *slog.Logger, func(), error) {
		cfg, err := config.Load(v, configFile)
		if err != nil {
			return nil, nil, nil, err
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
			return nil, nil, nil, err
		}
		return cfg, logger, func() { _ = closer.Close() }, nil
	}

	root.AddCommand(
		&cobra.Command{
			Use:   "serve",
			Short: "Run the HTTP API",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				cfg, logger, closeLog, err := load(cmd)
				if err != nil {
					return err
				}
				defer closeLog()
				return serve(cmd.Context(), cfg.Server, logger)
			},
		},
		newTokenCommand(load),
		&cobra.Command{
			Use:   "version",
			Short: "Print version information",
			Args:  cobra.NoArgs,
			Run: func(cmd *cobra.Command, _ []string) {
				fmt.Fprintf(cmd.OutOrStdout(), "taskkeeper-server %s\nBuild date: %s\nCommit: %s\nGo: %s\n",
					Version, BuildDate, GitCommit, runtime.Version())
			},
		},
	)
	return root
}

func newTokenCommand(load func(*cobra.Command) (*config.Config, *slog.Logger, func(), error)) *cobra.Command {
	var ttl time.Duration

	cmd := &cobra.Command{
		Use:   "token <subject>",
		Short: "Issue an API token signed with server.jwt_secret",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, closeLog, err := load(cmd)
			if err != nil {
				return err
			}
			defer closeLog()

			if ttl == 0 {
				ttl = cfg.Server.TokenTTL
			}
			token, expires, err := jwt.NewService(cfg.Server.JWTSecret, ttl).Issue(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			fmt.Fprintf(cmd.ErrOrStderr(), "Expires at %s\n", expires.Format(time.RFC3339))
			return nil
		},
	}
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "token lifetime (default server.token_ttl)")
	return cmd
}

func serve(ctx context.Context, cfg config.ServerConfig, logger *slog.Logger) error {
	st, err := sqlite.New(ctx, cfg.DBPath)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer func() {
		if err := st.Close(); err != nil {
			logger.Error("Failed to close database", "error", err)
		}
	}()

	var tokens middleware.TokenValidator
	if cfg.JWTSecret != "" {
		tokens = jwt.NewService(cfg.JWTSecret, cfg.TokenTTL)
	}

	metrics.Register()

	srv, err := server.New(st, tokens, server.Options{
		Listen:         cfg.Listen,
		Version:        Version,
		RateLimitRPS:   cfg.RateLimitRPS,
		RateLimitBurst: cfg.RateLimitBurst,
		AuthRequired:   cfg.AuthRequired,
	}, logger)
	if err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Server starting", "address", cfg.Listen, "db", cfg.DBPath, "version", Version, "auth_required", cfg.AuthRequired)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("Shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("shutdown failed: %w", err)
	}
	logger.Info("Server stopped")
	return nil
}
