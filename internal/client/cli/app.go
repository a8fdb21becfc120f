package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/iudanet/taskkeeper/internal/client/api"
	"github.com/iudanet/taskkeeper/internal/client/connectivity"
	"github.com/iudanet/taskkeeper/internal/client/iocli"
	"github.com/iudanet/taskkeeper/internal/client/offline"
	"github.com/iudanet/taskkeeper/internal/client/queue"
	"github.com/iudanet/taskkeeper/internal/client/storage"
	"github.com/iudanet/taskkeeper/internal/client/storage/boltdb"
	"github.com/iudanet/taskkeeper/internal/client/storage/memstore"
	"github.com/iudanet/taskkeeper/internal/client/storage/redisstore"
	"github.com/iudanet/taskkeeper/internal/client/sync"
	"github.com/iudanet/taskkeeper/internal/config"
	"github.com/iudanet/taskkeeper/internal/metrics"
)

// promptPassphrase in storage.passphrase asks for the passphrase interactively
const promptPassphrase = "-"

// AppOptions tune how the client is assembled for one command run.
type AppOptions struct {
	Prompter     iocli.Prompter
	ForceOffline bool // ForceOffline работать офлайн независимо от сети
}

// App is the assembled offline client.
type App struct {
	Service *offline.Service
	Monitor *connectivity.Monitor
	Queue   *queue.Queue
	Engine  *sync.Engine
	Client  *api.Client
	logger  *slog.Logger
	closers []io.Closer
}

// NewApp opens the queue store, loads the queue and wires connectivity, the sync
// engine and the offline service.
func NewApp(ctx context.Context, cfg *config.Config, logger *slog.Logger, opts AppOptions) (*App, error) {
	app := &App{logger: logger}

	store, closer, err := openQueueStore(ctx, cfg.Storage, opts.Prompter)
	if err != nil {
		return nil, err
	}
	app.addCloser(closer)

	signal, err := newSignal(cfg.Sync, opts.ForceOffline, logger)
	if err != nil {
		_ = app.Close()
		return nil, err
	}
	if c, ok := signal.(io.Closer); ok {
		app.addCloser(c)
	}

	clientOpts := []api.Option{
		api.WithTimeout(cfg.API.Timeout),
		api.WithProbeTimeout(cfg.API.ProbeTimeout),
	}
	if cfg.API.Token != "" {
		clientOpts = append(clientOpts, api.WithToken(cfg.API.Token))
	}
	app.Client = api.NewClient(cfg.API.URL, clientOpts...)

	app.Monitor = connectivity.NewMonitor(signal, logger,
		connectivity.WithPinger(app.Client),
		connectivity.WithSettleDelay(cfg.Sync.SettleDelay),
		connectivity.WithProbeTimeout(cfg.API.ProbeTimeout),
		connectivity.WithProbeCacheTTL(cfg.Sync.ProbeCacheTTL),
		connectivity.WithProbeInterval(cfg.Sync.ProbeInterval),
	)

	recorder := metrics.SyncRecorder{}
	app.Queue = queue.New(store, logger, queue.WithSaveHook(recorder.SetPending))
	loaded := app.Queue.Load(ctx)
	recorder.SetPending(app.Queue.PendingCount())
	logger.Debug("Offline queue loaded", "records", loaded, "backend", cfg.Storage.Backend)

	app.Engine = sync.NewEngine(app.Queue, sync.DefaultRegistry(app.Client), app.Monitor, sync.Config{
		MaxRetries:    cfg.Sync.MaxRetries,
		BaseDelay:     cfg.Sync.BaseDelay,
		ConflictCheck: cfg.Sync.ConflictCheck,
	}, logger, sync.WithRecorder(recorder))

	app.Service = offline.NewService(app.Monitor, app.Queue, app.Engine, app.Client, logger)
	return app, nil
}

func (a *App) addCloser(c io.Closer) {
	if c != nil {
		a.closers = append(a.closers, c)
	}
}

// Close releases the queue store and the connectivity watcher.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

func openQueueStore(ctx context.Context, cfg config.StorageConfig, prompter iocli.Prompter) (storage.QueueStore, io.Closer, error) {
	switch cfg.Backend {
	case config.BackendBolt:
		if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o700); err != nil {
			return nil, nil, fmt.Errorf("failed to create data directory: %w", err)
		}

		var opts []boltdb.Option
		passphrase, err := resolvePassphrase(cfg.Passphrase, prompter)
		if err != nil {
			return nil, nil, err
		}
		if passphrase != "" {
			opts = append(opts, boltdb.WithPassphrase(passphrase))
		}

		store, err := boltdb.New(ctx, cfg.Path, opts...)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open queue database %s: %w", cfg.Path, err)
		}
		return store, store, nil

	case config.BackendRedis:
		client := redisstore.NewClient(redisstore.Config{
			Address:  cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			PoolSize: cfg.Redis.PoolSize,
		})
		store := redisstore.New(client, cfg.Redis.KeyPrefix)
		return store, store, nil

	case config.BackendMemory:
		return memstore.New(), nil, nil
	}

	return nil, nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
}

func resolvePassphrase(configured string, prompter iocli.Prompter) (string, error) {
	if configured != promptPassphrase {
		return configured, nil
	}
	if prompter == nil {
		return "", iocli.ErrNotInteractive
	}

	passphrase, err := prompter.ReadPassword("Queue passphrase: ")
	if err != nil {
		return "", fmt.Errorf("failed to read passphrase: %w", err)
	}
	if passphrase == "" {
		return "", errors.New("passphrase cannot be empty")
	}
	return passphrase, nil
}

func newSignal(cfg config.SyncConfig, forceOffline bool, logger *slog.Logger) (connectivity.Signal, error) {
	if forceOffline {
		return connectivity.NewManualSignal(true), nil
	}
	signal, err := connectivity.NewFileSignal(cfg.OfflineMarker, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to watch offline marker: %w", err)
	}
	return signal, nil
}
