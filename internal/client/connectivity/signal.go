package connectivity

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// Signal is a platform source of online/offline events.
type Signal interface {
	// Offline reports the current platform state.
	Offline() bool
	// Changes delivers the new state (true means offline) on every transition.
	Changes() <-chan bool
}

// ManualSignal is toggled programmatically. It starts online.
type ManualSignal struct {
	changes chan bool
	mu      sync.Mutex
	offline bool
}

// NewManualSignal returns a signal in the given initial state.
func NewManualSignal(offline bool) *ManualSignal {
	return &ManualSignal{
		offline: offline,
		changes: make(chan bool, 1),
	}
}

// Offline reports the current state.
func (s *ManualSignal) Offline() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.offline
}

// Changes returns the event channel.
func (s *ManualSignal) Changes() <-chan bool {
	return s.changes
}

// SetOffline changes the state. Only the latest undelivered state is kept.
func (s *ManualSignal) SetOffline(offline bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.offline == offline {
		return
	}
	s.offline = offline

	select {
	case <-s.changes:
	default:
	}
	s.changes <- offline
}

// FileSignal reports the platform offline while a marker file exists.
// Creating the file (e.g. `touch ~/.taskkeeper/offline`) forces offline mode.
type FileSignal struct {
	watcher *fsnotify.Watcher
	logger  *slog.Logger
	changes chan bool
	done    chan struct{}
	path    string
	mu      sync.Mutex
	offline bool
}

// NewFileSignal watches the directory containing path. The directory is created if missing.
func NewFileSignal(path string, logger *slog.Logger) (*FileSignal, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve marker path: %w", err)
	}

	dir := filepath.Dir(abs)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create marker directory: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}
	if err := watcher.Add(dir); err != nil {
		_ = watcher.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", dir, err)
	}

	s := &FileSignal{
		watcher: watcher,
		logger:  logger,
		changes: make(chan bool, 1),
		done:    make(chan struct{}),
		path:    abs,
		offline: markerExists(abs),
	}
	go s.loop()

	return s, nil
}

// Offline reports whether the marker file exists.
func (s *FileSignal) Offline() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.offline
}

// Changes returns the event channel.
func (s *FileSignal) Changes() <-chan bool {
	return s.changes
}

// Path returns the watched marker file.
func (s *FileSignal) Path() string {
	return s.path
}

// Close stops watching.
func (s *FileSignal) Close() error {
	err := s.watcher.Close()
	<-s.done
	return err
}

func (s *FileSignal) loop() {
	defer close(s.done)

	for {
		select {
		case event, ok := <-s.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != s.path {
				continue
			}
			s.update(markerExists(s.path))
		case err, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
			s.logger.Warn("Offline marker watch error", "error", err)
		}
	}
}

func (s *FileSignal) update(offline bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.offline == offline {
		return
	}
	s.offline = offline
	s.logger.Debug("Offline marker changed", "path", s.path, "offline", offline)

	select {
	case <-s.changes:
	default:
	}
	s.changes <- offline
}

func markerExists(path string) bool {
	_, err := os.Stat(path)
	return !errors.Is(err, os.ErrNotExist)
}
