// Package connectivity decides whether the client is offline. It combines a platform
// signal with an active reachability probe against the backend and notifies listeners
// when connectivity returns.
package connectivity

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

//go:generate moq -out pinger_mock.go . Pinger

// Pinger performs the backend reachability request.
type Pinger interface {
	Ping(ctx context.Context) error
}

const (
	DefaultSettleDelay   = 500 * time.Millisecond
	MaxSettleDelay       = time.Second
	DefaultProbeTimeout  = 3 * time.Second
	DefaultProbeCacheTTL = 5 * time.Second
)

// Monitor tracks connectivity. The zero probe interval disables periodic probing.
type Monitor struct {
	signal        Signal
	pinger        Pinger
	logger        *slog.Logger
	now           func() time.Time
	lastProbe     time.Time
	onOnline      []func(ctx context.Context)
	onStatus      []func(offline bool)
	settleDelay   time.Duration
	probeTimeout  time.Duration
	probeCacheTTL time.Duration
	probeInterval time.Duration
	wg            sync.WaitGroup
	mu            sync.Mutex
	probeFailed   bool
	lastOffline   bool
}

// Option configures a Monitor.
type Option func(*Monitor)

// WithPinger enables the active probe.
func WithPinger(p Pinger) Option {
	return func(m *Monitor) {
		m.pinger = p
	}
}

// WithSettleDelay sets the pause between an online event and the OnOnline callbacks.
// Values above MaxSettleDelay are clamped.
func WithSettleDelay(d time.Duration) Option {
	return func(m *Monitor) {
		if d > MaxSettleDelay {
			d = MaxSettleDelay
		}
		if d < 0 {
			d = 0
		}
		m.settleDelay = d
	}
}

// WithProbeTimeout bounds a single reachability request.
func WithProbeTimeout(d time.Duration) Option {
	return func(m *Monitor) {
		m.probeTimeout = d
	}
}

// WithProbeCacheTTL sets how long a probe result is reused.
func WithProbeCacheTTL(d time.Duration) Option {
	return func(m *Monitor) {
		m.probeCacheTTL = d
	}
}

// WithProbeInterval makes Run probe the backend periodically.
func WithProbeInterval(d time.Duration) Option {
	return func(m *Monitor) {
		m.probeInterval = d
	}
}

// WithClock overrides the time source used by the probe cache.
func WithClock(now func() time.Time) Option {
	return func(m *Monitor) {
		m.now = now
	}
}

// NewMonitor creates a monitor over signal.
func NewMonitor(signal Signal, logger *slog.Logger, opts ...Option) *Monitor {
	m := &Monitor{
		signal:        signal,
		logger:        logger,
		now:           time.Now,
		settleDelay:   DefaultSettleDelay,
		probeTimeout:  DefaultProbeTimeout,
		probeCacheTTL: DefaultProbeCacheTTL,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.lastOffline = m.IsOffline()
	return m
}

// OnOnline registers a callback run when connectivity returns.
// Callbacks run in their own goroutine and must tolerate overlapping invocations.
func (m *Monitor) OnOnline(fn func(ctx context.Context)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onOnline = append(m.onOnline, fn)
}

// OnStatusChange registers a callback for offline indicator changes.
func (m *Monitor) OnStatusChange(fn func(offline bool)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onStatus = append(m.onStatus, fn)
}

// IsOffline reports true when the platform is offline or the last probe failed.
func (m *Monitor) IsOffline() bool {
	if m.signal.Offline() {
		return true
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.probeFailed
}

// Probe checks backend reachability, reusing a result younger than the cache TTL.
// Without a pinger the platform state decides.
func (m *Monitor) Probe(ctx context.Context) bool {
	if m.pinger == nil {
		return !m.signal.Offline()
	}

	m.mu.Lock()
	if !m.lastProbe.IsZero() && m.now().Sub(m.lastProbe) < m.probeCacheTTL {
		ok := !m.probeFailed
		m.mu.Unlock()
		return ok
	}
	m.mu.Unlock()

	return m.probe(ctx)
}

// probe always performs the request and reports whether the backend answered.
func (m *Monitor) probe(ctx context.Context) bool {
	probeCtx, cancel := context.WithTimeout(ctx, m.probeTimeout)
	defer cancel()

	err := m.pinger.Ping(probeCtx)

	m.mu.Lock()
	m.lastProbe = m.now()
	m.probeFailed = err != nil
	m.mu.Unlock()

	if err != nil {
		m.logger.Debug("Backend probe failed", "error", err)
	}
	m.notifyStatus()
	return err == nil
}

// Run consumes platform events until ctx is done. After an online event and the
// settle delay, the backend is re-probed if the previous probe failed and the
// OnOnline callbacks fire if the client is online.
func (m *Monitor) Run(ctx context.Context) {
	defer m.wg.Wait()

	var ticker <-chan time.Time
	if m.pinger != nil && m.probeInterval > 0 {
		t := time.NewTicker(m.probeInterval)
		defer t.Stop()
		ticker = t.C
	}

	var settle *time.Timer
	var settleC <-chan time.Time
	stopSettle := func() {
		if settle != nil {
			settle.Stop()
			settle = nil
			settleC = nil
		}
	}
	defer stopSettle()

	changes := m.signal.Changes()
	for {
		select {
		case <-ctx.Done():
			return

		case offline, ok := <-changes:
			if !ok {
				changes = nil
				continue
			}
			m.notifyStatus()
			if offline {
				m.logger.Info("Connection lost, working offline")
				stopSettle()
				continue
			}
			m.logger.Info("Connection restored")
			stopSettle()
			settle = time.NewTimer(m.settleDelay)
			settleC = settle.C

		case <-settleC:
			settle = nil
			settleC = nil
			if m.signal.Offline() {
				continue
			}
			if m.pinger != nil && m.lastProbeFailed() && !m.probe(ctx) {
				continue
			}
			m.fireOnline(ctx)

		case <-ticker:
			if m.signal.Offline() {
				continue
			}
			wasFailed := m.lastProbeFailed()
			if m.probe(ctx) && wasFailed {
				m.logger.Info("Backend reachable again")
				m.fireOnline(ctx)
			}
		}
	}
}

func (m *Monitor) lastProbeFailed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.probeFailed
}

func (m *Monitor) fireOnline(ctx context.Context) {
	m.mu.Lock()
	callbacks := append([]func(context.Context){}, m.onOnline...)
	m.mu.Unlock()

	for _, fn := range callbacks {
		m.wg.Add(1)
		go func() {
			defer m.wg.Done()
			fn(ctx)
		}()
	}
}

// notifyStatus calls status listeners when the combined offline state changed.
func (m *Monitor) notifyStatus() {
	offline := m.IsOffline()

	m.mu.Lock()
	if offline == m.lastOffline {
		m.mu.Unlock()
		return
	}
	m.lastOffline = offline
	callbacks := append([]func(bool){}, m.onStatus...)
	m.mu.Unlock()

	for _, fn := range callbacks {
		fn(offline)
	}
}
