package processing

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/zombor/receipt-capture/internal/tracking"
)

// ResolutionSource reports the authoritative status of a remote job
type ResolutionSource interface {
	Resolve(ctx context.Context, h tracking.TrackingHandle) (tracking.Resolution, error)
}

// Reprocessor re-issues the processing request for a job. It may return the
// same handle or a freshly issued one.
type Reprocessor interface {
	Reprocess(ctx context.Context, h tracking.TrackingHandle) (tracking.TrackingHandle, error)
}

// Callbacks receive the monitor signals. Any of them may be nil.
// They run on the monitor goroutine, or on the caller's goroutine for
// Deliver, and must not block.
type Callbacks struct {
	OnSuccess  func(resultID string)
	OnError    func(err error)
	OnTimeout  func()
	OnProgress func(Snapshot)
}

// Monitor tracks one remote job. Each Start or Retry begins an episode during
// which a stage indicator and an elapsed counter run on independent tickers
// while the resolution source is polled. Exactly one of OnSuccess or OnError
// fires per episode and OnTimeout fires at most once.
type Monitor struct {
	cfg         Config
	clock       clock.Clock
	source      ResolutionSource
	reprocessor Reprocessor
	callbacks   Callbacks
	logger      *slog.Logger

	mu      sync.Mutex
	parent  context.Context
	ep      *episode
	epNum   int
	cancel  context.CancelFunc
	done     chan struct{}
	stopped  bool
	retrying bool
}

// NewMonitor creates a Monitor on the wall clock
func NewMonitor(cfg Config, source ResolutionSource, reprocessor Reprocessor, cb Callbacks) *Monitor {
	return NewMonitorWithClock(cfg, clock.New(), source, reprocessor, cb)
}

// NewMonitorWithClock creates a Monitor with a custom clock for testing
func NewMonitorWithClock(cfg Config, clk clock.Clock, source ResolutionSource, reprocessor Reprocessor, cb Callbacks) *Monitor {
	return &Monitor{
		cfg:         cfg,
		clock:       clk,
		source:      source,
		reprocessor: reprocessor,
		callbacks:   cb,
		logger:      slog.Default(),
	}
}

// SetLogger replaces the monitor logger
func (m *Monitor) SetLogger(l *slog.Logger) {
	m.logger = l
}

// Start begins the first tracking episode for a handle
func (m *Monitor) Start(ctx context.Context, h tracking.TrackingHandle) error {
	if err := m.cfg.Validate(); err != nil {
		return fmt.Errorf("invalid monitor config: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ep != nil || m.stopped {
		return ErrAlreadyStarted
	}
	m.parent = ctx
	m.beginLocked(h)
	return nil
}

// Snapshot returns the current episode state
func (m *Monitor) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ep == nil {
		return Snapshot{}
	}
	return m.ep.snapshot(m.epNum)
}

// Done is closed when the current episode's loop has exited
func (m *Monitor) Done() <-chan struct{} {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.done == nil {
		closed := make(chan struct{})
		close(closed)
		return closed
	}
	return m.done
}

// Deliver applies a pushed resolution to the current episode. Resolutions for
// other handles are ignored.
func (m *Monitor) Deliver(res tracking.Resolution) {
	m.mu.Lock()
	if m.ep == nil || m.stopped || res.Handle != m.ep.handle {
		m.mu.Unlock()
		return
	}
	n := m.epNum
	m.mu.Unlock()
	m.apply(n, func(e *episode) signal { return e.resolve(res) })
}

// Retry starts a new episode after a failure or a timeout. The processing
// request is re-issued first; if that fails the current episode is left as it
// was and an ErrRetryFailed error is returned. ctx bounds the re-issue only;
// the new episode lives as long as the context given to Start.
func (m *Monitor) Retry(ctx context.Context) error {
	m.mu.Lock()
	if m.ep == nil || m.stopped {
		m.mu.Unlock()
		return fmt.Errorf("%w: monitor not running", ErrRetryNotAllowed)
	}
	if state := m.ep.state; state != StateFailed && state != StateTimedOut {
		m.mu.Unlock()
		return fmt.Errorf("%w: episode is %s", ErrRetryNotAllowed, state)
	}
	if m.retrying {
		m.mu.Unlock()
		return fmt.Errorf("%w: retry already in progress", ErrRetryNotAllowed)
	}
	m.retrying = true
	h, n := m.ep.handle, m.epNum
	m.mu.Unlock()

	next := h
	var err error
	if m.reprocessor != nil {
		next, err = m.reprocessor.Reprocess(ctx, h)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.retrying = false
	if err != nil {
		m.logger.Error("Failed to retry processing", "tracking_id", h, "error", err)
		return fmt.Errorf("%w: %w", ErrRetryFailed, err)
	}
	if m.stopped || m.epNum != n {
		return fmt.Errorf("%w: episode changed during retry", ErrRetryNotAllowed)
	}
	// A late resolution may have ended the old episode while reprocessing;
	// the new episode supersedes it either way.
	m.cancel()
	m.beginLocked(next)
	m.logger.Info("Retrying receipt processing", "tracking_id", next, "episode", m.epNum)
	return nil
}

// Stop tears down the timers and drops pending polls. It does not cancel the
// remote job.
func (m *Monitor) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stopped {
		return
	}
	m.stopped = true
	if m.cancel != nil {
		m.cancel()
	}
}

func (m *Monitor) beginLocked(h tracking.TrackingHandle) {
	ctx, cancel := context.WithCancel(m.parent)
	m.epNum++
	m.ep = newEpisode(m.cfg, h)
	m.cancel = cancel
	m.done = make(chan struct{})

	// Tickers exist before the loop runs so no tick is lost.
	stageT := m.clock.Ticker(m.cfg.StageInterval)
	tickT := m.clock.Ticker(m.cfg.TickInterval)
	var pollT *clock.Ticker
	if m.source != nil && m.cfg.PollInterval > 0 {
		pollT = m.clock.Ticker(m.cfg.PollInterval)
	}

	go m.run(ctx, cancel, m.epNum, h, stageT, tickT, pollT, m.done)
}

type pollResult struct {
	res tracking.Resolution
	err error
}

func (m *Monitor) run(ctx context.Context, cancel context.CancelFunc, n int, h tracking.TrackingHandle, stageT, tickT, pollT *clock.Ticker, done chan struct{}) {
	defer close(done)
	defer cancel()
	defer stageT.Stop()
	defer tickT.Stop()

	var pollC <-chan time.Time
	if pollT != nil {
		defer pollT.Stop()
		pollC = pollT.C
	}

	results := make(chan pollResult, 1)
	polling := false
	poll := func() {
		if m.source == nil || polling {
			return
		}
		polling = true
		go func() {
			res, err := m.source.Resolve(ctx, h)
			select {
			case results <- pollResult{res: res, err: err}:
			case <-ctx.Done():
			}
		}()
	}
	poll()

	for {
		var terminal bool
		select {
		case <-ctx.Done():
			return
		case <-stageT.C:
			terminal = m.apply(n, (*episode).advanceStage)
		case <-tickT.C:
			terminal = m.apply(n, (*episode).tick)
		case <-pollC:
			poll()
		case r := <-results:
			polling = false
			if r.err != nil {
				if ctx.Err() != nil {
					return
				}
				m.logger.Warn("Failed to poll processing status", "tracking_id", h, "error", r.err)
				continue
			}
			if r.res.Handle == "" {
				r.res.Handle = h
			}
			terminal = m.apply(n, func(e *episode) signal { return e.resolve(r.res) })
		}
		if terminal {
			return
		}
	}
}

// apply mutates episode n under the lock and fires the resulting signal
// outside it. Stale episodes are left untouched. It reports whether the
// episode is terminal.
func (m *Monitor) apply(n int, fn func(*episode) signal) bool {
	m.mu.Lock()
	if m.epNum != n || m.ep == nil || m.stopped {
		m.mu.Unlock()
		return true
	}
	sig := fn(m.ep)
	snap := m.ep.snapshot(n)
	terminal := m.ep.state.Terminal()
	if terminal {
		// Both timers stop with the episode.
		m.cancel()
	}
	m.mu.Unlock()

	m.fire(sig, snap)
	return terminal
}

func (m *Monitor) fire(sig signal, snap Snapshot) {
	cb := m.callbacks
	if sig != signalNone && cb.OnProgress != nil {
		cb.OnProgress(snap)
	}

	switch sig {
	case signalTimeout:
		m.logger.Warn("Receipt processing timed out", "tracking_id", snap.Handle, "elapsed", snap.Elapsed)
		if cb.OnTimeout != nil {
			cb.OnTimeout()
		}
	case signalSuccess:
		m.logger.Info("Receipt processed", "tracking_id", snap.Handle, "result_id", snap.ResultID, "elapsed", snap.Elapsed)
		if cb.OnSuccess != nil {
			cb.OnSuccess(snap.ResultID)
		}
	case signalFailure:
		m.logger.Error("Receipt processing failed", "tracking_id", snap.Handle, "reason", snap.Reason)
		if cb.OnError != nil {
			cb.OnError(&FailureError{Handle: snap.Handle, Reason: snap.Reason})
		}
	}
}
