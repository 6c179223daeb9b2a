package processing

import (
	"time"

	"github.com/zombor/receipt-capture/internal/tracking"
)

// State is the monitor state of one tracking episode
type State string

const (
	StateTracking  State = "tracking"
	StateTimedOut  State = "timed-out"
	StateSucceeded State = "succeeded"
	StateFailed    State = "failed"
)

// Terminal reports whether no further progress happens without a retry
func (s State) Terminal() bool {
	return s == StateSucceeded || s == StateFailed
}

// Snapshot is a copy of the episode state for display
type Snapshot struct {
	Handle     tracking.TrackingHandle
	Episode    int
	State      State
	StageIndex int
	Stage      string
	Elapsed    time.Duration
	TimedOut   bool
	ResultID   string
	Reason     string
}

type signal int

const (
	signalNone signal = iota
	signalProgress
	signalTimeout
	signalSuccess
	signalFailure
)

// episode is the state of one Tracking run. It has no clock of its own: the
// monitor feeds it stage ticks, elapsed ticks and resolutions, and every
// method is a no-op once the episode is terminal.
type episode struct {
	cfg        Config
	handle     tracking.TrackingHandle
	state      State
	stageIndex int
	elapsed    time.Duration
	timedOut   bool
	resultID   string
	reason     string
}

func newEpisode(cfg Config, h tracking.TrackingHandle) *episode {
	return &episode{
		cfg:    cfg,
		handle: h,
		state:  StateTracking,
	}
}

// advanceStage moves the indicator one phase, capped at the last
func (e *episode) advanceStage() signal {
	if e.state != StateTracking || e.stageIndex >= len(e.cfg.Stages)-1 {
		return signalNone
	}
	e.stageIndex++
	return signalProgress
}

// tick adds one elapsed interval and checks the timeout ceiling
func (e *episode) tick() signal {
	if e.state != StateTracking {
		return signalNone
	}
	e.elapsed += e.cfg.TickInterval
	if e.elapsed >= e.cfg.Timeout {
		e.state = StateTimedOut
		e.timedOut = true
		return signalTimeout
	}
	return signalProgress
}

// resolve applies an authoritative status. Pending is ignored whatever the
// elapsed time; a late result after a timeout is still honoured.
func (e *episode) resolve(res tracking.Resolution) signal {
	if e.state.Terminal() {
		return signalNone
	}
	switch res.Status {
	case tracking.StatusSucceeded:
		e.state = StateSucceeded
		e.resultID = res.ResultID
		return signalSuccess
	case tracking.StatusFailed:
		e.state = StateFailed
		e.reason = res.Reason
		if e.reason == "" {
			e.reason = "processing failed"
		}
		return signalFailure
	}
	return signalNone
}

func (e *episode) snapshot(n int) Snapshot {
	return Snapshot{
		Handle:     e.handle,
		Episode:    n,
		State:      e.state,
		StageIndex: e.stageIndex,
		Stage:      e.cfg.Stages[e.stageIndex],
		Elapsed:    e.elapsed,
		TimedOut:   e.timedOut,
		ResultID:   e.resultID,
		Reason:     e.reason,
	}
}
