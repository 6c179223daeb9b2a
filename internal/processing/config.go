package processing

import (
	"errors"
	"time"
)

// DefaultStages are the progress phases shown while a receipt is processed
var DefaultStages = []string{
	"Uploading receipt",
	"Reading receipt",
	"Extracting details",
	"Checking amounts",
	"Saving to archive",
}

// Config holds the monitor cadences and the timeout ceiling
type Config struct {
	// Stages is the ordered list of simulated progress phases
	Stages []string
	// StageInterval is how often the stage indicator advances
	StageInterval time.Duration
	// TickInterval is how often the elapsed counter increments
	TickInterval time.Duration
	// Timeout is the elapsed time at which the episode is reported as timed out
	Timeout time.Duration
	// PollInterval is how often the resolution source is asked for the job status
	PollInterval time.Duration
}

// DefaultConfig returns 5 stages advancing every 3s, a 1s clock, a 60s timeout and a 2s poll
func DefaultConfig() Config {
	return Config{
		Stages:        DefaultStages,
		StageInterval: 3 * time.Second,
		TickInterval:  time.Second,
		Timeout:       60 * time.Second,
		PollInterval:  2 * time.Second,
	}
}

// Validate checks the config is usable
func (c Config) Validate() error {
	switch {
	case len(c.Stages) == 0:
		return errors.New("at least one stage is required")
	case c.StageInterval <= 0:
		return errors.New("stage interval must be positive")
	case c.TickInterval <= 0:
		return errors.New("tick interval must be positive")
	case c.Timeout <= 0:
		return errors.New("timeout must be positive")
	case c.PollInterval < 0:
		return errors.New("poll interval must not be negative")
	}
	return nil
}
