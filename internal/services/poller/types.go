package poller

import (
	"context"
	"errors"
	"time"

	"claygrounds-desktop/internal/config"
	"claygrounds-desktop/internal/models"
)

// ErrPollExhausted is published, wrapping the last fetch error, when fetches
// have kept failing for longer than Config.MaxErrorElapsed
var ErrPollExhausted = errors.New("progress polling exhausted")

// Fetcher retrieves the progress resource of an operation
type Fetcher interface {
	GetProgress(ctx context.Context, operationID string) (*models.Snapshot, error)
}

// Config controls poll cadence
type Config struct {
	RunningInterval  time.Duration // between polls while the operation runs
	IdleInterval     time.Duration // between polls while pending
	ErrorInterval    time.Duration // first delay after a failed fetch, doubled per failure
	MaxErrorInterval time.Duration
	MaxErrorElapsed  time.Duration // 0 retries forever
}

// ConfigFrom maps application configuration onto the poller
func ConfigFrom(c config.PollingConfig) Config {
	return Config{
		RunningInterval:  c.RunningInterval,
		IdleInterval:     c.IdleInterval,
		ErrorInterval:    c.ErrorInterval,
		MaxErrorInterval: c.MaxErrorInterval,
		MaxErrorElapsed:  c.MaxErrorElapsed,
	}
}

// Update is published after every poll of the tracked operation
type Update struct {
	OperationID string
	// Snapshot is the latest successful poll result, kept across failures
	Snapshot *models.Snapshot
	// Err is the transient fetch error of this tick, nil once a fetch succeeds
	Err error
	// Terminal is set on the final update of a loop that saw a terminal status
	Terminal bool
	// Exhausted is set when Err wraps ErrPollExhausted and polling stopped
	Exhausted bool
}

// Fresh reports whether this update carries a new snapshot
func (u Update) Fresh() bool {
	return u.Err == nil && u.Snapshot != nil
}
