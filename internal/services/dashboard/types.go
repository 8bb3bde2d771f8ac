package dashboard

import (
	"context"
	"time"

	"claygrounds-desktop/internal/api"
)

// Job names one refresh schedule
type Job string

const (
	JobStats  Job = "stats"
	JobHealth Job = "health"
	JobVenues Job = "venues"
)

// Jobs in refresh order
var Jobs = []Job{JobStats, JobHealth, JobVenues}

// Source is the partner API surface the dashboard reads
type Source interface {
	GetStats(ctx context.Context) (*api.Stats, error)
	GetHealth(ctx context.Context) (*api.Health, error)
	GetVenueHealth(ctx context.Context) (*api.VenueHealth, error)
}

// Reading is the latest value of one job together with its error
type Reading[T any] struct {
	Value     *T        `json:"value,omitempty"`
	Error     string    `json:"error,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
	Loading   bool      `json:"loading"`
}

// Snapshot is everything the dashboard shows
type Snapshot struct {
	Stats  Reading[api.Stats]       `json:"stats"`
	Health Reading[api.Health]      `json:"health"`
	Venues Reading[api.VenueHealth] `json:"venues"`
}

// JobInfo describes a scheduled refresh
type JobInfo struct {
	Job     Job        `json:"job"`
	Every   string     `json:"every"`
	LastRun *time.Time `json:"last_run,omitempty"`
	NextRun *time.Time `json:"next_run,omitempty"`
}
