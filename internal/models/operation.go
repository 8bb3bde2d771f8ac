package models

import (
	"math"
	"time"
)

// OperationStatus is the lifecycle state of a server-side operation
type OperationStatus string

const (
	StatusPending   OperationStatus = "pending"
	StatusRunning   OperationStatus = "running"
	StatusCompleted OperationStatus = "completed"
	StatusFailed    OperationStatus = "failed"
	StatusTimeout   OperationStatus = "timeout"
)

// IsTerminal reports whether no further transitions can happen
func (s OperationStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusTimeout
}

// IsActive reports whether the operation is still in flight
func (s OperationStatus) IsActive() bool {
	return s == StatusPending || s == StatusRunning
}

// Valid reports whether s is one of the known statuses
func (s OperationStatus) Valid() bool {
	switch s {
	case StatusPending, StatusRunning, StatusCompleted, StatusFailed, StatusTimeout:
		return true
	}
	return false
}

func (s OperationStatus) rank() int {
	switch {
	case s.IsTerminal():
		return 2
	case s == StatusRunning:
		return 1
	default:
		return 0
	}
}

// CanTransition reports whether moving from s to next keeps the status
// progression forward-only. Terminal statuses are never left.
func (s OperationStatus) CanTransition(next OperationStatus) bool {
	if s == "" {
		return true
	}
	if s.IsTerminal() {
		return s == next
	}
	return next.rank() >= s.rank()
}

// OperationKind distinguishes the two long-running jobs the partner API runs
type OperationKind string

const (
	KindEmailReport     OperationKind = "email-report"
	KindBookingsProcess OperationKind = "bookings-process"
)

// KindFromServer maps the server's data.operation label to a kind.
// Unknown labels fall back to the given default.
func KindFromServer(label string, fallback OperationKind) OperationKind {
	switch label {
	case "bookingsProcess", "bookings-process", "process":
		return KindBookingsProcess
	case "emailReport", "email-report", "email", "emailReports":
		return KindEmailReport
	}
	return fallback
}

// ItemNoun returns what the counters of this kind count
func (k OperationKind) ItemNoun() string {
	if k == KindBookingsProcess {
		return "files"
	}
	return "venues"
}

// LogLevel of a server log line
type LogLevel string

const (
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// LogEntry is one line of an operation's server-side log
type LogEntry struct {
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
	Level     LogLevel  `json:"level"`
}

// Operation is the client's view of one server-side long-running job
type Operation struct {
	ID                 string              `json:"id"`
	Kind               OperationKind       `json:"kind"`
	Status             OperationStatus     `json:"status"`
	Current            int                 `json:"current"`
	Total              int                 `json:"total"`
	Percent            int                 `json:"progress"`
	DurationSeconds    int                 `json:"duration"`
	StartTime          time.Time           `json:"start_time"`
	EndTime            *time.Time          `json:"end_time,omitempty"`
	StartDate          string              `json:"start_date,omitempty"` // report range, YYYY-MM-DD
	EndDate            string              `json:"end_date,omitempty"`
	VenueCount         int                 `json:"venue_count,omitempty"`
	EstimatedDuration  int                 `json:"estimated_duration,omitempty"`
	Logs               []LogEntry          `json:"logs"`
	ProcessedLocations []ProcessedLocation `json:"processed_locations,omitempty"`
	VenueNames         map[string]string   `json:"venue_names,omitempty"`
	Error              string              `json:"error,omitempty"`
	FileName           string              `json:"file_name,omitempty"`
}

// Clone returns a deep copy safe to hand to another goroutine
func (o *Operation) Clone() *Operation {
	if o == nil {
		return nil
	}
	c := *o
	if o.EndTime != nil {
		t := *o.EndTime
		c.EndTime = &t
	}
	c.Logs = append([]LogEntry(nil), o.Logs...)
	c.ProcessedLocations = append([]ProcessedLocation(nil), o.ProcessedLocations...)
	if o.VenueNames != nil {
		c.VenueNames = make(map[string]string, len(o.VenueNames))
		for k, v := range o.VenueNames {
			c.VenueNames[k] = v
		}
	}
	return &c
}

// ProcessedCount prefers the explicit processed location list over the
// raw current counter
func (o *Operation) ProcessedCount() int {
	if len(o.ProcessedLocations) > 0 {
		return len(o.ProcessedLocations)
	}
	return o.Current
}

// DerivePercent computes round(current/total*100) clamped to [0,100] when
// total is known, otherwise returns the server supplied percentage.
func DerivePercent(current, total, serverPercent int) int {
	if total <= 0 {
		return serverPercent
	}
	p := int(math.Round(float64(current) / float64(total) * 100))
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}
