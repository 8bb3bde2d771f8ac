package models

import "time"

// Snapshot is one normalised poll result for an operation. A newer snapshot
// replaces the previous one as a whole.
type Snapshot struct {
	OperationID        string              `json:"id"`
	Status             OperationStatus     `json:"status"`
	Percent            int                 `json:"progress"`
	Current            int                 `json:"current"`
	Total              int                 `json:"total"`
	DurationSeconds    int                 `json:"duration"`
	StartTime          time.Time           `json:"start_time"`
	EndTime            *time.Time          `json:"end_time,omitempty"`
	Logs               []LogEntry          `json:"logs"`
	Operation          string              `json:"operation,omitempty"` // server label, e.g. bookingsProcess
	StartDate          string              `json:"start_date,omitempty"`
	EndDate            string              `json:"end_date,omitempty"`
	ProcessedLocations []ProcessedLocation `json:"processed_locations,omitempty"`
	VenueNames         map[string]string   `json:"venue_names,omitempty"`
	Error              string              `json:"error,omitempty"`
	ReceivedAt         time.Time           `json:"received_at"`
}

// ApplyExpectedTotal corrects the snapshot when the client knows the item
// count better than the server: a missing or inconsistent total is replaced
// by expected and the percentage is recomputed. current is clamped to total.
func (s *Snapshot) ApplyExpectedTotal(expected int) {
	if expected > 0 && (s.Total <= 0 || s.Total < s.Current) {
		s.Total = expected
	}
	if s.Total > 0 && s.Current > s.Total {
		s.Current = s.Total
	}
	if s.Current < 0 {
		s.Current = 0
	}
	s.Percent = DerivePercent(s.Current, s.Total, s.Percent)
}
