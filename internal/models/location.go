package models

import "time"

// ProcessedLocation is the per-item outcome the server reports for a venue
type ProcessedLocation struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

// DisplayName falls back to the location id when the server sent no name
func (p ProcessedLocation) DisplayName() string {
	if p.Name != "" {
		return p.Name
	}
	return p.ID
}
