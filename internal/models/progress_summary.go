package models

import (
	"time"
)

// ProgressSummary is the persisted, terminal-only projection of an operation
type ProgressSummary struct {
	OperationID        string              `gorm:"primaryKey;column:operation_id" json:"id"`
	Kind               OperationKind       `gorm:"not null" json:"kind"`
	Status             OperationStatus     `gorm:"not null" json:"status"`
	Total              int                 `gorm:"not null;default:0" json:"total"`
	Processed          int                 `gorm:"not null;default:0" json:"processed"`
	DurationSeconds    int                 `gorm:"not null;default:0;column:duration_seconds" json:"duration"`
	StartTime          time.Time           `json:"start_time"`
	EndTime            *time.Time          `json:"end_time,omitempty"`
	ProcessedLocations []ProcessedLocation `gorm:"serializer:json;type:text" json:"processed_locations,omitempty"`
	VenueNames         map[string]string   `gorm:"serializer:json;type:text" json:"venue_names,omitempty"`
	LogVenues          []string            `gorm:"serializer:json;type:text;column:log_venues" json:"log_venues,omitempty"`
	Error              string              `gorm:"type:text" json:"error,omitempty"`
	StoredAt           time.Time           `gorm:"not null;index" json:"stored_at"`
	Seq                int64               `gorm:"not null;index" json:"-"` // insertion order, most recent is highest
}

// TableName specifies the table name for GORM
func (ProgressSummary) TableName() string {
	return "progress_summaries"
}
