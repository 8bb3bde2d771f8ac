package operation

import (
	"errors"
	"time"

	"claygrounds-desktop/internal/models"
)

var (
	// ErrNoOperation is returned when there is no current operation to change
	ErrNoOperation = errors.New("no current operation")
	// ErrOperationMismatch is returned for a snapshot of another operation
	ErrOperationMismatch = errors.New("snapshot does not belong to the current operation")
	// ErrStatusRegression is returned when a change would move status backwards
	ErrStatusRegression = errors.New("operation status cannot move backwards")
)

// Patch is a partial update of the current operation; nil fields are left alone
type Patch struct {
	Status            *models.OperationStatus
	Current           *int
	Total             *int
	Percent           *int
	DurationSeconds   *int
	EndTime           *time.Time
	VenueCount        *int
	EstimatedDuration *int
	Error             *string
	FileName          *string
	Logs              []models.LogEntry
}

// Change is delivered to subscribers after every mutation. Operation is nil
// once the slot has been cleared.
type Change struct {
	Operation *models.Operation
}

// Ptr is a small helper for building patches
func Ptr[T any](v T) *T {
	return &v
}

// ProcessedVenue is a venue outcome recovered from the operation log
type ProcessedVenue struct {
	Name      string    `json:"name"`
	Status    string    `json:"status"` // success or failed
	Timestamp time.Time `json:"timestamp"`
}
