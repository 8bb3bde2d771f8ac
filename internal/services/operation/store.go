package operation

import (
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"claygrounds-desktop/internal/models"
)

// Store holds the single current operation shared by every surface of the
// application. All reads return copies.
type Store struct {
	mu      sync.RWMutex
	current *models.Operation
	subs    map[int]chan Change
	nextSub int
	log     *logrus.Entry
}

// NewStore creates an empty store
func NewStore(log *logrus.Entry) *Store {
	return &Store{
		subs: make(map[int]chan Change),
		log:  log.WithField("svc", "operation"),
	}
}

// SetCurrent replaces the current operation. Passing nil clears it.
func (s *Store) SetCurrent(op *models.Operation) {
	if op == nil {
		s.Clear()
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current != nil && s.current.ID != op.ID && s.current.Status.IsActive() {
		s.log.WithFields(logrus.Fields{"previous": s.current.ID, "next": op.ID}).Warn("Replacing an operation that was still running")
	}
	s.current = op.Clone()
	if s.current.Status == "" {
		s.current.Status = models.StatusPending
	}
	s.notifyLocked()
}

// Update merges p onto the current operation. Without a current operation it
// changes nothing and returns ErrNoOperation.
func (s *Store) Update(p Patch) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current == nil {
		return ErrNoOperation
	}
	op := s.current.Clone()

	if p.Status != nil {
		if !op.Status.CanTransition(*p.Status) {
			return fmt.Errorf("%w: %s to %s", ErrStatusRegression, op.Status, *p.Status)
		}
		op.Status = *p.Status
	}
	if p.Current != nil {
		op.Current = *p.Current
	}
	if p.Total != nil {
		op.Total = *p.Total
	}
	if p.Percent != nil {
		op.Percent = *p.Percent
	}
	if p.DurationSeconds != nil {
		op.DurationSeconds = *p.DurationSeconds
	}
	if p.EndTime != nil {
		t := *p.EndTime
		op.EndTime = &t
	}
	if p.VenueCount != nil {
		op.VenueCount = *p.VenueCount
	}
	if p.EstimatedDuration != nil {
		op.EstimatedDuration = *p.EstimatedDuration
	}
	if p.Error != nil {
		op.Error = *p.Error
	}
	if p.FileName != nil {
		op.FileName = *p.FileName
	}
	if p.Logs != nil {
		op.Logs = append([]models.LogEntry(nil), p.Logs...)
	}

	normalize(op)
	s.current = op
	s.notifyLocked()
	return nil
}

// ApplySnapshot replaces the progress fields of the current operation with
// a poll result and returns the updated operation
func (s *Store) ApplySnapshot(snap *models.Snapshot) (*models.Operation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current == nil {
		return nil, ErrNoOperation
	}
	if snap.OperationID != s.current.ID {
		return nil, fmt.Errorf("%w: have %s, got %s", ErrOperationMismatch, s.current.ID, snap.OperationID)
	}
	if !s.current.Status.CanTransition(snap.Status) {
		return nil, fmt.Errorf("%w: %s to %s", ErrStatusRegression, s.current.Status, snap.Status)
	}

	op := s.current.Clone()
	op.Status = snap.Status
	op.Kind = models.KindFromServer(snap.Operation, op.Kind)
	op.Current = snap.Current
	op.Total = snap.Total
	op.Percent = snap.Percent
	op.DurationSeconds = snap.DurationSeconds
	if !snap.StartTime.IsZero() {
		op.StartTime = snap.StartTime
	}
	op.Logs = append([]models.LogEntry(nil), snap.Logs...)
	op.ProcessedLocations = append([]models.ProcessedLocation(nil), snap.ProcessedLocations...)
	if len(snap.VenueNames) > 0 {
		op.VenueNames = make(map[string]string, len(snap.VenueNames))
		for k, v := range snap.VenueNames {
			op.VenueNames[k] = v
		}
	}
	if snap.StartDate != "" {
		op.StartDate = snap.StartDate
	}
	if snap.EndDate != "" {
		op.EndDate = snap.EndDate
	}
	op.Error = snap.Error

	if op.Status.IsTerminal() {
		if snap.EndTime != nil {
			t := *snap.EndTime
			op.EndTime = &t
		} else if op.EndTime == nil {
			now := time.Now()
			op.EndTime = &now
		}
	} else {
		op.EndTime = nil
	}

	normalize(op)
	s.current = op
	s.notifyLocked()
	return op.Clone(), nil
}

// Clear forgets the current operation
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return
	}
	s.current = nil
	s.notifyLocked()
}

// Current returns a copy of the current operation, or nil
func (s *Store) Current() *models.Operation {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current.Clone()
}

// IsRunning reports whether the current operation is pending or running
func (s *Store) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current != nil && s.current.Status.IsActive()
}

// SummaryLine renders a one line description of the current operation, or
// "" when there is nothing worth showing
func (s *Store) SummaryLine() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return summaryLine(s.current)
}

func summaryLine(op *models.Operation) string {
	if op == nil {
		return ""
	}
	noun := op.Kind.ItemNoun()
	switch op.Status {
	case models.StatusCompleted:
		return fmt.Sprintf("Successfully processed %d %s", op.ProcessedCount(), noun)
	case models.StatusFailed:
		reason := op.Error
		if reason == "" {
			reason = "Unknown error"
		}
		return "Operation failed: " + reason
	case models.StatusTimeout:
		return "Operation timed out"
	case models.StatusRunning:
		return fmt.Sprintf("Processing %d of %d %s...", op.Current, op.Total, noun)
	}
	return ""
}

// Subscribe returns a channel that always holds the most recent change.
// A slow reader only misses intermediate states. Call cancel to stop.
func (s *Store) Subscribe() (<-chan Change, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextSub
	s.nextSub++
	ch := make(chan Change, 1)
	s.subs[id] = ch

	cancel := func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if c, ok := s.subs[id]; ok {
			delete(s.subs, id)
			close(c)
		}
	}
	return ch, cancel
}

// notifyLocked pushes the current state into every subscriber slot,
// replacing a value nobody has read yet
func (s *Store) notifyLocked() {
	for _, ch := range s.subs {
		change := Change{Operation: s.current.Clone()}
		select {
		case ch <- change:
		default:
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- change:
			default:
			}
		}
	}
}

// normalize keeps the derived fields consistent
func normalize(op *models.Operation) {
	if op.Current < 0 {
		op.Current = 0
	}
	if op.Total > 0 && op.Current > op.Total {
		op.Current = op.Total
	}
	op.Percent = models.DerivePercent(op.Current, op.Total, op.Percent)
	if op.Status != models.StatusFailed && op.Status != models.StatusTimeout {
		op.Error = ""
	}
}
