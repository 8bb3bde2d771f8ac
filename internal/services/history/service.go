package history

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"claygrounds-desktop/internal/config"
	"claygrounds-desktop/internal/models"
	"claygrounds-desktop/internal/services/operation"
)

// ErrNotTerminal is returned when summarising an operation still in flight
var ErrNotTerminal = errors.New("operation has not finished")

// Cache is the short-lived history of finished operations: at most Capacity
// summaries, most recent first, each readable for Expiry after it was stored
type Cache struct {
	db       *gorm.DB
	capacity int
	expiry   time.Duration
	now      func() time.Time
	mu       sync.Mutex
	log      *logrus.Entry
}

// NewCache creates a cache over an auto-migrated database
func NewCache(db *gorm.DB, cfg config.HistoryConfig, log *logrus.Entry) *Cache {
	return &Cache{
		db:       db,
		capacity: cfg.Capacity,
		expiry:   cfg.Expiry,
		now:      time.Now,
		log:      log.WithField("svc", "history"),
	}
}

// SetClock replaces the time source, for tests
func (c *Cache) SetClock(now func() time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = now
}

// Save stamps StoredAt, puts the summary at the front of the history and
// drops whatever falls beyond capacity. A summary for an operation id that
// is already stored replaces the older row.
func (c *Cache) Save(ctx context.Context, summary models.ProgressSummary) (models.ProgressSummary, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if summary.OperationID == "" {
		return models.ProgressSummary{}, errors.New("summary has no operation id")
	}
	summary.StoredAt = c.now().UTC()
	if summary.ProcessedLocations != nil {
		locations := make([]models.ProcessedLocation, len(summary.ProcessedLocations))
		copy(locations, summary.ProcessedLocations)
		summary.ProcessedLocations = locations
	}
	normalizeTimes(&summary)

	err := c.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("operation_id = ?", summary.OperationID).Delete(&models.ProgressSummary{}).Error; err != nil {
			return fmt.Errorf("failed to replace summary: %w", err)
		}

		var maxSeq int64
		if err := tx.Model(&models.ProgressSummary{}).Select("COALESCE(MAX(seq), 0)").Scan(&maxSeq).Error; err != nil {
			return fmt.Errorf("failed to read sequence: %w", err)
		}
		summary.Seq = maxSeq + 1

		if err := tx.Create(&summary).Error; err != nil {
			return fmt.Errorf("failed to store summary: %w", err)
		}

		var ids []string
		if err := tx.Model(&models.ProgressSummary{}).Order("seq desc").Pluck("operation_id", &ids).Error; err != nil {
			return fmt.Errorf("failed to list summaries: %w", err)
		}
		if len(ids) > c.capacity {
			if err := tx.Where("operation_id IN ?", ids[c.capacity:]).Delete(&models.ProgressSummary{}).Error; err != nil {
				return fmt.Errorf("failed to prune summaries: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return models.ProgressSummary{}, err
	}

	c.log.WithFields(logrus.Fields{"operation": summary.OperationID, "status": summary.Status}).Info("Progress summary saved")
	return summary, nil
}

// Load returns the stored summaries younger than the expiry window, most
// recent first, and deletes the expired ones
func (c *Cache) Load(ctx context.Context) ([]models.ProgressSummary, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var rows []models.ProgressSummary
	if err := c.db.WithContext(ctx).Order("seq desc").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to load summaries: %w", err)
	}

	now := c.now()
	fresh := make([]models.ProgressSummary, 0, len(rows))
	var expired []string
	for _, row := range rows {
		normalizeTimes(&row)
		if now.Sub(row.StoredAt) >= c.expiry || len(fresh) >= c.capacity {
			expired = append(expired, row.OperationID)
			continue
		}
		fresh = append(fresh, row)
	}

	if len(expired) > 0 {
		if err := c.db.WithContext(ctx).Where("operation_id IN ?", expired).Delete(&models.ProgressSummary{}).Error; err != nil {
			c.log.WithError(err).Warn("Failed to discard expired summaries")
		}
	}
	return fresh, nil
}

// Clear removes the whole history
func (c *Cache) Clear(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.db.WithContext(ctx).Where("1 = 1").Delete(&models.ProgressSummary{}).Error; err != nil {
		return fmt.Errorf("failed to clear summaries: %w", err)
	}
	return nil
}

// NewSummary projects a finished operation onto its persisted summary
func NewSummary(op *models.Operation) (models.ProgressSummary, error) {
	if op == nil || !op.Status.IsTerminal() {
		return models.ProgressSummary{}, ErrNotTerminal
	}

	end := time.Now()
	if op.EndTime != nil {
		end = *op.EndTime
	}

	summary := models.ProgressSummary{
		OperationID:        op.ID,
		Kind:               op.Kind,
		Status:             op.Status,
		Total:              op.Total,
		Processed:          op.ProcessedCount(),
		DurationSeconds:    op.DurationSeconds,
		StartTime:          op.StartTime,
		EndTime:            &end,
		ProcessedLocations: append([]models.ProcessedLocation(nil), op.ProcessedLocations...),
		LogVenues:          operation.ProcessedVenueNames(op.Logs),
		Error:              op.Error,
	}
	if len(op.VenueNames) > 0 {
		summary.VenueNames = make(map[string]string, len(op.VenueNames))
		for k, v := range op.VenueNames {
			summary.VenueNames[k] = v
		}
	}
	if len(summary.LogVenues) == 0 {
		summary.LogVenues = nil
	}
	if len(summary.ProcessedLocations) == 0 {
		summary.ProcessedLocations = nil
	}
	return summary, nil
}

func normalizeTimes(s *models.ProgressSummary) {
	s.StoredAt = s.StoredAt.UTC()
	s.StartTime = s.StartTime.UTC()
	if s.EndTime != nil {
		t := s.EndTime.UTC()
		s.EndTime = &t
	}
	for i := range s.ProcessedLocations {
		s.ProcessedLocations[i].Timestamp = s.ProcessedLocations[i].Timestamp.UTC()
	}
}
