package history

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"claygrounds-desktop/internal/config"
	"claygrounds-desktop/internal/database"
	applog "claygrounds-desktop/internal/logger"
	"claygrounds-desktop/internal/models"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, database.AutoMigrate(db))
	t.Cleanup(func() { _ = sqlDB.Close() })
	return db
}

type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time          { return c.now }
func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newTestCache(t *testing.T) (*Cache, *fakeClock) {
	t.Helper()
	clock := &fakeClock{now: time.Date(2025, 7, 31, 12, 0, 0, 0, time.UTC)}
	cache := NewCache(setupTestDB(t), config.Default().History, applog.Noop())
	cache.SetClock(clock.Now)
	return cache, clock
}

func summary(id string) models.ProgressSummary {
	end := time.Date(2025, 7, 31, 11, 59, 0, 0, time.UTC)
	return models.ProgressSummary{
		OperationID:     id,
		Kind:            models.KindEmailReport,
		Status:          models.StatusCompleted,
		Total:           5,
		Processed:       5,
		DurationSeconds: 42,
		StartTime:       time.Date(2025, 7, 31, 11, 58, 0, 0, time.UTC),
		EndTime:         &end,
	}
}

func ids(rows []models.ProgressSummary) []string {
	out := make([]string, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.OperationID)
	}
	return out
}

func TestCacheRoundTrip(t *testing.T) {
	t.Run("Should load what was saved plus stored at", func(t *testing.T) {
		cache, clock := newTestCache(t)
		ctx := context.Background()

		in := summary("op-1")
		in.ProcessedLocations = []models.ProcessedLocation{{ID: "v1", Name: "Arena", Status: "success", Timestamp: clock.now}}
		in.VenueNames = map[string]string{"v1": "Arena"}
		in.LogVenues = []string{"Arena"}

		saved, err := cache.Save(ctx, in)
		require.NoError(t, err)
		assert.True(t, clock.now.Equal(saved.StoredAt))

		clock.Advance(time.Minute)
		rows, err := cache.Load(ctx)
		require.NoError(t, err)
		require.Len(t, rows, 1)

		got := rows[0]
		assert.True(t, saved.StoredAt.Equal(got.StoredAt))
		assert.True(t, in.StartTime.Equal(got.StartTime))
		require.NotNil(t, got.EndTime)
		assert.True(t, in.EndTime.Equal(*got.EndTime))

		// remaining fields are identical
		got.StoredAt, got.StartTime, got.EndTime = time.Time{}, time.Time{}, nil
		want := in
		want.StoredAt, want.StartTime, want.EndTime = time.Time{}, time.Time{}, nil
		want.Seq = got.Seq
		require.Len(t, got.ProcessedLocations, 1)
		assert.True(t, want.ProcessedLocations[0].Timestamp.Equal(got.ProcessedLocations[0].Timestamp))
		got.ProcessedLocations[0].Timestamp = time.Time{}
		want.ProcessedLocations = []models.ProcessedLocation{{ID: "v1", Name: "Arena", Status: "success"}}
		assert.Equal(t, want, got)
	})

	t.Run("Should reject a summary without id", func(t *testing.T) {
		cache, _ := newTestCache(t)
		_, err := cache.Save(context.Background(), models.ProgressSummary{})
		assert.Error(t, err)
	})
}

func TestCacheCapacity(t *testing.T) {
	t.Run("Should keep the five most recent, newest first", func(t *testing.T) {
		cache, clock := newTestCache(t)
		ctx := context.Background()

		for i := 1; i <= 8; i++ {
			_, err := cache.Save(ctx, summary(fmt.Sprintf("op-%d", i)))
			require.NoError(t, err)
			clock.Advance(time.Second)

			rows, err := cache.Load(ctx)
			require.NoError(t, err)
			assert.LessOrEqual(t, len(rows), 5)
		}

		rows, err := cache.Load(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"op-8", "op-7", "op-6", "op-5", "op-4"}, ids(rows))
	})

	t.Run("Should move a re-saved operation to the front without duplicating it", func(t *testing.T) {
		cache, _ := newTestCache(t)
		ctx := context.Background()

		for _, id := range []string{"a", "b", "a"} {
			_, err := cache.Save(ctx, summary(id))
			require.NoError(t, err)
		}

		rows, err := cache.Load(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"a", "b"}, ids(rows))
	})
}

func TestCacheExpiry(t *testing.T) {
	t.Run("Should never return entries older than ten minutes", func(t *testing.T) {
		cache, clock := newTestCache(t)
		ctx := context.Background()

		_, err := cache.Save(ctx, summary("old"))
		require.NoError(t, err)
		clock.Advance(6 * time.Minute)
		_, err = cache.Save(ctx, summary("new"))
		require.NoError(t, err)

		clock.Advance(4*time.Minute + time.Second)
		rows, err := cache.Load(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"new"}, ids(rows))
		for _, r := range rows {
			assert.Less(t, clock.now.Sub(r.StoredAt), 10*time.Minute)
		}

		clock.Advance(6 * time.Minute)
		rows, err = cache.Load(ctx)
		require.NoError(t, err)
		assert.Empty(t, rows)
	})

	t.Run("Should delete expired rows on load", func(t *testing.T) {
		cache, clock := newTestCache(t)
		ctx := context.Background()

		_, err := cache.Save(ctx, summary("old"))
		require.NoError(t, err)
		clock.Advance(11 * time.Minute)
		_, err = cache.Load(ctx)
		require.NoError(t, err)

		var count int64
		require.NoError(t, cache.db.Model(&models.ProgressSummary{}).Count(&count).Error)
		assert.Zero(t, count)
	})
}

func TestCacheClear(t *testing.T) {
	cache, _ := newTestCache(t)
	ctx := context.Background()
	_, err := cache.Save(ctx, summary("op-1"))
	require.NoError(t, err)

	require.NoError(t, cache.Clear(ctx))
	rows, err := cache.Load(ctx)
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestNewSummary(t *testing.T) {
	t.Run("Should refuse operations still in flight", func(t *testing.T) {
		_, err := NewSummary(&models.Operation{ID: "x", Status: models.StatusRunning})
		assert.ErrorIs(t, err, ErrNotTerminal)
		_, err = NewSummary(nil)
		assert.ErrorIs(t, err, ErrNotTerminal)
	})

	t.Run("Should project a finished operation", func(t *testing.T) {
		end := time.Date(2025, 7, 31, 12, 0, 0, 0, time.UTC)
		op := &models.Operation{
			ID: "op-1", Kind: models.KindBookingsProcess, Status: models.StatusFailed,
			Current: 2, Total: 4, DurationSeconds: 30, EndTime: &end, Error: "Authentication failed",
			Logs: []models.LogEntry{{Message: "File processed successfully: for: Arena (10 rows)"}},
		}

		s, err := NewSummary(op)
		require.NoError(t, err)
		assert.Equal(t, "op-1", s.OperationID)
		assert.Equal(t, models.KindBookingsProcess, s.Kind)
		assert.Equal(t, 2, s.Processed)
		assert.Equal(t, 4, s.Total)
		assert.Equal(t, []string{"Arena"}, s.LogVenues)
		assert.Equal(t, "Authentication failed", s.Error)
		assert.Equal(t, end, *s.EndTime)
	})
}
