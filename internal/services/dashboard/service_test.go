package dashboard

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"claygrounds-desktop/internal/api"
	"claygrounds-desktop/internal/config"
	"claygrounds-desktop/internal/events"
	applog "claygrounds-desktop/internal/logger"
)

type fakeSource struct {
	mu        sync.Mutex
	stats     *api.Stats
	health    *api.Health
	venues    *api.VenueHealth
	statsErr  error
	healthErr error
	calls     map[string]int
}

func (f *fakeSource) record(name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.calls == nil {
		f.calls = map[string]int{}
	}
	f.calls[name]++
}

func (f *fakeSource) count(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[name]
}

func (f *fakeSource) GetStats(context.Context) (*api.Stats, error) {
	f.record("stats")
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stats, f.statsErr
}

func (f *fakeSource) GetHealth(context.Context) (*api.Health, error) {
	f.record("health")
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.health, f.healthErr
}

func (f *fakeSource) GetVenueHealth(context.Context) (*api.VenueHealth, error) {
	f.record("venues")
	return f.venues, nil
}

func newFakeSource() *fakeSource {
	stats := &api.Stats{Success: true}
	stats.Counts.Venues = 42
	health := &api.Health{Status: "healthy"}
	venues := &api.VenueHealth{Success: true}
	venues.Summary.HealthStatus = "good"
	return &fakeSource{stats: stats, health: health, venues: venues}
}

func TestRefresh(t *testing.T) {
	ctx := context.Background()

	t.Run("Should store and emit fresh stats", func(t *testing.T) {
		src := newFakeSource()
		rec := &events.Recorder{}
		svc := NewService(src, config.Default().Refresh, rec, applog.Noop())

		require.NoError(t, svc.Refresh(ctx, JobStats))

		snap := svc.Snapshot()
		require.NotNil(t, snap.Stats.Value)
		assert.Equal(t, 42, snap.Stats.Value.Counts.Venues)
		assert.Empty(t, snap.Stats.Error)
		assert.False(t, snap.Stats.Loading)
		assert.False(t, snap.Stats.UpdatedAt.IsZero())

		emitted := rec.Named(events.DashboardStats)
		require.Len(t, emitted, 1)
		reading, ok := emitted[0].(Reading[api.Stats])
		require.True(t, ok)
		assert.Equal(t, 42, reading.Value.Counts.Venues)
	})

	t.Run("Should keep the previous value when a refresh fails", func(t *testing.T) {
		src := newFakeSource()
		svc := NewService(src, config.Default().Refresh, nil, applog.Noop())
		require.NoError(t, svc.Refresh(ctx, JobHealth))

		src.mu.Lock()
		src.healthErr = &api.StatusError{StatusCode: 503, Message: "Database unavailable"}
		src.mu.Unlock()
		require.Error(t, svc.Refresh(ctx, JobHealth))

		snap := svc.Snapshot()
		require.NotNil(t, snap.Health.Value)
		assert.Equal(t, "healthy", snap.Health.Value.Status)
		assert.Equal(t, "Database unavailable", snap.Health.Error)
	})

	t.Run("Should use the fallback message for transport failures", func(t *testing.T) {
		src := newFakeSource()
		src.statsErr = fmt.Errorf("%w: refused", api.ErrNetwork)
		svc := NewService(src, config.Default().Refresh, nil, applog.Noop())

		require.Error(t, svc.Refresh(ctx, JobStats))
		assert.Equal(t, "Failed to fetch stats data", svc.Snapshot().Stats.Error)
	})

	t.Run("Should refresh every job and join the errors", func(t *testing.T) {
		src := newFakeSource()
		src.statsErr = fmt.Errorf("%w: refused", api.ErrNetwork)
		svc := NewService(src, config.Default().Refresh, nil, applog.Noop())

		err := svc.RefreshAll(ctx)

		require.Error(t, err)
		assert.ErrorIs(t, err, api.ErrNetwork)
		assert.Equal(t, 1, src.count("stats"))
		assert.Equal(t, 1, src.count("health"))
		assert.Equal(t, 1, src.count("venues"))
		assert.Equal(t, "good", svc.Snapshot().Venues.Value.Summary.HealthStatus)
	})

	t.Run("Should reject unknown jobs", func(t *testing.T) {
		svc := NewService(newFakeSource(), config.Default().Refresh, nil, applog.Noop())
		assert.Error(t, svc.Refresh(ctx, Job("weather")))
	})
}

func TestSchedules(t *testing.T) {
	t.Run("Should schedule every job and refresh once on start", func(t *testing.T) {
		src := newFakeSource()
		svc := NewService(src, config.Default().Refresh, nil, applog.Noop())

		require.NoError(t, svc.Start(context.Background()))
		defer svc.Stop()

		require.Eventually(t, func() bool {
			return src.count("stats") > 0 && src.count("health") > 0 && src.count("venues") > 0
		}, time.Second, 5*time.Millisecond)

		jobs := svc.Jobs()
		require.Len(t, jobs, 3)
		assert.Equal(t, JobStats, jobs[0].Job)
		assert.Equal(t, "30s", jobs[0].Every)
		assert.Equal(t, "15s", jobs[1].Every)
		require.NotNil(t, jobs[1].NextRun)
		assert.True(t, jobs[1].NextRun.After(time.Now()))
	})

	t.Run("Should reschedule a job", func(t *testing.T) {
		svc := NewService(newFakeSource(), config.Default().Refresh, nil, applog.Noop())

		require.NoError(t, svc.Reschedule(JobHealth, time.Minute))

		assert.Equal(t, "1m0s", svc.Jobs()[1].Every)
	})

	t.Run("Should reject invalid intervals", func(t *testing.T) {
		svc := NewService(newFakeSource(), config.Default().Refresh, nil, applog.Noop())
		assert.Error(t, svc.Reschedule(JobStats, 0))
		assert.Error(t, svc.Reschedule(Job("weather"), time.Second))
	})

	t.Run("Should fail to start with a zero interval", func(t *testing.T) {
		cfg := config.Default().Refresh
		cfg.Health = 0
		svc := NewService(newFakeSource(), cfg, nil, applog.Noop())
		assert.Error(t, svc.Start(context.Background()))
	})
}
