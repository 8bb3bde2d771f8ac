package poller

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"claygrounds-desktop/internal/logger"
	"claygrounds-desktop/internal/models"
)

type step struct {
	snapshot *models.Snapshot
	err      error
}

// scriptedFetcher replays steps in order and repeats the last one forever
type scriptedFetcher struct {
	mu    sync.Mutex
	steps map[string][]step
	calls map[string]int
}

func newScriptedFetcher() *scriptedFetcher {
	return &scriptedFetcher{steps: map[string][]step{}, calls: map[string]int{}}
}

func (f *scriptedFetcher) script(id string, steps ...step) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.steps[id] = steps
}

func (f *scriptedFetcher) GetProgress(ctx context.Context, id string) (*models.Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	steps := f.steps[id]
	if len(steps) == 0 {
		return nil, errors.New("no script")
	}
	i := f.calls[id]
	f.calls[id]++
	if i >= len(steps) {
		i = len(steps) - 1
	}
	s := steps[i]
	if s.snapshot != nil {
		c := *s.snapshot
		return &c, s.err
	}
	return nil, s.err
}

func (f *scriptedFetcher) callCount(id string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[id]
}

type updateLog struct {
	mu      sync.Mutex
	updates []Update
}

func (l *updateLog) record(u Update) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.updates = append(l.updates, u)
}

func (l *updateLog) all() []Update {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Update(nil), l.updates...)
}

func (l *updateLog) countFor(id string) int {
	n := 0
	for _, u := range l.all() {
		if u.OperationID == id {
			n++
		}
	}
	return n
}

func fastConfig() Config {
	return Config{
		RunningInterval:  time.Millisecond,
		IdleInterval:     2 * time.Millisecond,
		ErrorInterval:    time.Millisecond,
		MaxErrorInterval: 4 * time.Millisecond,
	}
}

func running(current, total int) *models.Snapshot {
	return &models.Snapshot{Status: models.StatusRunning, Current: current, Total: total}
}

func waitDone(t *testing.T, p *Poller) {
	t.Helper()
	select {
	case <-p.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("poll loop did not finish")
	}
}

func TestPollerTerminal(t *testing.T) {
	t.Run("Should stop after the terminal snapshot and expose it", func(t *testing.T) {
		f := newScriptedFetcher()
		f.script("op-1",
			step{snapshot: running(1, 5)},
			step{snapshot: running(3, 5)},
			step{snapshot: &models.Snapshot{Status: models.StatusCompleted, Current: 5, Total: 5}},
		)
		log := &updateLog{}
		p := New(f, fastConfig(), log.record, logger.Noop())

		p.Track("op-1", 0)
		waitDone(t, p)

		updates := log.all()
		require.Len(t, updates, 3)
		assert.Equal(t, 20, updates[0].Snapshot.Percent)
		assert.Equal(t, 60, updates[1].Snapshot.Percent)
		assert.False(t, updates[1].Terminal)
		assert.True(t, updates[2].Terminal)

		latest, err := p.Latest()
		require.NoError(t, err)
		assert.Equal(t, models.StatusCompleted, latest.Status)
		assert.Equal(t, 100, latest.Percent)
		assert.Equal(t, "op-1", latest.OperationID)
		assert.Equal(t, 3, f.callCount("op-1"))
		assert.Empty(t, p.Active())
	})
}

func TestPollerTransientErrors(t *testing.T) {
	t.Run("Should set the error while fetches fail and clear it on success", func(t *testing.T) {
		f := newScriptedFetcher()
		boom := errors.New("connection reset")
		f.script("op-1",
			step{err: boom},
			step{err: boom},
			step{snapshot: running(2, 5)},
			step{snapshot: &models.Snapshot{Status: models.StatusCompleted, Current: 5, Total: 5}},
		)
		log := &updateLog{}
		p := New(f, fastConfig(), log.record, logger.Noop())

		p.Track("op-1", 0)
		waitDone(t, p)

		updates := log.all()
		require.Len(t, updates, 4)
		assert.ErrorIs(t, updates[0].Err, boom)
		assert.ErrorIs(t, updates[1].Err, boom)
		assert.False(t, updates[0].Terminal)
		assert.False(t, updates[1].Terminal)
		assert.Nil(t, updates[1].Snapshot)

		assert.NoError(t, updates[2].Err)
		assert.Equal(t, models.StatusRunning, updates[2].Snapshot.Status)
		assert.False(t, updates[2].Terminal)
		assert.True(t, updates[3].Terminal)

		_, err := p.Latest()
		assert.NoError(t, err)
	})

	t.Run("Should keep the last snapshot across a failure", func(t *testing.T) {
		f := newScriptedFetcher()
		f.script("op-1",
			step{snapshot: running(1, 4)},
			step{err: errors.New("timeout")},
			step{snapshot: &models.Snapshot{Status: models.StatusFailed, Current: 1, Total: 4, Error: "Authentication failed"}},
		)
		log := &updateLog{}
		p := New(f, fastConfig(), log.record, logger.Noop())

		p.Track("op-1", 0)
		waitDone(t, p)

		updates := log.all()
		require.Len(t, updates, 3)
		require.NotNil(t, updates[1].Snapshot)
		assert.Equal(t, 1, updates[1].Snapshot.Current)
		assert.Error(t, updates[1].Err)
		assert.Equal(t, models.StatusFailed, updates[2].Snapshot.Status)
	})

	t.Run("Should give up after the max error window", func(t *testing.T) {
		f := newScriptedFetcher()
		f.script("op-1", step{err: errors.New("dns failure")})
		cfg := fastConfig()
		cfg.MaxErrorElapsed = 20 * time.Millisecond
		log := &updateLog{}
		p := New(f, cfg, log.record, logger.Noop())

		p.Track("op-1", 0)
		waitDone(t, p)

		updates := log.all()
		require.NotEmpty(t, updates)
		last := updates[len(updates)-1]
		assert.True(t, last.Exhausted)
		assert.ErrorIs(t, last.Err, ErrPollExhausted)
		assert.Contains(t, last.Err.Error(), "dns failure")
		for _, u := range updates[:len(updates)-1] {
			assert.False(t, u.Exhausted)
		}
	})

	t.Run("Should reject a snapshot for another operation", func(t *testing.T) {
		f := newScriptedFetcher()
		other := running(1, 2)
		other.OperationID = "op-2"
		f.script("op-1", step{snapshot: other}, step{snapshot: &models.Snapshot{Status: models.StatusCompleted}})
		log := &updateLog{}
		p := New(f, fastConfig(), log.record, logger.Noop())

		p.Track("op-1", 0)
		waitDone(t, p)

		updates := log.all()
		require.Len(t, updates, 2)
		assert.Error(t, updates[0].Err)
		assert.True(t, updates[1].Terminal)
	})
}

func TestPollerExpectedTotal(t *testing.T) {
	t.Run("Should recompute percent from the expected total", func(t *testing.T) {
		f := newScriptedFetcher()
		f.script("op-1", step{snapshot: &models.Snapshot{Status: models.StatusCompleted, Current: 2, Total: 0, Percent: 90}})
		p := New(f, fastConfig(), nil, logger.Noop())

		p.Track("op-1", 8)
		waitDone(t, p)

		latest, _ := p.Latest()
		assert.Equal(t, 8, latest.Total)
		assert.Equal(t, 25, latest.Percent)
	})
}

func TestPollerCancellation(t *testing.T) {
	t.Run("Should publish nothing for the old id once a new id is tracked", func(t *testing.T) {
		f := newScriptedFetcher()
		f.script("op-a", step{snapshot: running(1, 10)})
		f.script("op-b", step{snapshot: running(1, 3)})
		log := &updateLog{}
		p := New(f, fastConfig(), log.record, logger.Noop())

		p.Track("op-a", 0)
		require.Eventually(t, func() bool { return log.countFor("op-a") >= 2 }, time.Second, time.Millisecond)

		p.Track("op-b", 0)
		seen := log.countFor("op-a")
		assert.Equal(t, "op-b", p.Active())

		require.Eventually(t, func() bool { return log.countFor("op-b") >= 3 }, time.Second, time.Millisecond)
		assert.Equal(t, seen, log.countFor("op-a"))

		p.Stop()
		waitDone(t, p)
		assert.Empty(t, p.Active())

		after := len(log.all())
		time.Sleep(10 * time.Millisecond)
		assert.Len(t, log.all(), after)
	})

	t.Run("Should not restart when tracking the same id", func(t *testing.T) {
		f := newScriptedFetcher()
		f.script("op-a", step{snapshot: running(1, 10)})
		p := New(f, fastConfig(), nil, logger.Noop())

		p.Track("op-a", 0)
		done := p.Done()
		p.Track("op-a", 0)
		assert.Equal(t, done, p.Done())

		p.Track("", 0)
		waitDone(t, p)
	})

	t.Run("Should restart a finished loop for the same id", func(t *testing.T) {
		f := newScriptedFetcher()
		f.script("op-a", step{snapshot: &models.Snapshot{Status: models.StatusTimeout}})
		p := New(f, fastConfig(), nil, logger.Noop())

		p.Track("op-a", 0)
		waitDone(t, p)
		p.Track("op-a", 0)
		waitDone(t, p)
		assert.Equal(t, 2, f.callCount("op-a"))
	})
}

func TestErrorDelay(t *testing.T) {
	p := New(nil, Config{ErrorInterval: 5 * time.Second, MaxErrorInterval: 60 * time.Second}, nil, logger.Noop())

	assert.Equal(t, 5*time.Second, p.errorDelay(1))
	assert.Equal(t, 10*time.Second, p.errorDelay(2))
	assert.Equal(t, 40*time.Second, p.errorDelay(4))
	assert.Equal(t, 60*time.Second, p.errorDelay(5))
	assert.Equal(t, 60*time.Second, p.errorDelay(500))
}
