package poller

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"claygrounds-desktop/internal/models"
)

// Poller tracks one operation at a time. Tracking a new id, or stopping,
// cancels the previous loop and waits for it to exit, so no update of an
// abandoned operation is published after Track or Stop returns.
//
// The update callback runs on the poll goroutine and must not call Track or
// Stop.
type Poller struct {
	fetcher  Fetcher
	cfg      Config
	onUpdate func(Update)
	log      *logrus.Entry

	trackMu sync.Mutex // serialises Track and Stop

	mu       sync.Mutex
	gen      uint64
	activeID string
	cancel   context.CancelFunc
	done     chan struct{}
	latest   *models.Snapshot
	lastErr  error
}

// New creates a poller; onUpdate may be nil
func New(fetcher Fetcher, cfg Config, onUpdate func(Update), log *logrus.Entry) *Poller {
	if onUpdate == nil {
		onUpdate = func(Update) {}
	}
	closed := make(chan struct{})
	close(closed)
	return &Poller{
		fetcher:  fetcher,
		cfg:      cfg,
		onUpdate: onUpdate,
		log:      log.WithField("svc", "poller"),
		done:     closed,
	}
}

// Track starts polling operationID, replacing whatever was tracked before.
// expectedTotal, when positive, corrects snapshots whose total is missing or
// inconsistent. Tracking the id that is already being polled is a no-op; an
// empty id stops tracking.
func (p *Poller) Track(operationID string, expectedTotal int) {
	if operationID == "" {
		p.Stop()
		return
	}

	p.trackMu.Lock()
	defer p.trackMu.Unlock()

	p.mu.Lock()
	if p.activeID == operationID && !isClosed(p.done) {
		p.mu.Unlock()
		return
	}
	p.mu.Unlock()

	p.halt()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	p.mu.Lock()
	p.gen++
	gen := p.gen
	p.activeID = operationID
	p.cancel = cancel
	p.done = done
	p.latest = nil
	p.lastErr = nil
	p.mu.Unlock()

	p.log.WithFields(logrus.Fields{"operation": operationID, "expected_total": expectedTotal}).Info("Tracking operation")
	go p.run(ctx, gen, operationID, expectedTotal, done)
}

// Stop abandons tracking. Latest keeps returning the last snapshot.
func (p *Poller) Stop() {
	p.trackMu.Lock()
	defer p.trackMu.Unlock()
	p.halt()

	p.mu.Lock()
	p.activeID = ""
	p.mu.Unlock()
}

// halt cancels the running loop and waits for it; trackMu must be held
func (p *Poller) halt() {
	p.mu.Lock()
	p.gen++
	cancel, done := p.cancel, p.done
	p.cancel = nil
	p.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	<-done
}

// Latest returns the most recent snapshot and the current transient error
func (p *Poller) Latest() (*models.Snapshot, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.latest, p.lastErr
}

// Active returns the id being polled, or "" when idle
func (p *Poller) Active() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if isClosed(p.done) {
		return ""
	}
	return p.activeID
}

// Done is closed when the current loop exits, by reaching a terminal
// status, exhausting retries or being stopped
func (p *Poller) Done() <-chan struct{} {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.done
}

func (p *Poller) run(ctx context.Context, gen uint64, id string, expectedTotal int, done chan struct{}) {
	defer close(done)
	defer func() {
		if r := recover(); r != nil {
			p.log.WithField("operation", id).Errorf("Poll loop panic: %v", r)
		}
	}()

	log := p.log.WithField("operation", id)
	var (
		failures     int
		failingSince time.Time
	)

	for {
		snapshot, err := p.fetcher.GetProgress(ctx, id)
		if ctx.Err() != nil {
			return
		}
		if err == nil && snapshot == nil {
			err = fmt.Errorf("progress for %q returned no snapshot", id)
		}
		if err == nil && snapshot.OperationID != "" && snapshot.OperationID != id {
			err = fmt.Errorf("progress for %q returned operation %q", id, snapshot.OperationID)
		}

		var delay time.Duration
		if err != nil {
			failures++
			if failingSince.IsZero() {
				failingSince = time.Now()
			}

			if p.cfg.MaxErrorElapsed > 0 && time.Since(failingSince) >= p.cfg.MaxErrorElapsed {
				log.WithError(err).WithField("failures", failures).Error("Giving up on progress polling")
				p.publish(gen, Update{
					OperationID: id,
					Err:         fmt.Errorf("%w after %d failures: %w", ErrPollExhausted, failures, err),
					Exhausted:   true,
				})
				return
			}

			delay = p.errorDelay(failures)
			log.WithError(err).WithFields(logrus.Fields{"failures": failures, "retry_in": delay}).Warn("Progress fetch failed")
			p.publish(gen, Update{OperationID: id, Err: err})
		} else {
			failures = 0
			failingSince = time.Time{}

			snapshot.OperationID = id
			snapshot.ApplyExpectedTotal(expectedTotal)
			terminal := snapshot.Status.IsTerminal()

			p.publish(gen, Update{OperationID: id, Snapshot: snapshot, Terminal: terminal})
			if terminal {
				log.WithField("status", snapshot.Status).Info("Operation reached terminal status")
				return
			}

			delay = p.cfg.IdleInterval
			if snapshot.Status == models.StatusRunning {
				delay = p.cfg.RunningInterval
			}
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

// publish records the update and hands it to the callback unless the loop
// that produced it has been superseded
func (p *Poller) publish(gen uint64, u Update) {
	p.mu.Lock()
	if gen != p.gen {
		p.mu.Unlock()
		return
	}
	if u.Snapshot != nil {
		p.latest = u.Snapshot
	} else {
		u.Snapshot = p.latest
	}
	p.lastErr = u.Err
	p.mu.Unlock()

	p.onUpdate(u)
}

func (p *Poller) errorDelay(failures int) time.Duration {
	delay := p.cfg.ErrorInterval
	for i := 1; i < failures; i++ {
		delay *= 2
		if p.cfg.MaxErrorInterval > 0 && delay >= p.cfg.MaxErrorInterval {
			return p.cfg.MaxErrorInterval
		}
	}
	if p.cfg.MaxErrorInterval > 0 && delay > p.cfg.MaxErrorInterval {
		return p.cfg.MaxErrorInterval
	}
	return delay
}

func isClosed(ch chan struct{}) bool {
	select {
	case <-ch:
		return true
	default:
		return false
	}
}
