package dashboard

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"claygrounds-desktop/internal/api"
	"claygrounds-desktop/internal/config"
	"claygrounds-desktop/internal/events"
)

const refreshTimeout = 20 * time.Second

// Service keeps the dashboard data fresh on cron schedules
type Service struct {
	source  Source
	emitter events.Emitter
	log     *logrus.Entry
	now     func() time.Time

	cron   *cron.Cron
	jobs   map[Job]cron.EntryID
	every  map[Job]time.Duration
	jobsMu sync.RWMutex

	mu       sync.RWMutex
	snapshot Snapshot
	lastRun  map[Job]time.Time

	ctx    context.Context
	cancel context.CancelFunc
}

// NewService creates a dashboard service. Venue health refreshes with stats.
func NewService(source Source, cfg config.RefreshConfig, emitter events.Emitter, log *logrus.Entry) *Service {
	if emitter == nil {
		emitter = events.Noop{}
	}
	log = log.WithField("svc", "dashboard")
	cronLog := cron.PrintfLogger(log)

	return &Service{
		source:  source,
		emitter: emitter,
		log:     log,
		now:     time.Now,
		cron: cron.New(
			cron.WithLogger(cronLog),
			cron.WithChain(cron.Recover(cronLog), cron.SkipIfStillRunning(cronLog)),
		),
		jobs: make(map[Job]cron.EntryID),
		every: map[Job]time.Duration{
			JobStats:  cfg.Stats,
			JobHealth: cfg.Health,
			JobVenues: cfg.Stats,
		},
		lastRun: make(map[Job]time.Time),
		ctx:     context.Background(),
		cancel:  func() {},
	}
}

// Start schedules every job, starts the cron runner and refreshes once in
// the background
func (s *Service) Start(ctx context.Context) error {
	s.jobsMu.Lock()
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.jobsMu.Unlock()

	for _, job := range Jobs {
		if err := s.scheduleJob(job, s.interval(job)); err != nil {
			return err
		}
	}
	s.cron.Start()
	s.log.WithField("jobs", len(Jobs)).Info("Dashboard refresh started")

	go func() {
		if err := s.RefreshAll(s.context()); err != nil {
			s.log.WithError(err).Warn("Initial dashboard refresh incomplete")
		}
	}()
	return nil
}

// Stop halts the schedules and waits for running refreshes
func (s *Service) Stop() {
	s.jobsMu.RLock()
	cancel := s.cancel
	s.jobsMu.RUnlock()
	cancel()

	<-s.cron.Stop().Done()
	s.log.Info("Dashboard refresh stopped")
}

// Reschedule changes how often a job runs
func (s *Service) Reschedule(job Job, every time.Duration) error {
	if !validJob(job) {
		return fmt.Errorf("unknown dashboard job %q", job)
	}
	if err := s.scheduleJob(job, every); err != nil {
		return err
	}
	s.log.WithFields(logrus.Fields{"job": job, "every": every}).Info("Dashboard job rescheduled")
	return nil
}

// Jobs lists the schedules with their last and next run
func (s *Service) Jobs() []JobInfo {
	s.jobsMu.RLock()
	defer s.jobsMu.RUnlock()
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]JobInfo, 0, len(Jobs))
	for _, job := range Jobs {
		info := JobInfo{Job: job, Every: s.every[job].String()}
		if t, ok := s.lastRun[job]; ok {
			last := t
			info.LastRun = &last
		}
		if id, ok := s.jobs[job]; ok {
			if next := s.cron.Entry(id).Next; !next.IsZero() {
				info.NextRun = &next
			}
		}
		out = append(out, info)
	}
	return out
}

// Snapshot returns the latest dashboard data
func (s *Service) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshot
}

// RefreshAll refreshes every job and joins their errors
func (s *Service) RefreshAll(ctx context.Context) error {
	var errs []error
	for _, job := range Jobs {
		if err := s.Refresh(ctx, job); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", job, err))
		}
	}
	return errors.Join(errs...)
}

// Refresh fetches one job now. A failure keeps the previous value and
// records the error next to it.
func (s *Service) Refresh(ctx context.Context, job Job) error {
	var err error
	switch job {
	case JobStats:
		err = refresh(ctx, s, s.source.GetStats, func(sn *Snapshot) *Reading[api.Stats] { return &sn.Stats },
			events.DashboardStats, "Failed to fetch stats data")
	case JobHealth:
		err = refresh(ctx, s, s.source.GetHealth, func(sn *Snapshot) *Reading[api.Health] { return &sn.Health },
			events.DashboardHealth, "Failed to fetch health data")
	case JobVenues:
		err = refresh(ctx, s, s.source.GetVenueHealth, func(sn *Snapshot) *Reading[api.VenueHealth] { return &sn.Venues },
			events.DashboardVenues, "Failed to fetch venue data")
	default:
		return fmt.Errorf("unknown dashboard job %q", job)
	}

	s.mu.Lock()
	s.lastRun[job] = s.now()
	s.mu.Unlock()

	if err != nil {
		s.log.WithError(err).WithField("job", job).Warn("Dashboard refresh failed")
	}
	return err
}

func refresh[T any](ctx context.Context, s *Service, get func(context.Context) (*T, error), slot func(*Snapshot) *Reading[T], event, fallback string) error {
	s.mu.Lock()
	slot(&s.snapshot).Loading = true
	s.mu.Unlock()

	value, err := get(ctx)

	s.mu.Lock()
	r := slot(&s.snapshot)
	r.Loading = false
	if err != nil {
		r.Error = api.Message(err, fallback)
	} else {
		r.Value = value
		r.Error = ""
		r.UpdatedAt = s.now()
	}
	out := *r
	s.mu.Unlock()

	s.emitter.Emit(event, out)
	return err
}

// scheduleJob adds or replaces the cron entry of a job
func (s *Service) scheduleJob(job Job, every time.Duration) error {
	if every <= 0 {
		return fmt.Errorf("invalid refresh interval %s for %s", every, job)
	}
	spec := fmt.Sprintf("@every %s", every)

	s.jobsMu.Lock()
	defer s.jobsMu.Unlock()

	if entryID, exists := s.jobs[job]; exists {
		s.cron.Remove(entryID)
		delete(s.jobs, job)
	}

	entryID, err := s.cron.AddFunc(spec, func() { s.executeJob(job) })
	if err != nil {
		return fmt.Errorf("failed to add cron job %s: %w", job, err)
	}
	s.jobs[job] = entryID
	s.every[job] = every
	return nil
}

// executeJob is the cron callback
func (s *Service) executeJob(job Job) {
	ctx, cancel := context.WithTimeout(s.context(), refreshTimeout)
	defer cancel()
	_ = s.Refresh(ctx, job)
}

func (s *Service) interval(job Job) time.Duration {
	s.jobsMu.RLock()
	defer s.jobsMu.RUnlock()
	return s.every[job]
}

func (s *Service) context() context.Context {
	s.jobsMu.RLock()
	defer s.jobsMu.RUnlock()
	return s.ctx
}

func validJob(job Job) bool {
	for _, j := range Jobs {
		if j == job {
			return true
		}
	}
	return false
}
