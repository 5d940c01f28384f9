package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"xray-profile/internal/config"
)

// Job is one unit of periodic work.
type Job struct {
	Name string
	Run  func(context.Context) error
}

// JobStatus is the outcome of the last run of a job.
type JobStatus struct {
	Name     string
	LastRun  time.Time
	Duration time.Duration
	Err      error
	Runs     int
}

// Scheduler runs its jobs once at start and then on every firing of a cron
// schedule until the context ends. Jobs of one round run in order; a failing
// job does not stop the ones after it. Overlapping rounds are skipped.
type Scheduler struct {
	spec     string
	schedule cron.Schedule
	jobs     []Job
	logger   *zap.Logger

	round    sync.Mutex
	mu       sync.RWMutex
	status   map[string]JobStatus
	stopping bool
	stop     chan struct{}
}

func NewScheduler(spec string, jobs []Job, logger *zap.Logger) (*Scheduler, error) {
	schedule, err := config.ScheduleParser.Parse(spec)
	if err != nil {
		return nil, fmt.Errorf("invalid schedule %q: %w", spec, err)
	}
	return &Scheduler{
		spec:     spec,
		schedule: schedule,
		jobs:     jobs,
		logger:   logger.With(zap.String("component", "scheduler")),
		status:   make(map[string]JobStatus, len(jobs)),
		stop:     make(chan struct{}),
	}, nil
}

// Start blocks until ctx is done or Stop is called, then waits for a
// running round to finish.
func (s *Scheduler) Start(ctx context.Context) error {
	if !s.IsHealthy() {
		return nil
	}

	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	c.Schedule(s.schedule, cron.FuncJob(func() {
		_ = s.RunOnce(ctx)
	}))

	s.logger.Info("scheduler started",
		zap.String("schedule", s.spec),
		zap.Time("next", s.schedule.Next(time.Now())))
	_ = s.RunOnce(ctx)
	c.Start()

	select {
	case <-ctx.Done():
		s.logger.Debug("scheduler stopped", zap.Error(ctx.Err()))
	case <-s.stop:
		s.logger.Debug("scheduler stopped")
	}
	<-c.Stop().Done()
	return nil
}

// RunOnce runs every job and returns their combined errors. A call made while
// another round is running waits for it.
func (s *Scheduler) RunOnce(ctx context.Context) error {
	s.round.Lock()
	defer s.round.Unlock()

	var errs error
	for _, job := range s.jobs {
		if ctx.Err() != nil {
			errs = multierr.Append(errs, ctx.Err())
			break
		}

		start := time.Now()
		err := job.Run(ctx)
		s.record(job.Name, start, err)

		if err != nil {
			s.logger.Error("job failed",
				zap.String("job", job.Name),
				zap.Error(err))
			errs = multierr.Append(errs, fmt.Errorf("%s: %w", job.Name, err))
			continue
		}
		s.logger.Info("job completed",
			zap.String("job", job.Name),
			zap.Duration("duration", time.Since(start)))
	}
	return errs
}

func (s *Scheduler) record(name string, start time.Time, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.status[name]
	st.Name = name
	st.LastRun = start
	st.Duration = time.Since(start)
	st.Err = err
	st.Runs++
	s.status[name] = st
}

// Status returns the last outcome of every job in configured order.
// A job that has not run yet has a zero LastRun.
func (s *Scheduler) Status() []JobStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]JobStatus, 0, len(s.jobs))
	for _, job := range s.jobs {
		st := s.status[job.Name]
		st.Name = job.Name
		out = append(out, st)
	}
	return out
}

// Stop makes Start return. It is safe to call more than once.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.stopping {
		s.stopping = true
		close(s.stop)
	}
	return nil
}

func (s *Scheduler) IsHealthy() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return !s.stopping
}
