package cron

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/robfig/cron/v3"
)

// parser accepts 5-field expressions and descriptors such as "@every 2h".
var parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

var (
	ErrUnknownJob = errors.New("cron: unknown job")
	ErrJobBusy    = errors.New("cron: job already running")
	ErrNotStarted = errors.New("cron: scheduler not started")
)

var (
	jobRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "trekassist",
		Subsystem: "cron",
		Name:      "job_runs_total",
		Help:      "Background job runs by job and outcome.",
	}, []string{"job", "outcome"})

	jobDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "trekassist",
		Subsystem: "cron",
		Name:      "job_duration_seconds",
		Help:      "Background job run time.",
		Buckets:   []float64{0.01, 0.1, 0.5, 1, 5, 15, 60},
	}, []string{"job"})
)

// JobStatus describes one registered job.
type JobStatus struct {
	Name      string        `json:"name"`
	Schedule  string        `json:"schedule"`
	Running   bool          `json:"running"`
	Runs      int           `json:"runs"`
	Skipped   int           `json:"skipped"`
	LastRun   time.Time     `json:"last_run,omitzero"`
	Duration  time.Duration `json:"last_duration_ns,omitempty"`
	LastError string        `json:"last_error,omitempty"`
	NextRun   time.Time     `json:"next_run,omitzero"`
}

type entry struct {
	job  Job
	lock sync.Mutex
	id   cron.EntryID

	mu     sync.Mutex
	status JobStatus
}

// Scheduler runs registered jobs on their schedules. A job never overlaps
// itself: a tick that finds the previous run in flight is skipped.
type Scheduler struct {
	mu      sync.Mutex
	cron    *cron.Cron
	entries []*entry
	byName  map[string]*entry
	logger  *slog.Logger
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	now     func() time.Time
}

// NewScheduler creates a scheduler. Jobs must be registered before Start().
func NewScheduler(logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		byName: make(map[string]*entry),
		logger: logger,
		now:    time.Now,
	}
}

// RegisterJob adds a job. Names must be unique.
func (s *Scheduler) RegisterJob(j Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	name := j.Name()
	if _, exists := s.byName[name]; exists {
		return fmt.Errorf("cron: duplicate job name %q", name)
	}
	e := &entry{job: j, status: JobStatus{Name: name, Schedule: j.Schedule()}}
	s.byName[name] = e
	s.entries = append(s.entries, e)
	return nil
}

// Jobs returns the registered job names in registration order.
func (s *Scheduler) Jobs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.entries))
	for i, e := range s.entries {
		out[i] = e.job.Name()
	}
	return out
}

// Start validates every schedule, begins executing registered jobs and
// fires the ones that asked to run at startup.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ctx, cancel := context.WithCancel(context.Background())
	c := cron.New(cron.WithParser(parser))
	for _, e := range s.entries {
		id, err := c.AddFunc(e.job.Schedule(), func() { s.run(ctx, e) })
		if err != nil {
			cancel()
			return fmt.Errorf("cron: invalid schedule for job %q: %w", e.job.Name(), err)
		}
		e.id = id
	}
	s.ctx, s.cancel, s.cron = ctx, cancel, c

	c.Start()
	for _, e := range s.entries {
		if sj, ok := e.job.(StartupJob); ok && sj.RunOnStart() {
			s.wg.Go(func() { s.run(ctx, e) })
		}
	}
	s.logger.Info("cron: scheduler started", "jobs", len(s.entries))
	return nil
}

// RunNow runs the named job synchronously, outside its schedule. It fails
// with ErrJobBusy when a run is already in flight.
func (s *Scheduler) RunNow(ctx context.Context, name string) error {
	s.mu.Lock()
	e, ok := s.byName[name]
	started := s.ctx != nil
	s.mu.Unlock()

	switch {
	case !ok:
		return fmt.Errorf("%w: %q", ErrUnknownJob, name)
	case !started:
		return ErrNotStarted
	}
	if !e.lock.TryLock() {
		return fmt.Errorf("%w: %q", ErrJobBusy, name)
	}
	defer e.lock.Unlock()
	return s.execute(ctx, e)
}

// Status returns every job's run history in registration order.
func (s *Scheduler) Status() []JobStatus {
	s.mu.Lock()
	entries := append([]*entry(nil), s.entries...)
	c := s.cron
	s.mu.Unlock()

	out := make([]JobStatus, len(entries))
	for i, e := range entries {
		e.mu.Lock()
		out[i] = e.status
		e.mu.Unlock()
		if c != nil && e.id != 0 {
			out[i].NextRun = c.Entry(e.id).Next
		}
	}
	return out
}

func (s *Scheduler) run(ctx context.Context, e *entry) {
	if !e.lock.TryLock() {
		e.mu.Lock()
		e.status.Skipped++
		e.mu.Unlock()
		jobRuns.WithLabelValues(e.job.Name(), "skipped").Inc()
		s.logger.Warn("cron: job still running, skipping tick", "job", e.job.Name())
		return
	}
	defer e.lock.Unlock()
	_ = s.execute(ctx, e)
}

// execute runs the job with e.lock held and records the outcome.
func (s *Scheduler) execute(ctx context.Context, e *entry) error {
	name := e.job.Name()
	start := s.now()
	e.mu.Lock()
	e.status.Running = true
	e.mu.Unlock()

	s.logger.Debug("cron: job started", "job", name)
	err := e.job.Run(ctx)
	took := s.now().Sub(start)

	e.mu.Lock()
	e.status.Running = false
	e.status.Runs++
	e.status.LastRun = start
	e.status.Duration = took
	e.status.LastError = ""
	if err != nil {
		e.status.LastError = err.Error()
	}
	e.mu.Unlock()

	jobDuration.WithLabelValues(name).Observe(took.Seconds())
	if err != nil {
		jobRuns.WithLabelValues(name, "error").Inc()
		s.logger.Error("cron: job failed", "job", name, "error", err)
		return err
	}
	jobRuns.WithLabelValues(name, "ok").Inc()
	s.logger.Debug("cron: job completed", "job", name, "duration", took)
	return nil
}

// Stop cancels running jobs and waits for them to return.
func (s *Scheduler) Stop(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel != nil {
		s.cancel()
	}
	if s.cron != nil {
		<-s.cron.Stop().Done()
		s.wg.Wait()
		s.logger.Info("cron: scheduler stopped")
	}
	return nil
}
