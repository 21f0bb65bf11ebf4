package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/quantfold/nextday/pkg/logger"
)

// Job is one schedulable unit of work.
type Job interface {
	Name() string
	Run(ctx context.Context) error
	// Schedule returns a six-field cron expression (seconds included),
	// e.g. "0 30 16 * * MON-FRI".
	Schedule() string
}

// Result records one job execution.
type Result struct {
	JobName  string        `json:"job_name"`
	Start    time.Time     `json:"start"`
	Duration time.Duration `json:"duration"`
	Success  bool          `json:"success"`
	Error    string        `json:"error,omitempty"`
}

// Scheduler runs registered jobs on their cron schedules, retrying
// failures with a fixed delay.
type Scheduler struct {
	cron    *cron.Cron
	logger  *logger.Logger
	jobs    map[string]Job
	history map[string][]Result
	mu      sync.RWMutex

	maxRetries int
	retryDelay time.Duration
}

const historyLimit = 100

// New creates an empty scheduler.
func New(log *logger.Logger) *Scheduler {
	return &Scheduler{
		cron:       cron.New(cron.WithSeconds()),
		logger:     log.WithField("component", "scheduler"),
		jobs:       make(map[string]Job),
		history:    make(map[string][]Result),
		maxRetries: 2,
		retryDelay: time.Minute,
	}
}

// AddJob registers a job under its name. Duplicate names are an error.
func (s *Scheduler) AddJob(job Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	name := job.Name()
	if _, exists := s.jobs[name]; exists {
		return fmt.Errorf("job %s already registered", name)
	}

	if _, err := s.cron.AddFunc(job.Schedule(), func() { s.runJob(job) }); err != nil {
		return fmt.Errorf("schedule job %s: %w", name, err)
	}

	s.jobs[name] = job
	s.logger.WithFields(map[string]interface{}{
		"job":      name,
		"schedule": job.Schedule(),
	}).Info("job registered")
	return nil
}

// Start begins dispatching jobs.
func (s *Scheduler) Start() {
	s.logger.Info("scheduler starting")
	s.cron.Start()
}

// Stop waits for in-flight jobs to finish.
func (s *Scheduler) Stop() {
	s.logger.Info("scheduler stopping")
	<-s.cron.Stop().Done()
	s.logger.Info("scheduler stopped")
}

// RunNow triggers a registered job immediately, off-schedule.
func (s *Scheduler) RunNow(name string) error {
	s.mu.RLock()
	job, exists := s.jobs[name]
	s.mu.RUnlock()

	if !exists {
		return fmt.Errorf("job %s not found", name)
	}
	go s.runJob(job)
	return nil
}

// History returns the recorded executions for a job, oldest first.
func (s *Scheduler) History(name string) []Result {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Result(nil), s.history[name]...)
}

func (s *Scheduler) runJob(job Job) {
	name := job.Name()
	start := time.Now()
	s.logger.WithField("job", name).Info("job started")

	var lastErr error
	success := false
	for attempt := 0; attempt <= s.maxRetries; attempt++ {
		if err := job.Run(context.Background()); err != nil {
			lastErr = err
			s.logger.WithFields(map[string]interface{}{
				"job":     name,
				"attempt": attempt + 1,
				"error":   err.Error(),
			}).Warn("job attempt failed")
			if attempt < s.maxRetries {
				time.Sleep(s.retryDelay)
			}
			continue
		}
		success = true
		break
	}

	res := Result{
		JobName:  name,
		Start:    start,
		Duration: time.Since(start),
		Success:  success,
	}
	if !success && lastErr != nil {
		res.Error = lastErr.Error()
	}

	s.mu.Lock()
	hist := append(s.history[name], res)
	if len(hist) > historyLimit {
		hist = hist[len(hist)-historyLimit:]
	}
	s.history[name] = hist
	s.mu.Unlock()

	if success {
		s.logger.WithFields(map[string]interface{}{
			"job":      name,
			"duration": res.Duration,
		}).Info("job completed")
	} else {
		s.logger.WithFields(map[string]interface{}{
			"job":      name,
			"duration": res.Duration,
			"error":    res.Error,
		}).Error("job failed after retries")
	}
}
