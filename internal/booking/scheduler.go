package booking

import (
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Scheduler runs named recurring jobs. Registering a name again replaces the
// earlier job; the returned cancel removes it.
type Scheduler interface {
	Every(name string, interval time.Duration, fn func()) (cancel func(), err error)
}

// CronScheduler is a Scheduler backed by robfig/cron.
type CronScheduler struct {
	cron   *cron.Cron
	logger *zap.Logger

	jobs   map[string]cron.EntryID
	jobsMu sync.Mutex
}

// NewCronScheduler creates a scheduler. Call Start before jobs can fire.
func NewCronScheduler(logger *zap.Logger) *CronScheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CronScheduler{
		cron:   cron.New(cron.WithSeconds()),
		logger: logger.With(zap.String("component", "scheduler")),
		jobs:   make(map[string]cron.EntryID),
	}
}

// Start begins running jobs.
func (s *CronScheduler) Start() {
	s.cron.Start()
	s.logger.Info("Availability scheduler started")
}

// Stop waits for running jobs and stops the scheduler.
func (s *CronScheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.logger.Info("Availability scheduler stopped")
}

// Every schedules fn every interval under name.
func (s *CronScheduler) Every(name string, interval time.Duration, fn func()) (func(), error) {
	if interval < time.Second {
		return nil, fmt.Errorf("interval %s is below the one second resolution", interval)
	}

	s.jobsMu.Lock()
	defer s.jobsMu.Unlock()

	if existing, ok := s.jobs[name]; ok {
		s.cron.Remove(existing)
		delete(s.jobs, name)
	}

	id, err := s.cron.AddFunc("@every "+interval.String(), fn)
	if err != nil {
		return nil, fmt.Errorf("scheduling %s: %w", name, err)
	}
	s.jobs[name] = id
	s.logger.Debug("Scheduled job", zap.String("job", name), zap.Duration("interval", interval))

	return func() { s.remove(name, id) }, nil
}

// Jobs returns the number of scheduled jobs.
func (s *CronScheduler) Jobs() int {
	s.jobsMu.Lock()
	defer s.jobsMu.Unlock()
	return len(s.jobs)
}

func (s *CronScheduler) remove(name string, id cron.EntryID) {
	s.jobsMu.Lock()
	defer s.jobsMu.Unlock()

	// A later Every for the same name owns the slot now.
	if current, ok := s.jobs[name]; !ok || current != id {
		return
	}
	s.cron.Remove(id)
	delete(s.jobs, name)
	s.logger.Debug("Unscheduled job", zap.String("job", name))
}
