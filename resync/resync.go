// Package resync publishes a TasksUpdated event on a cron schedule so every
// live board reloads even when no producer announced a change.
package resync

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	log "github.com/sirupsen/logrus"

	"onboarding-board/events"
)

// Source tags events published by the scheduler.
const Source = "resync"

// Scheduler wraps a cron runner with a single resync job.
type Scheduler struct {
	cron      *cron.Cron
	publisher events.Publisher
	logger    *log.Logger
	timeout   time.Duration
}

// New registers the resync job under spec, which accepts the standard five
// field format and descriptors such as "@every 5m".
func New(spec string, publisher events.Publisher, logger *log.Logger) (*Scheduler, error) {
	s := &Scheduler{
		cron:      cron.New(),
		publisher: publisher,
		logger:    logger,
		timeout:   10 * time.Second,
	}
	if _, err := s.cron.AddFunc(spec, s.Tick); err != nil {
		return nil, err
	}
	return s, nil
}

// Tick publishes one resync event.
func (s *Scheduler) Tick() {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	if err := s.publisher.Publish(ctx, events.TasksUpdated{Source: Source}); err != nil {
		s.logger.WithError(err).Warn("resync publish failed")
		return
	}
	s.logger.Debug("resync published")
}

func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop halts the schedule and waits for a running tick to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}

// Run starts the scheduler and stops it when ctx is done.
func (s *Scheduler) Run(ctx context.Context) {
	s.Start()
	<-ctx.Done()
	s.Stop()
}
