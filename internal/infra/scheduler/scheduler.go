package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"guild_scheduler_bot/internal/app"
	"guild_scheduler_bot/internal/domain/guildconfig"
)

const (
	pollTimeout   = 50 * time.Second
	resyncTimeout = 2 * time.Minute
)

// NewEngine builds the single cron engine shared by the poll tick, the resync tick and
// every recurring trigger. Panics inside jobs are recovered and logged.
func NewEngine(logger *logrus.Entry) *cron.Cron {
	cronLogger := cron.PrintfLogger(logger.WithField("component", "cron"))
	return cron.New(
		cron.WithLocation(time.UTC),
		cron.WithLogger(cronLogger),
		cron.WithChain(cron.Recover(cronLogger)),
	)
}

// Scheduler owns the engine lifecycle and its fixed jobs.
type Scheduler struct {
	engine     *cron.Cron
	dispatch   app.DispatchService
	registry   *app.Registry
	configs    guildconfig.Repository
	logger     *logrus.Entry
	pollSpec   string
	resyncSpec string
	now        func() time.Time
}

func NewScheduler(
	engine *cron.Cron,
	dispatch app.DispatchService,
	registry *app.Registry,
	configs guildconfig.Repository,
	logger *logrus.Entry,
	pollSpec string,   // e.g. "* * * * *"
	resyncSpec string, // e.g. "*/15 * * * *"
) *Scheduler {
	return &Scheduler{
		engine:     engine,
		dispatch:   dispatch,
		registry:   registry,
		configs:    configs,
		logger:     logger.WithField("component", "scheduler"),
		pollSpec:   pollSpec,
		resyncSpec: resyncSpec,
		now:        time.Now,
	}
}

// Start seeds the recurring registry, registers the poll and resync ticks and starts
// the engine. It does not block.
func (s *Scheduler) Start(ctx context.Context) error {
	s.logger.Info("Starting scheduler...")

	if err := s.registry.Seed(ctx, s.configs); err != nil {
		// The resync tick will retry; one-off dispatch does not depend on it.
		s.logger.WithError(err).Error("Initial seed of recurring jobs failed")
	}

	skip := cron.SkipIfStillRunning(cron.PrintfLogger(s.logger))
	_, err := s.engine.AddJob(s.pollSpec, cron.NewChain(skip).Then(cron.FuncJob(func() {
		s.runPoll(ctx)
	})))
	if err != nil {
		return fmt.Errorf("could not add poll job %q: %w", s.pollSpec, err)
	}

	_, err = s.engine.AddJob(s.resyncSpec, cron.NewChain(skip).Then(cron.FuncJob(func() {
		s.runResync(ctx)
	})))
	if err != nil {
		return fmt.Errorf("could not add resync job %q: %w", s.resyncSpec, err)
	}

	s.engine.Start()
	s.logger.WithFields(logrus.Fields{
		"poll_spec":      s.pollSpec,
		"resync_spec":    s.resyncSpec,
		"recurring_jobs": s.registry.Len(),
	}).Info("Scheduler started")
	return nil
}

func (s *Scheduler) runPoll(parent context.Context) {
	ctx, cancel := context.WithTimeout(parent, pollTimeout)
	defer cancel()
	if err := s.dispatch.RunPollCycle(ctx, s.now()); err != nil {
		s.logger.WithError(err).Error("Poll cycle failed")
	}
}

// runResync re-enumerates the store so changes missed by the feed still converge.
func (s *Scheduler) runResync(parent context.Context) {
	ctx, cancel := context.WithTimeout(parent, resyncTimeout)
	defer cancel()
	if err := s.registry.Seed(ctx, s.configs); err != nil {
		s.logger.WithError(err).Error("Periodic resync failed")
	}
}

// Stop removes the recurring triggers and waits for running jobs to finish.
func (s *Scheduler) Stop() {
	s.logger.Info("Stopping scheduler...")
	s.registry.Stop()
	stopped := s.engine.Stop()
	<-stopped.Done()
	s.logger.Info("Scheduler gracefully stopped.")
}
