// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package jobs runs periodic maintenance work on cron schedules.
package jobs

import (
	"context"
	"fmt"

	mapset "github.com/deckarep/golang-set/v2"
	cron "github.com/robfig/cron"
	"github.com/sirupsen/logrus"
)

// CronJob is a named unit of work with a cron schedule. Schedules use the
// six-field cron syntax (with seconds) or descriptors such as "@every 1h".
type CronJob interface {
	Name() string
	Schedule() string
	Run(ctx context.Context) error
}

// Executor runs CronJobs. A job whose previous invocation is still running
// is skipped rather than started twice.
type Executor struct {
	cron    *cron.Cron
	jobs    []CronJob
	running mapset.Set[string]
	log     *logrus.Entry
}

// NewExecutor creates an executor for jobs. A nil log uses the standard
// logger.
func NewExecutor(log *logrus.Entry, jobs ...CronJob) *Executor {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Executor{
		cron:    cron.New(),
		jobs:    jobs,
		running: mapset.NewSet[string](),
		log:     log.WithField("component", "jobs"),
	}
}

// Start schedules every job and starts the cron loop. Jobs receive ctx.
func (e *Executor) Start(ctx context.Context) error {
	for _, job := range e.jobs {
		if err := e.cron.AddFunc(job.Schedule(), func() { e.RunNow(ctx, job) }); err != nil {
			return fmt.Errorf("scheduling %s (%q): %w", job.Name(), job.Schedule(), err)
		}
		e.log.WithFields(logrus.Fields{"job": job.Name(), "schedule": job.Schedule()}).Info("job scheduled")
	}
	e.cron.Start()
	return nil
}

// RunNow runs job in the calling goroutine unless it is already running.
// It reports whether the job ran.
func (e *Executor) RunNow(ctx context.Context, job CronJob) bool {
	name := job.Name()
	if !e.running.Add(name) {
		e.log.WithField("job", name).Warn("job still running, skipping")
		return false
	}
	defer e.running.Remove(name)

	if err := job.Run(ctx); err != nil {
		e.log.WithError(err).WithField("job", name).Error("job failed")
	}
	return true
}

// Running returns the names of jobs currently executing.
func (e *Executor) Running() []string {
	return e.running.ToSlice()
}

// Stop stops scheduling new invocations. Running jobs are not interrupted.
func (e *Executor) Stop() {
	e.log.Info("stopping jobs")
	e.cron.Stop()
}
