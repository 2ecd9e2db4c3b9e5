// ///////////////////////////////////////////////////////////////////////////
//
// # xdiff - Cross-Engine Table Diff
//
// Copyright (C) 2023 - 2026, pgEdge (https://www.pgedge.com/)
//
// This software is released under the PostgreSQL License:
// https://opensource.org/license/postgresql
//
// ///////////////////////////////////////////////////////////////////////////

// Package scheduler runs table diffs periodically with gocron.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/pgedge/xdiff/pkg/logger"
)

// Job is one periodic task. Exactly one of Frequency and Cron is set.
type Job struct {
	Name       string
	Frequency  time.Duration
	Cron       string
	RunOnStart bool
	Task       func(context.Context) error
}

type Manager struct {
	scheduler gocron.Scheduler
	jobs      []Job
	failures  atomic.Int64
}

func NewManager() (*Manager, error) {
	sched, err := gocron.NewScheduler(gocron.WithLocation(time.UTC))
	if err != nil {
		return nil, fmt.Errorf("create scheduler: %w", err)
	}
	return &Manager{scheduler: sched}, nil
}

func (m *Manager) AddJob(job Job) {
	m.jobs = append(m.jobs, job)
}

// Failures counts job runs that returned an error.
func (m *Manager) Failures() int64 {
	return m.failures.Load()
}

func (m *Manager) runOnce(ctx context.Context, job Job) {
	if ctx.Err() != nil {
		return
	}
	start := time.Now()
	if err := job.Task(ctx); err != nil {
		m.failures.Add(1)
		logger.Error("scheduler: job %s failed after %s: %v", job.Name, time.Since(start).Round(time.Millisecond), err)
		return
	}
	logger.Info("scheduler: job %s finished in %s", job.Name, time.Since(start).Round(time.Millisecond))
}

// Run schedules every job and blocks until ctx is cancelled. A job whose
// previous run is still going skips its next tick.
func (m *Manager) Run(ctx context.Context) error {
	if len(m.jobs) == 0 {
		logger.Info("scheduler: no jobs registered; exiting")
		return nil
	}

	for _, job := range m.jobs {
		if job.Task == nil {
			return fmt.Errorf("scheduler: job %q has no task", job.Name)
		}
		var def gocron.JobDefinition
		switch {
		case job.Cron != "":
			def = gocron.CronJob(job.Cron, false)
		case job.Frequency > 0:
			def = gocron.DurationJob(job.Frequency)
		default:
			return fmt.Errorf("scheduler: job %q requires either frequency or cron", job.Name)
		}

		if job.RunOnStart {
			m.runOnce(ctx, job)
		}

		gJob, err := m.scheduler.NewJob(def,
			gocron.NewTask(func() { m.runOnce(ctx, job) }),
			gocron.WithName(job.Name),
			gocron.WithSingletonMode(gocron.LimitModeReschedule),
		)
		if err != nil {
			return fmt.Errorf("scheduler: schedule job %q: %w", job.Name, err)
		}
		logger.Info("scheduler: job %s scheduled (ID: %s)", job.Name, gJob.ID())
	}

	m.scheduler.Start()
	<-ctx.Done()
	logger.Info("scheduler: shutting down")
	if err := m.scheduler.Shutdown(); err != nil {
		return fmt.Errorf("scheduler shutdown: %w", err)
	}
	return nil
}

func RunJobs(ctx context.Context, jobs []Job) error {
	manager, err := NewManager()
	if err != nil {
		return err
	}
	for _, job := range jobs {
		manager.AddJob(job)
	}
	return manager.Run(ctx)
}

func RunSingleJob(ctx context.Context, job Job) error {
	return RunJobs(ctx, []Job{job})
}

func ParseFrequency(raw string) (time.Duration, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return 0, errors.New("frequency string cannot be empty")
	}
	d, err := time.ParseDuration(trimmed)
	if err != nil {
		return 0, fmt.Errorf("parse frequency %q: %w", raw, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("frequency must be positive: %s", raw)
	}
	return d, nil
}
