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

package scheduler

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/pgedge/xdiff/internal/core"
	"github.com/pgedge/xdiff/pkg/config"
)

type scheduleSpec struct {
	frequency time.Duration
	cron      string
}

// BuildJobsFromConfig pairs every enabled schedule_config entry with its
// schedule_jobs definition.
func BuildJobsFromConfig(cfg *config.Config) ([]Job, error) {
	if cfg == nil {
		return nil, fmt.Errorf("scheduler: configuration is not initialised")
	}

	jobDefs := make(map[string]config.JobDef, len(cfg.ScheduleJobs))
	for _, def := range cfg.ScheduleJobs {
		jobDefs[def.Name] = def
	}

	var jobs []Job
	for _, sched := range cfg.ScheduleConfig {
		if !sched.Enabled {
			continue
		}
		def, ok := jobDefs[sched.JobName]
		if !ok {
			return nil, fmt.Errorf("scheduler: job definition %q not found", sched.JobName)
		}
		spec, err := specFromConfig(sched)
		if err != nil {
			return nil, fmt.Errorf("scheduler: job %q: %w", def.Name, err)
		}
		job, err := buildTableDiffJob(def, spec)
		if err != nil {
			return nil, fmt.Errorf("scheduler: job %q: %w", def.Name, err)
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}

func specFromConfig(def config.SchedDef) (scheduleSpec, error) {
	var spec scheduleSpec
	if strings.TrimSpace(def.CrontabSchedule) != "" {
		spec.cron = strings.TrimSpace(def.CrontabSchedule)
	}
	if strings.TrimSpace(def.RunFrequency) != "" {
		freq, err := ParseFrequency(def.RunFrequency)
		if err != nil {
			return scheduleSpec{}, err
		}
		spec.frequency = freq
	}
	switch {
	case spec.cron == "" && spec.frequency == 0:
		return scheduleSpec{}, fmt.Errorf("either run_frequency or crontab_schedule must be set")
	case spec.cron != "" && spec.frequency > 0:
		return scheduleSpec{}, fmt.Errorf("cannot set both run_frequency and crontab_schedule")
	}
	return spec, nil
}

func buildTableDiffJob(def config.JobDef, spec scheduleSpec) (Job, error) {
	if strings.TrimSpace(def.Table1) == "" || strings.TrimSpace(def.Table2) == "" {
		return Job{}, fmt.Errorf("table1 and table2 are required")
	}
	if def.Connection1 == "" || def.Connection2 == "" {
		return Job{}, fmt.Errorf("connection1 and connection2 are required")
	}

	base := core.NewTableDiffTask()
	base.Connection1, base.Table1 = def.Connection1, def.Table1
	base.Connection2, base.Table2 = def.Connection2, def.Table2
	base.Keys = stringListArg(def.Args, "key")
	base.Columns = stringListArg(def.Args, "columns")
	base.UpdateColumn = stringArg(def.Args, "update_column")
	base.MinUpdate = stringArg(def.Args, "min_update")
	base.MaxUpdate = stringArg(def.Args, "max_update")
	base.Where = stringArg(def.Args, "where")
	base.Model = stringArg(def.Args, "model")
	if v := intArg(def.Args, "bisection_factor", 0); v > 0 {
		base.BisectionFactor = v
	}
	if v := intArg(def.Args, "bisection_threshold", 0); v > 0 {
		base.BisectionThreshold = int64(v)
	}
	if v := intArg(def.Args, "max_concurrency", 0); v > 0 {
		base.MaxConcurrency = v
	}
	if out := stringArg(def.Args, "output"); out != "" {
		base.Output = out
	} else {
		base.Output = core.OutputNone
	}
	if dir := stringArg(def.Args, "output_dir"); dir != "" {
		base.OutputDir = dir
	}
	base.Summary = boolArg(def.Args, "summary", base.Summary)
	base.SkipDBUpdate = boolArg(def.Args, "skip_db_update", base.SkipDBUpdate)
	if path := stringArg(def.Args, "taskstore_path"); path != "" {
		base.TaskStorePath = path
	}
	if err := base.Validate(); err != nil {
		return Job{}, err
	}

	return Job{
		Name:       jobName(def, base.Table1),
		Frequency:  spec.frequency,
		Cron:       spec.cron,
		RunOnStart: true,
		Task: func(ctx context.Context) error {
			runTask := base.CloneForSchedule(ctx)
			if err := runTask.RunChecks(false); err != nil {
				return fmt.Errorf("checks failed: %w", err)
			}
			if err := runTask.ExecuteTask(); err != nil {
				return fmt.Errorf("execution failed: %w", err)
			}
			return nil
		},
	}, nil
}

// TableDiffJob wraps a task prepared by the table-diff command.
func TableDiffJob(task *core.TableDiffTask, every time.Duration) Job {
	return Job{
		Name:       fmt.Sprintf("table-diff:%s", task.Table1),
		Frequency:  every,
		RunOnStart: true,
		Task: func(ctx context.Context) error {
			runTask := task.CloneForSchedule(ctx)
			if err := runTask.RunChecks(false); err != nil {
				return fmt.Errorf("checks failed: %w", err)
			}
			return runTask.ExecuteTask()
		},
	}
}

func jobName(def config.JobDef, target string) string {
	if strings.TrimSpace(def.Name) != "" {
		return def.Name
	}
	return fmt.Sprintf("table-diff:%s", target)
}

func stringArg(args map[string]any, key string) string {
	if args == nil {
		return ""
	}
	if val, ok := args[key]; ok && val != nil {
		switch v := val.(type) {
		case string:
			return v
		case fmt.Stringer:
			return v.String()
		default:
			return fmt.Sprintf("%v", v)
		}
	}
	return ""
}

// stringListArg accepts a YAML list or a comma-separated string.
func stringListArg(args map[string]any, key string) []string {
	if args == nil {
		return nil
	}
	var out []string
	switch v := args[key].(type) {
	case []any:
		for _, item := range v {
			if s := strings.TrimSpace(fmt.Sprintf("%v", item)); s != "" {
				out = append(out, s)
			}
		}
	case []string:
		out = append(out, v...)
	case string:
		for _, part := range strings.Split(v, ",") {
			if s := strings.TrimSpace(part); s != "" {
				out = append(out, s)
			}
		}
	}
	return out
}

func boolArg(args map[string]any, key string, defaultVal bool) bool {
	if args == nil {
		return defaultVal
	}
	if val, ok := args[key]; ok {
		switch v := val.(type) {
		case bool:
			return v
		case string:
			if parsed, err := strconv.ParseBool(v); err == nil {
				return parsed
			}
		case int:
			return v != 0
		}
	}
	return defaultVal
}

func intArg(args map[string]any, key string, defaultVal int) int {
	if args == nil {
		return defaultVal
	}
	if val, ok := args[key]; ok {
		switch v := val.(type) {
		case int:
			return v
		case int64:
			return int(v)
		case float64:
			return int(v)
		case string:
			if parsed, err := strconv.Atoi(v); err == nil {
				return parsed
			}
		}
	}
	return defaultVal
}
