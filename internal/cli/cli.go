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

package cli

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/pgedge/xdiff/internal/consistency/diff"
	"github.com/pgedge/xdiff/internal/core"
	"github.com/pgedge/xdiff/internal/dialect"
	"github.com/pgedge/xdiff/internal/scheduler"
	"github.com/pgedge/xdiff/pkg/config"
	"github.com/pgedge/xdiff/pkg/logger"
	"github.com/pgedge/xdiff/pkg/taskstore"
	"github.com/urfave/cli/v2"
)

//go:embed default_config.yaml
var defaultConfigYAML string

func SetupCLI() *cli.App {
	logFlags := []cli.Flag{
		&cli.BoolFlag{
			Name:    "quiet",
			Aliases: []string{"q"},
			Usage:   "Only log warnings and errors",
		},
		&cli.BoolFlag{
			Name:    "debug",
			Aliases: []string{"v"},
			Usage:   "Enable debug logging",
		},
	}

	tableDiffFlags := append([]cli.Flag{
		&cli.StringSliceFlag{
			Name:    "key",
			Aliases: []string{"k"},
			Usage:   "Key column(s) identifying a row; repeat or comma-separate (default: id)",
		},
		&cli.StringSliceFlag{
			Name:    "columns",
			Aliases: []string{"c"},
			Usage:   "Columns to compare (default: all common non-key columns)",
		},
		&cli.StringFlag{
			Name:  "update-column",
			Usage: "Timestamp column used with --min-update/--max-update",
		},
		&cli.StringFlag{
			Name:  "min-update",
			Usage: "Only compare rows updated at or after this timestamp",
		},
		&cli.StringFlag{
			Name:  "max-update",
			Usage: "Only compare rows updated before this timestamp",
		},
		&cli.StringFlag{
			Name:    "where",
			Aliases: []string{"w"},
			Usage:   "Additional SQL predicate applied to both tables",
		},
		&cli.IntFlag{
			Name:    "bisection-factor",
			Aliases: []string{"f"},
			Usage:   "Number of sub-segments each mismatching segment is split into",
		},
		&cli.Int64Flag{
			Name:    "bisection-threshold",
			Aliases: []string{"t"},
			Usage:   "Row count at or below which a segment is compared row by row",
		},
		&cli.IntFlag{
			Name:    "max-concurrency",
			Aliases: []string{"j"},
			Usage:   "Maximum number of queries in flight",
		},
		&cli.StringFlag{
			Name:  "model",
			Usage: "Model name recorded in the report",
		},
		&cli.StringFlag{
			Name:    "output",
			Aliases: []string{"o"},
			Usage:   "Report format on stdout: json or text",
			Value:   core.OutputJSON,
		},
		&cli.StringFlag{
			Name:  "output-dir",
			Usage: "Directory for JSON/HTML diff files (default from config)",
		},
		&cli.BoolFlag{
			Name:    "summary",
			Aliases: []string{"s"},
			Usage:   "Include row counts and column comparison in the report",
		},
		&cli.BoolFlag{
			Name:  "explain",
			Usage: "Log the query plan of the root checksum query on each side",
		},
		&cli.BoolFlag{
			Name:    "schedule",
			Aliases: []string{"S"},
			Usage:   "Run the diff repeatedly, see --every",
		},
		&cli.StringFlag{
			Name:    "every",
			Aliases: []string{"e"},
			Usage:   "Interval between scheduled runs, e.g. 30m",
		},
	}, logFlags...)

	configInitFlags := []cli.Flag{
		&cli.StringFlag{
			Name:    "path",
			Aliases: []string{"p"},
			Usage:   "Where to write the config file",
			Value:   "xdiff.yaml",
		},
		&cli.BoolFlag{
			Name:    "force",
			Aliases: []string{"x"},
			Usage:   "Overwrite an existing file",
		},
		&cli.BoolFlag{
			Name:  "stdout",
			Usage: "Print the config to stdout instead of writing a file",
		},
	}

	app := &cli.App{
		Name:  "xdiff",
		Usage: "Compare tables across database engines",
		Commands: []*cli.Command{
			{
				Name:  "config",
				Usage: "Manage xdiff configuration files",
				Subcommands: []*cli.Command{
					{
						Name:   "init",
						Usage:  "Create a default xdiff.yaml file",
						Flags:  configInitFlags,
						Action: ConfigInitCLI,
					},
				},
			},
			{
				Name:   "dialects",
				Usage:  "List supported SQL dialects and their aliases",
				Action: DialectsCLI,
			},
			{
				Name:      "table-diff",
				Usage:     "Compare a table on one connection with a table on another",
				ArgsUsage: "<connection1> <table1> <connection2> <table2>",
				Description: "Checksums key ranges of both tables, bisects the ranges that " +
					"disagree and reports the rows that differ. Exits with status 1 when " +
					"the tables differ.",
				Flags:  tableDiffFlags,
				Before: setLogLevel,
				Action: TableDiffCLI,
			},
			{
				Name:  "scheduler",
				Usage: "Run scheduled diff jobs",
				Subcommands: []*cli.Command{
					{
						Name:   "start",
						Usage:  "Start the scheduler for jobs in schedule_config",
						Flags:  logFlags,
						Before: setLogLevel,
						Action: StartSchedulerCLI,
					},
				},
			},
			{
				Name:  "tasks",
				Usage: "Inspect recorded diff runs",
				Subcommands: []*cli.Command{
					{
						Name:      "show",
						Usage:     "Show one recorded run",
						ArgsUsage: "<task-id>",
						Action:    TaskShowCLI,
					},
					{
						Name:  "list",
						Usage: "List recent runs",
						Flags: []cli.Flag{
							&cli.IntFlag{
								Name:    "limit",
								Aliases: []string{"n"},
								Value:   20,
								Usage:   "Number of runs to show",
							},
						},
						Action: TaskListCLI,
					},
				},
			},
		},
	}

	return app
}

func setLogLevel(ctx *cli.Context) error {
	switch {
	case ctx.Bool("debug") || config.Get().DebugMode:
		logger.SetDebug(true)
		logger.Debug("Debug logging enabled")
	case ctx.Bool("quiet"):
		logger.SetQuiet()
	default:
		logger.SetDebug(false)
	}
	return nil
}

func initTemplateFile(ctx *cli.Context, content string, defaultPath string, label string, perm os.FileMode) error {
	outputPath := ctx.String("path")
	if outputPath == "" {
		outputPath = defaultPath
	}

	if ctx.Bool("stdout") || outputPath == "-" {
		fmt.Fprintln(ctx.App.Writer, content)
		return nil
	}

	if !ctx.Bool("force") {
		if _, err := os.Stat(outputPath); err == nil {
			return fmt.Errorf("%s already exists at %s (use --force to overwrite)", label, outputPath)
		} else if !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("unable to verify existing %s at %s: %w", label, outputPath, err)
		}
	}

	if dir := filepath.Dir(outputPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	if err := os.WriteFile(outputPath, []byte(content), perm); err != nil {
		return fmt.Errorf("failed to write %s to %s: %w", label, outputPath, err)
	}

	fmt.Fprintf(ctx.App.Writer, "Wrote %s to %s\n", label, outputPath)
	return nil
}

func ConfigInitCLI(ctx *cli.Context) error {
	return initTemplateFile(ctx, defaultConfigYAML, "xdiff.yaml", "config file", 0o600)
}

func DialectsCLI(ctx *cli.Context) error {
	for _, name := range dialect.Names() {
		line := name
		if aliases := dialect.Aliases(name); len(aliases) > 0 {
			line += " (" + strings.Join(aliases, ", ") + ")"
		}
		fmt.Fprintln(ctx.App.Writer, line)
	}
	return nil
}

// splitList flattens repeated and comma-separated flag values.
func splitList(values []string) []string {
	var out []string
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			if p := strings.TrimSpace(part); p != "" {
				out = append(out, p)
			}
		}
	}
	return out
}

func tableDiffArgs(args []string) (conn1, table1, conn2, table2 string, err error) {
	if len(args) != 4 {
		return "", "", "", "", fmt.Errorf("table-diff needs 4 arguments, got %d (usage: <connection1> <table1> <connection2> <table2>)", len(args))
	}
	for i, a := range args {
		if strings.TrimSpace(a) == "" {
			return "", "", "", "", fmt.Errorf("table-diff argument %d is empty", i+1)
		}
	}
	return args[0], args[1], args[2], args[3], nil
}

func TableDiffCLI(ctx *cli.Context) error {
	conn1, table1, conn2, table2, err := tableDiffArgs(ctx.Args().Slice())
	if err != nil {
		return err
	}

	task := core.NewTableDiffTask()
	task.Connection1, task.Table1 = conn1, table1
	task.Connection2, task.Table2 = conn2, table2
	task.Keys = splitList(ctx.StringSlice("key"))
	task.Columns = splitList(ctx.StringSlice("columns"))
	task.UpdateColumn = ctx.String("update-column")
	task.MinUpdate = ctx.String("min-update")
	task.MaxUpdate = ctx.String("max-update")
	task.Where = ctx.String("where")
	if ctx.IsSet("bisection-factor") {
		task.BisectionFactor = ctx.Int("bisection-factor")
	}
	if ctx.IsSet("bisection-threshold") {
		task.BisectionThreshold = ctx.Int64("bisection-threshold")
	}
	if ctx.IsSet("max-concurrency") {
		task.MaxConcurrency = ctx.Int("max-concurrency")
	}
	if ctx.IsSet("output-dir") {
		task.OutputDir = ctx.String("output-dir")
	}
	task.Model = ctx.String("model")
	task.Output = strings.ToLower(ctx.String("output"))
	task.Summary = ctx.Bool("summary")
	task.Explain = ctx.Bool("explain")
	task.QuietMode = ctx.Bool("quiet")
	task.Stdout = ctx.App.Writer

	if err := task.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	if !ctx.Bool("schedule") {
		runCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		task.Ctx = runCtx
		task.FailOnDiff = true

		if err := task.RunChecks(true); err != nil {
			return fmt.Errorf("checks failed: %w", err)
		}
		err := task.ExecuteTask()
		if errors.Is(err, core.ErrTablesDiffer) {
			return cli.Exit("", 1)
		}
		var sqf *diff.SegmentQueryFailedError
		if errors.As(err, &sqf) {
			return fmt.Errorf("query on side %s failed after %d attempt(s): %w", sqf.Side, sqf.Attempts, err)
		}
		if err != nil {
			return fmt.Errorf("error during comparison: %w", err)
		}
		return nil
	}

	every := ctx.String("every")
	if every == "" {
		return fmt.Errorf("--schedule needs --every")
	}
	freq, err := scheduler.ParseFrequency(every)
	if err != nil {
		return err
	}

	runCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return scheduler.RunSingleJob(runCtx, scheduler.TableDiffJob(task, freq))
}

func StartSchedulerCLI(ctx *cli.Context) error {
	if config.Cfg == nil {
		return fmt.Errorf("configuration not loaded; run inside a directory with xdiff.yaml or set XDIFF_CONFIG")
	}
	jobs, err := scheduler.BuildJobsFromConfig(config.Cfg)
	if err != nil {
		return err
	}
	if len(jobs) == 0 {
		logger.Info("scheduler: no enabled jobs found in configuration")
		return nil
	}
	for _, job := range jobs {
		logger.Info("scheduler: registering job %s", job.Name)
	}

	runCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := scheduler.RunJobs(runCtx, jobs); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func openTaskStore() (*taskstore.Store, error) {
	return taskstore.New(config.Get().TaskStore.Path)
}

func TaskShowCLI(ctx *cli.Context) error {
	if ctx.Args().Len() != 1 {
		return fmt.Errorf("tasks show needs exactly one task id")
	}
	store, err := openTaskStore()
	if err != nil {
		return err
	}
	defer store.Close()

	rec, err := store.Get(ctx.Context, ctx.Args().First())
	if err != nil {
		return err
	}
	w := ctx.App.Writer
	fmt.Fprintf(w, "Task:      %s (%s)\n", rec.TaskID, rec.TaskType)
	fmt.Fprintf(w, "Status:    %s\n", rec.Status)
	fmt.Fprintf(w, "Compared:  %s:%s vs %s:%s\n", rec.Connection1, rec.Table1, rec.Connection2, rec.Table2)
	if rec.Result != "" {
		fmt.Fprintf(w, "Result:    %s (%d row(s) differ)\n", rec.Result, rec.RowsDifferent)
	}
	if rec.ReportPath != "" {
		fmt.Fprintf(w, "Report:    %s\n", rec.ReportPath)
	}
	if rec.Error != "" {
		fmt.Fprintf(w, "Error:     %s\n", rec.Error)
	}
	if !rec.StartedAt.IsZero() {
		fmt.Fprintf(w, "Started:   %s\n", rec.StartedAt.Format(time.RFC3339))
	}
	if !rec.FinishedAt.IsZero() {
		fmt.Fprintf(w, "Finished:  %s (%.2fs)\n", rec.FinishedAt.Format(time.RFC3339), rec.TimeTaken)
	}
	return nil
}

func TaskListCLI(ctx *cli.Context) error {
	store, err := openTaskStore()
	if err != nil {
		return err
	}
	defer store.Close()

	recs, err := store.List(ctx.Context, ctx.Int("limit"))
	if err != nil {
		return err
	}
	for _, rec := range recs {
		result := rec.Result
		if result == "" {
			result = "-"
		}
		fmt.Fprintf(ctx.App.Writer, "%s  %-9s  %-9s  %s:%s vs %s:%s\n",
			rec.TaskID, rec.Status, result, rec.Connection1, rec.Table1, rec.Connection2, rec.Table2)
	}
	return nil
}
