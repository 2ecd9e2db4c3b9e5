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

package core

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pgedge/xdiff/internal/consistency/diff"
	"github.com/pgedge/xdiff/internal/dialect"
	"github.com/pgedge/xdiff/internal/infra/db"
	"github.com/pgedge/xdiff/pkg/config"
	"github.com/pgedge/xdiff/pkg/logger"
	"github.com/pgedge/xdiff/pkg/report"
	"github.com/pgedge/xdiff/pkg/taskstore"
)

const (
	OutputJSON = "json"
	OutputText = "text"
	OutputNone = "none"
)

// ErrTablesDiffer is returned by ExecuteTask when FailOnDiff is set and the
// tables are not identical.
var ErrTablesDiffer = errors.New("tables differ")

// TableDiffTask compares one table on Connection1 with one on Connection2.
// Fields mirror the table-diff command's arguments and flags.
type TableDiffTask struct {
	TaskID      string
	Connection1 string
	Table1      string
	Connection2 string
	Table2      string

	Keys         []string
	Columns      []string
	UpdateColumn string
	MinUpdate    string
	MaxUpdate    string
	Where        string

	BisectionFactor    int
	BisectionThreshold int64
	MaxConcurrency     int

	Model      string
	Output     string
	OutputDir  string
	Summary    bool
	Explain    bool
	QuietMode  bool
	FailOnDiff bool

	SkipDBUpdate  bool
	TaskStorePath string

	Ctx    context.Context
	Stdout io.Writer

	Result     *diff.DiffResultWrapper
	Report     report.Report
	ReportPath string

	cfg     *config.Config
	options diff.Options
	refs    [2]diff.TableRef
	conns   [2]db.Conn
	segA    diff.TableSegment
	segB    diff.TableSegment
	filter  diff.Filter
	started time.Time
}

// NewTableDiffTask returns a task carrying the configured diff defaults.
func NewTableDiffTask() *TableDiffTask {
	cfg := config.Get()
	return &TableDiffTask{
		TaskID:             uuid.NewString(),
		BisectionFactor:    cfg.Diff.BisectionFactor,
		BisectionThreshold: cfg.Diff.BisectionThreshold,
		MaxConcurrency:     cfg.Diff.MaxConcurrency,
		Output:             OutputJSON,
		OutputDir:          cfg.Diff.OutputDir,
		TaskStorePath:      cfg.TaskStore.Path,
		SkipDBUpdate:       cfg.TaskStore.Disabled,
		Ctx:                context.Background(),
		Stdout:             os.Stdout,
		cfg:                cfg,
	}
}

// CloneForSchedule copies the task's arguments into a fresh run.
func (t *TableDiffTask) CloneForSchedule(ctx context.Context) *TableDiffTask {
	c := NewTableDiffTask()
	c.Connection1, c.Table1 = t.Connection1, t.Table1
	c.Connection2, c.Table2 = t.Connection2, t.Table2
	c.Keys = append([]string(nil), t.Keys...)
	c.Columns = append([]string(nil), t.Columns...)
	c.UpdateColumn, c.MinUpdate, c.MaxUpdate, c.Where = t.UpdateColumn, t.MinUpdate, t.MaxUpdate, t.Where
	c.BisectionFactor, c.BisectionThreshold, c.MaxConcurrency = t.BisectionFactor, t.BisectionThreshold, t.MaxConcurrency
	c.Model, c.Output, c.OutputDir = t.Model, t.Output, t.OutputDir
	c.Summary, c.Explain = t.Summary, t.Explain
	c.QuietMode = true
	c.SkipDBUpdate, c.TaskStorePath = t.SkipDBUpdate, t.TaskStorePath
	c.Stdout = t.Stdout
	c.Ctx = ctx
	return c
}

func (t *TableDiffTask) config() *config.Config {
	if t.cfg == nil {
		t.cfg = config.Get()
	}
	return t.cfg
}

// Validate checks arguments without touching any database.
func (t *TableDiffTask) Validate() error {
	if t.Connection1 == "" || t.Connection2 == "" || t.Table1 == "" || t.Table2 == "" {
		return fmt.Errorf("two connections and two tables are required")
	}
	cfg := t.config()
	for _, side := range []struct{ conn, table string }{{t.Connection1, t.Table1}, {t.Connection2, t.Table2}} {
		if err := dialect.CheckTablePath(dialectLabel(cfg, side.conn), dialect.SplitTablePath(side.table)); err != nil {
			return err
		}
	}

	switch t.Output {
	case OutputJSON, OutputText, OutputNone:
	default:
		return fmt.Errorf("table-diff supports only json and text output, got %q", t.Output)
	}

	opts := diff.DefaultOptions()
	opts.BisectionFactor = t.BisectionFactor
	opts.BisectionThreshold = t.BisectionThreshold
	opts.MaxConcurrency = t.MaxConcurrency
	if cfg.Diff.MaxDepth > 0 {
		opts.MaxDepth = cfg.Diff.MaxDepth
	}
	if cfg.Diff.QueryRetries > 0 {
		opts.QueryRetries = cfg.Diff.QueryRetries
	}
	if d, err := cfg.Diff.RetryInterval(); err != nil {
		return err
	} else if d > 0 {
		opts.RetryInitialInterval = d
	}
	if d, err := cfg.Diff.Timeout(); err != nil {
		return err
	} else if d > 0 {
		opts.QueryTimeout = d
	}
	opts.Explain = t.Explain
	if _, err := diff.NewDiffer(opts); err != nil {
		return err
	}
	t.options = opts

	filter := diff.Filter{UpdateColumn: t.UpdateColumn, Where: t.Where}
	var err error
	if filter.MinUpdate, err = parseUpdateBound("min-update", t.MinUpdate); err != nil {
		return err
	}
	if filter.MaxUpdate, err = parseUpdateBound("max-update", t.MaxUpdate); err != nil {
		return err
	}
	if (filter.MinUpdate != nil || filter.MaxUpdate != nil) && filter.UpdateColumn == "" {
		return fmt.Errorf("min-update and max-update need an update column")
	}
	if filter.MinUpdate != nil && filter.MaxUpdate != nil && filter.MaxUpdate.Before(*filter.MinUpdate) {
		return fmt.Errorf("max-update %s is before min-update %s", t.MaxUpdate, t.MinUpdate)
	}
	t.filter = filter
	return nil
}

// RunChecks validates, connects to both sides and resolves the columns to
// compare.
func (t *TableDiffTask) RunChecks(skipValidation bool) error {
	if !skipValidation {
		if err := t.Validate(); err != nil {
			return err
		}
	}
	cfg := t.config()
	dopts, err := dialectOptions(cfg.Diff)
	if err != nil {
		return err
	}

	for i, name := range []string{t.Connection1, t.Connection2} {
		cc, err := cfg.Connection(name)
		if err != nil {
			t.Close()
			return err
		}
		conn, err := db.Open(t.ctx(), db.ConnConfig{
			Name:     name,
			Driver:   cc.Driver,
			Dialect:  cc.Dialect,
			DSN:      cc.DSN,
			Schema:   cc.Schema,
			MaxConns: cc.MaxConns,
			Options:  dopts,
		})
		if err != nil {
			t.Close()
			return err
		}
		t.conns[i] = conn
		logger.Debug("Connected to %s (%s)", name, conn.Dialect().Name())
	}
	t.refs[0] = diff.TableRef{Conn: t.conns[0], Path: dialect.SplitTablePath(t.Table1), DefaultSchema: schemaOf(cfg, t.Connection1)}
	t.refs[1] = diff.TableRef{Conn: t.conns[1], Path: dialect.SplitTablePath(t.Table2), DefaultSchema: schemaOf(cfg, t.Connection2)}

	t.segA, t.segB, err = diff.PrepareSegments(t.ctx(), t.refs[0], t.refs[1], diff.SegmentSpec{
		Keys:    t.Keys,
		Columns: t.Columns,
		Filter:  t.filter,
	})
	if err != nil {
		t.Close()
		return err
	}
	logger.Info("Comparing %s:%s with %s:%s", t.Connection1, t.segA.Path, t.Connection2, t.segB.Path)
	return nil
}

// ExecuteTask runs the diff, records it in the task store and emits the
// report. RunChecks must have succeeded first.
func (t *TableDiffTask) ExecuteTask() (err error) {
	defer t.Close()
	t.started = time.Now()
	ctx := t.ctx()

	recorder := t.recorder()
	defer recorder.Close()
	run := taskstore.Record{
		TaskID:      t.TaskID,
		TaskType:    taskstore.TaskTypeTableDiff,
		Connection1: t.Connection1,
		Table1:      t.Table1,
		Connection2: t.Connection2,
		Table2:      t.Table2,
		TaskContext: t.taskContext(),
		StartedAt:   t.started,
	}
	if rerr := recorder.Start(ctx, run); rerr != nil {
		logger.Warn("Could not record task %s: %v", t.TaskID, rerr)
	}
	defer func() {
		run.Status = taskstore.StatusCompleted
		if err != nil && !errors.Is(err, ErrTablesDiffer) {
			run.Status = taskstore.StatusFailed
			run.Error = err.Error()
		}
		run.Result = t.Report.Result
		run.RowsDifferent = int64(len(t.resultRows()))
		run.ReportPath = t.ReportPath
		if rerr := recorder.Finish(context.WithoutCancel(ctx), run); rerr != nil {
			logger.Warn("Could not update task %s: %v", t.TaskID, rerr)
		}
	}()

	opts := t.options
	if opts.BisectionFactor == 0 {
		opts = diff.DefaultOptions()
	}
	if !t.QuietMode {
		opts.Progress = diff.NewBarProgress(os.Stderr, "segments")
	}
	differ, err := diff.NewDiffer(opts)
	if err != nil {
		return err
	}
	res, err := differ.Diff(ctx, t.segA, t.segB)
	d1, d2 := t.datasets()
	if err != nil {
		t.Report = report.ErrorReport(t.Model, d1, d2, err)
		t.emit()
		return err
	}
	t.Result = res

	repOpts := report.Options{
		Model:          t.Model,
		Dataset1:       d1,
		Dataset2:       d2,
		IncludeSummary: t.Summary,
	}
	if t.Summary {
		repOpts.Columns = t.columnSummary(ctx)
	}
	t.Report = report.Jsonify(res, repOpts)

	if t.Report.Result == report.ResultDifferent && t.OutputDir != "" {
		path, werr := report.WriteFile(t.OutputDir, t.Report)
		if werr != nil {
			return werr
		}
		t.ReportPath = path
		logger.Info("Diff report written to %s", path)
	}
	if !t.QuietMode {
		report.Announce(t.Report)
	}
	if err := t.emit(); err != nil {
		return err
	}
	logger.Info("Table diff completed in %s", time.Since(t.started).Round(time.Millisecond))

	if t.FailOnDiff && t.Report.Result == report.ResultDifferent {
		return ErrTablesDiffer
	}
	return nil
}

// Close releases both connections. It is safe to call more than once.
func (t *TableDiffTask) Close() {
	for i, c := range t.conns {
		if c != nil {
			c.Close()
			t.conns[i] = nil
		}
	}
}

func (t *TableDiffTask) ctx() context.Context {
	if t.Ctx == nil {
		return context.Background()
	}
	return t.Ctx
}

func (t *TableDiffTask) emit() error {
	w := t.Stdout
	if w == nil {
		w = os.Stdout
	}
	switch t.Output {
	case OutputText:
		return report.RenderText(w, t.Report)
	case OutputJSON:
		return report.WriteJSON(w, t.Report)
	}
	return nil
}

func (t *TableDiffTask) recorder() *taskstore.Recorder {
	if t.SkipDBUpdate {
		return nil
	}
	r, err := taskstore.NewRecorder(nil, t.TaskStorePath)
	if err != nil {
		logger.Warn("Task store unavailable: %v", err)
		return nil
	}
	return r
}

func (t *TableDiffTask) resultRows() []diff.DiffRow {
	if t.Result == nil {
		return nil
	}
	return t.Result.Rows
}

// datasets are the table paths as given, so reports keep any database
// prefix the user typed.
func (t *TableDiffTask) datasets() ([]string, []string) {
	return dialect.SplitTablePath(t.Table1), dialect.SplitTablePath(t.Table2)
}

func (t *TableDiffTask) columnSummary(ctx context.Context) *report.Columns {
	sets, err := diff.CompareColumns(ctx, t.refs[0], t.refs[1])
	if err != nil {
		logger.Warn("Could not compare column lists: %v", err)
		return nil
	}
	cols := &report.Columns{
		PrimaryKey:  names(t.segA.Keys),
		Compared:    report.ColumnList{Dataset1: names(t.segA.Columns), Dataset2: names(t.segB.Columns)},
		Exclusive:   report.ColumnList{Dataset1: nonNil(sets.OnlyA), Dataset2: nonNil(sets.OnlyB)},
		TypeChanged: nonNil(sets.TypeChanged),
	}
	return cols
}

func (t *TableDiffTask) taskContext() map[string]any {
	ctx := map[string]any{
		"bisection_factor":    t.BisectionFactor,
		"bisection_threshold": t.BisectionThreshold,
		"max_concurrency":     t.MaxConcurrency,
	}
	if len(t.Keys) > 0 {
		ctx["keys"] = t.Keys
	}
	if len(t.Columns) > 0 {
		ctx["columns"] = t.Columns
	}
	if t.UpdateColumn != "" {
		ctx["update_column"] = t.UpdateColumn
	}
	if t.Where != "" {
		ctx["where"] = t.Where
	}
	if t.Model != "" {
		ctx["model"] = t.Model
	}
	return ctx
}

func names(cols []diff.Column) []string {
	out := make([]string, len(cols))
	for i, c := range cols {
		out[i] = c.Name
	}
	return out
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

// dialectLabel names the engine behind a configured connection for error
// messages raised before it is opened.
func dialectLabel(cfg *config.Config, conn string) string {
	c, ok := cfg.Connections[conn]
	switch {
	case !ok:
		return conn
	case c.Dialect != "":
		return c.Dialect
	}
	return c.Driver
}

func schemaOf(cfg *config.Config, conn string) string {
	cc, err := cfg.Connection(conn)
	if err != nil {
		return ""
	}
	return cc.Schema
}

func dialectOptions(dc config.DiffConfig) (dialect.Options, error) {
	rounding, err := dialect.ParseRounding(dc.TimestampRounding)
	if err != nil {
		return dialect.Options{}, err
	}
	return dialect.Options{TimestampRounding: rounding, TypeDepthLimit: dc.TypeDepthLimit}, nil
}

var updateBoundLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999",
	"2006-01-02T15:04:05.999999",
	"2006-01-02",
}

// parseUpdateBound accepts RFC 3339, a naive timestamp taken as UTC, or a
// bare date.
func parseUpdateBound(flag, s string) (*time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	for _, layout := range updateBoundLayouts {
		if v, err := time.Parse(layout, s); err == nil {
			v = v.UTC()
			return &v, nil
		}
	}
	return nil, fmt.Errorf("invalid %s %q: expected a timestamp like 2006-01-02 15:04:05", flag, s)
}
