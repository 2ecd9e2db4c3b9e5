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

// Package taskstore keeps a local history of diff runs in SQLite.
package taskstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

const (
	StatusRunning   = "RUNNING"
	StatusCompleted = "COMPLETED"
	StatusFailed    = "FAILED"
)

const TaskTypeTableDiff = "TABLE_DIFF"

const (
	DefaultPath = "xdiff_tasks.db"
	PathEnv     = "XDIFF_TASKS_DB"
)

const createTableSQL = `
CREATE TABLE IF NOT EXISTS xdiff_tasks (
    task_id        TEXT PRIMARY KEY,
    task_type      TEXT NOT NULL,
    task_status    TEXT NOT NULL,
    connection1    TEXT NOT NULL,
    table1         TEXT NOT NULL,
    connection2    TEXT NOT NULL,
    table2         TEXT NOT NULL,
    result         TEXT,
    rows_different INTEGER NOT NULL DEFAULT 0,
    report_path    TEXT,
    error          TEXT,
    task_context   TEXT,
    started_at     TEXT,
    finished_at    TEXT,
    time_taken     REAL
);`

const selectColumns = `task_id, task_type, task_status, connection1, table1,
       connection2, table2, result, rows_different, report_path, error,
       task_context, started_at, finished_at, time_taken`

var ErrNotFound = errors.New("task not found")

type Store struct {
	db *sql.DB
}

// Record is one diff run. Result and RowsDifferent are filled when the run
// completes; Error when it fails.
type Record struct {
	TaskID        string
	TaskType      string
	Status        string
	Connection1   string
	Table1        string
	Connection2   string
	Table2        string
	Result        string
	RowsDifferent int64
	ReportPath    string
	Error         string
	TaskContext   map[string]any
	StartedAt     time.Time
	FinishedAt    time.Time
	TimeTaken     float64
}

// Recorder lets a task write its lifecycle without caring whether a store
// is configured. A nil or store-less Recorder accepts and drops writes.
type Recorder struct {
	store     *Store
	ownsStore bool
	created   bool
}

func NewRecorder(existing *Store, path string) (*Recorder, error) {
	if existing != nil {
		return &Recorder{store: existing}, nil
	}
	store, err := New(path)
	if err != nil {
		return nil, err
	}
	return &Recorder{store: store, ownsStore: true}, nil
}

func (r *Recorder) HasStore() bool {
	return r != nil && r.store != nil
}

func (r *Recorder) Start(ctx context.Context, rec Record) error {
	if !r.HasStore() {
		return nil
	}
	if rec.Status == "" {
		rec.Status = StatusRunning
	}
	if rec.StartedAt.IsZero() {
		rec.StartedAt = time.Now()
	}
	if err := r.store.Create(ctx, rec); err != nil {
		return err
	}
	r.created = true
	return nil
}

func (r *Recorder) Finish(ctx context.Context, rec Record) error {
	if !r.HasStore() || !r.created {
		return nil
	}
	if rec.FinishedAt.IsZero() {
		rec.FinishedAt = time.Now()
	}
	if rec.TimeTaken == 0 && !rec.StartedAt.IsZero() {
		rec.TimeTaken = rec.FinishedAt.Sub(rec.StartedAt).Seconds()
	}
	return r.store.Update(ctx, rec)
}

func (r *Recorder) Close() error {
	if r == nil || !r.ownsStore || r.store == nil {
		return nil
	}
	err := r.store.Close()
	r.store = nil
	return err
}

// New opens (creating if needed) the store at path, falling back to
// $XDIFF_TASKS_DB and then ./xdiff_tasks.db.
func New(path string) (*Store, error) {
	sqlitePath := ResolvePath(path)
	if err := ensureDir(sqlitePath); err != nil {
		return nil, fmt.Errorf("create task store directory: %w", err)
	}

	db, err := sql.Open("sqlite3", sqlitePath)
	if err != nil {
		return nil, fmt.Errorf("open task store: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s := &Store{db: db}
	if _, err := db.Exec(createTableSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("ensure xdiff_tasks schema: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) Get(ctx context.Context, taskID string) (Record, error) {
	if strings.TrimSpace(taskID) == "" {
		return Record{}, errors.New("task id is required")
	}
	row := s.db.QueryRowContext(ctx, `SELECT `+selectColumns+` FROM xdiff_tasks WHERE task_id = ?`, taskID)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, ErrNotFound
	}
	if err != nil {
		return Record{}, fmt.Errorf("fetch task %s: %w", taskID, err)
	}
	return rec, nil
}

// List returns the most recent runs first.
func (s *Store) List(ctx context.Context, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+selectColumns+` FROM xdiff_tasks ORDER BY started_at DESC, task_id LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("list tasks: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *Store) Create(ctx context.Context, rec Record) error {
	if err := rec.validateForCreate(); err != nil {
		return err
	}
	ctxVal, err := rec.contextValue()
	if err != nil {
		return fmt.Errorf("marshal task context: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO xdiff_tasks (
            task_id, task_type, task_status, connection1, table1,
            connection2, table2, task_context, started_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.TaskID, rec.TaskType, rec.Status,
		rec.Connection1, rec.Table1, rec.Connection2, rec.Table2,
		ctxVal, timeOrNil(rec.StartedAt),
	)
	if err != nil {
		return fmt.Errorf("insert task: %w", err)
	}
	return nil
}

func (s *Store) Update(ctx context.Context, rec Record) error {
	if strings.TrimSpace(rec.TaskID) == "" {
		return errors.New("task id is required")
	}
	ctxVal, err := rec.contextValue()
	if err != nil {
		return fmt.Errorf("marshal task context: %w", err)
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE xdiff_tasks SET
            task_status = ?, result = ?, rows_different = ?, report_path = ?,
            error = ?, task_context = COALESCE(?, task_context),
            finished_at = ?, time_taken = ?
        WHERE task_id = ?`,
		rec.Status, nullableString(rec.Result), rec.RowsDifferent,
		nullableString(rec.ReportPath), nullableString(rec.Error), ctxVal,
		timeOrNil(rec.FinishedAt), rec.TimeTaken, rec.TaskID,
	)
	if err != nil {
		return fmt.Errorf("update task: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (Record, error) {
	var (
		rec                                 Record
		result, reportPath, errText, ctxVal sql.NullString
		startedAt, finishedAt               sql.NullString
		timeTaken                           sql.NullFloat64
	)
	if err := row.Scan(
		&rec.TaskID, &rec.TaskType, &rec.Status,
		&rec.Connection1, &rec.Table1, &rec.Connection2, &rec.Table2,
		&result, &rec.RowsDifferent, &reportPath, &errText,
		&ctxVal, &startedAt, &finishedAt, &timeTaken,
	); err != nil {
		return Record{}, err
	}
	rec.Result = result.String
	rec.ReportPath = reportPath.String
	rec.Error = errText.String
	rec.TimeTaken = timeTaken.Float64
	rec.StartedAt = parseTime(startedAt)
	rec.FinishedAt = parseTime(finishedAt)
	if ctxVal.Valid && strings.TrimSpace(ctxVal.String) != "" {
		var m map[string]any
		if err := json.Unmarshal([]byte(ctxVal.String), &m); err == nil {
			rec.TaskContext = m
		}
	}
	return rec, nil
}

func (r Record) validateForCreate() error {
	switch {
	case strings.TrimSpace(r.TaskID) == "":
		return errors.New("task id is required")
	case strings.TrimSpace(r.TaskType) == "":
		return errors.New("task type is required")
	case strings.TrimSpace(r.Status) == "":
		return errors.New("task status is required")
	case r.Table1 == "" || r.Table2 == "":
		return errors.New("both tables are required")
	}
	return nil
}

func (r Record) contextValue() (any, error) {
	if len(r.TaskContext) == 0 {
		return nil, nil
	}
	blob, err := json.Marshal(r.TaskContext)
	if err != nil {
		return nil, err
	}
	return string(blob), nil
}

func ResolvePath(path string) string {
	if strings.TrimSpace(path) != "" {
		return path
	}
	if env := os.Getenv(PathEnv); strings.TrimSpace(env) != "" {
		return env
	}
	return filepath.Join(".", DefaultPath)
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}

func nullableString(val string) any {
	if strings.TrimSpace(val) == "" {
		return nil
	}
	return val
}

func timeOrNil(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(v sql.NullString) time.Time {
	if !v.Valid {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, v.String)
	if err != nil {
		return time.Time{}
	}
	return t
}
