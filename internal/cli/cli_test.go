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
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/pgedge/xdiff/internal/infra/db"
	"github.com/pgedge/xdiff/pkg/config"
	"github.com/pgedge/xdiff/pkg/taskstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runApp(t *testing.T, args ...string) (string, error) {
	t.Helper()
	app := SetupCLI()
	var out bytes.Buffer
	app.Writer = &out
	app.ErrWriter = &out
	err := app.Run(append([]string{"xdiff"}, args...))
	return out.String(), err
}

func withConfig(t *testing.T, cfg *config.Config) {
	t.Helper()
	prev := config.Cfg
	config.Cfg = cfg
	t.Cleanup(func() { config.Cfg = prev })
}

func TestTableDiffArgs(t *testing.T) {
	c1, t1, c2, t2, err := tableDiffArgs([]string{"pg", "public.a", "wh", "b"})
	require.NoError(t, err)
	assert.Equal(t, []string{"pg", "public.a", "wh", "b"}, []string{c1, t1, c2, t2})

	_, _, _, _, err = tableDiffArgs([]string{"pg", "public.a"})
	assert.ErrorContains(t, err, "needs 4 arguments")

	_, _, _, _, err = tableDiffArgs([]string{"pg", " ", "wh", "b"})
	assert.ErrorContains(t, err, "argument 2")
}

func TestSplitList(t *testing.T) {
	assert.Equal(t, []string{"id", "region", "ts"}, splitList([]string{"id, region", "ts", ""}))
	assert.Nil(t, splitList(nil))
}

func TestConfigInit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "conf", "xdiff.yaml")

	out, err := runApp(t, "config", "init", "--path", path)
	require.NoError(t, err)
	assert.Contains(t, out, "Wrote config file")

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Contains(t, cfg.Connections, "pg")
	assert.Equal(t, 8, cfg.Diff.BisectionFactor)

	_, err = runApp(t, "config", "init", "--path", path)
	assert.ErrorContains(t, err, "already exists")

	_, err = runApp(t, "config", "init", "--path", path, "--force")
	assert.NoError(t, err)
}

func TestDialects(t *testing.T) {
	out, err := runApp(t, "dialects")
	require.NoError(t, err)
	assert.Contains(t, out, "postgres")
	assert.Contains(t, out, "athena")
	assert.Contains(t, out, "sqlite")
}

func TestTasksShowAndList(t *testing.T) {
	cfg := config.Default()
	cfg.TaskStore.Path = filepath.Join(t.TempDir(), "tasks.db")
	withConfig(t, cfg)

	store, err := taskstore.New(cfg.TaskStore.Path)
	require.NoError(t, err)
	ctx := context.Background()
	require.NoError(t, store.Create(ctx, taskstore.Record{
		TaskID: "run-1", TaskType: taskstore.TaskTypeTableDiff, Status: taskstore.StatusRunning,
		Connection1: "pg", Table1: "public.orders", Connection2: "wh", Table2: "orders",
		StartedAt: time.Now(),
	}))
	require.NoError(t, store.Update(ctx, taskstore.Record{
		TaskID: "run-1", Status: taskstore.StatusCompleted, Result: "different", RowsDifferent: 3,
		FinishedAt: time.Now(),
	}))
	require.NoError(t, store.Close())

	out, err := runApp(t, "tasks", "show", "run-1")
	require.NoError(t, err)
	assert.Contains(t, out, "COMPLETED")
	assert.Contains(t, out, "different (3 row(s) differ)")
	assert.Contains(t, out, "pg:public.orders vs wh:orders")

	out, err = runApp(t, "tasks", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "run-1")

	_, err = runApp(t, "tasks", "show", "missing")
	assert.ErrorIs(t, err, taskstore.ErrNotFound)
}

func TestTableDiffCommandIdentical(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"a.db", "b.db"} {
		c, err := db.Open(context.Background(), db.ConnConfig{Name: name, Driver: "sqlite", DSN: filepath.Join(dir, name)})
		require.NoError(t, err)
		for _, s := range []string{
			"CREATE TABLE users (user_id INTEGER PRIMARY KEY, email TEXT)",
			"INSERT INTO users VALUES (1, 'a@example.com'), (2, 'b@example.com')",
		} {
			_, err := c.Execute(context.Background(), s)
			require.NoError(t, err)
		}
		c.Close()
	}
	cfg := config.Default()
	cfg.Connections["a"] = config.ConnectionConfig{Driver: "sqlite", DSN: filepath.Join(dir, "a.db")}
	cfg.Connections["b"] = config.ConnectionConfig{Driver: "sqlite", DSN: filepath.Join(dir, "b.db")}
	cfg.TaskStore.Disabled = true
	cfg.Diff.OutputDir = dir
	withConfig(t, cfg)

	out, err := runApp(t, "table-diff", "--quiet", "-k", "user_id", "--model", "users_v1", "a", "users", "b", "users")
	require.NoError(t, err)

	var rep map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &rep))
	assert.Equal(t, "identical", rep["result"])
	assert.Equal(t, "users_v1", rep["model"])

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestTableDiffCommandValidation(t *testing.T) {
	withConfig(t, config.Default())
	_, err := runApp(t, "table-diff", "a", "t")
	assert.ErrorContains(t, err, "needs 4 arguments")

	_, err = runApp(t, "table-diff", "--output", "csv", "a", "t", "b", "t")
	assert.ErrorContains(t, err, "validation failed")

	_, err = runApp(t, "table-diff", "--schedule", "a", "t", "b", "t")
	assert.ErrorContains(t, err, "--every")
}
