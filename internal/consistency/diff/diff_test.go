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

package diff

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pgedge/xdiff/internal/dialect"
	"github.com/pgedge/xdiff/internal/infra/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// flakyConn fails batches whose query contains match while failures remain.
type flakyConn struct {
	db.Conn
	match    string
	failures atomic.Int64
	calls    atomic.Int64
}

func (c *flakyConn) ExecuteBatch(ctx context.Context, b db.Batch) (*db.Result, error) {
	if strings.Contains(b.Query, c.match) {
		c.calls.Add(1)
		if c.failures.Add(-1) >= 0 {
			return nil, fmt.Errorf("connection reset by peer")
		}
	}
	return c.Conn.ExecuteBatch(ctx, b)
}

type noChecksumDialect struct{ dialect.Dialect }

func (noChecksumDialect) SupportsChecksum() bool { return false }

type noChecksumConn struct{ db.Conn }

func (c *noChecksumConn) Dialect() dialect.Dialect { return noChecksumDialect{c.Conn.Dialect()} }

type countingProgress struct {
	total, done atomic.Int64
	finished    atomic.Bool
}

func (p *countingProgress) AddTotal(n int64) { p.total.Add(n) }
func (p *countingProgress) Increment()       { p.done.Add(1) }
func (p *countingProgress) Done()            { p.finished.Store(true) }

func openSQLite(t *testing.T, stmts ...string) db.Conn {
	t.Helper()
	c, err := db.Open(context.Background(), db.ConnConfig{Name: t.Name(), Driver: "sqlite", DSN: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	for _, s := range stmts {
		_, err := c.Execute(context.Background(), s)
		require.NoError(t, err, s)
	}
	return c
}

const seedItems = `INSERT INTO items WITH RECURSIVE c(x) AS (SELECT 1 UNION ALL SELECT x + 1 FROM c WHERE x < 1000) SELECT x, 'n' || x FROM c`

func itemsPair(t *testing.T, changesB ...string) (db.Conn, db.Conn) {
	a := openSQLite(t, "CREATE TABLE items (id INTEGER PRIMARY KEY, name TEXT)", seedItems)
	b := openSQLite(t, append([]string{"CREATE TABLE Items (ID INTEGER PRIMARY KEY, Name TEXT)", seedItems}, changesB...)...)
	return a, b
}

func testOptions() Options {
	opts := DefaultOptions()
	opts.BisectionFactor = 4
	opts.BisectionThreshold = 32
	opts.RetryInitialInterval = time.Millisecond
	return opts
}

func runDiff(t *testing.T, ca, cb db.Conn, spec SegmentSpec, opts Options) (*DiffResultWrapper, error) {
	t.Helper()
	ctx := context.Background()
	a, b, err := PrepareSegments(ctx, TableRef{Conn: ca, Path: []string{"items"}}, TableRef{Conn: cb, Path: []string{"main", "items"}}, spec)
	require.NoError(t, err)
	d, err := NewDiffer(opts)
	require.NoError(t, err)
	return d.Diff(ctx, a, b)
}

func TestDiffIdenticalTables(t *testing.T) {
	ca, cb := itemsPair(t)
	res, err := runDiff(t, ca, cb, SegmentSpec{Keys: []string{"id"}}, testOptions())
	require.NoError(t, err)

	assert.True(t, res.Identical())
	assert.Empty(t, res.Rows)
	assert.Equal(t, StatusIdentical, res.Tree.Root.Status)
	assert.Equal(t, int64(1000), res.Stats["rows_A"])
	assert.Equal(t, int64(1000), res.Stats["unchanged"])
	assert.Equal(t, int64(1), res.Stats["segments_checked"])
	assert.Equal(t, int64(2), res.Stats["checksum_queries"])
	assert.Equal(t, 0.0, res.Stats["diff_percent"])
}

func TestDiffFindsDifferences(t *testing.T) {
	ca, cb := itemsPair(t,
		"UPDATE Items SET Name = 'changed' WHERE ID = 500",
		"DELETE FROM Items WHERE ID BETWEEN 100 AND 109",
		"INSERT INTO Items VALUES (1001, 'n1001')",
	)
	progress := &countingProgress{}
	opts := testOptions()
	opts.Progress = progress
	res, err := runDiff(t, ca, cb, SegmentSpec{}, opts)
	require.NoError(t, err)

	require.Len(t, res.Rows, 12)
	for i := 0; i < 10; i++ {
		r := res.Rows[i]
		assert.True(t, r.ExclusiveA)
		assert.Equal(t, []any{int64(100 + i)}, r.KeyA)
		assert.Equal(t, []any{fmt.Sprintf("n%d", 100+i)}, r.ValueA)
		assert.Nil(t, r.KeyB)
	}
	updated := res.Rows[10]
	assert.False(t, updated.ExclusiveA || updated.ExclusiveB)
	assert.Equal(t, []bool{false}, updated.KeyDiff)
	assert.Equal(t, []bool{true}, updated.ValueDiff)
	assert.Equal(t, []any{"n500"}, updated.ValueA)
	assert.Equal(t, []any{"changed"}, updated.ValueB)
	last := res.Rows[11]
	assert.True(t, last.ExclusiveB)
	assert.Equal(t, []any{int64(1001)}, last.KeyB)

	assert.Equal(t, int64(1000), res.Stats["rows_A"])
	assert.Equal(t, int64(991), res.Stats["rows_B"])
	assert.Equal(t, int64(10), res.Stats["exclusive_A"])
	assert.Equal(t, int64(1), res.Stats["exclusive_B"])
	assert.Equal(t, int64(1), res.Stats["updated"])
	assert.Equal(t, int64(989), res.Stats["unchanged"])
	assert.Equal(t, int64(1001), res.Stats["total"])
	assert.Greater(t, res.Stats["max_depth"], 0)

	assert.Equal(t, StatusBisected, res.Tree.Root.Status)
	assert.Equal(t, int64(12), res.Tree.Root.RowsDifferent)
	assert.Equal(t, progress.total.Load(), progress.done.Load())
	assert.True(t, progress.finished.Load())

	// Children are recorded in range order and cover the parent exactly.
	res.Tree.Root.Walk(func(n *SegmentInfo) {
		if len(n.Children) == 0 {
			return
		}
		assert.Equal(t, n.Range.Min, n.Children[0].Range.Min)
		for i := 1; i < len(n.Children); i++ {
			assert.Equal(t, n.Children[i-1].Range.Max, n.Children[i].Range.Min)
			assert.False(t, n.Children[i-1].Range.MaxInclusive)
		}
		lastChild := n.Children[len(n.Children)-1]
		assert.Equal(t, n.Range.Max, lastChild.Range.Max)
		assert.Equal(t, n.Range.MaxInclusive, lastChild.Range.MaxInclusive)
	})
}

func TestDiffIsIdempotent(t *testing.T) {
	ca, cb := itemsPair(t, "UPDATE Items SET Name = NULL WHERE ID = 42")
	first, err := runDiff(t, ca, cb, SegmentSpec{Keys: []string{"id"}}, testOptions())
	require.NoError(t, err)
	second, err := runDiff(t, ca, cb, SegmentSpec{Keys: []string{"id"}}, testOptions())
	require.NoError(t, err)

	assert.Equal(t, first.Rows, second.Rows)
	assert.Equal(t, first.Stats["tree_digest"], second.Stats["tree_digest"])
	require.Len(t, first.Rows, 1)
	assert.Equal(t, []any{nil}, first.Rows[0].ValueB)
}

func TestDiffMaxDepthBoundsRecursion(t *testing.T) {
	ca, cb := itemsPair(t, "DELETE FROM Items WHERE ID IN (3, 700)")
	opts := testOptions()
	opts.BisectionThreshold = 1
	opts.MaxDepth = 2
	res, err := runDiff(t, ca, cb, SegmentSpec{}, opts)
	require.NoError(t, err)

	assert.LessOrEqual(t, res.Stats["max_depth"], 2)
	require.Len(t, res.Rows, 2)
	assert.Equal(t, []any{int64(3)}, res.Rows[0].KeyA)
	assert.Equal(t, []any{int64(700)}, res.Rows[1].KeyA)
}

func TestDiffEmptyTables(t *testing.T) {
	ca := openSQLite(t, "CREATE TABLE items (id INTEGER, name TEXT)")
	cb := openSQLite(t, "CREATE TABLE items (id INTEGER, name TEXT)")
	res, err := runDiff(t, ca, cb, SegmentSpec{}, testOptions())
	require.NoError(t, err)

	assert.True(t, res.Identical())
	assert.Equal(t, int64(0), res.Stats["segments_checked"])
	assert.Equal(t, int64(0), res.Stats["checksum_queries"])
	assert.Equal(t, int64(0), res.Stats["total"])
	assert.NotEmpty(t, res.Stats["tree_digest"])
}

func TestDiffOneSideEmpty(t *testing.T) {
	ca := openSQLite(t, "CREATE TABLE items (id INTEGER, name TEXT)", "INSERT INTO items VALUES (1, 'a'), (2, 'b')")
	cb := openSQLite(t, "CREATE TABLE items (id INTEGER, name TEXT)")
	res, err := runDiff(t, ca, cb, SegmentSpec{}, testOptions())
	require.NoError(t, err)

	require.Len(t, res.Rows, 2)
	assert.True(t, res.Rows[0].ExclusiveA)
	assert.True(t, res.Rows[1].ExclusiveA)
	assert.Equal(t, 1.0, res.Stats["diff_percent"])
}

func TestDiffCompositeKey(t *testing.T) {
	const schema = "CREATE TABLE items (region TEXT, n INTEGER, v TEXT, PRIMARY KEY (region, n))"
	const seed = `INSERT INTO items WITH RECURSIVE c(x) AS (SELECT 1 UNION ALL SELECT x + 1 FROM c WHERE x < 100)
SELECT r.name, c.x, r.name || '-' || c.x FROM c, (SELECT 'east' AS name UNION ALL SELECT 'west' UNION ALL SELECT 'north') r`
	ca := openSQLite(t, schema, seed)
	cb := openSQLite(t, schema, seed,
		"DELETE FROM items WHERE region = 'north' AND n = 50",
		"UPDATE items SET v = 'x' WHERE region = 'west' AND n = 7",
	)
	opts := testOptions()
	opts.BisectionFactor = 3
	opts.BisectionThreshold = 20
	res, err := runDiff(t, ca, cb, SegmentSpec{Keys: []string{"region", "n"}}, opts)
	require.NoError(t, err)

	require.Len(t, res.Rows, 2)
	assert.True(t, res.Rows[0].ExclusiveA)
	assert.Equal(t, []any{"north", int64(50)}, res.Rows[0].KeyA)
	assert.Equal(t, []any{"west", int64(7)}, res.Rows[1].KeyA)
	assert.Equal(t, []bool{false, false}, res.Rows[1].KeyDiff)
	assert.Equal(t, []bool{true}, res.Rows[1].ValueDiff)
	assert.Greater(t, res.Stats["segments_checked"], int64(1))
}

func TestDiffRetriesTransientFailures(t *testing.T) {
	ca, cb := itemsPair(t)
	flaky := &flakyConn{Conn: cb, match: dialect.SQLiteSumFunc}
	flaky.failures.Store(2)

	res, err := runDiff(t, ca, flaky, SegmentSpec{}, testOptions())
	require.NoError(t, err)
	assert.True(t, res.Identical())
	assert.Equal(t, int64(3), flaky.calls.Load())
}

func TestDiffSegmentQueryFailed(t *testing.T) {
	ca, cb := itemsPair(t)
	flaky := &flakyConn{Conn: cb, match: dialect.SQLiteSumFunc}
	flaky.failures.Store(1 << 30)
	opts := testOptions()
	opts.QueryRetries = 2

	res, err := runDiff(t, ca, flaky, SegmentSpec{}, opts)
	require.Error(t, err)
	assert.Nil(t, res)
	assert.True(t, errors.Is(err, ErrSegmentQueryFailed))

	var sqf *SegmentQueryFailedError
	require.True(t, errors.As(err, &sqf))
	assert.Equal(t, SideB, sqf.Side)
	assert.Equal(t, 3, sqf.Attempts)
	assert.Equal(t, "main.items", sqf.Table)
	assert.Contains(t, err.Error(), "connection reset by peer")
	assert.Contains(t, err.Error(), "[1, 1000]")
}

func TestDiffWithoutChecksums(t *testing.T) {
	ca, cb := itemsPair(t,
		"UPDATE Items SET Name = 'changed' WHERE ID = 500",
		"DELETE FROM Items WHERE ID = 20",
	)
	res, err := runDiff(t, ca, &noChecksumConn{cb}, SegmentSpec{}, testOptions())
	require.NoError(t, err)

	assert.Equal(t, int64(0), res.Stats["checksum_queries"])
	require.Len(t, res.Rows, 2)
	assert.Equal(t, []any{int64(20)}, res.Rows[0].KeyA)
	assert.Equal(t, []any{"changed"}, res.Rows[1].ValueB)
	res.Tree.Root.Walk(func(n *SegmentInfo) {
		if len(n.Children) == 0 {
			assert.Contains(t, []SegmentStatus{StatusMaterialized, StatusIdentical}, n.Status)
		}
	})
}

func TestDiffUpdateColumnFilter(t *testing.T) {
	const schema = "CREATE TABLE items (id INTEGER PRIMARY KEY, v TEXT, updated DATETIME)"
	ca := openSQLite(t, schema,
		"INSERT INTO items VALUES (1, 'a', '2024-01-01 00:00:00'), (2, 'b', '2024-06-01 00:00:00')")
	cb := openSQLite(t, schema,
		"INSERT INTO items VALUES (1, 'old', '2024-01-01 00:00:00'), (2, 'b', '2024-06-01 00:00:00')")

	since := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	res, err := runDiff(t, ca, cb, SegmentSpec{
		Columns: []string{"v"},
		Filter:  Filter{UpdateColumn: "UPDATED", MinUpdate: &since},
	}, testOptions())
	require.NoError(t, err)
	assert.True(t, res.Identical())
	assert.Equal(t, int64(1), res.Stats["rows_A"])

	res, err = runDiff(t, ca, cb, SegmentSpec{Columns: []string{"v"}, Filter: Filter{Where: "id < 2"}}, testOptions())
	require.NoError(t, err)
	require.Len(t, res.Rows, 1)
}

func TestDifferRejectsBadOptions(t *testing.T) {
	opts := DefaultOptions()
	opts.BisectionFactor = 1
	_, err := NewDiffer(opts)
	require.Error(t, err)

	opts = DefaultOptions()
	opts.MaxConcurrency = 0
	_, err = NewDiffer(opts)
	require.Error(t, err)
}

func TestDiffCancelled(t *testing.T) {
	ca, cb := itemsPair(t)
	a, b, err := PrepareSegments(context.Background(), TableRef{Conn: ca, Path: []string{"items"}}, TableRef{Conn: cb, Path: []string{"items"}}, SegmentSpec{})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	d, err := NewDiffer(testOptions())
	require.NoError(t, err)
	_, err = d.Diff(ctx, a, b)
	require.ErrorIs(t, err, context.Canceled)
}
