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

package report

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pgedge/xdiff/internal/consistency/diff"
	"github.com/pgedge/xdiff/internal/dialect"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func wrapper(rows []diff.DiffRow) *diff.DiffResultWrapper {
	seg := func(table string) diff.TableSegment {
		return diff.TableSegment{
			Path:    dialect.TablePath{Schema: "schema", Table: table},
			Keys:    []diff.Column{{Name: "id", Type: dialect.Text()}},
			Columns: []diff.Column{{Name: "value", Type: dialect.Text()}},
		}
	}
	return &diff.DiffResultWrapper{
		Tree: &diff.InfoTree{A: seg("table1"), B: seg("table2")},
		Rows: rows,
		Stats: map[string]any{
			"rows_A": int64(2), "rows_B": int64(2), "exclusive_A": int64(1), "exclusive_B": int64(1),
			"updated": int64(1), "unchanged": int64(0), "segments_checked": int64(1),
			"diff_percent": 1.0, "tree_digest": "abc",
		},
	}
}

var exampleRows = []diff.DiffRow{
	{KeyDiff: []bool{false}, ValueDiff: []bool{true}, KeyA: []any{"1"}, KeyB: []any{"1"}, ValueA: []any{"3"}, ValueB: []any{"201"}},
	{ExclusiveA: true, KeyDiff: []bool{true}, ValueDiff: []bool{true}, KeyA: []any{"2"}, ValueA: []any{"4"}},
	{ExclusiveB: true, KeyDiff: []bool{true}, ValueDiff: []bool{true}, KeyB: []any{"3"}, ValueB: []any{"202"}},
}

func TestJsonifyDiff(t *testing.T) {
	rep := Jsonify(wrapper(exampleRows), Options{
		Model:    "my_model",
		Dataset1: []string{"db", "schema", "table1"},
		Dataset2: []string{"db", "schema", "table2"},
	})

	got, err := json.Marshal(rep)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"version": "1.0.0",
		"status": "success",
		"result": "different",
		"model": "my_model",
		"dataset1": ["db", "schema", "table1"],
		"dataset2": ["db", "schema", "table2"],
		"rows": {
			"exclusive": {
				"dataset1": [{"id": {"isPK": true, "value": "2"}, "value": {"isPK": false, "value": "4"}}],
				"dataset2": [{"id": {"isPK": true, "value": "3"}, "value": {"isPK": false, "value": "202"}}]
			},
			"diff": [{
				"id": {"isPK": true, "dataset1": "1", "dataset2": "1", "isDiff": false},
				"value": {"isPK": false, "dataset1": "3", "dataset2": "201", "isDiff": true}
			}]
		},
		"summary": null,
		"columns": null
	}`, string(got))
}

func TestJsonifyNoDifference(t *testing.T) {
	rep := Jsonify(wrapper(nil), Options{Model: "model"})

	got, err := json.Marshal(rep)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"version": "1.0.0",
		"status": "success",
		"result": "identical",
		"model": "model",
		"dataset1": ["schema", "table1"],
		"dataset2": ["schema", "table2"],
		"rows": {"exclusive": {"dataset1": [], "dataset2": []}, "diff": []},
		"summary": null,
		"columns": null
	}`, string(got))
}

func TestRecordKeepsColumnOrder(t *testing.T) {
	rec := Record{
		{Column: "zeta", Cell: Cell{IsPK: true, Value: int64(1)}},
		{Column: "alpha", Cell: Cell{Value: nil}},
	}
	got, err := json.Marshal(rec)
	require.NoError(t, err)
	assert.Equal(t, `{"zeta":{"isPK":true,"value":1},"alpha":{"isPK":false,"value":null}}`, string(got))

	c, ok := rec.Get("alpha")
	require.True(t, ok)
	assert.False(t, c.IsPK)
}

func TestJsonValue(t *testing.T) {
	ts := time.Date(2024, 1, 2, 3, 4, 5, 600000000, time.UTC)
	assert.Equal(t, "2024-01-02 03:04:05.6", jsonValue(ts))
	assert.Equal(t, "raw", jsonValue([]byte("raw")))
	assert.Equal(t, int64(7), jsonValue(int64(7)))
}

func TestSummary(t *testing.T) {
	rep := Jsonify(wrapper(exampleRows), Options{IncludeSummary: true})
	require.NotNil(t, rep.Summary)
	assert.Equal(t, Totals{2, 2}, rep.Summary.Rows.Total)
	assert.Equal(t, int64(1), rep.Summary.DiffCounts["value"])
	assert.Equal(t, "abc", rep.Summary.TreeDigest)
}

func TestErrorReport(t *testing.T) {
	rep := ErrorReport("m", []string{"a"}, []string{"b"}, errors.New("boom"))
	assert.Equal(t, StatusError, rep.Status)
	assert.Equal(t, "boom", rep.Error)
	assert.NotNil(t, rep.Rows.Diff)
}

func TestRenderText(t *testing.T) {
	rep := Jsonify(wrapper(exampleRows), Options{IncludeSummary: true})
	var buf bytes.Buffer
	require.NoError(t, RenderText(&buf, rep))
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	assert.Equal(t, "- id=2 value=4", lines[0])
	assert.Equal(t, "+ id=3 value=202", lines[1])
	assert.Equal(t, "~ id=1 value=3->201", lines[2])
	assert.Contains(t, buf.String(), "100.00% different")
}

func TestWriteFile(t *testing.T) {
	dir := t.TempDir()
	rep := Jsonify(wrapper(exampleRows), Options{Dataset1: []string{"public.t1"}})
	path, err := WriteFile(dir, rep)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(filepath.Base(path), "public_t1_diffs-"))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	var decoded map[string]any
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, "different", decoded["result"])

	html, err := os.ReadFile(strings.TrimSuffix(path, ".json") + ".html")
	require.NoError(t, err)
	assert.Contains(t, string(html), `<span class="diff-chunk">3</span>`)
	assert.Contains(t, string(html), "MISSING")
}

func TestHighlightDifference(t *testing.T) {
	a, b := highlightDifference("abc-123", "abc-456")
	assert.Equal(t, `abc-<span class="diff-chunk">123</span>`, string(a))
	assert.Equal(t, `abc-<span class="diff-chunk">456</span>`, string(b))

	a, b = highlightDifference("<x>", "<x>")
	assert.Equal(t, "&lt;x&gt;", string(a))
	assert.Equal(t, a, b)

	assert.Equal(t, "1,234,567", formatInt64WithCommas(1234567))
	assert.Equal(t, "-999", formatInt64WithCommas(-999))
}
