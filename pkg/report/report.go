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

// Package report reshapes a finished diff into portable documents. It does
// no comparison of its own.
package report

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/pgedge/xdiff/internal/consistency/diff"
	"github.com/shopspring/decimal"
)

const Version = "1.0.0"

const (
	StatusSuccess = "success"
	StatusError   = "error"

	ResultIdentical = "identical"
	ResultDifferent = "different"
)

// Cell is one column of a reported row. Exclusive rows fill Value; diff
// rows fill Dataset1, Dataset2 and IsDiff.
type Cell struct {
	IsPK     bool
	Value    any
	Dataset1 any
	Dataset2 any
	IsDiff   bool

	diff bool
}

func (c Cell) MarshalJSON() ([]byte, error) {
	if c.diff {
		return json.Marshal(struct {
			IsPK     bool `json:"isPK"`
			Dataset1 any  `json:"dataset1"`
			Dataset2 any  `json:"dataset2"`
			IsDiff   bool `json:"isDiff"`
		}{c.IsPK, c.Dataset1, c.Dataset2, c.IsDiff})
	}
	return json.Marshal(struct {
		IsPK  bool `json:"isPK"`
		Value any  `json:"value"`
	}{c.IsPK, c.Value})
}

type Field struct {
	Column string
	Cell   Cell
}

// Record is a row object whose keys keep column order when encoded.
type Record []Field

func (r Record) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, f := range r {
		if i > 0 {
			buf.WriteByte(',')
		}
		name, err := json.Marshal(f.Column)
		if err != nil {
			return nil, err
		}
		cell, err := json.Marshal(f.Cell)
		if err != nil {
			return nil, err
		}
		buf.Write(name)
		buf.WriteByte(':')
		buf.Write(cell)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Get returns the cell for a column.
func (r Record) Get(column string) (Cell, bool) {
	for _, f := range r {
		if f.Column == column {
			return f.Cell, true
		}
	}
	return Cell{}, false
}

type Exclusive struct {
	Dataset1 []Record `json:"dataset1"`
	Dataset2 []Record `json:"dataset2"`
}

type Rows struct {
	Exclusive Exclusive `json:"exclusive"`
	Diff      []Record  `json:"diff"`
}

type Totals struct {
	Dataset1 int64 `json:"dataset1"`
	Dataset2 int64 `json:"dataset2"`
}

type RowSummary struct {
	Total     Totals `json:"total"`
	Exclusive Totals `json:"exclusive"`
	Updated   int64  `json:"updated"`
	Unchanged int64  `json:"unchanged"`
}

type Summary struct {
	Rows        RowSummary       `json:"rows"`
	DiffCounts  map[string]int64 `json:"diffCounts"`
	Segments    int64            `json:"segments"`
	DiffPercent float64          `json:"diffPercent"`
	TreeDigest  string           `json:"treeDigest"`
}

type ColumnList struct {
	Dataset1 []string `json:"dataset1"`
	Dataset2 []string `json:"dataset2"`
}

type Columns struct {
	PrimaryKey  []string   `json:"primaryKey"`
	Compared    ColumnList `json:"compared"`
	Exclusive   ColumnList `json:"exclusive"`
	TypeChanged []string   `json:"typeChanged"`
}

type Report struct {
	Version  string   `json:"version"`
	Status   string   `json:"status"`
	Result   string   `json:"result"`
	Model    string   `json:"model"`
	Dataset1 []string `json:"dataset1"`
	Dataset2 []string `json:"dataset2"`
	Rows     Rows     `json:"rows"`
	Summary  *Summary `json:"summary"`
	Columns  *Columns `json:"columns"`
	Error    string   `json:"error,omitempty"`
}

// Options carry what the diff itself does not know. Nil datasets fall back
// to the normalized table paths.
type Options struct {
	Model          string
	Dataset1       []string
	Dataset2       []string
	IncludeSummary bool
	Columns        *Columns
}

// Jsonify projects a finished diff into a Report.
func Jsonify(w *diff.DiffResultWrapper, opts Options) Report {
	a, b := w.Tree.A, w.Tree.B
	rep := Report{
		Version:  Version,
		Status:   StatusSuccess,
		Result:   ResultIdentical,
		Model:    opts.Model,
		Dataset1: datasetPath(opts.Dataset1, a),
		Dataset2: datasetPath(opts.Dataset2, b),
		Rows: Rows{
			Exclusive: Exclusive{Dataset1: []Record{}, Dataset2: []Record{}},
			Diff:      []Record{},
		},
		Columns: opts.Columns,
	}

	keyNames := make([]string, len(a.Keys))
	for i, k := range a.Keys {
		keyNames[i] = k.Name
	}
	valueNames := make([]string, len(a.Columns))
	for i, c := range a.Columns {
		valueNames[i] = c.Name
	}

	for _, r := range w.Rows {
		switch {
		case r.ExclusiveA:
			rep.Rows.Exclusive.Dataset1 = append(rep.Rows.Exclusive.Dataset1, exclusiveRecord(keyNames, valueNames, r.KeyA, r.ValueA))
		case r.ExclusiveB:
			rep.Rows.Exclusive.Dataset2 = append(rep.Rows.Exclusive.Dataset2, exclusiveRecord(keyNames, valueNames, r.KeyB, r.ValueB))
		default:
			rep.Rows.Diff = append(rep.Rows.Diff, diffRecord(keyNames, valueNames, r))
		}
	}
	if len(w.Rows) > 0 {
		rep.Result = ResultDifferent
	}
	if opts.IncludeSummary {
		rep.Summary = summarize(w, valueNames)
	}
	return rep
}

// ErrorReport describes a run that failed before producing a result.
func ErrorReport(model string, dataset1, dataset2 []string, err error) Report {
	return Report{
		Version:  Version,
		Status:   StatusError,
		Model:    model,
		Dataset1: dataset1,
		Dataset2: dataset2,
		Rows: Rows{
			Exclusive: Exclusive{Dataset1: []Record{}, Dataset2: []Record{}},
			Diff:      []Record{},
		},
		Error: err.Error(),
	}
}

func datasetPath(given []string, seg diff.TableSegment) []string {
	if given != nil {
		return given
	}
	if seg.Path.Schema == "" {
		return []string{seg.Path.Table}
	}
	return []string{seg.Path.Schema, seg.Path.Table}
}

func exclusiveRecord(keys, values []string, key, value []any) Record {
	rec := make(Record, 0, len(keys)+len(values))
	for i, k := range keys {
		rec = append(rec, Field{Column: k, Cell: Cell{IsPK: true, Value: jsonValue(at(key, i))}})
	}
	for i, v := range values {
		rec = append(rec, Field{Column: v, Cell: Cell{Value: jsonValue(at(value, i))}})
	}
	return rec
}

func diffRecord(keys, values []string, r diff.DiffRow) Record {
	rec := make(Record, 0, len(keys)+len(values))
	for i, k := range keys {
		rec = append(rec, Field{Column: k, Cell: Cell{
			IsPK:     true,
			Dataset1: jsonValue(at(r.KeyA, i)),
			Dataset2: jsonValue(at(r.KeyB, i)),
			IsDiff:   flag(r.KeyDiff, i),
			diff:     true,
		}})
	}
	for i, v := range values {
		rec = append(rec, Field{Column: v, Cell: Cell{
			Dataset1: jsonValue(at(r.ValueA, i)),
			Dataset2: jsonValue(at(r.ValueB, i)),
			IsDiff:   flag(r.ValueDiff, i),
			diff:     true,
		}})
	}
	return rec
}

func at(s []any, i int) any {
	if i < len(s) {
		return s[i]
	}
	return nil
}

func flag(s []bool, i int) bool { return i < len(s) && s[i] }

// jsonValue gives driver values a stable JSON rendering.
func jsonValue(v any) any {
	switch x := v.(type) {
	case []byte:
		return string(x)
	case time.Time:
		return x.UTC().Format("2006-01-02 15:04:05.999999")
	case decimal.Decimal:
		return x.String()
	case fmt.Stringer:
		return x.String()
	}
	return v
}

func statInt(stats map[string]any, key string) int64 {
	switch v := stats[key].(type) {
	case int64:
		return v
	case int:
		return int64(v)
	}
	return 0
}

func summarize(w *diff.DiffResultWrapper, valueNames []string) *Summary {
	s := &Summary{
		Rows: RowSummary{
			Total:     Totals{statInt(w.Stats, "rows_A"), statInt(w.Stats, "rows_B")},
			Exclusive: Totals{statInt(w.Stats, "exclusive_A"), statInt(w.Stats, "exclusive_B")},
			Updated:   statInt(w.Stats, "updated"),
			Unchanged: statInt(w.Stats, "unchanged"),
		},
		DiffCounts: make(map[string]int64, len(valueNames)),
		Segments:   statInt(w.Stats, "segments_checked"),
	}
	if p, ok := w.Stats["diff_percent"].(float64); ok {
		s.DiffPercent = p
	}
	if d, ok := w.Stats["tree_digest"].(string); ok {
		s.TreeDigest = d
	}
	for _, name := range valueNames {
		s.DiffCounts[name] = 0
	}
	for _, r := range w.Rows {
		if r.ExclusiveA || r.ExclusiveB {
			continue
		}
		for i, name := range valueNames {
			if flag(r.ValueDiff, i) {
				s.DiffCounts[name]++
			}
		}
	}
	return s
}
