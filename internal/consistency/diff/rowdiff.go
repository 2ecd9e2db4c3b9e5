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
	"fmt"
	"sort"
	"time"

	"github.com/pgedge/xdiff/internal/dialect"
)

// Row is one fetched row. Key and Values hold normalized renderings (nil
// for NULL) used for comparison; Display holds the engine's own values of
// the key columns followed by the compared columns.
type Row struct {
	Key     []string
	Values  []*string
	Display []any
}

// DiffRow records one key that is exclusive to a side or whose values
// differ. Absent sides have nil key and value slices.
type DiffRow struct {
	ExclusiveA bool   `json:"exclusive_a"`
	ExclusiveB bool   `json:"exclusive_b"`
	KeyDiff    []bool `json:"key_diff"`
	ValueDiff  []bool `json:"value_diff"`
	KeyA       []any  `json:"key_a"`
	KeyB       []any  `json:"key_b"`
	ValueA     []any  `json:"value_a"`
	ValueB     []any  `json:"value_b"`
}

// parseRows splits result rows laid out as normalized keys, normalized
// values, then display values for keys and values.
func parseRows(raw [][]any, nKeys, nValues int) ([]Row, error) {
	width := 2 * (nKeys + nValues)
	out := make([]Row, 0, len(raw))
	for _, r := range raw {
		if len(r) != width {
			return nil, fmt.Errorf("expected %d columns per row, got %d", width, len(r))
		}
		row := Row{
			Key:     make([]string, nKeys),
			Values:  make([]*string, nValues),
			Display: r[nKeys+nValues:],
		}
		for i := 0; i < nKeys; i++ {
			s := textValue(r[i])
			if s == nil {
				return nil, fmt.Errorf("key column %d is NULL", i)
			}
			row.Key[i] = *s
		}
		for i := 0; i < nValues; i++ {
			row.Values[i] = textValue(r[nKeys+i])
		}
		out = append(out, row)
	}
	return out, nil
}

func textValue(v any) *string {
	var s string
	switch x := v.(type) {
	case nil:
		return nil
	case string:
		s = x
	case []byte:
		s = string(x)
	case time.Time:
		s = x.UTC().Format("2006-01-02 15:04:05.000000")
	default:
		s = fmt.Sprint(x)
	}
	return &s
}

type rowSorter struct {
	types []dialect.ColumnType
}

func (s rowSorter) compare(a, b Row) int {
	for i, t := range s.types {
		if c := compareValues(sortKey(a.Key[i], t), sortKey(b.Key[i], t)); c != 0 {
			return c
		}
	}
	return 0
}

// DiffRows merge-compares two row sets on their keys. Rows are ordered in
// Go so the result does not depend on either engine's collation. Matching
// rows produce nothing. valueTypes may be nil; structured values are
// compared as JSON documents when their texts differ.
func DiffRows(keyTypes, valueTypes []dialect.ColumnType, a, b []Row) []DiffRow {
	s := rowSorter{types: keyTypes}
	sort.SliceStable(a, func(i, j int) bool { return s.compare(a[i], a[j]) < 0 })
	sort.SliceStable(b, func(i, j int) bool { return s.compare(b[i], b[j]) < 0 })

	nKeys := len(keyTypes)
	var out []DiffRow
	i, j := 0, 0
	for i < len(a) || j < len(b) {
		var c int
		switch {
		case j == len(b):
			c = -1
		case i == len(a):
			c = 1
		default:
			c = s.compare(a[i], b[j])
		}

		switch {
		case c < 0:
			out = append(out, exclusiveRow(a[i], nKeys, true))
			i++
		case c > 0:
			out = append(out, exclusiveRow(b[j], nKeys, false))
			j++
		default:
			if dr, differs := compareRow(a[i], b[j], nKeys, valueTypes); differs {
				out = append(out, dr)
			}
			i++
			j++
		}
	}
	return out
}

func allTrue(n int) []bool {
	out := make([]bool, n)
	for i := range out {
		out[i] = true
	}
	return out
}

func exclusiveRow(r Row, nKeys int, sideA bool) DiffRow {
	dr := DiffRow{
		ExclusiveA: sideA,
		ExclusiveB: !sideA,
		KeyDiff:    allTrue(nKeys),
		ValueDiff:  allTrue(len(r.Values)),
	}
	if sideA {
		dr.KeyA, dr.ValueA = r.Display[:nKeys], r.Display[nKeys:]
	} else {
		dr.KeyB, dr.ValueB = r.Display[:nKeys], r.Display[nKeys:]
	}
	return dr
}

func compareRow(a, b Row, nKeys int, valueTypes []dialect.ColumnType) (DiffRow, bool) {
	dr := DiffRow{
		KeyDiff:   make([]bool, nKeys),
		ValueDiff: make([]bool, len(a.Values)),
		KeyA:      a.Display[:nKeys],
		KeyB:      b.Display[:nKeys],
		ValueA:    a.Display[nKeys:],
		ValueB:    b.Display[nKeys:],
	}
	for i := range a.Key {
		dr.KeyDiff[i] = a.Key[i] != b.Key[i]
	}
	differs := false
	for i := range a.Values {
		structured := i < len(valueTypes) && valueTypes[i].IsStructured()
		if !sameValue(a.Values[i], b.Values[i], structured) {
			dr.ValueDiff[i] = true
			differs = true
		}
	}
	return dr, differs
}

func sameValue(a, b *string, structured bool) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if structured {
		return dialect.EquivalentJSON(*a, *b)
	}
	return *a == *b
}
