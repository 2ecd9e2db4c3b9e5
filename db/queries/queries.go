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

package queries

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"
)

type SelectData struct {
	Table   string
	Columns []string
	Where   string
	OrderBy []string
	Sum     string
	Tail    string
	Expr    string
}

func RenderSQL(t *template.Template, data any) (string, error) {
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to render SQL: %w", err)
	}
	return strings.TrimSpace(buf.String()), nil
}

func ChecksumSQL(table, sum, where string) (string, error) {
	return RenderSQL(SQLTemplates.SegmentChecksum, SelectData{Table: table, Sum: sum, Where: where})
}

func RowsSQL(table string, columns []string, where string, orderBy []string) (string, error) {
	if len(columns) == 0 {
		return "", fmt.Errorf("no columns to select from %s", table)
	}
	return RenderSQL(SQLTemplates.SegmentRows, SelectData{Table: table, Columns: columns, Where: where, OrderBy: orderBy})
}

func CountSQL(table, where string) (string, error) {
	return RenderSQL(SQLTemplates.SegmentCount, SelectData{Table: table, Where: where})
}

// OrderedKeysSQL selects key tuples in key order; tail is the dialect's
// limit/offset clause, so this serves both bounds and split points.
func OrderedKeysSQL(table string, keys []string, where string, desc bool, tail string) (string, error) {
	if len(keys) == 0 {
		return "", fmt.Errorf("no key columns for %s", table)
	}
	order := make([]string, len(keys))
	for i, k := range keys {
		order[i] = k
		if desc {
			order[i] += " DESC"
		}
	}
	return RenderSQL(SQLTemplates.OrderedKeys, SelectData{Table: table, Columns: keys, Where: where, OrderBy: order, Tail: tail})
}

func CurrentTimestampSQL(expr string) (string, error) {
	return RenderSQL(SQLTemplates.CurrentTimestamp, SelectData{Expr: expr})
}

// TupleCompare renders a lexicographic comparison of a column tuple with a
// literal tuple as explicit disjunctions, which every engine accepts:
// (a, b) >= (1, 2) becomes (a > 1) OR (a = 1 AND b >= 2).
func TupleCompare(columns, literals []string, op string) (string, error) {
	if len(columns) == 0 || len(columns) != len(literals) {
		return "", fmt.Errorf("tuple comparison needs matching columns and values, got %d and %d", len(columns), len(literals))
	}
	strict := strings.TrimSuffix(op, "=")
	switch op {
	case "<", "<=", ">", ">=":
	default:
		return "", fmt.Errorf("unsupported tuple operator %q", op)
	}

	if len(columns) == 1 {
		return fmt.Sprintf("%s %s %s", columns[0], op, literals[0]), nil
	}

	terms := make([]string, 0, len(columns))
	for i := range columns {
		conj := make([]string, 0, i+1)
		for j := 0; j < i; j++ {
			conj = append(conj, fmt.Sprintf("%s = %s", columns[j], literals[j]))
		}
		last := strict
		if i == len(columns)-1 {
			last = op
		}
		conj = append(conj, fmt.Sprintf("%s %s %s", columns[i], last, literals[i]))
		terms = append(terms, "("+strings.Join(conj, " AND ")+")")
	}
	return "(" + strings.Join(terms, " OR ") + ")", nil
}

// And joins the non-empty predicates.
func And(preds ...string) string {
	parts := make([]string, 0, len(preds))
	for _, p := range preds {
		if strings.TrimSpace(p) == "" {
			continue
		}
		parts = append(parts, p)
	}
	switch len(parts) {
	case 0:
		return ""
	case 1:
		return parts[0]
	}
	for i, p := range parts {
		parts[i] = "(" + p + ")"
	}
	return strings.Join(parts, " AND ")
}
