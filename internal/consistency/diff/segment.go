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
	"fmt"
	"time"

	"github.com/pgedge/xdiff/db/queries"
	"github.com/pgedge/xdiff/internal/dialect"
	"github.com/pgedge/xdiff/internal/infra/db"
)

type Column struct {
	Name string
	Type dialect.ColumnType
}

// Filter narrows the rows a segment covers, independently of its key range.
type Filter struct {
	UpdateColumn string
	MinUpdate    *time.Time
	MaxUpdate    *time.Time
	Where        string
}

// TableSegment is a key range of one table on one connection. It is never
// mutated; narrowing returns a new segment.
type TableSegment struct {
	Side    string
	Conn    db.Conn
	Path    dialect.TablePath
	Keys    []Column
	Columns []Column
	Filter  Filter
	Range   KeyRange
}

func (s TableSegment) WithRange(r KeyRange) TableSegment {
	s.Range = r
	return s
}

func (s TableSegment) dialect() dialect.Dialect { return s.Conn.Dialect() }

func (s TableSegment) table() string { return s.dialect().QuoteTable(s.Path) }

func (s TableSegment) quotedKeys() []string {
	out := make([]string, len(s.Keys))
	for i, k := range s.Keys {
		out[i] = s.dialect().Quote(k.Name)
	}
	return out
}

func (s TableSegment) allColumns() []Column {
	return append(append([]Column{}, s.Keys...), s.Columns...)
}

// normalizedExprs renders keys then compared columns as comparable text.
func (s TableSegment) normalizedExprs() ([]string, error) {
	d := s.dialect()
	cols := s.allColumns()
	out := make([]string, len(cols))
	for i, c := range cols {
		expr, err := d.Normalize(d.Quote(c.Name), c.Type)
		if err != nil {
			if ute, ok := err.(*dialect.UnsupportedTypeError); ok {
				ute.Column = c.Name
			}
			return nil, err
		}
		out[i] = expr
	}
	return out, nil
}

func (s TableSegment) filterPredicate() string {
	d := s.dialect()
	var preds []string
	if s.Filter.UpdateColumn != "" {
		col := d.Quote(s.Filter.UpdateColumn)
		if s.Filter.MinUpdate != nil {
			preds = append(preds, fmt.Sprintf("%s >= %s", col, d.Literal(*s.Filter.MinUpdate)))
		}
		if s.Filter.MaxUpdate != nil {
			preds = append(preds, fmt.Sprintf("%s < %s", col, d.Literal(*s.Filter.MaxUpdate)))
		}
	}
	if s.Filter.Where != "" {
		preds = append(preds, s.Filter.Where)
	}
	return queries.And(preds...)
}

func (s TableSegment) rangePredicate() (string, error) {
	d := s.dialect()
	cols := s.quotedKeys()
	literals := func(k Key) []string {
		out := make([]string, len(k))
		for i, v := range k {
			out[i] = d.Literal(v)
		}
		return out
	}

	var lower, upper string
	var err error
	if s.Range.Min != nil {
		if lower, err = queries.TupleCompare(cols, literals(s.Range.Min), ">="); err != nil {
			return "", err
		}
	}
	if s.Range.Max != nil {
		op := "<"
		if s.Range.MaxInclusive {
			op = "<="
		}
		if upper, err = queries.TupleCompare(cols, literals(s.Range.Max), op); err != nil {
			return "", err
		}
	}
	return queries.And(lower, upper), nil
}

func (s TableSegment) where() (string, error) {
	rp, err := s.rangePredicate()
	if err != nil {
		return "", err
	}
	return queries.And(rp, s.filterPredicate()), nil
}

func (s TableSegment) ChecksumQuery() (string, error) {
	exprs, err := s.normalizedExprs()
	if err != nil {
		return "", err
	}
	where, err := s.where()
	if err != nil {
		return "", err
	}
	d := s.dialect()
	return queries.ChecksumSQL(s.table(), d.ChecksumSumExpr(d.ChecksumRowExpr(exprs)), where)
}

func (s TableSegment) CountQuery() (string, error) {
	where, err := s.where()
	if err != nil {
		return "", err
	}
	return queries.CountSQL(s.table(), where)
}

// RowsQuery selects the normalized rendering of every column followed by
// its displayable rendering.
func (s TableSegment) RowsQuery() (string, error) {
	exprs, err := s.normalizedExprs()
	if err != nil {
		return "", err
	}
	d := s.dialect()
	for _, c := range s.allColumns() {
		shown, err := d.ToComparable(d.Quote(c.Name), c.Type)
		if err != nil {
			return "", err
		}
		exprs = append(exprs, shown)
	}
	where, err := s.where()
	if err != nil {
		return "", err
	}
	return queries.RowsSQL(s.table(), exprs, where, s.quotedKeys())
}

// EdgeKeyQuery selects the first (or last) key under the segment's filter,
// ignoring its range.
func (s TableSegment) EdgeKeyQuery(last bool) (string, error) {
	return queries.OrderedKeysSQL(s.table(), s.quotedKeys(), s.filterPredicate(), last, s.dialect().LimitOffset(1, 0))
}

// KeyAtOffsetQuery selects the key at a zero-based position in the range.
func (s TableSegment) KeyAtOffsetQuery(offset int64) (string, error) {
	where, err := s.where()
	if err != nil {
		return "", err
	}
	return queries.OrderedKeysSQL(s.table(), s.quotedKeys(), where, false, s.dialect().LimitOffset(1, offset))
}

func (s TableSegment) batch(query string) db.Batch {
	return db.Batch{Setup: s.dialect().SessionSetup(), Query: query}
}

func (s TableSegment) run(ctx context.Context, query string) (*db.Result, error) {
	return s.Conn.ExecuteBatch(ctx, s.batch(query))
}

// keyFromRow coerces the leading len(Keys) values of a row.
func (s TableSegment) keyFromRow(row []any) (Key, error) {
	if len(row) < len(s.Keys) {
		return nil, fmt.Errorf("expected %d key values, got %d", len(s.Keys), len(row))
	}
	k := make(Key, len(s.Keys))
	for i, c := range s.Keys {
		v, err := coerceKeyValue(row[i], c.Type)
		if err != nil {
			return nil, fmt.Errorf("key column %s: %w", c.Name, err)
		}
		k[i] = v
	}
	return k, nil
}

func (s TableSegment) String() string {
	return fmt.Sprintf("%s:%s%s", s.Side, s.Path, s.Range)
}
