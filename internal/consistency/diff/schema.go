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

	"github.com/pgedge/xdiff/internal/dialect"
	"github.com/pgedge/xdiff/internal/infra/db"
	"github.com/pgedge/xdiff/pkg/logger"
)

const (
	SideA = "A"
	SideB = "B"
)

// DefaultKeyColumn is used when no key columns are given.
const DefaultKeyColumn = "id"

// TableRef names a table on one connection. DefaultSchema applies to
// single-component paths.
type TableRef struct {
	Conn          db.Conn
	Path          []string
	DefaultSchema string
}

// SegmentSpec selects what a diff compares. Column names are matched
// case-insensitively on both sides.
type SegmentSpec struct {
	Keys    []string
	Columns []string
	Filter  Filter
}

type sideSchema struct {
	d      dialect.Dialect
	path   dialect.TablePath
	byName map[string]dialect.RawColumnInfo
	order  []string
}

func describeSide(ctx context.Context, ref TableRef) (*sideSchema, error) {
	d := ref.Conn.Dialect()
	path, err := d.NormalizeTablePath(ref.Path, ref.DefaultSchema)
	if err != nil {
		return nil, err
	}
	cols, err := db.DescribeTable(ctx, ref.Conn, path)
	if err != nil {
		return nil, err
	}
	s := &sideSchema{d: d, path: path, byName: make(map[string]dialect.RawColumnInfo, len(cols))}
	for _, c := range cols {
		key := strings.ToLower(c.Name)
		s.byName[key] = c
		s.order = append(s.order, key)
	}
	return s, nil
}

func (s *sideSchema) column(name string) (dialect.RawColumnInfo, bool) {
	c, ok := s.byName[strings.ToLower(name)]
	return c, ok
}

// resolve parses and reconciles one column on both sides and checks both
// dialects can normalize it.
func resolve(a, b *sideSchema, name string) (Column, Column, error) {
	ia, okA := a.column(name)
	ib, okB := b.column(name)
	switch {
	case !okA:
		return Column{}, Column{}, fmt.Errorf("column %s not found in %s", name, a.path)
	case !okB:
		return Column{}, Column{}, fmt.Errorf("column %s not found in %s", name, b.path)
	}

	ta, err := a.d.ParseType(ia)
	if err != nil {
		return Column{}, Column{}, withColumn(err, ia.Name)
	}
	tb, err := b.d.ParseType(ib)
	if err != nil {
		return Column{}, Column{}, withColumn(err, ib.Name)
	}
	ta, tb, notes := dialect.Reconcile(ta, tb)
	for _, n := range notes {
		logger.Warn("Column %s: %s", ia.Name, n)
	}
	if _, err := a.d.Normalize(a.d.Quote(ia.Name), ta); err != nil {
		return Column{}, Column{}, withColumn(err, ia.Name)
	}
	if _, err := b.d.Normalize(b.d.Quote(ib.Name), tb); err != nil {
		return Column{}, Column{}, withColumn(err, ib.Name)
	}
	return Column{Name: ia.Name, Type: ta}, Column{Name: ib.Name, Type: tb}, nil
}

func withColumn(err error, name string) error {
	var ute *dialect.UnsupportedTypeError
	if errors.As(err, &ute) && ute.Column == "" {
		ute.Column = name
	}
	return err
}

// PrepareSegments describes both tables and builds the root segment pair.
// Without explicit columns every non-key column present on both sides is
// compared, skipping columns whose type cannot be normalized.
func PrepareSegments(ctx context.Context, refA, refB TableRef, spec SegmentSpec) (TableSegment, TableSegment, error) {
	a, err := describeSide(ctx, refA)
	if err != nil {
		return TableSegment{}, TableSegment{}, err
	}
	b, err := describeSide(ctx, refB)
	if err != nil {
		return TableSegment{}, TableSegment{}, err
	}

	keyNames := spec.Keys
	if len(keyNames) == 0 {
		keyNames = []string{DefaultKeyColumn}
	}
	segA := TableSegment{Side: SideA, Conn: refA.Conn, Path: a.path, Filter: spec.Filter}
	segB := TableSegment{Side: SideB, Conn: refB.Conn, Path: b.path, Filter: spec.Filter}

	isKey := map[string]bool{}
	for _, k := range keyNames {
		ca, cb, err := resolve(a, b, k)
		if err != nil {
			return TableSegment{}, TableSegment{}, fmt.Errorf("key column: %w", err)
		}
		if !ca.Type.Orderable() || !cb.Type.Orderable() {
			return TableSegment{}, TableSegment{}, fmt.Errorf("key column %s of type %s cannot be ordered", ca.Name, ca.Type)
		}
		isKey[strings.ToLower(k)] = true
		segA.Keys = append(segA.Keys, ca)
		segB.Keys = append(segB.Keys, cb)
	}

	if len(spec.Columns) > 0 {
		for _, name := range spec.Columns {
			if isKey[strings.ToLower(name)] {
				continue
			}
			ca, cb, err := resolve(a, b, name)
			if err != nil {
				return TableSegment{}, TableSegment{}, err
			}
			segA.Columns = append(segA.Columns, ca)
			segB.Columns = append(segB.Columns, cb)
		}
	} else {
		for _, name := range a.order {
			if isKey[name] {
				continue
			}
			if _, ok := b.column(name); !ok {
				logger.Debug("Column %s exists only in %s, not compared", name, a.path)
				continue
			}
			ca, cb, err := resolve(a, b, name)
			if errors.Is(err, dialect.ErrUnsupportedType) {
				logger.Warn("Skipping column %s: %v", name, err)
				continue
			}
			if err != nil {
				return TableSegment{}, TableSegment{}, err
			}
			segA.Columns = append(segA.Columns, ca)
			segB.Columns = append(segB.Columns, cb)
		}
	}

	if spec.Filter.UpdateColumn != "" {
		ua, okA := a.column(spec.Filter.UpdateColumn)
		ub, okB := b.column(spec.Filter.UpdateColumn)
		if !okA || !okB {
			return TableSegment{}, TableSegment{}, fmt.Errorf("update column %s not found on both sides", spec.Filter.UpdateColumn)
		}
		segA.Filter.UpdateColumn = ua.Name
		segB.Filter.UpdateColumn = ub.Name
	}

	logger.Debug("Comparing %d key column(s) and %d column(s) of %s and %s",
		len(segA.Keys), len(segA.Columns), a.path, b.path)
	return segA, segB, nil
}

// ColumnSets describes how the column lists of two tables line up. Names
// are reported as declared on side A, or side B for OnlyB.
type ColumnSets struct {
	Common      []string
	OnlyA       []string
	OnlyB       []string
	TypeChanged []string
}

// CompareColumns matches both tables' columns case-insensitively. A column
// counts as type-changed when the two sides parse to different kinds.
func CompareColumns(ctx context.Context, refA, refB TableRef) (ColumnSets, error) {
	a, err := describeSide(ctx, refA)
	if err != nil {
		return ColumnSets{}, err
	}
	b, err := describeSide(ctx, refB)
	if err != nil {
		return ColumnSets{}, err
	}

	var out ColumnSets
	for _, name := range a.order {
		ia := a.byName[name]
		ib, ok := b.column(name)
		if !ok {
			out.OnlyA = append(out.OnlyA, ia.Name)
			continue
		}
		out.Common = append(out.Common, ia.Name)
		ta, errA := a.d.ParseType(ia)
		tb, errB := b.d.ParseType(ib)
		if errA != nil || errB != nil {
			continue
		}
		if ta.Kind != tb.Kind && !(ta.IsTemporal() && tb.IsTemporal()) {
			out.TypeChanged = append(out.TypeChanged, ia.Name)
		}
	}
	for _, name := range b.order {
		if _, ok := a.column(name); !ok {
			out.OnlyB = append(out.OnlyB, b.byName[name].Name)
		}
	}
	return out, nil
}
