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
	"testing"

	"github.com/pgedge/xdiff/internal/dialect"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrepareSegments(t *testing.T) {
	ca := openSQLite(t, "CREATE TABLE orders (id INTEGER, Total NUMERIC(10,2), placed DATETIME, note TEXT, only_a TEXT)")
	cb := openSQLite(t, "CREATE TABLE orders (ID INTEGER, total REAL, PLACED DATETIME, note TEXT)")
	ctx := context.Background()

	a, b, err := PrepareSegments(ctx, TableRef{Conn: ca, Path: []string{"orders"}}, TableRef{Conn: cb, Path: []string{"db", "main", "orders"}}, SegmentSpec{})
	require.NoError(t, err)

	assert.Equal(t, SideA, a.Side)
	assert.Equal(t, SideB, b.Side)
	assert.Equal(t, dialect.TablePath{Schema: "main", Table: "orders"}, b.Path)
	require.Len(t, a.Keys, 1)
	assert.Equal(t, "id", a.Keys[0].Name)
	assert.Equal(t, "ID", b.Keys[0].Name)

	var names []string
	for _, c := range b.Columns {
		names = append(names, c.Name)
	}
	assert.Equal(t, []string{"total", "PLACED", "note"}, names)
	// Decimal on one side and float on the other compare at the coarser scale.
	assert.Equal(t, dialect.Decimal(2), a.Columns[0].Type)
	assert.Equal(t, a.Columns[0].Type, b.Columns[0].Type)
}

func TestPrepareSegmentsErrors(t *testing.T) {
	ca := openSQLite(t, "CREATE TABLE t (id INTEGER, doc BLOB, v TEXT)")
	cb := openSQLite(t, "CREATE TABLE t (id INTEGER, doc BLOB, v TEXT)")
	ctx := context.Background()
	refA := TableRef{Conn: ca, Path: []string{"t"}}
	refB := TableRef{Conn: cb, Path: []string{"t"}}

	_, _, err := PrepareSegments(ctx, refA, refB, SegmentSpec{Keys: []string{"missing"}})
	require.Error(t, err)

	_, _, err = PrepareSegments(ctx, refA, refB, SegmentSpec{Columns: []string{"doc"}})
	require.True(t, errors.Is(err, dialect.ErrUnsupportedType))
	var ute *dialect.UnsupportedTypeError
	require.True(t, errors.As(err, &ute))
	assert.Equal(t, "doc", ute.Column)

	// Unsupported columns are skipped when columns are not listed.
	a, _, err := PrepareSegments(ctx, refA, refB, SegmentSpec{})
	require.NoError(t, err)
	require.Len(t, a.Columns, 1)
	assert.Equal(t, "v", a.Columns[0].Name)

	_, _, err = PrepareSegments(ctx, refA, TableRef{Conn: cb, Path: nil}, SegmentSpec{})
	require.True(t, errors.Is(err, dialect.ErrBadTablePath))

	_, _, err = PrepareSegments(ctx, refA, refB, SegmentSpec{Filter: Filter{UpdateColumn: "nope"}})
	require.Error(t, err)
}

func TestCompareColumns(t *testing.T) {
	ca := openSQLite(t, "CREATE TABLE orders (id INTEGER, Total NUMERIC(10,2), note TEXT, only_a TEXT)")
	cb := openSQLite(t, "CREATE TABLE orders (ID INTEGER, total REAL, NOTE TEXT, only_b INTEGER)")

	sets, err := CompareColumns(context.Background(), TableRef{Conn: ca, Path: []string{"orders"}}, TableRef{Conn: cb, Path: []string{"orders"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"id", "Total", "note"}, sets.Common)
	assert.Equal(t, []string{"only_a"}, sets.OnlyA)
	assert.Equal(t, []string{"only_b"}, sets.OnlyB)
	assert.Equal(t, []string{"Total"}, sets.TypeChanged)
}
