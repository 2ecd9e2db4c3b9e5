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

package db

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/pgedge/xdiff/internal/dialect"
)

// DescribeTable lists a table's columns in declaration order.
func DescribeTable(ctx context.Context, c Conn, path dialect.TablePath) ([]dialect.RawColumnInfo, error) {
	res, err := c.Execute(ctx, c.Dialect().SelectTableSchema(path))
	if err != nil {
		return nil, fmt.Errorf("failed to describe %s: %w", path, err)
	}
	if len(res.Rows) == 0 {
		return nil, fmt.Errorf("table %s not found or has no columns", path)
	}
	out := make([]dialect.RawColumnInfo, 0, len(res.Rows))
	for _, row := range res.Rows {
		if len(row) < 5 {
			return nil, fmt.Errorf("describe %s: expected 5 columns, got %d", path, len(row))
		}
		out = append(out, dialect.RawColumnInfo{
			Name:              fmt.Sprint(row[0]),
			DataType:          strings.TrimSpace(fmt.Sprint(row[1])),
			DatetimePrecision: optionalInt(row[2]),
			NumericPrecision:  optionalInt(row[3]),
			NumericScale:      optionalInt(row[4]),
		})
	}
	return out, nil
}

func optionalInt(v any) *int {
	var n int
	switch x := v.(type) {
	case nil:
		return nil
	case int64:
		n = int(x)
	case int32:
		n = int(x)
	case int:
		n = x
	case uint64:
		n = int(x)
	case float64:
		n = int(x)
	default:
		parsed, err := strconv.Atoi(strings.TrimSpace(fmt.Sprint(x)))
		if err != nil {
			return nil
		}
		n = parsed
	}
	return &n
}
