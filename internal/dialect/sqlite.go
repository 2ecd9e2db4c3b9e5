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

package dialect

import (
	"fmt"
	"math"
	"strings"
)

// SQLite has no md5 and overflows on large integer sums, so the connector
// registers these functions on every connection. SQLiteHashFunc returns the
// trailing ChecksumHexDigits of the MD5 digest as an unsigned integer.
const (
	SQLiteHashFunc = "xdiff_md5_int"
	SQLiteSumFunc  = "xdiff_sum_text"
)

func init() {
	Register("sqlite", func(o Options) Dialect { return NewSQLite(o) }, "sqlite3")
}

var sqliteTypes = map[string]typeClass{
	"int":       class(KindInteger),
	"integer":   class(KindInteger),
	"bigint":    class(KindInteger),
	"smallint":  class(KindInteger),
	"tinyint":   class(KindInteger),
	"real":      floatClass(53),
	"double":    floatClass(53),
	"float":     floatClass(53),
	"numeric":   class(KindDecimal),
	"decimal":   class(KindDecimal),
	"text":      class(KindText),
	"varchar":   class(KindText),
	"char":      class(KindText),
	"clob":      class(KindText),
	"boolean":   class(KindBoolean),
	"bool":      class(KindBoolean),
	"datetime":  class(KindTimestamp),
	"timestamp": class(KindTimestamp),
	"date":      fixedClass(KindTimestamp, 0),
	"uuid":      class(KindUUID),
	"json":      class(KindJSON),
}

type SQLite struct {
	*base
}

func NewSQLite(opts Options) *SQLite {
	return &SQLite{base: &base{
		name:      "sqlite",
		opts:      opts,
		classes:   sqliteTypes,
		rounds:    false,
		maxTSPrec: 3,
		defTSPrec: 3,
		tsLiteral: sqliteTimestampLiteral,
	}}
}

// Timestamps are stored as text; drop an all-zero fraction so literals
// match values written without one.
func sqliteTimestampLiteral(ts string) string {
	ts = strings.TrimRight(ts, "0")
	ts = strings.TrimSuffix(ts, ".")
	return quoteString(ts)
}

func (d *SQLite) Normalize(expr string, t ColumnType) (string, error) {
	return normalizeValue(d, expr, t)
}

func (d *SQLite) ToComparable(expr string, t ColumnType) (string, error) {
	return toComparable(d, expr, t)
}

func (d *SQLite) ToString(expr string) string { return fmt.Sprintf("CAST(%s AS TEXT)", expr) }

func (d *SQLite) ChecksumRowExpr(exprs []string) string {
	return fmt.Sprintf("%s(%s) - %d", SQLiteHashFunc, joinComparable(exprs, concatOperator), ChecksumOffset)
}

func (d *SQLite) ChecksumSumExpr(rowExpr string) string {
	return fmt.Sprintf("%s(%s)", SQLiteSumFunc, rowExpr)
}

func (d *SQLite) CurrentTimestamp() string { return "strftime('%Y-%m-%d %H:%M:%f', 'now')" }

func (d *SQLite) ExplainAsText(query string) string { return "EXPLAIN QUERY PLAN " + query }

func (d *SQLite) SessionSetup() []string { return nil }

func (d *SQLite) SelectTableSchema(path TablePath) string {
	return fmt.Sprintf("SELECT name, type, NULL, NULL, NULL FROM pragma_table_info(%s, %s) ORDER BY cid",
		quoteString(path.Table), quoteString(path.Schema))
}

func (d *SQLite) NormalizeTablePath(path []string, defaultSchema string) (TablePath, error) {
	if defaultSchema == "" {
		defaultSchema = "main"
	}
	return NormalizeTablePath(d.name, path, defaultSchema)
}

// Rounding adds half a unit of the target precision before truncating.
func (d *SQLite) normalizeTimestamp(expr string, t ColumnType) string {
	args := expr
	if t.Rounds && t.Precision < d.maxTSPrec {
		half := 0.5 * math.Pow10(-t.Precision)
		args = fmt.Sprintf("%s, '+%.*f seconds'", expr, t.Precision+1, half)
	}
	return fmt.Sprintf("substr(substr(strftime('%%Y-%%m-%%d %%H:%%M:%%f', %s), 1, %d) || '000000', 1, %d)",
		args, TimestampPrecisionPos+t.Precision, TimestampPrecisionPos+MaxTimestampPrecision)
}

func (d *SQLite) normalizeNumber(expr string, t ColumnType) string {
	return fmt.Sprintf("printf('%%.%df', %s)", t.Precision, expr)
}

func (d *SQLite) normalizeBoolean(expr string) string {
	return d.ToString(fmt.Sprintf("CAST(%s AS INTEGER)", expr))
}

func (d *SQLite) normalizeUUID(expr string) string {
	return fmt.Sprintf("lower(trim(CAST(%s AS TEXT)))", expr)
}

func (d *SQLite) normalizeStructured(expr string, t ColumnType) (string, error) {
	if t.Kind == KindJSON {
		return fmt.Sprintf("%s(%s)", SQLiteJSONFunc, expr), nil
	}
	return unsupportedStructured(d.name, t)
}
