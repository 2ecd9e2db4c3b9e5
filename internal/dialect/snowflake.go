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
	"strings"
)

func init() {
	Register("snowflake", func(o Options) Dialect { return NewSnowflake(o) })
}

var snowflakeTypes = map[string]typeClass{
	"number":           {kind: KindDecimal, precision: -1, integerIfZeroScale: true},
	"decimal":          {kind: KindDecimal, precision: -1, integerIfZeroScale: true},
	"numeric":          {kind: KindDecimal, precision: -1, integerIfZeroScale: true},
	"int":              class(KindInteger),
	"integer":          class(KindInteger),
	"bigint":           class(KindInteger),
	"smallint":         class(KindInteger),
	"float":            floatClass(53),
	"float4":           floatClass(53),
	"float8":           floatClass(53),
	"double":           floatClass(53),
	"double precision": floatClass(53),
	"real":             floatClass(53),
	"varchar":          class(KindText),
	"text":             class(KindText),
	"string":           class(KindText),
	"char":             class(KindText),
	"boolean":          class(KindBoolean),
	"timestamp":        class(KindTimestamp),
	"timestamp_ntz":    class(KindTimestamp),
	"datetime":         class(KindTimestamp),
	"timestamp_tz":     class(KindTimestampTZ),
	"timestamp_ltz":    class(KindTimestampTZ),
	"date":             fixedClass(KindTimestamp, 0),
	"variant":          class(KindJSON),
	"object":           class(KindJSON),
	"array":            class(KindArray),
}

type Snowflake struct {
	*base
}

func NewSnowflake(opts Options) *Snowflake {
	return &Snowflake{base: &base{
		name:      "snowflake",
		opts:      opts,
		classes:   snowflakeTypes,
		rounds:    false,
		maxTSPrec: 6,
		defTSPrec: 6,
		tsLiteral: func(ts string) string { return "to_timestamp_ntz('" + ts + "')" },
	}}
}

func (d *Snowflake) Normalize(expr string, t ColumnType) (string, error) {
	return normalizeValue(d, expr, t)
}

func (d *Snowflake) ToComparable(expr string, t ColumnType) (string, error) {
	return toComparable(d, expr, t)
}

func (d *Snowflake) ToString(expr string) string { return fmt.Sprintf("cast(%s as varchar)", expr) }

func (d *Snowflake) ChecksumRowExpr(exprs []string) string {
	s := joinComparable(exprs, concatOperator)
	return fmt.Sprintf("BITAND(md5_number_lower64(%s), %d) - %d", s, int64(1)<<(ChecksumHexDigits*4)-1, ChecksumOffset)
}

func (d *Snowflake) ChecksumSumExpr(rowExpr string) string {
	return fmt.Sprintf("to_varchar(sum(%s))", rowExpr)
}

func (d *Snowflake) ExplainAsText(query string) string { return "EXPLAIN USING TEXT " + query }

func (d *Snowflake) SessionSetup() []string {
	return []string{"ALTER SESSION SET TIMEZONE = 'UTC'"}
}

func (d *Snowflake) SelectTableSchema(path TablePath) string {
	return fmt.Sprintf(`SELECT column_name, data_type, datetime_precision, numeric_precision, numeric_scale
FROM information_schema.columns
WHERE table_schema = %s AND table_name = %s
ORDER BY ordinal_position`, quoteString(strings.ToUpper(path.Schema)), quoteString(strings.ToUpper(path.Table)))
}

func (d *Snowflake) normalizeTimestamp(expr string, t ColumnType) string {
	value := expr
	if t.Kind == KindTimestampTZ {
		value = fmt.Sprintf("convert_timezone('UTC', %s)::timestamp_ntz", expr)
	}
	if t.Rounds {
		return fmt.Sprintf("RPAD(to_char(cast(%s as timestamp(%d)), 'YYYY-MM-DD HH24:MI:SS.FF6'), %d, '0')",
			value, t.Precision, TimestampPrecisionPos+MaxTimestampPrecision)
	}
	return fmt.Sprintf("RPAD(LEFT(to_char(cast(%s as timestamp(9)), 'YYYY-MM-DD HH24:MI:SS.FF6'), %d), %d, '0')",
		value, TimestampPrecisionPos+t.Precision, TimestampPrecisionPos+MaxTimestampPrecision)
}

func (d *Snowflake) normalizeNumber(expr string, t ColumnType) string {
	return d.ToString(fmt.Sprintf("cast(%s as decimal(38, %d))", expr, t.Precision))
}

func (d *Snowflake) normalizeBoolean(expr string) string {
	return d.ToString(fmt.Sprintf("cast(%s as int)", expr))
}

func (d *Snowflake) normalizeUUID(expr string) string {
	return fmt.Sprintf("lower(trim(cast(%s as varchar)))", expr)
}

func (d *Snowflake) normalizeStructured(expr string, t ColumnType) (string, error) {
	return fmt.Sprintf("to_json(%s)", expr), nil
}
