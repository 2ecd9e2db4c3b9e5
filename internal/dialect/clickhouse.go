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

import "fmt"

func init() {
	Register("clickhouse", func(o Options) Dialect { return NewClickHouse(o) })
}

var clickhouseTypes = map[string]typeClass{
	"int8":        class(KindInteger),
	"int16":       class(KindInteger),
	"int32":       class(KindInteger),
	"int64":       class(KindInteger),
	"int128":      class(KindInteger),
	"int256":      class(KindInteger),
	"uint8":       class(KindInteger),
	"uint16":      class(KindInteger),
	"uint32":      class(KindInteger),
	"uint64":      class(KindInteger),
	"uint128":     class(KindInteger),
	"uint256":     class(KindInteger),
	"float32":     floatClass(24),
	"float64":     floatClass(53),
	"decimal":     class(KindDecimal),
	"decimal32":   {kind: KindDecimal, precision: -1, scaleOnly: true},
	"decimal64":   {kind: KindDecimal, precision: -1, scaleOnly: true},
	"decimal128":  {kind: KindDecimal, precision: -1, scaleOnly: true},
	"decimal256":  {kind: KindDecimal, precision: -1, scaleOnly: true},
	"string":      class(KindText),
	"fixedstring": class(KindText),
	"enum8":       class(KindText),
	"enum16":      class(KindText),
	"uuid":        class(KindUUID),
	"bool":        class(KindBoolean),
	"boolean":     class(KindBoolean),
	"datetime":    fixedClass(KindTimestamp, 0),
	"datetime64":  class(KindTimestamp),
	"date":        fixedClass(KindTimestamp, 0),
	"date32":      fixedClass(KindTimestamp, 0),
	"json":        class(KindJSON),
	"object":      class(KindJSON),
	"array":       class(KindArray),
	"tuple":       class(KindStruct),
}

type ClickHouse struct {
	*base
}

func NewClickHouse(opts Options) *ClickHouse {
	return &ClickHouse{base: &base{
		name:       "clickhouse",
		opts:       opts,
		classes:    clickhouseTypes,
		wrappers:   map[string]bool{"nullable": true, "lowcardinality": true},
		rounds:     false,
		maxTSPrec:  6,
		defTSPrec:  3,
		quoteOpen:  "`",
		quoteClose: "`",
		tsLiteral:  func(ts string) string { return "toDateTime64('" + ts + "', 6, 'UTC')" },
	}}
}

func (d *ClickHouse) Normalize(expr string, t ColumnType) (string, error) {
	return normalizeValue(d, expr, t)
}

func (d *ClickHouse) ToComparable(expr string, t ColumnType) (string, error) {
	return toComparable(d, expr, t)
}

func (d *ClickHouse) ToString(expr string) string { return fmt.Sprintf("toString(%s)", expr) }

// The last six digest bytes are reversed so the little-endian reinterpret
// reads them as a big-endian 48-bit value.
func (d *ClickHouse) ChecksumRowExpr(exprs []string) string {
	s := joinComparable(exprs, concatFunction)
	return fmt.Sprintf("toInt64(reinterpretAsUInt64(reverse(unhex(substring(hex(MD5(%s)), %d))))) - %d",
		s, 1+MD5HexDigits-ChecksumHexDigits, ChecksumOffset)
}

func (d *ClickHouse) ChecksumSumExpr(rowExpr string) string {
	return fmt.Sprintf("toString(sum(toInt128(%s)))", rowExpr)
}

func (d *ClickHouse) CurrentTimestamp() string { return "now64(6)" }

func (d *ClickHouse) ExplainAsText(query string) string { return "EXPLAIN PLAN " + query }

func (d *ClickHouse) SessionSetup() []string { return nil }

func (d *ClickHouse) SelectTableSchema(path TablePath) string {
	return fmt.Sprintf(`SELECT name, type, NULL, NULL, NULL
FROM system.columns
WHERE database = %s AND table = %s
ORDER BY position`, quoteString(path.Schema), quoteString(path.Table))
}

func (d *ClickHouse) normalizeTimestamp(expr string, t ColumnType) string {
	value := fmt.Sprintf("toDateTime64(%s, 6, 'UTC')", expr)
	if t.Rounds && t.Precision < MaxTimestampPrecision {
		half := 5
		for i := t.Precision + 1; i < MaxTimestampPrecision; i++ {
			half *= 10
		}
		value = fmt.Sprintf("addMicroseconds(%s, %d)", value, half)
	}
	return fmt.Sprintf("rightPad(substring(toString(%s), 1, %d), %d, '0')",
		value, TimestampPrecisionPos+t.Precision, TimestampPrecisionPos+MaxTimestampPrecision)
}

func (d *ClickHouse) normalizeNumber(expr string, t ColumnType) string {
	return fmt.Sprintf("toDecimalString(%s, %d)", expr, t.Precision)
}

func (d *ClickHouse) normalizeBoolean(expr string) string {
	return d.ToString(fmt.Sprintf("toUInt8(%s)", expr))
}

func (d *ClickHouse) normalizeUUID(expr string) string {
	return fmt.Sprintf("lower(trim(toString(%s)))", expr)
}

func (d *ClickHouse) normalizeStructured(expr string, t ColumnType) (string, error) {
	return fmt.Sprintf("toJSONString(%s)", expr), nil
}
