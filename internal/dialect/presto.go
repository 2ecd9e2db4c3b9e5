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
	Register("presto", func(o Options) Dialect { return NewPresto("presto", o) }, "trino")
	Register("athena", func(o Options) Dialect { return NewPresto("athena", o) })
}

var prestoTypes = map[string]typeClass{
	"tinyint":                     class(KindInteger),
	"smallint":                    class(KindInteger),
	"integer":                     class(KindInteger),
	"int":                         class(KindInteger),
	"bigint":                      class(KindInteger),
	"real":                        floatClass(24),
	"float":                       floatClass(24),
	"double":                      floatClass(53),
	"decimal":                     class(KindDecimal),
	"varchar":                     class(KindText),
	"char":                        class(KindText),
	"string":                      class(KindText),
	"uuid":                        class(KindUUID),
	"boolean":                     class(KindBoolean),
	"timestamp":                   class(KindTimestamp),
	"timestamp without time zone": class(KindTimestamp),
	"timestamp with time zone":    class(KindTimestampTZ),
	"date":                        fixedClass(KindTimestamp, 0),
	"json":                        class(KindJSON),
	"array":                       class(KindArray),
	"struct":                      class(KindStruct),
	"row":                         class(KindStruct),
}

// Presto covers Presto, Trino and Athena, which share SQL and the
// information_schema layout. Athena sessions are always UTC.
type Presto struct {
	*base
}

func NewPresto(name string, opts Options) *Presto {
	return &Presto{base: &base{
		name:      name,
		opts:      opts,
		classes:   prestoTypes,
		rounds:    true,
		maxTSPrec: 6,
		defTSPrec: 3,
	}}
}

func (d *Presto) Normalize(expr string, t ColumnType) (string, error) {
	return normalizeValue(d, expr, t)
}

func (d *Presto) ToComparable(expr string, t ColumnType) (string, error) {
	return toComparable(d, expr, t)
}

func (d *Presto) ToString(expr string) string { return fmt.Sprintf("cast(%s as varchar)", expr) }

func (d *Presto) ChecksumRowExpr(exprs []string) string {
	s := joinComparable(exprs, concatOperator)
	return fmt.Sprintf("cast(from_base(substr(to_hex(md5(to_utf8(%s))), %d), 16) as decimal(38, 0)) - %d",
		s, 1+MD5HexDigits-ChecksumHexDigits, ChecksumOffset)
}

func (d *Presto) ChecksumSumExpr(rowExpr string) string {
	return fmt.Sprintf("cast(sum(%s) as varchar)", rowExpr)
}

func (d *Presto) LimitOffset(limit, offset int64) string {
	return fmt.Sprintf("OFFSET %d LIMIT %d", offset, limit)
}

func (d *Presto) ExplainAsText(query string) string { return "EXPLAIN (FORMAT TEXT) " + query }

func (d *Presto) SessionSetup() []string {
	if d.name == "athena" {
		return nil
	}
	return []string{"SET TIME ZONE 'UTC'"}
}

func (d *Presto) SelectTableSchema(path TablePath) string {
	return fmt.Sprintf(`SELECT column_name, data_type, NULL, NULL, NULL
FROM information_schema.columns
WHERE table_schema = %s AND table_name = %s
ORDER BY ordinal_position`, quoteString(path.Schema), quoteString(path.Table))
}

const prestoTimestampFormat = "'%Y-%m-%d %H:%i:%S.%f'"

// rpad truncates longer input, so the first rpad cuts the fraction to the
// column precision and the second pads it back to full width.
func (d *Presto) normalizeTimestamp(expr string, t ColumnType) string {
	value := expr
	if t.Kind == KindTimestampTZ {
		value = fmt.Sprintf("(%s AT TIME ZONE 'UTC')", expr)
	}
	if t.Rounds {
		value = fmt.Sprintf("cast(cast(%s as timestamp(%d)) as timestamp(6))", value, t.Precision)
	} else {
		value = fmt.Sprintf("cast(%s as timestamp(6))", value)
	}
	s := fmt.Sprintf("date_format(%s, %s)", value, prestoTimestampFormat)
	return fmt.Sprintf("RPAD(RPAD(%s, %d, '.'), %d, '0')",
		s, TimestampPrecisionPos+t.Precision, TimestampPrecisionPos+MaxTimestampPrecision)
}

func (d *Presto) normalizeNumber(expr string, t ColumnType) string {
	return d.ToString(fmt.Sprintf("cast(%s as decimal(38, %d))", expr, t.Precision))
}

func (d *Presto) normalizeBoolean(expr string) string {
	return d.ToString(fmt.Sprintf("cast(%s as int)", expr))
}

func (d *Presto) normalizeUUID(expr string) string {
	return fmt.Sprintf("lower(trim(cast(%s as varchar)))", expr)
}

func (d *Presto) normalizeStructured(expr string, t ColumnType) (string, error) {
	return fmt.Sprintf("json_format(cast(%s as json))", expr), nil
}
