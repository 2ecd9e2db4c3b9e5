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
	Register("postgres", func(o Options) Dialect { return NewPostgres(o) }, "postgresql", "pg", "pgx")
}

var postgresTypes = map[string]typeClass{
	"smallint":                    class(KindInteger),
	"integer":                     class(KindInteger),
	"int":                         class(KindInteger),
	"int2":                        class(KindInteger),
	"int4":                        class(KindInteger),
	"int8":                        class(KindInteger),
	"bigint":                      class(KindInteger),
	"serial":                      class(KindInteger),
	"bigserial":                   class(KindInteger),
	"real":                        floatClass(24),
	"float4":                      floatClass(24),
	"double precision":            floatClass(53),
	"float8":                      floatClass(53),
	"numeric":                     class(KindDecimal),
	"decimal":                     class(KindDecimal),
	"text":                        class(KindText),
	"character varying":           class(KindText),
	"varchar":                     class(KindText),
	"character":                   class(KindText),
	"char":                        class(KindText),
	"bpchar":                      class(KindText),
	"name":                        class(KindText),
	"citext":                      class(KindText),
	"uuid":                        class(KindUUID),
	"boolean":                     class(KindBoolean),
	"bool":                        class(KindBoolean),
	"timestamp":                   class(KindTimestamp),
	"timestamp without time zone": class(KindTimestamp),
	"timestamp with time zone":    class(KindTimestampTZ),
	"timestamptz":                 class(KindTimestampTZ),
	"date":                        fixedClass(KindTimestamp, 0),
	"json":                        class(KindJSON),
	"jsonb":                       class(KindJSON),
	"array":                       class(KindArray),
}

type Postgres struct {
	*base
}

func NewPostgres(opts Options) *Postgres {
	return &Postgres{base: &base{
		name:      "postgres",
		opts:      opts,
		classes:   postgresTypes,
		rounds:    true,
		maxTSPrec: 6,
		defTSPrec: 6,
	}}
}

func (d *Postgres) Normalize(expr string, t ColumnType) (string, error) {
	return normalizeValue(d, expr, t)
}

func (d *Postgres) ToComparable(expr string, t ColumnType) (string, error) {
	return toComparable(d, expr, t)
}

func (d *Postgres) ToString(expr string) string { return fmt.Sprintf("%s::text", expr) }

func (d *Postgres) ChecksumRowExpr(exprs []string) string {
	s := joinComparable(exprs, concatOperator)
	return fmt.Sprintf("('x' || substring(md5(%s), %d))::bit(%d)::bigint - %d",
		s, 1+MD5HexDigits-ChecksumHexDigits, ChecksumHexDigits*4, ChecksumOffset)
}

func (d *Postgres) ChecksumSumExpr(rowExpr string) string {
	return fmt.Sprintf("sum(%s)::text", rowExpr)
}

func (d *Postgres) ExplainAsText(query string) string { return "EXPLAIN (FORMAT TEXT) " + query }

func (d *Postgres) SessionSetup() []string { return []string{"SET TIME ZONE 'UTC'"} }

// format_type keeps modifiers, so precision and scale travel in the type
// string itself ("numeric(10,2)", "timestamp(3) without time zone").
func (d *Postgres) SelectTableSchema(path TablePath) string {
	return fmt.Sprintf(`SELECT a.attname, format_type(a.atttypid, a.atttypmod), NULL, NULL, NULL
FROM pg_catalog.pg_attribute a
JOIN pg_catalog.pg_class c ON c.oid = a.attrelid
JOIN pg_catalog.pg_namespace n ON n.oid = c.relnamespace
WHERE n.nspname = %s AND c.relname = %s AND a.attnum > 0 AND NOT a.attisdropped
ORDER BY a.attnum`, quoteString(path.Schema), quoteString(path.Table))
}

func (d *Postgres) normalizeTimestamp(expr string, t ColumnType) string {
	if t.Rounds {
		return fmt.Sprintf("to_char(%s::timestamp(%d), 'YYYY-mm-dd HH24:MI:SS.US')", expr, t.Precision)
	}
	return fmt.Sprintf("RPAD(LEFT(to_char(%s::timestamp(6), 'YYYY-mm-dd HH24:MI:SS.US'), %d), %d, '0')",
		expr, TimestampPrecisionPos+t.Precision, TimestampPrecisionPos+MaxTimestampPrecision)
}

func (d *Postgres) normalizeNumber(expr string, t ColumnType) string {
	return d.ToString(fmt.Sprintf("%s::decimal(38, %d)", expr, t.Precision))
}

func (d *Postgres) normalizeBoolean(expr string) string { return d.ToString(expr + "::int") }

func (d *Postgres) normalizeUUID(expr string) string {
	return fmt.Sprintf("lower(trim(%s::text))", expr)
}

func (d *Postgres) normalizeStructured(expr string, t ColumnType) (string, error) {
	text := fmt.Sprintf("to_jsonb(%s)::text", expr)
	if t.Kind == KindJSON {
		text = fmt.Sprintf("%s::jsonb::text", expr)
	}
	return fmt.Sprintf("regexp_replace(%s, %s, '\\1', 'g')", text, quoteString(jsonSpacePattern)), nil
}
