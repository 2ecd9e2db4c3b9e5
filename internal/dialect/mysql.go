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
	Register("mysql", func(o Options) Dialect { return NewMySQL(o) }, "mariadb")
}

var mysqlTypes = map[string]typeClass{
	"tinyint":    class(KindInteger),
	"smallint":   class(KindInteger),
	"mediumint":  class(KindInteger),
	"int":        class(KindInteger),
	"integer":    class(KindInteger),
	"bigint":     class(KindInteger),
	"float":      floatClass(24),
	"double":     floatClass(53),
	"real":       floatClass(53),
	"decimal":    class(KindDecimal),
	"numeric":    class(KindDecimal),
	"varchar":    class(KindText),
	"char":       class(KindText),
	"text":       class(KindText),
	"tinytext":   class(KindText),
	"mediumtext": class(KindText),
	"longtext":   class(KindText),
	"enum":       class(KindText),
	"set":        class(KindText),
	"datetime":   class(KindTimestamp),
	"timestamp":  class(KindTimestamp),
	"date":       fixedClass(KindTimestamp, 0),
	"boolean":    class(KindBoolean),
	"bool":       class(KindBoolean),
	"json":       class(KindJSON),
}

type MySQL struct {
	*base
}

func NewMySQL(opts Options) *MySQL {
	return &MySQL{base: &base{
		name:       "mysql",
		opts:       opts,
		classes:    mysqlTypes,
		rounds:     true,
		maxTSPrec:  6,
		defTSPrec:  0,
		quoteOpen:  "`",
		quoteClose: "`",
		tsLiteral:  func(ts string) string { return "TIMESTAMP '" + ts + "'" },
	}}
}

func (d *MySQL) Normalize(expr string, t ColumnType) (string, error) {
	return normalizeValue(d, expr, t)
}

func (d *MySQL) ToComparable(expr string, t ColumnType) (string, error) {
	return toComparable(d, expr, t)
}

func (d *MySQL) ToString(expr string) string { return fmt.Sprintf("CAST(%s AS CHAR)", expr) }

func (d *MySQL) ChecksumRowExpr(exprs []string) string {
	s := joinComparable(exprs, concatFunction)
	return fmt.Sprintf("CAST(CONV(SUBSTRING(MD5(%s), %d), 16, 10) AS SIGNED) - %d",
		s, 1+MD5HexDigits-ChecksumHexDigits, ChecksumOffset)
}

func (d *MySQL) ChecksumSumExpr(rowExpr string) string {
	return fmt.Sprintf("CAST(SUM(%s) AS CHAR)", rowExpr)
}

func (d *MySQL) CurrentTimestamp() string { return "NOW(6)" }

func (d *MySQL) ExplainAsText(query string) string { return "EXPLAIN FORMAT=TREE " + query }

func (d *MySQL) SessionSetup() []string { return []string{"SET time_zone = '+00:00'"} }

func (d *MySQL) SelectTableSchema(path TablePath) string {
	return fmt.Sprintf(`SELECT column_name, data_type, datetime_precision, numeric_precision, numeric_scale
FROM information_schema.columns
WHERE table_schema = %s AND table_name = %s
ORDER BY ordinal_position`, quoteString(path.Schema), quoteString(path.Table))
}

const mysqlTimestampFormat = "'%Y-%m-%d %H:%i:%s.%f'"

func (d *MySQL) normalizeTimestamp(expr string, t ColumnType) string {
	if t.Rounds {
		return fmt.Sprintf("DATE_FORMAT(CAST(%s AS DATETIME(%d)), %s)", expr, t.Precision, mysqlTimestampFormat)
	}
	return fmt.Sprintf("RPAD(LEFT(DATE_FORMAT(CAST(%s AS DATETIME(6)), %s), %d), %d, '0')",
		expr, mysqlTimestampFormat, TimestampPrecisionPos+t.Precision, TimestampPrecisionPos+MaxTimestampPrecision)
}

func (d *MySQL) normalizeNumber(expr string, t ColumnType) string {
	return d.ToString(fmt.Sprintf("CAST(%s AS DECIMAL(38, %d))", expr, t.Precision))
}

func (d *MySQL) normalizeBoolean(expr string) string {
	return d.ToString(fmt.Sprintf("CAST(%s AS SIGNED)", expr))
}

func (d *MySQL) normalizeUUID(expr string) string {
	return fmt.Sprintf("LOWER(TRIM(CAST(%s AS CHAR)))", expr)
}

func (d *MySQL) normalizeStructured(expr string, t ColumnType) (string, error) {
	if t.Kind == KindStruct {
		return unsupportedStructured(d.name, t)
	}
	return fmt.Sprintf("REGEXP_REPLACE(CAST(CAST(%s AS JSON) AS CHAR), %s, '$1')",
		expr, quoteString(strings.ReplaceAll(jsonSpacePattern, `\`, `\\`))), nil
}
