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
	Register("mssql", func(o Options) Dialect { return NewMSSQL(o) }, "sqlserver")
}

var mssqlTypes = map[string]typeClass{
	"tinyint":          class(KindInteger),
	"smallint":         class(KindInteger),
	"int":              class(KindInteger),
	"bigint":           class(KindInteger),
	"real":             floatClass(24),
	"float":            floatClass(53),
	"decimal":          class(KindDecimal),
	"numeric":          class(KindDecimal),
	"money":            fixedClass(KindDecimal, 4),
	"smallmoney":       fixedClass(KindDecimal, 4),
	"varchar":          class(KindText),
	"nvarchar":         class(KindText),
	"char":             class(KindText),
	"nchar":            class(KindText),
	"text":             class(KindText),
	"ntext":            class(KindText),
	"uniqueidentifier": class(KindUUID),
	"bit":              class(KindBoolean),
	"datetime2":        class(KindTimestamp),
	"datetime":         fixedClass(KindTimestamp, 3),
	"smalldatetime":    fixedClass(KindTimestamp, 0),
	"date":             fixedClass(KindTimestamp, 0),
	"datetimeoffset":   class(KindTimestampTZ),
}

type MSSQL struct {
	*base
}

func NewMSSQL(opts Options) *MSSQL {
	return &MSSQL{base: &base{
		name:       "mssql",
		opts:       opts,
		classes:    mssqlTypes,
		rounds:     true,
		maxTSPrec:  6,
		defTSPrec:  6,
		quoteOpen:  "[",
		quoteClose: "]",
		tsLiteral:  func(ts string) string { return "CAST('" + ts + "' AS DATETIME2(7))" },
	}}
}

func (d *MSSQL) Normalize(expr string, t ColumnType) (string, error) {
	return normalizeValue(d, expr, t)
}

func (d *MSSQL) ToComparable(expr string, t ColumnType) (string, error) {
	return toComparable(d, expr, t)
}

// MSSQLUTF8Collation is the collation whose VARCHAR encoding is UTF-8. It
// exists from SQL Server 2019 (major version 15).
const (
	MSSQLUTF8Collation  = "Latin1_General_100_BIN2_UTF8"
	MSSQLUTF8MinVersion = 15
	MSSQLVersionQuery   = "SELECT CAST(SERVERPROPERTY('ProductMajorVersion') AS INT)"
)

// MSSQLHashesUTF8 reports whether a server of the given major version can
// hash the UTF-8 bytes of a row. Older servers must diff without checksums.
func MSSQLHashesUTF8(major int) bool { return major >= MSSQLUTF8MinVersion }

func (d *MSSQL) ToString(expr string) string { return fmt.Sprintf("CONVERT(NVARCHAR(MAX), %s)", expr) }

// The row is built as NVARCHAR and converted to VARCHAR under a UTF-8
// collation so HASHBYTES sees the same bytes as md5 on the other engines.
func (d *MSSQL) ChecksumRowExpr(exprs []string) string {
	s := joinComparable(exprs, func(parts []string) string {
		return "CONCAT(" + strings.Join(parts, ", ") + ")"
	})
	return fmt.Sprintf("CONVERT(BIGINT, CONVERT(VARBINARY(8), '0x' + RIGHT(CONVERT(VARCHAR(34), HASHBYTES('MD5', CONVERT(VARCHAR(MAX), CAST(%s AS NVARCHAR(MAX)) COLLATE %s)), 1), %d), 1)) - %d",
		s, MSSQLUTF8Collation, ChecksumHexDigits, ChecksumOffset)
}

func (d *MSSQL) ChecksumSumExpr(rowExpr string) string {
	return fmt.Sprintf("CONVERT(VARCHAR(40), SUM(CONVERT(DECIMAL(38, 0), %s)))", rowExpr)
}

func (d *MSSQL) LimitOffset(limit, offset int64) string {
	return fmt.Sprintf("OFFSET %d ROWS FETCH NEXT %d ROWS ONLY", offset, limit)
}

func (d *MSSQL) CurrentTimestamp() string { return "SYSUTCDATETIME()" }

// SQL Server only explains through SET SHOWPLAN_TEXT, which must be alone
// in its batch.
func (d *MSSQL) ExplainAsText(query string) string { return "" }

func (d *MSSQL) SessionSetup() []string { return nil }

func (d *MSSQL) SelectTableSchema(path TablePath) string {
	return fmt.Sprintf(`SELECT column_name, data_type, datetime_precision, numeric_precision, numeric_scale
FROM INFORMATION_SCHEMA.COLUMNS
WHERE table_schema = %s AND table_name = %s
ORDER BY ordinal_position`, quoteString(path.Schema), quoteString(path.Table))
}

func (d *MSSQL) normalizeTimestamp(expr string, t ColumnType) string {
	value := expr
	if t.Kind == KindTimestampTZ {
		value = fmt.Sprintf("SWITCHOFFSET(%s, '+00:00')", expr)
	}
	if t.Rounds {
		value = fmt.Sprintf("CAST(%s AS DATETIME2(%d))", value, t.Precision)
	}
	return fmt.Sprintf("LEFT(LEFT(CONVERT(VARCHAR(27), CAST(%s AS DATETIME2(7)), 121), %d) + REPLICATE('0', 6), %d)",
		value, TimestampPrecisionPos+t.Precision, TimestampPrecisionPos+MaxTimestampPrecision)
}

func (d *MSSQL) normalizeNumber(expr string, t ColumnType) string {
	return d.ToString(fmt.Sprintf("CAST(%s AS DECIMAL(38, %d))", expr, t.Precision))
}

func (d *MSSQL) normalizeBoolean(expr string) string {
	return d.ToString(fmt.Sprintf("CAST(%s AS INT)", expr))
}

func (d *MSSQL) normalizeUUID(expr string) string {
	return fmt.Sprintf("LOWER(TRIM(CONVERT(VARCHAR(36), %s)))", expr)
}

func (d *MSSQL) normalizeStructured(expr string, t ColumnType) (string, error) {
	return unsupportedStructured(d.name, t)
}
