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
	"errors"
	"math/big"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustNew(t *testing.T, name string) Dialect {
	t.Helper()
	d, err := New(name, Options{})
	require.NoError(t, err)
	return d
}

func intPtr(i int) *int { return &i }

func TestRegistry(t *testing.T) {
	names := Names()
	for _, n := range []string{"postgres", "redshift", "mysql", "sqlite", "snowflake", "clickhouse", "mssql", "presto", "athena"} {
		require.Contains(t, names, n)
	}

	for alias, want := range map[string]string{"pg": "postgres", "trino": "presto", "sqlite3": "sqlite", "sqlserver": "mssql", "MariaDB": "mysql"} {
		d, err := New(alias, Options{})
		require.NoError(t, err)
		assert.Equal(t, want, d.Name(), alias)
	}

	_, err := New("oracle", Options{})
	require.Error(t, err)
	require.Contains(t, err.Error(), "unknown dialect")
}

func TestParseType(t *testing.T) {
	tests := []struct {
		dialect string
		info    RawColumnInfo
		want    ColumnType
	}{
		{"postgres", RawColumnInfo{DataType: "integer"}, Integer()},
		{"postgres", RawColumnInfo{DataType: "numeric(10,2)"}, Decimal(2)},
		{"postgres", RawColumnInfo{DataType: "double precision"}, Float(53)},
		{"postgres", RawColumnInfo{DataType: "timestamp(3) without time zone"}, Timestamp(3, true)},
		{"postgres", RawColumnInfo{DataType: "timestamp with time zone"}, TimestampTZ(6, true)},
		{"postgres", RawColumnInfo{DataType: "integer[]"}, Array(Integer())},
		{"postgres", RawColumnInfo{DataType: "date"}, Timestamp(0, true)},
		{"mysql", RawColumnInfo{DataType: "datetime", DatetimePrecision: intPtr(3)}, Timestamp(3, true)},
		{"mysql", RawColumnInfo{DataType: "decimal", NumericScale: intPtr(4)}, Decimal(4)},
		{"mysql", RawColumnInfo{DataType: "int unsigned"}, Integer()},
		{"sqlite", RawColumnInfo{DataType: "DATETIME"}, Timestamp(3, false)},
		{"snowflake", RawColumnInfo{DataType: "NUMBER", NumericScale: intPtr(0)}, Integer()},
		{"snowflake", RawColumnInfo{DataType: "NUMBER", NumericScale: intPtr(3)}, Decimal(3)},
		{"snowflake", RawColumnInfo{DataType: "TIMESTAMP_NTZ", DatetimePrecision: intPtr(9)}, Timestamp(6, false)},
		{"clickhouse", RawColumnInfo{DataType: "Nullable(DateTime64(3, 'UTC'))"}, Timestamp(3, false)},
		{"clickhouse", RawColumnInfo{DataType: "Decimal64(4)"}, Decimal(4)},
		{"clickhouse", RawColumnInfo{DataType: "LowCardinality(String)"}, Text()},
		{"clickhouse", RawColumnInfo{DataType: "Tuple(String, Int32)"}, Struct([]StructField{{Name: "1", Type: Text()}, {Name: "2", Type: Integer()}})},
		{"mssql", RawColumnInfo{DataType: "datetime2", DatetimePrecision: intPtr(7)}, Timestamp(6, true)},
		{"mssql", RawColumnInfo{DataType: "float", NumericPrecision: intPtr(53)}, Float(53)},
		{"mssql", RawColumnInfo{DataType: "money"}, Decimal(4)},
		{"presto", RawColumnInfo{DataType: "timestamp(3) with time zone"}, TimestampTZ(3, true)},
		{"athena", RawColumnInfo{DataType: "array(struct<a:int,b:varchar(10)>)"}, Array(Struct([]StructField{
			{Name: "a", Type: Integer()},
			{Name: "b", Type: Text()},
		}))},
	}

	for _, tc := range tests {
		t.Run(tc.dialect+"/"+tc.info.DataType, func(t *testing.T) {
			got, err := mustNew(t, tc.dialect).ParseType(tc.info)
			require.NoError(t, err)
			require.Equal(t, tc.want, got)
		})
	}
}

func TestParseTypeUnsupported(t *testing.T) {
	d := mustNew(t, "postgres")
	_, err := d.ParseType(RawColumnInfo{Name: "loc", DataType: "point"})
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrUnsupportedType))

	var ute *UnsupportedTypeError
	require.True(t, errors.As(err, &ute))
	assert.Equal(t, "loc", ute.Column)
	assert.Equal(t, "postgres", ute.Dialect)

	_, err = mustNew(t, "mssql").Normalize("doc", JSON())
	require.ErrorIs(t, err, ErrUnsupportedType)

	_, err = mustNew(t, "sqlite").Normalize("tags", Array(Text()))
	require.ErrorIs(t, err, ErrUnsupportedType)

	_, err = mustNew(t, "postgres").Normalize("x", ColumnType{})
	require.ErrorIs(t, err, ErrUnsupportedType)
}

func TestTimestampRoundingOption(t *testing.T) {
	d, err := New("postgres", Options{TimestampRounding: RoundingTruncate})
	require.NoError(t, err)
	ct, err := d.ParseType(RawColumnInfo{DataType: "timestamp(3)"})
	require.NoError(t, err)
	assert.False(t, ct.Rounds)

	d, err = New("sqlite", Options{TimestampRounding: RoundingRound})
	require.NoError(t, err)
	ct, err = d.ParseType(RawColumnInfo{DataType: "timestamp"})
	require.NoError(t, err)
	assert.True(t, ct.Rounds)

	_, err = ParseRounding("nearest")
	require.Error(t, err)
	r, err := ParseRounding("")
	require.NoError(t, err)
	assert.Equal(t, RoundingAuto, r)
}

func TestNormalizeTimestampWidth(t *testing.T) {
	pg := mustNew(t, "postgres")

	got, err := pg.Normalize(`"ts"`, Timestamp(3, true))
	require.NoError(t, err)
	assert.Equal(t, `to_char("ts"::timestamp(3), 'YYYY-mm-dd HH24:MI:SS.US')`, got)

	got, err = pg.Normalize(`"ts"`, Timestamp(3, false))
	require.NoError(t, err)
	assert.Equal(t, `RPAD(LEFT(to_char("ts"::timestamp(6), 'YYYY-mm-dd HH24:MI:SS.US'), 23), 26, '0')`, got)

	got, err = mustNew(t, "athena").Normalize(`"ts"`, Timestamp(3, false))
	require.NoError(t, err)
	assert.Equal(t, `RPAD(RPAD(date_format(cast("ts" as timestamp(6)), '%Y-%m-%d %H:%i:%S.%f'), 23, '.'), 26, '0')`, got)

	got, err = mustNew(t, "sqlite").Normalize(`"ts"`, Timestamp(1, true))
	require.NoError(t, err)
	assert.Equal(t, `substr(substr(strftime('%Y-%m-%d %H:%M:%f', "ts", '+0.05 seconds'), 1, 21) || '000000', 1, 26)`, got)

	got, err = mustNew(t, "clickhouse").Normalize("`ts`", Timestamp(3, true))
	require.NoError(t, err)
	assert.Equal(t, "rightPad(substring(toString(addMicroseconds(toDateTime64(`ts`, 6, 'UTC'), 500)), 1, 23), 26, '0')", got)
}

func TestNormalizeScalars(t *testing.T) {
	tests := []struct {
		dialect string
		t       ColumnType
		want    string
	}{
		{"postgres", Decimal(2), "x::decimal(38, 2)::text"},
		{"postgres", Boolean(), "x::int::text"},
		{"postgres", UUID(), "lower(trim(x::text))"},
		{"mysql", Float(53), "CAST(CAST(x AS DECIMAL(38, 13)) AS CHAR)"},
		{"mysql", Integer(), "CAST(x AS CHAR)"},
		{"sqlite", Float(24), "printf('%.5f', x)"},
		{"clickhouse", Decimal(4), "toDecimalString(x, 4)"},
		{"mssql", Boolean(), "CONVERT(NVARCHAR(MAX), CAST(x AS INT))"},
		{"presto", Struct(nil), "json_format(cast(x as json))"},
		{"snowflake", JSON(), "to_json(x)"},
	}
	for _, tc := range tests {
		t.Run(tc.dialect+"/"+tc.t.String(), func(t *testing.T) {
			got, err := mustNew(t, tc.dialect).Normalize("x", tc.t)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestToComparable(t *testing.T) {
	pg := mustNew(t, "postgres")
	got, err := pg.ToComparable("v", Integer())
	require.NoError(t, err)
	assert.Equal(t, "v", got)

	got, err = pg.ToComparable("v", JSON())
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(got, "regexp_replace(v::jsonb::text, "), got)
}

func TestChecksumRowExpr(t *testing.T) {
	offset := "140737488355327"
	for _, name := range Names() {
		d := mustNew(t, name)
		expr := d.ChecksumRowExpr([]string{"a", "b"})
		assert.Contains(t, expr, "coalesce(a, '<null>')", name)
		assert.Contains(t, expr, "'|'", name)
		assert.True(t, strings.HasSuffix(expr, " - "+offset), name)
		assert.Equal(t, ChecksumOffset, d.ChecksumOffset(), name)
		assert.True(t, d.SupportsChecksum(), name)
	}

	single := mustNew(t, "postgres").ChecksumRowExpr([]string{"a"})
	assert.Equal(t, "('x' || substring(md5(coalesce(a, '<null>')), 21))::bit(48)::bigint - "+offset, single)
}

func TestMSSQLChecksumUsesUTF8(t *testing.T) {
	d := mustNew(t, "mssql")
	expr := d.ChecksumRowExpr([]string{"a"})
	assert.Contains(t, expr, "CAST(coalesce(a, '<null>') AS NVARCHAR(MAX)) COLLATE Latin1_General_100_BIN2_UTF8")
	assert.Equal(t, "CONVERT(NVARCHAR(MAX), x)", d.ToString("x"))

	assert.True(t, MSSQLHashesUTF8(15))
	assert.True(t, MSSQLHashesUTF8(16))
	assert.False(t, MSSQLHashesUTF8(14))

	legacy, err := New("mssql", Options{DisableChecksums: true})
	require.NoError(t, err)
	assert.False(t, legacy.SupportsChecksum())
	assert.True(t, d.SupportsChecksum())
}

func TestHashAsInt(t *testing.T) {
	assert.Equal(t, int64(-130185072983425), HashAsInt(""))
	assert.Equal(t, int64(18781238500564), HashAsInt("1|3"))
	assert.Equal(t, int64(-70930699026573), HashAsInt("abc"))

	one, three := "1", "3"
	assert.Equal(t, "1|3", RowString([]*string{&one, &three}))
	assert.Equal(t, "1|<null>", RowString([]*string{&one, nil}))
}

func TestCanonicalSum(t *testing.T) {
	tests := []struct {
		in   any
		want string
	}{
		{nil, "0"},
		{"", "0"},
		{"123", "123"},
		{"123.0", "123"},
		{"1E+3", "1000"},
		{[]byte("-42"), "-42"},
		{int64(7), "7"},
		{big.NewInt(-9), "-9"},
		{decimal.RequireFromString("5.000"), "5"},
	}
	for _, tc := range tests {
		got, err := CanonicalSum(tc.in)
		require.NoError(t, err)
		assert.Equal(t, tc.want, got, "%v", tc.in)
	}

	_, err := CanonicalSum("abc")
	require.Error(t, err)
}

func TestLiteralAndQuote(t *testing.T) {
	pg := mustNew(t, "postgres")
	assert.Equal(t, "'O''Brien'", pg.Literal("O'Brien"))
	assert.Equal(t, "42", pg.Literal(int64(42)))
	assert.Equal(t, "NULL", pg.Literal(nil))
	ts := time.Date(2024, 3, 1, 12, 30, 0, 500000000, time.UTC)
	assert.Equal(t, "timestamp '2024-03-01 12:30:00.500000'", pg.Literal(ts))
	assert.Equal(t, "'2024-03-01 12:30:00.5'", mustNew(t, "sqlite").Literal(ts))
	assert.Equal(t, "CAST('2024-03-01 12:30:00.500000' AS DATETIME2(7))", mustNew(t, "mssql").Literal(ts))

	assert.Equal(t, `"we""ird"`, pg.Quote(`we"ird`))
	assert.Equal(t, "`a``b`", mustNew(t, "mysql").Quote("a`b"))
	assert.Equal(t, "[a]]b]", mustNew(t, "mssql").Quote("a]b"))
	assert.Equal(t, `"public"."t"`, pg.QuoteTable(TablePath{Schema: "public", Table: "t"}))
}

func TestLimitOffset(t *testing.T) {
	assert.Equal(t, "LIMIT 1 OFFSET 10", mustNew(t, "postgres").LimitOffset(1, 10))
	assert.Equal(t, "OFFSET 10 ROWS FETCH NEXT 1 ROWS ONLY", mustNew(t, "mssql").LimitOffset(1, 10))
	assert.Equal(t, "OFFSET 10 LIMIT 1", mustNew(t, "trino").LimitOffset(1, 10))
}

func TestNormalizeTablePath(t *testing.T) {
	tests := []struct {
		path []string
		want TablePath
	}{
		{[]string{"orders"}, TablePath{Schema: "public", Table: "orders"}},
		{[]string{"sales", "orders"}, TablePath{Schema: "sales", Table: "orders"}},
		{[]string{"db", "sales", "orders"}, TablePath{Schema: "sales", Table: "orders"}},
		{[]string{"x", "db", "sales", "orders"}, TablePath{Schema: "sales", Table: "orders"}},
	}
	pg := mustNew(t, "postgres")
	for _, tc := range tests {
		got, err := pg.NormalizeTablePath(tc.path, "public")
		require.NoError(t, err)
		assert.Equal(t, tc.want, got)
	}

	for _, bad := range [][]string{nil, {}, {"sales", ""}} {
		_, err := pg.NormalizeTablePath(bad, "public")
		require.ErrorIs(t, err, ErrBadTablePath)
	}

	_, err := pg.NormalizeTablePath([]string{"orders"}, "")
	require.ErrorIs(t, err, ErrBadTablePath)

	got, err := mustNew(t, "sqlite").NormalizeTablePath([]string{"orders"}, "")
	require.NoError(t, err)
	assert.Equal(t, TablePath{Schema: "main", Table: "orders"}, got)

	assert.Equal(t, []string{"db", "schema", "t"}, SplitTablePath("db.schema.t"))
	assert.Nil(t, SplitTablePath("  "))
}

func TestReconcile(t *testing.T) {
	a, b, notes := Reconcile(Timestamp(6, true), Timestamp(3, false))
	assert.Equal(t, Timestamp(3, false), a)
	assert.Equal(t, Timestamp(3, false), b)
	assert.Len(t, notes, 2)

	a, b, _ = Reconcile(Float(53), Decimal(2))
	assert.Equal(t, Decimal(2), a)
	assert.Equal(t, Decimal(2), b)

	a, b, notes = Reconcile(Integer(), Integer())
	assert.Equal(t, Integer(), a)
	assert.Equal(t, Integer(), b)
	assert.Empty(t, notes)

	a, b, _ = Reconcile(Text(), UUID())
	assert.Equal(t, UUID(), a)
	assert.Equal(t, UUID(), b)
}

func TestFloatDigits(t *testing.T) {
	assert.Equal(t, 5, FloatDigits(24))
	assert.Equal(t, 13, FloatDigits(53))
	assert.Equal(t, 0, FloatDigits(1))
}
