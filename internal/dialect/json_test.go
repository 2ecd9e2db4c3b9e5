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
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// jsonCell is one structured value as stored, as each family of engines
// serializes it natively, and as every dialect must render it.
type jsonCell struct {
	name   string
	input  string
	spaced string // jsonb::text and MySQL JSON output
	sorted string // Presto and Snowflake: compact, keys sorted as text
	want   string
}

var jsonCells = []jsonCell{
	{"empty object", `{}`, `{}`, `{}`, `{}`},
	{"empty array", `[]`, `[]`, `[]`, `[]`},
	{"array", `[1, 2]`, `[1, 2]`, `[1,2]`, `[1,2]`},
	{"object", `{"b": 1, "a": [1, 2]}`, `{"a": [1, 2], "b": 1}`, `{"a":[1,2],"b":1}`, `{"a":[1,2],"b":1}`},
	{"key length first", `{"aa": 2, "b": 1}`, `{"b": 1, "aa": 2}`, `{"aa":2,"b":1}`, `{"b":1,"aa":2}`},
	{"separators in strings", `{"k": "a, b: \"c\""}`, `{"k": "a, b: \"c\""}`, `{"k":"a, b: \"c\""}`, `{"k":"a, b: \"c\""}`},
	{"escaped backslash", `{"k": "x\\", "m": 1}`, `{"k": "x\\", "m": 1}`, `{"k":"x\\","m":1}`, `{"k":"x\\","m":1}`},
	{"nested", `[{"b": 2, "a": null}, [], {}]`, `[{"a": null, "b": 2}, [], {}]`, `[{"a":null,"b":2},[],{}]`, `[{"a":null,"b":2},[],{}]`},
	{"unicode", `{"name":"café ☕"}`, `{"name": "café ☕"}`, `{"name":"café ☕"}`, `{"name":"café ☕"}`},
	{"scalars", `{"t": true, "f": false, "n": -1.25}`, `{"f": false, "n": -1.25, "t": true}`, `{"f":false,"n":-1.25,"t":true}`, `{"f":false,"n":-1.25,"t":true}`},
}

// stripSpaces applies jsonSpacePattern the way regexp_replace does.
func stripSpaces(s string) string {
	return regexp.MustCompile(jsonSpacePattern).ReplaceAllString(s, "$1")
}

func TestStructuredRenderingMatrix(t *testing.T) {
	for _, c := range jsonCells {
		t.Run(c.name, func(t *testing.T) {
			got, err := CanonicalJSON(c.input)
			require.NoError(t, err)
			assert.Equal(t, c.want, got, "sqlite")

			assert.Equal(t, c.want, stripSpaces(c.spaced), "postgres and mysql")

			assert.True(t, EquivalentJSON(c.sorted, c.want), "presto and snowflake")
			canon, err := CanonicalJSON(c.sorted)
			require.NoError(t, err)
			assert.Equal(t, c.want, canon)
		})
	}
}

func TestNormalizeStructuredSQL(t *testing.T) {
	pgPattern := quoteString(jsonSpacePattern)
	myPattern := quoteString(strings.ReplaceAll(jsonSpacePattern, `\`, `\\`))

	tests := []struct {
		dialect string
		t       ColumnType
		want    string
	}{
		{"postgres", JSON(), "regexp_replace(x::jsonb::text, " + pgPattern + `, '\1', 'g')`},
		{"postgres", Array(Integer()), "regexp_replace(to_jsonb(x)::text, " + pgPattern + `, '\1', 'g')`},
		{"mysql", JSON(), "REGEXP_REPLACE(CAST(CAST(x AS JSON) AS CHAR), " + myPattern + ", '$1')"},
		{"sqlite", JSON(), "xdiff_json(x)"},
		{"presto", Array(Integer()), "json_format(cast(x as json))"},
		{"snowflake", JSON(), "to_json(x)"},
		{"clickhouse", JSON(), "toJSONString(x)"},
		{"redshift", JSON(), "json_serialize(x)"},
	}
	for _, tc := range tests {
		t.Run(tc.dialect+"/"+tc.t.String(), func(t *testing.T) {
			got, err := mustNew(t, tc.dialect).Normalize("x", tc.t)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}

	// MySQL reads backslashes in literals as escapes.
	unescaped := strings.ReplaceAll(strings.Trim(myPattern, "'"), `\\`, `\`)
	assert.Equal(t, jsonSpacePattern, unescaped)
}

func TestCanonicalJSONRejectsInvalid(t *testing.T) {
	for _, in := range []string{"", "{", `{"a":1} {}`, "nope"} {
		_, err := CanonicalJSON(in)
		assert.Error(t, err, in)
	}
}

func TestCanonicalJSONEscapes(t *testing.T) {
	got, err := CanonicalJSON(`["tab\there", "\u0001", "<&>", "q\"b\\"]`)
	require.NoError(t, err)
	assert.Equal(t, `["tab\there","\u0001","<&>","q\"b\\"]`, got)
}

func TestEquivalentJSON(t *testing.T) {
	assert.True(t, EquivalentJSON(`{"n":1.50,"a":[1.0]}`, `{"a": [1], "n": 1.5}`))
	assert.True(t, EquivalentJSON(`{"n":1e2}`, `{"n":100}`))
	assert.False(t, EquivalentJSON(`{"a":[1,2]}`, `{"a":[2,1]}`))
	assert.False(t, EquivalentJSON(`{"a":"1"}`, `{"a":1}`))
	assert.False(t, EquivalentJSON(`{`, `{}`))
	assert.True(t, EquivalentJSON(`not json`, `not json`))
}
