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

package queries

import (
	"strings"
	"testing"
)

func squash(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func TestRenderedQueries(t *testing.T) {
	tests := []struct {
		name   string
		render func() (string, error)
		want   string
	}{
		{
			name: "checksum with filter",
			render: func() (string, error) {
				return ChecksumSQL(`"public"."t"`, "sum(h)::text", `"id" >= 1`)
			},
			want: `SELECT count(*), sum(h)::text FROM "public"."t" WHERE "id" >= 1`,
		},
		{
			name: "checksum without filter",
			render: func() (string, error) {
				return ChecksumSQL(`"t"`, "sum(h)::text", "")
			},
			want: `SELECT count(*), sum(h)::text FROM "t"`,
		},
		{
			name: "rows",
			render: func() (string, error) {
				return RowsSQL(`"t"`, []string{`"id"`, `"v"`}, `"id" < 10`, []string{`"id"`})
			},
			want: `SELECT "id", "v" FROM "t" WHERE "id" < 10 ORDER BY "id"`,
		},
		{
			name: "count",
			render: func() (string, error) {
				return CountSQL(`"t"`, `"id" < 10`)
			},
			want: `SELECT count(*) FROM "t" WHERE "id" < 10`,
		},
		{
			name: "last key",
			render: func() (string, error) {
				return OrderedKeysSQL(`"t"`, []string{`"a"`, `"b"`}, "", true, "LIMIT 1 OFFSET 0")
			},
			want: `SELECT "a", "b" FROM "t" ORDER BY "a" DESC, "b" DESC LIMIT 1 OFFSET 0`,
		},
		{
			name: "current timestamp",
			render: func() (string, error) {
				return CurrentTimestampSQL("current_timestamp")
			},
			want: `SELECT current_timestamp`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.render()
			if err != nil {
				t.Fatalf("render: %v", err)
			}
			if squash(got) != tt.want {
				t.Errorf("got %q, want %q", squash(got), tt.want)
			}
		})
	}
}

func TestRenderErrors(t *testing.T) {
	if _, err := RowsSQL(`"t"`, nil, "", nil); err == nil {
		t.Error("expected error for empty column list")
	}
	if _, err := OrderedKeysSQL(`"t"`, nil, "", false, ""); err == nil {
		t.Error("expected error for empty key list")
	}
}

func TestTupleCompare(t *testing.T) {
	tests := []struct {
		name    string
		cols    []string
		vals    []string
		op      string
		want    string
		wantErr bool
	}{
		{name: "single", cols: []string{"a"}, vals: []string{"1"}, op: ">=", want: "a >= 1"},
		{
			name: "pair lower bound",
			cols: []string{"a", "b"}, vals: []string{"1", "'x'"}, op: ">=",
			want: "((a > 1) OR (a = 1 AND b >= 'x'))",
		},
		{
			name: "triple exclusive upper bound",
			cols: []string{"a", "b", "c"}, vals: []string{"1", "2", "3"}, op: "<",
			want: "((a < 1) OR (a = 1 AND b < 2) OR (a = 1 AND b = 2 AND c < 3))",
		},
		{
			name: "pair inclusive upper bound",
			cols: []string{"a", "b"}, vals: []string{"1", "2"}, op: "<=",
			want: "((a < 1) OR (a = 1 AND b <= 2))",
		},
		{name: "length mismatch", cols: []string{"a"}, vals: []string{"1", "2"}, op: "<", wantErr: true},
		{name: "bad operator", cols: []string{"a"}, vals: []string{"1"}, op: "=", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := TupleCompare(tt.cols, tt.vals, tt.op)
			if (err != nil) != tt.wantErr {
				t.Fatalf("error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestAnd(t *testing.T) {
	if got := And("", " "); got != "" {
		t.Errorf("got %q", got)
	}
	if got := And("a = 1", ""); got != "a = 1" {
		t.Errorf("got %q", got)
	}
	if got := And("a = 1", "b < 2 OR c"); got != "(a = 1) AND (b < 2 OR c)" {
		t.Errorf("got %q", got)
	}
}
