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
	"text/template"
)

type Templates struct {
	SegmentChecksum  *template.Template
	SegmentRows      *template.Template
	SegmentCount     *template.Template
	OrderedKeys      *template.Template
	CurrentTimestamp *template.Template
}

var funcs = template.FuncMap{
	"join": strings.Join,
}

func mustParse(name, text string) *template.Template {
	return template.Must(template.New(name).Funcs(funcs).Parse(text))
}

// Fragments (table references, expressions, predicates) arrive already
// quoted and rendered by the dialect of the side the query runs on.
var SQLTemplates = Templates{
	SegmentChecksum: mustParse("segmentChecksum", `
		SELECT count(*), {{.Sum}}
		FROM {{.Table}}
		{{- if .Where}}
		WHERE {{.Where}}
		{{- end}}`),

	SegmentRows: mustParse("segmentRows", `
		SELECT {{join .Columns ", "}}
		FROM {{.Table}}
		{{- if .Where}}
		WHERE {{.Where}}
		{{- end}}
		{{- if .OrderBy}}
		ORDER BY {{join .OrderBy ", "}}
		{{- end}}`),

	SegmentCount: mustParse("segmentCount", `
		SELECT count(*)
		FROM {{.Table}}
		{{- if .Where}}
		WHERE {{.Where}}
		{{- end}}`),

	OrderedKeys: mustParse("orderedKeys", `
		SELECT {{join .Columns ", "}}
		FROM {{.Table}}
		{{- if .Where}}
		WHERE {{.Where}}
		{{- end}}
		ORDER BY {{join .OrderBy ", "}}
		{{.Tail}}`),

	CurrentTimestamp: mustParse("currentTimestamp", `SELECT {{.Expr}}`),
}
