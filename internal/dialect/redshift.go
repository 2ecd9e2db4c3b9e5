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
	Register("redshift", func(o Options) Dialect { return NewRedshift(o) })
}

// Redshift speaks the PostgreSQL wire protocol but lacks bit casts and
// jsonb, so hashing and structured values differ.
type Redshift struct {
	*Postgres
}

func NewRedshift(opts Options) *Redshift {
	pg := NewPostgres(opts)
	pg.name = "redshift"
	classes := make(map[string]typeClass, len(postgresTypes)+1)
	for k, v := range postgresTypes {
		classes[k] = v
	}
	delete(classes, "jsonb")
	delete(classes, "array")
	classes["super"] = class(KindJSON)
	pg.classes = classes
	return &Redshift{Postgres: pg}
}

func (d *Redshift) Normalize(expr string, t ColumnType) (string, error) {
	return normalizeValue(d, expr, t)
}

func (d *Redshift) ToComparable(expr string, t ColumnType) (string, error) {
	return toComparable(d, expr, t)
}

func (d *Redshift) ChecksumRowExpr(exprs []string) string {
	s := joinComparable(exprs, concatOperator)
	return fmt.Sprintf("strtol(substring(md5(%s), %d), 16)::decimal(38) - %d",
		s, 1+MD5HexDigits-ChecksumHexDigits, ChecksumOffset)
}

func (d *Redshift) ExplainAsText(query string) string { return "EXPLAIN " + query }

func (d *Redshift) SessionSetup() []string { return []string{"SET TIMEZONE TO 'UTC'"} }

func (d *Redshift) normalizeStructured(expr string, t ColumnType) (string, error) {
	if t.Kind == KindJSON {
		return fmt.Sprintf("json_serialize(%s)", expr), nil
	}
	return unsupportedStructured(d.name, t)
}
