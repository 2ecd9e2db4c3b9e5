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

// Package dialect turns native column types of each supported engine into
// comparable SQL expressions and checksum queries that agree across engines.
package dialect

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Dialect is the per-engine contract the differ depends on. Every
// expression a Dialect returns for logically equal values must render the
// same bytes as every other Dialect.
type Dialect interface {
	Name() string

	ParseType(info RawColumnInfo) (ColumnType, error)
	Normalize(expr string, t ColumnType) (string, error)
	ToComparable(expr string, t ColumnType) (string, error)
	ToString(expr string) string

	ChecksumRowExpr(exprs []string) string
	ChecksumSumExpr(rowExpr string) string
	ChecksumOffset() int64
	SupportsChecksum() bool

	Quote(ident string) string
	QuoteTable(path TablePath) string
	Literal(v any) string
	LimitOffset(limit, offset int64) string

	CurrentTimestamp() string
	ExplainAsText(query string) string
	SessionSetup() []string
	SelectTableSchema(path TablePath) string
	NormalizeTablePath(path []string, defaultSchema string) (TablePath, error)

	RoundsOnPrecisionLoss() bool
	MaxTimestampPrecision() int
}

type Rounding string

const (
	RoundingAuto     Rounding = "auto"
	RoundingRound    Rounding = "round"
	RoundingTruncate Rounding = "truncate"
)

func ParseRounding(s string) (Rounding, error) {
	switch r := Rounding(strings.ToLower(strings.TrimSpace(s))); r {
	case "", RoundingAuto:
		return RoundingAuto, nil
	case RoundingRound, RoundingTruncate:
		return r, nil
	}
	return "", fmt.Errorf("invalid timestamp rounding %q: expected auto, round or truncate", s)
}

type Options struct {
	TimestampRounding Rounding
	TypeDepthLimit    int
	// DisableChecksums makes the dialect report no checksum support, so
	// diffs against it compare counts and rows only.
	DisableChecksums bool
}

type Factory func(opts Options) Dialect

var (
	registryMu sync.RWMutex
	registry   = map[string]Factory{}
	aliases    = map[string]string{}
)

// Register makes a dialect available under name and any aliases.
func Register(name string, f Factory, alias ...string) {
	registryMu.Lock()
	defer registryMu.Unlock()
	name = strings.ToLower(name)
	registry[name] = f
	for _, a := range alias {
		aliases[strings.ToLower(a)] = name
	}
}

// New returns a fresh dialect by registered name or alias.
func New(name string, opts Options) (Dialect, error) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	key := strings.ToLower(strings.TrimSpace(name))
	if canonical, ok := aliases[key]; ok {
		key = canonical
	}
	f, ok := registry[key]
	if !ok {
		return nil, fmt.Errorf("unknown dialect %q (available: %s)", name, strings.Join(namesLocked(), ", "))
	}
	if opts.TimestampRounding == "" {
		opts.TimestampRounding = RoundingAuto
	}
	if opts.TypeDepthLimit <= 0 {
		opts.TypeDepthLimit = DefaultTypeDepthLimit
	}
	return f(opts), nil
}

func Names() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	return namesLocked()
}

func namesLocked() []string {
	out := make([]string, 0, len(registry))
	for n := range registry {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// Aliases returns the alternative names registered for a dialect.
func Aliases(name string) []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	var out []string
	for a, n := range aliases {
		if n == name {
			out = append(out, a)
		}
	}
	sort.Strings(out)
	return out
}

type TablePath struct {
	Schema string
	Table  string
}

func (p TablePath) String() string {
	if p.Schema == "" {
		return p.Table
	}
	return p.Schema + "." + p.Table
}

// SplitTablePath splits a dotted path like "db.schema.table".
func SplitTablePath(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return strings.Split(s, ".")
}

// CheckTablePath rejects paths with no components or a blank one.
func CheckTablePath(dialect string, path []string) error {
	if len(path) == 0 {
		return &BadTablePathError{Dialect: dialect, Path: path}
	}
	for _, c := range path {
		if strings.TrimSpace(c) == "" {
			return &BadTablePathError{Dialect: dialect, Path: path}
		}
	}
	return nil
}

// NormalizeTablePath maps a path to (schema, table): one component takes the
// default schema, two are used as given, and longer paths keep the last two.
func NormalizeTablePath(dialect string, path []string, defaultSchema string) (TablePath, error) {
	if err := CheckTablePath(dialect, path); err != nil {
		return TablePath{}, err
	}
	switch n := len(path); {
	case n == 1:
		if defaultSchema == "" {
			return TablePath{}, &BadTablePathError{Dialect: dialect, Path: path}
		}
		return TablePath{Schema: defaultSchema, Table: path[0]}, nil
	case n == 2:
		return TablePath{Schema: path[0], Table: path[1]}, nil
	case n > 2:
		return TablePath{Schema: path[n-2], Table: path[n-1]}, nil
	}
	return TablePath{}, &BadTablePathError{Dialect: dialect, Path: path}
}
