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

// Package db is the query-execution layer: one Conn per side of a diff,
// whatever the engine behind it.
package db

import (
	"context"
	"fmt"
	"regexp"

	"github.com/pgedge/xdiff/internal/dialect"
)

type Conn interface {
	Dialect() dialect.Dialect
	// Execute runs one statement and returns its rows, if any.
	Execute(ctx context.Context, sql string) (*Result, error)
	// ExecuteBatch runs setup, query and teardown in order on a single
	// underlying connection. Teardown runs on every exit path.
	ExecuteBatch(ctx context.Context, b Batch) (*Result, error)
	// MaxConcurrency is the number of statements the connection can run at
	// the same time.
	MaxConcurrency() int
	Close() error
}

type Result struct {
	Columns []string
	Rows    [][]any
}

// Scalar returns the first value of the first row.
func (r *Result) Scalar() (any, error) {
	if r == nil || len(r.Rows) == 0 || len(r.Rows[0]) == 0 {
		return nil, fmt.Errorf("query returned no rows")
	}
	return r.Rows[0][0], nil
}

type Batch struct {
	Setup    []string
	Query    string
	Teardown []string
}

// Statements that produce no row set must be executed and acknowledged
// rather than iterated.
var mutatingRegex = regexp.MustCompile(`(?i)^\s*(insert|create|truncate|drop|update|delete|set|alter|use)\b`)

func IsMutating(sql string) bool {
	return mutatingRegex.MatchString(sql)
}

// session is one dedicated physical connection.
type session interface {
	exec(ctx context.Context, sql string) error
	query(ctx context.Context, sql string) (*Result, error)
}

func runBatch(ctx context.Context, s session, b Batch) (res *Result, err error) {
	defer func() {
		// Teardown must run even when ctx is already cancelled.
		tctx := context.WithoutCancel(ctx)
		for _, stmt := range b.Teardown {
			if terr := s.exec(tctx, stmt); terr != nil && err == nil {
				err = fmt.Errorf("teardown %q: %w", stmt, terr)
			}
		}
	}()

	for _, stmt := range b.Setup {
		if err := run(ctx, s, stmt, nil); err != nil {
			return nil, fmt.Errorf("setup %q: %w", stmt, err)
		}
	}
	if b.Query == "" {
		return &Result{}, nil
	}
	res = &Result{}
	if err := run(ctx, s, b.Query, res); err != nil {
		return nil, err
	}
	return res, nil
}

func run(ctx context.Context, s session, stmt string, into *Result) error {
	if IsMutating(stmt) {
		return s.exec(ctx, stmt)
	}
	r, err := s.query(ctx, stmt)
	if err != nil {
		return err
	}
	if into != nil {
		*into = *r
	}
	return nil
}
