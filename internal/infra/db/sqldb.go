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

package db

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/pgedge/xdiff/internal/dialect"
)

// SQLConn adapts any database/sql driver.
type SQLConn struct {
	db          *sql.DB
	dialect     dialect.Dialect
	concurrency int
}

func NewSQLConn(db *sql.DB, d dialect.Dialect, concurrency int) *SQLConn {
	if concurrency <= 0 {
		concurrency = 1
	}
	db.SetMaxOpenConns(concurrency)
	db.SetMaxIdleConns(concurrency)
	return &SQLConn{db: db, dialect: d, concurrency: concurrency}
}

func (c *SQLConn) Dialect() dialect.Dialect { return c.dialect }

func (c *SQLConn) MaxConcurrency() int { return c.concurrency }

func (c *SQLConn) Close() error { return c.db.Close() }

// DB exposes the pool for schema setup in tests and tooling.
func (c *SQLConn) DB() *sql.DB { return c.db }

func (c *SQLConn) Execute(ctx context.Context, sql string) (*Result, error) {
	return c.ExecuteBatch(ctx, Batch{Query: sql})
}

func (c *SQLConn) ExecuteBatch(ctx context.Context, b Batch) (*Result, error) {
	conn, err := c.db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire connection: %w", err)
	}
	defer conn.Close()
	return runBatch(ctx, sqlSession{conn: conn}, b)
}

type sqlSession struct {
	conn *sql.Conn
}

func (s sqlSession) exec(ctx context.Context, stmt string) error {
	_, err := s.conn.ExecContext(ctx, stmt)
	return err
}

func (s sqlSession) query(ctx context.Context, stmt string) (*Result, error) {
	rows, err := s.conn.QueryContext(ctx, stmt)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	res := &Result{Columns: cols}
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		for i, v := range vals {
			if b, ok := v.([]byte); ok {
				vals[i] = string(b)
			}
		}
		res.Rows = append(res.Rows, vals)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return res, nil
}
