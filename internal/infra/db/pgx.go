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
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgedge/xdiff/internal/dialect"
)

type PgxConn struct {
	pool    *pgxpool.Pool
	dialect dialect.Dialect
}

func OpenPgx(ctx context.Context, dsn string, maxConns int, d dialect.Dialect) (*PgxConn, error) {
	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}
	if maxConns > 0 {
		config.MaxConns = int32(maxConns)
	}
	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	return &PgxConn{pool: pool, dialect: d}, nil
}

func (c *PgxConn) Dialect() dialect.Dialect { return c.dialect }

func (c *PgxConn) MaxConcurrency() int { return int(c.pool.Config().MaxConns) }

func (c *PgxConn) Close() error {
	c.pool.Close()
	return nil
}

func (c *PgxConn) Execute(ctx context.Context, sql string) (*Result, error) {
	return c.ExecuteBatch(ctx, Batch{Query: sql})
}

func (c *PgxConn) ExecuteBatch(ctx context.Context, b Batch) (*Result, error) {
	conn, err := c.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire connection: %w", err)
	}
	defer conn.Release()
	return runBatch(ctx, pgxSession{conn: conn}, b)
}

type pgxSession struct {
	conn *pgxpool.Conn
}

func (s pgxSession) exec(ctx context.Context, sql string) error {
	_, err := s.conn.Exec(ctx, sql)
	return err
}

func (s pgxSession) query(ctx context.Context, sql string) (*Result, error) {
	rows, err := s.conn.Query(ctx, sql)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	res := &Result{}
	for _, fd := range rows.FieldDescriptions() {
		res.Columns = append(res.Columns, fd.Name)
	}
	for rows.Next() {
		vals, err := rows.Values()
		if err != nil {
			return nil, err
		}
		for i, v := range vals {
			vals[i] = pgxValue(v)
		}
		res.Rows = append(res.Rows, vals)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return res, nil
}

// pgxValue maps pgx's wire types onto the plain Go values the rest of the
// program handles.
func pgxValue(v any) any {
	switch x := v.(type) {
	case pgtype.Numeric:
		if !x.Valid {
			return nil
		}
		s, err := x.Value()
		if err != nil {
			return fmt.Sprint(x)
		}
		return s
	case [16]byte:
		return uuid.UUID(x).String()
	case int32:
		return int64(x)
	case int16:
		return int64(x)
	}
	return v
}
