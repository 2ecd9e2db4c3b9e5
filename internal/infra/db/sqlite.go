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
	"database/sql"
	"fmt"
	"math/big"
	"strconv"
	"sync"

	"github.com/mattn/go-sqlite3"
	"github.com/pgedge/xdiff/internal/dialect"
)

const sqliteDriverName = "sqlite3_xdiff"

var registerSQLite sync.Once

// registerSQLiteDriver installs a sqlite3 driver whose connections carry
// the checksum functions the sqlite dialect emits.
func registerSQLiteDriver() {
	registerSQLite.Do(func() {
		sql.Register(sqliteDriverName, &sqlite3.SQLiteDriver{
			ConnectHook: func(conn *sqlite3.SQLiteConn) error {
				if err := conn.RegisterFunc(dialect.SQLiteHashFunc, md5Tail, true); err != nil {
					return err
				}
				if err := conn.RegisterFunc(dialect.SQLiteJSONFunc, canonicalJSON, true); err != nil {
					return err
				}
				return conn.RegisterAggregator(dialect.SQLiteSumFunc, newChecksumSum, true)
			},
		})
	})
}

// md5Tail reads the trailing checksum digits of the MD5 hex digest.
func md5Tail(s string) int64 {
	return dialect.HashAsInt(s) + dialect.ChecksumOffset
}

// canonicalJSON renders a stored JSON value the way the other engines'
// normalized JSON reads. The driver hands NULL over as a nil []byte and
// unquoted numbers as int64 or float64.
func canonicalJSON(v any) (any, error) {
	var s string
	switch x := v.(type) {
	case nil:
		return nil, nil
	case string:
		s = x
	case []byte:
		if x == nil {
			return nil, nil
		}
		s = string(x)
	case int64:
		s = strconv.FormatInt(x, 10)
	case float64:
		s = strconv.FormatFloat(x, 'g', -1, 64)
	default:
		return nil, fmt.Errorf("unsupported JSON value of type %T", v)
	}
	out, err := dialect.CanonicalJSON(s)
	if err != nil {
		return nil, err
	}
	return out, nil
}

// checksumSum adds row checksums without the int64 overflow SQLite's own
// SUM raises.
type checksumSum struct {
	total big.Int
}

func newChecksumSum() *checksumSum { return &checksumSum{} }

func (a *checksumSum) Step(v int64) {
	a.total.Add(&a.total, big.NewInt(v))
}

func (a *checksumSum) Done() string {
	return a.total.String()
}

// OpenSQLite opens a sqlite database. SQLite serialises writers and each
// ":memory:" connection is a separate database, so one connection is used.
func OpenSQLite(dsn string, d dialect.Dialect) (*SQLConn, error) {
	registerSQLiteDriver()
	db, err := sql.Open(sqliteDriverName, dsn)
	if err != nil {
		return nil, err
	}
	db.SetConnMaxLifetime(0)
	return NewSQLConn(db, d, 1), nil
}
