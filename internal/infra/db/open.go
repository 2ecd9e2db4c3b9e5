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
	"strconv"
	"strings"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "github.com/microsoft/go-mssqldb"
	"github.com/pgedge/xdiff/internal/dialect"
	"github.com/pgedge/xdiff/pkg/logger"
	_ "github.com/snowflakedb/gosnowflake"
	_ "github.com/trinodb/trino-go-client/trino"
)

const DefaultMaxConns = 4

type ConnConfig struct {
	Name string
	// Driver selects the client library: postgres, redshift, mysql, sqlite,
	// snowflake, clickhouse, mssql or trino.
	Driver string
	// Dialect overrides the SQL dialect implied by Driver, e.g. athena
	// reached through a trino gateway.
	Dialect  string
	DSN      string
	Schema   string
	MaxConns int
	Options  dialect.Options
}

// driverSpec maps a configured driver onto the database/sql driver name and
// the dialect spoken by default.
type driverSpec struct {
	sqlDriver string
	dialect   string
}

var drivers = map[string]driverSpec{
	"postgres":   {dialect: "postgres"},
	"postgresql": {dialect: "postgres"},
	"pgx":        {dialect: "postgres"},
	"redshift":   {sqlDriver: "postgres", dialect: "redshift"},
	"mysql":      {sqlDriver: "mysql", dialect: "mysql"},
	"mariadb":    {sqlDriver: "mysql", dialect: "mysql"},
	"sqlite":     {dialect: "sqlite"},
	"sqlite3":    {dialect: "sqlite"},
	"snowflake":  {sqlDriver: "snowflake", dialect: "snowflake"},
	"clickhouse": {dialect: "clickhouse"},
	"mssql":      {sqlDriver: "sqlserver", dialect: "mssql"},
	"sqlserver":  {sqlDriver: "sqlserver", dialect: "mssql"},
	"trino":      {sqlDriver: "trino", dialect: "presto"},
	"presto":     {sqlDriver: "trino", dialect: "presto"},
}

func Drivers() []string {
	out := make([]string, 0, len(drivers))
	for name := range drivers {
		out = append(out, name)
	}
	return out
}

// Open connects to the database described by cfg and verifies it answers.
func Open(ctx context.Context, cfg ConnConfig) (Conn, error) {
	key := strings.ToLower(strings.TrimSpace(cfg.Driver))
	spec, ok := drivers[key]
	if !ok {
		return nil, fmt.Errorf("connection %q: unknown driver %q", cfg.Name, cfg.Driver)
	}
	dialectName := spec.dialect
	if cfg.Dialect != "" {
		dialectName = cfg.Dialect
	}
	d, err := dialect.New(dialectName, cfg.Options)
	if err != nil {
		return nil, fmt.Errorf("connection %q: %w", cfg.Name, err)
	}
	maxConns := cfg.MaxConns
	if maxConns <= 0 {
		maxConns = DefaultMaxConns
	}

	var conn Conn
	switch spec.dialect {
	case "postgres":
		conn, err = OpenPgx(ctx, cfg.DSN, maxConns, d)
	case "sqlite":
		conn, err = OpenSQLite(cfg.DSN, d)
	case "clickhouse":
		conn, err = openClickHouse(cfg.DSN, maxConns, d)
	default:
		var sqlDB *sql.DB
		sqlDB, err = sql.Open(spec.sqlDriver, cfg.DSN)
		if err == nil {
			conn = NewSQLConn(sqlDB, d, maxConns)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("connection %q: %w", cfg.Name, err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if _, err := conn.Execute(pingCtx, "SELECT 1"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("connection %q: ping failed: %w", cfg.Name, err)
	}
	if sc, ok := conn.(*SQLConn); ok && d.Name() == "mssql" {
		if err := checkMSSQLVersion(pingCtx, sc, cfg); err != nil {
			conn.Close()
			return nil, fmt.Errorf("connection %q: %w", cfg.Name, err)
		}
	}
	return conn, nil
}

// checkMSSQLVersion switches the connection to count-only diffs on servers
// without UTF-8 collations.
func checkMSSQLVersion(ctx context.Context, c *SQLConn, cfg ConnConfig) error {
	res, err := c.Execute(ctx, dialect.MSSQLVersionQuery)
	if err != nil {
		return fmt.Errorf("could not read server version: %w", err)
	}
	v, err := res.Scalar()
	if err != nil {
		return fmt.Errorf("could not read server version: %w", err)
	}
	major, err := strconv.Atoi(fmt.Sprint(v))
	if err != nil {
		return fmt.Errorf("unexpected server version %v", v)
	}
	if dialect.MSSQLHashesUTF8(major) {
		return nil
	}
	opts := cfg.Options
	opts.DisableChecksums = true
	d, err := dialect.New(c.dialect.Name(), opts)
	if err != nil {
		return err
	}
	c.dialect = d
	logger.Warn("connection %s: SQL Server %d has no UTF-8 collation, checksums disabled", cfg.Name, major)
	return nil
}

func openClickHouse(dsn string, maxConns int, d dialect.Dialect) (*SQLConn, error) {
	opts, err := clickhouse.ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("error parsing ClickHouse DSN: %w", err)
	}
	if opts.Settings == nil {
		opts.Settings = clickhouse.Settings{}
	}
	opts.Settings["max_execution_time"] = 600
	opts.DialTimeout = 10 * time.Second
	opts.ConnMaxLifetime = time.Hour
	return NewSQLConn(clickhouse.OpenDB(opts), d, maxConns), nil
}
