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

package config

import (
	"fmt"
	"os"
	"sort"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Connections map[string]ConnectionConfig `yaml:"connections"`
	Diff        DiffConfig                  `yaml:"diff"`
	TaskStore   TaskStoreConfig             `yaml:"task_store"`

	ScheduleJobs   []JobDef   `yaml:"schedule_jobs"`
	ScheduleConfig []SchedDef `yaml:"schedule_config"`

	DebugMode bool `yaml:"debug_mode"`
}

// ConnectionConfig names one database. Dialect is only needed when the
// driver speaks for another engine, e.g. athena through trino.
type ConnectionConfig struct {
	Driver   string `yaml:"driver"`
	Dialect  string `yaml:"dialect,omitempty"`
	DSN      string `yaml:"dsn"`
	Schema   string `yaml:"schema,omitempty"`
	MaxConns int    `yaml:"max_conns,omitempty"`
}

type DiffConfig struct {
	BisectionFactor      int    `yaml:"bisection_factor"`
	BisectionThreshold   int64  `yaml:"bisection_threshold"`
	MaxDepth             int    `yaml:"max_depth"`
	MaxConcurrency       int    `yaml:"max_concurrency"`
	QueryRetries         int    `yaml:"query_retries"`
	RetryInitialInterval string `yaml:"retry_initial_interval"`
	QueryTimeout         string `yaml:"query_timeout"`
	TimestampRounding    string `yaml:"timestamp_rounding"`
	TypeDepthLimit       int    `yaml:"type_depth_limit"`
	OutputDir            string `yaml:"output_dir"`
}

type TaskStoreConfig struct {
	Path     string `yaml:"path"`
	Disabled bool   `yaml:"disabled"`
}

// JobDef is a scheduled table-diff. Args carry the same options the
// table-diff command accepts, keyed by flag name with underscores.
type JobDef struct {
	Name        string                 `yaml:"name"`
	Connection1 string                 `yaml:"connection1"`
	Table1      string                 `yaml:"table1"`
	Connection2 string                 `yaml:"connection2"`
	Table2      string                 `yaml:"table2"`
	Args        map[string]interface{} `yaml:"args,omitempty"`
}

type SchedDef struct {
	JobName         string `yaml:"job_name"`
	CrontabSchedule string `yaml:"crontab_schedule,omitempty"`
	RunFrequency    string `yaml:"run_frequency,omitempty"`
	Enabled         bool   `yaml:"enabled"`
}

// Cfg holds the loaded config for the whole app.
var Cfg *Config

// Default returns the configuration used when no file is found.
func Default() *Config {
	return &Config{
		Connections: map[string]ConnectionConfig{},
		Diff: DiffConfig{
			BisectionFactor:      8,
			BisectionThreshold:   16384,
			MaxDepth:             16,
			MaxConcurrency:       8,
			QueryRetries:         3,
			RetryInitialInterval: "250ms",
			QueryTimeout:         "2m",
			TimestampRounding:    "auto",
			TypeDepthLimit:       8,
			OutputDir:            ".",
		},
	}
}

// Load reads and parses path into a Config. Keys missing from the file keep
// their defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	c := Default()
	if err := yaml.Unmarshal(data, c); err != nil {
		return nil, err
	}
	if c.Connections == nil {
		c.Connections = map[string]ConnectionConfig{}
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return c, nil
}

// Init loads the config and assigns it to the package variable.
func Init(path string) error {
	c, err := Load(path)
	if err != nil {
		return err
	}
	Cfg = c
	return nil
}

// Get returns the loaded config, falling back to defaults.
func Get() *Config {
	if Cfg == nil {
		return Default()
	}
	return Cfg
}

func (c *Config) Validate() error {
	if _, err := c.Diff.RetryInterval(); err != nil {
		return err
	}
	if _, err := c.Diff.Timeout(); err != nil {
		return err
	}
	for name, conn := range c.Connections {
		if conn.Driver == "" {
			return fmt.Errorf("connection %q: driver is required", name)
		}
		if conn.DSN == "" {
			return fmt.Errorf("connection %q: dsn is required", name)
		}
	}
	for _, sd := range c.ScheduleConfig {
		if sd.Enabled && sd.CrontabSchedule == "" && sd.RunFrequency == "" {
			return fmt.Errorf("schedule for job %q needs crontab_schedule or run_frequency", sd.JobName)
		}
	}
	return nil
}

// Connection looks up a named connection.
func (c *Config) Connection(name string) (ConnectionConfig, error) {
	conn, ok := c.Connections[name]
	if !ok {
		known := make([]string, 0, len(c.Connections))
		for k := range c.Connections {
			known = append(known, k)
		}
		sort.Strings(known)
		return ConnectionConfig{}, fmt.Errorf("connection %q not found in config (known: %v)", name, known)
	}
	return conn, nil
}

func (d DiffConfig) RetryInterval() (time.Duration, error) {
	return parseDuration("retry_initial_interval", d.RetryInitialInterval)
}

func (d DiffConfig) Timeout() (time.Duration, error) {
	return parseDuration("query_timeout", d.QueryTimeout)
}

func parseDuration(key, s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, s, err)
	}
	return v, nil
}
