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

package logger

import (
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/log"
)

var (
	Log = log.NewWithOptions(os.Stderr, log.Options{
		ReportTimestamp: true,
		Prefix:          "xdiff",
	})
)

func SetLevel(level log.Level) {
	Log.SetLevel(level)
}

// SetDebug switches between debug and info verbosity.
func SetDebug(on bool) {
	if on {
		Log.SetLevel(log.DebugLevel)
		Log.SetReportCaller(true)
		return
	}
	Log.SetLevel(log.InfoLevel)
	Log.SetReportCaller(false)
}

// SetQuiet drops everything below warnings.
func SetQuiet() {
	Log.SetLevel(log.WarnLevel)
}

func SetOutput(w io.Writer) {
	Log.SetOutput(w)
}

func Info(format string, args ...any) {
	Log.Infof(format, args...)
}

func Debug(format string, args ...any) {
	Log.Debugf(format, args...)
}

func Warn(format string, args ...any) {
	Log.Warnf(format, args...)
}

// Error logs and returns the same message as an error.
func Error(format string, args ...any) error {
	Log.Errorf(format, args...)
	return fmt.Errorf(format, args...)
}

func Fatal(msg any, args ...any) {
	Log.Fatal(msg, args...)
}
