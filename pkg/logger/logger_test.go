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
	"bytes"
	"os"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
)

func TestLevels(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	t.Cleanup(func() {
		SetOutput(os.Stderr)
		SetDebug(false)
	})

	SetDebug(false)
	Debug("hidden %d", 1)
	Info("shown %d", 2)
	assert.NotContains(t, buf.String(), "hidden 1")
	assert.Contains(t, buf.String(), "shown 2")

	buf.Reset()
	SetDebug(true)
	Debug("visible %d", 3)
	assert.Contains(t, buf.String(), "visible 3")
	assert.Equal(t, log.DebugLevel, Log.GetLevel())

	buf.Reset()
	SetQuiet()
	Info("muted")
	Warn("loud")
	assert.NotContains(t, buf.String(), "muted")
	assert.Contains(t, buf.String(), "loud")
}

func TestErrorReturnsMessage(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	t.Cleanup(func() { SetOutput(os.Stderr) })

	err := Error("table %s not found", "public.t")
	assert.EqualError(t, err, "table public.t not found")
	assert.Contains(t, buf.String(), "public.t")
}
