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

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrUnsupportedType = errors.New("unsupported column type")
	ErrBadTablePath    = errors.New("bad table path")
)

type UnsupportedTypeError struct {
	Dialect string
	Column  string
	Type    string
	Reason  string
}

func (e *UnsupportedTypeError) Error() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s: unsupported type %q", e.Dialect, e.Type)
	if e.Column != "" {
		fmt.Fprintf(&sb, " for column %q", e.Column)
	}
	if e.Reason != "" {
		sb.WriteString(": " + e.Reason)
	}
	return sb.String()
}

func (e *UnsupportedTypeError) Is(target error) bool { return target == ErrUnsupportedType }

type BadTablePathError struct {
	Dialect string
	Path    []string
}

func (e *BadTablePathError) Error() string {
	return fmt.Sprintf("%s: bad table path '%s', expected form: schema.table", e.Dialect, strings.Join(e.Path, "."))
}

func (e *BadTablePathError) Is(target error) bool { return target == ErrBadTablePath }
