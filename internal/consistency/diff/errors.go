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

package diff

import (
	"errors"
	"fmt"
)

var ErrSegmentQueryFailed = errors.New("segment query failed")

// SegmentQueryFailedError is returned once a query for one side of a
// segment has exhausted its retries.
type SegmentQueryFailedError struct {
	Table    string
	Side     string
	Range    KeyRange
	Attempts int
	Err      error
}

func (e *SegmentQueryFailedError) Error() string {
	return fmt.Sprintf("query on %s side %s for segment %s failed after %d attempt(s): %v",
		e.Table, e.Side, e.Range, e.Attempts, e.Err)
}

func (e *SegmentQueryFailedError) Unwrap() error { return e.Err }

func (e *SegmentQueryFailedError) Is(target error) bool { return target == ErrSegmentQueryFailed }
