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

import "fmt"

// Reconcile adjusts a pair of column types from the two sides so that both
// normalize to the same rendering: the coarser precision wins, and rounding
// is only kept when both engines round.
func Reconcile(a, b ColumnType) (ColumnType, ColumnType, []string) {
	var notes []string

	switch {
	case a.IsTemporal() && b.IsTemporal():
		if a.Precision != b.Precision {
			p := min(a.Precision, b.Precision)
			notes = append(notes, fmt.Sprintf("timestamp precisions differ (%d vs %d), comparing at %d", a.Precision, b.Precision, p))
			a.Precision, b.Precision = p, p
		}
		if a.Rounds != b.Rounds {
			notes = append(notes, "engines disagree on timestamp rounding, truncating both sides")
			a.Rounds, b.Rounds = false, false
		}

	case a.IsNumeric() && b.IsNumeric():
		if a.Kind == b.Kind && a.Precision == b.Precision {
			break
		}
		if a.Kind == KindInteger && b.Kind == KindInteger {
			break
		}
		p := min(a.Precision, b.Precision)
		if a.Precision != b.Precision {
			notes = append(notes, fmt.Sprintf("numeric precisions differ (%d vs %d), comparing at %d", a.Precision, b.Precision, p))
		}
		a, b = Decimal(p), Decimal(p)

	case a.Kind == KindUUID && b.Kind == KindText, a.Kind == KindText && b.Kind == KindUUID:
		a, b = UUID(), UUID()

	case a.Kind != b.Kind && !(a.IsStructured() && b.IsStructured()):
		notes = append(notes, fmt.Sprintf("column types differ (%s vs %s), comparing as rendered", a, b))
	}
	return a, b, notes
}
