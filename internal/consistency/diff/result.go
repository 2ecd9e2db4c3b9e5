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

// DiffResultWrapper is the outcome of one run. It is read-only once Diff
// returns.
type DiffResultWrapper struct {
	Tree  *InfoTree
	Rows  []DiffRow
	Stats map[string]any
}

// Identical reports whether the run found no differing or exclusive rows.
func (w *DiffResultWrapper) Identical() bool { return len(w.Rows) == 0 }

type runCounters struct {
	segments  int64
	checksums int64
}

func buildStats(tree *InfoTree, rows []DiffRow, c runCounters) (map[string]any, error) {
	var exclusiveA, exclusiveB, updated int64
	for _, r := range rows {
		switch {
		case r.ExclusiveA:
			exclusiveA++
		case r.ExclusiveB:
			exclusiveB++
		default:
			updated++
		}
	}

	rowsA, rowsB := tree.Root.CountA, tree.Root.CountB
	unchanged := max(rowsA-exclusiveA-updated, 0)
	total := unchanged + updated + exclusiveA + exclusiveB
	diffPercent := 0.0
	if total > 0 {
		diffPercent = float64(total-unchanged) / float64(total)
	}

	digest, err := tree.Digest()
	if err != nil {
		return nil, err
	}

	return map[string]any{
		"rows_A":           rowsA,
		"rows_B":           rowsB,
		"exclusive_A":      exclusiveA,
		"exclusive_B":      exclusiveB,
		"updated":          updated,
		"unchanged":        unchanged,
		"total":            total,
		"segments_checked": c.segments,
		"checksum_queries": c.checksums,
		"max_depth":        tree.Root.MaxDepth(),
		"tree_digest":      digest,
		"diff_percent":     diffPercent,
	}, nil
}
