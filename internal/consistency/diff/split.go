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
	"math/big"
	"sort"
	"time"
)

// splitRanges cuts r at the given points. Points must be sorted, distinct
// and strictly inside r. The last child keeps r's upper bound.
func splitRanges(r KeyRange, points []Key) []KeyRange {
	out := make([]KeyRange, 0, len(points)+1)
	lo := r.Min
	for _, p := range points {
		out = append(out, KeyRange{Min: lo, Max: p})
		lo = p
	}
	return append(out, KeyRange{Min: lo, Max: r.Max, MaxInclusive: r.MaxInclusive})
}

// cleanPoints sorts and dedupes candidate split points, dropping any that
// would produce an empty or out-of-range child.
func cleanPoints(r KeyRange, points []Key) []Key {
	sort.SliceStable(points, func(i, j int) bool { return CompareKeys(points[i], points[j]) < 0 })
	out := points[:0]
	for _, p := range points {
		if r.Min != nil && CompareKeys(p, r.Min) <= 0 {
			continue
		}
		if r.Max != nil {
			c := CompareKeys(p, r.Max)
			if c > 0 || (c == 0 && !r.MaxInclusive) {
				continue
			}
		}
		if len(out) > 0 && CompareKeys(out[len(out)-1], p) == 0 {
			continue
		}
		out = append(out, p)
	}
	return out
}

// keySpacePoints divides a bounded single-column integer or timestamp range
// into n slices of equal width. It returns ok=false when the range cannot
// be split arithmetically.
func keySpacePoints(r KeyRange, n int) ([]Key, bool) {
	if len(r.Min) != 1 || len(r.Max) != 1 || n < 2 {
		return nil, false
	}

	var lo, hi *big.Int
	var asTime bool
	switch minV := r.Min[0].(type) {
	case time.Time:
		maxV, ok := r.Max[0].(time.Time)
		if !ok {
			return nil, false
		}
		lo, hi, asTime = big.NewInt(minV.UnixMicro()), big.NewInt(maxV.UnixMicro()), true
	default:
		if !integerLike(minV) || !integerLike(r.Max[0]) {
			return nil, false
		}
		lo, hi = toBig(minV), toBig(r.Max[0])
	}
	if r.MaxInclusive {
		hi = new(big.Int).Add(hi, big.NewInt(1))
	}

	width := new(big.Int).Sub(hi, lo)
	if width.Cmp(big.NewInt(int64(n))) < 0 {
		n = int(width.Int64())
	}
	if n < 2 {
		return nil, true
	}

	points := make([]Key, 0, n-1)
	for i := 1; i < n; i++ {
		p := new(big.Int).Mul(width, big.NewInt(int64(i)))
		p.Quo(p, big.NewInt(int64(n)))
		p.Add(p, lo)
		if asTime {
			points = append(points, Key{time.UnixMicro(p.Int64()).UTC()})
		} else {
			points = append(points, Key{fromBig(p)})
		}
	}
	return cleanPoints(r, points), true
}

// countOffsets returns the row offsets at which a range holding count rows
// is cut into n slices.
func countOffsets(count int64, n int) []int64 {
	if int64(n) > count {
		n = int(count)
	}
	var out []int64
	for i := 1; i < n; i++ {
		out = append(out, count*int64(i)/int64(n))
	}
	return out
}
