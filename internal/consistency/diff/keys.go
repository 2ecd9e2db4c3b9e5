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
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"time"

	"github.com/pgedge/xdiff/internal/dialect"
	"github.com/shopspring/decimal"
)

// Key is one key tuple. Elements are int64, *big.Int, decimal.Decimal,
// string or time.Time.
type Key []any

func (k Key) String() string {
	parts := make([]string, len(k))
	for i, v := range k {
		parts[i] = formatKeyValue(v)
	}
	if len(parts) == 1 {
		return parts[0]
	}
	return "(" + strings.Join(parts, ", ") + ")"
}

func formatKeyValue(v any) string {
	switch x := v.(type) {
	case time.Time:
		return x.UTC().Format("2006-01-02 15:04:05.999999")
	case nil:
		return "-inf"
	}
	return fmt.Sprint(v)
}

// KeyRange covers keys in [Min, Max), or [Min, Max] when MaxInclusive.
// A nil bound is unbounded.
type KeyRange struct {
	Min          Key
	Max          Key
	MaxInclusive bool
}

func (r KeyRange) String() string {
	lo, hi := "-inf", "+inf"
	if r.Min != nil {
		lo = r.Min.String()
	}
	if r.Max != nil {
		hi = r.Max.String()
	}
	closer := ")"
	if r.MaxInclusive {
		closer = "]"
	}
	return "[" + lo + ", " + hi + closer
}

// Contains reports whether k falls inside the range.
func (r KeyRange) Contains(k Key) bool {
	if r.Min != nil && CompareKeys(k, r.Min) < 0 {
		return false
	}
	if r.Max != nil {
		c := CompareKeys(k, r.Max)
		if c > 0 || (c == 0 && !r.MaxInclusive) {
			return false
		}
	}
	return true
}

// CompareKeys orders key tuples lexicographically by column.
func CompareKeys(a, b Key) int {
	n := min(len(a), len(b))
	for i := 0; i < n; i++ {
		if c := compareValues(a[i], b[i]); c != 0 {
			return c
		}
	}
	return len(a) - len(b)
}

func compareValues(a, b any) int {
	switch x := a.(type) {
	case int64:
		if y, ok := b.(int64); ok {
			switch {
			case x < y:
				return -1
			case x > y:
				return 1
			}
			return 0
		}
	case string:
		if y, ok := b.(string); ok {
			return strings.Compare(x, y)
		}
	case time.Time:
		if y, ok := b.(time.Time); ok {
			return x.Compare(y)
		}
	case decimal.Decimal:
		if y, ok := b.(decimal.Decimal); ok {
			return x.Cmp(y)
		}
	}
	if ab, bb := toBig(a), toBig(b); ab != nil && bb != nil {
		return ab.Cmp(bb)
	}
	return strings.Compare(fmt.Sprint(a), fmt.Sprint(b))
}

func toBig(v any) *big.Int {
	switch x := v.(type) {
	case int64:
		return big.NewInt(x)
	case *big.Int:
		return x
	}
	return nil
}

// fromBig keeps small integers as int64.
func fromBig(b *big.Int) any {
	if b.IsInt64() {
		return b.Int64()
	}
	return new(big.Int).Set(b)
}

var timestampLayouts = []string{
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999 -0700 MST",
	"2006-01-02 15:04:05.999999999-07",
	"2006-01-02",
}

// coerceKeyValue turns a driver value into a Key element for a column.
func coerceKeyValue(v any, t dialect.ColumnType) (any, error) {
	if v == nil {
		return nil, fmt.Errorf("key column contains NULL")
	}
	switch t.Kind {
	case dialect.KindInteger:
		switch x := v.(type) {
		case int64:
			return x, nil
		case int32:
			return int64(x), nil
		case int:
			return int64(x), nil
		case uint64:
			return fromBig(new(big.Int).SetUint64(x)), nil
		case uint32:
			return int64(x), nil
		case *big.Int:
			return fromBig(x), nil
		case float64:
			return fromBig(decimal.NewFromFloat(x).BigInt()), nil
		}
		s := strings.TrimSpace(fmt.Sprint(v))
		if b, ok := new(big.Int).SetString(s, 10); ok {
			return fromBig(b), nil
		}
		d, err := decimal.NewFromString(s)
		if err != nil {
			return nil, fmt.Errorf("key value %q is not an integer", s)
		}
		return fromBig(d.BigInt()), nil

	case dialect.KindDecimal:
		switch x := v.(type) {
		case decimal.Decimal:
			return x, nil
		case float64:
			return decimal.NewFromFloat(x), nil
		case int64:
			return decimal.NewFromInt(x), nil
		}
		d, err := decimal.NewFromString(strings.TrimSpace(fmt.Sprint(v)))
		if err != nil {
			return nil, fmt.Errorf("key value %v is not numeric: %w", v, err)
		}
		return d, nil

	case dialect.KindText, dialect.KindUUID:
		return fmt.Sprint(v), nil

	case dialect.KindTimestamp, dialect.KindTimestampTZ:
		switch x := v.(type) {
		case time.Time:
			return x.UTC(), nil
		}
		s := strings.TrimSpace(fmt.Sprint(v))
		for _, layout := range timestampLayouts {
			if ts, err := time.Parse(layout, s); err == nil {
				return ts.UTC(), nil
			}
		}
		return nil, fmt.Errorf("key value %q is not a timestamp", s)
	}
	return nil, fmt.Errorf("column type %s cannot be used as a key", t)
}

// sortKey maps a normalized key rendering onto a value that orders the
// same way the engines order the raw key.
func sortKey(s string, t dialect.ColumnType) any {
	switch t.Kind {
	case dialect.KindInteger, dialect.KindDecimal:
		if d, err := decimal.NewFromString(s); err == nil {
			return d
		}
	}
	return s
}

func integerLike(v any) bool {
	switch v.(type) {
	case int64, *big.Int:
		return true
	}
	return false
}

func parseCount(v any) (int64, error) {
	switch x := v.(type) {
	case int64:
		return x, nil
	case int32:
		return int64(x), nil
	case int:
		return int64(x), nil
	case uint64:
		return int64(x), nil
	case float64:
		return int64(x), nil
	case nil:
		return 0, nil
	}
	n, err := strconv.ParseInt(strings.TrimSpace(fmt.Sprint(v)), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("row count %v is not an integer: %w", v, err)
	}
	return n, nil
}
