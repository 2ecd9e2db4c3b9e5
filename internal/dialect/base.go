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
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// DefaultDecimalScale applies to numerics declared without a scale.
const DefaultDecimalScale = 10

const timestampLayout = "2006-01-02 15:04:05.000000"

// typeClass describes how one native type name maps onto a ColumnType.
// A negative precision means "derive from the declaration".
type typeClass struct {
	kind Kind
	// mantissa bits for floats
	bits int
	// fixed fractional digits, or -1
	precision int
	// Decimal32(S) style: the only param is the scale
	scaleOnly bool
	// Snowflake NUMBER(p,0) is an integer
	integerIfZeroScale bool
}

func class(k Kind) typeClass             { return typeClass{kind: k, precision: -1} }
func floatClass(bits int) typeClass      { return typeClass{kind: KindFloat, bits: bits, precision: -1} }
func fixedClass(k Kind, p int) typeClass { return typeClass{kind: k, precision: p} }

type base struct {
	name        string
	opts        Options
	classes     map[string]typeClass
	wrappers    map[string]bool
	rounds      bool
	maxTSPrec   int
	defTSPrec   int
	quoteOpen   string
	quoteClose  string
	tsLiteral   func(ts string) string
	noChecksums bool
}

func (b *base) Name() string                { return b.name }
func (b *base) ChecksumOffset() int64       { return ChecksumOffset }
func (b *base) SupportsChecksum() bool      { return !b.noChecksums && !b.opts.DisableChecksums }
func (b *base) RoundsOnPrecisionLoss() bool { return b.rounds }
func (b *base) MaxTimestampPrecision() int  { return b.maxTSPrec }
func (b *base) CurrentTimestamp() string    { return "current_timestamp" }

func (b *base) Quote(ident string) string {
	open, closer := b.quoteOpen, b.quoteClose
	if open == "" {
		open, closer = `"`, `"`
	}
	return open + strings.ReplaceAll(ident, closer, closer+closer) + closer
}

func (b *base) QuoteTable(path TablePath) string {
	if path.Schema == "" {
		return b.Quote(path.Table)
	}
	return b.Quote(path.Schema) + "." + b.Quote(path.Table)
}

func (b *base) LimitOffset(limit, offset int64) string {
	return fmt.Sprintf("LIMIT %d OFFSET %d", limit, offset)
}

func (b *base) NormalizeTablePath(path []string, defaultSchema string) (TablePath, error) {
	return NormalizeTablePath(b.name, path, defaultSchema)
}

func (b *base) Literal(v any) string {
	tsLit := b.tsLiteral
	if tsLit == nil {
		tsLit = func(ts string) string { return "timestamp '" + ts + "'" }
	}
	return literal(v, tsLit)
}

// timestampRounds resolves the rounding mode configured for the run.
func (b *base) timestampRounds() bool {
	switch b.opts.TimestampRounding {
	case RoundingRound:
		return true
	case RoundingTruncate:
		return false
	}
	return b.rounds
}

func (b *base) ParseType(info RawColumnInfo) (ColumnType, error) {
	e, err := ParseTypeExpr(info.DataType, b.opts.TypeDepthLimit)
	if err != nil {
		return ColumnType{}, &UnsupportedTypeError{Dialect: b.name, Column: info.Name, Type: info.DataType, Reason: err.Error()}
	}
	t, err := b.classify(e, &info)
	if err != nil {
		if ute, ok := err.(*UnsupportedTypeError); ok && ute.Column == "" {
			ute.Column = info.Name
		}
		return ColumnType{}, err
	}
	return t, nil
}

func (b *base) lookup(name string) (typeClass, bool) {
	if tc, ok := b.classes[name]; ok {
		return tc, true
	}
	if first, _, found := strings.Cut(name, " "); found {
		tc, ok := b.classes[first]
		return tc, ok
	}
	return typeClass{}, false
}

func (b *base) classify(e TypeExpr, info *RawColumnInfo) (ColumnType, error) {
	if b.wrappers[e.Name] && len(e.Args) == 1 {
		return b.classify(e.Args[0], info)
	}
	tc, ok := b.lookup(e.Name)
	if !ok {
		return ColumnType{}, &UnsupportedTypeError{Dialect: b.name, Type: e.String()}
	}

	switch tc.kind {
	case KindTimestamp, KindTimestampTZ:
		p := b.defTSPrec
		switch {
		case tc.precision >= 0:
			p = tc.precision
		case len(e.Params) > 0:
			if n, ok := e.IntParam(0); ok {
				p = n
			}
		case info != nil && info.DatetimePrecision != nil:
			p = *info.DatetimePrecision
		}
		if p > b.maxTSPrec {
			p = b.maxTSPrec
		}
		if tc.kind == KindTimestampTZ {
			return TimestampTZ(p, b.timestampRounds()), nil
		}
		return Timestamp(p, b.timestampRounds()), nil

	case KindDecimal:
		scale := DefaultDecimalScale
		switch {
		case tc.precision >= 0:
			scale = tc.precision
		case tc.scaleOnly && len(e.Params) == 1:
			scale, _ = e.IntParam(0)
		case len(e.Params) >= 2:
			scale, _ = e.IntParam(1)
		case len(e.Params) == 1:
			scale = 0
		case info != nil && info.NumericScale != nil:
			scale = *info.NumericScale
		}
		if tc.integerIfZeroScale && scale == 0 {
			return Integer(), nil
		}
		return Decimal(scale), nil

	case KindFloat:
		bits := tc.bits
		if n, ok := e.IntParam(0); ok && n > 0 && n <= 24 {
			bits = 24
		}
		return Float(bits), nil

	case KindArray:
		if len(e.Args) == 0 {
			return Array(JSON()), nil
		}
		item, err := b.classify(e.Args[0], nil)
		if err != nil {
			return ColumnType{}, err
		}
		return Array(item), nil

	case KindStruct:
		fields := make([]StructField, 0, len(e.Fields)+len(e.Args))
		for _, f := range e.Fields {
			ft, err := b.classify(f.Type, nil)
			if err != nil {
				return ColumnType{}, err
			}
			fields = append(fields, StructField{Name: f.Name, Type: ft})
		}
		for i, a := range e.Args {
			ft, err := b.classify(a, nil)
			if err != nil {
				return ColumnType{}, err
			}
			fields = append(fields, StructField{Name: strconv.Itoa(i + 1), Type: ft})
		}
		return Struct(fields), nil
	}
	return ColumnType{Kind: tc.kind}, nil
}

// normalizer is the per-kind half of a dialect.
type normalizer interface {
	Name() string
	ToString(expr string) string
	normalizeTimestamp(expr string, t ColumnType) string
	normalizeNumber(expr string, t ColumnType) string
	normalizeBoolean(expr string) string
	normalizeUUID(expr string) string
	normalizeStructured(expr string, t ColumnType) (string, error)
}

func normalizeValue(n normalizer, expr string, t ColumnType) (string, error) {
	switch t.Kind {
	case KindInteger, KindText:
		return n.ToString(expr), nil
	case KindFloat, KindDecimal:
		return n.normalizeNumber(expr, t), nil
	case KindTimestamp, KindTimestampTZ:
		return n.normalizeTimestamp(expr, t), nil
	case KindBoolean:
		return n.normalizeBoolean(expr), nil
	case KindUUID:
		return n.normalizeUUID(expr), nil
	case KindJSON, KindArray, KindStruct:
		return n.normalizeStructured(expr, t)
	}
	return "", &UnsupportedTypeError{Dialect: n.Name(), Type: t.String()}
}

// toComparable keeps scalar values as they are and renders structured
// values as text so they can be fetched and displayed.
func toComparable(n normalizer, expr string, t ColumnType) (string, error) {
	if t.IsStructured() {
		return normalizeValue(n, expr, t)
	}
	return expr, nil
}

func unsupportedStructured(dialect string, t ColumnType) (string, error) {
	return "", &UnsupportedTypeError{Dialect: dialect, Type: t.String(), Reason: "no canonical JSON rendering"}
}

// joinComparable wraps each comparable expression so NULL has a fixed
// spelling and separates them with '|'.
func joinComparable(exprs []string, concat func(parts []string) string) string {
	parts := make([]string, 0, 2*len(exprs))
	for i, e := range exprs {
		if i > 0 {
			parts = append(parts, "'|'")
		}
		parts = append(parts, fmt.Sprintf("coalesce(%s, '<null>')", e))
	}
	if len(parts) == 1 {
		return parts[0]
	}
	return concat(parts)
}

func concatOperator(parts []string) string { return strings.Join(parts, " || ") }

func concatFunction(parts []string) string { return "concat(" + strings.Join(parts, ", ") + ")" }

// RowString builds, in Go, the string a dialect hashes for one row.
// A nil entry stands for SQL NULL.
func RowString(values []*string) string {
	var sb strings.Builder
	for i, v := range values {
		if i > 0 {
			sb.WriteByte('|')
		}
		if v == nil {
			sb.WriteString("<null>")
		} else {
			sb.WriteString(*v)
		}
	}
	return sb.String()
}

// HashAsInt is the reference row checksum: the last ChecksumHexDigits of the
// MD5 hex digest read as an unsigned integer, minus ChecksumOffset.
func HashAsInt(s string) int64 {
	sum := md5.Sum([]byte(s))
	digest := hex.EncodeToString(sum[:])
	v, _ := strconv.ParseUint(digest[MD5HexDigits-ChecksumHexDigits:], 16, 64)
	return int64(v) - ChecksumOffset
}

// CanonicalSum renders an engine-reported checksum sum the same way on
// every side. Engines disagree on trailing ".0", exponents and NULL for
// empty input.
func CanonicalSum(v any) (string, error) {
	switch s := v.(type) {
	case nil:
		return "0", nil
	case []byte:
		return CanonicalSum(string(s))
	case string:
		s = strings.TrimSpace(s)
		if s == "" {
			return "0", nil
		}
		d, err := decimal.NewFromString(s)
		if err != nil {
			return "", fmt.Errorf("checksum %q is not numeric: %w", s, err)
		}
		return d.Truncate(0).String(), nil
	case int64:
		return strconv.FormatInt(s, 10), nil
	case int:
		return strconv.Itoa(s), nil
	case uint64:
		return strconv.FormatUint(s, 10), nil
	case *big.Int:
		return s.String(), nil
	case decimal.Decimal:
		return s.Truncate(0).String(), nil
	case float64:
		return decimal.NewFromFloat(s).Truncate(0).String(), nil
	}
	return CanonicalSum(fmt.Sprint(v))
}

func literal(v any, tsLit func(ts string) string) string {
	switch x := v.(type) {
	case nil:
		return "NULL"
	case int:
		return strconv.Itoa(x)
	case int32:
		return strconv.FormatInt(int64(x), 10)
	case int64:
		return strconv.FormatInt(x, 10)
	case uint64:
		return strconv.FormatUint(x, 10)
	case *big.Int:
		return x.String()
	case decimal.Decimal:
		return x.String()
	case bool:
		if x {
			return "1"
		}
		return "0"
	case time.Time:
		return tsLit(x.UTC().Format(timestampLayout))
	case []byte:
		return quoteString(string(x))
	case string:
		return quoteString(x)
	case fmt.Stringer:
		return quoteString(x.String())
	}
	return quoteString(fmt.Sprint(v))
}

func quoteString(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}
