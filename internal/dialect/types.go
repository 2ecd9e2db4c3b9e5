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
	"fmt"
	"math"
	"strings"
)

const (
	MD5HexDigits            = 32
	ChecksumHexDigits       = 12
	ChecksumOffset    int64 = 1<<(ChecksumHexDigits*4-1) - 1
	// Fractional part of a normalized timestamp starts after "YYYY-MM-DD HH:MM:SS."
	TimestampPrecisionPos = 20
	MaxTimestampPrecision = 6
	DefaultTypeDepthLimit = 8
)

type Kind int

const (
	KindUnknown Kind = iota
	KindInteger
	KindFloat
	KindDecimal
	KindText
	KindUUID
	KindBoolean
	KindTimestamp
	KindTimestampTZ
	KindJSON
	KindArray
	KindStruct
)

var kindNames = map[Kind]string{
	KindUnknown:     "unknown",
	KindInteger:     "integer",
	KindFloat:       "float",
	KindDecimal:     "decimal",
	KindText:        "text",
	KindUUID:        "uuid",
	KindBoolean:     "boolean",
	KindTimestamp:   "timestamp",
	KindTimestampTZ: "timestamptz",
	KindJSON:        "json",
	KindArray:       "array",
	KindStruct:      "struct",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

type StructField struct {
	Name string
	Type ColumnType
}

// ColumnType is the engine-independent shape of a column. Precision is the
// number of fractional digits kept by Float, Decimal and the timestamp kinds.
type ColumnType struct {
	Kind      Kind
	Precision int
	Rounds    bool
	Item      *ColumnType
	Fields    []StructField
}

func Integer() ColumnType { return ColumnType{Kind: KindInteger} }
func Text() ColumnType    { return ColumnType{Kind: KindText} }
func UUID() ColumnType    { return ColumnType{Kind: KindUUID} }
func Boolean() ColumnType { return ColumnType{Kind: KindBoolean} }
func JSON() ColumnType    { return ColumnType{Kind: KindJSON} }

func Decimal(scale int) ColumnType {
	return ColumnType{Kind: KindDecimal, Precision: scale}
}

// Float keeps the decimal digits a binary mantissa of the given width can
// represent exactly, minus two for rounding noise between engines.
func Float(mantissaBits int) ColumnType {
	return ColumnType{Kind: KindFloat, Precision: FloatDigits(mantissaBits)}
}

func FloatDigits(bits int) int {
	p := int(math.Floor(float64(bits)*math.Log10(2))) - 2
	if p < 0 {
		return 0
	}
	return p
}

func Timestamp(precision int, rounds bool) ColumnType {
	return ColumnType{Kind: KindTimestamp, Precision: clampPrecision(precision), Rounds: rounds}
}

func TimestampTZ(precision int, rounds bool) ColumnType {
	return ColumnType{Kind: KindTimestampTZ, Precision: clampPrecision(precision), Rounds: rounds}
}

func Array(item ColumnType) ColumnType {
	return ColumnType{Kind: KindArray, Item: &item}
}

func Struct(fields []StructField) ColumnType {
	cp := make([]StructField, len(fields))
	copy(cp, fields)
	return ColumnType{Kind: KindStruct, Fields: cp}
}

func clampPrecision(p int) int {
	if p < 0 {
		return 0
	}
	if p > MaxTimestampPrecision {
		return MaxTimestampPrecision
	}
	return p
}

func (t ColumnType) IsTemporal() bool {
	return t.Kind == KindTimestamp || t.Kind == KindTimestampTZ
}

func (t ColumnType) IsNumeric() bool {
	return t.Kind == KindInteger || t.Kind == KindFloat || t.Kind == KindDecimal
}

func (t ColumnType) IsStructured() bool {
	return t.Kind == KindJSON || t.Kind == KindArray || t.Kind == KindStruct
}

// Orderable reports whether values of this type can serve as a segment key.
func (t ColumnType) Orderable() bool {
	switch t.Kind {
	case KindInteger, KindDecimal, KindText, KindUUID, KindTimestamp, KindTimestampTZ:
		return true
	}
	return false
}

func (t ColumnType) String() string {
	switch t.Kind {
	case KindDecimal, KindFloat:
		return fmt.Sprintf("%s(%d)", t.Kind, t.Precision)
	case KindTimestamp, KindTimestampTZ:
		return fmt.Sprintf("%s(%d)", t.Kind, t.Precision)
	case KindArray:
		if t.Item == nil {
			return "array(unknown)"
		}
		return "array(" + t.Item.String() + ")"
	case KindStruct:
		parts := make([]string, 0, len(t.Fields))
		for _, f := range t.Fields {
			parts = append(parts, f.Name+":"+f.Type.String())
		}
		return "struct<" + strings.Join(parts, ",") + ">"
	}
	return t.Kind.String()
}

// RawColumnInfo is one row of an engine's information_schema columns query.
type RawColumnInfo struct {
	Name              string
	DataType          string
	DatetimePrecision *int
	NumericPrecision  *int
	NumericScale      *int
}

func intOr(p *int, def int) int {
	if p == nil {
		return def
	}
	return *p
}
