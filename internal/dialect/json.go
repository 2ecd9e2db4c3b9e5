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
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
)

// Structured values are compared as compact JSON text: no whitespace
// outside strings and object keys ordered shorter first, then bytewise,
// the order jsonb and MySQL JSON store them in. Dialects whose engine
// cannot reorder keys in SQL emit compact JSON in the engine's own key
// order; rows are re-checked with EquivalentJSON before a value is
// reported as different.

// jsonSpacePattern matches either a JSON string literal or one space.
// Replacing every match with the first group drops the separator spaces
// jsonb and MySQL put after ':' and ',' while keeping string contents.
const jsonSpacePattern = `("(?:[^"\\]|\\.)*")| `

// SQLiteJSONFunc is registered by the sqlite connector and returns
// CanonicalJSON of its argument, or NULL for NULL.
const SQLiteJSONFunc = "xdiff_json"

// CanonicalJSON rewrites a JSON document into the canonical form. Numbers
// keep the digits they were written with; duplicate keys keep the last
// value.
func CanonicalJSON(s string) (string, error) {
	return canonicalJSON(s, false)
}

// EquivalentJSON reports whether a and b are the same JSON document once
// key order, whitespace and number spelling are ignored. Invalid documents
// are only equivalent when the texts are identical.
func EquivalentJSON(a, b string) bool {
	if a == b {
		return true
	}
	ca, err := canonicalJSON(a, true)
	if err != nil {
		return false
	}
	cb, err := canonicalJSON(b, true)
	if err != nil {
		return false
	}
	return ca == cb
}

func canonicalJSON(s string, numbers bool) (string, error) {
	dec := json.NewDecoder(strings.NewReader(s))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return "", fmt.Errorf("invalid JSON value: %w", err)
	}
	if _, err := dec.Token(); err != io.EOF {
		return "", fmt.Errorf("invalid JSON value: trailing data after document")
	}
	var sb strings.Builder
	writeJSON(&sb, v, numbers)
	return sb.String(), nil
}

// jsonKeyLess orders object keys the way jsonb does.
func jsonKeyLess(a, b string) bool {
	if len(a) != len(b) {
		return len(a) < len(b)
	}
	return a < b
}

func writeJSON(sb *strings.Builder, v any, numbers bool) {
	switch x := v.(type) {
	case nil:
		sb.WriteString("null")
	case bool:
		if x {
			sb.WriteString("true")
		} else {
			sb.WriteString("false")
		}
	case json.Number:
		if numbers {
			if d, err := decimal.NewFromString(x.String()); err == nil {
				sb.WriteString(d.String())
				return
			}
		}
		sb.WriteString(x.String())
	case string:
		writeJSONString(sb, x)
	case []any:
		sb.WriteByte('[')
		for i, item := range x {
			if i > 0 {
				sb.WriteByte(',')
			}
			writeJSON(sb, item, numbers)
		}
		sb.WriteByte(']')
	case map[string]any:
		keys := make([]string, 0, len(x))
		for k := range x {
			keys = append(keys, k)
		}
		sort.Slice(keys, func(i, j int) bool { return jsonKeyLess(keys[i], keys[j]) })
		sb.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				sb.WriteByte(',')
			}
			writeJSONString(sb, k)
			sb.WriteByte(':')
			writeJSON(sb, x[k], numbers)
		}
		sb.WriteByte('}')
	}
}

// writeJSONString escapes like jsonb's text output: quote, backslash and
// control characters only, everything else as UTF-8.
func writeJSONString(sb *strings.Builder, s string) {
	sb.WriteByte('"')
	for _, r := range s {
		switch r {
		case '"':
			sb.WriteString(`\"`)
		case '\\':
			sb.WriteString(`\\`)
		case '\b':
			sb.WriteString(`\b`)
		case '\f':
			sb.WriteString(`\f`)
		case '\n':
			sb.WriteString(`\n`)
		case '\r':
			sb.WriteString(`\r`)
		case '\t':
			sb.WriteString(`\t`)
		default:
			if r < 0x20 {
				fmt.Fprintf(sb, `\u%04x`, r)
			} else {
				sb.WriteRune(r)
			}
		}
	}
	sb.WriteByte('"')
}
