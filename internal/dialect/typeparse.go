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
	"strconv"
	"strings"
)

// TypeExpr is the syntax tree of a native type string such as
// "array(struct<a:int,b:varchar(10)>)" or "Nullable(DateTime64(3, 'UTC'))".
// Name is lower-cased with runs of whitespace collapsed, and includes any
// trailing words ("timestamp with time zone").
type TypeExpr struct {
	Name   string
	Params []string
	Args   []TypeExpr
	Fields []FieldExpr
}

type FieldExpr struct {
	Name string
	Type TypeExpr
}

func (e TypeExpr) IntParam(i int) (int, bool) {
	if i >= len(e.Params) {
		return 0, false
	}
	n, err := strconv.Atoi(e.Params[i])
	if err != nil {
		return 0, false
	}
	return n, true
}

func (e TypeExpr) String() string {
	var sb strings.Builder
	sb.WriteString(e.Name)
	if len(e.Params) > 0 || len(e.Args) > 0 || len(e.Fields) > 0 {
		parts := append([]string{}, e.Params...)
		for _, a := range e.Args {
			parts = append(parts, a.String())
		}
		for _, f := range e.Fields {
			parts = append(parts, f.Name+":"+f.Type.String())
		}
		sb.WriteString("(" + strings.Join(parts, ",") + ")")
	}
	return sb.String()
}

type typeParser struct {
	src   string
	pos   int
	limit int
}

// ParseTypeExpr parses a native type string. Nesting beyond depthLimit is
// rejected; a non-positive limit selects DefaultTypeDepthLimit.
func ParseTypeExpr(s string, depthLimit int) (TypeExpr, error) {
	if depthLimit <= 0 {
		depthLimit = DefaultTypeDepthLimit
	}
	p := &typeParser{src: s, limit: depthLimit}
	t, err := p.parseType(0)
	if err != nil {
		return TypeExpr{}, err
	}
	p.skipSpace()
	if p.pos != len(p.src) {
		return TypeExpr{}, p.errorf("unexpected %q", p.src[p.pos:])
	}
	return t, nil
}

func (p *typeParser) errorf(format string, args ...any) error {
	return fmt.Errorf("parse type %q at offset %d: %s", p.src, p.pos, fmt.Sprintf(format, args...))
}

func (p *typeParser) parseType(depth int) (TypeExpr, error) {
	if depth > p.limit {
		return TypeExpr{}, p.errorf("nesting exceeds %d levels", p.limit)
	}
	p.skipSpace()
	name := p.words()
	if name == "" {
		return TypeExpr{}, p.errorf("expected a type name")
	}
	t := TypeExpr{Name: strings.ToLower(name)}

	p.skipSpace()
	if p.peek() == '(' {
		p.pos++
		if err := p.parseList(&t, ')', depth); err != nil {
			return TypeExpr{}, err
		}
	}
	p.skipSpace()
	if p.peek() == '<' {
		p.pos++
		if err := p.parseList(&t, '>', depth); err != nil {
			return TypeExpr{}, err
		}
	}
	p.skipSpace()
	if rest := p.words(); rest != "" {
		t.Name += " " + strings.ToLower(rest)
	}

	for {
		p.skipSpace()
		if !strings.HasPrefix(p.src[p.pos:], "[]") {
			break
		}
		p.pos += 2
		if depth+1 > p.limit {
			return TypeExpr{}, p.errorf("nesting exceeds %d levels", p.limit)
		}
		t = TypeExpr{Name: "array", Args: []TypeExpr{t}}
	}
	return t, nil
}

func (p *typeParser) parseList(t *TypeExpr, closer byte, depth int) error {
	fields := t.Name == "struct" || t.Name == "row" || t.Name == "tuple"
	for {
		p.skipSpace()
		if p.pos >= len(p.src) {
			return p.errorf("missing %q", closer)
		}
		if p.peek() == closer {
			p.pos++
			return nil
		}

		switch c := p.peek(); {
		case c == '\'' || c == '-' || isDigit(c):
			param, err := p.param()
			if err != nil {
				return err
			}
			t.Params = append(t.Params, param)
		case fields && p.fieldAhead():
			name := p.ident()
			p.skipSpace()
			if p.peek() == ':' {
				p.pos++
			}
			ft, err := p.parseType(depth + 1)
			if err != nil {
				return err
			}
			t.Fields = append(t.Fields, FieldExpr{Name: name, Type: ft})
		default:
			arg, err := p.parseType(depth + 1)
			if err != nil {
				return err
			}
			t.Args = append(t.Args, arg)
		}

		p.skipSpace()
		switch p.peek() {
		case ',':
			p.pos++
		case closer:
		default:
			return p.errorf("expected ',' or %q", closer)
		}
	}
}

// fieldAhead reports whether the list entry at the cursor is "name:type" or
// "name type" rather than a bare type.
func (p *typeParser) fieldAhead() bool {
	save := p.pos
	defer func() { p.pos = save }()
	if p.ident() == "" {
		return false
	}
	gap := p.pos
	p.skipSpace()
	if p.peek() == ':' {
		return true
	}
	return p.pos > gap && isIdentStart(p.peek())
}

func (p *typeParser) param() (string, error) {
	if p.peek() == '\'' {
		p.pos++
		end := strings.IndexByte(p.src[p.pos:], '\'')
		if end < 0 {
			return "", p.errorf("unterminated quote")
		}
		s := p.src[p.pos : p.pos+end]
		p.pos += end + 1
		return s, nil
	}
	start := p.pos
	if p.peek() == '-' {
		p.pos++
	}
	for p.pos < len(p.src) && (isDigit(p.src[p.pos]) || p.src[p.pos] == '.') {
		p.pos++
	}
	return p.src[start:p.pos], nil
}

func (p *typeParser) ident() string {
	if q := p.peek(); q == '"' || q == '`' {
		end := strings.IndexByte(p.src[p.pos+1:], q)
		if end < 0 {
			return ""
		}
		s := p.src[p.pos+1 : p.pos+1+end]
		p.pos += end + 2
		return s
	}
	start := p.pos
	for p.pos < len(p.src) && isIdentByte(p.src[p.pos]) {
		p.pos++
	}
	return p.src[start:p.pos]
}

// words reads space separated identifiers up to the next delimiter.
func (p *typeParser) words() string {
	start, end := p.pos, p.pos
	for p.pos < len(p.src) {
		c := p.src[p.pos]
		switch {
		case isIdentByte(c):
			p.pos++
			end = p.pos
			continue
		case c == ' ' || c == '\t':
			p.pos++
			continue
		}
		break
	}
	p.pos = end
	return strings.Join(strings.Fields(p.src[start:end]), " ")
}

func (p *typeParser) skipSpace() {
	for p.pos < len(p.src) && (p.src[p.pos] == ' ' || p.src[p.pos] == '\t' || p.src[p.pos] == '\n') {
		p.pos++
	}
}

func (p *typeParser) peek() byte {
	if p.pos >= len(p.src) {
		return 0
	}
	return p.src[p.pos]
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

func isIdentStart(c byte) bool {
	return c == '_' || c == '"' || c == '`' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isIdentByte(c byte) bool {
	return c == '_' || isDigit(c) || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}
