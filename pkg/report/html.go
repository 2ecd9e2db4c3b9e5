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

package report

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"html/template"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

//go:embed templates/report.html
var htmlReportTemplate string

type htmlCell struct {
	Column string
	IsKey  bool
	AHTML  template.HTML
	AClass string
	BHTML  template.HTML
	BClass string
}

type htmlRow struct {
	Cells []htmlCell
}

type htmlSection struct {
	Title string
	Rows  []htmlRow
}

type htmlItem struct {
	Label string
	Value string
}

type htmlData struct {
	Title    string
	Result   string
	Dataset1 string
	Dataset2 string
	Items    []htmlItem
	Sections []htmlSection
	RawJSON  template.JS
}

// WriteHTML renders rep next to jsonPath, swapping the extension.
func WriteHTML(jsonPath string, rep Report) (string, error) {
	out, err := RenderHTML(rep)
	if err != nil {
		return "", err
	}
	htmlPath := strings.TrimSuffix(jsonPath, filepath.Ext(jsonPath)) + ".html"
	if err := os.WriteFile(htmlPath, out, 0o644); err != nil {
		return "", fmt.Errorf("failed to write HTML diff report: %w", err)
	}
	return htmlPath, nil
}

func RenderHTML(rep Report) ([]byte, error) {
	raw, err := json.Marshal(rep)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal report for HTML embedding: %w", err)
	}

	data := htmlData{
		Title:    "Table diff: " + strings.Join(rep.Dataset1, ".") + " vs " + strings.Join(rep.Dataset2, "."),
		Result:   rep.Result,
		Dataset1: strings.Join(rep.Dataset1, "."),
		Dataset2: strings.Join(rep.Dataset2, "."),
		RawJSON:  template.JS(raw),
	}
	if rep.Model != "" {
		data.Items = append(data.Items, htmlItem{"Model", rep.Model})
	}
	if s := rep.Summary; s != nil {
		data.Items = append(data.Items,
			htmlItem{"Rows in " + data.Dataset1, formatInt64WithCommas(s.Rows.Total.Dataset1)},
			htmlItem{"Rows in " + data.Dataset2, formatInt64WithCommas(s.Rows.Total.Dataset2)},
			htmlItem{"Updated", formatInt64WithCommas(s.Rows.Updated)},
			htmlItem{"Unchanged", formatInt64WithCommas(s.Rows.Unchanged)},
			htmlItem{"Segments Checked", formatInt64WithCommas(s.Segments)},
			htmlItem{"Different", strconv.FormatFloat(100*s.DiffPercent, 'f', 2, 64) + "%"},
		)
	}

	if len(rep.Rows.Diff) > 0 {
		sec := htmlSection{Title: fmt.Sprintf("Differing rows (%s)", formatInt64WithCommas(int64(len(rep.Rows.Diff))))}
		for _, r := range rep.Rows.Diff {
			var row htmlRow
			for _, f := range r {
				a, b := stringifyCellValue(f.Cell.Dataset1), stringifyCellValue(f.Cell.Dataset2)
				c := htmlCell{Column: f.Column, IsKey: f.Cell.IsPK}
				c.AHTML, c.BHTML = highlightDifference(a, b)
				if f.Cell.IsDiff {
					c.AClass, c.BClass = "value-diff", "value-diff"
				}
				row.Cells = append(row.Cells, c)
			}
			sec.Rows = append(sec.Rows, row)
		}
		data.Sections = append(data.Sections, sec)
	}
	data.Sections = appendMissing(data.Sections, "Missing in "+data.Dataset2, rep.Rows.Exclusive.Dataset1, true)
	data.Sections = appendMissing(data.Sections, "Missing in "+data.Dataset1, rep.Rows.Exclusive.Dataset2, false)

	tmpl, err := template.New("diffReport").Parse(htmlReportTemplate)
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML template: %w", err)
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return nil, fmt.Errorf("failed to render HTML diff report: %w", err)
	}
	return buf.Bytes(), nil
}

func appendMissing(sections []htmlSection, title string, rows []Record, presentInA bool) []htmlSection {
	if len(rows) == 0 {
		return sections
	}
	sec := htmlSection{Title: fmt.Sprintf("%s (%s)", title, formatInt64WithCommas(int64(len(rows))))}
	for _, r := range rows {
		var row htmlRow
		for _, f := range r {
			c := htmlCell{Column: f.Column, IsKey: f.Cell.IsPK}
			value := plainHTML(stringifyCellValue(f.Cell.Value))
			if presentInA {
				c.AHTML, c.BHTML, c.BClass = value, plainHTML("MISSING"), "missing"
			} else {
				c.AHTML, c.AClass, c.BHTML = plainHTML("MISSING"), "missing", value
			}
			row.Cells = append(row.Cells, c)
		}
		sec.Rows = append(sec.Rows, row)
	}
	return append(sections, sec)
}

// highlightDifference wraps the differing middle of a and b, keeping the
// common prefix and suffix plain.
func highlightDifference(a, b string) (template.HTML, template.HTML) {
	if a == b {
		esc := plainHTML(a)
		return esc, esc
	}
	ra, rb := []rune(a), []rune(b)

	prefix := 0
	for prefix < min(len(ra), len(rb)) && ra[prefix] == rb[prefix] {
		prefix++
	}
	suffix := 0
	for suffix < len(ra)-prefix && suffix < len(rb)-prefix && ra[len(ra)-suffix-1] == rb[len(rb)-suffix-1] {
		suffix++
	}

	pa, sa, pb, sb := prefix, suffix, prefix, suffix
	if len(ra)-pa-sa <= 0 {
		pa, sa = 0, 0
	}
	if len(rb)-pb-sb <= 0 {
		pb, sb = 0, 0
	}
	return renderHighlighted(ra, pa, sa), renderHighlighted(rb, pb, sb)
}

func renderHighlighted(value []rune, prefix, suffix int) template.HTML {
	var sb strings.Builder
	if prefix > 0 {
		sb.WriteString(template.HTMLEscapeString(string(value[:prefix])))
	}
	if mid := len(value) - prefix - suffix; mid > 0 {
		sb.WriteString(`<span class="diff-chunk">`)
		sb.WriteString(template.HTMLEscapeString(string(value[prefix : prefix+mid])))
		sb.WriteString(`</span>`)
	}
	if suffix > 0 {
		sb.WriteString(template.HTMLEscapeString(string(value[len(value)-suffix:])))
	}
	return template.HTML(sb.String())
}

func plainHTML(value string) template.HTML {
	return template.HTML(template.HTMLEscapeString(value))
}

func stringifyCellValue(value any) string {
	switch v := value.(type) {
	case nil:
		return "NULL"
	case string:
		return v
	case fmt.Stringer:
		return v.String()
	}
	if b, err := json.Marshal(value); err == nil {
		return string(b)
	}
	return fmt.Sprintf("%v", value)
}

func formatInt64WithCommas(value int64) string {
	sign := ""
	if value < 0 {
		sign, value = "-", -value
	}
	s := strconv.FormatInt(value, 10)
	if len(s) <= 3 {
		return sign + s
	}
	head := len(s) % 3
	if head == 0 {
		head = 3
	}
	var sb strings.Builder
	sb.WriteString(s[:head])
	for i := head; i < len(s); i += 3 {
		sb.WriteByte(',')
		sb.WriteString(s[i : i+3])
	}
	return sign + sb.String()
}
