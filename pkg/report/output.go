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
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pgedge/xdiff/pkg/logger"
)

const (
	CheckMark = "✔"
	CrossMark = "✘"
)

func WriteJSON(w io.Writer, rep Report) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(rep); err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}
	return nil
}

// FileName is <dataset>_diffs-<timestamp>.json with dots turned into
// underscores.
func FileName(rep Report, at time.Time) string {
	return fmt.Sprintf("%s_diffs-%s.json",
		strings.ReplaceAll(strings.Join(rep.Dataset1, "_"), ".", "_"),
		at.Format("20060102150405"),
	)
}

// WriteFile writes the JSON report, and an HTML rendering next to it, into
// dir. It returns the JSON path.
func WriteFile(dir string, rep Report) (string, error) {
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create output directory %s: %w", dir, err)
	}
	path := filepath.Join(dir, FileName(rep, time.Now()))
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("failed to write diffs file: %w", err)
	}
	defer f.Close()
	if err := WriteJSON(f, rep); err != nil {
		return "", err
	}

	htmlPath, err := WriteHTML(path, rep)
	if err != nil {
		logger.Warn("Could not write HTML report: %v", err)
	} else {
		logger.Info("HTML report written to %s", htmlPath)
	}
	return path, nil
}

// Announce logs the outcome the way the CLI reports it.
func Announce(rep Report) {
	if rep.Result == ResultIdentical {
		logger.Info("%s TABLES MATCH", CheckMark)
		return
	}
	logger.Warn("%s TABLES DO NOT MATCH", CrossMark)
	logger.Warn("Found %d row(s) only in %s, %d row(s) only in %s and %d differing row(s)",
		len(rep.Rows.Exclusive.Dataset1), strings.Join(rep.Dataset1, "."),
		len(rep.Rows.Exclusive.Dataset2), strings.Join(rep.Dataset2, "."),
		len(rep.Rows.Diff))
}

// RenderText writes one line per reported row: "-" for rows only in
// dataset1, "+" for rows only in dataset2 and "~" for differing rows.
func RenderText(w io.Writer, rep Report) error {
	var lines []string
	for _, r := range rep.Rows.Exclusive.Dataset1 {
		lines = append(lines, "- "+exclusiveText(r))
	}
	for _, r := range rep.Rows.Exclusive.Dataset2 {
		lines = append(lines, "+ "+exclusiveText(r))
	}
	for _, r := range rep.Rows.Diff {
		lines = append(lines, "~ "+diffText(r))
	}
	for _, l := range lines {
		if _, err := fmt.Fprintln(w, l); err != nil {
			return err
		}
	}
	if rep.Summary != nil {
		s := rep.Summary
		_, err := fmt.Fprintf(w, "\n%s rows in %s, %s rows in %s\n%s exclusive to %s, %s exclusive to %s, %s updated, %s unchanged (%.2f%% different)\n",
			formatInt64WithCommas(s.Rows.Total.Dataset1), strings.Join(rep.Dataset1, "."),
			formatInt64WithCommas(s.Rows.Total.Dataset2), strings.Join(rep.Dataset2, "."),
			formatInt64WithCommas(s.Rows.Exclusive.Dataset1), strings.Join(rep.Dataset1, "."),
			formatInt64WithCommas(s.Rows.Exclusive.Dataset2), strings.Join(rep.Dataset2, "."),
			formatInt64WithCommas(s.Rows.Updated), formatInt64WithCommas(s.Rows.Unchanged),
			100*s.DiffPercent)
		return err
	}
	return nil
}

func exclusiveText(r Record) string {
	parts := make([]string, len(r))
	for i, f := range r {
		parts[i] = f.Column + "=" + stringifyCellValue(f.Cell.Value)
	}
	return strings.Join(parts, " ")
}

func diffText(r Record) string {
	parts := make([]string, len(r))
	for i, f := range r {
		if f.Cell.IsDiff {
			parts[i] = fmt.Sprintf("%s=%s->%s", f.Column, stringifyCellValue(f.Cell.Dataset1), stringifyCellValue(f.Cell.Dataset2))
		} else {
			parts[i] = f.Column + "=" + stringifyCellValue(f.Cell.Dataset1)
		}
	}
	return strings.Join(parts, " ")
}
