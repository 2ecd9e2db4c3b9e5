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
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/cbergoon/merkletree"
)

type SegmentStatus string

const (
	StatusPending      SegmentStatus = "pending"
	StatusIdentical    SegmentStatus = "identical"
	StatusBisected     SegmentStatus = "bisected"
	StatusMaterialized SegmentStatus = "materialized"
)

// SegmentInfo is one node of the result tree. Each node is written by the
// goroutine that compares it; children are kept in range order.
type SegmentInfo struct {
	A     TableSegment
	B     TableSegment
	Range KeyRange
	Depth int

	ChecksumA string
	ChecksumB string
	CountA    int64
	CountB    int64
	Status    SegmentStatus

	Children []*SegmentInfo
	Rows     []DiffRow

	RowsChecked   int64
	RowsDifferent int64
}

func newSegmentInfo(a, b TableSegment, r KeyRange, depth int) *SegmentInfo {
	return &SegmentInfo{
		A:      a.WithRange(r),
		B:      b.WithRange(r),
		Range:  r,
		Depth:  depth,
		Status: StatusPending,
	}
}

// Matched reports whether both sides agreed without row comparison.
func (s *SegmentInfo) Matched() bool { return s.Status == StatusIdentical }

// Aggregate fills RowsChecked and RowsDifferent bottom-up.
func (s *SegmentInfo) Aggregate() {
	if len(s.Children) == 0 {
		s.RowsChecked = max(s.CountA, s.CountB)
		s.RowsDifferent = int64(len(s.Rows))
		return
	}
	s.RowsChecked, s.RowsDifferent = 0, 0
	for _, c := range s.Children {
		c.Aggregate()
		s.RowsChecked += c.RowsChecked
		s.RowsDifferent += c.RowsDifferent
	}
}

// Walk visits nodes depth first in range order.
func (s *SegmentInfo) Walk(fn func(*SegmentInfo)) {
	fn(s)
	for _, c := range s.Children {
		c.Walk(fn)
	}
}

// MaxDepth is the deepest level reached below and including s.
func (s *SegmentInfo) MaxDepth() int {
	d := s.Depth
	for _, c := range s.Children {
		d = max(d, c.MaxDepth())
	}
	return d
}

// DiffRows flattens the diff rows of every leaf in range order.
func (s *SegmentInfo) DiffRows() []DiffRow {
	var out []DiffRow
	s.Walk(func(n *SegmentInfo) {
		out = append(out, n.Rows...)
	})
	return out
}

type InfoTree struct {
	Root *SegmentInfo
	A    TableSegment
	B    TableSegment
}

type leafContent struct {
	summary string
}

func (l leafContent) CalculateHash() ([]byte, error) {
	h := sha256.Sum256([]byte(l.summary))
	return h[:], nil
}

func (l leafContent) Equals(other merkletree.Content) (bool, error) {
	o, ok := other.(leafContent)
	if !ok {
		return false, nil
	}
	return l.summary == o.summary, nil
}

func (s *SegmentInfo) leafSummary() string {
	return fmt.Sprintf("%s|%s|%d:%s|%d:%s|%d",
		s.Range, s.Status, s.CountA, s.ChecksumA, s.CountB, s.ChecksumB, len(s.Rows))
}

// Digest is the hex merkle root over the tree's leaves in range order. Two
// runs over unchanged data produce the same digest.
func (t *InfoTree) Digest() (string, error) {
	if t == nil || t.Root == nil {
		return "", fmt.Errorf("empty result tree")
	}
	var leaves []merkletree.Content
	t.Root.Walk(func(n *SegmentInfo) {
		if len(n.Children) == 0 {
			leaves = append(leaves, leafContent{summary: n.leafSummary()})
		}
	})
	tree, err := merkletree.NewTree(leaves)
	if err != nil {
		return "", fmt.Errorf("failed to build merkle tree: %w", err)
	}
	return hex.EncodeToString(tree.MerkleRoot()), nil
}
