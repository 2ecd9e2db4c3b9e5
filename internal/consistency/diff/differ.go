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
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/pgedge/xdiff/db/queries"
	"github.com/pgedge/xdiff/internal/dialect"
	"github.com/pgedge/xdiff/internal/infra/db"
	"github.com/pgedge/xdiff/pkg/logger"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

const (
	DefaultBisectionFactor      = 8
	DefaultBisectionThreshold   = 16384
	DefaultMaxDepth             = 16
	DefaultMaxConcurrency       = 8
	DefaultQueryRetries         = 3
	DefaultRetryInitialInterval = 250 * time.Millisecond
	DefaultQueryTimeout         = 2 * time.Minute
)

type Options struct {
	BisectionFactor      int
	BisectionThreshold   int64
	MaxDepth             int
	MaxConcurrency       int
	QueryRetries         int
	RetryInitialInterval time.Duration
	QueryTimeout         time.Duration
	Explain              bool
	Progress             Progress
}

func DefaultOptions() Options {
	return Options{
		BisectionFactor:      DefaultBisectionFactor,
		BisectionThreshold:   DefaultBisectionThreshold,
		MaxDepth:             DefaultMaxDepth,
		MaxConcurrency:       DefaultMaxConcurrency,
		QueryRetries:         DefaultQueryRetries,
		RetryInitialInterval: DefaultRetryInitialInterval,
		QueryTimeout:         DefaultQueryTimeout,
	}
}

func (o Options) validate() error {
	if o.BisectionFactor < 2 {
		return fmt.Errorf("bisection factor must be at least 2, got %d", o.BisectionFactor)
	}
	if o.BisectionThreshold < 1 {
		return fmt.Errorf("bisection threshold must be positive, got %d", o.BisectionThreshold)
	}
	if o.MaxDepth < 0 {
		return fmt.Errorf("max depth must not be negative, got %d", o.MaxDepth)
	}
	if o.MaxConcurrency < 1 {
		return fmt.Errorf("max concurrency must be at least 1, got %d", o.MaxConcurrency)
	}
	if o.QueryRetries < 0 {
		return fmt.Errorf("query retries must not be negative, got %d", o.QueryRetries)
	}
	return nil
}

// Differ runs checksum bisection between two table segments. A Differ
// holds per-run state and must not be shared between concurrent runs.
type Differ struct {
	opts     Options
	sem      *semaphore.Weighted
	gates    map[db.Conn]*semaphore.Weighted
	slowPath bool
	keyTypes []dialect.ColumnType
	colTypes []dialect.ColumnType

	segments  atomic.Int64
	checksums atomic.Int64
}

func NewDiffer(opts Options) (*Differ, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	if opts.Progress == nil {
		opts.Progress = noProgress{}
	}
	return &Differ{opts: opts}, nil
}

// Diff compares a and b over the union of their key ranges. On any fatal
// error no partial result is returned.
func (d *Differ) Diff(ctx context.Context, a, b TableSegment) (*DiffResultWrapper, error) {
	if err := checkPair(a, b); err != nil {
		return nil, err
	}
	d.sem = semaphore.NewWeighted(int64(d.opts.MaxConcurrency))
	d.gates = map[db.Conn]*semaphore.Weighted{}
	for _, c := range []db.Conn{a.Conn, b.Conn} {
		if _, ok := d.gates[c]; !ok {
			d.gates[c] = semaphore.NewWeighted(int64(max(c.MaxConcurrency(), 1)))
		}
	}
	d.slowPath = !a.dialect().SupportsChecksum() || !b.dialect().SupportsChecksum()
	d.keyTypes = make([]dialect.ColumnType, len(a.Keys))
	for i, k := range a.Keys {
		d.keyTypes[i] = k.Type
	}
	d.colTypes = make([]dialect.ColumnType, len(a.Columns))
	for i, c := range a.Columns {
		d.colTypes[i] = c.Type
	}
	d.segments.Store(0)
	d.checksums.Store(0)
	defer d.opts.Progress.Done()

	start := time.Now()
	logger.Info("Diffing %s against %s", a.Path, b.Path)
	if d.slowPath {
		logger.Warn("Checksums unavailable on %s or %s; comparing rows for every segment",
			a.dialect().Name(), b.dialect().Name())
	}
	d.probeClocks(ctx, a, b)

	root, err := d.rootRange(ctx, a, b)
	if err != nil {
		return nil, err
	}
	tree := &InfoTree{A: a, B: b}

	if root == nil {
		logger.Info("Both tables are empty under the given filter")
		tree.Root = newSegmentInfo(a, b, KeyRange{}, 0)
		tree.Root.Status = StatusIdentical
		tree.Root.ChecksumA, tree.Root.ChecksumB = "0", "0"
		return d.finish(tree, start)
	}

	tree.Root = newSegmentInfo(a, b, *root, 0)
	if d.opts.Explain {
		d.explain(ctx, tree.Root)
	}

	d.opts.Progress.AddTotal(1)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return d.compare(gctx, g, tree.Root) })
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return d.finish(tree, start)
}

func (d *Differ) finish(tree *InfoTree, start time.Time) (*DiffResultWrapper, error) {
	tree.Root.Aggregate()
	rows := tree.Root.DiffRows()
	stats, err := buildStats(tree, rows, runCounters{
		segments:  d.segments.Load(),
		checksums: d.checksums.Load(),
	})
	if err != nil {
		return nil, err
	}
	logger.Info("Diff of %s completed in %s: %d segment(s), %d differing row(s)",
		tree.A.Path, time.Since(start).Round(time.Millisecond), stats["segments_checked"], len(rows))
	return &DiffResultWrapper{Tree: tree, Rows: rows, Stats: stats}, nil
}

func checkPair(a, b TableSegment) error {
	if a.Conn == nil || b.Conn == nil {
		return fmt.Errorf("both segments need a connection")
	}
	if len(a.Keys) == 0 {
		return fmt.Errorf("at least one key column is required")
	}
	if len(a.Keys) != len(b.Keys) {
		return fmt.Errorf("key column count differs: %d vs %d", len(a.Keys), len(b.Keys))
	}
	if len(a.Columns) != len(b.Columns) {
		return fmt.Errorf("compared column count differs: %d vs %d", len(a.Columns), len(b.Columns))
	}
	for i := range a.Keys {
		ta, tb := a.Keys[i].Type, b.Keys[i].Type
		if ta.Kind != tb.Kind && !(ta.IsTemporal() && tb.IsTemporal()) {
			return fmt.Errorf("key column %s is %s on one side and %s on the other",
				a.Keys[i].Name, a.Keys[i].Type, b.Keys[i].Type)
		}
		if !a.Keys[i].Type.Orderable() {
			return fmt.Errorf("key column %s of type %s cannot be ordered", a.Keys[i].Name, a.Keys[i].Type)
		}
	}
	return nil
}

// query runs one statement for a segment under the global and per-side
// limits, retrying transient failures with exponential backoff. Errors
// building the statement are returned as is.
func (d *Differ) query(ctx context.Context, seg TableSegment, build func() (string, error)) (*db.Result, error) {
	sql, err := build()
	if err != nil {
		return nil, err
	}

	if err := d.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer d.sem.Release(1)
	gate := d.gates[seg.Conn]
	if err := gate.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer gate.Release(1)

	var res *db.Result
	attempts := 0
	op := func() error {
		if err := ctx.Err(); err != nil {
			return backoff.Permanent(err)
		}
		attempts++
		qctx, cancel := ctx, context.CancelFunc(func() {})
		if d.opts.QueryTimeout > 0 {
			qctx, cancel = context.WithTimeout(ctx, d.opts.QueryTimeout)
		}
		defer cancel()
		r, err := seg.run(qctx, sql)
		if err != nil {
			return err
		}
		res = r
		return nil
	}

	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = d.opts.RetryInitialInterval
	eb.MaxElapsedTime = 0
	policy := backoff.WithContext(backoff.WithMaxRetries(eb, uint64(d.opts.QueryRetries)), ctx)
	notify := func(err error, wait time.Duration) {
		logger.Warn("[%s] Query for segment %s failed (attempt %d), retrying in %s: %v",
			seg.Side, seg.Range, attempts, wait, err)
	}

	if err := backoff.RetryNotify(op, policy, notify); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		logger.Debug("[%s] Giving up on %s after %d attempt(s). SQL: %s", seg.Side, seg.Range, attempts, sql)
		return nil, &SegmentQueryFailedError{
			Table:    seg.Path.String(),
			Side:     seg.Side,
			Range:    seg.Range,
			Attempts: attempts,
			Err:      err,
		}
	}
	return res, nil
}

// both runs fn for the A and B segment of a node concurrently.
func both[T any](ctx context.Context, s *SegmentInfo, fn func(ctx context.Context, seg TableSegment) (T, error)) (T, T, error) {
	var ra, rb T
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		ra, err = fn(gctx, s.A)
		return err
	})
	g.Go(func() (err error) {
		rb, err = fn(gctx, s.B)
		return err
	})
	err := g.Wait()
	return ra, rb, err
}

type checksum struct {
	count int64
	sum   string
}

func (d *Differ) checksum(ctx context.Context, seg TableSegment) (checksum, error) {
	d.checksums.Add(1)
	res, err := d.query(ctx, seg, seg.ChecksumQuery)
	if err != nil {
		return checksum{}, err
	}
	if len(res.Rows) != 1 || len(res.Rows[0]) != 2 {
		return checksum{}, fmt.Errorf("[%s] checksum query for %s returned an unexpected shape", seg.Side, seg.Range)
	}
	count, err := parseCount(res.Rows[0][0])
	if err != nil {
		return checksum{}, err
	}
	sum, err := dialect.CanonicalSum(res.Rows[0][1])
	if err != nil {
		return checksum{}, err
	}
	if count == 0 {
		sum = "0"
	}
	return checksum{count: count, sum: sum}, nil
}

func (d *Differ) count(ctx context.Context, seg TableSegment) (checksum, error) {
	res, err := d.query(ctx, seg, seg.CountQuery)
	if err != nil {
		return checksum{}, err
	}
	v, err := res.Scalar()
	if err != nil {
		return checksum{}, err
	}
	n, err := parseCount(v)
	return checksum{count: n}, err
}

// compare settles one node: identical, bisected into children queued on g,
// or materialized.
func (d *Differ) compare(ctx context.Context, g *errgroup.Group, s *SegmentInfo) error {
	defer d.opts.Progress.Increment()
	d.segments.Add(1)

	measure := d.checksum
	if d.slowPath {
		measure = d.count
	}
	ca, cb, err := both(ctx, s, measure)
	if err != nil {
		return err
	}
	s.CountA, s.CountB = ca.count, cb.count
	s.ChecksumA, s.ChecksumB = ca.sum, cb.sum

	if !d.slowPath && ca == cb {
		s.Status = StatusIdentical
		logger.Debug("✓ Match in %s at depth %d (%d rows)", s.Range, s.Depth, ca.count)
		return nil
	}
	if d.slowPath && ca.count == 0 && cb.count == 0 {
		s.Status = StatusIdentical
		return nil
	}

	larger := max(ca.count, cb.count)
	if larger > d.opts.BisectionThreshold && s.Depth < d.opts.MaxDepth {
		children, err := d.split(ctx, s, ca.count >= cb.count)
		if err != nil {
			return err
		}
		if len(children) > 1 {
			if !d.slowPath {
				logger.Debug("✗ Mismatch in %s at depth %d (A: %d rows, B: %d rows). Bisecting into %d segments.",
					s.Range, s.Depth, ca.count, cb.count, len(children))
			}
			s.Children = children
			s.Status = StatusBisected
			d.opts.Progress.AddTotal(int64(len(children)))
			for _, c := range children {
				g.Go(func() error { return d.compare(ctx, g, c) })
			}
			return nil
		}
		logger.Debug("Segment %s cannot be split further", s.Range)
	}

	if !d.slowPath {
		logger.Debug("✗ Mismatch in %s at depth %d (A: %d rows, B: %d rows). Fetching rows.",
			s.Range, s.Depth, ca.count, cb.count)
	}
	return d.materialize(ctx, s)
}

// split computes one set of boundaries for a node and applies it to both
// sides. Count-based boundaries are sampled from the larger side.
func (d *Differ) split(ctx context.Context, s *SegmentInfo, fromA bool) ([]*SegmentInfo, error) {
	n := d.opts.BisectionFactor
	points, ok := keySpacePoints(s.Range, n)
	if !ok {
		src, count := s.B, s.CountB
		if fromA {
			src, count = s.A, s.CountA
		}
		var err error
		if points, err = d.countPoints(ctx, src, count, n); err != nil {
			return nil, err
		}
	}

	ranges := splitRanges(s.Range, points)
	out := make([]*SegmentInfo, len(ranges))
	for i, r := range ranges {
		out[i] = newSegmentInfo(s.A, s.B, r, s.Depth+1)
	}
	return out, nil
}

func (d *Differ) countPoints(ctx context.Context, seg TableSegment, count int64, n int) ([]Key, error) {
	offsets := countOffsets(count, n)
	keys := make([]Key, len(offsets))
	g, gctx := errgroup.WithContext(ctx)
	for i, off := range offsets {
		g.Go(func() error {
			res, err := d.query(gctx, seg, func() (string, error) { return seg.KeyAtOffsetQuery(off) })
			if err != nil {
				return err
			}
			if len(res.Rows) == 0 {
				return nil
			}
			k, err := seg.keyFromRow(res.Rows[0])
			if err != nil {
				return err
			}
			keys[i] = k
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var points []Key
	for _, k := range keys {
		if k != nil {
			points = append(points, k)
		}
	}
	return cleanPoints(seg.Range, points), nil
}

func (d *Differ) materialize(ctx context.Context, s *SegmentInfo) error {
	fetch := func(ctx context.Context, seg TableSegment) ([]Row, error) {
		res, err := d.query(ctx, seg, seg.RowsQuery)
		if err != nil {
			return nil, err
		}
		return parseRows(res.Rows, len(seg.Keys), len(seg.Columns))
	}
	rowsA, rowsB, err := both(ctx, s, fetch)
	if err != nil {
		return err
	}

	s.Status = StatusMaterialized
	s.CountA, s.CountB = int64(len(rowsA)), int64(len(rowsB))
	s.Rows = DiffRows(d.keyTypes, d.colTypes, rowsA, rowsB)
	logger.Debug("[A vs B] Range %s: A=%d, B=%d, different=%d", s.Range, len(rowsA), len(rowsB), len(s.Rows))
	return nil
}

// rootRange spans the smallest and largest key of both sides. It is nil
// when neither side has rows.
func (d *Differ) rootRange(ctx context.Context, a, b TableSegment) (*KeyRange, error) {
	type edges struct{ first, last Key }
	edge := func(ctx context.Context, seg TableSegment) (edges, error) {
		var e edges
		for _, last := range []bool{false, true} {
			res, err := d.query(ctx, seg, func() (string, error) { return seg.EdgeKeyQuery(last) })
			if err != nil {
				return e, err
			}
			if len(res.Rows) == 0 {
				return edges{}, nil
			}
			k, err := seg.keyFromRow(res.Rows[0])
			if err != nil {
				return e, err
			}
			if last {
				e.last = k
			} else {
				e.first = k
			}
		}
		return e, nil
	}

	root := &SegmentInfo{A: a, B: b}
	ea, eb, err := both(ctx, root, edge)
	if err != nil {
		return nil, err
	}
	switch {
	case ea.first == nil && eb.first == nil:
		return nil, nil
	case ea.first == nil:
		return &KeyRange{Min: eb.first, Max: eb.last, MaxInclusive: true}, nil
	case eb.first == nil:
		return &KeyRange{Min: ea.first, Max: ea.last, MaxInclusive: true}, nil
	}
	r := KeyRange{Min: ea.first, Max: ea.last, MaxInclusive: true}
	if CompareKeys(eb.first, r.Min) < 0 {
		r.Min = eb.first
	}
	if CompareKeys(eb.last, r.Max) > 0 {
		r.Max = eb.last
	}
	return &r, nil
}

// probeClocks logs each side's current time. Failures are not fatal.
func (d *Differ) probeClocks(ctx context.Context, a, b TableSegment) {
	probe := func(ctx context.Context, seg TableSegment) (time.Time, error) {
		res, err := d.query(ctx, seg, func() (string, error) {
			return queries.CurrentTimestampSQL(seg.dialect().CurrentTimestamp())
		})
		if err != nil {
			return time.Time{}, err
		}
		v, err := res.Scalar()
		if err != nil {
			return time.Time{}, err
		}
		t, err := coerceKeyValue(v, dialect.Timestamp(dialect.MaxTimestampPrecision, false))
		if err != nil {
			return time.Time{}, err
		}
		return t.(time.Time), nil
	}
	ta, tb, err := both(ctx, &SegmentInfo{A: a, B: b}, probe)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			logger.Warn("Could not read server clocks: %v", err)
		}
		return
	}
	logger.Debug("Server clocks: A=%s B=%s (skew %s)", ta.Format(time.RFC3339Nano), tb.Format(time.RFC3339Nano), ta.Sub(tb))
}

func (d *Differ) explain(ctx context.Context, s *SegmentInfo) {
	show := func(ctx context.Context, seg TableSegment) (string, error) {
		q, err := seg.ChecksumQuery()
		if err != nil {
			return "", err
		}
		stmt := seg.dialect().ExplainAsText(q)
		if stmt == "" {
			return "", nil
		}
		res, err := d.query(ctx, seg, func() (string, error) { return stmt, nil })
		if err != nil {
			return "", err
		}
		var plan string
		for _, r := range res.Rows {
			for _, v := range r {
				if t := textValue(v); t != nil {
					plan += *t + "\n"
				}
			}
		}
		return plan, nil
	}
	pa, pb, err := both(ctx, s, show)
	if err != nil {
		logger.Warn("Explain failed: %v", err)
		return
	}
	for i, plan := range []string{pa, pb} {
		side := []string{s.A.Side, s.B.Side}[i]
		if plan == "" {
			logger.Info("[%s] Explain is not supported by this engine", side)
			continue
		}
		logger.Info("[%s] Checksum query plan:\n%s", side, plan)
	}
}
