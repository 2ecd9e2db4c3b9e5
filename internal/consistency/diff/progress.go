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
	"io"
	"sync"

	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"
)

// Progress receives segment accounting as the tree grows.
type Progress interface {
	AddTotal(n int64)
	Increment()
	Done()
}

type noProgress struct{}

func (noProgress) AddTotal(int64) {}
func (noProgress) Increment()     {}
func (noProgress) Done()          {}

// BarProgress renders a segment counter whose total grows as segments are
// bisected.
type BarProgress struct {
	mu    sync.Mutex
	p     *mpb.Progress
	bar   *mpb.Bar
	total int64
	done  bool
}

func NewBarProgress(w io.Writer, label string) *BarProgress {
	p := mpb.New(mpb.WithOutput(w))
	bar := p.AddBar(0,
		mpb.PrependDecorators(
			decor.Name(label, decor.WC{W: len(label) + 1}),
			decor.CountersNoUnit("%d / %d", decor.WCSyncWidth),
		),
		mpb.AppendDecorators(
			decor.Elapsed(decor.ET_STYLE_GO),
			decor.Name(" | "),
			decor.OnComplete(decor.AverageETA(decor.ET_STYLE_GO), "done"),
		),
	)
	return &BarProgress{p: p, bar: bar}
}

func (b *BarProgress) AddTotal(n int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.total += n
	b.bar.SetTotal(b.total, false)
}

func (b *BarProgress) Increment() { b.bar.Increment() }

func (b *BarProgress) Done() {
	b.mu.Lock()
	if b.done {
		b.mu.Unlock()
		return
	}
	b.done = true
	b.bar.SetTotal(-1, true)
	b.mu.Unlock()
	b.p.Wait()
}
