package coordinator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/fixora/dashboard/internal/metrics"
)

// BatchFunc serves a whole batch in one downstream call. It must return one result per
// parameter, in the same order.
type BatchFunc[P, R any] func(ctx context.Context, params []P) ([]R, error)

// BatchConfig bounds a batch
type BatchConfig struct {
	Window  time.Duration
	MaxSize int
}

type batchResult[R any] struct {
	val R
	err error
}

type batch[P, R any] struct {
	ctx     context.Context
	params  []P
	waiters []chan batchResult[R]
	timer   *time.Timer
	flushed bool
}

// Batcher merges requests issued within a short window into a single downstream call
type Batcher[P, R any] struct {
	cfg BatchConfig
	fn  BatchFunc[P, R]

	mu      sync.Mutex
	pending *batch[P, R]
}

// NewBatcher creates a Batcher. A MaxSize below 1 means the window alone flushes.
func NewBatcher[P, R any](cfg BatchConfig, fn BatchFunc[P, R]) *Batcher[P, R] {
	if cfg.Window <= 0 {
		cfg.Window = 20 * time.Millisecond
	}
	return &Batcher[P, R]{cfg: cfg, fn: fn}
}

// Submit adds p to the open batch and waits for its result
func (b *Batcher[P, R]) Submit(ctx context.Context, p P) (R, error) {
	ch := make(chan batchResult[R], 1)

	b.mu.Lock()
	bt := b.pending
	if bt == nil {
		bt = &batch[P, R]{ctx: ctx}
		b.pending = bt
		bt.timer = time.AfterFunc(b.cfg.Window, func() { b.flush(bt) })
	}
	bt.params = append(bt.params, p)
	bt.waiters = append(bt.waiters, ch)
	full := b.cfg.MaxSize > 0 && len(bt.params) >= b.cfg.MaxSize
	if full {
		// a full batch takes no more requests
		b.pending = nil
	}
	b.mu.Unlock()

	if full {
		bt.timer.Stop()
		go b.flush(bt)
	}

	select {
	case r := <-ch:
		return r.val, r.err
	case <-ctx.Done():
		var zero R
		return zero, ctx.Err()
	}
}

func (b *Batcher[P, R]) flush(bt *batch[P, R]) {
	b.mu.Lock()
	if bt.flushed {
		b.mu.Unlock()
		return
	}
	bt.flushed = true
	if b.pending == bt {
		b.pending = nil
	}
	params, waiters := bt.params, bt.waiters
	b.mu.Unlock()

	metrics.BatchSize.Observe(float64(len(params)))

	results, err := b.fn(context.WithoutCancel(bt.ctx), params)
	if err == nil && len(results) != len(params) {
		err = fmt.Errorf("batch returned %d results for %d requests", len(results), len(params))
	}

	for i, ch := range waiters {
		if err != nil {
			ch <- batchResult[R]{err: err}
			continue
		}
		ch <- batchResult[R]{val: results[i]}
	}
}
