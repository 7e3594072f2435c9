// Package coordinator de-duplicates, debounces, throttles and batches calls to the ticketing backend.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"github.com/fixora/dashboard/internal/metrics"
)

// Options control one coordinated call
type Options struct {
	// Debounce delays the call; a newer call for the same key inside the window replaces the
	// pending work and every caller of the window receives the result of the last one.
	Debounce time.Duration
	// Throttle allows at most one invocation of work per key per interval.
	Throttle time.Duration
	// CacheFor serves a successful result again without invoking work while it is younger.
	CacheFor time.Duration
}

// Work is the coordinated operation. It receives a context that stays valid while at least one
// caller is still waiting for the result.
type Work func(ctx context.Context) (interface{}, error)

type cachedResult struct {
	val interface{}
	at  time.Time
}

type throttle struct {
	limiter  *rate.Limiter
	every    time.Duration
	lastUsed time.Time
}

type flight struct {
	ctx     context.Context
	cancel  context.CancelFunc
	waiters int
}

type window struct {
	ctx     context.Context
	work    Work
	opts    Options
	timer   *time.Timer
	fired   bool
	cancel  context.CancelFunc
	waiters int
	done    chan struct{}
	val     interface{}
	err     error
}

// Coordinator is safe for concurrent use. The zero value is not usable; call New.
type Coordinator struct {
	group singleflight.Group
	now   func() time.Time

	mu        sync.Mutex
	flights   map[string]*flight
	windows   map[string]*window
	throttles map[string]*throttle
	results   map[string]cachedResult
}

// New creates a Coordinator
func New() *Coordinator {
	return &Coordinator{
		now:       time.Now,
		flights:   make(map[string]*flight),
		windows:   make(map[string]*window),
		throttles: make(map[string]*throttle),
		results:   make(map[string]cachedResult),
	}
}

// Do runs work for key under opts. Identical keys in flight share one invocation and its outcome.
// Errors are returned to every waiter and are never cached or retried.
func (c *Coordinator) Do(ctx context.Context, key string, opts Options, work Work) (interface{}, error) {
	if v, ok := c.cached(key, opts.CacheFor); ok {
		return v, nil
	}

	if opts.Debounce > 0 {
		return c.debounce(ctx, key, opts, work)
	}
	return c.execute(ctx, key, opts, work, false)
}

// Do is the typed form of Coordinator.Do
func Do[T any](ctx context.Context, c *Coordinator, key string, opts Options, work func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	v, err := c.Do(ctx, key, opts, func(ctx context.Context) (interface{}, error) {
		return work(ctx)
	})
	if err != nil {
		return zero, err
	}
	if v == nil {
		return zero, nil
	}
	t, ok := v.(T)
	if !ok {
		return zero, fmt.Errorf("coordinator: key %q holds %T, not %T", key, v, zero)
	}
	return t, nil
}

// Forget drops the cached result of key
func (c *Coordinator) Forget(key string) {
	c.mu.Lock()
	delete(c.results, key)
	c.mu.Unlock()
}

// Reset drops every cached result
func (c *Coordinator) Reset() {
	c.mu.Lock()
	c.results = make(map[string]cachedResult)
	c.mu.Unlock()
}

// Pending reports whether key has a debounce window open or work in flight
func (c *Coordinator) Pending(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, w := c.windows[key]
	_, f := c.flights[key]
	return w || f
}

func (c *Coordinator) cached(key string, maxAge time.Duration) (interface{}, bool) {
	if maxAge <= 0 {
		return nil, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	r, ok := c.results[key]
	if !ok {
		return nil, false
	}
	if c.now().Sub(r.at) >= maxAge {
		delete(c.results, key)
		return nil, false
	}
	return r.val, true
}

func (c *Coordinator) debounce(ctx context.Context, key string, opts Options, work Work) (interface{}, error) {
	c.mu.Lock()
	w, ok := c.windows[key]
	if ok && !w.fired {
		w.ctx = ctx
		w.work = work
		w.opts = opts
		w.timer.Reset(opts.Debounce)
	} else {
		w = &window{ctx: ctx, work: work, opts: opts, done: make(chan struct{})}
		c.windows[key] = w
		win := w
		w.timer = time.AfterFunc(opts.Debounce, func() { c.fire(key, win) })
	}
	w.waiters++
	c.mu.Unlock()

	select {
	case <-w.done:
		return w.val, w.err
	case <-ctx.Done():
		c.mu.Lock()
		w.waiters--
		if w.waiters == 0 {
			if !w.fired {
				w.timer.Stop()
				w.fired = true
				if c.windows[key] == w {
					delete(c.windows, key)
				}
				w.err = ctx.Err()
				close(w.done)
			} else if w.cancel != nil {
				w.cancel()
			}
		}
		c.mu.Unlock()
		return nil, ctx.Err()
	}
}

func (c *Coordinator) fire(key string, w *window) {
	c.mu.Lock()
	if w.fired {
		c.mu.Unlock()
		return
	}
	w.fired = true
	if c.windows[key] == w {
		delete(c.windows, key)
	}
	// the window outlives any single caller; it is canceled once every waiter has gone
	runCtx, cancel := context.WithCancel(context.WithoutCancel(w.ctx))
	defer cancel()
	w.cancel = cancel
	work, opts := w.work, w.opts
	c.mu.Unlock()

	val, err := c.execute(runCtx, key, opts, work, true)

	c.mu.Lock()
	w.val, w.err = val, err
	close(w.done)
	c.mu.Unlock()
}

// execute runs work as a flight for key. A fresh execution never joins a flight that was already
// running; it starts its own and later callers join that one.
func (c *Coordinator) execute(ctx context.Context, key string, opts Options, work Work, fresh bool) (interface{}, error) {
	for attempt := 0; ; attempt++ {
		val, err := c.join(ctx, key, opts, work, fresh)
		// a late joiner can land on a flight that its previous waiters just abandoned
		if err != nil && errors.Is(err, context.Canceled) && ctx.Err() == nil && attempt == 0 && !fresh {
			continue
		}
		return val, err
	}
}

func (c *Coordinator) join(ctx context.Context, key string, opts Options, work Work, fresh bool) (interface{}, error) {
	c.mu.Lock()
	f, ok := c.flights[key]
	if !ok || fresh {
		fctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
		f = &flight{ctx: fctx, cancel: cancel}
		c.flights[key] = f
		if fresh {
			c.group.Forget(key)
		}
	}
	f.waiters++
	c.mu.Unlock()

	ch := c.group.DoChan(key, func() (interface{}, error) {
		if opts.Throttle > 0 {
			if err := c.limiter(key, opts.Throttle).Wait(f.ctx); err != nil {
				return nil, err
			}
		}
		v, err := work(f.ctx)
		if err == nil && opts.CacheFor > 0 {
			c.store(key, v)
		}
		return v, err
	})

	select {
	case r := <-ch:
		c.leave(key, f)
		if r.Shared {
			metrics.CoordinatorDeduplicated.Inc()
		}
		return r.Val, r.Err
	case <-ctx.Done():
		c.leave(key, f)
		return nil, ctx.Err()
	}
}

func (c *Coordinator) leave(key string, f *flight) {
	c.mu.Lock()
	defer c.mu.Unlock()
	f.waiters--
	if f.waiters > 0 {
		return
	}
	if c.flights[key] == f {
		delete(c.flights, key)
	}
	f.cancel()
}

func (c *Coordinator) store(key string, v interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.results[key] = cachedResult{val: v, at: c.now()}
	if len(c.results) > maxTracked {
		for k := range c.results {
			if k != key {
				delete(c.results, k)
				break
			}
		}
	}
}

const maxTracked = 1024

func (c *Coordinator) limiter(key string, every time.Duration) *rate.Limiter {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	t, ok := c.throttles[key]
	if !ok || t.every != every {
		t = &throttle{limiter: rate.NewLimiter(rate.Every(every), 1), every: every}
		c.throttles[key] = t
	}
	t.lastUsed = now

	if len(c.throttles) > maxTracked {
		for k, o := range c.throttles {
			if now.Sub(o.lastUsed) > o.every {
				delete(c.throttles, k)
			}
		}
	}
	return t.limiter
}
