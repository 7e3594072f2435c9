package dashboard

import (
	"context"
	"sync"
	"time"
)

// Task runs fn every interval on its own goroutine until Stop is called or ctx ends.
// Runs never overlap; a tick that arrives while fn is still running is dropped.
type Task struct {
	interval time.Duration
	fn       func(ctx context.Context)

	startOnce sync.Once
	stopOnce  sync.Once
	stop      chan struct{}
	done      chan struct{}
}

// NewTask creates a stopped task. An interval <= 0 makes Start a no-op.
func NewTask(interval time.Duration, fn func(ctx context.Context)) *Task {
	return &Task{
		interval: interval,
		fn:       fn,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start launches the loop. Calling it more than once has no effect.
func (t *Task) Start(ctx context.Context) {
	t.startOnce.Do(func() {
		if t.interval <= 0 {
			close(t.done)
			return
		}
		go t.loop(ctx)
	})
}

func (t *Task) loop(ctx context.Context) {
	defer close(t.done)

	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			select {
			case <-t.stop:
				return
			default:
			}
			t.fn(ctx)
		case <-t.stop:
			return
		case <-ctx.Done():
			return
		}
	}
}

// Stop ends the loop and waits for a running fn to return. It is safe to call more than once
// and on a task that was never started.
func (t *Task) Stop() {
	t.stopOnce.Do(func() {
		close(t.stop)
		t.startOnce.Do(func() { close(t.done) })
	})
	<-t.done
}
