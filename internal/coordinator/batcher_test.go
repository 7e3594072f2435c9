package coordinator

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBatcher_MergesWindow(t *testing.T) {
	var calls int32
	var seen []int
	b := NewBatcher(BatchConfig{Window: 40 * time.Millisecond}, func(ctx context.Context, ps []int) ([]int, error) {
		atomic.AddInt32(&calls, 1)
		seen = append([]int(nil), ps...)
		out := make([]int, len(ps))
		for i, p := range ps {
			out[i] = p * 10
		}
		return out, nil
	})

	var wg sync.WaitGroup
	got := make([]int, 3)
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			v, err := b.Submit(context.Background(), i+1)
			assert.NoError(t, err)
			got[i] = v
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	assert.Len(t, seen, 3)
	assert.Equal(t, []int{10, 20, 30}, got)
}

func TestBatcher_FlushesAtMaxSize(t *testing.T) {
	b := NewBatcher(BatchConfig{Window: time.Hour, MaxSize: 2}, func(ctx context.Context, ps []string) ([]string, error) {
		return ps, nil
	})

	var wg sync.WaitGroup
	for _, p := range []string{"a", "b"} {
		wg.Add(1)
		go func(p string) {
			defer wg.Done()
			v, err := b.Submit(context.Background(), p)
			assert.NoError(t, err)
			assert.Equal(t, p, v)
		}(p)
	}

	done := make(chan struct{})
	go func() { wg.Wait(); close(done) }()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("full batch was not flushed")
	}
}

func TestBatcher_FullBatchTakesNoMoreRequests(t *testing.T) {
	var mu sync.Mutex
	var sizes []int
	b := NewBatcher(BatchConfig{Window: 30 * time.Millisecond, MaxSize: 2}, func(ctx context.Context, ps []int) ([]int, error) {
		mu.Lock()
		sizes = append(sizes, len(ps))
		mu.Unlock()
		return ps, nil
	})

	for round := 0; round < 20; round++ {
		var wg sync.WaitGroup
		for i := 0; i < 16; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				v, err := b.Submit(context.Background(), i)
				assert.NoError(t, err)
				assert.Equal(t, i, v)
			}(i)
		}
		wg.Wait()
	}

	mu.Lock()
	defer mu.Unlock()
	total := 0
	for _, n := range sizes {
		assert.LessOrEqual(t, n, 2)
		total += n
	}
	assert.Equal(t, 20*16, total)
}

func TestBatcher_ErrorsReachEveryCaller(t *testing.T) {
	boom := errors.New("ranking unavailable")
	b := NewBatcher(BatchConfig{Window: 20 * time.Millisecond}, func(ctx context.Context, ps []int) ([]int, error) {
		return nil, boom
	})

	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := b.Submit(context.Background(), i)
			assert.ErrorIs(t, err, boom)
		}(i)
	}
	wg.Wait()
}

func TestBatcher_LengthMismatch(t *testing.T) {
	b := NewBatcher(BatchConfig{Window: 20 * time.Millisecond}, func(ctx context.Context, ps []int) ([]int, error) {
		return []int{1}, nil
	})

	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := b.Submit(context.Background(), i)
			assert.Error(t, err)
		}(i)
	}
	wg.Wait()
}
