package source

import (
	"context"
	"runtime"

	"golang.org/x/sync/semaphore"
)

// WorkPool bounds how many blocking operations (sampling, full scans, chunk
// decoding) run at once. A nil *WorkPool runs work inline.
type WorkPool struct {
	sem  *semaphore.Weighted
	size int
}

// NewWorkPool creates a pool with n slots. n <= 0 uses GOMAXPROCS.
func NewWorkPool(n int) *WorkPool {
	if n <= 0 {
		n = runtime.GOMAXPROCS(0)
	}
	return &WorkPool{sem: semaphore.NewWeighted(int64(n)), size: n}
}

// Size returns the number of slots.
func (p *WorkPool) Size() int {
	if p == nil {
		return 0
	}
	return p.size
}

// Do runs fn once a slot is free. It returns ctx.Err() if the context ends
// while waiting.
func (p *WorkPool) Do(ctx context.Context, fn func() error) error {
	if p == nil {
		return fn()
	}
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer p.sem.Release(1)
	return fn()
}

// Run is Do for functions that produce a value.
func Run[T any](ctx context.Context, p *WorkPool, fn func() (T, error)) (T, error) {
	var out T
	err := p.Do(ctx, func() error {
		var err error
		out, err = fn()
		return err
	})
	return out, err
}
