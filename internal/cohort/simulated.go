package cohort

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"
)

// barrier is a reusable, reentrant rendezvous point for a fixed number of
// goroutines: a mutex-guarded arrival count, with one channel per waiter
// that the last arrival of each round closes.
type barrier struct {
	n       int
	mu      sync.Mutex
	count   int
	waiters []chan struct{}
}

func newBarrier(n int) *barrier {
	return &barrier{n: n}
}

func (b *barrier) wait(ctx context.Context) error {
	b.mu.Lock()
	b.count++
	ch := make(chan struct{})
	b.waiters = append(b.waiters, ch)
	if b.count == b.n {
		b.count = 0
		waiters := b.waiters
		b.waiters = nil
		b.mu.Unlock()
		for _, w := range waiters {
			close(w)
		}
		return nil
	}
	b.mu.Unlock()

	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// simulated is one rank's view into an in-process, goroutine-simulated
// cohort. Every rank shares the same barrier and a cancel func that fires
// on the first error from any rank, mirroring collective-I/O semantics
// without a real MPI binding.
type simulated struct {
	size int
	rank int
	b    *barrier
}

func (s *simulated) Size() int { return s.size }
func (s *simulated) Rank() int { return s.rank }

func (s *simulated) Barrier(ctx context.Context) error {
	return s.b.wait(ctx)
}

func (s *simulated) CollectiveRegion(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := s.Barrier(ctx); err != nil {
		return err
	}
	if err := fn(ctx); err != nil {
		return err
	}
	return s.Barrier(ctx)
}

// Run spawns size goroutines, one per simulated rank, each calling fn with
// its own Cohort view. If any rank's fn returns an error, the shared
// context is cancelled so ranks blocked in Barrier unblock instead of
// hanging, and Run returns the first error encountered.
func Run(ctx context.Context, size int, fn func(ctx context.Context, c Cohort) error) error {
	if size <= 1 {
		return fn(ctx, Sequential{})
	}
	b := newBarrier(size)
	g, gctx := errgroup.WithContext(ctx)
	for r := 0; r < size; r++ {
		r := r
		g.Go(func() error {
			return fn(gctx, &simulated{size: size, rank: r, b: b})
		})
	}
	return g.Wait()
}
