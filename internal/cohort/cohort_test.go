package cohort

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSequential_IsSingleRank(t *testing.T) {
	var c Sequential
	assert.Equal(t, 1, c.Size())
	assert.Equal(t, 0, c.Rank())
	assert.NoError(t, c.Barrier(context.Background()))

	called := false
	require.NoError(t, c.CollectiveRegion(context.Background(), func(ctx context.Context) error {
		called = true
		return nil
	}))
	assert.True(t, called)
}

// TestRun_EveryRankSeesItsOwnIndex mirrors the invariant that every rank in
// a simulated cohort enters with a distinct, stable Size/Rank view.
func TestRun_EveryRankSeesItsOwnIndex(t *testing.T) {
	const size = 4
	seen := make([]int, size)
	var mu sync.Mutex

	err := Run(context.Background(), size, func(ctx context.Context, c Cohort) error {
		mu.Lock()
		seen[c.Rank()] = c.Size()
		mu.Unlock()
		return nil
	})
	require.NoError(t, err)
	for r, sz := range seen {
		assert.Equal(t, size, sz, "rank %d", r)
	}
}

// TestRun_BarrierRendezvous checks that no rank proceeds past a barrier
// before every rank has reached it, by having each rank increment a counter
// before the barrier and asserting every rank observes the full count after.
func TestRun_BarrierRendezvous(t *testing.T) {
	const size = 5
	var before atomic.Int32
	var afterCounts sync.Map

	err := Run(context.Background(), size, func(ctx context.Context, c Cohort) error {
		before.Add(1)
		if err := c.Barrier(ctx); err != nil {
			return err
		}
		afterCounts.Store(c.Rank(), before.Load())
		return nil
	})
	require.NoError(t, err)

	for r := 0; r < size; r++ {
		v, ok := afterCounts.Load(r)
		require.True(t, ok)
		assert.Equal(t, int32(size), v, "rank %d observed count before all ranks reached the barrier", r)
	}
}

// TestRun_PropagatesFirstError checks that one rank's error fails the whole
// run and unblocks ranks waiting in a collective region instead of hanging.
func TestRun_PropagatesFirstError(t *testing.T) {
	const size = 3
	boom := assertError("boom")

	err := Run(context.Background(), size, func(ctx context.Context, c Cohort) error {
		return c.CollectiveRegion(ctx, func(ctx context.Context) error {
			if c.Rank() == 0 {
				return boom
			}
			<-ctx.Done()
			return ctx.Err()
		})
	})
	require.Error(t, err)
}

type assertError string

func (e assertError) Error() string { return string(e) }
