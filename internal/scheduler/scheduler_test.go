package scheduler

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/art-framework-suite/hep-hpc/internal/cohort"
	"github.com/art-framework-suite/hep-hpc/internal/hdf5io"
	"github.com/art-framework-suite/hep-hpc/internal/hdf5io/memdriver"
	"github.com/art-framework-suite/hep-hpc/internal/registry"
)

// totalRows sums RowsThisIteration across a plan, which must always equal N.
func totalRows(iters []Iteration) uint64 {
	var n uint64
	for _, it := range iters {
		n += it.RowsThisIteration
	}
	return n
}

func TestPlan_ConservesRowCount(t *testing.T) {
	cases := []struct {
		name       string
		n, l0      uint64
		r          int
		c, k       uint64
	}{
		{"single-rank-exact-chunks", 100, 0, 1, 16, 16},
		{"single-rank-ragged", 17, 0, 1, 16, 16},
		{"three-ranks-even-chunks", 48, 0, 3, 16, 1000},
		{"three-ranks-subchunk-tail", 40, 0, 3, 16, 1000},
		{"three-ranks-carried-tail", 40, 40, 3, 16, 1000},
		{"tiny-buffer", 100, 0, 1, 16, 16}, // K rounds down to a multiple of C already
		{"carry-over-tail", 33, 17, 2, 16, 1000},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			iters := Plan(tc.n, tc.l0, tc.r, tc.c, tc.k)
			assert.Equal(t, tc.n, totalRows(iters), "sum of RowsThisIteration must equal N")
			for _, it := range iters {
				var sum uint64
				require.Len(t, it.Windows, tc.r)
				for _, w := range it.Windows {
					sum += w.Rows
				}
				assert.Equal(t, it.RowsThisIteration, sum, "iteration rows must equal sum of per-rank windows")
			}
		})
	}
}

// Three ranks, inputs of length 48, chunk 16: each input's single
// iteration splits 48 rows 1/1/1 whole chunks across ranks with nothing
// left over, whether or not the output already holds chunk-aligned rows.
func TestPlan_ThreeRanksWholeChunkSplit(t *testing.T) {
	for _, l0 := range []uint64{0, 48} {
		iters := Plan(48, l0, 3, 16, 1000)
		require.Len(t, iters, 1)
		it := iters[0]
		assert.Equal(t, uint64(48), it.RowsThisIteration)
		for r := 0; r < 3; r++ {
			assert.Equal(t, uint64(16), it.Windows[r].Rows, "rank %d", r)
		}
		assert.False(t, it.CompletedTail)
	}
}

// Three ranks, inputs of length {40, 40}, chunk 16: the first input leaves
// an 8-row tail-chunk carry-over that the second input's tail-chunk
// completion absorbs on rank 0.
func TestPlan_TailChunkCarryOver(t *testing.T) {
	first := Plan(40, 0, 3, 16, 1000)
	require.Len(t, first, 1)
	it := first[0]
	assert.Equal(t, uint64(40), it.RowsThisIteration)
	assert.Equal(t, []Window{
		{InStart: 0, Rows: 16},
		{InStart: 16, Rows: 16},
		{InStart: 32, Rows: 8},
	}, it.Windows)
	assert.False(t, it.CompletedTail)

	second := Plan(40, 40, 3, 16, 1000)
	require.Len(t, second, 1)
	it2 := second[0]
	assert.Equal(t, uint64(40), it2.RowsThisIteration)
	assert.True(t, it2.CompletedTail)
	assert.Equal(t, []Window{
		{InStart: 0, Rows: 24},
		{InStart: 24, Rows: 16},
		{InStart: 40, Rows: 0},
	}, it2.Windows)
}

// Three successive inputs of {17, 33, 50} rows, chunk 16, none a multiple
// of the chunk size, must still conserve rows across the whole sequence.
func TestPlan_RaggedInputSequence(t *testing.T) {
	counts := []uint64{17, 33, 50}
	var l0 uint64
	for _, n := range counts {
		iters := Plan(n, l0, 1, 16, 1000)
		assert.Equal(t, n, totalRows(iters))
		l0 += n
	}
	assert.Equal(t, uint64(100), l0)
}

func TestPlan_Unchunked(t *testing.T) {
	iters := Plan(10, 0, 3, 0, 0)
	require.Len(t, iters, 1)
	assert.Equal(t, uint64(10), totalRows(iters))
	var sum uint64
	for _, w := range iters[0].Windows {
		sum += w.Rows
	}
	assert.Equal(t, uint64(10), sum)
}

func TestPlan_EmptyInput(t *testing.T) {
	assert.Nil(t, Plan(0, 0, 1, 16, 16))
	assert.Nil(t, Plan(0, 0, 3, 0, 0))
}

func TestPlan_ZeroRankTreatedAsOne(t *testing.T) {
	iters := Plan(16, 0, 0, 16, 16)
	require.Len(t, iters, 1)
	require.Len(t, iters[0].Windows, 1)
}

func datasetSpec(path string, chunk uint64) hdf5io.DatasetSpec {
	return hdf5io.DatasetSpec{
		Path:      path,
		Type:      hdf5io.ElementType{Kind: hdf5io.Int32},
		ChunkDims: []uint64{chunk},
	}
}

func int32Rows(start, n int) [][]byte {
	rows := make([][]byte, n)
	for i := 0; i < n; i++ {
		v := int32(start + i)
		rows[i] = []byte{byte(v), byte(v >> 8), byte(v >> 16), byte(v >> 24)}
	}
	return rows
}

// TestRun_AppendsInOrder exercises Run end to end against the in-memory
// driver: two inputs of 17 and 33 rows (neither a multiple of the chunk
// size) must land contiguously with no holes and in order.
func TestRun_AppendsInOrder(t *testing.T) {
	ctx := context.Background()
	reg := registry.New(1 << 20)
	out := memdriver.NewFile()

	spec := datasetSpec("/data", 16)
	ent, err := reg.Ensure(ctx, out, spec)
	require.NoError(t, err)

	in1 := memdriver.NewFile()
	in1.PutDataset("/data", spec, int32Rows(0, 17))
	in2 := memdriver.NewFile()
	in2.PutDataset("/data", spec, int32Rows(17, 33))

	var inDS1, inDS2 hdf5io.Dataset
	require.NoError(t, in1.Walk(ctx, func(kind hdf5io.NodeKind, path string, ds hdf5io.Dataset) error {
		if kind == hdf5io.KindDataset {
			inDS1 = ds
		}
		return nil
	}))
	require.NoError(t, in2.Walk(ctx, func(kind hdf5io.NodeKind, path string, ds hdf5io.Dataset) error {
		if kind == hdf5io.KindDataset {
			inDS2 = ds
		}
		return nil
	}))

	require.NoError(t, Run(ctx, cohort.Sequential{}, ent, inDS1))
	require.NoError(t, Run(ctx, cohort.Sequential{}, ent, inDS2))

	l, err := ent.Out.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(50), l)

	buf, err := ent.Out.ReadRows(ctx, 0, 50)
	require.NoError(t, err)
	for i := 0; i < 50; i++ {
		got := int32(uint32(buf[i*4]) | uint32(buf[i*4+1])<<8 | uint32(buf[i*4+2])<<16 | uint32(buf[i*4+3])<<24)
		assert.Equal(t, int32(i), got, "row %d", i)
	}
}
