// Package scheduler computes, and then drives, the chunk-aligned
// partitioning of one input dataset's row range across a rank cohort.
// Plan is a pure function of the dataset's row count, the output's
// current length, the cohort size and the chunk/buffer geometry; Run ties
// that plan to the cohort and the container driver.
package scheduler

import (
	"context"

	"github.com/pingcap/errors"

	"github.com/art-framework-suite/hep-hpc/internal/cohort"
	"github.com/art-framework-suite/hep-hpc/internal/hdf5io"
	"github.com/art-framework-suite/hep-hpc/internal/registry"
)

// Window is one rank's write window within a single iteration: it reads
// [InStart, InStart+Rows) from the input dataset and writes the same
// extent, shifted by the output's starting length, to the output.
type Window struct {
	InStart uint64
	Rows    uint64
}

// Iteration is one pass of the scheduler loop: every rank's window, plus
// whether this iteration completed a tail chunk carried over from a
// previous input.
type Iteration struct {
	Windows           []Window
	CompletedTail     bool
	RowsThisIteration uint64
}

// Plan computes the full iteration sequence for appending N rows to an
// output dataset currently L0 rows long, across R ranks, with chunk size C
// and per-rank buffer budget K (already rounded down to a multiple of
// C by the registry). It performs no I/O; Run drives it against a cohort
// and container driver.
//
// When C == 0 (an unchunked/contiguous output dataset), the whole input is
// written as a single iteration, undivided by rank beyond an even split,
// since there is no chunk alignment to respect.
func Plan(N, L0 uint64, R int, C, K uint64) []Iteration {
	if R <= 0 {
		R = 1
	}
	if C == 0 {
		return planUnchunked(N, R)
	}

	var iters []Iteration
	nWritten := uint64(0)
	incomplete := L0 % C

	for nWritten < N {
		remaining := N - nWritten

		// Rows that finish a tail chunk carried over from a previous input
		// are written first, so whole chunks are counted from what follows
		// them.
		var extra uint64
		if incomplete > 0 {
			extra = C - incomplete
			if extra > remaining {
				extra = remaining
			}
		}
		afterTail := remaining - extra
		aligned := afterTail - afterTail%C

		capacity := uint64(R)*K - incomplete
		roughRowsIter := aligned
		if capacity < roughRowsIter {
			roughRowsIter = capacity
		}
		// Floor to a whole number of chunks: aligned already is, but
		// capacity need not be when incomplete > 0, since R*K is a
		// multiple of C while incomplete isn't in general.
		roughRowsIter -= roughRowsIter % C

		wholeChunks := roughRowsIter / C
		minsize := wholeChunks / uint64(R)
		leftovers := wholeChunks % uint64(R)

		rowsThisRank := make([]uint64, R)
		for r := 0; r < R; r++ {
			chunks := minsize
			if uint64(r) < leftovers {
				chunks = minsize + 1
			}
			rowsThisRank[r] = chunks * C
		}

		rowsIter := roughRowsIter
		incompleteAtIterStart := incomplete
		completedTail := false
		if incomplete > 0 {
			rowsIter += extra
			rowsThisRank[0] += extra
			completedTail = true
			incomplete = 0
		}

		wholeRowsIter := rowsIter
		remainingPrime := N - (nWritten + rowsIter)
		if remainingPrime > 0 && remainingPrime < C {
			rowsIter += remainingPrime
			absorb := 0
			if wholeRowsIter != 0 {
				// The remainder rows sit after every whole chunk of this
				// iteration, i.e. at the end of rank R-1's segment. Any
				// other rank absorbing them would overlap the segments
				// tiled after its own.
				absorb = R - 1
			}
			rowsThisRank[absorb] += remainingPrime
		}

		windows := make([]Window, R)
		windows[0] = Window{InStart: nWritten, Rows: rowsThisRank[0]}
		for r := 1; r < R; r++ {
			var chunksBefore uint64
			if uint64(r) < leftovers {
				chunksBefore = uint64(r) * (minsize + 1)
			} else {
				chunksBefore = leftovers + uint64(r)*minsize
			}
			start := (nWritten - incompleteAtIterStart) + chunksBefore*C
			if completedTail {
				start += C
			}
			windows[r] = Window{InStart: start, Rows: rowsThisRank[r]}
		}

		iters = append(iters, Iteration{
			Windows:           windows,
			CompletedTail:     completedTail,
			RowsThisIteration: rowsIter,
		})

		nWritten += rowsIter
	}

	return iters
}

// planUnchunked splits N rows evenly across R ranks in a single iteration,
// used for datasets created without a chunked layout.
func planUnchunked(N uint64, R int) []Iteration {
	if N == 0 {
		return nil
	}
	minsize := N / uint64(R)
	leftovers := N % uint64(R)
	windows := make([]Window, R)
	var cursor uint64
	for r := 0; r < R; r++ {
		rows := minsize
		if uint64(r) < leftovers {
			rows++
		}
		windows[r] = Window{InStart: cursor, Rows: rows}
		cursor += rows
	}
	return []Iteration{{Windows: windows, RowsThisIteration: N}}
}

// Run appends the given input dataset's rows to ent's output dataset,
// driving Plan's iterations under c's collective discipline. It resizes
// the output exactly once, up front: one metadata-mutating resize call
// per input file rather than one per chunk.
func Run(ctx context.Context, c cohort.Cohort, ent *registry.Entry, in hdf5io.Dataset) error {
	N := in.Len()
	if N == 0 {
		return nil
	}
	L0, err := ent.Out.Len(ctx)
	if err != nil {
		return errors.Annotate(err, "scheduler: read output length")
	}

	if err := c.CollectiveRegion(ctx, func(ctx context.Context) error {
		return ent.Out.Resize(ctx, L0+N)
	}); err != nil {
		return errors.Annotate(err, "scheduler: resize output")
	}

	iters := Plan(N, L0, c.Size(), ent.C, ent.K)
	r := c.Rank()

	for _, it := range iters {
		w := it.Windows[r]
		if err := c.CollectiveRegion(ctx, func(ctx context.Context) error {
			if w.Rows == 0 {
				return ent.Out.WriteRows(ctx, L0+w.InStart, 0, nil)
			}
			data, err := in.ReadRows(ctx, w.InStart, w.Rows)
			if err != nil {
				return errors.Annotatef(err, "scheduler: read input rows [%d,%d)", w.InStart, w.InStart+w.Rows)
			}
			return ent.Out.WriteRows(ctx, L0+w.InStart, w.Rows, data)
		}); err != nil {
			return errors.Annotate(err, "scheduler: write rows")
		}
	}

	return nil
}
