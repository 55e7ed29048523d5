// Package registry tracks the set of output datasets this run has created,
// keyed by path, and derives the per-dataset layout numbers the row
// scheduler needs: row byte size B, chunk row count C and buffer row
// budget K.
package registry

import (
	"context"
	"sync"

	"github.com/pingcap/errors"

	"github.com/art-framework-suite/hep-hpc/internal/hdf5io"
)

// Entry is everything the scheduler needs to know about one output
// dataset: its frozen spec, its current length and derived layout numbers.
// A dataset's incomplete last chunk (for cross-input tail-chunk
// completion) isn't tracked here: Plan derives it fresh each call from the
// output's actual current length (L0 % C), which is always authoritative.
type Entry struct {
	Spec hdf5io.DatasetSpec
	Out  hdf5io.OutputDataset

	B int64  // RowBytes
	C uint64 // ChunkRows
	K uint64 // buffer row budget, a multiple of C (0 if C == 0)
}

// Registry is the process-wide map from dataset path to Entry. Entries
// are created once, on first sighting, and never evicted. In simulated
// parallel mode all rank goroutines share one Registry over one output
// handle: the mutex makes the first sighting's create atomic and every
// later rank adopts the existing entry, standing in for the collective
// create a cohort of real peer processes would each issue against its own
// handle.
type Registry struct {
	memMaxBytes int64
	keepFilters bool

	mu      sync.Mutex
	entries map[string]*Entry
	byGroup map[string][]*Entry
}

// New returns an empty registry that keeps every input dataset's filter
// pipeline as-is when creating the corresponding output dataset. memMaxBytes
// bounds the in-memory buffer each dataset's scheduler loop may use per
// iteration; it is divided by a dataset's row size and rounded down to a
// whole number of chunks to get K.
func New(memMaxBytes int64) *Registry {
	return NewWithFilters(memMaxBytes, true)
}

// NewWithFilters returns an empty registry whose created output datasets
// keep or strip the input's filter pipeline (shuffle, compression,
// checksum) according to keepFilters, as resolved by config.ResolveFilters
// from the configured mode and the run's cohort size. ScaleOffset and the
// dataset's fill value are kept either way.
func NewWithFilters(memMaxBytes int64, keepFilters bool) *Registry {
	return &Registry{
		memMaxBytes: memMaxBytes,
		keepFilters: keepFilters,
		entries:     make(map[string]*Entry),
		byGroup:     make(map[string][]*Entry),
	}
}

// DatasetsInGroup returns the entries created directly under group (not
// nested subgroups), in the order they were first sighted.
func (r *Registry) DatasetsInGroup(group string) []*Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*Entry(nil), r.byGroup[group]...)
}

// Lookup returns the entry for path if the registry has already created it.
func (r *Registry) Lookup(path string) (*Entry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[path]
	return e, ok
}

// Ensure returns the entry for spec.Path, creating the output dataset (via
// out.CreateDataset) and the registry entry on first sighting. On later
// sightings it checks that spec still matches the frozen one and returns
// the existing entry; it never recreates or resizes the dataset here.
func (r *Registry) Ensure(ctx context.Context, out hdf5io.OutputFile, spec hdf5io.DatasetSpec) (*Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if e, ok := r.entries[spec.Path]; ok {
		if !specsCompatible(e.Spec, spec) {
			return nil, errors.Annotatef(hdf5io.ErrSpecMismatch, "dataset %q", spec.Path)
		}
		return e, nil
	}

	if err := out.EnsureGroup(ctx, parentOf(spec.Path)); err != nil {
		return nil, errors.Annotatef(err, "create parent group of %q", spec.Path)
	}

	if !r.keepFilters {
		spec.Filters = stripFilterPipeline(spec.Filters)
	}

	od, err := out.CreateDataset(ctx, spec)
	if err != nil {
		return nil, errors.Annotatef(err, "create dataset %q", spec.Path)
	}
	if len(spec.Attrs) > 0 {
		if err := out.CopyAttrs(ctx, spec.Path, spec.Attrs); err != nil {
			return nil, errors.Annotatef(err, "copy attrs of %q", spec.Path)
		}
	}

	b := spec.RowBytes()
	c := spec.ChunkRows()
	k := uint64(0)
	if c > 0 && b > 0 {
		k = bufferRowBudget(r.memMaxBytes, b, c)
		if k < c {
			return nil, errors.Errorf(
				"dataset %q: --mem-max too small to hold one chunk (chunk is %d rows * %d bytes, budget allows %d rows)",
				spec.Path, c, b, k,
			)
		}
	}

	e := &Entry{Spec: spec, Out: od, B: b, C: c, K: k}
	r.entries[spec.Path] = e
	group := parentOf(spec.Path)
	r.byGroup[group] = append(r.byGroup[group], e)
	return e, nil
}

// bufferRowBudget returns memMax/rowBytes, rounded down to the nearest
// multiple of chunkRows, so every buffered write spans a whole number of
// chunks.
func bufferRowBudget(memMax, rowBytes int64, chunkRows uint64) uint64 {
	if rowBytes <= 0 || chunkRows == 0 {
		return 0
	}
	raw := uint64(memMax / rowBytes)
	return (raw / chunkRows) * chunkRows
}

// stripFilterPipeline drops everything from a filter pipeline except
// ScaleOffset: a dataset created with filters off still carries chunking,
// scale-offset and fill-value, just not shuffle, compression or the
// Fletcher32 checksum.
func stripFilterPipeline(p hdf5io.FilterPipeline) hdf5io.FilterPipeline {
	return hdf5io.FilterPipeline{ScaleOffset: p.ScaleOffset}
}

// specsCompatible compares the properties of a later sighting of a dataset
// path against the frozen, first-seen spec: element type, secondary
// dimensions and chunk shape. It deliberately does not compare Filters or
// FillValue: Ensure may have stripped the frozen entry's filter pipeline
// per the run's filter policy, so the frozen spec's Filters no longer
// reflects what any particular input actually carried, and comparing
// against it would reject inputs that agree with each other but not with
// a stripped-down frozen copy.
func specsCompatible(a, b hdf5io.DatasetSpec) bool {
	if a.Type != b.Type {
		return false
	}
	if len(a.Dims) != len(b.Dims) {
		return false
	}
	for i := range a.Dims {
		if a.Dims[i] != b.Dims[i] {
			return false
		}
	}
	if a.ChunkRows() != b.ChunkRows() {
		return false
	}
	return true
}

func parentOf(path string) string {
	i := len(path) - 1
	for i >= 0 && path[i] != '/' {
		i--
	}
	if i <= 0 {
		return "/"
	}
	return path[:i]
}
