package hdf5io

import "context"

// OpenMode selects how an output container is opened: freshly created, or
// appended to an existing one.
type OpenMode int

const (
	CreateExclusive OpenMode = iota
	Append
)

// WalkFunc is invoked once per node during a depth-first visit of an
// InputFile, parent before children, siblings in the container's native
// order. For KindDataset, ds is non-nil; for KindGroup and KindOther it is
// nil.
type WalkFunc func(kind NodeKind, path string, ds Dataset) error

// InputFile is a read-only handle on one input container.
type InputFile interface {
	// Walk performs the depth-first visit. It does not itself apply any
	// group-include filter; the tree walker package does that, since
	// filtering is a policy decision layered on top of the raw traversal.
	Walk(ctx context.Context, fn WalkFunc) error
	Close() error
}

// Dataset is a read handle on one dataset inside an InputFile.
type Dataset interface {
	Spec() DatasetSpec
	// Len returns the dataset's current outer-dimension length.
	Len() uint64
	// ReadRows returns the raw row-major bytes for rows [start, start+count).
	ReadRows(ctx context.Context, start, count uint64) ([]byte, error)
}

// InputDriver opens input containers for reading.
type InputDriver interface {
	OpenInput(ctx context.Context, path string) (InputFile, error)
}

// OutputFile is a read-write handle on the single output container.
type OutputFile interface {
	// EnsureGroup creates path if absent; a no-op if it already exists.
	EnsureGroup(ctx context.Context, path string) error

	// CreateDataset creates a new, empty (outer length 0), unbounded-outer
	// dataset from spec. Called exactly once per unique dataset path.
	CreateDataset(ctx context.Context, spec DatasetSpec) (OutputDataset, error)

	// OpenDataset looks up an existing output dataset by path.
	OpenDataset(ctx context.Context, path string) (OutputDataset, bool, error)

	// CopyAttrs copies attrs onto path, once, at dataset creation time.
	CopyAttrs(ctx context.Context, path string, attrs []Attr) error

	Close() error
}

// OutputDataset is a write handle on one dataset inside the OutputFile.
type OutputDataset interface {
	Spec() DatasetSpec
	Len(ctx context.Context) (uint64, error)

	// Resize grows the dataset's outer dimension to newLen. Called once per
	// input file per dataset, and once per provenance flush.
	Resize(ctx context.Context, newLen uint64) error

	// WriteRows writes data (row-major raw bytes, rows*RowBytes() long) to
	// the hyperslab [outStart, outStart+rows). In parallel mode the caller
	// is responsible for issuing this under cohort.CollectiveRegion so that
	// every rank, including ranks with rows==0, participates.
	WriteRows(ctx context.Context, outStart, rows uint64, data []byte) error

	// ReadRows reads rows [start, start+rows) back, used by tests that
	// check round-trip invariants.
	ReadRows(ctx context.Context, start, rows uint64) ([]byte, error)
}

// OutputDriver opens (or creates) the output container.
type OutputDriver interface {
	OpenOutput(ctx context.Context, path string, mode OpenMode) (OutputFile, error)
}
