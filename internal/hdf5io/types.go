// Package hdf5io defines the container-driver abstraction that the rest of
// this module is written against: a dataset registry, row scheduler, tree
// walker, provenance annotator and concatenator that never import an HDF5
// binding directly. Two concrete drivers implement it — hdf5read atop
// github.com/robert-malhotra/go-hdf5 for input files, hdf5write atop
// github.com/scigolib/hdf5 for the output file — and memdriver provides an
// in-memory stand-in used throughout this module's own tests.
package hdf5io

import "fmt"

// ElementKind identifies the atomic element type of a dataset's cells.
type ElementKind int

const (
	Int8 ElementKind = iota
	Uint8
	Int16
	Uint16
	Int32
	Uint32
	Int64
	Uint64
	Float32
	Float64
	FixedString
)

func (k ElementKind) String() string {
	switch k {
	case Int8:
		return "int8"
	case Uint8:
		return "uint8"
	case Int16:
		return "int16"
	case Uint16:
		return "uint16"
	case Int32:
		return "int32"
	case Uint32:
		return "uint32"
	case Int64:
		return "int64"
	case Uint64:
		return "uint64"
	case Float32:
		return "float32"
	case Float64:
		return "float64"
	case FixedString:
		return "fixed_string"
	default:
		return fmt.Sprintf("elementkind(%d)", int(k))
	}
}

// ElementType is the per-cell type of a dataset. Width is only meaningful
// for FixedString, where it is the string's fixed byte width.
type ElementType struct {
	Kind  ElementKind
	Width int
}

// Size returns the on-disk byte size of one element.
func (t ElementType) Size() int {
	switch t.Kind {
	case Int8, Uint8:
		return 1
	case Int16, Uint16:
		return 2
	case Int32, Uint32, Float32:
		return 4
	case Int64, Uint64, Float64:
		return 8
	case FixedString:
		return t.Width
	default:
		return 0
	}
}

// Compression identifies a compression codec and level, mirroring the
// driver-reported filter metadata that a dataset's creation call must
// propagate to the output.
type Compression struct {
	Codec string // "", "gzip", "lzf", "szip", ...
	Level int
}

// FilterPipeline is the ordered set of transforms applied to each chunk.
// ScaleOffset carries the driver's raw filter parameters opaquely; this
// module never interprets them.
type FilterPipeline struct {
	Shuffle     bool
	Compression Compression
	Fletcher32  bool
	ScaleOffset []int32
}

// IsEmpty reports whether the pipeline applies no transform at all.
func (p FilterPipeline) IsEmpty() bool {
	return !p.Shuffle && p.Compression.Codec == "" && !p.Fletcher32 && len(p.ScaleOffset) == 0
}

// Attr is a single HDF5 attribute, copied verbatim between files.
type Attr struct {
	Name  string
	Type  ElementType
	Dims  []uint64
	Value []byte
}

// DatasetSpec is the frozen, first-seen shape and encoding of a dataset
// path: every later appearance of the same path is checked against it
// rather than allowed to redefine it.
type DatasetSpec struct {
	Path      string
	Type      ElementType
	Dims      []uint64 // trailing (secondary) dimensions, outer dim excluded
	ChunkDims []uint64 // chunk shape, outer-dim-first
	Filters   FilterPipeline
	FillValue []byte
	Attrs     []Attr
}

// RowBytes returns the byte size of a single row: element size times the
// product of the trailing dimensions.
func (s DatasetSpec) RowBytes() int64 {
	n := int64(s.Type.Size())
	for _, d := range s.Dims {
		n *= int64(d)
	}
	return n
}

// ChunkRows returns the chunk size along the outer dimension.
func (s DatasetSpec) ChunkRows() uint64 {
	if len(s.ChunkDims) == 0 {
		return 0
	}
	return s.ChunkDims[0]
}

// NodeKind classifies a node visited during a depth-first walk of a tree of
// groups and datasets.
type NodeKind int

const (
	KindGroup NodeKind = iota
	KindDataset
	KindOther
)
