// Package hdf5write adapts github.com/scigolib/hdf5 to the
// hdf5io.OutputDriver surface.
//
// The upstream library writes a dataset in a single non-incremental call:
// creation followed by one Write with the dataset's full contents, with no
// resize or partial-write support. This adapter therefore buffers each
// dataset's rows in memory, in the same row-major byte layout
// hdf5io.OutputDataset already deals in, and defers the single real write
// to Close. Every Resize/WriteRows call the scheduler issues lands in the
// buffer; dataset contents reach the library only at Close, while
// EnsureGroup creates groups in the library at once. Scheduler and registry code,
// which assumes incremental resize/write, stays unaware of the
// limitation.
package hdf5write

import (
	"context"
	"sync"

	"github.com/pingcap/errors"

	libhdf5 "github.com/scigolib/hdf5"

	"github.com/art-framework-suite/hep-hpc/internal/hdf5io"
)

// Driver opens (creates) the single output container through scigolib/hdf5.
type Driver struct{}

func New() *Driver { return &Driver{} }

func (d *Driver) OpenOutput(ctx context.Context, path string, mode hdf5io.OpenMode) (hdf5io.OutputFile, error) {
	if mode == hdf5io.Append {
		return nil, errors.Errorf("hdf5write: scigolib/hdf5 has no append-to-existing-file support; open output fresh")
	}
	fw, err := libhdf5.Create(path)
	if err != nil {
		return nil, errors.Annotatef(err, "hdf5write: create %q", path)
	}
	return &outputFile{fw: fw, datasets: make(map[string]*bufferedDataset)}, nil
}

type outputFile struct {
	mu       sync.Mutex
	fw       *libhdf5.FileWriter
	closed   bool
	datasets map[string]*bufferedDataset
}

func (f *outputFile) EnsureGroup(ctx context.Context, path string) error {
	if path == "" || path == "/" {
		return nil
	}
	if err := f.fw.CreateGroup(path); err != nil {
		return errors.Annotatef(err, "hdf5write: create group %q", path)
	}
	return nil
}

func (f *outputFile) CreateDataset(ctx context.Context, spec hdf5io.DatasetSpec) (hdf5io.OutputDataset, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, exists := f.datasets[spec.Path]; exists {
		return nil, errors.Errorf("hdf5write: dataset %q already created", spec.Path)
	}
	bd := &bufferedDataset{file: f, spec: spec}
	f.datasets[spec.Path] = bd
	return bd, nil
}

func (f *outputFile) OpenDataset(ctx context.Context, path string) (hdf5io.OutputDataset, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	bd, ok := f.datasets[path]
	return bd, ok, nil
}

func (f *outputFile) CopyAttrs(ctx context.Context, path string, attrs []hdf5io.Attr) error {
	f.mu.Lock()
	bd, ok := f.datasets[path]
	f.mu.Unlock()
	if !ok {
		return errors.Errorf("hdf5write: no dataset at %q for attrs", path)
	}
	bd.spec.Attrs = append(bd.spec.Attrs, attrs...)
	return nil
}

// Close materializes every buffered dataset through the library's one-shot
// chunked-dataset write, then closes the file.
func (f *outputFile) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return errors.Trace(hdf5io.ErrClosed)
	}
	f.closed = true
	for path, bd := range f.datasets {
		dtype, err := libDatatype(bd.spec.Type)
		if err != nil {
			return errors.Annotatef(err, "hdf5write: datatype for %q", path)
		}
		dims := append([]uint64{uint64(len(bd.rows))}, bd.spec.Dims...)
		opts := []libhdf5.DatasetOption{libhdf5.WithChunkDims(bd.spec.ChunkDims)}
		if bd.spec.Filters.Shuffle {
			opts = append(opts, libhdf5.WithShuffle())
		}
		if bd.spec.Filters.Compression.Codec == "gzip" {
			opts = append(opts, libhdf5.WithDeflate(bd.spec.Filters.Compression.Level))
		}
		if bd.spec.Filters.Fletcher32 {
			opts = append(opts, libhdf5.WithFletcher32())
		}

		dw, err := f.fw.CreateDataset(path, dtype, dims, opts...)
		if err != nil {
			return errors.Annotatef(err, "hdf5write: create dataset %q", path)
		}
		buf := make([]byte, 0, int64(len(bd.rows))*bd.spec.RowBytes())
		for _, row := range bd.rows {
			buf = append(buf, row...)
		}
		if err := dw.Write(buf); err != nil {
			return errors.Annotatef(err, "hdf5write: write dataset %q", path)
		}
		for _, a := range bd.spec.Attrs {
			if err := dw.SetAttr(a.Name, a.Value); err != nil {
				return errors.Annotatef(err, "hdf5write: attr %q on %q", a.Name, path)
			}
		}
	}
	if err := f.fw.Close(); err != nil {
		return errors.Annotate(err, "hdf5write: close file")
	}
	return nil
}

func libDatatype(t hdf5io.ElementType) (libhdf5.Datatype, error) {
	switch t.Kind {
	case hdf5io.Int8:
		return libhdf5.Int8, nil
	case hdf5io.Uint8:
		return libhdf5.Uint8, nil
	case hdf5io.Int16:
		return libhdf5.Int16, nil
	case hdf5io.Uint16:
		return libhdf5.Uint16, nil
	case hdf5io.Int32:
		return libhdf5.Int32, nil
	case hdf5io.Uint32:
		return libhdf5.Uint32, nil
	case hdf5io.Int64:
		return libhdf5.Int64, nil
	case hdf5io.Uint64:
		return libhdf5.Uint64, nil
	case hdf5io.Float32:
		return libhdf5.Float32, nil
	case hdf5io.Float64:
		return libhdf5.Float64, nil
	case hdf5io.FixedString:
		return libhdf5.FixedString(t.Width), nil
	default:
		return libhdf5.Datatype{}, errors.Errorf("hdf5write: unsupported element kind %v", t.Kind)
	}
}

// bufferedDataset accumulates rows in memory until the file is closed.
type bufferedDataset struct {
	mu   sync.Mutex
	file *outputFile
	spec hdf5io.DatasetSpec
	rows [][]byte
}

func (d *bufferedDataset) Spec() hdf5io.DatasetSpec { return d.spec }

func (d *bufferedDataset) Len(ctx context.Context) (uint64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return uint64(len(d.rows)), nil
}

func (d *bufferedDataset) Resize(ctx context.Context, newLen uint64) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	rb := int(d.spec.RowBytes())
	for uint64(len(d.rows)) < newLen {
		row := make([]byte, rb)
		if len(d.spec.FillValue) == rb {
			copy(row, d.spec.FillValue)
		}
		d.rows = append(d.rows, row)
	}
	return nil
}

func (d *bufferedDataset) WriteRows(ctx context.Context, outStart, rows uint64, data []byte) error {
	if rows == 0 {
		return nil
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	rb := int(d.spec.RowBytes())
	if int64(len(data)) != int64(rows)*int64(rb) {
		return errors.Errorf("hdf5write: write data length %d != rows(%d)*rowbytes(%d)", len(data), rows, rb)
	}
	if outStart+rows > uint64(len(d.rows)) {
		return errors.Errorf("hdf5write: write [%d,%d) exceeds buffered length %d; Resize first", outStart, outStart+rows, len(d.rows))
	}
	for i := uint64(0); i < rows; i++ {
		row := make([]byte, rb)
		copy(row, data[int(i)*rb:int(i+1)*rb])
		d.rows[outStart+i] = row
	}
	return nil
}

func (d *bufferedDataset) ReadRows(ctx context.Context, start, rows uint64) ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if start+rows > uint64(len(d.rows)) {
		return nil, errors.Errorf("hdf5write: read [%d,%d) out of range (len %d)", start, start+rows, len(d.rows))
	}
	rb := int(d.spec.RowBytes())
	out := make([]byte, 0, int(rows)*rb)
	for i := start; i < start+rows; i++ {
		out = append(out, d.rows[i]...)
	}
	return out, nil
}
