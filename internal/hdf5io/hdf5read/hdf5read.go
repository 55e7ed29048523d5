// Package hdf5read adapts github.com/robert-malhotra/go-hdf5 to the
// hdf5io.InputDriver surface. go-hdf5 classifies a dataset's storage layout
// (compact, contiguous or chunked) and hands back the assembled element
// array; this adapter's job is purely to reshape that into the row-major
// byte slices and DatasetSpec values hdf5io describes, nothing more.
package hdf5read

import (
	"context"

	gohdf5 "github.com/robert-malhotra/go-hdf5/hdf5"
	"github.com/pingcap/errors"

	"github.com/art-framework-suite/hep-hpc/internal/hdf5io"
)

// Driver opens input containers through go-hdf5.
type Driver struct{}

// New returns a Driver. It holds no state; every OpenInput call gets its
// own go-hdf5 file handle.
func New() *Driver { return &Driver{} }

func (d *Driver) OpenInput(ctx context.Context, path string) (hdf5io.InputFile, error) {
	f, err := gohdf5.Open(path)
	if err != nil {
		return nil, errors.Annotatef(err, "hdf5read: open %q", path)
	}
	return &inputFile{f: f}, nil
}

type inputFile struct {
	f *gohdf5.File
}

func (in *inputFile) Close() error {
	return in.f.Close()
}

func (in *inputFile) Walk(ctx context.Context, fn hdf5io.WalkFunc) error {
	root, err := in.f.Root()
	if err != nil {
		return errors.Annotate(err, "hdf5read: root group")
	}
	return walkGroup(root, "", fn)
}

func walkGroup(g *gohdf5.Group, path string, fn hdf5io.WalkFunc) error {
	entries, err := g.Children()
	if err != nil {
		return errors.Annotatef(err, "hdf5read: list children of %q", path)
	}
	for _, e := range entries {
		childPath := path + "/" + e.Name()
		switch {
		case e.IsGroup():
			if err := fn(hdf5io.KindGroup, childPath, nil); err != nil {
				return err
			}
			child, err := g.OpenGroup(e.Name())
			if err != nil {
				return errors.Annotatef(err, "hdf5read: open group %q", childPath)
			}
			if err := walkGroup(child, childPath, fn); err != nil {
				return err
			}
		case e.IsDataset():
			ds, err := g.OpenDataset(e.Name())
			if err != nil {
				return errors.Annotatef(err, "hdf5read: open dataset %q", childPath)
			}
			spec, err := specOf(childPath, ds)
			if err != nil {
				return err
			}
			if err := fn(hdf5io.KindDataset, childPath, &dataset{ds: ds, spec: spec}); err != nil {
				return err
			}
		default:
			if err := fn(hdf5io.KindOther, childPath, nil); err != nil {
				return err
			}
		}
	}
	return nil
}

func specOf(path string, ds *gohdf5.Dataset) (hdf5io.DatasetSpec, error) {
	dt, err := ds.Datatype()
	if err != nil {
		return hdf5io.DatasetSpec{}, errors.Annotatef(err, "hdf5read: datatype of %q", path)
	}
	dims := ds.Dims()
	var secondary []uint64
	if len(dims) > 1 {
		secondary = dims[1:]
	}
	chunk := ds.ChunkDims()

	attrs, err := ds.Attrs()
	if err != nil {
		return hdf5io.DatasetSpec{}, errors.Annotatef(err, "hdf5read: attrs of %q", path)
	}
	out := make([]hdf5io.Attr, 0, len(attrs))
	for _, a := range attrs {
		out = append(out, hdf5io.Attr{
			Name:  a.Name(),
			Type:  elementTypeOf(a.Datatype()),
			Dims:  a.Dims(),
			Value: a.RawValue(),
		})
	}

	return hdf5io.DatasetSpec{
		Path:      path,
		Type:      elementTypeOf(dt),
		Dims:      secondary,
		ChunkDims: chunk,
		Filters:   filtersOf(ds),
		FillValue: ds.FillValue(),
		Attrs:     out,
	}, nil
}

func elementTypeOf(dt gohdf5.Datatype) hdf5io.ElementType {
	switch dt.Class() {
	case gohdf5.ClassInteger:
		switch {
		case dt.Size() == 1 && dt.Signed():
			return hdf5io.ElementType{Kind: hdf5io.Int8}
		case dt.Size() == 1:
			return hdf5io.ElementType{Kind: hdf5io.Uint8}
		case dt.Size() == 2 && dt.Signed():
			return hdf5io.ElementType{Kind: hdf5io.Int16}
		case dt.Size() == 2:
			return hdf5io.ElementType{Kind: hdf5io.Uint16}
		case dt.Size() == 4 && dt.Signed():
			return hdf5io.ElementType{Kind: hdf5io.Int32}
		case dt.Size() == 4:
			return hdf5io.ElementType{Kind: hdf5io.Uint32}
		case dt.Signed():
			return hdf5io.ElementType{Kind: hdf5io.Int64}
		default:
			return hdf5io.ElementType{Kind: hdf5io.Uint64}
		}
	case gohdf5.ClassFloat:
		if dt.Size() == 4 {
			return hdf5io.ElementType{Kind: hdf5io.Float32}
		}
		return hdf5io.ElementType{Kind: hdf5io.Float64}
	case gohdf5.ClassString:
		return hdf5io.ElementType{Kind: hdf5io.FixedString, Width: dt.Size()}
	default:
		return hdf5io.ElementType{Kind: hdf5io.Uint8, Width: dt.Size()}
	}
}

func filtersOf(ds *gohdf5.Dataset) hdf5io.FilterPipeline {
	fp := ds.Filters()
	var p hdf5io.FilterPipeline
	for _, f := range fp {
		switch f.ID() {
		case gohdf5.FilterShuffle:
			p.Shuffle = true
		case gohdf5.FilterFletcher32:
			p.Fletcher32 = true
		case gohdf5.FilterDeflate:
			p.Compression = hdf5io.Compression{Codec: "gzip", Level: int(f.Level())}
		case gohdf5.FilterScaleOffset:
			p.ScaleOffset = f.Params()
		}
	}
	return p
}

type dataset struct {
	ds   *gohdf5.Dataset
	spec hdf5io.DatasetSpec
}

func (d *dataset) Spec() hdf5io.DatasetSpec { return d.spec }

func (d *dataset) Len() uint64 {
	dims := d.ds.Dims()
	if len(dims) == 0 {
		return 0
	}
	return dims[0]
}

func (d *dataset) ReadRows(ctx context.Context, start, count uint64) ([]byte, error) {
	buf, err := d.ds.ReadHyperslab(start, count)
	if err != nil {
		return nil, errors.Annotatef(err, "hdf5read: read rows [%d,%d) of %q", start, start+count, d.spec.Path)
	}
	return buf, nil
}
