// Package memdriver is an in-memory stand-in for hdf5io.InputDriver and
// hdf5io.OutputDriver. It exists so that internal/registry,
// internal/scheduler, internal/walker, internal/provenance and
// internal/concat can be exercised by fast, deterministic tests without a
// real container library on disk.
package memdriver

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/pingcap/errors"

	"github.com/art-framework-suite/hep-hpc/internal/hdf5io"
)

type nodeKind int

const (
	nodeGroup nodeKind = iota
	nodeDataset
)

type node struct {
	kind     nodeKind
	name     string
	children []*node // groups only, kept in insertion order

	// dataset-only fields
	spec hdf5io.DatasetSpec
	rows [][]byte // one entry per row, each RowBytes() long
}

// File is a named, in-memory container: a tree of group nodes rooted at
// "/", with dataset leaves. It implements both hdf5io.InputFile (read) and
// hdf5io.OutputFile (write); tests typically build one with NewFile, seed it
// via Put* helpers to act as an input, or hand it to Driver as the output.
type File struct {
	mu   sync.Mutex
	root *node
}

// NewFile returns an empty container with only the root group "/".
func NewFile() *File {
	return &File{root: &node{kind: nodeGroup, name: ""}}
}

func splitPath(path string) []string {
	path = strings.Trim(path, "/")
	if path == "" {
		return nil
	}
	return strings.Split(path, "/")
}

// lookup walks from root following parts, returning the final node and
// whether the full path was found. locked callers only.
func (f *File) lookup(parts []string) (*node, bool) {
	cur := f.root
	for _, p := range parts {
		var next *node
		for _, c := range cur.children {
			if c.name == p {
				next = c
				break
			}
		}
		if next == nil {
			return nil, false
		}
		cur = next
	}
	return cur, true
}

func (f *File) ensureGroup(parts []string) *node {
	cur := f.root
	for _, p := range parts {
		var next *node
		for _, c := range cur.children {
			if c.name == p {
				next = c
				break
			}
		}
		if next == nil {
			next = &node{kind: nodeGroup, name: p}
			cur.children = append(cur.children, next)
		}
		cur = next
	}
	return cur
}

// PutDataset seeds path with spec and rows, creating intermediate groups as
// needed. Intended for building input fixtures in tests.
func (f *File) PutDataset(path string, spec hdf5io.DatasetSpec, rows [][]byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	parts := splitPath(path)
	if len(parts) == 0 {
		return
	}
	parent := f.ensureGroup(parts[:len(parts)-1])
	name := parts[len(parts)-1]
	for _, c := range parent.children {
		if c.name == name && c.kind == nodeDataset {
			c.spec = spec
			c.rows = rows
			return
		}
	}
	spec.Path = path
	parent.children = append(parent.children, &node{kind: nodeDataset, name: name, spec: spec, rows: rows})
}

// PutGroup seeds an empty group at path, creating intermediates as needed.
func (f *File) PutGroup(path string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ensureGroup(splitPath(path))
}

// --- hdf5io.InputFile ---

func (f *File) Walk(ctx context.Context, fn hdf5io.WalkFunc) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.walkNode(f.root, "", fn)
}

func (f *File) walkNode(n *node, path string, fn hdf5io.WalkFunc) error {
	for _, c := range n.children {
		childPath := path + "/" + c.name
		switch c.kind {
		case nodeGroup:
			if err := fn(hdf5io.KindGroup, childPath, nil); err != nil {
				return err
			}
			if err := f.walkNode(c, childPath, fn); err != nil {
				return err
			}
		case nodeDataset:
			if err := fn(hdf5io.KindDataset, childPath, &memDataset{f: f, n: c}); err != nil {
				return err
			}
		}
	}
	return nil
}

func (f *File) Close() error { return nil }

type memDataset struct {
	f *File
	n *node
}

func (d *memDataset) Spec() hdf5io.DatasetSpec { return d.n.spec }

func (d *memDataset) Len() uint64 {
	d.f.mu.Lock()
	defer d.f.mu.Unlock()
	return uint64(len(d.n.rows))
}

func (d *memDataset) ReadRows(ctx context.Context, start, count uint64) ([]byte, error) {
	d.f.mu.Lock()
	defer d.f.mu.Unlock()
	if start+count > uint64(len(d.n.rows)) {
		return nil, errors.Errorf("memdriver: read [%d,%d) out of range (len %d)", start, start+count, len(d.n.rows))
	}
	rb := int(d.n.spec.RowBytes())
	out := make([]byte, 0, int(count)*rb)
	for i := start; i < start+count; i++ {
		out = append(out, d.n.rows[i]...)
	}
	return out, nil
}

// --- hdf5io.OutputFile ---

func (f *File) EnsureGroup(ctx context.Context, path string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ensureGroup(splitPath(path))
	return nil
}

func (f *File) CreateDataset(ctx context.Context, spec hdf5io.DatasetSpec) (hdf5io.OutputDataset, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	parts := splitPath(spec.Path)
	if len(parts) == 0 {
		return nil, errors.Errorf("memdriver: empty dataset path")
	}
	parent := f.ensureGroup(parts[:len(parts)-1])
	name := parts[len(parts)-1]
	for _, c := range parent.children {
		if c.name == name {
			return nil, errors.Errorf("memdriver: dataset already exists at %q", spec.Path)
		}
	}
	n := &node{kind: nodeDataset, name: name, spec: spec}
	parent.children = append(parent.children, n)
	return &memOutDataset{memDataset{f: f, n: n}}, nil
}

func (f *File) OpenDataset(ctx context.Context, path string) (hdf5io.OutputDataset, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n, ok := f.lookup(splitPath(path))
	if !ok || n.kind != nodeDataset {
		return nil, false, nil
	}
	return &memOutDataset{memDataset{f: f, n: n}}, true, nil
}

func (f *File) CopyAttrs(ctx context.Context, path string, attrs []hdf5io.Attr) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	n, ok := f.lookup(splitPath(path))
	if !ok || n.kind != nodeDataset {
		return errors.Errorf("memdriver: no dataset at %q", path)
	}
	n.spec.Attrs = append(n.spec.Attrs, attrs...)
	return nil
}

// memOutDataset is the hdf5io.OutputDataset view of a dataset node. Its
// context-taking Len takes the place of the embedded memDataset's
// input-side Len; Spec and ReadRows are shared.
type memOutDataset struct {
	memDataset
}

func (d *memOutDataset) Resize(ctx context.Context, newLen uint64) error {
	d.f.mu.Lock()
	defer d.f.mu.Unlock()
	cur := uint64(len(d.n.rows))
	if newLen < cur {
		return errors.Errorf("memdriver: cannot shrink dataset %q from %d to %d", d.n.spec.Path, cur, newLen)
	}
	rb := int(d.n.spec.RowBytes())
	for cur < newLen {
		row := make([]byte, rb)
		if len(d.n.spec.FillValue) == rb {
			copy(row, d.n.spec.FillValue)
		}
		d.n.rows = append(d.n.rows, row)
		cur++
	}
	return nil
}

func (d *memOutDataset) Len(ctx context.Context) (uint64, error) {
	d.f.mu.Lock()
	defer d.f.mu.Unlock()
	return uint64(len(d.n.rows)), nil
}

func (d *memOutDataset) WriteRows(ctx context.Context, outStart, rows uint64, data []byte) error {
	d.f.mu.Lock()
	defer d.f.mu.Unlock()
	if rows == 0 {
		return nil
	}
	rb := int(d.n.spec.RowBytes())
	if int64(len(data)) != int64(rows)*int64(rb) {
		return errors.Errorf("memdriver: write data length %d != rows(%d)*rowbytes(%d)", len(data), rows, rb)
	}
	if outStart+rows > uint64(len(d.n.rows)) {
		return errors.Errorf("memdriver: write [%d,%d) exceeds dataset length %d; Resize first", outStart, outStart+rows, len(d.n.rows))
	}
	for i := uint64(0); i < rows; i++ {
		row := make([]byte, rb)
		copy(row, data[int(i)*rb:int(i+1)*rb])
		d.n.rows[outStart+i] = row
	}
	return nil
}

// SortedChildNames returns the names of path's immediate children in
// lexical order, used by tests asserting on group/dataset layout without
// depending on insertion order.
func (f *File) SortedChildNames(path string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	n, ok := f.lookup(splitPath(path))
	if !ok {
		return nil
	}
	names := make([]string, 0, len(n.children))
	for _, c := range n.children {
		names = append(names, c.name)
	}
	sort.Strings(names)
	return names
}

// Driver implements hdf5io.InputDriver and hdf5io.OutputDriver over a fixed
// set of named in-memory Files, as if each name were a filesystem path.
type Driver struct {
	mu    sync.Mutex
	files map[string]*File
}

// NewDriver returns a Driver with no registered files.
func NewDriver() *Driver {
	return &Driver{files: make(map[string]*File)}
}

// Register associates name with f so OpenInput/OpenOutput can find it.
func (d *Driver) Register(name string, f *File) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.files[name] = f
}

func (d *Driver) OpenInput(ctx context.Context, path string) (hdf5io.InputFile, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	f, ok := d.files[path]
	if !ok {
		return nil, errors.Trace(hdf5io.ErrNotFound)
	}
	return f, nil
}

func (d *Driver) OpenOutput(ctx context.Context, path string, mode hdf5io.OpenMode) (hdf5io.OutputFile, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	f, ok := d.files[path]
	if !ok {
		if mode == hdf5io.Append {
			return nil, errors.Trace(hdf5io.ErrNotFound)
		}
		f = NewFile()
		d.files[path] = f
	} else if mode == hdf5io.CreateExclusive {
		return nil, errors.Errorf("memdriver: %q already exists", path)
	}
	return f, nil
}
