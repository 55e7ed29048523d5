package walker

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/art-framework-suite/hep-hpc/internal/hdf5io"
	"github.com/art-framework-suite/hep-hpc/internal/hdf5io/memdriver"
)

type recordingVisitor struct {
	groups   []string
	datasets []string
	others   []string
}

func (v *recordingVisitor) VisitGroup(ctx context.Context, path string) error {
	v.groups = append(v.groups, path)
	return nil
}

func (v *recordingVisitor) VisitDataset(ctx context.Context, path string, ds hdf5io.Dataset) error {
	v.datasets = append(v.datasets, path)
	return nil
}

func (v *recordingVisitor) VisitOther(ctx context.Context, path string) {
	v.others = append(v.others, path)
}

func intSpec(path string) hdf5io.DatasetSpec {
	return hdf5io.DatasetSpec{Path: path, Type: hdf5io.ElementType{Kind: hdf5io.Int32}, ChunkDims: []uint64{16}}
}

func TestWalk_VisitsEverythingWithNoFilter(t *testing.T) {
	f := memdriver.NewFile()
	f.PutGroup("/a")
	f.PutDataset("/a/x", intSpec("/a/x"), nil)
	f.PutDataset("/b/y", intSpec("/b/y"), nil)

	w := Walker{}
	v := &recordingVisitor{}
	seen, err := w.Walk(context.Background(), f, v)
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{"/a", "/b"}, v.groups)
	assert.ElementsMatch(t, []string{"/a/x", "/b/y"}, v.datasets)
	assert.Contains(t, seen, "/a")
	assert.Contains(t, seen, "/b")
}

func TestWalk_OnlyGroupsFiltersGroupsAndTheirDatasets(t *testing.T) {
	f := memdriver.NewFile()
	f.PutDataset("/a/x", intSpec("/a/x"), nil)
	f.PutDataset("/ab/y", intSpec("/ab/y"), nil) // must NOT match OnlyGroups=["/a"]
	f.PutDataset("/a/nested/z", intSpec("/a/nested/z"), nil)

	w := Walker{OnlyGroups: []string{"/a"}}
	v := &recordingVisitor{}
	seen, err := w.Walk(context.Background(), f, v)
	require.NoError(t, err)

	assert.Contains(t, v.datasets, "/a/x")
	assert.Contains(t, v.datasets, "/a/nested/z")
	assert.NotContains(t, v.datasets, "/ab/y")
	assert.NotContains(t, v.groups, "/ab")
	assert.NotContains(t, seen, "/ab")
}

// TestWalk_DatasetRecordsParentGroupEvenWithoutAGroupNode covers a dataset
// living directly in the root group: the container never emits a separate
// KindGroup event for "/" itself, so the root must still land in seen via
// the dataset visit.
func TestWalk_DatasetRecordsParentGroupEvenWithoutAGroupNode(t *testing.T) {
	f := memdriver.NewFile()
	f.PutDataset("/data", intSpec("/data"), nil)

	w := Walker{}
	v := &recordingVisitor{}
	seen, err := w.Walk(context.Background(), f, v)
	require.NoError(t, err)

	assert.Contains(t, v.datasets, "/data")
	assert.Empty(t, v.groups, "root is never visited as a KindGroup node")
	assert.Contains(t, seen, "/", "the dataset's parent group must still be recorded")
}

// otherNodeFile is an input whose only node is neither a group nor a
// dataset, as a named datatype or soft link would be. memdriver has no
// such node kind.
type otherNodeFile struct{}

func (otherNodeFile) Walk(ctx context.Context, fn hdf5io.WalkFunc) error {
	return fn(hdf5io.KindOther, "/link", nil)
}

func (otherNodeFile) Close() error { return nil }

func TestWalk_UnrecognizedNodeIsWarnedNotFatal(t *testing.T) {
	// An empty file walks trivially.
	f := memdriver.NewFile()
	w := Walker{}
	seen, err := w.Walk(context.Background(), f, &recordingVisitor{})
	require.NoError(t, err)
	assert.Empty(t, seen)

	// A node of no known kind is handed to VisitOther and the walk goes on.
	v := &recordingVisitor{}
	seen, err = w.Walk(context.Background(), otherNodeFile{}, v)
	require.NoError(t, err)
	assert.Equal(t, []string{"/link"}, v.others)
	assert.Empty(t, v.datasets)
	assert.Empty(t, seen)
}

func TestPathIsOrUnder(t *testing.T) {
	assert.True(t, pathIsOrUnder("/a", "/a"))
	assert.True(t, pathIsOrUnder("/a/b", "/a"))
	assert.False(t, pathIsOrUnder("/ab", "/a"))
	assert.False(t, pathIsOrUnder("/b", "/a"))
}
