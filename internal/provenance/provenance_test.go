package provenance

import (
	"context"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/art-framework-suite/hep-hpc/internal/hdf5io"
	"github.com/art-framework-suite/hep-hpc/internal/hdf5io/memdriver"
	"github.com/art-framework-suite/hep-hpc/internal/registry"
)

func mustRule(pattern, replacement string) Rule {
	return Rule{Pattern: regexp.MustCompile(pattern), Replacement: replacement}
}

func TestDerive(t *testing.T) {
	s := Spec{Rules: []Rule{mustRule("^.*/", "")}}
	assert.Equal(t, "x.h5", s.Derive("/a/b/x.h5"))

	noRules := Spec{}
	assert.Equal(t, "/a/b/x.h5", noRules.Derive("/a/b/x.h5"))

	chained := Spec{Rules: []Rule{mustRule("^.*/", ""), mustRule(`\.h5$`, "")}}
	assert.Equal(t, "x", chained.Derive("/a/b/x.h5"))
}

func intSpec(path string, chunk uint64) hdf5io.DatasetSpec {
	return hdf5io.DatasetSpec{Path: path, Type: hdf5io.ElementType{Kind: hdf5io.Int32}, ChunkDims: []uint64{chunk}}
}

// Two inputs each contributing 10 rows to /g/data; after each is flushed,
// /g/src must track /g/data's length with the derived value for that
// input, fixed at the width of the longer name.
func TestFlush_TracksGroupMaxLength(t *testing.T) {
	ctx := context.Background()
	out := memdriver.NewFile()
	reg := registry.New(1 << 20)

	dataSpec := intSpec("/g/data", 16)
	ent, err := reg.Ensure(ctx, out, dataSpec)
	require.NoError(t, err)
	require.NoError(t, ent.Out.Resize(ctx, 10))

	a := &Annotator{Spec: Spec{Name: "src", Rules: []Rule{mustRule("^.*/", "")}, Width: 4}}
	require.NoError(t, a.Flush(ctx, out, reg, "/g", a.Spec.Derive("/a/x.h5")))

	srcEnt, ok := reg.Lookup("/g/src")
	require.True(t, ok)
	l, err := srcEnt.Out.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(10), l)

	buf, err := srcEnt.Out.ReadRows(ctx, 0, 10)
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		row := buf[i*4 : i*4+4]
		assert.Equal(t, "x.h5", string(row))
	}

	require.NoError(t, ent.Out.Resize(ctx, 20))
	require.NoError(t, a.Flush(ctx, out, reg, "/g", a.Spec.Derive("/a/y.h5")))

	l, err = srcEnt.Out.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(20), l)

	buf, err = srcEnt.Out.ReadRows(ctx, 10, 10)
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		row := buf[i*4 : i*4+4]
		assert.Equal(t, "y.h5", string(row))
	}
}

func TestFlush_NoOpWhenAlreadyCaughtUp(t *testing.T) {
	ctx := context.Background()
	out := memdriver.NewFile()
	reg := registry.New(1 << 20)

	dataSpec := intSpec("/g/data", 16)
	ent, err := reg.Ensure(ctx, out, dataSpec)
	require.NoError(t, err)
	require.NoError(t, ent.Out.Resize(ctx, 5))

	a := &Annotator{Spec: Spec{Name: "src", Width: 4}}
	require.NoError(t, a.Flush(ctx, out, reg, "/g", "abcd"))
	require.NoError(t, a.Flush(ctx, out, reg, "/g", "abcd")) // group_max unchanged, must not resize again

	srcEnt, _ := reg.Lookup("/g/src")
	l, err := srcEnt.Out.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(5), l)
}

func TestFlush_ValueTooWide(t *testing.T) {
	ctx := context.Background()
	out := memdriver.NewFile()
	reg := registry.New(1 << 20)

	a := &Annotator{Spec: Spec{Name: "src", Width: 2}}
	err := a.Flush(ctx, out, reg, "/g", "toolong")
	require.Error(t, err)
}

func TestFlush_RestrictedToConfiguredGroups(t *testing.T) {
	ctx := context.Background()
	out := memdriver.NewFile()
	reg := registry.New(1 << 20)

	a := &Annotator{Spec: Spec{Name: "src", Width: 4, Groups: map[string]struct{}{"/g": {}}}}
	require.NoError(t, a.Flush(ctx, out, reg, "/other", "abcd"))

	_, ok := reg.Lookup("/other/src")
	assert.False(t, ok, "provenance column must not be created for a group outside the configured set")
}

func TestFlush_ConfiguredGroupMatchesDescendants(t *testing.T) {
	ctx := context.Background()
	out := memdriver.NewFile()
	reg := registry.New(1 << 20)

	a := &Annotator{Spec: Spec{Name: "src", Width: 4, Groups: map[string]struct{}{"/g": {}}}}

	require.NoError(t, a.Flush(ctx, out, reg, "/g/nested", "abcd"))
	_, ok := reg.Lookup("/g/nested/src")
	assert.True(t, ok, "a subgroup of a configured group must still receive the provenance column")

	require.NoError(t, a.Flush(ctx, out, reg, "/ganymede", "abcd"))
	_, ok = reg.Lookup("/ganymede/src")
	assert.False(t, ok, "component-wise match: /ganymede is not under /g")
}
