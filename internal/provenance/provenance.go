// Package provenance derives a per-input string value from its source
// path via a sequence of regex substitutions, and maintains a fixed-width
// string dataset per group recording that value for every row of every
// sibling dataset contributed by that input.
package provenance

import (
	"context"
	"regexp"
	"strings"

	"github.com/pingcap/errors"

	"github.com/art-framework-suite/hep-hpc/internal/hdf5io"
	"github.com/art-framework-suite/hep-hpc/internal/registry"
)

// Rule is one (pattern, replacement) step applied in order to an input's
// path to derive the column's value.
type Rule struct {
	Pattern     *regexp.Regexp
	Replacement string
}

// Spec configures the provenance column: its dataset name, the ordered
// substitution rules that derive its value, its fixed width (the maximum
// derived value length across every input in this run, computed up front
// by the caller) and an optional restriction to particular groups.
type Spec struct {
	// Name is the dataset name (not a full path) created once per group
	// this run touches, e.g. "filename".
	Name string
	// Rules, applied in order, (pattern, replacement) against an input's
	// source path to produce the column's string value. No rules means
	// the raw path is used unmodified.
	Rules []Rule
	// Width is the fixed byte width every provenance dataset this run
	// creates uses, precomputed as the longest derived value across all
	// inputs so no later input's value is ever truncated.
	Width int
	// Groups, if non-empty, restricts annotation to these group paths and
	// their descendants (the same anchored, component-wise prefix match
	// --only-groups uses), not just exact matches. Empty means every
	// group the walker visited.
	Groups map[string]struct{}
}

// Derive applies every rule in order to sourcePath and returns the result.
func (s Spec) Derive(sourcePath string) string {
	v := sourcePath
	for _, r := range s.Rules {
		v = r.Pattern.ReplaceAllString(v, r.Replacement)
	}
	return v
}

func (s Spec) applies(group string) bool {
	if len(s.Groups) == 0 {
		return true
	}
	for g := range s.Groups {
		if pathIsOrUnder(group, g) {
			return true
		}
	}
	return false
}

// pathIsOrUnder reports whether path equals prefix or is a descendant of
// it, matching on "/"-separated components rather than raw string
// prefixes: "/ab" is not under "/a". Mirrors walker.pathIsOrUnder, used
// for the same anchored-prefix semantics on the --only-groups side.
func pathIsOrUnder(path, prefix string) bool {
	path = strings.TrimRight(path, "/")
	prefix = strings.TrimRight(prefix, "/")
	if path == prefix {
		return true
	}
	return strings.HasPrefix(path, prefix+"/")
}

// Annotator applies one Spec across however many groups a run's inputs
// touch.
type Annotator struct {
	Spec Spec
}

// Flush brings the provenance dataset under group up to date with value:
// it creates the dataset on first use, computes group_max (the longest
// current length among the group's other datasets), and if that exceeds
// the provenance column's own current length, extends the column with
// copies of value to close the gap.
func (a *Annotator) Flush(ctx context.Context, out hdf5io.OutputFile, reg *registry.Registry, group string, value string) error {
	if !a.Spec.applies(group) {
		return nil
	}
	if len(value) > a.Spec.Width {
		return errors.Errorf("provenance value %q (%d bytes) exceeds configured width %d", value, len(value), a.Spec.Width)
	}

	path := joinPath(group, a.Spec.Name)
	spec := hdf5io.DatasetSpec{
		Path:      path,
		Type:      hdf5io.ElementType{Kind: hdf5io.FixedString, Width: a.Spec.Width},
		ChunkDims: []uint64{4096},
	}
	ent, err := reg.Ensure(ctx, out, spec)
	if err != nil {
		return errors.Annotatef(err, "ensure provenance dataset %q", path)
	}

	cur, err := ent.Out.Len(ctx)
	if err != nil {
		return errors.Annotatef(err, "read length of %q", path)
	}

	var groupMax uint64
	for _, sibling := range reg.DatasetsInGroup(group) {
		if sibling == ent {
			continue
		}
		l, err := sibling.Out.Len(ctx)
		if err != nil {
			return errors.Annotatef(err, "read length of %q", sibling.Spec.Path)
		}
		if l > groupMax {
			groupMax = l
		}
	}

	if groupMax <= cur {
		return nil
	}
	delta := groupMax - cur

	if err := ent.Out.Resize(ctx, cur+delta); err != nil {
		return errors.Annotatef(err, "resize provenance dataset %q", path)
	}

	row := make([]byte, a.Spec.Width)
	copy(row, value)
	buf := make([]byte, 0, int(delta)*a.Spec.Width)
	for i := uint64(0); i < delta; i++ {
		buf = append(buf, row...)
	}
	if err := ent.Out.WriteRows(ctx, cur, delta, buf); err != nil {
		return errors.Annotatef(err, "write provenance dataset %q", path)
	}
	return nil
}

func joinPath(group, name string) string {
	if group == "/" || group == "" {
		return "/" + name
	}
	return group + "/" + name
}
