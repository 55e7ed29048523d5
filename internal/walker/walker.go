// Package walker performs the depth-first visit of one input file's tree
// of groups and datasets, applying the group-include filter and tracking
// which groups this input actually visited.
package walker

import (
	"context"
	"strings"

	"github.com/pingcap/errors"

	"github.com/art-framework-suite/hep-hpc/internal/hdf5io"
)

// GroupSet records the groups a single input file's walk visited. It is
// reset at the start of every input file.
type GroupSet map[string]struct{}

// Visitor receives callbacks for every included group and dataset, in
// depth-first, parent-before-children order.
type Visitor interface {
	VisitGroup(ctx context.Context, path string) error
	VisitDataset(ctx context.Context, path string, ds hdf5io.Dataset) error
	// VisitOther is called for a node that is neither a group nor a
	// dataset (e.g. a named datatype or a soft link); per this walk's
	// contract it is ignored with a warning, never fatal.
	VisitOther(ctx context.Context, path string)
}

// Walker drives one input file's traversal, filtering by an optional list
// of group-path prefixes.
type Walker struct {
	// OnlyGroups, if non-empty, restricts the walk to these paths and
	// everything beneath them. A path matches if it equals one of
	// OnlyGroups or is nested under one (an anchored prefix match on path
	// components, not a raw string prefix, so "/ab" does not match an
	// OnlyGroups entry of "/a").
	OnlyGroups []string
}

// Walk visits in, calling v for every group and dataset that passes the
// group filter, and returns the set of groups actually visited.
func (w *Walker) Walk(ctx context.Context, in hdf5io.InputFile, v Visitor) (GroupSet, error) {
	seen := make(GroupSet)
	err := in.Walk(ctx, func(kind hdf5io.NodeKind, path string, ds hdf5io.Dataset) error {
		switch kind {
		case hdf5io.KindGroup:
			if !w.included(path) {
				return nil
			}
			seen[path] = struct{}{}
			return v.VisitGroup(ctx, path)
		case hdf5io.KindDataset:
			parent := parentOf(path)
			if !w.included(parent) {
				return nil
			}
			seen[parent] = struct{}{}
			return v.VisitDataset(ctx, path, ds)
		default:
			v.VisitOther(ctx, path)
			return nil
		}
	})
	if err != nil {
		return nil, errors.Trace(err)
	}
	return seen, nil
}

// included reports whether path is itself a configured group, or is
// nested under one. An empty OnlyGroups includes everything.
func (w *Walker) included(path string) bool {
	if len(w.OnlyGroups) == 0 {
		return true
	}
	for _, g := range w.OnlyGroups {
		if pathIsOrUnder(path, g) {
			return true
		}
	}
	return false
}

// pathIsOrUnder reports whether path equals prefix or is a descendant of
// it, matching on "/"-separated components rather than raw string
// prefixes: "/ab" is not under "/a".
func pathIsOrUnder(path, prefix string) bool {
	path = strings.TrimRight(path, "/")
	prefix = strings.TrimRight(prefix, "/")
	if path == prefix {
		return true
	}
	return strings.HasPrefix(path, prefix+"/")
}

func parentOf(path string) string {
	i := strings.LastIndex(path, "/")
	if i <= 0 {
		return "/"
	}
	return path[:i]
}
