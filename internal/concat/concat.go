// Package concat is the orchestration layer: it owns the output container
// and the dataset registry, and for each input file in turn drives the
// tree walker, the row scheduler and the provenance annotator. None of the
// hard algorithmic work lives here.
package concat

import (
	"context"
	"fmt"

	"github.com/pingcap/errors"

	"github.com/art-framework-suite/hep-hpc/internal/cohort"
	"github.com/art-framework-suite/hep-hpc/internal/hdf5io"
	"github.com/art-framework-suite/hep-hpc/internal/provenance"
	"github.com/art-framework-suite/hep-hpc/internal/registry"
	"github.com/art-framework-suite/hep-hpc/internal/scheduler"
	"github.com/art-framework-suite/hep-hpc/internal/walker"
)

// Logger receives one line per significant event; *util.Logger
// implements it, as does nopLogger in this package's tests.
type Logger interface {
	Infof(format string, args ...any)
	Warnf(format string, args ...any)
}

type nopLogger struct{}

func (nopLogger) Infof(string, ...any) {}
func (nopLogger) Warnf(string, ...any) {}

// Progress receives per-dataset row-count increments as input datasets are
// appended to the output, mirroring Logger's shape; *util.Progress
// implements it. Nil means no progress reporting is wired up.
type Progress interface {
	AddRows(delta int64)
}

// Concatenator appends a sequence of input containers to a single output
// container.
type Concatenator struct {
	Out        hdf5io.OutputFile
	Registry   *registry.Registry
	Walker     walker.Walker
	Provenance *provenance.Annotator // nil if no provenance column configured
	Log        Logger
	Progress   Progress // nil disables row-count progress reporting
}

// New returns a Concatenator ready to process inputs against an already
// open output file and registry.
func New(out hdf5io.OutputFile, reg *registry.Registry, w walker.Walker, prov *provenance.Annotator, log Logger) *Concatenator {
	if log == nil {
		log = nopLogger{}
	}
	return &Concatenator{Out: out, Registry: reg, Walker: w, Provenance: prov, Log: log}
}

// ProcessInput opens path through inDriver, walks it, schedules every
// dataset's row append under c, and flushes the provenance column for
// every group the walk touched.
func (cc *Concatenator) ProcessInput(ctx context.Context, inDriver hdf5io.InputDriver, path string, c cohort.Cohort) error {
	in, err := inDriver.OpenInput(ctx, path)
	if err != nil {
		return errors.Annotatef(err, "open input %q", path)
	}
	defer in.Close()

	v := &visitor{cc: cc, ctx: ctx, cohort: c, sourcePath: path}
	seen, err := cc.Walker.Walk(ctx, in, v)
	if err != nil {
		return errors.Annotatef(err, "walk input %q", path)
	}

	if cc.Provenance != nil && c.Rank() == 0 {
		value := cc.Provenance.Spec.Derive(path)
		for group := range seen {
			if err := cc.Provenance.Flush(ctx, cc.Out, cc.Registry, group, value); err != nil {
				return errors.Annotatef(err, "provenance for group %q", group)
			}
		}
	}
	return nil
}

// visitor implements walker.Visitor, bridging each visited node to the
// registry and scheduler.
type visitor struct {
	cc         *Concatenator
	ctx        context.Context
	cohort     cohort.Cohort
	sourcePath string
}

func (v *visitor) VisitGroup(ctx context.Context, path string) error {
	return v.cohort.CollectiveRegion(ctx, func(ctx context.Context) error {
		return v.cc.Out.EnsureGroup(ctx, path)
	})
}

func (v *visitor) VisitDataset(ctx context.Context, path string, ds hdf5io.Dataset) error {
	if v.cc.Provenance != nil && lastSegment(path) == v.cc.Provenance.Spec.Name {
		return fmt.Errorf("input %q: dataset %q collides with the configured provenance column name", v.sourcePath, path)
	}

	ent, err := v.cc.Registry.Ensure(ctx, v.cc.Out, ds.Spec())
	if err != nil {
		return errors.Annotatef(err, "dataset %q", path)
	}

	if err := scheduler.Run(ctx, v.cohort, ent, ds); err != nil {
		return errors.Annotatef(err, "append rows to %q", path)
	}
	if v.cohort.Rank() == 0 {
		v.cc.Log.Infof("appended %d rows to %s", ds.Len(), path)
		if v.cc.Progress != nil {
			v.cc.Progress.AddRows(int64(ds.Len()))
		}
	}
	return nil
}

func (v *visitor) VisitOther(ctx context.Context, path string) {
	v.cc.Log.Warnf("skipping non-group, non-dataset node %s", path)
}

func lastSegment(path string) string {
	i := len(path) - 1
	for i >= 0 && path[i] != '/' {
		i--
	}
	return path[i+1:]
}
