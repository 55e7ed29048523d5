// Command concat-hdf5 appends a sequence of input HDF5-style container
// files' rows onto a single output container, preserving each dataset's
// per-row schema and optionally annotating appended rows with a derived
// provenance string.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"regexp"
	"runtime"
	"strings"

	"github.com/pingcap/errors"

	"github.com/art-framework-suite/hep-hpc/internal/cohort"
	"github.com/art-framework-suite/hep-hpc/internal/concat"
	hconfig "github.com/art-framework-suite/hep-hpc/internal/config"
	"github.com/art-framework-suite/hep-hpc/internal/hdf5io"
	"github.com/art-framework-suite/hep-hpc/internal/hdf5io/hdf5read"
	"github.com/art-framework-suite/hep-hpc/internal/hdf5io/hdf5write"
	"github.com/art-framework-suite/hep-hpc/internal/provenance"
	"github.com/art-framework-suite/hep-hpc/internal/registry"
	"github.com/art-framework-suite/hep-hpc/internal/util"
	"github.com/art-framework-suite/hep-hpc/internal/walker"
)

type verboseFlag int

func (v *verboseFlag) String() string { return fmt.Sprintf("%d", int(*v)) }
func (v *verboseFlag) IsBoolFlag() bool { return true }
func (v *verboseFlag) Set(string) error {
	*v++
	return nil
}

type stringList []string

func (s *stringList) String() string { return strings.Join(*s, ",") }
func (s *stringList) Set(v string) error {
	*s = append(*s, v)
	return nil
}

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(args []string) (retErr error) {
	fs := flag.NewFlagSet("concat-hdf5", flag.ContinueOnError)

	output := fs.String("output", "", "path to the output container (also -o)")
	fs.StringVar(output, "o", "", "shorthand for -output")
	appendMode := fs.Bool("append", false, "append to an existing output file instead of creating one")
	withFilters := fs.Bool("with-filters", false, "propagate each input's filter pipeline to the output")
	withoutFilters := fs.Bool("without-filters", false, "create output datasets unfiltered")
	memMax := fs.String("mem-max", "100MiB", "per-dataset buffer memory budget, e.g. 100MiB, 2GiB")
	var onlyGroups stringList
	fs.Var(&onlyGroups, "only-groups", "restrict processing to this group and its descendants (repeatable)")
	var filenameColumn stringList
	fs.Var(&filenameColumn, "filename-column", "NAME [PATTERN [REPLACEMENT [GROUP-PATTERN...]]] (repeatable)")
	var verbosity verboseFlag
	fs.Var(&verbosity, "v", "increase verbosity (repeatable)")
	ranks := fs.Int("ranks", runtime.GOMAXPROCS(0), "simulated cohort size when WANT_MPI is set")
	logFormat := fs.String("log-format", "text", "text or json")

	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg := &hconfig.Config{
		Output:         *output,
		Append:         *appendMode,
		Inputs:         fs.Args(),
		MemMax:         *memMax,
		OnlyGroups:     onlyGroups,
		FilenameColumn: filenameColumn,
		Verbosity:      int(verbosity),
		Ranks:          *ranks,
		LogFormat:      *logFormat,
	}
	switch {
	case *withFilters && *withoutFilters:
		return fmt.Errorf("--with-filters and --without-filters are mutually exclusive")
	case *withFilters:
		cfg.Filters = hconfig.FiltersOn
	case *withoutFilters:
		cfg.Filters = hconfig.FiltersOff
	}

	if err := hconfig.Normalize(cfg); err != nil {
		return err
	}
	if err := hconfig.Validate(cfg); err != nil {
		return err
	}

	logger := util.NewLogger(os.Stderr, cfg.Verbosity, cfg.LogFormat)
	progress := util.NewProgress(len(cfg.Inputs), "concat-hdf5", cfg.LogFormat, os.Stdout)
	defer progress.Stop()

	ctx := context.Background()

	outMode := hdf5io.CreateExclusive
	if cfg.Append {
		outMode = hdf5io.Append
	}
	out, err := hdf5write.New().OpenOutput(ctx, cfg.Output, outMode)
	if err != nil {
		return errors.Annotatef(err, "open output %q", cfg.Output)
	}
	// Close materializes the buffered datasets; its error is the run's
	// error unless something failed earlier.
	defer func() {
		if cerr := out.Close(); cerr != nil && retErr == nil {
			retErr = errors.Annotatef(cerr, "close output %q", cfg.Output)
		}
	}()

	size := 1
	if os.Getenv("WANT_MPI") != "" {
		size = cfg.Ranks
	}
	keepFilters, err := hconfig.ResolveFilters(cfg.Filters, size)
	if err != nil {
		return err
	}

	reg := registry.NewWithFilters(cfg.MemMaxBytes, keepFilters)
	w := walker.Walker{OnlyGroups: cfg.OnlyGroups}

	var prov *provenance.Annotator
	if len(cfg.FilenameColumn) > 0 {
		prov, err = buildProvenance(cfg.FilenameColumn)
		if err != nil {
			return err
		}
		prov.Spec.Width = longestDerivedValue(prov.Spec, cfg.Inputs)
	}

	cc := concat.New(out, reg, w, prov, logger)
	cc.Progress = progress
	inDriver := hdf5read.New()

	return cohort.Run(ctx, size, func(ctx context.Context, c cohort.Cohort) error {
		for _, input := range cfg.Inputs {
			if err := cc.ProcessInput(ctx, inDriver, input, c); err != nil {
				if c.Size() > 1 {
					return errors.Annotatef(err, "rank %d: processing %q", c.Rank(), input)
				}
				return errors.Annotatef(err, "processing %q", input)
			}
			if c.Rank() == 0 {
				progress.AddFiles(1)
			}
		}
		return nil
	})
}

// buildProvenance parses --filename-column's raw argument list: NAME,
// optionally followed by one (PATTERN, REPLACEMENT) pair, optionally
// followed by one or more trailing GROUP-PATTERNs restricting which groups
// receive the column. config.Validate has already rejected a PATTERN with
// no REPLACEMENT by the time this runs.
func buildProvenance(args []string) (*provenance.Annotator, error) {
	name := args[0]
	rest := args[1:]

	spec := provenance.Spec{Name: name}
	if len(rest) >= 2 {
		re, err := regexp.Compile(rest[0])
		if err != nil {
			return nil, fmt.Errorf("--filename-column pattern %q: %w", rest[0], err)
		}
		spec.Rules = []provenance.Rule{{Pattern: re, Replacement: rest[1]}}
		rest = rest[2:]
	}
	if len(rest) > 0 {
		spec.Groups = make(map[string]struct{}, len(rest))
		for _, g := range rest {
			spec.Groups[g] = struct{}{}
		}
	}
	return &provenance.Annotator{Spec: spec}, nil
}

func longestDerivedValue(spec provenance.Spec, inputs []string) int {
	width := 0
	for _, in := range inputs {
		v := spec.Derive(in)
		if len(v) > width {
			width = len(v)
		}
	}
	if width == 0 {
		width = 1
	}
	return width
}
