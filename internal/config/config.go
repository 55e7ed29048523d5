// Package config resolves and validates the run configuration derived
// from concat-hdf5's command-line flags, in the same Normalize-then-
// Validate two-step the rest of this project's configuration layer uses:
// Normalize fills in derived, runtime-only fields, Validate then collects
// every problem into a single reported error instead of failing fast on
// the first one.
package config

import (
	"fmt"
	"strings"

	units "github.com/docker/go-units"
)

// FilterMode selects whether newly created output datasets inherit an
// input dataset's filter pipeline or are created unfiltered.
type FilterMode int

const (
	// FiltersAuto keeps filters in sequential mode and strips them in
	// parallel mode (see ResolveFilters).
	FiltersAuto FilterMode = iota
	FiltersOn
	FiltersOff
)

// Config is the fully resolved configuration for one concat-hdf5 run.
type Config struct {
	Output  string
	Append  bool
	Inputs  []string

	Filters FilterMode

	MemMax      string
	MemMaxBytes int64 `json:"-"` // derived by Normalize

	OnlyGroups []string

	// FilenameColumn holds the raw --filename-column arguments: the
	// dataset name, optionally followed by one (pattern, replacement) pair
	// and then by group patterns restricting which groups get the column.
	// Empty means no provenance column is requested.
	FilenameColumn []string

	Verbosity int

	Ranks     int
	LogFormat string // "text" or "json"
}

// Normalize resolves derived fields. Call it once, after flags are parsed
// and before Validate.
func Normalize(cfg *Config) error {
	if cfg.MemMax == "" {
		cfg.MemMaxBytes = 100 * units.MiB
		return nil
	}
	bytes, err := units.RAMInBytes(cfg.MemMax)
	if err != nil {
		return fmt.Errorf("invalid --mem-max %q: %w", cfg.MemMax, err)
	}
	cfg.MemMaxBytes = bytes
	return nil
}

// Validate returns a single error describing every configuration problem
// found, or nil if cfg is runnable.
func Validate(cfg *Config) error {
	var errs []string

	if cfg.Output == "" {
		errs = append(errs, "--output is required")
	}
	if len(cfg.Inputs) == 0 {
		errs = append(errs, "at least one input file is required")
	}
	if cfg.MemMaxBytes <= 0 {
		errs = append(errs, "--mem-max must resolve to a positive byte size")
	}
	// NAME [PATTERN [REPLACEMENT [GROUP-PATTERN...]]]: the only invalid
	// arity is a PATTERN with no REPLACEMENT. Trailing GROUP-PATTERNs
	// after a complete (PATTERN, REPLACEMENT) pair are unbounded.
	if len(cfg.FilenameColumn) == 2 {
		errs = append(errs, "--filename-column PATTERN requires a REPLACEMENT argument")
	}
	if cfg.Ranks < 0 {
		errs = append(errs, "--ranks must be >= 0")
	}
	switch strings.ToLower(cfg.LogFormat) {
	case "", "text", "json":
	default:
		errs = append(errs, "--log-format must be text or json")
	}

	if len(errs) == 0 {
		return nil
	}
	return &Error{Problems: errs}
}

// ResolveFilters decides whether newly created output datasets should keep
// their input's filter pipeline (shuffle, compression, checksum) or have it
// stripped down to chunking, scale-offset and fill-value only, given the
// configured mode and the cohort size this run executes under. Filters
// default on in sequential mode (cohortSize == 1) and off in parallel mode;
// --with-filters/--without-filters override that default. Forcing filters
// on in parallel mode is rejected rather than silently downgraded.
func ResolveFilters(mode FilterMode, cohortSize int) (bool, error) {
	parallel := cohortSize > 1
	switch mode {
	case FiltersOn:
		if parallel {
			return false, fmt.Errorf("--with-filters is not supported in parallel mode (cohort size %d)", cohortSize)
		}
		return true, nil
	case FiltersOff:
		return false, nil
	default:
		return !parallel, nil
	}
}

// Error collects every configuration problem found by Validate, reported
// together rather than one at a time.
type Error struct {
	Problems []string
}

func (e *Error) Error() string {
	var sb strings.Builder
	sb.WriteString("invalid configuration:\n")
	for _, p := range e.Problems {
		sb.WriteString(" - ")
		sb.WriteString(p)
		sb.WriteString("\n")
	}
	return strings.TrimRight(sb.String(), "\n")
}
