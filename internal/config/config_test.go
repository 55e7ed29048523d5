package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize_DefaultMemMax(t *testing.T) {
	cfg := &Config{}
	require.NoError(t, Normalize(cfg))
	assert.Equal(t, int64(100*1024*1024), cfg.MemMaxBytes)
}

func TestNormalize_ParsesHumanSize(t *testing.T) {
	cfg := &Config{MemMax: "100MiB"}
	require.NoError(t, Normalize(cfg))
	assert.Equal(t, int64(100*1024*1024), cfg.MemMaxBytes)
}

func TestNormalize_RejectsGarbage(t *testing.T) {
	cfg := &Config{MemMax: "not-a-size"}
	assert.Error(t, Normalize(cfg))
}

func TestValidate_MissingRequiredFields(t *testing.T) {
	cfg := &Config{}
	require.NoError(t, Normalize(cfg))
	err := Validate(cfg)
	require.Error(t, err)
	cerr, ok := err.(*Error)
	require.True(t, ok)
	assert.Contains(t, cerr.Error(), "--output is required")
	assert.Contains(t, cerr.Error(), "at least one input file is required")
}

func TestValidate_Valid(t *testing.T) {
	cfg := &Config{
		Output: "out.h5",
		Inputs: []string{"a.h5"},
	}
	require.NoError(t, Normalize(cfg))
	assert.NoError(t, Validate(cfg))
}

func TestValidate_FilenameColumnArity(t *testing.T) {
	cfg := &Config{Output: "o", Inputs: []string{"i"}, FilenameColumn: []string{"src"}}
	require.NoError(t, Normalize(cfg))
	assert.NoError(t, Validate(cfg), "NAME alone is valid: identity derivation, no group restriction")

	cfg.FilenameColumn = []string{"src", "^.*/"}
	err := Validate(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "REPLACEMENT")

	cfg.FilenameColumn = []string{"src", "^.*/", ""}
	assert.NoError(t, Validate(cfg))

	cfg.FilenameColumn = []string{"src", "^.*/", "", "/g", "/h"}
	assert.NoError(t, Validate(cfg), "trailing GROUP-PATTERNs are unbounded once the pair is complete")
}

func TestValidate_LogFormat(t *testing.T) {
	cfg := &Config{Output: "o", Inputs: []string{"i"}, LogFormat: "xml"}
	require.NoError(t, Normalize(cfg))
	assert.Error(t, Validate(cfg))

	cfg.LogFormat = "json"
	assert.NoError(t, Validate(cfg))
}

func TestResolveFilters(t *testing.T) {
	keep, err := ResolveFilters(FiltersAuto, 1)
	require.NoError(t, err)
	assert.True(t, keep, "sequential mode defaults filters on")

	keep, err = ResolveFilters(FiltersAuto, 4)
	require.NoError(t, err)
	assert.False(t, keep, "parallel mode defaults filters off")

	keep, err = ResolveFilters(FiltersOn, 1)
	require.NoError(t, err)
	assert.True(t, keep)

	_, err = ResolveFilters(FiltersOn, 4)
	assert.Error(t, err, "forcing filters on in parallel mode must be rejected")

	keep, err = ResolveFilters(FiltersOff, 1)
	require.NoError(t, err)
	assert.False(t, keep)
}

func TestValidate_NegativeRanks(t *testing.T) {
	cfg := &Config{Output: "o", Inputs: []string{"i"}, Ranks: -1}
	require.NoError(t, Normalize(cfg))
	assert.Error(t, Validate(cfg))
}
