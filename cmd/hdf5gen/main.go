// Command hdf5gen writes one or more small containers holding an int32
// dataset named "data" whose values increase monotonically, for checking
// the numerology of concat-hdf5's row accounting end to end.
package main

import (
	"context"
	"encoding/binary"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/pingcap/errors"

	"github.com/art-framework-suite/hep-hpc/internal/hdf5io"
	"github.com/art-framework-suite/hep-hpc/internal/hdf5io/hdf5write"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(args []string) error {
	fs := flag.NewFlagSet("hdf5gen", flag.ContinueOnError)
	chunkSize := fs.Int("chunk-size", 16, "chunk size in rows (also -c)")
	fs.IntVar(chunkSize, "c", 16, "shorthand for -chunk-size")
	stem := fs.String("output-file-stem", "", "output file stem, with an optional %i placeholder (also -o)")
	fs.StringVar(stem, "o", "", "shorthand for -output-file-stem")
	startingValue := fs.Int("starting-value", 0, "starting value for generated data (also -v)")
	fs.IntVar(startingValue, "v", 0, "shorthand for -starting-value")

	if err := fs.Parse(args); err != nil {
		return err
	}
	if *stem == "" {
		return fmt.Errorf("-output-file-stem is required")
	}
	nrowsArgs := fs.Args()
	if len(nrowsArgs) == 0 {
		return fmt.Errorf("at least one NROWS argument is required")
	}

	width := len(strconv.Itoa(len(nrowsArgs)))
	formatVerb := fmt.Sprintf("%%0%dd", width)

	var outputStem string
	if strings.Contains(*stem, "%i") {
		outputStem = strings.ReplaceAll(*stem, "%i", formatVerb)
	} else {
		ext := ""
		base := *stem
		if i := strings.LastIndex(*stem, "."); i >= 0 {
			ext = (*stem)[i:]
			base = (*stem)[:i]
		}
		outputStem = base + "_" + formatVerb + ext
	}

	ctx := context.Background()
	starting := *startingValue
	driver := hdf5write.New()

	for index, raw := range nrowsArgs {
		nrows, err := strconv.Atoi(raw)
		if err != nil {
			return fmt.Errorf("invalid row count %q: %w", raw, err)
		}
		if nrows < 0 {
			return fmt.Errorf("row count %q must not be negative", raw)
		}
		outputName := fmt.Sprintf(outputStem, index)
		if err := writeNumerologyFile(ctx, driver, outputName, nrows, *chunkSize, starting); err != nil {
			return errors.Annotatef(err, "writing %q", outputName)
		}
		fmt.Println(outputName)
		starting += nrows
	}
	return nil
}

func writeNumerologyFile(ctx context.Context, driver *hdf5write.Driver, path string, nrows, chunkSize, startingValue int) (retErr error) {
	out, err := driver.OpenOutput(ctx, path, hdf5io.CreateExclusive)
	if err != nil {
		return err
	}
	// Close performs the real file write; its error is the function's
	// result unless an earlier step already failed.
	defer func() {
		if cerr := out.Close(); cerr != nil && retErr == nil {
			retErr = cerr
		}
	}()

	spec := hdf5io.DatasetSpec{
		Path:      "/data",
		Type:      hdf5io.ElementType{Kind: hdf5io.Int32},
		ChunkDims: []uint64{uint64(chunkSize)},
		Filters:   hdf5io.FilterPipeline{Compression: hdf5io.Compression{Codec: "gzip", Level: 6}},
	}
	ds, err := out.CreateDataset(ctx, spec)
	if err != nil {
		return err
	}
	if err := ds.Resize(ctx, uint64(nrows)); err != nil {
		return err
	}

	buf := make([]byte, nrows*4)
	for i := 0; i < nrows; i++ {
		binary.LittleEndian.PutUint32(buf[i*4:], uint32(int32(startingValue+i)))
	}
	return ds.WriteRows(ctx, 0, uint64(nrows), buf)
}
