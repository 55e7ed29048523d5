// Command hdf5verify reads back the "data" dataset written by hdf5gen (or
// produced by concatenating several such files) and checks that its size
// and monotonically increasing int32 contents match what was expected.
package main

import (
	"context"
	"encoding/binary"
	"fmt"
	"os"
	"strconv"

	"github.com/art-framework-suite/hep-hpc/internal/hdf5io"
	"github.com/art-framework-suite/hep-hpc/internal/hdf5io/hdf5read"
)

const maxReportedMismatches = 20

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	if len(args) < 2 {
		fmt.Fprintln(os.Stderr, "usage: hdf5verify INPUT_FILE NROWS [-starting-value N]")
		return 2
	}
	inputFile := args[0]
	nrows, err := strconv.Atoi(args[1])
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid NROWS %q: %v\n", args[1], err)
		return 2
	}
	startingValue := 0
	for i := 2; i+1 < len(args); i++ {
		if args[i] == "-starting-value" || args[i] == "--starting-value" || args[i] == "-v" {
			startingValue, err = strconv.Atoi(args[i+1])
			if err != nil {
				fmt.Fprintf(os.Stderr, "invalid -starting-value %q: %v\n", args[i+1], err)
				return 2
			}
		}
	}

	ctx := context.Background()
	in, err := hdf5read.New().OpenInput(ctx, inputFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: opening %q: %v\n", inputFile, err)
		return 1
	}
	defer in.Close()

	var ds hdf5io.Dataset
	err = in.Walk(ctx, func(kind hdf5io.NodeKind, path string, d hdf5io.Dataset) error {
		if kind == hdf5io.KindDataset && path == "/data" {
			ds = d
		}
		return nil
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: walking %q: %v\n", inputFile, err)
		return 1
	}
	if ds == nil {
		fmt.Fprintf(os.Stderr, "ERROR: dataset /data not found in %q\n", inputFile)
		return 1
	}

	size := int(ds.Len())
	if size != nrows {
		fmt.Fprintf(os.Stderr, "ERROR: Data size mismatch: %d (expected %d).\n", size, nrows)
		return 1
	}
	if nrows == 0 {
		return 0
	}

	buf, err := ds.ReadRows(ctx, 0, uint64(nrows))
	if err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: reading data: %v\n", err)
		return 1
	}

	mismatches := 0
	exitCode := 0
	for idx := 0; idx < nrows; idx++ {
		got := int32(binary.LittleEndian.Uint32(buf[idx*4:]))
		want := int32(startingValue + idx)
		if got != want {
			exitCode = 1
			mismatches++
			if mismatches <= maxReportedMismatches {
				fmt.Fprintf(os.Stderr, "ERROR: Data mismatch at index %d: %d (expected %d).\n", idx, got, want)
			}
		}
	}
	if mismatches > maxReportedMismatches {
		fmt.Fprintf(os.Stderr, "... %d further mismatches not shown\n", mismatches-maxReportedMismatches)
	}
	return exitCode
}
