package hdf5io

import "github.com/pingcap/errors"

// ErrSpecMismatch is returned when a dataset is seen again with a shape or
// encoding that differs from its first-seen DatasetSpec.
var ErrSpecMismatch = errors.New("hdf5io: dataset spec mismatch")

// ErrNotFound is returned when a driver is asked to open a container it
// does not have. OpenDataset reports a missing dataset with ok == false
// instead.
var ErrNotFound = errors.New("hdf5io: not found")

// ErrClosed is returned when an output file that is already closed is
// closed again.
var ErrClosed = errors.New("hdf5io: handle closed")
