// Package core defines the byte-level snapshot store abstraction implemented
// by the infra drivers and wrapped by the snapshot package.
package core

import (
	"context"
	"errors"
	"io"
)

// Driver identifies a concrete snapshot storage backend.
type Driver string

const (
	// DriverFilesystem reads batches from a local directory.
	DriverFilesystem Driver = "fs"
	// DriverS3 reads batches from an S3 / MinIO compatible bucket.
	DriverS3 Driver = "s3"
	// DriverMemory serves batches from process memory (tests, dry runs).
	DriverMemory Driver = "memory"
)

// Store exposes named, read-only snapshot objects.
type Store interface {
	// Open returns the object's content. Missing objects yield an error
	// satisfying errors.Is(err, ErrNotExist).
	Open(ctx context.Context, name string) (io.ReadCloser, error)
	// List returns object names in ascending order.
	List(ctx context.Context) ([]string, error)
	Driver() Driver
}

// ErrNotExist reports a missing snapshot object.
var ErrNotExist = errors.New("snapshot: object does not exist")
