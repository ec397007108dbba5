// Package snapshot re-exports the snapshot store abstraction and decodes
// per-entity JSON batches for the seed loader.
package snapshot

import (
	"estatehub/internal/snapshot/core"
)

type (
	// Driver identifies a snapshot backend driver.
	Driver = core.Driver
	// Store is the interface for snapshot storage backends.
	Store = core.Store
)

const (
	// DriverFilesystem is the local directory driver.
	DriverFilesystem = core.DriverFilesystem
	// DriverS3 is the S3-compatible driver.
	DriverS3 = core.DriverS3
	// DriverMemory is the in-memory test driver.
	DriverMemory = core.DriverMemory
)

// ErrNotExist reports a missing snapshot object.
var ErrNotExist = core.ErrNotExist
