package snapshot

import (
	"context"
	"fmt"

	"estatehub/internal/config"
	infraFS "estatehub/internal/infra/snapshot/fs"
	infraMemory "estatehub/internal/infra/snapshot/memory"
	infraS3 "estatehub/internal/infra/snapshot/s3"
)

// S3Config re-exports the infra S3 configuration type.
type S3Config = infraS3.Config

// Open selects a Store implementation from cfg.
//
//	driver fs: reads <dir>/<Entity>.json (default ./seed-data)
//	driver s3: reads s3://<bucket>/<prefix><Entity>.json
//	driver memory: empty in-process store
func Open(ctx context.Context, cfg config.Snapshot) (Store, error) {
	switch Driver(cfg.Driver) {
	case DriverFilesystem, "":
		return NewFilesystem(cfg.Dir)
	case DriverS3:
		return NewS3(ctx, S3Config{
			Region:    cfg.S3.Region,
			Bucket:    cfg.S3.Bucket,
			Prefix:    cfg.S3.Prefix,
			Endpoint:  cfg.S3.Endpoint,
			PathStyle: cfg.S3.PathStyle,
		})
	case DriverMemory:
		return NewMemory(nil), nil
	default:
		return nil, fmt.Errorf("unknown snapshot driver %s", cfg.Driver)
	}
}

// NewFilesystem returns a directory-backed store. The directory must exist.
func NewFilesystem(dir string) (Store, error) {
	if dir == "" {
		dir = "./seed-data"
	}
	store, err := infraFS.New(dir)
	if err != nil {
		return nil, err
	}
	return store, nil
}

// NewS3 constructs an S3-backed store.
func NewS3(ctx context.Context, cfg S3Config) (Store, error) {
	store, err := infraS3.New(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return store, nil
}

// NewMemory returns an in-memory store holding a copy of objects.
func NewMemory(objects map[string][]byte) *infraMemory.Store {
	return infraMemory.New(objects)
}
