// Package config loads seed pipeline settings from an optional YAML file with
// ESTATEHUB_* environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Storage drivers.
const (
	StorageMemory   = "memory"
	StorageSQLite   = "sqlite"
	StoragePostgres = "postgres"
)

// Snapshot drivers.
const (
	SnapshotFilesystem = "fs"
	SnapshotS3         = "s3"
	SnapshotMemory     = "memory"
)

// Config is the full seed configuration.
type Config struct {
	Storage  Storage  `yaml:"storage"`
	Snapshot Snapshot `yaml:"snapshot"`
	Seed     Seed     `yaml:"seed"`
	Logging  Logging  `yaml:"logging"`
}

// Storage selects and configures the target store.
type Storage struct {
	Driver      string `yaml:"driver"`
	SQLitePath  string `yaml:"sqlite_path"`
	PostgresDSN string `yaml:"postgres_dsn"`
}

// Snapshot selects and configures the snapshot source.
type Snapshot struct {
	Driver string `yaml:"driver"`
	Dir    string `yaml:"dir"`
	S3     S3     `yaml:"s3"`
}

// S3 configures the S3-compatible snapshot driver.
type S3 struct {
	Bucket    string `yaml:"bucket"`
	Prefix    string `yaml:"prefix"`
	Region    string `yaml:"region"`
	Endpoint  string `yaml:"endpoint"`
	PathStyle bool   `yaml:"path_style"`
}

// Seed tunes the loader.
type Seed struct {
	Concurrency      int   `yaml:"concurrency"`
	FailureCap       int   `yaml:"failure_cap"`
	StrictDuplicates bool  `yaml:"strict_duplicates"`
	RandSeed         int64 `yaml:"rand_seed"`
}

// Logging configures the zap logger.
type Logging struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// Default returns the configuration used when no file is supplied.
func Default() Config {
	return Config{
		Storage:  Storage{Driver: StorageSQLite, SQLitePath: "estatehub.db"},
		Snapshot: Snapshot{Driver: SnapshotFilesystem, Dir: "./seed-data"},
		Seed:     Seed{Concurrency: 4, FailureCap: 3},
		Logging:  Logging{Level: "info"},
	}
}

// Load reads path (when non-empty and present), applies environment overrides
// and validates the result. A missing file at the default path is not an error.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return Config{}, fmt.Errorf("read config file: %w", err)
		default:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return Config{}, fmt.Errorf("parse config: %w", err)
			}
		}
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// Environment variables:
//
//	ESTATEHUB_STORAGE_DRIVER: memory|sqlite|postgres
//	ESTATEHUB_SQLITE_PATH, ESTATEHUB_POSTGRES_DSN
//	ESTATEHUB_SNAPSHOT_DRIVER: fs|s3|memory
//	ESTATEHUB_SNAPSHOT_DIR
//	ESTATEHUB_SNAPSHOT_S3_BUCKET, _PREFIX, _REGION, _ENDPOINT, _PATH_STYLE
//	ESTATEHUB_SEED_CONCURRENCY, ESTATEHUB_SEED_FAILURE_CAP, ESTATEHUB_SEED_STRICT_DUPLICATES
//	ESTATEHUB_LOG_LEVEL, ESTATEHUB_LOG_JSON
func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	str("ESTATEHUB_STORAGE_DRIVER", &c.Storage.Driver)
	str("ESTATEHUB_SQLITE_PATH", &c.Storage.SQLitePath)
	str("ESTATEHUB_POSTGRES_DSN", &c.Storage.PostgresDSN)
	str("ESTATEHUB_SNAPSHOT_DRIVER", &c.Snapshot.Driver)
	str("ESTATEHUB_SNAPSHOT_DIR", &c.Snapshot.Dir)
	str("ESTATEHUB_SNAPSHOT_S3_BUCKET", &c.Snapshot.S3.Bucket)
	str("ESTATEHUB_SNAPSHOT_S3_PREFIX", &c.Snapshot.S3.Prefix)
	str("ESTATEHUB_SNAPSHOT_S3_REGION", &c.Snapshot.S3.Region)
	str("ESTATEHUB_SNAPSHOT_S3_ENDPOINT", &c.Snapshot.S3.Endpoint)
	str("ESTATEHUB_LOG_LEVEL", &c.Logging.Level)

	if v, ok := lookup("ESTATEHUB_SNAPSHOT_S3_PATH_STYLE"); ok && v != "" {
		c.Snapshot.S3.PathStyle = strings.EqualFold(v, "true")
	}
	if v, ok := lookup("ESTATEHUB_LOG_JSON"); ok && v != "" {
		c.Logging.JSON = strings.EqualFold(v, "true")
	}
	if v, ok := lookup("ESTATEHUB_SEED_STRICT_DUPLICATES"); ok && v != "" {
		c.Seed.StrictDuplicates = strings.EqualFold(v, "true")
	}
	if v, ok := lookup("ESTATEHUB_SEED_CONCURRENCY"); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("ESTATEHUB_SEED_CONCURRENCY: %w", err)
		}
		c.Seed.Concurrency = n
	}
	if v, ok := lookup("ESTATEHUB_SEED_FAILURE_CAP"); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("ESTATEHUB_SEED_FAILURE_CAP: %w", err)
		}
		c.Seed.FailureCap = n
	}
	return nil
}

// Validate checks driver names and fills numeric defaults.
func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case StorageMemory, StorageSQLite:
	case StoragePostgres:
		if c.Storage.PostgresDSN == "" {
			return fmt.Errorf("postgres storage requires postgres_dsn")
		}
	default:
		return fmt.Errorf("unknown storage driver %q", c.Storage.Driver)
	}
	switch c.Snapshot.Driver {
	case SnapshotFilesystem, SnapshotMemory:
	case SnapshotS3:
		if c.Snapshot.S3.Bucket == "" {
			return fmt.Errorf("s3 snapshot driver requires a bucket")
		}
	default:
		return fmt.Errorf("unknown snapshot driver %q", c.Snapshot.Driver)
	}
	if c.Seed.Concurrency <= 0 {
		c.Seed.Concurrency = 4
	}
	if c.Seed.FailureCap <= 0 {
		c.Seed.FailureCap = 3
	}
	return nil
}
