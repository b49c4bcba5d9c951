package blob

import (
	"context"
	"fmt"

	"molluscadb/internal/infra/blob/fs"
	memorystore "molluscadb/internal/infra/blob/memory"
	infraS3 "molluscadb/internal/infra/blob/s3"
)

// S3Config re-exports the S3 connection settings.
type S3Config = infraS3.Config

// Config selects and configures a backend.
type Config struct {
	Driver string
	// Root is the directory used by the fs driver.
	Root string
	S3   S3Config
}

// Open returns the backend named by cfg.Driver (fs when empty).
func Open(ctx context.Context, cfg Config) (Store, error) {
	driver := Driver(cfg.Driver)
	if driver == "" {
		driver = DriverFilesystem
	}
	switch driver {
	case DriverFilesystem:
		return fs.New(cfg.Root)
	case DriverS3:
		return infraS3.New(ctx, cfg.S3)
	case DriverMemory:
		return memorystore.New(), nil
	default:
		return nil, fmt.Errorf("unknown blob driver %q", cfg.Driver)
	}
}
