package storage

import (
	"fmt"
	"log/slog"
)

// Drivers accepted by New.
const (
	DriverMinio  = "minio"
	DriverLocal  = "local"
	DriverMemory = "memory"
)

// Options selects and configures a backend.
type Options struct {
	Driver    string
	Container string
	LocalDir  string
	Minio     MinioConfig
}

// New builds the backend named by opts.Driver. The container is not created;
// the caller runs EnsureContainer as part of startup.
func New(opts Options, logger *slog.Logger) (Storage, error) {
	switch opts.Driver {
	case DriverMinio, "":
		cfg := opts.Minio
		cfg.Bucket = opts.Container
		return NewMinioStorage(cfg, logger)
	case DriverLocal:
		return NewLocalStorage(opts.LocalDir, opts.Container), nil
	case DriverMemory:
		return NewMemoryStorage(opts.Container), nil
	default:
		return nil, fmt.Errorf("unknown storage driver %q", opts.Driver)
	}
}
