package blob

import (
	"context"
	"fmt"

	fsstore "vaxtrax/internal/infra/blob/fs"
	memstore "vaxtrax/internal/infra/blob/memory"
	s3store "vaxtrax/internal/infra/blob/s3"
)

// Config selects and configures a blob driver. An empty Driver selects fs.
type Config struct {
	Driver      Driver
	FSRoot      string
	S3Bucket    string
	S3Region    string
	S3Endpoint  string
	S3PathStyle bool
}

// Open constructs the configured store.
func Open(ctx context.Context, cfg Config) (Store, error) {
	switch cfg.Driver {
	case "", DriverFilesystem:
		return fsstore.New(cfg.FSRoot)
	case DriverS3:
		return s3store.New(ctx, s3store.Config{
			Bucket:    cfg.S3Bucket,
			Region:    cfg.S3Region,
			Endpoint:  cfg.S3Endpoint,
			PathStyle: cfg.S3PathStyle,
		})
	case DriverMemory:
		return memstore.New(), nil
	default:
		return nil, fmt.Errorf("unknown blob driver %s", cfg.Driver)
	}
}
