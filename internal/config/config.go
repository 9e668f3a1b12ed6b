// Package config loads process configuration from VAXTRAX_* environment
// variables.
package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"

	"vaxtrax/internal/audit"
	"vaxtrax/internal/blob"
	"vaxtrax/internal/core"
)

// Config is the full runtime configuration of the vaxtrax binary.
type Config struct {
	HTTPAddr string `env:"VAXTRAX_HTTP_ADDR" envDefault:":10000"`
	LogLevel string `env:"VAXTRAX_LOG_LEVEL" envDefault:"info"`

	StorageDriver string `env:"VAXTRAX_STORAGE_DRIVER" envDefault:"memory"`
	SQLitePath    string `env:"VAXTRAX_SQLITE_PATH" envDefault:"vaxtrax.db"`
	PostgresDSN   string `env:"VAXTRAX_POSTGRES_DSN"`

	AuditDriver     string        `env:"VAXTRAX_AUDIT_DRIVER" envDefault:"none"`
	AuditBuffer     int           `env:"VAXTRAX_AUDIT_BUFFER" envDefault:"256"`
	AuditTimeout    time.Duration `env:"VAXTRAX_AUDIT_TIMEOUT" envDefault:"5s"`
	MongoURI        string        `env:"MONGO_URI"`
	MongoDatabase   string        `env:"VAXTRAX_MONGO_DATABASE" envDefault:"vaxtrax"`
	MongoCollection string        `env:"VAXTRAX_MONGO_COLLECTION" envDefault:"scans"`

	BlobDriver      string `env:"VAXTRAX_BLOB_DRIVER" envDefault:"fs"`
	BlobFSRoot      string `env:"VAXTRAX_BLOB_FS_ROOT" envDefault:"blobdata"`
	BlobS3Bucket    string `env:"VAXTRAX_BLOB_S3_BUCKET"`
	BlobS3Region    string `env:"VAXTRAX_BLOB_S3_REGION"`
	BlobS3Endpoint  string `env:"VAXTRAX_BLOB_S3_ENDPOINT"`
	BlobS3PathStyle bool   `env:"VAXTRAX_BLOB_S3_PATH_STYLE"`

	SessionSecret string        `env:"VAXTRAX_SESSION_SECRET"`
	SessionTTL    time.Duration `env:"VAXTRAX_SESSION_TTL" envDefault:"12h"`
	SessionSecure bool          `env:"VAXTRAX_SESSION_SECURE"`

	Demo     bool   `env:"VAXTRAX_DEMO" envDefault:"true"`
	DemoSeed uint64 `env:"VAXTRAX_DEMO_SEED"`

	MetricsBackend string `env:"VAXTRAX_METRICS" envDefault:"prometheus"`
	OTelEndpoint   string `env:"VAXTRAX_OTEL_ENDPOINT"`
}

// Load parses the environment and validates the result.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func oneOf(name, value string, allowed ...string) error {
	for _, a := range allowed {
		if value == a {
			return nil
		}
	}
	return fmt.Errorf("%s must be one of %s, got %q", name, strings.Join(allowed, "|"), value)
}

// Validate rejects unknown drivers and inconsistent settings.
func (c Config) Validate() error {
	if err := oneOf("VAXTRAX_STORAGE_DRIVER", c.StorageDriver,
		string(core.StorageMemory), string(core.StorageSQLite), string(core.StoragePostgres)); err != nil {
		return err
	}
	if err := oneOf("VAXTRAX_AUDIT_DRIVER", c.AuditDriver,
		string(audit.DriverNone), string(audit.DriverMemory), string(audit.DriverMongo), string(audit.DriverBlob)); err != nil {
		return err
	}
	if err := oneOf("VAXTRAX_BLOB_DRIVER", c.BlobDriver,
		string(blob.DriverFilesystem), string(blob.DriverS3), string(blob.DriverMemory)); err != nil {
		return err
	}
	if err := oneOf("VAXTRAX_METRICS", c.MetricsBackend, "prometheus", "expvar", "none"); err != nil {
		return err
	}
	if _, err := c.SlogLevel(); err != nil {
		return err
	}
	if c.AuditBuffer <= 0 {
		return fmt.Errorf("VAXTRAX_AUDIT_BUFFER must be positive")
	}
	if c.AuditDriver == string(audit.DriverMongo) && c.MongoURI == "" {
		return fmt.Errorf("MONGO_URI is required for the mongo audit driver")
	}
	if c.AuditDriver == string(audit.DriverBlob) && c.BlobDriver == string(blob.DriverS3) && c.BlobS3Bucket == "" {
		return fmt.Errorf("VAXTRAX_BLOB_S3_BUCKET is required for the s3 blob driver")
	}
	if c.StorageDriver == string(core.StoragePostgres) && c.PostgresDSN == "" {
		return fmt.Errorf("VAXTRAX_POSTGRES_DSN is required for the postgres storage driver")
	}
	if !c.Demo && c.SessionSecret == "" {
		return fmt.Errorf("VAXTRAX_SESSION_SECRET is required outside demo mode")
	}
	return nil
}

// SlogLevel maps LogLevel onto slog.
func (c Config) SlogLevel() (slog.Level, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, fmt.Errorf("VAXTRAX_LOG_LEVEL: %w", err)
	}
	return lvl, nil
}

// StorageOptions selects the registry backend.
func (c Config) StorageOptions() core.StorageOptions {
	return core.StorageOptions{
		Driver:      core.StorageDriver(c.StorageDriver),
		SQLitePath:  c.SQLitePath,
		PostgresDSN: c.PostgresDSN,
	}
}

// BlobConfig selects the blob store used by the blob audit driver.
func (c Config) BlobConfig() blob.Config {
	return blob.Config{
		Driver:      blob.Driver(c.BlobDriver),
		FSRoot:      c.BlobFSRoot,
		S3Bucket:    c.BlobS3Bucket,
		S3Region:    c.BlobS3Region,
		S3Endpoint:  c.BlobS3Endpoint,
		S3PathStyle: c.BlobS3PathStyle,
	}
}

// AuditConfig builds the audit pipeline configuration.
func (c Config) AuditConfig() audit.Config {
	return audit.Config{
		Driver:          audit.Driver(c.AuditDriver),
		Buffer:          c.AuditBuffer,
		Timeout:         c.AuditTimeout,
		MongoURI:        c.MongoURI,
		MongoDatabase:   c.MongoDatabase,
		MongoCollection: c.MongoCollection,
		Blob:            c.BlobConfig(),
	}
}
