package audit

import (
	"context"
	"fmt"
	"time"

	"vaxtrax/internal/blob"
	"vaxtrax/internal/core"
)

// Driver names an audit sink backend.
type Driver string

const (
	DriverNone   Driver = "none"
	DriverMemory Driver = "memory"
	DriverMongo  Driver = "mongo"
	DriverBlob   Driver = "blob"
)

// Config selects and configures the audit pipeline.
type Config struct {
	Driver          Driver
	Buffer          int
	Timeout         time.Duration
	MongoURI        string
	MongoDatabase   string
	MongoCollection string
	Blob            blob.Config
}

// Pipeline is an opened audit sink behind its dispatcher.
type Pipeline struct {
	Dispatcher *Dispatcher
	closeSink  func(context.Context) error
}

// Sink returns the registry-facing sink, nil when auditing is disabled.
func (p *Pipeline) Sink() core.AuditSink {
	if p == nil {
		return nil
	}
	return p.Dispatcher.Sink()
}

// Close drains the dispatcher and releases the backend.
func (p *Pipeline) Close(ctx context.Context) error {
	if p == nil {
		return nil
	}
	err := p.Dispatcher.Close(ctx)
	if p.closeSink != nil {
		if cerr := p.closeSink(ctx); cerr != nil && err == nil {
			err = cerr
		}
	}
	return err
}

// Open builds the configured pipeline. DriverNone (or empty) returns nil.
func Open(ctx context.Context, cfg Config, logger core.Logger, metrics core.MetricsRecorder) (*Pipeline, error) {
	var (
		sink      Sink
		closeSink func(context.Context) error
	)
	switch cfg.Driver {
	case "", DriverNone:
		return nil, nil
	case DriverMemory:
		sink = NewMemorySink()
	case DriverMongo:
		m, disconnect, err := ConnectMongo(ctx, cfg.MongoURI, cfg.MongoDatabase, cfg.MongoCollection)
		if err != nil {
			return nil, err
		}
		sink, closeSink = m, disconnect
	case DriverBlob:
		store, err := blob.Open(ctx, cfg.Blob)
		if err != nil {
			return nil, fmt.Errorf("open audit blob store: %w", err)
		}
		sink = NewBlobSink(store)
	default:
		return nil, fmt.Errorf("unknown audit driver %q", cfg.Driver)
	}
	d := NewDispatcher(sink,
		WithBuffer(cfg.Buffer),
		WithTimeout(cfg.Timeout),
		WithLogger(logger),
		WithMetrics(metrics),
	)
	return &Pipeline{Dispatcher: d, closeSink: closeSink}, nil
}
