package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"vaxtrax/internal/infra/persistence/memory"
	"vaxtrax/pkg/domain"

	"github.com/shopspring/decimal"
)

// RegisterRequest describes a batch to register. Zero values take defaults:
// a generated id, StageFactory and DefaultTempLimits. Temperature is the
// measured initial reading; when nil the configured TemperatureSampler
// supplies one, and registration fails without a sampler.
type RegisterRequest struct {
	ID          string
	Location    string
	Stage       Stage
	Limits      *TempLimits
	Temperature *float64
}

// SeedDataProvider yields the batches imported at bootstrap.
type SeedDataProvider interface {
	Batches(now time.Time) []Batch
}

// AuditReader is implemented by audit sinks that can return the trail
// recorded for a batch.
type AuditReader interface {
	Scans(ctx context.Context, batchNo string) ([]HistoryEntry, error)
}

// Service is the batch registry. It owns the store and applies every
// mutation in a single transaction that classifies, sequences, appends
// history and evaluates rules before commit. Committed entries are handed to
// the audit sink afterwards; sink failures are logged and never returned.
// When a store commits but cannot write its snapshot, the mutation returns
// the committed batch together with an error wrapping
// domain.ErrSnapshotFailed, and the entry is still audited.
type Service struct {
	store   PersistentStore
	clock   Clock
	logger  Logger
	audit   AuditSink
	metrics MetricsRecorder
	tracer  Tracer
	sampler TemperatureSampler
}

type nowSetter interface {
	SetNowFunc(func() time.Time)
}

// NewService constructs a registry over store.
func NewService(store PersistentStore, opts ...Option) *Service {
	cfg := defaultServiceOptions()
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	if ns, ok := store.(nowSetter); ok {
		ns.SetNowFunc(cfg.clock.Now)
	}
	return &Service{
		store:   store,
		clock:   cfg.clock,
		logger:  cfg.logger,
		audit:   cfg.audit,
		metrics: cfg.metrics,
		tracer:  cfg.tracer,
		sampler: cfg.sampler,
	}
}

// NewInMemoryService creates a registry over a fresh in-memory store. A nil
// engine installs NewDefaultRulesEngine.
func NewInMemoryService(engine *RulesEngine, opts ...Option) *Service {
	if engine == nil {
		engine = NewDefaultRulesEngine()
	}
	return NewService(memory.NewStore(engine), opts...)
}

// Store returns the underlying storage implementation.
func (s *Service) Store() PersistentStore {
	return s.store
}

// RecordScan stores a new reading, reclassifies the batch against its
// limits and appends a scan entry. An empty location keeps the previous one.
func (s *Service) RecordScan(ctx context.Context, id string, temperature float64, location string) (Batch, error) {
	return s.mutateOne(ctx, "record_scan", id, func(ctx context.Context, tx Transaction) (Batch, error) {
		if err := domain.ValidateTemperature(temperature); err != nil {
			return Batch{}, err
		}
		return tx.UpdateBatch(id, domain.ActionScan, func(b *Batch) (HistoryEntry, error) {
			b.Temperature = temperature
			if location != "" {
				b.Location = location
			}
			b.Status = domain.ClassifyWithin(temperature, b.TempLimits)
			return s.entry(ctx, *b, domain.ActionLabelScan), nil
		})
	})
}

// Proceed advances the batch one custody stage. At the terminal stage the
// stage is unchanged but the attempt is still recorded.
func (s *Service) Proceed(ctx context.Context, id string) (Batch, error) {
	return s.mutateOne(ctx, "proceed", id, func(ctx context.Context, tx Transaction) (Batch, error) {
		return tx.UpdateBatch(id, domain.ActionProceed, func(b *Batch) (HistoryEntry, error) {
			from := b.Stage
			to, err := domain.AdvanceStage(from)
			if err != nil {
				return HistoryEntry{}, err
			}
			b.Stage = to
			return s.entry(ctx, *b, domain.ProceedLabel(from, to)), nil
		})
	})
}

// Halt records a halt marker without touching the batch fields.
func (s *Service) Halt(ctx context.Context, id string) (Batch, error) {
	return s.mutateOne(ctx, "halt", id, func(ctx context.Context, tx Transaction) (Batch, error) {
		return tx.UpdateBatch(id, domain.ActionHalt, func(b *Batch) (HistoryEntry, error) {
			return s.entry(ctx, *b, domain.ActionLabelHalt), nil
		})
	})
}

// SetStatus overrides the derived status.
func (s *Service) SetStatus(ctx context.Context, id string, status Status) (Batch, error) {
	return s.mutateOne(ctx, "set_status", id, func(ctx context.Context, tx Transaction) (Batch, error) {
		if !status.Valid() {
			return Batch{}, domain.InvalidStatusf("invalid status value %q", status)
		}
		return tx.UpdateBatch(id, domain.ActionSetStatus, func(b *Batch) (HistoryEntry, error) {
			b.Status = status
			return s.entry(ctx, *b, domain.ActionLabelSetStatus), nil
		})
	})
}

// SetStage moves the batch to any stage, bypassing the sequencer.
func (s *Service) SetStage(ctx context.Context, id string, stage Stage) (Batch, error) {
	return s.mutateOne(ctx, "set_stage", id, func(ctx context.Context, tx Transaction) (Batch, error) {
		if !stage.Valid() {
			return Batch{}, domain.InvalidStagef("invalid stage value %q", stage)
		}
		return tx.UpdateBatch(id, domain.ActionSetStage, func(b *Batch) (HistoryEntry, error) {
			b.Stage = stage
			return s.entry(ctx, *b, domain.ActionLabelSetStage), nil
		})
	})
}

// Register creates a batch with a single register entry.
func (s *Service) Register(ctx context.Context, req RegisterRequest) (Batch, error) {
	return s.mutateOne(ctx, "register", req.ID, func(ctx context.Context, tx Transaction) (Batch, error) {
		limits := domain.DefaultTempLimits
		if req.Limits != nil {
			limits = *req.Limits
		}
		if err := limits.Validate(); err != nil {
			return Batch{}, err
		}
		stage := req.Stage
		if stage == "" {
			stage = domain.StageFactory
		}
		if !stage.Valid() {
			return Batch{}, domain.InvalidStagef("invalid stage value %q", stage)
		}
		var temperature float64
		switch {
		case req.Temperature != nil:
			temperature = *req.Temperature
		case s.sampler != nil:
			temperature = s.sampler.Sample(limits)
		default:
			return Batch{}, domain.InvalidArgumentf("an initial temperature reading is required")
		}
		if err := domain.ValidateTemperature(temperature); err != nil {
			return Batch{}, err
		}
		now := tx.Now()
		id := req.ID
		if id == "" {
			id = nextBatchID(tx, now)
		}
		b := Batch{
			ID:          id,
			Temperature: temperature,
			Location:    req.Location,
			Stage:       stage,
			Status:      domain.ClassifyWithin(temperature, limits),
			LastUpdated: now,
			TempLimits:  limits,
		}
		b.History = []HistoryEntry{s.entry(ctx, b, domain.ActionLabelRegister)}
		b.History[0].Timestamp = now
		return tx.CreateBatch(b, domain.ActionRegister)
	})
}

// nextBatchID numbers new batches VAX-<year>-<NNN> after the current count,
// skipping numbers already taken.
func nextBatchID(tx Transaction, now time.Time) string {
	n := len(tx.Snapshot().ListBatches()) + 1
	for {
		id := fmt.Sprintf("VAX-%d-%03d", now.Year(), n)
		if _, taken := tx.FindBatch(id); !taken {
			return id
		}
		n++
	}
}

// Get returns the committed batch.
func (s *Service) Get(ctx context.Context, id string) (Batch, error) {
	var out Batch
	err := s.observe(ctx, "get", func(ctx context.Context) error {
		b, ok := s.store.GetBatch(id)
		if !ok {
			return domain.NotFound(id)
		}
		out = b
		return nil
	})
	return out, err
}

// List returns every batch in insertion order.
func (s *Service) List(ctx context.Context) ([]Batch, error) {
	var out []Batch
	err := s.observe(ctx, "list", func(ctx context.Context) error {
		return s.store.View(ctx, func(v TransactionView) error {
			out = v.ListBatches()
			return nil
		})
	})
	return out, err
}

// Bootstrap imports provider's batches, skipping ids already present. It
// returns the number imported. Imported batches are not sent to the audit
// sink.
func (s *Service) Bootstrap(ctx context.Context, provider SeedDataProvider) (int, error) {
	if provider == nil {
		return 0, domain.InvalidArgumentf("seed provider is required")
	}
	imported := 0
	err := s.observe(ctx, "bootstrap", func(ctx context.Context) error {
		res, err := s.store.RunInTransaction(ctx, func(tx Transaction) error {
			for _, b := range provider.Batches(tx.Now()) {
				if _, exists := tx.FindBatch(b.ID); exists {
					continue
				}
				if b.Status == "" {
					b.Status = domain.ClassifyWithin(b.Temperature, b.TempLimits)
				}
				if _, err := tx.CreateBatch(b, domain.ActionImport); err != nil {
					return err
				}
				imported++
			}
			return nil
		})
		s.logViolations(res)
		return err
	})
	if err != nil {
		return 0, err
	}
	s.logger.Info("seed batches imported", "count", imported)
	return imported, nil
}

// Drift nudges every batch reading by delta, rounds it to 0.1 °C,
// reclassifies and appends a refresh entry. It backs the demo refresh
// endpoint and is applied to all batches in one transaction.
func (s *Service) Drift(ctx context.Context, delta func(Batch) float64) ([]Batch, error) {
	if delta == nil {
		return nil, domain.InvalidArgumentf("drift function is required")
	}
	return s.mutate(ctx, "drift", "", func(ctx context.Context, tx Transaction) ([]Batch, error) {
		current := tx.Snapshot().ListBatches()
		out := make([]Batch, 0, len(current))
		for _, b := range current {
			updated, err := tx.UpdateBatch(b.ID, domain.ActionRefresh, func(b *Batch) (HistoryEntry, error) {
				b.Temperature = RoundReading(b.Temperature + delta(*b))
				b.Status = domain.ClassifyWithin(b.Temperature, b.TempLimits)
				return s.entry(ctx, *b, domain.ActionLabelRefresh), nil
			})
			if err != nil {
				return nil, err
			}
			out = append(out, updated)
		}
		return out, nil
	})
}

// Scans returns the audit trail for batchNo. When the audit sink cannot be
// read back the batch's own history is returned instead.
func (s *Service) Scans(ctx context.Context, batchNo string) ([]HistoryEntry, error) {
	var out []HistoryEntry
	err := s.observe(ctx, "scans", func(ctx context.Context) error {
		if reader, ok := s.audit.(AuditReader); ok {
			entries, err := reader.Scans(ctx, batchNo)
			if err != nil {
				return domain.AuditUnavailable(err)
			}
			out = entries
			return nil
		}
		out = []HistoryEntry{}
		if b, ok := s.store.GetBatch(batchNo); ok {
			out = b.History
		}
		return nil
	})
	return out, err
}

// RoundReading rounds a temperature to one decimal place.
func RoundReading(v float64) float64 {
	return decimal.NewFromFloat(v).Round(1).InexactFloat64()
}

func (s *Service) entry(ctx context.Context, b Batch, action string) HistoryEntry {
	e := b.Entry(action, time.Time{})
	if actor, ok := ActorFromContext(ctx); ok {
		e.ScannedBy = actor.Name
		e.Device = actor.Device
	}
	return e
}

func (s *Service) mutateOne(ctx context.Context, op, id string, fn func(context.Context, Transaction) (Batch, error)) (Batch, error) {
	out, err := s.mutate(ctx, op, id, func(ctx context.Context, tx Transaction) ([]Batch, error) {
		b, err := fn(ctx, tx)
		if err != nil {
			return nil, err
		}
		return []Batch{b}, nil
	})
	if len(out) == 0 {
		return Batch{}, err
	}
	return out[0], err
}

func (s *Service) mutate(ctx context.Context, op, id string, fn func(context.Context, Transaction) ([]Batch, error)) ([]Batch, error) {
	var committed []Batch
	err := s.observe(ctx, op, func(ctx context.Context) error {
		res, err := s.store.RunInTransaction(ctx, func(tx Transaction) error {
			out, err := fn(ctx, tx)
			committed = out
			return err
		})
		s.logViolations(res)
		return err
	})
	switch {
	case errors.Is(err, domain.ErrSnapshotFailed):
		// Committed in memory: the entries are audited and the batches
		// returned alongside the error.
		s.emit(ctx, committed)
		return committed, err
	case err != nil:
		if id != "" {
			s.logger.Debug("registry mutation rejected", "operation", op, "batch", id, "error", err)
		}
		return nil, err
	}
	s.emit(ctx, committed)
	return committed, nil
}

func (s *Service) observe(ctx context.Context, op string, fn func(context.Context) error) error {
	ctx, span := s.tracer.Start(ctx, op)
	start := time.Now()
	err := fn(ctx)
	s.metrics.Observe(ctx, op, err == nil, time.Since(start))
	span.End(err)
	if err != nil && !isDomainError(err) {
		s.logger.Error("registry operation failed", "operation", op, "error", err)
	}
	return err
}

func isDomainError(err error) bool {
	if _, ok := domain.CodeOf(err); ok {
		return true
	}
	var rv domain.RuleViolationError
	return errors.As(err, &rv)
}

func (s *Service) logViolations(res Result) {
	for _, v := range res.Violations {
		switch v.Severity {
		case domain.SeverityWarn:
			s.logger.Warn("rule violation", "rule", v.Rule, "batch", v.BatchID, "message", v.Message)
		case domain.SeverityLog:
			s.logger.Info("rule finding", "rule", v.Rule, "batch", v.BatchID, "message", v.Message)
		}
	}
}

func (s *Service) emit(ctx context.Context, batches []Batch) {
	if s.audit == nil {
		return
	}
	for _, b := range batches {
		entry, ok := b.LatestEntry()
		if !ok {
			continue
		}
		if err := s.audit.Append(ctx, entry); err != nil {
			s.logger.Warn("audit append failed", "batch", entry.BatchNo, "action", entry.Action, "error", domain.AuditUnavailable(err))
		}
	}
}
