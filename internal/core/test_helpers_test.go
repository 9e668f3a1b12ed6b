package core

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"vaxtrax/pkg/domain"
)

type metricsCall struct {
	op       string
	success  bool
	duration time.Duration
}

type captureMetricsRecorder struct {
	calls []metricsCall
}

func (c *captureMetricsRecorder) Observe(_ context.Context, op string, success bool, duration time.Duration) {
	c.calls = append(c.calls, metricsCall{op: op, success: success, duration: duration})
}

func (c *captureMetricsRecorder) has(op string, success bool) bool {
	for _, call := range c.calls {
		if call.op == op && call.success == success {
			return true
		}
	}
	return false
}

type spanRecord struct {
	op  string
	err error
}

type captureTracer struct {
	started []string
	ended   []spanRecord
}

func (c *captureTracer) Start(ctx context.Context, op string) (context.Context, TraceSpan) {
	c.started = append(c.started, op)
	return ctx, &captureSpan{tracer: c, op: op}
}

func (c *captureTracer) has(op string, success bool) bool {
	for _, record := range c.ended {
		if record.op == op && (record.err == nil) == success {
			return true
		}
	}
	return false
}

type captureSpan struct {
	tracer *captureTracer
	op     string
}

func (s *captureSpan) End(err error) {
	s.tracer.ended = append(s.tracer.ended, spanRecord{op: s.op, err: err})
}

type logRecord struct {
	level string
	msg   string
	args  []any
}

type captureLogger struct {
	mu      sync.Mutex
	records []logRecord
}

func (l *captureLogger) add(level, msg string, args []any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.records = append(l.records, logRecord{level: level, msg: msg, args: args})
}

func (l *captureLogger) Debug(msg string, args ...any) { l.add("debug", msg, args) }
func (l *captureLogger) Info(msg string, args ...any)  { l.add("info", msg, args) }
func (l *captureLogger) Warn(msg string, args ...any)  { l.add("warn", msg, args) }
func (l *captureLogger) Error(msg string, args ...any) { l.add("error", msg, args) }

func (l *captureLogger) count(level, msg string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, r := range l.records {
		if r.level == level && r.msg == msg {
			n++
		}
	}
	return n
}

type captureAuditSink struct {
	entries []domain.HistoryEntry
	err     error
}

func (c *captureAuditSink) Append(_ context.Context, entry domain.HistoryEntry) error {
	if c.err != nil {
		return c.err
	}
	c.entries = append(c.entries, entry)
	return nil
}

type readableAuditSink struct {
	captureAuditSink
	readErr error
}

func (r *readableAuditSink) Scans(_ context.Context, batchNo string) ([]domain.HistoryEntry, error) {
	if r.readErr != nil {
		return nil, r.readErr
	}
	var out []domain.HistoryEntry
	for _, e := range r.entries {
		if e.BatchNo == batchNo {
			out = append(out, e)
		}
	}
	return out, nil
}

type fixedSampler float64

func (f fixedSampler) Sample(TempLimits) float64 { return float64(f) }

type stubProvider []domain.Batch

func (p stubProvider) Batches(time.Time) []domain.Batch { return p }

var fixedNow = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func fixedClock() ClockFunc {
	return func() time.Time { return fixedNow }
}

func ptr[T any](v T) *T { return &v }

func newTestService(t *testing.T, opts ...Option) *Service {
	t.Helper()
	opts = append([]Option{WithClock(fixedClock())}, opts...)
	return NewInMemoryService(nil, opts...)
}

func mustRegister(t *testing.T, svc *Service, id string, temperature float64) Batch {
	t.Helper()
	b, err := svc.Register(context.Background(), RegisterRequest{
		ID:          id,
		Location:    "40.7128,-74.0060",
		Temperature: ptr(temperature),
	})
	if err != nil {
		t.Fatalf("register %s: %v", id, err)
	}
	return b
}

func assertCode(t *testing.T, err error, target error) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected error matching %v, got nil", target)
	}
	if !errors.Is(err, target) {
		t.Fatalf("expected error matching %v, got %v", target, err)
	}
}

func nan() float64 { return math.NaN() }
