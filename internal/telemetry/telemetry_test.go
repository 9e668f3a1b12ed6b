package telemetry

import (
	"context"
	"errors"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"vaxtrax/internal/core"
)

func TestSetupNoopWithoutEndpoint(t *testing.T) {
	shutdown, err := Setup(context.Background(), "", "vaxtrax")
	if err != nil {
		t.Fatalf("setup: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
}

func TestSetupWithEndpoint(t *testing.T) {
	// Non-routable; nothing is exported before shutdown.
	shutdown, err := Setup(context.Background(), "http://192.0.2.1:4318", "vaxtrax")
	if err != nil {
		t.Fatalf("setup: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
}

func TestOTelTracerRecordsSpans(t *testing.T) {
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	tracer := NewOTelTracer(tp)

	ctx := core.WithActor(context.Background(), core.Actor{Name: "Company User"})
	_, span := tracer.Start(ctx, "scan")
	span.End(nil)
	_, span = tracer.Start(context.Background(), "proceed")
	span.End(errors.New("batch VAX-9 not found"))

	ended := rec.Ended()
	if len(ended) != 2 {
		t.Fatalf("expected 2 spans, got %d", len(ended))
	}
	if ended[0].Name() != "registry.scan" || ended[0].Status().Code == codes.Error {
		t.Fatalf("unexpected first span %s %v", ended[0].Name(), ended[0].Status())
	}
	found := false
	for _, kv := range ended[0].Attributes() {
		if kv.Key == attribute.Key("registry.actor") && kv.Value.AsString() == "Company User" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected actor attribute")
	}
	if ended[1].Status().Code != codes.Error || len(ended[1].Events()) == 0 {
		t.Fatalf("expected error status and recorded event")
	}
}

func TestNewOTelTracerDefaultsToGlobal(t *testing.T) {
	tracer := NewOTelTracer(nil)
	_, span := tracer.Start(context.Background(), "list")
	span.End(nil)
}
