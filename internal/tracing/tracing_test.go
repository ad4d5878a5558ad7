package tracing

import (
	"context"
	"errors"
	"testing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestInit_NoEndpoint(t *testing.T) {
	p, err := Init(context.Background(), Config{ServiceName: "docqa"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := p.Shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown error: %v", err)
	}
}

func TestShutdown_NilProvider(t *testing.T) {
	var p *Provider
	if err := p.Shutdown(context.Background()); err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
}

func TestSampler(t *testing.T) {
	if got := sampler(1).Description(); got != sdktrace.AlwaysSample().Description() {
		t.Errorf("rate 1: %s", got)
	}
	if got := sampler(0).Description(); got != sdktrace.NeverSample().Description() {
		t.Errorf("rate 0: %s", got)
	}
	if got := sampler(0.25).Description(); got != sdktrace.TraceIDRatioBased(0.25).Description() {
		t.Errorf("rate 0.25: %s", got)
	}
}

func TestSpans_Recorded(t *testing.T) {
	rec := tracetest.NewSpanRecorder()
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec)))
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	ctx, parent := Start(context.Background(), "ingest", attribute.String("docqa.index", "hackrx-doc-1a2b3c4d"))
	_, child := StartClient(ctx, "embed.batch", "gemini", "models/embedding-001")
	End(child, errors.New("quota exceeded"))
	End(parent, nil)

	spans := rec.Ended()
	if len(spans) != 2 {
		t.Fatalf("expected 2 spans, got %d", len(spans))
	}
	if spans[0].Name() != "embed.batch" || spans[0].Status().Code != codes.Error {
		t.Errorf("unexpected child span: %s %v", spans[0].Name(), spans[0].Status())
	}
	if spans[0].Parent().SpanID() != spans[1].SpanContext().SpanID() {
		t.Error("child span should be parented to ingest span")
	}
	if spans[1].Status().Code == codes.Error {
		t.Error("parent span should not be marked as error")
	}
}
