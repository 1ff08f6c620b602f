package observability

import (
	"context"
	"testing"
)

func TestInitTracing_Disabled(t *testing.T) {
	tp, shutdown, err := InitTracing(context.Background(), TracingConfig{}, discardLogger())
	if err != nil {
		t.Fatalf("InitTracing: %v", err)
	}

	_, span := tp.Tracer("test").Start(context.Background(), "noop")
	if span.SpanContext().IsValid() {
		t.Error("expected a noop span when tracing is disabled")
	}
	span.End()

	if err = shutdown(context.Background()); err != nil {
		t.Errorf("shutdown: %v", err)
	}
}

func TestInitTracing_Stdout(t *testing.T) {
	cfg := TracingConfig{Enabled: true, ServiceName: "mocap-flight-test", Exporter: "stdout", SampleRatio: 1}

	tp, shutdown, err := InitTracing(context.Background(), cfg, discardLogger())
	if err != nil {
		t.Fatalf("InitTracing: %v", err)
	}
	defer ShutdownWithTimeout(context.Background(), shutdown, discardLogger())

	_, span := tp.Tracer("test").Start(context.Background(), "flight")
	if !span.SpanContext().IsValid() {
		t.Error("expected a recording span")
	}
	span.End()
}

func TestInitTracing_UnknownExporter(t *testing.T) {
	cfg := TracingConfig{Enabled: true, Exporter: "zipkin", SampleRatio: 1}
	if _, _, err := InitTracing(context.Background(), cfg, discardLogger()); err == nil {
		t.Error("expected error for unsupported exporter")
	}
}
