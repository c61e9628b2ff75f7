package tracing

import (
	"context"
	"testing"
)

func TestInitDisabledIsNoOp(t *testing.T) {
	p, err := Init(context.Background(), Config{Enabled: false})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Tracer == nil {
		t.Fatal("expected a non-nil no-op tracer")
	}
	if err := p.Shutdown(context.Background()); err != nil {
		t.Fatalf("expected disabled provider shutdown to be a no-op, got: %v", err)
	}
}

func TestShutdownOnNilProvider(t *testing.T) {
	var p *Provider
	if err := p.Shutdown(context.Background()); err != nil {
		t.Fatalf("expected nil-receiver shutdown to be safe, got: %v", err)
	}
}

func TestStartSpanReturnsUsableSpan(t *testing.T) {
	p, err := Init(context.Background(), Config{Enabled: false})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	ctx, span := StartSpan(context.Background(), p.Tracer, "test.span", AttrFolder.String("my-folder"))
	if ctx == nil || span == nil {
		t.Fatal("expected a non-nil context and span")
	}
	span.End()
}
