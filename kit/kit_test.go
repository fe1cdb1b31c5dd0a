package kit

import (
	"context"
	"testing"
)

func TestRequestID(t *testing.T) {
	// WHAT: Request ID round-trips through the context.
	// WHY: Log correlation depends on it.
	ctx := WithRequestID(context.Background(), "req_123")
	if got := GetRequestID(ctx); got != "req_123" {
		t.Errorf("request id: got %q", got)
	}
	if got := GetRequestID(context.Background()); got != "" {
		t.Errorf("empty context: got %q", got)
	}
}

func TestTransport(t *testing.T) {
	// WHAT: Transport round-trips; the zero value reads as "http".
	// WHY: Handlers branch on the calling surface.
	ctx := WithTransport(context.Background(), "mcp")
	if got := GetTransport(ctx); got != "mcp" {
		t.Errorf("transport: got %q", got)
	}
	if got := GetTransport(context.Background()); got != "http" {
		t.Errorf("default transport: got %q", got)
	}
}
