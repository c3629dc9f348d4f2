package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func TestFromContextFallsBackToDefault(t *testing.T) {
	if FromContext(context.Background()) != slog.Default() {
		t.Fatal("expected default logger")
	}
	if HasLogger(context.Background()) {
		t.Fatal("expected no logger on empty context")
	}
}

func TestStartSpanPropagatesTrace(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, slog.LevelDebug)

	ctx := WithLogger(context.Background(), logger)
	ctx, parent := StartSpan(ctx, "ws.connection")
	traceID := TraceIDFromContext(ctx)
	parentID := SpanIDFromContext(ctx)
	if traceID == "" || parentID == "" {
		t.Fatal("expected trace and span ids")
	}

	child, span := StartSpan(ctx, "presence.updateLocation")
	if TraceIDFromContext(child) != traceID {
		t.Fatal("child span must reuse the trace id")
	}
	FromContext(child).Info("hello")
	span.End()
	parent.End()

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected three records got %d: %s", len(lines), buf.String())
	}

	var record map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &record); err != nil {
		t.Fatalf("decode record: %v", err)
	}
	if record["trace_id"] != traceID || record["parent_span_id"] != parentID || record["span_name"] != "presence.updateLocation" {
		t.Fatalf("unexpected record %v", record)
	}
}

func TestSpanEndIsQuietAtInfo(t *testing.T) {
	var buf bytes.Buffer
	ctx := WithLogger(context.Background(), New(&buf, slog.LevelInfo))

	_, span := StartSpan(ctx, "presence.connect")
	span.End()

	if buf.Len() != 0 {
		t.Fatalf("expected no output at info level got %s", buf.String())
	}

	var nilSpan *Span
	nilSpan.End()
}

func TestRequestIDRoundTrip(t *testing.T) {
	ctx := WithRequestID(context.Background(), "req-1")
	if RequestIDFromContext(ctx) != "req-1" {
		t.Fatal("expected request id to be stored")
	}
	if WithRequestID(ctx, "") != ctx {
		t.Fatal("empty ids must not be stored")
	}
}
