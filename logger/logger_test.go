package logger

import (
	"bytes"
	"context"
	"strings"
	"testing"
)

func contextWithBuffer(t *testing.T, isDevelopment bool) (context.Context, *bytes.Buffer) {
	t.Helper()

	config := NewConfig(isDevelopment, "")
	buf := &bytes.Buffer{}
	config.output = buf

	return ContextWithLogConfig(context.Background(), config), buf
}

func TestLogRespectsMinLevel(t *testing.T) {
	ctx, buf := contextWithBuffer(t, false)

	Debug(ctx, "should not appear")
	if buf.Len() != 0 {
		t.Fatalf("expected no output for Debug below minimum level, got %q", buf.String())
	}

	Info(ctx, "hello %s", "world")
	if !strings.Contains(buf.String(), "hello world") {
		t.Fatalf("expected entry to contain message, got %q", buf.String())
	}
}

func TestNoLoggerDiscardsEverything(t *testing.T) {
	ctx := ContextWithNoLogger(context.Background())
	// Nothing to assert on except that this does not panic; there is no way to observe the
	// discarded output from outside the package.
	Error(ctx, "this goes nowhere")
}

func TestSubSystemFilter(t *testing.T) {
	ctx, buf := contextWithBuffer(t, true)
	config := configFromContext(ctx)
	config.EnableSubSystem("Wanted")

	unwanted := ContextWithLogSubSystem(ctx, "Unwanted")
	Info(unwanted, "should be filtered")
	if buf.Len() != 0 {
		t.Fatalf("expected subsystem filter to drop entry, got %q", buf.String())
	}

	wanted := ContextWithLogSubSystem(ctx, "Wanted")
	Info(wanted, "should appear")
	if !strings.Contains(buf.String(), "should appear") {
		t.Fatalf("expected entry from included subsystem, got %q", buf.String())
	}
}

func TestLogTraceIsIncluded(t *testing.T) {
	ctx, buf := contextWithBuffer(t, true)
	ctx = ContextWithLogTrace(ctx, "trace-123")

	Info(ctx, "tagged entry")
	if !strings.Contains(buf.String(), "trace-123") {
		t.Fatalf("expected trace id in entry, got %q", buf.String())
	}
}
