package infra

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"go.opentelemetry.io/otel/trace"

	"crypto-keystore/config"
)

func TestParseLogLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"DEBUG":   slog.LevelDebug,
		"warn":    slog.LevelWarn,
		"WARNING": slog.LevelWarn,
		"ERROR":   slog.LevelError,
		"INFO":    slog.LevelInfo,
		"bogus":   slog.LevelInfo,
	}
	for in, want := range tests {
		if got := ParseLogLevel(in); got != want {
			t.Errorf("ParseLogLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestTraceHandler(t *testing.T) {
	traceID, _ := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	spanID, _ := trace.SpanIDFromHex("00f067aa0ba902b7")
	ctx := trace.ContextWithSpanContext(context.Background(), trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    traceID,
		SpanID:     spanID,
		TraceFlags: trace.FlagsSampled,
	}))

	t.Run("otel enabled", func(t *testing.T) {
		var buf bytes.Buffer
		cfg := &config.Config{OtelEnabled: true, GoogleCloudProject: "my-project"}
		logger := slog.New(NewTraceHandler(slog.NewJSONHandler(&buf, nil), cfg))
		logger.InfoContext(ctx, "key issued", "key_id", 1)

		var entry map[string]any
		if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
			t.Fatalf("invalid json log: %v", err)
		}
		if entry["trace"] != traceID.String() {
			t.Errorf("expected trace %s, got %v", traceID, entry["trace"])
		}
		if entry["logging.googleapis.com/trace"] != "projects/my-project/traces/"+traceID.String() {
			t.Errorf("unexpected cloud logging trace: %v", entry["logging.googleapis.com/trace"])
		}
	})

	t.Run("otel disabled", func(t *testing.T) {
		var buf bytes.Buffer
		logger := slog.New(NewTraceHandler(slog.NewJSONHandler(&buf, nil), &config.Config{}))
		logger.InfoContext(ctx, "key issued")

		var entry map[string]any
		if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
			t.Fatalf("invalid json log: %v", err)
		}
		if _, ok := entry["trace"]; ok {
			t.Error("expected no trace field when otel is disabled")
		}
	})
}
