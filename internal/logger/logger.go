// Package logger provides structured logging using Go 1.21's log/slog.
// It sets up a JSON handler with service-level context and provides
// cycle ID propagation through context.Context, so every log line within
// one recompute cycle can be correlated.
package logger

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"
)

type ctxKey string

const cycleIDKey ctxKey = "cycle_id"

// Init creates and returns a structured logger for the given service.
// The logger outputs JSON to stdout with the service name embedded.
func Init(service string, level slog.Level) *slog.Logger {
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	})

	logger := slog.New(handler).With(
		slog.String("service", service),
	)

	// Set as default so log/slog.Info() etc. also use structured output
	slog.SetDefault(logger)

	return logger
}

// WithCycleID stores a recompute cycle ID in the context for downstream
// propagation.
func WithCycleID(ctx context.Context, cycleID string) context.Context {
	return context.WithValue(ctx, cycleIDKey, cycleID)
}

// CycleID extracts the cycle ID from context. Returns "" if not set.
func CycleID(ctx context.Context) string {
	if v, ok := ctx.Value(cycleIDKey).(string); ok {
		return v
	}
	return ""
}

// GenerateCycleID creates a cycle ID from a pair key and timestamp.
// Format: "{pairKey}-{unixNano}".
func GenerateCycleID(pairKey string, ts time.Time) string {
	return fmt.Sprintf("%s-%d", pairKey, ts.UnixNano())
}

// LogWithCycle returns slog attributes including the cycle ID from context.
// Usage: slog.Info("msg", logger.LogWithCycle(ctx)...)
func LogWithCycle(ctx context.Context) []any {
	cid := CycleID(ctx)
	if cid == "" {
		return nil
	}
	return []any{slog.String("cycle_id", cid)}
}
