package shared

import (
	"context"
	"encoding/binary"
	"encoding/hex"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// ContextKey is the type of request context keys set by the API layer.
type ContextKey string

// Context keys
const (
	// SubjectContextKey holds the authenticated token subject.
	SubjectContextKey ContextKey = "subject"

	// TraceIDKey holds the per-request trace ID.
	TraceIDKey ContextKey = "traceID"
)

// SetTraceID adds a fresh trace ID to ctx.
func SetTraceID(ctx context.Context) context.Context {
	return context.WithValue(ctx, TraceIDKey, generateTraceID())
}

// GetTraceID returns the trace ID in ctx, or "" when there is none.
func GetTraceID(ctx context.Context) string {
	traceID, _ := ctx.Value(TraceIDKey).(string)
	return traceID
}

// GetSubject returns the authenticated subject in ctx.
func GetSubject(ctx context.Context) (string, bool) {
	subject, ok := ctx.Value(SubjectContextKey).(string)
	return subject, ok && subject != ""
}

// generateTraceID returns 32 hex characters. If the random source fails it
// falls back to a time-based ID rather than a constant.
func generateTraceID() string {
	id, err := uuid.NewRandom()
	if err != nil {
		slog.Error("failed to generate random trace ID", "error", err, "fallback", "time-based")
		return fallbackTraceID(time.Now())
	}
	return hex.EncodeToString(id[:])
}

func fallbackTraceID(now time.Time) string {
	b := make([]byte, 16)
	binary.BigEndian.PutUint64(b[:8], uint64(now.UnixNano()))
	binary.BigEndian.PutUint32(b[8:12], uint32(now.Nanosecond()))
	binary.BigEndian.PutUint32(b[12:], uint32(now.Unix()))
	return hex.EncodeToString(b)
}
