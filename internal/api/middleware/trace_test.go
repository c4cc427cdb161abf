package middleware

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/phrazzld/postpilot/internal/api/shared"
	"github.com/phrazzld/postpilot/internal/platform/logger"
	"github.com/stretchr/testify/assert"
)

func TestTraceMiddleware(t *testing.T) {
	var buf bytes.Buffer
	base := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	var traceID string
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		traceID = shared.GetTraceID(r.Context())
		logger.FromContext(r.Context()).Info("inside handler")
		w.WriteHeader(http.StatusNoContent)
	})

	rec := httptest.NewRecorder()
	NewTraceMiddleware(base)(next).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.NotEmpty(t, traceID)
	assert.Equal(t, traceID, rec.Header().Get(TraceIDHeader))
	assert.Contains(t, buf.String(), `"trace_id":"`+traceID+`"`)
	assert.Contains(t, buf.String(), "inside handler")
}
