package log

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		entry := map[string]any{}
		require.NoError(t, json.Unmarshal([]byte(line), &entry))
		out = append(out, entry)
	}
	return out
}

func TestNew_JSONFormatAndLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Level: slog.LevelWarn, Format: "json", Component: ComponentStorage, Output: &buf})

	logger.Info("hidden")
	logger.Warn("shown", "key", "value")

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "shown", lines[0]["msg"])
	assert.Equal(t, ComponentStorage, lines[0][FieldComponent])
	assert.Equal(t, "value", lines[0]["key"])
	assert.Equal(t, ComponentStorage, logger.Component())
}

func TestNew_TextFormatByDefault(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Level: slog.LevelInfo, Output: &buf})

	logger.Info("hello")

	assert.Contains(t, buf.String(), "msg=hello")
	assert.Contains(t, buf.String(), "component=app")
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    slog.Level
		wantErr bool
	}{
		{"debug", slog.LevelDebug, false},
		{"INFO", slog.LevelInfo, false},
		{"", slog.LevelInfo, false},
		{"warn", slog.LevelWarn, false},
		{"warning", slog.LevelWarn, false},
		{"error", slog.LevelError, false},
		{"chatty", slog.LevelInfo, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLevel(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestWithComponent(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Format: "json", Output: &buf}).WithComponent(ComponentHTTP)

	logger.Info("request")

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 1)
	assert.Equal(t, ComponentHTTP, logger.Component())
	// slog keeps both attributes; the later one is the effective component.
	assert.Equal(t, ComponentHTTP, lines[0][FieldComponent])
}

func TestFromContext(t *testing.T) {
	t.Run("falls back to default", func(t *testing.T) {
		logger := FromContext(context.Background())
		require.NotNil(t, logger)
		assert.Equal(t, "unknown", logger.Component())
	})

	t.Run("returns stored logger", func(t *testing.T) {
		stored := New(Config{Component: ComponentWorker, Output: &bytes.Buffer{}})
		ctx := WithLogger(context.Background(), stored)
		assert.Same(t, stored, FromContext(ctx))
	})
}

func TestComponentMiddleware(t *testing.T) {
	var buf bytes.Buffer
	base := New(Config{Format: "json", Output: &buf})

	handler := ComponentMiddleware(ComponentHTTP)(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			FromContext(r.Context()).InfoContext(r.Context(), "inside")
			w.WriteHeader(http.StatusNoContent)
		}),
	)

	req := httptest.NewRequest(http.MethodGet, "/users", nil)
	ctx := WithLogger(req.Context(), base.WithComponent(ComponentTrace).With(FieldRequestID, "req_1"))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req.WithContext(ctx))

	assert.Equal(t, http.StatusNoContent, rec.Code)
	lines := decodeLines(t, &buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "req_1", lines[0][FieldRequestID])
	assert.Equal(t, ComponentHTTP, lines[0][FieldComponent])
}

func TestStructuredLogger(t *testing.T) {
	var buf bytes.Buffer
	sl := NewStructuredLogger(New(Config{Level: slog.LevelDebug, Format: "json", Output: &buf}))
	ctx := context.Background()
	req := httptest.NewRequest(http.MethodPost, "/records?userId=x", nil)

	sl.LogHTTPStart(ctx, req, "req_1", "10.0.0.1")
	sl.LogHTTPEnd(ctx, req, "req_1", http.StatusUnprocessableEntity, 3, "10.0.0.1")
	sl.LogHTTPEnd(ctx, req, "req_1", http.StatusInternalServerError, 3, "10.0.0.1")
	sl.LogRecordCreated(ctx, "r1", "u1", "c1", "12.50")
	sl.LogError(ctx, "boom", errors.New("disk full"), OpCreate, nil)

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 5)

	assert.Equal(t, "INFO", lines[0]["level"])
	assert.Equal(t, "userId=x", lines[0][FieldQuery])
	assert.Equal(t, "10.0.0.1", lines[0][FieldClientIP])

	assert.Equal(t, "WARN", lines[1]["level"])
	assert.Equal(t, false, lines[1][FieldSuccess])
	assert.EqualValues(t, http.StatusUnprocessableEntity, lines[1][FieldStatusCode])

	assert.Equal(t, "ERROR", lines[2]["level"])

	assert.Equal(t, "12.50", lines[3][FieldSum])
	assert.Equal(t, "u1", lines[3][FieldUserID])

	assert.Equal(t, "disk full", lines[4][FieldError])
	assert.Equal(t, OpCreate, lines[4][FieldOperation])
}

func TestLogFields(t *testing.T) {
	fields := NewFields().
		WithRequestID("").
		WithError(nil).
		WithHTTPRequest(http.MethodGet, "/", "", "", "")

	_, hasRequestID := fields[FieldRequestID]
	_, hasError := fields[FieldError]
	_, hasAgent := fields[FieldUserAgent]
	assert.False(t, hasRequestID)
	assert.False(t, hasError)
	assert.False(t, hasAgent)
	assert.Len(t, fields.ToSlice(), 6)
}
