package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testHandler returns a handler that writes a response with the given status and body
func testHandler(status int, body string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
		w.Write([]byte(body))
	})
}

func serve(t *testing.T, h http.Handler, req *http.Request, level slog.Level) map[string]any {
	t.Helper()
	var logBuf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&logBuf, &slog.HandlerOptions{Level: level}))

	rr := httptest.NewRecorder()
	Middleware(logger)(h).ServeHTTP(rr, req)

	if logBuf.Len() == 0 {
		return nil
	}
	var logEntry map[string]any
	require.NoError(t, json.Unmarshal(logBuf.Bytes(), &logEntry))
	return logEntry
}

func TestMiddleware_LogsRequests(t *testing.T) {
	req := httptest.NewRequest("GET", "/api/v1/pool", nil)
	req.RemoteAddr = "192.168.1.100:12345"

	logEntry := serve(t, testHandler(http.StatusOK, "hello"), req, slog.LevelInfo)
	require.NotNil(t, logEntry)

	assert.Equal(t, "request", logEntry["msg"])
	assert.Equal(t, "INFO", logEntry["level"])
	assert.Equal(t, "GET", logEntry["method"])
	assert.Equal(t, "/api/v1/pool", logEntry["path"])
	assert.Equal(t, float64(http.StatusOK), logEntry["status"])
	assert.Equal(t, float64(5), logEntry["bytes"])
	assert.Contains(t, logEntry, "duration")
	assert.Equal(t, "192.168.1.100", logEntry["client_ip"])
}

func TestMiddleware_Levels(t *testing.T) {
	tests := []struct {
		name      string
		path      string
		status    int
		wantLevel string
	}{
		{name: "client error", path: "/api/v1/reports", status: http.StatusUnprocessableEntity, wantLevel: "INFO"},
		{name: "server error", path: "/api/v1/reports", status: http.StatusInternalServerError, wantLevel: "WARN"},
		{name: "health probe", path: "/health", status: http.StatusOK, wantLevel: "DEBUG"},
		{name: "failing readiness probe", path: "/readyz", status: http.StatusServiceUnavailable, wantLevel: "WARN"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("POST", tt.path, nil)
			logEntry := serve(t, testHandler(tt.status, ""), req, slog.LevelDebug)
			require.NotNil(t, logEntry)
			assert.Equal(t, tt.wantLevel, logEntry["level"])
			assert.Equal(t, float64(tt.status), logEntry["status"])
		})
	}
}

func TestMiddleware_HealthProbesHiddenAtInfo(t *testing.T) {
	req := httptest.NewRequest("GET", "/healthz", nil)
	logEntry := serve(t, testHandler(http.StatusOK, "ok"), req, slog.LevelInfo)
	assert.Nil(t, logEntry)
}

func TestMiddleware_DefaultStatus200(t *testing.T) {
	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("no explicit status"))
	})
	logEntry := serve(t, h, httptest.NewRequest("GET", "/", nil), slog.LevelInfo)
	require.NotNil(t, logEntry)
	assert.Equal(t, float64(http.StatusOK), logEntry["status"])

	empty := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})
	logEntry = serve(t, empty, httptest.NewRequest("GET", "/", nil), slog.LevelInfo)
	require.NotNil(t, logEntry)
	assert.Equal(t, float64(http.StatusOK), logEntry["status"])
}

func TestMiddleware_IncludesRequestID(t *testing.T) {
	var logBuf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&logBuf, nil))

	handler := middleware.RequestID(Middleware(logger)(testHandler(http.StatusOK, "")))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/", nil))

	var logEntry map[string]any
	require.NoError(t, json.Unmarshal(logBuf.Bytes(), &logEntry))
	assert.NotEmpty(t, logEntry["request_id"])
}

func TestMiddleware_HandlesContextWithRequestID(t *testing.T) {
	req := httptest.NewRequest("GET", "/", nil)
	req = req.WithContext(context.WithValue(req.Context(), middleware.RequestIDKey, "test-request-id-123"))

	logEntry := serve(t, testHandler(http.StatusOK, ""), req, slog.LevelInfo)
	require.NotNil(t, logEntry)
	assert.Equal(t, "test-request-id-123", logEntry["request_id"])
}

func TestMiddleware_UsesForwardedAddress(t *testing.T) {
	var logBuf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&logBuf, nil))

	handler := middleware.RealIP(Middleware(logger)(testHandler(http.StatusOK, "")))

	req := httptest.NewRequest("GET", "/", nil)
	req.RemoteAddr = "10.0.0.1:12345"
	req.Header.Set("X-Forwarded-For", "203.0.113.50")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	var logEntry map[string]any
	require.NoError(t, json.Unmarshal(logBuf.Bytes(), &logEntry))
	assert.Equal(t, "203.0.113.50", logEntry["client_ip"])
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		remoteAddr string
		want       string
	}{
		{remoteAddr: "192.168.1.1:4000", want: "192.168.1.1"},
		{remoteAddr: "[::1]:4000", want: "::1"},
		{remoteAddr: "203.0.113.50", want: "203.0.113.50"},
	}

	for _, tt := range tests {
		t.Run(tt.remoteAddr, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/", nil)
			req.RemoteAddr = tt.remoteAddr
			assert.Equal(t, tt.want, ClientIP(req))
		})
	}
}
