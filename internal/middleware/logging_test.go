package middleware

import (
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"gqlpipeline/internal/logging"
)

func testLogger() *logging.Logger {
	return logging.NewLogger(logging.Config{Level: "error", Format: "text"})
}

func TestLoggingMiddlewareRequestID(t *testing.T) {
	handler := LoggingMiddleware(testLogger())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if id := logging.GetRequestID(r.Context()); id == "" {
			t.Error("expected a request ID on the handler context")
		}
		w.WriteHeader(http.StatusTeapot)
		_, _ = w.Write([]byte("short"))
	}))

	r := httptest.NewRequest(http.MethodPost, "/graphql", nil)
	r.Header.Set(RequestIDHeader, "rid-1")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, r)

	if got := rec.Header().Get(RequestIDHeader); got != "rid-1" {
		t.Errorf("expected the supplied request ID to be echoed, got %q", got)
	}
	if rec.Code != http.StatusTeapot {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusTeapot)
	}

	// A missing request ID is generated.
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/graphql", nil))
	if rec.Header().Get(RequestIDHeader) == "" {
		t.Error("expected a generated request ID header")
	}
}

func TestStatusRecorder(t *testing.T) {
	rec := &statusRecorder{ResponseWriter: httptest.NewRecorder(), status: http.StatusOK}

	n, err := rec.Write([]byte("hello"))
	if err != nil || n != 5 {
		t.Fatalf("write = (%d, %v)", n, err)
	}
	// A later WriteHeader must not override the implicit 200.
	rec.WriteHeader(http.StatusInternalServerError)

	if rec.status != http.StatusOK {
		t.Errorf("status = %d, want %d", rec.status, http.StatusOK)
	}
	if rec.bytes != 5 {
		t.Errorf("bytes = %d, want 5", rec.bytes)
	}
}

func TestCompletionLevel(t *testing.T) {
	tests := []struct {
		status int
		want   slog.Level
	}{
		{status: http.StatusOK, want: slog.LevelInfo},
		{status: http.StatusNotFound, want: slog.LevelWarn},
		{status: http.StatusBadGateway, want: slog.LevelError},
	}
	for _, tt := range tests {
		if got := completionLevel(tt.status); got != tt.want {
			t.Errorf("completionLevel(%d) = %v, want %v", tt.status, got, tt.want)
		}
	}
}
