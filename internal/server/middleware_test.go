package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/watzon/authhook/internal/metrics"
	"github.com/watzon/authhook/internal/requestctx"
)

func TestRecoveryMiddleware(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("test panic")
	})

	wrapped := RecoveryMiddleware(handler)

	req := httptest.NewRequest(http.MethodPost, "/webhooks/firebase/user-created", nil)
	w := httptest.NewRecorder()

	wrapped.ServeHTTP(w, req)

	if w.Code != http.StatusInternalServerError {
		t.Errorf("expected status %d, got %d", http.StatusInternalServerError, w.Code)
	}

	var response map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &response); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}

	if response["error"] != "internal error" {
		t.Errorf("expected error message 'internal error', got %v", response["error"])
	}
	if response["code"] != "INTERNAL_ERROR" {
		t.Errorf("expected code INTERNAL_ERROR, got %v", response["code"])
	}
}

func TestRecoveryMiddleware_NoError(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("success"))
	})

	wrapped := RecoveryMiddleware(handler)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	w := httptest.NewRecorder()

	wrapped.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("expected status %d, got %d", http.StatusOK, w.Code)
	}

	if w.Body.String() != "success" {
		t.Errorf("expected body 'success', got %s", w.Body.String())
	}
}

func TestRequestIDMiddleware(t *testing.T) {
	var captured *http.Request

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured = r
		w.WriteHeader(http.StatusOK)
	})

	wrapped := RequestIDMiddleware(handler)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	w := httptest.NewRecorder()

	wrapped.ServeHTTP(w, req)

	requestID := requestctx.RequestID(captured.Context())
	if requestID == "" {
		t.Error("request ID should be set in context")
	}

	if requestctx.RequestTime(captured.Context()).IsZero() {
		t.Error("request time should be set in context")
	}

	headerID := w.Header().Get("X-Request-ID")
	if requestID != headerID {
		t.Errorf("context request ID %q should match header ID %q", requestID, headerID)
	}
}

func TestRequestIDMiddleware_ExistingID(t *testing.T) {
	existingID := "existing-request-id"

	var captured *http.Request

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured = r
		w.WriteHeader(http.StatusOK)
	})

	wrapped := RequestIDMiddleware(handler)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", existingID)
	w := httptest.NewRecorder()

	wrapped.ServeHTTP(w, req)

	if got := requestctx.RequestID(captured.Context()); got != existingID {
		t.Errorf("expected request ID %q, got %q", existingID, got)
	}

	if got := w.Header().Get("X-Request-ID"); got != existingID {
		t.Errorf("expected header ID %q, got %q", existingID, got)
	}
}

func TestRequestIDMiddleware_OversizedID(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	wrapped := RequestIDMiddleware(handler)

	oversized := strings.Repeat("x", 200)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", oversized)
	w := httptest.NewRecorder()

	wrapped.ServeHTTP(w, req)

	got := w.Header().Get("X-Request-ID")
	if got == oversized || got == "" {
		t.Errorf("expected a regenerated request ID, got %q", got)
	}
}

func TestClientKeyMiddleware(t *testing.T) {
	resolver, err := NewClientKeyResolver("X-Client-Key", nil)
	if err != nil {
		t.Fatalf("failed to build resolver: %v", err)
	}

	tests := []struct {
		name   string
		header string
		expect string
	}{
		{name: "remote address", expect: "192.0.2.1"},
		{name: "key header", header: "tenant-a", expect: "key:tenant-a"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got string
			handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				got = requestctx.ClientKey(r.Context())
			})

			wrapped := ClientKeyMiddleware(resolver)(handler)

			req := httptest.NewRequest(http.MethodPost, "/", nil)
			req.RemoteAddr = "192.0.2.1:4567"
			if tt.header != "" {
				req.Header.Set("X-Client-Key", tt.header)
			}
			wrapped.ServeHTTP(httptest.NewRecorder(), req)

			if got != tt.expect {
				t.Errorf("expected client key %q, got %q", tt.expect, got)
			}
		})
	}
}

func TestLoggingMiddleware(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
		w.Write([]byte("test response"))
	})

	wrapped := RequestIDMiddleware(LoggingMiddleware(handler))

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	w := httptest.NewRecorder()

	wrapped.ServeHTTP(w, req)

	if w.Code != http.StatusAccepted {
		t.Errorf("expected status %d, got %d", http.StatusAccepted, w.Code)
	}

	if w.Body.String() != "test response" {
		t.Errorf("expected body 'test response', got %s", w.Body.String())
	}
}

func TestResponseWriter_TracksStatusAndBytes(t *testing.T) {
	rec := httptest.NewRecorder()
	rw := &responseWriter{ResponseWriter: rec, status: http.StatusOK}

	rw.WriteHeader(http.StatusTeapot)
	rw.WriteHeader(http.StatusOK)
	rw.Write([]byte("hello"))

	if rw.status != http.StatusTeapot {
		t.Errorf("expected first status to stick, got %d", rw.status)
	}
	if rw.bytes != 5 {
		t.Errorf("expected 5 bytes, got %d", rw.bytes)
	}
	if rw.Unwrap() != rec {
		t.Error("Unwrap should return the wrapped writer")
	}
}

func TestMaxBodySizeMiddleware(t *testing.T) {
	maxSize := int64(100)

	tests := []struct {
		name         string
		bodySize     int
		expectStatus int
	}{
		{name: "within limit", bodySize: 50, expectStatus: http.StatusOK},
		{name: "at limit", bodySize: 100, expectStatus: http.StatusOK},
		{name: "over limit", bodySize: 150, expectStatus: http.StatusRequestEntityTooLarge},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				body, err := io.ReadAll(r.Body)
				if err != nil {
					http.Error(w, err.Error(), http.StatusBadRequest)
					return
				}
				w.WriteHeader(http.StatusOK)
				w.Write(body)
			})

			wrapped := MaxBodySizeMiddleware(maxSize)(handler)

			body := bytes.Repeat([]byte("a"), tt.bodySize)
			req := httptest.NewRequest(http.MethodPost, "/", bytes.NewReader(body))
			w := httptest.NewRecorder()

			wrapped.ServeHTTP(w, req)

			if w.Code != tt.expectStatus {
				t.Errorf("expected status %d, got %d", tt.expectStatus, w.Code)
			}
		})
	}
}

func TestMaxBodySizeMiddleware_StreamedBody(t *testing.T) {
	var readErr error
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, readErr = io.ReadAll(r.Body)
	})

	wrapped := MaxBodySizeMiddleware(10)(handler)

	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(strings.Repeat("b", 50)))
	req.ContentLength = -1
	wrapped.ServeHTTP(httptest.NewRecorder(), req)

	var maxErr *http.MaxBytesError
	if !errors.As(readErr, &maxErr) {
		t.Errorf("expected MaxBytesError, got %v", readErr)
	}
}

func TestNormalizePath(t *testing.T) {
	tests := []struct {
		path   string
		expect string
	}{
		{"/webhooks/firebase/user-created", "/webhooks/firebase/user-created"},
		{"/webhooks/firebase/user-deleted", "/webhooks/firebase/user-deleted"},
		{"/webhooks/firebase/health", "/webhooks/firebase/health"},
		{"/webhooks/firebase/deliveries", "/webhooks/firebase/deliveries"},
		{"/webhooks/firebase/user-renamed", "/webhooks/firebase/:unknown"},
		{"/webhooks/firebase/a/b/c", "/webhooks/firebase/:unknown"},
		{"/readyz", "other"},
		{"/", "other"},
	}

	for _, tt := range tests {
		if got := normalizePath(tt.path); got != tt.expect {
			t.Errorf("normalizePath(%q) = %q, want %q", tt.path, got, tt.expect)
		}
	}
}

func TestMetricsMiddleware_PassesThrough(t *testing.T) {
	calls := 0
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusNoContent)
	})

	wrapped := MetricsMiddleware("/metrics")(handler)

	for _, path := range []string{"/metrics", "/webhooks/firebase/user-created"} {
		w := httptest.NewRecorder()
		wrapped.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		if w.Code != http.StatusNoContent {
			t.Errorf("%s: expected status %d, got %d", path, http.StatusNoContent, w.Code)
		}
	}

	if calls != 2 {
		t.Errorf("expected handler to run twice, got %d", calls)
	}
}

func inFlightGauge(t *testing.T) string {
	t.Helper()

	w := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	for line := range strings.SplitSeq(w.Body.String(), "\n") {
		if v, ok := strings.CutPrefix(line, "authhook_http_requests_in_flight "); ok {
			return v
		}
	}
	t.Fatal("in-flight gauge not exported")
	return ""
}

func TestMetricsMiddleware_PanicReleasesInFlight(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("handler exploded")
	})
	wrapped := RecoveryMiddleware(MetricsMiddleware("/metrics")(handler))

	before := inFlightGauge(t)

	w := httptest.NewRecorder()
	wrapped.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/webhooks/firebase/user-created", nil))
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected status 500, got %d", w.Code)
	}

	if after := inFlightGauge(t); after != before {
		t.Errorf("in-flight gauge leaked: before %s, after %s", before, after)
	}
}
