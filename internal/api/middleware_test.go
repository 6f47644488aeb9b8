package api

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/flexinfer/agentmarket/internal/config"
)

func TestNormalizePath(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"/api/v1/agents", "/api/v1/agents"},
		{"/api/v1/agents/seo-optimizer", "/api/v1/agents/{id}"},
		{"/api/v1/agents/categories", "/api/v1/agents/categories"},
		{"/api/v1/agents/validate", "/api/v1/agents/validate"},
		{"/api/v1/agents/compatibility/1/2", "/api/v1/agents/compatibility/{id}/{id}"},
		{"/api/v1/workflows/abc/favorite", "/api/v1/workflows/{id}/favorite"},
		{"/api/v1/sessions/550e8400-e29b-41d4-a716-446655440000/events", "/api/v1/sessions/{id}/events"},
		{"/api/v1/sessions/xyz/input", "/api/v1/sessions/{id}/input"},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			if got := normalizePath(tt.path); got != tt.want {
				t.Errorf("normalizePath(%q) = %q, want %q", tt.path, got, tt.want)
			}
		})
	}
}

func TestRequestIDPropagation(t *testing.T) {
	a := newTestAPI(t)

	req, _ := http.NewRequest("GET", a.server.URL+"/api/v1/agents/missing", nil)
	req.Header.Set("X-Request-ID", "req-123")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request error = %v", err)
	}
	defer resp.Body.Close()

	if got := resp.Header.Get("X-Content-Type-Options"); got != "nosniff" {
		t.Errorf("X-Content-Type-Options = %q, want nosniff", got)
	}
	if got := resp.Header.Get("X-Request-ID"); got != "req-123" {
		t.Errorf("X-Request-ID = %q, want req-123", got)
	}
	var body ErrorResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.RequestID != "req-123" {
		t.Errorf("request_id = %q, want req-123", body.RequestID)
	}
}

func TestCORSPreflight(t *testing.T) {
	a := newTestAPI(t)

	req, _ := http.NewRequest("OPTIONS", a.server.URL+"/api/v1/sessions/abc/input", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", "POST")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("preflight error = %v", err)
	}
	resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
	if got := resp.Header.Get("Access-Control-Allow-Origin"); got != "http://localhost:3000" {
		t.Errorf("Allow-Origin = %q", got)
	}
}

func TestUnknownRouteEnvelope(t *testing.T) {
	a := newTestAPI(t)

	var body ErrorResponse
	expectStatus(t, a.do(t, "GET", "/api/v1/nothing-here", nil, &body), http.StatusNotFound)
	if body.Error != ErrCodeNotFound {
		t.Errorf("error code = %q", body.Error)
	}
	expectStatus(t, a.do(t, "PATCH", "/api/v1/agents", nil, nil), http.StatusMethodNotAllowed)
}

func TestRecoveryMiddleware(t *testing.T) {
	h := NewHandlers(Deps{}, &config.Config{}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	handler := h.RequestIDMiddleware(h.RecoveryMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	})))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("GET", "/x", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
	var body ErrorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Error != ErrCodeInternalError || body.RequestID == "" {
		t.Errorf("body = %+v", body)
	}
}

func TestHealthAndMetrics(t *testing.T) {
	a := newTestAPI(t)

	expectStatus(t, a.do(t, "GET", "/health", nil, nil), http.StatusOK)

	var ready map[string]interface{}
	expectStatus(t, a.do(t, "GET", "/ready", nil, &ready), http.StatusOK)
	if ready["status"] != "ready" {
		t.Errorf("ready = %v", ready)
	}

	expectStatus(t, a.do(t, "GET", "/metrics", nil, nil), http.StatusOK)
}

func TestErrorStatusMapping(t *testing.T) {
	if got := HTTPStatusToErrorCode(http.StatusUnprocessableEntity); got != ErrCodeBadRequest {
		t.Errorf("422 code = %q", got)
	}
	if got := HTTPStatusToErrorCode(http.StatusRequestEntityTooLarge); got != ErrCodeTooLarge {
		t.Errorf("413 code = %q", got)
	}
}
