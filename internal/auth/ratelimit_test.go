package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestPerClientRateLimiter_Allow(t *testing.T) {
	rl := NewPerClientRateLimiter(&RateLimitConfig{RequestsPerSecond: 1, Burst: 2})
	defer rl.Stop()

	if !rl.Allow("a") || !rl.Allow("a") {
		t.Fatal("burst should be allowed")
	}
	if rl.Allow("a") {
		t.Error("third request should be limited")
	}
	if !rl.Allow("b") {
		t.Error("other clients have their own bucket")
	}
}

func TestPerClientRateLimiter_Handler(t *testing.T) {
	rl := NewPerClientRateLimiter(&RateLimitConfig{
		RequestsPerSecond: 1,
		Burst:             1,
		SkipPaths:         []string{"/health"},
	})
	defer rl.Stop()

	handler := rl.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	do := func(path, ip string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		req.RemoteAddr = ip + ":1234"
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		return rr
	}

	if rr := do("/api/v1/agents", "10.0.0.1"); rr.Code != http.StatusOK {
		t.Fatalf("first request: %d", rr.Code)
	}
	rr := do("/api/v1/agents", "10.0.0.1")
	if rr.Code != http.StatusTooManyRequests {
		t.Errorf("expected 429, got %d", rr.Code)
	}
	if rr.Header().Get("Retry-After") != "1" {
		t.Error("expected Retry-After header")
	}
	if rr := do("/api/v1/agents", "10.0.0.2"); rr.Code != http.StatusOK {
		t.Errorf("different IP should pass, got %d", rr.Code)
	}
	for i := 0; i < 3; i++ {
		if rr := do("/health", "10.0.0.1"); rr.Code != http.StatusOK {
			t.Errorf("skip path limited: %d", rr.Code)
		}
	}
}

func TestPerClientRateLimiter_EvictIdle(t *testing.T) {
	rl := NewPerClientRateLimiter(&RateLimitConfig{RequestsPerSecond: 1, Burst: 1, IdleTTL: time.Minute})
	defer rl.Stop()

	rl.Allow("a")
	rl.evictIdle(time.Now().Add(2 * time.Minute))

	rl.mu.Lock()
	n := len(rl.clients)
	rl.mu.Unlock()
	if n != 0 {
		t.Errorf("expected idle client evicted, %d remain", n)
	}
}

func TestClientKey(t *testing.T) {
	tests := []struct {
		name   string
		setup  func(*http.Request) *http.Request
		expect string
	}{
		{"remote addr", func(r *http.Request) *http.Request { return r }, "ip:192.0.2.1"},
		{"forwarded", func(r *http.Request) *http.Request {
			r.Header.Set("X-Forwarded-For", "203.0.113.5, 10.0.0.1")
			return r
		}, "ip:203.0.113.5"},
		{"real ip", func(r *http.Request) *http.Request {
			r.Header.Set("X-Real-IP", "198.51.100.7")
			return r
		}, "ip:198.51.100.7"},
		{"subject wins", func(r *http.Request) *http.Request {
			return r.WithContext(WithClaims(r.Context(), &Claims{Subject: "u1"}))
		}, "sub:u1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if got := ClientKey(tt.setup(req)); got != tt.expect {
				t.Errorf("ClientKey() = %q, want %q", got, tt.expect)
			}
		})
	}
}
