package api

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/mohamedkhairy/chat-relay/internal/config"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

var testOrigins = config.RelayConfig{AllowedOrigins: []string{"https://localhost:3000"}}

func TestCORSMiddleware(t *testing.T) {
	handler := CORSMiddleware(testOrigins.OriginAllowed)(okHandler())

	req := httptest.NewRequest("GET", "/test", nil)
	req.Header.Set("Origin", "https://localhost:3000")
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "https://localhost:3000" {
		t.Errorf("Expected CORS header to echo origin, got %q", got)
	}
	if w.Code != http.StatusOK {
		t.Errorf("Expected status %d, got %d", http.StatusOK, w.Code)
	}
}

func TestCORSMiddleware_DisallowedOrigin(t *testing.T) {
	handler := CORSMiddleware(testOrigins.OriginAllowed)(okHandler())

	req := httptest.NewRequest("GET", "/test", nil)
	req.Header.Set("Origin", "https://evil.example")
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	if w.Code != http.StatusForbidden {
		t.Errorf("Expected status %d, got %d", http.StatusForbidden, w.Code)
	}
	if w.Header().Get("Access-Control-Allow-Origin") != "" {
		t.Error("Expected no CORS header for a disallowed origin")
	}
}

func TestCORSMiddleware_NoOrigin(t *testing.T) {
	handler := CORSMiddleware(testOrigins.OriginAllowed)(okHandler())

	req := httptest.NewRequest("GET", "/test", nil)
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Expected status %d, got %d", http.StatusOK, w.Code)
	}
}

func TestCORSMiddleware_OPTIONS(t *testing.T) {
	called := false
	handler := CORSMiddleware(testOrigins.OriginAllowed)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))

	req := httptest.NewRequest("OPTIONS", "/test", nil)
	req.Header.Set("Origin", "https://localhost:3000")
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Expected status %d for OPTIONS, got %d", http.StatusOK, w.Code)
	}
	if called {
		t.Error("Expected preflight to stop at the middleware")
	}
}

func TestLoggingMiddleware(t *testing.T) {
	handler := LoggingMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	req := httptest.NewRequest("GET", "/test", nil)
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	if w.Code != http.StatusTeapot {
		t.Errorf("Expected status %d, got %d", http.StatusTeapot, w.Code)
	}
}

func TestErrorHandlingMiddleware(t *testing.T) {
	for _, value := range []interface{}{"test panic", 42} {
		handler := ErrorHandlingMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			panic(value)
		}))

		req := httptest.NewRequest("GET", "/test", nil)
		w := httptest.NewRecorder()

		handler.ServeHTTP(w, req)

		if w.Code != http.StatusInternalServerError {
			t.Errorf("Expected status %d, got %d", http.StatusInternalServerError, w.Code)
		}
	}
}

func TestRateLimitMiddleware(t *testing.T) {
	handler := RateLimitMiddleware(2, false)(okHandler())

	req := httptest.NewRequest("GET", "/test", nil)
	req.RemoteAddr = "127.0.0.1:12345"

	for i := 0; i < 2; i++ {
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		if w.Code != http.StatusOK {
			t.Errorf("Request %d: expected status %d, got %d", i+1, http.StatusOK, w.Code)
		}
	}

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	if w.Code != http.StatusTooManyRequests {
		t.Errorf("Expected status %d, got %d", http.StatusTooManyRequests, w.Code)
	}

	// Another client has its own budget
	other := httptest.NewRequest("GET", "/test", nil)
	other.RemoteAddr = "10.0.0.1:1"
	w = httptest.NewRecorder()
	handler.ServeHTTP(w, other)
	if w.Code != http.StatusOK {
		t.Errorf("Expected status %d, got %d", http.StatusOK, w.Code)
	}
}

func TestRateLimitMiddleware_Disabled(t *testing.T) {
	handler := RateLimitMiddleware(0, false)(okHandler())
	req := httptest.NewRequest("GET", "/test", nil)

	for i := 0; i < 10; i++ {
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		if w.Code != http.StatusOK {
			t.Fatalf("Expected status %d, got %d", http.StatusOK, w.Code)
		}
	}
}

func TestRateLimitMiddleware_IgnoresSpoofedForwardedFor(t *testing.T) {
	handler := RateLimitMiddleware(1, false)(okHandler())

	codes := make([]int, 0, 3)
	for _, spoofed := range []string{"1.1.1.1", "2.2.2.2", "3.3.3.3"} {
		req := httptest.NewRequest("GET", "/test", nil)
		req.RemoteAddr = "127.0.0.1:12345"
		req.Header.Set("X-Forwarded-For", spoofed)
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		codes = append(codes, w.Code)
	}

	expected := []int{http.StatusOK, http.StatusTooManyRequests, http.StatusTooManyRequests}
	for i := range expected {
		if codes[i] != expected[i] {
			t.Errorf("Request %d: expected status %d, got %d", i+1, expected[i], codes[i])
		}
	}
}

func TestRateLimitMiddleware_TrustedProxy(t *testing.T) {
	handler := RateLimitMiddleware(1, true)(okHandler())

	for _, client := range []string{"1.1.1.1", "2.2.2.2, 10.0.0.1"} {
		req := httptest.NewRequest("GET", "/test", nil)
		req.RemoteAddr = "10.0.0.1:443"
		req.Header.Set("X-Forwarded-For", client)
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		if w.Code != http.StatusOK {
			t.Errorf("Client %q: expected status %d, got %d", client, http.StatusOK, w.Code)
		}
	}
}

func TestGetClientIP(t *testing.T) {
	req := httptest.NewRequest("GET", "/test", nil)
	req.RemoteAddr = "192.168.1.5:5555"
	req.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")
	req.Header.Set("X-Real-IP", "198.51.100.2")

	if got := getClientIP(req, false); got != "192.168.1.5" {
		t.Errorf("Expected remote host, got %s", got)
	}
	if got := getClientIP(req, true); got != "203.0.113.7" {
		t.Errorf("Expected first forwarded address, got %s", got)
	}

	req.Header.Del("X-Forwarded-For")
	if got := getClientIP(req, true); got != "198.51.100.2" {
		t.Errorf("Expected X-Real-IP, got %s", got)
	}
}

func TestRateLimiter_Sweep(t *testing.T) {
	limiter := newRateLimiter(1)
	now := time.Now()

	limiter.allow("old", now.Add(-2*time.Minute))
	limiter.allow("fresh", now)
	limiter.sweep(now)

	if _, ok := limiter.clients["old"]; ok {
		t.Error("Expected idle client to be swept")
	}
	if _, ok := limiter.clients["fresh"]; !ok {
		t.Error("Expected recent client to be kept")
	}
}

func TestChainMiddleware(t *testing.T) {
	handler := ChainMiddleware(
		CORSMiddleware(testOrigins.OriginAllowed),
		LoggingMiddleware(),
	)(okHandler())

	req := httptest.NewRequest("GET", "/test", nil)
	req.Header.Set("Origin", "https://localhost:3000")
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Expected status %d, got %d", http.StatusOK, w.Code)
	}
	if w.Header().Get("Access-Control-Allow-Origin") == "" {
		t.Error("Expected CORS header to be set")
	}
}
