package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

func TestLimiter_WindowThresholdAndLazyReset(t *testing.T) {
	window := 50 * time.Millisecond
	l := NewLimiter(window, map[string]int{"post": 3})

	for i := 0; i < 3; i++ {
		if !l.Allow("ip1", "post") {
			t.Fatalf("request %d should be admitted", i+1)
		}
	}
	if l.Allow("ip1", "post") {
		t.Fatalf("request over threshold should be rejected")
	}

	// A fresh window admits again after expiry.
	time.Sleep(window + 10*time.Millisecond)
	if !l.Allow("ip1", "post") {
		t.Fatalf("request after window reset should be admitted")
	}
}

func TestLimiter_IndependentKeysAndActions(t *testing.T) {
	l := NewLimiter(time.Minute, map[string]int{"post": 1, "get": 1})

	if !l.Allow("ip1", "post") || l.Allow("ip1", "post") {
		t.Fatalf("post threshold not enforced per key")
	}
	// Different action, same key: separate counter.
	if !l.Allow("ip1", "get") {
		t.Fatalf("actions should not share counters")
	}
	// Different key, same action: separate bucket.
	if !l.Allow("ip2", "post") {
		t.Fatalf("keys should not share buckets")
	}
	// Unknown actions are never limited.
	for i := 0; i < 100; i++ {
		if !l.Allow("ip1", "unlisted") {
			t.Fatalf("unlisted action was limited")
		}
	}
}

func TestLimiter_EvictIdle(t *testing.T) {
	window := 10 * time.Millisecond
	l := NewLimiter(window, map[string]int{"post": 1})

	l.Allow("stale", "post")
	time.Sleep(time.Duration(idleWindows)*window + 10*time.Millisecond)

	// Force the opportunistic GC on the next lookup.
	l.mu.Lock()
	l.cleanupN = cleanupEvery - 1
	l.mu.Unlock()
	l.Allow("fresh", "post")

	l.mu.Lock()
	_, staleExists := l.buckets["stale"]
	_, freshExists := l.buckets["fresh"]
	l.mu.Unlock()
	if staleExists {
		t.Fatalf("idle bucket not evicted")
	}
	if !freshExists {
		t.Fatalf("fresh bucket missing")
	}
}

func TestLimiter_Handler_RejectsWith429(t *testing.T) {
	gin.SetMode(gin.TestMode)
	l := NewLimiter(time.Minute, map[string]int{"post": 1})

	r := gin.New()
	r.POST("/x", l.Handler("post"), func(c *gin.Context) { c.String(http.StatusOK, "ok") })

	w1 := httptest.NewRecorder()
	req1 := httptest.NewRequest(http.MethodPost, "/x", nil)
	req1.RemoteAddr = "203.0.113.9:12345"
	r.ServeHTTP(w1, req1)
	if w1.Code != http.StatusOK {
		t.Fatalf("first request should pass, got %d", w1.Code)
	}

	w2 := httptest.NewRecorder()
	req2 := httptest.NewRequest(http.MethodPost, "/x", nil)
	req2.RemoteAddr = "203.0.113.9:12345"
	r.ServeHTTP(w2, req2)
	if w2.Code != http.StatusTooManyRequests {
		t.Fatalf("second request should be limited, got %d", w2.Code)
	}
	if got := w2.Header().Get("Retry-After"); got != "60" {
		t.Fatalf("expected Retry-After=60, got %q", got)
	}
	var body map[string]any
	if err := json.Unmarshal(w2.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid JSON body: %v", err)
	}
	if body["error"] != "rate_limited" {
		t.Fatalf("unexpected body: %v", body)
	}
}

func TestClientKey(t *testing.T) {
	gin.SetMode(gin.TestMode)

	mk := func(remote, xff string) *gin.Context {
		c, _ := gin.CreateTestContext(httptest.NewRecorder())
		c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
		c.Request.RemoteAddr = remote
		if xff != "" {
			c.Request.Header.Set("X-Forwarded-For", xff)
		}
		return c
	}

	if got := mk("203.0.113.9:12345", ""); ClientKey(got) != "203.0.113.9" {
		t.Fatalf("remote addr key wrong: %q", ClientKey(got))
	}
	if got := mk("203.0.113.9:12345", "198.51.100.7, 10.0.0.1"); ClientKey(got) != "198.51.100.7" {
		t.Fatalf("xff key wrong: %q", ClientKey(got))
	}
	if got := mk("", ""); ClientKey(got) != "unknown" {
		t.Fatalf("fallback key wrong: %q", ClientKey(got))
	}
}
