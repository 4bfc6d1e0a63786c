package middleware

import (
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

func TestKeyByUserOrIP(t *testing.T) {
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = net.JoinHostPort("203.0.113.9", "12345")
	c.Request = req

	if got := KeyByUserOrIP()(c); got != "ip:203.0.113.9" {
		t.Fatalf("anonymous key = %q", got)
	}
	c.Set(ctxKeyUserID, "17")
	if got := KeyByUserOrIP()(c); got != "user:17" {
		t.Fatalf("user key = %q", got)
	}
}

func TestNewRateLimiter_CoercesBurstAndReusesBuckets(t *testing.T) {
	rl := NewRateLimiter(2, 0, KeyByUserOrIP())
	if rl.burst != 1 {
		t.Fatalf("burst = %d", rl.burst)
	}
	lim := rl.getVisitor("k")
	if rl.getVisitor("k") != lim {
		t.Fatal("bucket not reused")
	}
}

func TestRateLimiter_EvictsIdleBuckets(t *testing.T) {
	rl := NewRateLimiter(1, 1, KeyByUserOrIP())
	rl.ttl = time.Nanosecond

	rl.mu.Lock()
	rl.visitors["old"] = &visitor{limiter: rate.NewLimiter(1, 1), lastSeen: time.Now().Add(-time.Hour)}
	rl.calls = gcEveryCalls - 1
	rl.mu.Unlock()

	rl.getVisitor("new")

	rl.mu.Lock()
	defer rl.mu.Unlock()
	if _, ok := rl.visitors["old"]; ok {
		t.Fatal("idle bucket survived gc")
	}
	if _, ok := rl.visitors["new"]; !ok {
		t.Fatal("requested bucket missing")
	}
	if rl.calls != 0 {
		t.Fatalf("gc counter not reset: %d", rl.calls)
	}
}

func TestRateLimiter_RetryAfter(t *testing.T) {
	cases := []struct {
		rps  float64
		want string
	}{
		{5, "1"},
		{1, "1"},
		{0.25, "4"},
		{0, "1"},
	}
	for _, tc := range cases {
		if got := NewRateLimiter(tc.rps, 1, nil).retryAfter(); got != tc.want {
			t.Errorf("rps=%v: retryAfter=%q want %q", tc.rps, got, tc.want)
		}
	}
}

func TestRateLimiter_Handler(t *testing.T) {
	gin.SetMode(gin.TestMode)
	rl := NewRateLimiter(1, 1, KeyByUserOrIP())

	r := gin.New()
	r.Use(func(c *gin.Context) { c.Header(requestIDHeader, "rid-1"); c.Next() })
	r.Use(rl.Handler())
	r.GET("/ok", func(c *gin.Context) { c.String(http.StatusOK, "ok") })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ok", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("first request: %d", w.Code)
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ok", nil))
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("second request: %d", w.Code)
	}
	if w.Header().Get("Retry-After") != "1" {
		t.Fatalf("Retry-After = %q", w.Header().Get("Retry-After"))
	}
	var body map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("json: %v", err)
	}
	if body["code"] != "too_many_requests" || body["request_id"] != "rid-1" {
		t.Fatalf("body = %v", body)
	}

	// A flagged replay is served from the same exhausted bucket.
	rb := gin.New()
	rb.Use(func(c *gin.Context) { c.Set(ctxKeyRateBypass, true); c.Next() })
	rb.Use(rl.Handler())
	rb.GET("/ok", func(c *gin.Context) { c.String(http.StatusOK, "ok") })
	w = httptest.NewRecorder()
	rb.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ok", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("replay request: %d", w.Code)
	}
}

func TestRateLimiter_SeparateBucketsPerUser(t *testing.T) {
	gin.SetMode(gin.TestMode)
	rl := NewRateLimiter(0.001, 1, KeyByUserOrIP())

	r := gin.New()
	r.Use(func(c *gin.Context) {
		if uid := c.GetHeader("X-Test-User"); uid != "" {
			c.Set(ctxKeyUserID, uid)
		}
		c.Next()
	})
	r.Use(rl.Handler())
	r.GET("/ok", func(c *gin.Context) { c.Status(http.StatusOK) })

	do := func(uid string) int {
		req := httptest.NewRequest(http.MethodGet, "/ok", nil)
		req.Header.Set("X-Test-User", uid)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w.Code
	}
	if do("1") != http.StatusOK || do("2") != http.StatusOK {
		t.Fatal("first request per user must pass")
	}
	if do("1") != http.StatusTooManyRequests {
		t.Fatal("user 1 should be limited")
	}
}
