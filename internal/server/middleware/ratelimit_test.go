package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type scriptedLimiter struct {
	allow   bool
	err     error
	lastKey string
}

func (l *scriptedLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	l.lastKey = key
	return l.allow, l.err
}

func TestRateLimitAllows(t *testing.T) {
	lim := &scriptedLimiter{allow: true}
	h := RateLimit(lim, 10, time.Minute)(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/api/markets", nil)
	req.RemoteAddr = "10.1.2.3:5555"
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "api:10.1.2.3", lim.lastKey)
}

func TestRateLimitRejectsWithRetryAfter(t *testing.T) {
	lim := &scriptedLimiter{allow: false}
	h := RateLimit(lim, 10, time.Minute)(okHandler())

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/markets", nil))

	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))
	assert.JSONEq(t, `{"error":"rate limit exceeded"}`, rec.Body.String())
}

func TestRateLimitFailsOpenOnLimiterError(t *testing.T) {
	lim := &scriptedLimiter{allow: false, err: errors.New("redis down")}
	h := RateLimit(lim, 10, time.Minute)(okHandler())

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/markets", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRateLimitSkipsPreflight(t *testing.T) {
	lim := &scriptedLimiter{allow: false}
	h := RateLimit(lim, 10, time.Minute)(okHandler())

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodOptions, "/api/markets", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, lim.lastKey)
}

func TestClientAddr(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.0.2.9:1234"
	assert.Equal(t, "192.0.2.9", clientAddr(req))

	req.Header.Set("X-Real-IP", "198.51.100.7")
	assert.Equal(t, "198.51.100.7", clientAddr(req))

	req.Header.Set("X-Forwarded-For", "203.0.113.4, 10.0.0.1")
	assert.Equal(t, "203.0.113.4", clientAddr(req))
}
