package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap/zaptest"
)

type stubRateLimitStore struct {
	trimErr   error
	count     int
	countErr  error
	oldest    time.Time
	hasOldest bool
	oldestErr error
	recordErr error

	recordCalls int
	recordedKey string
}

func (s *stubRateLimitStore) TrimWindow(ctx context.Context, identifier string, window time.Duration, reference time.Time) error {
	return s.trimErr
}

func (s *stubRateLimitStore) CountAttempts(ctx context.Context, identifier string, window time.Duration, reference time.Time) (int, error) {
	return s.count, s.countErr
}

func (s *stubRateLimitStore) RecordAttempt(ctx context.Context, identifier string, at time.Time) error {
	s.recordCalls++
	s.recordedKey = identifier
	return s.recordErr
}

func (s *stubRateLimitStore) OldestAttempt(ctx context.Context, identifier string, window time.Duration, reference time.Time) (time.Time, bool, error) {
	return s.oldest, s.hasOldest, s.oldestErr
}

func performRateLimitedRequest(t *testing.T, store *stubRateLimitStore, now time.Time) *httptest.ResponseRecorder {
	t.Helper()
	gin.SetMode(gin.TestMode)

	limiter := NewRateLimiter(store, zaptest.NewLogger(t)).WithClock(func() time.Time { return now })

	r := gin.New()
	r.POST("/login", limiter.RateLimit(RateLimitRule{
		Name:   "auth_login_ip",
		Limit:  5,
		Window: time.Minute,
		Identifier: func(c *gin.Context) (string, bool) {
			return "192.0.2.1", true
		},
	}), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/login", nil)
	r.ServeHTTP(w, req)
	return w
}

func TestRateLimiterAllowsBelowLimit(t *testing.T) {
	now := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	oldest := now.Add(-30 * time.Second)

	store := &stubRateLimitStore{count: 2, oldest: oldest, hasOldest: true}

	w := performRateLimitedRequest(t, store, now)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if store.recordCalls != 1 {
		t.Fatalf("expected one recorded attempt, got %d", store.recordCalls)
	}
	if store.recordedKey != "auth_login_ip:192.0.2.1" {
		t.Fatalf("unexpected storage key %q", store.recordedKey)
	}
	if got := w.Header().Get("X-RateLimit-Limit"); got != "5" {
		t.Fatalf("expected limit header 5, got %q", got)
	}
	if got := w.Header().Get("X-RateLimit-Remaining"); got != "2" {
		t.Fatalf("expected remaining header 2, got %q", got)
	}
	wantReset := strconv.FormatInt(oldest.Add(time.Minute).Unix(), 10)
	if got := w.Header().Get("X-RateLimit-Reset"); got != wantReset {
		t.Fatalf("expected reset header %s, got %q", wantReset, got)
	}
	if got := w.Header().Get("Retry-After"); got != "" {
		t.Fatalf("expected no retry-after header, got %q", got)
	}
}

func TestRateLimiterBlocksAtLimit(t *testing.T) {
	now := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	oldest := now.Add(-30 * time.Second)

	store := &stubRateLimitStore{count: 5, oldest: oldest, hasOldest: true}

	w := performRateLimitedRequest(t, store, now)

	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", w.Code)
	}
	if store.recordCalls != 0 {
		t.Fatalf("blocked request must not be recorded, got %d records", store.recordCalls)
	}
	if got := w.Header().Get("Retry-After"); got != "30" {
		t.Fatalf("expected retry-after 30, got %q", got)
	}

	var problem ProblemDetails
	if err := json.Unmarshal(w.Body.Bytes(), &problem); err != nil {
		t.Fatalf("failed to decode body: %v", err)
	}
	if problem.Status != http.StatusTooManyRequests {
		t.Fatalf("unexpected problem status %d", problem.Status)
	}
	if problem.RetryAfter != 30 {
		t.Fatalf("expected problem retry_after 30, got %d", problem.RetryAfter)
	}
}

func TestRateLimiterFailsOpenOnStoreError(t *testing.T) {
	now := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)

	store := &stubRateLimitStore{trimErr: errors.New("redis down")}

	w := performRateLimitedRequest(t, store, now)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 when failing open, got %d", w.Code)
	}
	if store.recordCalls != 0 {
		t.Fatalf("expected no recorded attempt on store failure, got %d", store.recordCalls)
	}
}
