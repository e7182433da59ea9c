package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/angelmondragon/cartwatch/pkg/errors"
	"github.com/angelmondragon/cartwatch/pkg/logger"
)

type stubLimiter struct {
	allowed bool
	count   int64
	err     error
	calls   int
}

func (s *stubLimiter) FixedWindowAllow(context.Context, string, int64, time.Duration) (bool, int64, error) {
	s.calls++
	return s.allowed, s.count, s.err
}

var okHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusNoContent)
})

func serve(h http.Handler) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/backups/run", nil))
	return rec
}

func TestRateLimitRejectsOverLimit(t *testing.T) {
	limiter := &stubLimiter{allowed: false, count: 7}
	rec := serve(RateLimit(limiter, "backup-run", 6, time.Minute, logger.Nop())(okHandler))

	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))

	var body struct {
		Error struct {
			Code    string         `json:"code"`
			Details map[string]any `json:"details"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, string(pkgerrors.CodeRateLimit), body.Error.Code)
	assert.Equal(t, "backup-run", body.Error.Details["scope"])
}

func TestRateLimitPassesThrough(t *testing.T) {
	cases := map[string]struct {
		limiter WindowLimiter
		limit   int
	}{
		"allowed":        {limiter: &stubLimiter{allowed: true, count: 1}, limit: 6},
		"limiter errors": {limiter: &stubLimiter{err: errors.New("connection refused")}, limit: 6},
		"nil limiter":    {limiter: nil, limit: 6},
		"limit disabled": {limiter: &stubLimiter{}, limit: 0},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			rec := serve(RateLimit(tc.limiter, "backup-run", tc.limit, time.Minute, logger.Nop())(okHandler))
			assert.Equal(t, http.StatusNoContent, rec.Code)
		})
	}
}

func TestRateLimitSkipsLimiterWhenDisabled(t *testing.T) {
	limiter := &stubLimiter{}
	serve(RateLimit(limiter, "backup-run", 0, time.Minute, logger.Nop())(okHandler))
	if limiter.calls != 0 {
		t.Fatalf("expected no limiter calls, got %d", limiter.calls)
	}
}

func TestRecovererRendersInternalError(t *testing.T) {
	panicking := http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	})
	rec := serve(Recoverer(logger.Nop())(panicking))

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), string(pkgerrors.CodeInternal))
}

func TestRecovererRepanicsOnAbort(t *testing.T) {
	aborting := http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic(http.ErrAbortHandler)
	})
	assert.PanicsWithValue(t, http.ErrAbortHandler, func() {
		serve(Recoverer(logger.Nop())(aborting))
	})
}

func TestRequestIDEchoesOrGenerates(t *testing.T) {
	h := RequestID(logger.Nop())(okHandler)

	req := httptest.NewRequest(http.MethodGet, "/health/live", nil)
	req.Header.Set(requestIDHeader, "req-123")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, "req-123", rec.Header().Get(requestIDHeader))

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/live", nil))
	generated := rec.Header().Get(requestIDHeader)
	assert.NotEmpty(t, generated)
	assert.NotEqual(t, "req-123", generated)
}

func TestRequestIDReplacesUnsafeIDs(t *testing.T) {
	h := RequestID(logger.Nop())(okHandler)
	for _, incoming := range []string{"has space", "line\nbreak", strings.Repeat("a", maxRequestIDLen+1)} {
		req := httptest.NewRequest(http.MethodGet, "/health/live", nil)
		req.Header.Set(requestIDHeader, incoming)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		got := rec.Header().Get(requestIDHeader)
		if got == incoming || got == "" {
			t.Fatalf("expected a fresh id for %q, got %q", incoming, got)
		}
	}
}
