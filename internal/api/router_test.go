package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GlobalTechSoftwareSolution/light-pkgs/internal/config"
	"github.com/GlobalTechSoftwareSolution/light-pkgs/internal/gallery"
	"github.com/GlobalTechSoftwareSolution/light-pkgs/internal/matcher"
	"github.com/GlobalTechSoftwareSolution/light-pkgs/internal/models"
	"github.com/GlobalTechSoftwareSolution/light-pkgs/internal/recognition"
	"github.com/GlobalTechSoftwareSolution/light-pkgs/internal/storage/mock"
)

type stubRecognizer struct{}

func (stubRecognizer) RecognizeBase64(context.Context, string) (*recognition.Result, error) {
	return &recognition.Result{Outcome: models.OutcomeUnknown, Label: matcher.LabelUnknown}, nil
}

type stubLedger struct{}

func (stubLedger) Today(context.Context, time.Time) ([]models.AttendanceRecord, error) {
	return nil, nil
}

func (stubLedger) ListByDate(context.Context, time.Time) ([]models.AttendanceRecord, error) {
	return nil, nil
}

func (stubLedger) Location() *time.Location { return time.UTC }

func newTestRouter(t *testing.T, apiKey string, limit config.RateLimitConfig) http.Handler {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	return NewRouter(RouterConfig{
		Context:    ctx,
		APIKey:     apiKey,
		RateLimit:  limit,
		Location:   time.UTC,
		Recognizer: stubRecognizer{},
		Attendance: stubLedger{},
		Events:     mock.NewMockStore(),
		Gallery:    gallery.NewHolder(gallery.New("test", nil), nil),
	})
}

func serve(h http.Handler, method, path, body string, header map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range header {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestRecognizeRoutes(t *testing.T) {
	r := newTestRouter(t, "", config.RateLimitConfig{})

	for _, path := range []string{"/v1/attendance/recognize", "/recognize_face/"} {
		w := serve(r, http.MethodPost, path, `{"image":"aGVsbG8="}`, nil)
		require.Equal(t, http.StatusOK, w.Code, path)
		assert.JSONEq(t, `{"username":"Unknown","email":null,"confidence":"","check_in":"","check_out":"","role":"Unknown"}`, w.Body.String())
		assert.NotEmpty(t, w.Header().Get("X-Request-ID"))

		w = serve(r, http.MethodGet, path, "", nil)
		assert.Equal(t, http.StatusMethodNotAllowed, w.Code, path)
		assert.JSONEq(t, `{"error":"method not allowed"}`, w.Body.String())
	}
}

func TestTodayRoutes(t *testing.T) {
	r := newTestRouter(t, "", config.RateLimitConfig{})
	for _, path := range []string{"/v1/attendance/today", "/today_attendance/"} {
		w := serve(r, http.MethodGet, path, "", nil)
		require.Equal(t, http.StatusOK, w.Code, path)
		assert.Contains(t, w.Body.String(), `"attendances":[]`)
	}
}

func TestAPIKeyGuardsRoutes(t *testing.T) {
	r := newTestRouter(t, "s3cret", config.RateLimitConfig{})

	assert.Equal(t, http.StatusUnauthorized, serve(r, http.MethodGet, "/v1/attendance/today", "", nil).Code)
	assert.Equal(t, http.StatusUnauthorized, serve(r, http.MethodPost, "/recognize_face/", `{"image":"aGVsbG8="}`, nil).Code)
	assert.Equal(t, http.StatusOK, serve(r, http.MethodGet, "/v1/attendance/today", "", map[string]string{"X-API-Key": "s3cret"}).Code)
	assert.Equal(t, http.StatusOK, serve(r, http.MethodGet, "/healthz", "", nil).Code)
}

func TestRateLimitOnRecognize(t *testing.T) {
	r := newTestRouter(t, "", config.RateLimitConfig{RequestsPerSecond: 0.001, Burst: 1})

	first := serve(r, http.MethodPost, "/v1/attendance/recognize", `{"image":"aGVsbG8="}`, nil)
	assert.Equal(t, http.StatusOK, first.Code)

	second := serve(r, http.MethodPost, "/v1/attendance/recognize", `{"image":"aGVsbG8="}`, nil)
	assert.Equal(t, http.StatusTooManyRequests, second.Code)
	assert.NotEmpty(t, second.Header().Get("Retry-After"))

	// Listing is not rate limited.
	assert.Equal(t, http.StatusOK, serve(r, http.MethodGet, "/v1/attendance/today", "", nil).Code)
}

func TestRateLimiterSweep(t *testing.T) {
	l := newRateLimiter(config.RateLimitConfig{RequestsPerSecond: 2})
	now := time.Now()
	l.get("10.0.0.1", now.Add(-time.Hour))
	l.get("10.0.0.2", now)

	l.sweep(now, 10*time.Minute)

	assert.Len(t, l.clients, 1)
	assert.Contains(t, l.clients, "10.0.0.2")
	assert.Equal(t, 2, l.cfg.Burst)
}

func TestRateLimiterSweepLoopStops(t *testing.T) {
	l := newRateLimiter(config.RateLimitConfig{RequestsPerSecond: 2})
	l.get("10.0.0.1", time.Now().Add(-time.Hour))

	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		l.sweepEvery(ctx, 5*time.Millisecond, time.Minute)
		close(stopped)
	}()

	require.Eventually(t, func() bool {
		l.mu.Lock()
		defer l.mu.Unlock()
		return len(l.clients) == 0
	}, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("sweep loop still running after cancel")
	}
}
