package middleware_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	mw "github.com/kiranshivaraju/ideahub/internal/api/middleware"
	"github.com/kiranshivaraju/ideahub/internal/auth"
	"github.com/kiranshivaraju/ideahub/internal/cache"
	"github.com/kiranshivaraju/ideahub/internal/ratelimit"
	"github.com/kiranshivaraju/ideahub/pkg/models"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- Mock key validator ---

type mockKeys struct {
	mu      sync.Mutex
	rec     *models.KeyRecord
	err     error
	usage   chan uuid.UUID
	usageEr error
}

func newMockKeys(rec *models.KeyRecord) *mockKeys {
	return &mockKeys{rec: rec, usage: make(chan uuid.UUID, 8)}
}

func (m *mockKeys) Prefix() string { return "iah_" }

func (m *mockKeys) Validate(_ context.Context, _ string) (*models.KeyRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	if m.rec == nil {
		return nil, auth.ErrKeyNotFound
	}
	c := *m.rec
	return &c, nil
}

func (m *mockKeys) RecordUsage(_ context.Context, keyID uuid.UUID) error {
	m.usage <- keyID
	return m.usageEr
}

func validRecord(perms ...string) *models.KeyRecord {
	return &models.KeyRecord{
		KeyID:            uuid.New(),
		OwnerID:          uuid.New(),
		Permissions:      perms,
		RateLimitPerHour: 100,
		IsActive:         true,
		IsValid:          true,
	}
}

// --- Mock counter ---

type failingCounter struct{}

func (failingCounter) Incr(_ context.Context, _ uuid.UUID, _ string, _ time.Time) (int64, error) {
	return 0, errors.New("connection refused")
}

// --- Helpers ---

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func errorMessage(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Error string `json:"error"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body.Error
}

func request(method, key string) *http.Request {
	req := httptest.NewRequest(method, "/ideas", nil)
	if key != "" {
		req.Header.Set("x-api-key", key)
	}
	return req
}

// --- Authenticate ---

func TestAuthenticate_Failures(t *testing.T) {
	tests := []struct {
		name string
		key  string
		keys *mockKeys
		want string
	}{
		{"missing header", "", newMockKeys(validRecord("read")), "API key required. Include x-api-key header."},
		{"wrong prefix", "sk_abcdef", newMockKeys(validRecord("read")), "Invalid API key format"},
		{"unknown key", "iah_unknown", newMockKeys(nil), "Invalid API key"},
		{"store error", "iah_whatever", &mockKeys{err: errors.New("db down")}, "Authentication failed"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := mw.NewAuth(tt.keys).Authenticate(okHandler())
			w := httptest.NewRecorder()
			h.ServeHTTP(w, request(http.MethodGet, tt.key))

			assert.Equal(t, http.StatusUnauthorized, w.Code)
			assert.Equal(t, tt.want, errorMessage(t, w))
		})
	}
}

func TestAuthenticate_InactiveOrExpired(t *testing.T) {
	rec := validRecord("read")
	rec.IsValid = false
	h := mw.NewAuth(newMockKeys(rec)).Authenticate(okHandler())

	w := httptest.NewRecorder()
	h.ServeHTTP(w, request(http.MethodGet, "iah_expired"))

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "API key is expired or inactive", errorMessage(t, w))
}

func TestAuthenticate_SetsContextAndRecordsUsage(t *testing.T) {
	rec := validRecord("read")
	keys := newMockKeys(rec)

	var got *models.KeyRecord
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, _ = mw.GetKeyRecord(r)
		w.WriteHeader(http.StatusOK)
	})

	w := httptest.NewRecorder()
	mw.NewAuth(keys).Authenticate(next).ServeHTTP(w, request(http.MethodGet, "iah_good"))

	assert.Equal(t, http.StatusOK, w.Code)
	require.NotNil(t, got)
	assert.Equal(t, rec.KeyID, got.KeyID)
	assert.Equal(t, rec.OwnerID, got.OwnerID)

	select {
	case id := <-keys.usage:
		assert.Equal(t, rec.KeyID, id)
	case <-time.After(2 * time.Second):
		t.Fatal("usage was not recorded")
	}
}

func TestAuthenticate_UsageFailureDoesNotAffectResponse(t *testing.T) {
	keys := newMockKeys(validRecord("read"))
	keys.usageEr = errors.New("write failed")

	w := httptest.NewRecorder()
	mw.NewAuth(keys).Authenticate(okHandler()).ServeHTTP(w, request(http.MethodGet, "iah_good"))

	assert.Equal(t, http.StatusOK, w.Code)
	<-keys.usage
}

// --- RequirePermission ---

func TestRequirePermission(t *testing.T) {
	tests := []struct {
		name   string
		perms  []string
		method string
		status int
		msg    string
	}{
		{"read can GET", []string{"read"}, http.MethodGet, http.StatusOK, ""},
		{"read cannot POST", []string{"read"}, http.MethodPost, http.StatusForbidden, "Insufficient permissions. Required: write"},
		{"read cannot DELETE", []string{"read"}, http.MethodDelete, http.StatusForbidden, "Insufficient permissions. Required: write"},
		{"write cannot GET", []string{"write"}, http.MethodGet, http.StatusForbidden, "Insufficient permissions. Required: read"},
		{"write can PUT", []string{"write"}, http.MethodPut, http.StatusOK, ""},
		{"admin can GET", []string{"admin"}, http.MethodGet, http.StatusOK, ""},
		{"admin can POST", []string{"admin"}, http.MethodPost, http.StatusOK, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := mw.NewAuth(newMockKeys(validRecord(tt.perms...)))
			h := a.Authenticate(a.RequirePermission(okHandler()))

			w := httptest.NewRecorder()
			h.ServeHTTP(w, request(tt.method, "iah_good"))

			assert.Equal(t, tt.status, w.Code)
			if tt.msg != "" {
				assert.Equal(t, tt.msg, errorMessage(t, w))
			}
		})
	}
}

func TestRequirePermission_NoKey(t *testing.T) {
	a := mw.NewAuth(newMockKeys(nil))
	w := httptest.NewRecorder()
	a.RequirePermission(okHandler()).ServeHTTP(w, request(http.MethodGet, ""))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRequiredPermission(t *testing.T) {
	assert.Equal(t, "read", mw.RequiredPermission(http.MethodGet))
	for _, m := range []string{http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodPatch} {
		assert.Equal(t, "write", mw.RequiredPermission(m), m)
	}
}

// --- RateLimit ---

func TestRateLimit_AllowsThenRejects(t *testing.T) {
	now := time.Date(2026, 10, 14, 9, 59, 30, 0, time.UTC)
	limiter := ratelimit.NewLimiter(ratelimit.NewCacheCounter(cache.NewMemoryCache())).
		WithClock(func() time.Time { return now })

	rec := validRecord("read")
	rec.RateLimitPerHour = 2
	a := mw.NewAuth(newMockKeys(rec))
	h := a.Authenticate(mw.NewRateLimit(limiter, "ideas").Limit(okHandler()))

	for i := 0; i < 2; i++ {
		w := httptest.NewRecorder()
		h.ServeHTTP(w, request(http.MethodGet, "iah_good"))
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "2", w.Header().Get("X-RateLimit-Limit"))
		assert.Equal(t, strconv.Itoa(1-i), w.Header().Get("X-RateLimit-Remaining"))
	}

	w := httptest.NewRecorder()
	h.ServeHTTP(w, request(http.MethodGet, "iah_good"))
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "Rate limit exceeded", errorMessage(t, w))
	assert.Equal(t, "30", w.Header().Get("Retry-After"))
	assert.Equal(t,
		strconv.FormatInt(time.Date(2026, 10, 14, 10, 0, 0, 0, time.UTC).Unix(), 10),
		w.Header().Get("X-RateLimit-Reset"))

	now = now.Add(time.Minute)
	w = httptest.NewRecorder()
	h.ServeHTTP(w, request(http.MethodGet, "iah_good"))
	assert.Equal(t, http.StatusOK, w.Code, "new window")
}

func TestRateLimit_FailsOpen(t *testing.T) {
	limiter := ratelimit.NewLimiter(failingCounter{})
	a := mw.NewAuth(newMockKeys(validRecord("read")))
	h := a.Authenticate(mw.NewRateLimit(limiter, "ideas").Limit(okHandler()))

	w := httptest.NewRecorder()
	h.ServeHTTP(w, request(http.MethodGet, "iah_good"))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Header().Get("X-RateLimit-Limit"))
}

func TestRateLimit_NoKeyPassesThrough(t *testing.T) {
	limiter := ratelimit.NewLimiter(ratelimit.NewCacheCounter(cache.NewMemoryCache()))
	w := httptest.NewRecorder()
	mw.NewRateLimit(limiter, "ideas").Limit(okHandler()).ServeHTTP(w, request(http.MethodGet, ""))
	assert.Equal(t, http.StatusOK, w.Code)
}

// --- ThrottleIP ---

func TestThrottleIP(t *testing.T) {
	h := mw.ThrottleIP(ratelimit.NewIPThrottle(0.001, 2))(okHandler())

	for i := 0; i < 2; i++ {
		w := httptest.NewRecorder()
		h.ServeHTTP(w, request(http.MethodGet, ""))
		assert.Equal(t, http.StatusOK, w.Code)
	}

	w := httptest.NewRecorder()
	h.ServeHTTP(w, request(http.MethodGet, ""))
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "Too many requests", errorMessage(t, w))

	other := request(http.MethodGet, "")
	other.RemoteAddr = "198.51.100.7:4000"
	w = httptest.NewRecorder()
	h.ServeHTTP(w, other)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestThrottleIP_Disabled(t *testing.T) {
	h := mw.ThrottleIP(nil)(okHandler())
	for i := 0; i < 50; i++ {
		w := httptest.NewRecorder()
		h.ServeHTTP(w, request(http.MethodGet, ""))
		require.Equal(t, http.StatusOK, w.Code)
	}
}

// --- CORS ---

func TestCORS_Preflight(t *testing.T) {
	called := false
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { called = true })

	w := httptest.NewRecorder()
	mw.CORS("*")(next).ServeHTTP(w, httptest.NewRequest(http.MethodOptions, "/ideas/abc", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Body.String())
	assert.False(t, called)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "GET, POST, PUT, DELETE, OPTIONS", w.Header().Get("Access-Control-Allow-Methods"))
	assert.Equal(t, "authorization, x-client-info, apikey, content-type, x-api-key", w.Header().Get("Access-Control-Allow-Headers"))
}

func TestCORS_HeadersOnNormalResponse(t *testing.T) {
	w := httptest.NewRecorder()
	mw.CORS("https://app.example.com")(okHandler()).ServeHTTP(w, request(http.MethodGet, ""))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "https://app.example.com", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "Origin", w.Header().Get("Vary"))
}

// --- Recovery ---

func TestRecovery(t *testing.T) {
	h := mw.Recovery(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	w := httptest.NewRecorder()
	h.ServeHTTP(w, request(http.MethodGet, ""))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "An unexpected error occurred", errorMessage(t, w))
	assert.NotContains(t, w.Body.String(), "boom")
}

// --- Logger ---

func TestLogger_PassesThroughStatus(t *testing.T) {
	h := mw.Logger(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, request(http.MethodGet, ""))
	assert.Equal(t, http.StatusTeapot, w.Code)
}

func captureLogs(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewJSONHandler(&buf, nil)))
	t.Cleanup(func() { slog.SetDefault(prev) })
	return &buf
}

func TestLogger_IncludesAuthenticatedKeyID(t *testing.T) {
	logs := captureLogs(t)
	rec := validRecord("read")
	keys := newMockKeys(rec)

	h := mw.Logger(mw.NewAuth(keys).Authenticate(okHandler()))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, request(http.MethodGet, "iah_good"))
	require.Equal(t, http.StatusOK, w.Code)
	<-keys.usage

	var line struct {
		Msg    string `json:"msg"`
		Status int    `json:"status"`
		KeyID  string `json:"key_id"`
	}
	require.NoError(t, json.Unmarshal(lastLine(t, logs), &line))
	assert.Equal(t, "request", line.Msg)
	assert.Equal(t, http.StatusOK, line.Status)
	assert.Equal(t, rec.KeyID.String(), line.KeyID)
}

func TestLogger_OmitsKeyIDWhenUnauthenticated(t *testing.T) {
	logs := captureLogs(t)

	h := mw.Logger(mw.NewAuth(newMockKeys(nil)).Authenticate(okHandler()))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, request(http.MethodGet, ""))
	require.Equal(t, http.StatusUnauthorized, w.Code)

	assert.NotContains(t, string(lastLine(t, logs)), "key_id")
}

// lastLine returns the final request log line.
func lastLine(t *testing.T, buf *bytes.Buffer) []byte {
	t.Helper()
	var last []byte
	for _, l := range bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n")) {
		if bytes.Contains(l, []byte(`"msg":"request"`)) {
			last = l
		}
	}
	require.NotNil(t, last, "no request log line in %q", buf.String())
	return last
}

// --- Metrics ---

func TestMetrics_RecordsRouteTemplate(t *testing.T) {
	r := chi.NewRouter()
	r.Use(mw.Metrics)
	r.Get("/things/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/things/"+uuid.NewString(), nil))
	require.Equal(t, http.StatusNoContent, w.Code)

	scrape := httptest.NewRecorder()
	promhttp.Handler().ServeHTTP(scrape, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body := scrape.Body.String()

	assert.Contains(t, body, `ideahub_http_requests_total{method="GET",route="/things/{id}",status="204"} 1`)
	assert.Contains(t, body, `ideahub_http_request_duration_seconds_count{method="GET",route="/things/{id}"} 1`)
}

func TestMetrics_CountsAuthFailures(t *testing.T) {
	h := mw.NewAuth(newMockKeys(nil)).Authenticate(okHandler())
	w := httptest.NewRecorder()
	h.ServeHTTP(w, request(http.MethodGet, "bad_prefix"))
	require.Equal(t, http.StatusUnauthorized, w.Code)

	scrape := httptest.NewRecorder()
	promhttp.Handler().ServeHTTP(scrape, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Contains(t, scrape.Body.String(), `ideahub_auth_failures_total{reason="format"}`)
}
