package kit

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/netip"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBearerToken(t *testing.T) {
	testCases := []struct {
		name    string
		header  string
		want    string
		wantErr error
	}{
		{name: "missing", header: "", wantErr: ErrMissingAuthorization},
		{name: "basic scheme", header: "Basic abc", wantErr: ErrMalformedAuthorization},
		{name: "lowercase scheme", header: "bearer abc", wantErr: ErrMalformedAuthorization},
		{name: "empty token", header: "Bearer   ", wantErr: ErrMalformedAuthorization},
		{name: "ok", header: "Bearer abc.def", want: "abc.def"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			if tc.header != "" {
				r.Header.Set("Authorization", tc.header)
			}

			got, err := BearerToken(r)
			if tc.wantErr != nil {
				assert.ErrorIs(t, err, tc.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestMetricsAuth(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })

	testCases := []struct {
		name   string
		token  string
		header string
		want   int
	}{
		{name: "no token configured", token: "", header: "Bearer x", want: http.StatusForbidden},
		{name: "missing header", token: "secret", want: http.StatusForbidden},
		{name: "wrong token", token: "secret", header: "Bearer nope", want: http.StatusForbidden},
		{name: "right token", token: "secret", header: "Bearer secret", want: http.StatusOK},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/metrics", nil)
			if tc.header != "" {
				r.Header.Set("Authorization", tc.header)
			}
			w := httptest.NewRecorder()

			MetricsAuth(tc.token)(ok).ServeHTTP(w, r)

			assert.Equal(t, tc.want, w.Code)
		})
	}
}

func TestIPRateLimiter_Allow(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	l := NewIPRateLimiter(2, time.Minute)
	l.now = func() time.Time { return now }

	assert.True(t, l.Allow("10.0.0.1"))
	assert.True(t, l.Allow("10.0.0.1"))
	assert.False(t, l.Allow("10.0.0.1"), "third request inside the window")
	assert.True(t, l.Allow("10.0.0.2"), "other clients have their own bucket")

	now = now.Add(31 * time.Second)
	assert.True(t, l.Allow("10.0.0.1"), "one token refills after window/limit")
}

func TestIPRateLimiter_Middleware(t *testing.T) {
	l := NewIPRateLimiter(1, time.Minute)
	h := l.Middleware(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusCreated) }))

	send := func(xff string) *httptest.ResponseRecorder {
		r := httptest.NewRequest(http.MethodPost, "/products/sync", nil)
		r.RemoteAddr = "198.51.100.4:40000"
		r.Header.Set("X-Forwarded-For", xff)
		w := httptest.NewRecorder()
		h.ServeHTTP(w, r)
		return w
	}

	assert.Equal(t, http.StatusCreated, send("192.0.2.7").Code)

	w := send("192.0.2.8")
	assert.Equal(t, http.StatusTooManyRequests, w.Code, "a forged X-Forwarded-For does not open a new bucket")
	assert.Equal(t, "60", w.Header().Get("Retry-After"))
}

func TestIPRateLimiter_TrustedProxyForwardsClient(t *testing.T) {
	l := NewIPRateLimiter(1, time.Minute).TrustProxies(netip.MustParsePrefix("10.0.0.0/8"))

	clientOf := func(remote, xff string) string {
		r := httptest.NewRequest(http.MethodPost, "/products/sync", nil)
		r.RemoteAddr = remote
		if xff != "" {
			r.Header.Set("X-Forwarded-For", xff)
		}
		return l.clientIP(r)
	}

	assert.Equal(t, "192.0.2.7", clientOf("10.0.0.1:5000", "192.0.2.7"))
	assert.Equal(t, "192.0.2.7", clientOf("10.0.0.1:5000", "203.0.113.9, 192.0.2.7, 10.0.0.2"),
		"the rightmost untrusted hop wins over what the client wrote")
	assert.Equal(t, "10.0.0.1", clientOf("10.0.0.1:5000", ""))
	assert.Equal(t, "198.51.100.4", clientOf("198.51.100.4:5000", "192.0.2.7"), "untrusted peers cannot forward")
}

func TestIPRateLimiter_SweepsAtMostOncePerWindow(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	l := NewIPRateLimiter(5, time.Minute)
	l.now = func() time.Time { return now }

	l.Allow("10.0.0.1")

	now = now.Add(61 * time.Second)
	l.Allow("10.0.0.2")
	assert.Len(t, l.visitors, 1, "idle visitor swept once the window passed")

	now = now.Add(59 * time.Second)
	l.Allow("10.0.0.3")
	assert.Len(t, l.visitors, 2, "no sweep inside the window")
	assert.Equal(t, now.Add(-59*time.Second), l.lastSweep)
}

func TestChiRoutePatternOrPath_WithoutRouter(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/products/abc", nil)
	assert.Equal(t, "/products/abc", ChiRoutePatternOrPath(r))
}

func TestMetrics_Middleware(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	r := chi.NewRouter()
	r.Use(m.Middleware("catalog", ChiRoutePatternOrPath))
	r.Get("/products/{id}", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})
	r.Delete("/products/{id}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	for _, req := range []*http.Request{
		httptest.NewRequest(http.MethodGet, "/products/1", nil),
		httptest.NewRequest(http.MethodGet, "/products/2", nil),
		httptest.NewRequest(http.MethodDelete, "/products/3", nil),
	} {
		r.ServeHTTP(httptest.NewRecorder(), req)
	}

	assert.Equal(t, 2.0, testutil.ToFloat64(m.Requests.WithLabelValues("catalog", "GET", "/products/{id}", "200")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Requests.WithLabelValues("catalog", "DELETE", "/products/{id}", "404")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.InFlight))
}

func TestWriteError_CarriesStatusAndRequestID(t *testing.T) {
	var body ErrorResponse
	h := chimw.RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		WriteError(w, r, http.StatusBadRequest, "invalid request", map[string]string{"limit": "max=100"})
	}))

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/products?limit=500", nil))

	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, http.StatusBadRequest, body.StatusCode)
	assert.Equal(t, "invalid request", body.Error)
	assert.NotEmpty(t, body.RequestID)
}
