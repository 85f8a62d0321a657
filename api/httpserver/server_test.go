package httpserver

import (
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"
)

type pingRegistrar struct{}

func (pingRegistrar) RegisterRoutes(r chi.Router) {
	r.Get("/ping", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("pong"))
	})
	r.Post("/callback", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
}

func newTestServer(t *testing.T, cfg *HTTPServerConfig) http.Handler {
	t.Helper()
	cfg.Log = slog.Default()
	srv, err := New(cfg, pingRegistrar{})
	require.NoError(t, err)
	return srv.Handler()
}

func serve(h http.Handler, method, path string, header http.Header) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	for k, v := range header {
		req.Header[k] = v
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestHealthEndpoints(t *testing.T) {
	h := newTestServer(t, &HTTPServerConfig{})

	require.Equal(t, http.StatusOK, serve(h, http.MethodGet, "/livez", nil).Code)
	require.Equal(t, http.StatusOK, serve(h, http.MethodGet, "/readyz", nil).Code)

	rr := serve(h, http.MethodGet, "/drain", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	require.Contains(t, rr.Body.String(), "draining")
	require.Equal(t, http.StatusServiceUnavailable, serve(h, http.MethodGet, "/readyz", nil).Code)
	require.Contains(t, serve(h, http.MethodGet, "/drain", nil).Body.String(), "already draining")

	require.Contains(t, serve(h, http.MethodGet, "/undrain", nil).Body.String(), `"ready"`)
	require.Equal(t, http.StatusOK, serve(h, http.MethodGet, "/readyz", nil).Code)

	rr = serve(h, http.MethodGet, "/ping", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, "pong", rr.Body.String())
}

func TestRateLimit(t *testing.T) {
	h := newTestServer(t, &HTTPServerConfig{RateLimit: 0.001, RateBurst: 2, TrustProxyHeaders: true})

	require.Equal(t, http.StatusOK, serve(h, http.MethodGet, "/ping", nil).Code)
	require.Equal(t, http.StatusOK, serve(h, http.MethodGet, "/ping", nil).Code)
	require.Equal(t, http.StatusTooManyRequests, serve(h, http.MethodGet, "/ping", nil).Code)

	// Other clients have their own bucket.
	other := http.Header{"X-Real-Ip": []string{"10.1.2.3"}}
	require.Equal(t, http.StatusOK, serve(h, http.MethodGet, "/ping", other).Code)

	// Health checks are not limited.
	require.Equal(t, http.StatusOK, serve(h, http.MethodGet, "/livez", nil).Code)
}

func TestRateLimitIgnoresUntrustedForwardingHeaders(t *testing.T) {
	h := newTestServer(t, &HTTPServerConfig{RateLimit: 0.001, RateBurst: 1})

	require.Equal(t, http.StatusOK, serve(h, http.MethodGet, "/ping", nil).Code)
	for _, ip := range []string{"10.0.0.1", "10.0.0.2", "10.0.0.3"} {
		spoofed := http.Header{"X-Real-Ip": []string{ip}, "X-Forwarded-For": []string{ip}}
		require.Equal(t, http.StatusTooManyRequests, serve(h, http.MethodGet, "/ping", spoofed).Code)
	}
}

func TestRateLimitExemptPaths(t *testing.T) {
	h := newTestServer(t, &HTTPServerConfig{
		RateLimit:            0.001,
		RateBurst:            1,
		RateLimitExemptPaths: []string{"/callback"},
	})

	require.Equal(t, http.StatusOK, serve(h, http.MethodGet, "/ping", nil).Code)
	require.Equal(t, http.StatusTooManyRequests, serve(h, http.MethodGet, "/ping", nil).Code)

	// A burst of deliveries from the throttled address all get through.
	for i := 0; i < 20; i++ {
		require.Equal(t, http.StatusNoContent, serve(h, http.MethodPost, "/callback", nil).Code)
	}
}

func TestClientLimiterEvictsIdleBuckets(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	l := newClientLimiter(0.001, 1, nil)
	l.now = func() time.Time { return now }

	for i := 0; i < 100; i++ {
		require.True(t, l.allow(fmt.Sprintf("10.0.%d.%d", i/256, i%256)))
	}
	require.Equal(t, 100, l.size())
	require.False(t, l.allow("10.0.0.0"))

	// One active client keeps its bucket; everyone else is dropped.
	now = now.Add(l.idleTTL / 2)
	require.False(t, l.allow("10.0.0.0"))
	now = now.Add(l.idleTTL / 2)
	require.False(t, l.allow("10.0.0.0"))
	require.Equal(t, 1, l.size())

	now = now.Add(l.idleTTL)
	require.True(t, l.allow("10.9.9.9"))
	require.Equal(t, 1, l.size())
}

func TestCORS(t *testing.T) {
	h := newTestServer(t, &HTTPServerConfig{CORSAllowedOrigins: []string{"https://dashboard.example"}})

	rr := serve(h, http.MethodGet, "/ping", http.Header{"Origin": []string{"https://dashboard.example"}})
	require.Equal(t, "https://dashboard.example", rr.Header().Get("Access-Control-Allow-Origin"))

	rr = serve(h, http.MethodGet, "/ping", http.Header{"Origin": []string{"https://elsewhere.example"}})
	require.Empty(t, rr.Header().Get("Access-Control-Allow-Origin"))
}
