package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/flashbots/go-utils/httplogger"
	"github.com/flashbots/noisyagg/common"
	"github.com/flashbots/noisyagg/metrics"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/atomic"
)

// RouteRegistrar is implemented by components that serve API routes.
type RouteRegistrar interface {
	RegisterRoutes(r chi.Router)
}

// HTTPServerConfig configures a BaseServer.
type HTTPServerConfig struct {
	// ListenAddr is the address and port the API server listens on.
	ListenAddr string

	// MetricsAddr is the address and port of the metrics server.
	// The metrics server is not started when empty.
	MetricsAddr string

	// EnablePprof mounts the pprof API under /debug.
	EnablePprof bool

	// Log is the structured logger for server operations.
	Log *slog.Logger

	// DrainDuration is how long Shutdown reports not ready before stopping
	// the listeners, so load balancers can notice.
	DrainDuration time.Duration

	// GracefulShutdownDuration is the maximum time in-flight requests get to
	// complete during shutdown.
	GracefulShutdownDuration time.Duration

	// ReadTimeout is the maximum duration for reading an entire request,
	// including the body.
	ReadTimeout time.Duration

	// WriteTimeout is the maximum duration before timing out writes of the
	// response.
	WriteTimeout time.Duration

	// CORSAllowedOrigins enables CORS for the listed origins when non-empty.
	CORSAllowedOrigins []string

	// TrustProxyHeaders takes the client address from X-Real-IP and
	// X-Forwarded-For. Enable it only behind a proxy that sets them.
	TrustProxyHeaders bool

	// RateLimit is the sustained requests per second accepted from one
	// client address on API routes. Zero disables limiting.
	RateLimit float64

	// RateBurst is the burst size of the per-client limiter.
	RateBurst int

	// RateLimitExemptPaths are API paths the limiter never rejects, such as
	// the oracle callback.
	RateLimitExemptPaths []string
}

// BaseServer runs the API routes next to health, drain and metrics
// endpoints.
type BaseServer struct {
	cfg     *HTTPServerConfig
	log     *slog.Logger
	ready   atomic.Bool
	limiter *clientLimiter

	srv        *http.Server
	metricsSrv *metrics.MetricsServer
}

// New creates a BaseServer serving the routes of every registrar.
func New(cfg *HTTPServerConfig, registrars ...RouteRegistrar) (*BaseServer, error) {
	if cfg == nil {
		return nil, errors.New("server config cannot be nil")
	}
	metricsSrv, err := metrics.New(common.PackageName, cfg.MetricsAddr)
	if err != nil {
		return nil, err
	}

	log := cfg.Log
	if log == nil {
		log = slog.Default()
	}

	srv := &BaseServer{cfg: cfg, log: log, metricsSrv: metricsSrv}
	if cfg.RateLimit > 0 {
		srv.limiter = newClientLimiter(cfg.RateLimit, cfg.RateBurst, cfg.RateLimitExemptPaths)
	}
	srv.srv = &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      srv.router(registrars),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
	srv.ready.Store(true)
	return srv, nil
}

func (srv *BaseServer) router(registrars []RouteRegistrar) http.Handler {
	mux := chi.NewRouter()
	mux.Use(middleware.RequestID)
	if srv.cfg.TrustProxyHeaders {
		mux.Use(middleware.RealIP)
	}
	mux.Use(middleware.Recoverer)

	if len(srv.cfg.CORSAllowedOrigins) > 0 {
		mux.Use(cors.Handler(cors.Options{
			AllowedOrigins: srv.cfg.CORSAllowedOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders: []string{"Accept", "Content-Type"},
			MaxAge:         300,
		}))
	}

	mux.Group(func(r chi.Router) {
		r.Use(srv.requestLogger)
		if srv.limiter != nil {
			r.Use(srv.limiter.middleware)
		}
		for _, registrar := range registrars {
			registrar.RegisterRoutes(r)
		}
	})

	mux.Group(func(r chi.Router) {
		r.Use(srv.requestLogger)
		r.Get("/livez", srv.handleLivez)
		r.Get("/readyz", srv.handleReadyz)
		r.Get("/drain", srv.handleDrain)
		r.Get("/undrain", srv.handleUndrain)
	})

	if srv.cfg.EnablePprof {
		srv.log.Info("pprof API enabled")
		mux.Mount("/debug", middleware.Profiler())
	}
	return mux
}

func (srv *BaseServer) requestLogger(next http.Handler) http.Handler {
	return httplogger.LoggingMiddlewareSlog(srv.log, next)
}

func writeStatus(w http.ResponseWriter, code int, status string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"status": status})
}

func (srv *BaseServer) handleLivez(w http.ResponseWriter, r *http.Request) {
	writeStatus(w, http.StatusOK, "alive")
}

func (srv *BaseServer) handleReadyz(w http.ResponseWriter, r *http.Request) {
	if !srv.ready.Load() {
		writeStatus(w, http.StatusServiceUnavailable, "not ready")
		return
	}
	writeStatus(w, http.StatusOK, "ready")
}

func (srv *BaseServer) handleDrain(w http.ResponseWriter, r *http.Request) {
	if !srv.ready.Swap(false) {
		writeStatus(w, http.StatusOK, "already draining")
		return
	}
	srv.log.Info("Server draining", "drainDuration", srv.cfg.DrainDuration)
	writeStatus(w, http.StatusOK, "draining")
}

func (srv *BaseServer) handleUndrain(w http.ResponseWriter, r *http.Request) {
	if srv.ready.Swap(true) {
		writeStatus(w, http.StatusOK, "already ready")
		return
	}
	srv.log.Info("Server marked as ready")
	writeStatus(w, http.StatusOK, "ready")
}

// Handler returns the root handler.
func (srv *BaseServer) Handler() http.Handler {
	return srv.srv.Handler
}

// RunInBackground starts the API and metrics listeners.
func (srv *BaseServer) RunInBackground() {
	if srv.cfg.MetricsAddr != "" {
		go func() {
			srv.log.Info("Starting metrics server", "metricsAddress", srv.cfg.MetricsAddr)
			if err := srv.metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				srv.log.Error("Metrics server failed", "err", err)
			}
		}()
	}

	go func() {
		srv.log.Info("Starting HTTP server", "listenAddress", srv.cfg.ListenAddr)
		if err := srv.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			srv.log.Error("HTTP server failed", "err", err)
		}
	}()
}

// Shutdown marks the server not ready, waits out DrainDuration and then
// stops both listeners, giving in-flight requests up to
// GracefulShutdownDuration.
func (srv *BaseServer) Shutdown() {
	if srv.ready.Swap(false) && srv.cfg.DrainDuration > 0 {
		time.Sleep(srv.cfg.DrainDuration)
	}

	srv.stop("HTTP", srv.srv.Shutdown)
	if srv.cfg.MetricsAddr != "" {
		srv.stop("Metrics", srv.metricsSrv.Shutdown)
	}
}

func (srv *BaseServer) stop(name string, shutdown func(context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), srv.cfg.GracefulShutdownDuration)
	defer cancel()
	if err := shutdown(ctx); err != nil {
		srv.log.Error("Graceful shutdown failed", "server", name, "err", err)
		return
	}
	srv.log.Info("Server gracefully stopped", "server", name)
}
