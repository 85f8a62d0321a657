package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/flashbots/noisyagg/common"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsServer serves the default Prometheus registry on /metrics.
type MetricsServer struct {
	srv *http.Server
}

// New creates a metrics server listening on addr. Build info for namespace
// is registered once per process.
func New(namespace, addr string) (*MetricsServer, error) {
	if err := registerBuildInfo(namespace); err != nil {
		return nil, err
	}

	mux := chi.NewRouter()
	mux.Handle("/metrics", promhttp.Handler())

	return &MetricsServer{
		srv: &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
	}, nil
}

func registerBuildInfo(namespace string) error {
	info := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "build_info",
		Help:      "Build version of the running binary",
	}, []string{"version"})
	if err := prometheus.Register(info); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			return nil
		}
		return err
	}
	info.WithLabelValues(common.Version).Set(1)
	return nil
}

// ListenAndServe blocks serving metrics.
func (s *MetricsServer) ListenAndServe() error {
	return s.srv.ListenAndServe()
}

// Shutdown stops the server.
func (s *MetricsServer) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

// Handler returns the metrics handler, for tests and for embedding.
func (s *MetricsServer) Handler() http.Handler {
	return s.srv.Handler
}
