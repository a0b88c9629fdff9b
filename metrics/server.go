package metrics

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsServer serves the gateway collectors on /metrics.
type MetricsServer struct {
	registry *prometheus.Registry
	metrics  *Metrics
	srv      *http.Server
}

// New creates a registry with the runtime collectors and the gateway
// collectors under namespace, served on addr.
func New(namespace, addr string) (*MetricsServer, error) {
	registry := prometheus.NewRegistry()
	if err := registry.Register(collectors.NewGoCollector()); err != nil {
		return nil, err
	}
	if err := registry.Register(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{})); err != nil {
		return nil, err
	}

	ms := &MetricsServer{
		registry: registry,
		metrics:  NewMetrics(sanitizeNamespace(namespace), registry),
	}

	mux := chi.NewRouter()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry}))

	ms.srv = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return ms, nil
}

// Metrics returns the collectors registered with this server.
func (ms *MetricsServer) Metrics() *Metrics {
	return ms.metrics
}

// Handler returns the HTTP handler serving /metrics.
func (ms *MetricsServer) Handler() http.Handler {
	return ms.srv.Handler
}

func (ms *MetricsServer) ListenAndServe() error {
	return ms.srv.ListenAndServe()
}

func (ms *MetricsServer) Shutdown(ctx context.Context) error {
	return ms.srv.Shutdown(ctx)
}

// sanitizeNamespace maps a package name such as "sefaz-config-gateway" to a
// valid metric prefix.
func sanitizeNamespace(namespace string) string {
	return strings.NewReplacer("-", "_", ".", "_").Replace(namespace)
}
