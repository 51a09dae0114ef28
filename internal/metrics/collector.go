// Package metrics collects operation metrics and serves them over
// Prometheus.
package metrics

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Config represents metrics configuration.
type Config struct {
	Enabled bool   `yaml:"enabled"`
	Port    int    `yaml:"port"`
	Path    string `yaml:"path"`
}

// Collector tracks remote traffic and cache behavior. It satisfies the
// namespace layer's metrics interface and serves a Prometheus endpoint
// when enabled. A disabled collector accepts observations and drops
// them.
type Collector struct {
	config   *Config
	registry *prometheus.Registry
	logger   *zap.Logger

	remoteCalls  *prometheus.CounterVec
	remoteDur    *prometheus.HistogramVec
	cacheHits    prometheus.Counter
	cacheMisses  prometheus.Counter
	cacheEntries prometheus.Gauge

	mux    *http.ServeMux
	server *http.Server
}

// NewCollector creates a collector.
func NewCollector(config *Config, logger *zap.Logger) *Collector {
	if config == nil {
		config = &Config{}
	}
	if config.Path == "" {
		config.Path = "/metrics"
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	registry := prometheus.NewRegistry()
	c := &Collector{
		config:   config,
		registry: registry,
		logger:   logger.Named("metrics"),
		mux:      http.NewServeMux(),

		remoteCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tangofs",
			Name:      "remote_calls_total",
			Help:      "Remote database and device calls by operation and outcome.",
		}, []string{"operation", "outcome"}),
		remoteDur: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "tangofs",
			Name:      "remote_call_duration_seconds",
			Help:      "Remote call latency by operation.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
		cacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "tangofs",
			Name:      "cache_hits_total",
			Help:      "Namespace cache hits.",
		}),
		cacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "tangofs",
			Name:      "cache_misses_total",
			Help:      "Namespace cache misses.",
		}),
		cacheEntries: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "tangofs",
			Name:      "cache_entries",
			Help:      "Live namespace cache entries.",
		}),
	}

	registry.MustRegister(c.remoteCalls, c.remoteDur, c.cacheHits, c.cacheMisses, c.cacheEntries)
	return c
}

// ObserveRemoteCall records one remote call.
func (c *Collector) ObserveRemoteCall(op string, d time.Duration, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	c.remoteCalls.WithLabelValues(op, outcome).Inc()
	c.remoteDur.WithLabelValues(op).Observe(d.Seconds())
}

// ObserveCacheHit records one cache hit.
func (c *Collector) ObserveCacheHit() { c.cacheHits.Inc() }

// ObserveCacheMiss records one cache miss.
func (c *Collector) ObserveCacheMiss() { c.cacheMisses.Inc() }

// SetCacheEntries publishes the current cache population.
func (c *Collector) SetCacheEntries(n int) { c.cacheEntries.Set(float64(n)) }

// Registry exposes the collector's registry for tests and embedding.
func (c *Collector) Registry() *prometheus.Registry { return c.registry }

// HandleFunc registers an extra handler on the metrics endpoint, such
// as a health check. Must be called before Start.
func (c *Collector) HandleFunc(path string, fn http.HandlerFunc) {
	c.mux.HandleFunc(path, fn)
}

// Start serves the metrics endpoint in the background. It is a no-op
// when metrics are disabled.
func (c *Collector) Start(ctx context.Context) error {
	if !c.config.Enabled {
		return nil
	}

	c.mux.Handle(c.config.Path, promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{}))

	c.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", c.config.Port),
		Handler:           c.mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		c.logger.Info("metrics endpoint listening",
			zap.Int("port", c.config.Port), zap.String("path", c.config.Path))
		if err := c.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			c.logger.Error("metrics endpoint failed", zap.Error(err))
		}
	}()
	return nil
}

// Stop shuts the metrics endpoint down.
func (c *Collector) Stop(ctx context.Context) error {
	if c.server == nil {
		return nil
	}
	return c.server.Shutdown(ctx)
}
