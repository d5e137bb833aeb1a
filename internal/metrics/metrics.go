// Package metrics exports run progress as Prometheus metrics.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/studiowebux/authload/internal/check"
	"github.com/studiowebux/authload/internal/types"
)

const namespace = "authload"

// Collector records requests, checks and active virtual users.
// Each Collector owns its registry so runs and tests do not share series.
type Collector struct {
	registry *prometheus.Registry

	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	checksTotal     *prometheus.CounterVec
	activeVUs       prometheus.Gauge
	iterationsTotal prometheus.Counter
}

// NewCollector creates a collector with a fresh registry
func NewCollector() *Collector {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Collector{
		registry: reg,

		requestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests sent, by step and status class",
			},
			[]string{"step", "status"},
		),

		requestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"step"},
		),

		checksTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "checks_total",
				Help:      "Total number of evaluated checks",
			},
			[]string{"group", "check", "result"},
		),

		activeVUs: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "active_vus",
				Help:      "Number of virtual users currently iterating",
			},
		),

		iterationsTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "iterations_total",
				Help:      "Total number of completed iterations",
			},
		),
	}
}

// ObserveRequest records one HTTP call
func (c *Collector) ObserveRequest(result *types.RequestResult) {
	status := StatusClass(result.Status)
	if result.Error != "" {
		status = "error"
	}
	c.requestsTotal.WithLabelValues(result.Step, status).Inc()
	c.requestDuration.WithLabelValues(result.Step).Observe(result.Duration.Seconds())
}

// ObserveCheck records one check outcome
func (c *Collector) ObserveCheck(result check.Result) {
	c.checksTotal.WithLabelValues(result.Group, result.Name, strconv.FormatBool(result.Passed)).Inc()
}

// VUStarted increments the active VU gauge
func (c *Collector) VUStarted() {
	c.activeVUs.Inc()
}

// VUStopped decrements the active VU gauge
func (c *Collector) VUStopped() {
	c.activeVUs.Dec()
}

// IterationDone counts a finished iteration
func (c *Collector) IterationDone() {
	c.iterationsTotal.Inc()
}

// Handler serves the registry in the Prometheus exposition format
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr until ctx is done
func (c *Collector) Serve(ctx context.Context, addr string, logger *zap.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", c.Handler())

	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	logger.Info("serving metrics", zap.String("addr", addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// StatusClass buckets a status code as 2xx, 3xx, 4xx or 5xx
func StatusClass(status int) string {
	switch {
	case status >= 200 && status < 300:
		return "2xx"
	case status >= 300 && status < 400:
		return "3xx"
	case status >= 400 && status < 500:
		return "4xx"
	case status >= 500:
		return "5xx"
	default:
		return "unknown"
	}
}
