// Package metrics exposes live run counters in Prometheus format.
package metrics

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"scoreload/internal/core"
)

const namespace = "scoreload"

// Exporter records every sample into Prometheus collectors. It implements
// core.Recorder and owns its registry, so several exporters can coexist.
type Exporter struct {
	registry *prometheus.Registry

	requests      *prometheus.CounterVec
	latency       *prometheus.HistogramVec
	activeWorkers prometheus.Gauge

	log    *zap.Logger
	server *http.Server
	addr   string
}

func NewExporter(log *zap.Logger) *Exporter {
	if log == nil {
		log = zap.NewNop()
	}

	e := &Exporter{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "requests_total",
				Help:      "Total number of requests by action and outcome.",
			},
			[]string{"action", "outcome"},
		),
		latency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "request_duration_seconds",
				Help:      "Request latency in seconds by action.",
				Buckets:   prometheus.ExponentialBuckets(0.001, 2, 15), // 1ms to ~16s
			},
			[]string{"action"},
		),
		activeWorkers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_workers",
			Help:      "Number of workers currently running.",
		}),
		log: log.Named("metrics"),
	}

	e.registry.MustRegister(e.requests, e.latency, e.activeWorkers)
	return e
}

func outcome(s core.Sample) string {
	if s.Succeeded {
		return "success"
	}
	return "failure"
}

// Record implements core.Recorder.
func (e *Exporter) Record(s core.Sample) {
	action := s.Kind.String()
	e.requests.WithLabelValues(action, outcome(s)).Inc()
	e.latency.WithLabelValues(action).Observe(s.Latency.Seconds())
}

func (e *Exporter) WorkerStarted() { e.activeWorkers.Inc() }
func (e *Exporter) WorkerStopped() { e.activeWorkers.Dec() }

// Handler serves the exporter's registry.
func (e *Exporter) Handler() http.Handler {
	return promhttp.HandlerFor(e.registry, promhttp.HandlerOpts{Registry: e.registry})
}

// Serve starts an HTTP server exposing /metrics on addr. It returns once the
// listener is bound; the server runs until Shutdown.
func (e *Exporter) Serve(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", e.Handler())
	e.server = &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	e.addr = ln.Addr().String()
	e.log.Info("metrics endpoint listening", zap.String("addr", e.addr))
	go func() {
		if err := e.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			e.log.Error("metrics server stopped", zap.Error(err))
		}
	}()
	return nil
}

// Addr returns the bound listen address, or "" before Serve.
func (e *Exporter) Addr() string {
	return e.addr
}

// Shutdown stops the server started by Serve. It is a no-op otherwise.
func (e *Exporter) Shutdown(ctx context.Context) error {
	if e.server == nil {
		return nil
	}
	e.log.Info("metrics endpoint shutting down")
	return e.server.Shutdown(ctx)
}
