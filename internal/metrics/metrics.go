// Package metrics counts docdb events as Prometheus metrics.
package metrics

import (
	"context"
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hanpama/docdb/internal/dberr"
	eventbus "github.com/hanpama/docdb/internal/eventbus"
	events "github.com/hanpama/docdb/internal/events"
)

const namespace = "docdb"

// Metrics holds the collectors fed by Subscribe.
type Metrics struct {
	requests        *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	failures        *prometheus.CounterVec
	cursorBatches   *prometheus.CounterVec
	cursorItems     prometheus.Counter
	cursorReleases  *prometheus.CounterVec
	grpcCalls       *prometheus.CounterVec
	httpRequests    *prometheus.CounterVec
}

func New() *Metrics {
	return &Metrics{
		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "requests_total",
				Help:      "Requests completed by the executor, by method and response status (0 when no response).",
			},
			[]string{"method", "status"},
		),
		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "request_duration_seconds",
				Help:      "Time from submission to resolution of executor requests.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method"},
		),
		failures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "request_failures_total",
				Help:      "Failed executor requests by failure kind.",
			},
			[]string{"kind"},
		),
		cursorBatches: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "cursor",
				Name:      "batches_total",
				Help:      "Result batches received by cursors.",
			},
			[]string{"cached"},
		),
		cursorItems: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "cursor",
				Name:      "items_total",
				Help:      "Result items received by cursors.",
			},
		),
		cursorReleases: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "cursor",
				Name:      "releases_total",
				Help:      "Server cursor releases by outcome.",
			},
			[]string{"result"},
		),
		grpcCalls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "grpc_client",
				Name:      "calls_total",
				Help:      "Gateway calls by gRPC status code.",
			},
			[]string{"code"},
		),
		httpRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "http_server",
				Name:      "requests_total",
				Help:      "REST requests served, by method and status.",
			},
			[]string{"method", "status"},
		),
	}
}

// Register adds all collectors to reg.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{
		m.requests, m.requestDuration, m.failures,
		m.cursorBatches, m.cursorItems, m.cursorReleases,
		m.grpcCalls, m.httpRequests,
	} {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// Subscribe feeds the collectors from bus.
func (m *Metrics) Subscribe(bus *eventbus.Bus) (unsubscribe func()) {
	unsubs := []func(){
		eventbus.Subscribe(bus, func(_ context.Context, e events.RequestFinish) {
			m.requests.WithLabelValues(e.Method, strconv.Itoa(e.Status)).Inc()
			m.requestDuration.WithLabelValues(e.Method).Observe(e.Duration.Seconds())
			if e.Err != nil {
				m.failures.WithLabelValues(dberr.KindOf(e.Err).String()).Inc()
			}
		}),
		eventbus.Subscribe(bus, func(_ context.Context, e events.CursorBatch) {
			m.cursorBatches.WithLabelValues(strconv.FormatBool(e.Cached)).Inc()
			m.cursorItems.Add(float64(e.Items))
		}),
		eventbus.Subscribe(bus, func(_ context.Context, e events.CursorRelease) {
			result := "ok"
			if e.Err != nil {
				result = "failed"
			}
			m.cursorReleases.WithLabelValues(result).Inc()
		}),
		eventbus.Subscribe(bus, func(_ context.Context, e events.GRPCClientFinish) {
			m.grpcCalls.WithLabelValues(e.Code.String()).Inc()
		}),
		eventbus.Subscribe(bus, func(_ context.Context, e events.HTTPFinish) {
			m.httpRequests.WithLabelValues(e.Method, strconv.Itoa(e.Status)).Inc()
		}),
	}
	return func() {
		for _, u := range unsubs {
			u()
		}
	}
}

// Handler serves the metrics gathered by g in the Prometheus text format.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
