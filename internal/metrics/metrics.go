// Package metrics instruments the request pipeline with Prometheus. It is
// installed as the outermost stage so each observation covers a whole
// logical operation, retries included.
package metrics

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/einyx/blobstore-go/pkg/pipeline"
)

// Metrics holds the pipeline instrumentation set.
type Metrics struct {
	RequestsTotal    *prometheus.CounterVec
	RequestDuration  *prometheus.HistogramVec
	RequestsInFlight prometheus.Gauge
	RetriesTotal     *prometheus.CounterVec
	RequestErrors    *prometheus.CounterVec
}

// New registers the metric set under the given namespace on the default
// registerer.
func New(namespace string) *Metrics {
	if namespace == "" {
		namespace = "blobstore"
	}
	return &Metrics{
		RequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "requests_total",
				Help:      "Logical operations completed, by method and final status code",
			},
			[]string{"method", "status_code"},
		),
		RequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "request_duration_seconds",
				Help:      "Logical operation duration including all retries",
				Buckets:   prometheus.ExponentialBuckets(0.001, 2, 15), // 1ms to ~32s
			},
			[]string{"method"},
		),
		RequestsInFlight: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "requests_in_flight",
				Help:      "Logical operations currently in progress",
			},
		),
		RetriesTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "retries_total",
				Help:      "Retry attempts issued, by target host",
			},
			[]string{"host"},
		),
		RequestErrors: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "request_errors_total",
				Help:      "Logical operations that ended in a transport error",
			},
			[]string{"method"},
		),
	}
}

// Policy returns the instrumentation stage for blob.PipelineOptions.
func (m *Metrics) Policy() pipeline.Policy {
	return pipeline.PolicyFunc(func(ctx context.Context, req *pipeline.Request, next pipeline.Next) (*pipeline.Response, error) {
		m.RequestsInFlight.Inc()
		start := time.Now()
		resp, err := next(ctx, req)
		m.RequestsInFlight.Dec()
		m.RequestDuration.WithLabelValues(req.Method).Observe(time.Since(start).Seconds())
		if err != nil {
			m.RequestErrors.WithLabelValues(req.Method).Inc()
			return resp, err
		}
		m.RequestsTotal.WithLabelValues(req.Method, strconv.Itoa(resp.StatusCode)).Inc()
		return resp, err
	})
}

// OnRetry feeds blob.RetryOptions.OnRetry.
func (m *Metrics) OnRetry(_ int32, host string) {
	m.RetriesTotal.WithLabelValues(host).Inc()
}

// Handler serves the default registry for scraping, used by the CLI's
// optional metrics listener.
func Handler() http.Handler {
	return promhttp.Handler()
}
