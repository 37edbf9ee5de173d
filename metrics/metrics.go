/*
Package metrics exposes enrollment counters to Prometheus.

Recorder implements enrollment.Observer, so attaching it to a ledger with
enrollment.WithObserver counts every commit and rejection. HTTP request
metrics are recorded by the api middleware through ObserveHTTPRequest.

COLLECTORS:
  enrollment_commits_total                  commits written
  enrollment_events_total{status}           events written, by status
  enrollment_rejections_total{reason}       rejected operations, by reason
  http_requests_total{method,route,status}  HTTP requests
  http_request_duration_seconds{...}        HTTP latency
*/
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/warp/enrollment-engine/enrollment"
)

// Recorder owns a private registry and the enrollment collectors.
type Recorder struct {
	registry        *prometheus.Registry
	handler         http.Handler
	commits         prometheus.Counter
	events          *prometheus.CounterVec
	rejections      *prometheus.CounterVec
	requestTotal    *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
}

// NewRecorder registers the collectors on a fresh registry.
func NewRecorder() *Recorder {
	registry := prometheus.NewRegistry()

	commits := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "enrollment_commits_total",
		Help: "Total number of ledger commits written",
	})

	events := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "enrollment_events_total",
		Help: "Total number of ledger events written",
	}, []string{"status"})

	rejections := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "enrollment_rejections_total",
		Help: "Total number of rejected enrollment operations",
	}, []string{"reason"})

	requestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "route", "status"})

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route", "status"})

	registry.MustRegister(commits, events, rejections, requestTotal, requestDuration)

	return &Recorder{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		commits:         commits,
		events:          events,
		rejections:      rejections,
		requestTotal:    requestTotal,
		requestDuration: requestDuration,
	}
}

// Registry returns the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry { return r.registry }

// Handler exposes the Prometheus HTTP handler.
func (r *Recorder) Handler() http.Handler {
	if r == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return r.handler
}

// Committed implements enrollment.Observer.
func (r *Recorder) Committed(evs []enrollment.Event) {
	r.commits.Inc()
	for _, ev := range evs {
		r.events.WithLabelValues(string(ev.Status)).Inc()
	}
}

// Rejected implements enrollment.Observer.
func (r *Recorder) Rejected(reason string) {
	r.rejections.WithLabelValues(reason).Inc()
}

// ObserveHTTPRequest records one HTTP request.
func (r *Recorder) ObserveHTTPRequest(method, route string, status int, elapsed time.Duration) {
	code := strconv.Itoa(status)
	r.requestTotal.WithLabelValues(method, route, code).Inc()
	r.requestDuration.WithLabelValues(method, route, code).Observe(elapsed.Seconds())
}

var _ enrollment.Observer = (*Recorder)(nil)
