package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type metrics struct {
	requests           *prometheus.CounterVec
	duration           *prometheus.HistogramVec
	listingRequests    *prometheus.CounterVec
	droppedFilters     *prometheus.CounterVec
	savedSearchActions *prometheus.CounterVec
	exports            *prometheus.CounterVec
}

func newMetrics(reg prometheus.Registerer) *metrics {
	f := promauto.With(reg)
	return &metrics{
		requests: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "datatable_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		duration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "datatable_http_request_duration_seconds",
				Help:    "HTTP request latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"route"},
		),
		listingRequests: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "datatable_listing_requests_total",
				Help: "Listing requests by kind and outcome",
			},
			[]string{"kind", "outcome"},
		),
		droppedFilters: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "datatable_dropped_filters_total",
				Help: "Filters dropped because a value failed validation",
			},
			[]string{"kind"},
		),
		savedSearchActions: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "datatable_savedsearch_actions_total",
				Help: "Saved-search requests by action",
			},
			[]string{"action"},
		),
		exports: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "datatable_exports_total",
				Help: "XLSX exports by listing kind",
			},
			[]string{"kind"},
		),
	}
}

// instrument records the request count and latency of route.
func (m *metrics) instrument(route string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)
		m.requests.WithLabelValues(r.Method, route, strconv.Itoa(sw.status)).Inc()
		m.duration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

// statusWriter captures the status code written by a handler.
type statusWriter struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (w *statusWriter) WriteHeader(code int) {
	if !w.wroteHeader {
		w.status = code
		w.wroteHeader = true
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	w.wroteHeader = true
	return w.ResponseWriter.Write(b)
}

func (w *statusWriter) Unwrap() http.ResponseWriter { return w.ResponseWriter }
