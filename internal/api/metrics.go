package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics records query traffic per route template. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "nitronimbus",
			Name:      "http_requests_total",
			Help:      "Query requests processed by route and status.",
		}, []string{"route", "status"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "nitronimbus",
			Name:      "http_request_duration_seconds",
			Help:      "Query request durations by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),
	}

	if reg != nil {
		reg.MustRegister(m.requests, m.duration)
	}

	return m
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(status int) {
	s.status = status
	s.ResponseWriter.WriteHeader(status)
}

// Wrap counts every request the router answers, including its 404 and 405
// replies. Matched requests are labelled with the route template so that
// /api/history/1 and /api/history/24 share a series.
func (m *Metrics) Wrap(router *mux.Router) http.Handler {
	if m == nil {
		return router
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		route := "unmatched"
		var match mux.RouteMatch
		if router.Match(r, &match) && match.MatchErr == nil && match.Route != nil {
			if template, err := match.Route.GetPathTemplate(); err == nil {
				route = template
			}
		}

		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		router.ServeHTTP(recorder, r)

		m.requests.WithLabelValues(route, strconv.Itoa(recorder.status)).Inc()
		m.duration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}
