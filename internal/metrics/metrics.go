package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
)

// Outcomes of a scheduling run.
const (
	OutcomeScheduled  = "scheduled"
	OutcomeInfeasible = "infeasible"
	OutcomeRejected   = "rejected"
)

// Collector records scheduling runs and HTTP requests.
type Collector struct {
	runs     *prometheus.CounterVec
	matches  prometheus.Counter
	duration prometheus.Histogram
	requests *prometheus.CounterVec
}

// NewCollector registers the fixture metrics on reg. A nil registerer
// defaults to the global Prometheus registerer.
func NewCollector(reg prometheus.Registerer) (*Collector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	runs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "fixture_schedule_runs_total",
		Help: "Scheduling runs by outcome",
	}, []string{"outcome"})
	matches := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "fixture_matches_scheduled_total",
		Help: "Matches bound to a slot by successful runs",
	})
	duration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "fixture_schedule_duration_seconds",
		Help:    "Time spent in a scheduling run",
		Buckets: prometheus.DefBuckets,
	})
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "fixture_http_requests_total",
		Help: "HTTP requests by method, route and status",
	}, []string{"method", "route", "status"})

	var err error
	if runs, err = register(reg, runs); err != nil {
		return nil, err
	}
	if matches, err = register(reg, matches); err != nil {
		return nil, err
	}
	if duration, err = register(reg, duration); err != nil {
		return nil, err
	}
	if requests, err = register(reg, requests); err != nil {
		return nil, err
	}
	return &Collector{runs: runs, matches: matches, duration: duration, requests: requests}, nil
}

// register returns the already registered collector when c is a duplicate.
func register[T prometheus.Collector](reg prometheus.Registerer, c T) (T, error) {
	if err := reg.Register(c); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(T); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}

// ObserveRun records one scheduling run.
func (c *Collector) ObserveRun(outcome string, matches int, elapsed time.Duration) {
	c.runs.WithLabelValues(outcome).Inc()
	if outcome == OutcomeScheduled {
		c.matches.Add(float64(matches))
	}
	c.duration.Observe(elapsed.Seconds())
}

// Middleware counts requests by chi route pattern.
func (c *Collector) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}

		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		c.requests.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()
	})
}
