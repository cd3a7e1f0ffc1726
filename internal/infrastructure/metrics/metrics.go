// Package metrics holds the Prometheus collectors of the service. Every
// recording method is safe on a nil *Metrics, so components can run without
// instrumentation in tests.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "progression"

// Metrics is the collector set registered on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	xpAwarded            *prometheus.CounterVec
	xpAwardedTotal       *prometheus.CounterVec
	levelUps             prometheus.Counter
	achievementsUnlocked *prometheus.CounterVec
	campusJoins          *prometheus.CounterVec
	presenceSwept        prometheus.Counter
	eventsPublished      *prometheus.CounterVec
	handlerFailures      *prometheus.CounterVec
	jobRuns              *prometheus.CounterVec
	jobDuration          *prometheus.HistogramVec
	httpRequests         *prometheus.CounterVec
	httpDuration         *prometheus.HistogramVec
	breakerState         *prometheus.GaugeVec
}

// New creates and registers all collectors, plus the Go and process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),

		xpAwarded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "xp_awards_total",
			Help:      "Number of committed XP awards.",
		}, []string{"source", "skill"}),

		xpAwardedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "xp_awarded_points_total",
			Help:      "Sum of XP granted.",
		}, []string{"source"}),

		levelUps: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "level_ups_total",
			Help:      "Number of overall level-ups.",
		}),

		achievementsUnlocked: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "achievements_unlocked_total",
			Help:      "Number of achievements earned.",
		}, []string{"rarity"}),

		campusJoins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "campus_joins_total",
			Help:      "Campus join attempts by outcome.",
		}, []string{"location", "outcome"}),

		presenceSwept: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "campus_presence_swept_total",
			Help:      "Occupants removed for inactivity.",
		}),

		eventsPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_published_total",
			Help:      "Domain events published on the bus.",
		}, []string{"event_type"}),

		handlerFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "event_handler_failures_total",
			Help:      "Event handler executions that returned an error.",
		}, []string{"event_type"}),

		jobRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scheduler_job_runs_total",
			Help:      "Scheduler job executions by status.",
		}, []string{"job", "status"}),

		jobDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "scheduler_job_duration_seconds",
			Help:      "Scheduler job duration.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 30, 120},
		}, []string{"job"}),

		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests.",
		}, []string{"method", "route", "status"}),

		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 2, 5},
		}, []string{"method", "route"}),

		breakerState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "circuit_breaker_state",
			Help:      "Circuit breaker state: 0 closed, 1 open, 2 half-open.",
		}, []string{"name"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.xpAwarded,
		m.xpAwardedTotal,
		m.levelUps,
		m.achievementsUnlocked,
		m.campusJoins,
		m.presenceSwept,
		m.eventsPublished,
		m.handlerFailures,
		m.jobRuns,
		m.jobDuration,
		m.httpRequests,
		m.httpDuration,
		m.breakerState,
	)
	return m
}

// Handler exposes the registry for scraping.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// ObserveAward records one committed award.
func (m *Metrics) ObserveAward(source, skill string, amount int64, leveledUp bool) {
	if m == nil {
		return
	}
	if skill == "" {
		skill = "none"
	}
	m.xpAwarded.WithLabelValues(source, skill).Inc()
	m.xpAwardedTotal.WithLabelValues(source).Add(float64(amount))
	if leveledUp {
		m.levelUps.Inc()
	}
}

// ObserveAchievement records an earned achievement.
func (m *Metrics) ObserveAchievement(rarity string) {
	if m == nil {
		return
	}
	m.achievementsUnlocked.WithLabelValues(rarity).Inc()
}

// ObserveJoin records a campus join attempt outcome.
func (m *Metrics) ObserveJoin(location, outcome string) {
	if m == nil {
		return
	}
	m.campusJoins.WithLabelValues(location, outcome).Inc()
}

// ObserveSweep records evicted occupants.
func (m *Metrics) ObserveSweep(removed int) {
	if m == nil {
		return
	}
	m.presenceSwept.Add(float64(removed))
}

// ObservePublish records a published event.
func (m *Metrics) ObservePublish(eventType string) {
	if m == nil {
		return
	}
	m.eventsPublished.WithLabelValues(eventType).Inc()
}

// ObserveHandlerFailure records a failed event handler.
func (m *Metrics) ObserveHandlerFailure(eventType string) {
	if m == nil {
		return
	}
	m.handlerFailures.WithLabelValues(eventType).Inc()
}

// ObserveJob records one scheduler run.
func (m *Metrics) ObserveJob(job string, d time.Duration, err error) {
	if m == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "failure"
	}
	m.jobRuns.WithLabelValues(job, status).Inc()
	m.jobDuration.WithLabelValues(job).Observe(d.Seconds())
}

// ObserveHTTP records one served request.
func (m *Metrics) ObserveHTTP(method, route string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.httpDuration.WithLabelValues(method, route).Observe(d.Seconds())
}

// SetBreakerState exports a circuit breaker state as a number.
func (m *Metrics) SetBreakerState(name string, state int) {
	if m == nil {
		return
	}
	m.breakerState.WithLabelValues(name).Set(float64(state))
}
