package observability

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const metricsNamespace = "dailydose"

// Metrics stores Prometheus collectors used by the API and the daily job.
type Metrics struct {
	registry *prometheus.Registry

	httpRequestsTotal     *prometheus.CounterVec
	httpRequestDuration   *prometheus.HistogramVec
	dailyEmailsTotal      *prometheus.CounterVec
	dailyEmailSendSeconds prometheus.Histogram
	dailyRunsTotal        *prometheus.CounterVec
	dailyRunSeconds       prometheus.Histogram
	lastRunSuccess        prometheus.Gauge
	affirmationSelections prometheus.Counter
}

func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		httpRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests processed by method, path, and status.",
			},
			[]string{"method", "path", "status"},
		),
		httpRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds by method and path.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		dailyEmailsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "daily_emails_total",
				Help:      "Daily affirmation emails by outcome (sent, skipped, failed) and failure reason.",
			},
			[]string{"outcome", "reason"},
		),
		dailyEmailSendSeconds: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Name:      "daily_email_send_duration_seconds",
				Help:      "Mail transport send duration in seconds.",
				Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
			},
		),
		dailyRunsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "daily_runs_total",
				Help:      "Daily dispatch runs by trigger and result.",
			},
			[]string{"trigger", "result"},
		),
		dailyRunSeconds: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Name:      "daily_run_duration_seconds",
				Help:      "Wall-clock duration of a daily dispatch run.",
				Buckets:   prometheus.ExponentialBuckets(0.1, 2, 14),
			},
		),
		lastRunSuccess: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Name:      "daily_run_last_success_timestamp_seconds",
				Help:      "Unix time of the last daily run that completed without a run-level error.",
			},
		),
		affirmationSelections: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "affirmation_of_day_selections_total",
				Help:      "Number of times a new affirmation of the day was selected.",
			},
		),
	}

	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.httpRequestsTotal,
		m.httpRequestDuration,
		m.dailyEmailsTotal,
		m.dailyEmailSendSeconds,
		m.dailyRunsTotal,
		m.dailyRunSeconds,
		m.lastRunSuccess,
		m.affirmationSelections,
	)

	return m
}

func (m *Metrics) Handler() http.Handler {
	if m == nil || m.registry == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) HTTPMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		path := routePath(c)
		// Avoid self-scrape noise for request counters.
		if path == "/metrics" {
			return err
		}

		m.recordHTTPRequest(c.Method(), path, statusFromResult(c, err), time.Since(start))
		return err
	}
}

func (m *Metrics) IncEmailSent() {
	if m == nil {
		return
	}
	m.dailyEmailsTotal.WithLabelValues("sent", "none").Inc()
}

func (m *Metrics) IncEmailSkipped() {
	if m == nil {
		return
	}
	m.dailyEmailsTotal.WithLabelValues("skipped", "already_sent").Inc()
}

func (m *Metrics) IncEmailFailed(reason string) {
	if m == nil {
		return
	}
	m.dailyEmailsTotal.WithLabelValues("failed", normalizeLabel(reason)).Inc()
}

func (m *Metrics) ObserveEmailSendDuration(duration time.Duration) {
	if m == nil {
		return
	}
	m.dailyEmailSendSeconds.Observe(max(duration.Seconds(), 0))
}

func (m *Metrics) ObserveRun(trigger string, err error, duration time.Duration, finishedAt time.Time) {
	if m == nil {
		return
	}

	result := "ok"
	if err != nil {
		result = "error"
	} else {
		m.lastRunSuccess.Set(float64(finishedAt.Unix()))
	}
	m.dailyRunsTotal.WithLabelValues(normalizeLabel(trigger), result).Inc()
	m.dailyRunSeconds.Observe(max(duration.Seconds(), 0))
}

func (m *Metrics) IncAffirmationSelected() {
	if m == nil {
		return
	}
	m.affirmationSelections.Inc()
}

func (m *Metrics) recordHTTPRequest(method string, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}

	methodLabel := strings.ToUpper(strings.TrimSpace(method))
	if methodLabel == "" {
		methodLabel = "UNKNOWN"
	}
	pathLabel := strings.TrimSpace(path)
	if pathLabel == "" {
		pathLabel = "unmatched"
	}

	m.httpRequestsTotal.WithLabelValues(methodLabel, pathLabel, strconv.Itoa(status)).Inc()
	m.httpRequestDuration.WithLabelValues(methodLabel, pathLabel).Observe(duration.Seconds())
}

func routePath(c *fiber.Ctx) string {
	if c == nil {
		return "unmatched"
	}

	if route := c.Route(); route != nil {
		if path := strings.TrimSpace(route.Path); path != "" {
			return path
		}
	}
	return "unmatched"
}

func statusFromResult(c *fiber.Ctx, err error) int {
	if err != nil {
		if fiberErr, ok := err.(*fiber.Error); ok {
			return fiberErr.Code
		}
		return fiber.StatusInternalServerError
	}

	if c == nil {
		return fiber.StatusOK
	}

	status := c.Response().StatusCode()
	if status == 0 {
		return fiber.StatusOK
	}
	return status
}

func normalizeLabel(value string) string {
	normalized := strings.ToLower(strings.TrimSpace(value))
	if normalized == "" {
		return "unknown"
	}
	return normalized
}
