package observability

import (
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetricsDailyJobCollectors(t *testing.T) {
	t.Parallel()

	metrics := NewMetrics()

	metrics.IncEmailSent()
	metrics.IncEmailSent()
	metrics.IncEmailSkipped()
	metrics.IncEmailFailed(" Send_Error ")
	metrics.IncEmailFailed("")
	metrics.ObserveEmailSendDuration(120 * time.Millisecond)
	metrics.IncAffirmationSelected()

	if got := testutil.ToFloat64(metrics.dailyEmailsTotal.WithLabelValues("sent", "none")); got != 2 {
		t.Fatalf("daily_emails_total{sent} = %v, want 2", got)
	}
	if got := testutil.ToFloat64(metrics.dailyEmailsTotal.WithLabelValues("skipped", "already_sent")); got != 1 {
		t.Fatalf("daily_emails_total{skipped} = %v, want 1", got)
	}
	if got := testutil.ToFloat64(metrics.dailyEmailsTotal.WithLabelValues("failed", "send_error")); got != 1 {
		t.Fatalf("daily_emails_total{failed,send_error} = %v, want 1", got)
	}
	if got := testutil.ToFloat64(metrics.dailyEmailsTotal.WithLabelValues("failed", "unknown")); got != 1 {
		t.Fatalf("daily_emails_total{failed,unknown} = %v, want 1", got)
	}
	if got := testutil.ToFloat64(metrics.affirmationSelections); got != 1 {
		t.Fatalf("affirmation_of_day_selections_total = %v, want 1", got)
	}
}

func TestMetricsObserveRun(t *testing.T) {
	t.Parallel()

	metrics := NewMetrics()
	finishedAt := time.Unix(1_700_000_000, 0)

	metrics.ObserveRun("schedule", nil, 2*time.Second, finishedAt)
	metrics.ObserveRun("manual", errors.New("db down"), time.Second, finishedAt.Add(time.Hour))

	if got := testutil.ToFloat64(metrics.dailyRunsTotal.WithLabelValues("schedule", "ok")); got != 1 {
		t.Fatalf("daily_runs_total{schedule,ok} = %v, want 1", got)
	}
	if got := testutil.ToFloat64(metrics.dailyRunsTotal.WithLabelValues("manual", "error")); got != 1 {
		t.Fatalf("daily_runs_total{manual,error} = %v, want 1", got)
	}
	if got := testutil.ToFloat64(metrics.lastRunSuccess); got != float64(finishedAt.Unix()) {
		t.Fatalf("last success timestamp = %v, want %v", got, finishedAt.Unix())
	}
}

func TestMetricsNilReceiverIsNoop(t *testing.T) {
	t.Parallel()

	var metrics *Metrics
	metrics.IncEmailSent()
	metrics.IncEmailFailed("x")
	metrics.ObserveRun("manual", nil, time.Second, time.Now())
	if metrics.Handler() == nil {
		t.Fatal("Handler() should fall back to the default handler")
	}
}

func TestMetricsHTTPMiddlewareRecordsRequest(t *testing.T) {
	t.Parallel()

	metrics := NewMetrics()
	app := fiber.New()
	app.Use(metrics.HTTPMiddleware())
	app.Get("/livez", func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})

	req := httptest.NewRequest("GET", "/livez", nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test() error = %v", err)
	}
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	if got := testutil.ToFloat64(metrics.httpRequestsTotal.WithLabelValues("GET", "/livez", "200")); got != 1 {
		t.Fatalf("http_requests_total = %v, want 1", got)
	}
}

func TestMetricsHTTPMiddlewareRecordsErrorStatus(t *testing.T) {
	t.Parallel()

	metrics := NewMetrics()
	app := fiber.New()
	app.Use(metrics.HTTPMiddleware())
	app.Post("/v1/daily/run", func(c *fiber.Ctx) error {
		return errors.New("boom")
	})

	req := httptest.NewRequest("POST", "/v1/daily/run", nil)
	_, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test() error = %v", err)
	}

	if got := testutil.ToFloat64(metrics.httpRequestsTotal.WithLabelValues("POST", "/v1/daily/run", "500")); got != 1 {
		t.Fatalf("http_requests_total = %v, want 1", got)
	}
}
