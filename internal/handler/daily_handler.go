package handler

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/kursadbilgin/dailydose/internal/domain"
	"github.com/kursadbilgin/dailydose/internal/observability"
	"github.com/kursadbilgin/dailydose/internal/ratelimit"
	"github.com/kursadbilgin/dailydose/internal/repository"
	"github.com/kursadbilgin/dailydose/internal/service"
)

const (
	defaultPage     = 1
	defaultPageSize = 50
	maxPageSize     = 100
	userIDHeader    = "X-User-ID"
)

type DailyTasksService interface {
	RunNow(ctx context.Context, trigger string) (service.RunReport, error)
	Status() service.AffirmationStatus
	Reset()
}

type AffirmationService interface {
	Random(ctx context.Context, category string) (*domain.Affirmation, error)
	ListDeliveries(ctx context.Context, params repository.DeliveryListParams) ([]domain.DeliveryRecord, int64, error)
}

type DailyHandler struct {
	tasks        DailyTasksService
	affirmations AffirmationService
	cooldown     ratelimit.Cooldown
}

// NewDailyHandler builds the handler. A nil cooldown leaves the random
// endpoint unthrottled.
func NewDailyHandler(
	tasks DailyTasksService,
	affirmations AffirmationService,
	cooldown ratelimit.Cooldown,
) (*DailyHandler, error) {
	if tasks == nil {
		return nil, fmt.Errorf("daily tasks service is required")
	}
	if affirmations == nil {
		return nil, fmt.Errorf("affirmation service is required")
	}
	return &DailyHandler{
		tasks:        tasks,
		affirmations: affirmations,
		cooldown:     cooldown,
	}, nil
}

func RegisterDailyRoutes(
	router fiber.Router,
	tasks DailyTasksService,
	affirmations AffirmationService,
	cooldown ratelimit.Cooldown,
) error {
	h, err := NewDailyHandler(tasks, affirmations, cooldown)
	if err != nil {
		return err
	}

	v1 := router.Group("/v1")
	v1.Post("/daily/run", h.RunNow)
	v1.Get("/daily/affirmation", h.GetAffirmationOfDay)
	v1.Post("/daily/reset", h.ResetAffirmationOfDay)
	v1.Get("/deliveries", h.ListDeliveries)
	v1.Get("/affirmations/random", h.RandomAffirmation)

	return nil
}

type affirmationOfDayResponse struct {
	ID            int64  `json:"id"`
	Text          string `json:"text"`
	Category      string `json:"category"`
	EffectiveDate string `json:"effectiveDate"`
}

type runResponse struct {
	RunID       string                    `json:"runId"`
	Trigger     string                    `json:"trigger"`
	Date        string                    `json:"date"`
	Summary     domain.RunSummary         `json:"summary"`
	Affirmation *affirmationOfDayResponse `json:"affirmation,omitempty"`
	StartedAt   time.Time                 `json:"startedAt"`
	FinishedAt  time.Time                 `json:"finishedAt"`
}

type statusResponse struct {
	Available   bool                      `json:"available"`
	Affirmation *affirmationOfDayResponse `json:"affirmation,omitempty"`
}

type affirmationResponse struct {
	ID         int64    `json:"id"`
	Text       string   `json:"text"`
	Categories []string `json:"categories"`
}

type deliveryResponse struct {
	ID            string    `json:"id"`
	UserID        int64     `json:"userId"`
	AffirmationID int64     `json:"affirmationId"`
	SentOn        string    `json:"sentOn"`
	SentAt        time.Time `json:"sentAt"`
	Success       bool      `json:"success"`
	State         string    `json:"state"`
	ErrorMessage  *string   `json:"errorMessage,omitempty"`
}

type listDeliveriesResponse struct {
	Data []deliveryResponse `json:"data"`
	Meta listMeta           `json:"meta"`
}

type listMeta struct {
	Page     int   `json:"page"`
	PageSize int   `json:"pageSize"`
	Total    int64 `json:"total"`
}

func (h *DailyHandler) RunNow(c *fiber.Ctx) error {
	ctx := observability.WithRequestID(c.UserContext(), requestCorrelationID(c))

	report, err := h.tasks.RunNow(ctx, service.TriggerManual)
	if err != nil {
		return toHTTPError(fmt.Errorf("daily run %s failed: %w", report.RunID, err))
	}

	return c.Status(fiber.StatusOK).JSON(runResponse{
		RunID:       report.RunID,
		Trigger:     report.Trigger,
		Date:        report.Date,
		Summary:     report.Summary,
		Affirmation: toAffirmationOfDayResponse(report.Affirmation),
		StartedAt:   report.StartedAt,
		FinishedAt:  report.FinishedAt,
	})
}

func (h *DailyHandler) GetAffirmationOfDay(c *fiber.Ctx) error {
	status := h.tasks.Status()
	return c.Status(fiber.StatusOK).JSON(statusResponse{
		Available:   status.Available,
		Affirmation: toAffirmationOfDayResponse(status.Affirmation),
	})
}

func (h *DailyHandler) ResetAffirmationOfDay(c *fiber.Ctx) error {
	h.tasks.Reset()
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"status": "reset",
	})
}

func (h *DailyHandler) ListDeliveries(c *fiber.Ctx) error {
	params, err := parseDeliveryListParams(c)
	if err != nil {
		return toHTTPError(err)
	}

	records, total, err := h.affirmations.ListDeliveries(c.UserContext(), params)
	if err != nil {
		return toHTTPError(err)
	}

	data := make([]deliveryResponse, 0, len(records))
	for _, r := range records {
		data = append(data, toDeliveryResponse(r))
	}

	return c.Status(fiber.StatusOK).JSON(listDeliveriesResponse{
		Data: data,
		Meta: listMeta{
			Page:     params.Page,
			PageSize: params.PageSize,
			Total:    total,
		},
	})
}

func (h *DailyHandler) RandomAffirmation(c *fiber.Ctx) error {
	if h.cooldown != nil {
		allowed, retryAfter, err := h.cooldown.Acquire(c.UserContext(), clientKey(c))
		if err != nil {
			return toHTTPError(fmt.Errorf("cooldown check failed: %w", err))
		}
		if !allowed {
			c.Set(fiber.HeaderRetryAfter, strconv.Itoa(retryAfterSeconds(retryAfter)))
			return toHTTPError(fmt.Errorf("%w: please wait before requesting another affirmation", domain.ErrRateLimited))
		}
	}

	affirmation, err := h.affirmations.Random(c.UserContext(), c.Query("category", service.CategoryAll))
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(affirmationResponse{
		ID:         affirmation.ID,
		Text:       affirmation.Text,
		Categories: affirmation.CategoryNames(),
	})
}

// retryAfterSeconds rounds up so clients never retry while still blocked.
func retryAfterSeconds(d time.Duration) int {
	return max(int((d+time.Second-1)/time.Second), 1)
}

func parseDeliveryListParams(c *fiber.Ctx) (repository.DeliveryListParams, error) {
	params := repository.DeliveryListParams{
		Page:     c.QueryInt("page", defaultPage),
		PageSize: c.QueryInt("pageSize", defaultPageSize),
	}

	if params.Page < 1 {
		return repository.DeliveryListParams{}, fmt.Errorf("%w: page must be >= 1", domain.ErrValidation)
	}
	if params.PageSize < 1 || params.PageSize > maxPageSize {
		return repository.DeliveryListParams{}, fmt.Errorf("%w: pageSize must be between 1 and %d", domain.ErrValidation, maxPageSize)
	}

	if raw := strings.TrimSpace(c.Query("userId")); raw != "" {
		userID, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return repository.DeliveryListParams{}, fmt.Errorf("%w: userId must be an integer", domain.ErrValidation)
		}
		params.UserID = &userID
	}

	if raw := strings.TrimSpace(c.Query("date")); raw != "" {
		date, err := time.Parse(time.DateOnly, raw)
		if err != nil {
			return repository.DeliveryListParams{}, fmt.Errorf("%w: date must be YYYY-MM-DD", domain.ErrValidation)
		}
		params.SentOn = &date
	}

	if raw := strings.TrimSpace(c.Query("success")); raw != "" {
		success, err := strconv.ParseBool(raw)
		if err != nil {
			return repository.DeliveryListParams{}, fmt.Errorf("%w: success must be true or false", domain.ErrValidation)
		}
		params.Success = &success
	}

	return params, nil
}

// clientKey identifies the caller for the random endpoint cooldown.
func clientKey(c *fiber.Ctx) string {
	if userID := strings.TrimSpace(c.Get(userIDHeader)); userID != "" {
		return "user:" + userID
	}
	return "ip:" + c.IP()
}

func requestCorrelationID(c *fiber.Ctx) string {
	if value := strings.TrimSpace(c.Get(fiber.HeaderXRequestID)); value != "" {
		return value
	}
	if value, ok := c.Locals("requestid").(string); ok {
		return strings.TrimSpace(value)
	}
	return ""
}

func toAffirmationOfDayResponse(a *domain.AffirmationOfDay) *affirmationOfDayResponse {
	if a == nil {
		return nil
	}
	return &affirmationOfDayResponse{
		ID:            a.ID,
		Text:          a.Text,
		Category:      a.CategoryName,
		EffectiveDate: a.EffectiveDate.Format(time.DateOnly),
	}
}

func toDeliveryResponse(r domain.DeliveryRecord) deliveryResponse {
	return deliveryResponse{
		ID:            r.ID,
		UserID:        r.UserID,
		AffirmationID: r.AffirmationID,
		SentOn:        r.SentOn.Format(time.DateOnly),
		SentAt:        r.SentAt,
		Success:       r.Success,
		State:         r.State().String(),
		ErrorMessage:  r.ErrorMessage,
	}
}

func toHTTPError(err error) error {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrNotFound):
		return fiber.NewError(fiber.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrConflict):
		return fiber.NewError(fiber.StatusConflict, err.Error())
	case errors.Is(err, domain.ErrRateLimited):
		return fiber.NewError(fiber.StatusTooManyRequests, err.Error())
	default:
		return err
	}
}
