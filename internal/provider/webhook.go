package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/mail"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/kursadbilgin/dailydose/internal/domain"
)

const (
	defaultWebhookTimeout = 10 * time.Second
	idempotencyKeyHeader  = "Idempotency-Key"
	mailTag               = "daily-affirmation"
)

type WebhookConfig struct {
	Endpoint string
	// Token is sent as a bearer credential when set.
	Token    string
	From     string
	FromName string
}

type webhookAddress struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

type webhookRequest struct {
	From    *webhookAddress  `json:"from,omitempty"`
	To      []webhookAddress `json:"to"`
	Subject string           `json:"subject"`
	Text    string           `json:"text"`
	Tags    []string         `json:"tags,omitempty"`
}

// webhookAccepted covers the id field names common mail APIs reply with.
type webhookAccepted struct {
	ID        string `json:"id"`
	MessageID string `json:"messageId"`
}

type webhookFailure struct {
	Message string `json:"message"`
	Error   struct {
		Message string `json:"message"`
	} `json:"error"`
}

// WebhookMailer delivers email through an HTTP mail API that accepts a JSON envelope.
type WebhookMailer struct {
	client   *resty.Client
	endpoint string
	token    string
	from     *webhookAddress
}

func NewWebhookMailer(cfg WebhookConfig) (*WebhookMailer, error) {
	client := resty.New()
	client.SetTimeout(defaultWebhookTimeout)
	client.SetRetryCount(0)

	return NewWebhookMailerWithClient(cfg, client)
}

func NewWebhookMailerWithClient(cfg WebhookConfig, client *resty.Client) (*WebhookMailer, error) {
	trimmedEndpoint := strings.TrimSpace(cfg.Endpoint)
	if trimmedEndpoint == "" {
		return nil, fmt.Errorf("mail webhook endpoint is required")
	}
	if _, err := url.ParseRequestURI(trimmedEndpoint); err != nil {
		return nil, fmt.Errorf("invalid mail webhook endpoint: %w", err)
	}
	if client == nil {
		return nil, fmt.Errorf("resty client is required")
	}

	var from *webhookAddress
	if raw := strings.TrimSpace(cfg.From); raw != "" {
		addr, err := mail.ParseAddress(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid sender address: %w", err)
		}
		from = &webhookAddress{Email: addr.Address, Name: addr.Name}
		if name := strings.TrimSpace(cfg.FromName); name != "" {
			from.Name = name
		}
	}

	if client.GetClient().Timeout == 0 {
		client.SetTimeout(defaultWebhookTimeout)
	}
	client.SetRetryCount(0)

	return &WebhookMailer{
		client:   client,
		endpoint: trimmedEndpoint,
		token:    strings.TrimSpace(cfg.Token),
		from:     from,
	}, nil
}

func (p *WebhookMailer) Send(ctx context.Context, email domain.Email) (*SendResponse, error) {
	if p == nil || p.client == nil {
		return nil, fmt.Errorf("mailer is not initialized")
	}
	if err := email.Validate(); err != nil {
		return nil, &ProviderError{Message: "invalid email", Cause: err}
	}

	req := p.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(webhookRequest{
			From:    p.from,
			To:      []webhookAddress{{Email: email.To}},
			Subject: email.Subject,
			Text:    email.Body,
			Tags:    []string{mailTag},
		}).
		SetResult(&webhookAccepted{}).
		SetError(&webhookFailure{})
	if p.token != "" {
		req.SetAuthToken(p.token)
	}
	if email.IdempotencyKey != "" {
		req.SetHeader(idempotencyKeyHeader, email.IdempotencyKey)
	}

	response, err := req.Post(p.endpoint)
	if err != nil {
		return nil, &ProviderError{
			Message:   "mail api request failed",
			Transient: !errors.Is(err, context.Canceled),
			Cause:     err,
		}
	}
	if response == nil {
		return nil, &ProviderError{
			Message:   "mail api returned empty response",
			Transient: true,
		}
	}

	statusCode := response.StatusCode()
	if statusCode >= http.StatusOK && statusCode < http.StatusMultipleChoices {
		return &SendResponse{
			StatusCode: statusCode,
			Body:       strings.TrimSpace(response.String()),
			MessageID:  acceptedMessageID(response),
		}, nil
	}

	return nil, &ProviderError{
		StatusCode: statusCode,
		Message:    failureMessage(response),
		Transient:  isTransientHTTPStatus(statusCode),
	}
}

func isTransientHTTPStatus(statusCode int) bool {
	return statusCode == http.StatusTooManyRequests || (statusCode >= http.StatusInternalServerError && statusCode <= 599)
}

// acceptedMessageID prefers the id in the JSON reply and falls back to headers.
func acceptedMessageID(response *resty.Response) string {
	if accepted, ok := response.Result().(*webhookAccepted); ok && accepted != nil {
		if id := strings.TrimSpace(accepted.ID); id != "" {
			return id
		}
		if id := strings.TrimSpace(accepted.MessageID); id != "" {
			return id
		}
	}

	for _, key := range []string{"X-Message-ID", "X-Request-ID"} {
		if value := strings.TrimSpace(response.Header().Get(key)); value != "" {
			return value
		}
	}

	return ""
}

func failureMessage(response *resty.Response) string {
	msg := fmt.Sprintf("mail api returned status %d", response.StatusCode())

	detail := ""
	if failure, ok := response.Error().(*webhookFailure); ok && failure != nil {
		detail = strings.TrimSpace(failure.Error.Message)
		if detail == "" {
			detail = strings.TrimSpace(failure.Message)
		}
	}
	if detail == "" {
		detail = strings.TrimSpace(response.String())
	}
	if detail != "" {
		msg = fmt.Sprintf("%s: %s", msg, detail)
	}

	if retryAfter := strings.TrimSpace(response.Header().Get("Retry-After")); retryAfter != "" {
		if seconds, err := strconv.Atoi(retryAfter); err == nil && seconds > 0 {
			msg = fmt.Sprintf("%s (retry after %ds)", msg, seconds)
		}
	}

	return msg
}
