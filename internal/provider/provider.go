package provider

import (
	"context"

	"github.com/kursadbilgin/dailydose/internal/domain"
)

// Mailer is the outbound email delivery port.
type Mailer interface {
	Send(ctx context.Context, email domain.Email) (*SendResponse, error)
}

// SendResponse stores transport metadata for audit and logging.
type SendResponse struct {
	StatusCode int
	Body       string
	MessageID  string
}
