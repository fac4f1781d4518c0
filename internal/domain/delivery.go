package domain

import (
	"fmt"
	"strings"
	"time"
)

const DailyEmailSubject = "Your Daily Affirmation"

// DeliveryState is the per-user, per-day lifecycle of a daily email.
type DeliveryState string

const (
	DeliveryStateAttempting DeliveryState = "ATTEMPTING"
	DeliveryStateSent       DeliveryState = "SENT"
	DeliveryStateFailed     DeliveryState = "FAILED"
)

func (s DeliveryState) String() string { return string(s) }

// DeliveryRecord is the audit row for one send attempt to one user for one day.
type DeliveryRecord struct {
	ID            string
	UserID        int64
	AffirmationID int64
	SentOn        time.Time
	SentAt        time.Time
	Success       bool
	ErrorMessage  *string
}

// State derives the lifecycle state from the persisted columns.
func (r DeliveryRecord) State() DeliveryState {
	switch {
	case r.Success:
		return DeliveryStateSent
	case r.ErrorMessage != nil:
		return DeliveryStateFailed
	default:
		return DeliveryStateAttempting
	}
}

// RunSummary aggregates the outcome of one dispatcher run.
type RunSummary struct {
	Attempted          int `json:"attempted"`
	Sent               int `json:"sent"`
	SkippedAlreadySent int `json:"skippedAlreadySent"`
	Failed             int `json:"failed"`
}

// Add merges another summary into s.
func (s *RunSummary) Add(other RunSummary) {
	s.Attempted += other.Attempted
	s.Sent += other.Sent
	s.SkippedAlreadySent += other.SkippedAlreadySent
	s.Failed += other.Failed
}

// Email is a single outbound plain-text message. IdempotencyKey, when set,
// identifies the delivery so a transport can drop replays of the same send.
type Email struct {
	To             string
	Subject        string
	Body           string
	IdempotencyKey string
}

func (e Email) Validate() error {
	if strings.TrimSpace(e.To) == "" {
		return fmt.Errorf("%w: recipient is required", ErrValidation)
	}
	if strings.ContainsAny(e.To, "\r\n") || strings.ContainsAny(e.Subject, "\r\n") || strings.ContainsAny(e.IdempotencyKey, "\r\n") {
		return fmt.Errorf("%w: header fields must not contain line breaks", ErrValidation)
	}
	if strings.TrimSpace(e.Body) == "" {
		return fmt.Errorf("%w: body is required", ErrValidation)
	}
	return nil
}

// NewDailyEmail renders the daily affirmation email for a user.
func NewDailyEmail(user User, affirmation AffirmationOfDay) Email {
	var body strings.Builder
	fmt.Fprintf(&body, "Hello %s,\n\n", user.DisplayName())
	body.WriteString("Your affirmation for today:\n\n")
	body.WriteString(affirmation.Text)
	body.WriteString("\n")
	if affirmation.CategoryName != "" {
		fmt.Fprintf(&body, "(%s)\n", affirmation.CategoryName)
	}
	body.WriteString("\nHave a great day!")

	return Email{
		To:      user.Email,
		Subject: DailyEmailSubject,
		Body:    body.String(),
	}
}
