package service

import (
	"context"
	"sync"
	"time"

	"github.com/kursadbilgin/dailydose/internal/domain"
	"github.com/kursadbilgin/dailydose/internal/provider"
	"github.com/kursadbilgin/dailydose/internal/repository"
)

type fakeUserRepo struct {
	listEmailOptedInFn func(ctx context.Context) ([]domain.User, error)
}

func (f *fakeUserRepo) ListEmailOptedIn(ctx context.Context) ([]domain.User, error) {
	if f.listEmailOptedInFn != nil {
		return f.listEmailOptedInFn(ctx)
	}
	return nil, nil
}

// optedIn mirrors the store-side filter on is_email_opt_in.
func optedIn(all ...domain.User) *fakeUserRepo {
	return &fakeUserRepo{
		listEmailOptedInFn: func(ctx context.Context) ([]domain.User, error) {
			users := make([]domain.User, 0, len(all))
			for _, u := range all {
				if u.EmailOptIn {
					users = append(users, u)
				}
			}
			return users, nil
		},
	}
}

type fakeAffirmationRepo struct {
	mu                  sync.Mutex
	randomCalls         int
	randomFn            func(ctx context.Context) (*domain.Affirmation, error)
	randomInCategoryFn  func(ctx context.Context, categoryID int64) (*domain.Affirmation, error)
	firstCategoryNameFn func(ctx context.Context, affirmationID int64) (string, error)
}

func (f *fakeAffirmationRepo) Random(ctx context.Context) (*domain.Affirmation, error) {
	f.mu.Lock()
	f.randomCalls++
	f.mu.Unlock()
	if f.randomFn != nil {
		return f.randomFn(ctx)
	}
	return nil, nil
}

func (f *fakeAffirmationRepo) RandomInCategory(ctx context.Context, categoryID int64) (*domain.Affirmation, error) {
	if f.randomInCategoryFn != nil {
		return f.randomInCategoryFn(ctx, categoryID)
	}
	return nil, nil
}

func (f *fakeAffirmationRepo) FirstCategoryName(ctx context.Context, affirmationID int64) (string, error) {
	if f.firstCategoryNameFn != nil {
		return f.firstCategoryNameFn(ctx, affirmationID)
	}
	return "", domain.ErrNotFound
}

func (f *fakeAffirmationRepo) RandomCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.randomCalls
}

// singleAffirmationRepo is a store holding exactly one affirmation.
func singleAffirmationRepo(id int64, text string, category string) *fakeAffirmationRepo {
	return &fakeAffirmationRepo{
		randomFn: func(ctx context.Context) (*domain.Affirmation, error) {
			return &domain.Affirmation{ID: id, Text: text}, nil
		},
		firstCategoryNameFn: func(ctx context.Context, affirmationID int64) (string, error) {
			if category == "" {
				return "", domain.ErrNotFound
			}
			return category, nil
		},
	}
}

// memoryDeliveryRepo enforces one successful row per user and date, like the
// partial unique index on daily_mail_history.
type memoryDeliveryRepo struct {
	mu      sync.Mutex
	records map[string]*domain.DeliveryRecord
	order   []string

	hasSuccessfulFn func(ctx context.Context, userID int64, sentOn time.Time) (bool, error)
	createFn        func(ctx context.Context, r *domain.DeliveryRecord) error
	markDeliveredFn func(ctx context.Context, id string) error
}

func newMemoryDeliveryRepo() *memoryDeliveryRepo {
	return &memoryDeliveryRepo{records: make(map[string]*domain.DeliveryRecord)}
}

func (m *memoryDeliveryRepo) HasSuccessfulDelivery(ctx context.Context, userID int64, sentOn time.Time) (bool, error) {
	if m.hasSuccessfulFn != nil {
		return m.hasSuccessfulFn(ctx, userID, sentOn)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.records {
		if r.UserID == userID && r.Success && domain.SameDate(r.SentOn, sentOn) {
			return true, nil
		}
	}
	return false, nil
}

func (m *memoryDeliveryRepo) Create(ctx context.Context, r *domain.DeliveryRecord) error {
	if m.createFn != nil {
		if err := m.createFn(ctx, r); err != nil {
			return err
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	stored := *r
	m.records[r.ID] = &stored
	m.order = append(m.order, r.ID)
	return nil
}

func (m *memoryDeliveryRepo) MarkDelivered(ctx context.Context, id string) error {
	if m.markDeliveredFn != nil {
		if err := m.markDeliveredFn(ctx, id); err != nil {
			return err
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[id]
	if !ok {
		return domain.ErrNotFound
	}
	for _, other := range m.records {
		if other.ID != id && other.Success && other.UserID == rec.UserID && domain.SameDate(other.SentOn, rec.SentOn) {
			return repository.ErrDuplicateDelivery
		}
	}
	rec.Success = true
	rec.ErrorMessage = nil
	return nil
}

func (m *memoryDeliveryRepo) MarkFailed(ctx context.Context, id string, errorMessage string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[id]
	if !ok || rec.Success {
		return domain.ErrNotFound
	}
	msg := errorMessage
	rec.ErrorMessage = &msg
	return nil
}

func (m *memoryDeliveryRepo) List(ctx context.Context, params repository.DeliveryListParams) ([]domain.DeliveryRecord, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]domain.DeliveryRecord, 0, len(m.order))
	for _, id := range m.order {
		r := m.records[id]
		if params.UserID != nil && r.UserID != *params.UserID {
			continue
		}
		if params.Success != nil && r.Success != *params.Success {
			continue
		}
		out = append(out, *r)
	}
	return out, int64(len(out)), nil
}

func (m *memoryDeliveryRepo) all() []domain.DeliveryRecord {
	records, _, _ := m.List(context.Background(), repository.DeliveryListParams{})
	return records
}

type fakeMailer struct {
	mu     sync.Mutex
	sent   []domain.Email
	sendFn func(ctx context.Context, email domain.Email) (*provider.SendResponse, error)
}

func (f *fakeMailer) Send(ctx context.Context, email domain.Email) (*provider.SendResponse, error) {
	f.mu.Lock()
	f.sent = append(f.sent, email)
	f.mu.Unlock()

	if f.sendFn != nil {
		return f.sendFn(ctx, email)
	}
	return &provider.SendResponse{MessageID: "msg-" + email.To}, nil
}

func (f *fakeMailer) Sent() []domain.Email {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.Email(nil), f.sent...)
}

type fakeRateLimiter struct {
	allowFn func(ctx context.Context, key string) (bool, error)
	waitFn  func(ctx context.Context, key string) error
}

func (f *fakeRateLimiter) Allow(ctx context.Context, key string) (bool, error) {
	if f.allowFn != nil {
		return f.allowFn(ctx, key)
	}
	return true, nil
}

func (f *fakeRateLimiter) Wait(ctx context.Context, key string) error {
	if f.waitFn != nil {
		return f.waitFn(ctx, key)
	}
	return nil
}
