package domain

import "time"

// DefaultCategoryName labels affirmations without a resolvable category.
const DefaultCategoryName = "General"

// Category groups affirmations.
type Category struct {
	ID          int64
	Name        string
	Description string
}

// Affirmation is a short positive statement, optionally tagged with categories.
type Affirmation struct {
	ID         int64
	Text       string
	UserID     int64
	IsAdminSet bool
	Categories []Category
	CreatedAt  time.Time
}

// CategoryNames returns the category names in association order.
func (a Affirmation) CategoryNames() []string {
	names := make([]string, 0, len(a.Categories))
	for _, c := range a.Categories {
		names = append(names, c.Name)
	}
	return names
}

// AffirmationOfDay is the affirmation shared by every user for one calendar date.
// It is never mutated after construction; refreshes replace the whole value.
type AffirmationOfDay struct {
	ID            int64
	Text          string
	CategoryName  string
	EffectiveDate time.Time
}

// IsFor reports whether the value is effective on the calendar date of day.
func (a *AffirmationOfDay) IsFor(day time.Time) bool {
	if a == nil {
		return false
	}
	return SameDate(a.EffectiveDate, day)
}

// DateOf truncates t to midnight in t's own location.
func DateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// SameDate compares calendar dates, each in its own location.
func SameDate(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}
