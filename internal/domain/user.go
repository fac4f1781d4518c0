package domain

// User is the read-only view of an account the daily mail job needs.
type User struct {
	ID         int64
	Name       string
	Username   string
	Email      string
	EmailOptIn bool
}

// DisplayName falls back to the username when no name is set.
func (u User) DisplayName() string {
	if u.Name != "" {
		return u.Name
	}
	return u.Username
}
