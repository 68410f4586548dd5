package models

import "time"

// RefreshToken is one persisted login session. Revoked only ever goes from
// false to true.
type RefreshToken struct {
	ID        int64
	UserID    int64
	Token     string
	ExpiresAt time.Time
	Revoked   bool
	CreatedAt time.Time
}

// Usable reports whether the token can still be exchanged at now.
// A token expiring exactly at now is already expired.
func (t *RefreshToken) Usable(now time.Time) bool {
	return !t.Revoked && t.ExpiresAt.After(now)
}
