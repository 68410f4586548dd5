package models

import "time"

// User is an account. Token fields are nil unless the corresponding email
// flow is outstanding; a token and its expiry are always set and cleared
// together.
type User struct {
	ID                       int64
	Email                    string
	HashedPassword           string
	IsVerified               bool
	VerificationToken        *string
	VerificationTokenExpires *time.Time
	ResetToken               *string
	ResetTokenExpires        *time.Time
	CreatedAt                time.Time
	UpdatedAt                time.Time
}
