// Package users declares the storage contract for user accounts together
// with their inline verification and password-reset tokens.
package users

import (
	"context"
	"time"

	"github.com/dmitrijs2005/inkpost/internal/server/models"
)

// Repository persists users. Lookups that match nothing return
// common.ErrorNotFound; a duplicate email on Create returns
// common.ErrorAlreadyExists.
type Repository interface {
	Create(ctx context.Context, user *models.User) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	GetByID(ctx context.Context, id int64) (*models.User, error)

	// SetVerificationToken replaces any outstanding verification token.
	SetVerificationToken(ctx context.Context, userID int64, token string, expires, now time.Time) error

	// RedeemVerificationToken marks the owner verified and clears the token
	// in one statement. Only tokens with expires > now match.
	RedeemVerificationToken(ctx context.Context, token string, now time.Time) (*models.User, error)

	// SetResetToken replaces any outstanding password reset token.
	SetResetToken(ctx context.Context, userID int64, token string, expires, now time.Time) error

	// RedeemResetToken stores hashedPassword and clears the reset token in
	// one statement. Only tokens with expires > now match.
	RedeemResetToken(ctx context.Context, token, hashedPassword string, now time.Time) (*models.User, error)
}
