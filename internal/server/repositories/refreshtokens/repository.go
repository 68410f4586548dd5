// Package refreshtokens declares the server-side repository contract for
// managing refresh tokens in persistent storage.
package refreshtokens

import (
	"context"
	"time"
)

// Repository defines operations for issuing and revoking refresh tokens.
type Repository interface {
	// Create stores a new, non-revoked refresh token for userID.
	// A token string that already exists yields common.ErrorAlreadyExists.
	Create(ctx context.Context, userID int64, token string, expiresAt time.Time) error

	// Revoke flips a usable token (not revoked, expires_at > now) to revoked and
	// returns its owner. A token that is unknown, expired or already revoked
	// yields common.ErrorNotFound, so of two concurrent calls at most one wins.
	Revoke(ctx context.Context, token string, now time.Time) (int64, error)

	// RevokeAllForUser revokes every outstanding token of userID and returns
	// how many rows changed.
	RevokeAllForUser(ctx context.Context, userID int64) (int64, error)
}
