package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/inkpost/internal/common"
	"github.com/dmitrijs2005/inkpost/internal/dbx"
	"github.com/dmitrijs2005/inkpost/internal/logging"
	"github.com/dmitrijs2005/inkpost/internal/server/auth"
	"github.com/dmitrijs2005/inkpost/internal/server/config"
	"github.com/dmitrijs2005/inkpost/internal/server/models"
	"github.com/dmitrijs2005/inkpost/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/inkpost/internal/timex"
	"github.com/google/uuid"
)

// VerificationFlow manages the single-use email verification and password
// reset tokens stored on the user row. Issuing a token overwrites the
// previous one; redeeming clears it in the same statement that matches it.
type VerificationFlow struct {
	db              *sql.DB
	repomanager     repomanager.RepositoryManager
	sessions        *SessionManager
	passwords       *auth.PasswordHasher
	clock           timex.Clock
	verificationTTL time.Duration
	resetTTL        time.Duration
	log             logging.Logger
}

// NewVerificationFlow reads the token lifetimes from cfg.
func NewVerificationFlow(db *sql.DB, m repomanager.RepositoryManager, sessions *SessionManager,
	passwords *auth.PasswordHasher, clock timex.Clock, cfg *config.Config, log logging.Logger) *VerificationFlow {
	return &VerificationFlow{
		db:              db,
		repomanager:     m,
		sessions:        sessions,
		passwords:       passwords,
		clock:           clock,
		verificationTTL: cfg.VerificationTokenValidityDuration,
		resetTTL:        cfg.ResetTokenValidityDuration,
		log:             log.With("module", "verification"),
	}
}

// RequestVerification issues a new verification token for user through db.
func (f *VerificationFlow) RequestVerification(ctx context.Context, db dbx.DBTX, user *models.User) (string, error) {
	now := f.clock.Now()
	token := uuid.NewString()
	expires := now.Add(f.verificationTTL)

	if err := f.repomanager.Users(db).SetVerificationToken(ctx, user.ID, token, expires, now); err != nil {
		return "", fmt.Errorf("store verification token: %w", err)
	}
	user.VerificationToken, user.VerificationTokenExpires, user.UpdatedAt = &token, &expires, now

	f.log.Info(ctx, "verification token issued", "user_id", user.ID, "token", common.MaskToken(token))
	return token, nil
}

// RedeemVerification marks the token's owner verified. Unknown, expired and
// already redeemed tokens all yield ErrInvalidOrExpiredToken.
func (f *VerificationFlow) RedeemVerification(ctx context.Context, token string) (*models.User, error) {
	log := f.log.With("token", common.MaskToken(token))
	if token == "" {
		return nil, common.ErrInvalidOrExpiredToken
	}

	user, err := f.repomanager.Users(f.db).RedeemVerificationToken(ctx, token, f.clock.Now())
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			log.Info(ctx, "verification refused: token unknown or expired")
			return nil, common.ErrInvalidOrExpiredToken
		}
		log.Error(ctx, "verification failed", "error", err)
		return nil, common.ErrorInternal
	}

	log.Info(ctx, "email verified", "user_id", user.ID)
	return user, nil
}

// RequestPasswordReset issues a new reset token for user through db.
func (f *VerificationFlow) RequestPasswordReset(ctx context.Context, db dbx.DBTX, user *models.User) (string, error) {
	now := f.clock.Now()
	token := uuid.NewString()
	expires := now.Add(f.resetTTL)

	if err := f.repomanager.Users(db).SetResetToken(ctx, user.ID, token, expires, now); err != nil {
		return "", fmt.Errorf("store reset token: %w", err)
	}
	user.ResetToken, user.ResetTokenExpires, user.UpdatedAt = &token, &expires, now

	f.log.Info(ctx, "password reset token issued", "user_id", user.ID, "token", common.MaskToken(token))
	return token, nil
}

// RedeemPasswordReset sets a new password and revokes every session of the
// owner in one transaction. Unknown, expired and already redeemed tokens all
// yield ErrInvalidOrExpiredToken.
func (f *VerificationFlow) RedeemPasswordReset(ctx context.Context, token, newPassword string) (*models.User, error) {
	log := f.log.With("token", common.MaskToken(token))
	if token == "" {
		return nil, common.ErrInvalidOrExpiredToken
	}

	hash, err := f.passwords.Hash(newPassword)
	if err != nil {
		log.Error(ctx, "reset: hashing failed", "error", err)
		return nil, common.ErrorInternal
	}

	now := f.clock.Now()
	var user *models.User
	err = dbx.WithTx(ctx, f.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		var err error
		user, err = f.repomanager.Users(tx).RedeemResetToken(ctx, token, hash, now)
		if err != nil {
			return err
		}
		_, err = f.sessions.RevokeAllForUser(ctx, tx, user.ID)
		return err
	})
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			log.Info(ctx, "reset refused: token unknown or expired")
			return nil, common.ErrInvalidOrExpiredToken
		}
		log.Error(ctx, "reset failed", "error", err)
		return nil, common.ErrorInternal
	}

	log.Info(ctx, "password reset", "user_id", user.ID)
	return user, nil
}
