// Package services contains server-side business logic. This file implements
// SessionManager, which runs the login, refresh and logout state machine of
// server-stored refresh tokens and resolves the caller from an access token.
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
)

// refreshTokenBytes is the entropy of a refresh token; the string is twice as long.
const refreshTokenBytes = 32

// TokenPair bundles a short-lived access token and a long-lived refresh token.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
}

// Credentials are the access tokens presented with a request. Cookie wins
// over Bearer when both are set.
type Credentials struct {
	Cookie string
	Bearer string
}

func (c Credentials) token() string {
	if c.Cookie != "" {
		return c.Cookie
	}
	return c.Bearer
}

// SessionManager owns the refresh token lifecycle: login, rotation, logout
// and resolving the caller of a request from its access token.
type SessionManager struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	codec       *auth.Codec
	passwords   *auth.PasswordHasher
	clock       timex.Clock
	refreshTTL  time.Duration
	log         logging.Logger
}

// NewSessionManager issues refresh tokens valid for
// cfg.RefreshTokenValidityDuration.
func NewSessionManager(db *sql.DB, m repomanager.RepositoryManager, codec *auth.Codec,
	passwords *auth.PasswordHasher, clock timex.Clock, cfg *config.Config, log logging.Logger) *SessionManager {
	return &SessionManager{
		db:          db,
		repomanager: m,
		codec:       codec,
		passwords:   passwords,
		clock:       clock,
		refreshTTL:  cfg.RefreshTokenValidityDuration,
		log:         log.With("module", "sessions"),
	}
}

// RefreshTTL is the lifetime of issued refresh tokens.
func (s *SessionManager) RefreshTTL() time.Duration { return s.refreshTTL }

// Login checks the password and opens a new session. Unknown email and wrong
// password both yield ErrInvalidCredentials; a correct password on an
// unverified account yields ErrEmailNotVerified.
func (s *SessionManager) Login(ctx context.Context, email, password string) (*TokenPair, error) {
	log := s.log.With("email", common.MaskEmail(email))

	user, err := s.repomanager.Users(s.db).GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			s.passwords.CompareMissing(password)
			log.Info(ctx, "login failed: unknown email")
			return nil, common.ErrInvalidCredentials
		}
		log.Error(ctx, "login: user lookup failed", "error", err)
		return nil, common.ErrorInternal
	}

	ok, err := s.passwords.Check(user.HashedPassword, password)
	if err != nil {
		log.Error(ctx, "login: stored hash unusable", "user_id", user.ID, "error", err)
		return nil, common.ErrorInternal
	}
	if !ok {
		log.Info(ctx, "login failed: wrong password", "user_id", user.ID)
		return nil, common.ErrInvalidCredentials
	}
	if !user.IsVerified {
		log.Info(ctx, "login refused: email not verified", "user_id", user.ID)
		return nil, common.ErrEmailNotVerified
	}

	pair, err := s.issuePair(ctx, s.db, user.ID, s.clock.Now())
	if err != nil {
		log.Error(ctx, "login: issuing tokens failed", "user_id", user.ID, "error", err)
		return nil, common.ErrorInternal
	}
	log.Info(ctx, "login succeeded", "user_id", user.ID, "refresh_token", common.MaskToken(pair.RefreshToken))
	return pair, nil
}

// Refresh rotates a refresh token: the presented token is revoked and a new
// pair is issued in the same transaction. The revoke is a compare-and-set, so
// of several concurrent calls with one token at most one succeeds.
func (s *SessionManager) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	log := s.log.With("refresh_token", common.MaskToken(refreshToken))
	if refreshToken == "" {
		return nil, common.ErrInvalidOrExpiredToken
	}

	now := s.clock.Now()
	var (
		pair   *TokenPair
		userID int64
	)
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		var err error
		userID, err = s.repomanager.RefreshTokens(tx).Revoke(ctx, refreshToken, now)
		if err != nil {
			return err
		}
		pair, err = s.issuePair(ctx, tx, userID, now)
		return err
	})
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			log.Info(ctx, "refresh refused: token unknown, revoked or expired")
			return nil, common.ErrInvalidOrExpiredToken
		}
		log.Error(ctx, "refresh failed", "user_id", userID, "error", err)
		return nil, common.ErrorInternal
	}

	log.Info(ctx, "refresh token rotated", "user_id", userID, "new_refresh_token", common.MaskToken(pair.RefreshToken))
	return pair, nil
}

// Logout revokes the token when it is still usable. It never fails: a
// missing, unknown or already revoked token and even a storage error all end
// with the client discarding its credentials.
func (s *SessionManager) Logout(ctx context.Context, refreshToken string) {
	if refreshToken == "" {
		s.log.Info(ctx, "logout without refresh token")
		return
	}
	log := s.log.With("refresh_token", common.MaskToken(refreshToken))

	userID, err := s.repomanager.RefreshTokens(s.db).Revoke(ctx, refreshToken, s.clock.Now())
	switch {
	case err == nil:
		log.Info(ctx, "logout: refresh token revoked", "user_id", userID)
	case errors.Is(err, common.ErrorNotFound):
		log.Info(ctx, "logout: token already unusable")
	default:
		log.Error(ctx, "logout: revoke failed", "error", err)
	}
}

// ResolveCurrentUser maps an access token to its user. An absent or invalid
// token and a user that no longer exists all yield ErrUnauthenticated.
func (s *SessionManager) ResolveCurrentUser(ctx context.Context, creds Credentials) (*models.User, error) {
	token := creds.token()
	if token == "" {
		return nil, common.ErrUnauthenticated
	}

	userID, err := s.codec.DecodeAccessToken(ctx, token)
	if err != nil {
		return nil, common.ErrUnauthenticated
	}

	user, err := s.repomanager.Users(s.db).GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			s.log.Warn(ctx, "access token names a missing user", "user_id", userID)
			return nil, common.ErrUnauthenticated
		}
		s.log.Error(ctx, "resolve user: lookup failed", "user_id", userID, "error", err)
		return nil, common.ErrorInternal
	}
	return user, nil
}

// RevokeAllForUser revokes every outstanding refresh token of userID using
// db, which may be a transaction of the caller.
func (s *SessionManager) RevokeAllForUser(ctx context.Context, db dbx.DBTX, userID int64) (int64, error) {
	n, err := s.repomanager.RefreshTokens(db).RevokeAllForUser(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("revoke sessions of user %d: %w", userID, err)
	}
	s.log.Info(ctx, "all refresh tokens revoked", "user_id", userID, "count", n)
	return n, nil
}

func (s *SessionManager) issuePair(ctx context.Context, db dbx.DBTX, userID int64, now time.Time) (*TokenPair, error) {
	access, err := s.codec.IssueAccessToken(ctx, userID)
	if err != nil {
		return nil, err
	}
	refresh, err := common.MakeRandHexString(refreshTokenBytes)
	if err != nil {
		return nil, fmt.Errorf("generate refresh token: %w", err)
	}
	if err := s.repomanager.RefreshTokens(db).Create(ctx, userID, refresh, now.Add(s.refreshTTL)); err != nil {
		return nil, fmt.Errorf("store refresh token: %w", err)
	}
	return &TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}
