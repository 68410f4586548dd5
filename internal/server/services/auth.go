package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/mail"
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

const (
	minPasswordLength = 8
	maxPasswordLength = 72 // bcrypt ignores the rest
)

// Notifier delivers the out-of-band tokens of the email flows.
type Notifier interface {
	SendVerification(ctx context.Context, to, token string) error
	SendPasswordReset(ctx context.Context, to, token string) error
}

// AuthService is the contract consumed by request handlers. It validates
// input, delegates to SessionManager and VerificationFlow and sends mail.
type AuthService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	sessions    *SessionManager
	flow        *VerificationFlow
	passwords   *auth.PasswordHasher
	notifier    Notifier
	clock       timex.Clock
	mailTimeout time.Duration
	log         logging.Logger
}

// NewAuthService wires the facade. Each email handed to notifier must be
// accepted within cfg.MailTimeout, since it is sent while the transaction
// that stored its token is still open.
func NewAuthService(db *sql.DB, m repomanager.RepositoryManager, sessions *SessionManager, flow *VerificationFlow,
	passwords *auth.PasswordHasher, notifier Notifier, clock timex.Clock, cfg *config.Config, log logging.Logger) *AuthService {
	return &AuthService{
		db:          db,
		repomanager: m,
		sessions:    sessions,
		flow:        flow,
		passwords:   passwords,
		notifier:    notifier,
		clock:       clock,
		mailTimeout: cfg.MailTimeout,
		log:         log.With("module", "auth"),
	}
}

// Register creates an unverified account and mails its verification link.
// The account is only kept when the mail was accepted.
func (s *AuthService) Register(ctx context.Context, email, password string) (*models.User, error) {
	if err := validateEmail(email); err != nil {
		return nil, err
	}
	if err := validatePassword(password); err != nil {
		return nil, err
	}
	log := s.log.With("email", common.MaskEmail(email))

	hash, err := s.passwords.Hash(password)
	if err != nil {
		log.Error(ctx, "register: hashing failed", "error", err)
		return nil, common.ErrorInternal
	}

	var user *models.User
	err = dbx.WithTx(ctx, s.db, nil, func(txCtx context.Context, tx dbx.DBTX) error {
		var err error
		user, err = s.repomanager.Users(tx).Create(txCtx, &models.User{
			Email:          email,
			HashedPassword: hash,
			CreatedAt:      s.clock.Now(),
		})
		if err != nil {
			return err
		}
		token, err := s.flow.RequestVerification(txCtx, tx, user)
		if err != nil {
			return err
		}
		return s.deliver(txCtx, ctx, s.notifier.SendVerification, email, token)
	})
	if err != nil {
		switch {
		case errors.Is(err, common.ErrorAlreadyExists):
			log.Info(ctx, "register refused: email already registered")
			return nil, common.ErrEmailAlreadyRegistered
		case errors.Is(err, common.ErrDeliveryFailed):
			return nil, common.ErrDeliveryFailed
		}
		log.Error(ctx, "register failed", "error", err)
		return nil, common.ErrorInternal
	}

	log.Info(ctx, "user registered", "user_id", user.ID)
	return user, nil
}

// ResendVerification replaces the outstanding verification token of an
// unverified account and mails it. Verified accounts are left alone.
func (s *AuthService) ResendVerification(ctx context.Context, email string) error {
	return s.mailToken(ctx, email, "verification", func(txCtx context.Context, tx dbx.DBTX, user *models.User) error {
		if user.IsVerified {
			return nil
		}
		token, err := s.flow.RequestVerification(txCtx, tx, user)
		if err != nil {
			return err
		}
		return s.deliver(txCtx, ctx, s.notifier.SendVerification, user.Email, token)
	})
}

// ForgotPassword issues a reset token and mails it. An unknown email yields
// ErrEmailNotFound.
func (s *AuthService) ForgotPassword(ctx context.Context, email string) error {
	return s.mailToken(ctx, email, "password reset", func(txCtx context.Context, tx dbx.DBTX, user *models.User) error {
		token, err := s.flow.RequestPasswordReset(txCtx, tx, user)
		if err != nil {
			return err
		}
		return s.deliver(txCtx, ctx, s.notifier.SendPasswordReset, user.Email, token)
	})
}

func (s *AuthService) VerifyEmail(ctx context.Context, token string) (*models.User, error) {
	return s.flow.RedeemVerification(ctx, token)
}

func (s *AuthService) ResetPassword(ctx context.Context, token, newPassword string) error {
	if err := validatePassword(newPassword); err != nil {
		return err
	}
	_, err := s.flow.RedeemPasswordReset(ctx, token, newPassword)
	return err
}

func (s *AuthService) Login(ctx context.Context, email, password string) (*TokenPair, error) {
	return s.sessions.Login(ctx, email, password)
}

func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	return s.sessions.Refresh(ctx, refreshToken)
}

func (s *AuthService) Logout(ctx context.Context, refreshToken string) {
	s.sessions.Logout(ctx, refreshToken)
}

func (s *AuthService) CurrentUser(ctx context.Context, creds Credentials) (*models.User, error) {
	return s.sessions.ResolveCurrentUser(ctx, creds)
}

type tokenMailer func(ctx context.Context, tx dbx.DBTX, user *models.User) error

// mailToken looks up the account by email and runs issue in a transaction
// that is rolled back when the mail is not accepted.
func (s *AuthService) mailToken(ctx context.Context, email, what string, issue tokenMailer) error {
	if err := validateEmail(email); err != nil {
		return err
	}
	log := s.log.With("email", common.MaskEmail(email))

	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		user, err := s.repomanager.Users(tx).GetByEmail(ctx, email)
		if err != nil {
			return err
		}
		return issue(ctx, tx, user)
	})
	if err != nil {
		switch {
		case errors.Is(err, common.ErrorNotFound):
			log.Info(ctx, what+" requested for unknown email")
			return common.ErrEmailNotFound
		case errors.Is(err, common.ErrDeliveryFailed):
			return common.ErrDeliveryFailed
		}
		log.Error(ctx, what+" request failed", "error", err)
		return common.ErrorInternal
	}
	return nil
}

// deliver sends one email from inside a transaction. txCtx never expires on
// its own, so the send is bounded by mailTimeout and aborted when the
// caller's ctx is done; either way the transaction rolls back.
func (s *AuthService) deliver(txCtx, caller context.Context, send func(ctx context.Context, to, token string) error, to, token string) error {
	ctx, cancel := context.WithTimeout(txCtx, s.mailTimeout)
	defer cancel()
	stop := context.AfterFunc(caller, cancel)
	defer stop()

	if err := send(ctx, to, token); err != nil {
		s.log.Error(ctx, "email delivery failed", "email", common.MaskEmail(to), "error", err)
		return fmt.Errorf("%w: %v", common.ErrDeliveryFailed, err)
	}
	return nil
}

func validateEmail(email string) error {
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return common.NewValidationError("invalid email address")
	}
	return nil
}

func validatePassword(password string) error {
	switch {
	case len(password) < minPasswordLength:
		return common.NewValidationError(fmt.Sprintf("password must be at least %d characters", minPasswordLength))
	case len(password) > maxPasswordLength:
		return common.NewValidationError(fmt.Sprintf("password must be at most %d bytes", maxPasswordLength))
	}
	return nil
}
