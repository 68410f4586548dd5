package users

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/inkpost/internal/common"
	"github.com/dmitrijs2005/inkpost/internal/dbx"
	"github.com/dmitrijs2005/inkpost/internal/server/models"
)

const userColumns = `id, email, hashed_password, is_verified,
		 verification_token, verification_token_expires,
		 reset_token, reset_token_expires,
		 created_at, updated_at`

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func scanUser(row *sql.Row) (*models.User, error) {
	u := &models.User{}
	err := row.Scan(&u.ID, &u.Email, &u.HashedPassword, &u.IsVerified,
		&u.VerificationToken, &u.VerificationTokenExpires,
		&u.ResetToken, &u.ResetTokenExpires,
		&u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return u, nil
}

func (r *PostgresRepository) Create(ctx context.Context, user *models.User) (*models.User, error) {

	query :=
		`INSERT INTO users (email, hashed_password, is_verified, verification_token, verification_token_expires, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $6)
		 RETURNING id
		 `

	err := r.db.QueryRowContext(ctx, query,
		user.Email, user.HashedPassword, user.IsVerified,
		user.VerificationToken, user.VerificationTokenExpires, user.CreatedAt).Scan(&user.ID)

	if err != nil {
		if dbx.IsUniqueViolation(err) {
			return nil, common.ErrorAlreadyExists
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	user.UpdatedAt = user.CreatedAt
	return user, nil
}

func (r *PostgresRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users
		 WHERE email = $1
		 `
	return scanUser(r.db.QueryRowContext(ctx, query, email))
}

func (r *PostgresRepository) GetByID(ctx context.Context, id int64) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users
		 WHERE id = $1
		 `
	return scanUser(r.db.QueryRowContext(ctx, query, id))
}

func (r *PostgresRepository) exec(ctx context.Context, query string, args ...any) error {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if n == 0 {
		return common.ErrorNotFound
	}
	return nil
}

func (r *PostgresRepository) SetVerificationToken(ctx context.Context, userID int64, token string, expires, now time.Time) error {
	query :=
		`UPDATE users SET verification_token = $2, verification_token_expires = $3, updated_at = $4
		 WHERE id = $1
		 `
	return r.exec(ctx, query, userID, token, expires, now)
}

func (r *PostgresRepository) RedeemVerificationToken(ctx context.Context, token string, now time.Time) (*models.User, error) {
	query :=
		`UPDATE users SET is_verified = TRUE, verification_token = NULL, verification_token_expires = NULL, updated_at = $2
		 WHERE verification_token = $1 AND verification_token_expires > $2
		 RETURNING ` + userColumns
	return scanUser(r.db.QueryRowContext(ctx, query, token, now))
}

func (r *PostgresRepository) SetResetToken(ctx context.Context, userID int64, token string, expires, now time.Time) error {
	query :=
		`UPDATE users SET reset_token = $2, reset_token_expires = $3, updated_at = $4
		 WHERE id = $1
		 `
	return r.exec(ctx, query, userID, token, expires, now)
}

func (r *PostgresRepository) RedeemResetToken(ctx context.Context, token, hashedPassword string, now time.Time) (*models.User, error) {
	query :=
		`UPDATE users SET hashed_password = $2, reset_token = NULL, reset_token_expires = NULL, updated_at = $3
		 WHERE reset_token = $1 AND reset_token_expires > $3
		 RETURNING ` + userColumns
	return scanUser(r.db.QueryRowContext(ctx, query, token, hashedPassword, now))
}
