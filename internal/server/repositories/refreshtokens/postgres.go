// Package refreshtokens provides a PostgreSQL-backed repository for managing
// refresh tokens used in the server's authentication flow.
package refreshtokens

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/inkpost/internal/common"
	"github.com/dmitrijs2005/inkpost/internal/dbx"
)

// PostgresRepository implements refresh token storage over dbx.DBTX
// (satisfied by *sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Create inserts a new refresh token for userID.
func (r *PostgresRepository) Create(ctx context.Context, userID int64, token string, expiresAt time.Time) error {
	query := `
		INSERT INTO refresh_tokens (user_id, token, expires_at)
		VALUES ($1, $2, $3)
	`
	if _, err := r.db.ExecContext(ctx, query, userID, token, expiresAt); err != nil {
		if dbx.IsUniqueViolation(err) {
			return common.ErrorAlreadyExists
		}
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// Revoke is a compare-and-set on the usable predicate: the row lock taken by
// UPDATE serializes concurrent callers and only the first one sees a match.
func (r *PostgresRepository) Revoke(ctx context.Context, token string, now time.Time) (int64, error) {
	query := `
		UPDATE refresh_tokens SET revoked = TRUE
		WHERE token = $1 AND revoked = FALSE AND expires_at > $2
		RETURNING user_id
	`
	var userID int64
	if err := r.db.QueryRowContext(ctx, query, token, now).Scan(&userID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, common.ErrorNotFound
		}
		return 0, fmt.Errorf("db error: %w", err)
	}
	return userID, nil
}

// RevokeAllForUser revokes every non-revoked token owned by userID.
func (r *PostgresRepository) RevokeAllForUser(ctx context.Context, userID int64) (int64, error) {
	query := `
		UPDATE refresh_tokens SET revoked = TRUE
		WHERE user_id = $1 AND revoked = FALSE
	`
	res, err := r.db.ExecContext(ctx, query, userID)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return n, nil
}
