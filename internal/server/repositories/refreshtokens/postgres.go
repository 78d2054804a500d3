// Package refreshtokens provides the PostgreSQL-backed store of refresh token
// records used by session issuance and rotation.
package refreshtokens

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/gophauth/internal/common"
	"github.com/dmitrijs2005/gophauth/internal/dbx"
	"github.com/dmitrijs2005/gophauth/internal/server/models"
	"github.com/google/uuid"
)

// PostgresRepository implements Repository over dbx.DBTX
// (satisfied by *sql.DB or *sql.Tx). Row locks only make sense on a *sql.Tx.
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Create inserts a new unrevoked record and returns it with the generated id.
func (r *PostgresRepository) Create(ctx context.Context, userID, tokenHash string, expiresAt time.Time) (*models.RefreshToken, error) {
	query := `
		INSERT INTO refresh_tokens (user_id, token_hash, expires_at)
		VALUES ($1, $2, $3)
		RETURNING id, revoked, created_at
	`
	rt := &models.RefreshToken{UserID: userID, TokenHash: tokenHash, ExpiresAt: expiresAt}
	if err := r.db.QueryRowContext(ctx, query, userID, tokenHash, expiresAt).
		Scan(&rt.ID, &rt.Revoked, &rt.CreatedAt); err != nil {
		if dbx.IsUniqueViolation(err) {
			return nil, common.ErrAlreadyExists
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return rt, nil
}

const selectColumns = `SELECT id, user_id, token_hash, expires_at, revoked, created_at
		FROM refresh_tokens`

func (r *PostgresRepository) FindByHash(ctx context.Context, tokenHash string, forUpdate bool) (*models.RefreshToken, error) {
	query := selectColumns + `
		WHERE token_hash = $1`
	if forUpdate {
		query += `
		FOR UPDATE`
	}
	return r.scanOne(ctx, query, tokenHash)
}

func (r *PostgresRepository) Revoke(ctx context.Context, id string) error {
	query := `
		UPDATE refresh_tokens SET revoked = true
		WHERE id = $1 AND revoked = false
	`
	if _, err := r.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) RevokeAllForUser(ctx context.Context, userID string) (int64, error) {
	query := `
		UPDATE refresh_tokens SET revoked = true
		WHERE user_id = $1 AND revoked = false
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

// MostRecentForUser returns the newest record of the user, revoked or not.
func (r *PostgresRepository) MostRecentForUser(ctx context.Context, userID string) (*models.RefreshToken, error) {
	if _, err := uuid.Parse(userID); err != nil {
		return nil, common.ErrorNotFound
	}
	query := selectColumns + `
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT 1`
	return r.scanOne(ctx, query, userID)
}

func (r *PostgresRepository) scanOne(ctx context.Context, query string, arg string) (*models.RefreshToken, error) {
	rt := &models.RefreshToken{}
	if err := r.db.QueryRowContext(ctx, query, arg).
		Scan(&rt.ID, &rt.UserID, &rt.TokenHash, &rt.ExpiresAt, &rt.Revoked, &rt.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return rt, nil
}
