package refreshtokens

import (
	"context"
	"time"

	"github.com/dmitrijs2005/gophauth/internal/server/models"
)

// Repository persists refresh token records. Only the token digest is stored.
// FindByHash and MostRecentForUser return common.ErrorNotFound when nothing
// matches.
type Repository interface {
	Create(ctx context.Context, userID, tokenHash string, expiresAt time.Time) (*models.RefreshToken, error)
	// FindByHash loads the record for tokenHash. With forUpdate the row stays
	// locked until the surrounding transaction ends.
	FindByHash(ctx context.Context, tokenHash string, forUpdate bool) (*models.RefreshToken, error)
	// Revoke marks the record revoked. Revoking twice is not an error.
	Revoke(ctx context.Context, id string) error
	// RevokeAllForUser revokes every unrevoked record of the user and reports
	// how many changed.
	RevokeAllForUser(ctx context.Context, userID string) (int64, error)
	MostRecentForUser(ctx context.Context, userID string) (*models.RefreshToken, error)
}
