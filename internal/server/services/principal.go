package services

import (
	"context"
	"errors"

	"github.com/dmitrijs2005/gophauth/internal/common"
	"github.com/dmitrijs2005/gophauth/internal/server/auth"
	"github.com/dmitrijs2005/gophauth/internal/server/models"
)

// Resolve returns the principal named by an access token. A token the codec
// rejects (bad signature, expired, refresh type) and a subject with no user
// both fail with common.ErrUnauthorized. Nothing is written.
func (s *AuthService) Resolve(ctx context.Context, accessToken string) (*models.User, error) {
	claims, err := s.codec.Verify(accessToken, auth.TokenTypeAccess)
	if err != nil {
		return nil, common.ErrUnauthorized
	}

	user, err := s.repos.Users().FindByID(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrUnauthorized
		}
		return nil, common.StoreError("find user", err)
	}
	return user, nil
}

// RequireActive fails with common.ErrForbidden for a deactivated account.
func RequireActive(user *models.User) (*models.User, error) {
	if !user.IsActive {
		return nil, common.ErrForbidden
	}
	return user, nil
}

// Authenticate is Resolve followed by RequireActive, the check every
// protected route runs.
func (s *AuthService) Authenticate(ctx context.Context, accessToken string) (*models.User, error) {
	user, err := s.Resolve(ctx, accessToken)
	if err != nil {
		return nil, err
	}
	return RequireActive(user)
}
