package services

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/dmitrijs2005/gophauth/internal/common"
	"github.com/dmitrijs2005/gophauth/internal/server/audit"
	"github.com/dmitrijs2005/gophauth/internal/server/repositories/repomanager"
)

// ChangePassword replaces the password of userID after checking the old one
// and revokes every session of the user in the same transaction. Access
// tokens already handed out stay valid until they expire.
func (s *AuthService) ChangePassword(ctx context.Context, userID, oldPassword, newPassword string) error {
	if oldPassword == "" {
		return common.NewValidationError("old_password", "is required")
	}
	if err := s.validatePassword("new_password", newPassword); err != nil {
		return err
	}

	user, err := s.repos.Users().FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return common.ErrUnauthorized
		}
		return common.StoreError("find user", err)
	}
	if !s.hasher.Verify(oldPassword, user.PasswordHash) {
		return common.ErrInvalidCredentials
	}

	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	var revoked int64
	err = s.withTx(ctx, "change password", func(ctx context.Context, repos repomanager.Repositories) error {
		if err := repos.Users().UpdatePasswordHash(ctx, user.ID, hash); err != nil {
			if errors.Is(err, common.ErrorNotFound) {
				return common.ErrUnauthorized
			}
			return err
		}
		n, err := repos.RefreshTokens().RevokeAllForUser(ctx, user.ID)
		revoked = n
		return err
	})
	if err != nil {
		return err
	}

	s.logger.Info(ctx, "password changed", "user_id", user.ID, "sessions_revoked", revoked)
	s.record(ctx, audit.Event{
		Type:   audit.EventPasswordChanged,
		UserID: user.ID,
		Detail: map[string]string{"sessions_revoked": strconv.FormatInt(revoked, 10)},
	})
	s.recordBulkRevocation(ctx, user.ID, audit.EventPasswordChanged, revoked)
	return nil
}
