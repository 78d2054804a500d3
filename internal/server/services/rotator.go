package services

import (
	"context"
	"errors"
	"strconv"

	"github.com/dmitrijs2005/gophauth/internal/common"
	"github.com/dmitrijs2005/gophauth/internal/server/audit"
	"github.com/dmitrijs2005/gophauth/internal/server/auth"
	"github.com/dmitrijs2005/gophauth/internal/server/models"
	"github.com/dmitrijs2005/gophauth/internal/server/repositories/repomanager"
)

// lookupRefreshRecord loads and locks the record of a codec-verified refresh
// token and re-checks its digest in constant time. The lock is held until the
// surrounding transaction ends.
func lookupRefreshRecord(ctx context.Context, repos repomanager.Repositories, raw string) (*models.RefreshToken, error) {
	rec, err := repos.RefreshTokens().FindByHash(ctx, auth.HashRefreshToken(raw), true)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrInvalidRefreshToken
		}
		return nil, err
	}
	if !auth.VerifyRefreshToken(raw, rec.TokenHash) {
		return nil, common.ErrInvalidRefreshToken
	}
	return rec, nil
}

type reuseEvent struct {
	rec     *models.RefreshToken
	revoked int64
}

// Refresh rotates a refresh token. Checks run in a fixed order and the first
// failure wins: codec verification, record lookup, digest comparison,
// revocation (reuse), expiry, subject match. On success the presented record
// is revoked and a new pair is persisted in the same transaction, so a
// concurrent rotation of the same token waits on the row lock and then sees
// it revoked. The subject's user row is locked before any token row, the same
// order persist uses, so a rotation and a login of one user cannot deadlock.
func (s *AuthService) Refresh(ctx context.Context, raw string) (*models.TokenPair, error) {
	claims, err := s.codec.VerifyIgnoringExpiry(raw, auth.TokenTypeRefresh)
	if err != nil {
		return nil, common.ErrInvalidRefreshToken
	}

	m, err := s.mint(claims.Subject)
	if err != nil {
		return nil, err
	}

	var (
		reuse   *reuseEvent
		rotated *models.RefreshToken
	)
	err = s.withTx(ctx, "refresh", func(ctx context.Context, repos repomanager.Repositories) error {
		if err := repos.Users().LockByID(ctx, claims.Subject); err != nil {
			if errors.Is(err, common.ErrorNotFound) {
				return common.ErrInvalidRefreshToken
			}
			return err
		}
		rec, err := lookupRefreshRecord(ctx, repos, raw)
		if err != nil {
			return err
		}

		if rec.Revoked {
			reuse = &reuseEvent{rec: rec}
			if !s.settings.RevokeAllOnReuse {
				return common.ErrRefreshTokenReuseDetected
			}
			// commit the revocations; the reuse error is returned afterwards
			n, err := repos.RefreshTokens().RevokeAllForUser(ctx, rec.UserID)
			if err != nil {
				return err
			}
			reuse.revoked = n
			return nil
		}

		if rec.Expired(s.now(), s.settings.ClockSkewLeeway) || s.codec.Expired(claims) {
			return common.ErrRefreshTokenExpired
		}
		if claims.Subject != rec.UserID {
			return common.ErrInvalidRefreshToken
		}

		if err := repos.RefreshTokens().Revoke(ctx, rec.ID); err != nil {
			return err
		}
		rotated, err = s.persist(ctx, repos, rec.UserID, m)
		return err
	})

	if reuse != nil {
		s.reportReuse(ctx, reuse)
		if err == nil || errors.Is(err, common.ErrRefreshTokenReuseDetected) {
			return nil, common.ErrRefreshTokenReuseDetected
		}
		return nil, err
	}
	if err != nil {
		return nil, err
	}

	s.logger.Debug(ctx, "refresh token rotated", "user_id", rotated.UserID, "record_id", rotated.ID)
	return m.pair, nil
}

func (s *AuthService) reportReuse(ctx context.Context, r *reuseEvent) {
	s.logger.Warn(ctx, "refresh token reuse detected",
		"event", audit.EventRefreshTokenReuse,
		"user_id", r.rec.UserID,
		"record_id", r.rec.ID,
		"sessions_revoked", r.revoked,
	)
	s.record(ctx, audit.Event{
		Type:     audit.EventRefreshTokenReuse,
		UserID:   r.rec.UserID,
		RecordID: r.rec.ID,
		Detail:   map[string]string{"sessions_revoked": strconv.FormatInt(r.revoked, 10)},
	})
	s.recordBulkRevocation(ctx, r.rec.UserID, audit.EventRefreshTokenReuse, r.revoked)
}

// Logout revokes the session of a refresh token. The token is identified the
// same way Refresh does it, except that expiry is not checked; an already
// revoked record counts as logged out.
func (s *AuthService) Logout(ctx context.Context, raw string) error {
	claims, err := s.codec.VerifyIgnoringExpiry(raw, auth.TokenTypeRefresh)
	if err != nil {
		return common.ErrInvalidRefreshToken
	}

	return s.withTx(ctx, "logout", func(ctx context.Context, repos repomanager.Repositories) error {
		rec, err := lookupRefreshRecord(ctx, repos, raw)
		if err != nil {
			return err
		}
		if claims.Subject != rec.UserID {
			return common.ErrInvalidRefreshToken
		}
		if rec.Revoked {
			return nil
		}
		return repos.RefreshTokens().Revoke(ctx, rec.ID)
	})
}

// LogoutUser revokes the most recent session of userID. A user with no
// sessions is already logged out.
func (s *AuthService) LogoutUser(ctx context.Context, userID string) error {
	return s.withTx(ctx, "logout user", func(ctx context.Context, repos repomanager.Repositories) error {
		rec, err := repos.RefreshTokens().MostRecentForUser(ctx, userID)
		if err != nil {
			if errors.Is(err, common.ErrorNotFound) {
				return nil
			}
			return err
		}
		return repos.RefreshTokens().Revoke(ctx, rec.ID)
	})
}
