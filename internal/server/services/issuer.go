package services

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/dmitrijs2005/gophauth/internal/common"
	"github.com/dmitrijs2005/gophauth/internal/server/audit"
	"github.com/dmitrijs2005/gophauth/internal/server/auth"
	"github.com/dmitrijs2005/gophauth/internal/server/models"
	"github.com/dmitrijs2005/gophauth/internal/server/ratelimit"
	"github.com/dmitrijs2005/gophauth/internal/server/repositories/repomanager"
)

const (
	maxEmailLength = 254
	// bcrypt ignores input beyond 72 bytes.
	maxPasswordBytes = 72
	// refreshIDBytes of randomness go into every refresh token's jti, so two
	// tokens minted in the same second for the same user still differ.
	refreshIDBytes = 32
)

// mintedPair is a token pair whose refresh record is not persisted yet.
type mintedPair struct {
	pair      *models.TokenPair
	digest    string
	expiresAt time.Time
}

// mint signs a new access and refresh token for userID. It touches no store.
func (s *AuthService) mint(userID string) (*mintedPair, error) {
	access, err := s.codec.Issue(userID, auth.TokenTypeAccess, s.settings.AccessTokenTTL)
	if err != nil {
		return nil, fmt.Errorf("issue access token: %w", err)
	}
	jti, err := common.MakeRandHexString(refreshIDBytes)
	if err != nil {
		return nil, fmt.Errorf("refresh token id: %w", err)
	}
	refresh, err := s.codec.IssueWithID(userID, auth.TokenTypeRefresh, s.settings.RefreshTokenTTL, jti)
	if err != nil {
		return nil, fmt.Errorf("issue refresh token: %w", err)
	}
	return &mintedPair{
		pair:      &models.TokenPair{AccessToken: access, RefreshToken: refresh},
		digest:    auth.HashRefreshToken(refresh),
		expiresAt: s.now().Add(s.settings.RefreshTokenTTL),
	}, nil
}

// persist stores the refresh record of m as the only active session of
// userID: every other unrevoked record of the user is revoked first. The user
// row lock serializes concurrent issuance for the same user, so two
// transactions cannot both revoke nothing and then insert.
func (s *AuthService) persist(ctx context.Context, repos repomanager.Repositories, userID string, m *mintedPair) (*models.RefreshToken, error) {
	if err := repos.Users().LockByID(ctx, userID); err != nil {
		return nil, fmt.Errorf("lock user: %w", err)
	}
	if _, err := repos.RefreshTokens().RevokeAllForUser(ctx, userID); err != nil {
		return nil, fmt.Errorf("revoke previous sessions: %w", err)
	}
	rec, err := repos.RefreshTokens().Create(ctx, userID, m.digest, m.expiresAt)
	if errors.Is(err, common.ErrAlreadyExists) {
		// the one-active-session index; not the caller's conflict
		return nil, fmt.Errorf("create refresh record: active session clash for user %s", userID)
	}
	if err != nil {
		return nil, fmt.Errorf("create refresh record: %w", err)
	}
	return rec, nil
}

// IssueTokenPair mints and persists a new session for userID.
func (s *AuthService) IssueTokenPair(ctx context.Context, userID string) (*models.TokenPair, error) {
	m, err := s.mint(userID)
	if err != nil {
		return nil, err
	}
	err = s.withTx(ctx, "issue token pair", func(ctx context.Context, repos repomanager.Repositories) error {
		_, err := s.persist(ctx, repos, userID, m)
		return err
	})
	if err != nil {
		return nil, err
	}
	return m.pair, nil
}

// Register creates an active principal and opens its first session.
func (s *AuthService) Register(ctx context.Context, email, password string) (*models.TokenPair, error) {
	email, err := normalizeEmail(email)
	if err != nil {
		return nil, err
	}
	if err := s.validatePassword("password", password); err != nil {
		return nil, err
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	var (
		pair   *models.TokenPair
		userID string
	)
	err = s.withTx(ctx, "register", func(ctx context.Context, repos repomanager.Repositories) error {
		user, err := repos.Users().Create(ctx, email, hash)
		if err != nil {
			return err
		}
		m, err := s.mint(user.ID)
		if err != nil {
			return err
		}
		if _, err := s.persist(ctx, repos, user.ID, m); err != nil {
			return err
		}
		pair, userID = m.pair, user.ID
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info(ctx, "user registered", "user_id", userID)
	return pair, nil
}

// Login verifies credentials and opens a new session, revoking the previous
// one. Unknown email and wrong password both fail with
// common.ErrInvalidCredentials.
func (s *AuthService) Login(ctx context.Context, email, password string) (*models.TokenPair, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return nil, common.NewValidationError("email", "is required")
	}
	if password == "" {
		return nil, common.NewValidationError("password", "is required")
	}

	if err := s.checkThrottle(ctx, email); err != nil {
		return nil, err
	}

	user, err := s.repos.Users().FindByEmail(ctx, email)
	if err != nil {
		if !errors.Is(err, common.ErrorNotFound) {
			return nil, common.StoreError("find user", err)
		}
		s.hasher.Verify(password, s.dummyHash)
		return nil, common.ErrInvalidCredentials
	}

	if !s.hasher.Verify(password, user.PasswordHash) {
		return nil, common.ErrInvalidCredentials
	}
	s.resetThrottle(ctx, email)
	if !user.IsActive {
		return nil, common.ErrForbidden
	}

	pair, err := s.IssueTokenPair(ctx, user.ID)
	if err != nil {
		return nil, err
	}

	s.logger.Info(ctx, "user logged in", "user_id", user.ID)
	return pair, nil
}

// checkThrottle takes an attempt slot for email. A slot is only given back
// by a verified password, so failures keep counting. It fails open when
// Redis is unreachable.
func (s *AuthService) checkThrottle(ctx context.Context, email string) error {
	if s.throttle == nil {
		return nil
	}
	err := s.throttle.Acquire(ctx, email)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, common.ErrTooManyAttempts):
		s.record(ctx, audit.Event{Type: audit.EventLoginThrottled, Detail: map[string]string{"email": email}})
		return err
	case errors.Is(err, ratelimit.ErrRedisUnavailable):
		s.logger.Warn(ctx, "login throttle unavailable", "error", err)
		return nil
	default:
		s.logger.Warn(ctx, "login throttle check failed", "error", err)
		return nil
	}
}

func (s *AuthService) resetThrottle(ctx context.Context, email string) {
	if s.throttle == nil {
		return
	}
	if err := s.throttle.Reset(ctx, email); err != nil {
		s.logger.Warn(ctx, "login throttle reset failed", "error", err)
	}
}

func normalizeEmail(raw string) (string, error) {
	email := strings.ToLower(strings.TrimSpace(raw))
	if email == "" {
		return "", common.NewValidationError("email", "is required")
	}
	if len(email) > maxEmailLength {
		return "", common.NewValidationError("email", "is too long")
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email || !strings.Contains(email[strings.LastIndex(email, "@")+1:], ".") {
		return "", common.NewValidationError("email", "is not a valid address")
	}
	return email, nil
}

func (s *AuthService) validatePassword(field, password string) error {
	if utf8.RuneCountInString(password) < s.settings.MinPasswordLength {
		return common.NewValidationError(field, fmt.Sprintf("must be at least %d characters", s.settings.MinPasswordLength))
	}
	if len(password) > maxPasswordBytes {
		return common.NewValidationError(field, fmt.Sprintf("must be at most %d bytes", maxPasswordBytes))
	}
	return nil
}
