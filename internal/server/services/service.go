// Package services holds the session lifecycle: issuing token pairs on
// register and login, rotating refresh tokens with reuse detection, logout,
// password change and resolving the principal behind an access token.
package services

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/dmitrijs2005/gophauth/internal/common"
	"github.com/dmitrijs2005/gophauth/internal/logging"
	"github.com/dmitrijs2005/gophauth/internal/server/audit"
	"github.com/dmitrijs2005/gophauth/internal/server/auth"
	"github.com/dmitrijs2005/gophauth/internal/server/config"
	"github.com/dmitrijs2005/gophauth/internal/server/passwords"
	"github.com/dmitrijs2005/gophauth/internal/server/repositories/repomanager"
)

// LoginThrottle limits login attempts per email. Acquire reserves an attempt
// before the password is checked and Reset gives the window back once it
// verifies. *ratelimit.Limiter implements it.
type LoginThrottle interface {
	Acquire(ctx context.Context, email string) error
	Reset(ctx context.Context, email string) error
}

// Settings are the session policy knobs taken from configuration.
type Settings struct {
	AccessTokenTTL    time.Duration
	RefreshTokenTTL   time.Duration
	ClockSkewLeeway   time.Duration
	MinPasswordLength int
	RevokeAllOnReuse  bool
}

func SettingsFromConfig(cfg *config.Config) Settings {
	return Settings{
		AccessTokenTTL:    cfg.AccessTokenValidityDuration,
		RefreshTokenTTL:   cfg.RefreshTokenValidityDuration,
		ClockSkewLeeway:   cfg.ClockSkewLeeway,
		MinPasswordLength: cfg.MinPasswordLength,
		RevokeAllOnReuse:  cfg.RevokeAllOnReuse,
	}
}

// AuthService is safe for concurrent use. All coordination between requests
// happens in the store.
type AuthService struct {
	repos    repomanager.RepositoryManager
	codec    *auth.Codec
	hasher   passwords.Hasher
	throttle LoginThrottle
	audit    audit.Sink
	logger   logging.Logger
	now      func() time.Time
	settings Settings

	// dummyHash is verified against when the email is unknown so that both
	// login failures cost one password comparison.
	dummyHash string
}

type Option func(*AuthService)

// WithThrottle enables failed-login throttling.
func WithThrottle(t LoginThrottle) Option {
	return func(s *AuthService) { s.throttle = t }
}

func WithAuditSink(sink audit.Sink) Option {
	return func(s *AuthService) { s.audit = sink }
}

func WithLogger(l logging.Logger) Option {
	return func(s *AuthService) { s.logger = l }
}

// WithClock sets the clock used for record expiry. It should match the
// codec's clock.
func WithClock(now func() time.Time) Option {
	return func(s *AuthService) { s.now = now }
}

func NewAuthService(repos repomanager.RepositoryManager, codec *auth.Codec, hasher passwords.Hasher, settings Settings, opts ...Option) (*AuthService, error) {
	if settings.AccessTokenTTL <= 0 || settings.RefreshTokenTTL <= 0 {
		return nil, errors.New("token lifetimes must be positive")
	}
	if settings.MinPasswordLength < 1 {
		settings.MinPasswordLength = 1
	}

	s := &AuthService{
		repos:    repos,
		codec:    codec,
		hasher:   hasher,
		audit:    audit.Nop{},
		logger:   logging.Nop{},
		now:      time.Now,
		settings: settings,
	}
	for _, o := range opts {
		o(s)
	}
	s.logger = s.logger.With("module", "auth_service")

	dummy, err := common.MakeRandHexString(16)
	if err != nil {
		return nil, err
	}
	if s.dummyHash, err = hasher.Hash(dummy); err != nil {
		return nil, fmt.Errorf("dummy hash: %w", err)
	}

	return s, nil
}

var domainErrors = []error{
	common.ErrValidation,
	common.ErrAlreadyExists,
	common.ErrInvalidCredentials,
	common.ErrInvalidRefreshToken,
	common.ErrRefreshTokenExpired,
	common.ErrRefreshTokenReuseDetected,
	common.ErrUnauthorized,
	common.ErrForbidden,
	common.ErrTooManyAttempts,
	common.ErrStoreUnavailable,
}

func isDomainError(err error) bool {
	for _, target := range domainErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// withTx runs fn atomically. Anything that is not one of the domain errors
// (driver errors, commit failures, a canceled context) surfaces as
// common.ErrStoreUnavailable.
func (s *AuthService) withTx(ctx context.Context, op string, fn repomanager.TxFunc) error {
	err := s.repos.WithTx(ctx, fn)
	if err == nil || isDomainError(err) {
		return err
	}
	return common.StoreError(op, err)
}

// recordBulkRevocation audits a revocation of every live session of userID.
// Nothing is recorded when there was no live session.
func (s *AuthService) recordBulkRevocation(ctx context.Context, userID, reason string, n int64) {
	if n <= 0 {
		return
	}
	s.record(ctx, audit.Event{
		Type:   audit.EventSessionsRevoked,
		UserID: userID,
		Detail: map[string]string{"reason": reason, "count": strconv.FormatInt(n, 10)},
	})
}

func (s *AuthService) record(ctx context.Context, e audit.Event) {
	e.Time = s.now().UTC()
	if err := s.audit.Record(ctx, e); err != nil {
		s.logger.Error(ctx, "audit record failed", "event", e.Type, "error", err)
	}
}
