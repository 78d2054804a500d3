package services

import (
	"context"
	"testing"

	"github.com/dmitrijs2005/gophauth/internal/common"
	"github.com/dmitrijs2005/gophauth/internal/server/audit"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChangePassword(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	pair := f.register(t, "alice@example.com")
	userID := f.userID(t, "alice@example.com")

	require.NoError(t, f.svc.ChangePassword(ctx, userID, testPassword, "brand-new-password"))

	// every session is gone
	_, err := f.svc.Refresh(ctx, pair.RefreshToken)
	assert.ErrorIs(t, err, common.ErrRefreshTokenReuseDetected)

	_, err = f.svc.Login(ctx, "alice@example.com", testPassword)
	assert.ErrorIs(t, err, common.ErrInvalidCredentials)
	_, err = f.svc.Login(ctx, "alice@example.com", "brand-new-password")
	assert.NoError(t, err)

	events := f.sink.ofType(audit.EventPasswordChanged)
	require.Len(t, events, 1)
	assert.Equal(t, userID, events[0].UserID)
	assert.Equal(t, "1", events[0].Detail["sessions_revoked"])

	revoked := f.sink.ofType(audit.EventSessionsRevoked)
	require.Len(t, revoked, 1)
	assert.Equal(t, userID, revoked[0].UserID)
	assert.Equal(t, audit.EventPasswordChanged, revoked[0].Detail["reason"])
	assert.Equal(t, "1", revoked[0].Detail["count"])
}

func TestChangePassword_Failures(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	pair := f.register(t, "alice@example.com")
	userID := f.userID(t, "alice@example.com")

	assert.ErrorIs(t, f.svc.ChangePassword(ctx, userID, "wrong-password", "brand-new-password"), common.ErrInvalidCredentials)
	assert.ErrorIs(t, f.svc.ChangePassword(ctx, userID, testPassword, "short"), common.ErrValidation)
	assert.ErrorIs(t, f.svc.ChangePassword(ctx, userID, "", "brand-new-password"), common.ErrValidation)
	assert.ErrorIs(t, f.svc.ChangePassword(ctx, "ghost", testPassword, "brand-new-password"), common.ErrUnauthorized)

	// nothing was revoked by the failed attempts
	_, err := f.svc.Refresh(ctx, pair.RefreshToken)
	assert.NoError(t, err)
	assert.Empty(t, f.sink.ofType(audit.EventPasswordChanged))
	assert.Empty(t, f.sink.ofType(audit.EventSessionsRevoked))
}

func TestChangePassword_NoLiveSessionIsNotABulkRevocation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	pair := f.register(t, "alice@example.com")
	userID := f.userID(t, "alice@example.com")
	require.NoError(t, f.svc.Logout(ctx, pair.RefreshToken))

	require.NoError(t, f.svc.ChangePassword(ctx, userID, testPassword, "brand-new-password"))

	events := f.sink.ofType(audit.EventPasswordChanged)
	require.Len(t, events, 1)
	assert.Equal(t, "0", events[0].Detail["sessions_revoked"])
	assert.Empty(t, f.sink.ofType(audit.EventSessionsRevoked))
}
