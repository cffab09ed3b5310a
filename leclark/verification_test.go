package leclark

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestVerificationLinkLifecycle(t *testing.T) {
	db := gormDB(t)
	writeDB := NewDatabase(db, nil, false)
	ctx := context.Background()

	link, err := NewVerificationLink(ctx, writeDB, "guild-1", "user-1")
	require.NoError(t, err)
	assert.Len(t, link.State, 32)
	assert.Equal(t, VerificationPending, link.Status)

	require.NoError(
		t,
		CompleteVerification(ctx, writeDB, link.State, "account-name"),
	)

	var stored VerificationLink
	require.NoError(
		t,
		db.Where("state = ?", link.State).First(&stored).Error,
	)
	assert.Equal(t, VerificationVerified, stored.Status)
	assert.Equal(t, "account-name", stored.VerifiedAccount)

	// Completing twice fails - the link is no longer pending
	err = CompleteVerification(ctx, writeDB, link.State, "other")
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestCompleteVerificationUnknownState(t *testing.T) {
	db := gormDB(t)
	writeDB := NewDatabase(db, nil, false)

	err := CompleteVerification(
		context.Background(), writeDB, "no-such-state", "account",
	)
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestGetOrCreateWidgetToken(t *testing.T) {
	db := gormDB(t)
	writeDB := NewDatabase(db, nil, false)
	ctx := context.Background()

	token, err := GetOrCreateWidgetToken(ctx, db, writeDB, "guild-1")
	require.NoError(t, err)
	assert.Len(t, token, 48)

	// Idempotent per guild
	again, err := GetOrCreateWidgetToken(ctx, db, writeDB, "guild-1")
	require.NoError(t, err)
	assert.Equal(t, token, again)

	other, err := GetOrCreateWidgetToken(ctx, db, writeDB, "guild-2")
	require.NoError(t, err)
	assert.NotEqual(t, token, other)
}

func TestGuildFromWidgetToken(t *testing.T) {
	db := gormDB(t)
	writeDB := NewDatabase(db, nil, false)
	ctx := context.Background()

	token, err := GetOrCreateWidgetToken(ctx, db, writeDB, "guild-1")
	require.NoError(t, err)

	guildID, err := GuildFromWidgetToken(db, token)
	require.NoError(t, err)
	assert.Equal(t, "guild-1", guildID)

	guildID, err = GuildFromWidgetToken(db, "bogus")
	require.NoError(t, err)
	assert.Empty(t, guildID)
}
