package leclark

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetGuildSettingsCreatesRow(t *testing.T) {
	db := gormDB(t)

	settings, err := GetGuildSettings(db, "guild-1")
	require.NoError(t, err)
	assert.Equal(t, "guild-1", settings.GuildID)
	assert.Equal(t, DefaultWarningLimit, settings.WarningLimit)
	assert.Equal(t, DefaultWarningAction, settings.WarningAction)
	assert.False(t, settings.SessionOpen())

	// Second call returns the same row, not a fresh default
	again, err := GetGuildSettings(db, "guild-1")
	require.NoError(t, err)
	assert.Equal(t, settings.CreatedAt, again.CreatedAt)

	var count int64
	require.NoError(
		t,
		db.Model(&GuildSettings{}).Where(
			"guild_id = ?", "guild-1",
		).Count(&count).Error,
	)
	assert.Equal(t, int64(1), count)
}

func TestSetSubmissionStatus(t *testing.T) {
	db := gormDB(t)
	writeDB := NewDatabase(db, nil, false)
	ctx := context.Background()

	_, err := GetGuildSettings(db, "guild-1")
	require.NoError(t, err)

	require.NoError(
		t,
		setSubmissionStatus(ctx, writeDB, "guild-1", SubmissionsOpen),
	)
	settings, err := GetGuildSettings(db, "guild-1")
	require.NoError(t, err)
	assert.True(t, settings.SessionOpen())

	require.NoError(
		t,
		setSubmissionStatus(ctx, writeDB, "guild-1", SubmissionsClosed),
	)
	settings, err = GetGuildSettings(db, "guild-1")
	require.NoError(t, err)
	assert.False(t, settings.SessionOpen())
}

func TestGuildSettingsRoles(t *testing.T) {
	settings := GuildSettings{
		AdminRoleIDs: "1, 2",
		ModRoleIDs:   "3",
	}
	assert.Equal(t, []string{"1", "2"}, settings.AdminRoles())

	// Admins are implicitly moderators
	mods := settings.ModRoles()
	assert.ElementsMatch(t, []string{"1", "2", "3"}, mods)
}

func TestHasAnyRole(t *testing.T) {
	assert.True(t, hasAnyRole([]string{"a", "b"}, []string{"b", "c"}))
	assert.False(t, hasAnyRole([]string{"a"}, []string{"b"}))
	assert.False(t, hasAnyRole(nil, []string{"a"}))
	assert.False(t, hasAnyRole([]string{"a"}, nil))
}
