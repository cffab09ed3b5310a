package leclark

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExecuteActionUnknownKind(t *testing.T) {
	lc, _ := newTestBot(t)

	err := lc.ExecuteAction(
		context.Background(),
		ActionTask{Kind: "reticulate-splines"},
	)
	assert.ErrorContains(t, err, "unknown action kind")
}

func TestExecuteActionUnknownModerationVerb(t *testing.T) {
	lc, _ := newTestBot(t)

	err := lc.ExecuteAction(context.Background(), ActionTask{
		Kind:         ActionModerateUser,
		GuildID:      "guild-1",
		TargetUserID: "user-1",
		Verb:         "tickle",
	})
	assert.ErrorContains(t, err, "unknown moderation verb")
}

func TestExecuteActionWarn(t *testing.T) {
	lc, _ := newTestBot(t)
	ctx := context.Background()

	err := lc.ExecuteAction(ctx, ActionTask{
		Kind:         ActionModerateUser,
		GuildID:      "guild-1",
		TargetUserID: "user-1",
		ActorID:      "mod-1",
		Verb:         ModerationWarn,
		Reason:       "spam",
	})
	require.NoError(t, err)

	count, err := lc.moderator.WarningCount(ctx, "guild-1", "user-1")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestExecuteActionResetStuckReviewMissing(t *testing.T) {
	lc, _ := newTestBot(t)

	err := lc.ExecuteAction(context.Background(), ActionTask{
		Kind:         ActionResetStuckReview,
		GuildID:      "guild-1",
		SubmissionID: 999,
	})
	assert.ErrorContains(t, err, "not in reviewing state")
}
