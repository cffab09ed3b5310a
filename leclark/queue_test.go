package leclark

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newTestQueue(t testing.TB) (*SubmissionQueue, *gorm.DB, DBI) {
	t.Helper()
	db := gormDB(t)
	writeDB := NewDatabase(db, nil, false)
	q := NewSubmissionQueue(
		db,
		writeDB,
		&SubmissionConfig{
			ReviewTimeout: DefaultReviewTimeout,
			SweepInterval: DefaultReviewSweepInterval,
		},
		nil,
	)
	return q, db, writeDB
}

func TestIngestFirstSubmissionPriority(t *testing.T) {
	q, _, _ := newTestQueue(t)
	ctx := context.Background()
	guildID := "guild-1"

	// A returning user submits first
	veteran, err := q.Ingest(
		ctx, guildID, "veteran", "https://tracks.example/v1",
		SubmissionCategoryRegular,
	)
	require.NoError(t, err)
	assert.Equal(t, int64(0), veteran.SubmittedAt,
		"first-ever submission should be stamped to the epoch")

	// Their second submission gets a real timestamp
	second, err := q.Ingest(
		ctx, guildID, "veteran", "https://tracks.example/v2",
		SubmissionCategoryRegular,
	)
	require.NoError(t, err)
	assert.Greater(t, second.SubmittedAt, int64(0))

	// A brand-new user submits after the veteran's second entry, but
	// jumps the line
	newcomer, err := q.Ingest(
		ctx, guildID, "newcomer", "https://tracks.example/n1",
		SubmissionCategoryRegular,
	)
	require.NoError(t, err)
	assert.Equal(t, int64(0), newcomer.SubmittedAt)

	pending, err := q.Pending(ctx, guildID, SubmissionCategoryRegular)
	require.NoError(t, err)
	require.Len(t, pending, 3)
	assert.Equal(t, "veteran", pending[0].UserID)
	assert.Equal(t, "newcomer", pending[1].UserID)
	assert.Equal(t, second.ID, pending[2].ID)
}

func TestIngestFirstSubmissionPerGuild(t *testing.T) {
	q, _, _ := newTestQueue(t)
	ctx := context.Background()

	_, err := q.Ingest(
		ctx, "guild-a", "user", "https://tracks.example/a",
		SubmissionCategoryRegular,
	)
	require.NoError(t, err)

	// Same user in a different guild is still a first submission there
	other, err := q.Ingest(
		ctx, "guild-b", "user", "https://tracks.example/b",
		SubmissionCategoryRegular,
	)
	require.NoError(t, err)
	assert.Equal(t, int64(0), other.SubmittedAt)
}

func TestDequeueOrdering(t *testing.T) {
	q, _, _ := newTestQueue(t)
	ctx := context.Background()
	guildID := "guild-1"

	users := []string{"a", "b", "c"}
	for _, u := range users {
		_, err := q.Ingest(
			ctx, guildID, u, "https://tracks.example/"+u,
			SubmissionCategoryRegular,
		)
		require.NoError(t, err)
	}

	// All three are first submissions (submitted_at = 0), so insertion
	// order (id) breaks the tie
	for _, expected := range users {
		claimed, err := q.Dequeue(
			ctx, guildID, "reviewer", SubmissionCategoryRegular,
		)
		require.NoError(t, err)
		assert.Equal(t, expected, claimed.UserID)
		require.NoError(t, q.Complete(ctx, claimed.ID))
	}

	_, err := q.Dequeue(ctx, guildID, "reviewer", SubmissionCategoryRegular)
	assert.ErrorIs(t, err, ErrQueueEmpty)
}

func TestDequeueSetsReviewState(t *testing.T) {
	q, db, _ := newTestQueue(t)
	ctx := context.Background()
	guildID := "guild-1"

	ingested, err := q.Ingest(
		ctx, guildID, "user", "https://tracks.example/1",
		SubmissionCategoryRegular,
	)
	require.NoError(t, err)

	claimed, err := q.Dequeue(
		ctx, guildID, "reviewer-1", SubmissionCategoryRegular,
	)
	require.NoError(t, err)
	assert.Equal(t, ingested.ID, claimed.ID)

	var stored Submission
	require.NoError(t, db.First(&stored, claimed.ID).Error)
	assert.Equal(t, SubmissionReviewing, stored.Status)
	assert.Equal(t, "reviewer-1", stored.ReviewerID)
	assert.Greater(t, stored.ReviewStartedAt, int64(0))

	// The claimed submission no longer counts as pending
	count, err := q.PendingLength(ctx, guildID, SubmissionCategoryRegular)
	require.NoError(t, err)
	assert.Equal(t, int64(0), count)

	reviewing, err := q.Reviewing(ctx, guildID, SubmissionCategoryRegular)
	require.NoError(t, err)
	require.NotNil(t, reviewing)
	assert.Equal(t, claimed.ID, reviewing.ID)
}

func TestCompleteRequiresReviewingState(t *testing.T) {
	q, _, _ := newTestQueue(t)
	ctx := context.Background()
	guildID := "guild-1"

	pending, err := q.Ingest(
		ctx, guildID, "user", "https://tracks.example/1",
		SubmissionCategoryRegular,
	)
	require.NoError(t, err)

	// Completing a pending submission is rejected
	err = q.Complete(ctx, pending.ID)
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)

	claimed, err := q.Dequeue(
		ctx, guildID, "reviewer", SubmissionCategoryRegular,
	)
	require.NoError(t, err)
	require.NoError(t, q.Complete(ctx, claimed.ID))
	assert.Equal(
		t, 1, q.SessionReviewedCount(guildID, SubmissionCategoryRegular),
	)

	// Completing twice is rejected - reviewed is terminal
	err = q.Complete(ctx, claimed.ID)
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
	assert.Equal(
		t, 1, q.SessionReviewedCount(guildID, SubmissionCategoryRegular),
	)
}

func TestResetStuck(t *testing.T) {
	q, db, _ := newTestQueue(t)
	ctx := context.Background()
	guildID := "guild-1"

	_, err := q.Ingest(
		ctx, guildID, "user", "https://tracks.example/1",
		SubmissionCategoryRegular,
	)
	require.NoError(t, err)

	claimed, err := q.Dequeue(
		ctx, guildID, "reviewer", SubmissionCategoryRegular,
	)
	require.NoError(t, err)

	require.NoError(t, q.ResetStuck(ctx, claimed.ID))

	var stored Submission
	require.NoError(t, db.First(&stored, claimed.ID).Error)
	assert.Equal(t, SubmissionPending, stored.Status)
	assert.Empty(t, stored.ReviewerID)
	assert.Equal(t, int64(0), stored.ReviewStartedAt)

	// Resetting a pending submission is rejected
	err = q.ResetStuck(ctx, claimed.ID)
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)

	// It can be claimed again
	reclaimed, err := q.Dequeue(
		ctx, guildID, "reviewer-2", SubmissionCategoryRegular,
	)
	require.NoError(t, err)
	assert.Equal(t, claimed.ID, reclaimed.ID)
}

func TestCloseSessionPurgesNonReviewed(t *testing.T) {
	q, db, _ := newTestQueue(t)
	ctx := context.Background()
	guildID := "guild-1"

	require.NoError(
		t, q.OpenSession(ctx, guildID, SubmissionCategoryRegular),
	)
	settings, err := GetGuildSettings(db, guildID)
	require.NoError(t, err)
	assert.True(t, settings.SessionOpen())

	for _, u := range []string{"a", "b", "c"} {
		_, err = q.Ingest(
			ctx, guildID, u, "https://tracks.example/"+u,
			SubmissionCategoryRegular,
		)
		require.NoError(t, err)
	}

	claimed, err := q.Dequeue(
		ctx, guildID, "reviewer", SubmissionCategoryRegular,
	)
	require.NoError(t, err)
	require.NoError(t, q.Complete(ctx, claimed.ID))

	// One reviewing at close time
	_, err = q.Dequeue(ctx, guildID, "reviewer", SubmissionCategoryRegular)
	require.NoError(t, err)

	reviewed, err := q.CloseSession(
		ctx, guildID, SubmissionCategoryRegular,
	)
	require.NoError(t, err)
	assert.Equal(t, 1, reviewed)

	settings, err = GetGuildSettings(db, guildID)
	require.NoError(t, err)
	assert.False(t, settings.SessionOpen())

	// Only the reviewed submission survives
	var remaining []Submission
	require.NoError(
		t,
		db.Where("guild_id = ?", guildID).Find(&remaining).Error,
	)
	require.Len(t, remaining, 1)
	assert.Equal(t, SubmissionReviewed, remaining[0].Status)

	// Counter resets with the session
	assert.Equal(
		t, 0, q.SessionReviewedCount(guildID, SubmissionCategoryRegular),
	)
}

func TestOpenSessionResetsCounter(t *testing.T) {
	q, _, _ := newTestQueue(t)
	ctx := context.Background()
	guildID := "guild-1"

	_, err := q.Ingest(
		ctx, guildID, "user", "https://tracks.example/1",
		SubmissionCategoryRegular,
	)
	require.NoError(t, err)
	claimed, err := q.Dequeue(
		ctx, guildID, "reviewer", SubmissionCategoryRegular,
	)
	require.NoError(t, err)
	require.NoError(t, q.Complete(ctx, claimed.ID))
	require.Equal(
		t, 1, q.SessionReviewedCount(guildID, SubmissionCategoryRegular),
	)

	// Opening a session always starts counting from zero, even when the
	// previous session was never explicitly closed
	require.NoError(
		t, q.OpenSession(ctx, guildID, SubmissionCategoryRegular),
	)
	assert.Equal(
		t, 0, q.SessionReviewedCount(guildID, SubmissionCategoryRegular),
	)
}

func TestTotalReviewedCountSurvivesClose(t *testing.T) {
	q, _, _ := newTestQueue(t)
	ctx := context.Background()
	guildID := "guild-1"

	total, err := q.TotalReviewedCount(
		ctx, guildID, SubmissionCategoryRegular,
	)
	require.NoError(t, err)
	assert.Equal(t, int64(0), total)

	for _, u := range []string{"a", "b"} {
		_, err = q.Ingest(
			ctx, guildID, u, "https://tracks.example/"+u,
			SubmissionCategoryRegular,
		)
		require.NoError(t, err)
		claimed, deqErr := q.Dequeue(
			ctx, guildID, "reviewer", SubmissionCategoryRegular,
		)
		require.NoError(t, deqErr)
		require.NoError(t, q.Complete(ctx, claimed.ID))
	}

	total, err = q.TotalReviewedCount(
		ctx, guildID, SubmissionCategoryRegular,
	)
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)

	// The all-time count outlives the session purge and counter reset
	_, err = q.CloseSession(ctx, guildID, SubmissionCategoryRegular)
	require.NoError(t, err)
	require.Equal(
		t, 0, q.SessionReviewedCount(guildID, SubmissionCategoryRegular),
	)

	total, err = q.TotalReviewedCount(
		ctx, guildID, SubmissionCategoryRegular,
	)
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
}

func TestQueueCategoryIsolation(t *testing.T) {
	q, db, _ := newTestQueue(t)
	ctx := context.Background()
	guildID := "guild-1"
	bSide := SubmissionCategory("b-side")

	_, err := q.Ingest(
		ctx, guildID, "alice", "https://tracks.example/a",
		SubmissionCategoryRegular,
	)
	require.NoError(t, err)
	_, err = q.Ingest(
		ctx, guildID, "bob", "https://tracks.example/b", bSide,
	)
	require.NoError(t, err)

	// Each category queue only sees its own submissions
	regularCount, err := q.PendingLength(
		ctx, guildID, SubmissionCategoryRegular,
	)
	require.NoError(t, err)
	assert.Equal(t, int64(1), regularCount)

	claimed, err := q.Dequeue(ctx, guildID, "reviewer", bSide)
	require.NoError(t, err)
	assert.Equal(t, "bob", claimed.UserID)
	require.NoError(t, q.Complete(ctx, claimed.ID))
	assert.Equal(t, 1, q.SessionReviewedCount(guildID, bSide))
	assert.Equal(
		t, 0, q.SessionReviewedCount(guildID, SubmissionCategoryRegular),
	)

	// Closing the b-side session leaves the regular queue untouched
	_, err = q.CloseSession(ctx, guildID, bSide)
	require.NoError(t, err)

	regular, err := q.Pending(ctx, guildID, SubmissionCategoryRegular)
	require.NoError(t, err)
	require.Len(t, regular, 1)
	assert.Equal(t, "alice", regular[0].UserID)

	var remaining []Submission
	require.NoError(
		t,
		db.Where("guild_id = ?", guildID).Find(&remaining).Error,
	)
	assert.Len(t, remaining, 2, "reviewed b-side row and pending regular row")
}

func TestSweepExpiredReviews(t *testing.T) {
	db := gormDB(t)
	writeDB := NewDatabase(db, nil, false)
	q := NewSubmissionQueue(
		db,
		writeDB,
		&SubmissionConfig{
			ReviewTimeout: time.Hour,
			SweepInterval: time.Minute,
		},
		nil,
	)
	ctx := context.Background()
	guildID := "guild-1"

	fresh := &Submission{
		GuildID:         guildID,
		UserID:          "fresh",
		TrackURL:        "https://tracks.example/fresh",
		Status:          SubmissionReviewing,
		ReviewerID:      "reviewer",
		ReviewStartedAt: time.Now().UnixMilli(),
	}
	stale := &Submission{
		GuildID:         guildID,
		UserID:          "stale",
		TrackURL:        "https://tracks.example/stale",
		Status:          SubmissionReviewing,
		ReviewerID:      "reviewer",
		ReviewStartedAt: time.Now().Add(-2 * time.Hour).UnixMilli(),
	}
	_, err := writeDB.Create(ctx, fresh)
	require.NoError(t, err)
	_, err = writeDB.Create(ctx, stale)
	require.NoError(t, err)

	guilds, err := q.sweepExpiredReviews(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{guildID}, guilds)

	var stored Submission
	require.NoError(t, db.First(&stored, stale.ID).Error)
	assert.Equal(t, SubmissionPending, stored.Status)

	var storedFresh Submission
	require.NoError(t, db.First(&storedFresh, fresh.ID).Error)
	assert.Equal(t, SubmissionReviewing, storedFresh.Status)
}
