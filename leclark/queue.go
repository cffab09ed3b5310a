package leclark

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/lmittmann/tint"
	"gorm.io/gorm"
)

// ErrQueueEmpty is returned by [SubmissionQueue.Dequeue] when no pending
// submission exists. It signals a normal empty-queue condition, not a
// failure.
var ErrQueueEmpty = errors.New("no pending submissions")

// SubmissionQueue manages the durable review queue for all guilds.
// Pending submissions are ordered by submitted_at ascending; a user's
// first-ever submission in a category is re-stamped to the epoch so it
// sorts ahead of everything else.
type SubmissionQueue struct {
	db      *gorm.DB
	writeDB DBI
	config  *SubmissionConfig
	logger  *slog.Logger

	// reviewedCounts tracks submissions reviewed in the current session,
	// keyed by guild and category. Ephemeral: zeroed when a session
	// opens or closes.
	reviewedCounts map[string]int
	countMu        sync.Mutex
}

// sessionKey scopes the ephemeral session counter to one guild's queue
// for one category.
func sessionKey(guildID string, category SubmissionCategory) string {
	return guildID + "/" + string(category)
}

func normalizeCategory(category SubmissionCategory) SubmissionCategory {
	if category == "" {
		return SubmissionCategoryRegular
	}
	return category
}

func NewSubmissionQueue(
	db *gorm.DB,
	writeDB DBI,
	config *SubmissionConfig,
	logger *slog.Logger,
) *SubmissionQueue {
	if logger == nil {
		logger = slog.Default()
	}
	return &SubmissionQueue{
		db:             db,
		writeDB:        writeDB,
		config:         config,
		logger:         logger.With(loggerNameKey, "submission_queue"),
		reviewedCounts: map[string]int{},
	}
}

// Ingest records a new pending submission. If this is the user's
// first-ever submission in the category for this guild, the submission
// is stamped with the zero timestamp so it takes priority over the rest
// of the queue.
func (q *SubmissionQueue) Ingest(
	ctx context.Context,
	guildID string,
	userID string,
	trackURL string,
	category SubmissionCategory,
) (*Submission, error) {
	category = normalizeCategory(category)

	var prior int64
	err := q.db.WithContext(ctx).Model(&Submission{}).Where(
		"guild_id = ? AND user_id = ? AND category = ?",
		guildID,
		userID,
		category,
	).Count(&prior).Error
	if err != nil {
		return nil, err
	}

	submittedAt := time.Now().UnixMilli()
	if prior == 0 {
		submittedAt = 0
	}

	submission := &Submission{
		GuildID:     guildID,
		UserID:      userID,
		TrackURL:    trackURL,
		Status:      SubmissionPending,
		Category:    category,
		SubmittedAt: submittedAt,
	}
	if _, err = q.writeDB.Create(ctx, submission); err != nil {
		return nil, err
	}
	q.logger.InfoContext(
		ctx,
		"submission ingested",
		"submission", submission,
		"first_submission", prior == 0,
	)
	return submission, nil
}

// Dequeue claims the earliest pending submission in a guild's category
// queue, moving it to 'reviewing' and stamping the review start time.
// Returns [ErrQueueEmpty] when no pending submission exists.
func (q *SubmissionQueue) Dequeue(
	ctx context.Context,
	guildID string,
	reviewerID string,
	category SubmissionCategory,
) (*Submission, error) {
	category = normalizeCategory(category)
	var claimed *Submission
	err := q.writeDB.Transaction(ctx, func(tx *gorm.DB) error {
		var next Submission
		rv := tx.Where(
			"guild_id = ? AND status = ? AND category = ?",
			guildID,
			SubmissionPending,
			category,
		).Order(columnSubmissionSubmittedAt + " asc").Order("id asc").First(&next)
		if rv.Error != nil {
			if errors.Is(rv.Error, gorm.ErrRecordNotFound) {
				return ErrQueueEmpty
			}
			return rv.Error
		}
		updates := tx.Model(&next).Updates(map[string]any{
			columnSubmissionStatus:          SubmissionReviewing,
			columnSubmissionReviewerID:      reviewerID,
			columnSubmissionReviewStartedAt: time.Now().UnixMilli(),
		})
		if updates.Error != nil {
			return updates.Error
		}
		claimed = &next
		return nil
	})
	if err != nil {
		return nil, err
	}
	q.logger.InfoContext(
		ctx,
		"submission claimed for review",
		"submission", claimed,
	)
	return claimed, nil
}

// Complete marks a reviewing submission as reviewed (terminal) and bumps
// the session counter for its guild. Completing a submission that is not
// in 'reviewing' is a no-op returning gorm.ErrRecordNotFound.
func (q *SubmissionQueue) Complete(
	ctx context.Context,
	submissionID uint,
) error {
	var submission Submission
	err := q.db.WithContext(ctx).First(&submission, submissionID).Error
	if err != nil {
		return err
	}
	rows, err := q.writeDB.UpdatesWhere(
		ctx,
		&Submission{},
		map[string]any{columnSubmissionStatus: SubmissionReviewed},
		"id = ? AND status = ?",
		submissionID,
		SubmissionReviewing,
	)
	if err != nil {
		return err
	}
	if rows == 0 {
		return gorm.ErrRecordNotFound
	}

	key := sessionKey(submission.GuildID, submission.Category)
	q.countMu.Lock()
	q.reviewedCounts[key]++
	count := q.reviewedCounts[key]
	q.countMu.Unlock()

	q.logger.InfoContext(
		ctx,
		"submission reviewed",
		"submission", submission,
		"session_reviewed_count", count,
	)
	return nil
}

// ResetStuck returns a reviewing submission to the pending queue,
// clearing the reviewer and review start time. The original submitted_at
// is retained, so the submission keeps its place in line.
func (q *SubmissionQueue) ResetStuck(
	ctx context.Context,
	submissionID uint,
) error {
	rows, err := q.writeDB.UpdatesWhere(
		ctx,
		&Submission{},
		map[string]any{
			columnSubmissionStatus:          SubmissionPending,
			columnSubmissionReviewerID:      "",
			columnSubmissionReviewStartedAt: 0,
		},
		"id = ? AND status = ?",
		submissionID,
		SubmissionReviewing,
	)
	if err != nil {
		return err
	}
	if rows == 0 {
		return gorm.ErrRecordNotFound
	}
	q.logger.InfoContext(
		ctx,
		"stuck review reset",
		"submission_id", submissionID,
	)
	return nil
}

// OpenSession flips the guild's durable submission flag open and zeroes
// the category's session counter, so each session starts counting from
// scratch.
func (q *SubmissionQueue) OpenSession(
	ctx context.Context,
	guildID string,
	category SubmissionCategory,
) error {
	if err := setSubmissionStatus(
		ctx, q.writeDB, guildID, SubmissionsOpen,
	); err != nil {
		return err
	}
	q.countMu.Lock()
	delete(q.reviewedCounts, sessionKey(guildID, normalizeCategory(category)))
	q.countMu.Unlock()
	return nil
}

// CloseSession flips the guild's durable submission flag closed, purges
// the category's non-reviewed submissions, and resets the ephemeral
// session counter. Returns the number of submissions reviewed during
// the session.
func (q *SubmissionQueue) CloseSession(
	ctx context.Context,
	guildID string,
	category SubmissionCategory,
) (reviewed int, err error) {
	category = normalizeCategory(category)
	if err = setSubmissionStatus(
		ctx, q.writeDB, guildID, SubmissionsClosed,
	); err != nil {
		return 0, err
	}

	purged, err := q.writeDB.Delete(
		&Submission{},
		"guild_id = ? AND status != ? AND category = ?",
		guildID,
		SubmissionReviewed,
		category,
	)
	if err != nil {
		return 0, err
	}

	key := sessionKey(guildID, category)
	q.countMu.Lock()
	reviewed = q.reviewedCounts[key]
	delete(q.reviewedCounts, key)
	q.countMu.Unlock()

	q.logger.InfoContext(
		ctx,
		"submission session closed",
		"guild_id", guildID,
		"purged", purged,
		"reviewed", reviewed,
	)
	return reviewed, nil
}

// SessionReviewedCount returns the number of submissions reviewed so far
// in the guild's current session for a category.
func (q *SubmissionQueue) SessionReviewedCount(
	guildID string,
	category SubmissionCategory,
) int {
	q.countMu.Lock()
	defer q.countMu.Unlock()
	return q.reviewedCounts[sessionKey(guildID, normalizeCategory(category))]
}

// TotalReviewedCount returns the all-time number of reviewed submissions
// for a guild and category. Reviewed rows are never purged, so this
// count survives session closes and restarts.
func (q *SubmissionQueue) TotalReviewedCount(
	ctx context.Context,
	guildID string,
	category SubmissionCategory,
) (int64, error) {
	var count int64
	err := q.db.WithContext(ctx).Model(&Submission{}).Where(
		"guild_id = ? AND status = ? AND category = ?",
		guildID,
		SubmissionReviewed,
		normalizeCategory(category),
	).Count(&count).Error
	return count, err
}

// PendingLength returns the number of pending submissions in a guild's
// category queue.
func (q *SubmissionQueue) PendingLength(
	ctx context.Context,
	guildID string,
	category SubmissionCategory,
) (int64, error) {
	var count int64
	err := q.db.WithContext(ctx).Model(&Submission{}).Where(
		"guild_id = ? AND status = ? AND category = ?",
		guildID,
		SubmissionPending,
		normalizeCategory(category),
	).Count(&count).Error
	return count, err
}

// Pending returns a guild's pending category submissions in queue order.
func (q *SubmissionQueue) Pending(
	ctx context.Context,
	guildID string,
	category SubmissionCategory,
) ([]Submission, error) {
	var submissions []Submission
	err := q.db.WithContext(ctx).Where(
		"guild_id = ? AND status = ? AND category = ?",
		guildID,
		SubmissionPending,
		normalizeCategory(category),
	).Order(columnSubmissionSubmittedAt + " asc").Order("id asc").Find(
		&submissions,
	).Error
	return submissions, err
}

// Reviewing returns the submission currently under review in a guild's
// category queue, or nil when none is.
func (q *SubmissionQueue) Reviewing(
	ctx context.Context,
	guildID string,
	category SubmissionCategory,
) (*Submission, error) {
	var submission Submission
	err := q.db.WithContext(ctx).Where(
		"guild_id = ? AND status = ? AND category = ?",
		guildID,
		SubmissionReviewing,
		normalizeCategory(category),
	).Order(columnSubmissionReviewStartedAt + " asc").First(&submission).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &submission, nil
}

// sweepExpiredReviews returns any reviewing submission whose review has
// exceeded the configured timeout back to the pending queue. Returns the
// IDs of affected guilds so callers can refresh their panels.
func (q *SubmissionQueue) sweepExpiredReviews(
	ctx context.Context,
) ([]string, error) {
	now := time.Now()
	var stale []Submission
	err := q.db.WithContext(ctx).Where(
		"status = ?",
		SubmissionReviewing,
	).Find(&stale).Error
	if err != nil {
		return nil, err
	}

	var guilds []string
	for _, submission := range stale {
		if !submission.ReviewExpired(now, q.config.ReviewTimeout) {
			continue
		}
		if err = q.ResetStuck(ctx, submission.ID); err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				continue
			}
			q.logger.ErrorContext(
				ctx,
				"error resetting expired review",
				"submission", submission,
				tint.Err(err),
			)
			continue
		}
		q.logger.WarnContext(
			ctx,
			"review timed out, submission returned to queue",
			"submission", submission,
			"timeout", q.config.ReviewTimeout,
		)
		guilds = append(guilds, submission.GuildID)
	}
	return guilds, nil
}

// watchExpiredReviews runs the expired-review sweep on the configured
// interval until the context is canceled.
func (q *SubmissionQueue) watchExpiredReviews(
	ctx context.Context,
	onReset func(ctx context.Context, guildID string),
) {
	interval := q.config.SweepInterval
	if interval <= 0 {
		interval = DefaultReviewSweepInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	q.logger.InfoContext(
		ctx,
		"watching for expired reviews",
		"interval", interval,
		"timeout", q.config.ReviewTimeout,
	)
	for {
		select {
		case <-ctx.Done():
			q.logger.InfoContext(ctx, "expired review watcher stopping")
			return
		case <-ticker.C:
			guilds, err := q.sweepExpiredReviews(ctx)
			if err != nil {
				q.logger.ErrorContext(
					ctx,
					"expired review sweep failed",
					tint.Err(err),
				)
				continue
			}
			if onReset != nil {
				for _, guildID := range guilds {
					onReset(ctx, guildID)
				}
			}
		}
	}
}
