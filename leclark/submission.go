package leclark

import (
	"log/slog"
	"time"
)

var (
	columnSubmissionStatus          = "status"
	columnSubmissionReviewerID      = "reviewer_id"
	columnSubmissionSubmittedAt     = "submitted_at"
	columnSubmissionReviewStartedAt = "review_started_at"
)

// SubmissionStatus is the review state of a single submission.
type SubmissionStatus string

const (
	// SubmissionPending indicates the submission is waiting in the queue
	SubmissionPending SubmissionStatus = "pending"

	// SubmissionReviewing indicates a staff member has pulled the
	// submission for review
	SubmissionReviewing SubmissionStatus = "reviewing"

	// SubmissionReviewed is terminal - reviewed submissions persist
	// permanently for statistics
	SubmissionReviewed SubmissionStatus = "reviewed"
)

func (s SubmissionStatus) String() string {
	return string(s)
}

// SubmissionCategory tags a submission queue. Each guild has an
// independent queue per category.
type SubmissionCategory string

const (
	SubmissionCategoryRegular SubmissionCategory = "regular"
)

// Submission is a single submitted track.
//
// Lifecycle: pending -> reviewing -> reviewed (terminal), with a recovery
// edge reviewing -> pending (stuck-review reset). Non-reviewed rows are
// purged when the session closes.
//
//nolint:lll // struct tags can't be split
type Submission struct {
	ModelUintID

	// GuildID is the guild the submission belongs to
	GuildID string `json:"guild_id" gorm:"index;type:string;not null"`

	// UserID is the submitter's Discord user ID
	UserID string `json:"user_id" gorm:"index;type:string;not null"`

	// TrackURL is the submitted content reference (attachment URL)
	TrackURL string `json:"track_url" gorm:"type:string;not null"`

	// Status is the review state
	Status SubmissionStatus `json:"status" gorm:"type:string;not null;check:status in ('pending', 'reviewing', 'reviewed')"`

	// SubmittedAt is a unix millisecond timestamp. Dequeue ordering is
	// ascending on this column; a first-ever submission is re-stamped to
	// zero so it sorts ahead of everything else.
	SubmittedAt int64 `json:"submitted_at" gorm:"index;not null"`

	// ReviewerID is the staff member currently (or last) reviewing
	ReviewerID string `json:"reviewer_id" gorm:"type:string"`

	// Category selects the queue this submission belongs to
	Category SubmissionCategory `json:"category" gorm:"index;type:string;default:regular"`

	// ReviewStartedAt is set when the submission transitions to
	// 'reviewing', and is used by the stuck-review sweep
	ReviewStartedAt int64 `json:"review_started_at"`

	ModelUnixTime
}

func (s Submission) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Uint64("id", uint64(s.ID)),
		slog.String("guild_id", s.GuildID),
		slog.String("user_id", s.UserID),
		slog.String("status", s.Status.String()),
		slog.String("category", string(s.Category)),
	)
}

// ReviewExpired reports whether this submission has been in 'reviewing'
// longer than the given timeout, as of t.
func (s Submission) ReviewExpired(t time.Time, timeout time.Duration) bool {
	if s.Status != SubmissionReviewing || s.ReviewStartedAt == 0 {
		return false
	}
	return t.UnixMilli()-s.ReviewStartedAt > timeout.Milliseconds()
}
