package leclark

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/lmittmann/tint"
)

// ActionKind discriminates [ActionTask] payloads.
type ActionKind string

const (
	// ActionModerateUser mutes, kicks, or bans a user
	ActionModerateUser ActionKind = "moderate-user"

	// ActionSendMessage sends a message to a channel
	ActionSendMessage ActionKind = "send-message"

	// ActionManageStaff grants or revokes a managed staff role
	ActionManageStaff ActionKind = "manage-staff"

	// ActionResetStuckReview returns a reviewing submission to the queue
	ActionResetStuckReview ActionKind = "reset-stuck-review"
)

// ModerationVerb is the concrete moderation to apply for an
// [ActionModerateUser] task.
type ModerationVerb string

const (
	ModerationMute ModerationVerb = "mute"
	ModerationKick ModerationVerb = "kick"
	ModerationBan  ModerationVerb = "ban"
	ModerationWarn ModerationVerb = "warn"
)

// ActionTask is a unit of deferred work submitted by the control panel
// API and executed in order by the action queue consumer. Exactly the
// fields relevant to Kind are set.
type ActionTask struct {
	Kind    ActionKind `json:"kind"`
	GuildID string     `json:"guild_id"`

	// TargetUserID is the subject for moderate-user and manage-staff
	TargetUserID string `json:"target_user_id,omitempty"`

	// ActorID is the staff member who requested the action
	ActorID string `json:"actor_id,omitempty"`

	Verb     ModerationVerb `json:"verb,omitempty"`
	Reason   string         `json:"reason,omitempty"`
	Duration time.Duration  `json:"duration,omitempty"`

	// ChannelID and Content apply to send-message
	ChannelID string `json:"channel_id,omitempty"`
	Content   string `json:"content,omitempty"`

	// RoleID and Grant apply to manage-staff
	RoleID string `json:"role_id,omitempty"`
	Grant  bool   `json:"grant,omitempty"`

	// SubmissionID applies to reset-stuck-review
	SubmissionID uint `json:"submission_id,omitempty"`

	// EnqueuedAt is stamped by Enqueue
	EnqueuedAt time.Time `json:"enqueued_at"`
}

func (t ActionTask) LogValue() slog.Value {
	attrs := []slog.Attr{
		slog.String("kind", string(t.Kind)),
		slog.String("guild_id", t.GuildID),
	}
	if t.TargetUserID != "" {
		attrs = append(attrs, slog.String("target_user_id", t.TargetUserID))
	}
	if t.ActorID != "" {
		attrs = append(attrs, slog.String("actor_id", t.ActorID))
	}
	if t.Verb != "" {
		attrs = append(attrs, slog.String("verb", string(t.Verb)))
	}
	if t.ChannelID != "" {
		attrs = append(attrs, slog.String("channel_id", t.ChannelID))
	}
	if t.RoleID != "" {
		attrs = append(
			attrs,
			slog.String("role_id", t.RoleID),
			slog.Bool("grant", t.Grant),
		)
	}
	if t.SubmissionID != 0 {
		attrs = append(attrs, slog.Uint64(
			"submission_id", uint64(t.SubmissionID),
		))
	}
	return slog.GroupValue(attrs...)
}

// ErrQueueFull is returned by [ActionQueue.Enqueue] when the buffer is
// at capacity.
var ErrQueueFull = errors.New("action queue full")

// ActionExecutor performs a single task. Implemented by [LeClark];
// separated so the queue can be tested without Discord.
type ActionExecutor interface {
	ExecuteAction(ctx context.Context, task ActionTask) error
}

// ActionQueue decouples the API from Discord execution: producers
// enqueue tasks onto a buffered channel, and a single consumer
// goroutine executes them strictly in order. A task whose preconditions
// no longer hold when it reaches the front is logged and dropped - it
// never stalls or reorders the queue.
type ActionQueue struct {
	tasks    chan ActionTask
	executor ActionExecutor
	logger   *slog.Logger
}

func NewActionQueue(
	config *ActionQueueConfig,
	executor ActionExecutor,
	logger *slog.Logger,
) *ActionQueue {
	if logger == nil {
		logger = slog.Default()
	}
	size := DefaultActionQueueSize
	if config != nil && config.Size > 0 {
		size = config.Size
	}
	return &ActionQueue{
		tasks:    make(chan ActionTask, size),
		executor: executor,
		logger:   logger.With(loggerNameKey, "action_queue"),
	}
}

// Enqueue submits a task for ordered execution. Non-blocking: returns
// [ErrQueueFull] rather than waiting when the buffer is at capacity.
func (q *ActionQueue) Enqueue(ctx context.Context, task ActionTask) error {
	task.EnqueuedAt = time.Now()
	select {
	case q.tasks <- task:
		q.logger.InfoContext(ctx, "task enqueued", "task", task)
		return nil
	default:
		q.logger.WarnContext(ctx, "queue full, task rejected", "task", task)
		return ErrQueueFull
	}
}

// Len returns the number of tasks currently buffered.
func (q *ActionQueue) Len() int {
	return len(q.tasks)
}

// Consume executes tasks one at a time until the context is canceled.
// Execution errors are logged and the task dropped; the consumer never
// stops on a bad task.
func (q *ActionQueue) Consume(ctx context.Context) {
	q.logger.InfoContext(
		ctx,
		"action queue consumer started",
		"capacity", cap(q.tasks),
	)
	for {
		select {
		case <-ctx.Done():
			q.logger.InfoContext(
				ctx,
				"action queue consumer stopping",
				"pending", len(q.tasks),
			)
			return
		case task := <-q.tasks:
			q.execute(ctx, task)
		}
	}
}

func (q *ActionQueue) execute(ctx context.Context, task ActionTask) {
	started := time.Now()
	err := q.executor.ExecuteAction(ctx, task)
	if err != nil {
		q.logger.ErrorContext(
			ctx,
			"task failed, dropping",
			"task", task,
			"queued_for", started.Sub(task.EnqueuedAt),
			tint.Err(err),
		)
		return
	}
	q.logger.InfoContext(
		ctx,
		"task executed",
		"task", task,
		"duration", time.Since(started),
	)
}
