package leclark

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/lmittmann/tint"
	"gorm.io/gorm"
)

const banDeleteMessageDays = 0

// moderationSession is the subset of [discordgo.Session] moderation
// needs. Narrowed for testing.
type moderationSession interface {
	GuildMemberTimeout(
		guildID string,
		userID string,
		until *time.Time,
		options ...discordgo.RequestOption,
	) error
	GuildMemberDeleteWithReason(
		guildID string,
		userID string,
		reason string,
		options ...discordgo.RequestOption,
	) error
	GuildBanCreateWithReason(
		guildID string,
		userID string,
		reason string,
		days int,
		options ...discordgo.RequestOption,
	) error
	ChannelMessageSendEmbed(
		channelID string,
		embed *discordgo.MessageEmbed,
		options ...discordgo.RequestOption,
	) (*discordgo.Message, error)
}

// Warning is a moderation warning on record for a user in a guild.
// Warnings accumulate until the guild's limit triggers the configured
// escalation, which clears them.
//
//nolint:lll // struct tags can't be split
type Warning struct {
	ModelUintID
	GuildID     string `json:"guild_id" gorm:"index:idx_warning_guild_user;type:string;not null"`
	UserID      string `json:"user_id" gorm:"index:idx_warning_guild_user;type:string;not null"`
	ModeratorID string `json:"moderator_id" gorm:"type:string"`
	Reason      string `json:"reason" gorm:"type:string"`
	ModelUnixTime
}

func (w Warning) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Uint64("id", uint64(w.ID)),
		slog.String("guild_id", w.GuildID),
		slog.String("user_id", w.UserID),
		slog.String("moderator_id", w.ModeratorID),
	)
}

// Moderator applies moderation verbs and tracks warning escalation.
type Moderator struct {
	db      *gorm.DB
	writeDB DBI
	session moderationSession
	logger  *slog.Logger
}

func NewModerator(
	db *gorm.DB,
	writeDB DBI,
	session moderationSession,
	logger *slog.Logger,
) *Moderator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Moderator{
		db:      db,
		writeDB: writeDB,
		session: session,
		logger:  logger.With(loggerNameKey, "moderation"),
	}
}

// Mute times the user out for the given duration.
func (m *Moderator) Mute(
	ctx context.Context,
	guildID string,
	userID string,
	duration time.Duration,
	reason string,
) error {
	until := time.Now().Add(duration)
	if err := m.session.GuildMemberTimeout(
		guildID, userID, &until,
	); err != nil {
		return fmt.Errorf("error muting user %s: %w", userID, err)
	}
	m.logModeration(ctx, guildID, "Muted", userID, reason, duration)
	return nil
}

// Kick removes the user from the guild.
func (m *Moderator) Kick(
	ctx context.Context,
	guildID string,
	userID string,
	reason string,
) error {
	if err := m.session.GuildMemberDeleteWithReason(
		guildID, userID, reason,
	); err != nil {
		return fmt.Errorf("error kicking user %s: %w", userID, err)
	}
	m.logModeration(ctx, guildID, "Kicked", userID, reason, 0)
	return nil
}

// Ban permanently bans the user from the guild.
func (m *Moderator) Ban(
	ctx context.Context,
	guildID string,
	userID string,
	reason string,
) error {
	if err := m.session.GuildBanCreateWithReason(
		guildID, userID, reason, banDeleteMessageDays,
	); err != nil {
		return fmt.Errorf("error banning user %s: %w", userID, err)
	}
	m.logModeration(ctx, guildID, "Banned", userID, reason, 0)
	return nil
}

// Warn records a warning for the user. If the warning count reaches the
// guild's limit, the configured escalation action is applied and the
// user's warnings are cleared. Returns the user's active warning count
// (zero after an escalation).
func (m *Moderator) Warn(
	ctx context.Context,
	guildID string,
	userID string,
	moderatorID string,
	reason string,
) (int, error) {
	settings, err := GetGuildSettings(m.db, guildID)
	if err != nil {
		return 0, err
	}

	warning := &Warning{
		GuildID:     guildID,
		UserID:      userID,
		ModeratorID: moderatorID,
		Reason:      reason,
	}
	if _, err = m.writeDB.Create(ctx, warning); err != nil {
		return 0, err
	}
	m.logModeration(ctx, guildID, "Warned", userID, reason, 0)

	count, err := m.WarningCount(ctx, guildID, userID)
	if err != nil {
		return 0, err
	}
	if count < settings.WarningLimit {
		return count, nil
	}

	escalationReason := fmt.Sprintf(
		"Reached warning limit (%d): %s",
		settings.WarningLimit,
		reason,
	)
	switch settings.WarningAction {
	case string(ModerationKick):
		err = m.Kick(ctx, guildID, userID, escalationReason)
	case string(ModerationBan):
		err = m.Ban(ctx, guildID, userID, escalationReason)
	default:
		err = m.Mute(
			ctx,
			guildID,
			userID,
			settings.WarningActionDuration,
			escalationReason,
		)
	}
	if err != nil {
		return count, err
	}

	if err = m.ClearWarnings(ctx, guildID, userID); err != nil {
		return count, err
	}
	m.logger.InfoContext(
		ctx,
		"warning limit escalation applied",
		"guild_id", guildID,
		"user_id", userID,
		"action", settings.WarningAction,
	)
	return 0, nil
}

// WarningCount returns the user's active warning count in the guild.
func (m *Moderator) WarningCount(
	ctx context.Context,
	guildID string,
	userID string,
) (int, error) {
	var count int64
	err := m.db.WithContext(ctx).Model(&Warning{}).Where(
		"guild_id = ? AND user_id = ?",
		guildID,
		userID,
	).Count(&count).Error
	return int(count), err
}

// Warnings returns the user's active warnings, newest first.
func (m *Moderator) Warnings(
	ctx context.Context,
	guildID string,
	userID string,
) ([]Warning, error) {
	var warnings []Warning
	err := m.db.WithContext(ctx).Where(
		"guild_id = ? AND user_id = ?",
		guildID,
		userID,
	).Order("created_at desc").Find(&warnings).Error
	return warnings, err
}

// ClearWarnings removes all of the user's warnings in the guild.
func (m *Moderator) ClearWarnings(
	ctx context.Context,
	guildID string,
	userID string,
) error {
	_, err := m.writeDB.Delete(
		&Warning{},
		"guild_id = ? AND user_id = ?",
		guildID,
		userID,
	)
	return err
}

// logModeration posts a moderation embed to the guild's log channel,
// when one is configured. Best-effort.
func (m *Moderator) logModeration(
	ctx context.Context,
	guildID string,
	action string,
	userID string,
	reason string,
	duration time.Duration,
) {
	settings, err := GetGuildSettings(m.db, guildID)
	if err != nil || settings.LogChannelID == "" {
		return
	}
	fields := []*discordgo.MessageEmbedField{
		{Name: "User", Value: fmt.Sprintf("<@%s>", userID), Inline: true},
	}
	if reason != "" {
		fields = append(fields, &discordgo.MessageEmbedField{
			Name: "Reason", Value: reason,
		})
	}
	if duration > 0 {
		fields = append(fields, &discordgo.MessageEmbedField{
			Name: "Duration", Value: duration.String(), Inline: true,
		})
	}
	_, err = m.session.ChannelMessageSendEmbed(
		settings.LogChannelID,
		&discordgo.MessageEmbed{
			Title:     action,
			Color:     0xED4245,
			Fields:    fields,
			Timestamp: time.Now().Format(time.RFC3339),
		},
	)
	if err != nil {
		m.logger.WarnContext(
			ctx,
			"error posting moderation log",
			"guild_id", guildID,
			tint.Err(err),
		)
	}
}
