//nolint:lll // struct tags can't be split
package leclark

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	columnGuildSettingsSubmissionStatus     = "submission_status"
	columnGuildSettingsReviewPanelMessageID = "review_panel_message_id"
)

type SubmissionSessionStatus string

const (
	SubmissionsOpen   SubmissionSessionStatus = "open"
	SubmissionsClosed SubmissionSessionStatus = "closed"
)

// GuildSettings is the durable per-guild configuration: channel and role
// references, the submission session flag, the stored panel message
// reference, and warning escalation thresholds. One row per guild.
type GuildSettings struct {
	// GuildID is the Discord guild (server) ID
	GuildID string `json:"guild_id" gorm:"primaryKey;type:string"`

	// LogChannelID is where moderation embeds are sent
	LogChannelID string `json:"log_channel_id" gorm:"type:string"`

	// SubmissionChannelID is the channel submissions are ingested from
	SubmissionChannelID string `json:"submission_channel_id" gorm:"type:string"`

	// ReviewChannelID is where the review control panel lives
	ReviewChannelID string `json:"review_channel_id" gorm:"type:string"`

	// AnnouncementChannelID is used for session open/close announcements
	AnnouncementChannelID string `json:"announcement_channel_id" gorm:"type:string"`

	// AdminRoleIDs is a comma-separated list of role IDs granted admin
	// access to the bot
	AdminRoleIDs string `json:"admin_role_ids" gorm:"type:string"`

	// ModRoleIDs is a comma-separated list of role IDs granted moderator
	// access to the bot
	ModRoleIDs string `json:"mod_role_ids" gorm:"type:string"`

	// UnverifiedRoleID is removed from members once verified
	UnverifiedRoleID string `json:"unverified_role_id" gorm:"type:string"`

	// MemberRoleID is granted to members once verified
	MemberRoleID string `json:"member_role_id" gorm:"type:string"`

	// SubmissionStatus indicates whether a submission session is
	// currently open
	SubmissionStatus SubmissionSessionStatus `json:"submission_status" gorm:"type:string;default:closed;check:submission_status in ('open', 'closed')"`

	// ReviewPanelChannelID/ReviewPanelMessageID reference the posted
	// review panel message. Empty when no panel has been posted.
	ReviewPanelChannelID string `json:"review_panel_channel_id" gorm:"type:string"`
	ReviewPanelMessageID string `json:"review_panel_message_id" gorm:"type:string"`

	// WarningLimit is the warning count at which the configured
	// escalation action is applied
	WarningLimit int `json:"warning_limit" gorm:"default:3"`

	// WarningAction is the escalation applied at WarningLimit:
	// mute, kick, or ban
	WarningAction string `json:"warning_action" gorm:"type:string;default:mute;check:warning_action in ('mute', 'kick', 'ban')"`

	// WarningActionDuration applies when WarningAction is 'mute'
	WarningActionDuration time.Duration `json:"warning_action_duration" gorm:"default:3600000000000"`

	// SubmissionsEnabled toggles the submission system for the guild
	SubmissionsEnabled bool `json:"submissions_enabled" gorm:"default:true"`

	ModelUnixTime
}

func (GuildSettings) TableName() string {
	return "guild_settings"
}

func (g GuildSettings) LogValue() slog.Value {
	return structToSlogValue(g)
}

// AdminRoles returns the configured admin role IDs.
func (g GuildSettings) AdminRoles() []string {
	return parseRoleIDs(g.AdminRoleIDs)
}

// ModRoles returns the configured moderator role IDs. Admin roles are
// included - admins can do anything mods can.
func (g GuildSettings) ModRoles() []string {
	return append(g.AdminRoles(), parseRoleIDs(g.ModRoleIDs)...)
}

// SessionOpen reports whether a submission session is currently open.
func (g GuildSettings) SessionOpen() bool {
	return g.SubmissionStatus == SubmissionsOpen
}

// hasAnyRole reports whether any of roleIDs appears in want.
func hasAnyRole(roleIDs []string, want []string) bool {
	if len(want) == 0 {
		return false
	}
	wanted := make(map[string]struct{}, len(want))
	for _, id := range want {
		wanted[id] = struct{}{}
	}
	for _, id := range roleIDs {
		if _, ok := wanted[id]; ok {
			return true
		}
	}
	return false
}

// GetGuildSettings loads the settings row for a guild, creating a default
// row if one doesn't exist yet.
func GetGuildSettings(db *gorm.DB, guildID string) (*GuildSettings, error) {
	if guildID == "" {
		return nil, fmt.Errorf("empty guild ID")
	}
	settings := GuildSettings{
		GuildID:               guildID,
		SubmissionStatus:      SubmissionsClosed,
		WarningLimit:          DefaultWarningLimit,
		WarningAction:         DefaultWarningAction,
		WarningActionDuration: DefaultWarningActionDuration,
		SubmissionsEnabled:    true,
	}
	err := db.Clauses(clause.OnConflict{DoNothing: true}).Where(
		"guild_id = ?", guildID,
	).FirstOrCreate(&settings).Error
	if err != nil {
		return nil, err
	}
	return &settings, nil
}

// setSubmissionStatus persists the open/closed session flag for a guild.
func setSubmissionStatus(
	ctx context.Context,
	writeDB DBI,
	guildID string,
	status SubmissionSessionStatus,
) error {
	_, err := writeDB.UpdatesWhere(
		ctx,
		&GuildSettings{},
		map[string]any{columnGuildSettingsSubmissionStatus: status},
		"guild_id = ?",
		guildID,
	)
	return err
}
