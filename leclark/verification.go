package leclark

import (
	"context"
	"errors"
	"log/slog"

	"github.com/lmittmann/tint"
	"gorm.io/gorm"
)

var columnVerificationLinkStatus = "status"

// VerificationStatus is the state of a membership verification link.
type VerificationStatus string

const (
	VerificationPending  VerificationStatus = "pending"
	VerificationVerified VerificationStatus = "verified"
)

// VerificationLink tracks a membership verification in flight. The actual
// identity exchange happens outside this process - an external callback
// marks the link verified, and the verification sweep applies the member
// role and discards the link.
//
//nolint:lll // struct tags can't be split
type VerificationLink struct {
	// State is the random opaque token identifying this verification
	State string `json:"state" gorm:"primaryKey;type:string"`

	GuildID string `json:"guild_id" gorm:"index;type:string;not null"`
	UserID  string `json:"user_id" gorm:"type:string;not null"`

	Status VerificationStatus `json:"status" gorm:"type:string;default:pending;check:status in ('pending', 'verified')"`

	// VerifiedAccount is the external account name reported by the
	// verification callback
	VerifiedAccount string `json:"verified_account" gorm:"type:string"`

	ModelUnixTime
}

func (v VerificationLink) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("state", v.State),
		slog.String("guild_id", v.GuildID),
		slog.String("user_id", v.UserID),
		slog.String("status", string(v.Status)),
	)
}

// WidgetToken maps an opaque token to a guild, authorizing read-only
// widget subscriptions for that guild.
type WidgetToken struct {
	Token   string `json:"token" gorm:"primaryKey;type:string"`
	GuildID string `json:"guild_id" gorm:"uniqueIndex;type:string;not null"`

	ModelUnixTime
}

// NewVerificationLink creates a pending verification link with a random
// state token.
func NewVerificationLink(
	ctx context.Context,
	writeDB DBI,
	guildID string,
	userID string,
) (*VerificationLink, error) {
	state, err := generateRandomHexString(32)
	if err != nil {
		return nil, err
	}
	link := &VerificationLink{
		State:   state,
		GuildID: guildID,
		UserID:  userID,
		Status:  VerificationPending,
	}
	if _, err = writeDB.Create(ctx, link); err != nil {
		return nil, err
	}
	return link, nil
}

// CompleteVerification marks a pending link verified. Returns
// gorm.ErrRecordNotFound if no pending link exists for the state.
func CompleteVerification(
	ctx context.Context,
	writeDB DBI,
	state string,
	accountName string,
) error {
	rows, err := writeDB.UpdatesWhere(
		ctx,
		&VerificationLink{},
		map[string]any{
			columnVerificationLinkStatus: VerificationVerified,
			"verified_account":           accountName,
		},
		"state = ? AND status = ?",
		state,
		VerificationPending,
	)
	if err != nil {
		return err
	}
	if rows == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// GetOrCreateWidgetToken returns the widget token for a guild, creating
// one if none exists.
func GetOrCreateWidgetToken(
	ctx context.Context,
	db *gorm.DB,
	writeDB DBI,
	guildID string,
) (string, error) {
	var existing WidgetToken
	err := db.Where("guild_id = ?", guildID).First(&existing).Error
	if err == nil {
		return existing.Token, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return "", err
	}
	token, err := generateRandomHexString(48)
	if err != nil {
		return "", err
	}
	if _, err = writeDB.Create(
		ctx,
		&WidgetToken{Token: token, GuildID: guildID},
	); err != nil {
		return "", err
	}
	return token, nil
}

// GuildFromWidgetToken resolves a widget token to its guild ID. Returns
// an empty string when the token is unknown.
func GuildFromWidgetToken(db *gorm.DB, token string) (string, error) {
	var wt WidgetToken
	err := db.Where("token = ?", token).First(&wt).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", nil
		}
		return "", err
	}
	return wt.GuildID, nil
}

// applyCompletedVerifications grants the member role (and removes the
// unverified role) for every verified link, then deletes the links.
// Called periodically from the verification sweep.
func (l *LeClark) applyCompletedVerifications(ctx context.Context) {
	logger := l.logger.With(loggerNameKey, "verification")

	var links []VerificationLink
	if err := l.db.WithContext(ctx).Where(
		"status = ?", VerificationVerified,
	).Find(&links).Error; err != nil {
		logger.ErrorContext(
			ctx,
			"error loading completed verifications",
			tint.Err(err),
		)
		return
	}

	for _, link := range links {
		settings, err := GetGuildSettings(l.db, link.GuildID)
		if err != nil {
			logger.ErrorContext(
				ctx, "error loading guild settings",
				"verification_link", link, tint.Err(err),
			)
			continue
		}

		if settings.MemberRoleID != "" {
			if err = l.discord.session.GuildMemberRoleAdd(
				link.GuildID, link.UserID, settings.MemberRoleID,
			); err != nil {
				logger.WarnContext(
					ctx, "error granting member role",
					"verification_link", link, tint.Err(err),
				)
				continue
			}
		}
		if settings.UnverifiedRoleID != "" {
			if err = l.discord.session.GuildMemberRoleRemove(
				link.GuildID, link.UserID, settings.UnverifiedRoleID,
			); err != nil {
				logger.WarnContext(
					ctx, "error removing unverified role",
					"verification_link", link, tint.Err(err),
				)
			}
		}

		if _, err = l.writeDB.Delete(
			&VerificationLink{}, "state = ?", link.State,
		); err != nil {
			logger.ErrorContext(
				ctx, "error deleting verification link",
				"verification_link", link, tint.Err(err),
			)
			continue
		}
		logger.InfoContext(
			ctx,
			"verification applied",
			"verification_link", link,
		)
	}
}
