package leclark

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/lmittmann/tint"
	"gorm.io/gorm"
)

const giveawayEntryPrefix = "giveaway_enter_"

var (
	// ErrGiveawayInactive is returned when entering a giveaway that has
	// already ended (or been swept).
	ErrGiveawayInactive = errors.New("giveaway is not active")

	// ErrAlreadyEntered is returned on a repeat entry. Entries are
	// idempotent: one per user per giveaway.
	ErrAlreadyEntered = errors.New("already entered")

	// ErrSubmissionRequired is returned when a giveaway requires a track
	// submission made after the giveaway started and the user has none.
	ErrSubmissionRequired = errors.New("submission required to enter")
)

// GiveawayStatus is the lifecycle state of a giveaway.
type GiveawayStatus string

const (
	GiveawayActive GiveawayStatus = "active"
	GiveawayEnded  GiveawayStatus = "ended"
)

// Giveaway is a timed prize drawing posted in a channel. Users enter by
// pressing the entry button on the posted message; when the end time
// passes, the sweep picks one winner at random and announces it.
//
//nolint:lll // struct tags can't be split
type Giveaway struct {
	ModelUintID

	// GuildID is the guild the giveaway belongs to
	GuildID string `json:"guild_id" gorm:"index;type:string;not null"`

	// ChannelID is where the giveaway message was posted
	ChannelID string `json:"channel_id" gorm:"type:string;not null"`

	// MessageID is the posted giveaway message carrying the entry button
	MessageID string `json:"message_id" gorm:"type:string"`

	// Prize is what the winner gets
	Prize string `json:"prize" gorm:"type:string;not null"`

	// EndsAt is a unix millisecond timestamp; the sweep draws a winner
	// once this passes
	EndsAt int64 `json:"ends_at" gorm:"index;not null"`

	// Status is 'active' until a winner is drawn
	Status GiveawayStatus `json:"status" gorm:"index;type:string;default:active;check:status in ('active', 'ended')"`

	// WinnerID is set when the giveaway ends with at least one entrant
	WinnerID string `json:"winner_id" gorm:"type:string"`

	// RequireSubmission restricts entry to users who submitted a track
	// after the giveaway started
	RequireSubmission bool `json:"require_submission"`

	ModelUnixTime
}

func (g Giveaway) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Uint64("id", uint64(g.ID)),
		slog.String("guild_id", g.GuildID),
		slog.String("prize", g.Prize),
		slog.String("status", string(g.Status)),
	)
}

// Active reports whether the giveaway is still accepting entries as of t.
func (g Giveaway) Active(t time.Time) bool {
	return g.Status == GiveawayActive && t.UnixMilli() < g.EndsAt
}

// EntryButtonID is the component custom ID for this giveaway's entry
// button.
func (g Giveaway) EntryButtonID() string {
	return fmt.Sprintf("%s%d", giveawayEntryPrefix, g.ID)
}

// parseGiveawayEntryID extracts the giveaway ID from an entry button
// custom ID. The second return is false for unrelated components.
func parseGiveawayEntryID(customID string) (uint, bool) {
	raw, found := strings.CutPrefix(customID, giveawayEntryPrefix)
	if !found {
		return 0, false
	}
	id, err := strconv.ParseUint(raw, 10, 32)
	if err != nil {
		return 0, false
	}
	return uint(id), true
}

// GiveawayEntry is one user's entry in a giveaway.
//
//nolint:lll // struct tags can't be split
type GiveawayEntry struct {
	ModelUintID

	GiveawayID uint   `json:"giveaway_id" gorm:"uniqueIndex:idx_giveaway_entry;not null"`
	UserID     string `json:"user_id" gorm:"uniqueIndex:idx_giveaway_entry;type:string;not null"`

	ModelUnixTime
}

// giveawaySession is the subset of [discordgo.Session] the giveaway
// manager needs. Narrowed for testing.
type giveawaySession interface {
	ChannelMessageSendComplex(
		channelID string,
		data *discordgo.MessageSend,
		options ...discordgo.RequestOption,
	) (*discordgo.Message, error)
	ChannelMessageSendEmbed(
		channelID string,
		embed *discordgo.MessageEmbed,
		options ...discordgo.RequestOption,
	) (*discordgo.Message, error)
}

// GiveawayManager runs timed giveaways: posting the entry message,
// recording entries, and drawing winners once the end time passes.
type GiveawayManager struct {
	db      *gorm.DB
	writeDB DBI
	session giveawaySession
	logger  *slog.Logger
}

func NewGiveawayManager(
	db *gorm.DB,
	writeDB DBI,
	session giveawaySession,
	logger *slog.Logger,
) *GiveawayManager {
	if logger == nil {
		logger = slog.Default()
	}
	return &GiveawayManager{
		db:      db,
		writeDB: writeDB,
		session: session,
		logger:  logger.With(loggerNameKey, "giveaway"),
	}
}

// Start records a new giveaway and posts its entry message in the
// channel.
func (g *GiveawayManager) Start(
	ctx context.Context,
	guildID string,
	channelID string,
	prize string,
	duration time.Duration,
	requireSubmission bool,
) (*Giveaway, error) {
	giveaway := &Giveaway{
		GuildID:           guildID,
		ChannelID:         channelID,
		Prize:             prize,
		EndsAt:            time.Now().Add(duration).UnixMilli(),
		Status:            GiveawayActive,
		RequireSubmission: requireSubmission,
	}
	if _, err := g.writeDB.Create(ctx, giveaway); err != nil {
		return nil, err
	}

	msg, err := g.session.ChannelMessageSendComplex(
		channelID,
		&discordgo.MessageSend{
			Embeds: []*discordgo.MessageEmbed{
				g.renderEmbed(giveaway),
			},
			Components: []discordgo.MessageComponent{
				discordgo.ActionsRow{
					Components: []discordgo.MessageComponent{
						discordgo.Button{
							Label:    "Enter Giveaway",
							Style:    discordgo.SuccessButton,
							CustomID: giveaway.EntryButtonID(),
						},
					},
				},
			},
		},
	)
	if err != nil {
		return nil, fmt.Errorf("error posting giveaway message: %w", err)
	}
	if _, err = g.writeDB.Updates(
		ctx,
		giveaway,
		map[string]any{"message_id": msg.ID},
	); err != nil {
		return nil, err
	}
	giveaway.MessageID = msg.ID
	g.logger.InfoContext(ctx, "giveaway started", "giveaway", giveaway)
	return giveaway, nil
}

func (g *GiveawayManager) renderEmbed(
	giveaway *Giveaway,
) *discordgo.MessageEmbed {
	description := fmt.Sprintf(
		"Press the button below to enter!\nEnds <t:%d:R>",
		giveaway.EndsAt/1000,
	)
	if giveaway.RequireSubmission {
		description += "\n\nYou must submit a track during the giveaway to enter."
	}
	return &discordgo.MessageEmbed{
		Title:       fmt.Sprintf("🎉 Giveaway: %s", giveaway.Prize),
		Description: description,
		Color:       panelEmbedColor,
	}
}

// Enter records a user's entry. Returns [ErrGiveawayInactive] after the
// end time, [ErrAlreadyEntered] on a repeat press, and
// [ErrSubmissionRequired] when the giveaway demands a submission the
// user hasn't made.
func (g *GiveawayManager) Enter(
	ctx context.Context,
	giveawayID uint,
	userID string,
) error {
	var giveaway Giveaway
	err := g.db.WithContext(ctx).First(&giveaway, giveawayID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrGiveawayInactive
		}
		return err
	}
	if !giveaway.Active(time.Now()) {
		return ErrGiveawayInactive
	}

	if giveaway.RequireSubmission {
		// Session closes soft-delete purged submissions, so the check
		// goes through Unscoped: submitting counts even if the queue was
		// cleared afterward.
		var submitted int64
		err = g.db.WithContext(ctx).Unscoped().Model(&Submission{}).Where(
			"guild_id = ? AND user_id = ? AND created_at >= ?",
			giveaway.GuildID,
			userID,
			giveaway.CreatedAt,
		).Count(&submitted).Error
		if err != nil {
			return err
		}
		if submitted == 0 {
			return ErrSubmissionRequired
		}
	}

	var existing int64
	err = g.db.WithContext(ctx).Model(&GiveawayEntry{}).Where(
		"giveaway_id = ? AND user_id = ?",
		giveawayID,
		userID,
	).Count(&existing).Error
	if err != nil {
		return err
	}
	if existing > 0 {
		return ErrAlreadyEntered
	}

	if _, err = g.writeDB.Create(ctx, &GiveawayEntry{
		GiveawayID: giveawayID,
		UserID:     userID,
	}); err != nil {
		return err
	}
	g.logger.InfoContext(
		ctx,
		"giveaway entry recorded",
		"giveaway", giveaway,
		"user_id", userID,
	)
	return nil
}

// Entrants returns the user IDs entered in a giveaway.
func (g *GiveawayManager) Entrants(
	ctx context.Context,
	giveawayID uint,
) ([]string, error) {
	var userIDs []string
	err := g.db.WithContext(ctx).Model(&GiveawayEntry{}).Where(
		"giveaway_id = ?",
		giveawayID,
	).Order("id asc").Pluck("user_id", &userIDs).Error
	return userIDs, err
}

// End marks the giveaway ended, draws one winner at random from the
// entrants, and announces the result in the giveaway's channel. With no
// entrants, no winner is recorded and the announcement says so.
func (g *GiveawayManager) End(
	ctx context.Context,
	giveawayID uint,
) (*Giveaway, error) {
	var giveaway Giveaway
	err := g.db.WithContext(ctx).First(&giveaway, giveawayID).Error
	if err != nil {
		return nil, err
	}
	if giveaway.Status != GiveawayActive {
		return &giveaway, nil
	}

	entrants, err := g.Entrants(ctx, giveawayID)
	if err != nil {
		return nil, err
	}
	var winnerID string
	if len(entrants) > 0 {
		winnerID = entrants[rand.Intn(len(entrants))]
	}

	rows, err := g.writeDB.UpdatesWhere(
		ctx,
		&Giveaway{},
		map[string]any{
			"status":    GiveawayEnded,
			"winner_id": winnerID,
		},
		"id = ? AND status = ?",
		giveawayID,
		GiveawayActive,
	)
	if err != nil {
		return nil, err
	}
	if rows == 0 {
		// Another sweep got here first
		return &giveaway, nil
	}
	giveaway.Status = GiveawayEnded
	giveaway.WinnerID = winnerID

	g.announceResult(ctx, &giveaway, len(entrants))
	g.logger.InfoContext(
		ctx,
		"giveaway ended",
		"giveaway", giveaway,
		"entrants", len(entrants),
		"winner_id", winnerID,
	)
	return &giveaway, nil
}

func (g *GiveawayManager) announceResult(
	ctx context.Context,
	giveaway *Giveaway,
	entrants int,
) {
	embed := &discordgo.MessageEmbed{
		Title: "🎉 Giveaway Ended",
		Color: panelEmbedColor,
		Footer: &discordgo.MessageEmbedFooter{
			Text: fmt.Sprintf("A total of %d people entered", entrants),
		},
	}
	if giveaway.WinnerID == "" {
		embed.Description = fmt.Sprintf(
			"Nobody entered the giveaway for **%s**.", giveaway.Prize,
		)
	} else {
		embed.Description = fmt.Sprintf(
			"Congratulations <@%s>, you won **%s**!",
			giveaway.WinnerID,
			giveaway.Prize,
		)
	}
	if _, err := g.session.ChannelMessageSendEmbed(
		giveaway.ChannelID, embed,
	); err != nil {
		g.logger.WarnContext(
			ctx,
			"error announcing giveaway result",
			"giveaway", giveaway,
			tint.Err(err),
		)
	}
}

// sweepEndedGiveaways ends every active giveaway whose end time has
// passed.
func (g *GiveawayManager) sweepEndedGiveaways(ctx context.Context) error {
	var due []Giveaway
	err := g.db.WithContext(ctx).Where(
		"status = ? AND ends_at <= ?",
		GiveawayActive,
		time.Now().UnixMilli(),
	).Find(&due).Error
	if err != nil {
		return err
	}
	for _, giveaway := range due {
		if _, endErr := g.End(ctx, giveaway.ID); endErr != nil {
			g.logger.ErrorContext(
				ctx,
				"error ending giveaway",
				"giveaway", giveaway,
				tint.Err(endErr),
			)
		}
	}
	return nil
}

// watchGiveaways runs the ended-giveaway sweep once a minute until the
// context is canceled.
func (g *GiveawayManager) watchGiveaways(ctx context.Context) {
	ticker := time.NewTicker(DefaultGiveawaySweepInterval)
	defer ticker.Stop()

	g.logger.InfoContext(
		ctx,
		"watching for ended giveaways",
		"interval", DefaultGiveawaySweepInterval,
	)
	for {
		select {
		case <-ctx.Done():
			g.logger.InfoContext(ctx, "giveaway watcher stopping")
			return
		case <-ticker.C:
			if err := g.sweepEndedGiveaways(ctx); err != nil {
				g.logger.ErrorContext(
					ctx,
					"giveaway sweep failed",
					tint.Err(err),
				)
			}
		}
	}
}
