package leclark

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/lmittmann/tint"
	"gorm.io/gorm"
)

// Panel button component custom IDs.
const (
	panelButtonNext    = "panel_next"
	panelButtonDone    = "panel_done"
	panelButtonOpen    = "panel_open"
	panelButtonClose   = "panel_close"
	panelButtonStats   = "panel_stats"
	panelEmbedColor    = 0x5865F2
	panelQueuePreview  = 10
	maxTrackURLDisplay = 96
)

// panelSession is the subset of [discordgo.Session] the panel
// synchronizer needs. Narrowed for testing.
type panelSession interface {
	ChannelMessageSendComplex(
		channelID string,
		data *discordgo.MessageSend,
		options ...discordgo.RequestOption,
	) (*discordgo.Message, error)
	ChannelMessageEditComplex(
		m *discordgo.MessageEdit,
		options ...discordgo.RequestOption,
	) (*discordgo.Message, error)
	ChannelMessageDelete(
		channelID string,
		messageID string,
		options ...discordgo.RequestOption,
	) error
	ChannelMessages(
		channelID string,
		limit int,
		beforeID string,
		afterID string,
		aroundID string,
		options ...discordgo.RequestOption,
	) ([]*discordgo.Message, error)
}

// PanelSynchronizer keeps each guild's review control panel message in
// sync with the queue state, and pushes the same state to any connected
// widget over the websocket hub.
//
// Updates for a given guild are serialized by a per-guild mutex so that
// concurrent queue mutations can't interleave panel edits out of order.
type PanelSynchronizer struct {
	db      *gorm.DB
	writeDB DBI
	queue   *SubmissionQueue
	hub     *WebSocketHub
	session panelSession
	config  *SubmissionConfig
	logger  *slog.Logger

	// guildLocks holds one lazily-created mutex per guild
	guildLocks sync.Map
}

func NewPanelSynchronizer(
	db *gorm.DB,
	writeDB DBI,
	queue *SubmissionQueue,
	hub *WebSocketHub,
	session panelSession,
	config *SubmissionConfig,
	logger *slog.Logger,
) *PanelSynchronizer {
	if logger == nil {
		logger = slog.Default()
	}
	return &PanelSynchronizer{
		db:      db,
		writeDB: writeDB,
		queue:   queue,
		hub:     hub,
		session: session,
		config:  config,
		logger:  logger.With(loggerNameKey, "panel"),
	}
}

func (p *PanelSynchronizer) guildLock(guildID string) *sync.Mutex {
	mu, _ := p.guildLocks.LoadOrStore(guildID, &sync.Mutex{})
	return mu.(*sync.Mutex)
}

// UpdatePanel re-renders the guild's panel message from current queue
// state and broadcasts the widget snapshot. A missing or stale panel
// message is never reposted here; the position watcher owns repair, so
// a failed edit only logs. The widget broadcast goes out either way.
func (p *PanelSynchronizer) UpdatePanel(
	ctx context.Context,
	guildID string,
) error {
	mu := p.guildLock(guildID)
	mu.Lock()
	defer mu.Unlock()

	settings, err := GetGuildSettings(p.db, guildID)
	if err != nil {
		return err
	}
	if settings.ReviewChannelID == "" {
		p.logger.DebugContext(
			ctx,
			"no review channel configured, skipping panel update",
			"guild_id", guildID,
		)
		return nil
	}

	snapshot, err := p.snapshot(ctx, guildID)
	if err != nil {
		return err
	}

	if settings.ReviewPanelMessageID == "" ||
		settings.ReviewPanelChannelID != settings.ReviewChannelID {
		p.logger.DebugContext(
			ctx,
			"no panel message stored, skipping panel edit",
			"guild_id", guildID,
		)
		p.broadcast(ctx, guildID, snapshot)
		return nil
	}

	embed := p.renderEmbed(settings, snapshot)
	components := panelComponents(settings.SessionOpen())
	edit := discordgo.NewMessageEdit(
		settings.ReviewPanelChannelID,
		settings.ReviewPanelMessageID,
	)
	edit.Embeds = &[]*discordgo.MessageEmbed{embed}
	edit.Components = &components
	if _, err = p.session.ChannelMessageEditComplex(edit); err != nil {
		p.logger.WarnContext(
			ctx,
			"panel edit failed, leaving repair to the position watcher",
			"guild_id", guildID,
			"message_id", settings.ReviewPanelMessageID,
			tint.Err(err),
		)
	}
	p.broadcast(ctx, guildID, snapshot)
	return nil
}

// PostPanel discards any stored panel message and posts a fresh one in
// the guild's review channel.
func (p *PanelSynchronizer) PostPanel(
	ctx context.Context,
	guildID string,
) error {
	mu := p.guildLock(guildID)
	mu.Lock()
	defer mu.Unlock()

	settings, err := GetGuildSettings(p.db, guildID)
	if err != nil {
		return err
	}
	if settings.ReviewChannelID == "" {
		return errors.New("no review channel configured")
	}

	if settings.ReviewPanelMessageID != "" {
		if delErr := p.session.ChannelMessageDelete(
			settings.ReviewPanelChannelID,
			settings.ReviewPanelMessageID,
		); delErr != nil {
			p.logger.DebugContext(
				ctx,
				"stale panel message not deleted",
				"guild_id", guildID,
				tint.Err(delErr),
			)
		}
	}

	snapshot, err := p.snapshot(ctx, guildID)
	if err != nil {
		return err
	}
	return p.post(
		ctx,
		settings,
		p.renderEmbed(settings, snapshot),
		panelComponents(settings.SessionOpen()),
	)
}

func (p *PanelSynchronizer) post(
	ctx context.Context,
	settings *GuildSettings,
	embed *discordgo.MessageEmbed,
	components []discordgo.MessageComponent,
) error {
	msg, err := p.session.ChannelMessageSendComplex(
		settings.ReviewChannelID,
		&discordgo.MessageSend{
			Embeds:     []*discordgo.MessageEmbed{embed},
			Components: components,
		},
	)
	if err != nil {
		return fmt.Errorf("error posting panel message: %w", err)
	}
	_, err = p.writeDB.UpdatesWhere(
		ctx,
		&GuildSettings{},
		map[string]any{
			columnGuildSettingsReviewPanelMessageID: msg.ID,
			"review_panel_channel_id":               settings.ReviewChannelID,
		},
		"guild_id = ?",
		settings.GuildID,
	)
	if err != nil {
		return err
	}
	settings.ReviewPanelMessageID = msg.ID
	settings.ReviewPanelChannelID = settings.ReviewChannelID
	p.logger.InfoContext(
		ctx,
		"panel posted",
		"guild_id", settings.GuildID,
		"channel_id", settings.ReviewChannelID,
		"message_id", msg.ID,
	)
	return nil
}

// widgetSnapshot is the queue state pushed to widget subscribers and
// rendered into the panel embed.
type widgetSnapshot struct {
	Queue     []Submission `json:"queue"`
	Reviewing *Submission  `json:"reviewing"`
	Reviewed  int          `json:"reviewed"`
	Open      bool         `json:"open"`
}

// widgetUpdate is the wire envelope sent over widget websockets.
type widgetUpdate struct {
	Type        string         `json:"type"`
	RegularData widgetSnapshot `json:"regular_data"`
}

// widgetNewSubmission is pushed when a track lands in the queue, ahead
// of the full snapshot, so widgets can animate the arrival.
type widgetNewSubmission struct {
	Type      string `json:"type"`
	Username  string `json:"username"`
	AvatarURL string `json:"avatar_url"`
}

func (p *PanelSynchronizer) snapshot(
	ctx context.Context,
	guildID string,
) (*widgetSnapshot, error) {
	pending, err := p.queue.Pending(ctx, guildID, SubmissionCategoryRegular)
	if err != nil {
		return nil, err
	}
	reviewing, err := p.queue.Reviewing(
		ctx, guildID, SubmissionCategoryRegular,
	)
	if err != nil {
		return nil, err
	}
	settings, err := GetGuildSettings(p.db, guildID)
	if err != nil {
		return nil, err
	}
	return &widgetSnapshot{
		Queue:     pending,
		Reviewing: reviewing,
		Reviewed: p.queue.SessionReviewedCount(
			guildID, SubmissionCategoryRegular,
		),
		Open: settings.SessionOpen(),
	}, nil
}

func (p *PanelSynchronizer) broadcast(
	ctx context.Context,
	guildID string,
	snapshot *widgetSnapshot,
) {
	if p.hub == nil {
		return
	}
	p.hub.Broadcast(ctx, guildID, widgetUpdate{
		Type:        "full_update",
		RegularData: *snapshot,
	})
}

func (p *PanelSynchronizer) renderEmbed(
	settings *GuildSettings,
	snapshot *widgetSnapshot,
) *discordgo.MessageEmbed {
	status := "Closed"
	if snapshot.Open {
		status = "Open"
	}

	var queueField string
	switch {
	case len(snapshot.Queue) == 0:
		queueField = "*The queue is empty.*"
	default:
		for i, s := range snapshot.Queue {
			if i >= panelQueuePreview {
				queueField += fmt.Sprintf(
					"*...and %d more*\n",
					len(snapshot.Queue)-panelQueuePreview,
				)
				break
			}
			queueField += fmt.Sprintf(
				"%d. <@%s> - %s\n",
				i+1,
				s.UserID,
				truncate(s.TrackURL, maxTrackURLDisplay),
			)
		}
	}

	reviewingField := "*Nothing under review.*"
	if snapshot.Reviewing != nil {
		reviewingField = fmt.Sprintf(
			"<@%s> - %s (reviewer: <@%s>)",
			snapshot.Reviewing.UserID,
			truncate(snapshot.Reviewing.TrackURL, maxTrackURLDisplay),
			snapshot.Reviewing.ReviewerID,
		)
	}

	return &discordgo.MessageEmbed{
		Title: "Submission Review Panel",
		Color: panelEmbedColor,
		Description: fmt.Sprintf(
			"Session: **%s** | Reviewed this session: **%d**",
			status,
			snapshot.Reviewed,
		),
		Fields: []*discordgo.MessageEmbedField{
			{Name: "Now Reviewing", Value: reviewingField},
			{
				Name: fmt.Sprintf(
					"Queue (%d pending)",
					len(snapshot.Queue),
				),
				Value: queueField,
			},
		},
		Footer: &discordgo.MessageEmbedFooter{
			Text: "Use the buttons below to manage the session",
		},
	}
}

func panelComponents(open bool) []discordgo.MessageComponent {
	toggle := discordgo.Button{
		Label:    "Open Session",
		Style:    discordgo.SuccessButton,
		CustomID: panelButtonOpen,
	}
	if open {
		toggle = discordgo.Button{
			Label:    "Close Session",
			Style:    discordgo.DangerButton,
			CustomID: panelButtonClose,
		}
	}
	return []discordgo.MessageComponent{
		discordgo.ActionsRow{
			Components: []discordgo.MessageComponent{
				discordgo.Button{
					Label:    "Next",
					Style:    discordgo.PrimaryButton,
					CustomID: panelButtonNext,
					Disabled: !open,
				},
				discordgo.Button{
					Label:    "Done",
					Style:    discordgo.SecondaryButton,
					CustomID: panelButtonDone,
					Disabled: !open,
				},
				toggle,
				discordgo.Button{
					Label:    "Statistics",
					Style:    discordgo.SecondaryButton,
					CustomID: panelButtonStats,
				},
			},
		},
	}
}

// watchPanelPosition reposts the panel at the bottom of the review
// channel if other messages have buried it. Runs on the configured
// interval until the context is canceled.
func (p *PanelSynchronizer) watchPanelPosition(ctx context.Context) {
	interval := p.config.PanelWatchInterval
	if interval <= 0 {
		interval = DefaultPanelWatchInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	p.logger.InfoContext(
		ctx,
		"watching panel positions",
		"interval", interval,
	)
	for {
		select {
		case <-ctx.Done():
			p.logger.InfoContext(ctx, "panel watcher stopping")
			return
		case <-ticker.C:
			p.repostBuriedPanels(ctx)
		}
	}
}

func (p *PanelSynchronizer) repostBuriedPanels(ctx context.Context) {
	var configured []GuildSettings
	err := p.db.WithContext(ctx).Where(
		"review_panel_message_id != ''",
	).Find(&configured).Error
	if err != nil {
		p.logger.ErrorContext(
			ctx,
			"error loading panel guilds",
			tint.Err(err),
		)
		return
	}

	for _, settings := range configured {
		latest, err := p.session.ChannelMessages(
			settings.ReviewPanelChannelID, 1, "", "", "",
		)
		if err != nil {
			p.logger.WarnContext(
				ctx,
				"error checking panel position",
				"guild_id", settings.GuildID,
				tint.Err(err),
			)
			continue
		}
		if len(latest) == 0 || latest[0].ID == settings.ReviewPanelMessageID {
			continue
		}
		p.logger.InfoContext(
			ctx,
			"panel buried, reposting",
			"guild_id", settings.GuildID,
		)
		if err = p.PostPanel(ctx, settings.GuildID); err != nil {
			p.logger.ErrorContext(
				ctx,
				"error reposting panel",
				"guild_id", settings.GuildID,
				tint.Err(err),
			)
		}
	}
}
