package leclark

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/lmittmann/tint"
)

const (
	submissionReaction    = "✅"
	audioContentPrefix    = "audio/"
	interactionEphemFlags = discordgo.MessageFlagsEphemeral
)

// firstAudioAttachment returns the first attachment with an audio
// content type, or nil. Submissions are audio files, not links.
func firstAudioAttachment(
	attachments []*discordgo.MessageAttachment,
) *discordgo.MessageAttachment {
	for _, a := range attachments {
		if strings.HasPrefix(a.ContentType, audioContentPrefix) {
			return a
		}
	}
	return nil
}

// Discord manages the gateway connection: session lifecycle, command
// registration, and the event handlers that feed the submission queue
// and panel interactions.
type Discord struct {
	session                     DiscordSessionHandler
	config                      *DiscordConfig
	logger                      *slog.Logger
	connected                   atomic.Bool
	metricConnects              atomic.Int64
	metricDisconnects           atomic.Int64
	discordgoRemoveHandlerFuncs []func()
	lc                          *LeClark
}

func newDiscord(config *DiscordConfig) (*Discord, error) {
	if config.Token == "" {
		return nil, fmt.Errorf("discord token required")
	}
	return &Discord{
		config:                      config,
		discordgoRemoveHandlerFuncs: []func(){},
	}, nil
}

// newSession initializes the underlying discordgo session.
func (d *Discord) newSession() (DiscordSessionHandler, error) {
	session := DiscordSession{
		logger: d.logger.With(loggerNameKey, "discord_session_handler"),
	}
	disc, err := discordgo.New("Bot " + d.config.Token)
	if err != nil {
		return session, fmt.Errorf("error creating discord session: %w", err)
	}
	disc.SyncEvents = true
	disc.Identify.Intents = d.config.GatewayIntents
	session.session = disc
	if d.config.httpClient != nil {
		disc.Client = d.config.httpClient
	}
	if err = session.SetLogLevel(
		d.config.DiscordGoLogLevel.Level(),
	); err != nil {
		return session, err
	}
	return session, nil
}

func (d *Discord) handlerReady() func(
	s *discordgo.Session,
	r *discordgo.Ready,
) {
	return func(_ *discordgo.Session, r *discordgo.Ready) {
		d.logger.Info(
			"discord ready",
			"bot_user", r.User.String(),
			"guilds", len(r.Guilds),
		)
		if d.config.CustomStatus != "" {
			if err := d.session.UpdateCustomStatus(
				d.config.CustomStatus,
			); err != nil {
				d.logger.Warn("error setting custom status", tint.Err(err))
			}
		}
	}
}

func (d *Discord) handlerConnect() func(
	s *discordgo.Session,
	c *discordgo.Connect,
) {
	return func(_ *discordgo.Session, _ *discordgo.Connect) {
		d.connected.Store(true)
		d.metricConnects.Add(1)
		d.logger.Info("discord connected")
	}
}

func (d *Discord) handlerDisconnect() func(
	s *discordgo.Session,
	c *discordgo.Disconnect,
) {
	return func(_ *discordgo.Session, _ *discordgo.Disconnect) {
		d.connected.Store(false)
		d.metricDisconnects.Add(1)
		d.logger.Warn("discord disconnected")
	}
}

// handlerMessageCreate ingests audio files posted in a guild's
// submission channel. When the session is open and the message carries
// an audio attachment, a submission is recorded, acknowledged with a
// reaction, and the author told their place in the queue. First-time
// submitters jump the queue and get a DM saying so. Messages posted
// while the session is closed are removed and the author notified by
// DM. The whole handler is inert when the guild has the submission
// system switched off.
func (d *Discord) handlerMessageCreate(ctx context.Context) func(
	s *discordgo.Session,
	m *discordgo.MessageCreate,
) {
	return func(_ *discordgo.Session, m *discordgo.MessageCreate) {
		if m.Author == nil || m.Author.Bot || m.GuildID == "" {
			return
		}
		settings, err := GetGuildSettings(d.lc.db, m.GuildID)
		if err != nil {
			d.logger.ErrorContext(
				ctx,
				"error loading guild settings",
				"guild_id", m.GuildID,
				tint.Err(err),
			)
			return
		}
		if settings.SubmissionChannelID == "" ||
			m.ChannelID != settings.SubmissionChannelID {
			return
		}
		if !settings.SubmissionsEnabled {
			return
		}

		if !settings.SessionOpen() {
			d.rejectClosedSubmission(ctx, m)
			return
		}

		attachment := firstAudioAttachment(m.Attachments)
		if attachment == nil {
			return
		}

		submission, err := d.lc.queue.Ingest(
			ctx,
			m.GuildID,
			m.Author.ID,
			attachment.URL,
			SubmissionCategoryRegular,
		)
		if err != nil {
			d.logger.ErrorContext(
				ctx,
				"error ingesting submission",
				"guild_id", m.GuildID,
				"user_id", m.Author.ID,
				tint.Err(err),
			)
			return
		}
		if err = d.session.MessageReactionAdd(
			m.ChannelID, m.ID, submissionReaction,
		); err != nil {
			d.logger.WarnContext(
				ctx,
				"error acknowledging submission",
				"submission", submission,
				tint.Err(err),
			)
		}
		d.sendQueuePosition(ctx, m, submission)
		if submission.SubmittedAt == 0 {
			d.notifyFirstSubmission(ctx, m.Author.ID)
		}
		d.broadcastNewSubmission(ctx, m.GuildID, m.Author)
		if err = d.lc.panels.UpdatePanel(ctx, m.GuildID); err != nil {
			d.logger.ErrorContext(
				ctx,
				"error updating panel after ingest",
				"guild_id", m.GuildID,
				tint.Err(err),
			)
		}
	}
}

// sendQueuePosition tells the submitter where they landed in line.
func (d *Discord) sendQueuePosition(
	ctx context.Context,
	m *discordgo.MessageCreate,
	submission *Submission,
) {
	position, err := d.lc.queue.PendingLength(
		ctx, m.GuildID, submission.Category,
	)
	if err != nil {
		d.logger.WarnContext(
			ctx,
			"error counting queue position",
			"guild_id", m.GuildID,
			tint.Err(err),
		)
		return
	}
	if _, err = d.session.ChannelMessageSend(
		m.ChannelID,
		fmt.Sprintf(
			"<@%s>, your track has been submitted! "+
				"You are position **#%d** in the queue.",
			m.Author.ID,
			position,
		),
	); err != nil {
		d.logger.WarnContext(
			ctx,
			"error sending queue position",
			"guild_id", m.GuildID,
			tint.Err(err),
		)
	}
}

// notifyFirstSubmission DMs a first-time submitter that their track was
// bumped to the front. Best effort: users with DMs closed just miss it.
func (d *Discord) notifyFirstSubmission(ctx context.Context, userID string) {
	dm, err := d.session.UserChannelCreate(userID)
	if err != nil {
		return
	}
	if _, err = d.session.ChannelMessageSend(
		dm.ID,
		"Since it's your first time submitting in this server, your "+
			"track has been moved to the front of the queue!",
	); err != nil {
		d.logger.DebugContext(
			ctx,
			"error sending first-submission DM",
			"user_id", userID,
			tint.Err(err),
		)
	}
}

func (d *Discord) broadcastNewSubmission(
	ctx context.Context,
	guildID string,
	author *discordgo.User,
) {
	if d.lc.hub == nil {
		return
	}
	d.lc.hub.Broadcast(ctx, guildID, widgetNewSubmission{
		Type:      "new_submission",
		Username:  author.Username,
		AvatarURL: author.AvatarURL(""),
	})
}

func (d *Discord) rejectClosedSubmission(
	ctx context.Context,
	m *discordgo.MessageCreate,
) {
	if err := d.session.ChannelMessageDelete(
		m.ChannelID, m.ID,
	); err != nil {
		d.logger.WarnContext(
			ctx,
			"error removing closed-session submission",
			"channel_id", m.ChannelID,
			tint.Err(err),
		)
	}
	dm, err := d.session.UserChannelCreate(m.Author.ID)
	if err != nil {
		return
	}
	_, _ = d.session.ChannelMessageSend(
		dm.ID,
		"Submissions are currently closed. Watch the announcement "+
			"channel for the next session.",
	)
}

// handlerInteractionCreate dispatches slash commands and panel button
// presses.
func (d *Discord) handlerInteractionCreate(ctx context.Context) func(
	s *discordgo.Session,
	i *discordgo.InteractionCreate,
) {
	return func(_ *discordgo.Session, i *discordgo.InteractionCreate) {
		switch i.Type {
		case discordgo.InteractionApplicationCommand:
			d.handleCommand(ctx, i)
		case discordgo.InteractionMessageComponent:
			d.handleComponent(ctx, i)
		default:
		}
	}
}

func (d *Discord) handleCommand(
	ctx context.Context,
	i *discordgo.InteractionCreate,
) {
	data := i.ApplicationCommandData()
	logger := d.logger.With(
		"command", data.Name,
		"guild_id", i.GuildID,
	)

	settings, err := GetGuildSettings(d.lc.db, i.GuildID)
	if err != nil {
		logger.ErrorContext(
			ctx, "error loading guild settings", tint.Err(err),
		)
		return
	}
	if !memberHasAnyRole(i.Member, settings.AdminRoles()) {
		d.respondEphemeral(ctx, i, "You don't have permission to do that.")
		return
	}

	switch data.Name {
	case DiscordSlashCommandSetupPanel:
		channelID := i.ChannelID
		_, err = d.lc.writeDB.UpdatesWhere(
			ctx,
			&GuildSettings{},
			map[string]any{"review_channel_id": channelID},
			"guild_id = ?",
			i.GuildID,
		)
		if err != nil {
			logger.ErrorContext(
				ctx, "error saving review channel", tint.Err(err),
			)
			d.respondEphemeral(ctx, i, "Something went wrong.")
			return
		}
		if err = d.lc.panels.PostPanel(ctx, i.GuildID); err != nil {
			logger.ErrorContext(ctx, "error posting panel", tint.Err(err))
			d.respondEphemeral(ctx, i, "Couldn't post the panel here.")
			return
		}
		d.respondEphemeral(ctx, i, "Review panel created.")
	case DiscordSlashCommandResetReview:
		reviewing, revErr := d.lc.queue.Reviewing(
			ctx, i.GuildID, SubmissionCategoryRegular,
		)
		if revErr != nil || reviewing == nil {
			d.respondEphemeral(ctx, i, "Nothing is under review.")
			return
		}
		if err = d.lc.actions.Enqueue(ctx, ActionTask{
			Kind:         ActionResetStuckReview,
			GuildID:      i.GuildID,
			SubmissionID: reviewing.ID,
			ActorID:      interactionUserID(i),
		}); err != nil {
			d.respondEphemeral(ctx, i, "The action queue is full, try again.")
			return
		}
		d.respondEphemeral(ctx, i, "Review reset queued.")
	case DiscordSlashCommandStartGiveaway:
		d.handleStartGiveaway(ctx, i, data)
	default:
		logger.WarnContext(ctx, "unknown command")
	}
}

func (d *Discord) handleStartGiveaway(
	ctx context.Context,
	i *discordgo.InteractionCreate,
	data discordgo.ApplicationCommandInteractionData,
) {
	var (
		prize             string
		minutes           int64
		requireSubmission bool
	)
	for _, option := range data.Options {
		switch option.Name {
		case "prize":
			prize = option.StringValue()
		case "minutes":
			minutes = option.IntValue()
		case "require_submission":
			requireSubmission = option.BoolValue()
		}
	}
	if prize == "" || minutes <= 0 {
		d.respondEphemeral(ctx, i, "A prize and a positive duration are required.")
		return
	}
	giveaway, err := d.lc.giveaways.Start(
		ctx,
		i.GuildID,
		i.ChannelID,
		prize,
		time.Duration(minutes)*time.Minute,
		requireSubmission,
	)
	if err != nil {
		d.logger.ErrorContext(
			ctx,
			"error starting giveaway",
			"guild_id", i.GuildID,
			tint.Err(err),
		)
		d.respondEphemeral(ctx, i, "Couldn't start the giveaway.")
		return
	}
	d.respondEphemeral(ctx, i, fmt.Sprintf(
		"Giveaway **%s** started, ending <t:%d:R>.",
		giveaway.Prize,
		giveaway.EndsAt/1000,
	))
}

func (d *Discord) handleComponent(
	ctx context.Context,
	i *discordgo.InteractionCreate,
) {
	customID := i.MessageComponentData().CustomID
	logger := d.logger.With(
		"component", customID,
		"guild_id", i.GuildID,
	)

	// Giveaway entries are open to everyone, not just moderators.
	if giveawayID, ok := parseGiveawayEntryID(customID); ok {
		d.handleGiveawayEntry(ctx, i, giveawayID)
		return
	}

	settings, err := GetGuildSettings(d.lc.db, i.GuildID)
	if err != nil {
		logger.ErrorContext(
			ctx, "error loading guild settings", tint.Err(err),
		)
		return
	}
	if !memberHasAnyRole(i.Member, settings.ModRoles()) {
		d.respondEphemeral(ctx, i, "You don't have permission to do that.")
		return
	}
	if !settings.SubmissionsEnabled {
		d.respondEphemeral(
			ctx, i, "The submission system is disabled on this server.",
		)
		return
	}

	switch customID {
	case panelButtonNext:
		submission, deqErr := d.lc.queue.Dequeue(
			ctx, i.GuildID, interactionUserID(i), SubmissionCategoryRegular,
		)
		switch {
		case deqErr == nil:
			d.respondEphemeral(ctx, i, fmt.Sprintf(
				"Now reviewing <@%s>: %s",
				submission.UserID,
				submission.TrackURL,
			))
		case errors.Is(deqErr, ErrQueueEmpty):
			d.respondEphemeral(ctx, i, "The queue is empty.")
		default:
			logger.ErrorContext(ctx, "dequeue failed", tint.Err(deqErr))
			d.respondEphemeral(ctx, i, "Something went wrong.")
			return
		}
	case panelButtonDone:
		reviewing, revErr := d.lc.queue.Reviewing(
			ctx, i.GuildID, SubmissionCategoryRegular,
		)
		if revErr != nil || reviewing == nil {
			d.respondEphemeral(ctx, i, "Nothing is under review.")
			return
		}
		if err = d.lc.queue.Complete(ctx, reviewing.ID); err != nil {
			logger.ErrorContext(ctx, "complete failed", tint.Err(err))
			d.respondEphemeral(ctx, i, "Something went wrong.")
			return
		}
		d.respondEphemeral(ctx, i, "Review recorded.")
	case panelButtonStats:
		total, statErr := d.lc.queue.TotalReviewedCount(
			ctx, i.GuildID, SubmissionCategoryRegular,
		)
		if statErr != nil {
			logger.ErrorContext(ctx, "stats failed", tint.Err(statErr))
			d.respondEphemeral(ctx, i, "Something went wrong.")
			return
		}
		d.respondEphemeral(ctx, i, fmt.Sprintf(
			"A total of **%d** tracks have been reviewed in this server.",
			total,
		))
		return
	case panelButtonOpen:
		if err = d.lc.queue.OpenSession(
			ctx, i.GuildID, SubmissionCategoryRegular,
		); err != nil {
			logger.ErrorContext(ctx, "open session failed", tint.Err(err))
			d.respondEphemeral(ctx, i, "Something went wrong.")
			return
		}
		d.announceSession(ctx, settings, true)
		d.respondEphemeral(ctx, i, "Session opened.")
	case panelButtonClose:
		reviewed, closeErr := d.lc.queue.CloseSession(
			ctx, i.GuildID, SubmissionCategoryRegular,
		)
		if closeErr != nil {
			logger.ErrorContext(
				ctx, "close session failed", tint.Err(closeErr),
			)
			d.respondEphemeral(ctx, i, "Something went wrong.")
			return
		}
		d.announceSession(ctx, settings, false)
		d.respondEphemeral(ctx, i, fmt.Sprintf(
			"Session closed. %d submissions reviewed.", reviewed,
		))
	default:
		logger.WarnContext(ctx, "unknown component")
		return
	}

	if err = d.lc.panels.UpdatePanel(ctx, i.GuildID); err != nil {
		logger.ErrorContext(
			ctx,
			"error updating panel after interaction",
			tint.Err(err),
		)
	}
}

func (d *Discord) handleGiveawayEntry(
	ctx context.Context,
	i *discordgo.InteractionCreate,
	giveawayID uint,
) {
	err := d.lc.giveaways.Enter(ctx, giveawayID, interactionUserID(i))
	switch {
	case err == nil:
		d.respondEphemeral(ctx, i, "You're in! Good luck. 🍀")
	case errors.Is(err, ErrAlreadyEntered):
		d.respondEphemeral(ctx, i, "You've already entered this giveaway.")
	case errors.Is(err, ErrGiveawayInactive):
		d.respondEphemeral(ctx, i, "This giveaway has ended.")
	case errors.Is(err, ErrSubmissionRequired):
		d.respondEphemeral(
			ctx,
			i,
			"You need to submit a track during this giveaway to enter.",
		)
	default:
		d.logger.ErrorContext(
			ctx,
			"error entering giveaway",
			"giveaway_id", giveawayID,
			"guild_id", i.GuildID,
			tint.Err(err),
		)
		d.respondEphemeral(ctx, i, "Something went wrong.")
	}
}

func (d *Discord) announceSession(
	ctx context.Context,
	settings *GuildSettings,
	open bool,
) {
	if settings.AnnouncementChannelID == "" {
		return
	}
	content := "Submissions are now **closed**. Thanks for participating!"
	if open {
		content = fmt.Sprintf(
			"Submissions are now **open**! Post your track in <#%s>.",
			settings.SubmissionChannelID,
		)
	}
	if _, err := d.session.ChannelMessageSend(
		settings.AnnouncementChannelID, content,
	); err != nil {
		d.logger.WarnContext(
			ctx,
			"error announcing session change",
			"guild_id", settings.GuildID,
			tint.Err(err),
		)
	}
}

func (d *Discord) respondEphemeral(
	ctx context.Context,
	i *discordgo.InteractionCreate,
	content string,
) {
	err := d.session.InteractionRespond(
		i.Interaction,
		&discordgo.InteractionResponse{
			Type: discordgo.InteractionResponseChannelMessageWithSource,
			Data: &discordgo.InteractionResponseData{
				Content: content,
				Flags:   interactionEphemFlags,
			},
		},
	)
	if err != nil {
		d.logger.WarnContext(
			ctx,
			"error responding to interaction",
			tint.Err(err),
		)
	}
}

// registerCommands overwrites the bot's global application commands.
func (d *Discord) registerCommands() error {
	commands := []*discordgo.ApplicationCommand{
		{
			Name:        DiscordSlashCommandSetupPanel,
			Description: "Post the submission review panel in this channel",
		},
		{
			Name:        DiscordSlashCommandResetReview,
			Description: "Return the current review to the queue",
		},
		{
			Name:        DiscordSlashCommandStartGiveaway,
			Description: "Start a giveaway in this channel",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "prize",
					Description: "What the winner gets",
					Required:    true,
				},
				{
					Type:        discordgo.ApplicationCommandOptionInteger,
					Name:        "minutes",
					Description: "How long the giveaway runs",
					Required:    true,
				},
				{
					Type:        discordgo.ApplicationCommandOptionBoolean,
					Name:        "require_submission",
					Description: "Only users who submitted a track may enter",
				},
			},
		},
	}
	registered, err := d.session.ApplicationCommandBulkOverwrite(
		d.config.ApplicationID, "", commands,
	)
	if err != nil {
		return fmt.Errorf("error registering commands: %w", err)
	}
	for _, cmd := range registered {
		d.logger.Info(
			"registered command",
			"name", cmd.Name,
			"command_id", cmd.ID,
		)
	}
	return nil
}

// botCanManageRole reports whether the bot's highest role sits strictly
// above both the managed role and the target member's highest role.
// Discord rejects role changes otherwise; checking first lets stale
// queued tasks be dropped with a clear log line.
func (d *Discord) botCanManageRole(
	guildID string,
	roleID string,
	targetUserID string,
) (bool, error) {
	roles, err := d.session.GuildRoles(guildID)
	if err != nil {
		return false, fmt.Errorf("error fetching guild roles: %w", err)
	}
	positions := make(map[string]int, len(roles))
	for _, role := range roles {
		positions[role.ID] = role.Position
	}
	managedPos, ok := positions[roleID]
	if !ok {
		return false, fmt.Errorf("role %s not found in guild %s", roleID, guildID)
	}

	botMember, err := d.session.GuildMember(guildID, d.session.BotUserID())
	if err != nil {
		return false, fmt.Errorf("error fetching bot member: %w", err)
	}
	botTop := topRolePosition(botMember, positions)

	target, err := d.session.GuildMember(guildID, targetUserID)
	if err != nil {
		return false, fmt.Errorf("error fetching target member: %w", err)
	}
	targetTop := topRolePosition(target, positions)

	return botTop > managedPos && botTop > targetTop, nil
}

func topRolePosition(
	member *discordgo.Member,
	positions map[string]int,
) int {
	top := 0
	for _, roleID := range member.Roles {
		if pos, ok := positions[roleID]; ok && pos > top {
			top = pos
		}
	}
	return top
}

func memberHasAnyRole(member *discordgo.Member, want []string) bool {
	if member == nil {
		return false
	}
	return hasAnyRole(member.Roles, want)
}

func interactionUserID(i *discordgo.InteractionCreate) string {
	if i.Member != nil && i.Member.User != nil {
		return i.Member.User.ID
	}
	if i.User != nil {
		return i.User.ID
	}
	return ""
}

// DiscordSessionHandler abstracts the discordgo session methods the bot
// uses, so tests can substitute a stub.
type DiscordSessionHandler interface {
	Open() error
	Close() error
	AddHandler(handler any) func()
	BotUserID() string
	UpdateCustomStatus(status string) error
	SetLogLevel(lvl slog.Level) error
	ApplicationCommandBulkOverwrite(
		appID string,
		guildID string,
		commands []*discordgo.ApplicationCommand,
		options ...discordgo.RequestOption,
	) ([]*discordgo.ApplicationCommand, error)
	InteractionRespond(
		interaction *discordgo.Interaction,
		resp *discordgo.InteractionResponse,
		options ...discordgo.RequestOption,
	) error
	ChannelMessageSend(
		channelID string,
		content string,
		options ...discordgo.RequestOption,
	) (*discordgo.Message, error)
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
	MessageReactionAdd(
		channelID string,
		messageID string,
		emojiID string,
		options ...discordgo.RequestOption,
	) error
	UserChannelCreate(
		recipientID string,
		options ...discordgo.RequestOption,
	) (*discordgo.Channel, error)
	GuildMember(
		guildID string,
		userID string,
		options ...discordgo.RequestOption,
	) (*discordgo.Member, error)
	GuildRoles(
		guildID string,
		options ...discordgo.RequestOption,
	) ([]*discordgo.Role, error)
	GuildMemberRoleAdd(
		guildID string,
		userID string,
		roleID string,
		options ...discordgo.RequestOption,
	) error
	GuildMemberRoleRemove(
		guildID string,
		userID string,
		roleID string,
		options ...discordgo.RequestOption,
	) error
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
}

// DiscordSession implements [DiscordSessionHandler], wrapping a
// [discordgo.Session].
type DiscordSession struct {
	session *discordgo.Session
	logger  *slog.Logger
}

func (d DiscordSession) Open() error {
	d.logger.Info("opening gateway connection")
	return d.session.Open()
}

func (d DiscordSession) Close() error {
	d.logger.Info("closing gateway connection")
	return d.session.Close()
}

func (d DiscordSession) AddHandler(handler any) func() {
	return d.session.AddHandler(handler)
}

func (d DiscordSession) BotUserID() string {
	if d.session.State != nil && d.session.State.User != nil {
		return d.session.State.User.ID
	}
	return ""
}

func (d DiscordSession) UpdateCustomStatus(status string) error {
	return d.session.UpdateCustomStatus(status)
}

// SetLogLevel maps an slog level onto discordgo's integer levels.
func (d DiscordSession) SetLogLevel(lvl slog.Level) error {
	for discordgoLevel, slogLevel := range discordGoLogLevels {
		if slogLevel == lvl {
			d.session.LogLevel = discordgoLevel
			return nil
		}
	}
	return fmt.Errorf("unknown log level: %s", lvl)
}

func (d DiscordSession) ApplicationCommandBulkOverwrite(
	appID string,
	guildID string,
	commands []*discordgo.ApplicationCommand,
	options ...discordgo.RequestOption,
) ([]*discordgo.ApplicationCommand, error) {
	return d.session.ApplicationCommandBulkOverwrite(
		appID, guildID, commands, options...,
	)
}

func (d DiscordSession) InteractionRespond(
	interaction *discordgo.Interaction,
	resp *discordgo.InteractionResponse,
	options ...discordgo.RequestOption,
) error {
	return d.session.InteractionRespond(interaction, resp, options...)
}

func (d DiscordSession) ChannelMessageSend(
	channelID string,
	content string,
	options ...discordgo.RequestOption,
) (*discordgo.Message, error) {
	return d.session.ChannelMessageSend(channelID, content, options...)
}

func (d DiscordSession) ChannelMessageSendComplex(
	channelID string,
	data *discordgo.MessageSend,
	options ...discordgo.RequestOption,
) (*discordgo.Message, error) {
	return d.session.ChannelMessageSendComplex(channelID, data, options...)
}

func (d DiscordSession) ChannelMessageSendEmbed(
	channelID string,
	embed *discordgo.MessageEmbed,
	options ...discordgo.RequestOption,
) (*discordgo.Message, error) {
	return d.session.ChannelMessageSendEmbed(channelID, embed, options...)
}

func (d DiscordSession) ChannelMessageEditComplex(
	m *discordgo.MessageEdit,
	options ...discordgo.RequestOption,
) (*discordgo.Message, error) {
	return d.session.ChannelMessageEditComplex(m, options...)
}

func (d DiscordSession) ChannelMessageDelete(
	channelID string,
	messageID string,
	options ...discordgo.RequestOption,
) error {
	return d.session.ChannelMessageDelete(channelID, messageID, options...)
}

func (d DiscordSession) ChannelMessages(
	channelID string,
	limit int,
	beforeID string,
	afterID string,
	aroundID string,
	options ...discordgo.RequestOption,
) ([]*discordgo.Message, error) {
	return d.session.ChannelMessages(
		channelID, limit, beforeID, afterID, aroundID, options...,
	)
}

func (d DiscordSession) MessageReactionAdd(
	channelID string,
	messageID string,
	emojiID string,
	options ...discordgo.RequestOption,
) error {
	return d.session.MessageReactionAdd(
		channelID, messageID, emojiID, options...,
	)
}

func (d DiscordSession) UserChannelCreate(
	recipientID string,
	options ...discordgo.RequestOption,
) (*discordgo.Channel, error) {
	return d.session.UserChannelCreate(recipientID, options...)
}

func (d DiscordSession) GuildMember(
	guildID string,
	userID string,
	options ...discordgo.RequestOption,
) (*discordgo.Member, error) {
	return d.session.GuildMember(guildID, userID, options...)
}

func (d DiscordSession) GuildRoles(
	guildID string,
	options ...discordgo.RequestOption,
) ([]*discordgo.Role, error) {
	return d.session.GuildRoles(guildID, options...)
}

func (d DiscordSession) GuildMemberRoleAdd(
	guildID string,
	userID string,
	roleID string,
	options ...discordgo.RequestOption,
) error {
	return d.session.GuildMemberRoleAdd(guildID, userID, roleID, options...)
}

func (d DiscordSession) GuildMemberRoleRemove(
	guildID string,
	userID string,
	roleID string,
	options ...discordgo.RequestOption,
) error {
	return d.session.GuildMemberRoleRemove(
		guildID, userID, roleID, options...,
	)
}

func (d DiscordSession) GuildMemberTimeout(
	guildID string,
	userID string,
	until *time.Time,
	options ...discordgo.RequestOption,
) error {
	return d.session.GuildMemberTimeout(guildID, userID, until, options...)
}

func (d DiscordSession) GuildMemberDeleteWithReason(
	guildID string,
	userID string,
	reason string,
	options ...discordgo.RequestOption,
) error {
	return d.session.GuildMemberDeleteWithReason(
		guildID, userID, reason, options...,
	)
}

func (d DiscordSession) GuildBanCreateWithReason(
	guildID string,
	userID string,
	reason string,
	days int,
	options ...discordgo.RequestOption,
) error {
	return d.session.GuildBanCreateWithReason(
		guildID, userID, reason, days, options...,
	)
}
