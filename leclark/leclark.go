package leclark

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/go-playground/validator/v10"
	"github.com/lmittmann/tint"
	"gorm.io/gorm"
)

var (
	// Set at build time:
	// -ldflags "-X github.com/LeClarkGames/LeClark/leclark.Version=..."
	Version   = "dev"
	CommitSHA = "unknown"
	BuildTime = "unknown"
)

var (
	defaultLogWriter io.Writer = os.Stdout
	structValidator            = validator.New(
		validator.WithRequiredStructEnabled(),
	)
)

// LeClark is the bot: gateway connection, submission queue, panel
// synchronizer, action queue, moderation, and the control panel API,
// sharing one database.
type LeClark struct {
	config     *Config
	logger     *slog.Logger
	logHandler slog.Handler

	db      *gorm.DB
	writeDB DBI

	discord   *Discord
	queue     *SubmissionQueue
	panels    *PanelSynchronizer
	hub       *WebSocketHub
	actions   *ActionQueue
	moderator *Moderator
	giveaways *GiveawayManager
	api       *API

	startedAt time.Time
	runMu     sync.Mutex

	// signalStop enables an explicit stop to be sent to the bot,
	// canceling the runtime context
	signalStop chan struct{}

	// signalReady has a value sent on it when startup completes
	signalReady chan struct{}
}

// New assembles the bot from configuration. The database is not touched
// until [LeClark.Run].
func New(config *Config) (*LeClark, error) {
	var errs []error

	switch config.DatabaseType {
	case dbTypeSQLite, dbTypePostgres:
		//
	default:
		errs = append(
			errs,
			errors.New("invalid database type (must be 'sqlite' or 'postgres')"),
		)
	}

	if config.HTTPClient == nil {
		config.HTTPClient = http.DefaultClient
	}

	lc := &LeClark{
		config:      config,
		signalReady: make(chan struct{}, 1),
	}

	lc.logHandler = tint.NewHandler(
		defaultLogWriter, &tint.Options{
			Level:     config.LogLevel,
			AddSource: true,
		},
	)
	lc.logger = slog.New(lc.logHandler)
	slog.SetDefault(lc.logger)

	config.Discord.httpClient = config.HTTPClient

	disc, err := newDiscord(config.Discord)
	if err != nil {
		errs = append(errs, err)
	}

	discordgo.Logger = discordgoLoggerFunc(
		context.Background(),
		tint.NewHandler(
			defaultLogWriter, &tint.Options{
				Level:     config.Discord.DiscordGoLogLevel,
				AddSource: true,
			},
		).WithAttrs([]slog.Attr{slog.String(loggerNameKey, "discordgo")}),
	)

	if disc != nil {
		disc.logger = slog.New(
			tint.NewHandler(
				defaultLogWriter, &tint.Options{
					Level:     config.Discord.LogLevel,
					AddSource: true,
				},
			),
		).With(loggerNameKey, "discord")
		disc.lc = lc
		lc.discord = disc
	}

	lc.hub = NewWebSocketHub(lc.logger)
	lc.actions = NewActionQueue(config.Queue, lc, lc.logger)

	api, err := newAPI(lc, config.API)
	errs = append(errs, err)
	lc.api = api

	return lc, errors.Join(errs...)
}

func (l *LeClark) ValidateConfig() error {
	return structValidator.Struct(l.config)
}

// Run starts the bot and blocks until the context is canceled or Stop
// is called, then shuts down gracefully.
func (l *LeClark) Run(ctx context.Context) error {
	// prevents concurrent runs
	l.runMu.Lock()
	defer l.runMu.Unlock()

	l.signalStop = make(chan struct{}, 1)
	l.startedAt = time.Now()
	logger := l.logger

	if err := l.ValidateConfig(); err != nil {
		logger.Error("invalid config", tint.Err(err))
		return err
	}

	ctx = WithLogger(ctx, logger)
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		select {
		case <-l.signalStop:
			logger.Warn("got stop signal, canceling")
			cancel()
		case <-ctx.Done():
			logger.Warn("context canceled, sending stop signal")
			l.signalStop <- struct{}{}
		}
	}()

	logger.LogAttrs(
		ctx,
		slog.LevelInfo,
		"starting",
		slog.Any("config", structToSlogValue(l.config)),
	)

	startCtx, startCancel := context.WithTimeout(ctx, l.config.StartupTimeout)
	defer startCancel()
	if err := l.initRun(startCtx); err != nil {
		logger.ErrorContext(ctx, "init error", tint.Err(err))
		return err
	}

	runtimeWG := &sync.WaitGroup{}

	go func() {
		if err := l.api.Serve(ctx); err != nil {
			logger.ErrorContext(ctx, "error serving api", tint.Err(err))
			cancel()
		}
	}()

	runtimeWG.Add(1)
	go func() {
		defer runtimeWG.Done()
		l.actions.Consume(ctx)
	}()

	runtimeWG.Add(1)
	go func() {
		defer runtimeWG.Done()
		l.queue.watchExpiredReviews(ctx, func(
			cbCtx context.Context,
			guildID string,
		) {
			if err := l.panels.UpdatePanel(cbCtx, guildID); err != nil {
				logger.ErrorContext(
					cbCtx,
					"error updating panel after review reset",
					"guild_id", guildID,
					tint.Err(err),
				)
			}
		})
	}()

	runtimeWG.Add(1)
	go func() {
		defer runtimeWG.Done()
		l.panels.watchPanelPosition(ctx)
	}()

	runtimeWG.Add(1)
	go func() {
		defer runtimeWG.Done()
		l.watchVerifications(ctx)
	}()

	runtimeWG.Add(1)
	go func() {
		defer runtimeWG.Done()
		l.giveaways.watchGiveaways(ctx)
	}()

	l.signalReady <- struct{}{}
	logger.InfoContext(ctx, "sent ready signal")

	<-ctx.Done()
	return l.shutdown(runtimeWG)
}

// Stop signals a running bot to begin graceful shutdown.
func (l *LeClark) Stop() {
	select {
	case l.signalStop <- struct{}{}:
	default:
	}
}

// initRun connects the database and the Discord gateway and registers
// slash commands.
func (l *LeClark) initRun(ctx context.Context) error {
	db, err := CreateDB(ctx, l.config.DatabaseType, l.config.Database)
	if err != nil {
		return fmt.Errorf("error initializing database: %w", err)
	}
	l.db = db
	l.writeDB = NewDatabase(
		db,
		l.logger.With(loggerNameKey, "database"),
		l.config.DatabaseType != dbTypeSQLite,
	)

	l.queue = NewSubmissionQueue(
		l.db,
		l.writeDB,
		l.config.Submissions,
		l.logger,
	)
	l.moderator = NewModerator(l.db, l.writeDB, nil, l.logger)

	session, err := l.discord.newSession()
	if err != nil {
		return err
	}
	l.discord.session = session
	l.moderator.session = session
	l.giveaways = NewGiveawayManager(l.db, l.writeDB, session, l.logger)
	l.panels = NewPanelSynchronizer(
		l.db,
		l.writeDB,
		l.queue,
		l.hub,
		session,
		l.config.Submissions,
		l.logger,
	)

	l.discord.discordgoRemoveHandlerFuncs = []func(){
		session.AddHandler(l.discord.handlerReady()),
		session.AddHandler(l.discord.handlerConnect()),
		session.AddHandler(l.discord.handlerDisconnect()),
		session.AddHandler(l.discord.handlerMessageCreate(ctx)),
		session.AddHandler(l.discord.handlerInteractionCreate(ctx)),
	}

	if err = session.Open(); err != nil {
		return fmt.Errorf("error opening discord session: %w", err)
	}
	if err = l.discord.registerCommands(); err != nil {
		return err
	}

	if l.config.Discord.StartupMessage != "" {
		l.sendStartupMessages(ctx)
	}
	return nil
}

// sendStartupMessages posts the configured startup message to each
// guild's log channel. Best-effort.
func (l *LeClark) sendStartupMessages(ctx context.Context) {
	var guilds []GuildSettings
	if err := l.db.WithContext(ctx).Where(
		"log_channel_id != ''",
	).Find(&guilds).Error; err != nil {
		l.logger.WarnContext(
			ctx,
			"error loading guilds for startup message",
			tint.Err(err),
		)
		return
	}
	for _, g := range guilds {
		if _, err := l.discord.session.ChannelMessageSend(
			g.LogChannelID,
			l.config.Discord.StartupMessage,
		); err != nil {
			l.logger.WarnContext(
				ctx,
				"error sending startup message",
				"guild_id", g.GuildID,
				tint.Err(err),
			)
		}
	}
}

func (l *LeClark) watchVerifications(ctx context.Context) {
	interval := l.config.Submissions.VerificationSweepInterval
	if interval <= 0 {
		interval = DefaultVerificationSweepInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.applyCompletedVerifications(ctx)
		}
	}
}

func (l *LeClark) shutdown(runtimeWG *sync.WaitGroup) error {
	logger := l.logger
	logger.Warn("shutting down")

	shutdownCtx, cancel := context.WithTimeout(
		context.Background(),
		l.config.ShutdownTimeout,
	)
	defer cancel()

	var errs []error

	if err := l.api.Shutdown(shutdownCtx); err != nil {
		errs = append(errs, fmt.Errorf("error stopping api: %w", err))
	}
	l.hub.CloseAll()

	if l.discord != nil && l.discord.session != nil {
		for _, remove := range l.discord.discordgoRemoveHandlerFuncs {
			remove()
		}
		if err := l.discord.session.Close(); err != nil {
			errs = append(errs, fmt.Errorf("error closing discord: %w", err))
		}
	}

	done := make(chan struct{})
	go func() {
		runtimeWG.Wait()
		close(done)
	}()
	select {
	case <-done:
		logger.Info("workers stopped")
	case <-shutdownCtx.Done():
		logger.Warn("timed out waiting for workers")
	}

	logger.Warn("shutdown complete", "uptime", time.Since(l.startedAt))
	return errors.Join(errs...)
}

// ExecuteAction performs a queued task. Precondition failures (missing
// submission, insufficient role hierarchy) are returned as errors; the
// consumer logs and drops them without stopping.
func (l *LeClark) ExecuteAction(ctx context.Context, task ActionTask) error {
	switch task.Kind {
	case ActionModerateUser:
		return l.executeModeration(ctx, task)
	case ActionSendMessage:
		_, err := l.discord.session.ChannelMessageSend(
			task.ChannelID,
			task.Content,
		)
		return err
	case ActionManageStaff:
		return l.executeManageStaff(task)
	case ActionResetStuckReview:
		if err := l.queue.ResetStuck(ctx, task.SubmissionID); err != nil {
			return fmt.Errorf(
				"submission %d not in reviewing state: %w",
				task.SubmissionID,
				err,
			)
		}
		return l.panels.UpdatePanel(ctx, task.GuildID)
	default:
		return fmt.Errorf("unknown action kind: %q", task.Kind)
	}
}

func (l *LeClark) executeModeration(
	ctx context.Context,
	task ActionTask,
) error {
	switch task.Verb {
	case ModerationMute:
		return l.moderator.Mute(
			ctx,
			task.GuildID,
			task.TargetUserID,
			task.Duration,
			task.Reason,
		)
	case ModerationKick:
		return l.moderator.Kick(
			ctx, task.GuildID, task.TargetUserID, task.Reason,
		)
	case ModerationBan:
		return l.moderator.Ban(
			ctx, task.GuildID, task.TargetUserID, task.Reason,
		)
	case ModerationWarn:
		_, err := l.moderator.Warn(
			ctx,
			task.GuildID,
			task.TargetUserID,
			task.ActorID,
			task.Reason,
		)
		return err
	default:
		return fmt.Errorf("unknown moderation verb: %q", task.Verb)
	}
}

func (l *LeClark) executeManageStaff(task ActionTask) error {
	allowed, err := l.discord.botCanManageRole(
		task.GuildID,
		task.RoleID,
		task.TargetUserID,
	)
	if err != nil {
		return err
	}
	if !allowed {
		return fmt.Errorf(
			"role hierarchy forbids managing role %s for user %s",
			task.RoleID,
			task.TargetUserID,
		)
	}
	if task.Grant {
		return l.discord.session.GuildMemberRoleAdd(
			task.GuildID, task.TargetUserID, task.RoleID,
		)
	}
	return l.discord.session.GuildMemberRoleRemove(
		task.GuildID, task.TargetUserID, task.RoleID,
	)
}
