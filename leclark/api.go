package leclark

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	ginPprof "github.com/gin-contrib/pprof"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/securecookie"
	"github.com/lmittmann/tint"
	"golang.org/x/time/rate"
	"gorm.io/gorm"
)

const (
	xRequestIDHeader = "X-Request-ID"
	sessionVarName   = "leclark"
	sessionVarField  = "username"

	apiPrefix          = "/api"
	apiPathLogin       = "/api/login"
	apiPathLogout      = "/api/logout"
	apiPathLoggedIn    = "/logged_in"
	apiHealthCheck     = "/healthz"
	apiPathWidget      = "/widget/:token"
	apiPathWidgetWS    = "/widget/:token/ws"
	pprofPrefix        = "/debug/pprof"
	verifyCallbackPath = "/api/verify/callback"
)

type httpError struct {
	Error string `json:"error"`
}

type httpReply struct {
	Message string `json:"message"`
}

type userLogin struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type loggedInResponse struct {
	Username string `json:"username"`
}

type healthCheckResponse struct {
	DiscordConnected bool   `json:"discord_connected"`
	ActionQueueSize  int    `json:"action_queue_size"`
	Database         string `json:"database"`
}

// API serves the control panel: admin authentication, guild settings,
// queue views, deferred action submission, and the read-only widget
// (snapshot plus websocket).
type API struct {
	config              *APIConfig
	httpServer          *http.Server
	listener            net.Listener
	engine              *gin.Engine
	store               sessions.Store
	loginRequestLimiter *rate.Limiter
	requestMetrics      map[string]int
	requestMetricsMu    sync.Mutex
	logger              *slog.Logger

	handlers *apiHandlers
}

// apiHandlers holds the route handlers, bound to the bot.
type apiHandlers struct {
	lc     *LeClark
	logger *slog.Logger
}

func newAPI(lc *LeClark, config *APIConfig) (*API, error) {
	logger := lc.logger.With(loggerNameKey, "api")

	if !config.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()

	api := &API{
		config:              config,
		engine:              r,
		requestMetrics:      map[string]int{},
		loginRequestLimiter: rate.NewLimiter(rate.Limit(1), 1),
		logger:              logger,
	}
	api.handlers = &apiHandlers{lc: lc, logger: logger}

	secret := []byte(config.Secret)
	if len(secret) == 0 {
		secret = securecookie.GenerateRandomKey(64)
		logger.Warn(
			"no session secret configured, sessions won't survive restart",
		)
	}
	store := cookie.NewStore(secret)
	store.Options(sessions.Options{
		Path:     "/",
		MaxAge:   int(config.SessionMaxAge.Seconds()),
		HttpOnly: true,
		Secure:   !config.Development,
		SameSite: http.SameSiteStrictMode,
	})
	api.store = store
	r.Use(sessions.Sessions(sessionVarName, store))

	api.httpServer = &http.Server{
		Addr:              config.Listen,
		Handler:           r,
		WriteTimeout:      config.WriteTimeout,
		IdleTimeout:       config.IdleTimeout,
		ReadTimeout:       config.ReadTimeout,
		ReadHeaderTimeout: config.ReadHeaderTimeout,
	}

	corsConfig := config.CORS.GINConfig()
	if len(corsConfig.AllowOrigins) == 0 {
		if config.Development {
			corsConfig.AllowAllOrigins = true
			corsConfig.AllowCredentials = false
		} else if config.ExternalURL != "" {
			corsConfig.AllowOrigins = []string{config.ExternalURL}
		}
	}
	// cors.New panics on a config with no origins at all
	if !corsConfig.AllowAllOrigins && len(corsConfig.AllowOrigins) == 0 {
		corsConfig.AllowAllOrigins = true
		corsConfig.AllowCredentials = false
	}

	if !config.Development {
		r.Use(gin.Recovery())
	}
	r.Use(
		requestIDMiddleware(),
		ginLoggingMiddleware(),
		metricMiddleware(api),
		cors.New(corsConfig),
	)

	h := api.handlers
	r.GET(apiHealthCheck, h.healthCheck)
	r.POST(apiPathLogin, h.loginHandler)
	r.POST(apiPathLogout, h.logoutHandler)
	r.POST(verifyCallbackPath, h.verifyCallback)

	// Widget routes authenticate by token, not session
	r.GET(apiPathWidget, h.widgetSnapshot)
	r.GET(apiPathWidgetWS, h.widgetSubscribe)

	if config.Development {
		ginPprof.Register(r, pprofPrefix)
	}

	protected := r.Group(apiPrefix)
	protected.Use(authMiddleware())

	protected.GET(apiPathLoggedIn, h.loggedIn)
	protected.GET("/guilds/:guild_id/settings", h.getGuildSettings)
	protected.PATCH("/guilds/:guild_id/settings", h.updateGuildSettings)
	protected.GET("/guilds/:guild_id/queue", h.getQueue)
	protected.GET("/guilds/:guild_id/warnings/:user_id", h.getWarnings)
	protected.GET("/guilds/:guild_id/widget_token", h.getWidgetToken)
	protected.POST("/guilds/:guild_id/verify", h.startVerification)
	protected.POST("/actions/moderate/:guild_id", h.actionModerate)
	protected.POST("/actions/message/:guild_id", h.actionSendMessage)
	protected.POST("/actions/staff/:guild_id", h.actionManageStaff)
	protected.POST("/actions/reset_review/:guild_id", h.actionResetReview)

	return api, nil
}

// Serve starts the HTTP server and blocks until it stops.
func (a *API) Serve(ctx context.Context) error {
	if a.listener == nil {
		listenCfg := &net.ListenConfig{}
		ln, err := listenCfg.Listen(ctx, "tcp", a.config.Listen)
		if err != nil {
			return fmt.Errorf("error listening on %s: %w", a.config.Listen, err)
		}
		a.listener = ln
	}
	a.logger.InfoContext(
		ctx,
		"api listening",
		"addr", a.listener.Addr().String(),
	)
	err := a.httpServer.Serve(a.listener)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (a *API) Shutdown(ctx context.Context) error {
	return a.httpServer.Shutdown(ctx)
}

func (h *apiHandlers) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, healthCheckResponse{
		DiscordConnected: h.lc.discord.connected.Load(),
		ActionQueueSize:  h.lc.actions.Len(),
		Database:         h.lc.config.DatabaseType,
	})
}

func (h *apiHandlers) loginHandler(c *gin.Context) {
	logger := ginContextLogger(c)
	if !h.lc.api.loginRequestLimiter.Allow() {
		logger.Warn("login rate limited")
		c.AbortWithStatus(http.StatusTooManyRequests)
		return
	}

	var login userLogin
	if err := c.ShouldBindJSON(&login); err != nil {
		c.AbortWithStatusJSON(
			http.StatusBadRequest,
			httpError{Error: err.Error()},
		)
		return
	}

	cfg := h.lc.config.API
	if cfg.AdminUsername == "" || cfg.AdminPassword == "" {
		logger.Warn("admin credentials not configured")
		c.AbortWithStatusJSON(
			http.StatusUnauthorized,
			httpError{Error: "unauthorized"},
		)
		return
	}
	if login.Username != cfg.AdminUsername {
		c.AbortWithStatusJSON(
			http.StatusUnauthorized,
			httpError{Error: "unauthorized"},
		)
		return
	}
	valid, err := verifyPassword(cfg.AdminPassword, login.Password)
	if err != nil {
		logger.Error("error verifying password", tint.Err(err))
		ginReplyError(c, "internal server error")
		return
	}
	if !valid {
		logger.Warn("invalid login attempt", "username", login.Username)
		c.AbortWithStatusJSON(
			http.StatusUnauthorized,
			httpError{Error: "unauthorized"},
		)
		return
	}

	session := sessions.Default(c)
	session.Set(sessionVarField, login.Username)
	if err = session.Save(); err != nil {
		logger.Error("error saving session", tint.Err(err))
		ginReplyError(c, "internal server error")
		return
	}
	logger.Info("login", "username", login.Username)
	c.JSON(http.StatusOK, loggedInResponse{Username: login.Username})
}

func (h *apiHandlers) logoutHandler(c *gin.Context) {
	session := sessions.Default(c)
	session.Clear()
	session.Options(sessions.Options{Path: "/", MaxAge: -1})
	if err := session.Save(); err != nil {
		ginReplyError(c, "internal server error")
		return
	}
	ginReplyMessage(c, "logged out")
}

func (h *apiHandlers) loggedIn(c *gin.Context) {
	username, _ := sessions.Default(c).Get(sessionVarField).(string)
	c.JSON(http.StatusOK, loggedInResponse{Username: username})
}

func (h *apiHandlers) getGuildSettings(c *gin.Context) {
	settings, err := GetGuildSettings(h.lc.db, c.Param("guild_id"))
	if err != nil {
		ginReplyError(c, "error loading guild settings")
		return
	}
	c.JSON(http.StatusOK, settings)
}

// guildSettingsPatch is the set of fields the control panel may update.
type guildSettingsPatch struct {
	LogChannelID          *string        `json:"log_channel_id"`
	SubmissionChannelID   *string        `json:"submission_channel_id"`
	ReviewChannelID       *string        `json:"review_channel_id"`
	AnnouncementChannelID *string        `json:"announcement_channel_id"`
	AdminRoleIDs          *string        `json:"admin_role_ids"`
	ModRoleIDs            *string        `json:"mod_role_ids"`
	UnverifiedRoleID      *string        `json:"unverified_role_id"`
	MemberRoleID          *string        `json:"member_role_id"`
	WarningLimit          *int           `json:"warning_limit" binding:"omitempty,min=1"`
	WarningAction         *string        `json:"warning_action" binding:"omitempty,oneof=mute kick ban"`
	WarningActionDuration *time.Duration `json:"warning_action_duration"`
	SubmissionsEnabled    *bool          `json:"submissions_enabled"`
}

func (h *apiHandlers) updateGuildSettings(c *gin.Context) {
	logger := ginContextLogger(c)
	guildID := c.Param("guild_id")

	var patch guildSettingsPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		c.AbortWithStatusJSON(
			http.StatusBadRequest,
			httpError{Error: err.Error()},
		)
		return
	}

	updates := map[string]any{}
	setIf := func(column string, v any, set bool) {
		if set {
			updates[column] = v
		}
	}
	setIf("log_channel_id", deref(patch.LogChannelID), patch.LogChannelID != nil)
	setIf("submission_channel_id", deref(patch.SubmissionChannelID), patch.SubmissionChannelID != nil)
	setIf("review_channel_id", deref(patch.ReviewChannelID), patch.ReviewChannelID != nil)
	setIf("announcement_channel_id", deref(patch.AnnouncementChannelID), patch.AnnouncementChannelID != nil)
	setIf("admin_role_ids", deref(patch.AdminRoleIDs), patch.AdminRoleIDs != nil)
	setIf("mod_role_ids", deref(patch.ModRoleIDs), patch.ModRoleIDs != nil)
	setIf("unverified_role_id", deref(patch.UnverifiedRoleID), patch.UnverifiedRoleID != nil)
	setIf("member_role_id", deref(patch.MemberRoleID), patch.MemberRoleID != nil)
	setIf("warning_limit", deref(patch.WarningLimit), patch.WarningLimit != nil)
	setIf("warning_action", deref(patch.WarningAction), patch.WarningAction != nil)
	setIf("warning_action_duration", deref(patch.WarningActionDuration), patch.WarningActionDuration != nil)
	setIf("submissions_enabled", deref(patch.SubmissionsEnabled), patch.SubmissionsEnabled != nil)

	if len(updates) == 0 {
		c.AbortWithStatusJSON(
			http.StatusBadRequest,
			httpError{Error: "no fields to update"},
		)
		return
	}

	// Ensure the row exists before the targeted update
	if _, err := GetGuildSettings(h.lc.db, guildID); err != nil {
		ginReplyError(c, "error loading guild settings")
		return
	}
	_, err := h.lc.writeDB.UpdatesWhere(
		c.Request.Context(),
		&GuildSettings{},
		updates,
		"guild_id = ?",
		guildID,
	)
	if err != nil {
		logger.Error("error updating guild settings", tint.Err(err))
		ginReplyError(c, "error updating guild settings")
		return
	}
	settings, err := GetGuildSettings(h.lc.db, guildID)
	if err != nil {
		ginReplyError(c, "error loading guild settings")
		return
	}
	logger.Info("guild settings updated", "guild_settings", settings)
	c.JSON(http.StatusOK, settings)
}

func deref[T any](p *T) T {
	if p == nil {
		var zero T
		return zero
	}
	return *p
}

func (h *apiHandlers) getQueue(c *gin.Context) {
	guildID := c.Param("guild_id")
	ctx := c.Request.Context()

	pending, err := h.lc.queue.Pending(ctx, guildID, SubmissionCategoryRegular)
	if err != nil {
		ginReplyError(c, "error loading queue")
		return
	}
	reviewing, err := h.lc.queue.Reviewing(
		ctx, guildID, SubmissionCategoryRegular,
	)
	if err != nil {
		ginReplyError(c, "error loading queue")
		return
	}
	totalReviewed, err := h.lc.queue.TotalReviewedCount(
		ctx, guildID, SubmissionCategoryRegular,
	)
	if err != nil {
		ginReplyError(c, "error loading queue")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"queue":     pending,
		"reviewing": reviewing,
		"reviewed": h.lc.queue.SessionReviewedCount(
			guildID, SubmissionCategoryRegular,
		),
		"total_reviewed": totalReviewed,
	})
}

func (h *apiHandlers) getWarnings(c *gin.Context) {
	warnings, err := h.lc.moderator.Warnings(
		c.Request.Context(),
		c.Param("guild_id"),
		c.Param("user_id"),
	)
	if err != nil {
		ginReplyError(c, "error loading warnings")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"warnings": warnings,
		"count":    len(warnings),
	})
}

func (h *apiHandlers) getWidgetToken(c *gin.Context) {
	token, err := GetOrCreateWidgetToken(
		c.Request.Context(),
		h.lc.db,
		h.lc.writeDB,
		c.Param("guild_id"),
	)
	if err != nil {
		ginReplyError(c, "error creating widget token")
		return
	}
	c.JSON(http.StatusOK, gin.H{"token": token})
}

type startVerificationRequest struct {
	UserID string `json:"user_id" binding:"required"`
}

func (h *apiHandlers) startVerification(c *gin.Context) {
	var req startVerificationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(
			http.StatusBadRequest,
			httpError{Error: err.Error()},
		)
		return
	}
	link, err := NewVerificationLink(
		c.Request.Context(),
		h.lc.writeDB,
		c.Param("guild_id"),
		req.UserID,
	)
	if err != nil {
		ginReplyError(c, "error creating verification link")
		return
	}
	c.JSON(http.StatusCreated, link)
}

type verifyCallbackRequest struct {
	State   string `json:"state" binding:"required"`
	Account string `json:"account" binding:"required"`
}

func (h *apiHandlers) verifyCallback(c *gin.Context) {
	var req verifyCallbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(
			http.StatusBadRequest,
			httpError{Error: err.Error()},
		)
		return
	}
	err := CompleteVerification(
		c.Request.Context(),
		h.lc.writeDB,
		req.State,
		req.Account,
	)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.AbortWithStatusJSON(
				http.StatusNotFound,
				httpError{Error: "unknown verification state"},
			)
			return
		}
		ginReplyError(c, "error completing verification")
		return
	}
	ginReplyMessage(c, "verified")
}

type moderateRequest struct {
	UserID   string         `json:"user_id" binding:"required"`
	Verb     ModerationVerb `json:"verb" binding:"required,oneof=mute kick ban warn"`
	Reason   string         `json:"reason"`
	Duration time.Duration  `json:"duration"`
}

func (h *apiHandlers) actionModerate(c *gin.Context) {
	var req moderateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(
			http.StatusBadRequest,
			httpError{Error: err.Error()},
		)
		return
	}
	duration := req.Duration
	if duration <= 0 {
		duration = DefaultMuteDuration
	}
	h.enqueueAction(c, ActionTask{
		Kind:         ActionModerateUser,
		GuildID:      c.Param("guild_id"),
		TargetUserID: req.UserID,
		Verb:         req.Verb,
		Reason:       req.Reason,
		Duration:     duration,
		ActorID:      sessionUsername(c),
	})
}

type sendMessageRequest struct {
	ChannelID string `json:"channel_id" binding:"required"`
	Content   string `json:"content" binding:"required,max=2000"`
}

func (h *apiHandlers) actionSendMessage(c *gin.Context) {
	var req sendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(
			http.StatusBadRequest,
			httpError{Error: err.Error()},
		)
		return
	}
	h.enqueueAction(c, ActionTask{
		Kind:      ActionSendMessage,
		GuildID:   c.Param("guild_id"),
		ChannelID: req.ChannelID,
		Content:   req.Content,
		ActorID:   sessionUsername(c),
	})
}

type manageStaffRequest struct {
	UserID string `json:"user_id" binding:"required"`
	RoleID string `json:"role_id" binding:"required"`
	Grant  *bool  `json:"grant" binding:"required"`
}

func (h *apiHandlers) actionManageStaff(c *gin.Context) {
	var req manageStaffRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(
			http.StatusBadRequest,
			httpError{Error: err.Error()},
		)
		return
	}
	h.enqueueAction(c, ActionTask{
		Kind:         ActionManageStaff,
		GuildID:      c.Param("guild_id"),
		TargetUserID: req.UserID,
		RoleID:       req.RoleID,
		Grant:        *req.Grant,
		ActorID:      sessionUsername(c),
	})
}

type resetReviewRequest struct {
	SubmissionID uint `json:"submission_id" binding:"required"`
}

func (h *apiHandlers) actionResetReview(c *gin.Context) {
	var req resetReviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(
			http.StatusBadRequest,
			httpError{Error: err.Error()},
		)
		return
	}
	h.enqueueAction(c, ActionTask{
		Kind:         ActionResetStuckReview,
		GuildID:      c.Param("guild_id"),
		SubmissionID: req.SubmissionID,
		ActorID:      sessionUsername(c),
	})
}

// enqueueAction submits the task and replies 202 on success. Execution
// is asynchronous - a 202 means accepted, not done.
func (h *apiHandlers) enqueueAction(c *gin.Context, task ActionTask) {
	if err := h.lc.actions.Enqueue(c.Request.Context(), task); err != nil {
		if errors.Is(err, ErrQueueFull) {
			c.AbortWithStatusJSON(
				http.StatusServiceUnavailable,
				httpError{Error: "action queue full"},
			)
			return
		}
		ginReplyError(c, "error enqueueing action")
		return
	}
	c.JSON(http.StatusAccepted, gin.H{
		"message":    "accepted",
		"queue_size": h.lc.actions.Len(),
	})
}

// widgetSnapshot serves the current queue state for a widget token.
func (h *apiHandlers) widgetSnapshot(c *gin.Context) {
	guildID := h.widgetGuild(c)
	if guildID == "" {
		return
	}
	snapshot, err := h.lc.panels.snapshot(c.Request.Context(), guildID)
	if err != nil {
		ginReplyError(c, "error loading widget data")
		return
	}
	c.JSON(http.StatusOK, widgetUpdate{
		Type:        "full_update",
		RegularData: *snapshot,
	})
}

// widgetSubscribe upgrades to a websocket and streams queue updates
// until the client disconnects.
func (h *apiHandlers) widgetSubscribe(c *gin.Context) {
	guildID := h.widgetGuild(c)
	if guildID == "" {
		return
	}
	// Send the initial state right after subscribing so the widget
	// doesn't wait for the next queue event
	go func() {
		time.Sleep(100 * time.Millisecond)
		snapshot, err := h.lc.panels.snapshot(context.Background(), guildID)
		if err != nil {
			return
		}
		h.lc.hub.Broadcast(context.Background(), guildID, widgetUpdate{
			Type:        "full_update",
			RegularData: *snapshot,
		})
	}()
	err := h.lc.hub.Subscribe(
		c.Request.Context(),
		c.Writer,
		c.Request,
		guildID,
	)
	if err != nil {
		ginContextLogger(c).Warn("websocket upgrade failed", tint.Err(err))
	}
}

func (h *apiHandlers) widgetGuild(c *gin.Context) string {
	guildID, err := GuildFromWidgetToken(h.lc.db, c.Param("token"))
	if err != nil {
		ginReplyError(c, "error resolving widget token")
		return ""
	}
	if guildID == "" {
		c.AbortWithStatusJSON(
			http.StatusUnauthorized,
			httpError{Error: "invalid widget token"},
		)
		return ""
	}
	return guildID
}

func sessionUsername(c *gin.Context) string {
	username, _ := sessions.Default(c).Get(sessionVarField).(string)
	return username
}

func authMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		session := sessions.Default(c)
		username, ok := session.Get(sessionVarField).(string)
		if !ok || username == "" {
			c.AbortWithStatusJSON(
				http.StatusUnauthorized,
				httpError{Error: "unauthorized"},
			)
			return
		}
		c.Next()
	}
}

// requestIDMiddleware assigns a random request ID to each request and
// echoes it in the response headers.
func requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := generateRandomHexString(32)
		if err != nil {
			c.AbortWithStatus(http.StatusInternalServerError)
			return
		}
		c.Set(xRequestIDHeader, id)
		c.Header(xRequestIDHeader, id)
		c.Next()
	}
}

// ginContextLogger returns the request-scoped logger from the gin
// context, creating and caching one with request details when absent.
func ginContextLogger(c *gin.Context) *slog.Logger {
	if logger, ok := c.Get(string(loggerContextKey)); ok {
		if requestLogger, isLogger := logger.(*slog.Logger); isLogger {
			return requestLogger
		}
	}
	requestID, _ := c.Get(xRequestIDHeader)
	path := c.Request.URL.Path
	if raw := c.Request.URL.RawQuery; raw != "" {
		path = path + "?" + raw
	}
	requestLogger := slog.Default().With(
		slog.Group(
			"request",
			"method", c.Request.Method,
			"path", path,
			"remote_ip", c.RemoteIP(),
			"user_agent", c.Request.UserAgent(),
		),
		slog.Any(xRequestIDHeader, requestID),
	)
	c.Set(string(loggerContextKey), requestLogger)
	return requestLogger
}

func ginLoggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		requestLogger := ginContextLogger(c)
		c.Next()
		latency := time.Since(start)

		var errs []error
		for _, e := range c.Errors.ByType(gin.ErrorTypePrivate) {
			errs = append(errs, *e)
		}
		attrs := []any{
			"duration", latency,
			slog.Group(
				"response",
				"status_code", c.Writer.Status(),
				"body_size", c.Writer.Size(),
			),
		}
		msg := fmt.Sprintf(
			"%s %s finished", c.Request.Method, c.Request.URL,
		)
		if len(errs) > 0 {
			requestLogger.Error(msg, append(attrs, "errors", errs)...)
		} else {
			requestLogger.Info(msg, attrs...)
		}
	}
}

// metricMiddleware counts requests per method and path.
func metricMiddleware(a *API) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer c.Next()

		a.requestMetricsMu.Lock()
		defer a.requestMetricsMu.Unlock()
		key := c.Request.Method + " " + c.Request.URL.Path
		a.requestMetrics[key]++
	}
}

// RequestMetrics returns a copy of the per-route request counters.
func (a *API) RequestMetrics() map[string]int {
	a.requestMetricsMu.Lock()
	defer a.requestMetricsMu.Unlock()
	metrics := make(map[string]int, len(a.requestMetrics))
	for k, v := range a.requestMetrics {
		metrics[k] = v
	}
	return metrics
}

func ginReplyMessage(c *gin.Context, message string) {
	c.JSON(http.StatusOK, httpReply{Message: message})
}

func ginReplyError(c *gin.Context, err string) {
	c.AbortWithStatusJSON(
		http.StatusInternalServerError,
		httpError{Error: err},
	)
}
