//nolint:lll // struct tags can't be split
package leclark

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/gin-contrib/cors"
)

const (
	DefaultEnvPrefix    = "LECLARK"
	DefaultDatabaseType = "sqlite"
	DefaultDatabase     = "leclark.sqlite3"
	DefaultLogLevel     = slog.LevelInfo

	DefaultStartupTimeout  = 30 * time.Second
	DefaultShutdownTimeout = 60 * time.Second

	DefaultReadTimeout       = 5 * time.Second
	DefaultReadHeaderTimeout = 5 * time.Second
	DefaultWriteTimeout      = 10 * time.Second
	DefaultIdleTimeout       = 30 * time.Second

	DefaultAPIListen        = "127.0.0.1:5000"
	DefaultAPISessionMaxAge = 6 * time.Hour

	// DefaultActionQueueSize is the buffer size of the in-memory action
	// queue. Tasks are held only in process memory - a restart discards
	// anything not yet executed.
	DefaultActionQueueSize = 100

	// DefaultReviewTimeout is how long a submission may sit in the
	// 'reviewing' state before the sweep returns it to 'pending'.
	DefaultReviewTimeout = 5 * time.Hour

	// DefaultReviewSweepInterval is how often stuck reviews are checked.
	DefaultReviewSweepInterval = time.Minute

	// DefaultPanelWatchInterval is how often configured panel messages are
	// verified to still exist (and reposted when they don't).
	DefaultPanelWatchInterval = 5 * time.Minute

	DefaultVerificationSweepInterval = 15 * time.Second

	DefaultWarningLimit          = 3
	DefaultWarningAction         = "mute"
	DefaultWarningActionDuration = 60 * time.Minute
	DefaultMuteDuration          = 30 * time.Minute

	DefaultDiscordCustomStatus  = "the submission queue"
	DefaultDiscordGatewayIntent = discordgo.IntentsAllWithoutPrivileged |
		discordgo.IntentsGuildMembers |
		discordgo.IntentsMessageContent

	DefaultDatabaseSlowThreshold = 200 * time.Millisecond
	DefaultDatabaseLogLevel      = slog.LevelInfo
	DefaultDiscordLogLevel       = slog.LevelWarn
	DefaultDiscordgoLogLevel     = slog.LevelWarn
	DefaultAPILogLevel           = slog.LevelInfo

	DefaultAPICORSAllowCredentials = true

	// DiscordSlashCommandSetupPanel posts (or re-posts) the review control
	// panel in the configured review channel.
	DiscordSlashCommandSetupPanel = "setup_submission_panel"

	// DiscordSlashCommandResetReview manually resets a submission stuck in
	// the 'reviewing' state.
	DiscordSlashCommandResetReview = "reset_stuck_review"

	// DiscordSlashCommandStartGiveaway starts a timed giveaway in the
	// current channel.
	DiscordSlashCommandStartGiveaway = "start_giveaway"

	DefaultGiveawaySweepInterval = time.Minute
)

var (
	DefaultCORSAllowMethods = []string{
		http.MethodGet,
		http.MethodPost,
		http.MethodPut,
		http.MethodPatch,
		http.MethodDelete,
		http.MethodOptions,
		http.MethodHead,
	}
	DefaultCORSAllowHeaders = []string{
		"Origin",
		"Content-Length",
		"Content-Type",
		"Accept",
		"Authorization",
		"X-Requested-With",
		"Cache-Control",
		"X-CSRF-Token",
		xRequestIDHeader,
	}
	DefaultCORSExposeHeaders = []string{
		"Content-Type",
		"Content-Length",
		"Accept-Encoding",
		xRequestIDHeader,
		"Location",
		"ETag",
		"Authorization",
		"Last-Modified",
	}
	DefaultCORSMaxAge = 12 * time.Hour
)

type Config struct {
	// Database connection string
	Database string `yaml:"database" mapstructure:"database" json:"database"`

	// DatabaseType specifies the type of database, either 'sqlite' or 'postgres'
	DatabaseType string `yaml:"database_type" mapstructure:"database_type" json:"database_type" binding:"oneof=sqlite postgres"`

	// DatabaseLogLevel sets the log level for database operations
	DatabaseLogLevel *slog.LevelVar `yaml:"database_log_level" mapstructure:"database_log_level" json:"database_log_level"`

	// DatabaseSlowThreshold is the duration threshold for identifying slow database queries
	DatabaseSlowThreshold time.Duration `yaml:"database_slow_threshold" mapstructure:"database_slow_threshold" json:"database_slow_threshold"`

	// LogLevel is the base log level, for the default logger
	LogLevel *slog.LevelVar `yaml:"log_level" mapstructure:"log_level" json:"log_level"`

	// Discord configures the bot itself
	Discord *DiscordConfig `yaml:"discord" mapstructure:"discord" json:"discord"`

	// API configures the web control panel API server
	API *APIConfig `yaml:"api" mapstructure:"api" json:"api"`

	// Queue configures the in-memory action queue
	Queue *ActionQueueConfig `yaml:"queue" mapstructure:"queue" json:"queue"`

	// Submissions configures the submission review workflow
	Submissions *SubmissionConfig `yaml:"submissions" mapstructure:"submissions" json:"submissions"`

	// StartupTimeout sets a limit on the amount of time the bot has to
	// initialize. If this is passed, the bot will abort startup.
	StartupTimeout time.Duration `yaml:"startup_timeout" mapstructure:"startup_timeout" json:"startup_timeout"`

	// ShutdownTimeout is the time to allow for a graceful shutdown. After
	// this elapses, the bot will force close all connections and exit.
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" mapstructure:"shutdown_timeout" json:"shutdown_timeout"`

	HTTPClient *http.Client `log:"[redacted]"`
}

func (c Config) LogValue() slog.Value {
	return structToSlogValue(c)
}

type DiscordConfig struct {
	// Token is the Discord bot token
	Token string `yaml:"token" mapstructure:"token" json:"token" binding:"required" log:"[redacted]"`

	// ApplicationID is the Discord application ID
	ApplicationID string `yaml:"application_id" mapstructure:"application_id" json:"application_id" binding:"required"`

	// GatewayIntents sets the discord gateway intents. Ingesting
	// submissions requires the message content intent.
	GatewayIntents discordgo.Intent `yaml:"gateway_intents" mapstructure:"gateway_intents" json:"gateway_intents"`

	// CustomStatus is displayed as the bot's activity
	CustomStatus string `yaml:"custom_status" mapstructure:"custom_status" json:"custom_status"`

	// StartupMessage, if set, is sent to each guild's configured log
	// channel when the bot comes online
	StartupMessage string `yaml:"startup_message" mapstructure:"startup_message" json:"startup_message"`

	LogLevel *slog.LevelVar `yaml:"log_level" mapstructure:"log_level" json:"log_level"`

	// DiscordGoLogLevel is the log level for the discordgo library itself
	DiscordGoLogLevel *slog.LevelVar `yaml:"discordgo_log_level" mapstructure:"discordgo_log_level" json:"discordgo_log_level"`

	httpClient *http.Client
}

type APIConfig struct {
	// Listen address (ex: '127.0.0.1:5000')
	Listen string `yaml:"listen" mapstructure:"listen" json:"listen" binding:"required"`

	// Secret is used to generate session cookies. If empty, a random
	// secret is generated at startup (sessions won't survive a restart).
	Secret string `yaml:"secret" mapstructure:"secret" json:"secret" log:"[redacted]"`

	// ExternalURL is the base URL the panel/widget is reachable at,
	// used when rendering widget links
	ExternalURL string `yaml:"external_url" mapstructure:"external_url" json:"external_url"`

	// AdminUsername and AdminPassword authenticate control panel logins.
	// AdminPassword is an argon2id hash - see `leclark hashpw`. The API
	// refuses logins when either is unset.
	AdminUsername string `yaml:"admin_username" mapstructure:"admin_username" json:"admin_username"`
	AdminPassword string `yaml:"admin_password" mapstructure:"admin_password" json:"admin_password" log:"[redacted]"`

	SessionMaxAge time.Duration `yaml:"session_max_age" mapstructure:"session_max_age" json:"session_max_age"`

	CORS CORSConfig `yaml:"cors" mapstructure:"cors" json:"cors"`

	ReadTimeout       time.Duration `yaml:"read_timeout" mapstructure:"read_timeout" json:"read_timeout"`
	ReadHeaderTimeout time.Duration `yaml:"read_header_timeout" mapstructure:"read_header_timeout" json:"read_header_timeout"`
	WriteTimeout      time.Duration `yaml:"write_timeout" mapstructure:"write_timeout" json:"write_timeout"`
	IdleTimeout       time.Duration `yaml:"idle_timeout" mapstructure:"idle_timeout" json:"idle_timeout"`

	// Development enables pprof endpoints and permissive CORS
	Development bool `yaml:"development" mapstructure:"development" json:"development"`

	LogLevel *slog.LevelVar `yaml:"log_level" mapstructure:"log_level" json:"log_level"`
}

type ActionQueueConfig struct {
	// Size is the action queue channel buffer size. Enqueue fails only
	// when this is full.
	Size int `yaml:"size" mapstructure:"size" json:"size" binding:"min=1"`
}

type SubmissionConfig struct {
	// ReviewTimeout is the maximum time a submission may remain in the
	// 'reviewing' state before being returned to 'pending'
	ReviewTimeout time.Duration `yaml:"review_timeout" mapstructure:"review_timeout" json:"review_timeout"`

	// SweepInterval is how often to check for stuck reviews
	SweepInterval time.Duration `yaml:"sweep_interval" mapstructure:"sweep_interval" json:"sweep_interval"`

	// PanelWatchInterval is how often to verify panel messages still exist
	PanelWatchInterval time.Duration `yaml:"panel_watch_interval" mapstructure:"panel_watch_interval" json:"panel_watch_interval"`

	// VerificationSweepInterval is how often completed verification links
	// are applied (member role granted, unverified role removed)
	VerificationSweepInterval time.Duration `yaml:"verification_sweep_interval" mapstructure:"verification_sweep_interval" json:"verification_sweep_interval"`
}

type CORSConfig struct {
	AllowOrigins     []string      `yaml:"allow_origins" mapstructure:"allow_origins" json:"allow_origins"`
	AllowMethods     []string      `yaml:"allow_methods" mapstructure:"allow_methods" json:"allow_methods"`
	AllowHeaders     []string      `yaml:"allow_headers" mapstructure:"allow_headers" json:"allow_headers"`
	ExposeHeaders    []string      `yaml:"expose_headers" mapstructure:"expose_headers" json:"expose_headers"`
	AllowCredentials bool          `yaml:"allow_credentials" mapstructure:"allow_credentials" json:"allow_credentials"`
	MaxAge           time.Duration `yaml:"max_age" mapstructure:"max_age" json:"max_age"`
}

func (c CORSConfig) GINConfig() cors.Config {
	return cors.Config{
		AllowOrigins:     c.AllowOrigins,
		AllowMethods:     c.AllowMethods,
		AllowHeaders:     c.AllowHeaders,
		ExposeHeaders:    c.ExposeHeaders,
		AllowCredentials: c.AllowCredentials,
		MaxAge:           c.MaxAge,
	}
}

func DefaultCORSConfig() CORSConfig {
	return CORSConfig{
		AllowMethods:     DefaultCORSAllowMethods,
		AllowHeaders:     DefaultCORSAllowHeaders,
		ExposeHeaders:    DefaultCORSExposeHeaders,
		AllowCredentials: DefaultAPICORSAllowCredentials,
		MaxAge:           DefaultCORSMaxAge,
	}
}

func newLevelVar(l slog.Level) *slog.LevelVar {
	v := &slog.LevelVar{}
	v.Set(l)
	return v
}

// DefaultConfig returns a Config with sane defaults. Values are
// overridden by viper in the cmd package.
func DefaultConfig() *Config {
	return &Config{
		Database:              DefaultDatabase,
		DatabaseType:          DefaultDatabaseType,
		DatabaseLogLevel:      newLevelVar(DefaultDatabaseLogLevel),
		DatabaseSlowThreshold: DefaultDatabaseSlowThreshold,
		LogLevel:              newLevelVar(DefaultLogLevel),
		StartupTimeout:        DefaultStartupTimeout,
		ShutdownTimeout:       DefaultShutdownTimeout,
		Discord: &DiscordConfig{
			GatewayIntents:    DefaultDiscordGatewayIntent,
			CustomStatus:      DefaultDiscordCustomStatus,
			LogLevel:          newLevelVar(DefaultDiscordLogLevel),
			DiscordGoLogLevel: newLevelVar(DefaultDiscordgoLogLevel),
		},
		API: &APIConfig{
			Listen:            DefaultAPIListen,
			SessionMaxAge:     DefaultAPISessionMaxAge,
			CORS:              DefaultCORSConfig(),
			ReadTimeout:       DefaultReadTimeout,
			ReadHeaderTimeout: DefaultReadHeaderTimeout,
			WriteTimeout:      DefaultWriteTimeout,
			IdleTimeout:       DefaultIdleTimeout,
			LogLevel:          newLevelVar(DefaultAPILogLevel),
		},
		Queue: &ActionQueueConfig{Size: DefaultActionQueueSize},
		Submissions: &SubmissionConfig{
			ReviewTimeout:             DefaultReviewTimeout,
			SweepInterval:             DefaultReviewSweepInterval,
			PanelWatchInterval:        DefaultPanelWatchInterval,
			VerificationSweepInterval: DefaultVerificationSweepInterval,
		},
	}
}
