package cmd

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"reflect"
	"strings"
	"syscall"

	"github.com/LeClarkGames/LeClark/leclark"
	"github.com/joho/godotenv"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfg        = leclark.DefaultConfig()
	configFile string
)

var rootCmd = &cobra.Command{
	Use: "leclark [flags]",
	PersistentPreRun: func(_ *cobra.Command, _ []string) {
		err := viper.Unmarshal(
			cfg,
			viper.DecodeHook(
				mapstructure.ComposeDecodeHookFunc(
					mapstructure.StringToTimeDurationHookFunc(),
					LevelToStringHookFunc(),
				),
			),
		)
		if err != nil {
			log.Fatalln(err)
		}
	},
}

// LevelToStringHookFunc decodes log level strings into *slog.LevelVar.
func LevelToStringHookFunc() mapstructure.DecodeHookFuncType {
	return func(
		f reflect.Type,
		t reflect.Type,
		data any,
	) (any, error) {
		if f.Kind() != reflect.String {
			return data, nil
		}
		if t.Kind() != reflect.Ptr {
			return data, nil
		}
		if t.Elem() != reflect.TypeOf(slog.LevelVar{}) {
			return data, nil
		}
		lvlVar, err := levelStringToLevelVar(data.(string))
		if err != nil {
			return nil, fmt.Errorf("invalid log level: %s", data)
		}
		return lvlVar, nil
	}
}

func Execute() {
	ctx, cancel := context.WithCancel(context.Background())
	rootCmd.SetContext(ctx)
	signals := make(chan os.Signal, 1)
	signal.Notify(
		signals,
		os.Interrupt,
		syscall.SIGHUP,
		syscall.SIGTERM,
		syscall.SIGINT,
	)
	defer func() {
		signal.Stop(signals)
		cancel()
	}()
	go func() {
		select {
		case <-signals:
			cancel()
		case <-ctx.Done():
			//
		}
	}()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func initConfig() {
	if configFile == "" {
		if err := godotenv.Load(); err != nil {
			log.Println("No .env file found")
		}
	} else {
		if err := godotenv.Load(configFile); err != nil {
			log.Printf("error loading env file %s: %v", configFile, err)
		}
	}

	viper.SetDefault("database", leclark.DefaultDatabase)
	viper.SetDefault("database_type", leclark.DefaultDatabaseType)
	viper.SetDefault(
		"database_slow_threshold",
		leclark.DefaultDatabaseSlowThreshold,
	)
	viper.SetDefault(
		"database_log_level",
		leclark.DefaultDatabaseLogLevel.String(),
	)
	viper.SetDefault("log_level", leclark.DefaultLogLevel.String())
	viper.SetDefault("startup_timeout", leclark.DefaultStartupTimeout)
	viper.SetDefault("shutdown_timeout", leclark.DefaultShutdownTimeout)

	// Discord config
	viper.SetDefault("discord.token", "")
	viper.SetDefault("discord.application_id", "")
	viper.SetDefault("discord.custom_status", leclark.DefaultDiscordCustomStatus)
	viper.SetDefault("discord.startup_message", "")
	viper.SetDefault(
		"discord.gateway_intents",
		leclark.DefaultDiscordGatewayIntent,
	)
	viper.SetDefault(
		"discord.log_level",
		leclark.DefaultDiscordLogLevel.String(),
	)
	viper.SetDefault(
		"discord.discordgo_log_level",
		leclark.DefaultDiscordgoLogLevel.String(),
	)

	// API config
	viper.SetDefault("api.listen", leclark.DefaultAPIListen)
	viper.SetDefault("api.secret", "")
	viper.SetDefault("api.external_url", "")
	viper.SetDefault("api.admin_username", "")
	viper.SetDefault("api.admin_password", "")
	viper.SetDefault("api.development", false)
	viper.SetDefault("api.session_max_age", leclark.DefaultAPISessionMaxAge)
	viper.SetDefault("api.read_timeout", leclark.DefaultReadTimeout)
	viper.SetDefault(
		"api.read_header_timeout",
		leclark.DefaultReadHeaderTimeout,
	)
	viper.SetDefault("api.write_timeout", leclark.DefaultWriteTimeout)
	viper.SetDefault("api.idle_timeout", leclark.DefaultIdleTimeout)
	viper.SetDefault("api.log_level", leclark.DefaultAPILogLevel.String())

	// API: CORS config
	viper.SetDefault(
		"api.cors.allow_headers",
		leclark.DefaultCORSAllowHeaders,
	)
	viper.SetDefault(
		"api.cors.allow_methods",
		leclark.DefaultCORSAllowMethods,
	)
	viper.SetDefault(
		"api.cors.expose_headers",
		leclark.DefaultCORSExposeHeaders,
	)
	viper.SetDefault("api.cors.allow_origins", []string{})
	viper.SetDefault("api.cors.max_age", leclark.DefaultCORSMaxAge)
	viper.SetDefault(
		"api.cors.allow_credentials",
		leclark.DefaultAPICORSAllowCredentials,
	)

	// Action queue
	viper.SetDefault("queue.size", leclark.DefaultActionQueueSize)

	// Submissions
	viper.SetDefault(
		"submissions.review_timeout",
		leclark.DefaultReviewTimeout,
	)
	viper.SetDefault(
		"submissions.sweep_interval",
		leclark.DefaultReviewSweepInterval,
	)
	viper.SetDefault(
		"submissions.panel_watch_interval",
		leclark.DefaultPanelWatchInterval,
	)
	viper.SetDefault(
		"submissions.verification_sweep_interval",
		leclark.DefaultVerificationSweepInterval,
	)

	viper.SetEnvPrefix(leclark.DefaultEnvPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// Convert values to correct types
	viper.Set(
		"api.cors.allow_headers",
		viper.GetStringSlice("api.cors.allow_headers"),
	)
	viper.Set(
		"api.cors.allow_origins",
		viper.GetStringSlice("api.cors.allow_origins"),
	)
	viper.Set(
		"api.cors.allow_methods",
		viper.GetStringSlice("api.cors.allow_methods"),
	)
	viper.Set(
		"api.cors.expose_headers",
		viper.GetStringSlice("api.cors.expose_headers"),
	)

	for _, key := range []string{
		"log_level",
		"database_log_level",
		"discord.log_level",
		"discord.discordgo_log_level",
		"api.log_level",
	} {
		lvlVar, err := levelStringToLevelVar(viper.GetString(key))
		if err != nil {
			log.Fatalf("error parsing %s: %v", key, err)
		}
		viper.Set(key, lvlVar)
	}
}

func levelStringToLevelVar(lvl string) (*slog.LevelVar, error) {
	level := &slog.LevelVar{}
	err := level.UnmarshalText([]byte(lvl))
	return level, err
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(
		&configFile,
		"config",
		"",
		"Env file to load",
	)
}
