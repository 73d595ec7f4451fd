package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/adhocore/gronx"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds runtime configuration values for the chat service.
type Config struct {
	AppName                string
	AppEnv                 string
	AppPort                string
	LogLevel               string
	DatabaseURL            string
	RedisURL               string
	NATSURL                string
	BroadcastChannel       string
	JWTSecret              string
	CloudinaryCloudName    string
	CloudinaryAPIKey       string
	CloudinaryAPISecret    string
	CloudinaryUploadFolder string
	UploadMaxMB            int
	PresenceTTL            time.Duration
	AuthTimeout            time.Duration
	SendBuffer             int
	CommandRate            float64
	CommandBurst           int
	TypingMaxAge           time.Duration
	TypingSweepCron        string
	RateLimitPerMinute     int
}

// HTTPAddress returns the address the HTTP server should listen on.
func (c Config) HTTPAddress() string {
	if strings.HasPrefix(c.AppPort, ":") {
		return c.AppPort
	}

	return fmt.Sprintf(":%s", c.AppPort)
}

// IsDevelopment reports whether the service runs in a local development environment.
func (c Config) IsDevelopment() bool {
	return strings.EqualFold(c.AppEnv, "development")
}

// Load reads configuration values from environment variables and optional .env file.
func Load() (Config, error) {
	_ = godotenv.Load()
	return load(viper.New())
}

func load(v *viper.Viper) (Config, error) {
	v.SetEnvPrefix("TEAMCHAT")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("app.name", "Teamchat API")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.port", "8080")
	v.SetDefault("log.level", "info")
	v.SetDefault("broadcast.channel", "teamchat.events")
	v.SetDefault("cloudinary.folder", "teamchat/attachments")
	v.SetDefault("upload.max_mb", 10)
	v.SetDefault("presence.ttl", "300s")
	v.SetDefault("auth.timeout", "10s")
	v.SetDefault("session.send_buffer", 64)
	v.SetDefault("session.command_rate", 10)
	v.SetDefault("session.command_burst", 20)
	v.SetDefault("typing.max_age", "60s")
	v.SetDefault("typing.sweep_cron", "* * * * *")
	v.SetDefault("http.rate_limit_per_minute", 120)

	presenceTTL, err := duration(v, "presence.ttl")
	if err != nil {
		return Config{}, err
	}
	authTimeout, err := duration(v, "auth.timeout")
	if err != nil {
		return Config{}, err
	}
	typingMaxAge, err := duration(v, "typing.max_age")
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		AppName:                v.GetString("app.name"),
		AppEnv:                 v.GetString("app.env"),
		AppPort:                v.GetString("app.port"),
		LogLevel:               strings.ToLower(v.GetString("log.level")),
		DatabaseURL:            v.GetString("database.url"),
		RedisURL:               v.GetString("redis.url"),
		NATSURL:                v.GetString("nats.url"),
		BroadcastChannel:       v.GetString("broadcast.channel"),
		JWTSecret:              v.GetString("jwt.secret"),
		CloudinaryCloudName:    v.GetString("cloudinary.cloud_name"),
		CloudinaryAPIKey:       v.GetString("cloudinary.api_key"),
		CloudinaryAPISecret:    v.GetString("cloudinary.api_secret"),
		CloudinaryUploadFolder: v.GetString("cloudinary.folder"),
		UploadMaxMB:            v.GetInt("upload.max_mb"),
		PresenceTTL:            presenceTTL,
		AuthTimeout:            authTimeout,
		SendBuffer:             v.GetInt("session.send_buffer"),
		CommandRate:            v.GetFloat64("session.command_rate"),
		CommandBurst:           v.GetInt("session.command_burst"),
		TypingMaxAge:           typingMaxAge,
		TypingSweepCron:        v.GetString("typing.sweep_cron"),
		RateLimitPerMinute:     v.GetInt("http.rate_limit_per_minute"),
	}

	if cfg.JWTSecret == "" {
		return Config{}, fmt.Errorf("jwt secret must be provided")
	}

	if cfg.DatabaseURL == "" {
		return Config{}, fmt.Errorf("database url must be provided")
	}

	if !gronx.IsValid(cfg.TypingSweepCron) {
		return Config{}, fmt.Errorf("invalid typing sweep cron expression: %s", cfg.TypingSweepCron)
	}

	if cfg.SendBuffer <= 0 {
		cfg.SendBuffer = 64
	}

	if cfg.CommandBurst <= 0 {
		cfg.CommandBurst = 20
	}

	return cfg, nil
}

func duration(v *viper.Viper, key string) (time.Duration, error) {
	value, err := time.ParseDuration(v.GetString(key))
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	if value <= 0 {
		return 0, fmt.Errorf("invalid %s: must be positive", key)
	}
	return value, nil
}
