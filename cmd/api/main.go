package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/noah-isme/gema-teamchat/internal/auth"
	"github.com/noah-isme/gema-teamchat/internal/config"
	"github.com/noah-isme/gema-teamchat/internal/database"
	"github.com/noah-isme/gema-teamchat/internal/handler"
	"github.com/noah-isme/gema-teamchat/internal/middleware"
	"github.com/noah-isme/gema-teamchat/internal/observability"
	"github.com/noah-isme/gema-teamchat/internal/repository"
	"github.com/noah-isme/gema-teamchat/internal/router"
	"github.com/noah-isme/gema-teamchat/internal/service"
	cloud "github.com/noah-isme/gema-teamchat/pkg/cloudinary"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logger := newLogger(cfg)

	db, err := database.Connect(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	if err := database.Migrate(db); err != nil {
		logger.Fatal().Err(err).Msg("failed to migrate database")
	}

	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		redisClient, err = database.ConnectRedis(cfg.RedisURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect to redis")
		}
		defer redisClient.Close()
	}

	var natsConn *nats.Conn
	if cfg.NATSURL != "" {
		natsConn, err = database.ConnectNATS(cfg.NATSURL, cfg.AppName)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect to nats")
		}
		defer natsConn.Close()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	observability.RegisterMetrics()

	hub := service.NewBroadcastHub(selectRelay(cfg, redisClient, natsConn, logger), logger)
	if err := hub.Start(ctx); err != nil {
		logger.Fatal().Err(err).Msg("failed to start broadcast relay")
	}

	var presenceStore service.TTLStore = service.NewMemoryTTLStore()
	if redisClient != nil {
		presenceStore = service.NewRedisTTLStore(redisClient)
	}
	presence := service.NewPresenceTracker(presenceStore, cfg.PresenceTTL)

	var storage service.FileStorage
	cloudCfg := cloud.Config{
		CloudName: cfg.CloudinaryCloudName,
		APIKey:    cfg.CloudinaryAPIKey,
		APISecret: cfg.CloudinaryAPISecret,
		Folder:    cfg.CloudinaryUploadFolder,
	}
	if cloudCfg.Enabled() {
		store, err := cloud.New(cloudCfg, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to create cloudinary client")
		}
		storage = store
	} else {
		logger.Warn().Msg("cloudinary credentials missing, attachments disabled")
	}

	validate := validator.New(validator.WithRequiredStructEnabled())

	roomRepo := repository.NewRoomRepository(db)
	messageRepo := repository.NewMessageRepository(db)
	typingRepo := repository.NewTypingRepository(db)
	directRepo := repository.NewDirectMessageRepository(db)

	var attachments service.AttachmentService
	if storage != nil {
		attachments = service.NewAttachmentService(storage, cfg.UploadMaxMB, logger)
	}

	chatService := service.NewChatService(roomRepo, messageRepo, typingRepo, hub, attachments, validate, logger)
	directService := service.NewDirectService(directRepo, presence, hub, validate, logger)

	sweeper, err := service.NewTypingSweeper(typingRepo, hub, cfg.TypingMaxAge, cfg.TypingSweepCron, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to create typing sweeper")
	}
	go sweeper.Run(ctx)

	resolver := auth.NewJWTResolver(cfg.JWTSecret)
	gateway := service.NewGateway(resolver, chatService, directService, presence, hub, service.GatewayConfig{
		AuthTimeout:  cfg.AuthTimeout,
		SendBuffer:   cfg.SendBuffer,
		CommandRate:  cfg.CommandRate,
		CommandBurst: cfg.CommandBurst,
	}, logger)

	app := fiber.New(fiber.Config{
		AppName:      cfg.AppName,
		ServerHeader: cfg.AppName,
	})

	middleware.Register(app, middleware.Config{Logger: &logger})
	router.Register(app, cfg, router.Dependencies{
		ChatHandler:     handler.NewChatHandler(chatService, validate, logger),
		DirectHandler:   handler.NewDirectHandler(directService, validate, logger),
		RealtimeHandler: handler.NewRealtimeHandler(gateway, logger),
		JWTMiddleware:   middleware.JWTProtected(resolver),
		RateLimiter:     middleware.RateLimit("chat", cfg.RateLimitPerMinute, time.Minute),
		HealthProbes:    healthProbes(db, redisClient, natsConn),
	})

	go func() {
		if err := app.Listen(cfg.HTTPAddress()); err != nil {
			logger.Fatal().Err(err).Msg("failed to start server")
		}
	}()

	waitForShutdown(app, cancel, logger)
}

func newLogger(cfg config.Config) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil || cfg.LogLevel == "" {
		level = zerolog.InfoLevel
	}

	var logger zerolog.Logger
	if cfg.IsDevelopment() {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339})
	} else {
		logger = zerolog.New(os.Stdout)
	}
	return logger.Level(level).With().Timestamp().Str("service", cfg.AppName).Logger()
}

// selectRelay prefers NATS, then Redis pub/sub. A nil relay keeps fan-out on this node only.
func selectRelay(cfg config.Config, redisClient *redis.Client, natsConn *nats.Conn, logger zerolog.Logger) service.Relay {
	switch {
	case natsConn != nil:
		return service.NewNATSRelay(natsConn, cfg.BroadcastChannel, logger)
	case redisClient != nil:
		return service.NewRedisRelay(redisClient, cfg.BroadcastChannel, logger)
	default:
		logger.Warn().Msg("no broadcast relay configured, running single node")
		return nil
	}
}

func healthProbes(db *gorm.DB, redisClient *redis.Client, natsConn *nats.Conn) map[string]handler.HealthProbe {
	probes := map[string]handler.HealthProbe{
		"database": func(ctx context.Context) error {
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		},
	}
	if redisClient != nil {
		probes["redis"] = func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		}
	}
	if natsConn != nil {
		probes["nats"] = func(ctx context.Context) error {
			if !natsConn.IsConnected() {
				return nats.ErrConnectionClosed
			}
			return nil
		}
	}
	return probes
}

func waitForShutdown(app *fiber.App, cancel context.CancelFunc, logger zerolog.Logger) {
	shutdownCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-shutdownCtx.Done()

	ctx, done := context.WithTimeout(context.Background(), 5*time.Second)
	defer done()

	if err := app.ShutdownWithContext(ctx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}
	cancel()

	logger.Info().Msg("server stopped")
}
