package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/clashsync/internal/config"
	"github.com/clashsync/internal/handler"
	authmw "github.com/clashsync/internal/handler/middleware"
	"github.com/clashsync/internal/kafka"
	"github.com/clashsync/internal/postgres"
	"github.com/clashsync/internal/redis"
	"github.com/clashsync/internal/service"
	"github.com/clashsync/internal/websocket"
	"github.com/clashsync/internal/worker"
)

func main() {
	// Parse command line flags
	configPath := flag.String("config", "config.yaml", "Path to configuration file")
	envPath := flag.String("env", ".env", "Path to an optional .env file")
	flag.Parse()

	// Environment first so ${VAR} references in the config resolve
	if err := godotenv.Load(*envPath); err != nil && !os.IsNotExist(err) {
		fmt.Fprintf(os.Stderr, "loading %s: %v\n", *envPath, err)
	}

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config file, using defaults: %v\n", err)
		cfg = config.DefaultConfig()
	}

	// Setup structured logging
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.Log.SlogLevel(),
	}))
	slog.SetDefault(logger)

	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize Redis
	logger.Info("connecting to Redis", "addr", cfg.Redis.Addr)
	redisClient, err := redis.NewClient(&cfg.Redis)
	if err != nil {
		logger.Error("failed to connect to Redis", "error", err)
		os.Exit(1)
	}
	defer redisClient.Close()
	logger.Info("connected to Redis")

	leaderboard := redis.NewLeaderboard(redisClient, logger)
	typing := redis.NewTypingStore(redisClient, logger)
	presence := redis.NewPresenceStore(redisClient, logger)

	// Initialize PostgreSQL
	logger.Info("connecting to PostgreSQL", "host", cfg.Postgres.Host, "database", cfg.Postgres.Database)
	repo, err := postgres.NewRepository(&cfg.Postgres, logger)
	if err != nil {
		logger.Error("failed to connect to PostgreSQL", "error", err)
		os.Exit(1)
	}
	defer repo.Close()
	logger.Info("connected to PostgreSQL")

	if err := repo.RunMigrations(ctx); err != nil {
		logger.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}

	// Initialize WebSocket hub
	wsHub := websocket.NewHub(websocket.HubConfig{
		AllowedOrigins: cfg.Server.AllowedOrigins,
		PresenceTTL:    cfg.Messaging.PresenceTTL,
	}, presence, logger)
	go wsHub.Run()
	notifier := websocket.NewHubNotifier(wsHub)

	// Initialize services
	userService := service.NewUserService(repo, leaderboard, presence, notifier, cfg.Auth.AdminIDs, logger)
	threadService := service.NewThreadService(repo, repo, typing, notifier, &cfg.Messaging, logger)
	channelService := service.NewChannelService(repo, notifier, &cfg.Messaging, logger)
	battleService := service.NewBattleService(repo, repo, notifier, cfg.Messaging.BattleRequestsPage, logger)
	battleService.SetAnnouncer(channelService)
	battleService.SetInviter(threadService)
	leaderboardService := service.NewLeaderboardService(leaderboard, repo, repo, notifier, &cfg.Leaderboard, logger)

	// Rebuild the ranking from the balances of record
	syncWorker := worker.NewSyncWorker(repo, leaderboard, &cfg.Sync, logger)
	if n, err := syncWorker.SyncFromDatabase(ctx); err != nil {
		logger.Warn("failed to sync leaderboard on startup", "error", err)
	} else {
		logger.Info("leaderboard synced from database", "users", n)
	}
	if cfg.Sync.Enabled {
		if err := syncWorker.Start(ctx); err != nil {
			logger.Error("failed to start sync worker", "error", err)
			os.Exit(1)
		}
	}

	// Kafka consumer for diamond awards from game servers
	var kafkaConsumer *kafka.Consumer
	if cfg.Kafka.Enabled {
		logger.Info("initializing Kafka consumer",
			"brokers", cfg.Kafka.Brokers,
			"topic", cfg.Kafka.Topic,
		)
		kafkaConsumer, err = kafka.NewConsumer(&cfg.Kafka, leaderboardService, logger)
		if err != nil {
			logger.Warn("failed to create Kafka consumer, continuing without Kafka", "error", err)
		} else if err := kafkaConsumer.Start(); err != nil {
			logger.Warn("failed to start Kafka consumer, continuing without Kafka", "error", err)
			kafkaConsumer = nil
		}
	}

	redisReady := func(ctx context.Context) error {
		return redisClient.Ping(ctx).Err()
	}

	auth := authmw.NewAuthenticator(&cfg.Auth, userService, logger)
	httpHandler := handler.NewHandler(handler.Services{
		Users:       userService,
		Battles:     battleService,
		Threads:     threadService,
		Channels:    channelService,
		Leaderboard: leaderboardService,
	}, auth, wsHub, map[string]handler.ReadyCheck{
		"postgres": repo.Ping,
		"redis":    redisReady,
	}, logger)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      httpHandler.Router(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		logger.Info("starting HTTP server", "port", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("HTTP server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("failed to shutdown server", "error", err)
	}

	wsHub.Stop()

	if kafkaConsumer != nil {
		if err := kafkaConsumer.Stop(); err != nil {
			logger.Error("failed to stop Kafka consumer", "error", err)
		}
	}

	if err := syncWorker.Stop(); err != nil {
		logger.Error("failed to stop sync worker", "error", err)
	}

	logger.Info("server stopped")
}
