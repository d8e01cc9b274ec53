package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jonboulle/clockwork"

	"github.com/AIGun-Labs/aigun-backend/internal/auth"
	"github.com/AIGun-Labs/aigun-backend/internal/config"
	"github.com/AIGun-Labs/aigun-backend/internal/enrich"
	"github.com/AIGun-Labs/aigun-backend/internal/gateway"
	"github.com/AIGun-Labs/aigun-backend/internal/ingest"
	"github.com/AIGun-Labs/aigun-backend/internal/logging"
	"github.com/AIGun-Labs/aigun-backend/internal/postgres"
	"github.com/AIGun-Labs/aigun-backend/internal/redis"
	"github.com/AIGun-Labs/aigun-backend/internal/server"
)

func setupConfig() *config.Config {
	cfg, err := config.Load()
	if err != nil {
		// Use log before slog is initialized
		log.Fatalf("Failed to load config: %v", err)
	}
	return cfg
}

func setupDB(cfg *config.Config) *pgxpool.Pool {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := postgres.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	return pool
}

func setupRedis(cfg *config.Config) *redis.Client {
	client, err := redis.NewClient(cfg.RedisURL)
	if err != nil {
		slog.Error("Failed to connect to Redis", "error", err)
		os.Exit(1)
	}
	return client
}

func setupChecker(cfg *config.Config) auth.Checker {
	if cfg.JWTPublicKeyFile == "" {
		slog.Warn("No JWT public key configured, all connections run as guests")
		return auth.GuestOnly{}
	}

	checker, err := auth.NewRS256CheckerFromFile(cfg.JWTPublicKeyFile)
	if err != nil {
		slog.Error("Failed to load JWT public key", "file", cfg.JWTPublicKeyFile, "error", err)
		os.Exit(1)
	}
	return checker
}

func runGracefulShutdown(srv *server.Server, room *gateway.Room, cancelIngest context.CancelFunc) <-chan struct{} {
	done := make(chan struct{})
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		slog.Info("Shutdown signal received, cleaning up...")

		cancelIngest()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("Server shutdown error", "error", err)
		}

		room.Stop()
		close(done)
	}()

	return done
}

func main() {
	clock := clockwork.NewRealClock()

	cfg := setupConfig()

	// Initialize structured logging
	logging.InitLogger(cfg.LogLevel, cfg.LogFormat)
	slog.Info("Application starting", "env", cfg.AppEnv, "port", cfg.Port)

	pool := setupDB(cfg)
	defer pool.Close()

	redisClient := setupRedis(cfg)
	defer func() { _ = redisClient.Close() }()

	// Repositories and enrichment caches
	subscriptionRepo := postgres.NewSubscriptionRepository(pool)
	authorRepo := postgres.NewAuthorRepository(pool)
	chainRepo := postgres.NewChainRepository(pool)
	agentRepo := postgres.NewAgentRepository(pool)
	followRepo := postgres.NewFollowRepository(pool)

	authorCache := redis.NewAuthorCache(redisClient, cfg.AuthorCacheTTL)
	agentCache := redis.NewAgentCache(redisClient, agentRepo, cfg.AgentCacheTTL)

	enricher := enrich.NewEnricher(authorRepo, chainRepo, agentCache, authorCache)

	// Gateway
	checker := setupChecker(cfg)
	registry := gateway.NewRegistry(subscriptionRepo)
	roomCfg := gateway.RoomConfig{
		WheelSize:         cfg.WheelSize,
		Tick:              cfg.WheelTick,
		InitialGraceTicks: cfg.InitialGraceTicks,
		HeartbeatTicks:    cfg.HeartbeatTicks,
	}
	room := gateway.NewRoom(roomCfg, registry, checker, followRepo, nil, clock)
	engine := gateway.NewEngine(registry)

	// Ingestion
	ingestCtx, cancelIngest := context.WithCancel(context.Background())
	defer cancelIngest()

	consumer := ingest.NewConsumer(cfg.AmqpURL, cfg.IntelligenceQueue)
	loop := ingest.NewLoop(enricher, engine)
	go consumer.Run(ingestCtx, loop.Handle)

	srv := server.NewServer(cfg, room, pool, redisClient)
	done := runGracefulShutdown(srv, room, cancelIngest)

	if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("Server error", "error", err)
		os.Exit(1)
	}

	<-done
}
