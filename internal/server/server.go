package server

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/AIGun-Labs/aigun-backend/internal/config"
	"github.com/AIGun-Labs/aigun-backend/internal/gateway"
	"github.com/AIGun-Labs/aigun-backend/internal/redis"
)

type Server struct {
	echo      *echo.Echo
	config    *config.Config
	room      *gateway.Room
	limits    *ConnectionLimits
	db        *pgxpool.Pool
	redis     *redis.Client
	startTime time.Time
}

func NewServer(cfg *config.Config, room *gateway.Room, db *pgxpool.Pool, redisClient *redis.Client) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Logger())
	e.Use(middleware.Recover())

	srv := &Server{
		echo:      e,
		config:    cfg,
		room:      room,
		limits:    NewConnectionLimits(cfg.MaxConnections, cfg.MaxConnectionsPerIP, cfg.HandshakesPerSecond, cfg.HandshakeBurst),
		db:        db,
		redis:     redisClient,
		startTime: time.Now(),
	}

	srv.registerRoutes()
	return srv
}

func (s *Server) Start() error {
	slog.Info("Starting server", "port", s.config.Port)
	return s.echo.Start(fmt.Sprintf(":%s", s.config.Port))
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}
