package config

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/joho/godotenv"
	"go-simpler.org/env"
)

type Config struct {
	AppEnv string `env:"APP_ENV" default:"development"`
	Port   string `env:"PORT" default:"8080"`

	DatabaseURL string `env:"DATABASE_URL"`
	RedisURL    string `env:"REDIS_URL"`

	AmqpURL           string `env:"AMQP_URL"`
	IntelligenceQueue string `env:"INTELLIGENCE_QUEUE" default:"intelligence_queue"`

	// PEM file holding the RS256 public key. Empty disables token
	// verification and every connection becomes a guest principal.
	JWTPublicKeyFile string `env:"JWT_PUBLIC_KEY_FILE"`

	LogLevel  string `env:"LOG_LEVEL" default:"info"`
	LogFormat string `env:"LOG_FORMAT" default:"text"`

	MaxConnections      int64   `env:"MAX_WEBSOCKET_CONNECTIONS" default:"10000"`
	MaxConnectionsPerIP int     `env:"MAX_CONNECTIONS_PER_IP" default:"100"`
	HandshakesPerSecond float64 `env:"HANDSHAKES_PER_SECOND" default:"10"`
	HandshakeBurst      int     `env:"HANDSHAKE_BURST" default:"20"`

	WheelSize         int           `env:"WHEEL_SIZE" default:"300"`
	WheelTick         time.Duration `env:"WHEEL_TICK" default:"1s"`
	InitialGraceTicks int           `env:"INITIAL_GRACE_TICKS" default:"60"`
	HeartbeatTicks    int           `env:"HEARTBEAT_TICKS" default:"120"`

	AuthorCacheTTL time.Duration `env:"AUTHOR_CACHE_TTL" default:"10m"`
	AgentCacheTTL  time.Duration `env:"AGENT_CACHE_TTL" default:"5m"`
}

func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	var cfg Config
	if err := env.Load(&cfg, nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func validate(cfg *Config) error {
	required := map[string]string{
		"DATABASE_URL": cfg.DatabaseURL,
		"REDIS_URL":    cfg.RedisURL,
		"AMQP_URL":     cfg.AmqpURL,
	}
	for name, value := range required {
		if value == "" {
			return fmt.Errorf("%s is required", name)
		}
	}

	if cfg.WheelSize < 2 {
		return fmt.Errorf("WHEEL_SIZE must be at least 2, got %d", cfg.WheelSize)
	}
	if cfg.WheelTick <= 0 {
		return fmt.Errorf("WHEEL_TICK must be positive, got %s", cfg.WheelTick)
	}
	if cfg.InitialGraceTicks <= 0 || cfg.InitialGraceTicks >= cfg.WheelSize {
		return fmt.Errorf("INITIAL_GRACE_TICKS must be in (0, WHEEL_SIZE), got %d", cfg.InitialGraceTicks)
	}
	if cfg.HeartbeatTicks <= 0 || cfg.HeartbeatTicks >= cfg.WheelSize {
		return fmt.Errorf("HEARTBEAT_TICKS must be in (0, WHEEL_SIZE), got %d", cfg.HeartbeatTicks)
	}

	return nil
}
