package config

import (
	"fmt"
	"time"

	libconfig "github.com/md-rashed-zaman/seqlog/libs/config"
)

type Config struct {
	ServiceName string
	Port        string
	GRPCPort    string
	LogLevel    string
	OTelLogs    bool

	DatabaseURL      string
	DBMigrate        bool
	DBMaxConns       int
	StatementTimeout time.Duration
	PageSize         int

	KafkaBrokers string
	RedisAddr    string

	// JWTSecret enables HS256 bearer auth on the API when set.
	JWTSecret string
	// RateLimit is requests per RateWindow and client; 0 disables it.
	RateLimit  int
	RateWindow time.Duration
	BodyLimit  int64

	SubscriptionsFile string
}

// FromEnv reads the service configuration. A .env file in the working
// directory is loaded first.
func FromEnv() (Config, error) {
	libconfig.LoadDotEnv()

	cfg := Config{
		ServiceName:       libconfig.String("SERVICE_NAME", "eventlog-service"),
		LogLevel:          libconfig.String("LOG_LEVEL", "info"),
		OTelLogs:          libconfig.Bool("OTEL_LOGS_ENABLED", false),
		DBMigrate:         libconfig.Bool("DB_MIGRATE", false),
		KafkaBrokers:      libconfig.String("KAFKA_BROKERS", ""),
		RedisAddr:         libconfig.String("REDIS_ADDR", ""),
		JWTSecret:         libconfig.String("JWT_SECRET", ""),
		SubscriptionsFile: libconfig.String("SUBSCRIPTIONS_FILE", ""),
	}

	var err error
	if cfg.Port, err = libconfig.Port("PORT", "8090"); err != nil {
		return Config{}, err
	}
	if cfg.GRPCPort, err = libconfig.Port("GRPC_PORT", "9090"); err != nil {
		return Config{}, err
	}
	if cfg.DatabaseURL, err = libconfig.RequiredString("DATABASE_URL"); err != nil {
		return Config{}, err
	}
	if cfg.DBMaxConns, err = libconfig.Int("DB_MAX_CONNS", 10); err != nil {
		return Config{}, err
	}
	if cfg.StatementTimeout, err = libconfig.Duration("DB_STATEMENT_TIMEOUT", 30*time.Second); err != nil {
		return Config{}, err
	}
	if cfg.PageSize, err = libconfig.Int("PROJECTION_PAGE_SIZE", 1000); err != nil {
		return Config{}, err
	}
	if cfg.RateLimit, err = libconfig.Int("RATE_LIMIT", 0); err != nil {
		return Config{}, err
	}
	if cfg.RateWindow, err = libconfig.Duration("RATE_WINDOW", time.Minute); err != nil {
		return Config{}, err
	}
	bodyLimit, err := libconfig.Int("BODY_LIMIT_BYTES", 1<<20)
	if err != nil {
		return Config{}, err
	}
	cfg.BodyLimit = int64(bodyLimit)

	if cfg.DBMaxConns <= 0 {
		return Config{}, fmt.Errorf("DB_MAX_CONNS must be positive (got %d)", cfg.DBMaxConns)
	}
	if cfg.RateLimit > 0 && cfg.RedisAddr == "" {
		return Config{}, fmt.Errorf("RATE_LIMIT requires REDIS_ADDR")
	}
	return cfg, nil
}
