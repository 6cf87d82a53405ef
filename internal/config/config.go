// Package config loads server settings from a .env file and the environment.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

var configLogger = slog.With("component", "config")

const (
	StorePostgres = "postgres"
	StoreGRPC     = "grpc"
	StoreMemory   = "memory"

	BusLocal = "local"
	BusRedis = "redis"
)

type Config struct {
	Addr     string
	GRPCAddr string

	Store           string
	DBConn          string
	ChatServiceAddr string

	Bus           string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisPrefix   string

	JWTSecret      string
	AllowedOrigins []string

	MaxMessageSize   int64
	MaxContentLength int
	SendBuffer       int
	HistoryLimit     int
	RateBurst        int
	RateInterval     time.Duration

	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration
}

func Default() Config {
	return Config{
		Addr:             ":8080",
		GRPCAddr:         ":9090",
		Store:            StorePostgres,
		ChatServiceAddr:  "localhost:9090",
		Bus:              BusLocal,
		RedisAddr:        "localhost:6379",
		RedisPrefix:      "seshat:group:",
		MaxMessageSize:   4096,
		MaxContentLength: 1000,
		SendBuffer:       256,
		HistoryLimit:     50,
		RateBurst:        10,
		RateInterval:     100 * time.Millisecond,
		LogLevel:         "info",
		LogFormat:        "text",
		ShutdownTimeout:  10 * time.Second,
	}
}

// Load reads files (".env" when none are given), then the environment.
// A missing .env file is not an error.
func Load(files ...string) Config {
	if err := godotenv.Load(files...); err != nil {
		configLogger.Warn("File .env not found, using system environment variables")
	}
	return FromEnv()
}

// FromEnv overlays SESHAT_* variables on the defaults. Unparsable values
// keep the default and are logged.
func FromEnv() Config {
	cfg := Default()

	cfg.Addr = envString("SESHAT_ADDR", cfg.Addr)
	cfg.GRPCAddr = envString("SESHAT_GRPC_ADDR", cfg.GRPCAddr)
	cfg.Store = strings.ToLower(envString("SESHAT_STORE", cfg.Store))
	cfg.DBConn = envString("SESHAT_DB_CONN", cfg.DBConn)
	cfg.ChatServiceAddr = envString("SESHAT_CHATSERVICE_ADDR", cfg.ChatServiceAddr)
	cfg.Bus = strings.ToLower(envString("SESHAT_BUS", cfg.Bus))
	cfg.RedisAddr = envString("SESHAT_REDIS_ADDR", cfg.RedisAddr)
	cfg.RedisPassword = envString("SESHAT_REDIS_PASSWORD", cfg.RedisPassword)
	cfg.RedisDB = envInt("SESHAT_REDIS_DB", cfg.RedisDB)
	cfg.RedisPrefix = envString("SESHAT_REDIS_PREFIX", cfg.RedisPrefix)
	cfg.JWTSecret = envString("SESHAT_JWT_SECRET", cfg.JWTSecret)
	if origins := os.Getenv("SESHAT_ALLOWED_ORIGINS"); origins != "" {
		cfg.AllowedOrigins = parseList(origins)
	}
	cfg.MaxMessageSize = int64(envInt("SESHAT_MAX_MESSAGE_SIZE", int(cfg.MaxMessageSize)))
	cfg.MaxContentLength = envInt("SESHAT_MAX_CONTENT_LENGTH", cfg.MaxContentLength)
	cfg.SendBuffer = envInt("SESHAT_SEND_BUFFER", cfg.SendBuffer)
	cfg.HistoryLimit = envInt("SESHAT_HISTORY_LIMIT", cfg.HistoryLimit)
	cfg.RateBurst = envInt("SESHAT_RATE_BURST", cfg.RateBurst)
	cfg.RateInterval = envDuration("SESHAT_RATE_INTERVAL", cfg.RateInterval)
	cfg.LogLevel = envString("SESHAT_LOG_LEVEL", cfg.LogLevel)
	cfg.LogFormat = envString("SESHAT_LOG_FORMAT", cfg.LogFormat)
	cfg.ShutdownTimeout = envDuration("SESHAT_SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout)

	return cfg
}

// Validate reports every problem at once.
func (c Config) Validate() error {
	var errs []error
	switch c.Store {
	case StorePostgres:
		if c.DBConn == "" {
			errs = append(errs, errors.New("SESHAT_DB_CONN is required for the postgres store"))
		}
	case StoreGRPC:
		if c.ChatServiceAddr == "" {
			errs = append(errs, errors.New("SESHAT_CHATSERVICE_ADDR is required for the grpc store"))
		}
	case StoreMemory:
	default:
		errs = append(errs, fmt.Errorf("unknown SESHAT_STORE %q", c.Store))
	}
	switch c.Bus {
	case BusLocal:
	case BusRedis:
		if c.RedisAddr == "" {
			errs = append(errs, errors.New("SESHAT_REDIS_ADDR is required for the redis bus"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown SESHAT_BUS %q", c.Bus))
	}
	if c.JWTSecret == "" {
		errs = append(errs, errors.New("SESHAT_JWT_SECRET is required"))
	}
	if c.MaxMessageSize <= 0 {
		errs = append(errs, errors.New("SESHAT_MAX_MESSAGE_SIZE must be positive"))
	}
	if c.MaxContentLength <= 0 {
		errs = append(errs, errors.New("SESHAT_MAX_CONTENT_LENGTH must be positive"))
	}
	if c.SendBuffer <= 0 {
		errs = append(errs, errors.New("SESHAT_SEND_BUFFER must be positive"))
	}
	return errors.Join(errs...)
}

func envString(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	return fallback
}

func envInt(key string, fallback int) int {
	raw := envString(key, "")
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		configLogger.Warn("Invalid integer, using default", "key", key, "value", raw, "default", fallback)
		return fallback
	}
	return v
}

func envDuration(key string, fallback time.Duration) time.Duration {
	raw := envString(key, "")
	if raw == "" {
		return fallback
	}
	v, err := time.ParseDuration(raw)
	if err != nil || v <= 0 {
		configLogger.Warn("Invalid duration, using default", "key", key, "value", raw, "default", fallback)
		return fallback
	}
	return v
}

func parseList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
