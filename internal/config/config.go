// Package config loads runtime settings from the environment.
// A .env file in the working directory is read first, if present.
package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds every setting the bot and the admin tooling read at startup.
type Config struct {
	Telegram struct {
		Token         string
		AdminID       int64
		Debug         bool
		UpdateTimeout int
	}

	Bot struct {
		Language      string
		SearchTimeout time.Duration
		SweepInterval time.Duration
		OutboxWorkers int
		OutboxBuffer  int
	}

	DB struct {
		Driver string
		DSN    string
	}

	Redis struct {
		Addr     string
		Password string
		DB       int
		StatsTTL time.Duration
	}

	HTTP struct {
		Addr              string
		AdminSecret       string
		StatsPushInterval time.Duration
	}

	Log struct {
		Mode  string
		Level string
	}
}

// Load reads the optional .env file and then builds a Config from the environment.
func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: no .env file loaded, using process environment")
	}
	return New()
}

// New builds a Config from the current process environment.
func New() *Config {
	cfg := &Config{}

	cfg.Telegram.Token = getEnvDefault("BOT_TOKEN", "")
	cfg.Telegram.AdminID = getInt64("ADMIN_ID", 0)
	cfg.Telegram.Debug = isTruthy(os.Getenv("BOT_DEBUG"))
	cfg.Telegram.UpdateTimeout = getInt("TELEGRAM_UPDATE_TIMEOUT", 60)

	cfg.Bot.Language = getEnvDefault("BOT_LANGUAGE", "id")
	cfg.Bot.SearchTimeout = getDuration("SEARCH_TIMEOUT", 0)
	cfg.Bot.SweepInterval = getDuration("SWEEP_INTERVAL", 30*time.Second)
	cfg.Bot.OutboxWorkers = getInt("OUTBOX_WORKERS", 4)
	cfg.Bot.OutboxBuffer = getInt("OUTBOX_BUFFER", 256)

	cfg.DB.Driver = strings.ToLower(getEnvDefault("DB_DRIVER", "sqlite"))
	cfg.DB.DSN = getEnvDefault("DB_DSN", "database.sqlite")

	cfg.Redis.Addr = getEnvDefault("REDIS_ADDR", "")
	cfg.Redis.Password = getEnvDefault("REDIS_PASSWORD", "")
	cfg.Redis.DB = getInt("REDIS_DB", 0)
	cfg.Redis.StatsTTL = getDuration("STATS_CACHE_TTL", 10*time.Second)

	cfg.HTTP.Addr = os.Getenv("HTTP_ADDR")
	if _, set := os.LookupEnv("HTTP_ADDR"); !set {
		cfg.HTTP.Addr = ":8080"
	}
	cfg.HTTP.AdminSecret = getEnvDefault("ADMIN_API_SECRET", "")
	cfg.HTTP.StatsPushInterval = getDuration("STATS_PUSH_INTERVAL", 5*time.Second)

	cfg.Log.Mode = getEnvDefault("LOG_MODE", "dev")
	cfg.Log.Level = getEnvDefault("LOG_LEVEL", "info")

	return cfg
}

// Validate checks the settings the bot process cannot run without.
func (c *Config) Validate() error {
	var errs []error
	if c.Telegram.Token == "" {
		errs = append(errs, errors.New("BOT_TOKEN is not set"))
	}
	if c.Telegram.AdminID == 0 {
		errs = append(errs, errors.New("ADMIN_ID is not set or not numeric"))
	}
	switch c.DB.Driver {
	case "sqlite", "postgres":
	default:
		errs = append(errs, fmt.Errorf("unsupported DB_DRIVER %q", c.DB.Driver))
	}
	if c.Bot.OutboxWorkers < 1 {
		errs = append(errs, errors.New("OUTBOX_WORKERS must be at least 1"))
	}
	return errors.Join(errs...)
}

func getEnvDefault(k, def string) string {
	if v := strings.TrimSpace(os.Getenv(k)); v != "" {
		return v
	}
	return def
}

func getInt(k string, def int) int {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return i
}

func getInt64(k string, def int64) int64 {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return def
	}
	i, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return def
	}
	return i
}

// getDuration accepts Go durations ("90s") or a bare number of seconds.
func getDuration(k string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return def
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second
	}
	return def
}

func isTruthy(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "y", "on":
		return true
	}
	return false
}
