package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"etkash_go_backend/internal/database"

	"github.com/spf13/viper"
)

const (
	ChatStoreMemory = "memory"
	ChatStoreRedis  = "redis"
	ChatStoreDB     = "db"
)

type Config struct {
	Port           string
	AllowedOrigins []string
	// TrustedProxies lists the proxies whose X-Forwarded-For is honored when
	// resolving the client IP. Empty trusts none.
	TrustedProxies []string
	LogLevel       string

	Database database.Config

	SecretKey                string
	JWTTTL                   time.Duration
	DefaultMonthlyTokenLimit int64
	SignInRatePerSecond      float64
	SignInBurst              int
	WebSocketPingInterval    time.Duration

	ChatStore           string
	ChatSessionTTL      time.Duration
	ChatCleanupInterval time.Duration
	ChatMaxEntries      int

	RedisAddr     string
	RedisPassword string
	RedisDB       int
}

// env var for every key; nested keys use "." in config.yaml.
var envBindings = map[string]string{
	"port":                        "PORT",
	"allowed_origins":             "ALLOWED_ORIGINS",
	"trusted_proxies":             "TRUSTED_PROXIES",
	"log_level":                   "LOG_LEVEL",
	"db.driver":                   "DB_DRIVER",
	"db.host":                     "DB_HOST",
	"db.name":                     "DB_NAME",
	"db.user":                     "DB_USER",
	"db.password":                 "DB_PASSWORD",
	"db.port":                     "DB_PORT",
	"db.sslmode":                  "DB_SSLMODE",
	"db.dsn":                      "DB_DSN",
	"secret_key":                  "SECRET_KEY",
	"jwt_ttl":                     "JWT_TTL",
	"default_monthly_token_limit": "DEFAULT_MONTHLY_TOKEN_LIMIT",
	"signin.rate":                 "SIGNIN_RATE",
	"signin.burst":                "SIGNIN_BURST",
	"ws.ping_interval":            "WS_PING_INTERVAL",
	"chat.store":                  "CHAT_STORE",
	"chat.session_ttl":            "CHAT_SESSION_TTL",
	"chat.cleanup_interval":       "CHAT_CLEANUP_INTERVAL",
	"chat.max_entries":            "CHAT_MAX_ENTRIES",
	"redis.addr":                  "REDIS_ADDR",
	"redis.password":              "REDIS_PASSWORD",
	"redis.db":                    "REDIS_DB",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("port", "3000")
	v.SetDefault("allowed_origins", "http://localhost:5173")
	v.SetDefault("log_level", "info")
	v.SetDefault("db.driver", database.DriverPostgres)
	v.SetDefault("db.port", "5432")
	v.SetDefault("db.sslmode", "disable")
	v.SetDefault("jwt_ttl", "60m")
	v.SetDefault("default_monthly_token_limit", 1000)
	v.SetDefault("signin.rate", 1.0)
	v.SetDefault("signin.burst", 5)
	v.SetDefault("ws.ping_interval", "30s")
	v.SetDefault("chat.store", ChatStoreMemory)
	v.SetDefault("chat.session_ttl", "30m")
	v.SetDefault("chat.cleanup_interval", "5m")
	v.SetDefault("chat.max_entries", 200)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.db", 0)
}

// Load reads config.yaml (if any, from configPaths or the working directory)
// and the environment, which takes precedence.
func Load(configPaths ...string) (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	if len(configPaths) == 0 {
		configPaths = []string{".", "./config"}
	}
	for _, path := range configPaths {
		v.AddConfigPath(path)
	}

	setDefaults(v)
	for key, env := range envBindings {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("failed to bind %s: %w", env, err)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	cfg := &Config{
		Port:           v.GetString("port"),
		AllowedOrigins: splitList(v.GetString("allowed_origins")),
		TrustedProxies: splitList(v.GetString("trusted_proxies")),
		LogLevel:       v.GetString("log_level"),
		Database: database.Config{
			Driver:   v.GetString("db.driver"),
			Host:     v.GetString("db.host"),
			Name:     v.GetString("db.name"),
			User:     v.GetString("db.user"),
			Password: v.GetString("db.password"),
			Port:     v.GetString("db.port"),
			SSLMode:  v.GetString("db.sslmode"),
			DSN:      v.GetString("db.dsn"),
		},
		SecretKey:                v.GetString("secret_key"),
		JWTTTL:                   v.GetDuration("jwt_ttl"),
		DefaultMonthlyTokenLimit: v.GetInt64("default_monthly_token_limit"),
		SignInRatePerSecond:      v.GetFloat64("signin.rate"),
		SignInBurst:              v.GetInt("signin.burst"),
		WebSocketPingInterval:    v.GetDuration("ws.ping_interval"),
		ChatStore:                strings.ToLower(v.GetString("chat.store")),
		ChatSessionTTL:           v.GetDuration("chat.session_ttl"),
		ChatCleanupInterval:      v.GetDuration("chat.cleanup_interval"),
		ChatMaxEntries:           v.GetInt("chat.max_entries"),
		RedisAddr:                v.GetString("redis.addr"),
		RedisPassword:            v.GetString("redis.password"),
		RedisDB:                  v.GetInt("redis.db"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.SecretKey == "" {
		return errors.New("SECRET_KEY must be set")
	}
	if len(c.AllowedOrigins) == 0 {
		return errors.New("ALLOWED_ORIGINS must list at least one origin")
	}
	if c.JWTTTL <= 0 {
		return errors.New("JWT_TTL must be a positive duration")
	}
	if c.DefaultMonthlyTokenLimit <= 0 {
		return errors.New("DEFAULT_MONTHLY_TOKEN_LIMIT must be positive")
	}
	switch c.Database.Driver {
	case database.DriverPostgres, database.DriverSQLite:
	default:
		return fmt.Errorf("unsupported DB_DRIVER %q", c.Database.Driver)
	}
	switch c.ChatStore {
	case ChatStoreMemory, ChatStoreRedis, ChatStoreDB:
	default:
		return fmt.Errorf("unsupported CHAT_STORE %q", c.ChatStore)
	}
	if c.WebSocketPingInterval <= 0 {
		return errors.New("WS_PING_INTERVAL must be a positive duration")
	}
	if c.ChatStore != ChatStoreRedis && c.ChatCleanupInterval <= 0 {
		return errors.New("CHAT_CLEANUP_INTERVAL must be a positive duration")
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
