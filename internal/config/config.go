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

type Config struct {
	DBUser        string
	DBPassword    string
	DBName        string
	DBHost        string
	DBPort        string
	RedisHost     string
	RedisPort     string
	RedisPassword string

	HTTPAddr         string
	CORSOrigins      []string
	AdminAllowedIP   []string
	APIRatePerMinute int

	LedgerOwner    string
	LedgerTreasury string

	BotToken    string
	AdminChatID int64

	CapCheckInterval time.Duration
	CapWarnPercent   int
}

// LoadConfig reads envFiles (".env" when none are given) into the process
// environment and builds the configuration from it. Missing files are not an
// error.
func LoadConfig(log *slog.Logger, envFiles ...string) *Config {
	if err := godotenv.Load(envFiles...); err != nil {
		log.Info("config: no .env file found, using system environment variables")
	}

	return &Config{
		DBUser:        getEnv("DB_USER", "postgres"),
		DBPassword:    getEnv("DB_PASSWORD", "postgres"),
		DBName:        getEnv("DB_NAME", "yield_ledger"),
		DBHost:        getEnv("DB_HOST", "localhost"),
		DBPort:        getEnv("DB_PORT", "5432"),
		RedisHost:     getEnv("REDIS_HOST", "localhost"),
		RedisPort:     getEnv("REDIS_PORT", "6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),

		HTTPAddr:         getEnv("HTTP_ADDR", ":8080"),
		CORSOrigins:      getEnvList("CORS_ALLOWED_ORIGINS", []string{"http://localhost:3000"}),
		APIRatePerMinute: getEnvInt(log, "API_RATE_PER_MINUTE", 120),
		AdminAllowedIP: getEnvList("ADMIN_ALLOWED_CIDRS", []string{
			"127.0.0.0/8",
			"::1/128",
			"10.0.0.0/8",
			"172.16.0.0/12",
			"192.168.0.0/16",
		}),

		LedgerOwner:    getEnv("LEDGER_OWNER", ""),
		LedgerTreasury: getEnv("LEDGER_TREASURY", ""),

		BotToken:    getEnv("TELEGRAM_BOT_TOKEN", ""),
		AdminChatID: int64(getEnvInt(log, "TELEGRAM_ADMIN_CHAT_ID", 0)),

		CapCheckInterval: getEnvDuration(log, "CAP_CHECK_INTERVAL", time.Hour),
		CapWarnPercent:   getEnvInt(log, "CAP_WARN_PERCENT", 90),
	}
}

func (c *Config) Validate() error {
	if strings.TrimSpace(c.LedgerOwner) == "" {
		return errors.New("LEDGER_OWNER is required")
	}
	if c.HTTPAddr == "" {
		return errors.New("HTTP_ADDR is required")
	}
	if c.APIRatePerMinute <= 0 {
		return errors.New("API_RATE_PER_MINUTE must be greater than 0")
	}
	if c.CapCheckInterval <= 0 {
		return errors.New("CAP_CHECK_INTERVAL must be greater than 0")
	}
	if c.CapWarnPercent <= 0 || c.CapWarnPercent > 100 {
		return fmt.Errorf("CAP_WARN_PERCENT must be in (0, 100], got %d", c.CapWarnPercent)
	}
	if c.BotToken != "" && c.AdminChatID == 0 {
		return errors.New("TELEGRAM_ADMIN_CHAT_ID is required when TELEGRAM_BOT_TOKEN is set")
	}
	return nil
}

func (c *Config) PostgresDSN() string {
	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=disable TimeZone=UTC",
		c.DBHost, c.DBUser, c.DBPassword, c.DBName, c.DBPort)
}

func (c *Config) RedisAddr() string {
	return fmt.Sprintf("%s:%s", c.RedisHost, c.RedisPort)
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvInt(log *slog.Logger, key string, fallback int) int {
	value, exists := os.LookupEnv(key)
	if !exists || value == "" {
		return fallback
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		log.Warn("config: invalid integer, using default", "key", key, "value", value, "default", fallback)
		return fallback
	}
	return n
}

func getEnvDuration(log *slog.Logger, key string, fallback time.Duration) time.Duration {
	value, exists := os.LookupEnv(key)
	if !exists || value == "" {
		return fallback
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		log.Warn("config: invalid duration, using default", "key", key, "value", value, "default", fallback)
		return fallback
	}
	return d
}

// getEnvList splits a comma-separated value, dropping empty items.
func getEnvList(key string, fallback []string) []string {
	value, exists := os.LookupEnv(key)
	if !exists {
		return fallback
	}
	var out []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
