/**
 * @description
 * This package handles the configuration management for the service. It uses the
 * Viper library to read configuration from environment variables, providing a
 * centralized and straightforward way to manage application settings.
 *
 * @dependencies
 * - github.com/spf13/viper: A popular library for Go application configuration.
 */

package config

import (
	"log"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/viper"
)

// Config holds all the configuration variables for the wallet-service.
// These values are loaded from environment variables. Monetary limits are
// expressed in whole currency units and converted to paise after loading.
type Config struct {
	ServerPort                string  `mapstructure:"SERVER_PORT"`
	DatabaseURL               string  `mapstructure:"DATABASE_URL"`
	RedisURL                  string  `mapstructure:"REDIS_URL"`
	RedisRateLimitPrefix      string  `mapstructure:"REDIS_RATE_LIMIT_PREFIX"`
	RabbitMQURL               string  `mapstructure:"RABBITMQ_URL"`
	JWTSecret                 string  `mapstructure:"JWT_SECRET"`
	MaxTransferAmount         float64 `mapstructure:"MAX_TRANSFER_AMOUNT"`
	DailyTransferLimit        float64 `mapstructure:"DAILY_TRANSFER_LIMIT"`
	MaxPinAttempts            int     `mapstructure:"MAX_PIN_ATTEMPTS"`
	PinLockoutMinutes         int     `mapstructure:"PIN_LOCKOUT_MINUTES"`
	LargeAmountFactor         float64 `mapstructure:"LARGE_AMOUNT_FACTOR"`
	AdvisoryWindowDays        int     `mapstructure:"ADVISORY_WINDOW_DAYS"`
	ConfirmRateLimitPerMinute int     `mapstructure:"CONFIRM_RATE_LIMIT_PER_MINUTE"`
	IdempotencyRetentionDays  int     `mapstructure:"IDEMPOTENCY_RETENTION_DAYS"`
}

// MaxTransferAmountPaise returns the per-transaction ceiling in minor units.
func (c Config) MaxTransferAmountPaise() int64 {
	return int64(math.Round(c.MaxTransferAmount * 100))
}

// DailyTransferLimitPaise returns the daily aggregate limit in minor units.
func (c Config) DailyTransferLimitPaise() int64 {
	return int64(math.Round(c.DailyTransferLimit * 100))
}

// LoadConfig reads configuration from environment variables from the given path.
// It uses Viper to automatically bind environment variables to the Config struct.
func LoadConfig(path string) (config Config, err error) {
	// Tell viper the path to look for the optional .env file.
	viper.AddConfigPath(path)
	viper.SetConfigName(".env")
	viper.SetConfigType("env")

	// Enable automatic binding of environment variables.
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Set default values
	viper.SetDefault("SERVER_PORT", "8080")
	viper.SetDefault("REDIS_RATE_LIMIT_PREFIX", "payhive:rate_limit")
	viper.SetDefault("MAX_TRANSFER_AMOUNT", 100000.0)
	viper.SetDefault("DAILY_TRANSFER_LIMIT", 100000.0)
	viper.SetDefault("MAX_PIN_ATTEMPTS", 3)
	viper.SetDefault("PIN_LOCKOUT_MINUTES", 15)
	viper.SetDefault("LARGE_AMOUNT_FACTOR", 2.0)
	viper.SetDefault("ADVISORY_WINDOW_DAYS", 30)
	viper.SetDefault("CONFIRM_RATE_LIMIT_PER_MINUTE", 30)
	viper.SetDefault("IDEMPOTENCY_RETENTION_DAYS", 90)

	// Bind environment variables explicitly to ensure they appear in Unmarshal
	_ = viper.BindEnv("SERVER_PORT")
	_ = viper.BindEnv("PORT")
	_ = viper.BindEnv("DATABASE_URL")
	_ = viper.BindEnv("REDIS_URL", "REDIS_URL", "WALLET_REDIS_URL")
	_ = viper.BindEnv("REDIS_RATE_LIMIT_PREFIX")
	_ = viper.BindEnv("RABBITMQ_URL")
	_ = viper.BindEnv("JWT_SECRET")
	_ = viper.BindEnv("MAX_TRANSFER_AMOUNT")
	_ = viper.BindEnv("DAILY_TRANSFER_LIMIT")
	_ = viper.BindEnv("MAX_PIN_ATTEMPTS")
	_ = viper.BindEnv("PIN_LOCKOUT_MINUTES")
	_ = viper.BindEnv("LARGE_AMOUNT_FACTOR")
	_ = viper.BindEnv("ADVISORY_WINDOW_DAYS")
	_ = viper.BindEnv("CONFIRM_RATE_LIMIT_PER_MINUTE")
	_ = viper.BindEnv("IDEMPOTENCY_RETENTION_DAYS")

	// Attempt to read the config file. It's okay if it doesn't exist.
	if err = viper.ReadInConfig(); err != nil {
		// If the config file is not found, we can ignore the error.
		// For other errors, we should return them.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			log.Printf("level=warn component=config msg=\"failed to read config file; using environment values\" err=%v", err)
		}
	}

	// Unmarshal the configuration into the Config struct.
	err = viper.Unmarshal(&config)
	if err != nil {
		return
	}

	if port := strings.TrimSpace(os.Getenv("PORT")); port != "" {
		config.ServerPort = port
	}
	config.RedisURL = strings.TrimSpace(config.RedisURL)
	config.RedisRateLimitPrefix = strings.TrimSpace(config.RedisRateLimitPrefix)
	if config.RedisRateLimitPrefix == "" {
		config.RedisRateLimitPrefix = "payhive:rate_limit"
	}

	// Limits may also arrive as strings from orchestration tooling; parse
	// defensively rather than failing startup.
	if raw := strings.TrimSpace(viper.GetString("MAX_TRANSFER_AMOUNT")); raw != "" {
		if value, parseErr := strconv.ParseFloat(raw, 64); parseErr != nil {
			log.Printf("level=warn component=config msg=\"invalid MAX_TRANSFER_AMOUNT\" value=%q err=%v", raw, parseErr)
		} else {
			config.MaxTransferAmount = value
		}
	}
	if raw := strings.TrimSpace(viper.GetString("DAILY_TRANSFER_LIMIT")); raw != "" {
		if value, parseErr := strconv.ParseFloat(raw, 64); parseErr != nil {
			log.Printf("level=warn component=config msg=\"invalid DAILY_TRANSFER_LIMIT\" value=%q err=%v", raw, parseErr)
		} else {
			config.DailyTransferLimit = value
		}
	}

	if config.MaxTransferAmount <= 0 {
		log.Printf("level=warn component=config msg=\"non-positive max transfer amount configured; using default\" value=%f", config.MaxTransferAmount)
		config.MaxTransferAmount = 100000.0
	}
	if config.DailyTransferLimit <= 0 {
		log.Printf("level=warn component=config msg=\"non-positive daily transfer limit configured; using default\" value=%f", config.DailyTransferLimit)
		config.DailyTransferLimit = 100000.0
	}
	if config.MaxPinAttempts <= 0 {
		config.MaxPinAttempts = 3
	}
	if config.PinLockoutMinutes <= 0 {
		config.PinLockoutMinutes = 15
	}
	if config.LargeAmountFactor <= 0 {
		config.LargeAmountFactor = 2.0
	}
	if config.AdvisoryWindowDays <= 0 {
		config.AdvisoryWindowDays = 30
	}
	if config.ConfirmRateLimitPerMinute < 0 {
		config.ConfirmRateLimitPerMinute = 0
	}
	if config.IdempotencyRetentionDays <= 0 {
		config.IdempotencyRetentionDays = 90
	}

	return
}
