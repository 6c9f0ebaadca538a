package config

import (
	"context"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

type Config struct {
	Port               string            `mapstructure:"PORT" validate:"required"`
	InternalAuthHeader string            `mapstructure:"INTERNAL_AUTH_HEADER" validate:"required"`
	LogLevel           string            `mapstructure:"LOG_LEVEL" validate:"omitempty,oneof=debug info warn error"`
	Db                 DbConfig          `mapstructure:",squash"`
	Jwt                JwtConfig         `mapstructure:",squash"`
	Nats               NatsConfig        `mapstructure:",squash"`
	Redis              RedisConfig       `mapstructure:",squash"`
	Reservation        ReservationConfig `mapstructure:",squash"`
	Cart               CartConfig        `mapstructure:",squash"`
	Sweep              SweepConfig       `mapstructure:",squash"`
}

type DbConfig struct {
	Host     string `mapstructure:"DB_HOST" validate:"required"`
	Port     string `mapstructure:"DB_PORT" validate:"required"`
	Username string `mapstructure:"DB_USERNAME" validate:"required"`
	Password string `mapstructure:"DB_PASSWORD" validate:"required"`
	DbName   string `mapstructure:"DB_DBNAME" validate:"required"`
	SSLMode  string `mapstructure:"DB_SSLMODE"`
	Migrate  bool   `mapstructure:"DB_MIGRATE"`
}

type JwtConfig struct {
	SecretKey string `mapstructure:"JWT_SECRETKEY" validate:"required"`
}

type NatsConfig struct {
	Url        string `mapstructure:"NATS_URL" validate:"required"`
	StreamName string `mapstructure:"NATS_STREAMNAME" validate:"required"`
}

// RedisConfig is optional. Without an address the sweeper runs unlocked.
type RedisConfig struct {
	Addr     string `mapstructure:"REDIS_ADDR"`
	Password string `mapstructure:"REDIS_PASSWORD"`
	DB       int    `mapstructure:"REDIS_DB" validate:"gte=0"`
}

type ReservationConfig struct {
	ExpirationMinutes int `mapstructure:"RESERVATION_EXPIRATION_MINUTES" validate:"gt=0"`
}

type CartConfig struct {
	UserTTLHours      int `mapstructure:"CART_USER_TTL_HOURS" validate:"gt=0"`
	AnonymousTTLHours int `mapstructure:"CART_ANONYMOUS_TTL_HOURS" validate:"gt=0"`
}

func (c CartConfig) UserTTL() time.Duration {
	return time.Duration(c.UserTTLHours) * time.Hour
}

func (c CartConfig) AnonymousTTL() time.Duration {
	return time.Duration(c.AnonymousTTLHours) * time.Hour
}

type SweepConfig struct {
	IntervalSeconds int `mapstructure:"SWEEP_INTERVAL_SECONDS" validate:"gt=0"`
	LockTTLSeconds  int `mapstructure:"SWEEP_LOCK_TTL_SECONDS" validate:"gt=0"`
}

func (c SweepConfig) Interval() time.Duration {
	return time.Duration(c.IntervalSeconds) * time.Second
}

func (c SweepConfig) LockTTL() time.Duration {
	return time.Duration(c.LockTTLSeconds) * time.Second
}

var defaults = map[string]any{
	"LOG_LEVEL":                      "info",
	"DB_SSLMODE":                     "disable",
	"DB_MIGRATE":                     true,
	"NATS_STREAMNAME":                "STOCK",
	"REDIS_DB":                       0,
	"RESERVATION_EXPIRATION_MINUTES": 30,
	"CART_USER_TTL_HOURS":            168,
	"CART_ANONYMOUS_TTL_HOURS":       168,
	"SWEEP_INTERVAL_SECONDS":         300,
	"SWEEP_LOCK_TTL_SECONDS":         240,
}

func InitConfig(ctx context.Context) (*Config, error) {
	var cfg Config

	// Reset viper to avoid any previous configuration
	viper.Reset()

	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.SetConfigType("env")

	for key, value := range defaults {
		viper.SetDefault(key, value)
	}

	// Try to load from .env file if it exists
	envFile := os.Getenv("ENV_FILE")
	if envFile == "" {
		envFile = ".env"
	}

	_, err := os.Stat(envFile)
	if !os.IsNotExist(err) {
		viper.SetConfigFile(envFile)

		if err := viper.ReadInConfig(); err != nil {
			slog.WarnContext(ctx, "[InitConfig] ReadInConfig warning, continuing with env vars only", "error", err)
		} else {
			slog.InfoContext(ctx, "[InitConfig] Successfully loaded config file", "file", envFile)
		}
	} else {
		slog.InfoContext(ctx, "[InitConfig] No config file found, using environment variables")
	}

	viper.AutomaticEnv()

	envVars := []string{
		"PORT",
		"INTERNAL_AUTH_HEADER",
		"LOG_LEVEL",
		"DB_HOST",
		"DB_PORT",
		"DB_USERNAME",
		"DB_PASSWORD",
		"DB_DBNAME",
		"DB_SSLMODE",
		"DB_MIGRATE",
		"JWT_SECRETKEY",
		"NATS_URL",
		"NATS_STREAMNAME",
		"REDIS_ADDR",
		"REDIS_PASSWORD",
		"REDIS_DB",
		"RESERVATION_EXPIRATION_MINUTES",
		"CART_USER_TTL_HOURS",
		"CART_ANONYMOUS_TTL_HOURS",
		"SWEEP_INTERVAL_SECONDS",
		"SWEEP_LOCK_TTL_SECONDS",
	}

	// Bind environment variables explicitly to ensure they're mapped correctly
	for _, key := range envVars {
		if err := viper.BindEnv(key); err != nil {
			slog.ErrorContext(ctx, "[InitConfig] BindEnv", "key", key, "error", err)
			return nil, err
		}
	}

	if err := viper.Unmarshal(&cfg); err != nil {
		slog.ErrorContext(ctx, "[InitConfig] Unmarshal", "failed bind config", err)
		return nil, err
	}

	slog.InfoContext(ctx, "[InitConfig] Configuration after binding",
		"PORT", cfg.Port,
		"DB_HOST", cfg.Db.Host,
		"DB_PORT", cfg.Db.Port,
		"DB_USERNAME", cfg.Db.Username,
		"DB_DBNAME", cfg.Db.DbName,
		"DB_SSLMODE", cfg.Db.SSLMode,
		"NATS_URL", cfg.Nats.Url,
		"NATS_STREAMNAME", cfg.Nats.StreamName,
		"REDIS_ADDR", cfg.Redis.Addr,
		"RESERVATION_EXPIRATION_MINUTES", cfg.Reservation.ExpirationMinutes,
		"SWEEP_INTERVAL_SECONDS", cfg.Sweep.IntervalSeconds)

	validate := validator.New()
	if err := validate.Struct(cfg); err != nil {
		validationErrs, ok := err.(validator.ValidationErrors)
		if ok {
			for _, validationErr := range validationErrs {
				slog.ErrorContext(ctx, "[InitConfig] Validation error",
					"field", validationErr.Field(),
					"namespace", validationErr.Namespace(),
					"tag", validationErr.Tag(),
					"value", validationErr.Value())
			}
		} else {
			slog.ErrorContext(ctx, "[InitConfig] Validation", "error", err)
		}
		return nil, err
	}

	slog.InfoContext(ctx, "[InitConfig] Config loaded successfully")
	return &cfg, nil
}
