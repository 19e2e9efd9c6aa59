package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type HTTPConfig struct {
	Host           string
	Port           int
	AllowedOrigins []string
}

type DBConfig struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime string
}

type AuthConfig struct {
	AccessSecret string
	CookieName   string
}

type PaymentConfig struct {
	BaseURL   string
	KeyID     string
	KeySecret string
	Currency  string
	Timeout   time.Duration
}

type ContractsConfig struct {
	NumberPrefix   string
	NumberAttempts int
	PaymentWindow  time.Duration
}

type SweeperConfig struct {
	Enabled  bool
	Schedule string
	MaxAge   time.Duration
	LockTTL  time.Duration
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type Config struct {
	Environment string
	HTTP        HTTPConfig
	DB          DBConfig
	Auth        AuthConfig
	Payment     PaymentConfig
	Contracts   ContractsConfig
	Sweeper     SweeperConfig
	Redis       RedisConfig
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("app")
	v.SetConfigType("env")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("./deploy")
	v.AddConfigPath("./internal/config")
	v.AutomaticEnv()

	v.SetDefault("SWEEPER_ENABLED", true)

	_ = v.ReadInConfig()

	cfg := &Config{
		Environment: v.GetString("APP_ENV"),
		HTTP: HTTPConfig{
			Host:           v.GetString("HTTP_HOST"),
			Port:           v.GetInt("HTTP_PORT"),
			AllowedOrigins: parseList(v.GetString("CORS_ALLOWED_ORIGINS")),
		},
		DB: DBConfig{
			DSN:             v.GetString("DB_DSN"),
			MaxOpenConns:    v.GetInt("DB_MAX_OPEN_CONNS"),
			MaxIdleConns:    v.GetInt("DB_MAX_IDLE_CONNS"),
			ConnMaxLifetime: v.GetString("DB_CONN_MAX_LIFETIME"),
		},
		Auth: AuthConfig{
			AccessSecret: v.GetString("JWT_ACCESS_SECRET"),
			CookieName:   v.GetString("AUTH_COOKIE_NAME"),
		},
		Payment: PaymentConfig{
			BaseURL:   v.GetString("PAYMENT_BASE_URL"),
			KeyID:     v.GetString("PAYMENT_KEY_ID"),
			KeySecret: v.GetString("PAYMENT_KEY_SECRET"),
			Currency:  v.GetString("PAYMENT_CURRENCY"),
			Timeout:   v.GetDuration("PAYMENT_TIMEOUT"),
		},
		Contracts: ContractsConfig{
			NumberPrefix:   v.GetString("CONTRACTS_NUMBER_PREFIX"),
			NumberAttempts: v.GetInt("CONTRACTS_NUMBER_ATTEMPTS"),
			PaymentWindow:  v.GetDuration("CONTRACTS_PAYMENT_WINDOW"),
		},
		Sweeper: SweeperConfig{
			Enabled:  v.GetBool("SWEEPER_ENABLED"),
			Schedule: v.GetString("SWEEPER_SCHEDULE"),
			MaxAge:   v.GetDuration("SWEEPER_MAX_AGE"),
			LockTTL:  v.GetDuration("SWEEPER_LOCK_TTL"),
		},
		Redis: RedisConfig{
			Addr:     v.GetString("REDIS_ADDR"),
			Password: v.GetString("REDIS_PASSWORD"),
			DB:       v.GetInt("REDIS_DB"),
		},
	}

	applyDefaults(cfg)

	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Environment == "" {
		cfg.Environment = "development"
	}
	if cfg.HTTP.Host == "" {
		cfg.HTTP.Host = "0.0.0.0"
	}
	if cfg.HTTP.Port == 0 {
		cfg.HTTP.Port = 10000
	}
	if len(cfg.HTTP.AllowedOrigins) == 0 {
		cfg.HTTP.AllowedOrigins = []string{"http://localhost:5173", "http://localhost:4173"}
	}
	if cfg.Auth.CookieName == "" {
		cfg.Auth.CookieName = "chattu-token"
	}
	if cfg.Payment.BaseURL == "" {
		cfg.Payment.BaseURL = "https://api.razorpay.com"
	}
	if cfg.Payment.Currency == "" {
		cfg.Payment.Currency = "INR"
	}
	if cfg.Payment.Timeout <= 0 {
		cfg.Payment.Timeout = 10 * time.Second
	}
	if cfg.Contracts.NumberPrefix == "" {
		cfg.Contracts.NumberPrefix = "AGR"
	}
	if cfg.Contracts.NumberAttempts <= 0 {
		cfg.Contracts.NumberAttempts = 5
	}
	if cfg.Contracts.PaymentWindow <= 0 {
		cfg.Contracts.PaymentWindow = 7 * 24 * time.Hour
	}
	if cfg.Sweeper.Schedule == "" {
		cfg.Sweeper.Schedule = "@midnight"
	}
	if cfg.Sweeper.MaxAge <= 0 {
		cfg.Sweeper.MaxAge = 7 * 24 * time.Hour
	}
	if cfg.Sweeper.LockTTL <= 0 {
		cfg.Sweeper.LockTTL = 10 * time.Minute
	}
}

func validate(cfg *Config) error {
	if cfg.DB.DSN == "" {
		return fmt.Errorf("DB_DSN is required")
	}
	if cfg.Auth.AccessSecret == "" {
		return fmt.Errorf("JWT_ACCESS_SECRET is required")
	}
	if cfg.Payment.KeySecret == "" {
		return fmt.Errorf("PAYMENT_KEY_SECRET is required")
	}
	return nil
}

func parseList(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	items := strings.Split(raw, ",")
	result := make([]string, 0, len(items))
	for _, item := range items {
		item = strings.TrimSpace(item)
		if item != "" {
			result = append(result, item)
		}
	}
	return result
}
