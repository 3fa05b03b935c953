package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"

	"github.com/yeremiapane/mealplan-app/cart"
	"github.com/yeremiapane/mealplan-app/models"
)

type Config struct {
	Port    string
	GinMode string

	DBDriver string
	DBDSN    string

	JWTSecret string

	MidtransServerKey string
	MidtransClientKey string
	MidtransEnv       string

	DeliveryRate  decimal.Decimal
	ServiceCity   string
	PostalPattern string
	Currency      string

	RedisAddr       string
	CartDir         string
	PaymentRecheck  time.Duration
	AllowedOrigin   string
	RateLimitPerSec float64
	RateLimitBurst  int
}

// Load reads .env when present, then the process environment.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Port:              getEnv("PORT", "8080"),
		GinMode:           getEnv("GIN_MODE", "debug"),
		DBDriver:          strings.ToLower(getEnv("DB_DRIVER", "sqlite")),
		DBDSN:             getEnv("DB_DSN", "mealplan.db"),
		JWTSecret:         os.Getenv("JWT_SECRET"),
		MidtransServerKey: os.Getenv("MIDTRANS_SERVER_KEY"),
		MidtransClientKey: os.Getenv("MIDTRANS_CLIENT_KEY"),
		MidtransEnv:       getEnv("MIDTRANS_ENV", "sandbox"),
		ServiceCity:       getEnv("SERVICE_CITY", "Bengaluru"),
		PostalPattern:     getEnv("SERVICE_POSTAL_PATTERN", `^560\d{3}$`),
		Currency:          getEnv("CURRENCY", "INR"),
		RedisAddr:         os.Getenv("REDIS_ADDR"),
		CartDir:           getEnv("CART_DIR", "."),
		AllowedOrigin:     getEnv("CORS_ALLOWED_ORIGIN", "*"),
	}

	rate, err := decimal.NewFromString(getEnv("DELIVERY_RATE_PER_MEAL", "10"))
	if err != nil {
		return nil, fmt.Errorf("DELIVERY_RATE_PER_MEAL: %w", err)
	}
	if rate.IsNegative() {
		return nil, fmt.Errorf("DELIVERY_RATE_PER_MEAL must not be negative, got %s", rate)
	}
	cfg.DeliveryRate = rate

	if cfg.PaymentRecheck, err = time.ParseDuration(getEnv("PAYMENT_RECHECK_INTERVAL", "5m")); err != nil {
		return nil, fmt.Errorf("PAYMENT_RECHECK_INTERVAL: %w", err)
	}

	if cfg.RateLimitPerSec, err = strconv.ParseFloat(getEnv("RATE_LIMIT_PER_SECOND", "10"), 64); err != nil {
		return nil, fmt.Errorf("RATE_LIMIT_PER_SECOND: %w", err)
	}
	if cfg.RateLimitBurst, err = strconv.Atoi(getEnv("RATE_LIMIT_BURST", "20")); err != nil {
		return nil, fmt.Errorf("RATE_LIMIT_BURST: %w", err)
	}

	switch cfg.DBDriver {
	case "sqlite", "mysql":
	default:
		return nil, fmt.Errorf("DB_DRIVER must be sqlite or mysql, got %q", cfg.DBDriver)
	}

	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is not set")
	}

	if _, err := cfg.ServiceArea(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) ServiceArea() (models.ServiceArea, error) {
	return models.NewServiceArea(c.ServiceCity, c.PostalPattern)
}

// CartPersistence picks where a client keeps its unfinished cart: Redis when
// REDIS_ADDR is set, a JSON file in CART_DIR otherwise.
func (c *Config) CartPersistence() cart.Persistence {
	if c.RedisAddr != "" {
		return cart.NewRedisPersistence(c.RedisAddr)
	}
	return cart.NewFilePersistence(c.CartDir)
}

func (c *Config) IsProduction() bool {
	return c.MidtransEnv == "production"
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}
