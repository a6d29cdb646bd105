package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	StockPolicyAtomic = "atomic"
	StockPolicyLegacy = "legacy"
)

type Config struct {
	AppEnv        string
	Port          string
	AllowedOrigin string
	DatabaseURL   string

	RedisAddr            string
	RedisPassword        string
	RedisDB              int
	StatsCacheTTLSeconds int

	AuthSecret            string
	AccessTokenTTLMinutes int
	SeedAdminPassword     string

	Timezone            string
	StoreName           string
	LowStockThreshold   int
	CheckoutStockPolicy string

	LogLevel  string
	LogFormat string

	S3Endpoint     string
	S3Region       string
	S3Bucket       string
	S3AccessKey    string
	S3SecretKey    string
	S3UsePathStyle bool
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("APP_ENV", "development")
	v.SetDefault("PORT", "8080")
	v.SetDefault("ALLOWED_ORIGIN", "http://127.0.0.1:3000")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("STATS_CACHE_TTL_SECONDS", 30)
	v.SetDefault("ACCESS_TOKEN_TTL_MINUTES", 480)
	v.SetDefault("TIMEZONE", "Local")
	v.SetDefault("STORE_NAME", "VendePOS")
	v.SetDefault("LOW_STOCK_THRESHOLD", 5)
	v.SetDefault("CHECKOUT_STOCK_POLICY", StockPolicyAtomic)
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "")
	v.SetDefault("S3_REGION", "us-east-1")
	v.SetDefault("S3_USE_PATH_STYLE", false)
}

// Load reads configuration from the environment. Secrets have no defaults.
func Load() Config {
	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()

	cfg := Config{
		AppEnv:        strings.ToLower(strings.TrimSpace(v.GetString("APP_ENV"))),
		Port:          v.GetString("PORT"),
		AllowedOrigin: v.GetString("ALLOWED_ORIGIN"),
		DatabaseURL:   strings.TrimSpace(v.GetString("DATABASE_URL")),

		RedisAddr:            strings.TrimSpace(v.GetString("REDIS_ADDR")),
		RedisPassword:        v.GetString("REDIS_PASSWORD"),
		RedisDB:              v.GetInt("REDIS_DB"),
		StatsCacheTTLSeconds: positiveOr(v.GetInt("STATS_CACHE_TTL_SECONDS"), 30),

		AuthSecret:            strings.TrimSpace(v.GetString("AUTH_SECRET")),
		AccessTokenTTLMinutes: positiveOr(v.GetInt("ACCESS_TOKEN_TTL_MINUTES"), 480),
		SeedAdminPassword:     v.GetString("SEED_ADMIN_PASSWORD"),

		Timezone:            strings.TrimSpace(v.GetString("TIMEZONE")),
		StoreName:           strings.TrimSpace(v.GetString("STORE_NAME")),
		LowStockThreshold:   positiveOr(v.GetInt("LOW_STOCK_THRESHOLD"), 5),
		CheckoutStockPolicy: strings.ToLower(strings.TrimSpace(v.GetString("CHECKOUT_STOCK_POLICY"))),

		LogLevel:  v.GetString("LOG_LEVEL"),
		LogFormat: v.GetString("LOG_FORMAT"),

		S3Endpoint:     strings.TrimSpace(v.GetString("S3_ENDPOINT")),
		S3Region:       v.GetString("S3_REGION"),
		S3Bucket:       strings.TrimSpace(v.GetString("S3_BUCKET")),
		S3AccessKey:    v.GetString("S3_ACCESS_KEY"),
		S3SecretKey:    v.GetString("S3_SECRET_KEY"),
		S3UsePathStyle: v.GetBool("S3_USE_PATH_STYLE"),
	}
	if cfg.CheckoutStockPolicy != StockPolicyLegacy {
		cfg.CheckoutStockPolicy = StockPolicyAtomic
	}
	return cfg
}

func (c Config) Address() string {
	return fmt.Sprintf(":%s", c.Port)
}

func (c Config) StatsCacheTTL() time.Duration {
	return time.Duration(c.StatsCacheTTLSeconds) * time.Second
}

func (c Config) AccessTokenTTL() time.Duration {
	return time.Duration(c.AccessTokenTTLMinutes) * time.Minute
}

// Location resolves TIMEZONE, falling back to the host zone.
func (c Config) Location() (*time.Location, error) {
	if c.Timezone == "" || strings.EqualFold(c.Timezone, "local") {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

func (c Config) IsProduction() bool {
	return c.AppEnv == "production"
}

func positiveOr(v int, fallback int) int {
	if v < 1 {
		return fallback
	}
	return v
}
