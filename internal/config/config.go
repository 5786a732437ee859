package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	HTTPPort    int
	Environment string

	DBConfig struct {
		Host     string
		Port     int
		User     string
		Password string
		Name     string
		SSLMode  string
	}
	MigrationsPath string

	RedisURL string

	KafkaBrokerURL      string
	KafkaAnalyticsTopic string

	Paystack struct {
		SecretKey  string
		SecretName string
		PublicKey  string
		BaseURL    string
		Timeout    time.Duration
	}

	SiteURL string

	Donation struct {
		MinAmount       float64
		MaxAmount       float64
		VerifyCacheTTL  time.Duration
		DefaultCurrency string
	}

	Campaign struct {
		ID         string
		Name       string
		Budget     float64
		Seed       float64
		USDToGHS   float64
		PresetsGHS []float64
	}

	SMTP struct {
		Host     string
		Port     int
		Username string
		Password string
		From     string
		FromName string
	}

	OutboxPollInterval time.Duration
	OutboxPollTimeout  time.Duration
	OutboxBatchSize    int
	OutboxMaxAttempts  int
	OutboxRetryBase    time.Duration

	InboxRetention     time.Duration
	InboxPurgeInterval time.Duration

	AdminJWTSecret     string
	RateLimitPerMinute int
	RateLimitBurst     int
	CORSAllowedOrigins []string
}

// LoadConfig reads configuration from the environment, after loading an
// optional .env file from the working directory.
func LoadConfig() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}

	cfg.HTTPPort = getEnvAsInt("HTTP_PORT", 8080)
	cfg.Environment = getEnvOrDefault("ENVIRONMENT", "development")

	cfg.DBConfig.Host = getEnvOrDefault("DONATIONS_DB_HOST", "localhost")
	cfg.DBConfig.Port = getEnvAsInt("DONATIONS_DB_PORT", 5432)
	cfg.DBConfig.User = getEnvOrDefault("DONATIONS_DB_USER", "user")
	cfg.DBConfig.Password = getEnvOrDefault("DONATIONS_DB_PASSWORD", "password")
	cfg.DBConfig.Name = getEnvOrDefault("DONATIONS_DB_NAME", "donations_db")
	cfg.DBConfig.SSLMode = getEnvOrDefault("DONATIONS_DB_SSLMODE", "disable")
	cfg.MigrationsPath = getEnvOrDefault("MIGRATIONS_PATH", "file://migrations")

	cfg.RedisURL = getEnvOrDefault("REDIS_URL", "")

	cfg.KafkaBrokerURL = getEnvOrDefault("KAFKA_BROKER_URL", "")
	cfg.KafkaAnalyticsTopic = getEnvOrDefault("KAFKA_ANALYTICS_TOPIC", "donation_events")

	cfg.Paystack.SecretKey = getEnvOrDefault("PAYSTACK_SECRET_KEY", "")
	cfg.Paystack.SecretName = getEnvOrDefault("PAYSTACK_SECRET_NAME", "")
	cfg.Paystack.PublicKey = getEnvOrDefault("PAYSTACK_PUBLIC_KEY", "")
	cfg.Paystack.BaseURL = getEnvOrDefault("PAYSTACK_BASE_URL", "https://api.paystack.co")
	cfg.Paystack.Timeout = getEnvAsDuration("PAYSTACK_TIMEOUT", 10*time.Second)

	cfg.SiteURL = strings.TrimRight(getEnvOrDefault("SITE_URL", getEnvOrDefault("APP_BASE_URL", "https://kendoghana.com")), "/")

	cfg.Donation.MinAmount = getEnvAsFloat("DONATION_MIN_AMOUNT", 1)
	cfg.Donation.MaxAmount = getEnvAsFloat("DONATION_MAX_AMOUNT", 1000000)
	cfg.Donation.VerifyCacheTTL = getEnvAsDuration("VERIFY_CACHE_TTL", 24*time.Hour)
	cfg.Donation.DefaultCurrency = getEnvOrDefault("DONATION_DEFAULT_CURRENCY", "GHS")

	cfg.Campaign.ID = getEnvOrDefault("CAMPAIGN_ID", "tunis-open-2026")
	cfg.Campaign.Name = getEnvOrDefault("CAMPAIGN_NAME", "2nd Tunis International Open Championships")
	cfg.Campaign.Budget = getEnvAsFloat("CAMPAIGN_BUDGET_GHS", 192500)
	cfg.Campaign.Seed = getEnvAsFloat("CAMPAIGN_SEED_GHS", 1101.98)
	cfg.Campaign.USDToGHS = getEnvAsFloat("CAMPAIGN_USD_TO_GHS_RATE", 11)
	cfg.Campaign.PresetsGHS = getEnvAsFloatSlice("CAMPAIGN_PRESET_AMOUNTS", []float64{550, 1100, 2750, 5500, 11000})

	cfg.SMTP.Host = getEnvOrDefault("SMTP_HOST", "")
	cfg.SMTP.Port = getEnvAsInt("SMTP_PORT", 587)
	cfg.SMTP.Username = getEnvOrDefault("SMTP_USER", "")
	cfg.SMTP.Password = getEnvOrDefault("SMTP_PASSWORD", "")
	cfg.SMTP.From = getEnvOrDefault("SMTP_FROM", "donations@kendoghana.com")
	cfg.SMTP.FromName = getEnvOrDefault("SMTP_FROM_NAME", "Ghana Kendo Federation")

	cfg.OutboxPollInterval = getEnvAsDuration("OUTBOX_POLL_INTERVAL", 1*time.Second)
	cfg.OutboxPollTimeout = getEnvAsDuration("OUTBOX_POLL_TIMEOUT", 30*time.Second)
	cfg.OutboxBatchSize = getEnvAsInt("OUTBOX_BATCH_SIZE", 10)
	cfg.OutboxMaxAttempts = getEnvAsInt("OUTBOX_MAX_ATTEMPTS", 8)
	cfg.OutboxRetryBase = getEnvAsDuration("OUTBOX_RETRY_BASE", 30*time.Second)

	cfg.InboxRetention = getEnvAsDuration("INBOX_RETENTION", 7*24*time.Hour)
	cfg.InboxPurgeInterval = getEnvAsDuration("INBOX_PURGE_INTERVAL", 1*time.Hour)

	cfg.AdminJWTSecret = getEnvOrDefault("ADMIN_JWT_SECRET", "")
	cfg.RateLimitPerMinute = getEnvAsInt("RATE_LIMIT_PER_MINUTE", 30)
	cfg.RateLimitBurst = getEnvAsInt("RATE_LIMIT_BURST", 10)
	cfg.CORSAllowedOrigins = getEnvAsSlice("CORS_ALLOWED_ORIGINS", []string{cfg.SiteURL})

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Donation.MinAmount <= 0 || c.Donation.MaxAmount < c.Donation.MinAmount {
		return fmt.Errorf("invalid donation bounds: min=%v max=%v", c.Donation.MinAmount, c.Donation.MaxAmount)
	}
	if c.Campaign.USDToGHS <= 0 {
		return fmt.Errorf("CAMPAIGN_USD_TO_GHS_RATE must be positive, got %v", c.Campaign.USDToGHS)
	}
	if c.Campaign.Budget <= 0 {
		return fmt.Errorf("CAMPAIGN_BUDGET_GHS must be positive, got %v", c.Campaign.Budget)
	}
	if c.OutboxMaxAttempts < 1 {
		return fmt.Errorf("OUTBOX_MAX_ATTEMPTS must be at least 1, got %d", c.OutboxMaxAttempts)
	}
	return nil
}

func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Environment, "production")
}

func (c *Config) GetDBConnectionString() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.DBConfig.Host, c.DBConfig.Port, c.DBConfig.User, c.DBConfig.Password, c.DBConfig.Name, c.DBConfig.SSLMode)
}

func (c *Config) GetDBMigrationConnectionString() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.DBConfig.User, c.DBConfig.Password, c.DBConfig.Host, c.DBConfig.Port, c.DBConfig.Name, c.DBConfig.SSLMode)
}

// GetKafkaBrokers returns nil when no broker is configured.
func (c *Config) GetKafkaBrokers() []string {
	if strings.TrimSpace(c.KafkaBrokerURL) == "" {
		return nil
	}
	return getEnvAsSliceValue(c.KafkaBrokerURL)
}

func (c *Config) SMTPEnabled() bool {
	return c.SMTP.Host != ""
}

func getEnvOrDefault(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnvOrDefault(key, strconv.Itoa(defaultValue))
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnvOrDefault(key, "")
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnvOrDefault(key, defaultValue.String())
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsSlice(key string, defaultValue []string) []string {
	valueStr, exists := os.LookupEnv(key)
	if !exists || strings.TrimSpace(valueStr) == "" {
		return defaultValue
	}
	return getEnvAsSliceValue(valueStr)
}

func getEnvAsSliceValue(valueStr string) []string {
	var out []string
	for _, part := range strings.Split(valueStr, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func getEnvAsFloatSlice(key string, defaultValue []float64) []float64 {
	parts := getEnvAsSlice(key, nil)
	if len(parts) == 0 {
		return defaultValue
	}
	out := make([]float64, 0, len(parts))
	for _, p := range parts {
		v, err := strconv.ParseFloat(p, 64)
		if err != nil {
			return defaultValue
		}
		out = append(out, v)
	}
	return out
}
