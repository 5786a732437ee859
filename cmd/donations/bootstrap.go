package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"donations/internal/app/campaigns"
	"donations/internal/app/donations"
	"donations/internal/config"
	"donations/internal/domain"
	"donations/internal/infrastructure/cache"
	"donations/internal/infrastructure/database"
	"donations/internal/infrastructure/paystack"
	"donations/internal/infrastructure/secrets"
	campaign_postgres "donations/internal/repository/campaign_repo/postgres"
	donations_postgres "donations/internal/repository/donations_repo/postgres"
	inbox_postgres "donations/internal/repository/inbox_repo/postgres"
	outbox_postgres "donations/internal/repository/outbox_repo/postgres"
)

func newLogger() (*zap.Logger, error) {
	zapConfig := zap.NewProductionConfig()
	zapConfig.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	zapConfig.EncoderConfig.TimeKey = "timestamp"
	return zapConfig.Build()
}

func loadConfigAndLogger() (*config.Config, *zap.Logger, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, nil, fmt.Errorf("error loading configuration: %w", err)
	}
	logger, err := newLogger()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create zap logger: %w", err)
	}
	return cfg, logger, nil
}

func dbConfig(cfg *config.Config) database.DBConfig {
	return database.DBConfig{
		Host:     cfg.DBConfig.Host,
		Port:     cfg.DBConfig.Port,
		User:     cfg.DBConfig.User,
		Password: cfg.DBConfig.Password,
		DBName:   cfg.DBConfig.Name,
		SSLMode:  cfg.DBConfig.SSLMode,
	}
}

// connectDB retries until the database accepts connections or attempts run out.
func connectDB(ctx context.Context, cfg *config.Config, logger *zap.Logger, maxRetries int) (*sql.DB, error) {
	retryDelay := 5 * time.Second
	var lastErr error

	for i := 0; i < maxRetries; i++ {
		db, err := database.NewPostgresDB(dbConfig(cfg))
		if err == nil {
			logger.Info("Successfully connected to PostgreSQL database")
			return db, nil
		}
		lastErr = err
		logger.Warn("Failed to connect to database, retrying",
			zap.Int("attempt", i+1),
			zap.Int("max_attempts", maxRetries),
			zap.Duration("retry_in", retryDelay),
			zap.Error(err),
		)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(retryDelay):
		}
	}
	return nil, fmt.Errorf("could not connect to database after %d attempts: %w", maxRetries, lastErr)
}

func runMigrations(cfg *config.Config, logger *zap.Logger, down bool) error {
	m, err := migrate.New(cfg.MigrationsPath, cfg.GetDBMigrationConnectionString())
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}
	defer m.Close()

	if down {
		err = m.Steps(-1)
	} else {
		err = m.Up()
	}
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run database migrations: %w", err)
	}

	version, dirty, verr := m.Version()
	if verr != nil && !errors.Is(verr, migrate.ErrNilVersion) {
		return fmt.Errorf("failed to read migration version: %w", verr)
	}
	logger.Info("Database migrations completed", zap.Uint("version", version), zap.Bool("dirty", dirty))
	return nil
}

// resolvePaystackKey prefers PAYSTACK_SECRET_KEY and falls back to AWS Secrets
// Manager when only PAYSTACK_SECRET_NAME is set.
func resolvePaystackKey(ctx context.Context, cfg *config.Config, logger *zap.Logger) (string, error) {
	var provider secrets.Provider
	if cfg.Paystack.SecretKey == "" && cfg.Paystack.SecretName != "" {
		awsProvider, err := secrets.NewAWSProvider(ctx)
		if err != nil {
			return "", err
		}
		provider = awsProvider
		logger.Info("Loading Paystack secret key from AWS Secrets Manager", zap.String("secret_name", cfg.Paystack.SecretName))
	}

	key, err := secrets.Resolve(ctx, provider, cfg.Paystack.SecretName, cfg.Paystack.SecretKey)
	if err != nil {
		return "", err
	}
	if key == "" {
		logger.Warn("Paystack secret key is not configured; payment endpoints will report a configuration error")
	}
	return key, nil
}

func newVerificationCache(ctx context.Context, cfg *config.Config, logger *zap.Logger) (cache.VerificationCache, func(), error) {
	if cfg.RedisURL == "" {
		logger.Info("REDIS_URL not set, using in-process verification cache")
		return cache.NewMemoryCache(), func() {}, nil
	}
	redisCache, err := cache.NewRedisCache(ctx, cfg.RedisURL)
	if err != nil {
		return nil, nil, err
	}
	logger.Info("Using Redis verification cache")
	return redisCache, func() {
		if err := redisCache.Close(); err != nil {
			logger.Error("Error closing Redis client", zap.Error(err))
		}
	}, nil
}

type services struct {
	donations donations.DonationService
	campaigns campaigns.CampaignService
}

func campaignSettings(cfg *config.Config) campaigns.Settings {
	return campaigns.Settings{
		ID:          cfg.Campaign.ID,
		Name:        cfg.Campaign.Name,
		BudgetMinor: domain.ToMinorUnits(cfg.Campaign.Budget),
		SeedMinor:   domain.ToMinorUnits(cfg.Campaign.Seed),
		USDToGHS:    cfg.Campaign.USDToGHS,
		PresetsGHS:  cfg.Campaign.PresetsGHS,
	}
}

func buildServices(db *sql.DB, cfg *config.Config, secretKey string, verifyCache cache.VerificationCache, logger *zap.Logger) services {
	campaignService := campaigns.NewCampaignService(
		db,
		campaign_postgres.NewCampaignRepository(),
		campaignSettings(cfg),
		logger.With(zap.String("component", "CampaignService")),
	)

	gateway := paystack.NewClient(
		cfg.Paystack.BaseURL,
		secretKey,
		cfg.Paystack.Timeout,
		logger.With(zap.String("component", "PaystackClient")),
	)

	donationService := donations.NewDonationService(
		db,
		gateway,
		donations_postgres.NewDonationRepository(),
		inbox_postgres.NewInboxRepository(),
		outbox_postgres.NewOutboxRepository(),
		campaignService,
		verifyCache,
		donations.Settings{
			Environment:     cfg.Environment,
			SiteURL:         cfg.SiteURL,
			DefaultCurrency: cfg.Donation.DefaultCurrency,
			MinAmount:       cfg.Donation.MinAmount,
			MaxAmount:       cfg.Donation.MaxAmount,
			VerifyCacheTTL:  cfg.Donation.VerifyCacheTTL,
			AnalyticsTopic:  cfg.KafkaAnalyticsTopic,
		},
		logger.With(zap.String("component", "DonationService")),
	)

	return services{donations: donationService, campaigns: campaignService}
}
