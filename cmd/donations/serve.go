package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"donations/internal/config"
	"donations/internal/domain"
	donations_http "donations/internal/handler/http/donations"
	"donations/internal/handler/http/middlewares"
	kafka_infra "donations/internal/infrastructure/kafka"
	"donations/internal/infrastructure/mailer"
	"donations/internal/outbox"
	inbox_postgres "donations/internal/repository/inbox_repo/postgres"
	outbox_postgres "donations/internal/repository/outbox_repo/postgres"
	"donations/internal/retention"
)

func serveCmd() *cobra.Command {
	var skipMigrations bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and background workers",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfigAndLogger()
			if err != nil {
				return err
			}
			defer logger.Sync()
			return runServe(cfg, logger, skipMigrations)
		},
	}

	cmd.Flags().BoolVar(&skipMigrations, "skip-migrations", false, "do not apply database migrations on startup")
	return cmd
}

func runServe(cfg *config.Config, appLogger *zap.Logger, skipMigrations bool) error {
	appLogger.Info("Donations service starting...", zap.String("environment", cfg.Environment))

	startupCtx, cancelStartup := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancelStartup()

	appLogger.Info("Waiting for database to be available...")
	db, err := connectDB(startupCtx, cfg, appLogger, 10)
	if err != nil {
		return err
	}
	defer func() {
		if err := db.Close(); err != nil {
			appLogger.Error("Error closing database connection", zap.Error(err))
		} else {
			appLogger.Info("Database connection closed.")
		}
	}()

	if !skipMigrations {
		appLogger.Info("Running database migrations...")
		if err := runMigrations(cfg, appLogger, false); err != nil {
			return err
		}
	}

	secretKey, err := resolvePaystackKey(startupCtx, cfg, appLogger)
	if err != nil {
		return fmt.Errorf("failed to resolve Paystack secret key: %w", err)
	}

	verifyCache, closeCache, err := newVerificationCache(startupCtx, cfg, appLogger)
	if err != nil {
		return fmt.Errorf("failed to connect to Redis: %w", err)
	}
	defer closeCache()

	var producer kafka_infra.Producer
	if brokers := cfg.GetKafkaBrokers(); len(brokers) > 0 {
		if err := kafka_infra.EnsureTopics(startupCtx, brokers, []string{cfg.KafkaAnalyticsTopic}, appLogger); err != nil {
			return fmt.Errorf("failed to ensure Kafka topics: %w", err)
		}
		producer = kafka_infra.NewProducer(brokers, appLogger.With(zap.String("component", "KafkaProducer")))
		appLogger.Info("Kafka producer created successfully.")
	} else {
		producer = kafka_infra.NewLogProducer(appLogger.With(zap.String("component", "AnalyticsLog")))
		appLogger.Info("KAFKA_BROKER_URL not set, analytics events will be logged only")
	}
	defer func() {
		if err := producer.Close(); err != nil {
			appLogger.Error("Error closing Kafka producer", zap.Error(err))
		}
	}()

	var sender mailer.EmailSender
	if cfg.SMTPEnabled() {
		sender = mailer.NewSMTPSender(cfg.SMTP.Host, cfg.SMTP.Port, cfg.SMTP.Username, cfg.SMTP.Password, cfg.SMTP.From, cfg.SMTP.FromName)
	} else {
		sender = mailer.NewLogSender(appLogger.With(zap.String("component", "ReceiptLog")))
		appLogger.Info("SMTP not configured, receipts will be logged only")
	}

	svc := buildServices(db, cfg, secretKey, verifyCache, appLogger)
	if err := svc.campaigns.Ensure(startupCtx); err != nil {
		return fmt.Errorf("failed to ensure campaign: %w", err)
	}

	kafkaDispatcher := outbox.NewKafkaDispatcher(producer, cfg.KafkaAnalyticsTopic)
	outboxProcessor := outbox.NewProcessor(
		db,
		outbox_postgres.NewOutboxRepository(),
		map[string]outbox.Dispatcher{
			domain.MessageTypeReceiptEmail:      outbox.NewReceiptDispatcher(mailer.NewReceiptMailer(sender)),
			domain.MessageTypeDonationCompleted: kafkaDispatcher,
			domain.MessageTypeDonationFailed:    kafkaDispatcher,
			domain.MessageTypeAnalyticsEvent:    kafkaDispatcher,
			domain.MessageTypeCampaignCredit:    outbox.NewCampaignCreditDispatcher(svc.campaigns),
		},
		outbox.ProcessorConfig{
			PollInterval: cfg.OutboxPollInterval,
			PollTimeout:  cfg.OutboxPollTimeout,
			BatchSize:    cfg.OutboxBatchSize,
			MaxAttempts:  cfg.OutboxMaxAttempts,
			RetryBase:    cfg.OutboxRetryBase,
		},
		appLogger.With(zap.String("component", "OutboxProcessor")),
	)

	inboxJanitor := retention.NewInboxJanitor(
		db,
		inbox_postgres.NewInboxRepository(),
		cfg.InboxRetention,
		cfg.InboxPurgeInterval,
		appLogger.With(zap.String("component", "InboxJanitor")),
	)

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)
	router.Use(middleware.Timeout(cfg.Paystack.Timeout + 5*time.Second))
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.CORSAllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		MaxAge:         300,
	}))

	donations_http.RegisterRoutes(router, donations_http.RouterDeps{
		Donations:      svc.donations,
		Campaigns:      svc.campaigns,
		Analytics:      producer,
		AnalyticsTopic: cfg.KafkaAnalyticsTopic,
		RateLimiter:    middlewares.PerMinute(cfg.RateLimitPerMinute, cfg.RateLimitBurst),
		AdminJWTSecret: cfg.AdminJWTSecret,
	}, appLogger.With(zap.String("component", "HTTPHandler")))

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctxMain, cancelMain := context.WithCancel(context.Background())
	defer cancelMain()

	serverErr := make(chan error, 1)
	go func() {
		appLogger.Info("Starting HTTP server", zap.String("address", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	var workers sync.WaitGroup
	workers.Add(2)
	go func() {
		defer workers.Done()
		appLogger.Info("Starting Outbox Processor...")
		outboxProcessor.Start(ctxMain)
		appLogger.Info("Outbox Processor stopped.")
	}()
	go func() {
		defer workers.Done()
		appLogger.Info("Starting Inbox Janitor...")
		inboxJanitor.Start(ctxMain)
		appLogger.Info("Inbox Janitor stopped.")
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	var runErr error
	select {
	case <-sigChan:
		appLogger.Info("Shutting down application...")
	case runErr = <-serverErr:
		appLogger.Error("HTTP server failed", zap.Error(runErr))
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		appLogger.Error("HTTP server graceful shutdown failed", zap.Error(err))
	} else {
		appLogger.Info("HTTP server gracefully shut down.")
	}

	cancelMain()
	done := make(chan struct{})
	go func() {
		workers.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-shutdownCtx.Done():
		appLogger.Warn("Background workers did not stop before the shutdown deadline")
	}

	appLogger.Info("Application gracefully shut down.")
	return runErr
}
