package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/camiloreynaga/yape-notifier-sub000/internal/api"
	"github.com/camiloreynaga/yape-notifier-sub000/internal/circuitbreaker"
	"github.com/camiloreynaga/yape-notifier-sub000/internal/classify"
	"github.com/camiloreynaga/yape-notifier-sub000/internal/config"
	"github.com/camiloreynaga/yape-notifier-sub000/internal/db"
	"github.com/camiloreynaga/yape-notifier-sub000/internal/dedup"
	"github.com/camiloreynaga/yape-notifier-sub000/internal/extract"
	"github.com/camiloreynaga/yape-notifier-sub000/internal/ingest"
	"github.com/camiloreynaga/yape-notifier-sub000/internal/instance"
	"github.com/camiloreynaga/yape-notifier-sub000/internal/metrics"
	"github.com/camiloreynaga/yape-notifier-sub000/internal/observ"
	"github.com/camiloreynaga/yape-notifier-sub000/internal/redis"
	"github.com/camiloreynaga/yape-notifier-sub000/internal/sqs"
	"github.com/camiloreynaga/yape-notifier-sub000/internal/worker"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Load config
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Setup logger
	logger, err := observ.NewLogger(cfg.Env, cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("starting yape-notifier gateway",
		zap.String("env", cfg.Env),
		zap.Int("port", cfg.Port),
	)

	// Initialize database connection
	ctx := context.Background()
	dbConfig := db.Config{
		Host:     cfg.DBHost,
		Port:     cfg.DBPort,
		User:     cfg.DBUser,
		Password: cfg.DBPassword,
		Database: cfg.DBName,
		SSLMode:  cfg.DBSSLMode,
	}

	database, err := db.New(ctx, dbConfig, logger)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer database.Close()

	logger.Info("database connection established",
		zap.String("host", cfg.DBHost),
		zap.Int("port", cfg.DBPort),
		zap.String("database", cfg.DBName),
	)

	// Initialize repository
	repo := db.NewRepository(database, logger)

	// Classification and extraction. The same classifier serves both the
	// optional inline gate and the async audit pass.
	classifier, err := classify.New(classify.DefaultRuleSet(), classify.Config{
		MinAmount:     cfg.AmountMin,
		MaxAmount:     cfg.AmountMax,
		MinBodyLength: cfg.MinBodyLength,
	})
	if err != nil {
		return fmt.Errorf("failed to build classifier: %w", err)
	}

	currencies := extract.NewCurrencyTable(cfg.DefaultCurrency, logger)
	extractor, err := extract.NewExtractor(extract.DefaultPatternTable(), currencies, logger)
	if err != nil {
		return fmt.Errorf("failed to build extractor: %w", err)
	}

	resolver := instance.NewResolver(repo, logger)
	detector := dedup.NewDetector(repo, time.Duration(cfg.DuplicateWindow)*time.Second, logger)

	pipeline := ingest.New(classifier, extractor, resolver, detector, repo, ingest.Config{}, logger)

	// Initialize Redis for idempotency and rate limiting
	redisConfig := redis.Config{
		Host:     cfg.RedisHost,
		Port:     cfg.RedisPort,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}

	redisClient, err := redis.New(ctx, redisConfig, logger)
	if err != nil {
		logger.Warn("redis unavailable, idempotency and rate limiting disabled",
			zap.Error(err),
			zap.String("host", cfg.RedisHost),
		)
	}

	var idempotencyService *redis.IdempotencyService
	var rateLimiter *redis.RateLimiter
	if redisClient != nil {
		idempotencyService = redis.NewIdempotencyService(redisClient, logger)
		rateLimiter = redis.NewRateLimiter(redisClient, logger, redis.RateLimitConfig{
			Limit:  100,             // 100 uploads
			Window: 1 * time.Minute, // per minute per device
		})
		defer redisClient.Close()
	}

	// Initialize SQS audit queue
	var producer *sqs.Producer
	var consumer *sqs.Consumer
	if cfg.SQSQueueURL != "" {
		sqsCfg := sqs.Config{
			Region:   cfg.SQSRegion,
			QueueURL: cfg.SQSQueueURL,
		}
		producer, err = sqs.NewProducer(ctx, sqsCfg, logger)
		if err != nil {
			logger.Warn("sqs producer unavailable, audit worker will poll the database",
				zap.Error(err),
			)
		} else {
			defer producer.Close()
		}

		consumer, err = sqs.NewConsumer(ctx, sqsCfg, logger)
		if err != nil {
			logger.Warn("sqs consumer unavailable, audit worker will poll the database",
				zap.Error(err),
			)
		} else {
			defer consumer.Close()
		}
	}

	// Alert channels for audit disagreements. Every configured channel is
	// wrapped in a circuit breaker so a dead provider cannot stall the
	// audit loop. The log channel is always on.
	alerters := []worker.Alerter{worker.NewLogAlerter(logger)}

	if cfg.SESFromEmail != "" && cfg.AlertEmailTo != "" {
		sesAlerter, err := worker.NewSESAlerter(ctx, worker.SESConfig{
			Region:    cfg.AWSRegion,
			FromEmail: cfg.SESFromEmail,
			ToEmail:   cfg.AlertEmailTo,
		}, logger)
		if err != nil {
			logger.Warn("SES alerter unavailable, email alerts disabled", zap.Error(err))
		} else {
			alerters = append(alerters, circuitbreaker.NewProtectedAlerter(
				sesAlerter,
				circuitbreaker.New(circuitbreaker.DefaultConfig("ses-email"), logger),
				logger,
			))
		}
	}

	if cfg.AlertSMSNumber != "" {
		snsAlerter, err := worker.NewSNSAlerter(ctx, worker.SNSConfig{
			Region:      cfg.SNSRegion,
			PhoneNumber: cfg.AlertSMSNumber,
		}, logger)
		if err != nil {
			logger.Warn("SNS alerter unavailable, SMS alerts disabled", zap.Error(err))
		} else {
			alerters = append(alerters, circuitbreaker.NewProtectedAlerter(
				snsAlerter,
				circuitbreaker.New(circuitbreaker.DefaultConfig("sns-sms"), logger),
				logger,
			))
		}
	}

	if cfg.AlertWebhookURL != "" {
		webhookAlerter := worker.NewWebhookAlerter(logger, worker.WebhookConfig{
			URL:     cfg.AlertWebhookURL,
			Timeout: time.Duration(cfg.WebhookTimeout) * time.Second,
		})
		alerters = append(alerters, circuitbreaker.NewProtectedAlerter(
			webhookAlerter,
			circuitbreaker.New(circuitbreaker.DefaultConfig("webhook"), logger),
			logger,
		))
	}

	multiAlerter := worker.NewMultiAlerter(logger, alerters...)

	logger.Info("alert channels initialized",
		zap.Int("channels", len(alerters)),
		zap.Bool("email_enabled", cfg.SESFromEmail != "" && cfg.AlertEmailTo != ""),
		zap.Bool("sms_enabled", cfg.AlertSMSNumber != ""),
		zap.Bool("webhook_enabled", cfg.AlertWebhookURL != ""),
	)

	// Audit worker. With a queue it consumes audit jobs; without one it
	// polls for unaudited records.
	var jobs worker.JobSource
	if consumer != nil {
		jobs = consumer
	}

	auditor := worker.New(repo, classifier, multiAlerter, jobs, worker.Config{
		PollInterval: time.Duration(cfg.AuditPollSeconds) * time.Second,
		BatchSize:    10,
	}, logger)

	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()

	go auditor.Start(workerCtx)

	logger.Info("audit worker started", zap.Bool("queue_driven", jobs != nil))

	// Setup router
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(metrics.Middleware)

	// Custom logging middleware
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			logger.Info("request completed",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("duration_ms", time.Since(start)),
				zap.String("request_id", middleware.GetReqID(r.Context())),
			)
		})
	})

	// API routes
	var handler *api.Handler
	if idempotencyService != nil && producer != nil {
		handler = api.NewHandlerWithSQS(logger, repo, pipeline, idempotencyService, producer)
	} else if idempotencyService != nil {
		handler = api.NewHandlerWithIdempotency(logger, repo, pipeline, idempotencyService)
	} else {
		handler = api.NewHandler(logger, repo, pipeline)
	}
	r.Route("/v1", func(r chi.Router) {
		// Uploads are rate limited per device
		r.Use(api.RateLimitMiddleware(rateLimiter, logger, api.DeviceKeyFunc))

		r.Post("/events", handler.IngestEvent)
		r.Get("/notifications", handler.ListNotifications)
		r.Get("/notifications/{id}", handler.GetNotification)
		r.Patch("/notifications/{id}/status", handler.ReviewNotification)

		r.Get("/instances", handler.ListInstances)
		r.Patch("/instances/{id}/label", handler.UpdateInstanceLabel)
	})

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	// Prometheus metrics endpoint
	r.Handle("/metrics", metrics.Handler())

	// Setup HTTP server
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	serverErrors := make(chan error, 1)
	go func() {
		logger.Info("server listening", zap.String("addr", srv.Addr))
		serverErrors <- srv.ListenAndServe()
	}()

	// Listen for shutdown signals
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	// Block until we receive a signal or server error
	select {
	case err := <-serverErrors:
		return fmt.Errorf("server error: %w", err)
	case sig := <-shutdown:
		logger.Info("shutdown signal received", zap.String("signal", sig.String()))

		// Give outstanding requests 10 seconds to complete
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			srv.Close()
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}

		logger.Info("server stopped gracefully")
	}

	return nil
}
