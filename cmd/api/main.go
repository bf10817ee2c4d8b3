package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/redis/go-redis/v9"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/riverdriver/riverpgxv5"
	"github.com/riverqueue/river/rivermigrate"

	"github.com/coinwork/backend/internal/auth"
	"github.com/coinwork/backend/internal/config"
	"github.com/coinwork/backend/internal/dashboard"
	"github.com/coinwork/backend/internal/db"
	"github.com/coinwork/backend/internal/handlers"
	"github.com/coinwork/backend/internal/ledger"
	"github.com/coinwork/backend/internal/middleware"
	"github.com/coinwork/backend/internal/notify"
	"github.com/coinwork/backend/internal/repository"
	"github.com/coinwork/backend/internal/router"
	"github.com/coinwork/backend/internal/services"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg, err := config.Load(logger)
	if err != nil {
		slog.Error("Invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := db.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		slog.Error("Cannot reach PostgreSQL. Ensure Postgres is running, e.g. docker-compose up -d", "error", err)
		os.Exit(1)
	}
	defer pool.Close()
	slog.Info("Connected to PostgreSQL")

	if err := db.EnsureSchema(ctx, pool); err != nil {
		slog.Error("Schema bootstrap failed", "error", err)
		os.Exit(1)
	}

	migrator, err := rivermigrate.New(riverpgxv5.New(pool), nil)
	if err != nil {
		slog.Error("Failed to create River migrator", "error", err)
		os.Exit(1)
	}
	if _, err := migrator.Migrate(ctx, rivermigrate.DirectionUp, nil); err != nil {
		slog.Error("River migrate up failed", "error", err)
		os.Exit(1)
	}
	slog.Info("Schema and River migrations applied")

	// Notifications
	workers := river.NewWorkers()
	river.AddWorker(workers, notify.NewEventWorker(cfg.NotifyWebhookURL, logger))
	riverClient, err := river.NewClient(riverpgxv5.New(pool), &river.Config{
		Queues: map[string]river.QueueConfig{
			river.QueueDefault: {MaxWorkers: 5},
		},
		Workers: workers,
	})
	if err != nil {
		slog.Error("Failed to create River client", "error", err)
		os.Exit(1)
	}
	insertEvent := func(ctx context.Context, tx pgx.Tx, args notify.EventArgs) error {
		_, err := riverClient.InsertTx(ctx, tx, args, nil)
		return err
	}

	// Repositories and ledger
	userRepo := repository.NewUserRepo(pool)
	ledgerRepo := repository.NewLedgerRepo(pool)
	taskRepo := repository.NewTaskRepo(pool)
	submissionRepo := repository.NewSubmissionRepo(pool)
	withdrawalRepo := repository.NewWithdrawalRepo(pool)
	paymentRepo := repository.NewPaymentRepo(pool)
	coinLedger := ledger.New(userRepo, ledgerRepo)

	// Services
	validator, err := services.NewValidator()
	if err != nil {
		slog.Error("Schema validator init failed", "error", err)
		os.Exit(1)
	}
	var charger services.Charger = services.SandboxCharger{}
	if cfg.PaymentGatewayURL != "" {
		charger = services.NewWebhookCharger(cfg.PaymentGatewayURL)
	} else {
		slog.Warn("PAYMENT_GATEWAY_URL not set, coin purchases use the sandbox charger")
	}

	authSvc := auth.NewService(userRepo, cfg.JWTSecret, cfg.TokenTTL)
	taskSvc := services.NewTaskService(pool, taskRepo, submissionRepo, coinLedger, logger)
	submissionSvc := services.NewSubmissionService(pool, taskRepo, submissionRepo, coinLedger, insertEvent, logger)
	withdrawalSvc := services.NewWithdrawalService(pool, withdrawalRepo, coinLedger, insertEvent, logger)
	paymentSvc := services.NewPaymentService(pool, paymentRepo, coinLedger, charger, logger)

	api := router.New(router.Deps{
		Auth:        auth.NewHandler(authSvc, validator, logger),
		Tasks:       &handlers.TaskHandler{Tasks: taskSvc, Validator: validator, Logger: logger},
		Submissions: &handlers.SubmissionHandler{Submissions: submissionSvc, Validator: validator, Logger: logger},
		Withdrawals: &handlers.WithdrawalHandler{Withdrawals: withdrawalSvc, Validator: validator, Logger: logger},
		Payments:    &handlers.PaymentHandler{Payments: paymentSvc, Validator: validator, Logger: logger},
		Dashboard: dashboard.NewHandler(userRepo, coinLedger, submissionRepo, taskRepo,
			paymentRepo, withdrawalRepo, taskSvc, logger),
		Tokens:             authSvc,
		Users:              userRepo,
		RateLimiter:        middleware.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst),
		Idempotency:        idempotencyStore(ctx, cfg.RedisURL),
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		Logger:             logger,
	})

	if err := riverClient.Start(ctx); err != nil {
		slog.Error("River client failed to start", "error", err)
		os.Exit(1)
	}

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           api,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("HTTP shutdown failed", "error", err)
		}
		if err := riverClient.Stop(shutdownCtx); err != nil {
			slog.Error("River stop failed", "error", err)
		}
	}()

	slog.Info("Starting HTTP server", "addr", srv.Addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("HTTP server failed", "error", err)
		os.Exit(1)
	}
}

// idempotencyStore uses Redis when REDIS_URL is set and reachable, otherwise
// an in-process store that only holds for a single replica.
func idempotencyStore(ctx context.Context, redisURL string) middleware.IdempotencyStore {
	if redisURL == "" {
		slog.Warn("REDIS_URL not set, idempotency keys are kept in memory")
		return middleware.NewMemoryStore()
	}
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		slog.Warn("Invalid REDIS_URL, idempotency keys are kept in memory", "error", err)
		return middleware.NewMemoryStore()
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		slog.Warn("Redis unreachable, idempotency keys are kept in memory", "error", err)
		_ = client.Close()
		return middleware.NewMemoryStore()
	}
	slog.Info("Idempotency keys stored in Redis")
	return middleware.NewRedisStore(client)
}
