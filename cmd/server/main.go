package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/fluxpay/engine/internal/application"
	"github.com/fluxpay/engine/internal/config"
	"github.com/fluxpay/engine/internal/eventbus"
	"github.com/fluxpay/engine/internal/handler"
	"github.com/fluxpay/engine/internal/idempotency"
	"github.com/fluxpay/engine/internal/middleware"
	"github.com/fluxpay/engine/internal/outbox"
	"github.com/fluxpay/engine/internal/pg"
	"github.com/fluxpay/engine/internal/platform/logger"
	"github.com/fluxpay/engine/internal/repository"
	"github.com/fluxpay/engine/internal/saga"
	"github.com/fluxpay/engine/internal/serviceexec"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	zapLogger, err := logger.New(cfg.AppEnv, "fluxpay")
	if err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}
	defer zapLogger.Sync()

	zapLogger.Info("starting fluxpay", zap.String("port", cfg.Port), zap.String("env", cfg.AppEnv))

	db := mustConnectDB(cfg, zapLogger)
	runMigrations(cfg, db, zapLogger)

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	bus := eventbus.NewKafkaBus(cfg.Kafka.Brokers, zapLogger)
	defer bus.Close()

	pgVendor := pg.NewResilientClient(pg.NewMockClient(zapLogger), pg.ResilienceConfig{
		ConnectTimeout:      cfg.PGVendor.ConnectTimeout,
		ReadTimeout:         cfg.PGVendor.ReadTimeout,
		TotalTimeout:        cfg.PGVendor.TotalTimeout,
		BulkheadLimit:       cfg.PGVendor.BulkheadLimit,
		BreakerFailureRatio: cfg.PGVendor.BreakerFailureRatio,
		BreakerMinRequests:  cfg.PGVendor.BreakerMinRequests,
		BreakerOpenDuration: cfg.PGVendor.BreakerOpenDuration,
		RetryMaxElapsed:     cfg.PGVendor.RetryMaxElapsed,
	}, zapLogger)

	serviceClient := serviceexec.NewMockClient(zapLogger)

	orderRepo := repository.NewOrderRepository(db)
	paymentRepo := repository.NewPaymentRepository(db)
	creditRepo := repository.NewCreditRepository(db)
	refundRepo := repository.NewRefundRepository(db)
	outboxRepo := repository.NewOutboxRepository(db)
	sagaRepo := repository.NewSagaRepository(db)
	webhookLogRepo := repository.NewWebhookLogRepository(db)
	idempotencyRepo := repository.NewIdempotencyRepository(db)

	uow := repository.NewGormUnitOfWork(db)

	sagaEngine := saga.NewEngine(sagaRepo, zapLogger, cfg.Saga.LeaseDuration)
	sagaEngine.Register(application.NewPaymentFulfillmentDefinition(application.PaymentSagaDeps{
		UOW:           uow,
		Payments:      paymentRepo,
		Orders:        orderRepo,
		PGClient:      pgVendor,
		ServiceClient: serviceClient,
		Logger:        zapLogger,
	}))

	orderService := application.NewOrderService(uow, orderRepo, zapLogger)
	paymentService := application.NewPaymentService(uow, paymentRepo, orderRepo, pgVendor, sagaEngine, 2*time.Hour, zapLogger)
	creditService := application.NewCreditService(creditRepo, zapLogger)
	refundService := application.NewRefundService(uow, refundRepo, paymentRepo, pgVendor, zapLogger)
	webhookService := application.NewWebhookService(cfg.PGVendor.WebhookSecret, webhookLogRepo, paymentRepo, uow, zapLogger)

	idempotencyCache := newIdempotencyCache(redisClient, zapLogger)
	idempotencyGate := idempotency.NewGate(idempotencyCache, idempotencyRepo, zapLogger)

	orderHandler := handler.NewOrderHandler(orderService)
	paymentHandler := handler.NewPaymentHandler(paymentService)
	creditHandler := handler.NewCreditHandler(creditService)
	refundHandler := handler.NewRefundHandler(refundService)
	webhookHandler := handler.NewWebhookHandler(webhookService)
	adminHandler := handler.NewAdminHandler(paymentService, outboxRepo, sagaRepo)

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(middleware.Recovery(zapLogger))
	router.Use(middleware.Logging(zapLogger))
	router.Use(middleware.CORS())
	router.Use(middleware.RequestID())
	router.Use(middleware.Tenant())
	router.Use(middleware.SecurityHeaders())

	router.GET("/healthz", func(c *gin.Context) {
		sqlDB, err := db.DB()
		if err != nil || sqlDB.PingContext(c.Request.Context()) != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "down"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	apiV1 := router.Group("/api/v1")
	orderHandler.RegisterRoutes(apiV1, idempotencyGate)
	paymentHandler.RegisterRoutes(apiV1, idempotencyGate)
	refundHandler.RegisterRoutes(apiV1, idempotencyGate)
	creditHandler.RegisterRoutes(apiV1, idempotencyGate)
	webhookHandler.RegisterRoutes(apiV1)
	adminHandler.RegisterRoutes(apiV1)

	bgCtx, bgCancel := context.WithCancel(context.Background())
	defer bgCancel()

	publisher := outbox.NewPublisher(outboxRepo, bus, outbox.PublisherConfig{
		PollInterval: cfg.Outbox.PollInterval,
		BatchSize:    cfg.Outbox.BatchSize,
		MaxRetries:   cfg.Outbox.MaxRetries,
	}, zapLogger)
	go publisher.Run(bgCtx)

	janitor := outbox.NewJanitor(outboxRepo, outbox.JanitorConfig{
		SweepInterval:   cfg.Outbox.SweepInterval,
		ProcessingLease: cfg.Outbox.ProcessingLease,
		CleanupInterval: cfg.Outbox.CleanupInterval,
		PublishedTTL:    cfg.Outbox.PublishedTTL,
	}, zapLogger)
	go janitor.Run(bgCtx)

	go runSagaRecovery(bgCtx, sagaEngine, cfg.Saga.ClaimInterval, zapLogger)

	srv := &http.Server{
		Addr:         cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		zapLogger.Info("http server starting", zap.String("addr", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zapLogger.Fatal("http server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	zapLogger.Info("shutting down fluxpay")
	bgCancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zapLogger.Error("server forced to shutdown", zap.Error(err))
	}

	zapLogger.Info("fluxpay stopped")
}

func mustConnectDB(cfg *config.Config, zapLogger *zap.Logger) *gorm.DB {
	dsn := fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		cfg.DB.Host, cfg.DB.Port, cfg.DB.User, cfg.DB.Password, cfg.DB.DBName, cfg.DB.SSLMode)

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		zapLogger.Fatal("failed to connect to database", zap.Error(err))
	}
	return db
}

// runMigrations keeps the teacher's dev-mode AutoMigrate convenience for
// local iteration, falling back to golang-migrate's versioned SQL
// migrations (under ./migrations) for every other environment.
func runMigrations(cfg *config.Config, db *gorm.DB, zapLogger *zap.Logger) {
	if cfg.AppEnv == "development" {
		err := db.AutoMigrate(
			&repository.OrderModel{},
			&repository.PaymentModel{},
			&repository.CreditModel{},
			&repository.CreditLedgerModel{},
			&repository.ReservationModel{},
			&repository.RefundModel{},
			&repository.OutboxModel{},
			&repository.SagaInstanceModel{},
			&repository.SagaStepModel{},
			&repository.IdempotencyModel{},
			&repository.ProcessedEventModel{},
			&repository.ProcessedWebhookModel{},
		)
		if err != nil {
			zapLogger.Fatal("failed to auto-migrate", zap.Error(err))
		}
		zapLogger.Info("database migration completed (dev auto-migrate)")
		return
	}

	dsn := fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		cfg.DB.User, cfg.DB.Password, cfg.DB.Host, cfg.DB.Port, cfg.DB.DBName, cfg.DB.SSLMode)
	if err := repository.RunMigrations(dsn, "migrations", zapLogger); err != nil {
		zapLogger.Fatal("failed to run migrations", zap.Error(err))
	}
}

func newIdempotencyCache(redisClient *redis.Client, zapLogger *zap.Logger) idempotency.Cache {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		zapLogger.Warn("redis unreachable at startup, falling back to in-process idempotency cache", zap.Error(err))
		return idempotency.NewMemoryCache()
	}
	return idempotency.NewRedisCache(redisClient)
}

// runSagaRecovery periodically claims sagas left STARTED/PROCESSING by a
// crashed worker past their lease, per spec §4.3's crash-recovery rule.
func runSagaRecovery(ctx context.Context, engine *saga.Engine, interval time.Duration, zapLogger *zap.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			claimed, err := engine.ClaimAndRun(ctx)
			if err != nil {
				zapLogger.Error("saga recovery claim failed", zap.Error(err))
				continue
			}
			if claimed {
				zapLogger.Info("saga recovery claimed and drove an orphaned instance")
			}
		}
	}
}
