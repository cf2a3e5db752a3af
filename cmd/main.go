package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/eaglebank/payments-service/internal/backend"
	"github.com/eaglebank/payments-service/internal/command"
	"github.com/eaglebank/payments-service/internal/config"
	"github.com/eaglebank/payments-service/internal/events"
	"github.com/eaglebank/payments-service/internal/handler"
	"github.com/eaglebank/payments-service/internal/logging"
	"github.com/eaglebank/payments-service/internal/middleware"
	"github.com/eaglebank/payments-service/internal/notify"
	"github.com/eaglebank/payments-service/internal/query"
	redisClient "github.com/eaglebank/payments-service/internal/redis"
	"github.com/eaglebank/payments-service/internal/repository"
	"github.com/eaglebank/payments-service/internal/session"
	"github.com/eaglebank/payments-service/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		bootLogger := logging.New("info")
		bootLogger.Fatal().Err(err).Msg("load config")
	}
	logger := logging.New(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Database connection
	db, err := repository.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("connect to database")
	}
	defer db.Close()

	if cfg.MigrationsDir != "" {
		if err := repository.RunMigrations(ctx, db, cfg.MigrationsDir, logger); err != nil {
			logger.Fatal().Err(err).Msg("run migrations")
		}
	}

	// Redis connection
	redis, err := redisClient.NewClient(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		logger.Fatal().Err(err).Msg("connect to redis")
	}
	defer redis.Close()

	publisher := events.NewPublisher(redis.Client, cfg.StreamMaxLen)
	notifier := notify.NewStreamNotifier(publisher, logger)
	catalog := notify.NewCatalog()

	// CQRS: read repo with view cache, escrow and refund write repos
	readRepo := repository.NewPaymentReadRepository(db, redis.Client, cfg.PaymentViewTTL, logger)
	escrowRepo := repository.NewEscrowWriteRepository(db)
	refundRepo := repository.NewRefundWriteRepository(db)

	// Command + Query services
	querySvc := query.NewPaymentQueryService(readRepo)
	refundSvc := command.NewRefundCommandService(readRepo, refundRepo, publisher, cfg.RefundWindow, logger)
	escrowSvc := command.NewEscrowCommandService(escrowRepo, readRepo, publisher, logger)
	backendClient := backend.NewClient(querySvc, escrowSvc)

	registry, err := session.NewRegistry(func(userID string, opts store.Options) *store.TransactionStore {
		return store.New(backendClient, store.StaticIdentity(userID), refundSvc, notifier, catalog, opts, logger)
	}, cfg.SessionTTL, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("create session registry")
	}
	defer registry.Close()

	subscriber := events.NewSubscriber(redis.Client, events.SubscriberConfig{
		Group:    cfg.ConsumerGroup,
		Consumer: cfg.ConsumerName,
		Stream:   events.PaymentEventsStream,
		Handler:  registry.HandlePaymentEvent,
	}, logger)
	go func() {
		if err := subscriber.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error().Err(err).Msg("payment events subscriber stopped")
		}
	}()

	paymentHandler := handler.NewPaymentHandler(registry, querySvc, store.Options{
		Limit:        cfg.PaymentsLimit,
		RefundWindow: cfg.RefundWindow,
		Locale:       cfg.NotifyLocale,
	})

	// Setup router
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), middleware.LoggingMiddleware(logger))

	router.GET("/health", func(c *gin.Context) {
		if err := db.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Payment routes
	v1 := router.Group("/v1/payments", middleware.AuthMiddleware([]byte(cfg.JWTSecret)))
	{
		v1.GET("", paymentHandler.ListPayments)
		v1.GET("/:paymentId", paymentHandler.GetPayment)
		v1.GET("/:paymentId/eligibility", paymentHandler.GetEligibility)
		v1.POST("/:paymentId/refund", paymentHandler.RequestRefund)
		v1.POST("/:paymentId/escrow/release", paymentHandler.ReleaseEscrow)
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info().Str("port", cfg.Port).Msg("payments service starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("start server")
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server shutdown")
	}
}
