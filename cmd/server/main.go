package main

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"paygate/internal/app"
	"paygate/internal/config"
	"paygate/internal/gateway/esewa"
	"paygate/internal/handler"
	internalRedis "paygate/internal/redis"
	"paygate/internal/repository/postgres"
	"paygate/internal/service"
)

func main() {
	// Load configuration.
	cfg := config.Load()

	logger, err := app.NewLogger(cfg.Log)
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	if !cfg.Log.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	if err := handler.RegisterValidators(); err != nil {
		logger.Fatal("failed to register validators", zap.Error(err))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Initialize New Relic FIRST (before database so we can instrument DB).
	var nrApp *newrelic.Application
	if cfg.NewRelic.Enabled && cfg.NewRelic.LicenseKey != "" {
		nrApp, err = newrelic.NewApplication(
			newrelic.ConfigAppName(cfg.NewRelic.AppName),
			newrelic.ConfigLicense(cfg.NewRelic.LicenseKey),
			newrelic.ConfigDistributedTracerEnabled(true),
			newrelic.ConfigAppLogForwardingEnabled(true),
		)
		if err != nil {
			logger.Warn("failed to initialize New Relic", zap.Error(err))
		} else {
			logger.Info("New Relic enabled", zap.String("app", cfg.NewRelic.AppName))
		}
	}

	db, err := app.NewDatabase(ctx, cfg.Database, nrApp)
	if err != nil {
		logger.Fatal("failed to connect to database", zap.Error(err))
	}
	defer db.Close()
	logger.Info("connected to PostgreSQL", zap.Bool("auto_migrate", cfg.Database.AutoMigrate))

	redisClient, err := app.NewRedisClient(ctx, cfg.Redis, nrApp)
	if err != nil {
		logger.Fatal("failed to connect to redis", zap.Error(err))
	}
	defer redisClient.Close()
	logger.Info("connected to Redis", zap.String("addr", cfg.Redis.Addr))

	server, sweeper := wireServer(db, redisClient, nrApp, logger, cfg)

	sweepCtx, stopSweep := context.WithCancel(context.Background())
	sweepDone := make(chan struct{})
	go func() {
		defer close(sweepDone)
		sweeper.Run(sweepCtx)
	}()

	// Start server in goroutine.
	go func() {
		logger.Info("starting server", zap.String("port", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	// Graceful shutdown.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down server")

	stopSweep()
	<-sweepDone

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", zap.Error(err))
	}
	if nrApp != nil {
		nrApp.Shutdown(5 * time.Second)
	}

	logger.Info("server exited")
}

// wireServer wires all dependencies and returns the HTTP server and the expiry sweeper.
func wireServer(
	db *sql.DB,
	redisClient *redis.Client,
	nrApp *newrelic.Application,
	logger *zap.Logger,
	cfg *config.Config,
) (*http.Server, *service.ExpirySweeper) {
	// Redis stores.
	cacheStore := internalRedis.NewCacheStore(redisClient)
	lockStore := internalRedis.NewLockStore(redisClient)

	// Repositories.
	intentRepo := postgres.NewIntentRepository(db)
	cartRepo := postgres.NewCartRepository(db)

	// eSewa client; outbound calls show up as external segments in New Relic.
	httpClient := &http.Client{Timeout: cfg.Esewa.HTTPTimeout}
	if nrApp != nil {
		httpClient.Transport = newrelic.NewRoundTripper(http.DefaultTransport)
	}
	gateway := esewa.NewClient(esewa.Config{
		MerchantCode: cfg.Esewa.MerchantCode,
		FormURL:      cfg.Esewa.FormURL,
		VerifyURL:    cfg.Esewa.VerifyURL,
	}, httpClient)

	// Services.
	notificationService := service.NewNotificationService(logger.Named("notification"))
	paymentService := service.NewPaymentService(
		intentRepo,
		cacheStore,
		gateway,
		notificationService,
		logger.Named("payment"),
		service.IntentConfig{
			TransactionPrefix: cfg.Ledger.TransactionPrefix,
			MaxVerifyAttempts: cfg.Ledger.MaxVerifyAttempts,
			IntentTimeout:     cfg.Ledger.IntentTimeout,
			VerifyTimeout:     cfg.Ledger.VerifyTimeout,
		},
	)
	cartService := service.NewCartService(cartRepo, logger.Named("cart"))
	sweeper := service.NewExpirySweeper(
		paymentService,
		lockStore,
		logger.Named("sweeper"),
		cfg.Ledger.SweepInterval,
		cfg.Ledger.SweepBatchSize,
	)

	// Handlers.
	paymentHandler := handler.NewPaymentHandler(paymentService, gateway, handler.PaymentHandlerConfig{
		SuccessURL: cfg.Esewa.SuccessURL,
		FailureURL: cfg.Esewa.FailureURL,
		AutoVerify: cfg.Ledger.AutoVerify,
	})
	cartHandler := handler.NewCartHandler(cartService)

	router := app.NewRouter(app.RouterDeps{
		PaymentHandler: paymentHandler,
		CartHandler:    cartHandler,
		RedisClient:    redisClient,
		NewRelicApp:    nrApp,
		Logger:         logger.Named("http"),
	})

	return &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}, sweeper
}
