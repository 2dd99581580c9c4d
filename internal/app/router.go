package app

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/newrelic/go-agent/v3/integrations/nrgin"
	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"paygate/internal/handler"
	"paygate/internal/middleware"
)

// RouterDeps contains all dependencies needed for the router.
type RouterDeps struct {
	PaymentHandler *handler.PaymentHandler
	CartHandler    *handler.CartHandler
	RedisClient    *redis.Client // Nil disables Idempotency-Key replay.
	NewRelicApp    *newrelic.Application
	Logger         *zap.Logger
}

// NewRouter creates a new Gin router with all routes registered.
func NewRouter(deps RouterDeps) *gin.Engine {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}

	router := gin.New()

	// Global middleware.
	router.Use(gin.Recovery())
	router.Use(middleware.RequestLogger(deps.Logger))
	router.Use(middleware.CORSMiddleware())

	if deps.NewRelicApp != nil {
		router.Use(nrgin.Middleware(deps.NewRelicApp))
		router.Use(middleware.NewRelicAttributes())
	}

	router.Use(middleware.IdempotencyMiddleware(deps.RedisClient, deps.Logger))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	router.POST("/cart", deps.CartHandler.ReceiveCart)

	payments := router.Group("/payments")
	{
		payments.POST("/initiate", deps.PaymentHandler.Initiate)
		payments.GET("/callback/success", deps.PaymentHandler.SuccessCallback)
		payments.GET("/callback/failure", deps.PaymentHandler.FailureCallback)
		payments.POST("/verify", deps.PaymentHandler.Verify)
		payments.GET("/status/:transactionId", deps.PaymentHandler.Status)
	}

	return router
}
