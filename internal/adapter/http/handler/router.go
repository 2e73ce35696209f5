package handler

import (
	"wallet-ledger/internal/adapter/http/middleware"
	"wallet-ledger/internal/core/ports"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// RouterDeps holds all dependencies needed to set up routes.
type RouterDeps struct {
	NettingSvc     ports.NettingService
	ReconcilerSvc  ports.ReconcilerService
	BalanceSvc     ports.BalanceService
	MasterSvc      ports.MasterDataService
	TokenSvc       ports.TokenService      // nil = API is unauthenticated
	WriteLimiter   middleware.WriteLimiter // nil = rate limiting disabled
	HealthCheckers []ports.HealthChecker
	AllowedOrigins []string
	Logger         zerolog.Logger
}

// SetupRouter initialises the Gin engine with all routes and middleware.
func SetupRouter(deps RouterDeps) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()

	r.Use(middleware.Recovery(deps.Logger))
	r.Use(middleware.RequestID())
	r.Use(middleware.RequestLogger(deps.Logger))
	r.Use(middleware.CORS(deps.AllowedOrigins))
	r.Use(middleware.MaxBodySize(1 << 20))

	r.GET("/health", HealthCheck(deps.HealthCheckers...))

	var noop gin.HandlerFunc = func(c *gin.Context) { c.Next() }
	auth, limit := noop, noop
	if deps.TokenSvc != nil {
		auth = middleware.JWTAuth(deps.TokenSvc, deps.Logger)
	}
	if deps.WriteLimiter != nil {
		limit = middleware.RateLimiter(deps.WriteLimiter, deps.Logger)
	}

	v1 := r.Group("/api/v1", auth)

	walletHandler := NewWalletHandler(deps.MasterSvc, deps.BalanceSvc, deps.NettingSvc, deps.ReconcilerSvc)
	wallets := v1.Group("/wallets")
	{
		wallets.POST("", walletHandler.Create)
		wallets.GET("", walletHandler.List)
		wallets.GET("/:walletID/balance", walletHandler.GetBalance)
		wallets.GET("/:walletID/movements", walletHandler.ListMovements)
		wallets.POST("/:walletID/movements", limit, walletHandler.ApplyMovement)
		wallets.GET("/:walletID/offsets", walletHandler.PreviewOffsets)
		wallets.POST("/:walletID/rebuild", limit, walletHandler.Rebuild)
		wallets.GET("/:walletID/verify", walletHandler.Verify)
	}

	txnHandler := NewTransactionHandler(deps.MasterSvc)
	v1.POST("/transactions", txnHandler.Create)

	return r
}
