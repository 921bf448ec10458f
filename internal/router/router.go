package router

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/scroll-tech/cloak-fast-withdraw/internal/config"
	"github.com/scroll-tech/cloak-fast-withdraw/internal/handlers"
	"github.com/scroll-tech/cloak-fast-withdraw/internal/middleware"
)

// Setup builds the relayer's HTTP surface: health and metrics endpoints
// plus the read-only inspection API. When admin auth is configured the
// inspection routes require a bearer token obtained via /admin/login.
func Setup(
	cfg *config.Config,
	inspection *handlers.InspectionHandler,
	logger *logrus.Logger,
) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "pong"})
	})

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api/v1")

	if cfg.Admin.Enabled() {
		authHandler := handlers.NewAdminAuthHandler(&cfg.Admin, logger)
		api.POST("/admin/login", authHandler.Login)

		authMiddleware := middleware.NewAdminAuthMiddleware(&cfg.Admin, logger)
		api.Use(authMiddleware.RequireAdminAuth())
	}

	api.GET("/withdrawals", inspection.ListWithdrawals)
	api.GET("/withdrawals/:hash", inspection.GetLineage)
	api.GET("/messages", inspection.ListMessages)
	api.GET("/transactions", inspection.ListTransactions)

	return r
}
