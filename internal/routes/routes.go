package routes

import (
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"dispute-reconciliation-backend/internal/auth"
	"dispute-reconciliation-backend/internal/config"
	"dispute-reconciliation-backend/internal/extraction"
	handler "dispute-reconciliation-backend/internal/handlers"
	"dispute-reconciliation-backend/internal/repository"
	service "dispute-reconciliation-backend/internal/services/reconciliation"
)

func RegisterRoutes(r *gin.Engine, db *gorm.DB, cfg config.Config) {
	store := repository.NewStore(db)

	reconService := service.NewService(store)
	authService := auth.NewService(store, cfg.JWTSecret)

	var gateway *extraction.Client
	if cfg.GatewayURL != "" {
		gateway = extraction.NewClient(cfg.GatewayURL, cfg.GatewayAPIKey)
	}

	reconHandler := handler.NewReconciliationHandler(reconService, store, gateway)
	authHandler := handler.NewAuthHandler(authService)

	api := r.Group("/api")

	// Health check
	api.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	// Staff auth
	authGroup := api.Group("/auth")
	authGroup.POST("/register", authHandler.Register)
	authGroup.POST("/login", authHandler.Login)

	// Reconciliation runs; Apply mutates the ledger and needs a reviewer identity
	recon := api.Group("/reconciliations")
	recon.POST("", reconHandler.Reconcile)
	recon.GET("/:id", reconHandler.GetResult)
	recon.POST("/:id/apply", auth.Middleware(authService), reconHandler.Apply)

	// Client ledger
	clients := api.Group("/clients")
	{
		clients.GET("/:clientId/reconciliations", reconHandler.ListResults)
		clients.GET("/:clientId/dispute-items", reconHandler.ListDisputeItems)
		clients.GET("/:clientId/violations", reconHandler.ListViolations)
	}
	api.POST("/dispute-items", reconHandler.CreateDisputeItem)
}
