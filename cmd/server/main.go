package main

import (
	"log"
	"time"

	"dispute-reconciliation-backend/internal/config"
	"dispute-reconciliation-backend/internal/models"
	"dispute-reconciliation-backend/internal/routes"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
)

func main() {
	// Load .env
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, relying on system env")
	}

	cfg := config.Load()
	db := config.InitDB(cfg)

	db.AutoMigrate(
		&models.DisputeItem{},
		&models.ReconciliationResult{},
		&models.ReinsertionViolation{},
		&models.StatusAuditLog{},
		&models.StaffUser{},
	)

	r := gin.Default()
	// CORS config
	r.Use(cors.New(cors.Config{
		AllowOrigins:     []string{cfg.AllowOrigin},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	routes.RegisterRoutes(r, db, cfg)

	r.Run(cfg.Addr)
}
