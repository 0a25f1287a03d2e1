package main

import (
	"log"
	"os"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/Fingerliing/payquick-sub001/config"
	"github.com/Fingerliing/payquick-sub001/models"
	"github.com/Fingerliing/payquick-sub001/realtime"
	"github.com/Fingerliing/payquick-sub001/router"
	"github.com/Fingerliing/payquick-sub001/services"
	"github.com/Fingerliing/payquick-sub001/utils"
)

func init() {
	// Load .env file di awal sebelum apapun
	if err := godotenv.Load(); err != nil {
		log.Printf("Warning: .env file not found or error loading: %v", err)
	}

	// Initialize logger
	utils.InfoLogger = logrus.New()
	utils.ErrorLogger = logrus.New()

	utils.InfoLogger.SetOutput(os.Stdout)
	utils.ErrorLogger.SetOutput(os.Stderr)

	utils.InfoLogger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
		ForceColors:   true,
	})
	utils.ErrorLogger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
		ForceColors:   true,
	})
}

func main() {
	// Initialize DB
	db, err := config.InitDB()
	if err != nil {
		utils.ErrorLogger.Fatalf("Failed to connect to database: %v", err)
	}

	// Set gin mode
	if os.Getenv("GIN_MODE") == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	autoMigrate(db)

	// Hub realtime untuk fan-out event sesi & order
	hub := realtime.NewHub()

	// Sweep arsip berjalan tiap menit; run yang masih jalan tidak ditumpuk
	archiver := services.NewArchiver(db, hub)
	scheduler := cron.New(cron.WithChain(
		cron.SkipIfStillRunning(cron.DefaultLogger),
	))
	if _, err := scheduler.AddFunc("* * * * *", func() {
		summary, err := archiver.RunOnce()
		if err != nil {
			utils.ErrorLogger.Printf("archival sweep failed: %v", err)
			return
		}
		if summary.Cancelled+summary.Archived+summary.Purged > 0 {
			utils.InfoLogger.Printf("archival sweep: cancelled=%d archived=%d purged=%d",
				summary.Cancelled, summary.Archived, summary.Purged)
		}
	}); err != nil {
		utils.ErrorLogger.Fatalf("Failed to schedule archival sweep: %v", err)
	}
	scheduler.Start()
	defer scheduler.Stop()

	// Setup router (termasuk rate limiter 50 req/detik per IP)
	r := router.SetupRouter(db, hub)

	r.SetTrustedProxies([]string{"127.0.0.1", "localhost"})

	// Run server
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	utils.InfoLogger.Printf("Listening on port %s", port)
	if err := r.Run(":" + port); err != nil {
		utils.ErrorLogger.Fatal(err)
	}
}

func autoMigrate(db *gorm.DB) {
	err := db.AutoMigrate(
		&models.User{},
		&models.Restaurant{},
		&models.Table{},
		&models.MenuCategory{},
		&models.Menu{},
		&models.CollabSession{},
		&models.SessionParticipant{},
		&models.SessionCartItem{},
		&models.Order{},
		&models.OrderItem{},
		&models.SplitPaymentSession{},
		&models.SplitPaymentPortion{},
		&models.Notification{},
	)
	if err != nil {
		utils.ErrorLogger.Fatalf("Failed to AutoMigrate: %v", err)
	}
	utils.InfoLogger.Println("AutoMigrate completed.")
}
