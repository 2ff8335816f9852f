package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/joho/godotenv"

	"custodia/internal/database"
	"custodia/internal/handlers"
	"custodia/internal/routes"
	"custodia/internal/services"
	"custodia/internal/store"
)

func main() {
	// Load .env file
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	// Connect to database
	if err := database.Connect(); err != nil {
		log.Fatal("Failed to connect to database: ", err)
	}
	defer database.Close()

	// Run migrations
	if err := database.Migrate(); err != nil {
		log.Fatal("Failed to migrate database: ", err)
	}

	// Wire services
	emailService := services.NewEmailService(database.DB)
	notificationService := services.NewNotificationService(database.DB, emailService)
	escrowStore := store.NewEscrowStore(database.DB)
	gateway := services.NewGatewayService()
	userDirectory := services.NewGormUserDirectory(database.DB)
	escrowService := services.NewEscrowService(escrowStore, gateway, notificationService, userDirectory)

	handlers.InitEscrowService(escrowService)
	if err := handlers.InitCloudinaryService(); err != nil {
		log.Printf("WARNING: evidence uploads disabled: %v", err)
	}

	// Background timer sweeps (expiry, inspection timeout)
	sweepCtx, stopSweeper := context.WithCancel(context.Background())
	defer stopSweeper()
	sweeper := services.NewSweeper(escrowService, sweepInterval())
	go func() {
		if err := sweeper.Run(sweepCtx); err != nil && err != context.Canceled {
			log.Printf("sweeper stopped: %v", err)
		}
	}()

	// Create Fiber app
	app := fiber.New(fiber.Config{
		AppName:   "Custodia API v1.0",
		BodyLimit: 10 * 1024 * 1024,
	})

	// Middleware
	app.Use(logger.New(logger.Config{
		Format: "[${time}] ${status} - ${method} ${path} (${latency})\n",
	}))
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
		AllowMethods: "GET, POST, PUT, DELETE, OPTIONS",
	}))

	app.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"message": "Welcome to the Custodia API",
			"status":  "running",
			"version": "1.0",
		})
	})

	// Setup application routes
	routes.SetupRoutes(app)
	routes.SetupEscrowRoutes(app)
	routes.SetupDisputeRoutes(app)
	routes.SetupNotificationRoutes(app)
	routes.SetupAdminRoutes(app)

	// Shut down cleanly on SIGINT/SIGTERM
	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit
		stopSweeper()
		_ = app.Shutdown()
	}()

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	log.Printf("Custodia server starting on http://localhost:%s", port)
	if err := app.Listen(":" + port); err != nil {
		log.Fatal(err)
	}
}

func sweepInterval() time.Duration {
	if v := os.Getenv("SWEEP_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
		log.Printf("invalid SWEEP_INTERVAL %q, using default", v)
	}
	return 10 * time.Minute
}
