package routes

import (
	"github.com/gofiber/fiber/v2"

	"custodia/internal/handlers"
	"custodia/internal/middleware"
)

func SetupRoutes(app *fiber.App) {
	// API routes
	api := app.Group("/api")

	// Auth routes
	auth := api.Group("/auth")
	auth.Post("/signup", handlers.Signup)
	auth.Post("/login", handlers.Login)
	auth.Get("/me", middleware.Protected(), handlers.Me)

	// Health check
	api.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"message": "Custodia API v1.0",
			"status":  "running",
		})
	})
}
