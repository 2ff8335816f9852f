package routes

import (
	"github.com/gofiber/fiber/v2"

	"custodia/internal/handlers"
	"custodia/internal/middleware"
)

func SetupAdminRoutes(app *fiber.App) {
	admin := app.Group("/api/admin", middleware.Protected(), middleware.AdminOnly())

	// Dashboard
	admin.Get("/stats", handlers.GetPlatformStats)

	// Timer housekeeping
	admin.Post("/sweep", handlers.RunSweep)

	// User management
	admin.Post("/users/:id/suspend", handlers.SuspendUser)
	admin.Post("/users/:id/unsuspend", handlers.UnsuspendUser)

	// Moderation queue
	admin.Get("/disputes", handlers.ListDisputedTransactions)
}
