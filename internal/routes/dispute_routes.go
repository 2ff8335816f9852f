package routes

import (
	"github.com/gofiber/fiber/v2"

	"custodia/internal/handlers"
	"custodia/internal/middleware"
)

func SetupDisputeRoutes(app *fiber.App) {
	dispute := app.Group("/api/escrow/:id/dispute", middleware.Protected())

	// Open a dispute (buyer or seller)
	dispute.Post("/", handlers.OpenDispute)

	// Moderation (authorization enforced against the transaction)
	dispute.Post("/review", handlers.ReviewDispute)
	dispute.Post("/resolve", handlers.ResolveDispute)
}
