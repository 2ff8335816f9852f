package routes

import (
	"github.com/gofiber/fiber/v2"

	"custodia/internal/handlers"
	"custodia/internal/middleware"
)

func SetupEscrowRoutes(app *fiber.App) {
	escrow := app.Group("/api/escrow", middleware.Protected())

	// Search counterpart by tag
	escrow.Post("/search-user", handlers.SearchUserByTag)

	// Create new transaction (buyer)
	escrow.Post("/create", handlers.CreateEscrow)

	// My transactions
	escrow.Get("/my-transactions", handlers.ListEscrows)

	// Get specific transaction
	escrow.Get("/:id", handlers.GetEscrow)

	// Lifecycle
	escrow.Post("/:id/accept", handlers.AcceptEscrow)
	escrow.Post("/:id/pay", handlers.PayEscrow)
	escrow.Post("/:id/ship", handlers.ShipEscrow)
	escrow.Post("/:id/delivered", handlers.ConfirmDelivery)
	escrow.Post("/:id/approve", handlers.ApproveEscrow)
	escrow.Post("/:id/cancel", handlers.CancelEscrow)

	// Inspection
	escrow.Post("/:id/inspection-notes", handlers.RecordInspectionNotes)

	// Conversation
	escrow.Get("/:id/messages", handlers.GetMessages)
	escrow.Post("/:id/messages", handlers.SendMessage)

	// Evidence uploads
	escrow.Post("/:id/evidence", handlers.UploadEvidence)
	escrow.Delete("/:id/evidence", handlers.DeleteEvidence)
}
