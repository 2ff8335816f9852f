package handlers

import (
	"github.com/gofiber/fiber/v2"

	"custodia/internal/escrow"
)

type OpenDisputeRequest struct {
	Reason      string `json:"reason" validate:"required"`
	Description string `json:"description"`
}

type ResolveDisputeRequest struct {
	Outcome    string `json:"outcome" validate:"required,oneof=release refund resume"`
	Resolution string `json:"resolution" validate:"required"`
}

// OpenDispute parks the transaction in disputed pending review.
func OpenDispute(c *fiber.Ctx) error {
	req := new(OpenDisputeRequest)
	if err := c.BodyParser(req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	if err := validate.Struct(req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "reason is required",
		})
	}

	t, err := escrowService.OpenDispute(c.Context(), actorFromCtx(c), c.Params("id"), req.Reason, req.Description)
	if err != nil {
		return respondDomainError(c, err)
	}

	return c.JSON(fiber.Map{
		"message":     "Dispute opened. The transaction is on hold until a moderator resolves it.",
		"transaction": t,
		"dispute":     t.Dispute,
	})
}

// ReviewDispute marks the dispute as under review by the caller.
func ReviewDispute(c *fiber.Ctx) error {
	t, err := escrowService.ReviewDispute(c.Context(), actorFromCtx(c), c.Params("id"))
	if err != nil {
		return respondDomainError(c, err)
	}

	return c.JSON(fiber.Map{
		"message": "Dispute is now under review.",
		"dispute": t.Dispute,
	})
}

// ResolveDispute applies the moderator's award: release to the seller,
// refund to the buyer, or resume the transaction where it was parked.
func ResolveDispute(c *fiber.Ctx) error {
	req := new(ResolveDisputeRequest)
	if err := c.BodyParser(req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	if err := validate.Struct(req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "outcome must be release, refund or resume, and resolution is required",
		})
	}

	t, err := escrowService.ResolveDispute(c.Context(), actorFromCtx(c), c.Params("id"),
		escrow.DisputeOutcome(req.Outcome), req.Resolution)
	if err != nil {
		return respondDomainError(c, err)
	}

	return c.JSON(fiber.Map{
		"message":     "Dispute resolved.",
		"transaction": t,
		"dispute":     t.Dispute,
	})
}
