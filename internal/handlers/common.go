package handlers

import (
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"custodia/internal/escrow"
	"custodia/internal/services"
)

var validate = validator.New()

var escrowService *services.EscrowService

func InitEscrowService(svc *services.EscrowService) {
	escrowService = svc
}

// actorFromCtx rebuilds the acting user from the JWT claims the auth
// middleware stored in locals.
func actorFromCtx(c *fiber.Ctx) escrow.Actor {
	actor := escrow.Actor{ID: c.Locals("user_id").(uint)}
	if role, ok := c.Locals("role").(string); ok {
		actor.Admin = role == "admin"
	}
	return actor
}

// respondDomainError maps domain errors onto HTTP statuses. Anything not
// recognized is a plain 500 with no internals leaked.
func respondDomainError(c *fiber.Ctx, err error) error {
	var (
		vErr *escrow.ValidationError
		tErr *escrow.InvalidTransitionError
		pErr *escrow.PaymentFailedError
	)
	switch {
	case errors.Is(err, escrow.ErrNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Transaction not found",
		})
	case errors.Is(err, escrow.ErrForbidden):
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
			"error": "You are not allowed to perform this action",
		})
	case errors.As(err, &vErr):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": vErr.Error(),
			"field": vErr.Field,
		})
	case errors.As(err, &tErr):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"error":  tErr.Error(),
			"status": string(tErr.From),
		})
	case errors.As(err, &pErr):
		return c.Status(fiber.StatusPaymentRequired).JSON(fiber.Map{
			"error": pErr.Error(),
		})
	case errors.Is(err, escrow.ErrConcurrencyConflict):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"error": "The transaction changed underneath you, reload and retry",
		})
	default:
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Something went wrong",
		})
	}
}
