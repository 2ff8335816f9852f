package handlers

import (
	"github.com/gofiber/fiber/v2"
)

type SendMessageRequest struct {
	Body     string `json:"body" validate:"required,max=1000"`
	Internal bool   `json:"internal"`
}

// SendMessage appends a message to the transaction conversation. Internal
// notes are only accepted from the supervisor or an admin and stay hidden
// from the parties.
func SendMessage(c *fiber.Ctx) error {
	req := new(SendMessageRequest)
	if err := c.BodyParser(req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	if err := validate.Struct(req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "body is required and must be at most 1000 characters",
		})
	}

	msg, err := escrowService.SendMessage(c.Context(), actorFromCtx(c), c.Params("id"), req.Body, req.Internal)
	if err != nil {
		return respondDomainError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"message": "Message sent",
		"data":    msg,
	})
}

// GetMessages returns the conversation as visible to the caller.
func GetMessages(c *fiber.Ctx) error {
	messages, err := escrowService.Messages(c.Context(), actorFromCtx(c), c.Params("id"))
	if err != nil {
		return respondDomainError(c, err)
	}

	return c.JSON(fiber.Map{
		"messages": messages,
		"count":    len(messages),
	})
}
