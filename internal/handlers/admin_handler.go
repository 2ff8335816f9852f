package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"custodia/internal/database"
	"custodia/internal/models"
)

// GetPlatformStats returns transaction volume aggregates, optionally bounded
// by from/to dates (YYYY-MM-DD).
func GetPlatformStats(c *fiber.Ctx) error {
	var from, to *time.Time
	if v := c.Query("from"); v != "" {
		parsed, err := time.Parse("2006-01-02", v)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "from must be a YYYY-MM-DD date",
			})
		}
		from = &parsed
	}
	if v := c.Query("to"); v != "" {
		parsed, err := time.Parse("2006-01-02", v)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "to must be a YYYY-MM-DD date",
			})
		}
		end := parsed.AddDate(0, 0, 1)
		to = &end
	}

	stats, err := escrowService.Stats(c.Context(), actorFromCtx(c), from, to)
	if err != nil {
		return respondDomainError(c, err)
	}

	return c.JSON(fiber.Map{
		"stats": stats,
	})
}

// RunSweep forces an immediate timer sweep instead of waiting for the
// background interval.
func RunSweep(c *fiber.Ctx) error {
	swept, err := escrowService.SweepDue(c.Context(), c.QueryInt("limit", 200))
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Sweep failed",
		})
	}

	return c.JSON(fiber.Map{
		"message": "Sweep completed",
		"swept":   swept,
	})
}

// SuspendUser blocks an account from opening new transactions.
func SuspendUser(c *fiber.Ctx) error {
	var user models.User
	if err := database.DB.First(&user, c.Params("id")).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "User not found",
			})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Database error",
		})
	}

	if user.Role == models.RoleAdmin {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Admin accounts cannot be suspended",
		})
	}

	now := time.Now()
	user.IsSuspended = true
	user.SuspendedAt = &now
	if err := database.DB.Save(&user).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to suspend user",
		})
	}

	return c.JSON(fiber.Map{
		"message": "User suspended",
	})
}

// UnsuspendUser lifts a suspension.
func UnsuspendUser(c *fiber.Ctx) error {
	var user models.User
	if err := database.DB.First(&user, c.Params("id")).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "User not found",
			})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Database error",
		})
	}

	user.IsSuspended = false
	user.SuspendedAt = nil
	if err := database.DB.Save(&user).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to unsuspend user",
		})
	}

	return c.JSON(fiber.Map{
		"message": "User unsuspended",
	})
}

// ListDisputedTransactions returns the moderation queue, oldest dispute
// first.
func ListDisputedTransactions(c *fiber.Ctx) error {
	var records []models.EscrowRecord
	if err := database.DB.
		Where("status = ?", "disputed").
		Order("updated_at ASC").
		Limit(100).
		Find(&records).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to list disputed transactions",
		})
	}

	return c.JSON(fiber.Map{
		"transactions": records,
		"count":        len(records),
	})
}
