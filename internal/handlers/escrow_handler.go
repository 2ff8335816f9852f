package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"custodia/internal/database"
	"custodia/internal/escrow"
	"custodia/internal/models"
	"custodia/internal/store"
)

type CreateEscrowRequest struct {
	SellerTag      string  `json:"seller_tag" validate:"required"`
	Title          string  `json:"title" validate:"required,max=200"`
	Description    string  `json:"description" validate:"required,max=2000"`
	Category       string  `json:"category" validate:"required"`
	Condition      string  `json:"condition" validate:"required"`
	EstimatedValue float64 `json:"estimated_value" validate:"required,gte=100"`

	Price           float64                `json:"price" validate:"required,gte=100"`
	Currency        string                 `json:"currency"`
	DeliveryMethod  string                 `json:"delivery_method" validate:"required"`
	DeliveryAddress escrow.DeliveryAddress `json:"delivery_address"`
	InspectionDays  int                    `json:"inspection_days" validate:"omitempty,min=1,max=30"`
}

type PayEscrowRequest struct {
	PaymentMethod string `json:"payment_method" validate:"required"`
}

type ShipEscrowRequest struct {
	TrackingNumber string `json:"tracking_number" validate:"required"`
	Carrier        string `json:"carrier"`
}

type InspectionNotesRequest struct {
	Notes  string   `json:"notes"`
	Photos []string `json:"photos"`
}

type SearchUserRequest struct {
	UserTag string `json:"user_tag" validate:"required"`
}

// SearchUserByTag looks up a counterpart by their tag before opening a
// transaction with them.
func SearchUserByTag(c *fiber.Ctx) error {
	req := new(SearchUserRequest)
	if err := c.BodyParser(req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	if err := validate.Struct(req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "user_tag is required",
		})
	}

	userID := c.Locals("user_id").(uint)

	var user models.User
	if err := database.DB.Where("user_tag = ?", req.UserTag).First(&user).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "User not found",
			})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Database error",
		})
	}

	if user.ID == userID {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "You cannot open an escrow transaction with yourself",
		})
	}

	return c.JSON(fiber.Map{
		"user": fiber.Map{
			"id":    user.ID,
			"name":  user.FullName,
			"tag":   user.UserTag,
			"email": user.Email,
		},
	})
}

// CreateEscrow opens a new transaction with the authenticated user as buyer.
func CreateEscrow(c *fiber.Ctx) error {
	req := new(CreateEscrowRequest)
	if err := c.BodyParser(req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	if err := validate.Struct(req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	actor := actorFromCtx(c)

	var seller models.User
	if err := database.DB.Where("user_tag = ?", req.SellerTag).First(&seller).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "Seller not found",
			})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Database error",
		})
	}
	if seller.IsSuspended {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "This seller cannot receive new transactions",
		})
	}

	t, err := escrowService.Create(c.Context(), actor, escrow.NewTransactionParams{
		BuyerID:  actor.ID,
		SellerID: seller.ID,
		Item: escrow.Item{
			Title:          req.Title,
			Description:    req.Description,
			Category:       escrow.Category(req.Category),
			Condition:      escrow.Condition(req.Condition),
			EstimatedValue: req.EstimatedValue,
		},
		Price:           req.Price,
		Currency:        escrow.Currency(req.Currency),
		DeliveryMethod:  escrow.DeliveryMethod(req.DeliveryMethod),
		DeliveryAddress: req.DeliveryAddress,
		InspectionDays:  req.InspectionDays,
	})
	if err != nil {
		return respondDomainError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"message":     "Escrow transaction created. Waiting for the seller to accept the terms.",
		"transaction": t,
	})
}

// GetEscrow returns one transaction as visible to the caller.
func GetEscrow(c *fiber.Ctx) error {
	t, err := escrowService.Get(c.Context(), actorFromCtx(c), c.Params("id"))
	if err != nil {
		return respondDomainError(c, err)
	}

	return c.JSON(fiber.Map{
		"transaction":               t,
		"inspection_days_remaining": t.InspectionDaysRemaining(time.Now()),
	})
}

// ListEscrows returns the caller's transactions, filterable by status and
// category.
func ListEscrows(c *fiber.Ctx) error {
	filters := store.ListFilters{
		Status:   escrow.Status(c.Query("status")),
		Category: escrow.Category(c.Query("category")),
		Page:     c.QueryInt("page", 1),
		PageSize: c.QueryInt("page_size", 20),
	}

	list, total, err := escrowService.List(c.Context(), actorFromCtx(c), filters)
	if err != nil {
		return respondDomainError(c, err)
	}

	return c.JSON(fiber.Map{
		"transactions": list,
		"count":        len(list),
		"total":        total,
		"page":         filters.Page,
	})
}

// AcceptEscrow is the seller accepting the proposed terms.
func AcceptEscrow(c *fiber.Ctx) error {
	t, err := escrowService.AcceptTerms(c.Context(), actorFromCtx(c), c.Params("id"))
	if err != nil {
		return respondDomainError(c, err)
	}

	return c.JSON(fiber.Map{
		"message":     "Terms accepted. Waiting for the buyer to pay into escrow.",
		"transaction": t,
	})
}

// PayEscrow charges the buyer and moves the funds into custody.
func PayEscrow(c *fiber.Ctx) error {
	req := new(PayEscrowRequest)
	if err := c.BodyParser(req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	if err := validate.Struct(req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "payment_method is required",
		})
	}

	t, err := escrowService.Pay(c.Context(), actorFromCtx(c), c.Params("id"), escrow.PaymentMethod(req.PaymentMethod))
	if err != nil {
		return respondDomainError(c, err)
	}

	return c.JSON(fiber.Map{
		"message":     "Payment received. Funds are held in escrow until both parties approve.",
		"transaction": t,
	})
}

// ShipEscrow records the seller's dispatch of the item.
func ShipEscrow(c *fiber.Ctx) error {
	req := new(ShipEscrowRequest)
	if err := c.BodyParser(req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	if err := validate.Struct(req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "tracking_number is required",
		})
	}

	t, err := escrowService.Ship(c.Context(), actorFromCtx(c), c.Params("id"), req.TrackingNumber, req.Carrier)
	if err != nil {
		return respondDomainError(c, err)
	}

	return c.JSON(fiber.Map{
		"message":     "Shipment recorded. Waiting for the buyer to confirm delivery.",
		"transaction": t,
	})
}

// ConfirmDelivery is the buyer confirming receipt, opening the inspection
// window.
func ConfirmDelivery(c *fiber.Ctx) error {
	t, err := escrowService.ConfirmDelivery(c.Context(), actorFromCtx(c), c.Params("id"))
	if err != nil {
		return respondDomainError(c, err)
	}

	return c.JSON(fiber.Map{
		"message":                   "Delivery confirmed. The inspection period has started.",
		"transaction":               t,
		"inspection_days_remaining": t.InspectionDaysRemaining(time.Now()),
	})
}

// ApproveEscrow records the caller's consent to release the funds.
func ApproveEscrow(c *fiber.Ctx) error {
	t, err := escrowService.Approve(c.Context(), actorFromCtx(c), c.Params("id"))
	if err != nil {
		return respondDomainError(c, err)
	}

	message := "Approval recorded. Waiting for the other party."
	if t.Status == escrow.StatusTransactionCompleted || t.Status == escrow.StatusFundsReleased {
		message = "Both parties approved. Funds have been released to the seller."
	}

	return c.JSON(fiber.Map{
		"message":     message,
		"transaction": t,
	})
}

// CancelEscrow aborts the transaction before funds enter custody.
func CancelEscrow(c *fiber.Ctx) error {
	t, err := escrowService.Cancel(c.Context(), actorFromCtx(c), c.Params("id"))
	if err != nil {
		return respondDomainError(c, err)
	}

	return c.JSON(fiber.Map{
		"message":     "Transaction cancelled.",
		"transaction": t,
	})
}

// RecordInspectionNotes stores the caller's inspection findings while the
// window is open.
func RecordInspectionNotes(c *fiber.Ctx) error {
	req := new(InspectionNotesRequest)
	if err := c.BodyParser(req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	t, err := escrowService.RecordInspectionNotes(c.Context(), actorFromCtx(c), c.Params("id"), req.Notes, req.Photos)
	if err != nil {
		return respondDomainError(c, err)
	}

	return c.JSON(fiber.Map{
		"message":     "Inspection notes recorded.",
		"transaction": t,
	})
}
