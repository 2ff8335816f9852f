package services

import (
	"fmt"
	"log"
	"os"

	"github.com/resend/resend-go/v2"
	"gorm.io/gorm"

	"custodia/internal/models"
)

type EmailService struct {
	Client *resend.Client
	From   string
	db     *gorm.DB
}

func NewEmailService(db *gorm.DB) *EmailService {
	apiKey := os.Getenv("RESEND_API_KEY")
	fromEmail := os.Getenv("FROM_EMAIL")

	if apiKey == "" {
		log.Printf("WARNING: RESEND_API_KEY is empty, transaction emails disabled")
		return nil
	}
	if fromEmail == "" {
		fromEmail = "notificaciones@custodia.mx"
	}
	log.Printf("email service initialized (resend, from %s, key %s)", fromEmail, maskAPIKey(apiKey))

	return &EmailService{
		Client: resend.NewClient(apiKey),
		From:   fromEmail,
		db:     db,
	}
}

// Helper function to mask API key for logging
func maskAPIKey(key string) string {
	if len(key) < 8 {
		return "***"
	}
	return key[:4] + "****" + key[len(key)-4:]
}

// SendTransactionEmail mirrors an in-app notification to the user's inbox.
// Email delivery is best effort: failures are logged and never bubble up
// into the transaction flow.
func (es *EmailService) SendTransactionEmail(userID uint, subject, body string) {
	var user models.User
	if err := es.db.First(&user, userID).Error; err != nil {
		log.Printf("email: lookup user %d: %v", userID, err)
		return
	}

	html := fmt.Sprintf(`
<!DOCTYPE html>
<html>
<head>
    <style>
        body { font-family: Arial, sans-serif; line-height: 1.6; color: #333; }
        .container { max-width: 600px; margin: 0 auto; padding: 20px; }
        .card { background-color: #f4f4f4; border-left: 4px solid #0a7d4f; padding: 20px; margin: 20px 0; border-radius: 5px; }
        .footer { margin-top: 30px; font-size: 12px; color: #666; }
    </style>
</head>
<body>
    <div class="container">
        <h2>%s</h2>
        <div class="card"><p>%s</p></div>
        <p>Sign in to Custodia to see the full transaction details.</p>
        <div class="footer">
            <p>This is an automated message, please do not reply.</p>
        </div>
    </div>
</body>
</html>
	`, subject, body)

	params := &resend.SendEmailRequest{
		From:    es.From,
		To:      []string{user.Email},
		Subject: "Custodia - " + subject,
		Html:    html,
	}

	sent, err := es.Client.Emails.Send(params)
	if err != nil {
		log.Printf("email: send to %s: %v", user.Email, err)
		return
	}
	log.Printf("email sent to %s (id %s)", user.Email, sent.Id)
}
