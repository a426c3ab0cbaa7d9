package notification

import (
	"fmt"
	"time"

	"storeledger/internal/domain"

	"github.com/google/uuid"
)

// newJob builds a PENDING email job addressed to a user.
func newJob(recipient *domain.User, emailType domain.EmailType, subject, body string) *domain.EmailJob {
	now := time.Now().UTC()
	recipientID := recipient.ID
	return &domain.EmailJob{
		ID:             uuid.New(),
		RecipientEmail: recipient.Email,
		RecipientID:    &recipientID,
		Type:           emailType,
		Subject:        subject,
		Body:           body,
		Status:         domain.EmailStatusPending,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// ComposeLowStockAlert builds the alert queued when a sale crosses the
// low-stock threshold.
func ComposeLowStockAlert(seller *domain.User, product *domain.Product, remaining, threshold int) *domain.EmailJob {
	subject := "Low Stock Alert - Action Required"
	body := fmt.Sprintf(
		"Hi %s,\n\n"+
			"Your product is running low on stock:\n\n"+
			"- %s: %d left (SKU: %s)\n\n"+
			"The configured low-stock level is %d units. "+
			"Please consider restocking to avoid missed sales opportunities.\n\n"+
			"Best regards,\nYour E-Commerce Platform",
		seller.Name, product.Name, remaining, product.SKU, threshold,
	)
	return newJob(seller, domain.EmailTypeLowStock, subject, body)
}

// ComposeWelcome builds the email queued by the registration flow for a new
// account.
func ComposeWelcome(user *domain.User) *domain.EmailJob {
	subject := "Welcome to Our E-Commerce Platform"
	body := fmt.Sprintf(
		"Hi %s,\n\n"+
			"Welcome to our e-commerce platform! Your %s account has been successfully created.\n\n"+
			"Start browsing our products and enjoy your shopping experience!\n\n"+
			"Best regards,\nThe E-Commerce Team",
		user.Name, user.Role,
	)
	return newJob(user, domain.EmailTypeWelcome, subject, body)
}

// ComposeAnalyticsReport builds the scheduled per-seller performance report.
func ComposeAnalyticsReport(seller *domain.User, snapshot *domain.AnalyticsSnapshot) *domain.EmailJob {
	subject := fmt.Sprintf("Your Sales Report for %s", snapshot.WindowStart.Format("2006-01-02"))

	body := fmt.Sprintf(
		"Hi %s,\n\n"+
			"Here is your performance summary for %s to %s:\n\n"+
			"- Units sold: %d\n"+
			"- Revenue: %s\n"+
			"- Sales: %d\n"+
			"- Distinct buyers: %d\n",
		seller.Name,
		snapshot.WindowStart.Format("2006-01-02"),
		snapshot.WindowEnd.Format("2006-01-02"),
		snapshot.UnitsSold,
		snapshot.Revenue.StringFixed(2),
		snapshot.SaleCount,
		snapshot.DistinctBuyers,
	)

	if len(snapshot.TopProducts) > 0 {
		body += "\nTop products:\n"
		for i, p := range snapshot.TopProducts {
			body += fmt.Sprintf("%d. %s - %d units\n", i+1, p.Name, p.UnitsSold)
		}
	}

	body += "\nBest regards,\nYour E-Commerce Platform"
	return newJob(seller, domain.EmailTypeAnalyticsReport, subject, body)
}
