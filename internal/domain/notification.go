package domain

import (
	"time"

	"github.com/google/uuid"
)

// EmailType identifies why an email was queued.
type EmailType string

const (
	EmailTypeWelcome         EmailType = "WELCOME"
	EmailTypeAnalyticsReport EmailType = "ANALYTICS_REPORT"
	EmailTypeLowStock        EmailType = "LOW_STOCK"
)

// EmailStatus is the delivery state of a queued email. PENDING may become
// SENT or FAILED; SENT and FAILED are terminal. A failed job is never
// mutated back to pending, it can only be requeued as a new job.
type EmailStatus string

const (
	EmailStatusPending EmailStatus = "PENDING"
	EmailStatusSent    EmailStatus = "SENT"
	EmailStatusFailed  EmailStatus = "FAILED"
)

// EmailJob is a row in the email log: one queued outbound email and the
// outcome of its delivery attempts.
type EmailJob struct {
	ID             uuid.UUID   `json:"id" db:"id"`
	RecipientEmail string      `json:"recipient_email" db:"recipient_email"`
	RecipientID    *uuid.UUID  `json:"recipient_id,omitempty" db:"recipient_id"`
	Type           EmailType   `json:"email_type" db:"email_type"`
	Subject        string      `json:"subject" db:"subject"`
	Body           string      `json:"body" db:"body"`
	Status         EmailStatus `json:"status" db:"status"`
	ErrorMessage   string      `json:"error_message,omitempty" db:"error_message"`
	CreatedAt      time.Time   `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time   `json:"updated_at" db:"updated_at"`
}
