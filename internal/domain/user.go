package domain

import (
	"time"

	"github.com/google/uuid"
)

// User is the minimal identity the ledger needs: sellers own products and
// receive notifications, buyers optionally appear on sale records.
// Registration and authentication live outside this service.
type User struct {
	ID        uuid.UUID `json:"id" db:"id"`
	Email     string    `json:"email" db:"email"`
	Name      string    `json:"name" db:"name"`
	Role      string    `json:"role" db:"role"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}
