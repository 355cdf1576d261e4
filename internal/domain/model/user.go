package model

import (
	"net/mail"
	"strings"
	"time"

	"companion-billing/internal/domain"

	"github.com/google/uuid"
)

// User is the account that owns subscriptions and a coin wallet.
// PaymentCustomerID is empty until the processor customer is created or linked.
type User struct {
	ID                string
	Email             string
	PaymentCustomerID string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

func NewUser(id, email string) (*User, error) {
	if id == "" {
		id = uuid.NewString()
	}
	email = NormalizeEmail(email)
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, domain.ErrInvalidArgument
	}
	now := time.Now().UTC()
	return &User{ID: id, Email: email, CreatedAt: now, UpdatedAt: now}, nil
}

func NormalizeEmail(email string) string { return strings.ToLower(strings.TrimSpace(email)) }
