package repository

import (
	"context"

	"companion-billing/internal/domain/model"
)

// UserRepository resolves billing identities to users.
type UserRepository interface {
	Save(ctx context.Context, tx Tx, u *model.User) error
	FindByID(ctx context.Context, tx Tx, id string) (*model.User, error)
	FindByEmail(ctx context.Context, tx Tx, email string) (*model.User, error)
	FindByPaymentCustomerID(ctx context.Context, tx Tx, customerID string) (*model.User, error)
	SetPaymentCustomerID(ctx context.Context, tx Tx, userID, customerID string) error
}
