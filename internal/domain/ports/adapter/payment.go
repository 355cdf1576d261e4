package adapter

import (
	"context"

	"companion-billing/internal/domain/model"
)

// CheckoutRequest describes a hosted checkout to open for a customer.
type CheckoutRequest struct {
	CustomerID        string
	PriceID           string
	Mode              model.CheckoutMode
	PromotionCodeID   string
	SuccessURL        string
	CancelURL         string
	ClientReferenceID string
	Metadata          map[string]string
}

type CheckoutSession struct {
	ID  string
	URL string
}

// ProcessorSubscription is the processor's current view of a subscription.
type ProcessorSubscription struct {
	ID                string
	CustomerID        string
	Status            model.SubscriptionStatus
	PriceID           string
	PlanName          string
	Period            model.Period
	CancelAtPeriodEnd bool
}

// BillingGateway is the hex port for the payment processor API.
type BillingGateway interface {
	Name() string
	CreateCustomer(ctx context.Context, email, userID string) (customerID string, err error)
	CreateCheckoutSession(ctx context.Context, req CheckoutRequest) (*CheckoutSession, error)
	GetSubscription(ctx context.Context, subscriptionID string) (*ProcessorSubscription, error)
}

// LedgerPublisher announces committed ledger entries to downstream consumers.
type LedgerPublisher interface {
	PublishLedgerEntries(ctx context.Context, entries []*model.CoinTransaction) error
	Close() error
}
