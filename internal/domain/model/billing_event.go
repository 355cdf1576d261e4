package model

import "time"

// BillingEvent is a processor notification the reconciliation core acts on.
// The set of implementations is closed: CheckoutCompleted,
// SubscriptionUpdated and SubscriptionDeleted.
type BillingEvent interface {
	EventID() string
	Kind() EventKind
	// SubscriptionKey is the processor subscription id (or the checkout
	// session id for one-time purchases) used to serialize reconciliation.
	SubscriptionKey() string
	billingEvent()
}

type EventKind string

const (
	EventCheckoutCompleted   EventKind = "checkout_completed"
	EventSubscriptionUpdated EventKind = "subscription_updated"
	EventSubscriptionDeleted EventKind = "subscription_deleted"
)

type CheckoutMode string

const (
	CheckoutModeSubscription CheckoutMode = "subscription"
	CheckoutModePayment      CheckoutMode = "payment"
)

// EventMeta holds the envelope fields shared by every variant.
type EventMeta struct {
	ID         string
	ReceivedAt time.Time
	CreatedAt  time.Time
}

func (m EventMeta) EventID() string { return m.ID }

// CheckoutCompleted is a finished checkout session. For subscription mode the
// plan and period come from the processor subscription it created; for
// payment mode PriceID identifies the coin pack bought.
type CheckoutCompleted struct {
	EventMeta
	SessionID      string
	Mode           CheckoutMode
	CustomerID     string
	Email          string
	SubscriptionID string
	PriceID        string
	PlanName       string
	Status         SubscriptionStatus
	Period         Period
	AmountDiscount int64
	AmountSubtotal int64
	ClientRef      string
}

func (CheckoutCompleted) Kind() EventKind { return EventCheckoutCompleted }
func (CheckoutCompleted) billingEvent()   {}
func (e CheckoutCompleted) SubscriptionKey() string {
	if e.SubscriptionID != "" {
		return e.SubscriptionID
	}
	return e.SessionID
}

// SubscriptionUpdated carries the processor's current view of a subscription.
type SubscriptionUpdated struct {
	EventMeta
	CustomerID        string
	Email             string
	SubscriptionID    string
	PriceID           string
	PlanName          string
	Status            SubscriptionStatus
	Period            Period
	CancelAtPeriodEnd bool
}

func (SubscriptionUpdated) Kind() EventKind           { return EventSubscriptionUpdated }
func (SubscriptionUpdated) billingEvent()             {}
func (e SubscriptionUpdated) SubscriptionKey() string { return e.SubscriptionID }

// SubscriptionDeleted is the final notification for a subscription; the
// processor reports it with status canceled.
type SubscriptionDeleted struct {
	EventMeta
	CustomerID        string
	Email             string
	SubscriptionID    string
	PriceID           string
	PlanName          string
	Status            SubscriptionStatus
	Period            Period
	CancelAtPeriodEnd bool
}

func (SubscriptionDeleted) Kind() EventKind           { return EventSubscriptionDeleted }
func (SubscriptionDeleted) billingEvent()             {}
func (e SubscriptionDeleted) SubscriptionKey() string { return e.SubscriptionID }

// WebhookEventRecord is the dedupe/audit row for an inbound processor event.
type WebhookEventRecord struct {
	ID              string
	Provider        string
	ProviderEventID string
	EventType       string
	Outcome         string
	ProcessingError string
	ReceivedAt      time.Time
	ProcessedAt     *time.Time
}

type ReconcileOutcome string

const (
	OutcomeApplied    ReconcileOutcome = "applied"
	OutcomeNoChange   ReconcileOutcome = "no_change"
	OutcomeDuplicate  ReconcileOutcome = "duplicate"
	OutcomeUnresolved ReconcileOutcome = "unresolved"
	OutcomeIgnored    ReconcileOutcome = "ignored"
)

// ReconcileResult summarizes what one event did. Every outcome is an
// acknowledgement; failures are reported as errors instead.
type ReconcileResult struct {
	EventID        string
	Kind           EventKind
	Outcome        ReconcileOutcome
	Reason         string
	UserID         string
	SubscriptionID string
	Delta          int64
	Balance        int64
	Entries        []*CoinTransaction
}
