package model

import (
	"time"

	"companion-billing/internal/domain"

	"github.com/google/uuid"
)

type SubscriptionStatus string

const (
	SubscriptionStatusTrialing          SubscriptionStatus = "trialing"
	SubscriptionStatusActive            SubscriptionStatus = "active"
	SubscriptionStatusPastDue           SubscriptionStatus = "past_due"
	SubscriptionStatusCanceled          SubscriptionStatus = "canceled"
	SubscriptionStatusIncomplete        SubscriptionStatus = "incomplete"
	SubscriptionStatusIncompleteExpired SubscriptionStatus = "incomplete_expired"
	SubscriptionStatusUnpaid            SubscriptionStatus = "unpaid"
	SubscriptionStatusPaused            SubscriptionStatus = "paused"
)

// transitions lists the statuses reachable from each state. Staying in the
// same state is always allowed (plan changes keep a subscription active).
var transitions = map[SubscriptionStatus][]SubscriptionStatus{
	SubscriptionStatusIncomplete: {SubscriptionStatusActive, SubscriptionStatusTrialing, SubscriptionStatusIncompleteExpired, SubscriptionStatusCanceled},
	SubscriptionStatusTrialing:   {SubscriptionStatusActive, SubscriptionStatusPastDue, SubscriptionStatusCanceled, SubscriptionStatusUnpaid, SubscriptionStatusPaused},
	SubscriptionStatusActive:     {SubscriptionStatusPastDue, SubscriptionStatusCanceled, SubscriptionStatusUnpaid, SubscriptionStatusPaused},
	SubscriptionStatusPastDue:    {SubscriptionStatusActive, SubscriptionStatusCanceled, SubscriptionStatusUnpaid},
	SubscriptionStatusUnpaid:     {SubscriptionStatusActive, SubscriptionStatusCanceled},
	SubscriptionStatusPaused:     {SubscriptionStatusActive, SubscriptionStatusCanceled},
}

func (s SubscriptionStatus) Valid() bool {
	if s == SubscriptionStatusCanceled || s == SubscriptionStatusIncompleteExpired {
		return true
	}
	_, ok := transitions[s]
	return ok
}

// Terminal reports whether no further transitions or rewards are possible.
func (s SubscriptionStatus) Terminal() bool {
	return s == SubscriptionStatusCanceled || s == SubscriptionStatusIncompleteExpired
}

// CanTransition reports whether moving from s to next is a legal lifecycle step.
func (s SubscriptionStatus) CanTransition(next SubscriptionStatus) bool {
	if !next.Valid() {
		return false
	}
	if s == next {
		return !s.Terminal()
	}
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Subscription is a user's billing relationship with the payment processor.
// TotalCoinsRewarded and LastRewardedPeriodEnd are accumulators: they move only
// through reward bookkeeping, never through lifecycle updates.
type Subscription struct {
	ID                    string
	UserID                string
	PaymentCustomerID     string
	PaymentSubscriptionID string
	PriceID               string
	PlanName              string
	Status                SubscriptionStatus
	CurrentPeriodStart    *time.Time
	CurrentPeriodEnd      *time.Time
	CancelAtPeriodEnd     bool
	LastRewardedPeriodEnd *time.Time
	TotalCoinsRewarded    int64
	StartDate             time.Time
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

// Period is a billing period boundary pair as reported by the processor.
type Period struct {
	Start time.Time
	End   time.Time
}

func (p Period) IsZero() bool { return p.Start.IsZero() && p.End.IsZero() }

// NewSubscription builds the row created on a completed checkout. The first
// period end doubles as the reward high-water mark since the initial grant
// covers it.
func NewSubscription(userID, customerID, processorSubID, priceID, planName string, status SubscriptionStatus, period Period) (*Subscription, error) {
	if userID == "" || processorSubID == "" || !status.Valid() {
		return nil, domain.ErrInvalidArgument
	}
	now := time.Now().UTC()
	s := &Subscription{
		ID:                    uuid.NewString(),
		UserID:                userID,
		PaymentCustomerID:     customerID,
		PaymentSubscriptionID: processorSubID,
		PriceID:               priceID,
		PlanName:              planName,
		Status:                status,
		StartDate:             now,
		CreatedAt:             now,
		UpdatedAt:             now,
	}
	if !period.Start.IsZero() {
		start := period.Start.UTC()
		s.CurrentPeriodStart = &start
	}
	if !period.End.IsZero() {
		end := period.End.UTC()
		s.CurrentPeriodEnd = &end
		mark := end
		s.LastRewardedPeriodEnd = &mark
	}
	return s, nil
}

// SubscriptionChange carries the lifecycle fields an update event may set.
// Empty PriceID / PlanName keep the stored values.
type SubscriptionChange struct {
	Status            SubscriptionStatus
	PriceID           string
	PlanName          string
	Period            Period
	CancelAtPeriodEnd bool
}

// Apply returns a copy of s with the change applied. Reward accumulators are
// carried over untouched.
func (s *Subscription) Apply(c SubscriptionChange) (*Subscription, error) {
	if s == nil {
		return nil, domain.ErrInvalidArgument
	}
	if s.Status.Terminal() {
		return nil, domain.ErrSubscriptionTerminal
	}
	if !s.Status.CanTransition(c.Status) {
		return nil, domain.ErrInvalidTransition
	}
	cp := *s
	cp.Status = c.Status
	if c.PriceID != "" {
		cp.PriceID = c.PriceID
	}
	if c.PlanName != "" {
		cp.PlanName = c.PlanName
	}
	if !c.Period.Start.IsZero() {
		start := c.Period.Start.UTC()
		cp.CurrentPeriodStart = &start
	}
	if !c.Period.End.IsZero() {
		end := c.Period.End.UTC()
		cp.CurrentPeriodEnd = &end
	}
	cp.CancelAtPeriodEnd = c.CancelAtPeriodEnd
	cp.UpdatedAt = time.Now().UTC()
	return &cp, nil
}

// Rewardable reports whether coins may still be granted against s.
func (s *Subscription) Rewardable() bool {
	return s != nil && s.Status == SubscriptionStatusActive
}

type SubscriptionAction string

const (
	SubscriptionActionCreated       SubscriptionAction = "created"
	SubscriptionActionRenewed       SubscriptionAction = "renewed"
	SubscriptionActionUpgraded      SubscriptionAction = "upgraded"
	SubscriptionActionDowngraded    SubscriptionAction = "downgraded"
	SubscriptionActionStatusChanged SubscriptionAction = "status_changed"
	SubscriptionActionCanceled      SubscriptionAction = "canceled"
	SubscriptionActionUpdated       SubscriptionAction = "updated"
)

// SubscriptionHistory is an append-only record of a lifecycle step.
type SubscriptionHistory struct {
	ID             int64
	SubscriptionID string
	UserID         string
	Action         SubscriptionAction
	FromStatus     SubscriptionStatus
	ToStatus       SubscriptionStatus
	PriceID        string
	PeriodEnd      *time.Time
	EventID        string
	CreatedAt      time.Time
}
