package model

import (
	"strings"
	"time"

	"companion-billing/internal/domain"
)

type BillingCycle string

const (
	BillingCycleMonthly BillingCycle = "monthly"
	BillingCycleYearly  BillingCycle = "yearly"
	BillingCycleOneTime BillingCycle = "one_time"
)

func (c BillingCycle) Valid() bool {
	switch c {
	case BillingCycleMonthly, BillingCycleYearly, BillingCycleOneTime:
		return true
	}
	return false
}

// Recurring reports whether the cycle is billed as a subscription.
func (c BillingCycle) Recurring() bool { return c == BillingCycleMonthly || c == BillingCycleYearly }

const (
	PlanStatusActive   = "active"
	PlanStatusInactive = "inactive"
)

// PricingPlan is a catalog entry for a subscription plan or a coin pack.
// PricingID is the processor's price identifier.
type PricingPlan struct {
	ID           string
	PlanName     string
	PricingID    string
	Currency     string
	PriceCents   int64
	BillingCycle BillingCycle
	CoinReward   int64
	Status       string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (p *PricingPlan) IsZero() bool { return p == nil || p.PricingID == "" }

func (p *PricingPlan) Active() bool { return p != nil && p.Status == PlanStatusActive }

// NewPricingPlan validates and constructs a catalog entry.
func NewPricingPlan(id, name, pricingID string, cycle BillingCycle, priceCents, coinReward int64) (*PricingPlan, error) {
	if id == "" || strings.TrimSpace(name) == "" || pricingID == "" || !cycle.Valid() || priceCents < 0 || coinReward < 0 {
		return nil, domain.ErrInvalidArgument
	}
	now := time.Now().UTC()
	return &PricingPlan{
		ID:           id,
		PlanName:     name,
		PricingID:    pricingID,
		Currency:     "USD",
		PriceCents:   priceCents,
		BillingCycle: cycle,
		CoinReward:   coinReward,
		Status:       PlanStatusActive,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}
