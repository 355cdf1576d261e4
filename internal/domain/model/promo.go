package model

import (
	"strings"
	"time"

	"companion-billing/internal/domain"
)

const (
	PromoStatusActive   = "active"
	PromoStatusInactive = "inactive"
)

// Promo is a coupon managed in the catalog and mirrored by a processor
// promotion code.
type Promo struct {
	ID                string
	PromoName         string
	Coupon            string
	PercentOff        float64
	StartDate         *time.Time
	ExpiryDate        *time.Time
	Status            string
	AppliedCount      int64
	StripePromotionID string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// NormalizeCoupon upper-cases and trims a user supplied coupon code.
func NormalizeCoupon(code string) string { return strings.ToUpper(strings.TrimSpace(code)) }

// Redeemable checks status and the validity window at now.
func (p *Promo) Redeemable(now time.Time) error {
	if p == nil {
		return domain.ErrPromoInvalid
	}
	if p.Status != PromoStatusActive {
		return domain.ErrPromoInactive
	}
	if p.StartDate != nil && now.Before(*p.StartDate) {
		return domain.ErrPromoInactive
	}
	if p.ExpiryDate != nil && now.After(*p.ExpiryDate) {
		return domain.ErrPromoExpired
	}
	return nil
}

type RedemptionStatus string

const (
	RedemptionPending RedemptionStatus = "pending"
	RedemptionSuccess RedemptionStatus = "success"
)

// PromoRedemption is pre-created as pending when a checkout with a coupon is
// started and flipped to success by the checkout webhook.
type PromoRedemption struct {
	ID              string
	PromoID         string
	PromoCode       string
	UserID          string
	OrderID         string
	Status          RedemptionStatus
	DiscountApplied int64
	SubtotalAtApply int64
	Currency        string
	AppliedAt       time.Time
}
