// Package reward computes coin deltas for billing events. It performs no I/O;
// callers persist the resulting entries.
package reward

import (
	"math"
	"time"

	"companion-billing/internal/domain/model"
)

const day = 24 * time.Hour

type Kind string

const (
	KindInitial    Kind = "initial"
	KindRenewal    Kind = "renewal"
	KindPlanChange Kind = "plan_change"
	KindCoinPack   Kind = "coin_pack"
)

// Entry is a computed ledger delta. A zero Delta means nothing is written.
type Entry struct {
	Kind        Kind
	Delta       int64
	Description string
	PeriodStart *time.Time
	PeriodEnd   *time.Time
}

func (e Entry) Empty() bool { return e.Delta == 0 }

// Initial is the full, never prorated grant for a new subscription.
func Initial(plan *model.PricingPlan, period model.Period) Entry {
	return Entry{
		Kind:        KindInitial,
		Delta:       plan.CoinReward,
		Description: model.DescInitialReward,
		PeriodStart: timePtr(period.Start),
		PeriodEnd:   timePtr(period.End),
	}
}

// CoinPack is the unconditional grant for a one-time purchase.
func CoinPack(pack *model.PricingPlan) Entry {
	return Entry{Kind: KindCoinPack, Delta: pack.CoinReward, Description: model.DescCoinPackPurchase}
}

// IsRenewal reports whether newEnd starts a billing period that has not been
// rewarded yet: it must be later than the stored period end and later than
// the reward high-water mark. A nil storedEnd never counts as a renewal.
func IsRenewal(storedEnd, lastRewarded *time.Time, newEnd time.Time) bool {
	if storedEnd == nil || newEnd.IsZero() {
		return false
	}
	if !newEnd.After(*storedEnd) {
		return false
	}
	return lastRewarded == nil || newEnd.After(*lastRewarded)
}

// AdvancesPeriod reports whether newEnd is later than the stored period end,
// whether or not that period was already rewarded.
func AdvancesPeriod(storedEnd *time.Time, newEnd time.Time) bool {
	return storedEnd != nil && !newEnd.IsZero() && newEnd.After(*storedEnd)
}

// Renewal is the full grant for a newly started period. The caller moves
// last_rewarded_period_end to period.End when it persists the entry.
func Renewal(plan *model.PricingPlan, period model.Period) Entry {
	return Entry{
		Kind:        KindRenewal,
		Delta:       plan.CoinReward,
		Description: model.DescRenewalReward,
		PeriodStart: timePtr(period.Start),
		PeriodEnd:   timePtr(period.End),
	}
}

// RemainingRatio is the share of the period still ahead at now, in [0, 1].
// Days are whole 24h days; a period shorter than a day counts as one day.
func RemainingRatio(period model.Period, now time.Time) float64 {
	total := daysBetween(period.Start, period.End)
	if total < 1 {
		total = 1
	}
	elapsed := daysBetween(period.Start, now)
	ratio := float64(total-elapsed) / float64(total)
	switch {
	case ratio < 0:
		return 0
	case ratio > 1:
		return 1
	}
	return ratio
}

// PlanChange prorates the difference between two plans over the remaining
// part of the current period. The delta is negative for downgrades.
func PlanChange(oldPlan, newPlan *model.PricingPlan, period model.Period, now time.Time) Entry {
	ratio := RemainingRatio(period, now)
	delta := prorate(newPlan.CoinReward, ratio) - prorate(oldPlan.CoinReward, ratio)
	return Entry{
		Kind:        KindPlanChange,
		Delta:       delta,
		Description: model.DescPlanChange,
		PeriodStart: timePtr(period.Start),
		PeriodEnd:   timePtr(period.End),
	}
}

func prorate(coins int64, ratio float64) int64 {
	return int64(math.Round(float64(coins) * ratio))
}

func daysBetween(from, to time.Time) int64 {
	return int64(math.Floor(float64(to.Sub(from)) / float64(day)))
}

func timePtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	u := t.UTC()
	return &u
}
