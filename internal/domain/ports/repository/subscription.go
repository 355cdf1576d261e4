package repository

import (
	"context"
	"time"

	"companion-billing/internal/domain/model"
)

// SubscriptionRepository persists subscription rows. Lifecycle updates and
// reward bookkeeping are separate writes so that Update can never move the
// reward accumulators.
type SubscriptionRepository interface {
	Create(ctx context.Context, tx Tx, s *model.Subscription) error
	// Update writes status, plan, period and cancel flag of s.
	Update(ctx context.Context, tx Tx, s *model.Subscription) error
	// RecordReward adds coins to total_coins_rewarded and, when rewardedEnd is
	// set, moves last_rewarded_period_end forward (never backward).
	RecordReward(ctx context.Context, tx Tx, id string, coins int64, rewardedEnd *time.Time) (*model.Subscription, error)

	FindByID(ctx context.Context, tx Tx, id string) (*model.Subscription, error)
	// FindLatestByPaymentSubscriptionID returns the most recent row for the processor id.
	FindLatestByPaymentSubscriptionID(ctx context.Context, tx Tx, paymentSubID string) (*model.Subscription, error)
	FindLatestByUser(ctx context.Context, tx Tx, userID string) (*model.Subscription, error)
	ListByUser(ctx context.Context, tx Tx, userID string) ([]*model.Subscription, error)
}

// SubscriptionHistoryRepository appends lifecycle audit rows.
type SubscriptionHistoryRepository interface {
	Append(ctx context.Context, tx Tx, h *model.SubscriptionHistory) error
	ListBySubscription(ctx context.Context, tx Tx, subscriptionID string) ([]*model.SubscriptionHistory, error)
}
