// File: internal/usecase/subscription_uc.go
package usecase

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"companion-billing/internal/domain"
	"companion-billing/internal/domain/model"
	"companion-billing/internal/domain/ports/repository"
	"companion-billing/internal/infra/logging"
)

// SubscriptionUseCase exposes read access to a user's subscriptions.
type SubscriptionUseCase interface {
	// Status returns the user's most recent subscription.
	Status(ctx context.Context, userID string) (*model.Subscription, error)
	List(ctx context.Context, userID string) ([]*model.Subscription, error)
	History(ctx context.Context, subscriptionID string) ([]*model.SubscriptionHistory, error)
}

var _ SubscriptionUseCase = (*subscriptionUC)(nil)

type subscriptionUC struct {
	subs    repository.SubscriptionRepository
	history repository.SubscriptionHistoryRepository
	log     *zerolog.Logger
}

func NewSubscriptionUseCase(subs repository.SubscriptionRepository, history repository.SubscriptionHistoryRepository, logger *zerolog.Logger) *subscriptionUC {
	return &subscriptionUC{subs: subs, history: history, log: logger}
}

func (u *subscriptionUC) Status(ctx context.Context, userID string) (*model.Subscription, error) {
	defer logging.TraceDuration(u.log, "SubscriptionUC.Status")()
	if userID == "" {
		return nil, domain.ErrInvalidArgument
	}
	return u.subs.FindLatestByUser(ctx, repository.NoTX, userID)
}

func (u *subscriptionUC) List(ctx context.Context, userID string) ([]*model.Subscription, error) {
	if userID == "" {
		return nil, domain.ErrInvalidArgument
	}
	return u.subs.ListByUser(ctx, repository.NoTX, userID)
}

func (u *subscriptionUC) History(ctx context.Context, subscriptionID string) ([]*model.SubscriptionHistory, error) {
	if subscriptionID == "" {
		return nil, domain.ErrInvalidArgument
	}
	return u.history.ListBySubscription(ctx, repository.NoTX, subscriptionID)
}

// subscriptionRecords keeps subscription rows and their history trail in step.
// Every call runs inside the reconciliation transaction.
type subscriptionRecords struct {
	subs    repository.SubscriptionRepository
	history repository.SubscriptionHistoryRepository
}

func (r *subscriptionRecords) create(ctx context.Context, tx repository.Tx, s *model.Subscription, eventID string) error {
	if err := r.subs.Create(ctx, tx, s); err != nil {
		return err
	}
	return r.history.Append(ctx, tx, &model.SubscriptionHistory{
		SubscriptionID: s.ID,
		UserID:         s.UserID,
		Action:         model.SubscriptionActionCreated,
		ToStatus:       s.Status,
		PriceID:        s.PriceID,
		PeriodEnd:      s.CurrentPeriodEnd,
		EventID:        eventID,
		CreatedAt:      time.Now().UTC(),
	})
}

// locate finds the row for a processor subscription id and falls back to the
// user's latest row when the id is unknown. A nil result means not found.
func (r *subscriptionRecords) locate(ctx context.Context, tx repository.Tx, processorSubID, userID string) (*model.Subscription, error) {
	if processorSubID != "" {
		s, err := r.subs.FindLatestByPaymentSubscriptionID(ctx, tx, processorSubID)
		switch {
		case err == nil:
			return s, nil
		case !isNotFound(err):
			return nil, err
		}
	}
	if userID == "" {
		return nil, nil
	}
	s, err := r.subs.FindLatestByUser(ctx, tx, userID)
	if isNotFound(err) {
		return nil, nil
	}
	return s, err
}

func (r *subscriptionRecords) update(ctx context.Context, tx repository.Tx, prev, next *model.Subscription, action model.SubscriptionAction, eventID string) error {
	if err := r.subs.Update(ctx, tx, next); err != nil {
		return err
	}
	return r.history.Append(ctx, tx, &model.SubscriptionHistory{
		SubscriptionID: next.ID,
		UserID:         next.UserID,
		Action:         action,
		FromStatus:     prev.Status,
		ToStatus:       next.Status,
		PriceID:        next.PriceID,
		PeriodEnd:      next.CurrentPeriodEnd,
		EventID:        eventID,
		CreatedAt:      time.Now().UTC(),
	})
}

func (r *subscriptionRecords) recordReward(ctx context.Context, tx repository.Tx, id string, coins int64, rewardedEnd *time.Time) (*model.Subscription, error) {
	return r.subs.RecordReward(ctx, tx, id, coins, rewardedEnd)
}

func isNotFound(err error) bool {
	return errors.Is(err, domain.ErrNotFound) ||
		errors.Is(err, domain.ErrUserNotFound) ||
		errors.Is(err, domain.ErrSubscriptionNotFound) ||
		errors.Is(err, domain.ErrWalletNotFound)
}
