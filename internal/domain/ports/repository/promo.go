package repository

import (
	"context"

	"companion-billing/internal/domain/model"
)

type PromoRepository interface {
	Save(ctx context.Context, tx Tx, p *model.Promo) error
	FindByCoupon(ctx context.Context, tx Tx, coupon string) (*model.Promo, error)
	ListAll(ctx context.Context, tx Tx) ([]*model.Promo, error)
	IncrementApplied(ctx context.Context, tx Tx, promoID string) error
}

type PromoRedemptionRepository interface {
	Create(ctx context.Context, tx Tx, r *model.PromoRedemption) error
	// FindLatestPendingByUser locks and returns the user's newest pending redemption.
	FindLatestPendingByUser(ctx context.Context, tx Tx, userID string) (*model.PromoRedemption, error)
	MarkSuccess(ctx context.Context, tx Tx, id, orderID string) error
}
