// File: internal/usecase/catalog_uc.go
package usecase

import (
	"context"

	"github.com/rs/zerolog"

	"companion-billing/internal/domain"
	"companion-billing/internal/domain/model"
	"companion-billing/internal/domain/ports/repository"
)

// CatalogUseCase manages pricing plans and promos.
type CatalogUseCase interface {
	Plans(ctx context.Context) ([]*model.PricingPlan, error)
	Promos(ctx context.Context) ([]*model.Promo, error)
	SavePlan(ctx context.Context, p *model.PricingPlan) error
	SavePromo(ctx context.Context, p *model.Promo) error
}

var _ CatalogUseCase = (*catalogUC)(nil)

type catalogUC struct {
	plans  repository.PricingPlanRepository
	promos repository.PromoRepository
	log    *zerolog.Logger
}

func NewCatalogUseCase(plans repository.PricingPlanRepository, promos repository.PromoRepository, logger *zerolog.Logger) *catalogUC {
	return &catalogUC{plans: plans, promos: promos, log: logger}
}

// Plans lists active plans only.
func (u *catalogUC) Plans(ctx context.Context) ([]*model.PricingPlan, error) {
	all, err := u.plans.ListAll(ctx, repository.NoTX)
	if err != nil {
		return nil, err
	}
	out := make([]*model.PricingPlan, 0, len(all))
	for _, p := range all {
		if p.Active() {
			out = append(out, p)
		}
	}
	return out, nil
}

func (u *catalogUC) Promos(ctx context.Context) ([]*model.Promo, error) {
	return u.promos.ListAll(ctx, repository.NoTX)
}

func (u *catalogUC) SavePlan(ctx context.Context, p *model.PricingPlan) error {
	if p.IsZero() || !p.BillingCycle.Valid() || p.CoinReward < 0 {
		return domain.ErrInvalidArgument
	}
	if err := u.plans.Save(ctx, repository.NoTX, p); err != nil {
		return err
	}
	u.log.Info().Str("price_id", p.PricingID).Int64("coin_reward", p.CoinReward).Msg("pricing plan saved")
	return nil
}

func (u *catalogUC) SavePromo(ctx context.Context, p *model.Promo) error {
	if p == nil || p.Coupon == "" {
		return domain.ErrInvalidArgument
	}
	p.Coupon = model.NormalizeCoupon(p.Coupon)
	return u.promos.Save(ctx, repository.NoTX, p)
}
