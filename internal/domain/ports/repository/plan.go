package repository

import (
	"context"

	"companion-billing/internal/domain/model"
)

// PricingPlanRepository is the catalog lookup port.
type PricingPlanRepository interface {
	Save(ctx context.Context, tx Tx, p *model.PricingPlan) error
	FindByPricingID(ctx context.Context, tx Tx, pricingID string) (*model.PricingPlan, error)
	FindByNameAndCycle(ctx context.Context, tx Tx, name string, cycle model.BillingCycle) (*model.PricingPlan, error)
	ListAll(ctx context.Context, tx Tx) ([]*model.PricingPlan, error)
}
