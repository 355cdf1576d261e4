package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"companion-billing/internal/domain/model"
	"companion-billing/internal/domain/ports/repository"
	"companion-billing/internal/infra/metrics"
	red "companion-billing/internal/infra/redis"
)

var _ repository.PricingPlanRepository = (*planRepoCacheDecorator)(nil)

const plansAllKey = "pricing_plans:all"

// planRepoCacheDecorator caches catalog reads in redis. Lookups inside a
// transaction bypass the cache so reconciliation always sees committed rows.
type planRepoCacheDecorator struct {
	inner repository.PricingPlanRepository
	cache red.Cache
	ttl   time.Duration
	log   *zerolog.Logger
}

func NewPlanRepoCacheDecorator(inner repository.PricingPlanRepository, cache red.Cache, ttl time.Duration, logger *zerolog.Logger) repository.PricingPlanRepository {
	if ttl <= 0 {
		ttl = time.Hour
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &planRepoCacheDecorator{inner: inner, cache: cache, ttl: ttl, log: logger}
}

func planKey(pricingID string) string { return fmt.Sprintf("pricing_plan:%s", pricingID) }

func (d *planRepoCacheDecorator) FindByPricingID(ctx context.Context, tx repository.Tx, pricingID string) (*model.PricingPlan, error) {
	if tx != nil {
		return d.inner.FindByPricingID(ctx, tx, pricingID)
	}
	key := planKey(pricingID)
	val, err := d.cache.Get(ctx, key)
	if err == nil {
		var plan model.PricingPlan
		if json.Unmarshal([]byte(val), &plan) == nil {
			metrics.IncCacheRequest("pricing_plan", "hit")
			return &plan, nil
		}
	} else if !errors.Is(err, red.Nil) {
		d.log.Warn().Err(err).Str("key", key).Msg("plan cache read failed")
	}

	metrics.IncCacheRequest("pricing_plan", "miss")
	plan, err := d.inner.FindByPricingID(ctx, tx, pricingID)
	if err != nil {
		return nil, err
	}
	if b, err := json.Marshal(plan); err == nil {
		if err := d.cache.Set(ctx, key, b, d.ttl); err != nil {
			d.log.Warn().Err(err).Str("key", key).Msg("plan cache write failed")
		}
	}
	return plan, nil
}

func (d *planRepoCacheDecorator) FindByNameAndCycle(ctx context.Context, tx repository.Tx, name string, cycle model.BillingCycle) (*model.PricingPlan, error) {
	return d.inner.FindByNameAndCycle(ctx, tx, name, cycle)
}

// For write operations, we must invalidate the cache.
func (d *planRepoCacheDecorator) Save(ctx context.Context, tx repository.Tx, plan *model.PricingPlan) error {
	if err := d.inner.Save(ctx, tx, plan); err != nil {
		return err
	}
	if err := d.cache.Del(ctx, planKey(plan.PricingID), plansAllKey); err != nil {
		d.log.Warn().Err(err).Str("pricing_id", plan.PricingID).Msg("plan cache invalidation failed")
	}
	return nil
}

func (d *planRepoCacheDecorator) ListAll(ctx context.Context, tx repository.Tx) ([]*model.PricingPlan, error) {
	val, err := d.cache.Get(ctx, plansAllKey)
	if err == nil {
		var plans []*model.PricingPlan
		if json.Unmarshal([]byte(val), &plans) == nil {
			metrics.IncCacheRequest("pricing_plan_list", "hit")
			return plans, nil
		}
	}

	metrics.IncCacheRequest("pricing_plan_list", "miss")
	plans, err := d.inner.ListAll(ctx, tx)
	if err != nil {
		return nil, err
	}
	if len(plans) > 0 {
		if b, err := json.Marshal(plans); err == nil {
			_ = d.cache.Set(ctx, plansAllKey, b, d.ttl)
		}
	}
	return plans, nil
}
