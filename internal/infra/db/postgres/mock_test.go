//go:build !integration

package postgres

import (
	"context"
	"time"

	"companion-billing/internal/domain/model"
	"companion-billing/internal/domain/ports/repository"
	red "companion-billing/internal/infra/redis"
)

// --- Mocks for Cache Decorator Tests ---

// mockInnerPlanRepo mocks the database repository that the plan decorator wraps.
type mockInnerPlanRepo struct {
	SaveFunc               func(ctx context.Context, tx repository.Tx, p *model.PricingPlan) error
	FindByPricingIDFunc    func(ctx context.Context, tx repository.Tx, pricingID string) (*model.PricingPlan, error)
	FindByNameAndCycleFunc func(ctx context.Context, tx repository.Tx, name string, cycle model.BillingCycle) (*model.PricingPlan, error)
	ListAllFunc            func(ctx context.Context, tx repository.Tx) ([]*model.PricingPlan, error)
}

func (m *mockInnerPlanRepo) Save(ctx context.Context, tx repository.Tx, p *model.PricingPlan) error {
	return m.SaveFunc(ctx, tx, p)
}
func (m *mockInnerPlanRepo) FindByPricingID(ctx context.Context, tx repository.Tx, pricingID string) (*model.PricingPlan, error) {
	return m.FindByPricingIDFunc(ctx, tx, pricingID)
}
func (m *mockInnerPlanRepo) FindByNameAndCycle(ctx context.Context, tx repository.Tx, name string, cycle model.BillingCycle) (*model.PricingPlan, error) {
	return m.FindByNameAndCycleFunc(ctx, tx, name, cycle)
}
func (m *mockInnerPlanRepo) ListAll(ctx context.Context, tx repository.Tx) ([]*model.PricingPlan, error) {
	return m.ListAllFunc(ctx, tx)
}

// mockRedisClient mocks the cache side of the redis client.
type mockRedisClient struct {
	GetFunc func(ctx context.Context, key string) (string, error)
	SetFunc func(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	DelFunc func(ctx context.Context, keys ...string) error
}

var _ red.Cache = &mockRedisClient{}

func (m *mockRedisClient) Get(ctx context.Context, key string) (string, error) {
	return m.GetFunc(ctx, key)
}
func (m *mockRedisClient) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	return m.SetFunc(ctx, key, value, expiration)
}
func (m *mockRedisClient) Del(ctx context.Context, keys ...string) error {
	return m.DelFunc(ctx, keys...)
}
