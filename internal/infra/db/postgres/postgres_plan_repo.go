package postgres

import (
	"context"
	"fmt"

	"companion-billing/internal/domain"
	"companion-billing/internal/domain/model"
	"companion-billing/internal/domain/ports/repository"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
)

// Ensure interface compliance
var _ repository.PricingPlanRepository = (*PostgresPlanRepo)(nil)

type PostgresPlanRepo struct {
	pool *pgxpool.Pool
}

func NewPostgresPlanRepo(pool *pgxpool.Pool) *PostgresPlanRepo {
	return &PostgresPlanRepo{pool: pool}
}

const planColumns = `id, plan_name, pricing_id, currency, price_cents, billing_cycle, coin_reward, status, created_at, updated_at`

func (r *PostgresPlanRepo) Save(ctx context.Context, tx repository.Tx, plan *model.PricingPlan) error {
	const sql = `
INSERT INTO pricing_plans (` + planColumns + `)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
ON CONFLICT (id) DO UPDATE
  SET plan_name     = EXCLUDED.plan_name,
      pricing_id    = EXCLUDED.pricing_id,
      currency      = EXCLUDED.currency,
      price_cents   = EXCLUDED.price_cents,
      billing_cycle = EXCLUDED.billing_cycle,
      coin_reward   = EXCLUDED.coin_reward,
      status        = EXCLUDED.status,
      updated_at    = now();
`
	_, err := execSQL(ctx, r.pool, tx, sql,
		plan.ID, plan.PlanName, plan.PricingID, plan.Currency, plan.PriceCents,
		string(plan.BillingCycle), plan.CoinReward, plan.Status, plan.CreatedAt, plan.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrAlreadyExists
		}
		return fmt.Errorf("Save plan: %w", err)
	}
	return nil
}

func (r *PostgresPlanRepo) FindByPricingID(ctx context.Context, tx repository.Tx, pricingID string) (*model.PricingPlan, error) {
	row, err := queryRow(ctx, r.pool, tx, `SELECT `+planColumns+` FROM pricing_plans WHERE pricing_id = $1`, pricingID)
	if err != nil {
		return nil, err
	}
	return scanPlan(row)
}

func (r *PostgresPlanRepo) FindByNameAndCycle(ctx context.Context, tx repository.Tx, name string, cycle model.BillingCycle) (*model.PricingPlan, error) {
	const sql = `
SELECT ` + planColumns + `
  FROM pricing_plans
 WHERE lower(plan_name) = lower($1) AND billing_cycle = $2 AND status = 'active'
 ORDER BY updated_at DESC
 LIMIT 1`
	row, err := queryRow(ctx, r.pool, tx, sql, name, string(cycle))
	if err != nil {
		return nil, err
	}
	return scanPlan(row)
}

func (r *PostgresPlanRepo) ListAll(ctx context.Context, tx repository.Tx) ([]*model.PricingPlan, error) {
	rows, err := queryRows(ctx, r.pool, tx, `SELECT `+planColumns+` FROM pricing_plans ORDER BY price_cents, plan_name`)
	if err != nil {
		return nil, fmt.Errorf("ListAll plans: %w", err)
	}
	defer rows.Close()

	var out []*model.PricingPlan
	for rows.Next() {
		p, err := scanPlan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func scanPlan(row pgx.Row) (*model.PricingPlan, error) {
	var p model.PricingPlan
	var cycle string
	if err := row.Scan(&p.ID, &p.PlanName, &p.PricingID, &p.Currency, &p.PriceCents, &cycle, &p.CoinReward, &p.Status, &p.CreatedAt, &p.UpdatedAt); err != nil {
		if err == pgx.ErrNoRows {
			return nil, domain.ErrUnknownPlan
		}
		return nil, fmt.Errorf("%w: %v", domain.ErrReadDatabaseRow, err)
	}
	p.BillingCycle = model.BillingCycle(cycle)
	return &p, nil
}
