package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"companion-billing/internal/domain"
	"companion-billing/internal/domain/model"
	"companion-billing/internal/domain/ports/repository"
)

// Ensure subscriptionRepo implements repository.SubscriptionRepository
var _ repository.SubscriptionRepository = (*subscriptionRepo)(nil)

type subscriptionRepo struct {
	pool *pgxpool.Pool
}

func NewSubscriptionRepo(pool *pgxpool.Pool) *subscriptionRepo {
	return &subscriptionRepo{pool: pool}
}

const subscriptionColumns = `
  id, user_id, payment_customer_id, payment_subscription_id, price_id, plan_name, status,
  current_period_start, current_period_end, cancel_at_period_end,
  last_rewarded_period_end, total_coins_rewarded, start_date, created_at, updated_at`

func (r *subscriptionRepo) Create(ctx context.Context, tx repository.Tx, s *model.Subscription) error {
	const q = `
INSERT INTO subscriptions (` + subscriptionColumns + `
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15);`

	_, err := execSQL(ctx, r.pool, tx, q,
		s.ID, s.UserID, s.PaymentCustomerID, s.PaymentSubscriptionID, s.PriceID, s.PlanName, s.Status,
		s.CurrentPeriodStart, s.CurrentPeriodEnd, s.CancelAtPeriodEnd,
		s.LastRewardedPeriodEnd, s.TotalCoinsRewarded, s.StartDate, s.CreatedAt, s.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrAlreadyExists
		}
		return fmt.Errorf("%w: insert subscription: %v", domain.ErrOperationFailed, err)
	}
	return nil
}

// Update never writes total_coins_rewarded or last_rewarded_period_end.
func (r *subscriptionRepo) Update(ctx context.Context, tx repository.Tx, s *model.Subscription) error {
	const q = `
UPDATE subscriptions SET
  payment_customer_id = $2, price_id = $3, plan_name = $4, status = $5,
  current_period_start = $6, current_period_end = $7, cancel_at_period_end = $8,
  updated_at = now()
WHERE id = $1;`
	tag, err := execSQL(ctx, r.pool, tx, q,
		s.ID, s.PaymentCustomerID, s.PriceID, s.PlanName, s.Status,
		s.CurrentPeriodStart, s.CurrentPeriodEnd, s.CancelAtPeriodEnd)
	if err != nil {
		return fmt.Errorf("%w: update subscription: %v", domain.ErrOperationFailed, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrSubscriptionNotFound
	}
	return nil
}

func (r *subscriptionRepo) RecordReward(ctx context.Context, tx repository.Tx, id string, coins int64, rewardedEnd *time.Time) (*model.Subscription, error) {
	const q = `
UPDATE subscriptions SET
  total_coins_rewarded = total_coins_rewarded + $2,
  last_rewarded_period_end = CASE
    WHEN $3::timestamptz IS NULL THEN last_rewarded_period_end
    WHEN last_rewarded_period_end IS NULL THEN $3::timestamptz
    ELSE GREATEST(last_rewarded_period_end, $3::timestamptz)
  END,
  updated_at = now()
WHERE id = $1
RETURNING ` + subscriptionColumns + `;`
	return r.queryOne(ctx, tx, q, id, coins, rewardedEnd)
}

func (r *subscriptionRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Subscription, error) {
	q := forUpdate(`SELECT `+subscriptionColumns+` FROM subscriptions WHERE id = $1`, tx)
	return r.queryOne(ctx, tx, q, id)
}

func (r *subscriptionRepo) FindLatestByPaymentSubscriptionID(ctx context.Context, tx repository.Tx, paymentSubID string) (*model.Subscription, error) {
	q := forUpdate(`
SELECT `+subscriptionColumns+`
  FROM subscriptions
 WHERE payment_subscription_id = $1
 ORDER BY created_at DESC
 LIMIT 1`, tx)
	return r.queryOne(ctx, tx, q, paymentSubID)
}

func (r *subscriptionRepo) FindLatestByUser(ctx context.Context, tx repository.Tx, userID string) (*model.Subscription, error) {
	q := forUpdate(`
SELECT `+subscriptionColumns+`
  FROM subscriptions
 WHERE user_id = $1
 ORDER BY created_at DESC
 LIMIT 1`, tx)
	return r.queryOne(ctx, tx, q, userID)
}

func (r *subscriptionRepo) ListByUser(ctx context.Context, tx repository.Tx, userID string) ([]*model.Subscription, error) {
	const q = `SELECT ` + subscriptionColumns + ` FROM subscriptions WHERE user_id = $1 ORDER BY created_at DESC;`
	rows, err := queryRows(ctx, r.pool, tx, q, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.Subscription
	for rows.Next() {
		s, err := scanSubscription(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *subscriptionRepo) queryOne(ctx context.Context, tx repository.Tx, q string, args ...interface{}) (*model.Subscription, error) {
	row, err := queryRow(ctx, r.pool, tx, q, args...)
	if err != nil {
		return nil, err
	}
	s, err := scanSubscription(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, domain.ErrSubscriptionNotFound
		}
		return nil, err
	}
	return s, nil
}

func scanSubscription(row pgx.Row) (*model.Subscription, error) {
	var s model.Subscription
	var status string
	err := row.Scan(
		&s.ID, &s.UserID, &s.PaymentCustomerID, &s.PaymentSubscriptionID, &s.PriceID, &s.PlanName, &status,
		&s.CurrentPeriodStart, &s.CurrentPeriodEnd, &s.CancelAtPeriodEnd,
		&s.LastRewardedPeriodEnd, &s.TotalCoinsRewarded, &s.StartDate, &s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	s.Status = model.SubscriptionStatus(status)
	return &s, nil
}

var _ repository.SubscriptionHistoryRepository = (*subscriptionHistoryRepo)(nil)

type subscriptionHistoryRepo struct {
	pool *pgxpool.Pool
}

func NewSubscriptionHistoryRepo(pool *pgxpool.Pool) *subscriptionHistoryRepo {
	return &subscriptionHistoryRepo{pool: pool}
}

func (r *subscriptionHistoryRepo) Append(ctx context.Context, tx repository.Tx, h *model.SubscriptionHistory) error {
	const q = `
INSERT INTO subscription_history (subscription_id, user_id, action, from_status, to_status, price_id, period_end, event_id)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
RETURNING id, created_at;`
	row, err := queryRow(ctx, r.pool, tx, q, h.SubscriptionID, h.UserID, h.Action, h.FromStatus, h.ToStatus, h.PriceID, h.PeriodEnd, h.EventID)
	if err != nil {
		return err
	}
	return row.Scan(&h.ID, &h.CreatedAt)
}

func (r *subscriptionHistoryRepo) ListBySubscription(ctx context.Context, tx repository.Tx, subscriptionID string) ([]*model.SubscriptionHistory, error) {
	const q = `
SELECT id, subscription_id, user_id, action, from_status, to_status, price_id, period_end, event_id, created_at
  FROM subscription_history
 WHERE subscription_id = $1
 ORDER BY id;`
	rows, err := queryRows(ctx, r.pool, tx, q, subscriptionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.SubscriptionHistory
	for rows.Next() {
		var h model.SubscriptionHistory
		var action, from, to string
		if err := rows.Scan(&h.ID, &h.SubscriptionID, &h.UserID, &action, &from, &to, &h.PriceID, &h.PeriodEnd, &h.EventID, &h.CreatedAt); err != nil {
			return nil, err
		}
		h.Action = model.SubscriptionAction(action)
		h.FromStatus = model.SubscriptionStatus(from)
		h.ToStatus = model.SubscriptionStatus(to)
		out = append(out, &h)
	}
	return out, rows.Err()
}
