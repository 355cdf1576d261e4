package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"companion-billing/internal/domain"
	"companion-billing/internal/domain/model"
	"companion-billing/internal/domain/ports/repository"
)

var (
	_ repository.PromoRepository           = (*PostgresPromoRepo)(nil)
	_ repository.PromoRedemptionRepository = (*PostgresPromoRepo)(nil)
)

// PostgresPromoRepo serves both promo_management and promo_redemptions.
type PostgresPromoRepo struct {
	pool *pgxpool.Pool
}

func NewPostgresPromoRepo(pool *pgxpool.Pool) *PostgresPromoRepo {
	return &PostgresPromoRepo{pool: pool}
}

const promoColumns = `id, promo_name, coupon, percent_off::float8, start_date, expiry_date, status, applied_count, stripe_promotion_id, created_at, updated_at`

func (r *PostgresPromoRepo) Save(ctx context.Context, tx repository.Tx, p *model.Promo) error {
	const q = `
INSERT INTO promo_management (` + promoColumns + `)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
ON CONFLICT (id) DO UPDATE SET
  promo_name = EXCLUDED.promo_name,
  coupon = EXCLUDED.coupon,
  percent_off = EXCLUDED.percent_off,
  start_date = EXCLUDED.start_date,
  expiry_date = EXCLUDED.expiry_date,
  status = EXCLUDED.status,
  stripe_promotion_id = EXCLUDED.stripe_promotion_id,
  updated_at = now();`
	_, err := execSQL(ctx, r.pool, tx, q,
		p.ID, p.PromoName, model.NormalizeCoupon(p.Coupon), p.PercentOff, p.StartDate, p.ExpiryDate,
		p.Status, p.AppliedCount, p.StripePromotionID, p.CreatedAt, p.UpdatedAt)
	if isUniqueViolation(err) {
		return domain.ErrAlreadyExists
	}
	return err
}

func (r *PostgresPromoRepo) FindByCoupon(ctx context.Context, tx repository.Tx, coupon string) (*model.Promo, error) {
	row, err := queryRow(ctx, r.pool, tx, `SELECT `+promoColumns+` FROM promo_management WHERE coupon = $1`, model.NormalizeCoupon(coupon))
	if err != nil {
		return nil, err
	}
	p, err := scanPromo(row)
	if err == pgx.ErrNoRows {
		return nil, domain.ErrPromoInvalid
	}
	return p, err
}

func (r *PostgresPromoRepo) ListAll(ctx context.Context, tx repository.Tx) ([]*model.Promo, error) {
	rows, err := queryRows(ctx, r.pool, tx, `SELECT `+promoColumns+` FROM promo_management ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*model.Promo
	for rows.Next() {
		p, err := scanPromo(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *PostgresPromoRepo) IncrementApplied(ctx context.Context, tx repository.Tx, promoID string) error {
	tag, err := execSQL(ctx, r.pool, tx, `UPDATE promo_management SET applied_count = applied_count + 1, updated_at = now() WHERE id = $1`, promoID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func scanPromo(row pgx.Row) (*model.Promo, error) {
	var p model.Promo
	err := row.Scan(&p.ID, &p.PromoName, &p.Coupon, &p.PercentOff, &p.StartDate, &p.ExpiryDate,
		&p.Status, &p.AppliedCount, &p.StripePromotionID, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *PostgresPromoRepo) Create(ctx context.Context, tx repository.Tx, red *model.PromoRedemption) error {
	const q = `
INSERT INTO promo_redemptions (id, promo_id, promo_code, user_id, order_id, status, discount_applied, subtotal_at_apply, currency, applied_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10);`
	_, err := execSQL(ctx, r.pool, tx, q,
		red.ID, red.PromoID, model.NormalizeCoupon(red.PromoCode), red.UserID, nullIfEmpty(red.OrderID),
		string(red.Status), red.DiscountApplied, red.SubtotalAtApply, red.Currency, red.AppliedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrAlreadyExists
		}
		return fmt.Errorf("%w: insert redemption: %v", domain.ErrOperationFailed, err)
	}
	return nil
}

func (r *PostgresPromoRepo) FindLatestPendingByUser(ctx context.Context, tx repository.Tx, userID string) (*model.PromoRedemption, error) {
	q := forUpdate(`
SELECT id, promo_id, promo_code, user_id, COALESCE(order_id, ''), status, discount_applied, subtotal_at_apply, currency, applied_at
  FROM promo_redemptions
 WHERE user_id = $1 AND status = 'pending'
 ORDER BY applied_at DESC
 LIMIT 1`, tx)
	row, err := queryRow(ctx, r.pool, tx, q, userID)
	if err != nil {
		return nil, err
	}
	var red model.PromoRedemption
	var status string
	if err := row.Scan(&red.ID, &red.PromoID, &red.PromoCode, &red.UserID, &red.OrderID, &status,
		&red.DiscountApplied, &red.SubtotalAtApply, &red.Currency, &red.AppliedAt); err != nil {
		if err == pgx.ErrNoRows {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", domain.ErrReadDatabaseRow, err)
	}
	red.Status = model.RedemptionStatus(status)
	return &red, nil
}

func (r *PostgresPromoRepo) MarkSuccess(ctx context.Context, tx repository.Tx, id, orderID string) error {
	const q = `UPDATE promo_redemptions SET status = 'success', order_id = $2 WHERE id = $1 AND status = 'pending';`
	tag, err := execSQL(ctx, r.pool, tx, q, id, nullIfEmpty(orderID))
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrAlreadyExists
		}
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}
