package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v4/pgxpool"

	"companion-billing/internal/domain"
	"companion-billing/internal/domain/model"
	"companion-billing/internal/domain/ports/repository"
)

var _ repository.CoinTransactionRepository = (*PostgresCoinTransactionRepo)(nil)

// PostgresCoinTransactionRepo stores the append-only coin ledger.
type PostgresCoinTransactionRepo struct {
	pool *pgxpool.Pool
}

func NewPostgresCoinTransactionRepo(pool *pgxpool.Pool) *PostgresCoinTransactionRepo {
	return &PostgresCoinTransactionRepo{pool: pool}
}

func (r *PostgresCoinTransactionRepo) Append(ctx context.Context, tx repository.Tx, t *model.CoinTransaction) error {
	if t == nil || t.Coins == 0 {
		return domain.ErrInvalidArgument
	}
	const q = `
INSERT INTO coin_transactions (
  id, user_id, subscription_id, coins, source_type, source_id, order_id, description, period_start, period_end, created_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11);`
	_, err := execSQL(ctx, r.pool, tx, q,
		t.ID, t.UserID, t.SubscriptionID, t.Coins, string(t.SourceType),
		nullIfEmpty(t.SourceID), nullIfEmpty(t.OrderID), t.Description,
		t.PeriodStart, t.PeriodEnd, t.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("ledger entry for period already exists: %w", domain.ErrAlreadyExists)
		}
		return fmt.Errorf("%w: append ledger entry: %v", domain.ErrOperationFailed, err)
	}
	return nil
}

func (r *PostgresCoinTransactionRepo) ListByUser(ctx context.Context, tx repository.Tx, userID string, limit int) ([]*model.CoinTransaction, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	const q = `
SELECT id, user_id, subscription_id::text, coins, source_type, COALESCE(source_id, ''), COALESCE(order_id, ''),
       description, period_start, period_end, created_at
  FROM coin_transactions
 WHERE user_id = $1
 ORDER BY created_at DESC, id DESC
 LIMIT $2;`
	rows, err := queryRows(ctx, r.pool, tx, q, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.CoinTransaction
	for rows.Next() {
		var t model.CoinTransaction
		var source string
		if err := rows.Scan(&t.ID, &t.UserID, &t.SubscriptionID, &t.Coins, &source, &t.SourceID, &t.OrderID,
			&t.Description, &t.PeriodStart, &t.PeriodEnd, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrReadDatabaseRow, err)
		}
		t.SourceType = model.SourceType(source)
		out = append(out, &t)
	}
	return out, rows.Err()
}

func (r *PostgresCoinTransactionRepo) SumByUser(ctx context.Context, tx repository.Tx, userID string) (int64, error) {
	return r.sum(ctx, tx, `SELECT COALESCE(SUM(coins), 0)::bigint FROM coin_transactions WHERE user_id = $1;`, userID)
}

func (r *PostgresCoinTransactionRepo) SumBySubscription(ctx context.Context, tx repository.Tx, subscriptionID string) (int64, error) {
	return r.sum(ctx, tx, `SELECT COALESCE(SUM(coins), 0)::bigint FROM coin_transactions WHERE subscription_id = $1;`, subscriptionID)
}

func (r *PostgresCoinTransactionRepo) sum(ctx context.Context, tx repository.Tx, q string, arg string) (int64, error) {
	row, err := queryRow(ctx, r.pool, tx, q, arg)
	if err != nil {
		return 0, err
	}
	var total int64
	if err := row.Scan(&total); err != nil {
		return 0, err
	}
	return total, nil
}
