package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"companion-billing/internal/domain"
	"companion-billing/internal/domain/model"
	"companion-billing/internal/domain/ports/repository"
)

var _ repository.WalletRepository = (*PostgresWalletRepo)(nil)

type PostgresWalletRepo struct {
	pool *pgxpool.Pool
}

func NewPostgresWalletRepo(pool *pgxpool.Pool) *PostgresWalletRepo {
	return &PostgresWalletRepo{pool: pool}
}

// ApplyDelta makes sure the wallet row exists, locks it and writes the new
// balance, all within one transaction. Concurrent callers for the same user
// queue on the row lock.
func (r *PostgresWalletRepo) ApplyDelta(ctx context.Context, tx repository.Tx, userID string, delta int64, clamp bool) (model.WalletChange, error) {
	const ensure = `
INSERT INTO user_wallets (id, user_id, coin_balance, updated_at)
VALUES ($1, $2, 0, now())
ON CONFLICT (user_id) DO NOTHING;`
	const lock = `SELECT coin_balance FROM user_wallets WHERE user_id = $1 FOR UPDATE;`
	const write = `UPDATE user_wallets SET coin_balance = $2, updated_at = now() WHERE user_id = $1;`

	change := model.WalletChange{UserID: userID}
	err := withLocalTx(ctx, r.pool, tx, func(t pgx.Tx) error {
		tag, err := t.Exec(ctx, ensure, uuid.NewString(), userID)
		if err != nil {
			return err
		}
		change.Created = tag.RowsAffected() == 1

		if err := t.QueryRow(ctx, lock, userID).Scan(&change.Previous); err != nil {
			return err
		}
		next, err := model.NextBalance(change.Previous, delta, clamp)
		if err != nil {
			return err
		}
		change.Balance = next
		if next == change.Previous {
			return nil
		}
		_, err = t.Exec(ctx, write, userID, next)
		return err
	})
	if errors.Is(err, domain.ErrInvalidArgument) {
		return model.WalletChange{}, err
	}
	if err != nil {
		return model.WalletChange{}, fmt.Errorf("%w: apply wallet delta: %v", domain.ErrOperationFailed, err)
	}
	return change, nil
}

func (r *PostgresWalletRepo) FindByUser(ctx context.Context, tx repository.Tx, userID string) (*model.UserWallet, error) {
	const q = `SELECT id, user_id, coin_balance, updated_at FROM user_wallets WHERE user_id = $1;`
	row, err := queryRow(ctx, r.pool, tx, q, userID)
	if err != nil {
		return nil, err
	}
	var w model.UserWallet
	if err := row.Scan(&w.ID, &w.UserID, &w.CoinBalance, &w.UpdatedAt); err != nil {
		if notFound(err) {
			return nil, domain.ErrWalletNotFound
		}
		return nil, fmt.Errorf("%w: %v", domain.ErrReadDatabaseRow, err)
	}
	return &w, nil
}

func (r *PostgresWalletRepo) ListDrift(ctx context.Context, tx repository.Tx, limit int) ([]model.WalletDrift, error) {
	if limit <= 0 {
		limit = 100
	}
	const q = `
SELECT w.user_id, w.coin_balance, COALESCE(l.total, 0)::bigint
  FROM user_wallets w
  LEFT JOIN (
        SELECT user_id, SUM(coins) AS total
          FROM coin_transactions
         GROUP BY user_id
       ) l ON l.user_id = w.user_id
 WHERE w.coin_balance <> COALESCE(l.total, 0)
 ORDER BY w.user_id
 LIMIT $1;`
	rows, err := queryRows(ctx, r.pool, tx, q, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.WalletDrift
	for rows.Next() {
		var d model.WalletDrift
		if err := rows.Scan(&d.UserID, &d.CoinBalance, &d.LedgerSum); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}
