package repository

import (
	"context"

	"companion-billing/internal/domain/model"
)

// CoinTransactionRepository is append-only: there is deliberately no update or delete.
type CoinTransactionRepository interface {
	Append(ctx context.Context, tx Tx, t *model.CoinTransaction) error
	ListByUser(ctx context.Context, tx Tx, userID string, limit int) ([]*model.CoinTransaction, error)
	SumByUser(ctx context.Context, tx Tx, userID string) (int64, error)
	SumBySubscription(ctx context.Context, tx Tx, subscriptionID string) (int64, error)
}

// WalletRepository is the wallet accessor. ApplyDelta creates a missing
// wallet at zero and applies delta under a row lock held by tx; with clamp the
// resulting balance is floored at zero.
type WalletRepository interface {
	ApplyDelta(ctx context.Context, tx Tx, userID string, delta int64, clamp bool) (model.WalletChange, error)
	FindByUser(ctx context.Context, tx Tx, userID string) (*model.UserWallet, error)
	// ListDrift returns wallets whose balance differs from their ledger sum.
	ListDrift(ctx context.Context, tx Tx, limit int) ([]model.WalletDrift, error)
}
