package usecase

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"companion-billing/internal/domain/model"
	"companion-billing/internal/domain/ports/repository"
	"companion-billing/internal/domain/reward"
	"companion-billing/internal/infra/metrics"
)

// posting is one coin movement to record against a user.
type posting struct {
	UserID         string
	SubscriptionID string
	Source         model.SourceType
	SourceID       string
	OrderID        string
	Entry          reward.Entry
	// Clamp floors the resulting balance at zero; only manual adjustments use it.
	Clamp bool
}

// ledgerWriter moves a wallet balance and appends the matching ledger entry
// inside the caller's transaction, so the two never diverge.
type ledgerWriter struct {
	wallets repository.WalletRepository
	ledger  repository.CoinTransactionRepository
	log     *zerolog.Logger
}

func newLedgerWriter(wallets repository.WalletRepository, ledger repository.CoinTransactionRepository, logger *zerolog.Logger) *ledgerWriter {
	return &ledgerWriter{wallets: wallets, ledger: ledger, log: logger}
}

// post applies p. It returns a nil entry when nothing moved (zero delta, or a
// clamp that absorbed the whole debit).
func (w *ledgerWriter) post(ctx context.Context, tx repository.Tx, p posting) (*model.CoinTransaction, model.WalletChange, error) {
	if p.Entry.Empty() {
		return nil, model.WalletChange{UserID: p.UserID}, nil
	}
	change, err := w.wallets.ApplyDelta(ctx, tx, p.UserID, p.Entry.Delta, p.Clamp)
	if err != nil {
		return nil, change, fmt.Errorf("apply wallet delta: %w", err)
	}
	applied := change.Applied()
	if applied == 0 {
		return nil, change, nil
	}

	t, err := model.NewCoinTransaction(p.UserID, applied, p.Source, p.Entry.Description)
	if err != nil {
		return nil, change, err
	}
	if p.SubscriptionID != "" {
		id := p.SubscriptionID
		t.SubscriptionID = &id
	}
	t.SourceID = p.SourceID
	t.OrderID = p.OrderID
	t.PeriodStart = p.Entry.PeriodStart
	t.PeriodEnd = p.Entry.PeriodEnd
	if err := w.ledger.Append(ctx, tx, t); err != nil {
		return nil, change, fmt.Errorf("append ledger entry: %w", err)
	}

	if change.Negative() {
		metrics.IncWalletNegative()
		w.log.Error().
			Str("user_id", p.UserID).
			Int64("previous", change.Previous).
			Int64("balance", change.Balance).
			Str("description", p.Entry.Description).
			Msg("wallet balance went negative")
	}
	return t, change, nil
}

// countCommitted feeds committed entries into the ledger counters.
func countCommitted(entries []*model.CoinTransaction) {
	for _, e := range entries {
		metrics.AddLedgerCoins(string(e.SourceType), e.Coins)
	}
}
