// File: internal/usecase/wallet_uc.go
package usecase

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"

	"companion-billing/internal/domain"
	"companion-billing/internal/domain/model"
	"companion-billing/internal/domain/ports/adapter"
	"companion-billing/internal/domain/ports/repository"
	"companion-billing/internal/domain/reward"
	"companion-billing/internal/infra/logging"
)

// WalletAudit compares one wallet with the sum of its ledger.
type WalletAudit struct {
	UserID    string
	Balance   int64
	LedgerSum int64
	Entries   []*model.CoinTransaction
}

func (a WalletAudit) Consistent() bool { return a.Balance == a.LedgerSum }

type WalletUseCase interface {
	Balance(ctx context.Context, userID string) (*model.UserWallet, error)
	Transactions(ctx context.Context, userID string, limit int) ([]*model.CoinTransaction, error)
	// Adjust applies a manual correction. The balance never drops below zero;
	// the ledger records the amount actually moved.
	Adjust(ctx context.Context, userID string, delta int64, reason string) (*model.CoinTransaction, model.WalletChange, error)
	Audit(ctx context.Context, userID string) (*WalletAudit, error)
	Drift(ctx context.Context, limit int) ([]model.WalletDrift, error)
}

var _ WalletUseCase = (*walletUC)(nil)

type walletUC struct {
	tm        repository.TransactionManager
	users     repository.UserRepository
	wallets   repository.WalletRepository
	ledger    repository.CoinTransactionRepository
	writer    *ledgerWriter
	publisher adapter.LedgerPublisher
	log       *zerolog.Logger
}

func NewWalletUseCase(
	tm repository.TransactionManager,
	users repository.UserRepository,
	wallets repository.WalletRepository,
	ledger repository.CoinTransactionRepository,
	publisher adapter.LedgerPublisher,
	logger *zerolog.Logger,
) *walletUC {
	return &walletUC{
		tm:        tm,
		users:     users,
		wallets:   wallets,
		ledger:    ledger,
		writer:    newLedgerWriter(wallets, ledger, logger),
		publisher: publisher,
		log:       logger,
	}
}

func (u *walletUC) Balance(ctx context.Context, userID string) (*model.UserWallet, error) {
	defer logging.TraceDuration(u.log, "WalletUC.Balance")()
	if userID == "" {
		return nil, domain.ErrInvalidArgument
	}
	return u.wallets.FindByUser(ctx, repository.NoTX, userID)
}

func (u *walletUC) Transactions(ctx context.Context, userID string, limit int) ([]*model.CoinTransaction, error) {
	if userID == "" {
		return nil, domain.ErrInvalidArgument
	}
	return u.ledger.ListByUser(ctx, repository.NoTX, userID, limit)
}

func (u *walletUC) Adjust(ctx context.Context, userID string, delta int64, reason string) (*model.CoinTransaction, model.WalletChange, error) {
	defer logging.TraceDuration(u.log, "WalletUC.Adjust")()
	if userID == "" || delta == 0 {
		return nil, model.WalletChange{}, domain.ErrInvalidArgument
	}
	desc := model.DescAdminAdjustment
	if r := strings.TrimSpace(reason); r != "" {
		desc = fmt.Sprintf("%s: %s", desc, r)
	}

	var (
		entry  *model.CoinTransaction
		change model.WalletChange
	)
	err := u.tm.WithTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted}, func(ctx context.Context, tx repository.Tx) error {
		if _, err := u.users.FindByID(ctx, tx, userID); err != nil {
			return err
		}
		var err error
		entry, change, err = u.writer.post(ctx, tx, posting{
			UserID: userID,
			Source: model.SourceAdjustment,
			Entry:  reward.Entry{Delta: delta, Description: desc},
			Clamp:  true,
		})
		return err
	})
	if err != nil {
		return nil, change, err
	}
	if entry != nil {
		countCommitted([]*model.CoinTransaction{entry})
		if u.publisher != nil {
			if perr := u.publisher.PublishLedgerEntries(ctx, []*model.CoinTransaction{entry}); perr != nil {
				u.log.Warn().Err(perr).Str("user_id", userID).Msg("publish adjustment failed")
			}
		}
	}
	u.log.Info().Str("user_id", userID).Int64("requested", delta).Int64("applied", change.Applied()).Int64("balance", change.Balance).Msg("wallet adjusted")
	return entry, change, nil
}

// Audit reads the wallet and its ledger from one repeatable-read snapshot so
// a concurrent posting cannot show up on only one side.
func (u *walletUC) Audit(ctx context.Context, userID string) (*WalletAudit, error) {
	if userID == "" {
		return nil, domain.ErrInvalidArgument
	}
	audit := &WalletAudit{UserID: userID}
	opts := pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly}
	err := u.tm.WithTx(ctx, opts, func(ctx context.Context, tx repository.Tx) error {
		w, err := u.wallets.FindByUser(ctx, tx, userID)
		switch {
		case err == nil:
			audit.Balance = w.CoinBalance
		case !isNotFound(err):
			return err
		}
		if audit.LedgerSum, err = u.ledger.SumByUser(ctx, tx, userID); err != nil {
			return err
		}
		audit.Entries, err = u.ledger.ListByUser(ctx, tx, userID, 100)
		return err
	})
	if err != nil {
		return nil, err
	}
	return audit, nil
}

func (u *walletUC) Drift(ctx context.Context, limit int) ([]model.WalletDrift, error) {
	defer logging.TraceDuration(u.log, "WalletUC.Drift")()
	return u.wallets.ListDrift(ctx, repository.NoTX, limit)
}
