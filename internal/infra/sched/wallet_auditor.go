package sched

import (
	"context"
	"time"

	"companion-billing/internal/domain/model"
	"companion-billing/internal/infra/metrics"

	"github.com/rs/zerolog"
)

const auditBatch = 200

// DriftSource lists wallets whose balance disagrees with their ledger.
type DriftSource interface {
	Drift(ctx context.Context, limit int) ([]model.WalletDrift, error)
}

// WalletAuditor periodically compares every wallet with the sum of its
// ledger entries and exports the number of mismatches.
type WalletAuditor struct {
	interval time.Duration
	wallets  DriftSource
	log      *zerolog.Logger
}

func NewWalletAuditor(interval time.Duration, wallets DriftSource, logger *zerolog.Logger) *WalletAuditor {
	if interval <= 0 {
		interval = time.Hour
	}
	compLog := logger.With().Str("component", "WalletAuditor").Logger()
	return &WalletAuditor{
		interval: interval,
		wallets:  wallets,
		log:      &compLog,
	}
}

func (w *WalletAuditor) Run(ctx context.Context) error {
	w.log.Info().Dur("interval", w.interval).Msg("Starting wallet auditor")
	// Run once on startup, then on every tick
	w.audit(ctx)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("Stopping wallet auditor")
			return ctx.Err()
		case <-ticker.C:
			w.audit(ctx)
		}
	}
}

// audit returns the number of mismatched wallets found, or -1 on error.
func (w *WalletAuditor) audit(ctx context.Context) int {
	runCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	drift, err := w.wallets.Drift(runCtx, auditBatch)
	if err != nil {
		w.log.Error().Err(err).Msg("wallet audit failed")
		metrics.IncJobRun("wallet_audit", "error")
		return -1
	}
	for _, d := range drift {
		w.log.Error().
			Str("user_id", d.UserID).
			Int64("coin_balance", d.CoinBalance).
			Int64("ledger_sum", d.LedgerSum).
			Int64("difference", d.Difference()).
			Msg("wallet balance disagrees with ledger")
	}
	metrics.SetWalletMismatch(len(drift))
	metrics.IncJobRun("wallet_audit", "ok")
	if len(drift) == 0 {
		w.log.Debug().Msg("wallet audit clean")
	}
	return len(drift)
}
