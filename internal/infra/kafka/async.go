package kafka

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"companion-billing/internal/domain/model"
	"companion-billing/internal/domain/ports/adapter"
	"companion-billing/internal/infra/worker"
)

// AsyncPublisher hands entries to a worker pool so callers return as soon as
// their transaction has committed. Entries are dropped, with an error log,
// when the pool is saturated; the ledger table stays the source of truth and
// consumers order entries by their ULID id.
type AsyncPublisher struct {
	inner adapter.LedgerPublisher
	pool  *worker.Pool
	log   *zerolog.Logger
}

var _ adapter.LedgerPublisher = (*AsyncPublisher)(nil)

// NewAsyncPublisher starts pool with ctx. Close stops the pool, flushing
// queued batches, then closes inner.
func NewAsyncPublisher(ctx context.Context, inner adapter.LedgerPublisher, pool *worker.Pool, logger *zerolog.Logger) *AsyncPublisher {
	pool.Start(ctx)
	return &AsyncPublisher{inner: inner, pool: pool, log: logger}
}

func (p *AsyncPublisher) PublishLedgerEntries(_ context.Context, entries []*model.CoinTransaction) error {
	if len(entries) == 0 {
		return nil
	}
	batch := append([]*model.CoinTransaction(nil), entries...)
	err := p.pool.Submit(func(ctx context.Context) error {
		return p.inner.PublishLedgerEntries(ctx, batch)
	})
	if err != nil {
		p.log.Error().Err(err).Int("count", len(batch)).Str("first_entry", batch[0].ID).Msg("ledger entries not queued for publishing")
		return fmt.Errorf("kafka: enqueue: %w", err)
	}
	return nil
}

func (p *AsyncPublisher) Close() error {
	p.pool.Stop()
	return p.inner.Close()
}
