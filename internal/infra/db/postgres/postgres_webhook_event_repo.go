package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"companion-billing/internal/domain"
	"companion-billing/internal/domain/model"
	"companion-billing/internal/domain/ports/repository"
)

var _ repository.WebhookEventRepository = (*PostgresWebhookEventRepo)(nil)

type PostgresWebhookEventRepo struct {
	pool *pgxpool.Pool
}

func NewPostgresWebhookEventRepo(pool *pgxpool.Pool) *PostgresWebhookEventRepo {
	return &PostgresWebhookEventRepo{pool: pool}
}

func (r *PostgresWebhookEventRepo) Begin(ctx context.Context, tx repository.Tx, rec *model.WebhookEventRecord) (bool, error) {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	const q = `
INSERT INTO billing_webhook_events (id, provider, provider_event_id, event_type, received_at)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (provider, provider_event_id) DO NOTHING;`
	tag, err := execSQL(ctx, r.pool, tx, q, rec.ID, rec.Provider, rec.ProviderEventID, rec.EventType, rec.ReceivedAt)
	if err != nil {
		return false, fmt.Errorf("%w: record webhook event: %v", domain.ErrOperationFailed, err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *PostgresWebhookEventRepo) Finish(ctx context.Context, tx repository.Tx, provider, providerEventID, outcome, processingErr string) error {
	const q = `
UPDATE billing_webhook_events
   SET outcome = $3, processing_error = $4, processed_at = now()
 WHERE provider = $1 AND provider_event_id = $2;`
	_, err := execSQL(ctx, r.pool, tx, q, provider, providerEventID, outcome, processingErr)
	return err
}

func (r *PostgresWebhookEventRepo) Find(ctx context.Context, tx repository.Tx, provider, providerEventID string) (*model.WebhookEventRecord, error) {
	const q = `
SELECT id, provider, provider_event_id, event_type, outcome, processing_error, received_at, processed_at
  FROM billing_webhook_events
 WHERE provider = $1 AND provider_event_id = $2;`
	row, err := queryRow(ctx, r.pool, tx, q, provider, providerEventID)
	if err != nil {
		return nil, err
	}
	var rec model.WebhookEventRecord
	if err := row.Scan(&rec.ID, &rec.Provider, &rec.ProviderEventID, &rec.EventType, &rec.Outcome, &rec.ProcessingError, &rec.ReceivedAt, &rec.ProcessedAt); err != nil {
		if err == pgx.ErrNoRows {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &rec, nil
}
