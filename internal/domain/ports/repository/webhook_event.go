package repository

import (
	"context"

	"companion-billing/internal/domain/model"
)

// WebhookEventRepository records inbound processor events for dedupe.
type WebhookEventRepository interface {
	// Begin inserts the event row; inserted is false when the provider event id
	// was seen before.
	Begin(ctx context.Context, tx Tx, rec *model.WebhookEventRecord) (inserted bool, err error)
	Finish(ctx context.Context, tx Tx, provider, providerEventID, outcome, processingErr string) error
	Find(ctx context.Context, tx Tx, provider, providerEventID string) (*model.WebhookEventRecord, error)
}
