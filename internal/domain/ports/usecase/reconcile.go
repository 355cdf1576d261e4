package usecase

import (
	"context"

	"companion-billing/internal/domain/model"
)

// EventReconciler is what inbound billing transports hand decoded events to.
type EventReconciler interface {
	HandleEvent(ctx context.Context, ev model.BillingEvent) (*model.ReconcileResult, error)
}
