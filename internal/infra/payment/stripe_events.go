// File: internal/infra/payment/stripe_events.go
package payment

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/webhook"

	"companion-billing/internal/domain"
	"companion-billing/internal/domain/model"
	"companion-billing/internal/domain/ports/adapter"
)

// SubscriptionFetcher loads the processor's view of a subscription.
type SubscriptionFetcher interface {
	GetSubscription(ctx context.Context, subscriptionID string) (*adapter.ProcessorSubscription, error)
}

// EventDecoder authenticates Stripe webhook payloads and turns the handled
// event types into model.BillingEvent values.
type EventDecoder struct {
	secret    string
	tolerance time.Duration
	subs      SubscriptionFetcher
	log       *zerolog.Logger
	now       func() time.Time
}

func NewEventDecoder(secret string, tolerance time.Duration, subs SubscriptionFetcher, logger *zerolog.Logger) *EventDecoder {
	if tolerance <= 0 {
		tolerance = webhook.DefaultTolerance
	}
	return &EventDecoder{secret: secret, tolerance: tolerance, subs: subs, log: logger, now: time.Now}
}

// Decode verifies the Stripe-Signature header and decodes the payload.
// Errors wrap domain.ErrInvalidSignature, domain.ErrUnsupportedEventShape or
// domain.ErrEventIgnored; anything else is a transient lookup failure.
func (d *EventDecoder) Decode(ctx context.Context, payload []byte, signature string) (model.BillingEvent, error) {
	ev, err := webhook.ConstructEventWithOptions(payload, signature, d.secret, webhook.ConstructEventOptions{
		Tolerance:                d.tolerance,
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidSignature, err)
	}
	if ev.Data == nil || len(ev.Data.Raw) == 0 {
		return nil, fmt.Errorf("%w: event %s has no data", domain.ErrUnsupportedEventShape, ev.ID)
	}
	meta := model.EventMeta{ID: ev.ID, ReceivedAt: d.now().UTC(), CreatedAt: unixUTC(ev.Created)}

	switch ev.Type {
	case stripe.EventTypeCheckoutSessionCompleted:
		var s stripe.CheckoutSession
		if err := json.Unmarshal(ev.Data.Raw, &s); err != nil {
			return nil, fmt.Errorf("%w: checkout session: %v", domain.ErrUnsupportedEventShape, err)
		}
		return d.checkoutCompleted(ctx, meta, &s)
	case stripe.EventTypeCustomerSubscriptionUpdated:
		ps, err := decodeSubscription(ev.Data.Raw)
		if err != nil {
			return nil, err
		}
		return model.SubscriptionUpdated{
			EventMeta:         meta,
			CustomerID:        ps.CustomerID,
			SubscriptionID:    ps.ID,
			PriceID:           ps.PriceID,
			PlanName:          ps.PlanName,
			Status:            ps.Status,
			Period:            ps.Period,
			CancelAtPeriodEnd: ps.CancelAtPeriodEnd,
		}, nil
	case stripe.EventTypeCustomerSubscriptionDeleted:
		ps, err := decodeSubscription(ev.Data.Raw)
		if err != nil {
			return nil, err
		}
		return model.SubscriptionDeleted{
			EventMeta:         meta,
			CustomerID:        ps.CustomerID,
			SubscriptionID:    ps.ID,
			PriceID:           ps.PriceID,
			PlanName:          ps.PlanName,
			Status:            ps.Status,
			Period:            ps.Period,
			CancelAtPeriodEnd: ps.CancelAtPeriodEnd,
		}, nil
	default:
		return nil, fmt.Errorf("%w: %s", domain.ErrEventIgnored, ev.Type)
	}
}

func (d *EventDecoder) checkoutCompleted(ctx context.Context, meta model.EventMeta, s *stripe.CheckoutSession) (model.BillingEvent, error) {
	out := model.CheckoutCompleted{
		EventMeta:      meta,
		SessionID:      s.ID,
		Mode:           model.CheckoutMode(s.Mode),
		ClientRef:      s.ClientReferenceID,
		AmountSubtotal: s.AmountSubtotal,
		Email:          s.CustomerEmail,
	}
	if s.Customer != nil {
		out.CustomerID = s.Customer.ID
	}
	if s.CustomerDetails != nil && s.CustomerDetails.Email != "" {
		out.Email = s.CustomerDetails.Email
	}
	if s.TotalDetails != nil {
		out.AmountDiscount = s.TotalDetails.AmountDiscount
	}

	switch s.Mode {
	case stripe.CheckoutSessionModePayment:
		out.PriceID = s.Metadata["price_id"]
	case stripe.CheckoutSessionModeSubscription:
		if s.Subscription == nil || s.Subscription.ID == "" {
			return nil, fmt.Errorf("%w: subscription checkout %s without subscription", domain.ErrUnsupportedEventShape, s.ID)
		}
		out.SubscriptionID = s.Subscription.ID
		ps, err := d.subs.GetSubscription(ctx, s.Subscription.ID)
		if err != nil {
			return nil, fmt.Errorf("load subscription %s: %w", s.Subscription.ID, err)
		}
		out.PriceID = ps.PriceID
		out.PlanName = ps.PlanName
		out.Status = ps.Status
		out.Period = ps.Period
		if out.CustomerID == "" {
			out.CustomerID = ps.CustomerID
		}
	default:
		return nil, fmt.Errorf("%w: checkout mode %q", domain.ErrEventIgnored, s.Mode)
	}
	return out, nil
}

func decodeSubscription(raw json.RawMessage) (adapter.ProcessorSubscription, error) {
	var s stripe.Subscription
	if err := json.Unmarshal(raw, &s); err != nil {
		return adapter.ProcessorSubscription{}, fmt.Errorf("%w: subscription: %v", domain.ErrUnsupportedEventShape, err)
	}
	if s.ID == "" {
		return adapter.ProcessorSubscription{}, fmt.Errorf("%w: subscription without id", domain.ErrUnsupportedEventShape)
	}
	return processorSubscription(&s), nil
}
