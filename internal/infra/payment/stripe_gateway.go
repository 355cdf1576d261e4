// File: internal/infra/payment/stripe_gateway.go
package payment

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
	"github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/client"

	"companion-billing/internal/config"
	"companion-billing/internal/domain"
	"companion-billing/internal/domain/model"
	"companion-billing/internal/domain/ports/adapter"
)

var _ adapter.BillingGateway = (*StripeGateway)(nil)

// StripeGateway implements adapter.BillingGateway on the Stripe API. Calls are
// retried with exponential backoff on network errors, 429 and 5xx.
type StripeGateway struct {
	api        *client.API
	maxElapsed time.Duration
	log        *zerolog.Logger
}

func NewStripeGateway(cfg config.StripeConfig, logger *zerolog.Logger) (*StripeGateway, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("stripe api key empty")
	}
	sc := &client.API{}
	sc.Init(cfg.APIKey, nil)
	l := logger.With().Str("component", "stripe").Logger()
	return &StripeGateway{api: sc, maxElapsed: cfg.MaxRetryElapsed, log: &l}, nil
}

func (g *StripeGateway) Name() string { return "stripe" }

func (g *StripeGateway) CreateCustomer(ctx context.Context, email, userID string) (string, error) {
	params := &stripe.CustomerParams{
		Email:    stripe.String(email),
		Metadata: map[string]string{"user_id": userID},
	}
	params.Context = ctx
	// same key for the same user so a retried call never creates two customers
	params.SetIdempotencyKey("customer-" + userID)

	var cus *stripe.Customer
	err := g.retry(ctx, "CreateCustomer", func() (err error) {
		cus, err = g.api.Customers.New(params)
		return err
	})
	if err != nil {
		return "", fmt.Errorf("stripe: create customer: %w", err)
	}
	g.log.Info().Str("customer_id", cus.ID).Str("user_id", userID).Msg("stripe customer created")
	return cus.ID, nil
}

func (g *StripeGateway) CreateCheckoutSession(ctx context.Context, req adapter.CheckoutRequest) (*adapter.CheckoutSession, error) {
	mode := stripe.CheckoutSessionModeSubscription
	if req.Mode == model.CheckoutModePayment {
		mode = stripe.CheckoutSessionModePayment
	}
	params := &stripe.CheckoutSessionParams{
		Customer:          stripe.String(req.CustomerID),
		Mode:              stripe.String(string(mode)),
		SuccessURL:        stripe.String(req.SuccessURL),
		CancelURL:         stripe.String(req.CancelURL),
		ClientReferenceID: stripe.String(req.ClientReferenceID),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{Price: stripe.String(req.PriceID), Quantity: stripe.Int64(1)},
		},
	}
	if req.PromotionCodeID != "" {
		params.Discounts = []*stripe.CheckoutSessionDiscountParams{{PromotionCode: stripe.String(req.PromotionCodeID)}}
	}
	for k, v := range req.Metadata {
		params.AddMetadata(k, v)
	}
	params.Context = ctx

	var s *stripe.CheckoutSession
	err := g.retry(ctx, "CreateCheckoutSession", func() (err error) {
		s, err = g.api.CheckoutSessions.New(params)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("stripe: create checkout session: %w", err)
	}
	return &adapter.CheckoutSession{ID: s.ID, URL: s.URL}, nil
}

func (g *StripeGateway) GetSubscription(ctx context.Context, subscriptionID string) (*adapter.ProcessorSubscription, error) {
	params := &stripe.SubscriptionParams{}
	params.Context = ctx

	var sub *stripe.Subscription
	err := g.retry(ctx, "GetSubscription", func() (err error) {
		sub, err = g.api.Subscriptions.Get(subscriptionID, params)
		return err
	})
	if err != nil {
		var se *stripe.Error
		if errors.As(err, &se) && se.Code == stripe.ErrorCodeResourceMissing {
			return nil, fmt.Errorf("stripe subscription %s: %w", subscriptionID, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("stripe: get subscription: %w", err)
	}
	ps := processorSubscription(sub)
	return &ps, nil
}

func (g *StripeGateway) retry(ctx context.Context, op string, fn func() error) error {
	bo := backoff.NewExponentialBackOff()
	bo.MaxInterval = 2 * time.Second
	bo.MaxElapsedTime = g.maxElapsed
	bo.Reset()

	attempt := 0
	return backoff.Retry(func() error {
		attempt++
		err := fn()
		if err == nil {
			return nil
		}
		if !retryable(err) {
			g.logError(op, err)
			return backoff.Permanent(err)
		}
		g.log.Warn().Err(err).Str("op", op).Int("attempt", attempt).Msg("retryable stripe error")
		return err
	}, backoff.WithContext(bo, ctx))
}

func (g *StripeGateway) logError(op string, err error) {
	var se *stripe.Error
	if errors.As(err, &se) {
		g.log.Error().
			Str("op", op).
			Str("type", string(se.Type)).
			Str("code", string(se.Code)).
			Str("request_id", se.RequestID).
			Int("status", se.HTTPStatusCode).
			Msg(se.Msg)
		return
	}
	g.log.Error().Err(err).Str("op", op).Msg("stripe call failed")
}

func retryable(err error) bool {
	var se *stripe.Error
	if !errors.As(err, &se) {
		// transport level failure
		return !errors.Is(err, context.Canceled)
	}
	return se.HTTPStatusCode == http.StatusTooManyRequests || se.HTTPStatusCode >= 500
}

// processorSubscription maps a Stripe subscription onto the gateway port type.
func processorSubscription(s *stripe.Subscription) adapter.ProcessorSubscription {
	out := adapter.ProcessorSubscription{
		ID:                s.ID,
		Status:            model.SubscriptionStatus(s.Status),
		CancelAtPeriodEnd: s.CancelAtPeriodEnd,
		Period:            model.Period{Start: unixUTC(s.CurrentPeriodStart), End: unixUTC(s.CurrentPeriodEnd)},
	}
	if s.Customer != nil {
		out.CustomerID = s.Customer.ID
	}
	if s.Items != nil && len(s.Items.Data) > 0 && s.Items.Data[0].Price != nil {
		price := s.Items.Data[0].Price
		out.PriceID = price.ID
		out.PlanName = price.Nickname
	}
	return out
}

func unixUTC(sec int64) time.Time {
	if sec <= 0 {
		return time.Time{}
	}
	return time.Unix(sec, 0).UTC()
}
