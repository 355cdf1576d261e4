// File: internal/usecase/checkout_uc.go
package usecase

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"companion-billing/internal/domain"
	"companion-billing/internal/domain/model"
	"companion-billing/internal/domain/ports/adapter"
	"companion-billing/internal/domain/ports/repository"
	"companion-billing/internal/infra/logging"
)

// CheckoutInput selects what to buy. PriceID wins over Plan/Cycle when set.
type CheckoutInput struct {
	UserID  string
	Plan    string
	Cycle   model.BillingCycle
	PriceID string
	Coupon  string
}

type CheckoutResult struct {
	SessionID string
	URL       string
	PriceID   string
	Mode      model.CheckoutMode
}

type CheckoutUseCase interface {
	CreateSession(ctx context.Context, in CheckoutInput) (*CheckoutResult, error)
}

var _ CheckoutUseCase = (*checkoutUC)(nil)

type checkoutUC struct {
	users       repository.UserRepository
	plans       repository.PricingPlanRepository
	promos      repository.PromoRepository
	redemptions repository.PromoRedemptionRepository
	settings    SettingsUseCase
	gateway     adapter.BillingGateway
	limiter     adapter.RateLimiter
	log         *zerolog.Logger
	now         func() time.Time
}

func NewCheckoutUseCase(
	users repository.UserRepository,
	plans repository.PricingPlanRepository,
	promos repository.PromoRepository,
	redemptions repository.PromoRedemptionRepository,
	settings SettingsUseCase,
	gateway adapter.BillingGateway,
	limiter adapter.RateLimiter,
	logger *zerolog.Logger,
) *checkoutUC {
	return &checkoutUC{
		users:       users,
		plans:       plans,
		promos:      promos,
		redemptions: redemptions,
		settings:    settings,
		gateway:     gateway,
		limiter:     limiter,
		log:         logger,
		now:         time.Now,
	}
}

func (u *checkoutUC) CreateSession(ctx context.Context, in CheckoutInput) (*CheckoutResult, error) {
	defer logging.TraceDuration(u.log, "CheckoutUC.CreateSession")()
	if in.UserID == "" || (in.PriceID == "" && in.Plan == "") {
		return nil, domain.ErrInvalidArgument
	}
	log := logging.With(ctx, u.log)

	if u.limiter != nil {
		ok, err := u.limiter.Allow(ctx, "rate_limit:checkout:"+in.UserID)
		if err != nil {
			// redis outages must not block purchases
			log.Warn().Err(err).Msg("checkout rate limiter unavailable")
		} else if !ok {
			return nil, domain.ErrRateLimited
		}
	}

	user, err := u.users.FindByID(ctx, repository.NoTX, in.UserID)
	if err != nil {
		return nil, err
	}
	plan, err := u.resolvePlan(ctx, in)
	if err != nil {
		return nil, err
	}

	var promo *model.Promo
	if in.Coupon != "" {
		promo, err = u.promos.FindByCoupon(ctx, repository.NoTX, model.NormalizeCoupon(in.Coupon))
		if err != nil {
			if isNotFound(err) {
				return nil, domain.ErrPromoInvalid
			}
			return nil, err
		}
		if err := promo.Redeemable(u.now()); err != nil {
			return nil, err
		}
	}

	base, err := u.settings.FrontendURL()
	if err != nil {
		return nil, err
	}
	if user.PaymentCustomerID == "" {
		customerID, err := u.gateway.CreateCustomer(ctx, user.Email, user.ID)
		if err != nil {
			return nil, fmt.Errorf("%w: create customer: %v", domain.ErrGatewayFailure, err)
		}
		if err := u.users.SetPaymentCustomerID(ctx, repository.NoTX, user.ID, customerID); err != nil {
			return nil, err
		}
		user.PaymentCustomerID = customerID
	}

	mode := model.CheckoutModePayment
	if plan.BillingCycle.Recurring() {
		mode = model.CheckoutModeSubscription
	}
	req := adapter.CheckoutRequest{
		CustomerID:        user.PaymentCustomerID,
		PriceID:           plan.PricingID,
		Mode:              mode,
		SuccessURL:        base + "/payment/success?session_id={CHECKOUT_SESSION_ID}",
		CancelURL:         base + "/payment/cancel",
		ClientReferenceID: user.ID,
		Metadata:          map[string]string{"user_id": user.ID, "price_id": plan.PricingID},
	}
	if promo != nil {
		req.PromotionCodeID = promo.StripePromotionID
	}
	session, err := u.gateway.CreateCheckoutSession(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("%w: create checkout session: %v", domain.ErrGatewayFailure, err)
	}

	if promo != nil {
		r := &model.PromoRedemption{
			ID:              uuid.NewString(),
			PromoID:         promo.ID,
			PromoCode:       promo.Coupon,
			UserID:          user.ID,
			Status:          model.RedemptionPending,
			DiscountApplied: int64(math.Round(float64(plan.PriceCents) * promo.PercentOff / 100)),
			SubtotalAtApply: plan.PriceCents,
			Currency:        plan.Currency,
			AppliedAt:       u.now().UTC(),
		}
		if err := u.redemptions.Create(ctx, repository.NoTX, r); err != nil {
			return nil, err
		}
	}

	log.Info().Str("user_id", user.ID).Str("price_id", plan.PricingID).Str("mode", string(mode)).Str("session_id", session.ID).Msg("checkout session created")
	return &CheckoutResult{SessionID: session.ID, URL: session.URL, PriceID: plan.PricingID, Mode: mode}, nil
}

func (u *checkoutUC) resolvePlan(ctx context.Context, in CheckoutInput) (*model.PricingPlan, error) {
	priceID := in.PriceID
	if priceID == "" {
		cycle := in.Cycle
		if cycle == "" {
			cycle = model.BillingCycleMonthly
		}
		id, err := u.settings.PriceID(in.Plan, cycle)
		if err != nil {
			return nil, err
		}
		priceID = id
	}
	plan, err := u.plans.FindByPricingID(ctx, repository.NoTX, priceID)
	if err != nil {
		if errors.Is(err, domain.ErrUnknownPlan) || isNotFound(err) {
			return nil, fmt.Errorf("%w: %s", domain.ErrUnknownPlan, priceID)
		}
		return nil, err
	}
	if !plan.Active() {
		return nil, fmt.Errorf("%w: %s is inactive", domain.ErrUnknownPlan, priceID)
	}
	return plan, nil
}
