//go:build !integration

package usecase_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"companion-billing/internal/domain"
	"companion-billing/internal/domain/model"
	"companion-billing/internal/usecase"
)

type checkoutFixture struct {
	db      *memDB
	users   *MockUserRepo
	gateway *MockGateway
	limiter *MockRateLimiter
	uc      usecase.CheckoutUseCase
}

func newCheckoutFixture(t *testing.T) *checkoutFixture {
	t.Helper()
	ctx := context.Background()
	db := newMemDB()
	f := &checkoutFixture{
		db:      db,
		users:   &MockUserRepo{db: db},
		gateway: &MockGateway{},
		limiter: &MockRateLimiter{},
	}
	plans := &MockPlanRepo{db: db}
	_ = plans.Save(ctx, nil, &model.PricingPlan{ID: "p1", PlanName: "pro", PricingID: "price_pro_m", BillingCycle: model.BillingCycleMonthly, PriceCents: 1000, Currency: "usd", CoinReward: 200, Status: model.PlanStatusActive})
	_ = plans.Save(ctx, nil, &model.PricingPlan{ID: "p2", PlanName: "pack", PricingID: "price_pack", BillingCycle: model.BillingCycleOneTime, PriceCents: 500, CoinReward: 1000, Status: model.PlanStatusActive})
	_ = plans.Save(ctx, nil, &model.PricingPlan{ID: "p3", PlanName: "legacy", PricingID: "price_legacy", BillingCycle: model.BillingCycleMonthly, Status: model.PlanStatusInactive})
	_ = f.users.Save(ctx, nil, &model.User{ID: "u1", Email: "alice@example.com"})

	promos := &MockPromoRepo{db: db}
	past := time.Now().Add(-time.Hour)
	_ = promos.Save(ctx, nil, &model.Promo{ID: "promo-1", Coupon: "FIRST50", PercentOff: 50, Status: model.PromoStatusActive, StripePromotionID: "promo_abc"})
	_ = promos.Save(ctx, nil, &model.Promo{ID: "promo-2", Coupon: "OLD", Status: model.PromoStatusActive, ExpiryDate: &past})

	settingsRepo := &MockSettingRepo{db: db}
	_ = settingsRepo.Upsert(ctx, nil, &model.AppSetting{Key: "STRIPE_PRO_MONTHLY_PRICE_ID", Value: "price_pro_m"})
	_ = settingsRepo.Upsert(ctx, nil, &model.AppSetting{Key: model.SettingFrontendURL, Value: "https://app.example.com"})
	settings := usecase.NewSettingsUseCase(settingsRepo, newTestLogger())
	if _, err := settings.Reload(ctx); err != nil {
		t.Fatalf("reload: %v", err)
	}

	f.uc = usecase.NewCheckoutUseCase(f.users, plans, promos, promos, settings, f.gateway, f.limiter, newTestLogger())
	return f
}

func TestCheckoutUseCase_CreateSession(t *testing.T) {
	ctx := context.Background()

	t.Run("should open a subscription checkout for a plan", func(t *testing.T) {
		// --- Arrange ---
		f := newCheckoutFixture(t)

		// --- Act ---
		res, err := f.uc.CreateSession(ctx, usecase.CheckoutInput{UserID: "u1", Plan: "pro", Cycle: model.BillingCycleMonthly})

		// --- Assert ---
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if res.Mode != model.CheckoutModeSubscription || res.PriceID != "price_pro_m" || res.URL == "" {
			t.Errorf("unexpected result: %+v", res)
		}
		req := f.gateway.Sessions[0]
		if req.CustomerID != "cus_u1" || req.ClientReferenceID != "u1" {
			t.Errorf("unexpected request: %+v", req)
		}
		if req.SuccessURL != "https://app.example.com/payment/success?session_id={CHECKOUT_SESSION_ID}" {
			t.Errorf("unexpected success url %q", req.SuccessURL)
		}
		if u, _ := f.users.FindByID(ctx, nil, "u1"); u.PaymentCustomerID != "cus_u1" {
			t.Errorf("customer id should be persisted, got %q", u.PaymentCustomerID)
		}
		if len(f.limiter.Keys) != 1 || f.limiter.Keys[0] != "rate_limit:checkout:u1" {
			t.Errorf("unexpected rate limit keys %v", f.limiter.Keys)
		}
	})

	t.Run("should use payment mode for coin packs", func(t *testing.T) {
		f := newCheckoutFixture(t)

		res, err := f.uc.CreateSession(ctx, usecase.CheckoutInput{UserID: "u1", PriceID: "price_pack"})

		if err != nil || res.Mode != model.CheckoutModePayment {
			t.Fatalf("expected payment mode, got %+v %v", res, err)
		}
		if f.gateway.Sessions[0].Metadata["price_id"] != "price_pack" {
			t.Errorf("expected price id in metadata, got %v", f.gateway.Sessions[0].Metadata)
		}
	})

	t.Run("should reuse an existing customer", func(t *testing.T) {
		f := newCheckoutFixture(t)
		_ = f.users.SetPaymentCustomerID(ctx, nil, "u1", "cus_existing")
		f.gateway.CreateCustomerFunc = func(ctx context.Context, email, userID string) (string, error) {
			t.Fatal("customer must not be created twice")
			return "", nil
		}

		if _, err := f.uc.CreateSession(ctx, usecase.CheckoutInput{UserID: "u1", PriceID: "price_pro_m"}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if f.gateway.Sessions[0].CustomerID != "cus_existing" {
			t.Errorf("expected existing customer, got %q", f.gateway.Sessions[0].CustomerID)
		}
	})

	t.Run("should attach a valid coupon and pre-create a pending redemption", func(t *testing.T) {
		f := newCheckoutFixture(t)

		_, err := f.uc.CreateSession(ctx, usecase.CheckoutInput{UserID: "u1", PriceID: "price_pro_m", Coupon: " first50 "})

		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if f.gateway.Sessions[0].PromotionCodeID != "promo_abc" {
			t.Errorf("expected promotion code, got %q", f.gateway.Sessions[0].PromotionCodeID)
		}
		if len(f.db.redemptions) != 1 {
			t.Fatalf("expected one redemption, got %d", len(f.db.redemptions))
		}
		for _, r := range f.db.redemptions {
			if r.Status != model.RedemptionPending || r.DiscountApplied != 500 || r.UserID != "u1" {
				t.Errorf("unexpected redemption: %+v", r)
			}
		}
	})

	t.Run("should reject bad input", func(t *testing.T) {
		cases := []struct {
			name string
			in   usecase.CheckoutInput
			want error
		}{
			{"missing user", usecase.CheckoutInput{Plan: "pro"}, domain.ErrInvalidArgument},
			{"unknown coupon", usecase.CheckoutInput{UserID: "u1", PriceID: "price_pro_m", Coupon: "NOPE"}, domain.ErrPromoInvalid},
			{"expired coupon", usecase.CheckoutInput{UserID: "u1", PriceID: "price_pro_m", Coupon: "old"}, domain.ErrPromoExpired},
			{"unknown price", usecase.CheckoutInput{UserID: "u1", PriceID: "price_nope"}, domain.ErrUnknownPlan},
			{"inactive plan", usecase.CheckoutInput{UserID: "u1", PriceID: "price_legacy"}, domain.ErrUnknownPlan},
			{"unconfigured plan", usecase.CheckoutInput{UserID: "u1", Plan: "ultra", Cycle: model.BillingCycleYearly}, domain.ErrSettingMissing},
			{"unknown user", usecase.CheckoutInput{UserID: "ghost", PriceID: "price_pro_m"}, domain.ErrUserNotFound},
		}
		for _, c := range cases {
			t.Run(c.name, func(t *testing.T) {
				f := newCheckoutFixture(t)
				if _, err := f.uc.CreateSession(ctx, c.in); !errors.Is(err, c.want) {
					t.Errorf("expected %v, got %v", c.want, err)
				}
				if len(f.gateway.Sessions) != 0 {
					t.Error("no session should be opened")
				}
			})
		}
	})

	t.Run("should enforce the rate limit", func(t *testing.T) {
		f := newCheckoutFixture(t)
		f.limiter.AllowFunc = func(ctx context.Context, key string) (bool, error) { return false, nil }

		_, err := f.uc.CreateSession(ctx, usecase.CheckoutInput{UserID: "u1", PriceID: "price_pro_m"})

		if !errors.Is(err, domain.ErrRateLimited) {
			t.Errorf("expected ErrRateLimited, got %v", err)
		}
	})

	t.Run("should fail open when the limiter is down", func(t *testing.T) {
		f := newCheckoutFixture(t)
		f.limiter.AllowFunc = func(ctx context.Context, key string) (bool, error) { return false, errors.New("redis down") }

		if _, err := f.uc.CreateSession(ctx, usecase.CheckoutInput{UserID: "u1", PriceID: "price_pro_m"}); err != nil {
			t.Errorf("expected checkout to proceed, got %v", err)
		}
	})

	t.Run("should surface gateway failures", func(t *testing.T) {
		f := newCheckoutFixture(t)
		f.gateway.CreateCustomerFunc = func(ctx context.Context, email, userID string) (string, error) {
			return "", errors.New("stripe unavailable")
		}

		_, err := f.uc.CreateSession(ctx, usecase.CheckoutInput{UserID: "u1", PriceID: "price_pro_m"})

		if !errors.Is(err, domain.ErrGatewayFailure) {
			t.Errorf("expected ErrGatewayFailure, got %v", err)
		}
	})
}
