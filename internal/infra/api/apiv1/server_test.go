//go:build !integration

package apiv1_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"companion-billing/internal/domain"
	"companion-billing/internal/domain/model"
	apiv1 "companion-billing/internal/infra/api/apiv1"
	"companion-billing/internal/infra/logging"
	"companion-billing/internal/usecase"
)

//
// ---------------- use case fakes ----------------
//

type fakeCheckout struct {
	CreateSessionFunc func(ctx context.Context, in usecase.CheckoutInput) (*usecase.CheckoutResult, error)
	got               usecase.CheckoutInput
}

func (f *fakeCheckout) CreateSession(ctx context.Context, in usecase.CheckoutInput) (*usecase.CheckoutResult, error) {
	f.got = in
	return f.CreateSessionFunc(ctx, in)
}

type fakeSubs struct {
	usecase.SubscriptionUseCase
	StatusFunc func(ctx context.Context, userID string) (*model.Subscription, error)
}

func (f *fakeSubs) Status(ctx context.Context, userID string) (*model.Subscription, error) {
	return f.StatusFunc(ctx, userID)
}

type fakeWallets struct {
	usecase.WalletUseCase
	BalanceFunc      func(ctx context.Context, userID string) (*model.UserWallet, error)
	TransactionsFunc func(ctx context.Context, userID string, limit int) ([]*model.CoinTransaction, error)
}

func (f *fakeWallets) Balance(ctx context.Context, userID string) (*model.UserWallet, error) {
	return f.BalanceFunc(ctx, userID)
}

func (f *fakeWallets) Transactions(ctx context.Context, userID string, limit int) ([]*model.CoinTransaction, error) {
	return f.TransactionsFunc(ctx, userID, limit)
}

type fakeCatalog struct {
	usecase.CatalogUseCase
	plans []*model.PricingPlan
	err   error
}

func (f *fakeCatalog) Plans(ctx context.Context) ([]*model.PricingPlan, error) { return f.plans, f.err }
func (f *fakeCatalog) Promos(ctx context.Context) ([]*model.Promo, error) {
	return []*model.Promo{{PromoName: "Launch", Coupon: "FIRST50", PercentOff: 50}}, f.err
}

//
// -------------------- test helpers --------------------
//

type deps struct {
	checkout *fakeCheckout
	subs     *fakeSubs
	wallets  *fakeWallets
	catalog  *fakeCatalog
}

func newDeps() *deps {
	return &deps{
		checkout: &fakeCheckout{CreateSessionFunc: func(ctx context.Context, in usecase.CheckoutInput) (*usecase.CheckoutResult, error) {
			return &usecase.CheckoutResult{SessionID: "cs_1", URL: "https://checkout.test/cs_1", PriceID: "price_basic", Mode: model.CheckoutModeSubscription}, nil
		}},
		subs: &fakeSubs{StatusFunc: func(ctx context.Context, userID string) (*model.Subscription, error) {
			return nil, domain.ErrSubscriptionNotFound
		}},
		wallets: &fakeWallets{
			BalanceFunc: func(ctx context.Context, userID string) (*model.UserWallet, error) {
				return &model.UserWallet{UserID: userID, CoinBalance: 200, UpdatedAt: time.Now()}, nil
			},
			TransactionsFunc: func(ctx context.Context, userID string, limit int) ([]*model.CoinTransaction, error) {
				return []*model.CoinTransaction{{ID: "01A", UserID: userID, Coins: 200, SourceType: model.SourceSubscription, Description: model.DescInitialReward}}, nil
			},
		},
		catalog: &fakeCatalog{plans: []*model.PricingPlan{{PlanName: "basic", PricingID: "price_basic", BillingCycle: model.BillingCycleMonthly, CoinReward: 200}}},
	}
}

// fakeAuth stands in for the JWT middleware: X-User carries the user id.
func fakeAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		uid := r.Header.Get("X-User")
		if uid == "" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r.WithContext(logging.WithUserID(r.Context(), uid)))
	})
}

func (d *deps) router() *chi.Mux {
	l := zerolog.Nop()
	r := chi.NewRouter()
	apiv1.RegisterAPIV1(r, apiv1.NewServer(d.checkout, d.subs, d.wallets, d.catalog, &l), fakeAuth)
	return r
}

func do(r http.Handler, method, path, body string, user string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, bytes.NewBufferString(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if user != "" {
		req.Header.Set("X-User", user)
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

//
// -------------------- tests --------------------
//

func TestCheckoutSession(t *testing.T) {
	t.Run("200 returns the session and passes the caller's id", func(t *testing.T) {
		d := newDeps()
		rec := do(d.router(), http.MethodPost, "/api/v1/checkout-session", `{"plan":"basic","cycle":"Monthly","coupon":"first50"}`, "u1")
		if rec.Code != http.StatusOK {
			t.Fatalf("want 200, got %d, body=%s", rec.Code, rec.Body.String())
		}
		var body apiv1.CheckoutSessionResponse
		if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if body.SessionID != "cs_1" || body.Mode != "subscription" {
			t.Fatalf("unexpected body: %+v", body)
		}
		if d.checkout.got.UserID != "u1" || d.checkout.got.Cycle != model.BillingCycleMonthly || d.checkout.got.Plan != "basic" {
			t.Fatalf("unexpected input: %+v", d.checkout.got)
		}
	})

	t.Run("401 without a user", func(t *testing.T) {
		rec := do(newDeps().router(), http.MethodPost, "/api/v1/checkout-session", `{"plan":"basic"}`, "")
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("want 401, got %d", rec.Code)
		}
	})

	t.Run("400 on malformed body", func(t *testing.T) {
		rec := do(newDeps().router(), http.MethodPost, "/api/v1/checkout-session", `{`, "u1")
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("want 400, got %d", rec.Code)
		}
	})

	errCases := []struct {
		name string
		err  error
		want int
	}{
		{"unknown plan", fmt.Errorf("%w: price_x", domain.ErrUnknownPlan), http.StatusBadRequest},
		{"expired coupon", domain.ErrPromoExpired, http.StatusBadRequest},
		{"rate limited", domain.ErrRateLimited, http.StatusTooManyRequests},
		{"unknown user", domain.ErrUserNotFound, http.StatusNotFound},
		{"gateway down", fmt.Errorf("%w: timeout", domain.ErrGatewayFailure), http.StatusBadGateway},
		{"price not configured", domain.ErrSettingMissing, http.StatusServiceUnavailable},
		{"unexpected", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range errCases {
		t.Run(tc.name, func(t *testing.T) {
			d := newDeps()
			d.checkout.CreateSessionFunc = func(ctx context.Context, in usecase.CheckoutInput) (*usecase.CheckoutResult, error) {
				return nil, tc.err
			}
			rec := do(d.router(), http.MethodPost, "/api/v1/checkout-session", `{"plan":"basic"}`, "u1")
			if rec.Code != tc.want {
				t.Fatalf("want %d, got %d, body=%s", tc.want, rec.Code, rec.Body.String())
			}
		})
	}
}

func TestSubscriptionStatus(t *testing.T) {
	t.Run("404 when the user never subscribed", func(t *testing.T) {
		rec := do(newDeps().router(), http.MethodGet, "/api/v1/subscription/status", "", "u1")
		if rec.Code != http.StatusNotFound {
			t.Fatalf("want 404, got %d", rec.Code)
		}
	})

	t.Run("200 with the latest subscription", func(t *testing.T) {
		d := newDeps()
		end := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
		d.subs.StatusFunc = func(ctx context.Context, userID string) (*model.Subscription, error) {
			return &model.Subscription{ID: "s1", UserID: userID, Status: model.SubscriptionStatusActive, PlanName: "basic", CurrentPeriodEnd: &end, TotalCoinsRewarded: 400}, nil
		}
		rec := do(d.router(), http.MethodGet, "/api/v1/subscription/status", "", "u1")
		if rec.Code != http.StatusOK {
			t.Fatalf("want 200, got %d", rec.Code)
		}
		var body apiv1.Subscription
		if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if body.Status != "active" || body.TotalCoinsRewarded != 400 || body.CurrentPeriodEnd == nil {
			t.Fatalf("unexpected body: %+v", body)
		}
	})
}

func TestWallet(t *testing.T) {
	t.Run("200 with balance", func(t *testing.T) {
		rec := do(newDeps().router(), http.MethodGet, "/api/v1/wallet", "", "u1")
		if rec.Code != http.StatusOK {
			t.Fatalf("want 200, got %d", rec.Code)
		}
		var body apiv1.Wallet
		_ = json.NewDecoder(rec.Body).Decode(&body)
		if body.CoinBalance != 200 || body.UserID != "u1" {
			t.Fatalf("unexpected body: %+v", body)
		}
	})

	t.Run("404 when the wallet does not exist", func(t *testing.T) {
		d := newDeps()
		d.wallets.BalanceFunc = func(ctx context.Context, userID string) (*model.UserWallet, error) {
			return nil, domain.ErrWalletNotFound
		}
		rec := do(d.router(), http.MethodGet, "/api/v1/wallet", "", "u1")
		if rec.Code != http.StatusNotFound {
			t.Fatalf("want 404, got %d", rec.Code)
		}
	})

	t.Run("transactions honour and cap the limit", func(t *testing.T) {
		d := newDeps()
		var gotLimit int
		d.wallets.TransactionsFunc = func(ctx context.Context, userID string, limit int) ([]*model.CoinTransaction, error) {
			gotLimit = limit
			return nil, nil
		}
		r := d.router()
		if rec := do(r, http.MethodGet, "/api/v1/wallet/transactions?limit=10", "", "u1"); rec.Code != http.StatusOK || gotLimit != 10 {
			t.Fatalf("want 200 with limit 10, got %d with %d", rec.Code, gotLimit)
		}
		if rec := do(r, http.MethodGet, "/api/v1/wallet/transactions?limit=100000", "", "u1"); rec.Code != http.StatusOK || gotLimit != 500 {
			t.Fatalf("want capped limit 500, got %d", gotLimit)
		}
		if rec := do(r, http.MethodGet, "/api/v1/wallet/transactions?limit=-1", "", "u1"); rec.Code != http.StatusBadRequest {
			t.Fatalf("want 400, got %d", rec.Code)
		}
	})
}

func TestCatalog(t *testing.T) {
	t.Run("pricing is public", func(t *testing.T) {
		rec := do(newDeps().router(), http.MethodGet, "/api/v1/pricing", "", "")
		if rec.Code != http.StatusOK {
			t.Fatalf("want 200, got %d", rec.Code)
		}
		var body struct {
			Items []apiv1.Plan `json:"items"`
		}
		if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if len(body.Items) != 1 || body.Items[0].PriceID != "price_basic" {
			t.Fatalf("items mismatch: %+v", body.Items)
		}
	})

	t.Run("promos list", func(t *testing.T) {
		rec := do(newDeps().router(), http.MethodGet, "/api/v1/promos", "", "")
		if rec.Code != http.StatusOK {
			t.Fatalf("want 200, got %d", rec.Code)
		}
	})

	t.Run("repo error maps to 500", func(t *testing.T) {
		d := newDeps()
		d.catalog.err = errors.New("db down")
		rec := do(d.router(), http.MethodGet, "/api/v1/pricing", "", "")
		if rec.Code != http.StatusInternalServerError {
			t.Fatalf("want 500, got %d", rec.Code)
		}
	})
}
