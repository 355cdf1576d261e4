// Package apiv1 serves the authenticated user endpoints under /api/v1.
package apiv1

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"companion-billing/internal/domain"
	"companion-billing/internal/domain/model"
	"companion-billing/internal/infra/logging"
	"companion-billing/internal/usecase"
)

const (
	defaultTxLimit = 50
	maxTxLimit     = 500
)

type Server struct {
	checkout usecase.CheckoutUseCase
	subs     usecase.SubscriptionUseCase
	wallets  usecase.WalletUseCase
	catalog  usecase.CatalogUseCase
	log      *zerolog.Logger
}

func NewServer(
	checkout usecase.CheckoutUseCase,
	subs usecase.SubscriptionUseCase,
	wallets usecase.WalletUseCase,
	catalog usecase.CatalogUseCase,
	logger *zerolog.Logger,
) *Server {
	if logger == nil {
		l := zerolog.Nop()
		logger = &l
	}
	return &Server{checkout: checkout, subs: subs, wallets: wallets, catalog: catalog, log: logger}
}

// RegisterAPIV1 mounts the routes at absolute /api/v1 paths. auth guards the
// per-user endpoints; the catalog is public.
func RegisterAPIV1(r chi.Router, s *Server, auth func(http.Handler) http.Handler) {
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/pricing", s.listPricing)
		r.Get("/promos", s.listPromos)

		r.Group(func(r chi.Router) {
			if auth != nil {
				r.Use(auth)
			}
			r.Post("/checkout-session", s.createCheckoutSession)
			r.Get("/subscription/status", s.subscriptionStatus)
			r.Get("/wallet", s.wallet)
			r.Get("/wallet/transactions", s.walletTransactions)
		})
	})
}

// --- DTOs ---

type CheckoutSessionRequest struct {
	Plan    string `json:"plan"`
	Cycle   string `json:"cycle"`
	PriceID string `json:"price_id"`
	Coupon  string `json:"coupon"`
}

type CheckoutSessionResponse struct {
	SessionID string `json:"session_id"`
	URL       string `json:"url"`
	PriceID   string `json:"price_id"`
	Mode      string `json:"mode"`
}

type Subscription struct {
	ID                 string     `json:"id"`
	Status             string     `json:"status"`
	PlanName           string     `json:"plan_name"`
	PriceID            string     `json:"price_id"`
	CurrentPeriodStart *time.Time `json:"current_period_start,omitempty"`
	CurrentPeriodEnd   *time.Time `json:"current_period_end,omitempty"`
	CancelAtPeriodEnd  bool       `json:"cancel_at_period_end"`
	TotalCoinsRewarded int64      `json:"total_coins_rewarded"`
}

type Wallet struct {
	UserID      string    `json:"user_id"`
	CoinBalance int64     `json:"coin_balance"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type Transaction struct {
	ID          string    `json:"id"`
	Coins       int64     `json:"coins"`
	SourceType  string    `json:"source_type"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
}

type Plan struct {
	Name         string `json:"name"`
	PriceID      string `json:"price_id"`
	Currency     string `json:"currency"`
	PriceCents   int64  `json:"price_cents"`
	BillingCycle string `json:"billing_cycle"`
	CoinReward   int64  `json:"coin_reward"`
}

type Promo struct {
	Name       string     `json:"name"`
	Coupon     string     `json:"coupon"`
	PercentOff float64    `json:"percent_off"`
	ExpiryDate *time.Time `json:"expiry_date,omitempty"`
}

// --- handlers ---

func (s *Server) createCheckoutSession(w http.ResponseWriter, r *http.Request) {
	var body CheckoutSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	res, err := s.checkout.CreateSession(r.Context(), usecase.CheckoutInput{
		UserID:  logging.UserID(r.Context()),
		Plan:    strings.TrimSpace(body.Plan),
		Cycle:   model.BillingCycle(strings.ToLower(strings.TrimSpace(body.Cycle))),
		PriceID: strings.TrimSpace(body.PriceID),
		Coupon:  body.Coupon,
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, CheckoutSessionResponse{
		SessionID: res.SessionID,
		URL:       res.URL,
		PriceID:   res.PriceID,
		Mode:      string(res.Mode),
	})
}

func (s *Server) subscriptionStatus(w http.ResponseWriter, r *http.Request) {
	sub, err := s.subs.Status(r.Context(), logging.UserID(r.Context()))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, Subscription{
		ID:                 sub.ID,
		Status:             string(sub.Status),
		PlanName:           sub.PlanName,
		PriceID:            sub.PriceID,
		CurrentPeriodStart: sub.CurrentPeriodStart,
		CurrentPeriodEnd:   sub.CurrentPeriodEnd,
		CancelAtPeriodEnd:  sub.CancelAtPeriodEnd,
		TotalCoinsRewarded: sub.TotalCoinsRewarded,
	})
}

func (s *Server) wallet(w http.ResponseWriter, r *http.Request) {
	wl, err := s.wallets.Balance(r.Context(), logging.UserID(r.Context()))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, Wallet{UserID: wl.UserID, CoinBalance: wl.CoinBalance, UpdatedAt: wl.UpdatedAt})
}

func (s *Server) walletTransactions(w http.ResponseWriter, r *http.Request) {
	limit := defaultTxLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, maxTxLimit)
	}
	txs, err := s.wallets.Transactions(r.Context(), logging.UserID(r.Context()), limit)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	items := make([]Transaction, 0, len(txs))
	for _, t := range txs {
		items = append(items, Transaction{
			ID:          t.ID,
			Coins:       t.Coins,
			SourceType:  string(t.SourceType),
			Description: t.Description,
			CreatedAt:   t.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (s *Server) listPricing(w http.ResponseWriter, r *http.Request) {
	plans, err := s.catalog.Plans(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	items := make([]Plan, 0, len(plans))
	for _, p := range plans {
		items = append(items, Plan{
			Name:         p.PlanName,
			PriceID:      p.PricingID,
			Currency:     p.Currency,
			PriceCents:   p.PriceCents,
			BillingCycle: string(p.BillingCycle),
			CoinReward:   p.CoinReward,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (s *Server) listPromos(w http.ResponseWriter, r *http.Request) {
	promos, err := s.catalog.Promos(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	items := make([]Promo, 0, len(promos))
	for _, p := range promos {
		items = append(items, Promo{Name: p.PromoName, Coupon: p.Coupon, PercentOff: p.PercentOff, ExpiryDate: p.ExpiryDate})
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

// fail maps domain errors onto status codes.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	code, msg := http.StatusInternalServerError, "internal error"
	switch {
	case errors.Is(err, domain.ErrInvalidArgument):
		code, msg = http.StatusBadRequest, "invalid request"
	case errors.Is(err, domain.ErrUnknownPlan):
		code, msg = http.StatusBadRequest, "unknown plan"
	case errors.Is(err, domain.ErrPromoInvalid), errors.Is(err, domain.ErrPromoInactive), errors.Is(err, domain.ErrPromoExpired):
		code, msg = http.StatusBadRequest, err.Error()
	case errors.Is(err, domain.ErrRateLimited):
		code, msg = http.StatusTooManyRequests, "too many checkout attempts"
	case errors.Is(err, domain.ErrUserNotFound), errors.Is(err, domain.ErrWalletNotFound),
		errors.Is(err, domain.ErrSubscriptionNotFound), errors.Is(err, domain.ErrNotFound):
		code, msg = http.StatusNotFound, "not found"
	case errors.Is(err, domain.ErrGatewayFailure):
		code, msg = http.StatusBadGateway, "payment provider unavailable"
	case errors.Is(err, domain.ErrSettingMissing):
		code, msg = http.StatusServiceUnavailable, "checkout not configured"
	}
	l := logging.With(r.Context(), s.log)
	ev := l.Warn()
	if code >= http.StatusInternalServerError {
		ev = l.Error()
	}
	ev.Err(err).Int("status", code).Str("path", r.URL.Path).Msg("request failed")
	writeError(w, code, msg)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}
