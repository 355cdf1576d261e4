package web

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"companion-billing/internal/domain"
	"companion-billing/internal/domain/model"
	"companion-billing/internal/infra/metrics"
	"companion-billing/internal/usecase"
)

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

// statusFor maps domain errors to admin API status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrUserNotFound), errors.Is(err, domain.ErrNotFound),
		errors.Is(err, domain.ErrSubscriptionNotFound), errors.Is(err, domain.ErrWalletNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrAlreadyExists):
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

type snapshotResponse struct {
	Version  int64             `json:"version"`
	LoadedAt time.Time         `json:"loaded_at"`
	Values   map[string]string `json:"values"`
}

func toSnapshotResponse(s *model.SettingsSnapshot) snapshotResponse {
	return snapshotResponse{Version: s.Version, LoadedAt: s.LoadedAt, Values: s.All()}
}

// settingsGetHandler returns the snapshot currently served to readers.
func settingsGetHandler(settings usecase.SettingsUseCase) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, toSnapshotResponse(settings.Snapshot()))
	}
}

func settingsSetHandler(settings usecase.SettingsUseCase, log *zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Value string `json:"value"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}
		key := chi.URLParam(r, "key")
		if err := settings.Set(r.Context(), key, body.Value); err != nil {
			log.Error().Err(err).Str("key", key).Msg("failed to save setting")
			metrics.IncAdminAction("settings_set", "failed")
			http.Error(w, "Failed to save setting", statusFor(err))
			return
		}
		log.Info().Str("key", key).Msg("setting saved; reload to apply")
		w.WriteHeader(http.StatusNoContent)
	}
}

// settingsReloadHandler swaps in a fresh snapshot. On failure the previous
// snapshot keeps serving and is returned alongside the error.
func settingsReloadHandler(settings usecase.SettingsUseCase, log *zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		snap, err := settings.Reload(r.Context())
		if err != nil {
			log.Error().Err(err).Msg("settings reload failed")
			metrics.IncAdminAction("settings_reload", "failed")
			writeJSON(w, http.StatusInternalServerError, map[string]any{
				"error":   "reload failed; previous settings still active",
				"current": toSnapshotResponse(snap),
			})
			return
		}
		writeJSON(w, http.StatusOK, toSnapshotResponse(snap))
	}
}

type adjustRequest struct {
	Delta  int64  `json:"delta"`
	Reason string `json:"reason"`
}

type adjustResponse struct {
	EntryID  string `json:"entry_id,omitempty"`
	Previous int64  `json:"previous"`
	Balance  int64  `json:"balance"`
	Applied  int64  `json:"applied"`
}

func walletAdjustHandler(wallets usecase.WalletUseCase, log *zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body adjustRequest
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Delta == 0 {
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}
		userID := chi.URLParam(r, "userID")
		entry, change, err := wallets.Adjust(r.Context(), userID, body.Delta, body.Reason)
		if err != nil {
			log.Error().Err(err).Str("user_id", userID).Int64("delta", body.Delta).Msg("wallet adjustment failed")
			metrics.IncAdminAction("wallet_adjust", "failed")
			http.Error(w, "Failed to adjust wallet", statusFor(err))
			return
		}
		resp := adjustResponse{Previous: change.Previous, Balance: change.Balance, Applied: change.Applied()}
		if entry != nil {
			resp.EntryID = entry.ID
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

type auditEntry struct {
	ID          string    `json:"id"`
	Coins       int64     `json:"coins"`
	SourceType  string    `json:"source_type"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
}

func walletAuditHandler(wallets usecase.WalletUseCase) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		audit, err := wallets.Audit(r.Context(), chi.URLParam(r, "userID"))
		if err != nil {
			http.Error(w, "Failed to audit wallet", statusFor(err))
			return
		}
		entries := make([]auditEntry, 0, len(audit.Entries))
		for _, e := range audit.Entries {
			entries = append(entries, auditEntry{ID: e.ID, Coins: e.Coins, SourceType: string(e.SourceType), Description: e.Description, CreatedAt: e.CreatedAt})
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"user_id":    audit.UserID,
			"balance":    audit.Balance,
			"ledger_sum": audit.LedgerSum,
			"consistent": audit.Consistent(),
			"entries":    entries,
		})
	}
}

func subscriptionsListHandler(subs usecase.SubscriptionUseCase) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list, err := subs.List(r.Context(), chi.URLParam(r, "userID"))
		if err != nil {
			http.Error(w, "Failed to list subscriptions", statusFor(err))
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": list})
	}
}

func subscriptionHistoryHandler(subs usecase.SubscriptionUseCase) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rows, err := subs.History(r.Context(), chi.URLParam(r, "subscriptionID"))
		if err != nil {
			http.Error(w, "Failed to load history", statusFor(err))
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": rows})
	}
}

func plansListHandler(catalog usecase.CatalogUseCase) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		plans, err := catalog.Plans(r.Context())
		if err != nil {
			http.Error(w, "Failed to list plans", http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": plans})
	}
}

type planRequest struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	PriceID      string `json:"price_id"`
	Currency     string `json:"currency"`
	PriceCents   int64  `json:"price_cents"`
	BillingCycle string `json:"billing_cycle"`
	CoinReward   int64  `json:"coin_reward"`
	Active       *bool  `json:"active"`
}

func planSaveHandler(catalog usecase.CatalogUseCase, log *zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body planRequest
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}
		if body.ID == "" {
			body.ID = uuid.NewString()
		}
		plan, err := model.NewPricingPlan(body.ID, body.Name, body.PriceID, model.BillingCycle(body.BillingCycle), body.PriceCents, body.CoinReward)
		if err != nil {
			http.Error(w, "Invalid plan", http.StatusBadRequest)
			return
		}
		if body.Currency != "" {
			plan.Currency = body.Currency
		}
		if body.Active != nil && !*body.Active {
			plan.Status = model.PlanStatusInactive
		}
		if err := catalog.SavePlan(r.Context(), plan); err != nil {
			log.Error().Err(err).Str("price_id", body.PriceID).Msg("failed to save plan")
			http.Error(w, "Failed to save plan", statusFor(err))
			return
		}
		writeJSON(w, http.StatusOK, plan)
	}
}

type promoRequest struct {
	ID                string     `json:"id"`
	Name              string     `json:"name"`
	Coupon            string     `json:"coupon"`
	PercentOff        float64    `json:"percent_off"`
	StartDate         *time.Time `json:"start_date"`
	ExpiryDate        *time.Time `json:"expiry_date"`
	Active            *bool      `json:"active"`
	StripePromotionID string     `json:"stripe_promotion_id"`
}

func promoSaveHandler(catalog usecase.CatalogUseCase, log *zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body promoRequest
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}
		if body.PercentOff <= 0 || body.PercentOff > 100 {
			http.Error(w, "percent_off must be in (0, 100]", http.StatusBadRequest)
			return
		}
		if body.ID == "" {
			body.ID = uuid.NewString()
		}
		now := time.Now().UTC()
		promo := &model.Promo{
			ID:                body.ID,
			PromoName:         body.Name,
			Coupon:            body.Coupon,
			PercentOff:        body.PercentOff,
			StartDate:         body.StartDate,
			ExpiryDate:        body.ExpiryDate,
			Status:            model.PromoStatusActive,
			StripePromotionID: body.StripePromotionID,
			CreatedAt:         now,
			UpdatedAt:         now,
		}
		if body.Active != nil && !*body.Active {
			promo.Status = model.PromoStatusInactive
		}
		if err := catalog.SavePromo(r.Context(), promo); err != nil {
			log.Error().Err(err).Str("coupon", body.Coupon).Msg("failed to save promo")
			http.Error(w, "Failed to save promo", statusFor(err))
			return
		}
		writeJSON(w, http.StatusOK, promo)
	}
}
