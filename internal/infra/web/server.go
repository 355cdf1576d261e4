package web

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"companion-billing/internal/infra/logging"
	"companion-billing/internal/infra/metrics"
	"companion-billing/internal/usecase"
)

// Server is the operator-facing admin API.
type Server struct {
	settings usecase.SettingsUseCase
	wallets  usecase.WalletUseCase
	subs     usecase.SubscriptionUseCase
	catalog  usecase.CatalogUseCase
	apiKey   string
	log      *zerolog.Logger
}

func NewServer(
	settings usecase.SettingsUseCase,
	wallets usecase.WalletUseCase,
	subs usecase.SubscriptionUseCase,
	catalog usecase.CatalogUseCase,
	apiKey string,
	logger *zerolog.Logger,
) *Server {
	l := logger.With().Str("component", "admin").Logger()
	return &Server{
		settings: settings,
		wallets:  wallets,
		subs:     subs,
		catalog:  catalog,
		apiKey:   apiKey,
		log:      &l,
	}
}

// RegisterRoutes sets up the routing for the admin API.
func (s *Server) RegisterRoutes(r chi.Router) {
	r.Route("/admin", func(r chi.Router) {
		r.Use(s.authMiddleware)

		r.Get("/settings", settingsGetHandler(s.settings))
		r.Put("/settings/{key}", settingsSetHandler(s.settings, s.log))
		r.Post("/settings/reload", settingsReloadHandler(s.settings, s.log))

		r.Post("/wallets/{userID}/adjust", walletAdjustHandler(s.wallets, s.log))
		r.Get("/wallets/{userID}/audit", walletAuditHandler(s.wallets))

		r.Get("/users/{userID}/subscriptions", subscriptionsListHandler(s.subs))
		r.Get("/subscriptions/{subscriptionID}/history", subscriptionHistoryHandler(s.subs))

		r.Get("/plans", plansListHandler(s.catalog))
		r.Put("/plans", planSaveHandler(s.catalog, s.log))
		r.Put("/promos", promoSaveHandler(s.catalog, s.log))
	})
}

// authMiddleware provides simple Bearer token authentication for the admin API.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		action := adminAction(r)
		if s.apiKey == "" {
			s.log.Error().Msg("Admin API key is not configured")
			metrics.IncAdminAction(action, "unauthorized")
			http.Error(w, "Forbidden", http.StatusForbidden)
			return
		}

		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			metrics.IncAdminAction(action, "unauthorized")
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		tokenParts := strings.Split(authHeader, " ")
		if len(tokenParts) != 2 || strings.ToLower(tokenParts[0]) != "bearer" {
			metrics.IncAdminAction(action, "unauthorized")
			http.Error(w, "Unauthorized: Malformed token", http.StatusUnauthorized)
			return
		}

		if subtle.ConstantTimeCompare([]byte(tokenParts[1]), []byte(s.apiKey)) != 1 {
			s.log.Warn().Str("action", action).Str("key", logging.Redact(tokenParts[1])).Msg("admin request with wrong api key")
			metrics.IncAdminAction(action, "unauthorized")
			http.Error(w, "Forbidden", http.StatusForbidden)
			return
		}

		metrics.IncAdminAction(action, "authorized")
		next.ServeHTTP(w, r)
	})
}

// adminAction names the request for metrics without embedding ids.
func adminAction(r *http.Request) string {
	parts := strings.Split(strings.Trim(strings.TrimPrefix(r.URL.Path, "/admin"), "/"), "/")
	name := r.Method + " " + parts[0]
	if n := len(parts); n > 2 {
		name += " " + parts[n-1]
	}
	return name
}
