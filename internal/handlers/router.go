package handlers

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"ticketing/internal/config"
	"ticketing/internal/middleware"
	"ticketing/internal/poller"
	"ticketing/internal/websocket"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	gorillaws "github.com/gorilla/websocket"
)

type Handler struct {
	cfg             config.Config
	logger          *slog.Logger
	wallets         WalletService
	payments        PaymentService
	recommendations RecommendationService
	adjudication    AdjudicationService
	inventory       InventoryService
	admin           AdminStore
	audit           AuditStore
	alerts          AlertStore
	hub             *websocket.Hub
	upgrader        *gorillaws.Upgrader
	limiter         middleware.Counter
	pollInterval    time.Duration
}

func New(cfg config.Config, logger *slog.Logger, wallets WalletService, payments PaymentService, recommendations RecommendationService, adjudication AdjudicationService, inventory InventoryService, admin AdminStore, audit AuditStore, alerts AlertStore, hub *websocket.Hub, limiter middleware.Counter) *Handler {
	return &Handler{
		cfg:             cfg,
		logger:          logger,
		wallets:         wallets,
		payments:        payments,
		recommendations: recommendations,
		adjudication:    adjudication,
		inventory:       inventory,
		admin:           admin,
		audit:           audit,
		alerts:          alerts,
		hub:             hub,
		upgrader:        websocket.NewUpgrader(cfg.AllowedOrigins),
		limiter:         limiter,
		pollInterval:    poller.DefaultInterval,
	}
}

func (h *Handler) rateLimited(scope string) func(http.Handler) http.Handler {
	return middleware.RateLimit(h.limiter, h.logger, scope, h.cfg.RateLimit, h.cfg.RateLimitWindow)
}

func (h *Handler) Routes() http.Handler {
	router := chi.NewRouter()
	router.Use(chimiddleware.RequestID)
	router.Use(chimiddleware.Recoverer)
	router.Use(middleware.RequestLogger(h.logger))
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins(h.cfg.AllowedOrigins),
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	router.With(middleware.AuthWebSocket(h.cfg.JWTSecret)).Get("/ws", h.ServeWS)

	router.Group(func(r chi.Router) {
		r.Use(middleware.Auth(h.cfg.JWTSecret))

		r.Post("/wallet", h.EnsureWallet)
		r.Get("/wallet", h.GetWallet)
		r.Get("/wallet/transactions", h.ListTransactions)

		r.With(h.rateLimited("payments_orders")).Post("/payments/orders", h.CreateOrder)
		r.With(h.rateLimited("payments_verify")).Post("/payments/verify", h.VerifyPayment)

		r.Get("/events/{id}", h.GetEvent)

		r.Post("/pending-events", h.CreatePendingEvent)
		r.Get("/pending-events/{id}", h.GetPendingEvent)

		r.With(h.rateLimited("recommendations_request")).Post("/recommendations", h.RequestRecommendation)
		r.Get("/recommendations", h.ListMyPendingRecommendations)
		r.Get("/recommendations/{id}", h.GetRecommendation)
		r.With(h.rateLimited("recommendations_status")).Get("/recommendations/{id}/status", h.GetRecommendationStatus)
		r.Post("/recommendations/{id}/apply", h.ApplyRecommendation)
	})

	router.Route("/admin", func(r chi.Router) {
		r.Use(middleware.Auth(h.cfg.JWTSecret))
		respond := middleware.RequireAdmin(h.admin, middleware.RoleRespondRecommendations)
		adjudicate := middleware.RequireAdmin(h.admin, middleware.RoleAdjudicateEvents)
		inventory := middleware.RequireAdmin(h.admin, middleware.RoleManageInventory)
		reports := middleware.RequireAdmin(h.admin, middleware.RoleViewReports)

		r.With(respond).Get("/recommendations", h.AdminListPendingRecommendations)
		r.With(respond).Post("/recommendations/{id}/respond", h.RespondToRecommendation)

		r.With(adjudicate).Get("/pending-events/{id}", h.AdminGetPendingEvent)
		r.With(adjudicate).Post("/pending-events/{id}/recommendations", h.CreateAdminRecommendation)
		r.With(adjudicate).Post("/pending-events/{id}/finalize", h.FinalizePendingEvent)
		r.With(adjudicate).Post("/admin-recommendations/{id}/approve", h.ApproveAdminRecommendation)
		r.With(adjudicate).Post("/admin-recommendations/{id}/reject", h.RejectAdminRecommendation)

		r.With(inventory).Post("/events/{id}/inventory", h.AdjustInventory)

		r.With(reports).Get("/reconcile/wallets", h.ReconcileWallets)
		r.With(reports).Get("/reconcile/events", h.ReconcileEvents)
		r.With(reports).Get("/alerts", h.ListAlerts)
		r.With(reports).Get("/audit", h.ListAuditLogs)
	})
	return router
}

func allowedOrigins(raw string) []string {
	var origins []string
	for _, origin := range strings.Split(raw, ",") {
		if origin = strings.TrimSpace(origin); origin != "" {
			origins = append(origins, origin)
		}
	}
	if len(origins) == 0 {
		return []string{"*"}
	}
	return origins
}

func (h *Handler) ServeWS(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	websocket.ServeWS(w, r, h.upgrader, h.hub, userID)
}
