package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/zhouzirui/moment-map/backend/internal/config"
	"github.com/zhouzirui/moment-map/backend/internal/handler/bubble"
	"github.com/zhouzirui/moment-map/backend/internal/handler/presence"
	"github.com/zhouzirui/moment-map/backend/internal/handler/relay"
	"github.com/zhouzirui/moment-map/backend/internal/handler/status"
	middlewarePkg "github.com/zhouzirui/moment-map/backend/internal/middleware"
	relayService "github.com/zhouzirui/moment-map/backend/internal/service/relay"
	"github.com/zhouzirui/moment-map/backend/pkg/utils"
)

// NewRouter wires HTTP routes to the relay hub.
func NewRouter(hub *relayService.Hub, cfg config.RelayConfig, logger *zap.Logger) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.CORS(cfg.AllowedOrigins))

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		utils.RespondError(w, r, logger, http.StatusNotFound, "not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		utils.RespondError(w, r, logger, http.StatusMethodNotAllowed, "method not allowed")
	})

	relayHandler := relay.New(hub, cfg, logger.Named("relay"))
	statusHandler := status.New(hub.Registry(), hub.Bubbles(), cfg.StatsInterval, logger.Named("status"))
	presenceHandler := presence.New(hub.Registry())
	bubbleHandler := bubble.New(hub.Bubbles())

	// Clients connect to the bare host, so the root serves both the
	// dashboard and the websocket endpoint.
	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		if relay.IsUpgrade(r) {
			relayHandler.ServeHTTP(w, r)
			return
		}
		statusHandler.HandleDashboard(w, r)
	})
	r.Get("/ws", relayHandler.ServeHTTP)
	r.Get("/health", statusHandler.HandleHealth)

	r.Route("/api", func(api chi.Router) {
		presenceHandler.RegisterRoutes(api)
		bubbleHandler.RegisterRoutes(api)
		statusHandler.RegisterRoutes(api)
	})

	return r
}
