package handler

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/zhouzirui/simplifychat/backend/internal/config"
	"github.com/zhouzirui/simplifychat/backend/internal/handler/chat"
	"github.com/zhouzirui/simplifychat/backend/internal/handler/realtime"
	"github.com/zhouzirui/simplifychat/backend/internal/handler/summary"
	middlewarePkg "github.com/zhouzirui/simplifychat/backend/internal/middleware"
	realtimeHub "github.com/zhouzirui/simplifychat/backend/internal/realtime"
	chatService "github.com/zhouzirui/simplifychat/backend/internal/service/chat"
	summaryService "github.com/zhouzirui/simplifychat/backend/internal/service/summary"
	"github.com/zhouzirui/simplifychat/backend/pkg/utils"
)

// requestTimeout bounds plain REST calls. Streaming and websocket routes are exempt.
const requestTimeout = 60 * time.Second

// Pinger reports whether the backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// NewRouter wires HTTP routes to core services. A failing cache only degrades /healthz.
func NewRouter(serverCfg config.ServerConfig, db Pinger, cache Pinger, chatSvc *chatService.Service, summarySvc *summaryService.Service, hub *realtimeHub.Hub) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.CORS(serverCfg.AllowedOrigins))

	chatHandler := chat.New(chatSvc)
	summaryHandler := summary.New(summarySvc)
	wsHandler := realtime.New(chatSvc, hub)

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		utils.RespondJSON(w, http.StatusOK, map[string]string{"message": "Welcome to SimplifyChat API"})
	})
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := db.Ping(ctx); err != nil {
			log.Printf("[health] store ping failed: %v", err)
			utils.RespondJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}

		cacheStatus := "ok"
		if cache != nil {
			if err := cache.Ping(ctx); err != nil {
				log.Printf("[health] cache ping failed: %v", err)
				cacheStatus = "unavailable"
			}
		}
		utils.RespondJSON(w, http.StatusOK, map[string]string{"status": "ok", "cache": cacheStatus})
	})

	r.Route("/api/v1", func(api chi.Router) {
		api.Group(func(rest chi.Router) {
			rest.Use(middleware.Timeout(requestTimeout))
			chatHandler.RegisterRoutes(rest)
			summaryHandler.RegisterRoutes(rest)
		})

		// Long-lived connections
		summaryHandler.RegisterStreamRoutes(api)
		wsHandler.RegisterRoutes(api)
	})

	return r
}
