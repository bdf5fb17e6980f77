package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/zhouzirui/travel-agent/backend/internal/handler/travel"
	"github.com/zhouzirui/travel-agent/backend/internal/logger"
	middlewarePkg "github.com/zhouzirui/travel-agent/backend/internal/middleware"
	travelService "github.com/zhouzirui/travel-agent/backend/internal/service/travel"
	"github.com/zhouzirui/travel-agent/backend/pkg/utils"
)

// NewRouter wires HTTP routes to core services.
func NewRouter(travelSvc *travelService.Service, cookie middlewarePkg.SessionCookie) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middlewarePkg.RequestLogger(logger.Component("http")))
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		utils.RespondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	travelHandler := travel.New(travelSvc)

	r.Group(func(sessioned chi.Router) {
		sessioned.Use(middlewarePkg.Session(cookie))

		// Register the HTML form
		travelHandler.RegisterPages(sessioned)

		sessioned.Route("/api", func(api chi.Router) {
			travelHandler.RegisterRoutes(api)
		})
	})

	return r
}
