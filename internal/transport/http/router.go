package http

import (
	"net/http"
	"time"

	"github.com/vinocount/session-service/internal/security"
	httpmw "github.com/vinocount/session-service/internal/transport/http/middleware"
	"github.com/vinocount/session-service/internal/transport/ws"

	"github.com/go-chi/chi/v5"
	middlewareChi "github.com/go-chi/chi/v5/middleware"
)

func NewRouter(h *Handler, verifier *security.Verifier, wsServer *ws.Server) http.Handler {
	r := chi.NewRouter()
	r.Use(middlewareChi.RequestID)
	r.Use(middlewareChi.RealIP)
	r.Use(middlewareChi.Recoverer)

	// WS endpoint (токен в query, см. ws.Server)
	r.Get("/ws/sessions/{id}", wsServer.HandleWS)

	// Все REST-маршруты требуют Bearer-токен
	r.Group(func(pr chi.Router) {
		pr.Use(httpmw.AuthMiddleware(verifier))
		pr.Use(middlewareChi.Timeout(30 * time.Second))

		pr.Route("/sessions", func(sr chi.Router) {
			sr.Post("/", h.CreateSession)
			sr.Get("/", h.ListSessions)

			sr.Route("/{id}", func(rr chi.Router) {
				rr.Get("/", h.GetSession)
				rr.Post("/actions", h.PerformAction)
				rr.Get("/audit", h.GetAudit)
				rr.Get("/participants", h.GetParticipants)
			})
		})

		pr.Route("/roles", func(rr chi.Router) {
			rr.Get("/", h.ListRoles)
			rr.Put("/{name}", h.SaveRole)
			rr.Delete("/{name}", h.DeleteRole)
		})
	})

	// health
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	return r
}
