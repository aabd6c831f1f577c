package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/quizwars/duelsvc/api/handlers"
)

// NewRouter assembles the HTTP surface: the duel operations, the websocket
// push channel, health and metrics.
func NewRouter(handler *handlers.DuelHandler, hub *Hub, logger *slog.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/duels", func(r chi.Router) {
		r.Post("/tickets", handler.Match)
		r.Post("/invitations", handler.CreateInvitation)
		r.Post("/invitations/{code}/accept", handler.AcceptInvitation)

		r.Route("/{duelID}", func(r chi.Router) {
			r.Post("/start", handler.StartDuel)
			r.Post("/rounds/{roundNumber}/answer", handler.SubmitAnswer)
			r.Get("/status", handler.GetStatus)
			r.Delete("/", handler.CancelWaiting)
		})
	})

	r.Post("/admin/duels/cancel-all", handler.CancelAllActive)

	if hub != nil {
		r.Get("/ws/duels/{duelID}", func(w http.ResponseWriter, req *http.Request) {
			duelID, err := uuid.Parse(chi.URLParam(req, "duelID"))
			if err != nil {
				http.Error(w, "invalid duel id", http.StatusBadRequest)
				return
			}
			hub.ServeDuel(w, req, duelID)
		})
	}

	return r
}
