package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	custommiddleware "github.com/mmeshcher/comanda/internal/middleware"
)

// SetupRouter настраивает HTTP-маршруты и middleware сервиса заказов.
func (h *Handler) SetupRouter() *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(custommiddleware.GzipMiddleware)
	r.Use(custommiddleware.Logger(h.logger))

	r.Route("/api", func(r chi.Router) {
		r.Post("/session", h.OpenSession)
		r.Get("/clock", h.Clock)

		r.Group(func(r chi.Router) {
			r.Use(h.authMiddleware.Middleware)

			r.Get("/tables", h.ListTables)
			r.Put("/tables/{number}", h.UpsertTable)
			r.Get("/tables/{number}/selectable", h.TableSelectable)

			r.Post("/orders", h.CreateOrder)
			r.Get("/orders", h.ListOrders)
			r.Get("/orders/{id}", h.GetOrder)
			r.Delete("/orders/{id}", h.DeleteOrder)
			r.Get("/orders/{id}/history", h.OrderHistory)
			r.Post("/orders/{id}/status", h.TransitionOrder)
			r.Post("/orders/{id}/modifications", h.RequestModification)

			r.Get("/kitchen/board", h.KitchenBoard)

			r.Get("/accounts", h.ListAccounts)
			r.Get("/accounts/{id}", h.GetAccount)
			r.Post("/accounts/{id}/close", h.CloseAccount)
			r.Post("/accounts/{id}/collect", h.CollectAccount)

			r.Get("/modifications", h.ListPendingModifications)
			r.Get("/modifications/{id}", h.GetModification)
			r.Post("/modifications/{id}/resolve", h.ResolveModification)
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
	})

	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
	})

	return r
}
