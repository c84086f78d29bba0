package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	custommiddleware "github.com/mmeshcher/laundry-system/internal/middleware"
)

// SetupRouter настраивает HTTP-маршруты и middleware сервиса химчистки.
func (h *Handler) SetupRouter() *chi.Mux {
	r := chi.NewRouter()

	r.Use(custommiddleware.GzipMiddleware)
	r.Use(custommiddleware.Logger(h.logger))

	r.Route("/api", func(r chi.Router) {
		r.Post("/login", h.Login)

		r.Group(func(r chi.Router) {
			r.Use(h.authMiddleware.Middleware)

			r.Post("/customers", h.CreateCustomer)
			r.Get("/customers", h.ListCustomers)
			r.Get("/customers/{id}", h.GetCustomer)
			r.Put("/customers/{id}", h.UpdateCustomer)
			r.Delete("/customers/{id}", h.DeleteCustomer)

			r.Post("/customers/{id}/recharge", h.Recharge)
			r.Get("/customers/{id}/recharges", h.GetRecharges)

			r.Post("/orders", h.CreateOrder)
			r.Get("/orders", h.ListOrders)
			r.Get("/orders/{id}", h.GetOrder)
			r.Post("/orders/{id}/status", h.UpdateOrderStatus)
			r.Delete("/orders/{id}", h.DeleteOrder)

			r.Get("/pricelist", h.GetPriceList)

			r.Get("/reports/daily", h.GetDailyReport)
			r.Get("/reports/monthly", h.GetMonthlyReport)
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
