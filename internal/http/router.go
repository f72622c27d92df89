package http

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

type RouterConfig struct {
	RequestTimeout time.Duration
	Gatherer       prometheus.Gatherer
	Log            logrus.FieldLogger

	// AdminSecret signs operator tokens. Empty disables the operator routes.
	AdminSecret string
}

func NewRouter(cartHandler *CartHandler, ordersHandler *OrdersHandler, cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(RequestLogger(cfg.Log))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(cfg.RequestTimeout))
	r.Use(middleware.Compress(5))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if cfg.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(OwnerMiddleware)

			r.Route("/cart", func(r chi.Router) {
				r.Get("/", cartHandler.GetCart)
				r.Delete("/", cartHandler.ClearCart)
				r.Post("/items", cartHandler.AddItem)
				r.Put("/items/{line_id}", cartHandler.UpdateQuantity)
				r.Delete("/items/{line_id}", cartHandler.RemoveItem)
			})

			r.Post("/orders", ordersHandler.CreateOrder)
			r.Get("/orders", ordersHandler.ListOrders)
			r.Get("/orders/{order_id}", ordersHandler.GetOrder)
			r.Get("/orders/{order_id}/history", ordersHandler.GetHistory)
			r.Post("/orders/{order_id}/cancel", ordersHandler.CancelOrder)
		})

		// Operator routes act on any order.
		r.Group(func(r chi.Router) {
			r.Use(AdminMiddleware(cfg.AdminSecret))

			r.Put("/orders/{order_id}/status", ordersHandler.UpdateStatus)
			r.Put("/orders/{order_id}/payment-status", ordersHandler.UpdatePaymentStatus)
		})
	})

	return otelhttp.NewHandler(r, "storefront")
}
