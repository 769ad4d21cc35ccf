package httpx

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/jcmexdev/ecommerce-checkout/internal/checkout-service/infra/httpx/middlewares"
	"github.com/jcmexdev/ecommerce-checkout/internal/pkg/metrics"
)

// NewRouter wires the API routes. m may be nil, which disables /metrics.
func NewRouter(handler *Handler, m *metrics.Metrics) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middlewares.AttachRequestContext)
	if m != nil {
		r.Use(m.Middleware)
	}
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if m != nil {
		r.Method(http.MethodGet, "/metrics", m.Handler())
	}

	r.Get("/products", handler.ListProducts)
	r.Get("/products/{id}", handler.GetProduct)
	r.Get("/categories", handler.ListCategories)

	r.Route("/cart", func(r chi.Router) {
		r.Get("/", handler.GetCart)
		r.Delete("/", handler.ClearCart)
		r.Post("/items", handler.AddCartItem)
		r.Put("/items/{productId}", handler.UpdateCartItem)
		r.Delete("/items/{productId}", handler.RemoveCartItem)
	})

	r.Post("/checkout", handler.Checkout)

	r.Route("/orders", func(r chi.Router) {
		r.Post("/", handler.CreateOrder)
		r.Get("/history", handler.OrderHistory)
		r.Get("/{id}", handler.GetOrderByID)
		r.Patch("/{id}", handler.UpdateOrder)
		r.Delete("/{id}", handler.DeleteOrder)
		r.Post("/{id}/confirm", handler.ConfirmOrder)
		r.Delete("/{id}/cancel", handler.CancelOrder)
		r.Post("/{id}/cancel", handler.CancelOrder)
		r.Get("/{id}/shipment", handler.OrderShipment)
		r.Get("/{id}/saga", handler.OrderSagaLog)
	})

	r.Get("/shipping/transport-methods", handler.TransportMethods)
	r.Post("/shipping/quote", handler.ShippingQuote)
	return r
}
