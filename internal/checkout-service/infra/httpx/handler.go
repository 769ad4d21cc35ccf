package httpx

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	validatorv10 "github.com/go-playground/validator/v10"

	"github.com/jcmexdev/ecommerce-checkout/internal/checkout-service/app"
	"github.com/jcmexdev/ecommerce-checkout/internal/pkg/reqctx"
)

// Handler serves the checkout API.
type Handler struct {
	orders   *app.OrderService
	carts    *app.CartService
	catalog  *app.CatalogService
	validate *validatorv10.Validate
}

func NewHandler(orders *app.OrderService, carts *app.CartService, catalog *app.CatalogService) *Handler {
	return &Handler{
		orders:   orders,
		carts:    carts,
		catalog:  catalog,
		validate: validatorv10.New(),
	}
}

// decode reads a JSON body into out and validates it. An empty body is
// accepted when allowEmpty is set. It writes the 400 itself and reports
// false on failure.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, out any, allowEmpty bool) bool {
	if err := json.NewDecoder(r.Body).Decode(out); err != nil {
		if !(allowEmpty && errors.Is(err, io.EOF)) {
			writeBadRequest(w, "invalid JSON body: "+err.Error())
			return false
		}
	}
	if err := h.validate.Struct(out); err != nil {
		writeValidationError(w, err)
		return false
	}
	return true
}

func idParam(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		writeBadRequest(w, name+" must be a positive integer")
		return 0, false
	}
	return id, true
}

// Checkout turns the caller's cart into a confirmed order.
func (h *Handler) Checkout(w http.ResponseWriter, r *http.Request) {
	var req CheckoutRequest
	if !h.decode(w, r, &req, false) {
		return
	}

	slog.InfoContext(r.Context(), "checkout requested",
		"transport_type", req.TransportType,
		"idempotency_key", reqctx.IdempotencyKey(r.Context()),
	)

	res, err := h.orders.Checkout(r.Context(), app.CheckoutInput{
		Address:       req.DeliveryAddress.toEntity(),
		TransportType: req.TransportType,
		PaymentMethod: req.PaymentMethod,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	if res.Replayed {
		writeJSON(w, http.StatusOK, mapConfirmation(res, "order already placed"))
		return
	}
	writeJSON(w, http.StatusCreated, mapConfirmation(res, "order confirmed"))
}

func (h *Handler) ConfirmOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r, "id")
	if !ok {
		return
	}
	var req ConfirmRequest
	if !h.decode(w, r, &req, true) {
		return
	}
	res, err := h.orders.ConfirmExistingOrder(r.Context(), id, req.TransportType)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, mapConfirmation(res, "order confirmed"))
}

func (h *Handler) CancelOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r, "id")
	if !ok {
		return
	}
	order, err := h.orders.CancelOrder(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, mapOrderToResponse(order))
}

func (h *Handler) OrderHistory(w http.ResponseWriter, r *http.Request) {
	orders, err := h.orders.GetHistory(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, mapOrders(orders))
}

// GetOrderByID retrieves a single order by its ID.
func (h *Handler) GetOrderByID(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r, "id")
	if !ok {
		return
	}
	order, err := h.orders.GetOrderDetail(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, mapOrderToResponse(order))
}

func (h *Handler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	var req CreateOrderRequest
	if !h.decode(w, r, &req, false) {
		return
	}
	order, err := h.orders.CreateOrder(r.Context(), app.CreateOrderInput{
		Address:       req.ShippingAddress.toEntity(),
		Lines:         toLineInputs(req.Lines),
		TransportType: req.TransportType,
		Draft:         req.Draft,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, mapOrderToResponse(order))
}

func (h *Handler) UpdateOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r, "id")
	if !ok {
		return
	}
	var req UpdateOrderRequest
	if !h.decode(w, r, &req, false) {
		return
	}
	order, err := h.orders.UpdateOrder(r.Context(), id, app.UpdateOrderInput{
		Address:       req.ShippingAddress.toEntity(),
		Lines:         toLineInputs(req.Lines),
		TransportType: req.TransportType,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, mapOrderToResponse(order))
}

func (h *Handler) DeleteOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r, "id")
	if !ok {
		return
	}
	if err := h.orders.DeleteOrder(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) OrderShipment(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r, "id")
	if !ok {
		return
	}
	sh, err := h.orders.GetOrderShipment(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, mapShipment(sh))
}

func (h *Handler) OrderSagaLog(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r, "id")
	if !ok {
		return
	}
	entries, err := h.orders.SagaLog(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, mapSagaLog(entries))
}
