package httpx

import (
	"net/http"
	"strconv"

	"github.com/jcmexdev/ecommerce-checkout/internal/checkout-service/core/domain/entity"
)

func (h *Handler) GetCart(w http.ResponseWriter, r *http.Request) {
	cart, err := h.carts.GetCart(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, mapCart(cart))
}

func (h *Handler) AddCartItem(w http.ResponseWriter, r *http.Request) {
	var req CartItemRequest
	if !h.decode(w, r, &req, false) {
		return
	}
	cart, err := h.carts.AddItem(r.Context(), req.ProductID, req.Quantity)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, mapCart(cart))
}

func (h *Handler) UpdateCartItem(w http.ResponseWriter, r *http.Request) {
	productID, ok := idParam(w, r, "productId")
	if !ok {
		return
	}
	var req QuantityRequest
	if !h.decode(w, r, &req, false) {
		return
	}
	cart, err := h.carts.UpdateItem(r.Context(), productID, req.Quantity)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, mapCart(cart))
}

func (h *Handler) RemoveCartItem(w http.ResponseWriter, r *http.Request) {
	productID, ok := idParam(w, r, "productId")
	if !ok {
		return
	}
	cart, err := h.carts.RemoveItem(r.Context(), productID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, mapCart(cart))
}

func (h *Handler) ClearCart(w http.ResponseWriter, r *http.Request) {
	if err := h.carts.Clear(r.Context()); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) ListProducts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	query := entity.ProductQuery{Search: q.Get("q")}
	query.Page, _ = strconv.Atoi(q.Get("page"))
	query.Limit, _ = strconv.Atoi(q.Get("limit"))
	query.CategoryID, _ = strconv.ParseInt(q.Get("categoryId"), 10, 64)

	page, err := h.catalog.ListProducts(r.Context(), query)
	if err != nil {
		writeError(w, r, err)
		return
	}
	resp := ProductPageResponse{Items: make([]ProductResponse, len(page.Items)), Page: page.Page, Limit: page.Limit, Total: page.Total}
	for i := range page.Items {
		resp.Items[i] = mapProduct(&page.Items[i])
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) GetProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r, "id")
	if !ok {
		return
	}
	p, err := h.catalog.GetProduct(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, mapProduct(p))
}

func (h *Handler) ListCategories(w http.ResponseWriter, r *http.Request) {
	cats, err := h.catalog.ListCategories(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := make([]CategoryResponse, len(cats))
	for i, c := range cats {
		out[i] = CategoryResponse{ID: c.ID, Name: c.Name}
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) TransportMethods(w http.ResponseWriter, r *http.Request) {
	methods, err := h.catalog.TransportMethods(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := make([]TransportMethodResponse, len(methods))
	for i, m := range methods {
		out[i] = TransportMethodResponse{Type: m.Type, Name: m.Name, EstimatedDays: m.EstimatedDays}
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) ShippingQuote(w http.ResponseWriter, r *http.Request) {
	var req QuoteRequest
	if !h.decode(w, r, &req, false) {
		return
	}
	products := make([]entity.ShipmentProduct, len(req.Products))
	for i, p := range req.Products {
		products[i] = entity.ShipmentProduct{ID: p.ID, Quantity: p.Quantity}
	}
	q, err := h.catalog.Quote(r.Context(), entity.QuoteRequest{
		Address:       req.DeliveryAddress.toEntity().Delivery(),
		Products:      products,
		TransportType: req.TransportType,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, QuoteResponse{
		TransportType: q.TransportType,
		Currency:      q.Currency,
		Cost:          q.Cost.StringFixed(2),
		EstimatedDays: q.EstimatedDays,
	})
}
