// Package stock adapts the Stock service to ports.StockService, either over
// HTTP or with an in-memory catalog for local runs.
package stock

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/jcmexdev/ecommerce-checkout/internal/checkout-service/core/domain/entity"
	"github.com/jcmexdev/ecommerce-checkout/internal/checkout-service/core/ports"
	"github.com/jcmexdev/ecommerce-checkout/internal/checkout-service/infra/adapters/payload"
	"github.com/jcmexdev/ecommerce-checkout/internal/pkg/httpclient"
)

var _ ports.StockService = (*HTTPClient)(nil)

// Response aliases, highest priority first.
var (
	productIDKeys     = []string{"id", "idProducto", "producto_id"}
	productNameKeys   = []string{"name", "nombre"}
	productPriceKeys  = []string{"price", "precio"}
	productStockKeys  = []string{"stock", "stockDisponible", "stock_disponible"}
	categoryIDKeys    = []string{"categoriaId", "categoryId", "category_id", "id"}
	categoryNameKeys  = []string{"name", "nombre"}
	reservationIDKeys = []string{"idReserva", "reserva_id", "id"}
	statusKeys        = []string{"status", "estado"}
	listKeys          = []string{"items", "results", "data", "productos", "products"}
	totalKeys         = []string{"total", "count", "totalItems"}
)

type HTTPClient struct {
	client *httpclient.Client
}

func NewHTTPClient(client *httpclient.Client) *HTTPClient {
	return &HTTPClient{client: client}
}

func (c *HTTPClient) ListProducts(ctx context.Context, q entity.ProductQuery) (*entity.ProductPage, error) {
	page, limit := q.Page, q.Limit
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 20
	}
	query := url.Values{}
	query.Set("page", strconv.Itoa(page))
	query.Set("limit", strconv.Itoa(limit))
	if q.Search != "" {
		query.Set("q", q.Search)
	}
	if q.CategoryID != 0 {
		query.Set("categoriaId", strconv.FormatInt(q.CategoryID, 10))
	}

	resp, err := c.client.Get(ctx, "/api/productos/", query)
	if err != nil {
		return nil, fmt.Errorf("stock: list products: %w", err)
	}

	out := &entity.ProductPage{Page: page, Limit: limit}
	for _, m := range payload.List(resp.Data, listKeys...) {
		out.Items = append(out.Items, toProduct(m))
	}
	out.Total = len(out.Items)
	if obj := resp.Object(); obj != nil {
		if n, ok := payload.Int(obj, totalKeys...); ok {
			out.Total = int(n)
		}
	}
	return out, nil
}

func (c *HTTPClient) GetProduct(ctx context.Context, id int64) (*entity.Product, error) {
	resp, err := c.client.Get(ctx, fmt.Sprintf("/api/productos/%d/", id), nil)
	if err != nil {
		if httpclient.IsNotFound(err) {
			return nil, entity.ErrProductNotFound.Withf("product %d not found", id).Wrap(err)
		}
		return nil, fmt.Errorf("stock: get product %d: %w", id, err)
	}
	obj := resp.Object()
	if obj == nil {
		return nil, fmt.Errorf("stock: get product %d: response is not an object", id)
	}
	p := toProduct(obj)
	if p.ID == 0 {
		p.ID = id
	}
	return &p, nil
}

type reserveLine struct {
	ProductID int64 `json:"idProducto"`
	Quantity  int   `json:"cantidad"`
}

type reserveBody struct {
	PurchaseID string        `json:"idCompra"`
	UserID     int64         `json:"usuarioId"`
	Products   []reserveLine `json:"productos"`
}

// ReserveStock maps any 4xx other than 401/403 to ErrInsufficientStock.
func (c *HTTPClient) ReserveStock(ctx context.Context, purchaseID string, userID int64, items []entity.StockItem) (*entity.Reservation, error) {
	body := reserveBody{PurchaseID: purchaseID, UserID: userID, Products: make([]reserveLine, len(items))}
	for i, it := range items {
		body.Products[i] = reserveLine{ProductID: it.ProductID, Quantity: it.Quantity}
	}

	resp, err := c.client.Post(ctx, "/api/v1/reservas", body, http.StatusOK, http.StatusCreated)
	if err != nil {
		var apiErr *httpclient.APIError
		if errors.As(err, &apiErr) && apiErr.IsClientError() &&
			apiErr.Status != http.StatusUnauthorized && apiErr.Status != http.StatusForbidden {
			return nil, entity.ErrInsufficientStock.Wrap(err)
		}
		return nil, fmt.Errorf("stock: reserve purchase %s: %w", purchaseID, err)
	}

	obj := resp.Object()
	if nested := payload.Object(obj, "reserva", "reservation", "data"); nested != nil {
		obj = nested
	}
	id, err := payload.Require(obj, "reservation id", reservationIDKeys...)
	if err != nil {
		return nil, fmt.Errorf("stock: reserve purchase %s: %w", purchaseID, err)
	}
	return &entity.Reservation{ID: id, Status: payload.String(obj, statusKeys...)}, nil
}

type releaseBody struct {
	ReservationID string `json:"idReserva"`
	UserID        int64  `json:"usuarioId"`
	Reason        string `json:"motivo"`
}

func (c *HTTPClient) ReleaseStock(ctx context.Context, reservationID string, userID int64, reason string) (*entity.ReleaseResult, error) {
	resp, err := c.client.Post(ctx, "/api/v1/liberar",
		releaseBody{ReservationID: reservationID, UserID: userID, Reason: reason},
		http.StatusOK, http.StatusCreated)
	if err != nil {
		return nil, fmt.Errorf("stock: release reservation %s: %w", reservationID, err)
	}
	return &entity.ReleaseResult{
		ReservationID: reservationID,
		Status:        payload.String(resp.Object(), statusKeys...),
	}, nil
}

func (c *HTTPClient) ListCategories(ctx context.Context) ([]entity.Category, error) {
	resp, err := c.client.Get(ctx, "/api/v1/categorias", nil)
	if err != nil {
		return nil, fmt.Errorf("stock: list categories: %w", err)
	}
	var out []entity.Category
	for _, m := range payload.List(resp.Data, "items", "results", "data", "categorias") {
		id, _ := payload.Int(m, categoryIDKeys...)
		out = append(out, entity.Category{ID: id, Name: payload.String(m, categoryNameKeys...)})
	}
	return out, nil
}

func toProduct(m map[string]any) entity.Product {
	p := entity.Product{Name: payload.String(m, productNameKeys...)}
	p.ID, _ = payload.Int(m, productIDKeys...)
	p.Price, _ = payload.Decimal(m, productPriceKeys...)
	if n, ok := payload.Int(m, productStockKeys...); ok {
		p.Stock = int(n)
	}
	if cat := payload.Object(m, "categoria", "category"); cat != nil {
		p.CategoryID, _ = payload.Int(cat, "id")
	} else {
		p.CategoryID, _ = payload.Int(m, "categoriaId", "categoryId", "category_id")
	}
	return p
}
