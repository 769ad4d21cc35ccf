package httpx_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/jcmexdev/ecommerce-checkout/internal/checkout-service/app"
	"github.com/jcmexdev/ecommerce-checkout/internal/checkout-service/core/domain/entity"
	"github.com/jcmexdev/ecommerce-checkout/internal/checkout-service/infra/adapters/logistics"
	"github.com/jcmexdev/ecommerce-checkout/internal/checkout-service/infra/adapters/sqlite"
	"github.com/jcmexdev/ecommerce-checkout/internal/checkout-service/infra/adapters/stock"
	"github.com/jcmexdev/ecommerce-checkout/internal/checkout-service/infra/httpx"
	sagasqlite "github.com/jcmexdev/ecommerce-checkout/internal/coordinator/sagalog/sqlite"
	"github.com/jcmexdev/ecommerce-checkout/internal/pkg/metrics"
)

type testServer struct {
	*httptest.Server
	stock     *stock.MemoryClient
	logistics *logistics.MemoryClient
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	db, err := sqlite.Open(filepath.Join(t.TempDir(), "checkout.db"))
	if err != nil {
		t.Fatalf("sqlite.Open: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	sagaLog, err := sagasqlite.New(db)
	if err != nil {
		t.Fatalf("sagalog: %v", err)
	}

	stockClient := stock.NewMemoryClient()
	logisticsClient := logistics.NewMemoryClient()
	m := metrics.New("test")
	carts := sqlite.NewCartRepository(db)

	orders := app.NewOrderService(app.Deps{
		Orders:    sqlite.NewOrderRepository(db),
		Carts:     carts,
		Stock:     stockClient,
		Logistics: logisticsClient,
		SagaLog:   sagaLog,
		Metrics:   m,
	}, app.Settings{DefaultTransportType: "road"})

	h := httpx.NewHandler(orders, app.NewCartService(carts, stockClient), app.NewCatalogService(stockClient, logisticsClient))
	srv := httptest.NewServer(httpx.NewRouter(h, m))
	t.Cleanup(srv.Close)
	return &testServer{Server: srv, stock: stockClient, logistics: logisticsClient}
}

type call struct {
	method  string
	path    string
	body    any
	user    int64
	staff   bool
	headers map[string]string
}

func (s *testServer) do(t *testing.T, c call) (int, map[string]any) {
	t.Helper()
	var body bytes.Buffer
	if c.body != nil {
		if raw, ok := c.body.(string); ok {
			body.WriteString(raw)
		} else if err := json.NewEncoder(&body).Encode(c.body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req, err := http.NewRequest(c.method, s.URL+c.path, &body)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.user > 0 {
		req.Header.Set("X-User-Id", strconv.FormatInt(c.user, 10))
		req.Header.Set("Authorization", "Bearer user-token")
	}
	if c.staff {
		req.Header.Set("X-User-Staff", "true")
	}
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", c.method, c.path, err)
	}
	defer resp.Body.Close()

	out := map[string]any{}
	if resp.StatusCode != http.StatusNoContent {
		var decoded any
		if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
			t.Fatalf("%s %s: decode response: %v", c.method, c.path, err)
		}
		switch v := decoded.(type) {
		case map[string]any:
			out = v
		default:
			out["items"] = v
		}
	}
	return resp.StatusCode, out
}

func (s *testServer) addToCart(t *testing.T, user, productID int64, quantity int) {
	t.Helper()
	status, body := s.do(t, call{method: http.MethodPost, path: "/cart/items", user: user,
		body: map[string]any{"productId": productID, "quantity": quantity}})
	if status != http.StatusCreated {
		t.Fatalf("add to cart: status %d body %v", status, body)
	}
}

func address() map[string]any {
	return map[string]any{
		"receiverName": "Ana",
		"street":       "Av. Siempre Viva 742",
		"city":         "Cordoba",
		"postalCode":   "5000",
		"country":      "AR",
	}
}

func checkoutBody() map[string]any {
	return map[string]any{"deliveryAddress": address(), "transportType": "road"}
}

func TestCheckoutConfirmsOrder(t *testing.T) {
	s := newTestServer(t)
	s.addToCart(t, 7, 1, 2)
	s.addToCart(t, 7, 2, 1)

	status, body := s.do(t, call{method: http.MethodPost, path: "/checkout", user: 7, body: checkoutBody()})
	if status != http.StatusCreated {
		t.Fatalf("status = %d, want 201 (body %v)", status, body)
	}
	if body["message"] != "order confirmed" {
		t.Errorf("message = %v", body["message"])
	}
	order, _ := body["order"].(map[string]any)
	if order["status"] != "CONFIRMED" {
		t.Errorf("order status = %v, want CONFIRMED", order["status"])
	}
	if order["total"] != "45.00" {
		t.Errorf("total = %v, want 45.00", order["total"])
	}
	if order["shipmentReference"] == nil || order["stockReservationReference"] == nil {
		t.Errorf("references not set: %v", order)
	}
	if body["shipment"] == nil || body["reservation"] == nil {
		t.Errorf("shipment/reservation missing: %v", body)
	}
	if got := s.stock.Available(1); got != 13 {
		t.Errorf("stock of product 1 = %d, want 13", got)
	}

	_, cart := s.do(t, call{method: http.MethodGet, path: "/cart", user: 7})
	if items, _ := cart["items"].([]any); len(items) != 0 {
		t.Errorf("cart not cleared: %v", cart)
	}
}

func TestCheckoutRequiresIdentity(t *testing.T) {
	s := newTestServer(t)
	status, body := s.do(t, call{method: http.MethodPost, path: "/checkout", body: checkoutBody()})
	if status != http.StatusUnauthorized || body["code"] != "AUTHENTICATION_REQUIRED" {
		t.Fatalf("got %d %v, want 401 AUTHENTICATION_REQUIRED", status, body)
	}
}

func TestCheckoutEmptyCart(t *testing.T) {
	s := newTestServer(t)
	s.do(t, call{method: http.MethodGet, path: "/cart", user: 7})

	status, body := s.do(t, call{method: http.MethodPost, path: "/checkout", user: 7, body: checkoutBody()})
	if status != http.StatusBadRequest || body["code"] != "EMPTY_CART" {
		t.Fatalf("got %d %v, want 400 EMPTY_CART", status, body)
	}
}

func TestCheckoutInsufficientStockRollsBackShipment(t *testing.T) {
	s := newTestServer(t)
	s.addToCart(t, 7, 3, 1)

	status, body := s.do(t, call{method: http.MethodPost, path: "/checkout", user: 7, body: checkoutBody()})
	if status != http.StatusConflict || body["code"] != "INSUFFICIENT_STOCK" {
		t.Fatalf("got %d %v, want 409 INSUFFICIENT_STOCK", status, body)
	}
	if body["compensation"] != nil {
		t.Errorf("unexpected compensation failure: %v", body["compensation"])
	}

	shipments, err := s.logistics.ListShipments(t.Context(), entity.ShipmentFilter{UserID: 7})
	if err != nil {
		t.Fatalf("ListShipments: %v", err)
	}
	if len(shipments) != 1 || shipments[0].Status != "cancelled" {
		t.Errorf("shipments = %+v, want one cancelled shipment", shipments)
	}

	_, history := s.do(t, call{method: http.MethodGet, path: "/orders/history", user: 7})
	orders, _ := history["items"].([]any)
	if len(orders) != 1 {
		t.Fatalf("history = %v, want one order", history)
	}
	if o := orders[0].(map[string]any); o["status"] != "PENDING" || o["shipmentReference"] != nil {
		t.Errorf("order after rollback = %v, want PENDING without references", o)
	}
}

func TestCheckoutValidation(t *testing.T) {
	s := newTestServer(t)
	s.addToCart(t, 7, 1, 1)

	tests := []struct {
		name string
		body any
		code string
	}{
		{"malformed json", `{"deliveryAddress":`, "INVALID_DATA"},
		{"missing address", map[string]any{"transportType": "road"}, "MISSING_ADDRESS"},
		{"incomplete address", map[string]any{"deliveryAddress": map[string]any{"street": "x"}}, "INVALID_ADDRESS"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body := s.do(t, call{method: http.MethodPost, path: "/checkout", user: 7, body: tt.body})
			if status != http.StatusBadRequest || body["code"] != tt.code {
				t.Fatalf("got %d %v, want 400 %s", status, body, tt.code)
			}
		})
	}
	if got := s.stock.Available(1); got != 15 {
		t.Errorf("stock touched by rejected checkouts: %d", got)
	}
}

func TestCheckoutIdempotencyReplay(t *testing.T) {
	s := newTestServer(t)
	s.addToCart(t, 7, 1, 1)
	headers := map[string]string{"Idempotency-Key": "abc-123"}

	status, first := s.do(t, call{method: http.MethodPost, path: "/checkout", user: 7, body: checkoutBody(), headers: headers})
	if status != http.StatusCreated {
		t.Fatalf("first checkout: %d %v", status, first)
	}
	status, second := s.do(t, call{method: http.MethodPost, path: "/checkout", user: 7, body: checkoutBody(), headers: headers})
	if status != http.StatusOK {
		t.Fatalf("replay status = %d, want 200 (%v)", status, second)
	}
	if first["orderId"] != second["orderId"] {
		t.Errorf("replay returned order %v, want %v", second["orderId"], first["orderId"])
	}
	if got := s.stock.Available(1); got != 14 {
		t.Errorf("stock = %d, want a single reservation", got)
	}
}

func TestOrderLifecycle(t *testing.T) {
	s := newTestServer(t)

	status, created := s.do(t, call{method: http.MethodPost, path: "/orders", user: 7, body: map[string]any{
		"shippingAddress": address(),
		"lines":           []map[string]any{{"productId": 1, "quantity": 2, "unitPrice": "10.00"}},
	}})
	if status != http.StatusCreated || created["status"] != "PENDING" {
		t.Fatalf("create: %d %v", status, created)
	}
	id := strconv.FormatFloat(created["id"].(float64), 'f', 0, 64)

	status, body := s.do(t, call{method: http.MethodGet, path: "/orders/" + id, user: 8})
	if status != http.StatusForbidden {
		t.Errorf("foreign order: %d %v, want 403", status, body)
	}

	status, body = s.do(t, call{method: http.MethodPost, path: "/orders/" + id + "/confirm", user: 7})
	if status != http.StatusOK {
		t.Fatalf("confirm: %d %v", status, body)
	}
	status, body = s.do(t, call{method: http.MethodPost, path: "/orders/" + id + "/confirm", user: 7})
	if status != http.StatusBadRequest || body["code"] != "ALREADY_CONFIRMED" {
		t.Fatalf("second confirm: %d %v, want 400 ALREADY_CONFIRMED", status, body)
	}

	status, body = s.do(t, call{method: http.MethodGet, path: "/orders/" + id + "/shipment", user: 7})
	if status != http.StatusOK || body["trackingNumber"] == "" {
		t.Errorf("shipment: %d %v", status, body)
	}

	status, body = s.do(t, call{method: http.MethodDelete, path: "/orders/" + id + "/cancel", user: 7})
	if status != http.StatusBadRequest || body["code"] != "CANNOT_CANCEL_CONFIRMED" {
		t.Errorf("cancel confirmed: %d %v", status, body)
	}

	status, body = s.do(t, call{method: http.MethodGet, path: "/orders/" + id + "/saga", user: 7})
	if status != http.StatusForbidden {
		t.Errorf("saga log as user: %d %v, want 403", status, body)
	}
	status, body = s.do(t, call{method: http.MethodGet, path: "/orders/" + id + "/saga", user: 1, staff: true})
	if status != http.StatusOK {
		t.Fatalf("saga log as staff: %d %v", status, body)
	}
	if entries, _ := body["items"].([]any); len(entries) == 0 {
		t.Errorf("saga log is empty")
	}
}

func TestCancelPendingOrder(t *testing.T) {
	s := newTestServer(t)
	_, created := s.do(t, call{method: http.MethodPost, path: "/orders", user: 7, body: map[string]any{
		"shippingAddress": address(),
		"lines":           []map[string]any{{"productId": 2, "quantity": 1, "unitPrice": "25.00"}},
	}})
	id := strconv.FormatFloat(created["id"].(float64), 'f', 0, 64)

	status, body := s.do(t, call{method: http.MethodDelete, path: "/orders/" + id + "/cancel", user: 7})
	if status != http.StatusOK || body["status"] != "CANCELLED" {
		t.Fatalf("cancel: %d %v", status, body)
	}
	status, body = s.do(t, call{method: http.MethodDelete, path: "/orders/" + id + "/cancel", user: 7})
	if status != http.StatusBadRequest || body["code"] != "ALREADY_CANCELLED" {
		t.Errorf("second cancel: %d %v", status, body)
	}
}

func TestCreateOrderFieldErrors(t *testing.T) {
	s := newTestServer(t)
	status, body := s.do(t, call{method: http.MethodPost, path: "/orders", user: 7, body: map[string]any{
		"lines": []map[string]any{{"productId": 0, "quantity": 0}},
	}})
	if status != http.StatusBadRequest || body["code"] != "INVALID_DATA" {
		t.Fatalf("got %d %v, want 400 INVALID_DATA", status, body)
	}
	fields, _ := body["fields"].(map[string]any)
	if fields["CreateOrderRequest.Lines[0].ProductID"] != "required" {
		t.Errorf("fields = %v", fields)
	}
}

func TestCatalogAndShipping(t *testing.T) {
	s := newTestServer(t)

	status, body := s.do(t, call{method: http.MethodGet, path: "/products?categoryId=2"})
	if status != http.StatusOK {
		t.Fatalf("products: %d %v", status, body)
	}
	if items, _ := body["items"].([]any); len(items) != 2 {
		t.Errorf("products in category 2 = %v", body["items"])
	}

	status, body = s.do(t, call{method: http.MethodGet, path: "/products/999"})
	if status != http.StatusNotFound || body["code"] != "PRODUCT_NOT_FOUND" {
		t.Errorf("missing product: %d %v", status, body)
	}

	status, body = s.do(t, call{method: http.MethodGet, path: "/shipping/transport-methods"})
	if methods, _ := body["items"].([]any); status != http.StatusOK || len(methods) != 4 {
		t.Errorf("transport methods: %d %v", status, body)
	}

	status, body = s.do(t, call{method: http.MethodPost, path: "/shipping/quote", body: map[string]any{
		"deliveryAddress": address(),
		"products":        []map[string]any{{"id": 1, "quantity": 3}},
		"transportType":   "air",
	}})
	if status != http.StatusOK || body["cost"] != "36.00" {
		t.Errorf("quote: %d %v", status, body)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(t)
	s.addToCart(t, 7, 1, 1)
	s.do(t, call{method: http.MethodPost, path: "/checkout", user: 7, body: checkoutBody()})

	resp, err := http.Get(s.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	defer resp.Body.Close()
	var buf bytes.Buffer
	_, _ = buf.ReadFrom(resp.Body)

	for _, want := range []string{
		`checkout_test_saga_attempts_total{operation="checkout",result="success"} 1`,
		`checkout_test_http_requests_total{route="/checkout",status="201"} 1`,
	} {
		if !strings.Contains(buf.String(), want) {
			t.Errorf("metrics output lacks %q", want)
		}
	}
}
