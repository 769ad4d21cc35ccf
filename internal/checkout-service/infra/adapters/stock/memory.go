package stock

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/jcmexdev/ecommerce-checkout/internal/checkout-service/core/domain/entity"
	"github.com/jcmexdev/ecommerce-checkout/internal/checkout-service/core/ports"
)

var _ ports.StockService = (*MemoryClient)(nil)

type memoryReservation struct {
	purchaseID string
	userID     int64
	items      []entity.StockItem
	released   bool
}

// MemoryClient is an in-process Stock service: a small catalog with
// all-or-nothing reservations.
type MemoryClient struct {
	mu           sync.Mutex
	products     map[int64]entity.Product
	categories   []entity.Category
	reservations map[string]*memoryReservation
	byPurchase   map[string]string
	seq          int
}

// NewMemoryClient returns a client seeded with the demo catalog when
// products is empty.
func NewMemoryClient(products ...entity.Product) *MemoryClient {
	if len(products) == 0 {
		products = []entity.Product{
			{ID: 1, Name: "Yerba Mate 1kg", Price: decimal.RequireFromString("10.00"), Stock: 15, CategoryID: 1},
			{ID: 2, Name: "Mate de calabaza", Price: decimal.RequireFromString("25.00"), Stock: 10, CategoryID: 2},
			{ID: 3, Name: "Bombilla de alpaca", Price: decimal.RequireFromString("18.50"), Stock: 0, CategoryID: 2},
		}
	}
	m := &MemoryClient{
		products:     make(map[int64]entity.Product, len(products)),
		reservations: make(map[string]*memoryReservation),
		byPurchase:   make(map[string]string),
		categories: []entity.Category{
			{ID: 1, Name: "Yerbas"},
			{ID: 2, Name: "Accesorios"},
		},
	}
	for _, p := range products {
		m.products[p.ID] = p
	}
	return m
}

func (m *MemoryClient) ListProducts(_ context.Context, q entity.ProductQuery) (*entity.ProductPage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var matched []entity.Product
	for _, p := range m.products {
		if q.CategoryID != 0 && p.CategoryID != q.CategoryID {
			continue
		}
		if q.Search != "" && !strings.Contains(strings.ToLower(p.Name), strings.ToLower(q.Search)) {
			continue
		}
		matched = append(matched, p)
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].ID < matched[j].ID })

	page, limit := q.Page, q.Limit
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 20
	}
	start := (page - 1) * limit
	if start > len(matched) {
		start = len(matched)
	}
	end := start + limit
	if end > len(matched) {
		end = len(matched)
	}
	return &entity.ProductPage{Items: matched[start:end], Page: page, Limit: limit, Total: len(matched)}, nil
}

func (m *MemoryClient) GetProduct(_ context.Context, id int64) (*entity.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.products[id]
	if !ok {
		return nil, entity.ErrProductNotFound.Withf("product %d not found", id)
	}
	return &p, nil
}

// ReserveStock is idempotent per purchase id.
func (m *MemoryClient) ReserveStock(ctx context.Context, purchaseID string, userID int64, items []entity.StockItem) (*entity.Reservation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if id, ok := m.byPurchase[purchaseID]; ok && !m.reservations[id].released {
		return &entity.Reservation{ID: id, Status: "reserved"}, nil
	}

	for _, item := range items {
		p, exists := m.products[item.ProductID]
		if !exists {
			return nil, entity.ErrInsufficientStock.Withf("product %d does not exist", item.ProductID)
		}
		if p.Stock < item.Quantity {
			slog.InfoContext(ctx, "insufficient stock",
				"product_id", item.ProductID, "available", p.Stock, "requested", item.Quantity)
			return nil, entity.ErrInsufficientStock.Withf("product %d: %d available, %d requested",
				item.ProductID, p.Stock, item.Quantity)
		}
	}

	for _, item := range items {
		p := m.products[item.ProductID]
		p.Stock -= item.Quantity
		m.products[item.ProductID] = p
	}

	m.seq++
	id := fmt.Sprintf("RES-%d", m.seq)
	m.reservations[id] = &memoryReservation{
		purchaseID: purchaseID,
		userID:     userID,
		items:      append([]entity.StockItem(nil), items...),
	}
	m.byPurchase[purchaseID] = id
	slog.InfoContext(ctx, "stock reserved", "reservation_id", id, "purchase_id", purchaseID)

	return &entity.Reservation{ID: id, Status: "reserved"}, nil
}

func (m *MemoryClient) ReleaseStock(ctx context.Context, reservationID string, userID int64, reason string) (*entity.ReleaseResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.reservations[reservationID]
	if !ok {
		return nil, fmt.Errorf("stock: reservation %s not found", reservationID)
	}
	if r.released {
		return &entity.ReleaseResult{ReservationID: reservationID, Status: "released"}, nil
	}
	for _, item := range r.items {
		p := m.products[item.ProductID]
		p.Stock += item.Quantity
		m.products[item.ProductID] = p
	}
	r.released = true
	slog.InfoContext(ctx, "stock released", "reservation_id", reservationID, "reason", reason)

	return &entity.ReleaseResult{ReservationID: reservationID, Status: "released"}, nil
}

func (m *MemoryClient) ListCategories(context.Context) ([]entity.Category, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]entity.Category(nil), m.categories...), nil
}

// Available returns the unreserved stock of a product.
func (m *MemoryClient) Available(productID int64) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.products[productID].Stock
}
