package logistics

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/jcmexdev/ecommerce-checkout/internal/checkout-service/core/domain/entity"
	"github.com/jcmexdev/ecommerce-checkout/internal/checkout-service/core/ports"
)

var _ ports.LogisticsService = (*MemoryClient)(nil)

const (
	statusCreated   = "created"
	statusCancelled = "cancelled"
)

type memoryShipment struct {
	entity.Shipment
	userID    int64
	createdAt time.Time
}

var transportMethods = []entity.TransportMethod{
	{Type: "air", Name: "Aereo", EstimatedDays: 2},
	{Type: "road", Name: "Terrestre", EstimatedDays: 5},
	{Type: "rail", Name: "Ferroviario", EstimatedDays: 7},
	{Type: "sea", Name: "Maritimo", EstimatedDays: 20},
}

// baseCost is the per-unit quote in the in-memory backend.
var baseCost = map[string]decimal.Decimal{
	"air":  decimal.RequireFromString("12.00"),
	"road": decimal.RequireFromString("4.00"),
	"rail": decimal.RequireFromString("3.00"),
	"sea":  decimal.RequireFromString("1.50"),
}

// MemoryClient is an in-process Logistics service.
type MemoryClient struct {
	mu        sync.Mutex
	shipments map[string]*memoryShipment
	seq       int
	nowFunc   func() time.Time
}

func NewMemoryClient() *MemoryClient {
	return &MemoryClient{
		shipments: make(map[string]*memoryShipment),
		nowFunc:   time.Now,
	}
}

func (m *MemoryClient) CreateShipment(ctx context.Context, req entity.ShipmentRequest) (*entity.Shipment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	days := 5
	for _, tm := range transportMethods {
		if tm.Type == req.TransportType {
			days = tm.EstimatedDays
		}
	}

	m.seq++
	now := m.nowFunc().UTC()
	s := &memoryShipment{
		Shipment: entity.Shipment{
			ID:                  fmt.Sprintf("%d", 1000+m.seq),
			TrackingNumber:      "TRK-" + strings.ToUpper(uuid.NewString()[:8]),
			Status:              statusCreated,
			TransportType:       req.TransportType,
			EstimatedDeliveryAt: now.AddDate(0, 0, days).Format(time.RFC3339),
		},
		userID:    req.UserID,
		createdAt: now,
	}
	m.shipments[s.ID] = s
	slog.InfoContext(ctx, "shipment created", "shipment_id", s.ID, "order_id", req.OrderID)

	out := s.Shipment
	return &out, nil
}

func (m *MemoryClient) CancelShipment(ctx context.Context, shipmentID string) (*entity.CancelResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.shipments[shipmentID]
	if !ok {
		return nil, entity.ErrShipmentNotFound.Withf("shipment %s not found", shipmentID)
	}
	s.Status = statusCancelled
	slog.InfoContext(ctx, "shipment cancelled", "shipment_id", shipmentID)

	return &entity.CancelResult{ShipmentID: shipmentID, Status: statusCancelled}, nil
}

func (m *MemoryClient) GetShipment(_ context.Context, shipmentID string) (*entity.Shipment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.shipments[shipmentID]
	if !ok {
		return nil, entity.ErrShipmentNotFound.Withf("shipment %s not found", shipmentID)
	}
	out := s.Shipment
	return &out, nil
}

func (m *MemoryClient) ListShipments(_ context.Context, f entity.ShipmentFilter) ([]entity.Shipment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var matched []*memoryShipment
	for _, s := range m.shipments {
		if f.UserID != 0 && s.userID != f.UserID {
			continue
		}
		if f.Status != "" && s.Status != f.Status {
			continue
		}
		matched = append(matched, s)
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].createdAt.After(matched[j].createdAt) })

	out := make([]entity.Shipment, len(matched))
	for i, s := range matched {
		out[i] = s.Shipment
	}
	return out, nil
}

func (m *MemoryClient) GetTransportMethods(context.Context) ([]entity.TransportMethod, error) {
	return append([]entity.TransportMethod(nil), transportMethods...), nil
}

func (m *MemoryClient) CalculateShippingCost(_ context.Context, req entity.QuoteRequest) (*entity.Quote, error) {
	transport := req.TransportType
	if transport == "" {
		transport = "road"
	}
	perUnit, ok := baseCost[transport]
	if !ok {
		return nil, entity.ErrInvalidData.Withf("unknown transport type %q", transport)
	}
	units := 0
	for _, p := range req.Products {
		units += p.Quantity
	}
	q := &entity.Quote{
		TransportType: transport,
		Currency:      "ARS",
		Cost:          perUnit.Mul(decimal.NewFromInt(int64(units))),
	}
	for _, tm := range transportMethods {
		if tm.Type == transport {
			q.EstimatedDays = tm.EstimatedDays
		}
	}
	return q, nil
}
