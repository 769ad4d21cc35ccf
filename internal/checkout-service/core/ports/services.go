package ports

import (
	"context"

	"github.com/jcmexdev/ecommerce-checkout/internal/checkout-service/core/domain/entity"
)

// StockService is the inventory collaborator. A ReserveStock failure caused
// by missing stock matches entity.ErrInsufficientStock.
type StockService interface {
	ListProducts(ctx context.Context, q entity.ProductQuery) (*entity.ProductPage, error)
	// GetProduct fails with entity.ErrProductNotFound for unknown ids.
	GetProduct(ctx context.Context, id int64) (*entity.Product, error)
	ReserveStock(ctx context.Context, purchaseID string, userID int64, items []entity.StockItem) (*entity.Reservation, error)
	ReleaseStock(ctx context.Context, reservationID string, userID int64, reason string) (*entity.ReleaseResult, error)
	ListCategories(ctx context.Context) ([]entity.Category, error)
}

// LogisticsService is the shipping collaborator.
type LogisticsService interface {
	CreateShipment(ctx context.Context, req entity.ShipmentRequest) (*entity.Shipment, error)
	CancelShipment(ctx context.Context, shipmentID string) (*entity.CancelResult, error)
	// GetShipment fails with entity.ErrShipmentNotFound for unknown ids.
	GetShipment(ctx context.Context, shipmentID string) (*entity.Shipment, error)
	ListShipments(ctx context.Context, f entity.ShipmentFilter) ([]entity.Shipment, error)
	GetTransportMethods(ctx context.Context) ([]entity.TransportMethod, error)
	CalculateShippingCost(ctx context.Context, req entity.QuoteRequest) (*entity.Quote, error)
}
