package app

import (
	"context"

	"github.com/jcmexdev/ecommerce-checkout/internal/checkout-service/core/domain/entity"
	"github.com/jcmexdev/ecommerce-checkout/internal/checkout-service/core/ports"
)

// CatalogService proxies the read-only Stock and Logistics operations the
// storefront needs before checkout.
type CatalogService struct {
	stock     ports.StockService
	logistics ports.LogisticsService
}

func NewCatalogService(stock ports.StockService, logistics ports.LogisticsService) *CatalogService {
	return &CatalogService{stock: stock, logistics: logistics}
}

func (s *CatalogService) ListProducts(ctx context.Context, q entity.ProductQuery) (*entity.ProductPage, error) {
	page, err := s.stock.ListProducts(ctx, q)
	if err != nil {
		return nil, gateway(entity.ErrProductFetch, err)
	}
	return page, nil
}

func (s *CatalogService) GetProduct(ctx context.Context, id int64) (*entity.Product, error) {
	p, err := s.stock.GetProduct(ctx, id)
	if err != nil {
		return nil, gateway(entity.ErrProductFetch, err)
	}
	return p, nil
}

func (s *CatalogService) ListCategories(ctx context.Context) ([]entity.Category, error) {
	cats, err := s.stock.ListCategories(ctx)
	if err != nil {
		return nil, gateway(entity.ErrProductFetch, err)
	}
	return cats, nil
}

func (s *CatalogService) TransportMethods(ctx context.Context) ([]entity.TransportMethod, error) {
	methods, err := s.logistics.GetTransportMethods(ctx)
	if err != nil {
		return nil, gateway(entity.ErrLogisticsService, err)
	}
	return methods, nil
}

func (s *CatalogService) Quote(ctx context.Context, req entity.QuoteRequest) (*entity.Quote, error) {
	if len(req.Products) == 0 {
		return nil, entity.ErrNoProducts
	}
	q, err := s.logistics.CalculateShippingCost(ctx, req)
	if err != nil {
		return nil, gateway(entity.ErrLogisticsService, err)
	}
	return q, nil
}

// gateway keeps coded errors and wraps anything else in kind.
func gateway(kind *entity.Error, err error) error {
	if entity.AsError(err) != nil {
		return err
	}
	return kind.Wrap(err)
}
