package app

import (
	"context"

	"github.com/jcmexdev/ecommerce-checkout/internal/checkout-service/core/domain/entity"
	"github.com/jcmexdev/ecommerce-checkout/internal/checkout-service/core/ports"
)

// CartService manages the caller's cart. Every method requires an
// authenticated identity.
type CartService struct {
	carts ports.CartRepository
	stock ports.StockService
}

func NewCartService(carts ports.CartRepository, stock ports.StockService) *CartService {
	return &CartService{carts: carts, stock: stock}
}

func (s *CartService) GetCart(ctx context.Context) (*entity.Cart, error) {
	id, err := requireIdentity(ctx)
	if err != nil {
		return nil, err
	}
	return s.carts.GetOrCreate(ctx, id.UserID)
}

// AddItem checks the product exists before adding quantity units of it.
func (s *CartService) AddItem(ctx context.Context, productID int64, quantity int) (*entity.Cart, error) {
	id, err := requireIdentity(ctx)
	if err != nil {
		return nil, err
	}
	if quantity < 1 {
		return nil, entity.ErrInvalidQuantity
	}
	if _, err := s.stock.GetProduct(ctx, productID); err != nil {
		if entity.AsError(err) != nil {
			return nil, err
		}
		return nil, entity.ErrProductFetch.Withf("could not verify product %d", productID).Wrap(err)
	}
	return s.carts.AddItem(ctx, id.UserID, productID, quantity)
}

func (s *CartService) UpdateItem(ctx context.Context, productID int64, quantity int) (*entity.Cart, error) {
	id, err := requireIdentity(ctx)
	if err != nil {
		return nil, err
	}
	if quantity < 1 {
		return nil, entity.ErrInvalidQuantity
	}
	return s.carts.SetQuantity(ctx, id.UserID, productID, quantity)
}

func (s *CartService) RemoveItem(ctx context.Context, productID int64) (*entity.Cart, error) {
	id, err := requireIdentity(ctx)
	if err != nil {
		return nil, err
	}
	return s.carts.RemoveItem(ctx, id.UserID, productID)
}

func (s *CartService) Clear(ctx context.Context) error {
	id, err := requireIdentity(ctx)
	if err != nil {
		return err
	}
	return s.carts.Clear(ctx, id.UserID)
}
