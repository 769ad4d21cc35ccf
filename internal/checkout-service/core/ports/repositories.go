package ports

import (
	"context"
	"time"

	"github.com/jcmexdev/ecommerce-checkout/internal/checkout-service/core/domain/entity"
)

type OrderRepository interface {
	// Create stores the address, the order and its lines in one
	// transaction and fills in the generated ids and timestamps.
	Create(ctx context.Context, o *entity.Order) error
	// Get fails with entity.ErrOrderNotFound.
	Get(ctx context.Context, id int64) (*entity.Order, error)
	// ListByUser returns the user's orders, newest first. userID 0 lists
	// every order.
	ListByUser(ctx context.Context, userID int64) ([]entity.Order, error)
	// Update rewrites address, transport type, lines and total of an order
	// that is still DRAFT or PENDING.
	Update(ctx context.Context, o *entity.Order) error
	// Confirm commits a CONFIRMED order with both references. It fails with
	// entity.ErrConcurrentUpdate unless the stored row is DRAFT or PENDING.
	Confirm(ctx context.Context, o *entity.Order) error
	// Cancel flips a DRAFT or PENDING order to CANCELLED, failing with
	// entity.ErrConcurrentUpdate otherwise.
	Cancel(ctx context.Context, id int64, at time.Time) error
	// Delete removes a DRAFT or PENDING order with its lines and address.
	Delete(ctx context.Context, id int64) error
}

type CartRepository interface {
	// Find fails with entity.ErrCartNotFound when the user has no cart.
	Find(ctx context.Context, userID int64) (*entity.Cart, error)
	GetOrCreate(ctx context.Context, userID int64) (*entity.Cart, error)
	// AddItem inserts the product or increments its quantity.
	AddItem(ctx context.Context, userID, productID int64, quantity int) (*entity.Cart, error)
	// SetQuantity fails with entity.ErrCartItemNotFound.
	SetQuantity(ctx context.Context, userID, productID int64, quantity int) (*entity.Cart, error)
	RemoveItem(ctx context.Context, userID, productID int64) (*entity.Cart, error)
	Clear(ctx context.Context, userID int64) error
}
