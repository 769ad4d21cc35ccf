// Package app holds the use cases of the checkout service: the checkout
// saga, order queries and cancellation, and the cart.
package app

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"time"

	"github.com/jcmexdev/ecommerce-checkout/internal/checkout-service/core/domain/entity"
	"github.com/jcmexdev/ecommerce-checkout/internal/checkout-service/core/ports"
	"github.com/jcmexdev/ecommerce-checkout/internal/coordinator/sagalog"
	"github.com/jcmexdev/ecommerce-checkout/internal/pkg/cache"
	"github.com/jcmexdev/ecommerce-checkout/internal/pkg/events"
	"github.com/jcmexdev/ecommerce-checkout/internal/pkg/metrics"
	"github.com/jcmexdev/ecommerce-checkout/internal/pkg/reqctx"
)

// Deps are the collaborators of OrderService. SagaLog, Locker, Idempotency,
// Publisher and Metrics are optional.
type Deps struct {
	Orders      ports.OrderRepository
	Carts       ports.CartRepository
	Stock       ports.StockService
	Logistics   ports.LogisticsService
	SagaLog     sagalog.Repository
	Locker      cache.Locker
	Idempotency cache.Cache
	Publisher   events.Publisher
	Metrics     *metrics.Metrics
}

type Settings struct {
	// DefaultTransportType is used when neither the request nor the order
	// names one.
	DefaultTransportType string
	CompensationTimeout  time.Duration
	LockTTL              time.Duration
	IdempotencyTTL       time.Duration
}

func (s Settings) withDefaults() Settings {
	if s.CompensationTimeout <= 0 {
		s.CompensationTimeout = 15 * time.Second
	}
	if s.LockTTL <= 0 {
		s.LockTTL = 2 * time.Minute
	}
	if s.IdempotencyTTL <= 0 {
		s.IdempotencyTTL = 24 * time.Hour
	}
	return s
}

type OrderService struct {
	orders      ports.OrderRepository
	carts       ports.CartRepository
	stock       ports.StockService
	logistics   ports.LogisticsService
	sagaLog     sagalog.Repository
	locker      cache.Locker
	idempotency cache.Cache
	publisher   events.Publisher
	metrics     *metrics.Metrics
	settings    Settings
	nowFunc     func() time.Time
}

func NewOrderService(deps Deps, settings Settings) *OrderService {
	s := &OrderService{
		orders:      deps.Orders,
		carts:       deps.Carts,
		stock:       deps.Stock,
		logistics:   deps.Logistics,
		sagaLog:     deps.SagaLog,
		locker:      deps.Locker,
		idempotency: deps.Idempotency,
		publisher:   deps.Publisher,
		metrics:     deps.Metrics,
		settings:    settings.withDefaults(),
		nowFunc:     time.Now,
	}
	if s.locker == nil {
		s.locker = cache.NewMemoryLocker()
	}
	if s.idempotency == nil {
		s.idempotency = cache.NewMemoryCache("checkout")
	}
	if s.publisher == nil {
		s.publisher = events.NewNoopPublisher()
	}
	return s
}

func requireIdentity(ctx context.Context) (reqctx.Identity, error) {
	id := reqctx.IdentityFrom(ctx)
	if !id.Authenticated() {
		return id, entity.ErrAuthenticationRequired
	}
	return id, nil
}

// lockOrder takes the per-order lease for the duration of a state change.
func (s *OrderService) lockOrder(ctx context.Context, orderID int64) (cache.Unlock, error) {
	return s.lock(ctx, "order:"+strconv.FormatInt(orderID, 10))
}

func (s *OrderService) lock(ctx context.Context, key string) (cache.Unlock, error) {
	unlock, err := s.locker.Acquire(ctx, key, s.settings.LockTTL)
	if errors.Is(err, cache.ErrLocked) {
		return nil, entity.ErrOrderLocked.Withf("%s is being processed by another request", key)
	}
	if err != nil {
		return nil, entity.ErrInternal.Withf("could not lock %s", key).Wrap(err)
	}
	return func(ctx context.Context) error {
		if err := unlock(context.WithoutCancel(ctx)); err != nil {
			slog.WarnContext(ctx, "lock release failed", "key", key, "error", err)
		}
		return nil
	}, nil
}

// loadVisible returns the order when the caller may see it.
func (s *OrderService) loadVisible(ctx context.Context, id reqctx.Identity, orderID int64) (*entity.Order, error) {
	order, err := s.orders.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !id.CanSee(order.UserID) {
		return nil, entity.ErrForbidden.Withf("order %d belongs to another user", orderID)
	}
	return order, nil
}

type OrderEvent struct {
	OrderID                   int64  `json:"order_id"`
	UserID                    int64  `json:"user_id,omitempty"`
	Status                    string `json:"status"`
	Total                     string `json:"total"`
	TransportType             string `json:"transport_type,omitempty"`
	ShipmentReference         string `json:"shipment_reference,omitempty"`
	StockReservationReference string `json:"stock_reservation_reference,omitempty"`
}

// publish is best-effort: the order is already committed.
func (s *OrderService) publish(ctx context.Context, topic string, o *entity.Order) {
	ev := events.NewEvent(topic, OrderEvent{
		OrderID:                   o.ID,
		UserID:                    o.UserID,
		Status:                    string(o.Status),
		Total:                     o.Total.StringFixed(2),
		TransportType:             o.TransportType,
		ShipmentReference:         o.ShipmentReference,
		StockReservationReference: o.StockReservationReference,
	})
	if err := s.publisher.PublishEvent(context.WithoutCancel(ctx), topic, o.PurchaseID(), ev); err != nil {
		slog.WarnContext(ctx, "order event not published", "topic", topic, "order_id", o.ID, "error", err)
	}
}

// outcome is the metrics label of an operation result.
func outcome(err error) string {
	if err == nil {
		return "success"
	}
	if e := entity.AsError(err); e != nil {
		return e.Code
	}
	return entity.ErrInternal.Code
}
