package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/jcmexdev/ecommerce-checkout/internal/checkout-service/core/domain/entity"
	"github.com/jcmexdev/ecommerce-checkout/internal/coordinator"
	"github.com/jcmexdev/ecommerce-checkout/internal/coordinator/sagalog"
	"github.com/jcmexdev/ecommerce-checkout/internal/pkg/events"
)

// CancelOrder releases the stock reservation and cancels the shipment the
// order holds, then marks it CANCELLED. If any external call fails the
// order is left untouched so the caller can retry.
func (s *OrderService) CancelOrder(ctx context.Context, orderID int64) (order *entity.Order, err error) {
	defer func() { s.metrics.ObserveSaga(opCancel, outcome(err)) }()

	id, err := requireIdentity(ctx)
	if err != nil {
		return nil, err
	}
	unlock, err := s.lockOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	defer unlock(ctx)

	order, err = s.loadVisible(ctx, id, orderID)
	if err != nil {
		return nil, err
	}
	if err := order.CheckCancellable(); err != nil {
		return nil, err
	}

	var failures []entity.CompensationFailure
	if ref := order.StockReservationReference; ref != "" {
		_, err := s.stock.ReleaseStock(ctx, ref, order.UserID, "order cancelled")
		s.metrics.ObserveCompensation(coordinator.ReservationStepName, err)
		if err != nil {
			failures = append(failures, entity.CompensationFailure{Step: coordinator.ReservationStepName, Reference: ref, Err: err})
		}
	}
	if ref := order.ShipmentReference; ref != "" {
		_, err := s.logistics.CancelShipment(ctx, ref)
		s.metrics.ObserveCompensation(coordinator.ShipmentStepName, err)
		if err != nil {
			failures = append(failures, entity.CompensationFailure{Step: coordinator.ShipmentStepName, Reference: ref, Err: err})
		}
	}
	if len(failures) > 0 {
		errs := make([]error, len(failures))
		refs := make([]string, len(failures))
		for i, f := range failures {
			errs[i] = f.Err
			refs[i] = f.Reference
			slog.ErrorContext(ctx, "CRITICAL: cancel compensation failed",
				"order_id", order.ID, "step", f.Step, "reference", f.Reference, "error", f.Err)
		}
		return nil, entity.ErrExternalService.
			Withf("order %d was not cancelled, external release failed for %s", order.ID, strings.Join(refs, ", ")).
			WithCompensations(failures).
			Wrap(errors.Join(errs...))
	}

	now := s.nowFunc()
	if err := s.orders.Cancel(ctx, order.ID, now); err != nil {
		return nil, err
	}
	if err := order.MarkCancelled(now); err != nil {
		return nil, err
	}
	slog.InfoContext(ctx, "order cancelled", "order_id", order.ID)
	s.publish(ctx, events.TopicOrderCancelled, order)
	return order, nil
}

// GetHistory lists the caller's orders, or every order for staff.
func (s *OrderService) GetHistory(ctx context.Context) ([]entity.Order, error) {
	id, err := requireIdentity(ctx)
	if err != nil {
		return nil, err
	}
	owner := id.UserID
	if id.Staff {
		owner = 0
	}
	return s.orders.ListByUser(ctx, owner)
}

func (s *OrderService) GetOrderDetail(ctx context.Context, orderID int64) (*entity.Order, error) {
	id, err := requireIdentity(ctx)
	if err != nil {
		return nil, err
	}
	return s.loadVisible(ctx, id, orderID)
}

// GetOrderShipment reads the live shipment of a confirmed order.
func (s *OrderService) GetOrderShipment(ctx context.Context, orderID int64) (*entity.Shipment, error) {
	order, err := s.GetOrderDetail(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.ShipmentReference == "" {
		return nil, entity.ErrNoTracking.Withf("order %d has no shipment yet", orderID)
	}
	sh, err := s.logistics.GetShipment(ctx, order.ShipmentReference)
	if err != nil {
		if entity.AsError(err) != nil {
			return nil, err
		}
		return nil, entity.ErrLogisticsService.Withf("could not read shipment %s", order.ShipmentReference).Wrap(err)
	}
	return sh, nil
}

// SagaLog returns the saga audit trail of an order. Staff only.
func (s *OrderService) SagaLog(ctx context.Context, orderID int64) ([]sagalog.SagaLog, error) {
	id, err := requireIdentity(ctx)
	if err != nil {
		return nil, err
	}
	if !id.Staff {
		return nil, entity.ErrForbidden.Withf("saga logs are restricted to staff")
	}
	order, err := s.orders.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if s.sagaLog == nil {
		return nil, nil
	}
	return s.sagaLog.List(ctx, order.PurchaseID())
}

type LineInput struct {
	ProductID   int64
	ProductName string
	Quantity    int
	UnitPrice   decimal.Decimal
}

type CreateOrderInput struct {
	Address       *entity.ShippingAddress
	Lines         []LineInput
	TransportType string
	// Draft stores the order as DRAFT instead of PENDING.
	Draft bool
}

// CreateOrder stores an order built directly from lines, bypassing the cart.
func (s *OrderService) CreateOrder(ctx context.Context, in CreateOrderInput) (*entity.Order, error) {
	id, err := requireIdentity(ctx)
	if err != nil {
		return nil, err
	}
	if in.Address == nil {
		return nil, entity.ErrMissingAddress
	}
	lines, err := s.buildLines(ctx, in.Lines)
	if err != nil {
		return nil, err
	}
	status := entity.StatusPending
	if in.Draft {
		status = entity.StatusDraft
	}
	order, err := entity.NewOrder(id.UserID, *in.Address, lines, in.TransportType, status)
	if err != nil {
		return nil, err
	}
	if err := s.orders.Create(ctx, order); err != nil {
		return nil, fmt.Errorf("create order: %w", err)
	}
	slog.InfoContext(ctx, "order created", "order_id", order.ID, "status", order.Status)
	return order, nil
}

// UpdateOrderInput leaves a field unchanged when it is nil.
type UpdateOrderInput struct {
	Address       *entity.ShippingAddress
	Lines         []LineInput
	TransportType *string
}

func (s *OrderService) UpdateOrder(ctx context.Context, orderID int64, in UpdateOrderInput) (*entity.Order, error) {
	id, err := requireIdentity(ctx)
	if err != nil {
		return nil, err
	}
	unlock, err := s.lockOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	defer unlock(ctx)

	order, err := s.loadVisible(ctx, id, orderID)
	if err != nil {
		return nil, err
	}
	if !order.Mutable() {
		return nil, entity.ErrOrderImmutable.Withf("order %d is %s", order.ID, order.Status)
	}
	if in.Address != nil {
		if err := order.ChangeAddress(*in.Address); err != nil {
			return nil, err
		}
	}
	if in.Lines != nil {
		lines, err := s.buildLines(ctx, in.Lines)
		if err != nil {
			return nil, err
		}
		if err := order.ReplaceLines(lines); err != nil {
			return nil, err
		}
	}
	if in.TransportType != nil {
		if err := order.ChangeTransportType(*in.TransportType); err != nil {
			return nil, err
		}
	}
	order.UpdatedAt = s.nowFunc().UTC()
	if err := s.orders.Update(ctx, order); err != nil {
		return nil, err
	}
	return order, nil
}

func (s *OrderService) DeleteOrder(ctx context.Context, orderID int64) error {
	id, err := requireIdentity(ctx)
	if err != nil {
		return err
	}
	unlock, err := s.lockOrder(ctx, orderID)
	if err != nil {
		return err
	}
	defer unlock(ctx)

	order, err := s.loadVisible(ctx, id, orderID)
	if err != nil {
		return err
	}
	if !order.Mutable() {
		return entity.ErrOrderImmutable.Withf("order %d is %s and cannot be deleted", order.ID, order.Status)
	}
	return s.orders.Delete(ctx, order.ID)
}

// buildLines fills a missing product name from Stock. The lookup is
// best-effort, like checkout pricing.
func (s *OrderService) buildLines(ctx context.Context, in []LineInput) ([]entity.OrderLine, error) {
	if len(in) == 0 {
		return nil, entity.ErrNoProducts
	}
	lines := make([]entity.OrderLine, 0, len(in))
	for _, l := range in {
		name := strings.TrimSpace(l.ProductName)
		if name == "" {
			name = fmt.Sprintf("Producto %d", l.ProductID)
			if p, err := s.stock.GetProduct(ctx, l.ProductID); err == nil && p.Name != "" {
				name = p.Name
			}
		}
		line, err := entity.NewOrderLine(l.ProductID, name, l.Quantity, l.UnitPrice)
		if err != nil {
			return nil, err
		}
		lines = append(lines, line)
	}
	return lines, nil
}
