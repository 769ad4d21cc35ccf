package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/jcmexdev/ecommerce-checkout/internal/checkout-service/core/domain/entity"
	"github.com/jcmexdev/ecommerce-checkout/internal/coordinator"
	"github.com/jcmexdev/ecommerce-checkout/internal/pkg/events"
	"github.com/jcmexdev/ecommerce-checkout/internal/pkg/reqctx"
)

const (
	opCheckout = "checkout"
	opConfirm  = "confirm"
	opCancel   = "cancel"
)

type CheckoutInput struct {
	// Address is required; nil fails with entity.ErrMissingAddress.
	Address       *entity.ShippingAddress
	TransportType string
	PaymentMethod string
}

// ConfirmationResult is the outcome of a successful checkout or confirm.
type ConfirmationResult struct {
	Order       *entity.Order
	Reservation *entity.Reservation
	Shipment    *entity.Shipment
	// Replayed is set when an Idempotency-Key matched an earlier checkout.
	Replayed bool
}

// Checkout turns the caller's cart into a confirmed order.
func (s *OrderService) Checkout(ctx context.Context, in CheckoutInput) (res *ConfirmationResult, err error) {
	defer func() { s.metrics.ObserveSaga(opCheckout, outcome(err)) }()

	id, err := requireIdentity(ctx)
	if err != nil {
		return nil, err
	}
	if in.Address == nil {
		return nil, entity.ErrMissingAddress
	}
	address := *in.Address
	address.Normalize()
	if err := address.Validate(); err != nil {
		return nil, err
	}
	transport := strings.TrimSpace(in.TransportType)
	if transport == "" {
		transport = s.settings.DefaultTransportType
	}
	if transport == "" {
		return nil, entity.ErrMissingTransportType
	}

	idemKey := reqctx.IdempotencyKey(ctx)
	if idemKey != "" {
		scope := fmt.Sprintf("%d:%s", id.UserID, idemKey)
		if replay, err := s.replay(ctx, scope); replay != nil || err != nil {
			return replay, err
		}
		unlock, err := s.lock(ctx, "checkout:"+scope)
		if err != nil {
			return nil, err
		}
		defer unlock(ctx)
		defer func() {
			if err == nil && !res.Replayed {
				s.remember(ctx, scope, res.Order.ID)
			}
		}()
	}

	cart, err := s.carts.Find(ctx, id.UserID)
	if err != nil {
		return nil, err
	}
	if cart.IsEmpty() {
		return nil, entity.ErrEmptyCart
	}

	lines, err := s.priceLines(ctx, cart.Items)
	if err != nil {
		return nil, err
	}
	order, err := entity.NewOrder(id.UserID, address, lines, transport, entity.StatusPending)
	if err != nil {
		return nil, err
	}
	if err := s.orders.Create(ctx, order); err != nil {
		return nil, fmt.Errorf("checkout: persist order: %w", err)
	}
	slog.InfoContext(ctx, "pending order created", "order_id", order.ID, "total", order.Total.StringFixed(2), "lines", len(order.Lines))

	unlock, err := s.lockOrder(ctx, order.ID)
	if err != nil {
		return nil, err
	}
	defer unlock(ctx)

	res, err = s.confirm(ctx, opCheckout, order, transport)
	if err != nil {
		return nil, err
	}

	if err := s.carts.Clear(ctx, id.UserID); err != nil {
		slog.ErrorContext(ctx, "cart not cleared after checkout", "order_id", order.ID, "error", err)
	}
	return res, nil
}

// ConfirmExistingOrder runs the shipment, reservation and confirm steps for
// an order that is already stored.
func (s *OrderService) ConfirmExistingOrder(ctx context.Context, orderID int64, transportType string) (res *ConfirmationResult, err error) {
	defer func() { s.metrics.ObserveSaga(opConfirm, outcome(err)) }()

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
	transport, err := order.CheckConfirmable(transportType, s.settings.DefaultTransportType)
	if err != nil {
		return nil, err
	}
	return s.confirm(ctx, opConfirm, order, transport)
}

// priceLines snapshots name and price of every cart item. A failed lookup
// yields a zero price and a placeholder name instead of aborting.
func (s *OrderService) priceLines(ctx context.Context, items []entity.CartItem) ([]entity.OrderLine, error) {
	lines := make([]entity.OrderLine, 0, len(items))
	for _, it := range items {
		name := fmt.Sprintf("Producto %d", it.ProductID)
		price := decimal.Zero

		p, err := s.stock.GetProduct(ctx, it.ProductID)
		if err != nil {
			slog.WarnContext(ctx, "price lookup failed, using zero price", "product_id", it.ProductID, "error", err)
		} else {
			if p.Name != "" {
				name = p.Name
			}
			price = p.Price
		}

		line, err := entity.NewOrderLine(it.ProductID, name, it.Quantity, price)
		if err != nil {
			return nil, err
		}
		lines = append(lines, line)
	}
	return lines, nil
}

type sagaPayload struct {
	Operation     string            `json:"operation"`
	OrderID       int64             `json:"order_id"`
	UserID        int64             `json:"user_id"`
	TransportType string            `json:"transport_type"`
	Total         string            `json:"total"`
	Items         []sagaPayloadItem `json:"items"`
}

type sagaPayloadItem struct {
	ProductID int64 `json:"product_id"`
	Quantity  int   `json:"quantity"`
}

// confirm runs the saga for a PENDING order. The caller holds the order
// lock. On failure the order is left as it was and the error keeps the
// code of the failing step.
func (s *OrderService) confirm(ctx context.Context, operation string, order *entity.Order, transport string) (*ConfirmationResult, error) {
	shipment := coordinator.NewShipmentStep(s.logistics, order.ShipmentRequest(transport))
	reservation := coordinator.NewStockReservationStep(s.stock, order.PurchaseID(), order.UserID, order.StockItems())
	confirmStep := coordinator.NewConfirmOrderStep(s.orders, order, transport, shipment, reservation)

	payload := sagaPayload{
		Operation:     operation,
		OrderID:       order.ID,
		UserID:        order.UserID,
		TransportType: transport,
		Total:         order.Total.String(),
	}
	for _, it := range order.StockItems() {
		payload.Items = append(payload.Items, sagaPayloadItem{ProductID: it.ProductID, Quantity: it.Quantity})
	}
	raw, _ := json.Marshal(payload)

	saga := coordinator.NewOrchestrator(order.PurchaseID(),
		[]coordinator.Step{shipment, reservation, confirmStep},
		s.sagaLog,
		coordinator.WithPayload(string(raw)),
		coordinator.WithCompensationTimeout(s.settings.CompensationTimeout),
		coordinator.WithCompensationObserver(s.metrics.ObserveCompensation),
	)
	if err := saga.Start(ctx); err != nil {
		return nil, sagaFailure(ctx, order, err, shipment, reservation)
	}

	slog.InfoContext(ctx, "order confirmed",
		"order_id", order.ID,
		"shipment_id", order.ShipmentReference,
		"reservation_id", order.StockReservationReference,
	)
	s.publish(ctx, events.TopicOrderConfirmed, order)

	return &ConfirmationResult{
		Order:       order,
		Reservation: reservation.Reservation(),
		Shipment:    shipment.Shipment(),
	}, nil
}

// sagaFailure turns a saga error into the coded error returned to the
// caller, attaching the references whose compensation failed.
func sagaFailure(ctx context.Context, order *entity.Order, err error, shipment *coordinator.ShipmentStep, reservation *coordinator.StockReservationStep) error {
	var sagaErr *coordinator.SagaError
	if !errors.As(err, &sagaErr) {
		return err
	}

	primary := entity.AsError(sagaErr.Err)
	if primary == nil {
		primary = entity.ErrInternal.Withf("order %d could not be confirmed", order.ID).Wrap(sagaErr.Err)
	}
	if len(sagaErr.Compensations) == 0 {
		return primary
	}

	failures := make([]entity.CompensationFailure, 0, len(sagaErr.Compensations))
	for _, c := range sagaErr.Compensations {
		f := entity.CompensationFailure{Step: c.Step, Err: c.Err}
		switch c.Step {
		case coordinator.ShipmentStepName:
			if sh := shipment.Shipment(); sh != nil {
				f.Reference = sh.ID
			}
		case coordinator.ReservationStepName:
			if r := reservation.Reservation(); r != nil {
				f.Reference = r.ID
			}
		}
		slog.ErrorContext(ctx, "CRITICAL: manual reconciliation required",
			"order_id", order.ID, "step", f.Step, "reference", f.Reference, "error", f.Err)
		failures = append(failures, f)
	}
	return primary.WithCompensations(failures)
}

func (s *OrderService) replay(ctx context.Context, scope string) (*ConfirmationResult, error) {
	raw, err := s.idempotency.Get(ctx, s.idempotency.GenerateKey(opCheckout, scope))
	if err != nil {
		slog.WarnContext(ctx, "idempotency lookup failed", "error", err)
		return nil, nil
	}
	if raw == "" {
		return nil, nil
	}
	orderID, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return nil, nil
	}
	order, err := s.orders.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	slog.InfoContext(ctx, "checkout replayed from idempotency key", "order_id", order.ID)
	return &ConfirmationResult{Order: order, Replayed: true}, nil
}

func (s *OrderService) remember(ctx context.Context, scope string, orderID int64) {
	key := s.idempotency.GenerateKey(opCheckout, scope)
	if err := s.idempotency.Set(ctx, key, strconv.FormatInt(orderID, 10), s.settings.IdempotencyTTL); err != nil {
		slog.WarnContext(ctx, "idempotency key not stored", "order_id", orderID, "error", err)
	}
}
