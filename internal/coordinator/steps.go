package coordinator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jcmexdev/ecommerce-checkout/internal/checkout-service/core/domain/entity"
	"github.com/jcmexdev/ecommerce-checkout/internal/checkout-service/core/ports"
)

const (
	ShipmentStepName     = "Create_Shipment_Step"
	ReservationStepName  = "Stock_Reservation_Step"
	ConfirmOrderStepName = "Confirm_Order_Step"
)

// --- ShipmentStep ---

type ShipmentStep struct {
	client   ports.LogisticsService
	request  entity.ShipmentRequest
	shipment *entity.Shipment
}

func NewShipmentStep(client ports.LogisticsService, request entity.ShipmentRequest) *ShipmentStep {
	return &ShipmentStep{client: client, request: request}
}

func (s *ShipmentStep) Name() string { return ShipmentStepName }

func (s *ShipmentStep) Execute(ctx context.Context) error {
	res, err := s.client.CreateShipment(ctx, s.request)
	if err != nil {
		return entity.ErrShipmentCreation.Withf("could not create shipment for order %d", s.request.OrderID).Wrap(err)
	}
	if res == nil || strings.TrimSpace(res.ID) == "" {
		return entity.ErrShipmentCreation.Withf("logistics returned no shipment id for order %d", s.request.OrderID)
	}
	s.shipment = res
	return nil
}

func (s *ShipmentStep) Compensate(ctx context.Context) error {
	if s.shipment == nil {
		return nil
	}
	_, err := s.client.CancelShipment(ctx, s.shipment.ID)
	return err
}

// Shipment is the created shipment, nil until Execute succeeds.
func (s *ShipmentStep) Shipment() *entity.Shipment { return s.shipment }

// --- StockReservationStep ---

type StockReservationStep struct {
	client      ports.StockService
	purchaseID  string
	userID      int64
	items       []entity.StockItem
	reservation *entity.Reservation
}

func NewStockReservationStep(client ports.StockService, purchaseID string, userID int64, items []entity.StockItem) *StockReservationStep {
	return &StockReservationStep{
		client:     client,
		purchaseID: purchaseID,
		userID:     userID,
		items:      items,
	}
}

func (s *StockReservationStep) Name() string { return ReservationStepName }

func (s *StockReservationStep) Execute(ctx context.Context) error {
	res, err := s.client.ReserveStock(ctx, s.purchaseID, s.userID, s.items)
	if err != nil {
		if errors.Is(err, entity.ErrInsufficientStock) {
			return err
		}
		return entity.ErrStockReservation.Withf("could not reserve stock for purchase %s", s.purchaseID).Wrap(err)
	}
	if res == nil || strings.TrimSpace(res.ID) == "" {
		return entity.ErrStockReservation.Withf("stock returned no reservation id for purchase %s", s.purchaseID)
	}
	s.reservation = res
	return nil
}

func (s *StockReservationStep) Compensate(ctx context.Context) error {
	if s.reservation == nil {
		return nil
	}
	_, err := s.client.ReleaseStock(ctx, s.reservation.ID, s.userID, "checkout rollback")
	return err
}

// Reservation is the stock reservation, nil until Execute succeeds.
func (s *StockReservationStep) Reservation() *entity.Reservation { return s.reservation }

// --- ConfirmOrderStep ---

// ConfirmOrderStep commits the order with the references produced by the
// shipment and reservation steps.
type ConfirmOrderStep struct {
	repo        ports.OrderRepository
	order       *entity.Order
	transport   string
	shipment    *ShipmentStep
	reservation *StockReservationStep
	nowFunc     func() time.Time
}

func NewConfirmOrderStep(repo ports.OrderRepository, order *entity.Order, transport string, shipment *ShipmentStep, reservation *StockReservationStep) *ConfirmOrderStep {
	return &ConfirmOrderStep{
		repo:        repo,
		order:       order,
		transport:   transport,
		shipment:    shipment,
		reservation: reservation,
		nowFunc:     time.Now,
	}
}

func (s *ConfirmOrderStep) Name() string { return ConfirmOrderStepName }

func (s *ConfirmOrderStep) Execute(ctx context.Context) error {
	sh, res := s.shipment.Shipment(), s.reservation.Reservation()
	if sh == nil || res == nil {
		return fmt.Errorf("confirm order %d: missing external references", s.order.ID)
	}

	// Work on a copy so a failed commit leaves the caller's order untouched.
	confirmed := *s.order
	if err := confirmed.MarkConfirmed(sh.ID, res.ID, s.transport, s.nowFunc()); err != nil {
		return err
	}
	if err := s.repo.Confirm(ctx, &confirmed); err != nil {
		return err
	}
	*s.order = confirmed
	return nil
}

// Compensate is a no-op: this is the last step.
func (s *ConfirmOrderStep) Compensate(context.Context) error { return nil }
