package httpx

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/jcmexdev/ecommerce-checkout/internal/checkout-service/app"
	"github.com/jcmexdev/ecommerce-checkout/internal/checkout-service/core/domain/entity"
	"github.com/jcmexdev/ecommerce-checkout/internal/coordinator/sagalog"
)

type AddressDTO struct {
	ReceiverName string `json:"receiverName" validate:"max=120"`
	Street       string `json:"street" validate:"max=200"`
	City         string `json:"city" validate:"max=120"`
	Region       string `json:"region" validate:"max=120"`
	PostalCode   string `json:"postalCode" validate:"max=20"`
	Country      string `json:"country" validate:"max=80"`
	Phone        string `json:"phone" validate:"max=40"`
	ExtraInfo    string `json:"extraInfo" validate:"max=500"`
}

func (a *AddressDTO) toEntity() *entity.ShippingAddress {
	if a == nil {
		return nil
	}
	return &entity.ShippingAddress{
		ReceiverName: a.ReceiverName,
		Street:       a.Street,
		City:         a.City,
		Region:       a.Region,
		PostalCode:   a.PostalCode,
		Country:      a.Country,
		Phone:        a.Phone,
		ExtraInfo:    a.ExtraInfo,
	}
}

type CheckoutRequest struct {
	DeliveryAddress *AddressDTO `json:"deliveryAddress" validate:"omitempty"`
	TransportType   string      `json:"transportType" validate:"max=40"`
	PaymentMethod   string      `json:"paymentMethod" validate:"max=40"`
}

type ConfirmRequest struct {
	TransportType string `json:"transportType" validate:"max=40"`
}

type LineDTO struct {
	ProductID   int64           `json:"productId" validate:"required,gt=0"`
	ProductName string          `json:"productName" validate:"max=200"`
	Quantity    int             `json:"quantity" validate:"required,min=1"`
	UnitPrice   decimal.Decimal `json:"unitPrice"`
}

type CreateOrderRequest struct {
	ShippingAddress *AddressDTO `json:"shippingAddress"`
	Lines           []LineDTO   `json:"lines" validate:"dive"`
	TransportType   string      `json:"transportType" validate:"max=40"`
	Draft           bool        `json:"draft"`
}

type UpdateOrderRequest struct {
	ShippingAddress *AddressDTO `json:"shippingAddress"`
	Lines           []LineDTO   `json:"lines" validate:"omitempty,dive"`
	TransportType   *string     `json:"transportType" validate:"omitempty,max=40"`
}

func toLineInputs(in []LineDTO) []app.LineInput {
	if in == nil {
		return nil
	}
	out := make([]app.LineInput, len(in))
	for i, l := range in {
		out[i] = app.LineInput{ProductID: l.ProductID, ProductName: l.ProductName, Quantity: l.Quantity, UnitPrice: l.UnitPrice}
	}
	return out
}

type CartItemRequest struct {
	ProductID int64 `json:"productId" validate:"required,gt=0"`
	Quantity  int   `json:"quantity" validate:"required,min=1"`
}

type QuantityRequest struct {
	Quantity int `json:"quantity" validate:"required,min=1"`
}

type QuoteProductDTO struct {
	ID       int64 `json:"id" validate:"required,gt=0"`
	Quantity int   `json:"quantity" validate:"required,min=1"`
}

type QuoteRequest struct {
	DeliveryAddress AddressDTO        `json:"deliveryAddress"`
	Products        []QuoteProductDTO `json:"products" validate:"required,min=1,dive"`
	TransportType   string            `json:"transportType" validate:"max=40"`
}

type OrderLineResponse struct {
	ID          int64  `json:"id"`
	ProductID   int64  `json:"productId"`
	ProductName string `json:"productName"`
	Quantity    int    `json:"quantity"`
	UnitPrice   string `json:"unitPrice"`
	LineTotal   string `json:"lineTotal"`
}

type OrderResponse struct {
	ID                        int64               `json:"id"`
	UserID                    *int64              `json:"userId"`
	Status                    string              `json:"status"`
	TransportType             string              `json:"transportType,omitempty"`
	Total                     string              `json:"total"`
	ShippingAddress           AddressDTO          `json:"shippingAddress"`
	Lines                     []OrderLineResponse `json:"lines"`
	ShipmentReference         *string             `json:"shipmentReference"`
	StockReservationReference *string             `json:"stockReservationReference"`
	ConfirmedAt               *string             `json:"confirmedAt"`
	CreatedAt                 string              `json:"createdAt"`
	UpdatedAt                 string              `json:"updatedAt"`
}

type ReservationResponse struct {
	ID     string `json:"id"`
	Status string `json:"status,omitempty"`
}

type ShipmentResponse struct {
	ID                  string `json:"id"`
	TrackingNumber      string `json:"trackingNumber,omitempty"`
	Status              string `json:"status,omitempty"`
	TransportType       string `json:"transportType,omitempty"`
	EstimatedDeliveryAt string `json:"estimatedDeliveryAt,omitempty"`
}

type CheckoutResponse struct {
	Message     string               `json:"message"`
	OrderID     int64                `json:"orderId"`
	Order       OrderResponse        `json:"order"`
	Reservation *ReservationResponse `json:"reservation"`
	Shipment    *ShipmentResponse    `json:"shipment"`
}

type CartItemResponse struct {
	ProductID int64 `json:"productId"`
	Quantity  int   `json:"quantity"`
}

type CartResponse struct {
	ID         int64              `json:"id"`
	UserID     int64              `json:"userId"`
	Items      []CartItemResponse `json:"items"`
	TotalUnits int                `json:"totalUnits"`
}

type ProductResponse struct {
	ID         int64  `json:"id"`
	Name       string `json:"name"`
	Price      string `json:"price"`
	Stock      int    `json:"stock"`
	CategoryID int64  `json:"categoryId,omitempty"`
}

type ProductPageResponse struct {
	Items []ProductResponse `json:"items"`
	Page  int               `json:"page"`
	Limit int               `json:"limit"`
	Total int               `json:"total"`
}

type CategoryResponse struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

type TransportMethodResponse struct {
	Type          string `json:"type"`
	Name          string `json:"name"`
	EstimatedDays int    `json:"estimatedDays,omitempty"`
}

type QuoteResponse struct {
	TransportType string `json:"transportType"`
	Currency      string `json:"currency,omitempty"`
	Cost          string `json:"cost"`
	EstimatedDays int    `json:"estimatedDays,omitempty"`
}

type SagaLogResponse struct {
	Status        string `json:"status"`
	CurrentStep   string `json:"currentStep,omitempty"`
	Payload       string `json:"payload,omitempty"`
	ErrorMessages string `json:"errorMessages"`
	TraceID       string `json:"traceId,omitempty"`
	SpanID        string `json:"spanId,omitempty"`
	UpdatedAt     string `json:"updatedAt"`
}

type CompensationFailureResponse struct {
	Step      string `json:"step"`
	Reference string `json:"reference,omitempty"`
	Error     string `json:"error"`
}

type CompensationResponse struct {
	Code     string                        `json:"code"`
	Failures []CompensationFailureResponse `json:"failures"`
}

type ErrorResponse struct {
	Error        string                `json:"error"`
	Code         string                `json:"code"`
	Detail       string                `json:"detail,omitempty"`
	Fields       map[string]string     `json:"fields,omitempty"`
	Compensation *CompensationResponse `json:"compensation,omitempty"`
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func mapOrderToResponse(o *entity.Order) OrderResponse {
	resp := OrderResponse{
		ID:            o.ID,
		Status:        string(o.Status),
		TransportType: o.TransportType,
		Total:         o.Total.StringFixed(2),
		ShippingAddress: AddressDTO{
			ReceiverName: o.Address.ReceiverName,
			Street:       o.Address.Street,
			City:         o.Address.City,
			Region:       o.Address.Region,
			PostalCode:   o.Address.PostalCode,
			Country:      o.Address.Country,
			Phone:        o.Address.Phone,
			ExtraInfo:    o.Address.ExtraInfo,
		},
		Lines:                     make([]OrderLineResponse, len(o.Lines)),
		ShipmentReference:         optional(o.ShipmentReference),
		StockReservationReference: optional(o.StockReservationReference),
		CreatedAt:                 formatTime(o.CreatedAt),
		UpdatedAt:                 formatTime(o.UpdatedAt),
	}
	if o.UserID != 0 {
		uid := o.UserID
		resp.UserID = &uid
	}
	if o.ConfirmedAt != nil {
		at := formatTime(*o.ConfirmedAt)
		resp.ConfirmedAt = &at
	}
	for i, l := range o.Lines {
		resp.Lines[i] = OrderLineResponse{
			ID:          l.ID,
			ProductID:   l.ProductID,
			ProductName: l.ProductName,
			Quantity:    l.Quantity,
			UnitPrice:   l.UnitPrice.StringFixed(2),
			LineTotal:   l.LineTotal().StringFixed(2),
		}
	}
	return resp
}

func mapOrders(orders []entity.Order) []OrderResponse {
	out := make([]OrderResponse, len(orders))
	for i := range orders {
		out[i] = mapOrderToResponse(&orders[i])
	}
	return out
}

func mapConfirmation(res *app.ConfirmationResult, message string) CheckoutResponse {
	resp := CheckoutResponse{
		Message: message,
		OrderID: res.Order.ID,
		Order:   mapOrderToResponse(res.Order),
	}
	if r := res.Reservation; r != nil {
		resp.Reservation = &ReservationResponse{ID: r.ID, Status: r.Status}
	} else if ref := res.Order.StockReservationReference; ref != "" {
		resp.Reservation = &ReservationResponse{ID: ref}
	}
	if s := res.Shipment; s != nil {
		sh := mapShipment(s)
		resp.Shipment = &sh
	} else if ref := res.Order.ShipmentReference; ref != "" {
		resp.Shipment = &ShipmentResponse{ID: ref}
	}
	return resp
}

func mapShipment(s *entity.Shipment) ShipmentResponse {
	return ShipmentResponse{
		ID:                  s.ID,
		TrackingNumber:      s.TrackingNumber,
		Status:              s.Status,
		TransportType:       s.TransportType,
		EstimatedDeliveryAt: s.EstimatedDeliveryAt,
	}
}

func mapCart(c *entity.Cart) CartResponse {
	resp := CartResponse{ID: c.ID, UserID: c.UserID, Items: make([]CartItemResponse, len(c.Items)), TotalUnits: c.TotalUnits()}
	for i, it := range c.Items {
		resp.Items[i] = CartItemResponse{ProductID: it.ProductID, Quantity: it.Quantity}
	}
	return resp
}

func mapProduct(p *entity.Product) ProductResponse {
	return ProductResponse{ID: p.ID, Name: p.Name, Price: p.Price.StringFixed(2), Stock: p.Stock, CategoryID: p.CategoryID}
}

func mapSagaLog(entries []sagalog.SagaLog) []SagaLogResponse {
	out := make([]SagaLogResponse, len(entries))
	for i, e := range entries {
		out[i] = SagaLogResponse{
			Status:        string(e.Status),
			CurrentStep:   e.CurrentStep,
			Payload:       e.Payload,
			ErrorMessages: e.ErrorMessages,
			TraceID:       e.TraceID,
			SpanID:        e.SpanID,
			UpdatedAt:     e.UpdatedAt.UTC().Format(time.RFC3339Nano),
		}
	}
	return out
}
