package entity

import (
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	StatusDraft     OrderStatus = "DRAFT"
	StatusPending   OrderStatus = "PENDING"
	StatusConfirmed OrderStatus = "CONFIRMED"
	StatusCancelled OrderStatus = "CANCELLED"
)

// Valid reports whether s is one of the known statuses.
func (s OrderStatus) Valid() bool {
	switch s {
	case StatusDraft, StatusPending, StatusConfirmed, StatusCancelled:
		return true
	}
	return false
}

const DefaultCountry = "Argentina"

type ShippingAddress struct {
	ID           int64
	ReceiverName string
	Street       string
	City         string
	Region       string
	PostalCode   string
	Country      string
	Phone        string
	ExtraInfo    string
}

// Normalize trims every field and fills in the default country.
func (a *ShippingAddress) Normalize() {
	for _, f := range []*string{&a.ReceiverName, &a.Street, &a.City, &a.Region, &a.PostalCode, &a.Country, &a.Phone, &a.ExtraInfo} {
		*f = strings.TrimSpace(*f)
	}
	if a.Country == "" {
		a.Country = DefaultCountry
	}
}

// Validate requires street, city and postal code.
func (a ShippingAddress) Validate() error {
	var missing []string
	if strings.TrimSpace(a.Street) == "" {
		missing = append(missing, "street")
	}
	if strings.TrimSpace(a.City) == "" {
		missing = append(missing, "city")
	}
	if strings.TrimSpace(a.PostalCode) == "" {
		missing = append(missing, "postal_code")
	}
	if len(missing) > 0 {
		return ErrInvalidAddress.Withf("missing address fields: %s", strings.Join(missing, ", "))
	}
	return nil
}

// Delivery maps the address to the shape Logistics expects. The region
// falls back to the city when empty.
func (a ShippingAddress) Delivery() DeliveryAddress {
	state := a.Region
	if state == "" {
		state = a.City
	}
	country := a.Country
	if country == "" {
		country = DefaultCountry
	}
	return DeliveryAddress{
		Street:     a.Street,
		City:       a.City,
		State:      state,
		PostalCode: a.PostalCode,
		Country:    country,
	}
}

// OrderLine is a price snapshot taken when the order was created.
type OrderLine struct {
	ID          int64
	ProductID   int64
	ProductName string
	Quantity    int
	UnitPrice   decimal.Decimal
}

func NewOrderLine(productID int64, name string, quantity int, unitPrice decimal.Decimal) (OrderLine, error) {
	if quantity < 1 {
		return OrderLine{}, ErrInvalidQuantity.Withf("quantity for product %d must be at least 1", productID)
	}
	if unitPrice.IsNegative() {
		return OrderLine{}, ErrInvalidPrice.Withf("unit price for product %d must not be negative", productID)
	}
	return OrderLine{ProductID: productID, ProductName: name, Quantity: quantity, UnitPrice: unitPrice}, nil
}

func (l OrderLine) LineTotal() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

type Order struct {
	ID int64
	// UserID is 0 once the owning user no longer exists.
	UserID        int64
	Address       ShippingAddress
	Status        OrderStatus
	TransportType string
	Total         decimal.Decimal
	Lines         []OrderLine

	ShipmentReference         string
	StockReservationReference string

	ConfirmedAt *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// NewOrder builds an unsaved DRAFT or PENDING order with its total computed.
func NewOrder(userID int64, address ShippingAddress, lines []OrderLine, transportType string, status OrderStatus) (*Order, error) {
	if status != StatusDraft && status != StatusPending {
		return nil, ErrInvalidData.Withf("new orders must be %s or %s", StatusDraft, StatusPending)
	}
	address.Normalize()
	if err := address.Validate(); err != nil {
		return nil, err
	}
	if len(lines) == 0 {
		return nil, ErrNoProducts
	}
	o := &Order{
		UserID:        userID,
		Address:       address,
		Status:        status,
		TransportType: strings.TrimSpace(transportType),
		Lines:         append([]OrderLine(nil), lines...),
	}
	o.RecalculateTotal()
	return o, nil
}

// RecalculateTotal sets Total to the sum of the line totals.
func (o *Order) RecalculateTotal() {
	total := decimal.Zero
	for _, l := range o.Lines {
		total = total.Add(l.LineTotal())
	}
	o.Total = total
}

// Mutable reports whether lines, address and transport may still change.
func (o *Order) Mutable() bool {
	return o.Status == StatusDraft || o.Status == StatusPending
}

func (o *Order) ReplaceLines(lines []OrderLine) error {
	if !o.Mutable() {
		return ErrOrderImmutable.Withf("order %d is %s", o.ID, o.Status)
	}
	if len(lines) == 0 {
		return ErrNoProducts
	}
	o.Lines = append([]OrderLine(nil), lines...)
	o.RecalculateTotal()
	return nil
}

func (o *Order) ChangeAddress(a ShippingAddress) error {
	if !o.Mutable() {
		return ErrOrderImmutable.Withf("order %d is %s", o.ID, o.Status)
	}
	a.Normalize()
	if err := a.Validate(); err != nil {
		return err
	}
	a.ID = o.Address.ID
	o.Address = a
	return nil
}

func (o *Order) ChangeTransportType(t string) error {
	if !o.Mutable() {
		return ErrOrderImmutable.Withf("order %d is %s", o.ID, o.Status)
	}
	o.TransportType = strings.TrimSpace(t)
	return nil
}

// CheckConfirmable validates that the order may enter the confirmation
// saga and returns the transport type to use: override, then the order's
// own, then fallback.
func (o *Order) CheckConfirmable(override, fallback string) (string, error) {
	switch o.Status {
	case StatusConfirmed:
		return "", ErrAlreadyConfirmed.Withf("order %d is already confirmed", o.ID)
	case StatusCancelled:
		return "", ErrAlreadyCancelled.Withf("order %d is cancelled", o.ID)
	}
	if len(o.Lines) == 0 {
		return "", ErrNoProducts.Withf("order %d has no products", o.ID)
	}
	for _, t := range []string{override, o.TransportType, fallback} {
		if t = strings.TrimSpace(t); t != "" {
			return t, nil
		}
	}
	return "", ErrMissingTransportType
}

// MarkConfirmed applies the PENDING -> CONFIRMED transition. Both
// references are required and set together.
func (o *Order) MarkConfirmed(shipmentRef, reservationRef, transportType string, at time.Time) error {
	if _, err := o.CheckConfirmable(transportType, ""); err != nil {
		return err
	}
	if shipmentRef == "" || reservationRef == "" {
		return ErrInvalidData.Withf("order %d needs both a shipment and a stock reservation reference", o.ID)
	}
	o.Status = StatusConfirmed
	o.ShipmentReference = shipmentRef
	o.StockReservationReference = reservationRef
	if t := strings.TrimSpace(transportType); t != "" {
		o.TransportType = t
	}
	if o.ConfirmedAt == nil {
		at := at.UTC()
		o.ConfirmedAt = &at
	}
	o.UpdatedAt = at.UTC()
	return nil
}

func (o *Order) CheckCancellable() error {
	switch o.Status {
	case StatusCancelled:
		return ErrAlreadyCancelled.Withf("order %d is already cancelled", o.ID)
	case StatusConfirmed:
		return ErrCannotCancelConfirmed.Withf("order %d is confirmed", o.ID)
	}
	return nil
}

func (o *Order) MarkCancelled(at time.Time) error {
	if err := o.CheckCancellable(); err != nil {
		return err
	}
	o.Status = StatusCancelled
	o.UpdatedAt = at.UTC()
	return nil
}

// PurchaseID is the order id as sent to Stock; it ties the reservation
// one-to-one to the order.
func (o *Order) PurchaseID() string {
	return strconv.FormatInt(o.ID, 10)
}

func (o *Order) StockItems() []StockItem {
	items := make([]StockItem, len(o.Lines))
	for i, l := range o.Lines {
		items[i] = StockItem{ProductID: l.ProductID, Quantity: l.Quantity}
	}
	return items
}

func (o *Order) ShipmentRequest(transportType string) ShipmentRequest {
	products := make([]ShipmentProduct, len(o.Lines))
	for i, l := range o.Lines {
		products[i] = ShipmentProduct{ID: l.ProductID, Quantity: l.Quantity}
	}
	return ShipmentRequest{
		OrderID:       o.ID,
		UserID:        o.UserID,
		Address:       o.Address.Delivery(),
		TransportType: transportType,
		Products:      products,
	}
}
