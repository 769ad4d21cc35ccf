package entity

import "github.com/shopspring/decimal"

type DeliveryAddress struct {
	Street     string
	City       string
	State      string
	PostalCode string
	Country    string
}

type ShipmentProduct struct {
	ID       int64
	Quantity int
}

type ShipmentRequest struct {
	OrderID       int64
	UserID        int64
	Address       DeliveryAddress
	TransportType string
	Products      []ShipmentProduct
}

type Shipment struct {
	ID                  string
	TrackingNumber      string
	Status              string
	TransportType       string
	EstimatedDeliveryAt string
}

type CancelResult struct {
	ShipmentID string
	Status     string
}

type ShipmentFilter struct {
	UserID   int64
	Status   string
	FromDate string
	ToDate   string
	Page     int
	Limit    int
}

type TransportMethod struct {
	Type          string
	Name          string
	EstimatedDays int
}

type QuoteRequest struct {
	Address       DeliveryAddress
	Products      []ShipmentProduct
	TransportType string
}

type Quote struct {
	TransportType string
	Currency      string
	Cost          decimal.Decimal
	EstimatedDays int
}
