package entity

import "github.com/shopspring/decimal"

type Product struct {
	ID         int64
	Name       string
	Price      decimal.Decimal
	Stock      int
	CategoryID int64
}

type ProductQuery struct {
	Page       int
	Limit      int
	Search     string
	CategoryID int64
}

type ProductPage struct {
	Items []Product
	Page  int
	Limit int
	Total int
}

type Category struct {
	ID   int64
	Name string
}

type StockItem struct {
	ProductID int64
	Quantity  int
}

// Reservation is an all-or-nothing hold on stock for one purchase.
type Reservation struct {
	ID     string
	Status string
}

type ReleaseResult struct {
	ReservationID string
	Status        string
}
