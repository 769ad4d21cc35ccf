package entity

import "time"

type CartItem struct {
	ProductID int64
	Quantity  int
}

// Cart belongs to exactly one user and holds at most one item per product.
type Cart struct {
	ID        int64
	UserID    int64
	Items     []CartItem
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (c *Cart) IsEmpty() bool { return len(c.Items) == 0 }

// Quantity returns the quantity held for productID, or 0.
func (c *Cart) Quantity(productID int64) int {
	for _, it := range c.Items {
		if it.ProductID == productID {
			return it.Quantity
		}
	}
	return 0
}

func (c *Cart) TotalUnits() int {
	n := 0
	for _, it := range c.Items {
		n += it.Quantity
	}
	return n
}
