package domain

import "time"

// CartItem is a single line of a submitted cart.
type CartItem struct {
	ID    int64
	Name  string
	Price Amount
	Qty   int
}

// Cart represents a cart payload received from the storefront.
type Cart struct {
	ID        string
	Items     []CartItem
	CreatedAt time.Time
}

// Total returns the sum of price * qty over all items.
func (c *Cart) Total() Amount {
	var total Amount
	for _, item := range c.Items {
		total += item.Price * Amount(item.Qty)
	}
	return total
}
