// Package cart holds the shopping cart model and its persistence.
package cart

import (
	"errors"
	"math"
	"time"
)

// ErrItemNotFound is returned when a cart line does not exist.
var ErrItemNotFound = errors.New("cart item not found")

// ErrOutOfStock is returned when adding a product with no stock.
var ErrOutOfStock = errors.New("product out of stock")

// Item is one cart line. Stock is the snapshot used to clamp quantities.
type Item struct {
	ProductID string   `json:"product_id"`
	Name      string   `json:"name"`
	Slug      string   `json:"slug,omitempty"`
	UnitPrice float64  `json:"unit_price"`
	Quantity  int      `json:"quantity"`
	Stock     int      `json:"stock"`
	Images    []string `json:"images,omitempty"`
}

// Cart is a customer's cart. Every line has quantity >= 1.
type Cart struct {
	ID        string    `json:"id"`
	Items     []Item    `json:"items"`
	UpdatedAt time.Time `json:"updated_at"`
}

// New returns an empty cart.
func New(id string) *Cart {
	return &Cart{ID: id, Items: []Item{}}
}

// AddItem appends item, or increments the existing line for the same product.
// The resulting quantity is clamped at the stock snapshot; a requested quantity
// below 1 counts as 1.
func (c *Cart) AddItem(item Item) error {
	if item.Stock <= 0 {
		return ErrOutOfStock
	}
	if item.Quantity < 1 {
		item.Quantity = 1
	}
	for i := range c.Items {
		if c.Items[i].ProductID != item.ProductID {
			continue
		}
		line := &c.Items[i]
		line.Stock = item.Stock
		line.UnitPrice = item.UnitPrice
		line.Quantity = clamp(line.Quantity+item.Quantity, item.Stock)
		return nil
	}
	item.Quantity = clamp(item.Quantity, item.Stock)
	c.Items = append(c.Items, item)
	return nil
}

// UpdateQuantity sets the quantity of a line; n <= 0 removes it.
func (c *Cart) UpdateQuantity(productID string, n int) error {
	if n <= 0 {
		return c.RemoveItem(productID)
	}
	for i := range c.Items {
		if c.Items[i].ProductID == productID {
			c.Items[i].Quantity = clamp(n, c.Items[i].Stock)
			return nil
		}
	}
	return ErrItemNotFound
}

// RemoveItem drops a line.
func (c *Cart) RemoveItem(productID string) error {
	for i := range c.Items {
		if c.Items[i].ProductID == productID {
			c.Items = append(c.Items[:i], c.Items[i+1:]...)
			return nil
		}
	}
	return ErrItemNotFound
}

// Clear empties the cart.
func (c *Cart) Clear() {
	c.Items = []Item{}
}

// TotalItems is the sum of quantities.
func (c *Cart) TotalItems() int {
	n := 0
	for _, it := range c.Items {
		n += it.Quantity
	}
	return n
}

// TotalPrice is the sum of unit price x quantity, rounded to cents.
func (c *Cart) TotalPrice() float64 {
	var sum float64
	for _, it := range c.Items {
		sum += it.UnitPrice * float64(it.Quantity)
	}
	return math.Round(sum*100) / 100
}

func clamp(n, stock int) int {
	if stock > 0 && n > stock {
		return stock
	}
	return n
}
