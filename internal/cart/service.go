package cart

import (
	"context"
	"errors"
	"fmt"

	"github.com/imrishuroy/storefront-checkout/internal/catalog"
)

// ErrProductNotFound is returned when adding a product missing from the catalog.
var ErrProductNotFound = errors.New("product not found")

// Products resolves catalog entries so price and stock never come from the client.
type Products interface {
	Get(ctx context.Context, id string) (*catalog.Product, error)
}

// Service applies cart operations and persists the result.
type Service struct {
	storage  Storage
	products Products
}

// NewService creates a cart Service.
func NewService(storage Storage, products Products) *Service {
	return &Service{storage: storage, products: products}
}

// Get returns the cart, empty when none is stored.
func (s *Service) Get(ctx context.Context, cartID string) (*Cart, error) {
	return s.storage.Load(ctx, cartID)
}

// Add puts quantity units of a catalog product into the cart.
func (s *Service) Add(ctx context.Context, cartID, productID string, quantity int) (*Cart, error) {
	p, err := s.products.Get(ctx, productID)
	if err != nil {
		return nil, fmt.Errorf("lookup product: %w", err)
	}
	if p == nil {
		return nil, ErrProductNotFound
	}
	return s.mutate(ctx, cartID, func(c *Cart) error {
		return c.AddItem(Item{
			ProductID: p.ID,
			Name:      p.Name,
			Slug:      p.Slug,
			UnitPrice: p.Price,
			Quantity:  quantity,
			Stock:     p.Stock,
			Images:    p.Images,
		})
	})
}

// SetQuantity changes a line quantity; n <= 0 removes the line.
func (s *Service) SetQuantity(ctx context.Context, cartID, productID string, n int) (*Cart, error) {
	return s.mutate(ctx, cartID, func(c *Cart) error { return c.UpdateQuantity(productID, n) })
}

// Remove drops a line.
func (s *Service) Remove(ctx context.Context, cartID, productID string) (*Cart, error) {
	return s.mutate(ctx, cartID, func(c *Cart) error { return c.RemoveItem(productID) })
}

// Clear deletes the stored cart.
func (s *Service) Clear(ctx context.Context, cartID string) error {
	return s.storage.Delete(ctx, cartID)
}

func (s *Service) mutate(ctx context.Context, cartID string, fn func(*Cart) error) (*Cart, error) {
	c, err := s.storage.Load(ctx, cartID)
	if err != nil {
		return nil, err
	}
	if err := fn(c); err != nil {
		return nil, err
	}
	if err := s.storage.Save(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}
