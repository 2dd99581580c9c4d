package repository

import (
	"context"

	"paygate/internal/domain"
)

// CartRepository defines the persistence operations for received carts.
type CartRepository interface {
	// Create persists a new cart.
	Create(ctx context.Context, cart *domain.Cart) error

	// GetByID retrieves a cart by ID.
	GetByID(ctx context.Context, id string) (*domain.Cart, error)
}
