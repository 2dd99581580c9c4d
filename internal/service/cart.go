package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"paygate/internal/domain"
	"paygate/internal/repository"
)

// CartService handles carts submitted by the storefront.
type CartService struct {
	cartRepo repository.CartRepository
	logger   *zap.Logger
}

// NewCartService creates a new CartService.
func NewCartService(cartRepo repository.CartRepository, logger *zap.Logger) *CartService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CartService{cartRepo: cartRepo, logger: logger}
}

// ReceiveCart validates, logs and stores a cart.
func (s *CartService) ReceiveCart(ctx context.Context, items []domain.CartItem) (*domain.Cart, error) {
	if items == nil {
		return nil, ErrInvalidCart
	}

	for i, item := range items {
		if item.Qty < 0 {
			return nil, fmt.Errorf("%w: item %d has negative quantity", ErrInvalidCart, i)
		}
		if item.Price < 0 {
			return nil, fmt.Errorf("%w: item %d has negative price", ErrInvalidCart, i)
		}
	}

	cart := &domain.Cart{
		ID:        uuid.New().String(),
		Items:     items,
		CreatedAt: time.Now(),
	}

	s.logger.Info("cart received",
		zap.String("cart_id", cart.ID),
		zap.Int("items", len(cart.Items)),
		zap.Stringer("total", cart.Total()))

	if err := s.cartRepo.Create(ctx, cart); err != nil {
		return nil, fmt.Errorf("store cart: %w", err)
	}

	return cart, nil
}
