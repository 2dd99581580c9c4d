package repository

import (
	"context"
	"time"

	"paygate/internal/domain"
)

// IntentRepository defines the persistence operations for payment intents.
type IntentRepository interface {
	// Create persists a new intent. Returns ErrDuplicateKey if the transaction ID exists.
	Create(ctx context.Context, intent *domain.PaymentIntent) error

	// GetByID retrieves an intent by transaction ID.
	GetByID(ctx context.Context, transactionID string) (*domain.PaymentIntent, error)

	// CompareAndSwap applies update only if the stored state equals expected.
	// Returns ErrConflict if the state differs and ErrNotFound if the intent does not exist.
	CompareAndSwap(ctx context.Context, transactionID string, expected domain.IntentState, update domain.IntentUpdate) error

	// ListStale returns IDs of non-terminal intents created before cutoff, oldest first.
	ListStale(ctx context.Context, cutoff time.Time, limit int) ([]string, error)
}
