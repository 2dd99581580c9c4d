package redis

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"paygate/internal/domain"
)

// IntentCacheTTL bounds how long a terminal intent snapshot is kept.
// Terminal intents never change, so the TTL only limits memory use.
const IntentCacheTTL = 10 * time.Minute

const intentCachePrefix = "cache:intent:"

// CachedIntent represents a cached payment intent.
type CachedIntent struct {
	TransactionID        string            `json:"transaction_id"`
	Amount               int64             `json:"amount"`
	State                string            `json:"state"`
	ReferenceID          string            `json:"reference_id,omitempty"`
	GatewayAmount        int64             `json:"gateway_amount,omitempty"`
	Metadata             map[string]string `json:"metadata,omitempty"`
	FailureReason        string            `json:"failure_reason,omitempty"`
	VerificationAttempts int               `json:"verification_attempts"`
	CreatedAt            time.Time         `json:"created_at"`
	UpdatedAt            time.Time         `json:"updated_at"`
}

// CacheStore handles intent snapshot caching in Redis.
type CacheStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewCacheStore creates a new CacheStore.
func NewCacheStore(client *redis.Client) *CacheStore {
	return &CacheStore{client: client, ttl: IntentCacheTTL}
}

// GetIntent retrieves an intent from cache. Returns nil on a miss.
func (s *CacheStore) GetIntent(ctx context.Context, transactionID string) (*domain.PaymentIntent, error) {
	data, err := s.client.Get(ctx, intentCachePrefix+transactionID).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil // Cache miss
		}
		return nil, err
	}

	var cached CachedIntent
	if err := json.Unmarshal(data, &cached); err != nil {
		return nil, err
	}

	return &domain.PaymentIntent{
		TransactionID:        cached.TransactionID,
		Amount:               domain.Amount(cached.Amount),
		State:                domain.IntentState(cached.State),
		ReferenceID:          cached.ReferenceID,
		GatewayAmount:        domain.Amount(cached.GatewayAmount),
		Metadata:             cached.Metadata,
		FailureReason:        cached.FailureReason,
		VerificationAttempts: cached.VerificationAttempts,
		CreatedAt:            cached.CreatedAt,
		UpdatedAt:            cached.UpdatedAt,
	}, nil
}

// SetIntent stores an intent in cache. Only terminal intents are cached.
func (s *CacheStore) SetIntent(ctx context.Context, intent *domain.PaymentIntent) error {
	if !intent.IsTerminal() {
		return nil
	}

	data, err := json.Marshal(CachedIntent{
		TransactionID:        intent.TransactionID,
		Amount:               int64(intent.Amount),
		State:                string(intent.State),
		ReferenceID:          intent.ReferenceID,
		GatewayAmount:        int64(intent.GatewayAmount),
		Metadata:             intent.Metadata,
		FailureReason:        intent.FailureReason,
		VerificationAttempts: intent.VerificationAttempts,
		CreatedAt:            intent.CreatedAt,
		UpdatedAt:            intent.UpdatedAt,
	})
	if err != nil {
		return err
	}

	return s.client.Set(ctx, intentCachePrefix+intent.TransactionID, data, s.ttl).Err()
}
