package redis

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const sweepLockKey = "lock:sweep:intents"

// ErrLockNotHeld is returned when releasing a lock whose token no longer matches,
// typically because it expired and another replica took it.
var ErrLockNotHeld = errors.New("sweep lock not held")

// releaseScript deletes the key only if it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// lockClient is the subset of *redis.Client used by LockStore.
type lockClient interface {
	redis.Scripter
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
}

// LockStore handles distributed locking in Redis.
// Each acquisition stores a fresh token so a replica can only release its own lock.
type LockStore struct {
	client lockClient

	mu    sync.Mutex
	token string
}

// NewLockStore creates a new LockStore.
func NewLockStore(client *redis.Client) *LockStore {
	return newLockStore(client)
}

func newLockStore(client lockClient) *LockStore {
	return &LockStore{client: client}
}

// AcquireSweepLock attempts to acquire the expiry sweep lock.
// Returns true if the lock was acquired, false if another replica holds it.
func (s *LockStore) AcquireSweepLock(ctx context.Context, ttl time.Duration) (bool, error) {
	token := uuid.NewString()

	acquired, err := s.client.SetNX(ctx, sweepLockKey, token, ttl).Result()
	if err != nil || !acquired {
		return false, err
	}

	s.mu.Lock()
	s.token = token
	s.mu.Unlock()
	return true, nil
}

// ReleaseSweepLock releases the expiry sweep lock if this store still owns it.
func (s *LockStore) ReleaseSweepLock(ctx context.Context) error {
	s.mu.Lock()
	token := s.token
	s.token = ""
	s.mu.Unlock()

	if token == "" {
		return ErrLockNotHeld
	}

	deleted, err := releaseScript.Run(ctx, s.client, []string{sweepLockKey}, token).Int()
	if err != nil {
		return err
	}
	if deleted == 0 {
		return ErrLockNotHeld
	}
	return nil
}
