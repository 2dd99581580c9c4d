package tests

import (
	"context"
	"errors"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"paygate/internal/domain"
	"paygate/internal/repository"
	"paygate/internal/service"
)

// ──────────────────────────────────────────────
// MOCK INTENT REPOSITORY
// ──────────────────────────────────────────────

// MockIntentRepository is an in-memory IntentRepository with a real compare-and-swap.
type MockIntentRepository struct {
	mu      sync.RWMutex
	intents map[string]*domain.PaymentIntent

	// Counters for verification
	CreateCallCount int32
	CASCallCount    int32

	// Error injection
	CreateError    error
	GetError       error
	ListStaleError error

	// CreateErrors is consumed one entry per Create call before CreateError is consulted.
	CreateErrors []error

	// ForceConflicts makes the next N compare-and-swaps fail with ErrConflict.
	ForceConflicts int32

	// BeforeCAS runs before every compare-and-swap, outside the lock.
	// Tests use it to slip in a competing update.
	BeforeCAS func(transactionID string)
}

// NewMockIntentRepository creates a new mock intent repository.
func NewMockIntentRepository() *MockIntentRepository {
	return &MockIntentRepository{
		intents: make(map[string]*domain.PaymentIntent),
	}
}

// AddIntent adds an intent to the mock repository.
func (m *MockIntentRepository) AddIntent(intent *domain.PaymentIntent) {
	m.mu.Lock()
	defer m.mu.Unlock()
	copy := *intent
	m.intents[intent.TransactionID] = &copy
}

func (m *MockIntentRepository) Create(ctx context.Context, intent *domain.PaymentIntent) error {
	atomic.AddInt32(&m.CreateCallCount, 1)

	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.CreateErrors) > 0 {
		err := m.CreateErrors[0]
		m.CreateErrors = m.CreateErrors[1:]
		if err != nil {
			return err
		}
	}
	if m.CreateError != nil {
		return m.CreateError
	}
	if _, exists := m.intents[intent.TransactionID]; exists {
		return repository.ErrDuplicateKey
	}

	copy := *intent
	m.intents[intent.TransactionID] = &copy
	return nil
}

func (m *MockIntentRepository) GetByID(ctx context.Context, transactionID string) (*domain.PaymentIntent, error) {
	if m.GetError != nil {
		return nil, m.GetError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	intent, ok := m.intents[transactionID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	// Return a copy to avoid mutation issues.
	copy := *intent
	return &copy, nil
}

func (m *MockIntentRepository) CompareAndSwap(ctx context.Context, transactionID string, expected domain.IntentState, update domain.IntentUpdate) error {
	atomic.AddInt32(&m.CASCallCount, 1)
	if m.BeforeCAS != nil {
		m.BeforeCAS(transactionID)
	}
	for {
		n := atomic.LoadInt32(&m.ForceConflicts)
		if n <= 0 {
			break
		}
		if atomic.CompareAndSwapInt32(&m.ForceConflicts, n, n-1) {
			return repository.ErrConflict
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	intent, ok := m.intents[transactionID]
	if !ok {
		return repository.ErrNotFound
	}
	if intent.State != expected {
		return repository.ErrConflict
	}
	m.intents[transactionID] = intent.Apply(update)
	return nil
}

func (m *MockIntentRepository) ListStale(ctx context.Context, cutoff time.Time, limit int) ([]string, error) {
	if m.ListStaleError != nil {
		return nil, m.ListStaleError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	stale := make([]*domain.PaymentIntent, 0)
	for _, intent := range m.intents {
		if !intent.IsTerminal() && intent.CreatedAt.Before(cutoff) {
			stale = append(stale, intent)
		}
	}
	sort.Slice(stale, func(i, j int) bool { return stale[i].CreatedAt.Before(stale[j].CreatedAt) })

	ids := make([]string, 0, len(stale))
	for _, intent := range stale {
		if limit > 0 && len(ids) >= limit {
			break
		}
		ids = append(ids, intent.TransactionID)
	}
	return ids, nil
}

// SetState forces a stored state, bypassing the transition rules.
func (m *MockIntentRepository) SetState(transactionID string, state domain.IntentState) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if intent, ok := m.intents[transactionID]; ok {
		intent.State = state
	}
}

// GetIntent returns the stored intent (for test assertions).
func (m *MockIntentRepository) GetIntent(transactionID string) *domain.PaymentIntent {
	m.mu.RLock()
	defer m.mu.RUnlock()
	intent, ok := m.intents[transactionID]
	if !ok {
		return nil
	}
	copy := *intent
	return &copy
}

// CountIntents returns the number of stored intents.
func (m *MockIntentRepository) CountIntents() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.intents)
}

// ──────────────────────────────────────────────
// MOCK CART REPOSITORY
// ──────────────────────────────────────────────

// MockCartRepository is a mock implementation of CartRepository.
type MockCartRepository struct {
	mu    sync.RWMutex
	carts map[string]*domain.Cart

	// Counters for verification
	CreateCallCount int32

	// Error injection
	CreateError error
}

// NewMockCartRepository creates a new mock cart repository.
func NewMockCartRepository() *MockCartRepository {
	return &MockCartRepository{
		carts: make(map[string]*domain.Cart),
	}
}

func (m *MockCartRepository) Create(ctx context.Context, cart *domain.Cart) error {
	atomic.AddInt32(&m.CreateCallCount, 1)
	if m.CreateError != nil {
		return m.CreateError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.carts[cart.ID]; exists {
		return repository.ErrDuplicateKey
	}
	copy := *cart
	m.carts[cart.ID] = &copy
	return nil
}

func (m *MockCartRepository) GetByID(ctx context.Context, id string) (*domain.Cart, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	cart, ok := m.carts[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	copy := *cart
	return &copy, nil
}

// CountCarts returns the number of stored carts.
func (m *MockCartRepository) CountCarts() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.carts)
}

// ──────────────────────────────────────────────
// MOCK GATEWAY VERIFIER
// ──────────────────────────────────────────────

// MockVerifier is a mock GatewayVerifier.
// By default it confirms every request for the amount it was sent.
type MockVerifier struct {
	mu sync.Mutex

	// Control behavior
	Reject          bool          // Gateway answers "not confirmed".
	ConfirmedAmount domain.Amount // Overrides the echoed amount when non-zero.
	Err             error         // Returned on every call.
	Errs            []error       // Consumed one per call before Err.
	Delay           time.Duration // Honors ctx cancellation.

	// Counters
	VerifyCallCount int32
	lastRequest     service.VerifyRequest
}

// NewMockVerifier creates a new mock verifier.
func NewMockVerifier() *MockVerifier {
	return &MockVerifier{}
}

func (m *MockVerifier) Verify(ctx context.Context, req service.VerifyRequest) (service.VerificationOutcome, error) {
	atomic.AddInt32(&m.VerifyCallCount, 1)

	m.mu.Lock()
	m.lastRequest = req
	delay := m.Delay
	var err error
	if len(m.Errs) > 0 {
		err = m.Errs[0]
		m.Errs = m.Errs[1:]
	} else {
		err = m.Err
	}
	reject := m.Reject
	confirmed := m.ConfirmedAmount
	m.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return service.VerificationOutcome{}, ctx.Err()
		}
	}

	if err != nil {
		return service.VerificationOutcome{}, err
	}
	if reject {
		return service.VerificationOutcome{Confirmed: false}, nil
	}
	if confirmed == 0 {
		confirmed = req.Amount
	}
	return service.VerificationOutcome{Confirmed: true, AmountConfirmed: confirmed}, nil
}

// LastRequest returns the most recent request (for test assertions).
func (m *MockVerifier) LastRequest() service.VerifyRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastRequest
}

// Calls returns how many times Verify was called.
func (m *MockVerifier) Calls() int {
	return int(atomic.LoadInt32(&m.VerifyCallCount))
}

// ──────────────────────────────────────────────
// MOCK NOTIFIER
// ──────────────────────────────────────────────

// MockNotifier records settled-intent notifications.
type MockNotifier struct {
	mu      sync.Mutex
	settled map[string][]domain.IntentState

	// Error injection
	NotifyError error
}

// NewMockNotifier creates a new mock notifier.
func NewMockNotifier() *MockNotifier {
	return &MockNotifier{settled: make(map[string][]domain.IntentState)}
}

func (m *MockNotifier) NotifyIntentSettled(ctx context.Context, intent *domain.PaymentIntent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.settled[intent.TransactionID] = append(m.settled[intent.TransactionID], intent.State)
	return m.NotifyError
}

// Count returns how many notifications were sent for an intent.
func (m *MockNotifier) Count(transactionID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.settled[transactionID])
}

// States returns the states notified for an intent, in order.
func (m *MockNotifier) States(transactionID string) []domain.IntentState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.IntentState(nil), m.settled[transactionID]...)
}

// ──────────────────────────────────────────────
// MOCK INTENT CACHE
// ──────────────────────────────────────────────

// MockIntentCache is a map-backed IntentCache.
type MockIntentCache struct {
	mu      sync.RWMutex
	intents map[string]*domain.PaymentIntent

	// Counters
	GetCallCount int32
	SetCallCount int32
	HitCount     int32

	// Error injection
	GetError error
	SetError error
}

// NewMockIntentCache creates a new mock intent cache.
func NewMockIntentCache() *MockIntentCache {
	return &MockIntentCache{intents: make(map[string]*domain.PaymentIntent)}
}

func (m *MockIntentCache) GetIntent(ctx context.Context, transactionID string) (*domain.PaymentIntent, error) {
	atomic.AddInt32(&m.GetCallCount, 1)
	if m.GetError != nil {
		return nil, m.GetError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	intent, ok := m.intents[transactionID]
	if !ok {
		return nil, nil
	}
	atomic.AddInt32(&m.HitCount, 1)
	copy := *intent
	return &copy, nil
}

func (m *MockIntentCache) SetIntent(ctx context.Context, intent *domain.PaymentIntent) error {
	atomic.AddInt32(&m.SetCallCount, 1)
	if m.SetError != nil {
		return m.SetError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	copy := *intent
	m.intents[intent.TransactionID] = &copy
	return nil
}

// Has reports whether an intent is cached.
func (m *MockIntentCache) Has(transactionID string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.intents[transactionID]
	return ok
}

// ──────────────────────────────────────────────
// MOCK SWEEP LOCKER
// ──────────────────────────────────────────────

// MockSweepLocker is a mock SweepLocker.
type MockSweepLocker struct {
	mu       sync.Mutex
	heldTill time.Time

	// Counters
	AcquireCallCount int32
	ReleaseCallCount int32

	// Error injection
	AcquireError error

	// Force lock failure, as if another replica held it.
	ForceAcquireFailure bool
}

// NewMockSweepLocker creates a new mock sweep locker.
func NewMockSweepLocker() *MockSweepLocker {
	return &MockSweepLocker{}
}

func (m *MockSweepLocker) AcquireSweepLock(ctx context.Context, ttl time.Duration) (bool, error) {
	atomic.AddInt32(&m.AcquireCallCount, 1)
	if m.AcquireError != nil {
		return false, m.AcquireError
	}
	if m.ForceAcquireFailure {
		return false, nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if time.Now().Before(m.heldTill) {
		return false, nil // Lock still held.
	}
	m.heldTill = time.Now().Add(ttl)
	return true, nil
}

func (m *MockSweepLocker) ReleaseSweepLock(ctx context.Context) error {
	atomic.AddInt32(&m.ReleaseCallCount, 1)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.heldTill = time.Time{}
	return nil
}

// IsLocked reports whether the lock is currently held.
func (m *MockSweepLocker) IsLocked() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return time.Now().Before(m.heldTill)
}

// ──────────────────────────────────────────────
// TEST CLOCK
// ──────────────────────────────────────────────

// Clock is a manually advanced time source for PaymentService.SetClock.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

// NewClock creates a clock frozen at start.
func NewClock(start time.Time) *Clock {
	return &Clock{now: start}
}

// Now returns the current fake time.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// ──────────────────────────────────────────────
// HELPER ERRORS
// ──────────────────────────────────────────────

var (
	ErrMockDB        = errors.New("mock: database unavailable")
	ErrMockTimeout   = errors.New("mock: operation timeout")
	ErrMockGatewayIO = errors.New("mock: connection reset by gateway")
)
