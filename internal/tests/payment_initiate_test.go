package tests

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"paygate/internal/domain"
	"paygate/internal/repository"
	"paygate/internal/service"
)

// ──────────────────────────────────────────────
// 1. INITIATION
// ──────────────────────────────────────────────

func TestInitiate_CreatesIntentAwaitingCallback(t *testing.T) {
	t.Parallel()

	f := newPaymentFixture(t)
	intent := f.initiate(t, "1000")

	if intent.State != domain.IntentStateAwaitingCallback {
		t.Errorf("expected state %s, got %s", domain.IntentStateAwaitingCallback, intent.State)
	}
	if intent.Amount != 100000 {
		t.Errorf("expected amount 100000 paisa, got %d", intent.Amount)
	}
	if !strings.HasPrefix(intent.TransactionID, "PLT-") {
		t.Errorf("expected PLT- prefix, got %s", intent.TransactionID)
	}

	stored := f.repo.GetIntent(intent.TransactionID)
	if stored == nil {
		t.Fatal("intent not stored")
	}
	if stored.State != domain.IntentStateAwaitingCallback {
		t.Errorf("expected stored state %s, got %s", domain.IntentStateAwaitingCallback, stored.State)
	}
	if !stored.CreatedAt.Equal(testEpoch) {
		t.Errorf("expected created at %v, got %v", testEpoch, stored.CreatedAt)
	}
}

func TestInitiate_RejectsNonPositiveAmount(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name   string
		amount domain.Amount
	}{
		{"zero", 0},
		{"negative", -100},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			f := newPaymentFixture(t)

			_, err := f.svc.Initiate(context.Background(), service.InitiateRequest{Amount: tc.amount})
			if !errors.Is(err, service.ErrInvalidAmount) {
				t.Errorf("expected ErrInvalidAmount, got %v", err)
			}
			if f.repo.CreateCallCount != 0 {
				t.Errorf("expected no create calls, got %d", f.repo.CreateCallCount)
			}
		})
	}
}

func TestInitiate_RegeneratesIDOnCollision(t *testing.T) {
	t.Parallel()

	f := newPaymentFixture(t)
	f.repo.CreateErrors = []error{repository.ErrDuplicateKey, repository.ErrDuplicateKey}

	intent := f.initiate(t, "250")

	if f.repo.CreateCallCount != 3 {
		t.Errorf("expected 3 create attempts, got %d", f.repo.CreateCallCount)
	}
	if f.repo.CountIntents() != 1 {
		t.Errorf("expected 1 stored intent, got %d", f.repo.CountIntents())
	}
	if intent.State != domain.IntentStateAwaitingCallback {
		t.Errorf("expected state %s, got %s", domain.IntentStateAwaitingCallback, intent.State)
	}
}

func TestInitiate_GivesUpAfterRepeatedCollisions(t *testing.T) {
	t.Parallel()

	f := newPaymentFixture(t)
	f.repo.CreateError = repository.ErrDuplicateKey

	_, err := f.svc.Initiate(context.Background(), service.InitiateRequest{Amount: 1000})
	if !errors.Is(err, repository.ErrDuplicateKey) {
		t.Errorf("expected ErrDuplicateKey, got %v", err)
	}
	if f.repo.CreateCallCount != 3 {
		t.Errorf("expected 3 create attempts, got %d", f.repo.CreateCallCount)
	}
}

func TestInitiate_PropagatesStoreErrors(t *testing.T) {
	t.Parallel()

	f := newPaymentFixture(t)
	f.repo.CreateError = ErrMockDB

	_, err := f.svc.Initiate(context.Background(), service.InitiateRequest{Amount: 1000})
	if !errors.Is(err, ErrMockDB) {
		t.Errorf("expected ErrMockDB, got %v", err)
	}
	if f.repo.CreateCallCount != 1 {
		t.Errorf("expected a single create attempt, got %d", f.repo.CreateCallCount)
	}
}

func TestInitiate_CopiesMetadata(t *testing.T) {
	t.Parallel()

	f := newPaymentFixture(t)
	metadata := map[string]string{"productId": "sku-42"}

	intent, err := f.svc.Initiate(context.Background(), service.InitiateRequest{Amount: 5000, Metadata: metadata})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	metadata["productId"] = "changed"

	stored := f.repo.GetIntent(intent.TransactionID)
	if stored.Metadata["productId"] != "sku-42" {
		t.Errorf("expected stored metadata to be isolated, got %q", stored.Metadata["productId"])
	}
}

func TestInitiate_ConcurrentCallsGetUniqueIDs(t *testing.T) {
	t.Parallel()

	f := newPaymentFixture(t)

	const n = 100
	ids := make(chan string, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			intent, err := f.svc.Initiate(context.Background(), service.InitiateRequest{Amount: 1000})
			if err != nil {
				t.Errorf("initiate: %v", err)
				return
			}
			ids <- intent.TransactionID
		}()
	}
	wg.Wait()
	close(ids)

	seen := make(map[string]bool, n)
	for id := range ids {
		if seen[id] {
			t.Errorf("duplicate transaction id %s", id)
		}
		seen[id] = true
	}
	if len(seen) != n {
		t.Errorf("expected %d unique ids, got %d", n, len(seen))
	}
	if f.repo.CountIntents() != n {
		t.Errorf("expected %d stored intents, got %d", n, f.repo.CountIntents())
	}
}
