package tests

import (
	"context"
	"testing"
	"time"

	"paygate/internal/domain"
	"paygate/internal/service"
)

var testEpoch = time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

// paymentFixture bundles a PaymentService with the mocks behind it.
type paymentFixture struct {
	repo     *MockIntentRepository
	verifier *MockVerifier
	notifier *MockNotifier
	cache    *MockIntentCache
	clock    *Clock
	svc      *service.PaymentService
}

func newPaymentFixture(t *testing.T) *paymentFixture {
	t.Helper()
	return newPaymentFixtureWithConfig(t, service.DefaultIntentConfig())
}

func newPaymentFixtureWithConfig(t *testing.T, cfg service.IntentConfig) *paymentFixture {
	t.Helper()

	f := &paymentFixture{
		repo:     NewMockIntentRepository(),
		verifier: NewMockVerifier(),
		notifier: NewMockNotifier(),
		cache:    NewMockIntentCache(),
		clock:    NewClock(testEpoch),
	}
	f.svc = service.NewPaymentService(f.repo, f.cache, f.verifier, f.notifier, nil, cfg)
	f.svc.SetClock(f.clock.Now)
	return f
}

// initiate starts a payment of rupees and fails the test on error.
func (f *paymentFixture) initiate(t *testing.T, rupees string) *domain.PaymentIntent {
	t.Helper()

	amount, err := domain.ParseAmount(rupees)
	if err != nil {
		t.Fatalf("parse amount %q: %v", rupees, err)
	}
	intent, err := f.svc.Initiate(context.Background(), service.InitiateRequest{Amount: amount})
	if err != nil {
		t.Fatalf("initiate: %v", err)
	}
	return intent
}

// succeed delivers a success callback reporting rupees.
func (f *paymentFixture) succeed(t *testing.T, id, rupees string) *domain.PaymentIntent {
	t.Helper()

	amount, err := domain.ParseAmount(rupees)
	if err != nil {
		t.Fatalf("parse amount %q: %v", rupees, err)
	}
	intent, err := f.svc.HandleCallback(context.Background(), service.CallbackRequest{
		TransactionID: id,
		Outcome:       domain.CallbackSuccess,
		GatewayAmount: amount,
		ReferenceID:   "REF-" + id,
	})
	if err != nil {
		t.Fatalf("success callback: %v", err)
	}
	return intent
}

func mustAmount(t *testing.T, rupees string) domain.Amount {
	t.Helper()
	amount, err := domain.ParseAmount(rupees)
	if err != nil {
		t.Fatalf("parse amount %q: %v", rupees, err)
	}
	return amount
}
