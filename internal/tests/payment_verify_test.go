package tests

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"paygate/internal/domain"
	"paygate/internal/service"
)

// ──────────────────────────────────────────────
// 3. GATEWAY VERIFICATION
// ──────────────────────────────────────────────

func TestVerify_ConfirmsMatchingPayment(t *testing.T) {
	t.Parallel()

	f := newPaymentFixture(t)
	intent := f.initiate(t, "1000")
	f.succeed(t, intent.TransactionID, "1000")

	got, err := f.svc.Verify(context.Background(), intent.TransactionID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got.State != domain.IntentStateConfirmed {
		t.Errorf("expected state %s, got %s", domain.IntentStateConfirmed, got.State)
	}
	if got.VerificationAttempts != 1 {
		t.Errorf("expected 1 verification attempt, got %d", got.VerificationAttempts)
	}

	req := f.verifier.LastRequest()
	if req.TransactionID != intent.TransactionID || req.ReferenceID != "REF-"+intent.TransactionID {
		t.Errorf("unexpected verify request %+v", req)
	}
	if req.Amount != mustAmount(t, "1000") {
		t.Errorf("expected verify amount 100000, got %d", req.Amount)
	}

	if f.notifier.Count(intent.TransactionID) != 1 {
		t.Errorf("expected 1 notification, got %d", f.notifier.Count(intent.TransactionID))
	}
	if !f.cache.Has(intent.TransactionID) {
		t.Error("expected confirmed intent to be cached")
	}
}

func TestVerify_FullLifecycleStatus(t *testing.T) {
	t.Parallel()

	f := newPaymentFixture(t)
	ctx := context.Background()

	intent := f.initiate(t, "1000")
	f.succeed(t, intent.TransactionID, "1000")
	if _, err := f.svc.Verify(ctx, intent.TransactionID); err != nil {
		t.Fatalf("verify: %v", err)
	}

	got, err := f.svc.GetIntent(ctx, intent.TransactionID)
	if err != nil {
		t.Fatalf("get intent: %v", err)
	}
	if got.State != domain.IntentStateConfirmed {
		t.Errorf("expected state %s, got %s", domain.IntentStateConfirmed, got.State)
	}
}

func TestVerify_AmountMismatchFails(t *testing.T) {
	t.Parallel()

	f := newPaymentFixture(t)
	intent := f.initiate(t, "500")
	f.succeed(t, intent.TransactionID, "450")

	got, err := f.svc.Verify(context.Background(), intent.TransactionID)
	if !errors.Is(err, service.ErrAmountMismatch) {
		t.Fatalf("expected ErrAmountMismatch, got %v", err)
	}
	if got == nil {
		t.Fatal("expected the failed intent alongside the error")
	}
	if got.State != domain.IntentStateFailed {
		t.Errorf("expected state %s, got %s", domain.IntentStateFailed, got.State)
	}
	if got.FailureReason != domain.FailureReasonAmountMismatch {
		t.Errorf("expected failure reason %q, got %q", domain.FailureReasonAmountMismatch, got.FailureReason)
	}
}

func TestVerify_MismatchWinsOverGatewaySuccess(t *testing.T) {
	t.Parallel()

	f := newPaymentFixture(t)
	intent := f.initiate(t, "1000")
	f.succeed(t, intent.TransactionID, "1000")
	f.verifier.ConfirmedAmount = mustAmount(t, "999.99")

	got, err := f.svc.Verify(context.Background(), intent.TransactionID)
	if !errors.Is(err, service.ErrAmountMismatch) {
		t.Fatalf("expected ErrAmountMismatch, got %v", err)
	}
	if got.State != domain.IntentStateFailed {
		t.Errorf("expected state %s, got %s", domain.IntentStateFailed, got.State)
	}
}

func TestVerify_CallbackMismatchFailsDespiteTransportError(t *testing.T) {
	t.Parallel()

	f := newPaymentFixture(t)
	ctx := context.Background()
	intent := f.initiate(t, "500")
	f.succeed(t, intent.TransactionID, "450")
	f.verifier.Errs = []error{ErrMockGatewayIO}

	got, err := f.svc.Verify(ctx, intent.TransactionID)
	if !errors.Is(err, service.ErrAmountMismatch) {
		t.Fatalf("expected ErrAmountMismatch, got %v", err)
	}
	if got.State != domain.IntentStateFailed {
		t.Fatalf("expected state %s, got %s", domain.IntentStateFailed, got.State)
	}
	if f.verifier.Calls() != 0 {
		t.Errorf("expected no gateway calls for a mismatched callback, got %d", f.verifier.Calls())
	}

	// A later callback with the right amount must not reopen the intent.
	again, err := f.svc.HandleCallback(ctx, service.CallbackRequest{
		TransactionID: intent.TransactionID,
		Outcome:       domain.CallbackSuccess,
		GatewayAmount: mustAmount(t, "500"),
		ReferenceID:   "R-other",
	})
	if err != nil {
		t.Fatalf("second callback: %v", err)
	}
	if again.State != domain.IntentStateFailed || again.ReferenceID != "REF-"+intent.TransactionID {
		t.Errorf("expected the failed record unchanged, got %+v", again)
	}

	final, err := f.svc.Verify(ctx, intent.TransactionID)
	if !errors.Is(err, service.ErrAmountMismatch) {
		t.Errorf("expected ErrAmountMismatch, got %v", err)
	}
	if final.State != domain.IntentStateFailed {
		t.Errorf("expected state %s, got %s", domain.IntentStateFailed, final.State)
	}
	if f.notifier.Count(intent.TransactionID) != 1 {
		t.Errorf("expected 1 notification, got %d", f.notifier.Count(intent.TransactionID))
	}
}

func TestVerify_GatewayRejectionFails(t *testing.T) {
	t.Parallel()

	f := newPaymentFixture(t)
	intent := f.initiate(t, "1000")
	f.succeed(t, intent.TransactionID, "1000")
	f.verifier.Reject = true

	got, err := f.svc.Verify(context.Background(), intent.TransactionID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.State != domain.IntentStateFailed {
		t.Errorf("expected state %s, got %s", domain.IntentStateFailed, got.State)
	}
	if got.FailureReason != domain.FailureReasonNotConfirmed {
		t.Errorf("expected failure reason %q, got %q", domain.FailureReasonNotConfirmed, got.FailureReason)
	}
}

func TestVerify_WithoutCallbackIsPending(t *testing.T) {
	t.Parallel()

	f := newPaymentFixture(t)
	intent := f.initiate(t, "1000")

	_, err := f.svc.Verify(context.Background(), intent.TransactionID)
	if !errors.Is(err, service.ErrCallbackPending) {
		t.Errorf("expected ErrCallbackPending, got %v", err)
	}
	if f.verifier.Calls() != 0 {
		t.Errorf("expected no gateway calls, got %d", f.verifier.Calls())
	}
}

func TestVerify_TransportErrorReturnsToAwaitingCallback(t *testing.T) {
	t.Parallel()

	f := newPaymentFixture(t)
	intent := f.initiate(t, "1000")
	f.succeed(t, intent.TransactionID, "1000")
	f.verifier.Errs = []error{ErrMockGatewayIO}

	got, err := f.svc.Verify(context.Background(), intent.TransactionID)
	if !errors.Is(err, service.ErrTransport) {
		t.Fatalf("expected ErrTransport, got %v", err)
	}
	if got.State != domain.IntentStateAwaitingCallback {
		t.Errorf("expected state %s, got %s", domain.IntentStateAwaitingCallback, got.State)
	}
	if got.VerificationAttempts != 1 {
		t.Errorf("expected 1 attempt, got %d", got.VerificationAttempts)
	}

	// The callback data is still on record, so a later verify can succeed.
	got, err = f.svc.Verify(context.Background(), intent.TransactionID)
	if err != nil {
		t.Fatalf("retry verify: %v", err)
	}
	if got.State != domain.IntentStateConfirmed {
		t.Errorf("expected state %s, got %s", domain.IntentStateConfirmed, got.State)
	}
	if got.VerificationAttempts != 2 {
		t.Errorf("expected 2 attempts, got %d", got.VerificationAttempts)
	}
}

func TestVerify_AttemptsAreBounded(t *testing.T) {
	t.Parallel()

	f := newPaymentFixture(t)
	intent := f.initiate(t, "1000")
	f.succeed(t, intent.TransactionID, "1000")
	f.verifier.Err = ErrMockGatewayIO

	ctx := context.Background()
	wantStates := []domain.IntentState{
		domain.IntentStateAwaitingCallback,
		domain.IntentStateAwaitingCallback,
		domain.IntentStateFailed,
	}
	for i, want := range wantStates {
		got, err := f.svc.Verify(ctx, intent.TransactionID)
		if !errors.Is(err, service.ErrTransport) {
			t.Fatalf("attempt %d: expected ErrTransport, got %v", i+1, err)
		}
		if got.State != want {
			t.Errorf("attempt %d: expected state %s, got %s", i+1, want, got.State)
		}
	}

	got, err := f.svc.Verify(ctx, intent.TransactionID)
	if err != nil {
		t.Fatalf("verify after exhaustion: %v", err)
	}
	if got.FailureReason != domain.FailureReasonAttemptsExceeded {
		t.Errorf("expected failure reason %q, got %q", domain.FailureReasonAttemptsExceeded, got.FailureReason)
	}
	if f.verifier.Calls() != 3 {
		t.Errorf("expected 3 gateway calls, got %d", f.verifier.Calls())
	}
	if f.notifier.Count(intent.TransactionID) != 1 {
		t.Errorf("expected 1 notification, got %d", f.notifier.Count(intent.TransactionID))
	}
}

func TestVerify_TimeoutCountsAsAttempt(t *testing.T) {
	t.Parallel()

	cfg := service.DefaultIntentConfig()
	cfg.VerifyTimeout = 20 * time.Millisecond
	f := newPaymentFixtureWithConfig(t, cfg)

	intent := f.initiate(t, "1000")
	f.succeed(t, intent.TransactionID, "1000")
	f.verifier.Delay = time.Second

	start := time.Now()
	got, err := f.svc.Verify(context.Background(), intent.TransactionID)
	if !errors.Is(err, service.ErrTransport) {
		t.Fatalf("expected ErrTransport, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Errorf("verify should give up after its timeout, took %v", elapsed)
	}
	if got.VerificationAttempts != 1 {
		t.Errorf("expected 1 attempt, got %d", got.VerificationAttempts)
	}
}

func TestVerify_TerminalIntentIsNotReverified(t *testing.T) {
	t.Parallel()

	f := newPaymentFixture(t)
	intent := f.initiate(t, "1000")
	f.succeed(t, intent.TransactionID, "1000")

	first, err := f.svc.Verify(context.Background(), intent.TransactionID)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}

	second, err := f.svc.Verify(context.Background(), intent.TransactionID)
	if err != nil {
		t.Fatalf("second verify: %v", err)
	}
	if second.State != first.State || second.VerificationAttempts != first.VerificationAttempts {
		t.Errorf("expected unchanged record, got %+v", second)
	}
	if f.verifier.Calls() != 1 {
		t.Errorf("expected 1 gateway call, got %d", f.verifier.Calls())
	}
}

func TestHandleCallback_RepeatAfterConfirmedIsNoOp(t *testing.T) {
	t.Parallel()

	f := newPaymentFixture(t)
	ctx := context.Background()
	intent := f.initiate(t, "1000")
	f.succeed(t, intent.TransactionID, "1000")

	confirmed, err := f.svc.Verify(ctx, intent.TransactionID)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	f.clock.Advance(time.Minute)

	req := service.CallbackRequest{
		TransactionID: intent.TransactionID,
		Outcome:       domain.CallbackSuccess,
		GatewayAmount: mustAmount(t, "1000"),
		ReferenceID:   "REF-" + intent.TransactionID,
	}
	for i := 0; i < 2; i++ {
		got, err := f.svc.HandleCallback(ctx, req)
		if err != nil {
			t.Fatalf("repeat %d: %v", i+1, err)
		}
		if got.State != domain.IntentStateConfirmed {
			t.Errorf("repeat %d: expected state %s, got %s", i+1, domain.IntentStateConfirmed, got.State)
		}
		if got.VerificationAttempts != confirmed.VerificationAttempts {
			t.Errorf("repeat %d: expected %d attempts, got %d", i+1, confirmed.VerificationAttempts, got.VerificationAttempts)
		}
		if !got.UpdatedAt.Equal(confirmed.UpdatedAt) {
			t.Errorf("repeat %d: expected updated_at %v, got %v", i+1, confirmed.UpdatedAt, got.UpdatedAt)
		}
	}

	if stored := f.repo.GetIntent(intent.TransactionID); !stored.UpdatedAt.Equal(confirmed.UpdatedAt) {
		t.Errorf("expected stored record untouched, got updated_at %v", stored.UpdatedAt)
	}
	if f.verifier.Calls() != 1 {
		t.Errorf("expected 1 gateway call, got %d", f.verifier.Calls())
	}
	if f.notifier.Count(intent.TransactionID) != 1 {
		t.Errorf("expected 1 notification, got %d", f.notifier.Count(intent.TransactionID))
	}
}

func TestVerify_ConcurrentVerifiesSettleOnce(t *testing.T) {
	t.Parallel()

	f := newPaymentFixture(t)
	intent := f.initiate(t, "1000")
	f.succeed(t, intent.TransactionID, "1000")

	const n = 20
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := f.svc.Verify(context.Background(), intent.TransactionID)
			if err != nil {
				t.Errorf("verify: %v", err)
				return
			}
			if got.State != domain.IntentStateConfirmed {
				t.Errorf("expected state %s, got %s", domain.IntentStateConfirmed, got.State)
			}
		}()
	}
	wg.Wait()

	if f.notifier.Count(intent.TransactionID) != 1 {
		t.Errorf("expected exactly 1 notification, got %d", f.notifier.Count(intent.TransactionID))
	}
}

func TestGetIntent_ServesTerminalSnapshotFromCache(t *testing.T) {
	t.Parallel()

	f := newPaymentFixture(t)
	intent := f.initiate(t, "1000")
	f.succeed(t, intent.TransactionID, "1000")
	if _, err := f.svc.Verify(context.Background(), intent.TransactionID); err != nil {
		t.Fatalf("verify: %v", err)
	}

	f.repo.GetError = ErrMockDB

	got, err := f.svc.GetIntent(context.Background(), intent.TransactionID)
	if err != nil {
		t.Fatalf("expected cached snapshot, got %v", err)
	}
	if got.State != domain.IntentStateConfirmed {
		t.Errorf("expected state %s, got %s", domain.IntentStateConfirmed, got.State)
	}
}

func TestGetIntent_FallsBackToStoreOnCacheError(t *testing.T) {
	t.Parallel()

	f := newPaymentFixture(t)
	intent := f.initiate(t, "1000")
	f.cache.GetError = ErrMockTimeout

	got, err := f.svc.GetIntent(context.Background(), intent.TransactionID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.State != domain.IntentStateAwaitingCallback {
		t.Errorf("expected state %s, got %s", domain.IntentStateAwaitingCallback, got.State)
	}
}

func TestGetIntent_UnknownTransaction(t *testing.T) {
	t.Parallel()

	f := newPaymentFixture(t)

	for _, id := range []string{"", "  ", "PLT-missing"} {
		if _, err := f.svc.GetIntent(context.Background(), id); !errors.Is(err, service.ErrUnknownTransaction) {
			t.Errorf("id %q: expected ErrUnknownTransaction, got %v", id, err)
		}
	}
}
