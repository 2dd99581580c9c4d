package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"paygate/internal/domain"
	"paygate/internal/repository"
)

const (
	// maxCreateAttempts bounds transaction ID regeneration on key collisions.
	maxCreateAttempts = 3

	// casRetries is how many times a lost compare-and-swap is re-read and retried.
	casRetries = 1
)

// GatewayVerifier is the port to the payment provider's verification API.
// Any returned error is treated as a transport failure.
type GatewayVerifier interface {
	Verify(ctx context.Context, req VerifyRequest) (VerificationOutcome, error)
}

// VerifyRequest contains the parameters sent to the gateway for verification.
type VerifyRequest struct {
	TransactionID string
	Amount        domain.Amount
	ReferenceID   string
}

// VerificationOutcome is the gateway's answer to a verification request.
type VerificationOutcome struct {
	Confirmed       bool
	AmountConfirmed domain.Amount
}

// IntentCache stores snapshots of terminal intents. GetIntent returns nil on a miss.
type IntentCache interface {
	GetIntent(ctx context.Context, transactionID string) (*domain.PaymentIntent, error)
	SetIntent(ctx context.Context, intent *domain.PaymentIntent) error
}

// IntentNotifier is told once when an intent reaches a terminal state.
type IntentNotifier interface {
	NotifyIntentSettled(ctx context.Context, intent *domain.PaymentIntent) error
}

// IntentConfig holds lifecycle settings for the payment service.
type IntentConfig struct {
	TransactionPrefix string
	MaxVerifyAttempts int
	IntentTimeout     time.Duration
	VerifyTimeout     time.Duration
}

// DefaultIntentConfig returns the default lifecycle settings.
func DefaultIntentConfig() IntentConfig {
	return IntentConfig{
		TransactionPrefix: "PLT",
		MaxVerifyAttempts: 3,
		IntentTimeout:     15 * time.Minute,
		VerifyTimeout:     10 * time.Second,
	}
}

// PaymentService drives payment intents through their lifecycle.
// Every state change goes through IntentRepository.CompareAndSwap.
type PaymentService struct {
	intentRepo repository.IntentRepository
	cache      IntentCache
	verifier   GatewayVerifier
	notifier   IntentNotifier
	logger     *zap.Logger
	cfg        IntentConfig
	now        func() time.Time
}

// NewPaymentService creates a new PaymentService. cache and notifier may be nil.
func NewPaymentService(
	intentRepo repository.IntentRepository,
	cache IntentCache,
	verifier GatewayVerifier,
	notifier IntentNotifier,
	logger *zap.Logger,
	cfg IntentConfig,
) *PaymentService {
	defaults := DefaultIntentConfig()
	if cfg.TransactionPrefix == "" {
		cfg.TransactionPrefix = defaults.TransactionPrefix
	}
	if cfg.MaxVerifyAttempts <= 0 {
		cfg.MaxVerifyAttempts = defaults.MaxVerifyAttempts
	}
	if cfg.IntentTimeout <= 0 {
		cfg.IntentTimeout = defaults.IntentTimeout
	}
	if cfg.VerifyTimeout <= 0 {
		cfg.VerifyTimeout = defaults.VerifyTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &PaymentService{
		intentRepo: intentRepo,
		cache:      cache,
		verifier:   verifier,
		notifier:   notifier,
		logger:     logger,
		cfg:        cfg,
		now:        time.Now,
	}
}

// SetClock replaces the time source.
func (s *PaymentService) SetClock(now func() time.Time) {
	s.now = now
}

// InitiateRequest contains the parameters for starting a payment.
type InitiateRequest struct {
	Amount   domain.Amount
	Metadata map[string]string
}

// Initiate records a new intent and marks the gateway redirect as issued.
func (s *PaymentService) Initiate(ctx context.Context, req InitiateRequest) (*domain.PaymentIntent, error) {
	if !req.Amount.IsPositive() {
		return nil, ErrInvalidAmount
	}

	var intent *domain.PaymentIntent
	for attempt := 0; attempt < maxCreateAttempts && intent == nil; attempt++ {
		now := s.now()
		candidate := &domain.PaymentIntent{
			TransactionID: s.newTransactionID(now),
			Amount:        req.Amount,
			State:         domain.IntentStateCreated,
			Metadata:      copyMetadata(req.Metadata),
			CreatedAt:     now,
			UpdatedAt:     now,
		}

		err := s.intentRepo.Create(ctx, candidate)
		switch {
		case err == nil:
			intent = candidate
		case errors.Is(err, repository.ErrDuplicateKey):
			s.logger.Warn("transaction id collision, regenerating",
				zap.String("transaction_id", candidate.TransactionID))
		default:
			return nil, fmt.Errorf("create payment intent: %w", err)
		}
	}

	if intent == nil {
		return nil, fmt.Errorf("create payment intent: %w", repository.ErrDuplicateKey)
	}

	// The redirect form is handed out with the response, so the intent now waits for the gateway.
	return s.transition(ctx, intent, domain.IntentUpdate{State: domain.IntentStateAwaitingCallback})
}

// CallbackRequest contains the data the gateway sends on its redirect back.
type CallbackRequest struct {
	TransactionID string
	Outcome       domain.CallbackOutcome
	GatewayAmount domain.Amount
	ReferenceID   string
}

// HandleCallback records a gateway callback.
// Intents that already reached a terminal state are returned unchanged, so duplicate callbacks are safe
// even when they omit the amount or reference.
func (s *PaymentService) HandleCallback(ctx context.Context, req CallbackRequest) (*domain.PaymentIntent, error) {
	if req.Outcome != domain.CallbackSuccess && req.Outcome != domain.CallbackFailure {
		return nil, fmt.Errorf("%w: unknown outcome %q", ErrInvalidCallback, req.Outcome)
	}

	return s.withRetry(ctx, req.TransactionID, func(intent *domain.PaymentIntent) (*domain.PaymentIntent, error) {
		return s.applyCallback(ctx, intent, req)
	})
}

func (s *PaymentService) applyCallback(ctx context.Context, intent *domain.PaymentIntent, req CallbackRequest) (*domain.PaymentIntent, error) {
	switch intent.State {
	case domain.IntentStateAwaitingCallback:
		if req.Outcome == domain.CallbackFailure {
			reason := domain.FailureReasonCallback
			return s.transition(ctx, intent, domain.IntentUpdate{
				State:         domain.IntentStateFailed,
				FailureReason: &reason,
			})
		}
		// Success fields are only checked when they are about to be recorded.
		if req.ReferenceID == "" {
			return nil, fmt.Errorf("%w: reference id is required", ErrInvalidCallback)
		}
		if !req.GatewayAmount.IsPositive() {
			return nil, ErrInvalidAmount
		}
		return s.transition(ctx, intent, domain.IntentUpdate{
			State:         domain.IntentStateVerifying,
			ReferenceID:   &req.ReferenceID,
			GatewayAmount: &req.GatewayAmount,
		})

	case domain.IntentStateVerifying:
		// Verification is authoritative once a success callback was accepted.
		s.logger.Info("ignoring callback for intent under verification",
			zap.String("transaction_id", intent.TransactionID),
			zap.String("outcome", string(req.Outcome)))
		return intent, nil

	default:
		return nil, fmt.Errorf("%w: callback in state %s", domain.ErrInvalidTransition, intent.State)
	}
}

// Verify asks the gateway to confirm a payment and settles the intent.
// The returned intent is non-nil whenever a transition was recorded, even if err is non-nil.
func (s *PaymentService) Verify(ctx context.Context, transactionID string) (*domain.PaymentIntent, error) {
	intent, err := s.withRetry(ctx, transactionID, func(intent *domain.PaymentIntent) (*domain.PaymentIntent, error) {
		switch intent.State {
		case domain.IntentStateVerifying:
		case domain.IntentStateAwaitingCallback:
			// A previous attempt hit a transport error; the callback data is still on record.
			if !intent.CallbackReceived() {
				return nil, ErrCallbackPending
			}
			next, err := s.transition(ctx, intent, domain.IntentUpdate{State: domain.IntentStateVerifying})
			if err != nil {
				return nil, err
			}
			intent = next
		default:
			return nil, fmt.Errorf("%w: verify in state %s", ErrCallbackPending, intent.State)
		}

		return s.verifyOnce(ctx, intent)
	})
	if err != nil {
		return intent, err
	}

	if intent.State == domain.IntentStateFailed && intent.FailureReason == domain.FailureReasonAmountMismatch {
		return intent, ErrAmountMismatch
	}

	return intent, nil
}

// verifyOnce performs one gateway call and records its result.
// A gateway failure is returned as ErrTransport alongside the recorded intent.
func (s *PaymentService) verifyOnce(ctx context.Context, intent *domain.PaymentIntent) (*domain.PaymentIntent, error) {
	// A wrong callback amount fails the intent before the gateway is asked,
	// so a transport error cannot reopen it for another callback.
	if intent.GatewayAmount != intent.Amount {
		s.logger.Warn("callback amount mismatch",
			zap.String("transaction_id", intent.TransactionID),
			zap.Stringer("stored_amount", intent.Amount),
			zap.Stringer("callback_amount", intent.GatewayAmount))

		reason := domain.FailureReasonAmountMismatch
		return s.transition(ctx, intent, domain.IntentUpdate{
			State:         domain.IntentStateFailed,
			FailureReason: &reason,
		})
	}

	attempts := intent.VerificationAttempts + 1

	verifyCtx, cancel := context.WithTimeout(ctx, s.cfg.VerifyTimeout)
	outcome, verifyErr := s.verifier.Verify(verifyCtx, VerifyRequest{
		TransactionID: intent.TransactionID,
		Amount:        intent.GatewayAmount,
		ReferenceID:   intent.ReferenceID,
	})
	cancel()

	update := domain.IntentUpdate{VerificationAttempts: &attempts}

	switch {
	case verifyErr != nil:
		s.logger.Warn("gateway verification failed",
			zap.String("transaction_id", intent.TransactionID),
			zap.Int("attempt", attempts),
			zap.Int("max_attempts", s.cfg.MaxVerifyAttempts),
			zap.Error(verifyErr))

		if attempts >= s.cfg.MaxVerifyAttempts {
			reason := domain.FailureReasonAttemptsExceeded
			update.State = domain.IntentStateFailed
			update.FailureReason = &reason
		} else {
			update.State = domain.IntentStateAwaitingCallback
		}

	case !outcome.Confirmed:
		reason := domain.FailureReasonNotConfirmed
		update.State = domain.IntentStateFailed
		update.FailureReason = &reason

	case outcome.AmountConfirmed != intent.Amount:
		// A mismatch fails the intent even when the gateway reports success.
		s.logger.Warn("gateway amount mismatch",
			zap.String("transaction_id", intent.TransactionID),
			zap.Stringer("stored_amount", intent.Amount),
			zap.Stringer("confirmed_amount", outcome.AmountConfirmed))

		reason := domain.FailureReasonAmountMismatch
		update.State = domain.IntentStateFailed
		update.FailureReason = &reason

	default:
		update.State = domain.IntentStateConfirmed
	}

	next, err := s.transition(ctx, intent, update)
	if err != nil {
		return nil, err
	}

	if verifyErr != nil {
		return next, fmt.Errorf("%w: %v", ErrTransport, verifyErr)
	}
	return next, nil
}

// Expire moves a non-terminal intent past its timeout window to EXPIRED.
// Terminal intents are left alone.
func (s *PaymentService) Expire(ctx context.Context, transactionID string) error {
	_, err := s.expire(ctx, transactionID)
	return err
}

// expire reports whether this call moved the intent to EXPIRED.
func (s *PaymentService) expire(ctx context.Context, transactionID string) (bool, error) {
	expired := false
	_, err := s.withRetry(ctx, transactionID, func(intent *domain.PaymentIntent) (*domain.PaymentIntent, error) {
		if !s.now().After(intent.CreatedAt.Add(s.cfg.IntentTimeout)) {
			return nil, ErrNotStale
		}
		next, err := s.transition(ctx, intent, domain.IntentUpdate{State: domain.IntentStateExpired})
		if err == nil {
			expired = true
		}
		return next, err
	})
	return expired, err
}

// ExpireStale expires up to limit intents whose timeout window has passed.
// It returns how many intents were moved to EXPIRED.
func (s *PaymentService) ExpireStale(ctx context.Context, limit int) (int, error) {
	cutoff := s.now().Add(-s.cfg.IntentTimeout)

	ids, err := s.intentRepo.ListStale(ctx, cutoff, limit)
	if err != nil {
		return 0, fmt.Errorf("list stale intents: %w", err)
	}

	expired := 0
	for _, id := range ids {
		if ctx.Err() != nil {
			return expired, ctx.Err()
		}

		ok, err := s.expire(ctx, id)
		switch {
		case err == nil && ok:
			expired++
		case err == nil:
			s.logger.Debug("intent settled before sweep reached it", zap.String("transaction_id", id))
		case errors.Is(err, ErrNotStale), errors.Is(err, ErrRaceCondition):
			s.logger.Debug("skipping intent during sweep", zap.String("transaction_id", id), zap.Error(err))
		default:
			s.logger.Warn("failed to expire intent", zap.String("transaction_id", id), zap.Error(err))
		}
	}

	return expired, nil
}

// GetIntent retrieves the current snapshot of an intent.
func (s *PaymentService) GetIntent(ctx context.Context, transactionID string) (*domain.PaymentIntent, error) {
	return s.load(ctx, transactionID)
}

// withRetry loads the intent and applies fn, re-reading once if a compare-and-swap is lost.
// Terminal intents short-circuit and are returned as stored.
func (s *PaymentService) withRetry(
	ctx context.Context,
	transactionID string,
	fn func(intent *domain.PaymentIntent) (*domain.PaymentIntent, error),
) (*domain.PaymentIntent, error) {
	for attempt := 0; attempt <= casRetries; attempt++ {
		intent, err := s.load(ctx, transactionID)
		if err != nil {
			return nil, err
		}

		if intent.IsTerminal() {
			return intent, nil
		}

		next, err := fn(intent)
		if errors.Is(err, repository.ErrConflict) {
			s.logger.Debug("lost compare-and-swap, re-reading intent",
				zap.String("transaction_id", transactionID),
				zap.Int("attempt", attempt+1))
			continue
		}
		return next, err
	}

	return nil, ErrRaceCondition
}

// load reads an intent, serving terminal snapshots from the cache when available.
func (s *PaymentService) load(ctx context.Context, transactionID string) (*domain.PaymentIntent, error) {
	if strings.TrimSpace(transactionID) == "" {
		return nil, ErrUnknownTransaction
	}

	if s.cache != nil {
		cached, err := s.cache.GetIntent(ctx, transactionID)
		if err != nil {
			s.logger.Warn("intent cache read failed", zap.String("transaction_id", transactionID), zap.Error(err))
		} else if cached != nil && cached.IsTerminal() {
			return cached, nil
		}
	}

	intent, err := s.intentRepo.GetByID(ctx, transactionID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrUnknownTransaction
		}
		return nil, err
	}

	return intent, nil
}

// transition applies update with a compare-and-swap against intent's current state.
func (s *PaymentService) transition(ctx context.Context, intent *domain.PaymentIntent, update domain.IntentUpdate) (*domain.PaymentIntent, error) {
	if !intent.State.CanTransition(update.State) {
		return nil, fmt.Errorf("%w: %s -> %s", domain.ErrInvalidTransition, intent.State, update.State)
	}

	update.UpdatedAt = s.now()
	if err := s.intentRepo.CompareAndSwap(ctx, intent.TransactionID, intent.State, update); err != nil {
		return nil, err
	}

	next := intent.Apply(update)

	s.logger.Info("payment intent transitioned",
		zap.String("transaction_id", next.TransactionID),
		zap.String("from", string(intent.State)),
		zap.String("to", string(next.State)),
		zap.Int("verification_attempts", next.VerificationAttempts))

	if next.IsTerminal() {
		s.settle(ctx, next)
	}

	return next, nil
}

// settle runs the side effects of reaching a terminal state.
// Only the caller that won the compare-and-swap gets here, so each runs once per intent.
func (s *PaymentService) settle(ctx context.Context, intent *domain.PaymentIntent) {
	if s.cache != nil {
		if err := s.cache.SetIntent(ctx, intent); err != nil {
			s.logger.Warn("intent cache write failed", zap.String("transaction_id", intent.TransactionID), zap.Error(err))
		}
	}

	if s.notifier != nil {
		if err := s.notifier.NotifyIntentSettled(ctx, intent); err != nil {
			s.logger.Warn("intent notification failed", zap.String("transaction_id", intent.TransactionID), zap.Error(err))
		}
	}
}

// newTransactionID builds a merchant-prefixed ID from a millisecond timestamp and a random suffix.
func (s *PaymentService) newTransactionID(now time.Time) string {
	suffix := strings.ReplaceAll(uuid.New().String(), "-", "")[:8]
	return fmt.Sprintf("%s-%d-%s", s.cfg.TransactionPrefix, now.UnixMilli(), suffix)
}

func copyMetadata(src map[string]string) map[string]string {
	if len(src) == 0 {
		return nil
	}
	dst := make(map[string]string, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}
