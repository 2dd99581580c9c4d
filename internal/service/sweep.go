package service

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// SweepLocker serializes sweeps across replicas.
type SweepLocker interface {
	AcquireSweepLock(ctx context.Context, ttl time.Duration) (bool, error)
	ReleaseSweepLock(ctx context.Context) error
}

// ExpirySweeper periodically expires intents that never completed.
type ExpirySweeper struct {
	paymentService *PaymentService
	locker         SweepLocker
	logger         *zap.Logger
	interval       time.Duration
	batchSize      int
}

// NewExpirySweeper creates a new ExpirySweeper. locker may be nil for single-instance deployments.
func NewExpirySweeper(paymentService *PaymentService, locker SweepLocker, logger *zap.Logger, interval time.Duration, batchSize int) *ExpirySweeper {
	if interval <= 0 {
		interval = time.Minute
	}
	if batchSize <= 0 {
		batchSize = 100
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &ExpirySweeper{
		paymentService: paymentService,
		locker:         locker,
		logger:         logger,
		interval:       interval,
		batchSize:      batchSize,
	}
}

// Run sweeps on every tick until ctx is cancelled.
func (s *ExpirySweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info("expiry sweeper started", zap.Duration("interval", s.interval))

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("expiry sweeper stopped")
			return
		case <-ticker.C:
			if _, err := s.SweepOnce(ctx); err != nil {
				s.logger.Warn("expiry sweep failed", zap.Error(err))
			}
		}
	}
}

// SweepOnce runs a single sweep and returns how many intents expired.
// It does nothing if another replica holds the sweep lock.
func (s *ExpirySweeper) SweepOnce(ctx context.Context) (int, error) {
	if s.locker != nil {
		acquired, err := s.locker.AcquireSweepLock(ctx, s.interval)
		if err != nil {
			return 0, err
		}
		if !acquired {
			return 0, nil
		}
		defer func() {
			if err := s.locker.ReleaseSweepLock(context.WithoutCancel(ctx)); err != nil {
				s.logger.Warn("failed to release sweep lock", zap.Error(err))
			}
		}()
	}

	expired, err := s.paymentService.ExpireStale(ctx, s.batchSize)
	if expired > 0 {
		s.logger.Info("expired stale payment intents", zap.Int("count", expired))
	}
	return expired, err
}
