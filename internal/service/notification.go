package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"paygate/internal/domain"
)

// NotificationType represents the type of notification.
type NotificationType string

const (
	NotificationPaymentConfirmed NotificationType = "PAYMENT_CONFIRMED"
	NotificationPaymentFailed    NotificationType = "PAYMENT_FAILED"
	NotificationPaymentExpired   NotificationType = "PAYMENT_EXPIRED"
)

// Notification represents a notification to be sent.
type Notification struct {
	Type      NotificationType
	Title     string
	Message   string
	Data      map[string]any
	CreatedAt time.Time
}

// NotificationService handles notification delivery for settled payments.
type NotificationService struct {
	logger *zap.Logger
}

// NewNotificationService creates a new NotificationService.
func NewNotificationService(logger *zap.Logger) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationService{logger: logger}
}

// NotifyIntentSettled announces that an intent reached a terminal state.
func (s *NotificationService) NotifyIntentSettled(ctx context.Context, intent *domain.PaymentIntent) error {
	notification := Notification{
		Data: map[string]any{
			"transaction_id": intent.TransactionID,
			"amount":         intent.Amount.String(),
			"reference_id":   intent.ReferenceID,
		},
		CreatedAt: time.Now(),
	}

	switch intent.State {
	case domain.IntentStateConfirmed:
		notification.Type = NotificationPaymentConfirmed
		notification.Title = "Payment Confirmed"
		notification.Message = fmt.Sprintf("Payment of Rs. %s was confirmed", intent.Amount)
	case domain.IntentStateFailed:
		notification.Type = NotificationPaymentFailed
		notification.Title = "Payment Failed"
		notification.Message = fmt.Sprintf("Payment of Rs. %s failed: %s", intent.Amount, intent.FailureReason)
	case domain.IntentStateExpired:
		notification.Type = NotificationPaymentExpired
		notification.Title = "Payment Expired"
		notification.Message = fmt.Sprintf("Payment of Rs. %s expired before completion", intent.Amount)
	default:
		return fmt.Errorf("%w: %s is not terminal", domain.ErrInvalidTransition, intent.State)
	}

	return s.send(ctx, notification)
}

// send delivers a notification. Delivery is a structured log line for now.
func (s *NotificationService) send(ctx context.Context, notification Notification) error {
	s.logger.Info("notification",
		zap.String("type", string(notification.Type)),
		zap.String("title", notification.Title),
		zap.String("message", notification.Message),
		zap.Any("data", notification.Data),
		zap.Time("created_at", notification.CreatedAt))
	return nil
}
