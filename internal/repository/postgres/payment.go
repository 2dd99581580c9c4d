package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"paygate/internal/domain"
	"paygate/internal/repository"
)

// uniqueViolation is the PostgreSQL error code for a unique constraint violation.
const uniqueViolation = "23505"

// IntentRepository is a PostgreSQL implementation of repository.IntentRepository.
type IntentRepository struct {
	q Querier
}

// NewIntentRepository creates a new PostgreSQL intent repository.
func NewIntentRepository(db *sql.DB) *IntentRepository {
	return &IntentRepository{q: db}
}

// Create persists a new intent.
func (r *IntentRepository) Create(ctx context.Context, intent *domain.PaymentIntent) error {
	query := `
		INSERT INTO payment_intents (
			transaction_id, amount, state, reference_id, gateway_amount, metadata,
			failure_reason, verification_attempts, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	metadata, err := json.Marshal(intent.Metadata)
	if err != nil {
		return fmt.Errorf("encode metadata: %w", err)
	}

	_, err = r.q.ExecContext(ctx, query,
		intent.TransactionID,
		int64(intent.Amount),
		intent.State,
		nullString(intent.ReferenceID),
		int64(intent.GatewayAmount),
		metadata,
		nullString(intent.FailureReason),
		intent.VerificationAttempts,
		intent.CreatedAt,
		intent.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return repository.ErrDuplicateKey
		}
		return err
	}

	return nil
}

// GetByID retrieves an intent by transaction ID.
func (r *IntentRepository) GetByID(ctx context.Context, transactionID string) (*domain.PaymentIntent, error) {
	query := `
		SELECT transaction_id, amount, state, reference_id, gateway_amount, metadata,
			failure_reason, verification_attempts, created_at, updated_at
		FROM payment_intents WHERE transaction_id = $1
	`

	var intent domain.PaymentIntent
	var amount, gatewayAmount int64
	var referenceID, failureReason sql.NullString
	var metadata []byte

	err := r.q.QueryRowContext(ctx, query, transactionID).Scan(
		&intent.TransactionID,
		&amount,
		&intent.State,
		&referenceID,
		&gatewayAmount,
		&metadata,
		&failureReason,
		&intent.VerificationAttempts,
		&intent.CreatedAt,
		&intent.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}

	intent.Amount = domain.Amount(amount)
	intent.GatewayAmount = domain.Amount(gatewayAmount)
	intent.ReferenceID = referenceID.String
	intent.FailureReason = failureReason.String

	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &intent.Metadata); err != nil {
			return nil, fmt.Errorf("decode metadata: %w", err)
		}
	}

	return &intent, nil
}

// CompareAndSwap applies update only if the stored state equals expected.
// The state check and the write happen in one UPDATE statement.
func (r *IntentRepository) CompareAndSwap(ctx context.Context, transactionID string, expected domain.IntentState, update domain.IntentUpdate) error {
	query := `
		UPDATE payment_intents SET
			state = $3,
			reference_id = COALESCE($4, reference_id),
			gateway_amount = COALESCE($5, gateway_amount),
			failure_reason = COALESCE($6, failure_reason),
			verification_attempts = COALESCE($7, verification_attempts),
			updated_at = $8
		WHERE transaction_id = $1 AND state = $2
	`

	var referenceID, failureReason sql.NullString
	if update.ReferenceID != nil {
		referenceID = sql.NullString{String: *update.ReferenceID, Valid: true}
	}
	if update.FailureReason != nil {
		failureReason = sql.NullString{String: *update.FailureReason, Valid: true}
	}

	var gatewayAmount, attempts sql.NullInt64
	if update.GatewayAmount != nil {
		gatewayAmount = sql.NullInt64{Int64: int64(*update.GatewayAmount), Valid: true}
	}
	if update.VerificationAttempts != nil {
		attempts = sql.NullInt64{Int64: int64(*update.VerificationAttempts), Valid: true}
	}

	result, err := r.q.ExecContext(ctx, query,
		transactionID,
		expected,
		update.State,
		referenceID,
		gatewayAmount,
		failureReason,
		attempts,
		update.UpdatedAt,
	)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if rowsAffected == 1 {
		return nil
	}

	// Nothing matched: tell a missing row apart from a state mismatch.
	var exists bool
	err = r.q.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM payment_intents WHERE transaction_id = $1)`,
		transactionID,
	).Scan(&exists)
	if err != nil {
		return err
	}

	if !exists {
		return repository.ErrNotFound
	}
	return repository.ErrConflict
}

// ListStale returns IDs of non-terminal intents created before cutoff, oldest first.
func (r *IntentRepository) ListStale(ctx context.Context, cutoff time.Time, limit int) ([]string, error) {
	query := `
		SELECT transaction_id FROM payment_intents
		WHERE state = ANY($1) AND created_at < $2
		ORDER BY created_at ASC
		LIMIT $3
	`

	states := domain.NonTerminalStates()
	names := make([]string, len(states))
	for i, s := range states {
		names[i] = string(s)
	}

	rows, err := r.q.QueryContext(ctx, query, pq.Array(names), cutoff, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}

	return ids, rows.Err()
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
