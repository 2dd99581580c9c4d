package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"paygate/internal/domain"
	"paygate/internal/repository"
)

// cartItemRow is the JSONB shape of a cart line.
type cartItemRow struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Price int64  `json:"price"`
	Qty   int    `json:"qty"`
}

// CartRepository is a PostgreSQL implementation of repository.CartRepository.
type CartRepository struct {
	q Querier
}

// NewCartRepository creates a new PostgreSQL cart repository.
func NewCartRepository(db *sql.DB) *CartRepository {
	return &CartRepository{q: db}
}

// Create persists a new cart with its items as JSONB.
func (r *CartRepository) Create(ctx context.Context, cart *domain.Cart) error {
	rows := make([]cartItemRow, len(cart.Items))
	for i, item := range cart.Items {
		rows[i] = cartItemRow{ID: item.ID, Name: item.Name, Price: int64(item.Price), Qty: item.Qty}
	}

	items, err := json.Marshal(rows)
	if err != nil {
		return fmt.Errorf("encode cart items: %w", err)
	}

	_, err = r.q.ExecContext(ctx,
		`INSERT INTO carts (id, items, created_at) VALUES ($1, $2, $3)`,
		cart.ID, items, cart.CreatedAt,
	)
	if err != nil && isUniqueViolation(err) {
		return repository.ErrDuplicateKey
	}
	return err
}

// GetByID retrieves a cart by ID.
func (r *CartRepository) GetByID(ctx context.Context, id string) (*domain.Cart, error) {
	var cart domain.Cart
	var items []byte

	err := r.q.QueryRowContext(ctx,
		`SELECT id, items, created_at FROM carts WHERE id = $1`, id,
	).Scan(&cart.ID, &items, &cart.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}

	var rows []cartItemRow
	if err := json.Unmarshal(items, &rows); err != nil {
		return nil, fmt.Errorf("decode cart items: %w", err)
	}

	cart.Items = make([]domain.CartItem, len(rows))
	for i, row := range rows {
		cart.Items[i] = domain.CartItem{ID: row.ID, Name: row.Name, Price: domain.Amount(row.Price), Qty: row.Qty}
	}

	return &cart, nil
}
