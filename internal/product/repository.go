package product

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"
)

var ErrProductNotFound = errors.New("product not found")

type repository struct {
	db *sqlx.DB
}

func NewRepository(db *sqlx.DB) Repository {
	return &repository{db: db}
}

func (r *repository) GetProduct(ctx context.Context, id int) (*Product, error) {
	var p Product
	err := r.db.GetContext(ctx, &p, `
		SELECT id, name, price_cents, smallest_multiple, deleted_at, created_at
		FROM products
		WHERE id = $1
	`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrProductNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *repository) GetProductActions(ctx context.Context, productID int) ([]Action, error) {
	actions := []Action{}
	err := r.db.SelectContext(ctx, &actions, `
		SELECT id, product_id, action_type, value_days
		FROM product_actions
		WHERE product_id = $1
		ORDER BY id
	`, productID)
	return actions, err
}
