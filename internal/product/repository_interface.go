package product

import "context"

type Repository interface {
	GetProduct(ctx context.Context, id int) (*Product, error)
	GetProductActions(ctx context.Context, productID int) ([]Action, error)
}
