package product

import (
	"context"

	"storefront/internal/domain"
)

type Repository interface {
	// List returns the catalog, optionally narrowed to one category.
	List(ctx context.Context, category string) ([]domain.Product, error)
	GetByID(ctx context.Context, id string) (*domain.Product, error)
	Upsert(ctx context.Context, product domain.Product) (*domain.Product, error)
}
