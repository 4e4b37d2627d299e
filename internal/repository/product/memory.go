package product

import (
	"context"
	"sort"
	"sync"
	"time"

	"storefront/internal/domain"
)

type memoryRepo struct {
	mu       sync.RWMutex
	products map[string]domain.Product
	now      func() time.Time
}

// NewMemory returns a process-local catalog.
func NewMemory() Repository {
	return &memoryRepo{products: make(map[string]domain.Product), now: time.Now}
}

func (r *memoryRepo) List(_ context.Context, category string) ([]domain.Product, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	result := []domain.Product{}
	for _, p := range r.products {
		if category == "" || p.Category == category {
			result = append(result, p)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func (r *memoryRepo) GetByID(_ context.Context, id string) (*domain.Product, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.products[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &p, nil
}

func (r *memoryRepo) Upsert(_ context.Context, product domain.Product) (*domain.Product, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.products[product.ID]; ok {
		product.CreatedAt = existing.CreatedAt
	} else {
		product.CreatedAt = r.now().UTC()
	}
	r.products[product.ID] = product
	return &product, nil
}
