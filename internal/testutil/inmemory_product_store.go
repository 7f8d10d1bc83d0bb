package testutil

import (
	"context"
	"fmt"

	"github.com/paylinks/pricechange/internal/domain/product"
)

var _ product.Repository = (*InMemoryProductStore)(nil)

// InMemoryProductStore implements product.Repository
type InMemoryProductStore struct {
	*InMemoryStore[product.Product]
}

func NewInMemoryProductStore() *InMemoryProductStore {
	return &InMemoryProductStore{
		InMemoryStore: NewInMemoryStore[product.Product](),
	}
}

func (s *InMemoryProductStore) Create(ctx context.Context, p *product.Product) error {
	if p == nil {
		return fmt.Errorf("product cannot be nil")
	}
	return s.InMemoryStore.Create(ctx, p.ID, *p)
}

func (s *InMemoryProductStore) Get(ctx context.Context, id string) (*product.Product, error) {
	p, err := s.InMemoryStore.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return &p, nil
}
