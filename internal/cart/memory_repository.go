package cart

import (
	"context"
	"sync"
	"time"

	"github.com/fjod/go_cart/storefront/internal/domain"
	"github.com/google/uuid"
)

type MemoryRepository struct {
	mu    sync.Mutex
	carts map[string]*memorySlot
}

type memorySlot struct {
	mu   sync.Mutex
	cart *domain.Cart
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{carts: make(map[string]*memorySlot)}
}

func (r *MemoryRepository) slot(ownerID string, create bool) *memorySlot {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.carts[ownerID]
	if !ok && create {
		s = &memorySlot{cart: domain.NewCart(uuid.NewString(), ownerID, time.Now())}
		r.carts[ownerID] = s
	}
	return s
}

func (r *MemoryRepository) GetOrCreate(_ context.Context, ownerID string) (*domain.Cart, error) {
	s := r.slot(ownerID, true)

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cart.Clone(), nil
}

func (r *MemoryRepository) Get(_ context.Context, ownerID string) (*domain.Cart, error) {
	s := r.slot(ownerID, false)
	if s == nil {
		return nil, ErrCartNotFound
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cart.Clone(), nil
}

func (r *MemoryRepository) Update(ctx context.Context, ownerID string, fn func(cart *domain.Cart) error) (*domain.Cart, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s := r.slot(ownerID, true)

	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.cart.Clone()
	if err := fn(next); err != nil {
		return nil, err
	}
	next.Version = s.cart.Version + 1
	next.UpdatedAt = time.Now()
	s.cart = next
	return next.Clone(), nil
}
