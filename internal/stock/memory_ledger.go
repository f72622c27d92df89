package stock

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/fjod/go_cart/storefront/internal/domain"
	"github.com/shopspring/decimal"
)

// MemoryLedger keeps products in memory. Each product has its own mutex so
// reservations on different products never contend.
type MemoryLedger struct {
	mu       sync.RWMutex // guards the products map, not the entries
	products map[int64]*productEntry
}

type productEntry struct {
	mu      sync.Mutex
	product domain.Product
}

func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{
		products: make(map[int64]*productEntry),
	}
}

// AddProduct registers a product (used for seeding).
func (s *MemoryLedger) AddProduct(p domain.Product) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p.UpdatedAt = time.Now()
	s.products[p.ID] = &productEntry{product: p}
}

func (s *MemoryLedger) entry(productID int64) (*productEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.products[productID]
	if !ok {
		return nil, fmt.Errorf("%w: id %d", domain.ErrProductNotFound, productID)
	}
	return e, nil
}

func (s *MemoryLedger) Reserve(_ context.Context, productID int64, quantity int) error {
	if quantity < 1 {
		return domain.ErrInvalidQuantity
	}
	e, err := s.entry(productID)
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.product.Stock < quantity {
		return &domain.InsufficientStockError{
			ProductID: productID,
			Requested: quantity,
			Available: e.product.Stock,
		}
	}
	e.product.Stock -= quantity
	e.product.UpdatedAt = time.Now()
	return nil
}

func (s *MemoryLedger) Release(_ context.Context, productID int64, quantity int) error {
	if quantity < 1 {
		return domain.ErrInvalidQuantity
	}
	e, err := s.entry(productID)
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	e.product.Stock += quantity
	e.product.UpdatedAt = time.Now()
	return nil
}

// GetProduct returns a copy of the current product state.
func (s *MemoryLedger) GetProduct(_ context.Context, productID int64) (*domain.Product, error) {
	e, err := s.entry(productID)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	p := e.product
	return &p, nil
}

func (s *MemoryLedger) ListProducts(ctx context.Context) ([]*domain.Product, error) {
	s.mu.RLock()
	ids := make([]int64, 0, len(s.products))
	for id := range s.products {
		ids = append(ids, id)
	}
	s.mu.RUnlock()

	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	out := make([]*domain.Product, 0, len(ids))
	for _, id := range ids {
		p, err := s.GetProduct(ctx, id)
		if err != nil {
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

// SetPrice changes the catalog price. Stock is untouched.
func (s *MemoryLedger) SetPrice(productID int64, price decimal.Decimal) error {
	e, err := s.entry(productID)
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	e.product.Price = price
	e.product.UpdatedAt = time.Now()
	return nil
}

func (s *MemoryLedger) SetActive(productID int64, active bool) error {
	e, err := s.entry(productID)
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	e.product.Active = active
	return nil
}
