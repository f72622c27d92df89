package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/fjod/go_cart/storefront/internal/domain"
	"github.com/fjod/go_cart/storefront/internal/stock"
	"github.com/google/uuid"
)

// MemoryRepository keeps orders in process memory and products in a
// stock.MemoryLedger. Order writes made inside RunInTx are undone when the
// callback fails; ledger effects are compensated by the caller.
type MemoryRepository struct {
	ledger *stock.MemoryLedger

	mu        sync.RWMutex
	orders    map[uuid.UUID]*domain.Order
	history   map[uuid.UUID][]domain.StatusChange
	outbox    []*OutboxEvent
	processed map[int64]bool
	nextID    int64
}

func NewMemoryRepository(ledger *stock.MemoryLedger) *MemoryRepository {
	return &MemoryRepository{
		ledger:    ledger,
		orders:    make(map[uuid.UUID]*domain.Order),
		history:   make(map[uuid.UUID][]domain.StatusChange),
		processed: make(map[int64]bool),
	}
}

func (r *MemoryRepository) RunInTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	t := &memoryTx{repo: r}
	if err := fn(ctx, t); err != nil {
		for i := len(t.undo) - 1; i >= 0; i-- {
			t.undo[i]()
		}
		return err
	}
	return nil
}

func (r *MemoryRepository) GetProduct(ctx context.Context, id int64) (*domain.Product, error) {
	return r.ledger.GetProduct(ctx, id)
}

func (r *MemoryRepository) GetOrder(_ context.Context, id uuid.UUID) (*domain.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	o, ok := r.orders[id]
	if !ok {
		return nil, domain.ErrOrderNotFound
	}
	return cloneOrder(o), nil
}

func (r *MemoryRepository) ListOrdersByOwner(_ context.Context, ownerID string) ([]*domain.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*domain.Order
	for _, o := range r.orders {
		if o.OwnerID == ownerID {
			out = append(out, cloneOrder(o))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (r *MemoryRepository) GetStatusHistory(_ context.Context, id uuid.UUID) ([]domain.StatusChange, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	h := r.history[id]
	out := make([]domain.StatusChange, len(h))
	copy(out, h)
	return out, nil
}

func (r *MemoryRepository) GetUnprocessedEvents(_ context.Context, limit int) ([]*OutboxEvent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*OutboxEvent
	for _, e := range r.outbox {
		if r.processed[e.ID] {
			continue
		}
		cp := *e
		out = append(out, &cp)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (r *MemoryRepository) MarkEventAsProcessed(_ context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.processed[id] = true
	return nil
}

func (r *MemoryRepository) Close() error {
	return nil
}

type memoryTx struct {
	repo *MemoryRepository
	undo []func()
}

func (t *memoryTx) Ledger() stock.Ledger {
	return t.repo.ledger
}

func (t *memoryTx) GetProduct(ctx context.Context, id int64) (*domain.Product, error) {
	return t.repo.ledger.GetProduct(ctx, id)
}

func (t *memoryTx) CreateOrder(_ context.Context, order *domain.Order) error {
	r := t.repo
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.orders[order.ID]; exists {
		return ErrDuplicateOrder
	}
	r.orders[order.ID] = cloneOrder(order)
	r.history[order.ID] = append(r.history[order.ID], domain.NewStatusChange(order.ID, "", order.Status, order.CreatedAt))

	id := order.ID
	t.undo = append(t.undo, func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		delete(r.orders, id)
		delete(r.history, id)
	})
	return nil
}

func (t *memoryTx) GetOrderForUpdate(ctx context.Context, id uuid.UUID) (*domain.Order, error) {
	return t.repo.GetOrder(ctx, id)
}

func (t *memoryTx) UpdateOrderStatus(_ context.Context, id uuid.UUID, from, to domain.OrderStatus, now time.Time) error {
	r := t.repo
	r.mu.Lock()
	defer r.mu.Unlock()

	o, ok := r.orders[id]
	if !ok {
		return domain.ErrOrderNotFound
	}
	if o.Status != from {
		return ErrStatusConflict
	}

	prev := *o
	o.Status = to
	o.UpdatedAt = now
	if to == domain.OrderStatusCancelled {
		cancelledAt := now
		o.CancelledAt = &cancelledAt
	}
	r.history[id] = append(r.history[id], domain.NewStatusChange(id, from, to, now))

	t.undo = append(t.undo, func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		if cur, ok := r.orders[id]; ok {
			*cur = prev
			if h := r.history[id]; len(h) > 0 {
				r.history[id] = h[:len(h)-1]
			}
		}
	})
	return nil
}

func (t *memoryTx) UpdatePaymentStatus(_ context.Context, id uuid.UUID, status domain.PaymentStatus, now time.Time) error {
	r := t.repo
	r.mu.Lock()
	defer r.mu.Unlock()

	o, ok := r.orders[id]
	if !ok {
		return domain.ErrOrderNotFound
	}

	prevStatus, prevUpdated := o.PaymentStatus, o.UpdatedAt
	o.PaymentStatus = status
	o.UpdatedAt = now

	t.undo = append(t.undo, func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		if cur, ok := r.orders[id]; ok {
			cur.PaymentStatus = prevStatus
			cur.UpdatedAt = prevUpdated
		}
	})
	return nil
}

func (t *memoryTx) AddOutboxEvent(_ context.Context, event *OutboxEvent) error {
	r := t.repo
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextID++
	cp := *event
	cp.ID = r.nextID
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now()
	}
	r.outbox = append(r.outbox, &cp)

	id := cp.ID
	t.undo = append(t.undo, func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		for i, e := range r.outbox {
			if e.ID == id {
				r.outbox = append(r.outbox[:i], r.outbox[i+1:]...)
				return
			}
		}
	})
	return nil
}

func cloneOrder(o *domain.Order) *domain.Order {
	cp := *o
	cp.Items = make([]domain.OrderItem, len(o.Items))
	copy(cp.Items, o.Items)
	if o.CancelledAt != nil {
		t := *o.CancelledAt
		cp.CancelledAt = &t
	}
	return &cp
}
