package repository

import (
	"context"
	"errors"
	"time"

	"github.com/fjod/go_cart/storefront/internal/domain"
	"github.com/fjod/go_cart/storefront/internal/stock"
	"github.com/google/uuid"
)

var (
	ErrStatusConflict = errors.New("order status changed concurrently")
	ErrDuplicateOrder = errors.New("order already exists")
)

type Credentials struct {
	Host              string
	Port              int
	User              string
	Password          string
	DBName            string
	SSLMode           string
	MigrationsDirPath string
}

type OutboxEvent struct {
	ID          int64
	AggregateID string
	EventType   string
	Payload     []byte
	CreatedAt   time.Time
}

// Tx is the unit of work handed to RunInTx callbacks. Everything written
// through it commits or rolls back together.
type Tx interface {
	Ledger() stock.Ledger
	GetProduct(ctx context.Context, id int64) (*domain.Product, error)

	// CreateOrder stores the order, its items and the initial history row.
	CreateOrder(ctx context.Context, order *domain.Order) error
	GetOrderForUpdate(ctx context.Context, id uuid.UUID) (*domain.Order, error)

	// UpdateOrderStatus moves the order from -> to only if it is still in
	// from, and appends a history row. Returns ErrStatusConflict otherwise.
	UpdateOrderStatus(ctx context.Context, id uuid.UUID, from, to domain.OrderStatus, now time.Time) error
	UpdatePaymentStatus(ctx context.Context, id uuid.UUID, status domain.PaymentStatus, now time.Time) error

	AddOutboxEvent(ctx context.Context, event *OutboxEvent) error
}

type OrderRepository interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error

	GetProduct(ctx context.Context, id int64) (*domain.Product, error)
	GetOrder(ctx context.Context, id uuid.UUID) (*domain.Order, error)
	ListOrdersByOwner(ctx context.Context, ownerID string) ([]*domain.Order, error)
	GetStatusHistory(ctx context.Context, id uuid.UUID) ([]domain.StatusChange, error)

	GetUnprocessedEvents(ctx context.Context, limit int) ([]*OutboxEvent, error)
	MarkEventAsProcessed(ctx context.Context, id int64) error

	Close() error
}
