package domain

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type OrderItem struct {
	ProductID   int64           `json:"product_id"`
	ProductName string          `json:"product_name"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
}

func (i OrderItem) Subtotal() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

type Order struct {
	ID            uuid.UUID
	Number        string
	OwnerID       string
	Items         []OrderItem
	TotalAmount   decimal.Decimal
	Status        OrderStatus
	PaymentStatus PaymentStatus
	CreatedAt     time.Time
	UpdatedAt     time.Time
	CancelledAt   *time.Time
}

// NewOrder builds a pending order from priced items. The total is computed
// here once and never recomputed from later catalog prices.
func NewOrder(ownerID string, items []OrderItem, now time.Time) (*Order, error) {
	if len(items) == 0 {
		return nil, ErrEmptyCart
	}
	total := decimal.Zero
	for _, it := range items {
		if it.Quantity < 1 {
			return nil, ErrInvalidQuantity
		}
		total = total.Add(it.Subtotal())
	}

	owned := make([]OrderItem, len(items))
	copy(owned, items)

	return &Order{
		ID:            uuid.New(),
		Number:        NewOrderNumber(now),
		OwnerID:       ownerID,
		Items:         owned,
		TotalAmount:   total,
		Status:        OrderStatusPending,
		PaymentStatus: PaymentStatusPending,
		CreatedAt:     now,
		UpdatedAt:     now,
	}, nil
}

// NewOrderNumber returns a human readable number like ORD-20250101120000-a1b2c3.
func NewOrderNumber(now time.Time) string {
	suffix := make([]byte, 3)
	if _, err := rand.Read(suffix); err != nil {
		return fmt.Sprintf("ORD-%s-%06d", now.UTC().Format("20060102150405"), now.Nanosecond()%1000000)
	}
	return fmt.Sprintf("ORD-%s-%s", now.UTC().Format("20060102150405"), hex.EncodeToString(suffix))
}

// IsCancellable reports whether the entity allows cancellation: pending, or
// confirmed but not yet paid.
func (o *Order) IsCancellable() bool {
	switch o.Status {
	case OrderStatusPending:
		return true
	case OrderStatusConfirmed:
		return o.PaymentStatus != PaymentStatusPaid
	default:
		return false
	}
}

func (o *Order) ItemCount() int {
	n := 0
	for _, it := range o.Items {
		n += it.Quantity
	}
	return n
}

// StatusChange is one row of an order's status history.
type StatusChange struct {
	OrderID   uuid.UUID
	From      OrderStatus
	To        OrderStatus
	Comment   string
	CreatedAt time.Time
}

func NewStatusChange(orderID uuid.UUID, from, to OrderStatus, now time.Time) StatusChange {
	comment := fmt.Sprintf("Status changed from %s to %s", from, to)
	if from == "" {
		comment = fmt.Sprintf("Order created with status %s", to)
	}
	return StatusChange{
		OrderID:   orderID,
		From:      from,
		To:        to,
		Comment:   comment,
		CreatedAt: now,
	}
}
