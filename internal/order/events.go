package order

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/fjod/go_cart/storefront/internal/domain"
	"github.com/fjod/go_cart/storefront/internal/repository"
)

const (
	EventOrderCreated              = "order.created"
	EventOrderCancelled            = "order.cancelled"
	EventOrderStatusChanged        = "order.status_changed"
	EventOrderPaymentStatusChanged = "order.payment_status_changed"
)

type EventItem struct {
	ProductID   int64  `json:"product_id"`
	ProductName string `json:"product_name"`
	Quantity    int    `json:"quantity"`
	UnitPrice   string `json:"unit_price"`
}

type OrderCreatedEvent struct {
	OrderID       string      `json:"order_id"`
	OrderNumber   string      `json:"order_number"`
	OwnerID       string      `json:"owner_id"`
	CartVersion   int64       `json:"cart_version"`
	Items         []EventItem `json:"items"`
	TotalAmount   string      `json:"total_amount"`
	Status        string      `json:"status"`
	PaymentStatus string      `json:"payment_status"`
	CreatedAt     time.Time   `json:"created_at"`
}

type OrderCancelledEvent struct {
	OrderID     string      `json:"order_id"`
	OrderNumber string      `json:"order_number"`
	OwnerID     string      `json:"owner_id"`
	Restocked   []EventItem `json:"restocked"`
	CancelledAt time.Time   `json:"cancelled_at"`
}

type StatusChangedEvent struct {
	OrderID   string    `json:"order_id"`
	OwnerID   string    `json:"owner_id"`
	From      string    `json:"from"`
	To        string    `json:"to"`
	ChangedAt time.Time `json:"changed_at"`
}

type PaymentStatusChangedEvent struct {
	OrderID       string    `json:"order_id"`
	OwnerID       string    `json:"owner_id"`
	PaymentStatus string    `json:"payment_status"`
	ChangedAt     time.Time `json:"changed_at"`
}

func eventItems(items []domain.OrderItem) []EventItem {
	out := make([]EventItem, len(items))
	for i, it := range items {
		out[i] = EventItem{
			ProductID:   it.ProductID,
			ProductName: it.ProductName,
			Quantity:    it.Quantity,
			UnitPrice:   it.UnitPrice.StringFixed(2),
		}
	}
	return out
}

func newOutboxEvent(order *domain.Order, eventType string, payload any, now time.Time) (*repository.OutboxEvent, error) {
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s payload: %w", eventType, err)
	}
	return &repository.OutboxEvent{
		AggregateID: order.ID.String(),
		EventType:   eventType,
		Payload:     payloadJSON,
		CreatedAt:   now,
	}, nil
}
