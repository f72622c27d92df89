package domain

import (
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckQuantity(t *testing.T) {
	tests := []struct {
		name      string
		requested int
		available int
		wantErr   error
	}{
		{"within stock", 3, 10, nil},
		{"exactly stock", 10, 10, nil},
		{"zero", 0, 10, ErrInvalidQuantity},
		{"negative", -2, 10, ErrInvalidQuantity},
		{"above stock", 11, 10, ErrInsufficientStock},
		{"no stock", 1, 0, ErrInsufficientStock},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := CheckQuantity(7, tt.requested, tt.available)
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestCheckQuantity_ReportsNumbers(t *testing.T) {
	err := CheckQuantity(7, 12, 10)

	var stockErr *InsufficientStockError
	require.True(t, errors.As(err, &stockErr))
	assert.Equal(t, int64(7), stockErr.ProductID)
	assert.Equal(t, 12, stockErr.Requested)
	assert.Equal(t, 10, stockErr.Available)
}

func TestNewOrder_ComputesTotalOnce(t *testing.T) {
	now := time.Date(2025, 3, 1, 10, 30, 0, 0, time.UTC)
	items := []OrderItem{
		{ProductID: 1, ProductName: "Laptop", Quantity: 2, UnitPrice: decimal.RequireFromString("10.00")},
		{ProductID: 2, ProductName: "Mouse", Quantity: 1, UnitPrice: decimal.RequireFromString("5.50")},
	}

	order, err := NewOrder("user:1", items, now)
	require.NoError(t, err)

	assert.True(t, order.TotalAmount.Equal(decimal.RequireFromString("25.50")))
	assert.Equal(t, OrderStatusPending, order.Status)
	assert.Equal(t, PaymentStatusPending, order.PaymentStatus)
	assert.Equal(t, 3, order.ItemCount())
	assert.Regexp(t, regexp.MustCompile(`^ORD-20250301103000-[0-9a-f]{6}$`), order.Number)

	// caller's slice is not shared with the order
	items[0].UnitPrice = decimal.RequireFromString("999")
	assert.True(t, order.TotalAmount.Equal(decimal.RequireFromString("25.50")))
	assert.True(t, order.Items[0].UnitPrice.Equal(decimal.RequireFromString("10.00")))
}

func TestNewOrder_Empty(t *testing.T) {
	_, err := NewOrder("user:1", nil, time.Now())
	assert.ErrorIs(t, err, ErrEmptyCart)
}

func TestOrder_IsCancellable(t *testing.T) {
	tests := []struct {
		status  OrderStatus
		payment PaymentStatus
		want    bool
	}{
		{OrderStatusPending, PaymentStatusPending, true},
		{OrderStatusPending, PaymentStatusPaid, true},
		{OrderStatusConfirmed, PaymentStatusPending, true},
		{OrderStatusConfirmed, PaymentStatusPaid, false},
		{OrderStatusProcessing, PaymentStatusPending, false},
		{OrderStatusShipped, PaymentStatusPaid, false},
		{OrderStatusCancelled, PaymentStatusPending, false},
	}

	for _, tt := range tests {
		o := &Order{Status: tt.status, PaymentStatus: tt.payment}
		assert.Equal(t, tt.want, o.IsCancellable(), "%s/%s", tt.status, tt.payment)
	}
}

func TestCanTransition(t *testing.T) {
	assert.True(t, CanTransition(OrderStatusPending, OrderStatusConfirmed))
	assert.True(t, CanTransition(OrderStatusConfirmed, OrderStatusProcessing))
	assert.True(t, CanTransition(OrderStatusProcessing, OrderStatusShipped))
	assert.True(t, CanTransition(OrderStatusShipped, OrderStatusDelivered))
	assert.True(t, CanTransition(OrderStatusDelivered, OrderStatusReturned))
	assert.True(t, CanTransition(OrderStatusConfirmed, OrderStatusCancelled))

	assert.False(t, CanTransition(OrderStatusPending, OrderStatusShipped))
	assert.False(t, CanTransition(OrderStatusShipped, OrderStatusCancelled))
	assert.False(t, CanTransition(OrderStatusCancelled, OrderStatusPending))
	assert.False(t, CanTransition(OrderStatusReturned, OrderStatusDelivered))
}

func TestParseOrderStatus(t *testing.T) {
	st, err := ParseOrderStatus(" shipped ")
	require.NoError(t, err)
	assert.Equal(t, OrderStatusShipped, st)

	_, err = ParseOrderStatus("LOST")
	assert.ErrorIs(t, err, ErrInvalidStatus)

	ps, err := ParsePaymentStatus("paid")
	require.NoError(t, err)
	assert.Equal(t, PaymentStatusPaid, ps)

	_, err = ParsePaymentStatus("maybe")
	assert.ErrorIs(t, err, ErrInvalidStatus)
}

func TestCart_Aggregates(t *testing.T) {
	c := NewCart("c1", "user:1", time.Now())
	c.Lines = append(c.Lines,
		CartLine{ID: "a", ProductID: 1, Quantity: 2, UnitPriceSnapshot: decimal.RequireFromString("3.25")},
		CartLine{ID: "b", ProductID: 2, Quantity: 1, UnitPriceSnapshot: decimal.RequireFromString("1.50")},
	)

	assert.Equal(t, 3, c.ItemCount())
	assert.True(t, c.Subtotal().Equal(decimal.RequireFromString("8.00")))
	assert.NotNil(t, c.LineForProduct(2))
	assert.Nil(t, c.LineForProduct(3))

	cp := c.Clone()
	cp.Lines[0].Quantity = 9
	assert.Equal(t, 2, c.Lines[0].Quantity)

	assert.True(t, c.RemoveLine("a"))
	assert.False(t, c.RemoveLine("a"))
	assert.Len(t, c.Lines, 1)
}

func TestNewStatusChange_Comment(t *testing.T) {
	ch := NewStatusChange([16]byte{}, OrderStatusPending, OrderStatusConfirmed, time.Now())
	assert.Equal(t, "Status changed from PENDING to CONFIRMED", ch.Comment)
}
