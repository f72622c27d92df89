package repository

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/fjod/go_cart/storefront/internal/domain"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupSQLiteRepo(t *testing.T) *Repository {
	t.Helper()

	repo, err := NewSQLiteRepository(filepath.Join(t.TempDir(), "storefront.db"))
	require.NoError(t, err)
	require.NoError(t, repo.RunMigrations("./migrations"))

	t.Cleanup(func() { repo.Close() })
	return repo
}

func newTestOrder(t *testing.T, ownerID string) *domain.Order {
	t.Helper()
	order, err := domain.NewOrder(ownerID, []domain.OrderItem{
		{ProductID: 1, ProductName: "Laptop", Quantity: 1, UnitPrice: decimal.RequireFromString("999.99")},
		{ProductID: 2, ProductName: "Mouse", Quantity: 2, UnitPrice: decimal.RequireFromString("29.99")},
	}, time.Now().UTC().Truncate(time.Millisecond))
	require.NoError(t, err)
	return order
}

func createOrder(t *testing.T, repo OrderRepository, order *domain.Order) {
	t.Helper()
	err := repo.RunInTx(context.Background(), func(ctx context.Context, tx Tx) error {
		return tx.CreateOrder(ctx, order)
	})
	require.NoError(t, err)
}

func TestSQLite_SeededProducts(t *testing.T) {
	repo := setupSQLiteRepo(t)

	p, err := repo.GetProduct(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, "Laptop", p.Name)
	assert.True(t, p.Price.Equal(decimal.RequireFromString("999.99")))
	assert.Equal(t, 100, p.Stock)
	assert.True(t, p.Active)

	products, err := repo.ListProducts(context.Background())
	require.NoError(t, err)
	assert.Len(t, products, 5)

	_, err = repo.GetProduct(context.Background(), 404)
	assert.ErrorIs(t, err, domain.ErrProductNotFound)
}

func TestSQLite_CreateAndGetOrder(t *testing.T) {
	repo := setupSQLiteRepo(t)
	ctx := context.Background()
	order := newTestOrder(t, "user:1")

	createOrder(t, repo, order)

	fetched, err := repo.GetOrder(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, order.ID, fetched.ID)
	assert.Equal(t, order.Number, fetched.Number)
	assert.Equal(t, "user:1", fetched.OwnerID)
	assert.True(t, order.TotalAmount.Equal(fetched.TotalAmount))
	assert.Equal(t, domain.OrderStatusPending, fetched.Status)
	assert.Equal(t, domain.PaymentStatusPending, fetched.PaymentStatus)
	assert.Nil(t, fetched.CancelledAt)
	require.Len(t, fetched.Items, 2)
	assert.Equal(t, int64(1), fetched.Items[0].ProductID)
	assert.Equal(t, 2, fetched.Items[1].Quantity)
	assert.True(t, fetched.Items[1].UnitPrice.Equal(decimal.RequireFromString("29.99")))

	history, err := repo.GetStatusHistory(ctx, order.ID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, domain.OrderStatusPending, history[0].To)
}

func TestSQLite_GetOrder_NotFound(t *testing.T) {
	repo := setupSQLiteRepo(t)

	_, err := repo.GetOrder(context.Background(), uuid.New())
	assert.ErrorIs(t, err, domain.ErrOrderNotFound)
}

func TestSQLite_ListOrdersByOwner(t *testing.T) {
	repo := setupSQLiteRepo(t)

	first := newTestOrder(t, "user:1")
	second := newTestOrder(t, "user:1")
	second.CreatedAt = first.CreatedAt.Add(time.Minute)
	other := newTestOrder(t, "user:2")
	createOrder(t, repo, first)
	createOrder(t, repo, second)
	createOrder(t, repo, other)

	orders, err := repo.ListOrdersByOwner(context.Background(), "user:1")
	require.NoError(t, err)
	require.Len(t, orders, 2)
	assert.Equal(t, second.ID, orders[0].ID)
	assert.Equal(t, first.ID, orders[1].ID)
	assert.Len(t, orders[0].Items, 2)
}

func TestSQLite_UpdateOrderStatus_CompareAndSet(t *testing.T) {
	repo := setupSQLiteRepo(t)
	ctx := context.Background()
	order := newTestOrder(t, "user:1")
	createOrder(t, repo, order)
	now := time.Now().UTC()

	err := repo.RunInTx(ctx, func(ctx context.Context, tx Tx) error {
		return tx.UpdateOrderStatus(ctx, order.ID, domain.OrderStatusPending, domain.OrderStatusCancelled, now)
	})
	require.NoError(t, err)

	err = repo.RunInTx(ctx, func(ctx context.Context, tx Tx) error {
		return tx.UpdateOrderStatus(ctx, order.ID, domain.OrderStatusPending, domain.OrderStatusConfirmed, now)
	})
	assert.ErrorIs(t, err, ErrStatusConflict)

	fetched, err := repo.GetOrder(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusCancelled, fetched.Status)
	require.NotNil(t, fetched.CancelledAt)

	history, err := repo.GetStatusHistory(ctx, order.ID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "Status changed from PENDING to CANCELLED", history[1].Comment)
}

func TestSQLite_UpdatePaymentStatus(t *testing.T) {
	repo := setupSQLiteRepo(t)
	ctx := context.Background()
	order := newTestOrder(t, "user:1")
	createOrder(t, repo, order)

	err := repo.RunInTx(ctx, func(ctx context.Context, tx Tx) error {
		return tx.UpdatePaymentStatus(ctx, order.ID, domain.PaymentStatusPaid, time.Now())
	})
	require.NoError(t, err)

	fetched, err := repo.GetOrder(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentStatusPaid, fetched.PaymentStatus)

	err = repo.RunInTx(ctx, func(ctx context.Context, tx Tx) error {
		return tx.UpdatePaymentStatus(ctx, uuid.New(), domain.PaymentStatusPaid, time.Now())
	})
	assert.ErrorIs(t, err, domain.ErrOrderNotFound)
}

func TestSQLite_RunInTx_RollsBackEverything(t *testing.T) {
	repo := setupSQLiteRepo(t)
	ctx := context.Background()
	order := newTestOrder(t, "user:1")
	boom := errors.New("boom")

	err := repo.RunInTx(ctx, func(ctx context.Context, tx Tx) error {
		require.NoError(t, tx.Ledger().Reserve(ctx, 1, 10))
		require.NoError(t, tx.CreateOrder(ctx, order))
		require.NoError(t, tx.AddOutboxEvent(ctx, &OutboxEvent{AggregateID: order.ID.String(), EventType: "order.created", Payload: []byte(`{}`)}))
		return boom
	})
	assert.ErrorIs(t, err, boom)

	_, err = repo.GetOrder(ctx, order.ID)
	assert.ErrorIs(t, err, domain.ErrOrderNotFound)

	p, err := repo.GetProduct(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 100, p.Stock)

	events, err := repo.GetUnprocessedEvents(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestSQLite_Outbox(t *testing.T) {
	repo := setupSQLiteRepo(t)
	ctx := context.Background()

	err := repo.RunInTx(ctx, func(ctx context.Context, tx Tx) error {
		for _, typ := range []string{"order.created", "order.cancelled"} {
			if err := tx.AddOutboxEvent(ctx, &OutboxEvent{AggregateID: "agg-1", EventType: typ, Payload: []byte(`{"a":1}`)}); err != nil {
				return err
			}
		}
		return nil
	})
	require.NoError(t, err)

	events, err := repo.GetUnprocessedEvents(ctx, 10)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "order.created", events[0].EventType)
	assert.JSONEq(t, `{"a":1}`, string(events[0].Payload))

	require.NoError(t, repo.MarkEventAsProcessed(ctx, events[0].ID))

	events, err = repo.GetUnprocessedEvents(ctx, 10)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "order.cancelled", events[0].EventType)
}
