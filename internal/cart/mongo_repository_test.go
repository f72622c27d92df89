package cart

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/fjod/go_cart/storefront/internal/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/mongodb"
)

func setupTestDB(t *testing.T) (*MongoRepository, func()) {
	testcontainers.SkipIfProviderIsNotHealthy(t)
	ctx := context.Background()

	mongoContainer, err := mongodb.Run(ctx, "mongo:7")
	require.NoError(t, err)

	uri, err := mongoContainer.ConnectionString(ctx)
	require.NoError(t, err)

	db, err := ConnectMongoDB(ctx, uri, "testdb")
	require.NoError(t, err)

	repo := NewMongoRepository(db)
	require.NoError(t, repo.CreateIndexes(ctx))

	cleanup := func() {
		if err := db.Client().Disconnect(ctx); err != nil {
			t.Logf("failed to disconnect: %s", err)
		}
		if err := mongoContainer.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %s", err)
		}
	}

	return repo, cleanup
}

func TestMongo_GetNotFound(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()

	cart, err := repo.Get(context.Background(), "nonexistent")
	assert.ErrorIs(t, err, ErrCartNotFound)
	assert.Nil(t, cart)
}

func TestMongo_GetOrCreate_Idempotent(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	first, err := repo.GetOrCreate(ctx, "user:1")
	require.NoError(t, err)
	second, err := repo.GetOrCreate(ctx, "user:1")
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Empty(t, second.Lines)
	assert.Equal(t, int64(0), second.Version)
}

func TestMongo_UpdateKeepsDecimalPrice(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)

	_, err := repo.Update(ctx, "user:1", func(c *domain.Cart) error {
		c.Lines = append(c.Lines, domain.CartLine{
			ID:                "line-1",
			ProductID:         1,
			Quantity:          3,
			UnitPriceSnapshot: decimal.RequireFromString("999.99"),
			AddedAt:           now,
			UpdatedAt:         now,
		})
		return nil
	})
	require.NoError(t, err)

	cart, err := repo.Get(ctx, "user:1")
	require.NoError(t, err)
	require.Len(t, cart.Lines, 1)
	assert.Equal(t, int64(1), cart.Version)
	assert.Equal(t, 3, cart.Lines[0].Quantity)
	assert.Equal(t, "999.99", cart.Lines[0].UnitPriceSnapshot.String())
}

func TestMongo_ConcurrentUpdatesAllLand(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	_, err := repo.GetOrCreate(ctx, "user:1")
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := repo.Update(ctx, "user:1", func(c *domain.Cart) error {
				if line := c.LineForProduct(1); line != nil {
					line.Quantity++
					return nil
				}
				c.Lines = append(c.Lines, domain.CartLine{ID: "line-1", ProductID: 1, Quantity: 1})
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	cart, err := repo.Get(ctx, "user:1")
	require.NoError(t, err)
	require.Len(t, cart.Lines, 1)
	assert.Equal(t, 20, cart.Lines[0].Quantity)
	assert.Equal(t, int64(20), cart.Version)
}
