package stock

import (
	"context"
)

// Ledger is the only path that mutates product stock.
type Ledger interface {
	// Reserve atomically checks and decrements stock. On insufficient stock
	// it returns *domain.InsufficientStockError and leaves stock unchanged.
	Reserve(ctx context.Context, productID int64, quantity int) error

	// Release atomically increments stock. There is no upper bound.
	Release(ctx context.Context, productID int64, quantity int) error
}
