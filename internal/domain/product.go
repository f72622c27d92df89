package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Product is the catalog view the pipeline consumes: current price and stock.
type Product struct {
	ID        int64
	Name      string
	Price     decimal.Decimal
	Stock     int
	Active    bool
	UpdatedAt time.Time
}

// CheckQuantity is the single stock rule used by add, merge and update.
// requested is the resulting line quantity, not the delta.
func CheckQuantity(productID int64, requested, available int) error {
	if requested < 1 {
		return ErrInvalidQuantity
	}
	if requested > available {
		return &InsufficientStockError{
			ProductID: productID,
			Requested: requested,
			Available: available,
		}
	}
	return nil
}
