package stock

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/fjod/go_cart/storefront/internal/domain"
)

// Querier is satisfied by *sql.DB and *sql.Tx.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// SQLLedger mutates the products table with single conditional updates, so
// the check and the decrement happen in one statement.
type SQLLedger struct {
	q Querier
}

func NewSQLLedger(q Querier) *SQLLedger {
	return &SQLLedger{q: q}
}

func (l *SQLLedger) Reserve(ctx context.Context, productID int64, quantity int) error {
	if quantity < 1 {
		return domain.ErrInvalidQuantity
	}

	query := `UPDATE products SET stock = stock - $1, updated_at = $2
	          WHERE id = $3 AND stock >= $4`

	res, err := l.q.ExecContext(ctx, query, quantity, time.Now().UTC(), productID, quantity)
	if err != nil {
		return fmt.Errorf("reserve stock for product %d: %w", productID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("reserve stock rows affected: %w", err)
	}
	if n == 1 {
		return nil
	}

	available, err := l.currentStock(ctx, productID)
	if err != nil {
		return err
	}
	return &domain.InsufficientStockError{
		ProductID: productID,
		Requested: quantity,
		Available: available,
	}
}

func (l *SQLLedger) Release(ctx context.Context, productID int64, quantity int) error {
	if quantity < 1 {
		return domain.ErrInvalidQuantity
	}

	query := `UPDATE products SET stock = stock + $1, updated_at = $2 WHERE id = $3`

	res, err := l.q.ExecContext(ctx, query, quantity, time.Now().UTC(), productID)
	if err != nil {
		return fmt.Errorf("release stock for product %d: %w", productID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("release stock rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: id %d", domain.ErrProductNotFound, productID)
	}
	return nil
}

func (l *SQLLedger) currentStock(ctx context.Context, productID int64) (int, error) {
	var stock int
	err := l.q.QueryRowContext(ctx, `SELECT stock FROM products WHERE id = $1`, productID).Scan(&stock)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("%w: id %d", domain.ErrProductNotFound, productID)
	}
	if err != nil {
		return 0, fmt.Errorf("query stock for product %d: %w", productID, err)
	}
	return stock, nil
}
