package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/fjod/go_cart/storefront/internal/domain"
	"github.com/fjod/go_cart/storefront/internal/stock"
	"github.com/google/uuid"
	"github.com/lib/pq"
	_ "modernc.org/sqlite"
)

type Dialect string

const (
	DialectPostgres Dialect = "postgres"
	DialectSQLite   Dialect = "sqlite"
)

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Repository stores products, orders and outbox events in PostgreSQL or
// SQLite. Queries are written once with $N placeholders, which both drivers
// accept.
type Repository struct {
	db      *sql.DB
	dialect Dialect
}

func NewRepository(cred *Credentials) (*Repository, error) {
	sslMode := cred.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	psqlconn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cred.Host,
		cred.Port,
		cred.User,
		cred.Password,
		cred.DBName,
		sslMode)

	db, err := sql.Open("postgres", psqlconn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if e2 := db.Ping(); e2 != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", e2)
	}

	db.SetMaxOpenConns(100)
	db.SetMaxIdleConns(10)
	return &Repository{db: db, dialect: DialectPostgres}, nil
}

// NewSQLiteRepository opens a file backed SQLite database. SQLite allows a
// single writer, so the pool is capped at one connection.
func NewSQLiteRepository(dbPath string) (*Repository, error) {
	db, err := sql.Open("sqlite", dbPath+"?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_time_format=sqlite")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	db.SetMaxOpenConns(1)
	return &Repository{db: db, dialect: DialectSQLite}, nil
}

func (r *Repository) Dialect() Dialect {
	return r.dialect
}

func (r *Repository) Close() error {
	return r.db.Close()
}

func (r *Repository) RunInTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	sqlTx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = sqlTx.Rollback()
			panic(p)
		}
	}()

	t := &txn{tx: sqlTx, dialect: r.dialect, ledger: stock.NewSQLLedger(sqlTx)}
	if err := fn(ctx, t); err != nil {
		if rbErr := sqlTx.Rollback(); rbErr != nil {
			return fmt.Errorf("%w (rollback failed: %v)", err, rbErr)
		}
		return err
	}

	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func (r *Repository) GetProduct(ctx context.Context, id int64) (*domain.Product, error) {
	return getProduct(ctx, r.db, id)
}

func (r *Repository) ListProducts(ctx context.Context) ([]*domain.Product, error) {
	query := `SELECT id, name, price, stock, is_active, updated_at FROM products ORDER BY id`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query products: %w", err)
	}
	defer rows.Close()

	var products []*domain.Product
	for rows.Next() {
		p := &domain.Product{}
		if err := rows.Scan(&p.ID, &p.Name, &p.Price, &p.Stock, &p.Active, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan product: %w", err)
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return products, nil
}

func (r *Repository) GetOrder(ctx context.Context, id uuid.UUID) (*domain.Order, error) {
	order, err := getOrder(ctx, r.db, id, "")
	if err != nil {
		return nil, err
	}
	if order.Items, err = getOrderItems(ctx, r.db, order.ID); err != nil {
		return nil, err
	}
	return order, nil
}

func (r *Repository) ListOrdersByOwner(ctx context.Context, ownerID string) ([]*domain.Order, error) {
	query := `SELECT id, order_number, owner_id, total_amount, status, payment_status, created_at, updated_at, cancelled_at
	          FROM orders WHERE owner_id = $1 ORDER BY created_at DESC`

	rows, err := r.db.QueryContext(ctx, query, ownerID)
	if err != nil {
		return nil, fmt.Errorf("query orders by owner: %w", err)
	}

	var orders []*domain.Order
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		orders = append(orders, order)
	}
	// items are loaded after the cursor is closed; SQLite runs on one connection
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	rows.Close()

	for _, order := range orders {
		if order.Items, err = getOrderItems(ctx, r.db, order.ID); err != nil {
			return nil, err
		}
	}
	return orders, nil
}

func (r *Repository) GetStatusHistory(ctx context.Context, id uuid.UUID) ([]domain.StatusChange, error) {
	query := `SELECT order_id, from_status, to_status, comment, created_at
	          FROM order_status_history WHERE order_id = $1 ORDER BY id`

	rows, err := r.db.QueryContext(ctx, query, id)
	if err != nil {
		return nil, fmt.Errorf("query status history: %w", err)
	}
	defer rows.Close()

	var history []domain.StatusChange
	for rows.Next() {
		var ch domain.StatusChange
		if err := rows.Scan(&ch.OrderID, &ch.From, &ch.To, &ch.Comment, &ch.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan status history row: %w", err)
		}
		history = append(history, ch)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return history, nil
}

func (r *Repository) GetUnprocessedEvents(ctx context.Context, limit int) ([]*OutboxEvent, error) {
	query := `SELECT id, aggregate_id, event_type, payload, created_at
	          FROM outbox_events WHERE processed_at IS NULL ORDER BY id LIMIT $1`

	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("query outbox events: %w", err)
	}
	defer rows.Close()

	var events []*OutboxEvent
	for rows.Next() {
		e := &OutboxEvent{}
		if err := rows.Scan(&e.ID, &e.AggregateID, &e.EventType, &e.Payload, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan outbox event: %w", err)
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return events, nil
}

func (r *Repository) MarkEventAsProcessed(ctx context.Context, id int64) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE outbox_events SET processed_at = $1 WHERE id = $2`, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("mark outbox event %d processed: %w", id, err)
	}
	return nil
}

type txn struct {
	tx      *sql.Tx
	dialect Dialect
	ledger  *stock.SQLLedger
}

func (t *txn) Ledger() stock.Ledger {
	return t.ledger
}

func (t *txn) GetProduct(ctx context.Context, id int64) (*domain.Product, error) {
	return getProduct(ctx, t.tx, id)
}

func (t *txn) CreateOrder(ctx context.Context, order *domain.Order) error {
	query := `INSERT INTO orders (id, order_number, owner_id, total_amount, status, payment_status, created_at, updated_at)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := t.tx.ExecContext(ctx, query,
		order.ID,
		order.Number,
		order.OwnerID,
		order.TotalAmount,
		string(order.Status),
		string(order.PaymentStatus),
		order.CreatedAt.UTC(),
		order.UpdatedAt.UTC())
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return ErrDuplicateOrder
		}
		return fmt.Errorf("insert order: %w", err)
	}

	itemQuery := `INSERT INTO order_items (order_id, product_id, product_name, quantity, unit_price)
	              VALUES ($1, $2, $3, $4, $5)`
	for _, item := range order.Items {
		if _, err := t.tx.ExecContext(ctx, itemQuery,
			order.ID, item.ProductID, item.ProductName, item.Quantity, item.UnitPrice); err != nil {
			return fmt.Errorf("insert order item for product %d: %w", item.ProductID, err)
		}
	}

	return insertHistory(ctx, t.tx, domain.NewStatusChange(order.ID, "", order.Status, order.CreatedAt))
}

func (t *txn) GetOrderForUpdate(ctx context.Context, id uuid.UUID) (*domain.Order, error) {
	lock := ""
	if t.dialect == DialectPostgres {
		lock = " FOR UPDATE"
	}
	order, err := getOrder(ctx, t.tx, id, lock)
	if err != nil {
		return nil, err
	}
	if order.Items, err = getOrderItems(ctx, t.tx, order.ID); err != nil {
		return nil, err
	}
	return order, nil
}

func (t *txn) UpdateOrderStatus(ctx context.Context, id uuid.UUID, from, to domain.OrderStatus, now time.Time) error {
	var cancelledAt any
	if to == domain.OrderStatusCancelled {
		cancelledAt = now.UTC()
	}

	query := `UPDATE orders SET status = $1, updated_at = $2, cancelled_at = COALESCE($3, cancelled_at)
	          WHERE id = $4 AND status = $5`

	res, err := t.tx.ExecContext(ctx, query, string(to), now.UTC(), cancelledAt, id, string(from))
	if err != nil {
		return fmt.Errorf("update order status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update order status rows affected: %w", err)
	}
	if n == 0 {
		return ErrStatusConflict
	}

	return insertHistory(ctx, t.tx, domain.NewStatusChange(id, from, to, now))
}

func (t *txn) UpdatePaymentStatus(ctx context.Context, id uuid.UUID, status domain.PaymentStatus, now time.Time) error {
	res, err := t.tx.ExecContext(ctx,
		`UPDATE orders SET payment_status = $1, updated_at = $2 WHERE id = $3`,
		string(status), now.UTC(), id)
	if err != nil {
		return fmt.Errorf("update payment status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update payment status rows affected: %w", err)
	}
	if n == 0 {
		return domain.ErrOrderNotFound
	}
	return nil
}

func (t *txn) AddOutboxEvent(ctx context.Context, event *OutboxEvent) error {
	createdAt := event.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	// payload goes in as text so lib/pq does not send it as bytea
	_, err := t.tx.ExecContext(ctx,
		`INSERT INTO outbox_events (aggregate_id, event_type, payload, created_at) VALUES ($1, $2, $3, $4)`,
		event.AggregateID, event.EventType, string(event.Payload), createdAt.UTC())
	if err != nil {
		return fmt.Errorf("insert outbox event: %w", err)
	}
	return nil
}

func getProduct(ctx context.Context, q querier, id int64) (*domain.Product, error) {
	query := `SELECT id, name, price, stock, is_active, updated_at FROM products WHERE id = $1`

	p := &domain.Product{}
	err := q.QueryRowContext(ctx, query, id).Scan(&p.ID, &p.Name, &p.Price, &p.Stock, &p.Active, &p.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: id %d", domain.ErrProductNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get product %d: %w", id, err)
	}
	return p, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(s rowScanner) (*domain.Order, error) {
	var (
		order       domain.Order
		status      string
		payment     string
		cancelledAt sql.NullTime
	)
	if err := s.Scan(
		&order.ID,
		&order.Number,
		&order.OwnerID,
		&order.TotalAmount,
		&status,
		&payment,
		&order.CreatedAt,
		&order.UpdatedAt,
		&cancelledAt,
	); err != nil {
		return nil, err
	}
	order.Status = domain.OrderStatus(status)
	order.PaymentStatus = domain.PaymentStatus(payment)
	if cancelledAt.Valid {
		t := cancelledAt.Time
		order.CancelledAt = &t
	}
	return &order, nil
}

func getOrder(ctx context.Context, q querier, id uuid.UUID, suffix string) (*domain.Order, error) {
	query := `SELECT id, order_number, owner_id, total_amount, status, payment_status, created_at, updated_at, cancelled_at
	          FROM orders WHERE id = $1` + suffix

	order, err := scanOrder(q.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrOrderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query order by id: %w", err)
	}
	return order, nil
}

func getOrderItems(ctx context.Context, q querier, orderID uuid.UUID) ([]domain.OrderItem, error) {
	query := `SELECT product_id, product_name, quantity, unit_price
	          FROM order_items WHERE order_id = $1 ORDER BY id`

	rows, err := q.QueryContext(ctx, query, orderID)
	if err != nil {
		return nil, fmt.Errorf("query order items: %w", err)
	}
	defer rows.Close()

	var items []domain.OrderItem
	for rows.Next() {
		var item domain.OrderItem
		if err := rows.Scan(&item.ProductID, &item.ProductName, &item.Quantity, &item.UnitPrice); err != nil {
			return nil, fmt.Errorf("scan order item row: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return items, nil
}

func insertHistory(ctx context.Context, q querier, ch domain.StatusChange) error {
	_, err := q.ExecContext(ctx,
		`INSERT INTO order_status_history (order_id, from_status, to_status, comment, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		ch.OrderID, string(ch.From), string(ch.To), ch.Comment, ch.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("insert status history: %w", err)
	}
	return nil
}
