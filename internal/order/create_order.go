package order

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	cartpkg "github.com/fjod/go_cart/storefront/internal/cart"
	"github.com/fjod/go_cart/storefront/internal/domain"
	"github.com/fjod/go_cart/storefront/internal/logger"
	"github.com/fjod/go_cart/storefront/internal/metrics"
	"github.com/fjod/go_cart/storefront/internal/repository"
	"github.com/fjod/go_cart/storefront/internal/stock"
	"github.com/sirupsen/logrus"
)

// CreateOrder turns the owner's cart into a pending order. Stock for every
// line is reserved in ascending product id order; if any line fails, the
// reservations already taken are released and no order is stored.
func (s *Service) CreateOrder(ctx context.Context, ownerID string) (*domain.Order, error) {
	start := time.Now()
	log := logger.FromContext(ctx, s.log).WithField("owner_id", ownerID)

	cart, err := s.carts.Snapshot(ctx, ownerID)
	if err != nil {
		s.metrics.OrderFailed(metrics.ReasonInternal)
		return nil, fmt.Errorf("failed to load cart: %w", err)
	}
	if cart.IsEmpty() {
		s.metrics.OrderFailed(metrics.ReasonEmptyCart)
		return nil, domain.ErrEmptyCart
	}

	lines := make([]domain.CartLine, len(cart.Lines))
	copy(lines, cart.Lines)
	sort.Slice(lines, func(i, j int) bool { return lines[i].ProductID < lines[j].ProductID })

	var order *domain.Order
	err = s.repo.RunInTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		ledger := tx.Ledger()
		reserved := make([]domain.CartLine, 0, len(lines))
		done := false
		defer func() {
			if !done {
				releaseReserved(ctx, ledger, reserved, log)
			}
		}()

		for _, line := range lines {
			if err := ledger.Reserve(ctx, line.ProductID, line.Quantity); err != nil {
				if errors.Is(err, domain.ErrInsufficientStock) {
					s.metrics.ReservationFailed()
				}
				return err
			}
			reserved = append(reserved, line)
		}

		items := make([]domain.OrderItem, 0, len(lines))
		for _, line := range lines {
			product, err := tx.GetProduct(ctx, line.ProductID)
			if err != nil {
				return err
			}
			if !product.Active {
				return fmt.Errorf("%w: product %d is not active", domain.ErrProductNotFound, product.ID)
			}
			items = append(items, domain.OrderItem{
				ProductID:   product.ID,
				ProductName: product.Name,
				Quantity:    line.Quantity,
				UnitPrice:   product.Price,
			})
		}

		o, err := domain.NewOrder(ownerID, items, s.now())
		if err != nil {
			return err
		}
		if err := tx.CreateOrder(ctx, o); err != nil {
			return err
		}

		event, err := newOutboxEvent(o, EventOrderCreated, OrderCreatedEvent{
			OrderID:       o.ID.String(),
			OrderNumber:   o.Number,
			OwnerID:       o.OwnerID,
			CartVersion:   cart.Version,
			Items:         eventItems(o.Items),
			TotalAmount:   o.TotalAmount.StringFixed(2),
			Status:        o.Status.String(),
			PaymentStatus: o.PaymentStatus.String(),
			CreatedAt:     o.CreatedAt,
		}, o.CreatedAt)
		if err != nil {
			return err
		}
		if err := tx.AddOutboxEvent(ctx, event); err != nil {
			return err
		}

		order = o
		done = true
		return nil
	})
	if err != nil {
		s.metrics.OrderFailed(failureReason(err))
		log.WithError(err).Info("checkout failed")
		return nil, err
	}

	log = log.WithFields(logrus.Fields{
		"order_id":     order.ID,
		"order_number": order.Number,
		"total_amount": order.TotalAmount.StringFixed(2),
	})

	// lines added after the snapshot stay in the cart
	err = s.carts.ClearIfUnchanged(ctx, ownerID, cart.Version)
	switch {
	case errors.Is(err, cartpkg.ErrCartChanged):
		log.WithField("cart_version", cart.Version).Debug("cart changed during checkout, kept")
	case err != nil:
		// the order.created consumer clears the cart from the outbox event
		log.WithError(err).Warn("failed to clear cart after checkout")
	}

	s.metrics.OrderCreated(time.Since(start))
	log.Info("order created")
	return order, nil
}

func releaseReserved(ctx context.Context, ledger stock.Ledger, reserved []domain.CartLine, log logrus.FieldLogger) {
	ctx = context.WithoutCancel(ctx)
	for i := len(reserved) - 1; i >= 0; i-- {
		line := reserved[i]
		if err := ledger.Release(ctx, line.ProductID, line.Quantity); err != nil {
			log.WithFields(logrus.Fields{
				"product_id": line.ProductID,
				"quantity":   line.Quantity,
			}).WithError(err).Warn("failed to release reservation")
		}
	}
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, domain.ErrEmptyCart):
		return metrics.ReasonEmptyCart
	case errors.Is(err, domain.ErrInsufficientStock):
		return metrics.ReasonInsufficientStock
	case errors.Is(err, domain.ErrProductNotFound):
		return metrics.ReasonProductNotFound
	default:
		return metrics.ReasonInternal
	}
}
