package order

import (
	"context"
	"errors"
	"fmt"

	"github.com/fjod/go_cart/storefront/internal/domain"
	"github.com/fjod/go_cart/storefront/internal/logger"
	"github.com/fjod/go_cart/storefront/internal/repository"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// CancelOrder cancels the order and restocks every item. It returns false,
// with nothing changed, when the cancel policy does not accept the order's
// current status or another request changed the status first.
func (s *Service) CancelOrder(ctx context.Context, id uuid.UUID) (bool, error) {
	log := logger.FromContext(ctx, s.log).WithField("order_id", id)

	var cancelled bool
	err := s.repo.RunInTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		order, err := tx.GetOrderForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if !s.cancellable(order) {
			log.WithField("status", order.Status).Info("order not cancellable")
			return nil
		}

		err = s.cancel(ctx, tx, order, log)
		if errors.Is(err, repository.ErrStatusConflict) {
			return nil
		}
		if err != nil {
			return err
		}
		cancelled = true
		return nil
	})
	if err != nil {
		return false, err
	}

	if cancelled {
		s.metrics.OrderCancelled()
		log.Info("order cancelled")
	}
	return cancelled, nil
}

func (s *Service) cancellable(order *domain.Order) bool {
	if s.opts.CancelPolicy == CancelUnpaidConfirmed {
		return order.IsCancellable()
	}
	return order.Status == domain.OrderStatusPending
}

// cancel moves order to CANCELLED and releases its items inside tx. The
// status write comes first so a concurrent cancel loses the race before any
// stock moves.
func (s *Service) cancel(ctx context.Context, tx repository.Tx, order *domain.Order, log logrus.FieldLogger) error {
	now := s.now()
	if err := tx.UpdateOrderStatus(ctx, order.ID, order.Status, domain.OrderStatusCancelled, now); err != nil {
		return err
	}

	ledger := tx.Ledger()
	restocked := make([]domain.OrderItem, 0, len(order.Items))
	for _, item := range order.Items {
		err := ledger.Release(ctx, item.ProductID, item.Quantity)
		if errors.Is(err, domain.ErrProductNotFound) {
			log.WithField("product_id", item.ProductID).Warn("skipping restock of deleted product")
			continue
		}
		if err != nil {
			return fmt.Errorf("failed to restock product %d: %w", item.ProductID, err)
		}
		restocked = append(restocked, item)
	}

	event, err := newOutboxEvent(order, EventOrderCancelled, OrderCancelledEvent{
		OrderID:     order.ID.String(),
		OrderNumber: order.Number,
		OwnerID:     order.OwnerID,
		Restocked:   eventItems(restocked),
		CancelledAt: now,
	}, now)
	if err != nil {
		return err
	}
	return tx.AddOutboxEvent(ctx, event)
}
