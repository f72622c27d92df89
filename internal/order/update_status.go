package order

import (
	"context"

	"github.com/fjod/go_cart/storefront/internal/domain"
	"github.com/fjod/go_cart/storefront/internal/logger"
	"github.com/fjod/go_cart/storefront/internal/repository"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// UpdateStatus is the administrative status change. Any known status is
// accepted unless StrictTransitions is set. Moving to CANCELLED restocks like
// CancelOrder; leaving CANCELLED is refused because the stock is already back.
func (s *Service) UpdateStatus(ctx context.Context, id uuid.UUID, newStatus string) error {
	to, err := domain.ParseOrderStatus(newStatus)
	if err != nil {
		return err
	}
	log := logger.FromContext(ctx, s.log).WithField("order_id", id)

	var from domain.OrderStatus
	err = s.repo.RunInTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		order, err := tx.GetOrderForUpdate(ctx, id)
		if err != nil {
			return err
		}
		from = order.Status
		if from == to {
			return nil
		}
		if from == domain.OrderStatusCancelled {
			return &domain.IllegalTransitionError{From: from, To: to}
		}
		if s.opts.StrictTransitions && !domain.CanTransition(from, to) {
			return &domain.IllegalTransitionError{From: from, To: to}
		}

		if to == domain.OrderStatusCancelled {
			return s.cancel(ctx, tx, order, log)
		}

		now := s.now()
		if err := tx.UpdateOrderStatus(ctx, id, from, to, now); err != nil {
			return err
		}
		event, err := newOutboxEvent(order, EventOrderStatusChanged, StatusChangedEvent{
			OrderID:   order.ID.String(),
			OwnerID:   order.OwnerID,
			From:      from.String(),
			To:        to.String(),
			ChangedAt: now,
		}, now)
		if err != nil {
			return err
		}
		return tx.AddOutboxEvent(ctx, event)
	})
	if err != nil {
		return err
	}

	if from != to {
		if to == domain.OrderStatusCancelled {
			s.metrics.OrderCancelled()
		}
		log.WithFields(logrus.Fields{"from": from, "to": to}).Info("order status changed")
	}
	return nil
}

// UpdatePaymentStatus records the payment collaborator's outcome. It does not
// touch the order status.
func (s *Service) UpdatePaymentStatus(ctx context.Context, id uuid.UUID, newStatus string) error {
	status, err := domain.ParsePaymentStatus(newStatus)
	if err != nil {
		return err
	}

	return s.repo.RunInTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		order, err := tx.GetOrderForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if order.PaymentStatus == status {
			return nil
		}

		now := s.now()
		if err := tx.UpdatePaymentStatus(ctx, id, status, now); err != nil {
			return err
		}
		event, err := newOutboxEvent(order, EventOrderPaymentStatusChanged, PaymentStatusChangedEvent{
			OrderID:       order.ID.String(),
			OwnerID:       order.OwnerID,
			PaymentStatus: status.String(),
			ChangedAt:     now,
		}, now)
		if err != nil {
			return err
		}
		return tx.AddOutboxEvent(ctx, event)
	})
}
