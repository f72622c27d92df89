package order

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/fjod/go_cart/storefront/internal/domain"
	"github.com/fjod/go_cart/storefront/internal/metrics"
	"github.com/fjod/go_cart/storefront/internal/repository"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// CancelPolicy decides which orders CancelOrder accepts.
type CancelPolicy string

const (
	// CancelPendingOnly accepts only PENDING orders.
	CancelPendingOnly CancelPolicy = "pending_only"
	// CancelUnpaidConfirmed also accepts CONFIRMED orders that are not paid
	// (domain.Order.IsCancellable).
	CancelUnpaidConfirmed CancelPolicy = "unpaid_confirmed"
)

func ParseCancelPolicy(s string) (CancelPolicy, error) {
	switch p := CancelPolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case "", CancelPendingOnly:
		return CancelPendingOnly, nil
	case CancelUnpaidConfirmed:
		return p, nil
	default:
		return "", fmt.Errorf("unknown cancel policy %q", s)
	}
}

type Options struct {
	CancelPolicy CancelPolicy
	// StrictTransitions restricts UpdateStatus to domain.CanTransition.
	StrictTransitions bool
}

// CartSource is the part of the cart service checkout needs.
type CartSource interface {
	Snapshot(ctx context.Context, ownerID string) (*domain.Cart, error)
	// ClearIfUnchanged returns cart.ErrCartChanged when the cart moved past
	// version.
	ClearIfUnchanged(ctx context.Context, ownerID string, version int64) error
}

type Service struct {
	repo    repository.OrderRepository
	carts   CartSource
	opts    Options
	metrics *metrics.Collector
	log     logrus.FieldLogger
	now     func() time.Time
}

func NewService(repo repository.OrderRepository, carts CartSource, opts Options, m *metrics.Collector, log logrus.FieldLogger) *Service {
	if opts.CancelPolicy == "" {
		opts.CancelPolicy = CancelPendingOnly
	}
	return &Service{
		repo:    repo,
		carts:   carts,
		opts:    opts,
		metrics: m,
		log:     log,
		now:     time.Now,
	}
}

func (s *Service) GetOrder(ctx context.Context, id uuid.UUID) (*domain.Order, error) {
	return s.repo.GetOrder(ctx, id)
}

// ListOrders returns the owner's orders, newest first.
func (s *Service) ListOrders(ctx context.Context, ownerID string) ([]*domain.Order, error) {
	return s.repo.ListOrdersByOwner(ctx, ownerID)
}

func (s *Service) GetStatusHistory(ctx context.Context, id uuid.UUID) ([]domain.StatusChange, error) {
	if _, err := s.repo.GetOrder(ctx, id); err != nil {
		return nil, err
	}
	return s.repo.GetStatusHistory(ctx, id)
}
