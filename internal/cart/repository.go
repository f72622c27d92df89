package cart

import (
	"context"
	"errors"

	"github.com/fjod/go_cart/storefront/internal/domain"
)

var (
	ErrCartNotFound     = errors.New("cart not found")
	ErrCartChanged      = errors.New("cart changed since it was read")
	ErrConcurrentUpdate = errors.New("cart update lost too many races")
)

// Repository persists one cart per owner.
type Repository interface {
	// GetOrCreate returns the owner's cart, creating an empty one if needed.
	GetOrCreate(ctx context.Context, ownerID string) (*domain.Cart, error)
	Get(ctx context.Context, ownerID string) (*domain.Cart, error)

	// Update runs fn against a copy of the current cart and stores the result
	// atomically with a bumped version. If fn returns an error nothing is
	// written and the error is returned unchanged.
	Update(ctx context.Context, ownerID string, fn func(cart *domain.Cart) error) (*domain.Cart, error)
}
