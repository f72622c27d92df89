package cart

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/fjod/go_cart/storefront/internal/cache"
	"github.com/fjod/go_cart/storefront/internal/domain"
	"github.com/fjod/go_cart/storefront/internal/logger"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
)

// ProductCatalog is the read side of the catalog the cart validates against.
type ProductCatalog interface {
	GetProduct(ctx context.Context, id int64) (*domain.Product, error)
}

// Service checks quantities against live stock but never reserves it;
// reservation happens only when an order is placed.
type Service struct {
	repo    Repository
	cache   cache.CartCache
	catalog ProductCatalog
	log     logrus.FieldLogger
	sfg     singleflight.Group // Prevents cache stampede
	now     func() time.Time

	// stale holds owners whose cached cart could not be overwritten or
	// deleted. Their reads go to the store until a cache write succeeds.
	stale sync.Map
}

func NewService(repo Repository, c cache.CartCache, catalog ProductCatalog, log logrus.FieldLogger) *Service {
	if c == nil {
		c = cache.NopCache{}
	}
	return &Service{
		repo:    repo,
		cache:   c,
		catalog: catalog,
		log:     log,
		now:     time.Now,
	}
}

// GetOrCreate returns the owner's cart, serving from cache when possible.
func (s *Service) GetOrCreate(ctx context.Context, ownerID string) (*domain.Cart, error) {
	v, err, _ := s.sfg.Do(ownerID, func() (interface{}, error) {
		if _, dirty := s.stale.Load(ownerID); !dirty {
			cart, err := s.cache.Get(ctx, ownerID)
			if err == nil {
				return cart, nil
			}
			if !errors.Is(err, cache.ErrCacheMiss) {
				logger.FromContext(ctx, s.log).WithError(err).Debug("cart cache get failed")
			}
		}

		cart, err := s.repo.GetOrCreate(ctx, ownerID)
		if err != nil {
			return nil, err
		}

		go s.storeInCache(ownerID, cart.Clone())
		return cart, nil
	})
	if err != nil {
		return nil, err
	}

	// callers sharing a flight must not share the struct
	return v.(*domain.Cart).Clone(), nil
}

// Snapshot reads the cart from the store, bypassing the cache. A missing
// cart is returned as an empty one.
func (s *Service) Snapshot(ctx context.Context, ownerID string) (*domain.Cart, error) {
	cart, err := s.repo.Get(ctx, ownerID)
	if errors.Is(err, ErrCartNotFound) {
		return domain.NewCart("", ownerID, s.now()), nil
	}
	if err != nil {
		return nil, err
	}
	return cart, nil
}

func (s *Service) AddItem(ctx context.Context, ownerID string, productID int64, quantity int) (*domain.CartLine, error) {
	if quantity < 1 {
		return nil, domain.ErrInvalidQuantity
	}

	product, err := s.catalog.GetProduct(ctx, productID)
	if err != nil {
		return nil, err
	}
	if !product.Active {
		return nil, fmt.Errorf("%w: product %d is not active", domain.ErrProductNotFound, productID)
	}

	var added domain.CartLine
	cart, err := s.repo.Update(ctx, ownerID, func(c *domain.Cart) error {
		now := s.now()
		if line := c.LineForProduct(productID); line != nil {
			if err := domain.CheckQuantity(productID, line.Quantity+quantity, product.Stock); err != nil {
				return err
			}
			line.Quantity += quantity
			line.UpdatedAt = now
			added = *line
			return nil
		}

		if err := domain.CheckQuantity(productID, quantity, product.Stock); err != nil {
			return err
		}
		added = domain.CartLine{
			ID:                uuid.NewString(),
			ProductID:         productID,
			Quantity:          quantity,
			UnitPriceSnapshot: product.Price,
			AddedAt:           now,
			UpdatedAt:         now,
		}
		c.Lines = append(c.Lines, added)
		return nil
	})
	if err != nil {
		logger.FromContext(ctx, s.log).WithFields(logrus.Fields{
			"owner_id":   ownerID,
			"product_id": productID,
			"quantity":   quantity,
		}).WithError(err).Info("add item rejected")
		return nil, err
	}

	s.storeInCache(ownerID, cart)
	return &added, nil
}

func (s *Service) UpdateItemQuantity(ctx context.Context, ownerID, lineID string, quantity int) error {
	if quantity < 1 {
		return domain.ErrInvalidQuantity
	}

	cart, err := s.repo.Update(ctx, ownerID, func(c *domain.Cart) error {
		line := c.Line(lineID)
		if line == nil {
			return domain.ErrLineNotFound
		}
		product, err := s.catalog.GetProduct(ctx, line.ProductID)
		if err != nil {
			return err
		}
		if err := domain.CheckQuantity(line.ProductID, quantity, product.Stock); err != nil {
			return err
		}
		line.Quantity = quantity
		line.UpdatedAt = s.now()
		return nil
	})
	if err != nil {
		return err
	}

	s.storeInCache(ownerID, cart)
	return nil
}

func (s *Service) RemoveItem(ctx context.Context, ownerID, lineID string) error {
	cart, err := s.repo.Update(ctx, ownerID, func(c *domain.Cart) error {
		if !c.RemoveLine(lineID) {
			return domain.ErrLineNotFound
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.storeInCache(ownerID, cart)
	return nil
}

// Clear empties the cart. The cart document itself is kept.
func (s *Service) Clear(ctx context.Context, ownerID string) error {
	cart, err := s.repo.Update(ctx, ownerID, func(c *domain.Cart) error {
		c.Lines = []domain.CartLine{}
		return nil
	})
	if err != nil {
		return err
	}

	s.storeInCache(ownerID, cart)
	return nil
}

// ClearIfUnchanged empties the cart only if it is still at version, so lines
// added after a checkout snapshot survive. Returns ErrCartChanged otherwise.
func (s *Service) ClearIfUnchanged(ctx context.Context, ownerID string, version int64) error {
	cart, err := s.repo.Update(ctx, ownerID, func(c *domain.Cart) error {
		if c.Version != version {
			return ErrCartChanged
		}
		c.Lines = []domain.CartLine{}
		return nil
	})
	if err != nil {
		return err
	}

	s.storeInCache(ownerID, cart)
	return nil
}

func (s *Service) storeInCache(ownerID string, cart *domain.Cart) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	err := s.cache.Set(ctx, ownerID, cart)
	if err == nil {
		s.stale.Delete(ownerID)
		return
	}
	s.log.WithField("owner_id", ownerID).WithError(err).Warn("cart cache set failed")

	// readers fall back to the store on a miss
	if errDel := s.cache.Delete(ctx, ownerID); errDel != nil {
		s.log.WithField("owner_id", ownerID).WithError(errDel).Warn("cart cache invalidate failed")
		s.stale.Store(ownerID, struct{}{})
		return
	}
	s.stale.Delete(ownerID)
}
