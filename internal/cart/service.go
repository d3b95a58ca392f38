package cart

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"storefront/internal/domain"
)

// Notifier receives cart snapshots for the abandoned-cart funnel. Calls must
// not block and must never fail the mutation that triggered them.
type Notifier interface {
	Record(userID string, items []domain.CartItem)
}

// Service owns all cart mutations. Every mutation goes through the line
// identity rule in domain.Cart; callers never splice item lists directly.
type Service struct {
	storage  Storage
	notifier Notifier
	log      zerolog.Logger
}

func NewService(storage Storage, notifier Notifier, log zerolog.Logger) *Service {
	return &Service{
		storage:  storage,
		notifier: notifier,
		log:      log,
	}
}

// Get returns the cart for the key, or an empty cart when none is stored.
func (s *Service) Get(ctx context.Context, key string) (*domain.Cart, error) {
	items, err := s.storage.Load(ctx, key)
	if err != nil {
		if errors.Is(err, ErrCartNotFound) {
			return &domain.Cart{}, nil
		}
		return nil, fmt.Errorf("load cart: %w", err)
	}
	return &domain.Cart{Items: items}, nil
}

// AddItem merges or appends the item and persists the result. The incoming
// quantity is ignored; merge semantics always add one.
func (s *Service) AddItem(ctx context.Context, key, userID string, item domain.CartItem) (*domain.Cart, error) {
	return s.mutate(ctx, key, userID, func(c *domain.Cart) {
		c.Add(item)
	})
}

// RemoveItem drops the matched line. Removing an absent line is not an error.
func (s *Service) RemoveItem(ctx context.Context, key, userID, productSlug, packageID string) (*domain.Cart, error) {
	return s.mutate(ctx, key, userID, func(c *domain.Cart) {
		c.Remove(productSlug, packageID)
	})
}

// UpdateQuantity sets the quantity on the matched line; zero or less removes it.
func (s *Service) UpdateQuantity(ctx context.Context, key, userID, productSlug string, quantity int, packageID string) (*domain.Cart, error) {
	return s.mutate(ctx, key, userID, func(c *domain.Cart) {
		c.SetQuantity(productSlug, quantity, packageID)
	})
}

// Clear empties the cart unconditionally.
func (s *Service) Clear(ctx context.Context, key, userID string) error {
	err := s.storage.Delete(ctx, key)
	if err != nil && !errors.Is(err, ErrCartNotFound) {
		return fmt.Errorf("clear cart: %w", err)
	}

	s.notify(userID, nil)
	return nil
}

func (s *Service) mutate(ctx context.Context, key, userID string, fn func(*domain.Cart)) (*domain.Cart, error) {
	c, err := s.Get(ctx, key)
	if err != nil {
		return nil, err
	}

	fn(c)

	if err := s.storage.Save(ctx, key, c.Items); err != nil {
		return nil, fmt.Errorf("save cart: %w", err)
	}

	s.notify(userID, c.Items)
	return c, nil
}

// notify mirrors the snapshot for authenticated users only. The in-session
// cart stays authoritative; the mirror is advisory.
func (s *Service) notify(userID string, items []domain.CartItem) {
	if userID == "" || s.notifier == nil {
		return
	}
	s.notifier.Record(userID, items)
}
