package cart

import (
	"context"
	"errors"

	"storefront/internal/domain"
)

// Storage persists one serialized item list per cart key.
// Consumers define this interface, not the backends.
type Storage interface {
	Load(ctx context.Context, key string) ([]domain.CartItem, error)
	Save(ctx context.Context, key string, items []domain.CartItem) error
	Delete(ctx context.Context, key string) error
}

var ErrCartNotFound = errors.New("cart not found")
