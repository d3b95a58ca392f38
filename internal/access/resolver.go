package access

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"storefront/internal/domain"
)

var ErrNotFound = errors.New("not found")

// User is the authenticated caller as seen by the resolver. A zero ID means
// unauthenticated.
type User struct {
	ID    string
	Admin bool
}

// Repository reads the trial and purchase rows backing access resolution.
type Repository interface {
	// ExpireTrials marks every globally expired trial as expired and
	// returns how many rows changed.
	ExpireTrials(ctx context.Context) (int64, error)
	GetActiveTrial(ctx context.Context, userID, productSlug string) (*domain.Trial, error)
	GetCustomerProduct(ctx context.Context, userID, productSlug string) (*domain.CustomerProduct, error)
	// EnsureGrant provisions a purchase row idempotently (insert-or-ignore).
	EnsureGrant(ctx context.Context, userID, productSlug string) error
}

// Resolver answers "does this user have access to this product" with a fixed
// precedence: admin, then active trial, then active purchase/rental. Backend
// failures resolve to denied, never to granted.
type Resolver struct {
	repo Repository
	sfg  singleflight.Group // Coalesces concurrent checks for the same (user, product)
	log  zerolog.Logger
}

func NewResolver(repo Repository, log zerolog.Logger) *Resolver {
	return &Resolver{
		repo: repo,
		log:  log,
	}
}

func (r *Resolver) Resolve(ctx context.Context, user User, productSlug string) (domain.Grant, error) {
	if user.ID == "" {
		return domain.Grant{}, nil
	}

	key := user.ID + ":" + productSlug
	v, err, _ := r.sfg.Do(key, func() (interface{}, error) {
		return r.resolve(ctx, user, productSlug)
	})
	if err != nil {
		return domain.Grant{}, err
	}
	return v.(domain.Grant), nil
}

func (r *Resolver) resolve(ctx context.Context, user User, productSlug string) (domain.Grant, error) {
	if user.Admin {
		// Admins always have access; the grant row is bookkeeping only.
		if err := r.repo.EnsureGrant(ctx, user.ID, productSlug); err != nil {
			r.log.Error().Err(err).Str("user_id", user.ID).Str("product_slug", productSlug).Msg("admin grant provisioning failed")
		}
		return domain.Grant{Granted: true, Type: domain.AccessPurchase}, nil
	}

	// Housekeeping before the trial lookup. Advisory: resolution continues
	// on failure.
	if n, err := r.repo.ExpireTrials(ctx); err != nil {
		r.log.Warn().Err(err).Msg("trial expiry housekeeping failed")
	} else if n > 0 {
		r.log.Debug().Int64("expired", n).Msg("expired stale trials")
	}

	trial, err := r.repo.GetActiveTrial(ctx, user.ID, productSlug)
	switch {
	case err == nil:
		if time.Now().Before(trial.ExpiresAt) {
			exp := trial.ExpiresAt
			return domain.Grant{Granted: true, Type: domain.AccessTrial, ExpiresAt: &exp}, nil
		}
	case !errors.Is(err, ErrNotFound):
		return domain.Grant{}, fmt.Errorf("trial lookup: %w", err)
	}

	product, err := r.repo.GetCustomerProduct(ctx, user.ID, productSlug)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return domain.Grant{}, nil
		}
		return domain.Grant{}, fmt.Errorf("customer product lookup: %w", err)
	}

	if !product.IsActive {
		return domain.Grant{}, nil
	}

	accessType := accessTypeFor(product.AcquisitionType)
	if product.AccessExpiresAt == nil {
		if product.AcquisitionType == domain.AcquisitionRental {
			// A rental should carry an expiry; grant anyway but flag it.
			r.log.Warn().Str("user_id", user.ID).Str("product_slug", productSlug).Msg("rental row without expiry")
		}
		return domain.Grant{Granted: true, Type: accessType}, nil
	}

	if time.Now().Before(*product.AccessExpiresAt) {
		exp := *product.AccessExpiresAt
		return domain.Grant{Granted: true, Type: accessType, ExpiresAt: &exp}, nil
	}

	return domain.Grant{}, nil
}

func accessTypeFor(a domain.AcquisitionType) domain.AccessType {
	switch a {
	case domain.AcquisitionRental:
		return domain.AccessRental
	case domain.AcquisitionSubscription:
		return domain.AccessSubscription
	default:
		return domain.AccessPurchase
	}
}
