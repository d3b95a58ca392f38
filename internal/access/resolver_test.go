package access

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storefront/internal/domain"
)

type mockRepo struct {
	m sync.Mutex

	trial      *domain.Trial
	trialErr   error
	product    *domain.CustomerProduct
	productErr error

	expireErr       error
	expireCalls     int
	grantErr        error
	grantedSlugs    []string
	expireBeforeGet bool
}

func (m *mockRepo) ExpireTrials(context.Context) (int64, error) {
	m.m.Lock()
	defer m.m.Unlock()
	m.expireCalls++
	return 0, m.expireErr
}

func (m *mockRepo) GetActiveTrial(_ context.Context, _, _ string) (*domain.Trial, error) {
	m.m.Lock()
	defer m.m.Unlock()
	m.expireBeforeGet = m.expireCalls > 0
	if m.trialErr != nil {
		return nil, m.trialErr
	}
	if m.trial == nil {
		return nil, ErrNotFound
	}
	return m.trial, nil
}

func (m *mockRepo) GetCustomerProduct(_ context.Context, _, _ string) (*domain.CustomerProduct, error) {
	m.m.Lock()
	defer m.m.Unlock()
	if m.productErr != nil {
		return nil, m.productErr
	}
	if m.product == nil {
		return nil, ErrNotFound
	}
	return m.product, nil
}

func (m *mockRepo) EnsureGrant(_ context.Context, _, productSlug string) error {
	m.m.Lock()
	defer m.m.Unlock()
	if m.grantErr != nil {
		return m.grantErr
	}
	m.grantedSlugs = append(m.grantedSlugs, productSlug)
	return nil
}

func newTestResolver(repo *mockRepo) *Resolver {
	return NewResolver(repo, zerolog.Nop())
}

func TestResolve_UnauthenticatedIsDenied(t *testing.T) {
	resolver := newTestResolver(&mockRepo{})

	grant, err := resolver.Resolve(context.Background(), User{}, "ai-chatbot")
	require.NoError(t, err)
	assert.False(t, grant.Granted)
}

func TestResolve_AdminProvisionsGrantAndIsGranted(t *testing.T) {
	repo := &mockRepo{}
	resolver := newTestResolver(repo)

	grant, err := resolver.Resolve(context.Background(), User{ID: "admin1", Admin: true}, "ai-chatbot")
	require.NoError(t, err)
	assert.True(t, grant.Granted)
	assert.Equal(t, domain.AccessPurchase, grant.Type)
	assert.Nil(t, grant.ExpiresAt)
	assert.Equal(t, []string{"ai-chatbot"}, repo.grantedSlugs)
}

func TestResolve_AdminGrantedEvenWhenProvisioningFails(t *testing.T) {
	repo := &mockRepo{grantErr: assert.AnError}
	resolver := newTestResolver(repo)

	grant, err := resolver.Resolve(context.Background(), User{ID: "admin1", Admin: true}, "ai-chatbot")
	require.NoError(t, err)
	assert.True(t, grant.Granted)
}

func TestResolve_ActiveTrialGrantsWithExpiry(t *testing.T) {
	expires := time.Now().Add(time.Second)
	repo := &mockRepo{trial: &domain.Trial{
		UserID:      "u1",
		ProductSlug: "ai-chatbot",
		Status:      domain.TrialStatusActive,
		ExpiresAt:   expires,
	}}
	resolver := newTestResolver(repo)

	grant, err := resolver.Resolve(context.Background(), User{ID: "u1"}, "ai-chatbot")
	require.NoError(t, err)
	assert.True(t, grant.Granted)
	assert.Equal(t, domain.AccessTrial, grant.Type)
	require.NotNil(t, grant.ExpiresAt)
	assert.True(t, grant.ExpiresAt.Equal(expires))
}

func TestResolve_ExpiredTrialFallsThroughToDenied(t *testing.T) {
	repo := &mockRepo{trial: &domain.Trial{
		UserID:      "u1",
		ProductSlug: "ai-chatbot",
		Status:      domain.TrialStatusActive,
		ExpiresAt:   time.Now().Add(-time.Second),
	}}
	resolver := newTestResolver(repo)

	grant, err := resolver.Resolve(context.Background(), User{ID: "u1"}, "ai-chatbot")
	require.NoError(t, err)
	assert.False(t, grant.Granted)
}

func TestResolve_HousekeepingRunsBeforeTrialLookup(t *testing.T) {
	repo := &mockRepo{}
	resolver := newTestResolver(repo)

	_, err := resolver.Resolve(context.Background(), User{ID: "u1"}, "ai-chatbot")
	require.NoError(t, err)
	assert.True(t, repo.expireBeforeGet)
}

func TestResolve_HousekeepingFailureDoesNotBlockResolution(t *testing.T) {
	expires := time.Now().Add(time.Hour)
	repo := &mockRepo{
		expireErr: assert.AnError,
		trial: &domain.Trial{
			UserID:      "u1",
			ProductSlug: "ai-chatbot",
			Status:      domain.TrialStatusActive,
			ExpiresAt:   expires,
		},
	}
	resolver := newTestResolver(repo)

	grant, err := resolver.Resolve(context.Background(), User{ID: "u1"}, "ai-chatbot")
	require.NoError(t, err)
	assert.True(t, grant.Granted)
}

func TestResolve_PurchaseWithoutExpiryGrantsIndefinitely(t *testing.T) {
	repo := &mockRepo{product: &domain.CustomerProduct{
		UserID:          "u1",
		ProductSlug:     "ai-chatbot",
		AcquisitionType: domain.AcquisitionPurchase,
		IsActive:        true,
	}}
	resolver := newTestResolver(repo)

	grant, err := resolver.Resolve(context.Background(), User{ID: "u1"}, "ai-chatbot")
	require.NoError(t, err)
	assert.True(t, grant.Granted)
	assert.Equal(t, domain.AccessPurchase, grant.Type)
	assert.Nil(t, grant.ExpiresAt)
}

func TestResolve_RentalWithNullExpiryGrants(t *testing.T) {
	// A rental without an expiry is a data anomaly, but denies nothing.
	repo := &mockRepo{product: &domain.CustomerProduct{
		UserID:          "u1",
		ProductSlug:     "crm-suite",
		AcquisitionType: domain.AcquisitionRental,
		IsActive:        true,
	}}
	resolver := newTestResolver(repo)

	grant, err := resolver.Resolve(context.Background(), User{ID: "u1"}, "crm-suite")
	require.NoError(t, err)
	assert.True(t, grant.Granted)
	assert.Equal(t, domain.AccessRental, grant.Type)
}

func TestResolve_ExpiredRentalIsDenied(t *testing.T) {
	past := time.Now().Add(-time.Second)
	repo := &mockRepo{product: &domain.CustomerProduct{
		UserID:          "u1",
		ProductSlug:     "crm-suite",
		AcquisitionType: domain.AcquisitionRental,
		IsActive:        true,
		AccessExpiresAt: &past,
	}}
	resolver := newTestResolver(repo)

	grant, err := resolver.Resolve(context.Background(), User{ID: "u1"}, "crm-suite")
	require.NoError(t, err)
	assert.False(t, grant.Granted)
}

func TestResolve_ActiveRentalGrantsWithExpiry(t *testing.T) {
	future := time.Now().Add(time.Hour)
	repo := &mockRepo{product: &domain.CustomerProduct{
		UserID:          "u1",
		ProductSlug:     "crm-suite",
		AcquisitionType: domain.AcquisitionRental,
		IsActive:        true,
		AccessExpiresAt: &future,
	}}
	resolver := newTestResolver(repo)

	grant, err := resolver.Resolve(context.Background(), User{ID: "u1"}, "crm-suite")
	require.NoError(t, err)
	assert.True(t, grant.Granted)
	assert.Equal(t, domain.AccessRental, grant.Type)
	require.NotNil(t, grant.ExpiresAt)
}

func TestResolve_InactiveProductIsDenied(t *testing.T) {
	repo := &mockRepo{product: &domain.CustomerProduct{
		UserID:          "u1",
		ProductSlug:     "ai-chatbot",
		AcquisitionType: domain.AcquisitionPurchase,
		IsActive:        false,
	}}
	resolver := newTestResolver(repo)

	grant, err := resolver.Resolve(context.Background(), User{ID: "u1"}, "ai-chatbot")
	require.NoError(t, err)
	assert.False(t, grant.Granted)
}

func TestResolve_BackendFailureFailsClosed(t *testing.T) {
	repo := &mockRepo{trialErr: assert.AnError}
	resolver := newTestResolver(repo)

	grant, err := resolver.Resolve(context.Background(), User{ID: "u1"}, "ai-chatbot")
	require.Error(t, err)
	assert.False(t, grant.Granted)
}

func TestResolve_TrialPrecedesPurchase(t *testing.T) {
	expires := time.Now().Add(time.Hour)
	repo := &mockRepo{
		trial: &domain.Trial{
			UserID:      "u1",
			ProductSlug: "ai-chatbot",
			Status:      domain.TrialStatusActive,
			ExpiresAt:   expires,
		},
		product: &domain.CustomerProduct{
			UserID:          "u1",
			ProductSlug:     "ai-chatbot",
			AcquisitionType: domain.AcquisitionPurchase,
			IsActive:        true,
		},
	}
	resolver := newTestResolver(repo)

	grant, err := resolver.Resolve(context.Background(), User{ID: "u1"}, "ai-chatbot")
	require.NoError(t, err)
	assert.Equal(t, domain.AccessTrial, grant.Type)
}
