package cart

import (
	"context"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storefront/internal/domain"
)

type mockStorage struct {
	m     sync.Mutex
	carts map[string][]domain.CartItem
	err   error
}

func newMockStorage() *mockStorage {
	return &mockStorage{carts: make(map[string][]domain.CartItem)}
}

func (m *mockStorage) Load(_ context.Context, key string) ([]domain.CartItem, error) {
	m.m.Lock()
	defer m.m.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	items, ok := m.carts[key]
	if !ok {
		return nil, ErrCartNotFound
	}
	return items, nil
}

func (m *mockStorage) Save(_ context.Context, key string, items []domain.CartItem) error {
	m.m.Lock()
	defer m.m.Unlock()
	if m.err != nil {
		return m.err
	}
	m.carts[key] = items
	return nil
}

func (m *mockStorage) Delete(_ context.Context, key string) error {
	m.m.Lock()
	defer m.m.Unlock()
	if m.err != nil {
		return m.err
	}
	if _, ok := m.carts[key]; !ok {
		return ErrCartNotFound
	}
	delete(m.carts, key)
	return nil
}

type mockNotifier struct {
	m     sync.Mutex
	calls []struct {
		userID string
		items  []domain.CartItem
	}
}

func (m *mockNotifier) Record(userID string, items []domain.CartItem) {
	m.m.Lock()
	defer m.m.Unlock()
	m.calls = append(m.calls, struct {
		userID string
		items  []domain.CartItem
	}{userID, items})
}

func (m *mockNotifier) count() int {
	m.m.Lock()
	defer m.m.Unlock()
	return len(m.calls)
}

func newTestService() (*Service, *mockStorage, *mockNotifier) {
	storage := newMockStorage()
	notifier := &mockNotifier{}
	return NewService(storage, notifier, zerolog.Nop()), storage, notifier
}

func purchaseItem(slug string) domain.CartItem {
	return domain.CartItem{
		ProductSlug:     slug,
		Title:           slug,
		UnitPriceCents:  1000,
		AcquisitionType: domain.AcquisitionPurchase,
	}
}

func TestService_AddItemMergesThroughIdentityRule(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := svc.AddItem(ctx, "guest:k", "", purchaseItem("ai-chatbot"))
		require.NoError(t, err)
	}

	c, err := svc.Get(ctx, "guest:k")
	require.NoError(t, err)
	require.Len(t, c.Items, 1)
	assert.Equal(t, 3, c.Items[0].Quantity)
	assert.Equal(t, int64(3000), c.TotalCents())
}

func TestService_GetMissingCartIsEmpty(t *testing.T) {
	svc, _, _ := newTestService()

	c, err := svc.Get(context.Background(), "guest:nope")
	require.NoError(t, err)
	assert.True(t, c.Empty())
}

func TestService_NotifiesAuthenticatedMutations(t *testing.T) {
	svc, _, notifier := newTestService()
	ctx := context.Background()

	_, err := svc.AddItem(ctx, "user:u1", "u1", purchaseItem("ai-chatbot"))
	require.NoError(t, err)
	require.Equal(t, 1, notifier.count())
	assert.Equal(t, "u1", notifier.calls[0].userID)
	assert.Len(t, notifier.calls[0].items, 1)
}

func TestService_GuestMutationsNeverNotify(t *testing.T) {
	svc, _, notifier := newTestService()
	ctx := context.Background()

	_, err := svc.AddItem(ctx, "guest:k", "", purchaseItem("ai-chatbot"))
	require.NoError(t, err)
	_, err = svc.RemoveItem(ctx, "guest:k", "", "ai-chatbot", "")
	require.NoError(t, err)

	assert.Zero(t, notifier.count())
}

func TestService_UpdateQuantityZeroRemoves(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	_, err := svc.AddItem(ctx, "guest:k", "", purchaseItem("ai-chatbot"))
	require.NoError(t, err)

	c, err := svc.UpdateQuantity(ctx, "guest:k", "", "ai-chatbot", 0, "")
	require.NoError(t, err)
	assert.True(t, c.Empty())
}

func TestService_ClearNotifiesEmptySnapshot(t *testing.T) {
	svc, storage, notifier := newTestService()
	ctx := context.Background()

	_, err := svc.AddItem(ctx, "user:u1", "u1", purchaseItem("ai-chatbot"))
	require.NoError(t, err)
	require.NoError(t, svc.Clear(ctx, "user:u1", "u1"))

	require.Equal(t, 2, notifier.count())
	assert.Empty(t, notifier.calls[1].items)
	assert.NotContains(t, storage.carts, "user:u1")
}

func TestService_ClearAbsentCartIsNotAnError(t *testing.T) {
	svc, _, _ := newTestService()
	assert.NoError(t, svc.Clear(context.Background(), "guest:nope", ""))
}

func TestService_SaveFailureSurfacesAndSkipsNotify(t *testing.T) {
	svc, storage, notifier := newTestService()
	storage.err = assert.AnError

	_, err := svc.AddItem(context.Background(), "user:u1", "u1", purchaseItem("ai-chatbot"))
	require.Error(t, err)
	assert.Zero(t, notifier.count())
}
