package rules

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/guestdesk/internal/cache"
	"github.com/guestdesk/pkg/models"
)

func TestInMemoryStore_ListEnabledForScope(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryStore()
	for _, r := range []*models.AutoRule{
		{ClientID: "C", Action: models.ActionQueue, Enabled: true},
		{ClientID: "C", PropertyID: "P1", Action: models.ActionQueue, Enabled: true},
		{ClientID: "C", PropertyID: "P2", Action: models.ActionQueue, Enabled: true},
		{ClientID: "C", Action: models.ActionQueue, Enabled: false},
		{ClientID: "D", Action: models.ActionQueue, Enabled: true},
	} {
		require.NoError(t, s.Create(ctx, r))
	}

	got, err := s.ListEnabledForScope(ctx, "C", "P1")
	require.NoError(t, err)
	assert.Len(t, got, 2)
	for _, r := range got {
		assert.Equal(t, "C", r.ClientID)
		assert.True(t, r.PropertyID == "" || r.PropertyID == "P1")
	}

	all, err := s.List(ctx, Filter{ClientID: "C"})
	require.NoError(t, err)
	assert.Len(t, all, 4)
}

func TestInMemoryStore_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryStore()
	r := &models.AutoRule{ClientID: "C", Action: models.ActionQueue, Enabled: true, Conditions: map[string]interface{}{"a": "b"}}
	require.NoError(t, s.Create(ctx, r))

	got, err := s.Get(ctx, r.ID)
	require.NoError(t, err)
	got.Conditions["a"] = "mutated"
	got.Enabled = false

	again, err := s.Get(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, "b", again.Conditions["a"])
	assert.True(t, again.Enabled)

	assert.ErrorIs(t, s.Delete(ctx, "missing"), ErrNotFound)
}

type countingStore struct {
	*InMemoryStore
	lists int
}

func (c *countingStore) List(ctx context.Context, f Filter) ([]*models.AutoRule, error) {
	c.lists++
	return c.InMemoryStore.List(ctx, f)
}

func TestCachedStore_ReadThroughAndInvalidate(t *testing.T) {
	ctx := context.Background()
	inner := &countingStore{InMemoryStore: NewInMemoryStore()}
	s := NewCachedStore(inner, cache.NewMemoryCache(), time.Minute)

	wide := &models.AutoRule{ClientID: "C", Action: models.ActionQueue, Enabled: true}
	require.NoError(t, s.Create(ctx, wide))
	require.NoError(t, s.Create(ctx, &models.AutoRule{ClientID: "C", PropertyID: "P2", Action: models.ActionQueue, Enabled: true}))

	got, err := s.ListEnabledForScope(ctx, "C", "P1")
	require.NoError(t, err)
	assert.Len(t, got, 1)
	got, err = s.ListEnabledForScope(ctx, "C", "P2")
	require.NoError(t, err)
	assert.Len(t, got, 2)
	assert.Equal(t, 1, inner.lists, "second read should be served from cache")

	wide.Enabled = false
	require.NoError(t, s.Update(ctx, wide))

	got, err = s.ListEnabledForScope(ctx, "C", "P1")
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.Equal(t, 2, inner.lists)

	require.NoError(t, s.Delete(ctx, wide.ID))
	assert.ErrorIs(t, s.Delete(ctx, wide.ID), ErrNotFound)
}

func TestWithCache_DisableReachesEveryProcess(t *testing.T) {
	shared := cache.NewMemoryCache()
	tests := []struct {
		name   string
		api    func(Store) Store
		worker func(Store) Store
	}{
		{
			name:   "no shared cache",
			api:    func(s Store) Store { return WithCache(s, nil, time.Minute) },
			worker: func(s Store) Store { return WithCache(s, nil, time.Minute) },
		},
		{
			name:   "shared cache",
			api:    func(s Store) Store { return WithCache(s, shared, time.Minute) },
			worker: func(s Store) Store { return WithCache(s, shared, time.Minute) },
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			db := NewInMemoryStore()
			api := NewService(tt.api(db))
			worker := tt.worker(db)

			r := &models.AutoRule{ClientID: "C-" + tt.name, Action: models.ActionQueue, Enabled: true}
			require.NoError(t, api.Create(ctx, r))

			got, err := worker.ListEnabledForScope(ctx, r.ClientID, "P1")
			require.NoError(t, err)
			require.Len(t, got, 1)

			disabled := false
			_, err = api.Update(ctx, r.ID, Patch{Enabled: &disabled})
			require.NoError(t, err)

			got, err = worker.ListEnabledForScope(ctx, r.ClientID, "P1")
			require.NoError(t, err)
			assert.Empty(t, got)

			require.NoError(t, api.Delete(ctx, r.ID))
			got, err = worker.ListEnabledForScope(ctx, r.ClientID, "P1")
			require.NoError(t, err)
			assert.Empty(t, got)
		})
	}
}

func TestWithCache_NilCacheReturnsInner(t *testing.T) {
	inner := NewInMemoryStore()
	assert.Same(t, inner, WithCache(inner, nil, time.Minute))

	_, cached := WithCache(inner, cache.NewMemoryCache(), time.Minute).(*CachedStore)
	assert.True(t, cached)
}

func TestService_CreateAndPatch(t *testing.T) {
	ctx := context.Background()
	svc := NewService(NewInMemoryStore())

	r := &models.AutoRule{ClientID: "C", Action: models.ActionQueue, Enabled: true}
	require.NoError(t, svc.Create(ctx, r))
	assert.Equal(t, models.RiskLow, r.RiskMax)

	action := "template"
	risk := "HIGH"
	updated, err := svc.Update(ctx, r.ID, Patch{
		Action:     &action,
		RiskMax:    &risk,
		Conditions: map[string]interface{}{"templateId": "tpl-7"},
	})
	require.NoError(t, err)
	assert.Equal(t, models.ActionTemplate, updated.Action)
	assert.Equal(t, models.RiskHigh, updated.RiskMax)

	bad := "nope"
	_, err = svc.Update(ctx, r.ID, Patch{Action: &bad})
	assert.ErrorIs(t, err, ErrInvalidRule)

	stored, err := svc.Get(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ActionTemplate, stored.Action, "rejected patch must not be persisted")

	_, err = svc.Update(ctx, "missing", Patch{})
	assert.ErrorIs(t, err, ErrNotFound)
}
