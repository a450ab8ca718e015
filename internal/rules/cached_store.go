package rules

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/guestdesk/internal/cache"
	"github.com/guestdesk/pkg/models"
)

// CachedStore keeps the enabled rules of each client in a cache so that the
// classification worker does not hit Postgres for every message. Writes go
// to the underlying store and drop the client's entry. The cache must be
// shared by every process that writes or evaluates rules, otherwise a write
// only clears the writer's copy.
type CachedStore struct {
	Store
	cache cache.Cache
	ttl   time.Duration
}

func NewCachedStore(inner Store, c cache.Cache, ttl time.Duration) *CachedStore {
	return &CachedStore{Store: inner, cache: c, ttl: ttl}
}

// WithCache wraps inner in a CachedStore over shared, or returns inner unchanged
// when there is no shared cache.
func WithCache(inner Store, shared cache.Cache, ttl time.Duration) Store {
	if shared == nil {
		return inner
	}
	return NewCachedStore(inner, shared, ttl)
}

func cacheKey(clientID string) string {
	return "guestdesk:rules:" + clientID
}

func (s *CachedStore) ListEnabledForScope(ctx context.Context, clientID, propertyID string) ([]*models.AutoRule, error) {
	key := cacheKey(clientID)

	raw, err := s.cache.Get(ctx, key)
	if err == nil {
		var rules []*models.AutoRule
		if jsonErr := json.Unmarshal([]byte(raw), &rules); jsonErr == nil {
			return filterScope(rules, clientID, propertyID), nil
		}
		log.Warn().Str("key", key).Msg("Dropping undecodable rule cache entry")
	} else if !errors.Is(err, cache.ErrMiss) {
		log.Warn().Err(err).Str("key", key).Msg("Rule cache read failed, falling back to store")
	}

	rules, err := s.Store.List(ctx, Filter{ClientID: clientID, EnabledOnly: true})
	if err != nil {
		return nil, err
	}

	if payload, err := json.Marshal(rules); err == nil {
		if err := s.cache.Set(ctx, key, string(payload), s.ttl); err != nil {
			log.Warn().Err(err).Str("key", key).Msg("Rule cache write failed")
		}
	}
	return filterScope(rules, clientID, propertyID), nil
}

func (s *CachedStore) Create(ctx context.Context, r *models.AutoRule) error {
	if err := s.Store.Create(ctx, r); err != nil {
		return err
	}
	s.invalidate(ctx, r.ClientID)
	return nil
}

func (s *CachedStore) Update(ctx context.Context, r *models.AutoRule) error {
	if err := s.Store.Update(ctx, r); err != nil {
		return err
	}
	s.invalidate(ctx, r.ClientID)
	return nil
}

func (s *CachedStore) Delete(ctx context.Context, id string) error {
	existing, err := s.Store.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.Store.Delete(ctx, id); err != nil {
		return err
	}
	s.invalidate(ctx, existing.ClientID)
	return nil
}

func (s *CachedStore) invalidate(ctx context.Context, clientID string) {
	if _, err := s.cache.Del(ctx, cacheKey(clientID)); err != nil {
		log.Warn().Err(err).Str("client_id", clientID).Msg("Rule cache invalidation failed")
	}
}
