package store

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"tillsync/internal/domain"

	"github.com/rs/zerolog"
)

// CachedStore layers a redis cache over the authoritative store. Writes
// go to the authoritative store first; cache failures only degrade read
// latency, never durability. After a cache error the cache is considered
// down and re-probed once a recovery window has passed.
type CachedStore struct {
	primary   domain.DocumentStore
	cache     domain.DocumentStore
	logger    *zerolog.Logger
	cacheDown atomic.Bool
	lastCheck atomic.Int64

	recoveryWindow time.Duration
}

func NewCachedStore(primary, cache domain.DocumentStore, logger *zerolog.Logger) *CachedStore {
	return &CachedStore{
		primary:        primary,
		cache:          cache,
		logger:         logger,
		recoveryWindow: time.Minute,
	}
}

func (s *CachedStore) cacheUsable() bool {
	if !s.cacheDown.Load() {
		return true
	}
	last := time.Unix(0, s.lastCheck.Load())
	if time.Since(last) > s.recoveryWindow {
		s.cacheDown.Store(false)
		return true
	}
	return false
}

func (s *CachedStore) markCacheDown(err error) {
	s.logger.Error().Err(err).Msg("document cache failed, serving from primary store")
	s.cacheDown.Store(true)
	s.lastCheck.Store(time.Now().UnixNano())
}

func (s *CachedStore) Get(ctx context.Context, collection, key string) ([]byte, error) {
	if s.cacheUsable() {
		content, err := s.cache.Get(ctx, collection, key)
		if err == nil {
			return content, nil
		}
		if !errors.Is(err, domain.ErrNotFound) {
			s.markCacheDown(err)
		}
	}

	content, err := s.primary.Get(ctx, collection, key)
	if err != nil {
		return nil, err
	}

	if s.cacheUsable() {
		if err := s.cache.Put(ctx, collection, key, content); err != nil {
			s.markCacheDown(err)
		}
	}
	return content, nil
}

func (s *CachedStore) Put(ctx context.Context, collection, key string, content []byte) error {
	if err := s.primary.Put(ctx, collection, key, content); err != nil {
		return err
	}

	if s.cacheUsable() {
		if err := s.cache.Put(ctx, collection, key, content); err != nil {
			s.markCacheDown(err)
		}
	}
	return nil
}

func (s *CachedStore) Delete(ctx context.Context, collection, key string) error {
	if err := s.primary.Delete(ctx, collection, key); err != nil {
		return err
	}

	if s.cacheUsable() {
		if err := s.cache.Delete(ctx, collection, key); err != nil {
			s.markCacheDown(err)
		}
	}
	return nil
}

// Keys always comes from the primary store; cache TTL expiry would make
// a cache-side scan incomplete.
func (s *CachedStore) Keys(ctx context.Context, collection, suffix string) ([]string, error) {
	return s.primary.Keys(ctx, collection, suffix)
}
