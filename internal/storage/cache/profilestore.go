// Package cache provides a read-aside cache in front of a ProfileStore.
package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/tinywideclouds/go-push-dispatcher/pkg/dispatch"
)

// ErrCacheMiss is returned by CacheClient.Get for absent keys.
var ErrCacheMiss = errors.New("cache miss")

// CacheClient defines the subset of Redis commands we need.
type CacheClient interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value string, ttl time.Duration) error
}

// CachedProfileStore caches resolved tokens. Only positive lookups are
// cached so a freshly registered device is picked up on the next event.
//
// A token cleared in the underlying store keeps being served until its entry
// expires, so for up to ttl such a recipient is still dispatched to instead of
// resolving to ErrNoRecipientToken.
type CachedProfileStore struct {
	realStore dispatch.ProfileStore
	cache     CacheClient
	ttl       time.Duration
	logger    *slog.Logger
}

func NewCachedProfileStore(realStore dispatch.ProfileStore, cache CacheClient, ttl time.Duration, logger *slog.Logger) *CachedProfileStore {
	return &CachedProfileStore{
		realStore: realStore,
		cache:     cache,
		ttl:       ttl,
		logger:    logger.With("component", "CachedProfileStore"),
	}
}

func (s *CachedProfileStore) FetchPushToken(ctx context.Context, userID string) (string, error) {
	key := s.cacheKey(userID)

	token, err := s.cache.Get(ctx, key)
	if err == nil && token != "" {
		return token, nil
	}
	if err != nil && !errors.Is(err, ErrCacheMiss) {
		// Redis being down must not block delivery.
		s.logger.Warn("Cache read failed, falling back to store", "err", err)
	}

	token, err = s.realStore.FetchPushToken(ctx, userID)
	if err != nil {
		return "", err
	}
	if token == "" {
		return "", nil
	}

	if err := s.cache.Set(ctx, key, token, s.ttl); err != nil {
		s.logger.Warn("Cache write failed", "err", err)
	}
	return token, nil
}

func (s *CachedProfileStore) cacheKey(userID string) string {
	return fmt.Sprintf("push:fcm_token:%s", userID)
}
