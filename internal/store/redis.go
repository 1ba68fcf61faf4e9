package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/atmx/vix-engine/internal/model"
)

// CachedStore wraps a primary Store (PostgreSQL) with a Redis read-through
// cache of each underlying's latest observation. Writes go to the primary
// store and invalidate the cache; reads check Redis first then fall back
// to the primary.
type CachedStore struct {
	primary Store
	rdb     *redis.Client
	ttl     time.Duration
}

// NewCachedStore creates a cached wrapper around a primary store.
func NewCachedStore(primary Store, rdb *redis.Client, ttl time.Duration) *CachedStore {
	return &CachedStore{
		primary: primary,
		rdb:     rdb,
		ttl:     ttl,
	}
}

// --- Write-through (write to primary, invalidate cache) ---

func (s *CachedStore) SaveObservation(ctx context.Context, obs *model.Observation) error {
	if err := s.primary.SaveObservation(ctx, obs); err != nil {
		return err
	}
	// Invalidate; the next read re-populates from the primary.
	if err := s.rdb.Del(ctx, latestKey(obs.Underlying)).Err(); err != nil {
		slog.Warn("cache invalidation failed", "underlying", obs.Underlying, "err", err)
	}
	return nil
}

// --- Read-through (check cache first) ---

func (s *CachedStore) LatestObservation(ctx context.Context, underlying string) (*model.Observation, error) {
	data, err := s.rdb.Get(ctx, latestKey(underlying)).Bytes()
	if err == nil {
		var o model.Observation
		if json.Unmarshal(data, &o) == nil {
			return &o, nil
		}
	}

	// Cache miss: read from primary.
	o, err := s.primary.LatestObservation(ctx, underlying)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(o); err == nil {
		s.rdb.Set(ctx, latestKey(underlying), data, s.ttl)
	}
	return o, nil
}

// --- Passthrough (not cached) ---

func (s *CachedStore) GetObservation(ctx context.Context, underlying string, date time.Time) (*model.Observation, error) {
	return s.primary.GetObservation(ctx, underlying, date)
}

func (s *CachedStore) ListObservations(ctx context.Context, underlying string, from, to time.Time) ([]model.Observation, error) {
	return s.primary.ListObservations(ctx, underlying, from, to)
}

func (s *CachedStore) ListUnderlyings(ctx context.Context) ([]string, error) {
	return s.primary.ListUnderlyings(ctx)
}

func latestKey(underlying string) string { return fmt.Sprintf("vix:latest:%s", underlying) }
