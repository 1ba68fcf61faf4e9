package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/atmx/vix-engine/internal/model"
)

// MemoryStore implements Store with in-memory maps. Used for testing,
// development and the batch CLI. Nothing survives a restart.
type MemoryStore struct {
	mu sync.RWMutex
	// underlying -> day key -> observation
	series map[string]map[string]model.Observation
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		series: make(map[string]map[string]model.Observation),
	}
}

func (s *MemoryStore) SaveObservation(_ context.Context, obs *model.Observation) error {
	if obs.Underlying == "" {
		return fmt.Errorf("save observation: empty underlying")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	days, ok := s.series[obs.Underlying]
	if !ok {
		days = make(map[string]model.Observation)
		s.series[obs.Underlying] = days
	}
	// Store a copy to avoid external mutation.
	copy := *obs
	copy.Date = model.Day(obs.Date)
	days[model.DayKey(obs.Date)] = copy
	return nil
}

func (s *MemoryStore) GetObservation(_ context.Context, underlying string, date time.Time) (*model.Observation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	obs, ok := s.series[underlying][model.DayKey(date)]
	if !ok {
		return nil, fmt.Errorf("%s on %s: %w", underlying, model.DayKey(date), ErrNotFound)
	}
	return &obs, nil
}

func (s *MemoryStore) ListObservations(_ context.Context, underlying string, from, to time.Time) ([]model.Observation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	lo, hi := model.Day(from), model.Day(to)
	var result []model.Observation
	for _, obs := range s.series[underlying] {
		if obs.Date.Before(lo) || !obs.Date.Before(hi) {
			continue
		}
		result = append(result, obs)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Date.Before(result[j].Date) })
	return result, nil
}

func (s *MemoryStore) LatestObservation(_ context.Context, underlying string) (*model.Observation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var latest *model.Observation
	for _, obs := range s.series[underlying] {
		if latest == nil || obs.Date.After(latest.Date) {
			o := obs
			latest = &o
		}
	}
	if latest == nil {
		return nil, fmt.Errorf("latest %s: %w", underlying, ErrNotFound)
	}
	return latest, nil
}

func (s *MemoryStore) ListUnderlyings(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]string, 0, len(s.series))
	for u := range s.series {
		out = append(out, u)
	}
	sort.Strings(out)
	return out, nil
}
