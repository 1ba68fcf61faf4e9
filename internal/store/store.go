// Package store defines the persistence interface for the observation
// history. Implementations include PostgreSQL (source of truth), Redis
// (read-through cache of the latest observation), and in-memory (for
// testing and the batch CLI).
package store

import (
	"context"
	"errors"
	"time"

	"github.com/atmx/vix-engine/internal/model"
)

// ErrNotFound is returned when no observation matches a lookup.
var ErrNotFound = errors.New("store: observation not found")

// Store is the persistence interface. Observations are unique per
// (underlying, date); saving the same pair twice replaces the first.
type Store interface {
	// SaveObservation upserts one daily observation.
	SaveObservation(ctx context.Context, obs *model.Observation) error

	// GetObservation returns the observation for one underlying and day.
	GetObservation(ctx context.Context, underlying string, date time.Time) (*model.Observation, error)

	// ListObservations returns observations with from <= date < to in
	// ascending date order.
	ListObservations(ctx context.Context, underlying string, from, to time.Time) ([]model.Observation, error)

	// LatestObservation returns the most recent observation.
	LatestObservation(ctx context.Context, underlying string) (*model.Observation, error)

	// ListUnderlyings returns every underlying with at least one
	// observation, sorted.
	ListUnderlyings(ctx context.Context) ([]string, error)
}
