package window

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"
)

// Tracker holds the implied-volatility and index series of one
// underlying. Callers serialize access with Lock/Unlock.
type Tracker struct {
	sync.Mutex

	Underlying string
	// Last is the date of the latest observation; zero before warm-up.
	Last time.Time

	iv  *RollingWindow
	vix *RollingWindow
}

// NewTracker creates a tracker with two empty windows of the given capacity.
func NewTracker(underlying string, capacity int) *Tracker {
	return &Tracker{
		Underlying: underlying,
		iv:         New(capacity),
		vix:        New(capacity),
	}
}

// Result is the per-date output of a tracker.
type Result struct {
	IV  Stats
	VIX Stats
}

// Replay appends a historical observation without computing statistics.
// Missing values are skipped. A non-finite value is rejected without
// affecting the other series.
func (t *Tracker) Replay(iv, vix *float64) error {
	var errs []error
	if iv != nil {
		if _, _, err := t.iv.Push(*iv); err != nil {
			errs = append(errs, fmt.Errorf("iv: %w", err))
		}
	}
	if vix != nil {
		if _, _, err := t.vix.Push(*vix); err != nil {
			errs = append(errs, fmt.Errorf("vix: %w", err))
		}
	}
	return errors.Join(errs...)
}

// Observe appends the day's values and ranks them. IV statistics need
// only the value itself; index statistics are withheld until the index
// window is full. A missing value is not appended.
func (t *Tracker) Observe(iv, vix *float64) Result {
	var r Result
	if iv != nil {
		r.IV = t.iv.Observe(*iv, false)
	}
	if vix != nil {
		r.VIX = t.vix.Observe(*vix, true)
	}
	return r
}

// Reset empties both windows and clears Last so the next caller warms
// the tracker up again.
func (t *Tracker) Reset() {
	capacity := t.iv.Cap()
	t.iv = New(capacity)
	t.vix = New(capacity)
	t.Last = time.Time{}
}

// IVLen returns the number of implied-volatility values held.
func (t *Tracker) IVLen() int { return t.iv.Len() }

// VIXLen returns the number of index values held.
func (t *Tracker) VIXLen() int { return t.vix.Len() }

// Registry maps each underlying to its own tracker. Trackers are never
// shared across underlyings.
type Registry struct {
	mu       sync.RWMutex
	capacity int
	trackers map[string]*Tracker
}

// NewRegistry creates an empty registry whose trackers use capacity.
func NewRegistry(capacity int) *Registry {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Registry{
		capacity: capacity,
		trackers: make(map[string]*Tracker),
	}
}

// GetOrCreate returns the tracker for underlying, creating an empty one
// the first time it is seen. The boolean reports creation.
func (r *Registry) GetOrCreate(underlying string) (*Tracker, bool) {
	r.mu.RLock()
	t, ok := r.trackers[underlying]
	r.mu.RUnlock()
	if ok {
		return t, false
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if t, ok := r.trackers[underlying]; ok {
		return t, false
	}
	t = NewTracker(underlying, r.capacity)
	r.trackers[underlying] = t
	return t, true
}

// Get returns the tracker for underlying if one exists.
func (r *Registry) Get(underlying string) (*Tracker, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.trackers[underlying]
	return t, ok
}

// Len returns the number of tracked underlyings.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.trackers)
}

// Underlyings returns the tracked underlyings in sorted order.
func (r *Registry) Underlyings() []string {
	r.mu.RLock()
	out := make([]string, 0, len(r.trackers))
	for u := range r.trackers {
		out = append(out, u)
	}
	r.mu.RUnlock()
	sort.Strings(out)
	return out
}

// Reset drops the tracker for underlying. The next GetOrCreate starts
// from an empty window.
func (r *Registry) Reset(underlying string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.trackers, underlying)
}

// Capacity returns the window capacity used for new trackers.
func (r *Registry) Capacity() int { return r.capacity }
