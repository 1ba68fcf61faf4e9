// Package window keeps fixed-capacity trailing series per underlying and
// ranks each new observation against them.
package window

import (
	"errors"
	"math"
)

// DefaultCapacity is one year of trading days.
const DefaultCapacity = 252

var (
	// ErrUndefinedRank is returned when every value in the window equals
	// the current one, so the range is zero.
	ErrUndefinedRank = errors.New("window: rank undefined for a window with zero range")

	// ErrEmptyWindow is returned for statistics over a window with no values.
	ErrEmptyWindow = errors.New("window: window is empty")

	// ErrWindowNotFull is returned when a statistic requires a full window.
	ErrWindowNotFull = errors.New("window: window not full")

	// ErrNonFinite is returned when NaN or Inf is pushed.
	ErrNonFinite = errors.New("window: value is not finite")
)

// RollingWindow is a ring buffer of the most recent values. Pushing into a
// full window evicts the oldest value. It is not safe for concurrent use.
type RollingWindow struct {
	values []float64
	head   int // index of the oldest value
	count  int
}

// New creates an empty window. A non-positive capacity falls back to
// DefaultCapacity.
func New(capacity int) *RollingWindow {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &RollingWindow{values: make([]float64, capacity)}
}

// Push appends v. When the window is full the oldest value is evicted and
// returned with evicted=true.
func (w *RollingWindow) Push(v float64) (old float64, evicted bool, err error) {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false, ErrNonFinite
	}
	capacity := len(w.values)
	if w.count < capacity {
		w.values[(w.head+w.count)%capacity] = v
		w.count++
		return 0, false, nil
	}
	old = w.values[w.head]
	w.values[w.head] = v
	w.head = (w.head + 1) % capacity
	return old, true, nil
}

// Len returns the number of values held.
func (w *RollingWindow) Len() int { return w.count }

// Cap returns the window capacity.
func (w *RollingWindow) Cap() int { return len(w.values) }

// Full reports whether the window holds exactly Cap values.
func (w *RollingWindow) Full() bool { return w.count == len(w.values) }

// Values returns a copy of the contents, oldest first.
func (w *RollingWindow) Values() []float64 {
	out := make([]float64, w.count)
	for i := 0; i < w.count; i++ {
		out[i] = w.values[(w.head+i)%len(w.values)]
	}
	return out
}

// Last returns the most recently pushed value.
func (w *RollingWindow) Last() (float64, bool) {
	if w.count == 0 {
		return 0, false
	}
	return w.values[(w.head+w.count-1)%len(w.values)], true
}

// Rank returns (current - min) / (max - min) over the window contents
// together with current.
func (w *RollingWindow) Rank(current float64) (float64, error) {
	lo, hi := current, current
	for i := 0; i < w.count; i++ {
		v := w.values[(w.head+i)%len(w.values)]
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	if hi == lo {
		return 0, ErrUndefinedRank
	}
	return (current - lo) / (hi - lo), nil
}

// Percentile returns the share of window values strictly below current.
// The window is expected to already contain current, so the denominator
// counts it.
func (w *RollingWindow) Percentile(current float64) (float64, error) {
	if w.count == 0 {
		return 0, ErrEmptyWindow
	}
	below := 0
	for i := 0; i < w.count; i++ {
		if w.values[(w.head+i)%len(w.values)] < current {
			below++
		}
	}
	return float64(below) / float64(w.count), nil
}

// Stats is the outcome of observing one value. A nil pointer is a missing
// statistic; Err says why.
type Stats struct {
	Rank       *float64
	Percentile *float64
	Err        error
}

// Observe pushes v and ranks it against the updated window. With
// requireFull set, statistics are withheld until the window is at
// capacity.
func (w *RollingWindow) Observe(v float64, requireFull bool) Stats {
	if _, _, err := w.Push(v); err != nil {
		return Stats{Err: err}
	}
	if requireFull && !w.Full() {
		return Stats{Err: ErrWindowNotFull}
	}

	var s Stats
	if p, err := w.Percentile(v); err == nil {
		s.Percentile = &p
	} else {
		s.Err = err
	}
	if r, err := w.Rank(v); err == nil {
		s.Rank = &r
	} else {
		s.Err = err
	}
	return s
}
