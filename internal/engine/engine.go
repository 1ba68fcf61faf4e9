// Package engine turns daily chain snapshots into persisted observations:
// index value, implied-volatility statistics and index statistics for one
// (underlying, date) at a time.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/atmx/vix-engine/internal/metrics"
	"github.com/atmx/vix-engine/internal/model"
	"github.com/atmx/vix-engine/internal/store"
	"github.com/atmx/vix-engine/internal/vix"
	"github.com/atmx/vix-engine/internal/window"
)

var (
	// ErrOutOfOrder is returned when a date is not strictly after the last
	// date processed for the same underlying.
	ErrOutOfOrder = errors.New("engine: date not after last processed date")

	// ErrInvalidInput is returned for a snapshot missing its identity or price.
	ErrInvalidInput = errors.New("engine: invalid input")
)

// StatScale is the number of decimal places kept on ranks and percentiles.
const StatScale int32 = 8

// DefaultLookbackDays bounds the history replayed into a new tracker.
const DefaultLookbackDays = 365

// Input is one day's snapshot plus the at-the-money implied volatility
// supplied by the upstream data source.
type Input struct {
	Snapshot model.Snapshot
	ATMIV    *decimal.Decimal
}

// Publisher receives every persisted observation.
type Publisher interface {
	Publish(obs *model.Observation)
}

// Engine owns the per-underlying windows. Different underlyings are
// processed in parallel; one underlying is serialized by its tracker lock.
type Engine struct {
	calc     *vix.Calculator
	store    store.Store
	windows  *window.Registry
	lookback int
	pub      Publisher // optional
	now      func() time.Time
}

// New creates an engine. Pass nil for pub if broadcasting is not needed.
func New(calc *vix.Calculator, st store.Store, windows *window.Registry, lookbackDays int, pub Publisher) *Engine {
	if lookbackDays <= 0 {
		lookbackDays = DefaultLookbackDays
	}
	return &Engine{
		calc:     calc,
		store:    st,
		windows:  windows,
		lookback: lookbackDays,
		pub:      pub,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Windows returns the engine's keyed window store.
func (e *Engine) Windows() *window.Registry { return e.windows }

// Compute runs the index pipeline without touching any window.
func (e *Engine) Compute(snap *model.Snapshot) (*model.IndexResult, error) {
	return e.calc.Compute(snap)
}

// Process computes, ranks and persists one observation. Soft failures are
// recorded on the observation and do not produce an error; the returned
// error is reserved for invalid input, ordering and storage failures.
func (e *Engine) Process(ctx context.Context, in *Input) (*model.Observation, error) {
	snap := &in.Snapshot
	if snap.Underlying == "" || snap.Date.IsZero() {
		return nil, fmt.Errorf("%w: underlying and date are required", ErrInvalidInput)
	}
	if !snap.UnderlyingPrice.IsPositive() {
		return nil, fmt.Errorf("%w: underlying price must be positive", ErrInvalidInput)
	}
	date := model.Day(snap.Date)

	tr, created := e.windows.GetOrCreate(snap.Underlying)
	if created {
		metrics.TrackedUnderlyings.Set(float64(e.windows.Len()))
	}

	tr.Lock()
	defer tr.Unlock()

	if !tr.Last.IsZero() && !date.After(tr.Last) {
		return nil, fmt.Errorf("%w: %s %s (last %s)", ErrOutOfOrder,
			snap.Underlying, model.DayKey(date), model.DayKey(tr.Last))
	}
	if tr.Last.IsZero() {
		if err := e.warmUp(ctx, tr, date); err != nil {
			return nil, err
		}
	}

	start := time.Now()
	res, err := e.calc.Compute(snap)
	metrics.ComputeLatency.Observe(time.Since(start).Seconds())
	if err != nil && !vix.IsSoft(err) {
		metrics.ObservationsTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("compute %s %s: %w", snap.Underlying, model.DayKey(date), err)
	}

	obs := &model.Observation{
		ID:              uuid.New().String(),
		Underlying:      snap.Underlying,
		Date:            date,
		UnderlyingPrice: snap.UnderlyingPrice,
		ATMIV:           in.ATMIV,
		Reason:          vix.Reason(err),
		CreatedAt:       e.now(),
	}
	if res != nil {
		v := res.Value
		near, far := res.Near.Expiry, res.Far.Expiry
		obs.VIX = &v
		obs.NearExpiry = &near
		obs.FarExpiry = &far
	} else {
		slog.Info("index not computed",
			"underlying", snap.Underlying,
			"date", model.DayKey(date),
			"reason", obs.Reason,
			"err", err,
		)
	}

	result := tr.Observe(toFloat(obs.ATMIV), toFloat(obs.VIX))
	obs.IVRank, obs.IVPercentile = statDecimals(result.IV)
	obs.VIXRank, obs.VIXPercentile = statDecimals(result.VIX)
	logStats(obs, result)

	if err := e.store.SaveObservation(ctx, obs); err != nil {
		// Windows now hold a value the store does not; rebuild from the
		// store on the next call.
		tr.Reset()
		metrics.ObservationsTotal.WithLabelValues("error").Inc()
		slog.Error("observation not persisted",
			"underlying", obs.Underlying,
			"date", model.DayKey(date),
			"err", err,
		)
		return nil, fmt.Errorf("persist observation: %w", err)
	}
	tr.Last = date

	outcome := "ok"
	if obs.Reason != "" {
		outcome = obs.Reason
	}
	metrics.ObservationsTotal.WithLabelValues(outcome).Inc()

	if obs.VIX != nil {
		slog.Info("index computed",
			"underlying", obs.Underlying,
			"date", model.DayKey(date),
			"vix", obs.VIX.String(),
		)
	}

	if e.pub != nil {
		e.pub.Publish(obs)
	}
	return obs, nil
}

// warmUp replays stored history before date into a fresh tracker.
func (e *Engine) warmUp(ctx context.Context, tr *window.Tracker, date time.Time) error {
	from := date.AddDate(0, 0, -e.lookback)
	history, err := e.store.ListObservations(ctx, tr.Underlying, from, date)
	if err != nil {
		return fmt.Errorf("warm up %s: %w", tr.Underlying, err)
	}
	for _, o := range history {
		if err := tr.Replay(toFloat(o.ATMIV), toFloat(o.VIX)); err != nil {
			slog.Warn("history value skipped",
				"underlying", tr.Underlying,
				"date", model.DayKey(o.Date),
				"err", err,
			)
		}
		tr.Last = model.Day(o.Date)
	}
	if len(history) > 0 {
		slog.Debug("windows warmed up",
			"underlying", tr.Underlying,
			"observations", len(history),
			"iv_len", tr.IVLen(),
			"vix_len", tr.VIXLen(),
		)
	}
	return nil
}

func logStats(obs *model.Observation, r window.Result) {
	for series, s := range map[string]window.Stats{"iv": r.IV, "vix": r.VIX} {
		if s.Err == nil {
			continue
		}
		slog.Debug("statistic withheld",
			"underlying", obs.Underlying,
			"date", model.DayKey(obs.Date),
			"series", series,
			"reason", s.Err,
		)
	}
}

func toFloat(v *decimal.Decimal) *float64 {
	if v == nil {
		return nil
	}
	f := v.InexactFloat64()
	return &f
}

func statDecimals(s window.Stats) (rank, pct *decimal.Decimal) {
	return fromFloat(s.Rank), fromFloat(s.Percentile)
}

func fromFloat(f *float64) *decimal.Decimal {
	if f == nil {
		return nil
	}
	v := decimal.NewFromFloat(*f).Round(StatScale)
	return &v
}
