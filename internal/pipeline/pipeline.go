// Package pipeline runs the engine over a batch of snapshots: underlyings
// in parallel, each underlying's dates in chronological order.
package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/atmx/vix-engine/internal/engine"
	"github.com/atmx/vix-engine/internal/model"
)

// Processor handles one (underlying, date). *engine.Engine satisfies it.
type Processor interface {
	Process(ctx context.Context, in *engine.Input) (*model.Observation, error)
}

// Failure is a hard error for one (underlying, date).
type Failure struct {
	Underlying string
	Date       time.Time
	Err        error
}

// Report collects a batch outcome. Observations are ordered by underlying
// then date.
type Report struct {
	Observations []model.Observation
	Failures     []Failure
}

// Runner fans a batch out across underlyings.
type Runner struct {
	proc    Processor
	workers int
}

// NewRunner creates a runner processing at most workers underlyings at once.
func NewRunner(proc Processor, workers int) *Runner {
	if workers <= 0 {
		workers = 1
	}
	return &Runner{proc: proc, workers: workers}
}

// Run processes every input. Soft failures arrive as observations with a
// Reason. A duplicate date is skipped; any other error stops that
// underlying only. The returned error is non-nil only on cancellation.
func (r *Runner) Run(ctx context.Context, inputs []engine.Input) (*Report, error) {
	groups := GroupByUnderlying(inputs)

	var mu sync.Mutex
	report := &Report{}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(r.workers)

	for _, u := range sortedKeys(groups) {
		u := u
		batch := groups[u]
		g.Go(func() error {
			for i := range batch {
				if err := ctx.Err(); err != nil {
					return err
				}
				in := &batch[i]
				obs, err := r.proc.Process(ctx, in)
				if err != nil {
					mu.Lock()
					report.Failures = append(report.Failures, Failure{
						Underlying: u,
						Date:       model.Day(in.Snapshot.Date),
						Err:        err,
					})
					mu.Unlock()
					if errors.Is(err, engine.ErrOutOfOrder) {
						slog.Warn("duplicate date skipped", "underlying", u, "date", model.DayKey(in.Snapshot.Date))
						continue
					}
					slog.Error("underlying aborted", "underlying", u, "date", model.DayKey(in.Snapshot.Date), "err", err)
					return nil
				}
				mu.Lock()
				report.Observations = append(report.Observations, *obs)
				mu.Unlock()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return report, err
	}

	sort.SliceStable(report.Observations, func(i, j int) bool {
		a, b := report.Observations[i], report.Observations[j]
		if a.Underlying != b.Underlying {
			return a.Underlying < b.Underlying
		}
		return a.Date.Before(b.Date)
	})
	sort.SliceStable(report.Failures, func(i, j int) bool {
		a, b := report.Failures[i], report.Failures[j]
		if a.Underlying != b.Underlying {
			return a.Underlying < b.Underlying
		}
		return a.Date.Before(b.Date)
	})
	return report, nil
}

// GroupByUnderlying splits inputs per underlying, each group sorted by date.
func GroupByUnderlying(inputs []engine.Input) map[string][]engine.Input {
	groups := make(map[string][]engine.Input)
	for _, in := range inputs {
		groups[in.Snapshot.Underlying] = append(groups[in.Snapshot.Underlying], in)
	}
	for _, batch := range groups {
		sort.SliceStable(batch, func(i, j int) bool {
			return batch[i].Snapshot.Date.Before(batch[j].Snapshot.Date)
		})
	}
	return groups
}

func sortedKeys(m map[string][]engine.Input) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
