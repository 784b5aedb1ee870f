// Package batch runs the fuel layer pipeline over many trees on a
// bounded worker pool.
package batch

import (
	"context"
	"errors"
	"fmt"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/banshee-data/canopy.report/internal/fuels"
	"github.com/banshee-data/canopy.report/internal/monitoring"
	"github.com/banshee-data/canopy.report/internal/profile"
)

// ProcessFunc analyses a single tree.
type ProcessFunc func(profile.Profile, fuels.Params) (fuels.Result, error)

// Runner processes trees independently. A failing tree never aborts the
// batch: its error is carried in the tree's Result.Err.
type Runner struct {
	Params  fuels.Params
	Workers int // <= 0 means one per CPU

	process ProcessFunc
}

// NewRunner returns a Runner backed by fuels.Run.
func NewRunner(params fuels.Params, workers int) *Runner {
	return &Runner{Params: params, Workers: workers, process: fuels.Run}
}

func (r *Runner) workers() int {
	if r.Workers > 0 {
		return r.Workers
	}
	return runtime.GOMAXPROCS(0)
}

// Run analyses every profile and returns one Result per input, in input
// order. When ctx is cancelled, trees not yet started get ctx.Err() in
// their Result.Err and Run returns the context error alongside the
// partial results.
func (r *Runner) Run(ctx context.Context, profiles []profile.Profile) ([]fuels.Result, error) {
	process := r.process
	if process == nil {
		process = fuels.Run
	}
	results := make([]fuels.Result, len(profiles))
	done := make([]bool, len(profiles))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.workers())
	for i, p := range profiles {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			res, err := process(p, r.Params)
			if err != nil {
				res.TreeID = p.TreeID
				res.Record = fuels.CBHRecord{TreeID: p.TreeID}
				res.Layers = nil
				res.Err = err
			}
			if res.Err != nil && !errors.Is(res.Err, fuels.ErrNoLayers) {
				monitoring.Logf("[batch] tree %q failed: %v", p.TreeID, res.Err)
			} else if res.Err != nil {
				monitoring.Debugf("[batch] tree %q: %v", p.TreeID, res.Err)
			}
			results[i] = res
			done[i] = true
			return nil
		})
	}
	waitErr := g.Wait()

	ctxErr := ctx.Err()
	if ctxErr == nil {
		ctxErr = waitErr
	}
	if ctxErr != nil {
		for i, p := range profiles {
			if !done[i] {
				results[i] = fuels.Result{
					TreeID: p.TreeID,
					Record: fuels.CBHRecord{TreeID: p.TreeID},
					Err:    fmt.Errorf("tree %q not processed: %w", p.TreeID, ctxErr),
				}
			}
		}
		return results, ctxErr
	}
	return results, nil
}

// Summary counts the outcomes of a batch.
type Summary struct {
	Trees      int
	WithLayers int
	NoLayers   int
	Failed     int
}

// Summarize tallies results by outcome.
func Summarize(results []fuels.Result) Summary {
	s := Summary{Trees: len(results)}
	for _, res := range results {
		switch {
		case res.Err == nil:
			s.WithLayers++
		case errors.Is(res.Err, fuels.ErrNoLayers):
			s.NoLayers++
		default:
			s.Failed++
		}
	}
	return s
}

func (s Summary) String() string {
	return fmt.Sprintf("%d trees: %d with layers, %d without layers, %d failed", s.Trees, s.WithLayers, s.NoLayers, s.Failed)
}
