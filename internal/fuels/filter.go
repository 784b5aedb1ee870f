package fuels

import (
	"fmt"

	"gonum.org/v1/gonum/floats"

	"github.com/banshee-data/canopy.report/internal/profile"
)

// FilterByLAD assigns each layer its share of the profile's total LAD,
// drops layers holding less than minFraction percent, and re-runs
// CorrectLayers on the survivors so that distances span the removed
// layers. Drop and correct repeat until every layer meets minFraction or
// a single layer remains. The input slice is not modified.
func FilterByLAD(layers []Layer, p profile.Profile, minFraction, minStep float64) ([]Layer, error) {
	return filterByLAD(layers, p, minFraction, minStep, debugLogf)
}

func filterByLAD(layers []Layer, p profile.Profile, minFraction, minStep float64, logf logFunc) ([]Layer, error) {
	total := floats.Sum(p.LADs())
	if total <= 0 {
		return nil, fmt.Errorf("tree %q: total lad is zero: %w", p.TreeID, ErrNoLayers)
	}
	if len(layers) == 0 {
		return nil, fmt.Errorf("tree %q: %w", p.TreeID, ErrNoLayers)
	}

	cur := withFractions(layers, p, total)
	for pass := 0; len(cur) > 1; pass++ {
		if pass > len(layers) {
			return nil, fmt.Errorf("%d filter passes over %d layers: %w", pass, len(layers), ErrConvergence)
		}
		keep := keepByFraction(cur, minFraction)
		if len(keep) == len(cur) {
			break
		}
		logf("tree %q: dropped %d of %d layers under %.1f%% lad", p.TreeID, len(cur)-len(keep), len(cur), minFraction)
		corrected, err := correctLayers(keep, minStep, logf)
		if err != nil {
			return nil, err
		}
		cur = withFractions(corrected, p, total)
	}
	return cur, nil
}

// withFractions returns a copy of layers with LAD and LADFraction
// recomputed from the profile.
func withFractions(layers []Layer, p profile.Profile, total float64) []Layer {
	out := relink(layers)
	for i := range out {
		out[i].LAD = sumLAD(p, out[i].BaseHeight, out[i].TopHeight)
		out[i].LADFraction = out[i].LAD / total * 100
	}
	return out
}
