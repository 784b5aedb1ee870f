package fuels

import "fmt"

// CorrectLayers merges layers until every remaining layer is at least
// minStep deep and at least minStep below the next one, or a single
// layer is left. One merge is applied per pass, scanning bottom-up, and
// the list is rebuilt after each merge. A non-positive minStep disables
// merging. The input slice is not modified.
//
// Applying CorrectLayers to its own output is a no-op.
func CorrectLayers(layers []Layer, minStep float64) ([]Layer, error) {
	return correctLayers(layers, minStep, debugLogf)
}

func correctLayers(layers []Layer, minStep float64, logf logFunc) ([]Layer, error) {
	cur := relink(layers)
	if minStep <= 0 {
		return cur, nil
	}
	for pass := 0; len(cur) > 1; pass++ {
		if pass > len(layers) {
			return nil, fmt.Errorf("%d passes over %d layers: %w", pass, len(layers), ErrConvergence)
		}
		lo, ok := nextMerge(cur, minStep)
		if !ok {
			break
		}
		logf("merge layers [%.2f,%.2f) and [%.2f,%.2f)",
			cur[lo].BaseHeight, cur[lo].TopHeight, cur[lo+1].BaseHeight, cur[lo+1].TopHeight)
		cur = mergePair(cur, lo)
	}
	return cur, nil
}

// nextMerge returns the lower index of the first pair to merge.
func nextMerge(layers []Layer, minStep float64) (int, bool) {
	last := len(layers) - 1
	for i, l := range layers {
		if i < last && tooClose(l, minStep) {
			return i, true
		}
		if !tooThin(l, minStep) {
			continue
		}
		switch {
		case i == 0:
			return 0, true
		case i == last:
			return i - 1, true
		case mergeUpward(layers, i):
			return i, true
		default:
			return i - 1, true
		}
	}
	return 0, false
}

// mergePair replaces layers lo and lo+1 with their union.
func mergePair(layers []Layer, lo int) []Layer {
	lower, upper := layers[lo], layers[lo+1]
	merged := Layer{
		BaseHeight:  lower.BaseHeight,
		TopHeight:   upper.TopHeight,
		RawDistance: upper.RawDistance,
		LAD:         lower.LAD + upper.LAD,
	}
	out := make([]Layer, 0, len(layers)-1)
	out = append(out, layers[:lo]...)
	out = append(out, merged)
	out = append(out, layers[lo+2:]...)
	return relink(out)
}
