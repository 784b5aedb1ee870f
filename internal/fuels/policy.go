package fuels

// Business rules used by the merge, filter and selection stages. Each is
// a small predicate so a rule can change without touching the loops.

// tooClose reports a layer whose gap to the next layer is under minStep.
func tooClose(l Layer, minStep float64) bool {
	return l.Distance < minStep-cmpTol
}

// tooThin reports a layer shallower than minStep.
func tooThin(l Layer, minStep float64) bool {
	return l.Depth < minStep-cmpTol
}

// mergeUpward decides where a thin layer with neighbours on both sides
// goes: across the smaller of the two separating gaps, upward on a tie.
func mergeUpward(layers []Layer, i int) bool {
	return layers[i].Distance <= layers[i-1].Distance+cmpTol
}

// meetsFraction reports whether a layer holds enough of the tree's LAD.
func meetsFraction(l Layer, minFraction float64) bool {
	return l.LADFraction >= minFraction-cmpTol
}

// keepByFraction returns the layers that meet minFraction. When none
// does, the single largest layer survives (topmost on a tie).
func keepByFraction(layers []Layer, minFraction float64) []Layer {
	var keep []Layer
	for _, l := range layers {
		if meetsFraction(l, minFraction) {
			keep = append(keep, l)
		}
	}
	if len(keep) == 0 && len(layers) > 0 {
		keep = []Layer{layers[pickMaxLAD(layers)]}
	}
	return keep
}

// pickMaxLAD returns the index of the layer with the greatest LAD share.
// Equal shares resolve to the highest layer.
func pickMaxLAD(layers []Layer) int {
	best := 0
	for i := 1; i < len(layers); i++ {
		if layers[i].LADFraction >= layers[best].LADFraction-cmpTol {
			best = i
		}
	}
	return best
}

// needsSecondLayerOverride reports whether the max-LAD pick is a thin
// lowest layer that should defer to the layer above it.
func needsSecondLayerOverride(layers []Layer, idx int, hdepth1 float64) bool {
	return idx == 0 && len(layers) > 1 && layers[0].Depth <= hdepth1+cmpTol
}

// pickMaxDistance returns the index of the layer sitting directly above
// the widest gap. Equal gaps resolve to the highest. A single layer is
// its own answer.
func pickMaxDistance(layers []Layer) int {
	if len(layers) < 2 {
		return 0
	}
	below := 0
	for i := 1; i < len(layers)-1; i++ {
		if layers[i].Distance >= layers[below].Distance-cmpTol {
			below = i
		}
	}
	return below + 1
}
