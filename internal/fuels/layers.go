package fuels

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/banshee-data/canopy.report/internal/profile"
)

// AssembleLayers builds the fuel layers as the complement of gaps over
// the profile's extent. gaps must come from DetectGaps on the same
// profile.
func AssembleLayers(p profile.Profile, gaps []Gap) ([]Layer, error) {
	if p.Len() == 0 {
		return nil, fmt.Errorf("empty profile: %w", ErrNoLayers)
	}

	var layers []Layer
	cursor := p.Samples[0].Height
	for _, g := range gaps {
		if g.Start > cursor+cmpTol {
			layers = append(layers, Layer{BaseHeight: cursor, TopHeight: g.Start})
		}
		cursor = math.Max(cursor, g.End)
	}
	if top := p.Top(); top > cursor+cmpTol {
		layers = append(layers, Layer{BaseHeight: cursor, TopHeight: top})
	}
	if len(layers) == 0 {
		return nil, fmt.Errorf("tree %q: every bin is empty: %w", p.TreeID, ErrNoLayers)
	}

	for i := range layers {
		layers[i].LAD = sumLAD(p, layers[i].BaseHeight, layers[i].TopHeight)
		if i == len(layers)-1 {
			continue
		}
		for _, g := range gaps {
			if math.Abs(g.Start-layers[i].TopHeight) <= cmpTol {
				layers[i].RawDistance = g.Span()
				break
			}
		}
	}
	return relink(layers), nil
}

// relink copies layers and recomputes Depth and Distance from geometry.
func relink(layers []Layer) []Layer {
	out := make([]Layer, len(layers))
	copy(out, layers)
	for i := range out {
		out[i].Depth = out[i].TopHeight - out[i].BaseHeight
		if i+1 < len(out) {
			out[i].Distance = out[i+1].BaseHeight - out[i].TopHeight
		} else {
			out[i].Distance = 0
		}
	}
	return out
}

// sumLAD adds the LAD of every bin whose height lies in [base, top).
func sumLAD(p profile.Profile, base, top float64) float64 {
	var lads []float64
	for _, s := range p.Samples {
		if s.Height >= base-cmpTol && s.Height < top-cmpTol {
			lads = append(lads, s.LAD)
		}
	}
	return floats.Sum(lads)
}
